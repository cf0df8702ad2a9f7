package playback

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrInvalidRange  = errors.New("invalid range format")
	ErrUnsatisfiable = errors.New("range not satisfiable")
)

// Range is an inclusive byte span.
type Range struct {
	Start int64
	End   int64
}

func (r Range) ContentLength() int64 {
	return r.End - r.Start + 1
}

func (r Range) ContentRange(total int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, total)
}

// ParseRange parses a single-range Range header against a file size. A
// missing header yields nil; only the first of several ranges is honoured.
func ParseRange(header string, size int64) (*Range, error) {
	if header == "" {
		return nil, nil
	}
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return nil, ErrInvalidRange
	}
	if first, _, multi := strings.Cut(spec, ","); multi {
		spec = strings.TrimSpace(first)
	}
	from, to, ok := strings.Cut(spec, "-")
	if !ok || strings.Contains(to, "-") {
		return nil, ErrInvalidRange
	}

	r := Range{End: size - 1}
	switch {
	case from == "":
		n, err := strconv.ParseInt(to, 10, 64)
		if err != nil || n <= 0 {
			return nil, ErrInvalidRange
		}
		r.Start = max(0, size-n)
	default:
		start, err := strconv.ParseInt(from, 10, 64)
		if err != nil || start < 0 {
			return nil, ErrInvalidRange
		}
		r.Start = start
		if to != "" {
			end, err := strconv.ParseInt(to, 10, 64)
			if err != nil {
				return nil, ErrInvalidRange
			}
			r.End = min(end, size-1)
			if end < start {
				return nil, ErrUnsatisfiable
			}
		}
	}

	if r.Start >= size || r.Start > r.End {
		return nil, ErrUnsatisfiable
	}
	return &r, nil
}
