// Package assets resolves media references (http/https, s3:// and local
// paths) to files on disk for the renderer. Remote assets are cached under
// the assets directory keyed by URL hash.
package assets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/storyreel/storyreel-agent/internal/cloud"
)

const (
	DefaultConcurrency = 4
	DefaultRetries     = 2
	DefaultTimeout     = 60 * time.Second
	defaultBackoff     = 500 * time.Millisecond
)

// FetchError is returned when an asset could not be made available locally.
type FetchError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// statusError is a non-2xx HTTP response.
type statusError struct {
	StatusCode int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// permanent errors are not retried: client errors, missing objects and
// missing local files.
func permanent(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.StatusCode >= 400 && se.StatusCode < 500
	}
	return errors.Is(err, cloud.ErrObjectNotFound) || errors.Is(err, os.ErrNotExist)
}

type Options struct {
	Dir         string
	Store       cloud.ObjectStore // optional; required for s3:// assets
	Concurrency int
	Retries     int
	Timeout     time.Duration
	Backoff     time.Duration
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// Fetcher downloads assets with bounded parallelism and a fixed retry budget.
type Fetcher struct {
	dir         string
	store       cloud.ObjectStore
	concurrency int
	retries     int
	backoff     time.Duration
	client      *http.Client
	logger      *slog.Logger

	// one in-flight download per cache path
	mu       sync.Mutex
	inflight map[string]*sync.Mutex
}

func New(opts Options) *Fetcher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Fetcher{
		dir:         opts.Dir,
		store:       opts.Store,
		concurrency: opts.Concurrency,
		retries:     opts.Retries,
		backoff:     opts.Backoff,
		client:      opts.HTTPClient,
		logger:      opts.Logger,
		inflight:    make(map[string]*sync.Mutex),
	}
}

// Fetch returns a local path for rawURL, downloading it if necessary.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	if p, ok := localPath(rawURL); ok {
		if _, err := os.Stat(p); err != nil {
			return "", &FetchError{URL: rawURL, Attempts: 1, Err: err}
		}
		return p, nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", &FetchError{URL: rawURL, Attempts: 1, Err: err}
	}
	var open func(ctx context.Context) (io.ReadCloser, error)
	switch u.Scheme {
	case "http", "https":
		open = func(ctx context.Context) (io.ReadCloser, error) { return f.openHTTP(ctx, rawURL) }
	case "s3":
		if f.store == nil {
			return "", &FetchError{URL: rawURL, Attempts: 1, Err: errors.New("no object store configured")}
		}
		bucket, key, err := cloud.ParseURI(rawURL)
		if err != nil {
			return "", &FetchError{URL: rawURL, Attempts: 1, Err: err}
		}
		open = func(ctx context.Context) (io.ReadCloser, error) { return f.store.Get(ctx, bucket, key) }
	default:
		return "", &FetchError{URL: rawURL, Attempts: 1, Err: fmt.Errorf("unsupported scheme %q", u.Scheme)}
	}

	dest := f.CachePath(rawURL)
	lock := f.lockFor(dest)
	lock.Lock()
	defer lock.Unlock()

	if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
		return dest, nil
	}
	if err := os.MkdirAll(f.dir, 0755); err != nil {
		return "", &FetchError{URL: rawURL, Attempts: 1, Err: err}
	}

	attempts := 0
	for {
		attempts++
		err = f.download(ctx, open, dest)
		if err == nil {
			f.logger.Debug("asset cached", "url", rawURL, "attempts", attempts)
			return dest, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if permanent(err) || attempts > f.retries {
			return "", &FetchError{URL: rawURL, Attempts: attempts, Err: err}
		}
		f.logger.Warn("asset download failed, retrying", "url", rawURL, "attempt", attempts, "error", err)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(f.backoff * time.Duration(attempts)):
		}
	}
}

// FetchAll resolves every distinct URL concurrently. The first failure
// cancels the remaining downloads.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string) (map[string]string, error) {
	var (
		mu  sync.Mutex
		out = make(map[string]string, len(urls))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)

	seen := make(map[string]bool)
	for _, u := range urls {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		g.Go(func() error {
			p, err := f.Fetch(gctx, u)
			if err != nil {
				return err
			}
			mu.Lock()
			out[u] = p
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// CachePath is where a remote asset is stored once downloaded.
func (f *Fetcher) CachePath(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	name := hex.EncodeToString(sum[:12])
	if u, err := url.Parse(rawURL); err == nil {
		if ext := path.Ext(u.Path); len(ext) > 1 && len(ext) <= 5 {
			name += strings.ToLower(ext)
		}
	}
	return filepath.Join(f.dir, name)
}

func (f *Fetcher) lockFor(dest string) *sync.Mutex {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.inflight[dest]
	if !ok {
		l = &sync.Mutex{}
		f.inflight[dest] = l
	}
	return l
}

func (f *Fetcher) openHTTP(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, &statusError{StatusCode: resp.StatusCode}
	}
	return resp.Body, nil
}

// download writes to a temp file next to dest and renames on success so a
// partial download is never mistaken for a cached asset.
func (f *Fetcher) download(ctx context.Context, open func(context.Context) (io.ReadCloser, error), dest string) error {
	body, err := open(ctx)
	if err != nil {
		return err
	}
	defer body.Close()

	tmp, err := os.CreateTemp(f.dir, ".fetch-*")
	if err != nil {
		return err
	}
	n, err := io.Copy(tmp, body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil && n == 0 {
		err = errors.New("empty response body")
	}
	if err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

// localPath reports whether rawURL refers to the local filesystem.
func localPath(rawURL string) (string, bool) {
	if strings.HasPrefix(rawURL, "file://") {
		u, err := url.Parse(rawURL)
		if err != nil {
			return "", false
		}
		return filepath.FromSlash(u.Path), true
	}
	if filepath.IsAbs(rawURL) {
		return rawURL, true
	}
	return "", false
}
