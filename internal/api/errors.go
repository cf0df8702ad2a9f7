package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/storyreel/storyreel-agent/internal/export"
	"github.com/storyreel/storyreel-agent/internal/narration"
	"github.com/storyreel/storyreel-agent/internal/project"
	"github.com/storyreel/storyreel-agent/internal/stock"
	"github.com/storyreel/storyreel-agent/internal/timeline"
)

// badRequest is a malformed request, as opposed to a rejected edit.
type badRequest string

func (e badRequest) Error() string { return string(e) }

// decode reads a JSON body into v. Unknown fields are rejected.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid request body")
	}
	return nil
}

// writeServiceError maps domain errors onto status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	var br badRequest
	var verr *timeline.ValidationError
	var svcErr *narration.ServiceError
	var searchErr *stock.SearchError

	switch {
	case errors.As(err, &br):
		WriteError(w, http.StatusBadRequest, br.Error(), "BAD_REQUEST")
	case errors.As(err, &verr):
		WriteError(w, http.StatusUnprocessableEntity, verr.Message, "VALIDATION_FAILED")
	case errors.Is(err, timeline.ErrValidation):
		WriteError(w, http.StatusUnprocessableEntity, err.Error(), "VALIDATION_FAILED")
	case errors.Is(err, project.ErrNotFound),
		errors.Is(err, timeline.ErrSegmentNotFound),
		errors.Is(err, timeline.ErrClipNotFound),
		errors.Is(err, timeline.ErrAudioTrackNotFound),
		errors.Is(err, export.ErrNotFound),
		errors.Is(err, export.ErrNoOutput):
		WriteError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
	case errors.Is(err, timeline.ErrNothingToUndo),
		errors.Is(err, timeline.ErrNothingToRedo),
		errors.Is(err, export.ErrExportInProgress),
		errors.Is(err, export.ErrNotRendering):
		WriteError(w, http.StatusConflict, err.Error(), "CONFLICT")
	case errors.As(err, &svcErr), errors.As(err, &searchErr):
		WriteError(w, http.StatusBadGateway, err.Error(), "UPSTREAM_ERROR")
	default:
		WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
	}
}
