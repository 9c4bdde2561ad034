package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/vbonduro/roomcheck/internal/attachment"
	"github.com/vbonduro/roomcheck/internal/inspection"
	"github.com/vbonduro/roomcheck/internal/service"
	"github.com/vbonduro/roomcheck/internal/session"
)

// errorResponse carries the failure and, for session routes, the state the
// session was left in so the client can re-render.
type errorResponse struct {
	Error    *session.ErrorView `json:"error"`
	Snapshot *session.Snapshot  `json:"snapshot,omitempty"`
}

var sentinelKinds = []struct {
	err    error
	kind   string
	status int
}{
	{session.ErrEmptyFlowID, "empty_flow_id", http.StatusBadRequest},
	{session.ErrNoForm, "no_form", http.StatusConflict},
	{session.ErrNoFlow, "no_flow", http.StatusConflict},
	{session.ErrTaskNotFound, "task_not_found", http.StatusNotFound},
	{session.ErrInvalidToken, "invalid_token", http.StatusConflict},
	{session.ErrSuperseded, "superseded", http.StatusConflict},
	{session.ErrSubmissionInFlight, "submission_in_flight", http.StatusConflict},
	{session.ErrTooManySessions, "too_many_sessions", http.StatusServiceUnavailable},
	{inspection.ErrUnknownArea, "unknown_area", http.StatusNotFound},
	{inspection.ErrAttachmentNotFound, "attachment_not_found", http.StatusNotFound},
	{inspection.ErrInvalidStatus, "invalid_status", http.StatusBadRequest},
	{inspection.ErrDuplicateAttachment, "duplicate_attachment", http.StatusConflict},
	{service.ErrVisionDisabled, "vision_disabled", http.StatusServiceUnavailable},
	{service.ErrDescribeFailed, "suggestion_failed", http.StatusBadGateway},
	{service.ErrFileNotFound, "file_not_found", http.StatusNotFound},
	{attachment.ErrTooLarge, "attachment_too_large", http.StatusRequestEntityTooLarge},
	{attachment.ErrUnsupported, "attachment_unsupported", http.StatusUnsupportedMediaType},
	{attachment.ErrEmpty, "attachment_empty", http.StatusBadRequest},
}

// classify maps an error to its HTTP status and presentation.
func classify(err error) (int, *session.ErrorView) {
	view := session.ErrorViewOf(err)

	var (
		resErr *session.ResolutionError
		subErr *session.SubmissionError
		valErr *inspection.ValidationError
		attErr *attachment.Error
		tooBig *http.MaxBytesError
		reqErr *requestError
	)
	switch {
	case errors.As(err, &resErr):
		switch resErr.Kind {
		case session.ResolutionNotFound:
			return http.StatusNotFound, view
		case session.ResolutionAlreadyCompleted:
			return http.StatusConflict, view
		default:
			return http.StatusBadGateway, view
		}
	case errors.As(err, &subErr):
		return http.StatusBadGateway, view
	case errors.As(err, &valErr):
		return http.StatusUnprocessableEntity, view
	case errors.As(err, &reqErr):
		view.Kind = "bad_request"
		return http.StatusBadRequest, view
	case errors.As(err, &tooBig):
		view.Kind = "attachment_too_large"
		return http.StatusRequestEntityTooLarge, view
	}

	for _, s := range sentinelKinds {
		if errors.Is(err, s.err) {
			view.Kind = s.kind
			return s.status, view
		}
	}

	if errors.As(err, &attErr) {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			view.Kind = "cancelled"
			return http.StatusRequestTimeout, view
		}
		view.Kind = "attachment_invalid"
		return http.StatusBadRequest, view
	}
	return http.StatusInternalServerError, view
}

func writeJSON(w http.ResponseWriter, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("write response failed", "error", err)
	}
}

// writeError writes err with its mapped status. snap may be nil for routes
// that are not tied to a session.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, snap *session.Snapshot) {
	status, view := classify(err)
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway && status != http.StatusServiceUnavailable {
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
		// Internal details stay in the log.
		view.Message = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Error: view, Snapshot: snap}, s.logger)
}

func badRequest(msg string) error { return &requestError{msg: msg} }

// requestError is a malformed request body or parameter.
type requestError struct{ msg string }

func (e *requestError) Error() string { return e.msg }
