package session

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyFlowID  = errors.New("flow identifier is required")
	ErrNoForm       = errors.New("no inspection form is open")
	ErrNoFlow       = errors.New("session has no task bundle")
	ErrTaskNotFound = errors.New("task not found in flow")
	ErrInvalidToken = errors.New("confirmation is missing or out of date")
	ErrSuperseded   = errors.New("request was superseded by a newer one")

	ErrSubmissionInFlight = errors.New("the inspection is being submitted")
	ErrTooManySessions    = errors.New("too many active sessions")
)

type ResolutionKind string

const (
	ResolutionNotFound         ResolutionKind = "not_found"
	ResolutionAlreadyCompleted ResolutionKind = "already_completed"
	ResolutionNetwork          ResolutionKind = "network"
)

// ResolutionError is a terminal resolution outcome. The user may retry, which
// starts a fresh resolution.
type ResolutionError struct {
	Kind   ResolutionKind
	FlowID string
	Err    error
}

func (e *ResolutionError) Error() string {
	switch e.Kind {
	case ResolutionAlreadyCompleted:
		return fmt.Sprintf("inspection for %s was already completed", e.FlowID)
	case ResolutionNetwork:
		return fmt.Sprintf("could not reach the lookup service for %s: %v", e.FlowID, e.Err)
	}
	return fmt.Sprintf("inspection link %s was not found or has expired", e.FlowID)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

type SubmissionKind string

const (
	SubmissionNetwork  SubmissionKind = "network"
	SubmissionRejected SubmissionKind = "rejected"
)

// SubmissionError leaves the form intact so the inspection can be resubmitted.
type SubmissionError struct {
	Kind SubmissionKind
	Err  error
}

func (e *SubmissionError) Error() string {
	if e.Kind == SubmissionRejected {
		return "the server did not accept the inspection, please try again"
	}
	return fmt.Sprintf("could not send the inspection, please try again: %v", e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }
