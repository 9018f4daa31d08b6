package models

import "fmt"

// ErrorKind is the failure taxonomy attached to a failed flow.
type ErrorKind string

const (
	ErrorCaptureCancelled      ErrorKind = "capture_cancelled"
	ErrorCaptureFailed         ErrorKind = "capture_failed"
	ErrorUploadFailed          ErrorKind = "upload_failed"
	ErrorAllocationFailed      ErrorKind = "allocation_failed"
	ErrorCredentialFetchFailed ErrorKind = "credential_fetch_failed"
	ErrorLaunchFailed          ErrorKind = "launch_failed"
	ErrorExternalSurfaceFailed ErrorKind = "external_surface_failed"
	ErrorOutcomeTimedOut       ErrorKind = "outcome_timed_out"
	ErrorResultLookupFailed    ErrorKind = "result_lookup_failed"
	ErrorVerdictRejected       ErrorKind = "verdict_rejected"
)

// FlowError is the populated error field of a snapshot. Message carries the
// capture surface's text for ExternalSurfaceFailed; Reason carries the
// classified cause for VerdictRejected.
type FlowError struct {
	Kind    ErrorKind       `json:"kind"`
	Message string          `json:"message,omitempty"`
	Reason  RejectionReason `json:"reason,omitempty"`
	Err     error           `json:"-"`
}

func (e *FlowError) Error() string {
	switch {
	case e.Reason != ReasonNone:
		return fmt.Sprintf("%s(%s)", e.Kind, e.Reason)
	case e.Message != "":
		return fmt.Sprintf("%s(%s)", e.Kind, e.Message)
	default:
		return string(e.Kind)
	}
}

func (e *FlowError) Unwrap() error {
	return e.Err
}

// NewFlowError builds a FlowError from a remote-call failure.
func NewFlowError(kind ErrorKind, err error) *FlowError {
	fe := &FlowError{Kind: kind, Err: err}
	if err != nil {
		fe.Message = err.Error()
	}
	return fe
}

func SurfaceFailed(message string) *FlowError {
	return &FlowError{Kind: ErrorExternalSurfaceFailed, Message: message}
}

func VerdictRejected(reason RejectionReason) *FlowError {
	if reason == ReasonNone {
		reason = ReasonUnknown
	}
	return &FlowError{Kind: ErrorVerdictRejected, Reason: reason, Message: reason.Message()}
}
