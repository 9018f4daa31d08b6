package models

// VerdictStatus is the backend's final liveness decision.
type VerdictStatus string

const (
	VerdictSuccess VerdictStatus = "success"
	VerdictFailure VerdictStatus = "failure"
)

// RejectionReason is the classified cause of a failed verdict.
type RejectionReason string

const (
	ReasonNone               RejectionReason = ""
	ReasonNoLivenessDetected RejectionReason = "no_liveness_detected"
	ReasonFaceMismatch       RejectionReason = "face_mismatch"
	ReasonUnknown            RejectionReason = "unknown"
)

// Message is the user-facing category for the reason.
func (r RejectionReason) Message() string {
	switch r {
	case ReasonNone:
		return ""
	case ReasonNoLivenessDetected:
		return "no motion detected"
	case ReasonFaceMismatch:
		return "face mismatch"
	default:
		return "unknown error"
	}
}

// ResultRecord is the raw answer of the result lookup, before classification.
type ResultRecord struct {
	Status       string
	StatusReason string
}

// VerificationVerdict is the classified, terminal result of one attempt.
type VerificationVerdict struct {
	Status    VerdictStatus   `json:"status"`
	Reason    RejectionReason `json:"reason,omitempty"`
	RawReason string          `json:"raw_reason,omitempty"`
}

func (v *VerificationVerdict) Succeeded() bool {
	return v != nil && v.Status == VerdictSuccess
}
