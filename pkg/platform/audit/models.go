package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events by their primary purpose.
type EventCategory string

const (
	// CategoryCompliance covers verification outcomes with regulatory weight.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers rejected tokens, credential problems and
	// capture-surface failures.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine flow progress and can be sampled.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from the liveness flow to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	UserID    string
	FlowID    string
	SessionID string
	Action    string
	Stage     string
	ErrorKind string
	Reason    string
	RequestID string
}

type AuditEvent string

const (
	EventCaptureStarted   AuditEvent = "liveness_capture_started"
	EventSessionAllocated AuditEvent = "liveness_session_allocated"
	EventSurfaceLaunched  AuditEvent = "liveness_surface_launched"
	EventOutcomeReceived  AuditEvent = "liveness_outcome_received"
	EventVerdictIssued    AuditEvent = "liveness_verdict_issued"
	EventFlowFailed       AuditEvent = "liveness_flow_failed"
	EventFlowReset        AuditEvent = "liveness_flow_reset"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventVerdictIssued: CategoryCompliance,

	EventFlowFailed:      CategorySecurity,
	EventOutcomeReceived: CategorySecurity,

	EventCaptureStarted:   CategoryOperations,
	EventSessionAllocated: CategoryOperations,
	EventSurfaceLaunched:  CategoryOperations,
	EventFlowReset:        CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByUser(ctx context.Context, userID string) ([]Event, error)
}
