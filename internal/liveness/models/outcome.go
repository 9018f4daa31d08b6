package models

import "time"

// OutcomeKind tags the single terminal event a capture surface emits.
type OutcomeKind string

const (
	OutcomeComplete OutcomeKind = "complete"
	OutcomeFailed   OutcomeKind = "failed"
)

func (k OutcomeKind) IsValid() bool {
	return k == OutcomeComplete || k == OutcomeFailed
}

// OutcomeEvent is delivered through the event bridge and correlated to the
// launched session by SessionID.
type OutcomeEvent struct {
	SessionID SessionID
	Kind      OutcomeKind
	Message   string
	At        time.Time
}

func CompleteEvent(sessionID SessionID) OutcomeEvent {
	return OutcomeEvent{SessionID: sessionID, Kind: OutcomeComplete, At: time.Now()}
}

func FailedEvent(sessionID SessionID, message string) OutcomeEvent {
	return OutcomeEvent{SessionID: sessionID, Kind: OutcomeFailed, Message: message, At: time.Now()}
}
