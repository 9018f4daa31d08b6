package models

import "time"

// ClientInfo describes the device that drove the flow.
type ClientInfo struct {
	Platform string
	Browser  string
	Mobile   bool
}

// Attempt is the history record of one flow attempt that left Idle.
type Attempt struct {
	ID            string
	FlowID        string
	Owner         string
	Epoch         uint64
	SessionID     SessionID
	FinalStage    Stage
	ErrorKind     ErrorKind
	Reason        RejectionReason
	DocumentBytes int64
	Client        ClientInfo
	StartedAt     time.Time
	FinishedAt    time.Time
}

// Abandoned reports whether the attempt ended through a reset.
func (a *Attempt) Abandoned() bool {
	return !a.FinalStage.IsTerminal()
}
