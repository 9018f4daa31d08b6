package models

import "time"

// Screen is the view the presentation layer should render.
type Screen string

const (
	ScreenDocument Screen = "document"
	ScreenPrepare  Screen = "prepare"
	ScreenResult   Screen = "result"
)

// Action is what the primary button does on the current screen.
type Action string

const (
	ActionNone   Action = "none"
	ActionScan   Action = "scan"
	ActionSubmit Action = "submit"
)

// Snapshot is the read-only view of one flow. Every UI affordance is derived
// from it; nothing else is a source of UI state.
type Snapshot struct {
	FlowID    string               `json:"flow_id"`
	Epoch     uint64               `json:"epoch"`
	Stage     Stage                `json:"stage"`
	SessionID SessionID            `json:"session_id,omitempty"`
	Busy      bool                 `json:"busy"`
	Error     *FlowError           `json:"error,omitempty"`
	Verdict   *VerificationVerdict `json:"verdict,omitempty"`
	UpdatedAt time.Time            `json:"updated_at"`
}

func (s Snapshot) Screen() Screen {
	switch s.Stage {
	case StageAwaitingCredentials, StageLaunched, StageAwaitingOutcome:
		return ScreenPrepare
	case StagePolling, StageSucceeded, StageFailed:
		return ScreenResult
	default:
		return ScreenDocument
	}
}

func (s Snapshot) PrimaryAction() Action {
	switch s.Stage {
	case StageIdle:
		return ActionScan
	case StageAwaitingCredentials:
		if s.Busy {
			return ActionNone
		}
		return ActionSubmit
	default:
		return ActionNone
	}
}

// Loading is true while a remote call or the capture surface is pending.
func (s Snapshot) Loading() bool {
	if s.Busy {
		return true
	}
	switch s.Stage {
	case StageUploading, StageAllocatingSession, StagePolling:
		return true
	}
	return s.Stage.awaitsSurface()
}

// Status mirrors the result screen's status line.
func (s Snapshot) Status() string {
	switch s.Stage {
	case StagePolling:
		return "sending"
	case StageSucceeded:
		return "success"
	case StageFailed:
		return "error"
	default:
		return ""
	}
}
