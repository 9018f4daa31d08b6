package models

// Stage is the canonical orchestration state of one flow.
type Stage string

const (
	StageIdle                Stage = "idle"
	StageCapturing           Stage = "capturing"
	StageUploading           Stage = "uploading"
	StageAllocatingSession   Stage = "allocating_session"
	StageAwaitingCredentials Stage = "awaiting_credentials"
	StageLaunched            Stage = "launched"
	StageAwaitingOutcome     Stage = "awaiting_outcome"
	StagePolling             Stage = "polling"
	StageSucceeded           Stage = "succeeded"
	StageFailed              Stage = "failed"
)

// IsTerminal reports whether only a reset can leave the stage.
func (s Stage) IsTerminal() bool {
	return s == StageSucceeded || s == StageFailed
}

// awaitsSurface is true while the external capture surface owns the user.
func (s Stage) awaitsSurface() bool {
	return s == StageLaunched || s == StageAwaitingOutcome
}

// nextStage lists the forward transitions. Failed is reachable from every
// non-idle, non-terminal stage and Idle from every stage (reset), so neither
// is listed here.
var nextStage = map[Stage][]Stage{
	StageIdle:                {StageCapturing},
	StageCapturing:           {StageUploading},
	StageUploading:           {StageAllocatingSession},
	StageAllocatingSession:   {StageAwaitingCredentials},
	StageAwaitingCredentials: {StageLaunched},
	StageLaunched:            {StageAwaitingOutcome},
	StageAwaitingOutcome:     {StagePolling},
	StagePolling:             {StageSucceeded},
}

// CanTransition reports whether from → to is a legal move.
func CanTransition(from, to Stage) bool {
	if to == StageIdle {
		return true
	}
	if to == StageFailed {
		return from != StageIdle && !from.IsTerminal()
	}
	for _, next := range nextStage[from] {
		if next == to {
			return true
		}
	}
	return false
}
