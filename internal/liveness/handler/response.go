package handler

import (
	"time"

	"liveness/internal/liveness/models"
)

// SnapshotResponse is the wire form of a flow snapshot, with the derived
// presentation fields a client renders from.
type SnapshotResponse struct {
	FlowID        string           `json:"flow_id,omitempty"`
	Epoch         uint64           `json:"epoch"`
	Stage         string           `json:"stage"`
	Screen        string           `json:"screen"`
	PrimaryAction string           `json:"primary_action"`
	Loading       bool             `json:"loading"`
	Status        string           `json:"status,omitempty"`
	SessionID     string           `json:"session_id,omitempty"`
	Error         *FlowErrorBody   `json:"error,omitempty"`
	Verdict       *VerdictResponse `json:"verdict,omitempty"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

type FlowErrorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

type VerdictResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

type AttemptResponse struct {
	ID            string     `json:"id"`
	FlowID        string     `json:"flow_id"`
	SessionID     string     `json:"session_id,omitempty"`
	FinalStage    string     `json:"final_stage"`
	ErrorKind     string     `json:"error_kind,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	Abandoned     bool       `json:"abandoned"`
	DocumentBytes int64      `json:"document_bytes,omitempty"`
	Platform      string     `json:"platform,omitempty"`
	Browser       string     `json:"browser,omitempty"`
	Mobile        bool       `json:"mobile"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

type AttemptsResponse struct {
	Attempts []AttemptResponse `json:"attempts"`
}

func toSnapshotResponse(s models.Snapshot) SnapshotResponse {
	resp := SnapshotResponse{
		FlowID:        s.FlowID,
		Epoch:         s.Epoch,
		Stage:         string(s.Stage),
		Screen:        string(s.Screen()),
		PrimaryAction: string(s.PrimaryAction()),
		Loading:       s.Loading(),
		Status:        s.Status(),
		SessionID:     s.SessionID.String(),
		UpdatedAt:     s.UpdatedAt,
	}
	if s.Error != nil {
		resp.Error = &FlowErrorBody{
			Kind:    string(s.Error.Kind),
			Message: s.Error.Message,
			Reason:  string(s.Error.Reason),
		}
	}
	if s.Verdict != nil {
		resp.Verdict = &VerdictResponse{
			Status: string(s.Verdict.Status),
			Reason: string(s.Verdict.Reason),
		}
	}
	return resp
}

func toAttemptsResponse(list []*models.Attempt) AttemptsResponse {
	out := AttemptsResponse{Attempts: make([]AttemptResponse, 0, len(list))}
	for _, a := range list {
		item := AttemptResponse{
			ID:            a.ID,
			FlowID:        a.FlowID,
			SessionID:     a.SessionID.String(),
			FinalStage:    string(a.FinalStage),
			ErrorKind:     string(a.ErrorKind),
			Reason:        string(a.Reason),
			Abandoned:     a.Abandoned(),
			DocumentBytes: a.DocumentBytes,
			Platform:      a.Client.Platform,
			Browser:       a.Client.Browser,
			Mobile:        a.Client.Mobile,
			StartedAt:     a.StartedAt,
		}
		if !a.FinishedAt.IsZero() {
			finished := a.FinishedAt
			item.FinishedAt = &finished
		}
		out.Attempts = append(out.Attempts, item)
	}
	return out
}
