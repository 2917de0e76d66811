package model

import "time"

type RunState string

const (
	RunInProgress RunState = "IN_PROGRESS"
	RunFinished   RunState = "FINISHED"
)

// DeduplicationRun is one versioned pass over a generation.
type DeduplicationRun struct {
	ID           int64      `json:"id"`
	GenerationID int64      `json:"generation_id"`
	State        RunState   `json:"state"`
	CreatedAt    time.Time  `json:"created_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

func (r DeduplicationRun) Active() bool {
	return r.State == RunInProgress
}
