package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RunKindTraining     = "training"
	RunKindVerification = "verification"

	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Run is one training or verification job, recorded for history.
type Run struct {
	ID         string     `json:"id"`
	Project    string     `json:"project"`
	Kind       string     `json:"kind"`
	Folder     string     `json:"folder,omitempty"`
	Status     string     `json:"status"`
	Message    string     `json:"message,omitempty"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

func NewRun(project, kind, folder string) *Run {
	return &Run{
		ID:        uuid.New().String(),
		Project:   project,
		Kind:      kind,
		Folder:    folder,
		Status:    RunStatusRunning,
		StartedAt: time.Now(),
	}
}
