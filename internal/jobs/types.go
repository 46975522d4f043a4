package jobs

import (
	"context"
	"errors"
)

var (
	// ErrJobRunning is returned when a training start overlaps an active run
	// for the same project, or a verification overlaps one for the same folder.
	ErrJobRunning = errors.New("job already running")
)

// Report summarizes a finished training run.
type Report struct {
	Classes []string `json:"classes"`
	Samples int      `json:"samples"`
}

// Result holds one verification run's predictions. Every confidence vector is
// aligned with Classes: Confidence[i] is the score for Classes[i].
type Result struct {
	Classes []string      `json:"classes"`
	Images  []ImageResult `json:"images"`
}

type ImageResult struct {
	Name       string    `json:"name"`
	Confidence []float64 `json:"confidence"`
}

// Trainer is the external training function. It reads labeled images from
// dataDir, saves the model under modelDir, and may report integer-percent
// progress on the channel. It must stop sending once it returns.
type Trainer interface {
	Train(ctx context.Context, dataDir, modelDir string, progress chan<- int) (*Report, error)
}

// Verifier classifies every image in folderDir against the model in modelDir.
type Verifier interface {
	Verify(ctx context.Context, modelDir, folderDir string) (*Result, error)
}

// Events is the broadcast surface the orchestrator reports through. Progress
// and terminal events go to every connected client, not just the initiator.
type Events interface {
	Broadcast(eventType string, data interface{})
}
