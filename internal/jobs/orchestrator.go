package jobs

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/kdimtricp/trainbox/internal/database"
	"github.com/kdimtricp/trainbox/internal/dataset"
	"github.com/kdimtricp/trainbox/internal/models"
)

// Orchestrator tracks the lifecycle of training and verification jobs. A
// project holds at most one active training run; a verification folder holds
// at most one active verification. Jobs are not cancellable and have no
// timeout; a disconnecting client does not abort server-side work.
type Orchestrator struct {
	trainer  Trainer
	verifier Verifier
	store    *dataset.Store
	runs     *database.RunRepository
	events   Events

	mu        sync.Mutex
	training  map[string]bool // project -> active
	verifying map[string]bool // project/folder -> active
}

func NewOrchestrator(trainer Trainer, verifier Verifier, store *dataset.Store, runs *database.RunRepository, events Events) *Orchestrator {
	return &Orchestrator{
		trainer:   trainer,
		verifier:  verifier,
		store:     store,
		runs:      runs,
		events:    events,
		training:  make(map[string]bool),
		verifying: make(map[string]bool),
	}
}

// TrainingActive reports whether a training run is in flight for the project.
func (o *Orchestrator) TrainingActive(project string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.training[project]
}

// StartTraining begins a training run for the project. A second start while
// one is running is rejected with ErrJobRunning so two jobs can never race a
// model save.
func (o *Orchestrator) StartTraining(project string) error {
	o.mu.Lock()
	if o.training[project] {
		o.mu.Unlock()
		return fmt.Errorf("%w: training for project %s", ErrJobRunning, project)
	}
	o.training[project] = true
	o.mu.Unlock()

	run := models.NewRun(project, models.RunKindTraining, "")
	if err := o.runs.InsertRun(run); err != nil {
		log.Printf("[JOB] Failed to record training run for %s: %v", project, err)
	}

	go o.runTraining(project, run.ID)
	return nil
}

func (o *Orchestrator) runTraining(project, runID string) {
	defer func() {
		o.mu.Lock()
		delete(o.training, project)
		o.mu.Unlock()
	}()

	log.Printf("[JOB] Starting training for project %s", project)

	progress := make(chan int, 16)
	var relay sync.WaitGroup
	relay.Add(1)
	go func() {
		defer relay.Done()
		for percent := range progress {
			o.events.Broadcast("progress", map[string]interface{}{
				"project": project,
				"percent": percent,
			})
		}
	}()

	report, err := o.trainer.Train(context.Background(), o.store.TrainingDir(project), o.store.ModelDir(project), progress)
	close(progress)
	relay.Wait()

	if err != nil {
		log.Printf("[JOB] Training failed for project %s: %v", project, err)
		o.finishRun(runID, models.RunStatusFailed, err.Error())
		o.events.Broadcast("learnError", map[string]interface{}{
			"project": project,
			"error":   "job",
			"details": err.Error(),
		})
		return
	}

	message := fmt.Sprintf("Trained %d samples across %d classes", report.Samples, len(report.Classes))
	log.Printf("[JOB] Training completed for project %s: %s", project, message)
	o.finishRun(runID, models.RunStatusCompleted, message)
	o.events.Broadcast("learnCompleted", map[string]interface{}{
		"project": project,
		"message": message,
	})
}

// StartVerification begins classifying one verification folder.
func (o *Orchestrator) StartVerification(project, folder string) error {
	key := project + "/" + folder

	o.mu.Lock()
	if o.verifying[key] {
		o.mu.Unlock()
		return fmt.Errorf("%w: verification for folder %s", ErrJobRunning, key)
	}
	o.verifying[key] = true
	o.mu.Unlock()

	run := models.NewRun(project, models.RunKindVerification, folder)
	if err := o.runs.InsertRun(run); err != nil {
		log.Printf("[JOB] Failed to record verification run for %s: %v", key, err)
	}

	go o.runVerification(project, folder, key, run.ID)
	return nil
}

func (o *Orchestrator) runVerification(project, folder, key, runID string) {
	defer func() {
		o.mu.Lock()
		delete(o.verifying, key)
		o.mu.Unlock()
	}()

	log.Printf("[JOB] Starting verification for %s", key)

	result, err := o.verifier.Verify(context.Background(), o.store.ModelDir(project), o.store.VerifyFolderDir(project, folder))
	if err != nil {
		log.Printf("[JOB] Verification failed for %s: %v", key, err)
		o.finishRun(runID, models.RunStatusFailed, err.Error())
		o.events.Broadcast("verificationError", map[string]interface{}{
			"project":    project,
			"folderName": folder,
			"error":      "job",
			"details":    err.Error(),
		})
		return
	}

	message := fmt.Sprintf("Verified %d images against %d classes", len(result.Images), len(result.Classes))
	log.Printf("[JOB] Verification completed for %s: %s", key, message)
	o.finishRun(runID, models.RunStatusCompleted, message)
	o.events.Broadcast("verificationResult", map[string]interface{}{
		"project":    project,
		"folderName": folder,
		"result":     result,
	})
}

func (o *Orchestrator) finishRun(runID, status, message string) {
	if err := o.runs.FinishRun(runID, status, message); err != nil {
		log.Printf("[JOB] Failed to finish run %s: %v", runID, err)
	}
}
