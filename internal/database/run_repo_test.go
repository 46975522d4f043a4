package database

import (
	"testing"
	"time"

	"github.com/kdimtricp/trainbox/internal/models"
)

func TestRunRepository_InsertRun(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewRunRepository(db)

	run := models.NewRun("pets", models.RunKindTraining, "")

	if err := repo.InsertRun(run); err != nil {
		t.Fatalf("Failed to insert run: %v", err)
	}

	retrieved, err := repo.GetRunByID(run.ID)
	if err != nil {
		t.Fatalf("Failed to retrieve run: %v", err)
	}

	if retrieved.Project != "pets" {
		t.Errorf("Expected project pets, got %s", retrieved.Project)
	}
	if retrieved.Status != models.RunStatusRunning {
		t.Errorf("Expected status running, got %s", retrieved.Status)
	}
	if retrieved.FinishedAt != nil {
		t.Errorf("Expected no finish time on a running run")
	}
}

func TestRunRepository_FinishRun(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewRunRepository(db)

	run := models.NewRun("pets", models.RunKindVerification, "batch1")
	if err := repo.InsertRun(run); err != nil {
		t.Fatalf("Failed to insert run: %v", err)
	}

	if err := repo.FinishRun(run.ID, models.RunStatusCompleted, "verified 4 images"); err != nil {
		t.Fatalf("Failed to finish run: %v", err)
	}

	retrieved, err := repo.GetRunByID(run.ID)
	if err != nil {
		t.Fatalf("Failed to retrieve run: %v", err)
	}
	if retrieved.Status != models.RunStatusCompleted {
		t.Errorf("Expected status completed, got %s", retrieved.Status)
	}
	if retrieved.Message != "verified 4 images" {
		t.Errorf("Unexpected message: %s", retrieved.Message)
	}
	if retrieved.FinishedAt == nil {
		t.Errorf("Expected a finish time")
	}
}

func TestRunRepository_FinishRun_NotFound(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewRunRepository(db)

	err := repo.FinishRun("00000000-0000-0000-0000-000000000000", models.RunStatusFailed, "boom")
	if err == nil {
		t.Error("Expected error for non-existent run, got nil")
	}
}

func TestRunRepository_ListRunsByProject(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewRunRepository(db)

	run1 := models.NewRun("pets", models.RunKindTraining, "")
	run2 := models.NewRun("pets", models.RunKindTraining, "")
	run2.StartedAt = run1.StartedAt.Add(10 * time.Millisecond)
	other := models.NewRun("plants", models.RunKindTraining, "")

	for _, run := range []*models.Run{run1, run2, other} {
		if err := repo.InsertRun(run); err != nil {
			t.Fatalf("Failed to insert run: %v", err)
		}
	}

	runs, err := repo.ListRunsByProject("pets")
	if err != nil {
		t.Fatalf("Failed to list runs: %v", err)
	}

	if len(runs) != 2 {
		t.Fatalf("Expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != run2.ID {
		t.Errorf("Expected most recent run first, got %s", runs[0].ID)
	}
}
