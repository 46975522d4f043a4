package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/kdimtricp/trainbox/internal/models"
)

type RunRepository struct {
	db *DB
}

func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db}
}

func (r *RunRepository) InsertRun(run *models.Run) error {
	_, err := r.db.conn.Exec(
		`INSERT INTO runs (id, project, kind, folder, status, message, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Project, run.Kind, run.Folder, run.Status, run.Message, run.StartedAt, run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// FinishRun records the terminal status of a run.
func (r *RunRepository) FinishRun(id, status, message string) error {
	now := time.Now()
	result, err := r.db.conn.Exec(
		`UPDATE runs SET status = ?, message = ?, finished_at = ? WHERE id = ?`,
		status, message, now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run not found")
	}
	return nil
}

func (r *RunRepository) GetRunByID(id string) (*models.Run, error) {
	row := r.db.conn.QueryRow(
		`SELECT id, project, kind, folder, status, message, started_at, finished_at
		 FROM runs WHERE id = ?`, id,
	)
	run, err := scanRun(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("run not found")
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

func (r *RunRepository) ListRunsByProject(project string) ([]models.Run, error) {
	rows, err := r.db.conn.Query(
		`SELECT id, project, kind, folder, status, message, started_at, finished_at
		 FROM runs WHERE project = ? ORDER BY started_at DESC`, project,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s scanner) (*models.Run, error) {
	var run models.Run
	var finished sql.NullTime
	if err := s.Scan(
		&run.ID, &run.Project, &run.Kind, &run.Folder,
		&run.Status, &run.Message, &run.StartedAt, &finished,
	); err != nil {
		return nil, err
	}
	if finished.Valid {
		run.FinishedAt = &finished.Time
	}
	return &run, nil
}
