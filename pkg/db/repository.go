package db

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"

	"github.com/sequence-downloader/setupusb/pkg/errors"
)

// Repository provides database operations for provisioning runs
type Repository struct {
	db *sql.DB
}

// NewRepository opens (and if needed creates) the history database
func NewRepository(dbPath string) (*Repository, error) {
	slog.Debug("database_init", "db_path", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		slog.Error("database_open_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to open database")
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		slog.Error("database_schema_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to create schema")
	}

	slog.Debug("database_ready", "db_path", dbPath)
	return &Repository{db: db}, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// Create inserts a new run record
func (r *Repository) Create(run *Run) error {
	query := `
		INSERT INTO runs (id, drive, label, task_name, status, error_message)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, run.ID, run.Drive, run.Label, run.TaskName, run.Status, run.ErrorMessage)
	if err != nil {
		slog.Error("database_insert_failed", "run_id", run.ID, "error", err)
		return errors.Wrap(err, "failed to insert run")
	}

	slog.Debug("database_run_created", "run_id", run.ID, "status", run.Status)
	return nil
}

// Get retrieves a run by ID. A missing run yields nil, nil.
func (r *Repository) Get(id string) (*Run, error) {
	query := `
		SELECT id, drive, label, task_name, status, error_message, created_at, updated_at
		FROM runs WHERE id = ?
	`
	run, err := scanRun(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("database_query_failed", "run_id", id, "error", err)
		return nil, errors.Wrap(err, "failed to query run")
	}
	return run, nil
}

// Update rewrites the drive, status and error of an existing run
func (r *Repository) Update(run *Run) error {
	query := `
		UPDATE runs
		SET drive = ?, status = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
	result, err := r.db.Exec(query, run.Drive, run.Status, run.ErrorMessage, run.ID)
	if err != nil {
		slog.Error("database_update_failed", "run_id", run.ID, "error", err)
		return errors.Wrap(err, "failed to update run")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		slog.Error("database_run_not_found_for_update", "run_id", run.ID)
		return fmt.Errorf("run not found: id=%s", run.ID)
	}

	slog.Debug("database_run_updated", "run_id", run.ID, "status", run.Status)
	return nil
}

// UpdateStatus updates only the status and error fields
func (r *Repository) UpdateStatus(id, status, errorMessage string) error {
	query := `UPDATE runs SET status = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	if _, err := r.db.Exec(query, status, errorMessage, id); err != nil {
		slog.Error("database_status_update_failed", "run_id", id, "status", status, "error", err)
		return errors.Wrap(err, "failed to update status")
	}

	slog.Debug("database_status_updated", "run_id", id, "status", status)
	return nil
}

// List retrieves the most recent runs, newest first. limit <= 0 returns all.
func (r *Repository) List(limit int) ([]*Run, error) {
	query := `
		SELECT id, drive, label, task_name, status, error_message, created_at, updated_at
		FROM runs ORDER BY created_at DESC, rowid DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		slog.Error("database_list_query_failed", "error", err)
		return nil, errors.Wrap(err, "failed to list runs")
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			slog.Error("database_scan_row_failed", "error", err)
			return nil, errors.Wrap(err, "failed to scan row")
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "rows error")
	}
	return runs, nil
}

// Delete deletes a run by ID
func (r *Repository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		slog.Error("database_delete_failed", "run_id", id, "error", err)
		return errors.Wrap(err, "failed to delete run")
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return fmt.Errorf("run not found: id=%s", id)
	}

	slog.Info("database_run_deleted", "run_id", id)
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var run Run
	var drive, errorMessage sql.NullString
	if err := s.Scan(&run.ID, &drive, &run.Label, &run.TaskName, &run.Status, &errorMessage,
		&run.CreatedAt, &run.UpdatedAt); err != nil {
		return nil, err
	}
	run.Drive = drive.String
	run.ErrorMessage = errorMessage.String
	return &run, nil
}
