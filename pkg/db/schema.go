package db

// Schema defines the SQLite schema for the provisioning run history.
const Schema = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    drive TEXT,
    label TEXT NOT NULL,
    task_name TEXT NOT NULL,
    status TEXT NOT NULL CHECK(status IN ('started', 'canceled', 'succeeded', 'failed')),
    error_message TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

// Status constants
const (
	StatusStarted   = "started"
	StatusCanceled  = "canceled"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Run is one invocation of the installer against a drive.
type Run struct {
	ID           string
	Drive        string
	Label        string
	TaskName     string
	Status       string
	ErrorMessage string
	CreatedAt    string
	UpdatedAt    string
}
