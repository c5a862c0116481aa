package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection
type DB struct {
	conn *sql.DB
}

// New creates a new database connection
func New(dbPath string) (*DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		owner TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		prompt TEXT NOT NULL,
		cron_expr TEXT NOT NULL,
		timezone TEXT NOT NULL DEFAULT 'UTC',
		steps TEXT NOT NULL DEFAULT '[]',
		personalization TEXT NOT NULL DEFAULT '{}',
		status TEXT NOT NULL DEFAULT 'pending_approval',
		enabled INTEGER NOT NULL DEFAULT 1,
		discord_webhook TEXT DEFAULT '',
		slack_webhook TEXT DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		last_run_at DATETIME,
		next_run_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS task_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id INTEGER NOT NULL,
		started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		ended_at DATETIME,
		status TEXT NOT NULL DEFAULT 'running',
		duration_ms INTEGER NOT NULL DEFAULT 0,
		step_results TEXT NOT NULL DEFAULT '[]',
		error TEXT DEFAULT '',
		FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_task_runs_task_id ON task_runs(task_id);
	CREATE INDEX IF NOT EXISTS idx_task_runs_started_at ON task_runs(started_at);
	`

	_, err := db.conn.Exec(schema)
	return err
}

const taskColumns = `id, owner, name, description, prompt, cron_expr, timezone, steps, personalization, status, enabled, discord_webhook, slack_webhook, created_at, updated_at, last_run_at, next_run_at`

func scanTask(row interface{ Scan(...any) error }) (*Task, error) {
	task := &Task{}
	var stepsJSON, persJSON string
	err := row.Scan(&task.ID, &task.Owner, &task.Name, &task.Description, &task.Prompt,
		&task.CronExpr, &task.Timezone, &stepsJSON, &persJSON, &task.Status, &task.Enabled,
		&task.DiscordWebhook, &task.SlackWebhook, &task.CreatedAt, &task.UpdatedAt,
		&task.LastRunAt, &task.NextRunAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(stepsJSON), &task.Steps); err != nil {
		return nil, fmt.Errorf("corrupt steps for task %d: %w", task.ID, err)
	}
	if err := json.Unmarshal([]byte(persJSON), &task.Personalization); err != nil {
		return nil, fmt.Errorf("corrupt personalization for task %d: %w", task.ID, err)
	}
	return task, nil
}

func encodeTask(task *Task) (stepsJSON, persJSON string, err error) {
	steps, err := json.Marshal(task.Steps)
	if err != nil {
		return "", "", err
	}
	pers, err := json.Marshal(task.Personalization)
	if err != nil {
		return "", "", err
	}
	return string(steps), string(pers), nil
}

// CreateTask creates a new task
func (db *DB) CreateTask(task *Task) error {
	stepsJSON, persJSON, err := encodeTask(task)
	if err != nil {
		return err
	}
	now := time.Now()
	result, err := db.conn.Exec(`
		INSERT INTO tasks (owner, name, description, prompt, cron_expr, timezone, steps, personalization, status, enabled, discord_webhook, slack_webhook, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, task.Owner, task.Name, task.Description, task.Prompt, task.CronExpr, task.Timezone,
		stepsJSON, persJSON, task.Status, task.Enabled, task.DiscordWebhook, task.SlackWebhook, now, now)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	task.ID = id
	task.CreatedAt = now
	task.UpdatedAt = now
	return nil
}

// GetTask retrieves a task by ID
func (db *DB) GetTask(id int64) (*Task, error) {
	row := db.conn.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	return scanTask(row)
}

// ListTasks retrieves all tasks
func (db *DB) ListTasks() ([]*Task, error) {
	return db.queryTasks(`SELECT ` + taskColumns + ` FROM tasks ORDER BY created_at DESC`)
}

// ListEnabledApproved retrieves tasks eligible for scheduling
func (db *DB) ListEnabledApproved() ([]*Task, error) {
	return db.queryTasks(`SELECT `+taskColumns+` FROM tasks WHERE enabled = 1 AND status = ? ORDER BY created_at DESC`, TaskStatusApproved)
}

func (db *DB) queryTasks(query string, args ...any) ([]*Task, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// UpdateTask updates a task
func (db *DB) UpdateTask(task *Task) error {
	stepsJSON, persJSON, err := encodeTask(task)
	if err != nil {
		return err
	}
	task.UpdatedAt = time.Now()
	_, err = db.conn.Exec(`
		UPDATE tasks SET owner = ?, name = ?, description = ?, prompt = ?, cron_expr = ?, timezone = ?, steps = ?, personalization = ?, status = ?, enabled = ?, discord_webhook = ?, slack_webhook = ?, updated_at = ?, last_run_at = ?, next_run_at = ?
		WHERE id = ?
	`, task.Owner, task.Name, task.Description, task.Prompt, task.CronExpr, task.Timezone,
		stepsJSON, persJSON, task.Status, task.Enabled, task.DiscordWebhook, task.SlackWebhook,
		task.UpdatedAt, task.LastRunAt, task.NextRunAt, task.ID)
	return err
}

// ApproveTask transitions a task from pending_approval to approved.
// Any other predecessor status is rejected.
func (db *DB) ApproveTask(id int64) error {
	result, err := db.conn.Exec(`
		UPDATE tasks SET status = ?, updated_at = ? WHERE id = ? AND status = ?
	`, TaskStatusApproved, time.Now(), id, TaskStatusPendingApproval)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		task, err := db.GetTask(id)
		if err != nil {
			return fmt.Errorf("task not found: %w", err)
		}
		return fmt.Errorf("cannot approve task in status %q", task.Status)
	}
	return nil
}

// DeleteTask deletes a task and, via cascade, its run history
func (db *DB) DeleteTask(id int64) error {
	_, err := db.conn.Exec("DELETE FROM tasks WHERE id = ?", id)
	return err
}

// ToggleTask enables or disables a task
func (db *DB) ToggleTask(id int64) error {
	_, err := db.conn.Exec("UPDATE tasks SET enabled = NOT enabled, updated_at = ? WHERE id = ?", time.Now(), id)
	return err
}

// RecordRun updates a task's run metadata after an execution
func (db *DB) RecordRun(id int64, lastRun, nextRun *time.Time) error {
	_, err := db.conn.Exec(`
		UPDATE tasks SET last_run_at = ?, next_run_at = ?, updated_at = ? WHERE id = ?
	`, lastRun, nextRun, time.Now(), id)
	return err
}

// CreateTaskRun creates a new task run record
func (db *DB) CreateTaskRun(run *TaskRun) error {
	resultsJSON, err := json.Marshal(run.StepResults)
	if err != nil {
		return err
	}
	result, err := db.conn.Exec(`
		INSERT INTO task_runs (task_id, started_at, status, duration_ms, step_results, error)
		VALUES (?, ?, ?, ?, ?, ?)
	`, run.TaskID, run.StartedAt, run.Status, run.DurationMs, string(resultsJSON), run.Error)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	run.ID = id
	return nil
}

// UpdateTaskRun updates a task run
func (db *DB) UpdateTaskRun(run *TaskRun) error {
	resultsJSON, err := json.Marshal(run.StepResults)
	if err != nil {
		return err
	}
	_, err = db.conn.Exec(`
		UPDATE task_runs SET ended_at = ?, status = ?, duration_ms = ?, step_results = ?, error = ?
		WHERE id = ?
	`, run.EndedAt, run.Status, run.DurationMs, string(resultsJSON), run.Error, run.ID)
	return err
}

const runColumns = `id, task_id, started_at, ended_at, status, duration_ms, step_results, error`

func scanRun(row interface{ Scan(...any) error }) (*TaskRun, error) {
	run := &TaskRun{}
	var resultsJSON string
	err := row.Scan(&run.ID, &run.TaskID, &run.StartedAt, &run.EndedAt, &run.Status,
		&run.DurationMs, &resultsJSON, &run.Error)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(resultsJSON), &run.StepResults); err != nil {
		return nil, fmt.Errorf("corrupt step results for run %d: %w", run.ID, err)
	}
	return run, nil
}

// GetTaskRuns retrieves runs for a task
func (db *DB) GetTaskRuns(taskID int64, limit int) ([]*TaskRun, error) {
	rows, err := db.conn.Query(`
		SELECT `+runColumns+` FROM task_runs WHERE task_id = ? ORDER BY started_at DESC LIMIT ?
	`, taskID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*TaskRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetLatestTaskRun retrieves the most recent run for a task
func (db *DB) GetLatestTaskRun(taskID int64) (*TaskRun, error) {
	row := db.conn.QueryRow(`
		SELECT `+runColumns+` FROM task_runs WHERE task_id = ? ORDER BY started_at DESC LIMIT 1
	`, taskID)
	return scanRun(row)
}

// GetTaskRun retrieves a specific task run by ID
func (db *DB) GetTaskRun(runID int64) (*TaskRun, error) {
	row := db.conn.QueryRow(`SELECT `+runColumns+` FROM task_runs WHERE id = ?`, runID)
	return scanRun(row)
}

// GetLastRunStatuses retrieves the last run status for all tasks
func (db *DB) GetLastRunStatuses() (map[int64]RunStatus, error) {
	rows, err := db.conn.Query(`
		SELECT task_id, status FROM task_runs
		WHERE id IN (
			SELECT MAX(id) FROM task_runs GROUP BY task_id
		)
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	statuses := make(map[int64]RunStatus)
	for rows.Next() {
		var taskID int64
		var status string
		if err := rows.Scan(&taskID, &status); err != nil {
			return nil, err
		}
		statuses[taskID] = RunStatus(status)
	}
	return statuses, rows.Err()
}

// MarkStaleRunsAsFailed marks all "running" task runs as failed.
// Called on startup to clean up runs interrupted by a process restart.
func (db *DB) MarkStaleRunsAsFailed() (int64, error) {
	result, err := db.conn.Exec(`
		UPDATE task_runs
		SET status = ?, error = 'Server restarted during execution', ended_at = CURRENT_TIMESTAMP
		WHERE status = ?
	`, RunStatusFailed, RunStatusRunning)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
