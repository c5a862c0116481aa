package api

import (
	"time"

	"briefbot/internal/db"
)

// TranslateRequest asks the planner to turn a natural-language request into a
// structured task.
type TranslateRequest struct {
	Prompt string `json:"prompt"`
	Owner  string `json:"owner,omitempty"`
}

// TaskRequest represents a task creation/update request with a
// pre-structured plan. It passes through the same validation as translation.
type TaskRequest struct {
	Owner           string             `json:"owner,omitempty"`
	Name            string             `json:"name"`
	Description     string             `json:"description,omitempty"`
	Prompt          string             `json:"prompt,omitempty"`
	CronExpr        string             `json:"cron_expr"`
	Timezone        string             `json:"timezone"`
	Steps           []db.Step          `json:"steps"`
	Personalization db.Personalization `json:"personalization"`
	Enabled         bool               `json:"enabled"`
	DiscordWebhook  string             `json:"discord_webhook,omitempty"`
	SlackWebhook    string             `json:"slack_webhook,omitempty"`
}

// TaskResponse represents a task in API responses
type TaskResponse struct {
	ID              int64              `json:"id"`
	Owner           string             `json:"owner,omitempty"`
	Name            string             `json:"name"`
	Description     string             `json:"description,omitempty"`
	Prompt          string             `json:"prompt,omitempty"`
	CronExpr        string             `json:"cron_expr"`
	Timezone        string             `json:"timezone"`
	Steps           []db.Step          `json:"steps"`
	Personalization db.Personalization `json:"personalization"`
	Status          string             `json:"status"`
	Enabled         bool               `json:"enabled"`
	DiscordWebhook  string             `json:"discord_webhook,omitempty"`
	SlackWebhook    string             `json:"slack_webhook,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
	LastRunAt       *time.Time         `json:"last_run_at,omitempty"`
	NextRunAt       *time.Time         `json:"next_run_at,omitempty"`
	LastRunStatus   string             `json:"last_run_status,omitempty"`
}

// TaskListResponse represents a list of tasks
type TaskListResponse struct {
	Tasks []TaskResponse `json:"tasks"`
	Total int            `json:"total"`
}

// TaskRunResponse represents a task run in API responses
type TaskRunResponse struct {
	ID          int64           `json:"id"`
	TaskID      int64           `json:"task_id"`
	StartedAt   time.Time       `json:"started_at"`
	EndedAt     *time.Time      `json:"ended_at,omitempty"`
	Status      string          `json:"status"`
	DurationMs  int64           `json:"duration_ms,omitempty"`
	StepResults []db.StepResult `json:"step_results,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// TaskRunsResponse represents a list of task runs
type TaskRunsResponse struct {
	Runs  []TaskRunResponse `json:"runs"`
	Total int               `json:"total"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// SuccessResponse represents a generic success response
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status string `json:"status"`
}
