package db

import "time"

// StepKind categorizes a step within a task's plan. Delivery steps are the
// only fatal class: a failed delivery aborts the run.
type StepKind string

const (
	StepKindDataCollection StepKind = "data_collection"
	StepKindProcessing     StepKind = "processing"
	StepKindDelivery       StepKind = "delivery"
)

// Step is one ordered unit of work inside a task's plan. Params values may
// contain {{name}} placeholders resolved against the run context.
type Step struct {
	Kind          StepKind       `json:"kind"`
	Service       string         `json:"service"`
	Operation     string         `json:"operation"`
	Params        map[string]any `json:"params,omitempty"`
	OutputBinding string         `json:"output_binding,omitempty"`
}

// Personalization carries the user's delivery preferences extracted by the
// plan translator.
type Personalization struct {
	Tone     string            `json:"tone,omitempty"`
	Keywords []string          `json:"keywords,omitempty"`
	Filters  map[string]string `json:"filters,omitempty"`
}

// TaskStatus is the task's lifecycle status. A task is only ever scheduled
// when approved and enabled.
type TaskStatus string

const (
	TaskStatusPendingApproval TaskStatus = "pending_approval"
	TaskStatusApproved        TaskStatus = "approved"
)

// Task represents a recurring, user-owned scheduled job
type Task struct {
	ID              int64           `json:"id"`
	Owner           string          `json:"owner"`
	Name            string          `json:"name"`
	Description     string          `json:"description,omitempty"`
	Prompt          string          `json:"prompt"`
	CronExpr        string          `json:"cron_expr"`
	Timezone        string          `json:"timezone"`
	Steps           []Step          `json:"steps"`
	Personalization Personalization `json:"personalization"`
	Status          TaskStatus      `json:"status"`
	Enabled         bool            `json:"enabled"`
	DiscordWebhook  string          `json:"discord_webhook,omitempty"`
	SlackWebhook    string          `json:"slack_webhook,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	LastRunAt       *time.Time      `json:"last_run_at,omitempty"`
	NextRunAt       *time.Time      `json:"next_run_at,omitempty"`
}

// Schedulable reports whether the scheduler may register this task.
func (t *Task) Schedulable() bool {
	return t.Enabled && t.Status == TaskStatusApproved
}

// RunStatus represents the status of a task run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// StepStatus represents the outcome of a single step within a run
type StepStatus string

const (
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
)

// StepResult is the recorded outcome of one attempted step.
type StepResult struct {
	Service   string     `json:"service"`
	Operation string     `json:"operation"`
	Kind      StepKind   `json:"kind"`
	Status    StepStatus `json:"status"`
	Data      any        `json:"data,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// TaskRun represents one historical execution of a task. Immutable once
// finalized.
type TaskRun struct {
	ID          int64        `json:"id"`
	TaskID      int64        `json:"task_id"`
	StartedAt   time.Time    `json:"started_at"`
	EndedAt     *time.Time   `json:"ended_at,omitempty"`
	Status      RunStatus    `json:"status"`
	DurationMs  int64        `json:"duration_ms,omitempty"`
	StepResults []StepResult `json:"step_results,omitempty"`
	Error       string       `json:"error,omitempty"`
}
