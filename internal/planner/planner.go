// Package planner converts a user's natural-language request into a
// structured, validated task plan.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"

	"briefbot/internal/db"
	"briefbot/internal/llm"
	"briefbot/internal/registry"
	"briefbot/internal/template"
)

// ErrTranslationFailed covers both provider outage and schema-mismatch from
// the model; callers see a single error class and decide whether to resubmit.
var ErrTranslationFailed = errors.New("translation failed")

// 5-field standard parser, no seconds field.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Translator sends natural-language requests to the language-model provider
// and validates the structured plans it returns.
type Translator struct {
	provider llm.Provider
	log      *log.Logger
}

// New creates a translator backed by the given provider.
func New(provider llm.Provider, logger *log.Logger) *Translator {
	if logger == nil {
		logger = log.Default()
	}
	return &Translator{provider: provider, log: logger.WithPrefix("planner")}
}

const systemPrompt = `You convert a user's request for a recurring, personalized data-gathering-and-delivery job into a JSON plan.

Respond with a single JSON object:
{
  "name": short task name,
  "description": one sentence,
  "cron_expr": 5-field cron expression (minute hour day-of-month month day-of-week),
  "timezone": IANA timezone derived from the request (default "UTC"),
  "steps": ordered array of {
    "kind": "data_collection" | "processing" | "delivery",
    "service": service name,
    "operation": operation name,
    "params": object; string values may reference earlier outputs as {{binding}},
    "output_binding": optional name under which the step's result is stored
  },
  "personalization": {"tone": string, "keywords": [string], "filters": {string: string}}
}

Rules:
- Use only the operations listed below. Never invent services or operations.
- Chain steps by giving data steps an output_binding and referencing it as {{binding}} in later steps.
- The plan must end with at least one delivery step (for example gmail.send).
- Built-in context available to every run: {{current_date}}, {{current_date_short}}, {{current_time}}, {{weekday}}, {{month}}, {{year}}, {{yesterday_date}}, {{yesterday_date_short}}, {{yesterday_weekday}}. Do not use these names as output bindings.

Available operations:
%s`

// plan mirrors the model's JSON answer.
type plan struct {
	Name            string             `json:"name"`
	Description     string             `json:"description"`
	CronExpr        string             `json:"cron_expr"`
	Timezone        string             `json:"timezone"`
	Steps           []db.Step          `json:"steps"`
	Personalization db.Personalization `json:"personalization"`
}

// Translate converts a natural-language prompt into a validated task in
// pending_approval status. Nothing is persisted here; a plan that fails
// validation is rejected with the first actionable error.
func (t *Translator) Translate(ctx context.Context, prompt, owner string) (*db.Task, error) {
	system := fmt.Sprintf(systemPrompt, registry.Vocabulary())

	answer, err := t.provider.GenerateJSON(ctx, system, prompt)
	if err != nil {
		t.log.Error("provider call failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrTranslationFailed, err)
	}

	var p plan
	if err := json.Unmarshal([]byte(stripFences(answer)), &p); err != nil {
		t.log.Error("malformed plan from provider", "error", err)
		return nil, fmt.Errorf("%w: malformed plan: %v", ErrTranslationFailed, err)
	}

	task := &db.Task{
		Owner:           owner,
		Name:            p.Name,
		Description:     p.Description,
		Prompt:          prompt,
		CronExpr:        p.CronExpr,
		Timezone:        p.Timezone,
		Steps:           p.Steps,
		Personalization: p.Personalization,
		Status:          db.TaskStatusPendingApproval,
		Enabled:         true,
	}
	if task.Timezone == "" {
		task.Timezone = "UTC"
	}

	if err := ValidateTask(task); err != nil {
		return nil, err
	}
	return task, nil
}

// ValidateTask performs the deterministic checks every plan must pass before
// persistence, whether it came from the translator or directly from the API.
func ValidateTask(task *db.Task) error {
	if task.Name == "" {
		return errors.New("plan has no name")
	}
	if err := ValidateCron(task.CronExpr); err != nil {
		return err
	}
	if _, err := time.LoadLocation(task.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", task.Timezone, err)
	}
	if len(task.Steps) == 0 {
		return errors.New("plan has no steps")
	}

	hasDelivery := false
	bindings := make(map[string]bool)
	for i, step := range task.Steps {
		if err := registry.Validate(step); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
		switch step.Kind {
		case db.StepKindDataCollection, db.StepKindProcessing, db.StepKindDelivery:
		default:
			return fmt.Errorf("step %d: unknown kind %q", i+1, step.Kind)
		}
		if step.Kind == db.StepKindDelivery {
			hasDelivery = true
		}
		if step.OutputBinding != "" {
			if template.IsReserved(step.OutputBinding) {
				return fmt.Errorf("step %d: output binding %q collides with a built-in context key", i+1, step.OutputBinding)
			}
			if bindings[step.OutputBinding] {
				return fmt.Errorf("step %d: duplicate output binding %q", i+1, step.OutputBinding)
			}
			bindings[step.OutputBinding] = true
		}
	}
	if !hasDelivery {
		return errors.New("plan must contain at least one delivery step")
	}
	return nil
}

// ValidateCron checks the 5-field shape and field charset, then defers to the
// cron parser for semantics. Re-checked defensively at schedule time too.
func ValidateCron(expr string) error {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return fmt.Errorf("cron expression %q must have exactly 5 fields", expr)
	}
	for _, field := range fields {
		for _, r := range field {
			if (r < '0' || r > '9') && r != '*' && r != '-' && r != '/' && r != ',' {
				return fmt.Errorf("cron expression %q contains invalid character %q", expr, r)
			}
		}
	}
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// stripFences removes a markdown code fence if the model wrapped its JSON.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
