package planner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"briefbot/internal/db"
)

// fakeProvider returns a canned answer or error.
type fakeProvider struct {
	answer string
	err    error
	prompt string
}

func (f *fakeProvider) Generate(_ context.Context, _, user string) (string, error) {
	f.prompt = user
	return f.answer, f.err
}

func (f *fakeProvider) GenerateJSON(_ context.Context, _, user string) (string, error) {
	f.prompt = user
	return f.answer, f.err
}

const morningBriefPlan = `{
	"name": "Morning calendar email",
	"description": "Email today's calendar every weekday morning",
	"cron_expr": "0 8 * * 1-5",
	"timezone": "America/Los_Angeles",
	"steps": [
		{
			"kind": "data_collection",
			"service": "calendar",
			"operation": "list_events",
			"params": {"date": "today"},
			"output_binding": "calendar_events"
		},
		{
			"kind": "delivery",
			"service": "gmail",
			"operation": "send",
			"params": {
				"to": "me@example.com",
				"subject": "Your calendar for {{current_date}}",
				"body": "Here is your day:\n{{calendar_events}}"
			}
		}
	],
	"personalization": {"tone": "friendly", "keywords": ["calendar"]}
}`

func TestTranslate_MorningBrief(t *testing.T) {
	provider := &fakeProvider{answer: morningBriefPlan}
	translator := New(provider, nil)

	task, err := translator.Translate(context.Background(), "every weekday at 8am Pacific, email me today's calendar", "user-1")
	require.NoError(t, err)

	assert.Equal(t, "0 8 * * 1-5", task.CronExpr)
	assert.Equal(t, "America/Los_Angeles", task.Timezone)
	assert.Equal(t, db.TaskStatusPendingApproval, task.Status)
	assert.Equal(t, "user-1", task.Owner)

	require.Len(t, task.Steps, 2)
	assert.Equal(t, "calendar", task.Steps[0].Service)
	assert.Equal(t, "list_events", task.Steps[0].Operation)
	assert.Equal(t, "calendar_events", task.Steps[0].OutputBinding)
	assert.Equal(t, db.StepKindDelivery, task.Steps[1].Kind)
	assert.Contains(t, task.Steps[1].Params["body"], "{{calendar_events}}")
}

func TestTranslate_StripsCodeFences(t *testing.T) {
	provider := &fakeProvider{answer: "```json\n" + morningBriefPlan + "\n```"}
	translator := New(provider, nil)

	_, err := translator.Translate(context.Background(), "calendar email", "u")
	assert.NoError(t, err)
}

func TestTranslate_ProviderOutage(t *testing.T) {
	provider := &fakeProvider{err: errors.New("connection refused")}
	translator := New(provider, nil)

	_, err := translator.Translate(context.Background(), "anything", "u")
	assert.ErrorIs(t, err, ErrTranslationFailed)
}

func TestTranslate_MalformedAnswer(t *testing.T) {
	provider := &fakeProvider{answer: "Sorry, I cannot produce a plan for that."}
	translator := New(provider, nil)

	_, err := translator.Translate(context.Background(), "anything", "u")
	assert.ErrorIs(t, err, ErrTranslationFailed)
}

func TestTranslate_UnknownOperationRejected(t *testing.T) {
	provider := &fakeProvider{answer: `{
		"name": "bad plan",
		"cron_expr": "0 8 * * *",
		"timezone": "UTC",
		"steps": [
			{"kind": "data_collection", "service": "calendar", "operation": "read_all", "params": {}},
			{"kind": "delivery", "service": "gmail", "operation": "send", "params": {"to": "a", "subject": "b", "body": "c"}}
		]
	}`}
	translator := New(provider, nil)

	_, err := translator.Translate(context.Background(), "anything", "u")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown operation "read_all"`)
	assert.NotErrorIs(t, err, ErrTranslationFailed)
}

func TestValidateTask(t *testing.T) {
	valid := func() *db.Task {
		return &db.Task{
			Name:     "t",
			CronExpr: "30 7 * * *",
			Timezone: "Europe/Berlin",
			Steps: []db.Step{
				{Kind: db.StepKindDataCollection, Service: "search", Operation: "hacker_news_top", OutputBinding: "stories"},
				{Kind: db.StepKindDelivery, Service: "gmail", Operation: "send",
					Params: map[string]any{"to": "a", "subject": "b", "body": "{{stories}}"}},
			},
		}
	}

	t.Run("valid task passes", func(t *testing.T) {
		assert.NoError(t, ValidateTask(valid()))
	})

	t.Run("no delivery step", func(t *testing.T) {
		task := valid()
		task.Steps = task.Steps[:1]
		err := ValidateTask(task)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "delivery step")
	})

	t.Run("invalid timezone", func(t *testing.T) {
		task := valid()
		task.Timezone = "Mars/Olympus"
		assert.Error(t, ValidateTask(task))
	})

	t.Run("unknown step kind", func(t *testing.T) {
		task := valid()
		task.Steps[0].Kind = "side_effect"
		assert.Error(t, ValidateTask(task))
	})

	t.Run("reserved output binding", func(t *testing.T) {
		task := valid()
		task.Steps[0].OutputBinding = "current_date"
		err := ValidateTask(task)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "built-in context key")
	})

	t.Run("duplicate output binding", func(t *testing.T) {
		task := valid()
		task.Steps[1].OutputBinding = "stories"
		err := ValidateTask(task)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate")
	})
}

func TestValidateCron(t *testing.T) {
	tests := []struct {
		expr string
		ok   bool
	}{
		{"0 8 * * 1-5", true},
		{"*/15 9-17 * * *", true},
		{"30 7 1 * *", true},
		{"0 8 * *", false},           // 4 fields
		{"0 8 * * 1-5 2025", false},  // 6 fields
		{"0 8 * * mon-fri", false},   // letters outside the allowed charset
		{"61 8 * * *", false},        // minute out of range
		{"0 8 * * @daily", false},    // descriptor not allowed
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			err := ValidateCron(tt.expr)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
