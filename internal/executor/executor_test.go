package executor

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"briefbot/internal/db"
	"briefbot/internal/services"
)

// fakeService records calls and answers from a per-operation script.
type fakeService struct {
	calls   []fakeCall
	results map[string]any
	errs    map[string]error
}

type fakeCall struct {
	operation string
	params    map[string]any
}

func (f *fakeService) Call(_ context.Context, operation string, params map[string]any) (any, error) {
	f.calls = append(f.calls, fakeCall{operation: operation, params: params})
	if err, ok := f.errs[operation]; ok {
		return nil, err
	}
	return f.results[operation], nil
}

func testDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func testTask(t *testing.T, database *db.DB, steps []db.Step) *db.Task {
	t.Helper()
	task := &db.Task{
		Name:     "test task",
		Prompt:   "test",
		CronExpr: "0 8 * * *",
		Timezone: "UTC",
		Steps:    steps,
		Status:   db.TaskStatusApproved,
		Enabled:  true,
	}
	require.NoError(t, database.CreateTask(task))
	return task
}

func TestExecute_ContextFlowsBetweenSteps(t *testing.T) {
	database := testDB(t)

	collector := &fakeService{results: map[string]any{
		"hacker_news_top": map[string]any{"results": []any{map[string]any{"title": "story"}}},
	}}
	mailer := &fakeService{results: map[string]any{"send": map[string]any{"sent": true}}}

	task := testTask(t, database, []db.Step{
		{Kind: db.StepKindDataCollection, Service: "search", Operation: "hacker_news_top",
			Params: map[string]any{"limit": 5}, OutputBinding: "stories"},
		{Kind: db.StepKindDelivery, Service: "gmail", Operation: "send",
			Params: map[string]any{"to": "me@example.com", "subject": "News for {{current_date_short}}", "body": "{{stories}}"}},
	})

	exec := New(database, services.Map{"search": collector, "gmail": mailer}, nil)
	run := exec.Execute(context.Background(), task)

	assert.Equal(t, db.RunStatusCompleted, run.Status)
	require.Len(t, run.StepResults, 2)
	assert.Equal(t, db.StepStatusCompleted, run.StepResults[0].Status)
	assert.Equal(t, db.StepStatusCompleted, run.StepResults[1].Status)

	// The delivery step saw the resolved context, not the placeholders
	require.Len(t, mailer.calls, 1)
	body := mailer.calls[0].params["body"].(string)
	assert.Contains(t, body, "story")
	subject := mailer.calls[0].params["subject"].(string)
	assert.NotContains(t, subject, "{{")

	// The record was finalized and persisted
	stored, err := database.GetTaskRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, db.RunStatusCompleted, stored.Status)
	require.NotNil(t, stored.EndedAt)
}

func TestExecute_DeliveryFailureAbortsRun(t *testing.T) {
	database := testDB(t)

	mailer := &fakeService{errs: map[string]error{"send": errors.New("smtp refused")}}
	after := &fakeService{results: map[string]any{"summarize": "never reached"}}

	task := testTask(t, database, []db.Step{
		{Kind: db.StepKindDelivery, Service: "gmail", Operation: "send",
			Params: map[string]any{"to": "a", "subject": "b", "body": "c"}},
		{Kind: db.StepKindProcessing, Service: "llm", Operation: "summarize",
			Params: map[string]any{"content": "x"}},
	})

	exec := New(database, services.Map{"gmail": mailer, "llm": after}, nil)
	run := exec.Execute(context.Background(), task)

	assert.Equal(t, db.RunStatusFailed, run.Status)
	assert.Contains(t, run.Error, "smtp refused")

	// No step after the failing delivery step was attempted
	require.Len(t, run.StepResults, 1)
	assert.Empty(t, after.calls)
}

func TestExecute_CollectionFailureDegradesGracefully(t *testing.T) {
	database := testDB(t)

	collector := &fakeService{errs: map[string]error{"trending": errors.New("search provider down")}}
	mailer := &fakeService{results: map[string]any{"send": map[string]any{"sent": true}}}

	task := testTask(t, database, []db.Step{
		{Kind: db.StepKindDataCollection, Service: "search", Operation: "trending",
			Params: map[string]any{}},
		{Kind: db.StepKindDelivery, Service: "gmail", Operation: "send",
			Params: map[string]any{"to": "a", "subject": "b", "body": "trending topics unavailable"}},
	})

	exec := New(database, services.Map{"search": collector, "gmail": mailer}, nil)
	run := exec.Execute(context.Background(), task)

	// Delivery still ran; the run completed with the failed step on record
	assert.Equal(t, db.RunStatusCompleted, run.Status)
	require.Len(t, run.StepResults, 2)
	assert.Equal(t, db.StepStatusFailed, run.StepResults[0].Status)
	assert.Contains(t, run.StepResults[0].Error, "search provider down")
	assert.Equal(t, db.StepStatusCompleted, run.StepResults[1].Status)
	assert.Len(t, mailer.calls, 1)
}

func TestExecute_DeliveryStarvedByFailedUpstream(t *testing.T) {
	database := testDB(t)

	collector := &fakeService{errs: map[string]error{"hacker_news_top": errors.New("api down")}}
	mailer := &fakeService{results: map[string]any{"send": map[string]any{"sent": true}}}

	task := testTask(t, database, []db.Step{
		{Kind: db.StepKindDataCollection, Service: "search", Operation: "hacker_news_top",
			Params: map[string]any{}, OutputBinding: "stories"},
		{Kind: db.StepKindDelivery, Service: "gmail", Operation: "send",
			Params: map[string]any{"to": "a", "subject": "b", "body": "{{stories}}"}},
	})

	exec := New(database, services.Map{"search": collector, "gmail": mailer}, nil)
	run := exec.Execute(context.Background(), task)

	// The delivery step references a binding whose producer failed, so it is
	// failed instead of sending empty content
	assert.Equal(t, db.RunStatusFailed, run.Status)
	require.Len(t, run.StepResults, 2)
	assert.Contains(t, run.StepResults[1].Error, `upstream step producing "stories" failed`)
	assert.Empty(t, mailer.calls)
}

func TestExecute_UnknownServiceIsStepFailure(t *testing.T) {
	database := testDB(t)

	mailer := &fakeService{results: map[string]any{"send": map[string]any{"sent": true}}}

	task := testTask(t, database, []db.Step{
		{Kind: db.StepKindDataCollection, Service: "weather", Operation: "forecast",
			Params: map[string]any{}},
		{Kind: db.StepKindDelivery, Service: "gmail", Operation: "send",
			Params: map[string]any{"to": "a", "subject": "b", "body": "c"}},
	})

	exec := New(database, services.Map{"gmail": mailer}, nil)
	run := exec.Execute(context.Background(), task)

	assert.Equal(t, db.RunStatusCompleted, run.Status)
	assert.Equal(t, db.StepStatusFailed, run.StepResults[0].Status)
	assert.Contains(t, run.StepResults[0].Error, `unknown service "weather"`)
}

func TestExecute_ResolvesRelativeDates(t *testing.T) {
	database := testDB(t)

	calendar := &fakeService{results: map[string]any{
		"list_events": map[string]any{"events": []any{}},
	}}
	mailer := &fakeService{results: map[string]any{"send": map[string]any{"sent": true}}}

	task := testTask(t, database, []db.Step{
		{Kind: db.StepKindDataCollection, Service: "calendar", Operation: "list_events",
			Params: map[string]any{"date": "today"}, OutputBinding: "calendar_events"},
		{Kind: db.StepKindDelivery, Service: "gmail", Operation: "send",
			Params: map[string]any{"to": "a", "subject": "b", "body": "{{calendar_events}}"}},
	})

	exec := New(database, services.Map{"calendar": calendar, "gmail": mailer}, nil)
	run := exec.Execute(context.Background(), task)

	require.Equal(t, db.RunStatusCompleted, run.Status)
	require.Len(t, calendar.calls, 1)
	date := calendar.calls[0].params["date"].(string)
	assert.Equal(t, run.StartedAt.UTC().Format("2006-01-02"), date)
}

func TestExecute_StepTimeout(t *testing.T) {
	database := testDB(t)

	slow := &slowService{delay: 200 * time.Millisecond}
	mailer := &fakeService{results: map[string]any{"send": map[string]any{"sent": true}}}

	task := testTask(t, database, []db.Step{
		{Kind: db.StepKindDataCollection, Service: "search", Operation: "hacker_news_top",
			Params: map[string]any{}},
		{Kind: db.StepKindDelivery, Service: "gmail", Operation: "send",
			Params: map[string]any{"to": "a", "subject": "b", "body": "c"}},
	})

	exec := New(database, services.Map{"search": slow, "gmail": mailer}, nil,
		WithStepTimeout(20*time.Millisecond))
	run := exec.Execute(context.Background(), task)

	// The timed-out collection step takes the normal failure path
	assert.Equal(t, db.RunStatusCompleted, run.Status)
	assert.Equal(t, db.StepStatusFailed, run.StepResults[0].Status)
	assert.Len(t, mailer.calls, 1)
}

type slowService struct {
	delay time.Duration
}

func (s *slowService) Call(ctx context.Context, _ string, _ map[string]any) (any, error) {
	select {
	case <-time.After(s.delay):
		return "late", nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
