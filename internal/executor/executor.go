// Package executor runs a task's steps strictly in declared order, threading
// data between them through a run-scoped context map.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"briefbot/internal/db"
	"briefbot/internal/notify"
	"briefbot/internal/services"
	"briefbot/internal/smartparse"
	"briefbot/internal/stream"
	"briefbot/internal/template"
)

const (
	// DefaultStepTimeout bounds each step dispatch.
	DefaultStepTimeout = 2 * time.Minute
	// DefaultRunTimeout bounds an entire asynchronous run.
	DefaultRunTimeout = 15 * time.Minute
)

// Executor dispatches a task's steps to their service handlers and applies
// the partial-failure policy: collection and processing failures degrade the
// run, delivery failures abort it.
type Executor struct {
	db          *db.DB
	services    services.Map
	streamMgr   *stream.Manager
	notifier    *notify.Notifier
	log         *log.Logger
	stepTimeout time.Duration
}

// Option configures an Executor.
type Option func(*Executor)

// WithStreamManager enables per-step progress streaming.
func WithStreamManager(mgr *stream.Manager) Option {
	return func(e *Executor) { e.streamMgr = mgr }
}

// WithNotifier enables webhook run summaries.
func WithNotifier(n *notify.Notifier) Option {
	return func(e *Executor) { e.notifier = n }
}

// WithStepTimeout overrides the per-step dispatch bound.
func WithStepTimeout(d time.Duration) Option {
	return func(e *Executor) { e.stepTimeout = d }
}

// New creates an executor over the given service handlers.
func New(database *db.DB, svcs services.Map, logger *log.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = log.Default()
	}
	e := &Executor{
		db:          database,
		services:    svcs,
		log:         logger.WithPrefix("executor"),
		stepTimeout: DefaultStepTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs every step of the task in order and returns the finalized
// execution record. The record is created at run start and always lists every
// attempted step with its individual outcome.
func (e *Executor) Execute(ctx context.Context, task *db.Task) *db.TaskRun {
	startTime := time.Now()

	run := &db.TaskRun{
		TaskID:    task.ID,
		StartedAt: startTime,
		Status:    db.RunStatusRunning,
	}
	if err := e.db.CreateTaskRun(run); err != nil {
		e.log.Error("failed to create run record", "task", task.ID, "error", err)
		run.Status = db.RunStatusFailed
		run.Error = fmt.Sprintf("failed to create run record: %v", err)
		return run
	}

	e.runSteps(ctx, task, run)

	endTime := time.Now()
	run.EndedAt = &endTime
	run.DurationMs = endTime.Sub(startTime).Milliseconds()
	if run.Status == db.RunStatusRunning {
		run.Status = db.RunStatusCompleted
	}
	if err := e.db.UpdateTaskRun(run); err != nil {
		e.log.Error("failed to finalize run record", "run", run.ID, "error", err)
	}

	if e.streamMgr != nil {
		e.streamMgr.Complete(run.ID, string(run.Status), run.Error)
	}
	if e.notifier != nil {
		e.notifier.NotifyRun(task, run)
	}

	e.log.Info("run finished", "task", task.ID, "run", run.ID,
		"status", run.Status, "duration", endTime.Sub(startTime).Round(time.Millisecond))
	return run
}

// runSteps walks the step loop. Panics outside individual step dispatch are
// caught here and recorded as the run's top-level error.
func (e *Executor) runSteps(ctx context.Context, task *db.Task, run *db.TaskRun) {
	defer func() {
		if r := recover(); r != nil {
			run.Status = db.RunStatusFailed
			run.Error = fmt.Sprintf("run aborted: %v", r)
			e.log.Error("panic during run", "task", task.ID, "run", run.ID, "panic", r)
		}
	}()

	loc, err := time.LoadLocation(task.Timezone)
	if err != nil {
		loc = time.UTC
	}
	runCtx := template.Builtins(run.StartedAt, loc)

	// Bindings whose producing step failed; delivery steps must not consume
	// them.
	failed := make(map[string]bool)

	for _, step := range task.Steps {
		e.publishStep(run.ID, "step_started", step, "", "")

		result := db.StepResult{
			Service:   step.Service,
			Operation: step.Operation,
			Kind:      step.Kind,
		}

		out, stepErr := e.runStep(ctx, step, runCtx, failed, run.StartedAt, loc)
		if stepErr != nil {
			result.Status = db.StepStatusFailed
			result.Error = stepErr.Error()
			if step.OutputBinding != "" {
				failed[step.OutputBinding] = true
			}
			run.StepResults = append(run.StepResults, result)
			e.publishStep(run.ID, "step_finished", step, string(db.StepStatusFailed), stepErr.Error())

			if step.Kind == db.StepKindDelivery {
				// Delivery failures are the only fatal class.
				run.Status = db.RunStatusFailed
				run.Error = fmt.Sprintf("%s.%s: %v", step.Service, step.Operation, stepErr)
				e.log.Error("delivery step failed, aborting run",
					"task", task.ID, "run", run.ID, "step", step.Service+"."+step.Operation, "error", stepErr)
				return
			}

			e.log.Warn("step failed, continuing",
				"task", task.ID, "run", run.ID, "step", step.Service+"."+step.Operation, "error", stepErr)
			continue
		}

		result.Status = db.StepStatusCompleted
		result.Data = out
		if step.OutputBinding != "" {
			runCtx[step.OutputBinding] = out
		}
		run.StepResults = append(run.StepResults, result)
		e.publishStep(run.ID, "step_finished", step, string(db.StepStatusCompleted), "")
	}
}

// runStep resolves the step's parameters, checks delivery dependencies and
// dispatches to the service handler under the step timeout.
func (e *Executor) runStep(ctx context.Context, step db.Step, runCtx map[string]any, failed map[string]bool, started time.Time, loc *time.Location) (any, error) {
	if step.Kind == db.StepKindDelivery {
		for name := range template.References(step.Params) {
			if failed[name] {
				return nil, fmt.Errorf("upstream step producing %q failed", name)
			}
		}
	}

	params := template.Resolve(step.Params, runCtx)
	resolveDates(params, loc, started)

	svc, ok := e.services[step.Service]
	if !ok {
		return nil, fmt.Errorf("unknown service %q", step.Service)
	}

	stepCtx, cancel := context.WithTimeout(ctx, e.stepTimeout)
	defer cancel()

	// Timeouts take the same failure path as any other step error.
	return svc.Call(stepCtx, step.Operation, params)
}

// Parameters that collaborators expect as concrete dates. Plans commonly
// carry relative expressions here ("today", "yesterday", "3 days ago").
var dateParams = []string{"date", "start_date", "end_date", "since", "until"}

func resolveDates(params map[string]any, loc *time.Location, base time.Time) {
	for _, key := range dateParams {
		s, ok := params[key].(string)
		if !ok {
			continue
		}
		if t, ok := smartparse.ParseRelativeDate(s, loc, base); ok {
			params[key] = t.In(loc).Format("2006-01-02")
		}
	}
}

func (e *Executor) publishStep(runID int64, eventType string, step db.Step, status, errMsg string) {
	if e.streamMgr == nil {
		return
	}
	e.streamMgr.Publish(stream.StepEvent{
		RunID:     runID,
		Type:      eventType,
		Service:   step.Service,
		Operation: step.Operation,
		Status:    status,
		Error:     errMsg,
		Timestamp: time.Now(),
	})
}

// ExecuteAsync runs a task in the background under the overall run timeout.
func (e *Executor) ExecuteAsync(task *db.Task) <-chan *db.TaskRun {
	ch := make(chan *db.TaskRun, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), DefaultRunTimeout)
		defer cancel()
		ch <- e.Execute(ctx, task)
		close(ch)
	}()
	return ch
}
