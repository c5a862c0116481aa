// Package scheduler owns one cron entry per enabled, approved task and fires
// executions with timezone correctness.
package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"

	"briefbot/internal/db"
	"briefbot/internal/executor"
)

// 5-field standard parser, no seconds field. Entries carry a CRON_TZ prefix
// so robfig/cron evaluates them in the task's timezone, DST included.
var specParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Scheduler manages cron entries for tasks
type Scheduler struct {
	cron     *cron.Cron
	db       *db.DB
	executor *executor.Executor
	log      *log.Logger

	mu       sync.RWMutex
	jobs     map[int64]cron.EntryID
	specs    map[int64]string // Track entry specs to detect changes
	inflight map[int64]bool   // One execution per task id at a time
	running  bool
	stopSync chan struct{}
}

// New creates a new scheduler
func New(database *db.DB, exec *executor.Executor, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{
		cron:     cron.New(cron.WithParser(specParser)),
		db:       database,
		executor: exec,
		log:      logger.WithPrefix("scheduler"),
		jobs:     make(map[int64]cron.EntryID),
		specs:    make(map[int64]string),
		inflight: make(map[int64]bool),
		stopSync: make(chan struct{}),
	}
}

// EntrySpec builds the cron entry spec for an expression and timezone.
func EntrySpec(expr, timezone string) string {
	if timezone == "" {
		return expr
	}
	return fmt.Sprintf("CRON_TZ=%s %s", timezone, expr)
}

// NextRun computes the earliest fire instant strictly after "after" for a
// cron expression evaluated in the given timezone.
func NextRun(expr, timezone string, after time.Time) (time.Time, error) {
	sched, err := cron.ParseStandard(EntrySpec(expr, timezone))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression: %w", err)
	}
	next := sched.Next(after)
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("cron expression %q never fires", expr)
	}
	return next, nil
}

// Start loads every approved, enabled task, registers each and begins firing.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	tasks, err := s.db.ListEnabledApproved()
	if err != nil {
		return fmt.Errorf("failed to load tasks: %w", err)
	}

	for _, task := range tasks {
		if err := s.registerLocked(task); err != nil {
			// Log error but continue with other tasks
			s.log.Error("failed to register task", "task", task.ID, "error", err)
		}
	}

	s.cron.Start()
	s.running = true

	// Background sync picks up store changes made out of band
	go s.syncLoop()

	s.log.Info("scheduler started", "tasks", len(s.jobs))
	return nil
}

// Stop stops the scheduler. In-flight executions run to completion under
// their own step timeouts.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopSync)

	ctx := s.cron.Stop()
	<-ctx.Done()
}

// RegisterTask registers (or re-registers) a task's timer. Idempotent: at
// most one active entry exists per task id.
func (s *Scheduler) RegisterTask(id int64) error {
	task, err := s.db.GetTask(id)
	if err != nil {
		return fmt.Errorf("task not found: %w", err)
	}
	if !task.Schedulable() {
		s.UnregisterTask(id)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registerLocked(task)
}

// UnregisterTask stops and discards the task's timer. Idempotent if none
// exists. Future fires stop; an in-flight execution is not cancelled.
func (s *Scheduler) UnregisterTask(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unregisterLocked(id)
}

func (s *Scheduler) unregisterLocked(id int64) {
	if entryID, ok := s.jobs[id]; ok {
		s.cron.Remove(entryID)
		delete(s.jobs, id)
		delete(s.specs, id)
	}
}

func (s *Scheduler) registerLocked(task *db.Task) error {
	// Re-check the cron string defensively even though translation validated
	// it.
	spec := EntrySpec(task.CronExpr, task.Timezone)
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	// Replace any pre-existing entry for this id
	s.unregisterLocked(task.ID)

	taskID := task.ID
	entryID, err := s.cron.AddFunc(spec, func() {
		s.ExecuteTask(taskID)
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	s.jobs[task.ID] = entryID
	s.specs[task.ID] = spec

	// Persist the next-run time. Computed from the expression directly:
	// cron entries carry no Next value until the cron loop picks them up,
	// and bootstrap registration happens before the loop starts.
	if next, err := NextRun(task.CronExpr, task.Timezone, time.Now()); err == nil {
		task.NextRunAt = &next
		_ = s.db.RecordRun(task.ID, task.LastRunAt, task.NextRunAt)
	}

	return nil
}

// ExecuteTask runs a task immediately. Scheduled fires and manual triggers
// share this path, so both have identical semantics. At most one execution
// per task id is in flight; an overlapping fire is skipped.
func (s *Scheduler) ExecuteTask(id int64) error {
	task, err := s.db.GetTask(id)
	if err != nil {
		return fmt.Errorf("task not found: %w", err)
	}
	if !task.Enabled {
		return nil
	}

	s.mu.Lock()
	if s.inflight[id] {
		s.mu.Unlock()
		s.log.Warn("previous run still in flight, skipping", "task", id)
		return nil
	}
	s.inflight[id] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.inflight, id)
		s.mu.Unlock()
	}()

	run := <-s.executor.ExecuteAsync(task)

	// Update last-run and recompute next-run whether the run succeeded or
	// failed.
	lastRun := run.StartedAt
	var nextRun *time.Time
	if next, err := NextRun(task.CronExpr, task.Timezone, time.Now()); err == nil {
		nextRun = &next
	}
	if err := s.db.RecordRun(id, &lastRun, nextRun); err != nil {
		s.log.Error("failed to record run metadata", "task", id, "error", err)
	}
	return nil
}

// NextRunTime returns the next scheduled fire time for a task, if registered.
func (s *Scheduler) NextRunTime(taskID int64) *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	spec, ok := s.specs[taskID]
	if !ok {
		return nil
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil
	}
	next := sched.Next(time.Now())
	if next.IsZero() {
		return nil
	}
	return &next
}

// Registered reports whether a task currently has an active entry.
func (s *Scheduler) Registered(taskID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.jobs[taskID]
	return ok
}

// syncLoop periodically reconciles entries against the store
func (s *Scheduler) syncLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopSync:
			return
		case <-ticker.C:
			s.SyncTasks()
		}
	}
}

// SyncTasks reloads tasks from the store and updates the entry set: tasks
// deleted or no longer schedulable are unregistered, new or rescheduled ones
// are (re)registered.
func (s *Scheduler) SyncTasks() {
	tasks, err := s.db.ListTasks()
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := make(map[int64]*db.Task, len(tasks))
	for _, task := range tasks {
		current[task.ID] = task
	}

	// Drop entries for tasks that vanished or stopped being schedulable
	for taskID := range s.jobs {
		task, ok := current[taskID]
		if !ok || !task.Schedulable() {
			s.unregisterLocked(taskID)
		}
	}

	// Register new tasks and pick up schedule changes
	for _, task := range tasks {
		if !task.Schedulable() {
			continue
		}
		_, scheduled := s.jobs[task.ID]
		spec := EntrySpec(task.CronExpr, task.Timezone)
		if !scheduled || s.specs[task.ID] != spec {
			if err := s.registerLocked(task); err != nil {
				s.log.Error("failed to register task during sync", "task", task.ID, "error", err)
			}
		}
	}
}
