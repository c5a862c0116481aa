package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"briefbot/internal/db"
	"briefbot/internal/planner"
)

// HealthCheck handles GET /api/v1/health
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// TranslateTask handles POST /api/v1/tasks/translate. The natural-language
// prompt is translated into a structured plan, validated and persisted in
// pending_approval status. Translation or validation failures reject the plan
// before any persistence.
func (s *Server) TranslateTask(w http.ResponseWriter, r *http.Request) {
	var req TranslateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Prompt == "" {
		s.errorResponse(w, http.StatusBadRequest, "Prompt is required", nil)
		return
	}

	task, err := s.translator.Translate(r.Context(), req.Prompt, req.Owner)
	if err != nil {
		s.errorResponse(w, http.StatusUnprocessableEntity, "Could not translate request into a plan", err)
		return
	}

	if err := s.db.CreateTask(task); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to create task", err)
		return
	}

	s.jsonResponse(w, http.StatusCreated, s.taskToResponse(task, ""))
}

// ListTasks handles GET /api/v1/tasks
func (s *Server) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.db.ListTasks()
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to fetch tasks", err)
		return
	}

	statuses, _ := s.db.GetLastRunStatuses()

	response := TaskListResponse{
		Tasks: make([]TaskResponse, len(tasks)),
		Total: len(tasks),
	}
	for i, task := range tasks {
		response.Tasks[i] = s.taskToResponse(task, statuses[task.ID])
	}

	s.jsonResponse(w, http.StatusOK, response)
}

// CreateTask handles POST /api/v1/tasks with a pre-structured plan
func (s *Server) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req TaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	task := req.toTask()
	task.Status = db.TaskStatusPendingApproval

	if err := planner.ValidateTask(task); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	if err := s.db.CreateTask(task); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to create task", err)
		return
	}

	s.jsonResponse(w, http.StatusCreated, s.taskToResponse(task, ""))
}

// GetTask handles GET /api/v1/tasks/{id}
func (s *Server) GetTask(w http.ResponseWriter, r *http.Request) {
	task, ok := s.taskFromURL(w, r)
	if !ok {
		return
	}

	var status db.RunStatus
	if lastRun, _ := s.db.GetLatestTaskRun(task.ID); lastRun != nil {
		status = lastRun.Status
	}

	s.jsonResponse(w, http.StatusOK, s.taskToResponse(task, status))
}

// UpdateTask handles PUT /api/v1/tasks/{id}
func (s *Server) UpdateTask(w http.ResponseWriter, r *http.Request) {
	task, ok := s.taskFromURL(w, r)
	if !ok {
		return
	}

	var req TaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	updated := req.toTask()
	updated.ID = task.ID
	updated.Status = task.Status
	updated.CreatedAt = task.CreatedAt
	updated.LastRunAt = task.LastRunAt

	if err := planner.ValidateTask(updated); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	if err := s.db.UpdateTask(updated); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to update task", err)
		return
	}

	// Re-register so an edited schedule takes effect immediately
	if s.scheduler != nil {
		_ = s.scheduler.RegisterTask(updated.ID)
	}

	s.jsonResponse(w, http.StatusOK, s.taskToResponse(updated, ""))
}

// DeleteTask handles DELETE /api/v1/tasks/{id}. Removes the timer and, via
// cascade, all run history.
func (s *Server) DeleteTask(w http.ResponseWriter, r *http.Request) {
	task, ok := s.taskFromURL(w, r)
	if !ok {
		return
	}

	if s.scheduler != nil {
		s.scheduler.UnregisterTask(task.ID)
	}

	if err := s.db.DeleteTask(task.ID); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to delete task", err)
		return
	}

	s.jsonResponse(w, http.StatusOK, SuccessResponse{
		Success: true,
		Message: "Task deleted",
	})
}

// ApproveTask handles POST /api/v1/tasks/{id}/approve. Only valid from
// pending_approval; an approved, enabled task is registered immediately.
func (s *Server) ApproveTask(w http.ResponseWriter, r *http.Request) {
	task, ok := s.taskFromURL(w, r)
	if !ok {
		return
	}

	if err := s.db.ApproveTask(task.ID); err != nil {
		s.errorResponse(w, http.StatusConflict, "Cannot approve task", err)
		return
	}

	if s.scheduler != nil {
		_ = s.scheduler.RegisterTask(task.ID)
	}

	task, err := s.db.GetTask(task.ID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to fetch task", err)
		return
	}

	s.jsonResponse(w, http.StatusOK, s.taskToResponse(task, ""))
}

// ToggleTask handles POST /api/v1/tasks/{id}/toggle
func (s *Server) ToggleTask(w http.ResponseWriter, r *http.Request) {
	task, ok := s.taskFromURL(w, r)
	if !ok {
		return
	}

	if err := s.db.ToggleTask(task.ID); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to toggle task", err)
		return
	}

	task, err := s.db.GetTask(task.ID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to fetch task", err)
		return
	}

	// Register or unregister depending on the new state
	if s.scheduler != nil {
		_ = s.scheduler.RegisterTask(task.ID)
	}

	s.jsonResponse(w, http.StatusOK, s.taskToResponse(task, ""))
}

// RunTask handles POST /api/v1/tasks/{id}/run. Accepted synchronously; the
// execution completes asynchronously through the same path scheduled fires
// use.
func (s *Server) RunTask(w http.ResponseWriter, r *http.Request) {
	task, ok := s.taskFromURL(w, r)
	if !ok {
		return
	}

	if !task.Enabled {
		s.errorResponse(w, http.StatusConflict, "Task is disabled", nil)
		return
	}

	go func() {
		_ = s.scheduler.ExecuteTask(task.ID)
	}()

	s.jsonResponse(w, http.StatusAccepted, SuccessResponse{
		Success: true,
		Message: "Task execution started",
	})
}

// GetTaskRuns handles GET /api/v1/tasks/{id}/runs
func (s *Server) GetTaskRuns(w http.ResponseWriter, r *http.Request) {
	task, ok := s.taskFromURL(w, r)
	if !ok {
		return
	}

	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	runs, err := s.db.GetTaskRuns(task.ID, limit)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to fetch task runs", err)
		return
	}

	response := TaskRunsResponse{
		Runs:  make([]TaskRunResponse, len(runs)),
		Total: len(runs),
	}
	for i, run := range runs {
		response.Runs[i] = taskRunToResponse(run)
	}

	s.jsonResponse(w, http.StatusOK, response)
}

// GetLatestTaskRun handles GET /api/v1/tasks/{id}/runs/latest
func (s *Server) GetLatestTaskRun(w http.ResponseWriter, r *http.Request) {
	task, ok := s.taskFromURL(w, r)
	if !ok {
		return
	}

	run, err := s.db.GetLatestTaskRun(task.ID)
	if err != nil {
		s.errorResponse(w, http.StatusNotFound, "No runs found", err)
		return
	}

	s.jsonResponse(w, http.StatusOK, taskRunToResponse(run))
}

// GetTaskRunByID handles GET /api/v1/tasks/{id}/runs/{runId}
func (s *Server) GetTaskRunByID(w http.ResponseWriter, r *http.Request) {
	runID, err := strconv.ParseInt(chi.URLParam(r, "runId"), 10, 64)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid run ID", err)
		return
	}

	run, err := s.db.GetTaskRun(runID)
	if err != nil {
		s.errorResponse(w, http.StatusNotFound, "Run not found", err)
		return
	}

	s.jsonResponse(w, http.StatusOK, taskRunToResponse(run))
}

// StreamTaskRun handles GET /api/v1/tasks/{id}/runs/{runId}/stream via SSE
func (s *Server) StreamTaskRun(w http.ResponseWriter, r *http.Request) {
	runID, err := strconv.ParseInt(chi.URLParam(r, "runId"), 10, 64)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid run ID", err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.errorResponse(w, http.StatusInternalServerError, "Streaming unsupported", nil)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	clientID := fmt.Sprintf("%d-%s", runID, r.RemoteAddr)
	client := s.streamMgr.Subscribe(runID, clientID)
	defer s.streamMgr.Unsubscribe(runID, clientID)

	writeEvent := func(eventType string, payload any) {
		data, err := json.Marshal(payload)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, data)
		flusher.Flush()
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-client.Done:
			return
		case event := <-client.Events:
			writeEvent("step", event)
		case completion := <-client.Complete:
			writeEvent("complete", completion)
			return
		}
	}
}

// Helper functions

func (req *TaskRequest) toTask() *db.Task {
	return &db.Task{
		Owner:           req.Owner,
		Name:            req.Name,
		Description:     req.Description,
		Prompt:          req.Prompt,
		CronExpr:        req.CronExpr,
		Timezone:        req.Timezone,
		Steps:           req.Steps,
		Personalization: req.Personalization,
		Enabled:         req.Enabled,
		DiscordWebhook:  req.DiscordWebhook,
		SlackWebhook:    req.SlackWebhook,
	}
}

func (s *Server) taskFromURL(w http.ResponseWriter, r *http.Request) (*db.Task, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid task ID", err)
		return nil, false
	}

	task, err := s.db.GetTask(id)
	if err != nil {
		s.errorResponse(w, http.StatusNotFound, "Task not found", err)
		return nil, false
	}
	return task, true
}

func (s *Server) taskToResponse(task *db.Task, status db.RunStatus) TaskResponse {
	resp := TaskResponse{
		ID:              task.ID,
		Owner:           task.Owner,
		Name:            task.Name,
		Description:     task.Description,
		Prompt:          task.Prompt,
		CronExpr:        task.CronExpr,
		Timezone:        task.Timezone,
		Steps:           task.Steps,
		Personalization: task.Personalization,
		Status:          string(task.Status),
		Enabled:         task.Enabled,
		DiscordWebhook:  task.DiscordWebhook,
		SlackWebhook:    task.SlackWebhook,
		CreatedAt:       task.CreatedAt,
		UpdatedAt:       task.UpdatedAt,
		LastRunAt:       task.LastRunAt,
		NextRunAt:       task.NextRunAt,
	}
	if status != "" {
		resp.LastRunStatus = string(status)
	}
	return resp
}

func taskRunToResponse(run *db.TaskRun) TaskRunResponse {
	return TaskRunResponse{
		ID:          run.ID,
		TaskID:      run.TaskID,
		StartedAt:   run.StartedAt,
		EndedAt:     run.EndedAt,
		Status:      string(run.Status),
		DurationMs:  run.DurationMs,
		StepResults: run.StepResults,
		Error:       run.Error,
	}
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	s.jsonResponse(w, status, resp)
}
