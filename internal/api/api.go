package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"briefbot/internal/db"
	"briefbot/internal/executor"
	"briefbot/internal/planner"
	"briefbot/internal/scheduler"
	"briefbot/internal/stream"
)

// Server represents the API server
type Server struct {
	db         *db.DB
	scheduler  *scheduler.Scheduler
	executor   *executor.Executor
	translator *planner.Translator
	streamMgr  *stream.Manager
	router     chi.Router
}

// NewServer creates a new API server
func NewServer(database *db.DB, sched *scheduler.Scheduler, exec *executor.Executor, translator *planner.Translator, streamMgr *stream.Manager) *Server {
	s := &Server{
		db:         database,
		scheduler:  sched,
		executor:   exec,
		translator: translator,
		streamMgr:  streamMgr,
		router:     chi.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := s.router

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(CORS)

	r.Get("/api/v1/health", s.HealthCheck)

	// Tasks
	r.Get("/api/v1/tasks", s.ListTasks)
	r.Post("/api/v1/tasks", s.CreateTask)
	r.Post("/api/v1/tasks/translate", s.TranslateTask)
	r.Get("/api/v1/tasks/{id}", s.GetTask)
	r.Put("/api/v1/tasks/{id}", s.UpdateTask)
	r.Delete("/api/v1/tasks/{id}", s.DeleteTask)
	r.Post("/api/v1/tasks/{id}/approve", s.ApproveTask)
	r.Post("/api/v1/tasks/{id}/toggle", s.ToggleTask)
	r.Post("/api/v1/tasks/{id}/run", s.RunTask)
	r.Get("/api/v1/tasks/{id}/runs", s.GetTaskRuns)
	r.Get("/api/v1/tasks/{id}/runs/latest", s.GetLatestTaskRun)
	r.Get("/api/v1/tasks/{id}/runs/{runId}", s.GetTaskRunByID)
	r.Get("/api/v1/tasks/{id}/runs/{runId}/stream", s.StreamTaskRun)
}

// Router returns the chi router for use with http.Server
func (s *Server) Router() http.Handler {
	return s.router
}

// CORS allows browser clients on other origins to call the API.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
