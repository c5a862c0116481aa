// Package stream broadcasts run progress to SSE subscribers. Each run gets a
// buffered event stream so a client that connects mid-run still sees every
// step event.
package stream

import (
	"sync"
	"time"
)

// StepEvent reports progress for one step within a run.
type StepEvent struct {
	RunID     int64     `json:"run_id"`
	Type      string    `json:"type"` // "step_started" or "step_finished"
	Service   string    `json:"service"`
	Operation string    `json:"operation"`
	Status    string    `json:"status,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// CompletionEvent signals that a run has finished
type CompletionEvent struct {
	RunID  int64  `json:"run_id"`
	Status string `json:"status"` // "completed" or "failed"
	Error  string `json:"error,omitempty"`
}

// Client represents a connected SSE client
type Client struct {
	ID       string
	Events   chan StepEvent
	Complete chan CompletionEvent
	Done     chan struct{}
}

// runStream manages subscribers for a single run
type runStream struct {
	runID       int64
	clients     map[string]*Client
	buffer      []StepEvent
	completed   bool
	completion  *CompletionEvent
	mu          sync.RWMutex
	bufferLimit int
}

// Manager manages all active run streams
type Manager struct {
	streams map[int64]*runStream
	mu      sync.RWMutex
}

// NewManager creates a new stream manager
func NewManager() *Manager {
	return &Manager{
		streams: make(map[int64]*runStream),
	}
}

func (m *Manager) getOrCreateStream(runID int64) *runStream {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.streams[runID]; ok {
		return s
	}

	s := &runStream{
		runID:       runID,
		clients:     make(map[string]*Client),
		buffer:      make([]StepEvent, 0, 64),
		bufferLimit: 256,
	}
	m.streams[runID] = s
	return s
}

// Subscribe registers a client for updates on a run. Buffered events and, if
// the run already finished, the completion event are replayed immediately.
func (m *Manager) Subscribe(runID int64, clientID string) *Client {
	s := m.getOrCreateStream(runID)

	client := &Client{
		ID:       clientID,
		Events:   make(chan StepEvent, 256),
		Complete: make(chan CompletionEvent, 1),
		Done:     make(chan struct{}),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, event := range s.buffer {
		select {
		case client.Events <- event:
		default:
			// Client channel full, skip
		}
	}

	if s.completed && s.completion != nil {
		select {
		case client.Complete <- *s.completion:
		default:
		}
	}

	s.clients[clientID] = client
	return client
}

// Unsubscribe removes a client from a run's updates
func (m *Manager) Unsubscribe(runID int64, clientID string) {
	m.mu.RLock()
	s, ok := m.streams[runID]
	m.mu.RUnlock()

	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if client, ok := s.clients[clientID]; ok {
		close(client.Done)
		delete(s.clients, clientID)
	}
}

// Publish broadcasts a step event to every subscriber of the run.
func (m *Manager) Publish(event StepEvent) {
	s := m.getOrCreateStream(event.RunID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.buffer) < s.bufferLimit {
		s.buffer = append(s.buffer, event)
	}

	for _, client := range s.clients {
		select {
		case client.Events <- event:
		default:
			// Slow client, drop the event rather than block the run
		}
	}
}

// Complete marks the run finished and notifies subscribers.
func (m *Manager) Complete(runID int64, status, errMsg string) {
	s := m.getOrCreateStream(runID)

	event := CompletionEvent{RunID: runID, Status: status, Error: errMsg}

	s.mu.Lock()
	s.completed = true
	s.completion = &event
	for _, client := range s.clients {
		select {
		case client.Complete <- event:
		default:
		}
	}
	s.mu.Unlock()

	// Retire the stream after a grace period so late subscribers can still
	// replay it.
	go func() {
		time.Sleep(5 * time.Minute)
		m.mu.Lock()
		delete(m.streams, runID)
		m.mu.Unlock()
	}()
}
