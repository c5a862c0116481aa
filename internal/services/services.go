// Package services defines the uniform collaborator contract the executor
// dispatches steps to, plus the implementations this process ships with.
// Calendar and video providers are external; they register under their
// service name at startup when configured.
package services

import "context"

// Service is the uniform (operation, parameters) -> result contract every
// collaborator implements. Calls may block on network I/O; the executor
// bounds them with a per-step timeout.
type Service interface {
	Call(ctx context.Context, operation string, params map[string]any) (any, error)
}

// Map binds service names to their handlers. Built once at construction so
// the executor's hot path is a map lookup, not string dispatch.
type Map map[string]Service
