package services

import (
	"context"
	"fmt"
)

// UnconfiguredService stands in for a collaborator whose backing integration
// is not set up. Plans referencing it still validate and schedule; at run
// time the step fails with the reason instead of an "unknown service" error,
// so the partial-failure policy applies normally.
type UnconfiguredService struct {
	name     string
	provider string
}

// NewUnconfiguredService creates a placeholder for the named collaborator.
func NewUnconfiguredService(name, provider string) *UnconfiguredService {
	return &UnconfiguredService{name: name, provider: provider}
}

// Call implements Service.
func (s *UnconfiguredService) Call(_ context.Context, operation string, _ map[string]any) (any, error) {
	return nil, fmt.Errorf("%s.%s requires %s; none is configured", s.name, operation, s.provider)
}
