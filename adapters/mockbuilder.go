package adapters

import (
	"context"
	"fmt"
	"sync"

	"github.com/cryptotracker/imagebuild/core/domain"
	"github.com/cryptotracker/imagebuild/core/ports"
	"github.com/opencontainers/go-digest"
	"go.opentelemetry.io/otel"
)

// MockImageBuilder records build requests; it fails every target listed in failTargets
type MockImageBuilder struct {
	failTargets map[string]bool
	ready       bool
	mu          sync.Mutex
	requests    []domain.BuildRequest
}

var _ ports.ImageBuilder = (*MockImageBuilder)(nil)

func NewMockImageBuilder(ready bool, failTargets ...string) *MockImageBuilder {
	m := &MockImageBuilder{failTargets: map[string]bool{}, ready: ready}
	for _, t := range failTargets {
		m.failTargets[t] = true
	}
	return m
}

func (m *MockImageBuilder) Build(ctx context.Context, request domain.BuildRequest) (domain.BuildResult, error) {
	_, span := otel.Tracer("").Start(ctx, "MockImageBuilder.Build")
	defer span.End()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, request)
	if m.failTargets[request.Target] {
		return domain.BuildResult{}, fmt.Errorf("%w: target %s", domain.ErrMockError, request.Target)
	}
	return domain.BuildResult{ImageID: digest.FromBytes(request.Dockerfile).String()}, nil
}

func (m *MockImageBuilder) Ready(context.Context) bool {
	return m.ready
}

// Requests returns a copy of every request received so far
func (m *MockImageBuilder) Requests() []domain.BuildRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.BuildRequest(nil), m.requests...)
}

// Targets lists the requested targets in order
func (m *MockImageBuilder) Targets() []string {
	var targets []string
	for _, r := range m.Requests() {
		targets = append(targets, r.Target)
	}
	return targets
}
