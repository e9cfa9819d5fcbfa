package adapters

import (
	"context"
	"sync"
	"time"

	"github.com/cryptotracker/imagebuild/core/domain"
	"github.com/cryptotracker/imagebuild/core/ports"
)

// MockHealthChecker answers from a scripted sequence; the last result repeats
type MockHealthChecker struct {
	mu      sync.Mutex
	results []bool
	delay   time.Duration
	calls   int
}

var _ ports.HealthChecker = (*MockHealthChecker)(nil)

func NewMockHealthChecker(results ...bool) *MockHealthChecker {
	return &MockHealthChecker{results: results}
}

// WithDelay makes every check block for d or until ctx is done
func (m *MockHealthChecker) WithDelay(d time.Duration) *MockHealthChecker {
	m.delay = d
	return m
}

func (m *MockHealthChecker) Check(ctx context.Context) error {
	m.mu.Lock()
	healthy := len(m.results) > 0 && m.results[min(m.calls, len(m.results)-1)]
	m.calls++
	delay := m.delay
	m.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if !healthy {
		return domain.ErrUnhealthy
	}
	return nil
}

func (m *MockHealthChecker) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
