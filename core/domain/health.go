package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultProbeInterval    = 30 * time.Second
	DefaultProbeTimeout     = 10 * time.Second
	DefaultProbeStartPeriod = 5 * time.Second
	DefaultProbeRetries     = 3
	DefaultHealthPath       = "/health"
	DefaultReadinessPath    = "/ready"
)

// HealthProbeSpec describes the periodic liveness check run by the container host
type HealthProbeSpec struct {
	Interval    time.Duration `json:"interval"`
	Timeout     time.Duration `json:"timeout"`
	StartPeriod time.Duration `json:"startPeriod"`
	Retries     int           `json:"retries"`
	Path        string        `json:"path"`
	Command     []string      `json:"command"`
}

func DefaultHealthProbe() HealthProbeSpec {
	return HealthProbeSpec{
		Interval:    DefaultProbeInterval,
		Timeout:     DefaultProbeTimeout,
		StartPeriod: DefaultProbeStartPeriod,
		Retries:     DefaultProbeRetries,
		Path:        DefaultHealthPath,
		Command:     PythonProbeCommand(DefaultHealthPath, DefaultProbeTimeout),
	}
}

// PythonProbeCommand builds the in-container probe. It reads APP_PORT at
// probe time so a port override at container start is honoured, and any
// connection error or non-2xx answer exits non-zero.
func PythonProbeCommand(path string, timeout time.Duration) []string {
	script := fmt.Sprintf(
		"import os, sys, httpx; "+
			"r = httpx.get('http://localhost:' + os.environ.get('%s', '%d') + '%s', timeout=%s); "+
			"sys.exit(0 if r.is_success else 1)",
		EnvAppPort, DefaultAppPort, path, strconv.FormatFloat(timeout.Seconds(), 'f', -1, 64))
	return []string{"python", "-c", script}
}

func (h HealthProbeSpec) Validate() error {
	switch {
	case h.Interval <= 0:
		return fmt.Errorf("%w: probe interval must be positive", ErrInvalidDescriptor)
	case h.Timeout <= 0:
		return fmt.Errorf("%w: probe timeout must be positive", ErrInvalidDescriptor)
	case h.Timeout > h.Interval:
		return fmt.Errorf("%w: probe timeout %s exceeds interval %s", ErrInvalidDescriptor, h.Timeout, h.Interval)
	case h.StartPeriod < 0:
		return fmt.Errorf("%w: negative probe start period", ErrInvalidDescriptor)
	case h.Retries < 1:
		return fmt.Errorf("%w: probe retries must be at least 1", ErrInvalidDescriptor)
	case !strings.HasPrefix(h.Path, "/"):
		return fmt.Errorf("%w: probe path %q must be absolute", ErrInvalidDescriptor, h.Path)
	case len(h.Command) == 0:
		return fmt.Errorf("%w: empty probe command", ErrInvalidDescriptor)
	}
	return nil
}

type HealthStatus string

const (
	HealthStarting  HealthStatus = "starting"
	HealthHealthy   HealthStatus = "healthy"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// HealthState is a snapshot of the probe runner
type HealthState struct {
	Status        HealthStatus `json:"status"`
	FailingStreak int          `json:"failingStreak"`
	Checks        int          `json:"checks"`
	LastCheck     time.Time    `json:"lastCheck,omitempty"`
	LastError     string       `json:"lastError,omitempty"`
}
