package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cryptotracker/imagebuild/core/domain"
	"github.com/cryptotracker/imagebuild/core/ports"
	"github.com/eapache/go-resiliency/deadline"
	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Watchdog runs the health probe out of band from the service it watches.
// Failures inside the start period do not count; Retries consecutive
// failures after it mark the target unhealthy and one success clears them.
type Watchdog struct {
	probe    domain.HealthProbeSpec
	checker  ports.HealthChecker
	mu       sync.RWMutex
	state    domain.HealthState
	started  time.Time
	onChange func(domain.HealthState)
	now      func() time.Time
}

var _ ports.ProbeService = (*Watchdog)(nil)

func NewWatchdog(probe domain.HealthProbeSpec, checker ports.HealthChecker) *Watchdog {
	return &Watchdog{
		probe:   probe,
		checker: checker,
		state:   domain.HealthState{Status: domain.HealthStarting},
		now:     time.Now,
	}
}

// OnChange registers a callback invoked when the status flips
func (w *Watchdog) OnChange(fn func(domain.HealthState)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = fn
}

// Run probes every interval until ctx is cancelled
func (w *Watchdog) Run(ctx context.Context) error {
	w.mu.Lock()
	w.started = w.now()
	w.state = domain.HealthState{Status: domain.HealthStarting}
	w.mu.Unlock()

	ticker := time.NewTicker(w.probe.Interval)
	defer ticker.Stop()
	for {
		_ = w.CheckOnce(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// CheckOnce runs a single attempt bounded by the probe timeout and records it
func (w *Watchdog) CheckOnce(ctx context.Context) error {
	ctx, span := otel.Tracer("").Start(ctx, "Watchdog.CheckOnce")
	defer span.End()

	checkCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	dl := deadline.New(w.probe.Timeout)
	err := dl.Run(func(stopper <-chan struct{}) error {
		go func() {
			select {
			case <-stopper:
				cancel()
			case <-checkCtx.Done():
			}
		}()
		return w.checker.Check(checkCtx)
	})
	if errors.Is(err, deadline.ErrTimedOut) {
		err = fmt.Errorf("%w: no answer within %s", domain.ErrUnhealthy, w.probe.Timeout)
	}
	w.record(ctx, err)
	return err
}

func (w *Watchdog) record(ctx context.Context, err error) {
	w.mu.Lock()
	now := w.now()
	if w.started.IsZero() {
		w.started = now
	}
	previous := w.state.Status
	w.state.Checks++
	w.state.LastCheck = now
	if err == nil {
		w.state.Status = domain.HealthHealthy
		w.state.FailingStreak = 0
		w.state.LastError = ""
	} else {
		w.state.LastError = err.Error()
		// failures while the service boots are not held against it
		if now.Sub(w.started) >= w.probe.StartPeriod {
			w.state.FailingStreak++
			if w.state.FailingStreak >= w.probe.Retries {
				w.state.Status = domain.HealthUnhealthy
			}
		}
	}
	state := w.state
	onChange := w.onChange
	w.mu.Unlock()

	if state.Status != previous {
		logger.L().Ctx(ctx).Info("health status changed",
			helpers.String("from", string(previous)),
			helpers.String("to", string(state.Status)),
			helpers.Int("failingStreak", state.FailingStreak))
		trace.SpanFromContext(ctx).AddEvent("health status changed", trace.WithAttributes(
			attribute.String("from", string(previous)),
			attribute.String("to", string(state.Status))))
		if onChange != nil {
			onChange(state)
		}
	}
}

// State returns a snapshot; it never waits on a running check
func (w *Watchdog) State() domain.HealthState {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}
