package trigger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kperson/fire-sync/internal/metrics"
	"github.com/kperson/fire-sync/internal/store"
)

// HandlerFunc reacts to a node created at a path matching its pattern.
type HandlerFunc func(ctx context.Context, params Params, value any) error

type route struct {
	name    string
	pattern Pattern
	handler HandlerFunc
}

// Dispatcher runs every handler whose pattern matches an incoming event.
// Each invocation gets its own goroutine and timeout; invocations share
// nothing but the store.
type Dispatcher struct {
	logger  zerolog.Logger
	timeout time.Duration

	mu       sync.RWMutex
	routes   []route
	inflight sync.WaitGroup
}

// NewDispatcher creates a dispatcher whose invocations are cancelled after timeout.
func NewDispatcher(logger zerolog.Logger, timeout time.Duration) *Dispatcher {
	return &Dispatcher{
		logger:  logger.With().Str("component", "trigger").Logger(),
		timeout: timeout,
	}
}

// OnCreate registers handler under name for nodes created at pattern.
func (d *Dispatcher) OnCreate(name, pattern string, handler HandlerFunc) error {
	p, err := ParsePattern(pattern)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.routes = append(d.routes, route{name: name, pattern: p, handler: handler})
	d.mu.Unlock()
	return nil
}

// Run dispatches events until ctx is done or events is closed, then waits
// for in-flight invocations to finish.
func (d *Dispatcher) Run(ctx context.Context, events <-chan store.Event) {
	defer d.inflight.Wait()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			d.Dispatch(ctx, ev)
		}
	}
}

// Dispatch starts the handlers matching ev and returns without waiting.
// The event is acknowledged once every matching handler succeeds.
func (d *Dispatcher) Dispatch(ctx context.Context, ev store.Event) {
	d.mu.RLock()
	var matched []route
	var params []Params
	for _, r := range d.routes {
		if p, ok := r.pattern.Match(ev.Path); ok {
			matched = append(matched, r)
			params = append(params, p)
		}
	}
	d.mu.RUnlock()

	if len(matched) == 0 {
		if err := ev.Ack(ctx); err != nil {
			d.logger.Warn().Err(err).Str("path", ev.Path).Msg("ack failed")
		}
		return
	}

	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()

		// Invocations outlive the dispatch loop: a shutdown waits for them
		// instead of cutting them off.
		invokeCtx := context.WithoutCancel(ctx)

		ok := true
		for i, r := range matched {
			if err := d.invoke(invokeCtx, r, params[i], ev); err != nil {
				ok = false
			}
		}
		if ok {
			if err := ev.Ack(invokeCtx); err != nil {
				d.logger.Warn().Err(err).Str("path", ev.Path).Msg("ack failed")
			}
		}
	}()
}

// Wait blocks until every started invocation has returned.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}

func (d *Dispatcher) invoke(ctx context.Context, r route, params Params, ev store.Event) (err error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	outcome := "ok"
	defer func() {
		if rec := recover(); rec != nil {
			outcome = "panic"
			err = fmt.Errorf("trigger %s panicked: %v", r.name, rec)
		}
		metrics.TriggerInvocations.WithLabelValues(r.name, outcome).Inc()
		metrics.TriggerDuration.WithLabelValues(r.name).Observe(time.Since(start).Seconds())

		if err != nil {
			d.logger.Error().
				Err(err).
				Str("trigger", r.name).
				Str("path", ev.Path).
				Interface("params", params).
				Msg("trigger failed")
			return
		}
		d.logger.Debug().
			Str("trigger", r.name).
			Str("path", ev.Path).
			Dur("latency", time.Since(start)).
			Msg("trigger completed")
	}()

	if err := r.handler(ctx, params, ev.Value); err != nil {
		outcome = "error"
		return err
	}
	return nil
}
