package store

import (
	"context"
	"time"

	"github.com/kperson/fire-sync/internal/metrics"
)

// instrumented records latency and failures of every operation on the
// wrapped store, labelled with the backend name.
type instrumented struct {
	Store
	backend string
}

// Instrument wraps s with Prometheus metrics.
func Instrument(s Store, backend string) Store {
	return &instrumented{Store: s, backend: backend}
}

func (i *instrumented) observe(op string, start time.Time, err error) {
	metrics.StoreLatency.WithLabelValues(i.backend, op).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.StoreErrors.WithLabelValues(i.backend, op).Inc()
	}
}

func (i *instrumented) Get(ctx context.Context, path string) (v any, err error) {
	defer func(start time.Time) { i.observe("get", start, err) }(time.Now())
	return i.Store.Get(ctx, path)
}

func (i *instrumented) Set(ctx context.Context, path string, value any) (err error) {
	defer func(start time.Time) { i.observe("set", start, err) }(time.Now())
	return i.Store.Set(ctx, path, value)
}

func (i *instrumented) Push(ctx context.Context, path string, value any) (key string, err error) {
	defer func(start time.Time) { i.observe("push", start, err) }(time.Now())
	return i.Store.Push(ctx, path, value)
}

func (i *instrumented) Remove(ctx context.Context, path string) (err error) {
	defer func(start time.Time) { i.observe("remove", start, err) }(time.Now())
	return i.Store.Remove(ctx, path)
}

func (i *instrumented) Exists(ctx context.Context, path string) (ok bool, err error) {
	defer func(start time.Time) { i.observe("exists", start, err) }(time.Now())
	return i.Store.Exists(ctx, path)
}
