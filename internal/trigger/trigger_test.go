package trigger

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kperson/fire-sync/internal/store"
)

func TestParsePattern(t *testing.T) {
	p, err := ParsePattern("/{namespace}/groups/{groupId}/messages/{messageId}/")
	require.NoError(t, err)
	assert.Equal(t, "{namespace}/groups/{groupId}/messages/{messageId}", p.String())

	bad := []string{"", "/", "a/{}/b", "{x}/{x}", "a/b.c"}
	for _, s := range bad {
		_, err := ParsePattern(s)
		assert.Error(t, err, s)
	}
}

func TestPatternMatch(t *testing.T) {
	p, err := ParsePattern("{namespace}/groups/{groupId}/messages/{messageId}")
	require.NoError(t, err)

	params, ok := p.Match("acme/groups/g1/messages/01J")
	require.True(t, ok)
	assert.Equal(t, Params{"namespace": "acme", "groupId": "g1", "messageId": "01J"}, params)

	noMatch := []string{
		"acme/groups/g1/messages",
		"acme/groups/g1/messages/01J/extra",
		"acme/members/g1/messages/01J",
		"",
	}
	for _, path := range noMatch {
		_, ok := p.Match(path)
		assert.False(t, ok, path)
	}
}

func newTestDispatcher() *Dispatcher {
	return NewDispatcher(zerolog.Nop(), time.Second)
}

func eventWithAck(path string, ack func(context.Context) error) store.Event {
	return store.NewEvent("", path, nil, ack)
}

func ackCounter(n *atomic.Int32) func(context.Context) error {
	return func(context.Context) error {
		n.Add(1)
		return nil
	}
}

func TestDispatcherRoutesByPattern(t *testing.T) {
	d := newTestDispatcher()

	var mu sync.Mutex
	calls := map[string]Params{}
	record := func(name string) HandlerFunc {
		return func(ctx context.Context, params Params, value any) error {
			mu.Lock()
			calls[name] = params
			mu.Unlock()
			return nil
		}
	}
	require.NoError(t, d.OnCreate("group", "{ns}/groups/{groupId}/messages/{messageId}", record("group")))
	require.NoError(t, d.OnCreate("member", "{ns}/members/{memberId}/queue/{messageId}", record("member")))

	var acks atomic.Int32
	d.Dispatch(context.Background(), store.Event{Path: "acme/members/bob/queue/k1", Value: "hi"})
	d.Dispatch(context.Background(), eventWithAck("acme/groups/g1/messages/k2", ackCounter(&acks)))
	d.Wait()

	assert.Equal(t, Params{"ns": "acme", "memberId": "bob", "messageId": "k1"}, calls["member"])
	assert.Equal(t, Params{"ns": "acme", "groupId": "g1", "messageId": "k2"}, calls["group"])
	assert.Equal(t, int32(1), acks.Load())
}

func TestDispatcherAcksUnmatched(t *testing.T) {
	d := newTestDispatcher()
	var acks atomic.Int32
	d.Dispatch(context.Background(), eventWithAck("acme/tokens/t1", ackCounter(&acks)))
	d.Wait()
	assert.Equal(t, int32(1), acks.Load())
}

func TestDispatcherHoldsAckOnFailure(t *testing.T) {
	d := newTestDispatcher()
	require.NoError(t, d.OnCreate("fails", "{ns}/q/{id}", func(ctx context.Context, params Params, value any) error {
		return errors.New("boom")
	}))
	require.NoError(t, d.OnCreate("panics", "{ns}/p/{id}", func(ctx context.Context, params Params, value any) error {
		panic("boom")
	}))

	var acks atomic.Int32
	d.Dispatch(context.Background(), eventWithAck("acme/q/1", ackCounter(&acks)))
	d.Dispatch(context.Background(), eventWithAck("acme/p/1", ackCounter(&acks)))
	d.Wait()
	assert.Zero(t, acks.Load())
}

func TestDispatcherTimeout(t *testing.T) {
	d := NewDispatcher(zerolog.Nop(), 20*time.Millisecond)
	var ctxErr error
	require.NoError(t, d.OnCreate("slow", "{ns}/q/{id}", func(ctx context.Context, params Params, value any) error {
		<-ctx.Done()
		ctxErr = ctx.Err()
		return ctxErr
	}))

	d.Dispatch(context.Background(), store.Event{Path: "acme/q/1"})
	d.Wait()
	assert.ErrorIs(t, ctxErr, context.DeadlineExceeded)
}

func TestDispatcherRunFinishesInflight(t *testing.T) {
	d := newTestDispatcher()
	started := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool
	require.NoError(t, d.OnCreate("slow", "{ns}/q/{id}", func(ctx context.Context, params Params, value any) error {
		close(started)
		<-release
		// The invocation context survives the dispatch loop's cancellation.
		if ctx.Err() == nil {
			finished.Store(true)
		}
		return nil
	}))

	events := make(chan store.Event, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx, events)
		close(done)
	}()

	events <- store.Event{Path: "acme/q/1"}
	<-started
	cancel()

	select {
	case <-done:
		t.Fatal("Run returned before the invocation finished")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
	assert.True(t, finished.Load())
}
