package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func subscribe(t *testing.T, feed Feed) <-chan Event {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	events, err := feed.Subscribe(ctx)
	require.NoError(t, err)
	return events
}

func receive(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("no event received")
		return Event{}
	}
}

func assertNoEvent(t *testing.T, events <-chan Event) {
	t.Helper()
	select {
	case ev := <-events:
		t.Fatalf("unexpected event at %s", ev.Path)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryFeedBroadcasts(t *testing.T) {
	feed := NewMemoryFeed()
	a := subscribe(t, feed)
	b := subscribe(t, feed)

	require.NoError(t, feed.Publish(context.Background(), Event{Path: "x/y", Value: "v"}))

	assert.Equal(t, "x/y", receive(t, a).Path)
	assert.Equal(t, "x/y", receive(t, b).Path)
}

func TestMemoryFeedClosesOnCancel(t *testing.T) {
	feed := NewMemoryFeed()
	ctx, cancel := context.WithCancel(context.Background())
	events, err := feed.Subscribe(ctx)
	require.NoError(t, err)

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-events:
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)

	// Publishing with no subscribers drops the event.
	assert.NoError(t, feed.Publish(context.Background(), Event{Path: "x"}))
}

func TestNotifyPush(t *testing.T) {
	ctx := context.Background()
	feed := NewMemoryFeed()
	events := subscribe(t, feed)
	s := Notify(NewMemoryStore(), feed)

	key, err := s.Push(ctx, "ns/groups/g1/messages", map[string]any{"text": "hi"})
	require.NoError(t, err)

	ev := receive(t, events)
	assert.Equal(t, "ns/groups/g1/messages/"+key, ev.Path)
	assert.Equal(t, map[string]any{"text": "hi"}, ev.Value)
}

func TestNotifySetOnlyOnCreate(t *testing.T) {
	ctx := context.Background()
	feed := NewMemoryFeed()
	events := subscribe(t, feed)
	s := Notify(NewMemoryStore(), feed)

	require.NoError(t, s.Set(ctx, "ns/tokens/t1", true))
	assert.Equal(t, "ns/tokens/t1", receive(t, events).Path)

	// Overwrite is silent.
	require.NoError(t, s.Set(ctx, "ns/tokens/t1", true))
	assertNoEvent(t, events)

	// Removal is silent, and a write of nothing creates nothing.
	require.NoError(t, s.Remove(ctx, "ns/tokens/t1"))
	require.NoError(t, s.Set(ctx, "ns/tokens/t2", map[string]any{}))
	assertNoEvent(t, events)
}

type failingStore struct {
	Store
	err error
}

func (f *failingStore) Push(ctx context.Context, path string, value any) (string, error) {
	return "", f.err
}

func TestNotifySkipsFailedWrites(t *testing.T) {
	feed := NewMemoryFeed()
	events := subscribe(t, feed)
	boom := errors.New("boom")
	s := Notify(&failingStore{Store: NewMemoryStore(), err: boom}, feed)

	_, err := s.Push(context.Background(), "ns/q", 1)
	assert.ErrorIs(t, err, boom)
	assertNoEvent(t, events)
}

func TestRedisFeed(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	client, err := NewRedisClient(ctx, url)
	require.NoError(t, err)
	defer client.Close()

	prefix := "firesync-test:" + NewPushKey()
	defer client.Del(ctx, prefix+":events")

	feed := NewRedisFeed(client, prefix)
	events := subscribe(t, feed)

	require.NoError(t, feed.Publish(ctx, Event{Path: "ns/q/1", Value: map[string]any{"n": 1}}))
	ev := receive(t, events)
	assert.Equal(t, "ns/q/1", ev.Path)
	assert.NotEmpty(t, ev.ID)
	require.NoError(t, ev.Ack(ctx))

	pending, err := client.XPending(ctx, prefix+":events", prefix+":triggers").Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count)
}
