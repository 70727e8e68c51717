package store

import (
	"context"
	"fmt"
	"sync"
)

// Event reports that a node was created at Path holding Value.
type Event struct {
	ID    string
	Path  string
	Value any

	ack func(ctx context.Context) error
}

// NewEvent creates an event whose Ack calls ack. ack may be nil.
func NewEvent(id, path string, value any, ack func(ctx context.Context) error) Event {
	return Event{ID: id, Path: path, Value: value, ack: ack}
}

// Ack marks the event as handled. Feeds without delivery tracking ignore it.
func (e Event) Ack(ctx context.Context) error {
	if e.ack == nil {
		return nil
	}
	return e.ack(ctx)
}

// Feed carries change events from writers to subscribers.
type Feed interface {
	Publish(ctx context.Context, ev Event) error
	// Subscribe returns a channel of events that is closed once ctx is done.
	Subscribe(ctx context.Context) (<-chan Event, error)
}

type subscription struct {
	ch   chan Event
	done chan struct{}
}

// MemoryFeed broadcasts events to every in-process subscriber. Events
// published while nobody is subscribed are dropped.
type MemoryFeed struct {
	mu   sync.RWMutex
	subs map[*subscription]struct{}
}

// NewMemoryFeed creates an in-process feed.
func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{subs: make(map[*subscription]struct{})}
}

// Publish delivers ev to every subscriber, blocking while their buffers are full.
func (f *MemoryFeed) Publish(ctx context.Context, ev Event) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for sub := range f.subs {
		select {
		case sub.ch <- ev:
		case <-sub.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Subscribe registers a subscriber until ctx is done.
func (f *MemoryFeed) Subscribe(ctx context.Context) (<-chan Event, error) {
	sub := &subscription{
		ch:   make(chan Event, 256),
		done: make(chan struct{}),
	}

	f.mu.Lock()
	f.subs[sub] = struct{}{}
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		// Release blocked publishers before taking the write lock.
		close(sub.done)
		f.mu.Lock()
		delete(f.subs, sub)
		close(sub.ch)
		f.mu.Unlock()
	}()

	return sub.ch, nil
}

// notifyingStore publishes an Event on feed whenever a write creates a node.
type notifyingStore struct {
	Store
	feed Feed
}

// Notify wraps s so that Push, and Set on a path that held nothing, emit a
// creation event on feed after the write succeeds. Removals and overwrites
// are silent.
func Notify(s Store, feed Feed) Store {
	return &notifyingStore{Store: s, feed: feed}
}

func (n *notifyingStore) Set(ctx context.Context, path string, value any) error {
	existed, err := n.Store.Exists(ctx, path)
	if err != nil {
		return err
	}
	if err := n.Store.Set(ctx, path, value); err != nil {
		return err
	}
	if existed {
		return nil
	}
	return n.publish(ctx, path, value)
}

func (n *notifyingStore) Push(ctx context.Context, path string, value any) (string, error) {
	key, err := n.Store.Push(ctx, path, value)
	if err != nil {
		return "", err
	}
	return key, n.publish(ctx, Join(path, key), value)
}

func (n *notifyingStore) publish(ctx context.Context, path string, value any) error {
	leaves, err := flatten(path, value)
	if err != nil {
		return err
	}
	if len(leaves) == 0 {
		return nil
	}
	generic, err := Normalize(value)
	if err != nil {
		return err
	}
	if err := n.feed.Publish(ctx, Event{Path: Join(path), Value: generic}); err != nil {
		return fmt.Errorf("publish %s: %w", path, err)
	}
	return nil
}
