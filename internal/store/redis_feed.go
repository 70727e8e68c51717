package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	feedMaxLen    = 100_000
	feedBlock     = 5 * time.Second
	feedBatchSize = 32
)

// RedisFeed carries events over a Redis stream read through a consumer
// group, so each event goes to one subscriber across all replicas.
// Unacknowledged events stay pending in the group.
type RedisFeed struct {
	client   *redis.Client
	stream   string
	group    string
	consumer string
}

// NewRedisFeed creates a feed on stream prefix+":events" with consumer
// group prefix+":triggers".
func NewRedisFeed(client *redis.Client, prefix string) *RedisFeed {
	return &RedisFeed{
		client:   client,
		stream:   prefix + ":events",
		group:    prefix + ":triggers",
		consumer: uuid.NewString(),
	}
}

type streamEvent struct {
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value"`
}

// Publish appends ev to the stream.
func (f *RedisFeed) Publish(ctx context.Context, ev Event) error {
	value, err := json.Marshal(ev.Value)
	if err != nil {
		return err
	}
	data, err := json.Marshal(streamEvent{Path: ev.Path, Value: value})
	if err != nil {
		return err
	}

	return f.client.XAdd(ctx, &redis.XAddArgs{
		Stream: f.stream,
		MaxLen: feedMaxLen,
		Approx: true,
		Values: map[string]any{"event": string(data)},
	}).Err()
}

// Subscribe joins the consumer group and streams new events until ctx is done.
func (f *RedisFeed) Subscribe(ctx context.Context) (<-chan Event, error) {
	err := f.client.XGroupCreateMkStream(ctx, f.stream, f.group, "$").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return nil, err
	}

	out := make(chan Event, feedBatchSize)
	go func() {
		defer close(out)
		for ctx.Err() == nil {
			streams, err := f.client.XReadGroup(ctx, &redis.XReadGroupArgs{
				Group:    f.group,
				Consumer: f.consumer,
				Streams:  []string{f.stream, ">"},
				Count:    feedBatchSize,
				Block:    feedBlock,
			}).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}
				if ctx.Err() != nil {
					return
				}
				select {
				case <-time.After(time.Second):
				case <-ctx.Done():
					return
				}
				continue
			}

			for _, s := range streams {
				for _, msg := range s.Messages {
					ev, ok := f.decode(msg)
					if !ok {
						// Unreadable entries would stay pending forever.
						f.client.XAck(ctx, f.stream, f.group, msg.ID)
						continue
					}
					select {
					case out <- ev:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return out, nil
}

func (f *RedisFeed) decode(msg redis.XMessage) (Event, bool) {
	raw, ok := msg.Values["event"].(string)
	if !ok {
		return Event{}, false
	}
	var se streamEvent
	if err := json.Unmarshal([]byte(raw), &se); err != nil {
		return Event{}, false
	}
	value, err := decodeJSON(se.Value)
	if err != nil {
		return Event{}, false
	}

	id := msg.ID
	return NewEvent(id, se.Path, value, func(ctx context.Context) error {
		return f.client.XAck(ctx, f.stream, f.group, id).Err()
	}), true
}
