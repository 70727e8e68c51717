// Package relay moves messages from where they are posted to the inboxes
// of the members they are meant for.
//
// A message pushed to a group's messages list is copied into the messages
// list of every member of the group and then removed from the group. A
// message pushed to a member's queue is copied into that member's messages
// list and then removed from the queue. Both run as store triggers, after
// the HTTP request that posted the message has already returned.
//
// Copy and delete are separate store operations. If any copy fails the
// source is left in place, so a failure can leave a message delivered to
// some members and still pending in the group, but never lost.
package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/kperson/fire-sync/internal/metrics"
	"github.com/kperson/fire-sync/internal/models"
	"github.com/kperson/fire-sync/internal/store"
	"github.com/kperson/fire-sync/internal/trigger"
)

const defaultConcurrency = 16

// Relay implements the fan-out and drain pipelines on top of a store.
type Relay struct {
	store       store.Store
	logger      zerolog.Logger
	concurrency int
	now         func() time.Time
}

// Option configures a Relay.
type Option func(*Relay)

// WithConcurrency bounds the member writes a single fan-out has in flight.
func WithConcurrency(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithClock replaces the wall clock used for createdAt stamps.
func WithClock(now func() time.Time) Option {
	return func(r *Relay) {
		r.now = now
	}
}

// New creates a Relay over s.
func New(s store.Store, logger zerolog.Logger, opts ...Option) *Relay {
	r := &Relay{
		store:       s,
		logger:      logger.With().Str("component", "relay").Logger(),
		concurrency: defaultConcurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register installs the fan-out and drain handlers on d.
func (r *Relay) Register(d *trigger.Dispatcher) error {
	if err := d.OnCreate("sendGroupMessage", GroupMessagePattern, r.FanOut); err != nil {
		return err
	}
	return d.OnCreate("addToPersonalMessage", MemberQueuePattern, r.Drain)
}

// Now returns the current time in Unix seconds.
func (r *Relay) Now() int64 {
	return r.now().Unix()
}

// FetchGroup loads a group. It returns nil if nothing is stored at the
// group's path. A group without members has an empty, non-nil Members map.
func (r *Relay) FetchGroup(ctx context.Context, ns, groupID string) (*models.Group, error) {
	raw, err := r.store.Get(ctx, GroupPath(ns, groupID))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	group := &models.Group{GroupID: groupID, Members: map[string]models.Member{}}
	fields, ok := raw.(map[string]any)
	if !ok {
		return group, nil
	}
	if members, ok := fields["members"].(map[string]any); ok {
		for id, m := range members {
			var member models.Member
			// Malformed entries still count as members.
			if err := store.Decode(m, &member); err != nil {
				r.logger.Warn().
					Err(err).
					Str("namespace", ns).
					Str("group_id", groupID).
					Str("member_id", id).
					Msg("malformed member entry")
			}
			group.Members[id] = member
		}
	}
	return group, nil
}

// DeliverToMember appends message to a member's inbox, stamped with the
// current time and, for group messages, the originating group.
func (r *Relay) DeliverToMember(ctx context.Context, ns, memberID string, message any, groupID string) (string, error) {
	msg := models.Message{
		Message:   message,
		CreatedAt: r.Now(),
		GroupID:   groupID,
	}
	return r.store.Push(ctx, MemberMessagesPath(ns, memberID), msg)
}

// FanOut copies a newly posted group message to every member of the group
// and then removes it from the group.
func (r *Relay) FanOut(ctx context.Context, params trigger.Params, value any) error {
	ns, groupID, messageID := params["namespace"], params["groupId"], params["messageId"]

	group, err := r.FetchGroup(ctx, ns, groupID)
	if err != nil {
		return fmt.Errorf("fetch group %s: %w", groupID, err)
	}
	var memberIDs []string
	if group != nil {
		memberIDs = group.MemberIDs()
	}

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for _, memberID := range memberIDs {
		memberID := memberID
		g.Go(func() error {
			if _, err := r.DeliverToMember(ctx, ns, memberID, value, groupID); err != nil {
				return fmt.Errorf("deliver to %s: %w", memberID, err)
			}
			metrics.MessagesFannedOut.Inc()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		metrics.FanoutFailures.Inc()
		return fmt.Errorf("fan out %s/%s: %w", groupID, messageID, err)
	}

	if err := r.store.Remove(ctx, store.Join(GroupMessagesPath(ns, groupID), messageID)); err != nil {
		return fmt.Errorf("remove group message %s: %w", messageID, err)
	}

	r.logger.Debug().
		Str("namespace", ns).
		Str("group_id", groupID).
		Str("message_id", messageID).
		Int("members", len(memberIDs)).
		Msg("group message fanned out")
	return nil
}

// Drain moves a message from a member's queue into the member's inbox.
func (r *Relay) Drain(ctx context.Context, params trigger.Params, value any) error {
	ns, memberID, messageID := params["namespace"], params["memberId"], params["messageId"]

	if _, err := r.DeliverToMember(ctx, ns, memberID, value, ""); err != nil {
		return fmt.Errorf("deliver to %s: %w", memberID, err)
	}
	metrics.MessagesDrained.Inc()

	if err := r.store.Remove(ctx, store.Join(MemberQueuePath(ns, memberID), messageID)); err != nil {
		return fmt.Errorf("remove queued message %s: %w", messageID, err)
	}
	return nil
}
