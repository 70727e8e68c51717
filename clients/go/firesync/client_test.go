package firesync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kperson/fire-sync/internal/api"
	"github.com/kperson/fire-sync/internal/crypto"
	"github.com/kperson/fire-sync/internal/identity"
	"github.com/kperson/fire-sync/internal/relay"
	"github.com/kperson/fire-sync/internal/store"
	"github.com/kperson/fire-sync/internal/trigger"
)

func newServer(t *testing.T) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	feed := store.NewMemoryFeed()
	s := store.Notify(store.NewMemoryStore(), feed)
	key, err := crypto.GenerateSigningKey()
	require.NoError(t, err)
	issuer, err := identity.NewJWTIssuer(key, "fire-sync", time.Hour)
	require.NoError(t, err)

	rl := relay.New(s, zerolog.Nop())
	d := trigger.NewDispatcher(zerolog.Nop(), 5*time.Second)
	require.NoError(t, rl.Register(d))
	events, err := feed.Subscribe(ctx)
	require.NoError(t, err)
	go d.Run(ctx, events)

	srv := httptest.NewServer(api.NewRouter(zerolog.Nop(), api.Options{Store: s, Relay: rl, Issuer: issuer}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		d.Wait()
	})
	return srv.URL
}

func TestClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewClient(newServer(t), "acme", "")

	health, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)

	group, err := c.CreateGroup(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "g1", group.GroupID)

	createdAt, err := c.AddMember(ctx, "g1", "alice")
	require.NoError(t, err)
	assert.NotZero(t, createdAt)

	group, err = c.GetGroup(ctx, "g1")
	require.NoError(t, err)
	assert.Contains(t, group.Members, "alice")

	id, err := c.PostGroupMessage(ctx, "g1", map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	_, err = c.PostMemberMessage(ctx, "alice", "direct")
	require.NoError(t, err)

	var messages map[string]InboxMessage
	require.Eventually(t, func() bool {
		messages, err = c.GetMemberMessages(ctx, "alice")
		return err == nil && len(messages) == 2
	}, 2*time.Second, 10*time.Millisecond)

	var fromGroup, direct int
	for msgID, msg := range messages {
		if msg.GroupID == "g1" {
			fromGroup++
			assert.JSONEq(t, `{"text":"hi"}`, string(msg.Message))
		} else {
			direct++
			assert.JSONEq(t, `"direct"`, string(msg.Message))
		}
		require.NoError(t, c.DeleteMemberMessage(ctx, "alice", msgID))
	}
	assert.Equal(t, 1, fromGroup)
	assert.Equal(t, 1, direct)

	messages, err = c.GetMemberMessages(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, messages)

	require.NoError(t, c.RemoveMember(ctx, "g1", "alice"))
	require.NoError(t, c.DeleteGroup(ctx, "g1"))

	_, err = c.GetGroup(ctx, "g1")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "group not found", apiErr.Message)
}

func TestClientTokens(t *testing.T) {
	ctx := context.Background()
	url := newServer(t)
	admin := NewClient(url, "acme", "")

	require.NoError(t, admin.CreateToken(ctx, "secret"))

	_, err := admin.CreateGroup(ctx, "g1")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)

	authed := NewClient(url, "acme", "secret")
	_, err = authed.CreateGroup(ctx, "g1")
	require.NoError(t, err)

	token, err := authed.IssueMemberToken(ctx, "alice")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	member := NewClient(url, "acme", "")
	member.MemberCredential = token
	messages, err := member.GetMemberMessages(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, messages)
	_, err = member.GetMemberMessages(ctx, "bob")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)

	require.NoError(t, authed.DeleteToken(ctx, "secret"))
	_, err = admin.GetGroup(ctx, "g1")
	assert.NoError(t, err)
}

func TestClientState(t *testing.T) {
	ctx := context.Background()
	c := NewClient(newServer(t), "acme", "")

	require.NoError(t, c.SetState(ctx, "g1", "board/title", "Plans"))
	id, err := c.PushState(ctx, "g1", "board/items", map[string]int{"n": 1}, "first")
	require.NoError(t, err)
	assert.Equal(t, "first", id)
	id, err = c.PushState(ctx, "g1", "board/items", map[string]int{"n": 2}, "")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	var board struct {
		Title string                    `json:"title"`
		Items map[string]map[string]int `json:"items"`
	}
	require.NoError(t, c.GetState(ctx, "g1", "board", &board))
	assert.Equal(t, "Plans", board.Title)
	assert.Equal(t, map[string]int{"n": 1}, board.Items["first"])
	assert.Equal(t, map[string]int{"n": 2}, board.Items[id])

	var missing json.RawMessage
	require.NoError(t, c.GetState(ctx, "g1", "nothing", &missing))
	assert.Equal(t, "null", string(missing))
}
