// Package firesync provides a client for the fire-sync messaging relay API.
package firesync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Header names understood by the server.
const (
	NamespaceHeader = "X-Namespace"
	TokenHeader     = "X-Token"
)

// Client is a fire-sync API client bound to one namespace.
type Client struct {
	BaseURL   string
	Namespace string
	Token     string
	// MemberCredential, when set, is sent as a bearer credential. It is
	// accepted only on the inbox of the member it was issued for.
	MemberCredential string
	HTTPClient       *http.Client
}

// NewClient creates a new client for namespace. token may be empty for
// namespaces that have no tokens yet.
func NewClient(baseURL, namespace, token string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return &Client{
		BaseURL:    baseURL,
		Namespace:  namespace,
		Token:      token,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is returned for any response with a status of 400 or above.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("fire-sync error %d: %s", e.StatusCode, e.Message)
}

// do performs an HTTP request and decodes the JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Namespace != "" {
		req.Header.Set(NamespaceHeader, c.Namespace)
	}
	if c.Token != "" {
		req.Header.Set(TokenHeader, c.Token)
	}
	if c.MemberCredential != "" {
		req.Header.Set("Authorization", "Bearer "+c.MemberCredential)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(respBody, &errResp)
		msg := errResp.Error
		if msg == "" {
			msg = errResp.Message
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

func escape(id string) string {
	return url.PathEscape(id)
}

// HealthResponse is the server health report.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Checks  map[string]struct {
		Status  string `json:"status"`
		Latency string `json:"latency,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"checks"`
}

// Health checks server health. A degraded server is reported as an APIError.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateToken registers an access token for the namespace.
func (c *Client) CreateToken(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, "/admin/token", map[string]string{"token": token}, nil)
}

// DeleteToken revokes an access token.
func (c *Client) DeleteToken(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodDelete, "/admin/token/"+escape(token), nil, nil)
}

// Member is a group membership.
type Member struct {
	CreatedAt int64 `json:"createdAt"`
}

// Group is a group and its members.
type Group struct {
	GroupID string            `json:"groupId"`
	Members map[string]Member `json:"members"`
}

// CreateGroup creates, or resets, a group.
func (c *Client) CreateGroup(ctx context.Context, groupID string) (*Group, error) {
	var resp Group
	if err := c.do(ctx, http.MethodPost, "/group", map[string]string{"groupId": groupID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetGroup fetches a group.
func (c *Client) GetGroup(ctx context.Context, groupID string) (*Group, error) {
	var resp Group
	if err := c.do(ctx, http.MethodGet, "/group/"+escape(groupID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteGroup deletes a group with its members and state.
func (c *Client) DeleteGroup(ctx context.Context, groupID string) error {
	return c.do(ctx, http.MethodDelete, "/group/"+escape(groupID), nil, nil)
}

// AddMember adds a member to a group and returns its createdAt.
func (c *Client) AddMember(ctx context.Context, groupID, memberID string) (int64, error) {
	var resp struct {
		CreatedAt int64 `json:"createdAt"`
	}
	path := "/group/" + escape(groupID) + "/member"
	if err := c.do(ctx, http.MethodPost, path, map[string]string{"memberId": memberID}, &resp); err != nil {
		return 0, err
	}
	return resp.CreatedAt, nil
}

// RemoveMember removes a member from a group.
func (c *Client) RemoveMember(ctx context.Context, groupID, memberID string) error {
	return c.do(ctx, http.MethodDelete, "/group/"+escape(groupID)+"/member/"+escape(memberID), nil, nil)
}

type postMessageResponse struct {
	ID string `json:"id"`
}

// PostGroupMessage posts a message to every member of a group and returns
// its id.
func (c *Client) PostGroupMessage(ctx context.Context, groupID string, message any) (string, error) {
	var resp postMessageResponse
	path := "/group/" + escape(groupID) + "/message"
	if err := c.do(ctx, http.MethodPost, path, map[string]any{"message": message}, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// PostMemberMessage posts a message directly to one member and returns
// its queue id.
func (c *Client) PostMemberMessage(ctx context.Context, memberID string, message any) (string, error) {
	var resp postMessageResponse
	path := "/member/" + escape(memberID) + "/message"
	if err := c.do(ctx, http.MethodPost, path, map[string]any{"message": message}, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// IssueMemberToken mints a credential for a member.
func (c *Client) IssueMemberToken(ctx context.Context, memberID string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "/member/"+escape(memberID)+"/token", nil, &resp); err != nil {
		return "", err
	}
	return resp.Token, nil
}

// InboxMessage is a message delivered to a member.
type InboxMessage struct {
	Message   json.RawMessage `json:"message"`
	CreatedAt int64           `json:"createdAt"`
	GroupID   string          `json:"groupId,omitempty"`
}

// GetMemberMessages returns a member's inbox keyed by message id.
func (c *Client) GetMemberMessages(ctx context.Context, memberID string) (map[string]InboxMessage, error) {
	var resp struct {
		Messages map[string]InboxMessage `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, "/member/"+escape(memberID)+"/messages", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// DeleteMemberMessage removes a message from a member's inbox.
func (c *Client) DeleteMemberMessage(ctx context.Context, memberID, messageID string) error {
	return c.do(ctx, http.MethodDelete, "/member/"+escape(memberID)+"/messages/"+escape(messageID), nil, nil)
}

type stateRequest struct {
	Path    string  `json:"path"`
	Payload any     `json:"payload"`
	ID      *string `json:"id,omitempty"`
}

// SetState overwrites the group state at path.
func (c *Client) SetState(ctx context.Context, groupID, path string, payload any) error {
	return c.do(ctx, http.MethodPost, "/group/"+escape(groupID)+"/state/set",
		stateRequest{Path: path, Payload: payload}, nil)
}

// PushState appends payload under path in the group state and returns its
// key. A non-empty id is used as the key instead of a generated one.
func (c *Client) PushState(ctx context.Context, groupID, path string, payload any, id string) (string, error) {
	req := stateRequest{Path: path, Payload: payload}
	if id != "" {
		req.ID = &id
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/group/"+escape(groupID)+"/state/push", req, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// GetState reads the group state at path into out.
func (c *Client) GetState(ctx context.Context, groupID, path string, out any) error {
	var resp struct {
		State json.RawMessage `json:"state"`
	}
	q := url.Values{"path": []string{path}}
	if err := c.do(ctx, http.MethodGet, "/group/"+escape(groupID)+"/state?"+q.Encode(), nil, &resp); err != nil {
		return err
	}
	return json.Unmarshal(resp.State, out)
}
