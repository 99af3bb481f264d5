// Package adminclient is the HTTP client the CLI and agent console use
// against the runtime API.
package adminclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/destekhq/runtime/internal/agentqueue"
	"github.com/destekhq/runtime/internal/chat"
	"github.com/destekhq/runtime/internal/pipeline"
	"github.com/destekhq/runtime/internal/store"
)

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout < time.Second {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type QueueSnapshot struct {
	Pending []agentqueue.Entry `json:"pending"`
	Active  []agentqueue.Entry `json:"active"`
}

func (c *Client) Queue(ctx context.Context) (QueueSnapshot, error) {
	var snapshot QueueSnapshot
	err := c.get(ctx, "/api/v1/agents/queue", &snapshot)
	return snapshot, err
}

func (c *Client) Claim(ctx context.Context, sessionID, agentID string) error {
	return c.post(ctx, "/api/v1/agents/claim", map[string]string{
		"sessionId": sessionID,
		"agentId":   agentID,
	}, nil)
}

func (c *Client) Release(ctx context.Context, sessionID string) error {
	return c.post(ctx, "/api/v1/agents/release", map[string]string{
		"sessionId": sessionID,
	}, nil)
}

// Chat sends one turn with the full transcript and returns the pipeline
// response.
func (c *Client) Chat(ctx context.Context, sessionID string, messages []chat.Message) (pipeline.Response, error) {
	var response pipeline.Response
	err := c.post(ctx, "/api/v1/chat", map[string]any{
		"sessionId": sessionID,
		"channel":   chat.ChannelWeb,
		"messages":  messages,
	}, &response)
	return response, err
}

func (c *Client) Tickets(ctx context.Context, limit int) ([]store.Ticket, error) {
	var payload struct {
		Tickets []store.Ticket `json:"tickets"`
	}
	err := c.get(ctx, fmt.Sprintf("/api/v1/tickets?limit=%d", limit), &payload)
	return payload.Tickets, err
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.doJSON(req, out)
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.doJSON(req, out)
}

func (c *Client) doJSON(req *http.Request, out any) error {
	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		var failure struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(res.Body).Decode(&failure); err == nil && failure.Error != "" {
			return fmt.Errorf("api %s: %s", res.Status, failure.Error)
		}
		return fmt.Errorf("api returned status %d", res.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(out)
}
