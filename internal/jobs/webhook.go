package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/destekhq/runtime/internal/store"
)

// WebhookSender delivers escalation payloads to the external handoff
// endpoint. Retrying is the queue's job, so a non-2xx here is just an
// error for the worker to record.
type WebhookSender struct {
	endpoint   string
	authToken  string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewWebhookSender(endpoint, authToken string, timeout time.Duration, logger *slog.Logger) *WebhookSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookSender{
		endpoint:   endpoint,
		authToken:  authToken,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With("component", "handoff-webhook"),
	}
}

// Handle is the job handler for escalation deliveries: it forwards the
// job payload as JSON and treats any non-2xx as a failed attempt.
func (s *WebhookSender) Handle(ctx context.Context, job store.Job) error {
	if strings.TrimSpace(s.endpoint) == "" {
		s.logger.Debug("no handoff endpoint configured, skipping delivery", "job", job.ID)
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(job.Payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.authToken)
	}

	res, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deliver handoff webhook: %w", err)
	}
	defer res.Body.Close()
	io.Copy(io.Discard, io.LimitReader(res.Body, 1<<20))

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("handoff webhook returned status %d", res.StatusCode)
	}
	return nil
}

// DecodePayload unpacks a job payload into a map for handlers that only
// need a couple of fields.
func DecodePayload(job store.Job) (map[string]any, error) {
	payload := map[string]any{}
	if len(job.Payload) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, fmt.Errorf("decode payload of job %s: %w", job.ID, err)
	}
	return payload, nil
}
