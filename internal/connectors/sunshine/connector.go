// Package sunshine receives Sunshine Conversations webhooks and replies
// through the conversation messages endpoint.
package sunshine

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

	"github.com/destekhq/runtime/internal/chat"
	"github.com/destekhq/runtime/internal/connectors"
	"github.com/destekhq/runtime/internal/pipeline"
)

type Config struct {
	AppID     string
	KeyID     string
	KeySecret string
	APIBase   string
	Timeout   time.Duration
}

type Webhook struct {
	cfg        Config
	bot        connectors.Bot
	history    *connectors.History
	httpClient *http.Client
	logger     *slog.Logger
}

func New(cfg Config, bot connectors.Bot, logger *slog.Logger) *Webhook {
	if strings.TrimSpace(cfg.APIBase) == "" {
		cfg.APIBase = "https://api.smooch.io"
	}
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Webhook{
		cfg:        cfg,
		bot:        bot,
		history:    connectors.NewHistory(0),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With("component", "sunshine-connector"),
	}
}

func (h *Webhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var payload webhookPayload
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&payload); err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)

	for _, event := range payload.Events {
		if event.Type != "conversation:message" {
			continue
		}
		message := event.Payload.Message
		if message.Author.Type != "user" {
			continue
		}
		if err := h.handleMessage(r.Context(), event.Payload.Conversation.ID, message.Content.Text); err != nil {
			h.logger.Error("handle message failed", "error", err, "conversation", event.Payload.Conversation.ID)
		}
	}
}

func (h *Webhook) handleMessage(ctx context.Context, conversationID, text string) error {
	text = strings.TrimSpace(text)
	if conversationID == "" || text == "" {
		return nil
	}

	transcript := h.history.Append(conversationID, chat.Message{Role: chat.RoleUser, Content: text})
	response, err := h.bot.Handle(ctx, pipeline.Turn{
		SessionID: "sunshine:" + conversationID,
		Channel:   chat.ChannelSunshine,
		Messages:  transcript,
	})
	if err != nil {
		return fmt.Errorf("pipeline turn for conversation %s: %w", conversationID, err)
	}
	if strings.TrimSpace(response.Reply) == "" {
		return nil
	}

	h.history.Append(conversationID, chat.Message{Role: chat.RoleAssistant, Content: response.Reply})
	return h.send(ctx, conversationID, response.Reply, response.QuickReplies)
}

func (h *Webhook) send(ctx context.Context, conversationID, text string, quickReplies []string) error {
	content := map[string]any{"type": "text", "text": text}
	if len(quickReplies) > 0 {
		actions := make([]map[string]string, 0, len(quickReplies))
		for _, reply := range quickReplies {
			actions = append(actions, map[string]string{
				"type":    "reply",
				"text":    reply,
				"payload": reply,
			})
		}
		content["actions"] = actions
	}
	payload, err := json.Marshal(map[string]any{
		"author":  map[string]string{"type": "business"},
		"content": content,
	})
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/v2/apps/%s/conversations/%s/messages", h.cfg.APIBase, h.cfg.AppID, conversationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(h.cfg.KeyID, h.cfg.KeySecret)

	res, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sunshine send: %w", err)
	}
	defer res.Body.Close()
	io.Copy(io.Discard, io.LimitReader(res.Body, 1<<20))
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("sunshine send returned status %d", res.StatusCode)
	}
	return nil
}

type webhookPayload struct {
	Events []struct {
		Type    string `json:"type"`
		Payload struct {
			Conversation struct {
				ID string `json:"id"`
			} `json:"conversation"`
			Message struct {
				Author struct {
					Type string `json:"type"`
				} `json:"author"`
				Content struct {
					Type string `json:"type"`
					Text string `json:"text"`
				} `json:"content"`
			} `json:"message"`
		} `json:"payload"`
	} `json:"events"`
}
