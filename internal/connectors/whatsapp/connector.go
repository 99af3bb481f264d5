// Package whatsapp receives WhatsApp Cloud API webhooks and answers
// through the Graph API send endpoint.
package whatsapp

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
	VerifyToken   string
	AccessToken   string
	PhoneNumberID string
	APIBase       string
	Timeout       time.Duration
}

// Webhook is the inbound HTTP surface for WhatsApp. It answers Meta's
// subscription challenge on GET and relays messages on POST.
type Webhook struct {
	cfg        Config
	bot        connectors.Bot
	history    *connectors.History
	httpClient *http.Client
	logger     *slog.Logger
}

func New(cfg Config, bot connectors.Bot, logger *slog.Logger) *Webhook {
	if strings.TrimSpace(cfg.APIBase) == "" {
		cfg.APIBase = "https://graph.facebook.com/v19.0"
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
		logger:     logger.With("component", "whatsapp-connector"),
	}
}

func (h *Webhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.verify(w, r)
	case http.MethodPost:
		h.receive(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Webhook) verify(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if query.Get("hub.mode") != "subscribe" || query.Get("hub.verify_token") != h.cfg.VerifyToken {
		http.Error(w, "verification failed", http.StatusForbidden)
		return
	}
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, query.Get("hub.challenge"))
}

func (h *Webhook) receive(w http.ResponseWriter, r *http.Request) {
	var payload webhookPayload
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&payload); err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}
	// Ack immediately regardless of handling outcome; Meta retries on
	// non-2xx and we do not want duplicate turns for transient errors.
	w.WriteHeader(http.StatusOK)

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, message := range change.Value.Messages {
				if err := h.handleMessage(r.Context(), message); err != nil {
					h.logger.Error("handle message failed", "error", err, "from", message.From)
				}
			}
		}
	}
}

func (h *Webhook) handleMessage(ctx context.Context, message inboundMessage) error {
	text := strings.TrimSpace(message.Text.Body)
	if text == "" && message.Interactive != nil {
		text = strings.TrimSpace(message.Interactive.ButtonReply.Title)
	}
	if text == "" {
		return nil
	}

	transcript := h.history.Append(message.From, chat.Message{Role: chat.RoleUser, Content: text})
	response, err := h.bot.Handle(ctx, pipeline.Turn{
		SessionID: "whatsapp:" + message.From,
		Channel:   chat.ChannelWhatsApp,
		Messages:  transcript,
	})
	if err != nil {
		return fmt.Errorf("pipeline turn for %s: %w", message.From, err)
	}
	if strings.TrimSpace(response.Reply) == "" {
		return nil
	}

	h.history.Append(message.From, chat.Message{Role: chat.RoleAssistant, Content: response.Reply})
	return h.send(ctx, message.From, response.Reply, response.QuickReplies)
}

// send posts one message through the Graph API. Quick replies render as
// interactive buttons, which WhatsApp caps at three.
func (h *Webhook) send(ctx context.Context, to, text string, quickReplies []string) error {
	body := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
	}
	if len(quickReplies) > 0 {
		buttons := make([]map[string]any, 0, len(quickReplies))
		for i, reply := range quickReplies {
			buttons = append(buttons, map[string]any{
				"type": "reply",
				"reply": map[string]string{
					"id":    fmt.Sprintf("qr-%d", i),
					"title": reply,
				},
			})
		}
		body["type"] = "interactive"
		body["interactive"] = map[string]any{
			"type":   "button",
			"body":   map[string]string{"text": text},
			"action": map[string]any{"buttons": buttons},
		}
	} else {
		body["type"] = "text"
		body["text"] = map[string]string{"body": text}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	endpoint := fmt.Sprintf("%s/%s/messages", h.cfg.APIBase, h.cfg.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+h.cfg.AccessToken)

	res, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp send: %w", err)
	}
	defer res.Body.Close()
	io.Copy(io.Discard, io.LimitReader(res.Body, 1<<20))
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("whatsapp send returned status %d", res.StatusCode)
	}
	return nil
}

type webhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []inboundMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type inboundMessage struct {
	From string `json:"from"`
	Type string `json:"type"`
	Text struct {
		Body string `json:"body"`
	} `json:"text"`
	Interactive *struct {
		ButtonReply struct {
			Title string `json:"title"`
		} `json:"button_reply"`
	} `json:"interactive"`
}
