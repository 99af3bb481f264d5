// Package telegram long-polls the Bot API and relays customer messages
// into the conversation pipeline.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/destekhq/runtime/internal/chat"
	"github.com/destekhq/runtime/internal/connectors"
	"github.com/destekhq/runtime/internal/pipeline"
)

type Connector struct {
	token       string
	apiBase     string
	pollSeconds int
	bot         connectors.Bot
	history     *connectors.History
	httpClient  *http.Client
	logger      *slog.Logger
	offset      int64
}

func New(token, apiBase string, pollSeconds int, bot connectors.Bot, logger *slog.Logger) *Connector {
	if strings.TrimSpace(apiBase) == "" {
		apiBase = "https://api.telegram.org"
	}
	if pollSeconds < 1 {
		pollSeconds = 25
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Connector{
		token:       strings.TrimSpace(token),
		apiBase:     strings.TrimRight(strings.TrimSpace(apiBase), "/"),
		pollSeconds: pollSeconds,
		bot:         bot,
		history:     connectors.NewHistory(0),
		httpClient: &http.Client{
			Timeout: time.Duration(pollSeconds+10) * time.Second,
		},
		logger: logger.With("component", "telegram-connector"),
	}
}

func (c *Connector) Name() string {
	return "telegram"
}

func (c *Connector) Start(ctx context.Context) error {
	if c.token == "" {
		c.logger.Info("connector disabled, token missing")
		<-ctx.Done()
		return nil
	}

	c.logger.Info("connector started", "api_base", c.apiBase)
	for {
		if ctx.Err() != nil {
			c.logger.Info("connector stopped")
			return nil
		}
		if err := c.pollOnce(ctx); err != nil && ctx.Err() == nil {
			c.logger.Error("poll failed", "error", err)
			select {
			case <-ctx.Done():
				c.logger.Info("connector stopped")
				return nil
			case <-time.After(1500 * time.Millisecond):
			}
		}
	}
}

func (c *Connector) pollOnce(ctx context.Context) error {
	url := fmt.Sprintf("%s/bot%s/getUpdates?timeout=%d&offset=%d", c.apiBase, c.token, c.pollSeconds, c.offset)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	var payload getUpdatesResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return fmt.Errorf("decode getUpdates: %w", err)
	}
	if !payload.OK {
		return fmt.Errorf("telegram getUpdates failed")
	}

	for _, update := range payload.Result {
		if update.UpdateID >= c.offset {
			c.offset = update.UpdateID + 1
		}
		if update.Message == nil {
			continue
		}
		if err := c.handleMessage(ctx, *update.Message); err != nil {
			c.logger.Error("handle message failed", "error", err, "update_id", update.UpdateID)
		}
	}
	return nil
}

func (c *Connector) handleMessage(ctx context.Context, message telegramMessage) error {
	text := strings.TrimSpace(message.Text)
	if text == "" {
		return nil
	}

	conversationID := strconv.FormatInt(message.Chat.ID, 10)
	sessionID := "telegram:" + conversationID
	transcript := c.history.Append(conversationID, chat.Message{Role: chat.RoleUser, Content: text})

	response, err := c.bot.Handle(ctx, pipeline.Turn{
		SessionID: sessionID,
		Channel:   chat.ChannelTelegram,
		Messages:  transcript,
	})
	if err != nil {
		return fmt.Errorf("pipeline turn for chat %d: %w", message.Chat.ID, err)
	}
	if strings.TrimSpace(response.Reply) == "" {
		return nil
	}

	c.history.Append(conversationID, chat.Message{Role: chat.RoleAssistant, Content: response.Reply})
	return c.sendMessage(ctx, message.Chat.ID, response.Reply, response.QuickReplies)
}

func (c *Connector) sendMessage(ctx context.Context, chatID int64, text string, quickReplies []string) error {
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", c.apiBase, c.token)
	body := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	if len(quickReplies) > 0 {
		keyboard := make([][]map[string]string, 0, len(quickReplies))
		for _, reply := range quickReplies {
			keyboard = append(keyboard, []map[string]string{{"text": reply}})
		}
		body["reply_markup"] = map[string]any{
			"keyboard":          keyboard,
			"one_time_keyboard": true,
			"resize_keyboard":   true,
		}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	var response struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(res.Body).Decode(&response); err != nil {
		return fmt.Errorf("decode sendMessage: %w", err)
	}
	if !response.OK {
		return fmt.Errorf("telegram sendMessage failed")
	}
	return nil
}

type getUpdatesResponse struct {
	OK     bool             `json:"ok"`
	Result []telegramUpdate `json:"result"`
}

type telegramUpdate struct {
	UpdateID int64            `json:"update_id"`
	Message  *telegramMessage `json:"message"`
}

type telegramMessage struct {
	MessageID int64        `json:"message_id"`
	Chat      telegramChat `json:"chat"`
	Text      string       `json:"text"`
}

type telegramChat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}
