package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/destekhq/runtime/internal/chat"
	"github.com/destekhq/runtime/internal/pipeline"
)

// fallbackReply covers the case where the pipeline itself fails: the
// customer sees a graceful handoff message, operators see the warning.
const fallbackReply = "Şu anda sizi anlamakta zorlanıyorum, sizi bir müşteri temsilcisine aktarıyorum."

type chatRequest struct {
	SessionID string         `json:"sessionId"`
	Channel   string         `json:"channel"`
	Messages  []chat.Message `json:"messages"`
}

func (r *router) handleChat(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var payload chatRequest
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	if strings.TrimSpace(payload.SessionID) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "sessionId is required"})
		return
	}
	channel := strings.TrimSpace(payload.Channel)
	if channel == "" {
		channel = chat.ChannelWeb
	}

	response, err := r.deps.Bot.Handle(req.Context(), pipeline.Turn{
		SessionID: payload.SessionID,
		Channel:   channel,
		Messages:  payload.Messages,
	})
	if err != nil {
		if errors.Is(err, pipeline.ErrMissingSession) || errors.Is(err, pipeline.ErrEmptyTurn) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		// The customer never sees a technical error; degrade to the
		// deterministic handoff message and flag it for operators.
		r.deps.Logger.Error("chat turn failed", "error", err, "session", payload.SessionID)
		writeJSON(w, http.StatusOK, pipeline.Response{
			Reply:        fallbackReply,
			Source:       pipeline.SourceEscalation,
			HandoffReady: true,
			Warning:      "pipeline-error: " + err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, response)
}

var chatUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type wsInbound struct {
	Text string `json:"text"`
}

// handleChatWS serves the web widget: one socket is one session. The
// widget sends {"text": ...} frames and receives full turn responses.
func (r *router) handleChatWS(w http.ResponseWriter, req *http.Request) {
	conn, err := chatUpgrader.Upgrade(w, req, nil)
	if err != nil {
		r.deps.Logger.Error("chat websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sessionID := "web:" + uuid.NewString()
	transcript := []chat.Message{}

	for {
		var inbound wsInbound
		if err := conn.ReadJSON(&inbound); err != nil {
			return
		}
		text := strings.TrimSpace(inbound.Text)
		if text == "" {
			continue
		}
		transcript = append(transcript, chat.Message{Role: chat.RoleUser, Content: text})

		response, err := r.deps.Bot.Handle(req.Context(), pipeline.Turn{
			SessionID: sessionID,
			Channel:   chat.ChannelWeb,
			Messages:  transcript,
		})
		if err != nil {
			r.deps.Logger.Error("chat turn failed", "error", err, "session", sessionID)
			response = pipeline.Response{
				Reply:        fallbackReply,
				Source:       pipeline.SourceEscalation,
				HandoffReady: true,
				Warning:      "pipeline-error: " + err.Error(),
			}
		}
		if strings.TrimSpace(response.Reply) != "" {
			transcript = append(transcript, chat.Message{Role: chat.RoleAssistant, Content: response.Reply})
		}
		if err := conn.WriteJSON(response); err != nil {
			return
		}
	}
}
