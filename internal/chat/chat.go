// Package chat holds the transport-neutral conversation contract shared by
// connectors, the pipeline and the stores.
package chat

import "strings"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Channel tags accepted on inbound turns.
const (
	ChannelWeb      = "web"
	ChannelTelegram = "telegram"
	ChannelWhatsApp = "whatsapp"
	ChannelSunshine = "sunshine"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Memory is the fact set extracted from the active message window on every
// turn. It is derived, never persisted on its own; the required-fields gate
// for ticket creation is BranchCode plus IssueSummary.
type Memory struct {
	BranchCode   string `json:"branchCode,omitempty"`
	IssueSummary string `json:"issueSummary,omitempty"`
	CompanyName  string `json:"companyName,omitempty"`
	FullName     string `json:"fullName,omitempty"`
	Phone        string `json:"phone,omitempty"`
}

func (m Memory) HasRequiredFields() bool {
	return strings.TrimSpace(m.BranchCode) != "" && strings.TrimSpace(m.IssueSummary) != ""
}

// LastUserMessage returns the content of the most recent user turn, or "".
func LastUserMessage(messages []Message) string {
	for index := len(messages) - 1; index >= 0; index-- {
		if messages[index].Role == RoleUser {
			return messages[index].Content
		}
	}
	return ""
}
