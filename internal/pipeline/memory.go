package pipeline

import (
	"github.com/destekhq/runtime/internal/chat"
	"github.com/destekhq/runtime/internal/normalize"
)

// BuildMemory rebuilds the extracted fact set from the active message
// window. Contact fields take the latest extraction; the issue summary
// comes from the most recent user turn that is neither a clarification
// question nor a status query and survives summary extraction.
func BuildMemory(messages []chat.Message) chat.Memory {
	var memory chat.Memory

	for _, message := range messages {
		if message.Role != chat.RoleUser {
			continue
		}
		text := normalize.Normalize(message.Content)
		if branch, ok := normalize.ExtractBranchCode(text); ok {
			memory.BranchCode = branch
		}
		if company, ok := normalize.ExtractCompanyName(text); ok {
			memory.CompanyName = company
		}
		if name, ok := normalize.ExtractFullName(text); ok {
			memory.FullName = name
		}
		if phone, ok := normalize.ExtractPhone(text); ok {
			memory.Phone = phone
		}
	}

	for index := len(messages) - 1; index >= 0; index-- {
		if messages[index].Role != chat.RoleUser {
			continue
		}
		text := normalize.Normalize(messages[index].Content)
		if normalize.IsClarificationQuestion(text) || normalize.IsStatusQuery(text) {
			continue
		}
		if summary, ok := normalize.ExtractIssueSummary(text); ok {
			memory.IssueSummary = summary
			break
		}
	}
	return memory
}
