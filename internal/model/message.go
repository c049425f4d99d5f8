package model

import "time"

// MessageType discriminates notification messages.
type MessageType string

const (
	MessageError   MessageType = "error"
	MessageWarning MessageType = "warning"
	MessageInfo    MessageType = "info"
	MessageSuccess MessageType = "success"
)

// Message is a transient user-facing notification emitted by the cart core.
// The presentation layer decides how to render it (toast, log line, CLI output).
type Message struct {
	Type     MessageType `json:"type"`
	Code     string      `json:"code,omitempty"` // e.g., "update_failed", "item_removed"
	Content  string      `json:"content"`        // Human-readable message
	ItemKey  string      `json:"item_key,omitempty"`
	IssuedAt time.Time   `json:"issued_at"`
}

// NewErrorMessage creates an error notification for an item.
func NewErrorMessage(code, content, itemKey string) Message {
	return Message{
		Type:    MessageError,
		Code:    code,
		Content: content,
		ItemKey: itemKey,
	}
}

// NewSuccessMessage creates a success notification for an item.
func NewSuccessMessage(code, content, itemKey string) Message {
	return Message{
		Type:    MessageSuccess,
		Code:    code,
		Content: content,
		ItemKey: itemKey,
	}
}

// NewInfoMessage creates an informational message.
func NewInfoMessage(code, content string) Message {
	return Message{
		Type:    MessageInfo,
		Code:    code,
		Content: content,
	}
}
