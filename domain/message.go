package domain

import (
	"time"

	"github.com/google/uuid"
)

type MessageType string

const (
	MessageText  MessageType = "text"
	MessageVoice MessageType = "voice"
	MessageImage MessageType = "image"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageVoice, MessageImage:
		return true
	}
	return false
}

// Message is an immutable chat event. Only the IsRead/ReadAt pair
// transitions after creation. Seq is a store-assigned monotonic
// counter that keeps ordering stable when CreatedAt collides.
type Message struct {
	ID             uuid.UUID   `json:"id"`
	Seq            uint64      `json:"seq"`
	ConversationID string      `json:"conversationId"`
	SenderID       string      `json:"senderId"`
	SenderType     Role        `json:"senderType"`
	ReceiverID     string      `json:"receiverId"`
	ReceiverType   Role        `json:"receiverType"`
	Type           MessageType `json:"messageType"`
	Content        string      `json:"content"`
	VoiceURL       string      `json:"voiceUrl,omitempty"`
	ImageURL       string      `json:"imageUrl,omitempty"`
	Language       string      `json:"language,omitempty"`
	IsRead         bool        `json:"isRead"`
	ReadAt         *time.Time  `json:"readAt,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
}

func (m Message) Sender() Identity {
	return Identity{Role: m.SenderType, ID: m.SenderID}
}

func (m Message) Receiver() Identity {
	return Identity{Role: m.ReceiverType, ID: m.ReceiverID}
}

// Preview returns the human-readable summary used for notifications
// and conversation snapshots: a placeholder for media, a truncated
// body for text.
func (m Message) Preview(max int) string {
	switch m.Type {
	case MessageVoice:
		return "[voice message]"
	case MessageImage:
		return "[image]"
	}
	runes := []rune(m.Content)
	if max <= 0 || len(runes) <= max {
		return m.Content
	}
	return string(runes[:max]) + "..."
}
