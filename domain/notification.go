package domain

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationChat    NotificationType = "chat"
	NotificationCall    NotificationType = "call"
	NotificationBooking NotificationType = "booking"
	NotificationSystem  NotificationType = "system"
)

// Notification is the durable offline-delivery record. One row per
// fallback event; the relay never mutates it after creation.
type Notification struct {
	ID        uuid.UUID        `json:"id"`
	UserID    string           `json:"userId"`
	UserType  Role             `json:"userType"`
	Message   string           `json:"message"`
	Type      NotificationType `json:"type"`
	Data      map[string]any   `json:"data,omitempty"`
	IsRead    bool             `json:"isRead"`
	CreatedAt time.Time        `json:"createdAt"`
}

func (n Notification) User() Identity {
	return Identity{Role: n.UserType, ID: n.UserID}
}
