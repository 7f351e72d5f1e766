package domain

import (
	"sort"
	"strings"
	"time"
)

// ConversationID derives the canonical id for a participant pair.
// The two ids are sorted lexicographically before joining, so both
// sides derive the same id regardless of who initiates.
func ConversationID(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, "_")
}

// Conversation is the denormalized aggregate for one patient/doctor
// pair: last-message snapshot plus per-role unread counters.
type Conversation struct {
	ID                 string    `json:"conversationId"`
	PatientID          string    `json:"patientId"`
	DoctorID           string    `json:"doctorId"`
	PatientName        string    `json:"patientName,omitempty"`
	DoctorName         string    `json:"doctorName,omitempty"`
	LastMessage        string    `json:"lastMessage"`
	LastMessageTime    time.Time `json:"lastMessageTime"`
	LastMessageSender  Role      `json:"lastMessageSender,omitempty"`
	UnreadCountPatient int       `json:"unreadCountPatient"`
	UnreadCountDoctor  int       `json:"unreadCountDoctor"`
	IsActive           bool      `json:"isActive"`
	CreatedAt          time.Time `json:"createdAt"`
}

// Participant returns the id registered for the given role.
func (c Conversation) Participant(role Role) string {
	if role == RolePatient {
		return c.PatientID
	}
	return c.DoctorID
}

// OtherParticipant resolves the identity on the far side of the
// conversation from one participant's id.
func (c Conversation) OtherParticipant(id string) (Identity, bool) {
	switch id {
	case c.PatientID:
		return Identity{Role: RoleDoctor, ID: c.DoctorID}, true
	case c.DoctorID:
		return Identity{Role: RolePatient, ID: c.PatientID}, true
	}
	return Identity{}, false
}

func (c Conversation) Unread(role Role) int {
	if role == RolePatient {
		return c.UnreadCountPatient
	}
	return c.UnreadCountDoctor
}

func (c *Conversation) IncrementUnread(role Role) {
	if role == RolePatient {
		c.UnreadCountPatient++
		return
	}
	c.UnreadCountDoctor++
}

// ResetUnread zeroes the counter for the given role. Counters never
// go negative, so reset is the only way down.
func (c *Conversation) ResetUnread(role Role) {
	if role == RolePatient {
		c.UnreadCountPatient = 0
		return
	}
	c.UnreadCountDoctor = 0
}
