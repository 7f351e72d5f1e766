package domain

import (
	"time"

	"github.com/google/uuid"
)

// CallStatus follows the client-reported lifecycle:
// initiated -> ringing -> ongoing -> completed, or any pre-answer
// state -> rejected | missed | failed. The relay itself never derives
// transitions; clients report them.
type CallStatus string

const (
	CallInitiated CallStatus = "initiated"
	CallRinging   CallStatus = "ringing"
	CallOngoing   CallStatus = "ongoing"
	CallCompleted CallStatus = "completed"
	CallRejected  CallStatus = "rejected"
	CallMissed    CallStatus = "missed"
	CallFailed    CallStatus = "failed"
)

func (s CallStatus) Valid() bool {
	switch s {
	case CallInitiated, CallRinging, CallOngoing, CallCompleted, CallRejected, CallMissed, CallFailed:
		return true
	}
	return false
}

func (s CallStatus) Terminal() bool {
	switch s {
	case CallCompleted, CallRejected, CallMissed, CallFailed:
		return true
	}
	return false
}

// VideoCall is call metadata persisted for history, outside the
// signaling hot path.
type VideoCall struct {
	ID              uuid.UUID  `json:"id"`
	CallerID        string     `json:"callerId"`
	CallerType      Role       `json:"callerType"`
	ReceiverID      string     `json:"receiverId"`
	ReceiverType    Role       `json:"receiverType"`
	Status          CallStatus `json:"status"`
	AnsweredAt      *time.Time `json:"answeredAt,omitempty"`
	EndedAt         *time.Time `json:"endedAt,omitempty"`
	DurationSeconds int64      `json:"durationSeconds"`
	CreatedAt       time.Time  `json:"createdAt"`
}

func (c VideoCall) Caller() Identity {
	return Identity{Role: c.CallerType, ID: c.CallerID}
}

func (c VideoCall) Receiver() Identity {
	return Identity{Role: c.ReceiverType, ID: c.ReceiverID}
}

// Duration is endedAt-answeredAt, zero unless both are set.
func (c VideoCall) Duration() time.Duration {
	if c.AnsweredAt == nil || c.EndedAt == nil {
		return 0
	}
	d := c.EndedAt.Sub(*c.AnsweredAt)
	if d < 0 {
		return 0
	}
	return d
}
