// Package event defines the wire vocabulary exchanged over the
// persistent connection. Payloads are JSON on both directions.
package event

import "encoding/json"

type Type string

// Client -> relay.
const (
	TypeRegister Type = "register"

	TypeCallInitiate    Type = "call:initiate"
	TypeCallOffer       Type = "call:offer"
	TypeCallAnswer      Type = "call:answer"
	TypeCallICE         Type = "call:ice-candidate"
	TypeCallReject      Type = "call:reject"
	TypeCallEnd         Type = "call:end"
	TypeCallBusy        Type = "call:busy"
	TypeCallRenegotiate Type = "call:renegotiate"

	TypeChatSend     Type = "chat:send-message"
	TypeChatMarkRead Type = "chat:mark-read"
	TypeChatTyping   Type = "chat:typing"
)

// Relay -> client.
const (
	TypeCallIncoming         Type = "call:incoming"
	TypeCallRecipientOffline Type = "call:recipient-offline"
	TypeCallRejected         Type = "call:rejected"
	TypeCallEnded            Type = "call:ended"
	TypeCallError            Type = "call:error"

	TypeChatMessageSent Type = "chat:message-sent"
	TypeChatNewMessage  Type = "chat:new-message"
	TypeChatMarkedRead  Type = "chat:marked-read"
	TypeChatUserTyping  Type = "chat:user-typing"
	TypeChatError       Type = "chat:error"

	TypeNotification Type = "notification"
	TypeError        Type = "error"
)

// Event is an outbound envelope whose payload is marshaled as-is.
type Event struct {
	Type    Type `json:"type"`
	Payload any  `json:"payload,omitempty"`
}

// Inbound is the envelope as read off the socket; the payload stays
// raw until the handler for the type decodes it.
type Inbound struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ErrorPayload is the body of error, chat:error and call:error events.
type ErrorPayload struct {
	Message string `json:"message"`
}
