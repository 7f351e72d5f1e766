// Package ws is the socket transport: one hub goroutine owns every
// connection and dispatches the inbound event vocabulary onto the
// chat and call services.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"care-relay/contract"
	"care-relay/domain"
	"care-relay/domain/event"
	"care-relay/errors"
	"care-relay/services"
)

// clientRequest bundles a client with one frame read off its socket.
type clientRequest struct {
	client  *Client
	inbound event.Inbound
}

type Hub struct {
	registry contract.IRegistry
	chat     services.IChatService
	calls    services.ICallService
	log      *slog.Logger

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	inbound    chan clientRequest

	upgrader   websocket.Upgrader
	bufferSize int
}

func NewHub(registry contract.IRegistry, chat services.IChatService, calls services.ICallService, bufferSize, queueSize int, log *slog.Logger) *Hub {
	return &Hub{
		registry: registry,
		chat:     chat,
		calls:    calls,
		log:      log,
		clients:  make(map[*Client]bool),
		register: make(chan *Client),
		// Unregister must never block a closing readPump.
		unregister: make(chan *Client, queueSize),
		inbound:    make(chan clientRequest, queueSize),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Clients are mobile apps, not browsers; origin carries no signal.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		bufferSize: bufferSize,
	}
}

// Run drives the hub until ctx is cancelled. All connection and
// identity state is confined to this goroutine.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.drop(client)
			}
			return
		case client := <-h.register:
			h.clients[client] = true
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
			}
		case request := <-h.inbound:
			h.handle(ctx, request)
		}
	}
}

func (h *Hub) drop(client *Client) {
	if client.identity != nil {
		// Identity-scoped removal: a newer connection for the same
		// identity must survive this disconnect.
		h.registry.Unregister(*client.identity, client)
	}
	delete(h.clients, client)
	client.shutdown()
}

// ServeWS upgrades the request and hands the connection to the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("Socket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	client := newClient(h, conn, h.bufferSize, h.log)
	h.register <- client
	go client.writePump()
	go client.readPump()
}

// handle dispatches one frame. A panic anywhere in a handler is
// reported back to the originating connection as a scoped error and
// never reaches the hub loop.
func (h *Hub) handle(ctx context.Context, req clientRequest) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("Event handler panicked", "type", req.inbound.Type, "panic", r)
			h.replyError(ctx, req.client, req.inbound.Type, "internal error")
		}
	}()

	if req.inbound.Type == event.TypeRegister {
		h.handleRegister(ctx, req)
		return
	}
	if req.client.identity == nil {
		h.replyError(ctx, req.client, req.inbound.Type, errors.ErrNotRegistered.Error())
		return
	}

	switch req.inbound.Type {
	case event.TypeChatSend:
		h.handleChatSend(ctx, req)
	case event.TypeChatMarkRead:
		h.handleMarkRead(ctx, req)
	case event.TypeChatTyping:
		h.handleTyping(ctx, req)
	case event.TypeCallInitiate, event.TypeCallOffer, event.TypeCallAnswer,
		event.TypeCallICE, event.TypeCallReject, event.TypeCallEnd,
		event.TypeCallBusy, event.TypeCallRenegotiate:
		h.handleCall(ctx, req)
	default:
		h.replyError(ctx, req.client, req.inbound.Type, fmt.Sprintf("unknown event type %q", req.inbound.Type))
	}
}

type registerPayload struct {
	UserID   string `json:"userId"`
	UserType string `json:"userType"`
	Name     string `json:"name"`
}

func (h *Hub) handleRegister(ctx context.Context, req clientRequest) {
	var payload registerPayload
	if err := json.Unmarshal(req.inbound.Payload, &payload); err != nil {
		h.replyError(ctx, req.client, req.inbound.Type, "malformed register payload")
		return
	}
	identity, err := domain.NewIdentity(payload.UserType, payload.UserID)
	if err != nil {
		h.replyError(ctx, req.client, req.inbound.Type, err.Error())
		return
	}

	if req.client.identity != nil && *req.client.identity != identity {
		h.registry.Unregister(*req.client.identity, req.client)
	}
	req.client.identity = &identity
	req.client.name = payload.Name
	h.registry.Register(identity, req.client)
	h.log.Info("Connection registered", "identity", identity.String(), "online", h.registry.Online())
}

func (h *Hub) handleChatSend(ctx context.Context, req clientRequest) {
	var cmd services.SendMessageCommand
	if err := json.Unmarshal(req.inbound.Payload, &cmd); err != nil {
		h.replyError(ctx, req.client, req.inbound.Type, "malformed message payload")
		return
	}
	if err := h.stampSender(req.client, &cmd); err != nil {
		h.replyError(ctx, req.client, req.inbound.Type, err.Error())
		return
	}

	message, err := h.chat.SendMessage(ctx, cmd)
	if err != nil {
		h.replyError(ctx, req.client, req.inbound.Type, sendFailureReason(err))
		return
	}

	// The sender hears the echo before the receiver can possibly reply.
	h.reply(ctx, req.client, event.Event{Type: event.TypeChatMessageSent, Payload: message})
	h.chat.Deliver(ctx, message)
}

// stampSender fills absent sender fields from the registered identity
// and rejects frames claiming to be someone else.
func (h *Hub) stampSender(client *Client, cmd *services.SendMessageCommand) error {
	identity := *client.identity
	if cmd.SenderID == "" {
		cmd.SenderID = identity.ID
	}
	if cmd.SenderType == "" {
		cmd.SenderType = string(identity.Role)
	}
	if cmd.SenderID != identity.ID || cmd.SenderType != string(identity.Role) {
		return errors.ValidationError{Field: "senderId", Reason: "does not match the registered identity"}
	}
	return nil
}

type markReadPayload struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	UserType       string `json:"userType"`
}

func (h *Hub) handleMarkRead(ctx context.Context, req clientRequest) {
	var payload markReadPayload
	if err := json.Unmarshal(req.inbound.Payload, &payload); err != nil {
		h.replyError(ctx, req.client, req.inbound.Type, "malformed mark-read payload")
		return
	}
	reader := *req.client.identity
	count, err := h.chat.MarkRead(payload.ConversationID, reader)
	if err != nil {
		h.replyError(ctx, req.client, req.inbound.Type, "could not mark messages read")
		return
	}
	h.reply(ctx, req.client, event.Event{Type: event.TypeChatMarkedRead, Payload: map[string]any{
		"conversationId": payload.ConversationID,
		"count":          count,
	}})
}

type typingPayload struct {
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
}

func (h *Hub) handleTyping(ctx context.Context, req clientRequest) {
	var payload typingPayload
	if err := json.Unmarshal(req.inbound.Payload, &payload); err != nil {
		return
	}
	h.chat.Typing(ctx, payload.ConversationID, *req.client.identity, payload.IsTyping)
}

func (h *Hub) handleCall(ctx context.Context, req clientRequest) {
	var payload map[string]any
	if err := json.Unmarshal(req.inbound.Payload, &payload); err != nil {
		h.replyError(ctx, req.client, req.inbound.Type, "malformed call payload")
		return
	}
	to, err := domain.NewIdentity(stringField(payload, "toUserType"), stringField(payload, "toUserId"))
	if err != nil {
		h.replyError(ctx, req.client, req.inbound.Type, "missing or malformed recipient")
		return
	}
	delete(payload, "toUserId")
	delete(payload, "toUserType")

	fromName := stringField(payload, "fromName")
	if fromName == "" {
		fromName = req.client.name
	}
	delete(payload, "fromName")
	delete(payload, "fromUserId")
	delete(payload, "fromUserType")

	replies := h.calls.Relay(ctx, services.CallEvent{
		Kind:     req.inbound.Type,
		From:     *req.client.identity,
		FromName: fromName,
		To:       to,
		Payload:  payload,
	})
	for _, e := range replies {
		h.reply(ctx, req.client, e)
	}
}

func (h *Hub) reply(ctx context.Context, client *Client, e event.Event) {
	if err := client.Consume(ctx, e); err != nil {
		h.log.Warn("Dropping reply to slow connection", "type", e.Type, "error", err)
	}
}

func (h *Hub) replyError(ctx context.Context, client *Client, kind event.Type, message string) {
	h.reply(ctx, client, event.Event{
		Type:    errorTypeFor(kind),
		Payload: event.ErrorPayload{Message: message},
	})
}

// errorTypeFor scopes the error event to the failing subsystem.
func errorTypeFor(kind event.Type) event.Type {
	switch {
	case strings.HasPrefix(string(kind), "call:"):
		return event.TypeCallError
	case strings.HasPrefix(string(kind), "chat:"):
		return event.TypeChatError
	default:
		return event.TypeError
	}
}

func sendFailureReason(err error) string {
	if errors.IsValidation(err) {
		return err.Error()
	}
	return "could not store message"
}

func stringField(payload map[string]any, key string) string {
	s, _ := payload[key].(string)
	return s
}
