//go:generate go run go.uber.org/mock/mockgen -source=chat_service.go -destination=../mocks/mock_chat_service.go -package=mocks
package services

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/abadojack/whatlanggo"
	"github.com/go-playground/validator/v10"

	"care-relay/contract"
	"care-relay/domain"
	"care-relay/domain/event"
	"care-relay/errors"
	"care-relay/moderation"
	"care-relay/observability"
	"care-relay/repositories"
	"care-relay/search"
)

const (
	maxConversationPage = 50
	notificationPreview = 80
)

// SendMessageCommand is the chat send contract, shared by the socket
// and REST entry points.
type SendMessageCommand struct {
	ConversationID string `json:"conversationId" validate:"omitempty,max=129"`
	SenderID       string `json:"senderId" validate:"required,identifier"`
	SenderType     string `json:"senderType" validate:"required,oneof=patient doctor"`
	ReceiverID     string `json:"receiverId" validate:"required,identifier"`
	ReceiverType   string `json:"receiverType" validate:"required,oneof=patient doctor"`
	MessageType    string `json:"messageType" validate:"required,oneof=text voice image"`
	Content        string `json:"content" validate:"required_if=MessageType text,max=10000"`
	VoiceURL       string `json:"voiceUrl" validate:"required_if=MessageType voice,omitempty,max=2048"`
	ImageURL       string `json:"imageUrl" validate:"required_if=MessageType image,omitempty,max=2048"`
}

type IChatService interface {
	SendMessage(ctx context.Context, cmd SendMessageCommand) (domain.Message, error)
	Deliver(ctx context.Context, message domain.Message)
	MarkRead(conversationID string, reader domain.Identity) (int, error)
	Typing(ctx context.Context, conversationID string, from domain.Identity, isTyping bool)
	CreateOrGet(patientID, doctorID, patientName, doctorName string) (domain.Conversation, bool, error)
	GetConversation(conversationID string) (domain.Conversation, error)
	ListConversations(user domain.Identity, limit int) ([]domain.Conversation, error)
	ListMessages(conversationID string, cursor *string, limit int) ([]domain.Message, *string, error)
	SearchMessages(ctx context.Context, conversationID, terms string, limit int) ([]search.Hit, error)
}

type ChatService struct {
	messages      repositories.IMessageRepository
	conversations repositories.IConversationRepository
	registry      contract.IRegistry
	notifier      INotificationService
	moderator     moderation.Moderator
	index         *search.MessageIndex
	stats         *observability.Stats
	validate      *validator.Validate
	log           *slog.Logger
}

func NewChatService(
	messages repositories.IMessageRepository,
	conversations repositories.IConversationRepository,
	registry contract.IRegistry,
	notifier INotificationService,
	moderator moderation.Moderator,
	index *search.MessageIndex,
	stats *observability.Stats,
	log *slog.Logger,
) *ChatService {
	return &ChatService{
		messages:      messages,
		conversations: conversations,
		registry:      registry,
		notifier:      notifier,
		moderator:     moderator,
		index:         index,
		stats:         stats,
		validate:      newValidator(),
		log:           log,
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	// The error is only non-nil for a malformed tag name.
	_ = v.RegisterValidation("identifier", func(fl validator.FieldLevel) bool {
		return domain.ValidIdentifier(fl.Field().String())
	})
	return v
}

// SendMessage validates, moderates and persists one chat message, then
// updates the conversation aggregate. Delivery to the receiver is a
// separate step so callers can acknowledge the sender first.
func (s *ChatService) SendMessage(ctx context.Context, cmd SendMessageCommand) (domain.Message, error) {
	if err := s.validate.Struct(cmd); err != nil {
		var fieldErrors validator.ValidationErrors
		if stderrors.As(err, &fieldErrors) && len(fieldErrors) > 0 {
			first := fieldErrors[0]
			return domain.Message{}, errors.ValidationError{Field: first.Field(), Reason: first.Tag()}
		}
		return domain.Message{}, err
	}
	if cmd.SenderType == cmd.ReceiverType {
		return domain.Message{}, errors.ValidationError{Field: "receiverType", Reason: "sender and receiver must be on opposite sides"}
	}
	if cmd.SenderID == cmd.ReceiverID {
		return domain.Message{}, errors.ValidationError{Field: "receiverId", Reason: "cannot message yourself"}
	}

	// The conversation id is always recomputed server-side; a supplied
	// id that disagrees is stale or forged.
	conversationID := domain.ConversationID(cmd.SenderID, cmd.ReceiverID)
	if cmd.ConversationID != "" && cmd.ConversationID != conversationID {
		return domain.Message{}, errors.ValidationError{Field: "conversationId", Reason: "does not match the participant pair"}
	}

	content := cmd.Content
	messageType := domain.MessageType(cmd.MessageType)
	language := ""
	if messageType == domain.MessageText {
		var found []string
		content, found = s.moderator.Censor(content)
		if len(found) > 0 {
			s.log.Info("Masked message content", "conversation", conversationID, "words", len(found))
		}
		language = whatlanggo.Detect(content).Lang.Iso6391()
	}

	message := domain.Message{
		ConversationID: conversationID,
		SenderID:       cmd.SenderID,
		SenderType:     domain.Role(cmd.SenderType),
		ReceiverID:     cmd.ReceiverID,
		ReceiverType:   domain.Role(cmd.ReceiverType),
		Type:           messageType,
		Content:        content,
		VoiceURL:       cmd.VoiceURL,
		ImageURL:       cmd.ImageURL,
		Language:       language,
	}
	if err := s.messages.Store(&message); err != nil {
		return domain.Message{}, err
	}
	if _, err := s.conversations.ApplyMessage(message); err != nil {
		return domain.Message{}, err
	}
	s.stats.MessageStored()

	if s.index != nil {
		// Search lag is acceptable; a failed index write never fails
		// the send.
		if err := s.index.Index(message); err != nil {
			s.log.Warn("Indexing message failed", "message", message.ID, "error", err)
		}
	}
	return message, nil
}

// Deliver forwards a stored message to the receiver's live connection
// or, when the receiver is offline, falls back to a durable
// notification. Runs after the sender has been acknowledged. A live
// connection that refuses the forward counts as a delivery failure;
// the receiver still finds the message in history on the next fetch.
func (s *ChatService) Deliver(ctx context.Context, message domain.Message) {
	receiver := message.Receiver()
	if sink, ok := s.registry.Lookup(receiver); ok {
		if err := sink.Consume(ctx, event.Event{Type: event.TypeChatNewMessage, Payload: message}); err != nil {
			s.stats.DeliveryFailure()
			s.log.Warn("Forwarding message to live connection failed",
				"to", receiver.String(), "error", err)
		}
		return
	}

	_, err := s.notifier.Notify(ctx, receiver, message.Preview(notificationPreview), domain.NotificationChat, map[string]any{
		"conversationId": message.ConversationID,
		"senderId":       message.SenderID,
		"senderType":     string(message.SenderType),
		"messageType":    string(message.Type),
		"messageId":      message.ID.String(),
	})
	if err != nil {
		s.log.Error("Storing fallback notification failed", "to", receiver.String(), "error", err)
	}
}

// MarkRead resets the reader's unread counter and flips stored
// messages. An unknown conversation is a no-op, not an error.
func (s *ChatService) MarkRead(conversationID string, reader domain.Identity) (int, error) {
	_, err := s.conversations.ResetUnread(conversationID, reader.Role)
	if stderrors.Is(err, errors.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return s.messages.MarkRead(conversationID, reader, time.Now().UTC())
}

// Typing forwards the ephemeral indicator to the other participant.
// Any miss (unknown conversation, stranger, offline peer) drops it.
func (s *ChatService) Typing(ctx context.Context, conversationID string, from domain.Identity, isTyping bool) {
	conv, err := s.conversations.Get(conversationID)
	if err != nil {
		return
	}
	other, ok := conv.OtherParticipant(from.ID)
	if !ok {
		return
	}
	sink, ok := s.registry.Lookup(other)
	if !ok {
		return
	}
	_ = sink.Consume(ctx, event.Event{Type: event.TypeChatUserTyping, Payload: map[string]any{
		"conversationId": conversationID,
		"userId":         from.ID,
		"userType":       string(from.Role),
		"isTyping":       isTyping,
	}})
}

func (s *ChatService) CreateOrGet(patientID, doctorID, patientName, doctorName string) (domain.Conversation, bool, error) {
	if !domain.ValidIdentifier(patientID) {
		return domain.Conversation{}, false, errors.ValidationError{Field: "patientId", Reason: "malformed identifier"}
	}
	if !domain.ValidIdentifier(doctorID) {
		return domain.Conversation{}, false, errors.ValidationError{Field: "doctorId", Reason: "malformed identifier"}
	}
	return s.conversations.GetOrCreate(patientID, doctorID, patientName, doctorName)
}

func (s *ChatService) GetConversation(conversationID string) (domain.Conversation, error) {
	return s.conversations.Get(conversationID)
}

func (s *ChatService) ListConversations(user domain.Identity, limit int) ([]domain.Conversation, error) {
	if limit <= 0 || limit > maxConversationPage {
		limit = maxConversationPage
	}
	return s.conversations.ListForUser(user, limit)
}

func (s *ChatService) ListMessages(conversationID string, cursor *string, limit int) ([]domain.Message, *string, error) {
	return s.messages.List(conversationID, cursor, limit)
}

func (s *ChatService) SearchMessages(ctx context.Context, conversationID, terms string, limit int) ([]search.Hit, error) {
	if s.index == nil {
		return nil, nil
	}
	if limit <= 0 || limit > maxConversationPage {
		limit = maxConversationPage
	}
	return s.index.Search(ctx, conversationID, terms, limit)
}
