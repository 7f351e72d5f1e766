//go:generate go run go.uber.org/mock/mockgen -source=call_service.go -destination=../mocks/mock_call_service.go -package=mocks
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"care-relay/contract"
	"care-relay/domain"
	"care-relay/domain/event"
	"care-relay/errors"
	"care-relay/observability"
	"care-relay/repositories"
)

// CallEvent is one inbound signaling frame, already addressed.
// Payload carries the SDP/ICE body untouched.
type CallEvent struct {
	Kind     event.Type
	From     domain.Identity
	FromName string
	To       domain.Identity
	Payload  map[string]any
}

type ICallService interface {
	Relay(ctx context.Context, e CallEvent) []event.Event
	CreateCall(caller, receiver domain.Identity) (domain.VideoCall, error)
	UpdateCallStatus(id uuid.UUID, status domain.CallStatus) (domain.VideoCall, error)
	GetCall(id uuid.UUID) (domain.VideoCall, error)
	ListCalls(user domain.Identity, limit int) ([]domain.VideoCall, error)
}

// CallService relays signaling frames between two live connections.
// It keeps no call state; the VideoCall rows exist for history and are
// driven entirely by client-reported transitions.
type CallService struct {
	registry contract.IRegistry
	calls    repositories.IVideoCallRepository
	notifier INotificationService
	stats    *observability.Stats
	log      *slog.Logger
}

func NewCallService(
	registry contract.IRegistry,
	calls repositories.IVideoCallRepository,
	notifier INotificationService,
	stats *observability.Stats,
	log *slog.Logger,
) *CallService {
	return &CallService{
		registry: registry,
		calls:    calls,
		notifier: notifier,
		stats:    stats,
		log:      log,
	}
}

// forwardType renames the handful of frames whose recipient-side name
// differs from the inbound one; everything else forwards unchanged.
func forwardType(kind event.Type) event.Type {
	switch kind {
	case event.TypeCallInitiate:
		return event.TypeCallIncoming
	case event.TypeCallReject:
		return event.TypeCallRejected
	case event.TypeCallEnd:
		return event.TypeCallEnded
	default:
		return kind
	}
}

// Relay forwards one frame to the recipient and returns the events
// owed to the caller. Offline recipients are only surfaced for offers;
// the other frames are meaningless without a live session and drop.
// An end frame always earns the caller an ended acknowledgment.
func (s *CallService) Relay(ctx context.Context, e CallEvent) []event.Event {
	var replies []event.Event

	sink, online := s.registry.Lookup(e.To)
	if online {
		err := sink.Consume(ctx, event.Event{Type: forwardType(e.Kind), Payload: s.forwardPayload(e)})
		if err != nil {
			s.stats.DeliveryFailure()
			s.log.Warn("Relaying call frame failed", "kind", e.Kind, "to", e.To.String(), "error", err)
			replies = append(replies, callError(fmt.Sprintf("could not reach %s", e.To.Role)))
		} else {
			s.stats.CallEventRelayed()
		}
	} else if e.Kind == event.TypeCallOffer || e.Kind == event.TypeCallInitiate {
		s.notifyMissedOffer(ctx, e)
		replies = append(replies, event.Event{
			Type: event.TypeCallRecipientOffline,
			Payload: map[string]any{
				"toUserId":   e.To.ID,
				"toUserType": string(e.To.Role),
			},
		})
	} else {
		s.log.Debug("Dropping call frame for offline recipient", "kind", e.Kind, "to", e.To.String())
	}

	if e.Kind == event.TypeCallEnd {
		replies = append(replies, event.Event{
			Type: event.TypeCallEnded,
			Payload: map[string]any{
				"toUserId":   e.To.ID,
				"toUserType": string(e.To.Role),
			},
		})
	}
	return replies
}

// forwardPayload keeps the client body verbatim and stamps the sender
// identity so the recipient knows who is calling.
func (s *CallService) forwardPayload(e CallEvent) map[string]any {
	payload := make(map[string]any, len(e.Payload)+3)
	for k, v := range e.Payload {
		payload[k] = v
	}
	payload["fromUserId"] = e.From.ID
	payload["fromUserType"] = string(e.From.Role)
	if e.FromName != "" {
		payload["fromName"] = e.FromName
	}
	return payload
}

func (s *CallService) notifyMissedOffer(ctx context.Context, e CallEvent) {
	caller := e.FromName
	if caller == "" {
		caller = "your " + string(e.From.Role)
	}
	_, err := s.notifier.Notify(ctx, e.To,
		fmt.Sprintf("Incoming video call from %s", caller),
		domain.NotificationCall,
		map[string]any{
			"fromUserId":   e.From.ID,
			"fromUserType": string(e.From.Role),
		})
	if err != nil {
		s.log.Error("Storing missed call notification failed", "to", e.To.String(), "error", err)
	}
}

func callError(message string) event.Event {
	return event.Event{Type: event.TypeCallError, Payload: event.ErrorPayload{Message: message}}
}

func (s *CallService) CreateCall(caller, receiver domain.Identity) (domain.VideoCall, error) {
	if caller.Role == receiver.Role {
		return domain.VideoCall{}, errors.ValidationError{Field: "receiverType", Reason: "caller and receiver must be on opposite sides"}
	}
	call := domain.VideoCall{
		CallerID:     caller.ID,
		CallerType:   caller.Role,
		ReceiverID:   receiver.ID,
		ReceiverType: receiver.Role,
		Status:       domain.CallInitiated,
	}
	if err := s.calls.Create(&call); err != nil {
		return domain.VideoCall{}, err
	}
	return call, nil
}

func (s *CallService) UpdateCallStatus(id uuid.UUID, status domain.CallStatus) (domain.VideoCall, error) {
	if !status.Valid() {
		return domain.VideoCall{}, errors.ValidationError{Field: "status", Reason: "unknown call status"}
	}
	return s.calls.UpdateStatus(id, status, time.Now().UTC())
}

func (s *CallService) GetCall(id uuid.UUID) (domain.VideoCall, error) {
	return s.calls.Get(id)
}

func (s *CallService) ListCalls(user domain.Identity, limit int) ([]domain.VideoCall, error) {
	if limit <= 0 || limit > maxConversationPage {
		limit = maxConversationPage
	}
	return s.calls.ListForUser(user, limit)
}
