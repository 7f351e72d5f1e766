//go:generate go run go.uber.org/mock/mockgen -source=notification_service.go -destination=../mocks/mock_notification_service.go -package=mocks
package services

import (
	"context"
	"log/slog"
	"time"

	"care-relay/contract"
	"care-relay/domain"
	"care-relay/domain/event"
	"care-relay/observability"
	"care-relay/repositories"
)

const pushTimeout = 5 * time.Second

type INotificationService interface {
	Notify(ctx context.Context, to domain.Identity, message string, kind domain.NotificationType, data map[string]any) (domain.Notification, error)
	ListForUser(to domain.Identity, limit int) ([]domain.Notification, error)
}

// NotificationService is the offline-delivery fallback. The durable
// row is the contract: it is written synchronously and its failure is
// the only one surfaced. Live delivery and the external push channel
// are best effort on top of it.
type NotificationService struct {
	notifications repositories.INotificationRepository
	registry      contract.IRegistry
	dispatcher    contract.IPushDispatcher
	stats         *observability.Stats
	log           *slog.Logger
}

func NewNotificationService(
	notifications repositories.INotificationRepository,
	registry contract.IRegistry,
	dispatcher contract.IPushDispatcher,
	stats *observability.Stats,
	log *slog.Logger,
) *NotificationService {
	return &NotificationService{
		notifications: notifications,
		registry:      registry,
		dispatcher:    dispatcher,
		stats:         stats,
		log:           log,
	}
}

func (s *NotificationService) Notify(ctx context.Context, to domain.Identity, message string, kind domain.NotificationType, data map[string]any) (domain.Notification, error) {
	notification := domain.Notification{
		UserID:    to.ID,
		UserType:  to.Role,
		Message:   message,
		Type:      kind,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.notifications.Store(&notification); err != nil {
		return domain.Notification{}, err
	}
	s.stats.NotificationStored()

	// The recipient may have connected between the presence check that
	// led here and now; give the live path one more try.
	if sink, ok := s.registry.Lookup(to); ok {
		err := sink.Consume(ctx, event.Event{Type: event.TypeNotification, Payload: notification})
		if err != nil {
			s.stats.DeliveryFailure()
			s.log.Warn("Live notification delivery failed", "to", to.String(), "error", err)
		}
	}

	go s.push(notification)
	return notification, nil
}

func (s *NotificationService) ListForUser(to domain.Identity, limit int) ([]domain.Notification, error) {
	return s.notifications.ListForUser(to, limit)
}

// push runs detached; a panicking or slow dispatcher must not reach
// the caller.
func (s *NotificationService) push(notification domain.Notification) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Push dispatcher panicked", "panic", r)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()

	err := s.dispatcher.Dispatch(ctx, contract.Push{
		To:    notification.User(),
		Title: pushTitle(notification.Type),
		Body:  notification.Message,
		Data:  notification.Data,
	})
	if err != nil {
		s.stats.DeliveryFailure()
		s.log.Warn("Push dispatch failed", "to", notification.User().String(), "error", err)
	}
}

func pushTitle(kind domain.NotificationType) string {
	switch kind {
	case domain.NotificationChat:
		return "New message"
	case domain.NotificationCall:
		return "Incoming call"
	case domain.NotificationBooking:
		return "Booking update"
	default:
		return "Notification"
	}
}
