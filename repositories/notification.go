//go:generate go run go.uber.org/mock/mockgen -source=notification.go -destination=../mocks/mock_notification_repository.go -package=mocks
package repositories

import (
	"care-relay/domain"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type INotificationRepository interface {
	Store(notification *domain.Notification) error
	ListForUser(user domain.Identity, limit int) ([]domain.Notification, error)
}

type NotificationRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewNotificationRepository(db *badger.DB, log *slog.Logger) *NotificationRepository {
	return &NotificationRepository{db: db, log: log}
}

// notificationKey formats "notif:{role}:{userID}:{timestamp_padded}:{uuid}"
// so a prefix scan per user reads chronologically.
func notificationKey(n domain.Notification) []byte {
	return []byte(fmt.Sprintf("notif:%s:%s:%019d:%s",
		n.UserType, n.UserID, n.CreatedAt.UnixNano(), n.ID))
}

func (r *NotificationRepository) Store(notification *domain.Notification) error {
	if notification.ID == uuid.Nil {
		notification.ID = uuid.New()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now().UTC()
	}
	bytes, err := json.Marshal(notification)
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(notificationKey(*notification), bytes)
	})
}

// ListForUser returns the newest notifications first.
func (r *NotificationRepository) ListForUser(user domain.Identity, limit int) ([]domain.Notification, error) {
	var notifications []domain.Notification
	err := r.db.View(func(txn *badger.Txn) error {
		prefixStr := fmt.Sprintf("notif:%s:%s:", user.Role, user.ID)
		prefix := []byte(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		seekKey := append(prefix, []byte("9999999999999999999")...)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(notifications) == limit {
				break
			}
			var n domain.Notification
			err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &n)
			})
			if err != nil {
				return err
			}
			notifications = append(notifications, n)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return notifications, nil
}
