//go:generate go run go.uber.org/mock/mockgen -source=conversation.go -destination=../mocks/mock_conversation_repository.go -package=mocks
package repositories

import (
	"care-relay/domain"
	"care-relay/errors"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
)

type IConversationRepository interface {
	GetOrCreate(patientID, doctorID, patientName, doctorName string) (domain.Conversation, bool, error)
	Get(conversationID string) (domain.Conversation, error)
	ApplyMessage(message domain.Message) (domain.Conversation, error)
	ResetUnread(conversationID string, reader domain.Role) (domain.Conversation, error)
	ListForUser(user domain.Identity, limit int) ([]domain.Conversation, error)
}

type ConversationRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewConversationRepository(db *badger.DB, log *slog.Logger) *ConversationRepository {
	return &ConversationRepository{db: db, log: log}
}

func conversationKey(id string) []byte {
	return []byte("conv:" + id)
}

// userIndexKey formats "convuser:{role}:{userID}:{conversationID}".
// One entry per participant; the value is the conversation id.
func userIndexKey(role domain.Role, userID, conversationID string) []byte {
	return []byte(fmt.Sprintf("convuser:%s:%s:%s", role, userID, conversationID))
}

// GetOrCreate resolves the deterministic conversation for a pair,
// creating it with zero counters on first contact. The second return
// value reports whether a new record was created.
func (r *ConversationRepository) GetOrCreate(patientID, doctorID, patientName, doctorName string) (domain.Conversation, bool, error) {
	id := domain.ConversationID(patientID, doctorID)
	var conv domain.Conversation
	created := false

	err := update(r.db, func(txn *badger.Txn) error {
		created = false
		item, err := txn.Get(conversationKey(id))
		switch {
		case err == nil:
			return item.Value(func(value []byte) error {
				return json.Unmarshal(value, &conv)
			})
		case stderrors.Is(err, badger.ErrKeyNotFound):
			conv = domain.Conversation{
				ID:          id,
				PatientID:   patientID,
				DoctorID:    doctorID,
				PatientName: patientName,
				DoctorName:  doctorName,
				IsActive:    true,
				CreatedAt:   time.Now().UTC(),
			}
			created = true
			return r.write(txn, conv)
		default:
			return err
		}
	})
	if err != nil {
		return domain.Conversation{}, false, err
	}
	return conv, created, nil
}

func (r *ConversationRepository) Get(conversationID string) (domain.Conversation, error) {
	var conv domain.Conversation
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(conversationKey(conversationID))
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return errors.ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &conv)
		})
	})
	if err != nil {
		return domain.Conversation{}, err
	}
	return conv, nil
}

// ApplyMessage updates the aggregate for one send: last-message
// snapshot plus the receiver-role unread counter, created lazily when
// the pair has no conversation yet. The whole read-modify-write runs
// in a single retried transaction, so concurrent sends to the same
// conversation cannot lose increments.
func (r *ConversationRepository) ApplyMessage(message domain.Message) (domain.Conversation, error) {
	var conv domain.Conversation
	err := update(r.db, func(txn *badger.Txn) error {
		item, err := txn.Get(conversationKey(message.ConversationID))
		switch {
		case err == nil:
			if err := item.Value(func(value []byte) error {
				return json.Unmarshal(value, &conv)
			}); err != nil {
				return err
			}
		case stderrors.Is(err, badger.ErrKeyNotFound):
			conv = fromFirstMessage(message)
		default:
			return err
		}

		conv.LastMessage = message.Preview(120)
		conv.LastMessageTime = message.CreatedAt
		conv.LastMessageSender = message.SenderType
		conv.IncrementUnread(message.ReceiverType)
		return r.write(txn, conv)
	})
	if err != nil {
		return domain.Conversation{}, err
	}
	return conv, nil
}

// ResetUnread zeroes the reader-role counter. Absent conversations
// surface ErrNotFound so the chat path can treat them as a no-op.
func (r *ConversationRepository) ResetUnread(conversationID string, reader domain.Role) (domain.Conversation, error) {
	var conv domain.Conversation
	err := update(r.db, func(txn *badger.Txn) error {
		item, err := txn.Get(conversationKey(conversationID))
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return errors.ErrNotFound
		}
		if err != nil {
			return err
		}
		if err := item.Value(func(value []byte) error {
			return json.Unmarshal(value, &conv)
		}); err != nil {
			return err
		}
		conv.ResetUnread(reader)
		return r.write(txn, conv)
	})
	if err != nil {
		return domain.Conversation{}, err
	}
	return conv, nil
}

// ListForUser walks the per-user index and loads each conversation,
// newest activity first, capped at limit.
func (r *ConversationRepository) ListForUser(user domain.Identity, limit int) ([]domain.Conversation, error) {
	var conversations []domain.Conversation
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("convuser:%s:%s:", user.Role, user.ID))
		options := badger.DefaultIteratorOptions
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var id string
			err := it.Item().Value(func(value []byte) error {
				id = string(value)
				return nil
			})
			if err != nil {
				return err
			}
			item, err := txn.Get(conversationKey(id))
			if stderrors.Is(err, badger.ErrKeyNotFound) {
				// Dangling index entry; skip rather than fail the listing.
				r.log.Warn("Conversation index points at missing record", "conversation", id)
				continue
			}
			if err != nil {
				return err
			}
			var conv domain.Conversation
			if err := item.Value(func(value []byte) error {
				return json.Unmarshal(value, &conv)
			}); err != nil {
				return err
			}
			conversations = append(conversations, conv)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(conversations, func(i, j int) bool {
		return conversations[i].LastMessageTime.After(conversations[j].LastMessageTime)
	})
	if limit > 0 && len(conversations) > limit {
		conversations = conversations[:limit]
	}
	return conversations, nil
}

func (r *ConversationRepository) write(txn *badger.Txn, conv domain.Conversation) error {
	bytes, err := json.Marshal(conv)
	if err != nil {
		return err
	}
	if err := txn.Set(conversationKey(conv.ID), bytes); err != nil {
		return err
	}
	if err := txn.Set(userIndexKey(domain.RolePatient, conv.PatientID, conv.ID), []byte(conv.ID)); err != nil {
		return err
	}
	return txn.Set(userIndexKey(domain.RoleDoctor, conv.DoctorID, conv.ID), []byte(conv.ID))
}

func fromFirstMessage(message domain.Message) domain.Conversation {
	conv := domain.Conversation{
		ID:        message.ConversationID,
		IsActive:  true,
		CreatedAt: message.CreatedAt,
	}
	if message.SenderType == domain.RolePatient {
		conv.PatientID = message.SenderID
		conv.DoctorID = message.ReceiverID
	} else {
		conv.PatientID = message.ReceiverID
		conv.DoctorID = message.SenderID
	}
	return conv
}
