//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"care-relay/domain"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type IMessageRepository interface {
	Store(message *domain.Message) error
	List(conversationID string, cursor *string, limit int) ([]domain.Message, *string, error)
	MarkRead(conversationID string, reader domain.Identity, at time.Time) (int, error)
}

type MessageRepository struct {
	db        *badger.DB
	seq       *badger.Sequence
	log       *slog.Logger
	pageLimit int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, pageLimit int) (*MessageRepository, error) {
	seq, err := db.GetSequence([]byte("seq:msg"), 128)
	if err != nil {
		return nil, fmt.Errorf("message sequence: %w", err)
	}
	return &MessageRepository{db: db, seq: seq, log: log, pageLimit: pageLimit}, nil
}

// Close releases the unused tail of the sequence lease.
func (r *MessageRepository) Close() error {
	return r.seq.Release()
}

// messageKey formats "msg:{conversation}:{timestamp_padded}:{seq_padded}".
//  1. The 19-digit zero-padded nanos make lexicographic order chronological.
//  2. The store-assigned sequence breaks ties when two messages land on
//     the same nanosecond, so ordering stays stable.
func messageKey(conversationID string, at time.Time, seq uint64) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%012d", conversationID, at.UnixNano(), seq))
}

// Store persists a new message row and stamps the server-assigned
// fields (id, seq, createdAt) onto the argument so callers can echo
// them back to the sender.
func (r *MessageRepository) Store(message *domain.Message) error {
	if message.ID == uuid.Nil {
		message.ID = uuid.New()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	seq, err := r.seq.Next()
	if err != nil {
		return fmt.Errorf("next message seq: %w", err)
	}
	message.Seq = seq

	bytes, err := json.Marshal(message)
	if err != nil {
		return err
	}
	key := messageKey(message.ConversationID, message.CreatedAt, message.Seq)
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, bytes)
	})
}

// List pages a conversation backwards from the cursor (or from the
// newest message when cursor is nil) and returns the page re-sorted
// chronologically, plus the cursor for the next older page.
func (r *MessageRepository) List(conversationID string, cursor *string, limit int) ([]domain.Message, *string, error) {
	if limit <= 0 || limit > r.pageLimit {
		limit = r.pageLimit
	}

	var raw [][]byte
	var lastKey string
	err := r.db.View(func(txn *badger.Txn) error {
		prefixStr := fmt.Sprintf("msg:%s:", conversationID)
		prefix := []byte(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Seek past any real timestamp, then walk backwards.
			seekKey = append(prefix, []byte("9999999999999999999")...)
		default:
			seekKey = append(prefix, []byte(*cursor)...)
		}

		it.Seek(seekKey)
		if cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if len(raw) == limit {
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[len(prefixStr):])
			err := item.Value(func(value []byte) error {
				raw = append(raw, append([]byte(nil), value...))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if len(raw) == 0 {
		return nil, nil, nil
	}

	// Reverse scan yields newest first; history reads chronologically.
	messages := make([]domain.Message, len(raw))
	for i, b := range raw {
		var m domain.Message
		if err = json.Unmarshal(b, &m); err != nil {
			return nil, nil, err
		}
		messages[len(raw)-1-i] = m
	}
	return messages, &lastKey, nil
}

// markReadChunk caps the rewrites per transaction so a long unread
// backlog never trips badger's ErrTxnTooBig.
const markReadChunk = 500

// MarkRead flips every unread message addressed to the reader and
// reports how many it touched. Already-read rows keep their original
// readAt. Writes are chunked across transactions, resuming from the
// last key each round.
func (r *MessageRepository) MarkRead(conversationID string, reader domain.Identity, at time.Time) (int, error) {
	prefix := []byte(fmt.Sprintf("msg:%s:", conversationID))
	resume := append([]byte(nil), prefix...)
	total := 0
	for {
		var flipped int
		var next []byte
		err := update(r.db, func(txn *badger.Txn) error {
			flipped = 0
			next = nil
			options := badger.DefaultIteratorOptions
			it := txn.NewIterator(options)
			defer it.Close()

			for it.Seek(resume); it.ValidForPrefix(prefix); it.Next() {
				item := it.Item()
				if flipped == markReadChunk {
					next = append([]byte(nil), item.Key()...)
					return nil
				}
				var m domain.Message
				err := item.Value(func(value []byte) error {
					return json.Unmarshal(value, &m)
				})
				if err != nil {
					return err
				}
				if m.IsRead || m.ReceiverID != reader.ID || m.ReceiverType != reader.Role {
					continue
				}
				m.IsRead = true
				m.ReadAt = lo.ToPtr(at)
				bytes, err := json.Marshal(m)
				if err != nil {
					return err
				}
				if err := txn.Set(append([]byte(nil), item.Key()...), bytes); err != nil {
					return err
				}
				flipped++
			}
			return nil
		})
		if err != nil {
			return total, err
		}
		total += flipped
		if next == nil {
			break
		}
		resume = next
	}
	if total > 0 {
		r.log.Debug("Marked messages read", "conversation", conversationID, "reader", reader.String(), "count", total)
	}
	return total, nil
}
