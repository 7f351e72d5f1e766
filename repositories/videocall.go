//go:generate go run go.uber.org/mock/mockgen -source=videocall.go -destination=../mocks/mock_videocall_repository.go -package=mocks
package repositories

import (
	"care-relay/domain"
	"care-relay/errors"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type IVideoCallRepository interface {
	Create(call *domain.VideoCall) error
	Get(id uuid.UUID) (domain.VideoCall, error)
	UpdateStatus(id uuid.UUID, status domain.CallStatus, at time.Time) (domain.VideoCall, error)
	ListForUser(user domain.Identity, limit int) ([]domain.VideoCall, error)
}

type VideoCallRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewVideoCallRepository(db *badger.DB, log *slog.Logger) *VideoCallRepository {
	return &VideoCallRepository{db: db, log: log}
}

func callKey(id uuid.UUID) []byte {
	return []byte("call:" + id.String())
}

func callIndexKey(user domain.Identity, at time.Time, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("calluser:%s:%s:%019d:%s", user.Role, user.ID, at.UnixNano(), id))
}

func (r *VideoCallRepository) Create(call *domain.VideoCall) error {
	if call.ID == uuid.Nil {
		call.ID = uuid.New()
	}
	if call.CreatedAt.IsZero() {
		call.CreatedAt = time.Now().UTC()
	}
	if call.Status == "" {
		call.Status = domain.CallInitiated
	}
	bytes, err := json.Marshal(call)
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(callKey(call.ID), bytes); err != nil {
			return err
		}
		if err := txn.Set(callIndexKey(call.Caller(), call.CreatedAt, call.ID), callKey(call.ID)); err != nil {
			return err
		}
		return txn.Set(callIndexKey(call.Receiver(), call.CreatedAt, call.ID), callKey(call.ID))
	})
}

func (r *VideoCallRepository) Get(id uuid.UUID) (domain.VideoCall, error) {
	var call domain.VideoCall
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(callKey(id))
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return errors.ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &call)
		})
	})
	if err != nil {
		return domain.VideoCall{}, err
	}
	return call, nil
}

// UpdateStatus applies a client-reported transition. Terminal records
// are frozen: a late report on a completed call returns the stored
// row unchanged instead of resurrecting it. answeredAt is stamped on
// the first transition to ongoing, endedAt on any terminal state, and
// duration recomputed from the two.
func (r *VideoCallRepository) UpdateStatus(id uuid.UUID, status domain.CallStatus, at time.Time) (domain.VideoCall, error) {
	var call domain.VideoCall
	err := update(r.db, func(txn *badger.Txn) error {
		item, err := txn.Get(callKey(id))
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return errors.ErrNotFound
		}
		if err != nil {
			return err
		}
		if err := item.Value(func(value []byte) error {
			return json.Unmarshal(value, &call)
		}); err != nil {
			return err
		}
		if call.Status.Terminal() {
			return nil
		}

		call.Status = status
		if status == domain.CallOngoing && call.AnsweredAt == nil {
			call.AnsweredAt = lo.ToPtr(at)
		}
		if status.Terminal() {
			call.EndedAt = lo.ToPtr(at)
		}
		call.DurationSeconds = int64(call.Duration().Seconds())

		bytes, err := json.Marshal(call)
		if err != nil {
			return err
		}
		return txn.Set(callKey(id), bytes)
	})
	if err != nil {
		return domain.VideoCall{}, err
	}
	return call, nil
}

// ListForUser returns the newest calls first.
func (r *VideoCallRepository) ListForUser(user domain.Identity, limit int) ([]domain.VideoCall, error) {
	var calls []domain.VideoCall
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("calluser:%s:%s:", user.Role, user.ID))
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		seekKey := append(prefix, []byte("9999999999999999999")...)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(calls) == limit {
				break
			}
			var refKey []byte
			err := it.Item().Value(func(value []byte) error {
				refKey = append([]byte(nil), value...)
				return nil
			})
			if err != nil {
				return err
			}
			item, err := txn.Get(refKey)
			if stderrors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			var call domain.VideoCall
			if err := item.Value(func(value []byte) error {
				return json.Unmarshal(value, &call)
			}); err != nil {
				return err
			}
			calls = append(calls, call)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return calls, nil
}
