package repositories

import (
	stderrors "errors"

	"github.com/dgraph-io/badger/v4"
)

// update runs fn in a read-write transaction, retrying on SSI
// conflict. Aggregate read-modify-writes (unread counters, call
// status) go through this so concurrent sends never lose an update.
func update(db *badger.DB, fn func(txn *badger.Txn) error) error {
	for {
		err := db.Update(fn)
		if !stderrors.Is(err, badger.ErrConflict) {
			return err
		}
	}
}
