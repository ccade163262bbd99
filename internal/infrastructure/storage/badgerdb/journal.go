package badgerdb

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"certkeeper/internal/offline"
)

var queueKey = []byte("queue/pending")

// QueueJournal keeps the offline queue as a single JSON array.
type QueueJournal struct {
	db *DB
}

func NewQueueJournal(db *DB) *QueueJournal {
	return &QueueJournal{db: db}
}

func (j *QueueJournal) Load() ([]offline.Entry, error) {
	var entries []offline.Entry
	err := j.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(queueKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entries)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("load queue journal: %w", err)
	}
	return entries, nil
}

func (j *QueueJournal) Store(entries []offline.Entry) error {
	err := j.db.Update(func(txn *badger.Txn) error {
		if len(entries) == 0 {
			return txn.Delete(queueKey)
		}
		raw, err := json.Marshal(entries)
		if err != nil {
			return err
		}
		return txn.Set(queueKey, raw)
	})
	if err != nil {
		return fmt.Errorf("store queue journal: %w", err)
	}
	return nil
}
