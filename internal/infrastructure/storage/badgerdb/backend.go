package badgerdb

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"golang.org/x/exp/slog"

	"certkeeper/internal/domain/certificate"
)

const recordPrefix = "cert/"

// Backend stores one JSON document per certificate under cert/<id>.
type Backend struct {
	db     *DB
	log    *slog.Logger
	shared bool
}

// NewBackend wraps db. When shared is true Close leaves db open for the other
// users of the handle.
func NewBackend(db *DB, shared bool, log *slog.Logger) *Backend {
	return &Backend{db: db, shared: shared, log: log.With("component", "badger_backend")}
}

func (b *Backend) LoadAll(_ context.Context) ([]*certificate.Record, error) {
	var out []*certificate.Record
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(recordPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				var rec certificate.Record
				if err := json.Unmarshal(val, &rec); err != nil {
					b.log.Warn("skipping unreadable certificate", "key", string(item.Key()), "error", err)
					return nil
				}
				out = append(out, &rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load certificates: %w", err)
	}
	return out, nil
}

func (b *Backend) Save(_ context.Context, rec *certificate.Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: %v", certificate.ErrInvalidData, err)
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(recordPrefix+rec.ID), raw)
	})
	if err != nil {
		return fmt.Errorf("save certificate: %w", err)
	}
	return nil
}

func (b *Backend) Delete(_ context.Context, id string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(recordPrefix + id))
	})
	if err != nil {
		return fmt.Errorf("delete certificate: %w", err)
	}
	return nil
}

func (b *Backend) Ping(_ context.Context) error {
	if b.db.IsClosed() {
		return badger.ErrDBClosed
	}
	return nil
}

func (b *Backend) Close() error {
	if b.shared {
		return nil
	}
	return b.db.Close()
}
