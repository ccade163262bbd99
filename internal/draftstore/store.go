// Package draftstore keeps certificate records in an in-memory cache backed by
// a durable Backend. Every mutation reaches the backend before the cache, so a
// failed write leaves the cache untouched.
package draftstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/exp/slog"

	"certkeeper/internal/domain/certificate"
	"certkeeper/internal/metrics"
)

// Backend persists whole records. Save is an upsert and Delete of a missing id
// is not an error.
type Backend interface {
	LoadAll(ctx context.Context) ([]*certificate.Record, error)
	Save(ctx context.Context, rec *certificate.Record) error
	Delete(ctx context.Context, id string) error
	Close() error
}

// Pinger is implemented by backends that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Patch lists the mutable parts of a record. Nil fields are left alone.
type Patch struct {
	Data   certificate.Payload
	Status *certificate.Status
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	Type   certificate.Type
	Status certificate.Status
}

func (f Filter) match(rec *certificate.Record) bool {
	if f.Type != "" && rec.CertificateType != f.Type {
		return false
	}
	if f.Status != "" && rec.Status != f.Status {
		return false
	}
	return true
}

type Option func(*Store)

// WithNow replaces the wall clock used for timestamps.
func WithNow(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

type Store struct {
	mu      sync.RWMutex
	backend Backend
	cache   map[string]*certificate.Record
	log     *slog.Logger
	now     func() time.Time
}

// Open loads every record from backend into memory.
func Open(ctx context.Context, backend Backend, log *slog.Logger, opts ...Option) (*Store, error) {
	s := &Store{
		backend: backend,
		cache:   make(map[string]*certificate.Record),
		log:     log.With("component", "draftstore"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	recs, err := backend.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	for _, rec := range recs {
		s.cache[rec.ID] = rec
	}
	metrics.StoreRecords.Set(float64(len(s.cache)))
	s.log.Debug("draft store opened", "records", len(s.cache))
	return s, nil
}

// Add persists a new record. The record must carry an id that is not in use.
func (s *Store) Add(ctx context.Context, rec *certificate.Record) (err error) {
	defer func() { metrics.StoreOperations.WithLabelValues("add", metrics.Result(err)).Inc() }()

	rec = rec.Clone()
	if rec.Data == nil {
		rec.Data = certificate.Payload{}
	}
	rec.SyncDisplayFields()
	if err := rec.Validate(); err != nil {
		return err
	}
	sum, err := rec.ComputeChecksum()
	if err != nil {
		return fmt.Errorf("%w: %v", certificate.ErrInvalidData, err)
	}
	rec.Checksum = sum

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.cache[rec.ID]; exists {
		return fmt.Errorf("add %s: %w", rec.ID, certificate.ErrDuplicateID)
	}
	now := s.now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}
	if err := s.backend.Save(ctx, rec); err != nil {
		s.log.Error("failed to add record", "id", rec.ID, "error", err)
		return fmt.Errorf("add %s: %w", rec.ID, err)
	}
	s.cache[rec.ID] = rec
	metrics.StoreRecords.Set(float64(len(s.cache)))
	return nil
}

// Update applies patch to the record with the given id and refreshes
// updated_at. Data writes to complete or issued records fail with
// ErrFinalized; status changes must move forward.
func (s *Store) Update(ctx context.Context, id string, patch Patch) (rec *certificate.Record, err error) {
	defer func() { metrics.StoreOperations.WithLabelValues("update", metrics.Result(err)).Inc() }()

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.cache[id]
	if !ok {
		return nil, fmt.Errorf("update %s: %w", id, certificate.ErrNotFound)
	}
	next := cur.Clone()

	if patch.Data != nil {
		if !cur.Editable() {
			return nil, fmt.Errorf("update %s: %w", id, certificate.ErrFinalized)
		}
		next.Data = patch.Data.Clone()
		next.SyncDisplayFields()
	}
	if patch.Status != nil {
		if err := patch.Status.Validate(); err != nil {
			return nil, err
		}
		if err := cur.Status.CanTransitionTo(*patch.Status); err != nil {
			return nil, fmt.Errorf("update %s: %w", id, err)
		}
		next.Status = *patch.Status
	}
	sum, err := next.ComputeChecksum()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", certificate.ErrInvalidData, err)
	}
	next.Checksum = sum
	next.UpdatedAt = s.now().UTC()

	if err := s.backend.Save(ctx, next); err != nil {
		s.log.Error("failed to update record", "id", id, "error", err)
		return nil, fmt.Errorf("update %s: %w", id, err)
	}
	s.cache[id] = next
	return next.Clone(), nil
}

// Put stores a complete record as sent by a replica. A new id is inserted
// as-is; an existing one keeps its type and created_at, may only move its
// status forward and may only change data while editable.
func (s *Store) Put(ctx context.Context, rec *certificate.Record) (out *certificate.Record, created bool, err error) {
	defer func() { metrics.StoreOperations.WithLabelValues("put", metrics.Result(err)).Inc() }()

	next := rec.Clone()
	if next.Data == nil {
		next.Data = certificate.Payload{}
	}
	next.SyncDisplayFields()
	if err := next.Validate(); err != nil {
		return nil, false, err
	}
	sum, err := next.ComputeChecksum()
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", certificate.ErrInvalidData, err)
	}
	next.Checksum = sum

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, exists := s.cache[next.ID]
	now := s.now().UTC()
	if exists {
		if cur.CertificateType != next.CertificateType {
			return nil, false, fmt.Errorf("%w: certificate type cannot change", certificate.ErrInvalidData)
		}
		if err := cur.Status.CanTransitionTo(next.Status); err != nil {
			return nil, false, fmt.Errorf("put %s: %w", next.ID, err)
		}
		if !cur.Editable() {
			curSum := cur.Checksum
			if curSum == "" {
				curSum, _ = cur.ComputeChecksum()
			}
			if curSum != next.Checksum {
				return nil, false, fmt.Errorf("put %s: %w", next.ID, certificate.ErrFinalized)
			}
		}
		next.CreatedAt = cur.CreatedAt
	} else if next.CreatedAt.IsZero() {
		next.CreatedAt = now
	}
	if next.UpdatedAt.IsZero() {
		next.UpdatedAt = now
	}

	if err := s.backend.Save(ctx, next); err != nil {
		s.log.Error("failed to put record", "id", next.ID, "error", err)
		return nil, false, fmt.Errorf("put %s: %w", next.ID, err)
	}
	s.cache[next.ID] = next
	metrics.StoreRecords.Set(float64(len(s.cache)))
	return next.Clone(), !exists, nil
}

// Get returns a copy of the record.
func (s *Store) Get(id string) (*certificate.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.cache[id]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// Status reports the lifecycle status of id without copying the payload.
func (s *Store) Status(id string) (certificate.Status, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.cache[id]
	if !ok {
		return "", false
	}
	return rec.Status, true
}

// Delete removes the record. Deleting a missing id succeeds.
func (s *Store) Delete(ctx context.Context, id string) (err error) {
	defer func() { metrics.StoreOperations.WithLabelValues("delete", metrics.Result(err)).Inc() }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Delete(ctx, id); err != nil {
		s.log.Error("failed to delete record", "id", id, "error", err)
		return fmt.Errorf("delete %s: %w", id, err)
	}
	delete(s.cache, id)
	metrics.StoreRecords.Set(float64(len(s.cache)))
	return nil
}

// List returns copies of the matching records, most recently updated first.
func (s *Store) List(f Filter) []*certificate.Record {
	s.mu.RLock()
	out := make([]*certificate.Record, 0, len(s.cache))
	for _, rec := range s.cache {
		if f.match(rec) {
			out = append(out, rec.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Ping checks the backend when it supports it.
func (s *Store) Ping(ctx context.Context) error {
	if p, ok := s.backend.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.Close(); err != nil {
		return fmt.Errorf("close backend: %w", err)
	}
	return nil
}
