// Package offline holds saves made while the store is unreachable and replays
// them once connectivity returns.
package offline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/exp/slog"

	"certkeeper/internal/domain/certificate"
	"certkeeper/internal/metrics"
)

var ErrFlushInProgress = errors.New("offline queue flush already in progress")

// Entry is one pending save. Only the latest payload per id is kept.
type Entry struct {
	ID         string              `json:"id"`
	Data       certificate.Payload `json:"data"`
	EnqueuedAt time.Time           `json:"enqueuedAt"`
}

// Journal persists the pending entries so they survive a restart.
type Journal interface {
	Load() ([]Entry, error)
	Store(entries []Entry) error
}

// WriteFunc applies one queued save.
type WriteFunc func(ctx context.Context, id string, data certificate.Payload) error

// EntryError is the failure of a single entry during Flush.
type EntryError struct {
	ID  string
	Err error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("flush %s: %v", e.ID, e.Err)
}

func (e *EntryError) Unwrap() error {
	return e.Err
}

type FlushResult struct {
	Written  []string
	Failed   []*EntryError
	Requeued int
}

type Queue struct {
	mu       sync.Mutex
	entries  []Entry
	index    map[string]int
	journal  Journal
	log      *slog.Logger
	now      func() time.Time
	flushing atomic.Bool
}

// New builds a queue, restoring pending entries from journal when one is given.
func New(journal Journal, log *slog.Logger) (*Queue, error) {
	q := &Queue{
		index:   make(map[string]int),
		journal: journal,
		log:     log.With("component", "offline_queue"),
		now:     time.Now,
	}
	if journal != nil {
		entries, err := journal.Load()
		if err != nil {
			return nil, fmt.Errorf("load queue journal: %w", err)
		}
		for _, e := range entries {
			q.put(e)
		}
		if len(entries) > 0 {
			q.log.Info("restored pending saves", "count", len(q.entries))
		}
	}
	metrics.QueueDepth.Set(float64(len(q.entries)))
	return q, nil
}

// put upserts e, keeping the position of an existing entry. Caller holds mu.
func (q *Queue) put(e Entry) {
	if i, ok := q.index[e.ID]; ok {
		q.entries[i] = e
		return
	}
	q.index[e.ID] = len(q.entries)
	q.entries = append(q.entries, e)
}

func (q *Queue) reindex() {
	q.index = make(map[string]int, len(q.entries))
	for i, e := range q.entries {
		q.index[e.ID] = i
	}
}

// persist writes the current entries to the journal. Caller holds mu. A
// journal failure is logged; the in-memory queue stays authoritative.
func (q *Queue) persist() {
	metrics.QueueDepth.Set(float64(len(q.entries)))
	if q.journal == nil {
		return
	}
	if err := q.journal.Store(q.snapshot()); err != nil {
		q.log.Error("failed to persist queue journal", "error", err)
	}
}

func (q *Queue) snapshot() []Entry {
	out := make([]Entry, len(q.entries))
	for i, e := range q.entries {
		out[i] = Entry{ID: e.ID, Data: e.Data.Clone(), EnqueuedAt: e.EnqueuedAt}
	}
	return out
}

// Enqueue records data as the pending save for id, replacing any earlier one.
func (q *Queue) Enqueue(id string, data certificate.Payload) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.put(Entry{ID: id, Data: data.Clone(), EnqueuedAt: q.now().UTC()})
	q.persist()
	q.log.Debug("save queued", "id", id, "pending", len(q.entries))
}

// Remove drops the pending save for id. It is called once newer data for id
// reached the store directly, so the stale entry cannot overwrite it later.
func (q *Queue) Remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	i, ok := q.index[id]
	if !ok {
		return false
	}
	q.entries = append(q.entries[:i], q.entries[i+1:]...)
	q.reindex()
	q.persist()
	q.log.Debug("queued save superseded", "id", id, "pending", len(q.entries))
	return true
}

// Flush writes every pending entry in order. Entries that fail are put back
// at the front of the queue unless a newer save for the same id was enqueued
// while flushing. The returned error joins every per-entry failure.
func (q *Queue) Flush(ctx context.Context, write WriteFunc) (FlushResult, error) {
	if !q.flushing.CompareAndSwap(false, true) {
		return FlushResult{}, ErrFlushInProgress
	}
	defer q.flushing.Store(false)

	q.mu.Lock()
	batch := q.entries
	q.entries = nil
	q.index = make(map[string]int)
	q.persist()
	q.mu.Unlock()

	var (
		res    FlushResult
		failed []Entry
		errs   []error
	)
	for _, e := range batch {
		if err := ctx.Err(); err != nil {
			ee := &EntryError{ID: e.ID, Err: err}
			res.Failed = append(res.Failed, ee)
			errs = append(errs, ee)
			failed = append(failed, e)
			continue
		}
		if err := write(ctx, e.ID, e.Data); err != nil {
			q.log.Warn("queued save failed", "id", e.ID, "error", err)
			ee := &EntryError{ID: e.ID, Err: err}
			res.Failed = append(res.Failed, ee)
			errs = append(errs, ee)
			failed = append(failed, e)
			metrics.QueueFlushed.WithLabelValues("error").Inc()
			continue
		}
		res.Written = append(res.Written, e.ID)
		metrics.QueueFlushed.WithLabelValues("ok").Inc()
	}

	if len(failed) > 0 {
		q.mu.Lock()
		requeue := make([]Entry, 0, len(failed)+len(q.entries))
		for _, e := range failed {
			if _, newer := q.index[e.ID]; newer {
				continue
			}
			requeue = append(requeue, e)
		}
		res.Requeued = len(requeue)
		q.entries = append(requeue, q.entries...)
		q.reindex()
		q.persist()
		q.mu.Unlock()
	}

	if len(res.Written) > 0 || len(failed) > 0 {
		q.log.Info("offline queue flushed", "written", len(res.Written), "failed", len(failed))
	}
	return res, errors.Join(errs...)
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Entries returns a copy of the pending saves in flush order.
func (q *Queue) Entries() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshot()
}

// Has reports whether a save for id is pending.
func (q *Queue) Has(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.index[id]
	return ok
}
