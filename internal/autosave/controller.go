// Package autosave debounces edits to one certificate and moves them to the
// draft store, the offline queue or nowhere at all when the certificate has
// been finalized.
package autosave

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/exp/slog"

	"certkeeper/internal/domain/certificate"
	"certkeeper/internal/metrics"
	"certkeeper/internal/offline"
)

type Status string

const (
	StatusIdle    Status = "idle"
	StatusDirty   Status = "dirty"
	StatusSaving  Status = "saving"
	StatusSaved   Status = "saved"
	StatusOffline Status = "offline"
	StatusError   Status = "error"
)

type Config struct {
	// Debounce is the quiet window after the last edit before a save runs.
	Debounce time.Duration
	// SavedDisplay is how long StatusSaved is shown before relaxing to idle.
	SavedDisplay time.Duration
}

func DefaultConfig() Config {
	return Config{
		Debounce:     600 * time.Millisecond,
		SavedDisplay: 2 * time.Second,
	}
}

type (
	SaveFunc   func(ctx context.Context, id string, data certificate.Payload) error
	CreateFunc func(ctx context.Context, data certificate.Payload) (string, error)
	LookupFunc func(id string) (certificate.Status, bool)
)

// Network reports connectivity. *connectivity.Detector satisfies it.
type Network interface {
	IsOnline() bool
	Subscribe(fn func(online bool)) func()
}

// Queue buffers saves while offline. *offline.Queue satisfies it.
type Queue interface {
	Enqueue(id string, data certificate.Payload)
	Remove(id string) bool
	Flush(ctx context.Context, write offline.WriteFunc) (offline.FlushResult, error)
}

type Deps struct {
	Save    SaveFunc
	Create  CreateFunc
	Lookup  LookupFunc
	Queue   Queue
	Network Network
	Clock   Clock
	Log     *slog.Logger
}

// Draft is the certificate being edited. An empty ID means it has not been
// persisted yet; the first save creates it.
type Draft struct {
	ID        string
	Data      certificate.Payload
	UpdatedAt time.Time
}

// Conflict describes a concurrent modification. Nothing detects conflicts
// yet, so Snapshot.Conflict is always nil.
type Conflict struct {
	KnownUpdatedAt time.Time
	StoreUpdatedAt time.Time
}

type Snapshot struct {
	ID        string
	Status    Status
	IsSaving  bool
	Dirty     bool
	LastSaved time.Time
	Conflict  *Conflict
}

type Controller struct {
	cfg  Config
	deps Deps
	log  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// saveMu serialises the save procedure, queue flushes and the final save.
	saveMu sync.Mutex

	mu                 sync.Mutex
	id                 string
	data               certificate.Payload
	dirty              bool
	edits              uint64
	status             Status
	saving             bool
	lastSaved          time.Time
	lastKnownUpdatedAt time.Time
	debounce           Timer
	debounceGen        uint64
	settle             Timer
	settleGen          uint64
	listeners          map[int]func(Snapshot)
	nextListener       int
	unsubscribe        func()
	closed             bool
}

func New(ctx context.Context, draft Draft, cfg Config, deps Deps) *Controller {
	if deps.Clock == nil {
		deps.Clock = RealClock()
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultConfig().Debounce
	}
	if cfg.SavedDisplay <= 0 {
		cfg.SavedDisplay = DefaultConfig().SavedDisplay
	}

	log := deps.Log.With("component", "autosave")
	if draft.ID != "" {
		log = log.With("id", draft.ID)
	}
	c := &Controller{
		cfg:                cfg,
		deps:               deps,
		log:                log,
		id:                 draft.ID,
		data:               draft.Data.Clone(),
		status:             StatusIdle,
		lastKnownUpdatedAt: draft.UpdatedAt,
		listeners:          make(map[int]func(Snapshot)),
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	if deps.Network != nil {
		c.unsubscribe = deps.Network.Subscribe(c.onConnectivity)
	}
	return c
}

// OnChange registers fn to receive every status change. fn runs with the
// controller locked and must not call back into it.
func (c *Controller) OnChange(fn func(Snapshot)) func() {
	c.mu.Lock()
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		ID:        c.id,
		Status:    c.status,
		IsSaving:  c.saving,
		Dirty:     c.dirty,
		LastSaved: c.lastSaved,
	}
}

// KnownUpdatedAt is the last updated_at this controller wrote or loaded.
func (c *Controller) KnownUpdatedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastKnownUpdatedAt
}

// Data returns a copy of the latest edited payload.
func (c *Controller) Data() certificate.Payload {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data.Clone()
}

// setStatus changes the status and notifies listeners. Caller holds mu.
func (c *Controller) setStatus(s Status) {
	if c.settle != nil {
		c.settle.Stop()
		c.settle = nil
	}
	c.settleGen++
	if c.status == s {
		return
	}
	c.status = s
	snap := c.snapshotLocked()
	for _, fn := range c.listeners {
		fn(snap)
	}
}

// MarkDirty records data as the latest edit and restarts the debounce window.
func (c *Controller) MarkDirty(data certificate.Payload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	c.data = data.Clone()
	c.dirty = true
	c.edits++
	switch c.status {
	case StatusIdle, StatusSaved, StatusError, StatusOffline:
		c.setStatus(StatusDirty)
	}
	c.armDebounceLocked()
}

func (c *Controller) armDebounceLocked() {
	if c.debounce != nil {
		c.debounce.Stop()
	}
	c.debounceGen++
	gen := c.debounceGen
	c.debounce = c.deps.Clock.AfterFunc(c.cfg.Debounce, func() { c.fire(gen) })
}

func (c *Controller) cancelDebounceLocked() {
	if c.debounce != nil {
		c.debounce.Stop()
		c.debounce = nil
	}
	c.debounceGen++
}

func (c *Controller) fire(gen uint64) {
	c.mu.Lock()
	if c.closed || gen != c.debounceGen {
		c.mu.Unlock()
		return
	}
	c.debounce = nil
	c.mu.Unlock()

	c.save(c.ctx)
}

// TriggerSave cancels the pending debounce and saves now. It returns once
// the save procedure has finished; the outcome is reported through status.
func (c *Controller) TriggerSave(ctx context.Context) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.cancelDebounceLocked()
	c.mu.Unlock()

	c.save(ctx)
}

func (c *Controller) save(ctx context.Context) {
	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	c.mu.Lock()
	if c.closed || !c.dirty {
		c.mu.Unlock()
		return
	}
	id, data, gen := c.id, c.data.Clone(), c.edits

	if id == "" {
		c.saving = true
		c.setStatus(StatusSaving)
		c.mu.Unlock()

		newID, err := c.deps.Create(ctx, data)

		c.mu.Lock()
		defer c.mu.Unlock()
		c.saving = false
		if err != nil {
			c.log.Error("failed to create certificate", "error", err)
			metrics.AutosaveOutcomes.WithLabelValues("failed").Inc()
			c.setStatus(StatusError)
			return
		}
		c.id = newID
		c.log = c.log.With("id", newID)
		c.log.Info("certificate created")
		metrics.AutosaveOutcomes.WithLabelValues("created").Inc()
		c.savedLocked(gen)
		return
	}

	if st, ok := c.deps.Lookup(id); ok && !st.Editable() {
		c.finalizedLocked(st)
		c.mu.Unlock()
		return
	}

	if c.offlineLocked() {
		c.deps.Queue.Enqueue(id, data)
		if gen == c.edits {
			c.dirty = false
		}
		metrics.AutosaveOutcomes.WithLabelValues("queued").Inc()
		c.setStatus(StatusOffline)
		c.mu.Unlock()
		return
	}

	c.saving = true
	c.setStatus(StatusSaving)
	c.mu.Unlock()

	start := time.Now()
	err := c.deps.Save(ctx, id, data)
	metrics.AutosaveDuration.Observe(time.Since(start).Seconds())

	c.mu.Lock()
	defer c.mu.Unlock()
	c.saving = false
	switch {
	case errors.Is(err, certificate.ErrFinalized):
		st, _ := c.deps.Lookup(id)
		c.finalizedLocked(st)
	case err != nil:
		c.log.Error("autosave failed", "error", err)
		metrics.AutosaveOutcomes.WithLabelValues("failed").Inc()
		c.setStatus(StatusError)
	default:
		metrics.AutosaveOutcomes.WithLabelValues("saved").Inc()
		c.supersedeQueued(id)
		c.savedLocked(gen)
	}
}

// supersedeQueued drops a pending offline save for id after newer data was
// written directly.
func (c *Controller) supersedeQueued(id string) {
	if c.deps.Queue != nil && c.deps.Queue.Remove(id) {
		c.log.Info("dropped stale queued save")
	}
}

// offlineLocked reports whether saves should go to the queue.
func (c *Controller) offlineLocked() bool {
	return c.deps.Network != nil && c.deps.Queue != nil && !c.deps.Network.IsOnline()
}

// finalizedLocked drops the pending edit of a complete or issued record.
func (c *Controller) finalizedLocked(st certificate.Status) {
	c.log.Info("skipping save for finalized certificate", "status", st)
	c.dirty = false
	c.cancelDebounceLocked()
	metrics.AutosaveOutcomes.WithLabelValues("finalized").Inc()
	c.setStatus(StatusIdle)
}

// savedLocked records a successful write of the edit numbered gen. Edits made
// while the write was in flight keep the controller dirty.
func (c *Controller) savedLocked(gen uint64) {
	now := c.deps.Clock.Now()
	c.lastSaved = now
	c.lastKnownUpdatedAt = now
	if gen != c.edits {
		c.setStatus(StatusDirty)
		return
	}
	c.dirty = false
	c.setStatus(StatusSaved)
	if c.closed {
		return
	}

	settleGen := c.settleGen
	c.settle = c.deps.Clock.AfterFunc(c.cfg.SavedDisplay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed || settleGen != c.settleGen || c.status != StatusSaved {
			return
		}
		c.setStatus(StatusIdle)
	})
}

func (c *Controller) onConnectivity(online bool) {
	if !online {
		c.mu.Lock()
		if !c.closed && (c.dirty || c.saving) {
			c.setStatus(StatusOffline)
		}
		c.mu.Unlock()
		return
	}

	c.flushQueue(c.ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.status != StatusOffline {
		return
	}
	if c.dirty {
		c.setStatus(StatusDirty)
		c.armDebounceLocked()
		return
	}
	c.setStatus(StatusIdle)
}

func (c *Controller) flushQueue(ctx context.Context) {
	if c.deps.Queue == nil {
		return
	}
	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	_, err := c.deps.Queue.Flush(ctx, c.guardedWrite)
	switch {
	case errors.Is(err, offline.ErrFlushInProgress):
		c.log.Debug("queue flush already running")
	case err != nil:
		c.log.Warn("offline queue flush incomplete", "error", err)
	}
}

// guardedWrite is the queue's write path. Finalized records are skipped so
// no queued edit can reach them.
func (c *Controller) guardedWrite(ctx context.Context, id string, data certificate.Payload) error {
	if st, ok := c.deps.Lookup(id); ok && !st.Editable() {
		c.log.Info("dropping queued save for finalized certificate", "queued_id", id, "status", st)
		return nil
	}
	err := c.deps.Save(ctx, id, data)
	if errors.Is(err, certificate.ErrFinalized) {
		return nil
	}
	return err
}

// Close stops the timers and, when an unsaved edit exists for a persisted
// certificate, makes one last save attempt without reporting its outcome.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.cancelDebounceLocked()
	if c.settle != nil {
		c.settle.Stop()
		c.settle = nil
	}
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	defer c.cancel()

	// A save in flight may still write this data; wait for it and look again.
	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	c.mu.Lock()
	id, data, dirty := c.id, c.data.Clone(), c.dirty
	c.mu.Unlock()
	if !dirty || id == "" {
		return
	}

	if st, ok := c.deps.Lookup(id); ok && !st.Editable() {
		return
	}
	if c.offlineLocked() {
		c.deps.Queue.Enqueue(id, data)
		return
	}
	if err := c.deps.Save(c.ctx, id, data); err != nil {
		c.log.Warn("final save failed", "error", err)
		return
	}
	c.supersedeQueued(id)
}
