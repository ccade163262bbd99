package autosave

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"certkeeper/internal/connectivity"
	"certkeeper/internal/domain/certificate"
	"certkeeper/internal/offline"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// Advance moves time forward, running due timers in order outside the lock.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var next *fakeTimer
		for _, t := range c.timers {
			if t.stopped || t.fired || t.at.After(target) {
				continue
			}
			if next == nil || t.at.Before(next.at) {
				next = t
			}
		}
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		c.now = next.at
		next.fired = true
		c.mu.Unlock()
		next.f()
	}
}

type saveCall struct {
	id   string
	data certificate.Payload
}

type fakeStore struct {
	mu       sync.Mutex
	saves    []saveCall
	creates  []certificate.Payload
	statuses map[string]certificate.Status
	saveErr  error
	onSave   func(n int)
}

func newFakeStore() *fakeStore {
	return &fakeStore{statuses: map[string]certificate.Status{}}
}

func (s *fakeStore) Save(_ context.Context, id string, data certificate.Payload) error {
	s.mu.Lock()
	s.saves = append(s.saves, saveCall{id: id, data: data.Clone()})
	n, err, hook := len(s.saves), s.saveErr, s.onSave
	s.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	return err
}

func (s *fakeStore) Create(_ context.Context, data certificate.Payload) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates = append(s.creates, data.Clone())
	id := "cert-1"
	s.statuses[id] = certificate.StatusDraft
	return id, nil
}

func (s *fakeStore) Lookup(id string) (certificate.Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.statuses[id]
	return st, ok
}

func (s *fakeStore) setStatus(id string, st certificate.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[id] = st
}

func (s *fakeStore) saveCalls() []saveCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]saveCall(nil), s.saves...)
}

type harness struct {
	clock    *fakeClock
	store    *fakeStore
	queue    *offline.Queue
	detector *connectivity.Detector
	ctrl     *Controller
	statuses []Status
}

func newHarness(t *testing.T, id string) *harness {
	t.Helper()
	h := &harness{
		clock:    newFakeClock(),
		store:    newFakeStore(),
		detector: connectivity.NewDetector(nil, 0, slog.Default(), true),
	}
	var err error
	h.queue, err = offline.New(nil, slog.Default())
	require.NoError(t, err)
	if id != "" {
		h.store.setStatus(id, certificate.StatusDraft)
	}

	h.ctrl = New(context.Background(), Draft{ID: id, Data: certificate.Payload{}}, DefaultConfig(), Deps{
		Save:    h.store.Save,
		Create:  h.store.Create,
		Lookup:  h.store.Lookup,
		Queue:   h.queue,
		Network: h.detector,
		Clock:   h.clock,
		Log:     slog.Default(),
	})
	h.ctrl.OnChange(func(s Snapshot) { h.statuses = append(h.statuses, s.Status) })
	return h
}

func edit(client string) certificate.Payload {
	return certificate.Payload{certificate.KeyClientName: client}
}

func TestController_CreateThenLifecycleGuard(t *testing.T) {
	h := newHarness(t, "")

	h.ctrl.MarkDirty(edit("Acme"))
	assert.Equal(t, StatusDirty, h.ctrl.Snapshot().Status)

	h.clock.Advance(599 * time.Millisecond)
	assert.Empty(t, h.store.creates)

	h.clock.Advance(time.Millisecond)
	require.Len(t, h.store.creates, 1)
	assert.Equal(t, "Acme", h.store.creates[0].String(certificate.KeyClientName))
	assert.Equal(t, []Status{StatusDirty, StatusSaving, StatusSaved}, h.statuses)

	snap := h.ctrl.Snapshot()
	assert.Equal(t, "cert-1", snap.ID)
	assert.False(t, snap.LastSaved.IsZero())
	assert.False(t, snap.Dirty)
	assert.Nil(t, snap.Conflict)

	h.clock.Advance(2 * time.Second)
	assert.Equal(t, StatusIdle, h.ctrl.Snapshot().Status)

	h.store.setStatus("cert-1", certificate.StatusIssued)
	h.ctrl.MarkDirty(edit("Acme Ltd"))
	h.clock.Advance(time.Second)

	assert.Empty(t, h.store.saveCalls())
	assert.Len(t, h.store.creates, 1)
	assert.Equal(t, StatusIdle, h.ctrl.Snapshot().Status)
	assert.NotContains(t, h.statuses, StatusError)
}

func TestController_DebounceCollapsesBursts(t *testing.T) {
	h := newHarness(t, "cert-9")

	for _, name := range []string{"A", "Ac", "Acm", "Acme", "Acme Ltd"} {
		h.ctrl.MarkDirty(edit(name))
		h.clock.Advance(100 * time.Millisecond)
	}
	assert.Empty(t, h.store.saveCalls())

	h.clock.Advance(time.Second)
	calls := h.store.saveCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "cert-9", calls[0].id)
	assert.Equal(t, "Acme Ltd", calls[0].data.String(certificate.KeyClientName))
}

func TestController_LifecycleGuard(t *testing.T) {
	for _, st := range []certificate.Status{certificate.StatusComplete, certificate.StatusIssued} {
		t.Run(string(st), func(t *testing.T) {
			h := newHarness(t, "cert-9")
			h.store.setStatus("cert-9", st)

			h.ctrl.MarkDirty(edit("A"))
			h.clock.Advance(time.Second)
			h.ctrl.MarkDirty(edit("B"))
			h.ctrl.TriggerSave(context.Background())
			h.clock.Advance(time.Second)

			assert.Empty(t, h.store.saveCalls())
			snap := h.ctrl.Snapshot()
			assert.Equal(t, StatusIdle, snap.Status)
			assert.False(t, snap.Dirty)

			h.ctrl.MarkDirty(edit("C"))
			h.ctrl.Close()
			assert.Empty(t, h.store.saveCalls())
		})
	}
}

func TestController_OfflineDeferral(t *testing.T) {
	h := newHarness(t, "cert-9")
	h.detector.Set(false)

	h.ctrl.MarkDirty(edit("A"))
	h.clock.Advance(time.Second)
	h.ctrl.MarkDirty(edit("B"))
	h.clock.Advance(time.Second)

	assert.Empty(t, h.store.saveCalls())
	assert.Equal(t, StatusOffline, h.ctrl.Snapshot().Status)
	entries := h.queue.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "B", entries[0].Data.String(certificate.KeyClientName))

	h.detector.Set(true)

	calls := h.store.saveCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "B", calls[0].data.String(certificate.KeyClientName))
	assert.Equal(t, 0, h.queue.Len())
	assert.Equal(t, StatusIdle, h.ctrl.Snapshot().Status)

	h.clock.Advance(time.Second)
	assert.Len(t, h.store.saveCalls(), 1)
}

func TestController_OfflineWhileDirtyResumesOnReconnect(t *testing.T) {
	h := newHarness(t, "cert-9")

	h.ctrl.MarkDirty(edit("A"))
	h.detector.Set(false)
	assert.Equal(t, StatusOffline, h.ctrl.Snapshot().Status)

	h.detector.Set(true)
	assert.Equal(t, StatusDirty, h.ctrl.Snapshot().Status)
	assert.Empty(t, h.store.saveCalls())

	h.clock.Advance(time.Second)
	calls := h.store.saveCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "A", calls[0].data.String(certificate.KeyClientName))
}

func TestController_QueuedSaveForFinalizedRecordDropped(t *testing.T) {
	h := newHarness(t, "cert-9")
	h.detector.Set(false)

	h.ctrl.MarkDirty(edit("A"))
	h.clock.Advance(time.Second)
	require.Equal(t, 1, h.queue.Len())

	h.store.setStatus("cert-9", certificate.StatusComplete)
	h.detector.Set(true)

	assert.Empty(t, h.store.saveCalls())
	assert.Equal(t, 0, h.queue.Len())
	assert.Equal(t, StatusIdle, h.ctrl.Snapshot().Status)
}

func TestController_ManualSaveCancelsDebounce(t *testing.T) {
	h := newHarness(t, "cert-9")

	h.ctrl.MarkDirty(edit("A"))
	h.ctrl.TriggerSave(context.Background())
	assert.Len(t, h.store.saveCalls(), 1)
	assert.Equal(t, StatusSaved, h.ctrl.Snapshot().Status)

	h.clock.Advance(5 * time.Second)
	assert.Len(t, h.store.saveCalls(), 1)
	assert.Equal(t, StatusIdle, h.ctrl.Snapshot().Status)

	h.ctrl.TriggerSave(context.Background())
	assert.Len(t, h.store.saveCalls(), 1, "nothing dirty, nothing written")
}

func TestController_CloseFlushesDirtyEdit(t *testing.T) {
	h := newHarness(t, "cert-9")

	h.ctrl.MarkDirty(edit("A"))
	h.clock.Advance(100 * time.Millisecond)
	h.ctrl.MarkDirty(edit("B"))
	h.ctrl.Close()

	calls := h.store.saveCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "B", calls[0].data.String(certificate.KeyClientName))

	h.clock.Advance(5 * time.Second)
	assert.Len(t, h.store.saveCalls(), 1)

	h.ctrl.MarkDirty(edit("C"))
	h.ctrl.TriggerSave(context.Background())
	h.ctrl.Close()
	assert.Len(t, h.store.saveCalls(), 1)
}

func TestController_CloseWithoutIDDoesNotCreate(t *testing.T) {
	h := newHarness(t, "")
	h.ctrl.MarkDirty(edit("A"))
	h.ctrl.Close()

	assert.Empty(t, h.store.creates)
	assert.Empty(t, h.store.saveCalls())
}

func TestController_CloseOfflineQueues(t *testing.T) {
	h := newHarness(t, "cert-9")
	h.detector.Set(false)
	h.ctrl.MarkDirty(edit("A"))
	h.ctrl.Close()

	assert.Empty(t, h.store.saveCalls())
	assert.Equal(t, 1, h.queue.Len())
}

func TestController_SaveErrorKeepsDirty(t *testing.T) {
	h := newHarness(t, "cert-9")
	h.store.saveErr = errors.New("disk full")

	h.ctrl.MarkDirty(edit("A"))
	h.clock.Advance(time.Second)

	snap := h.ctrl.Snapshot()
	assert.Equal(t, StatusError, snap.Status)
	assert.True(t, snap.Dirty)
	assert.True(t, snap.LastSaved.IsZero())

	h.clock.Advance(10 * time.Second)
	assert.Len(t, h.store.saveCalls(), 1, "no automatic retry")

	h.store.mu.Lock()
	h.store.saveErr = nil
	h.store.mu.Unlock()

	h.ctrl.TriggerSave(context.Background())
	calls := h.store.saveCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "A", calls[1].data.String(certificate.KeyClientName))
	assert.Equal(t, StatusSaved, h.ctrl.Snapshot().Status)
}

func TestController_FinalizedErrorFromStoreIsNotAnError(t *testing.T) {
	h := newHarness(t, "cert-9")
	h.store.saveErr = certificate.ErrFinalized

	h.ctrl.MarkDirty(edit("A"))
	h.clock.Advance(time.Second)

	snap := h.ctrl.Snapshot()
	assert.Equal(t, StatusIdle, snap.Status)
	assert.False(t, snap.Dirty)
}

func TestController_EditDuringSaveStaysDirty(t *testing.T) {
	h := newHarness(t, "cert-9")
	h.store.onSave = func(n int) {
		if n == 1 {
			h.ctrl.MarkDirty(edit("B"))
		}
	}

	h.ctrl.MarkDirty(edit("A"))
	h.clock.Advance(600 * time.Millisecond)

	snap := h.ctrl.Snapshot()
	assert.Equal(t, StatusDirty, snap.Status)
	assert.True(t, snap.Dirty)

	h.clock.Advance(600 * time.Millisecond)
	calls := h.store.saveCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "A", calls[0].data.String(certificate.KeyClientName))
	assert.Equal(t, "B", calls[1].data.String(certificate.KeyClientName))
	assert.Equal(t, StatusSaved, h.ctrl.Snapshot().Status)
}

func TestController_SavedRelaxesToIdle(t *testing.T) {
	h := newHarness(t, "cert-9")

	h.ctrl.MarkDirty(edit("A"))
	h.clock.Advance(600 * time.Millisecond)
	assert.Equal(t, StatusSaved, h.ctrl.Snapshot().Status)

	h.clock.Advance(1999 * time.Millisecond)
	assert.Equal(t, StatusSaved, h.ctrl.Snapshot().Status)

	h.ctrl.MarkDirty(edit("B"))
	h.clock.Advance(time.Millisecond)
	assert.Equal(t, StatusDirty, h.ctrl.Snapshot().Status, "stale display timer must not reset a new edit")

	h.clock.Advance(599 * time.Millisecond)
	h.clock.Advance(2 * time.Second)
	assert.Equal(t, StatusIdle, h.ctrl.Snapshot().Status)
	assert.Equal(t, []Status{StatusDirty, StatusSaving, StatusSaved, StatusDirty, StatusSaving, StatusSaved, StatusIdle}, h.statuses)
}

func TestController_DirectSaveSupersedesQueuedEntry(t *testing.T) {
	h := newHarness(t, "cert-9")
	h.queue.Enqueue("cert-9", edit("stale"))
	h.queue.Enqueue("cert-7", edit("other"))

	h.ctrl.MarkDirty(edit("fresh"))
	h.clock.Advance(600 * time.Millisecond)
	require.Equal(t, StatusSaved, h.ctrl.Snapshot().Status)

	assert.False(t, h.queue.Has("cert-9"))
	assert.True(t, h.queue.Has("cert-7"))

	_, err := h.queue.Flush(context.Background(), h.ctrl.guardedWrite)
	require.NoError(t, err)
	calls := h.store.saveCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "fresh", calls[0].data.String(certificate.KeyClientName))
	assert.Equal(t, "cert-7", calls[1].id)
}

func TestController_FailedSaveKeepsQueuedEntry(t *testing.T) {
	h := newHarness(t, "cert-9")
	h.queue.Enqueue("cert-9", edit("queued"))
	h.store.saveErr = errors.New("disk full")

	h.ctrl.MarkDirty(edit("fresh"))
	h.clock.Advance(600 * time.Millisecond)

	assert.Equal(t, StatusError, h.ctrl.Snapshot().Status)
	assert.True(t, h.queue.Has("cert-9"))
}

func TestController_CloseDuringSaveDoesNotWriteTwice(t *testing.T) {
	h := newHarness(t, "cert-9")
	closed := make(chan struct{})
	h.store.onSave = func(n int) {
		if n != 1 {
			return
		}
		go func() {
			h.ctrl.Close()
			close(closed)
		}()
		// Close must have marked the controller closed before this save ends.
		require.Eventually(t, func() bool {
			h.ctrl.mu.Lock()
			defer h.ctrl.mu.Unlock()
			return h.ctrl.closed
		}, time.Second, time.Millisecond)
	}

	h.ctrl.MarkDirty(edit("A"))
	h.clock.Advance(600 * time.Millisecond)
	<-closed

	calls := h.store.saveCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "A", calls[0].data.String(certificate.KeyClientName))
	assert.False(t, h.ctrl.Snapshot().Dirty)
}
