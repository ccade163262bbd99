// Package client wires the local draft store, connectivity detector, offline
// queue and autosave controllers into the application the CLI drives.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/exp/slog"

	"certkeeper/internal/app/client/config"
	"certkeeper/internal/autosave"
	"certkeeper/internal/connectivity"
	"certkeeper/internal/domain/certificate"
	"certkeeper/internal/domain/legacy"
	"certkeeper/internal/draftstore"
	"certkeeper/internal/infrastructure/storage/badgerdb"
	"certkeeper/internal/infrastructure/storage/remote"
	"certkeeper/internal/infrastructure/storage/sqlite"
	"certkeeper/internal/offline"
)

type Option func(*App)

// WithClock drives the autosave timers and timestamps from clock.
func WithClock(clock autosave.Clock) Option {
	return func(a *App) {
		a.clock = clock
	}
}

// WithBackend replaces the backend chosen by STORAGE_DRIVER.
func WithBackend(b draftstore.Backend) Option {
	return func(a *App) {
		a.backend = b
	}
}

type App struct {
	config *config.Config
	// base is the caller's logger, handed to components that tag their own.
	base     *slog.Logger
	log      *slog.Logger
	clock    autosave.Clock
	backend  draftstore.Backend
	store    *draftstore.Store
	detector *connectivity.Detector
	queue    *offline.Queue
	// dbs are badger databases owned by the app.
	dbs []*badgerdb.DB

	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	unsubscribe func()

	mu       sync.Mutex
	sessions map[*Session]struct{}
	closed   bool
}

func New(ctx context.Context, cfg *config.Config, log *slog.Logger, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{
		config:   cfg,
		base:     log,
		log:      log.With("component", "client"),
		clock:    autosave.RealClock(),
		sessions: make(map[*Session]struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.ctx, a.cancel = context.WithCancel(context.Background())

	journal, err := a.openBackend()
	if err != nil {
		a.closeDBs()
		return nil, err
	}

	store, err := draftstore.Open(ctx, a.backend, log, draftstore.WithNow(a.clock.Now))
	if err != nil {
		_ = a.backend.Close()
		a.closeDBs()
		return nil, fmt.Errorf("open draft store: %w", err)
	}
	a.store = store

	queue, err := offline.New(journal, log)
	if err != nil {
		_ = store.Close()
		a.closeDBs()
		return nil, fmt.Errorf("open offline queue: %w", err)
	}
	a.queue = queue

	a.detector = connectivity.NewDetector(store.Ping, cfg.ProbeInterval, log, !cfg.Offline)
	if cfg.Offline {
		a.detector.Set(false)
	}
	a.unsubscribe = a.detector.Subscribe(func(online bool) {
		if online {
			if _, err := a.flush(a.ctx); err != nil && !errors.Is(err, offline.ErrFlushInProgress) {
				a.log.Warn("queue flush after reconnect incomplete", "error", err)
			}
		}
	})

	return a, nil
}

// openBackend picks the store backend and, when configured, the queue journal.
func (a *App) openBackend() (offline.Journal, error) {
	cfg := a.config
	var journal offline.Journal

	if a.backend == nil {
		switch cfg.StorageDriver {
		case config.DriverSQLite:
			s, err := sqlite.New(cfg.DataPath, a.base)
			if err != nil {
				return nil, fmt.Errorf("open sqlite storage: %w", err)
			}
			a.backend = s
		case config.DriverBadger:
			db, err := a.openBadger(cfg.DataPath)
			if err != nil {
				return nil, err
			}
			a.backend = badgerdb.NewBackend(db, true, a.base)
			journal = badgerdb.NewQueueJournal(db)
		case config.DriverMemory:
			a.backend = draftstore.NewMemoryBackend()
		case config.DriverRemote:
			a.backend = remote.New(remote.BaseURL(cfg.ServerAddress, cfg.EnableTLS), a.base)
		default:
			return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
		}
	}

	if journal == nil && cfg.QueueJournalPath != "" {
		db, err := a.openBadger(cfg.QueueJournalPath)
		if err != nil {
			return nil, err
		}
		journal = badgerdb.NewQueueJournal(db)
	}
	return journal, nil
}

func (a *App) openBadger(path string) (*badgerdb.DB, error) {
	bcfg := badgerdb.DefaultConfig(path)
	bcfg.Logger = a.base
	db, err := badgerdb.Open(bcfg)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", path, err)
	}
	a.dbs = append(a.dbs, db)
	return db, nil
}

func (a *App) closeDBs() {
	for _, db := range a.dbs {
		if err := db.Close(); err != nil {
			a.log.Error("failed to close badger", "error", err)
		}
	}
	a.dbs = nil
}

// Start replays saves an earlier offline run left in the queue when the store
// is reachable, then runs the connectivity probe in the background until
// Close. The probe only reports changes, so a run that starts online would
// otherwise never flush them.
func (a *App) Start() {
	if a.detector.IsOnline() && a.queue.Len() > 0 {
		res, err := a.flush(a.ctx)
		if err != nil && !errors.Is(err, offline.ErrFlushInProgress) {
			a.log.Warn("startup queue flush incomplete", "error", err)
		}
		a.log.Info("replayed queued saves", "written", len(res.Written), "failed", len(res.Failed))
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.detector.Run(a.ctx)
	}()
	a.log.Debug("client started",
		"driver", a.config.StorageDriver,
		"offline", a.config.Offline,
	)
}

func (a *App) Online() bool {
	return a.detector.IsOnline()
}

// SetOnline forces the connectivity state, overriding the probe.
func (a *App) SetOnline(online bool) {
	a.detector.Set(online)
}

func (a *App) autosaveDeps(typ certificate.Type) autosave.Deps {
	return autosave.Deps{
		Save: func(ctx context.Context, id string, data certificate.Payload) error {
			_, err := a.store.Update(ctx, id, draftstore.Patch{Data: data})
			return err
		},
		Create: func(ctx context.Context, data certificate.Payload) (string, error) {
			rec := certificate.NewRecord(typ, data, a.clock.Now().UTC())
			if err := a.store.Add(ctx, rec); err != nil {
				return "", err
			}
			return rec.ID, nil
		},
		Lookup:  a.store.Status,
		Queue:   a.queue,
		Network: a.detector,
		Clock:   a.clock,
		Log:     a.log,
	}
}

func (a *App) autosaveConfig() autosave.Config {
	return autosave.Config{
		Debounce:     a.config.Autosave.Debounce,
		SavedDisplay: a.config.Autosave.SavedDisplay,
	}
}

// NewSession starts editing a new certificate of type typ from its template.
// Nothing is stored until the first save.
func (a *App) NewSession(ctx context.Context, typ certificate.Type) (*Session, error) {
	data, err := certificate.NewPayload(typ)
	if err != nil {
		return nil, err
	}
	return a.startSession(ctx, typ, autosave.Draft{Data: data})
}

// OpenSession resumes editing a stored certificate. Its payload is upgraded
// to the current shape first; the upgrade is saved with the next edit.
func (a *App) OpenSession(ctx context.Context, id string) (*Session, error) {
	rec, ok := a.store.Get(id)
	if !ok {
		return nil, fmt.Errorf("open %s: %w", id, certificate.ErrNotFound)
	}
	draft := autosave.Draft{
		ID:        rec.ID,
		Data:      legacy.Apply(rec.Data, rec.UpdatedAt),
		UpdatedAt: rec.UpdatedAt,
	}
	return a.startSession(ctx, rec.CertificateType, draft)
}

func (a *App) startSession(ctx context.Context, typ certificate.Type, draft autosave.Draft) (*Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, errors.New("client closed")
	}
	s := &Session{
		app:  a,
		typ:  typ,
		ctrl: autosave.New(ctx, draft, a.autosaveConfig(), a.autosaveDeps(typ)),
	}
	a.sessions[s] = struct{}{}
	return s, nil
}

func (a *App) release(s *Session) {
	a.mu.Lock()
	delete(a.sessions, s)
	a.mu.Unlock()
}

func (a *App) Get(id string) (*certificate.Record, bool) {
	return a.store.Get(id)
}

func (a *App) List(f draftstore.Filter) []*certificate.Record {
	return a.store.List(f)
}

// Transition moves a certificate to status. Open sessions stop saving once
// the record is complete or issued.
func (a *App) Transition(ctx context.Context, id string, status certificate.Status) (*certificate.Record, error) {
	return a.store.Update(ctx, id, draftstore.Patch{Status: &status})
}

func (a *App) Delete(ctx context.Context, id string) error {
	if _, ok := a.store.Get(id); !ok {
		return fmt.Errorf("delete %s: %w", id, certificate.ErrNotFound)
	}
	return a.store.Delete(ctx, id)
}

// MigrateAll upgrades every editable record in place and returns the ids that
// changed. Finalized records are left exactly as issued.
func (a *App) MigrateAll(ctx context.Context) ([]string, error) {
	var (
		changed []string
		errs    []error
	)
	for _, rec := range a.store.List(draftstore.Filter{}) {
		if !rec.Editable() {
			continue
		}
		before, err := rec.ComputeChecksum()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", rec.ID, err))
			continue
		}
		migrated := &certificate.Record{Data: legacy.Apply(rec.Data, rec.UpdatedAt)}
		after, err := migrated.ComputeChecksum()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", rec.ID, err))
			continue
		}
		if before == after {
			continue
		}
		if _, err := a.store.Update(ctx, rec.ID, draftstore.Patch{Data: migrated.Data}); err != nil {
			errs = append(errs, err)
			continue
		}
		changed = append(changed, rec.ID)
	}
	if len(changed) > 0 {
		a.log.Info("migrated certificates", "count", len(changed))
	}
	return changed, errors.Join(errs...)
}

// FlushQueue writes pending offline saves to the store.
func (a *App) FlushQueue(ctx context.Context) (offline.FlushResult, error) {
	return a.flush(ctx)
}

func (a *App) flush(ctx context.Context) (offline.FlushResult, error) {
	return a.queue.Flush(ctx, func(ctx context.Context, id string, data certificate.Payload) error {
		st, ok := a.store.Status(id)
		if !ok {
			a.log.Warn("dropping queued save for deleted certificate", "queued_id", id)
			return nil
		}
		if !st.Editable() {
			a.log.Info("dropping queued save for finalized certificate", "queued_id", id, "status", st)
			return nil
		}
		_, err := a.store.Update(ctx, id, draftstore.Patch{Data: data})
		if errors.Is(err, certificate.ErrFinalized) {
			return nil
		}
		return err
	})
}

func (a *App) QueueEntries() []offline.Entry {
	return a.queue.Entries()
}

// Close ends every open session, stops the probe and closes the storage.
func (a *App) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	sessions := make([]*Session, 0, len(a.sessions))
	for s := range a.sessions {
		sessions = append(sessions, s)
	}
	a.sessions = map[*Session]struct{}{}
	a.mu.Unlock()

	for _, s := range sessions {
		s.ctrl.Close()
	}
	a.unsubscribe()
	a.cancel()
	a.wg.Wait()

	err := a.store.Close()
	a.closeDBs()
	a.log.Debug("client closed")
	return err
}

// Session is one open editor on a certificate.
type Session struct {
	app  *App
	typ  certificate.Type
	ctrl *autosave.Controller

	mu sync.Mutex
}

// ID is empty until the first save created the record.
func (s *Session) ID() string {
	return s.ctrl.Snapshot().ID
}

func (s *Session) Type() certificate.Type {
	return s.typ
}

func (s *Session) Data() certificate.Payload {
	return s.ctrl.Data()
}

// Set writes value at a dotted field path and schedules an autosave.
func (s *Session) Set(path string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := s.ctrl.Data()
	if err := data.Set(path, value); err != nil {
		return err
	}
	s.ctrl.MarkDirty(data)
	return nil
}

// Touch marks the current payload unsaved so the next save writes it, which
// is how an unedited template gets created.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctrl.MarkDirty(s.ctrl.Data())
}

// Sign stores a signature for role and schedules an autosave.
func (s *Session) Sign(role string, sig certificate.Signature) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := s.ctrl.Data()
	data.SetSignature(role, sig, s.app.clock.Now())
	s.ctrl.MarkDirty(data)
}

// Save skips the debounce and saves now.
func (s *Session) Save(ctx context.Context) autosave.Snapshot {
	s.ctrl.TriggerSave(ctx)
	return s.ctrl.Snapshot()
}

func (s *Session) Snapshot() autosave.Snapshot {
	return s.ctrl.Snapshot()
}

func (s *Session) OnChange(fn func(autosave.Snapshot)) func() {
	return s.ctrl.OnChange(fn)
}

// KnownUpdatedAt is the store timestamp this session last observed.
func (s *Session) KnownUpdatedAt() time.Time {
	return s.ctrl.KnownUpdatedAt()
}

func (s *Session) Close() {
	s.ctrl.Close()
	s.app.release(s)
}
