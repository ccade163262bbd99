// Package connectivity tracks whether the draft store is reachable and tells
// subscribers when that changes.
package connectivity

import (
	"context"
	"sync"
	"time"

	"golang.org/x/exp/slog"
	"golang.org/x/sync/singleflight"

	"certkeeper/internal/metrics"
)

// Probe returns nil when the store is reachable.
type Probe func(ctx context.Context) error

type Detector struct {
	probe    Probe
	interval time.Duration
	log      *slog.Logger
	group    singleflight.Group

	// notify serialises transitions so subscribers see them in order.
	notify sync.Mutex

	mu     sync.Mutex
	online bool
	forced bool
	nextID int
	subs   map[int]func(online bool)
}

// NewDetector starts in the initial state. A nil probe makes the detector
// purely manual (see Set).
func NewDetector(probe Probe, interval time.Duration, log *slog.Logger, initial bool) *Detector {
	d := &Detector{
		probe:    probe,
		interval: interval,
		log:      log.With("component", "connectivity"),
		online:   initial,
		subs:     make(map[int]func(bool)),
	}
	metrics.Online.Set(boolGauge(initial))
	return d
}

func (d *Detector) IsOnline() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.online
}

// Subscribe registers fn for state changes. The returned func removes it.
// fn runs on the goroutine that observed the change and must not call Set.
func (d *Detector) Subscribe(fn func(online bool)) func() {
	d.mu.Lock()
	id := d.nextID
	d.nextID++
	d.subs[id] = fn
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.subs, id)
			d.mu.Unlock()
		})
	}
}

// Check runs the probe once and returns the resulting state. Concurrent
// callers share one probe. A forced state is returned without probing.
func (d *Detector) Check(ctx context.Context) bool {
	d.mu.Lock()
	forced, online := d.forced, d.online
	d.mu.Unlock()
	if forced || d.probe == nil {
		return online
	}

	v, _, _ := d.group.Do("probe", func() (interface{}, error) {
		err := d.probe(ctx)
		if err != nil {
			d.log.Debug("probe failed", "error", err)
		}
		return err == nil, nil
	})
	up := v.(bool)
	d.update(up, false)
	return up
}

// Set forces the state and stops probes from overriding it until Release.
func (d *Detector) Set(online bool) {
	d.update(online, true)
}

// Release hands control back to the probe.
func (d *Detector) Release() {
	d.mu.Lock()
	d.forced = false
	d.mu.Unlock()
}

func (d *Detector) update(online, force bool) {
	d.notify.Lock()
	defer d.notify.Unlock()

	d.mu.Lock()
	if force {
		d.forced = true
	} else if d.forced {
		d.mu.Unlock()
		return
	}
	if d.online == online {
		d.mu.Unlock()
		return
	}
	d.online = online
	subs := make([]func(bool), 0, len(d.subs))
	for _, fn := range d.subs {
		subs = append(subs, fn)
	}
	d.mu.Unlock()

	metrics.Online.Set(boolGauge(online))
	metrics.ConnectivityTransitions.WithLabelValues(stateLabel(online)).Inc()
	d.log.Info("connectivity changed", "online", online)
	for _, fn := range subs {
		fn(online)
	}
}

// Run probes immediately and then every interval until ctx is done.
func (d *Detector) Run(ctx context.Context) {
	if d.probe == nil || d.interval <= 0 {
		return
	}
	d.Check(ctx)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Check(ctx)
		}
	}
}

func stateLabel(online bool) string {
	if online {
		return "online"
	}
	return "offline"
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
