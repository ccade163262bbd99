package draftstore

import (
	"context"
	"sync"

	"certkeeper/internal/domain/certificate"
)

// MemoryBackend keeps records in a map. It loses everything on exit.
type MemoryBackend struct {
	mu      sync.Mutex
	records map[string]*certificate.Record
}

func NewMemoryBackend(seed ...*certificate.Record) *MemoryBackend {
	b := &MemoryBackend{records: make(map[string]*certificate.Record, len(seed))}
	for _, rec := range seed {
		b.records[rec.ID] = rec.Clone()
	}
	return b
}

func (b *MemoryBackend) LoadAll(_ context.Context) ([]*certificate.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*certificate.Record, 0, len(b.records))
	for _, rec := range b.records {
		out = append(out, rec.Clone())
	}
	return out, nil
}

func (b *MemoryBackend) Save(_ context.Context, rec *certificate.Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records[rec.ID] = rec.Clone()
	return nil
}

func (b *MemoryBackend) Delete(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.records, id)
	return nil
}

func (b *MemoryBackend) Ping(_ context.Context) error {
	return nil
}

func (b *MemoryBackend) Close() error {
	return nil
}
