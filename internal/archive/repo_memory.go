package archive

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"ai-phone-assistant/internal/session"
)

// Repository stores finished calls. Save is idempotent on CallID: the first record wins.
type Repository interface {
	Save(ctx context.Context, r Record) error
	Get(ctx context.Context, callID string) (Record, error)
	// List returns calls that ended in [from, to), without turns.
	List(ctx context.Context, from, to time.Time) ([]Record, error)
}

// MemoryRepo keeps records in process, used when no database is configured.
type MemoryRepo struct {
	mu      sync.Mutex
	records map[string]Record
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{records: make(map[string]Record)} }

func (m *MemoryRepo) Save(ctx context.Context, r Record) error {
	if r.CallID == "" {
		return errors.New("archive: call_id required")
	}
	r = r.normalize()
	r.Turns = append([]session.Turn(nil), r.Turns...)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[r.CallID]; ok {
		return nil
	}
	m.records[r.CallID] = r
	return nil
}

func (m *MemoryRepo) Get(ctx context.Context, callID string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[callID]
	if !ok {
		return Record{}, ErrNotFound
	}
	r.Turns = append([]session.Turn(nil), r.Turns...)
	return r, nil
}

func (m *MemoryRepo) List(ctx context.Context, from, to time.Time) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, 0)
	for _, r := range m.records {
		if r.EndedAt.Before(from) || !r.EndedAt.Before(to) {
			continue
		}
		r.Turns = nil
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndedAt.Before(out[j].EndedAt) })
	return out, nil
}
