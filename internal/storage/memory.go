package storage

import (
	"context"
	"sync"
	"time"

	"github.com/ankek/unmeiori/internal/report"
)

// MemoryStore is an in-process record and template store
type MemoryStore struct {
	mu        sync.RWMutex
	records   map[string]report.Record
	templates map[string]report.TemplateSettings
	clock     func() time.Time
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:   make(map[string]report.Record),
		templates: make(map[string]report.TemplateSettings),
		clock:     time.Now,
	}
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*report.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (s *MemoryStore) Put(ctx context.Context, rec *report.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	s.records[rec.ID] = *rec
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, fn func(*report.Record) error) (*report.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	if err := fn(&rec); err != nil {
		return nil, err
	}
	rec.ID = id
	rec.UpdatedAt = s.clock()
	s.records[id] = rec
	return &rec, nil
}

func (s *MemoryStore) List(ctx context.Context, operatorID string) ([]*report.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*report.Record
	for _, rec := range s.records {
		if rec.OperatorID == operatorID {
			rec := rec
			out = append(out, &rec)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *MemoryStore) Template(ctx context.Context, operatorID string) (*report.TemplateSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.templates[operatorID]
	if !ok {
		t = report.DefaultTemplate(operatorID)
		s.templates[operatorID] = t
	}
	return &t, nil
}

func (s *MemoryStore) SaveTemplate(ctx context.Context, t *report.TemplateSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[t.OperatorID] = *t
	return nil
}
