package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/prospectsim/prospect/internal/survey"
)

// MemoryRunStore implements RunStore in memory for tests and short-lived
// servers.
type MemoryRunStore struct {
	mu      sync.RWMutex
	batches map[string][]survey.Batch
	ids     map[string]bool
}

var _ RunStore = (*MemoryRunStore)(nil)

// NewMemoryRunStore creates an empty store.
func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{
		batches: make(map[string][]survey.Batch),
		ids:     make(map[string]bool),
	}
}

// SaveBatch stores a copy of b.
func (s *MemoryRunStore) SaveBatch(ctx context.Context, b survey.Batch) error {
	if b.ID == "" {
		return fmt.Errorf("batch ID is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ids[b.ID] {
		return fmt.Errorf("batch %s already stored", b.ID)
	}
	b.Records = append([]survey.Record(nil), b.Records...)
	b.UnitTimes = append([]survey.UnitTime(nil), b.UnitTimes...)
	s.ids[b.ID] = true
	s.batches[b.Survey] = append(s.batches[b.Survey], b)
	return nil
}

// Frequencies aggregates every stored record of the survey.
func (s *MemoryRunStore) Frequencies(ctx context.Context, surveyName string) ([]survey.FeatureFrequency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var records []survey.Record
	for _, b := range s.batches[surveyName] {
		records = append(records, b.Records...)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return survey.Frequencies(records), nil
}

// Batches lists stored batches by start time.
func (s *MemoryRunStore) Batches(ctx context.Context, surveyName string) ([]BatchInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]BatchInfo, 0, len(s.batches[surveyName]))
	for _, b := range s.batches[surveyName] {
		out = append(out, infoOf(b))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

// Close is a no-op.
func (s *MemoryRunStore) Close() error { return nil }
