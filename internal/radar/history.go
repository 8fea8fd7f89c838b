package radar

import (
	"context"
	"sync"
	"time"
)

// DriftCap bounds the per-item drift counter.
const DriftCap = 10

// HistoryStore records per-(viewer, item) interaction history: the last
// time the viewer opened the item and a bounded drift counter. Reads
// that fail should surface as "no record" to the caller; the
// interpreter never sees storage errors.
type HistoryStore interface {
	LastViewed(ctx context.Context, viewerID, itemID string) (*time.Time, error)
	RecordView(ctx context.Context, viewerID, itemID string, at time.Time) error
	Drift(ctx context.Context, viewerID, itemID string) (int, error)
	IncrementDrift(ctx context.Context, viewerID, itemID string) error
}

type historyKey struct {
	viewerID string
	itemID   string
}

// MemoryStore is an in-process HistoryStore. Safe for concurrent use.
type MemoryStore struct {
	mu     sync.Mutex
	views  map[historyKey]time.Time
	drifts map[historyKey]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		views:  make(map[historyKey]time.Time),
		drifts: make(map[historyKey]int),
	}
}

func (s *MemoryStore) LastViewed(_ context.Context, viewerID, itemID string) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ts, ok := s.views[historyKey{viewerID, itemID}]; ok {
		return &ts, nil
	}
	return nil, nil
}

func (s *MemoryStore) RecordView(_ context.Context, viewerID, itemID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.views[historyKey{viewerID, itemID}] = at
	return nil
}

func (s *MemoryStore) Drift(_ context.Context, viewerID, itemID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drifts[historyKey{viewerID, itemID}], nil
}

func (s *MemoryStore) IncrementDrift(_ context.Context, viewerID, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := historyKey{viewerID, itemID}
	if s.drifts[k] < DriftCap {
		s.drifts[k]++
	}
	return nil
}

// ClampDrift bounds a stored drift value to [0, DriftCap].
func ClampDrift(v int) int {
	if v < 0 {
		return 0
	}
	if v > DriftCap {
		return DriftCap
	}
	return v
}
