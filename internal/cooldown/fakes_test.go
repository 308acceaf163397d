package cooldown

import (
	"context"
	"sync"
	"time"
)

// FakeStore is an in-memory Store with the same admission rule as RedisStore.
type FakeStore struct {
	mu       sync.Mutex
	lastSeen map[string]time.Time
	Err      error
	Calls    int
}

func NewFakeStore() *FakeStore {
	return &FakeStore{lastSeen: make(map[string]time.Time)}
}

func (s *FakeStore) CheckAndSet(ctx context.Context, fingerprints []string, now time.Time, period time.Duration) ([]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls++
	if s.Err != nil {
		return nil, s.Err
	}

	out := make([]bool, len(fingerprints))
	for i, fp := range fingerprints {
		last, ok := s.lastSeen[fp]
		if ok && now.Sub(last) < period {
			continue
		}
		s.lastSeen[fp] = now
		out[i] = true
	}
	return out, nil
}

// FakeMetrics counts cooldown outcomes.
type FakeMetrics struct {
	Suppressed int
	FailOpen   int
}

func (m *FakeMetrics) RecordSuppressed(count int) { m.Suppressed += count }
func (m *FakeMetrics) RecordCooldownFailOpen()    { m.FailOpen++ }
