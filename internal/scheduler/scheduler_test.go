package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoff(t *testing.T) {
	tests := []struct {
		failures int
		want     time.Duration
	}{
		{1, 60 * time.Second},
		{2, 120 * time.Second},
		{3, 240 * time.Second},
		{4, 480 * time.Second},
		{5, 960 * time.Second},
		{6, 1800 * time.Second},
		{7, 1800 * time.Second},
		{50, 1800 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Backoff(tt.failures), "failures=%d", tt.failures)
	}

	// Degenerate counts still yield the minimum delay.
	assert.Equal(t, 60*time.Second, Backoff(0))
	assert.Equal(t, 60*time.Second, Backoff(-3))
}

func TestRunPoolVisitsEveryIDOnce(t *testing.T) {
	ids := []uint{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	var mu sync.Mutex
	seen := map[uint]int{}

	RunPool(ids, 3, func(id uint) {
		mu.Lock()
		seen[id]++
		mu.Unlock()
	})

	require.Len(t, seen, len(ids))
	for _, id := range ids {
		assert.Equal(t, 1, seen[id], "id=%d", id)
	}
}

func TestRunPoolBoundsConcurrency(t *testing.T) {
	ids := []uint{1, 2, 3, 4, 5, 6, 7, 8}

	var mu sync.Mutex
	inFlight, peak := 0, 0

	RunPool(ids, 2, func(uint) {
		mu.Lock()
		inFlight++
		if inFlight > peak {
			peak = inFlight
		}
		mu.Unlock()

		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
	})

	assert.LessOrEqual(t, peak, 2)
	assert.Greater(t, peak, 0)
}

func TestRunPoolContainsPanics(t *testing.T) {
	ids := []uint{1, 2, 3, 4}

	var mu sync.Mutex
	var done []uint

	RunPool(ids, 2, func(id uint) {
		if id == 2 {
			panic("boom")
		}
		mu.Lock()
		done = append(done, id)
		mu.Unlock()
	})

	sort.Slice(done, func(i, j int) bool { return done[i] < done[j] })
	assert.Equal(t, []uint{1, 3, 4}, done)
}

func TestRunPoolEmpty(t *testing.T) {
	called := false
	RunPool(nil, 3, func(uint) { called = true })
	assert.False(t, called)
}

// stubStore records release calls and hands out a fixed claim batch.
type stubStore struct {
	mu       sync.Mutex
	claims   [][]uint
	claimErr error
	success  []uint
	failure  map[uint]string
}

func newStubStore(claims ...[]uint) *stubStore {
	return &stubStore{claims: claims, failure: map[uint]string{}}
}

func (s *stubStore) ClaimDue(context.Context, int) ([]uint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimErr != nil {
		return nil, s.claimErr
	}
	if len(s.claims) == 0 {
		return nil, nil
	}
	batch := s.claims[0]
	s.claims = s.claims[1:]
	return batch, nil
}

func (s *stubStore) ReleaseSuccess(_ context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.success = append(s.success, id)
	return nil
}

func (s *stubStore) ReleaseFailure(_ context.Context, id uint, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failure[id] = cause.Error()
	return nil
}

func TestTickReleasesPerOutcome(t *testing.T) {
	store := newStubStore([]uint{1, 2, 3})

	s := New(store, func(_ context.Context, id uint) error {
		if id == 2 {
			return errors.New("fetch_failed: 503")
		}
		return nil
	}, Config{BatchSize: 10, Concurrency: 2}, zerolog.Nop())

	s.Tick(context.Background())

	sort.Slice(store.success, func(i, j int) bool { return store.success[i] < store.success[j] })
	assert.Equal(t, []uint{1, 3}, store.success)
	require.Contains(t, store.failure, uint(2))
	assert.Equal(t, "fetch_failed: 503", store.failure[2])
}

func TestTickNoDueTracks(t *testing.T) {
	store := newStubStore()

	processed := false
	s := New(store, func(context.Context, uint) error {
		processed = true
		return nil
	}, Config{}, zerolog.Nop())

	s.Tick(context.Background())
	assert.False(t, processed)
}

func TestTickClaimError(t *testing.T) {
	store := newStubStore()
	store.claimErr = errors.New("connection refused")

	s := New(store, func(context.Context, uint) error {
		t.Fatal("process must not run when the claim fails")
		return nil
	}, Config{}, zerolog.Nop())

	s.Tick(context.Background())
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, 30*time.Second, cfg.Tick)
	assert.Equal(t, 10, cfg.BatchSize)
	assert.Equal(t, 3, cfg.Concurrency)

	custom := Config{Tick: time.Minute, BatchSize: 5, Concurrency: 1}.withDefaults()
	assert.Equal(t, time.Minute, custom.Tick)
	assert.Equal(t, 5, custom.BatchSize)
	assert.Equal(t, 1, custom.Concurrency)
}
