package engine

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/appconnect/internal/logging"
	"github.com/dmitrijs2005/appconnect/internal/store/clipboard"
)

type sweepRecorder struct {
	clipboard.Repository
	mu     sync.Mutex
	sweeps []int64
}

func (s *sweepRecorder) Sweep(_ context.Context, nowMs int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweeps = append(s.sweeps, nowMs)
	return 1, nil
}

func (s *sweepRecorder) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sweeps)
}

func TestNewSweeper_DefaultsInterval(t *testing.T) {
	s := NewSweeper(newMemStore(), 0, logging.NewDefault(slog.LevelError))
	assert.Equal(t, DefaultSweepInterval, s.interval)
}

func TestSweeper_SweepsImmediatelyAndOnTick(t *testing.T) {
	store := &sweepRecorder{Repository: newMemStore()}
	s := NewSweeper(store, 20*time.Millisecond, logging.NewDefault(slog.LevelError))
	s.now = func() int64 { return 777 }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return store.count() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, int64(777), store.sweeps[0])
}
