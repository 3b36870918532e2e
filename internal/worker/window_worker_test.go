package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeWindowStore struct {
	mu     sync.Mutex
	sweeps int
	closed int64
}

func (f *fakeWindowStore) DeactivateExpired(_ context.Context, _ time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sweeps++
	return f.closed, nil
}

func (f *fakeWindowStore) sweepCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sweeps
}

func TestWindowWorkerSweepsUntilCancelled(t *testing.T) {
	store := &fakeWindowStore{closed: 1}
	w := NewWindowWorker(store, 10*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on cancel")
	}

	if store.sweepCount() == 0 {
		t.Fatal("worker never swept")
	}
}

func TestWindowWorkerDefaultsInterval(t *testing.T) {
	w := NewWindowWorker(&fakeWindowStore{}, 0, zerolog.Nop())
	if w.interval != 30*time.Second {
		t.Fatalf("interval = %v, want 30s", w.interval)
	}
}
