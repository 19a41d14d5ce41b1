package scraper

import (
	"context"
	"errors"
	"testing"
	"time"
)

// newTestPool returns a pool whose sessions carry no real browser, plus a
// counter of how many sessions were created.
func newTestPool(max int) (*Pool, *int) {
	created := new(int)
	p := NewPool(PoolConfig{
		MaxSessions:   max,
		IdleTimeout:   time.Hour,
		SweepInterval: time.Hour,
	})
	p.newSession = func(FetcherConfig) (*BrowserSession, error) {
		*created++
		return &BrowserSession{lastUsed: time.Now()}, nil
	}
	p.pollInterval = 5 * time.Millisecond
	return p, created
}

// --- Pool Tests ---

func TestPool_Acquire_ReusesReleasedSession(t *testing.T) {
	p, created := newTestPool(2)
	defer p.Close()

	s1, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	p.Release(s1)

	s2, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}

	if s2 != s1 {
		t.Error("expected the released session to be reused")
	}
	if *created != 1 {
		t.Errorf("expected 1 session created, got %d", *created)
	}
}

func TestPool_Acquire_CreatesUpToCap(t *testing.T) {
	p, created := newTestPool(2)
	defer p.Close()

	if _, err := p.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	if _, err := p.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}

	if *created != 2 {
		t.Errorf("expected 2 sessions created, got %d", *created)
	}
	if p.Size() != 2 {
		t.Errorf("expected pool size 2, got %d", p.Size())
	}
}

func TestPool_Acquire_WaitsForRelease(t *testing.T) {
	p, created := newTestPool(1)
	defer p.Close()

	s1, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		p.Release(s1)
	}()

	s2, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}

	if s2 != s1 {
		t.Error("waiting Acquire should pick up the released session")
	}
	if *created != 1 {
		t.Errorf("expected 1 session created, got %d", *created)
	}
}

func TestPool_Acquire_CreatesExtraAfterPatience(t *testing.T) {
	p, created := newTestPool(1)
	p.createAfter = 20 * time.Millisecond
	defer p.Close()

	if _, err := p.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}

	// Nobody releases; after the patience window an extra session is
	// started even though the pool is at its cap.
	s2, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	if s2 == nil {
		t.Fatal("expected a session")
	}

	if *created != 2 {
		t.Errorf("expected an extra session after the wait deadline, created %d", *created)
	}
}

func TestPool_Acquire_ContextCancelledWhileWaiting(t *testing.T) {
	p, _ := newTestPool(1)
	defer p.Close()

	if _, err := p.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := p.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got %v", err)
	}
}

func TestPool_SweepIdle_KeepsOneWarm(t *testing.T) {
	p, _ := newTestPool(3)
	defer p.Close()

	var sessions []*BrowserSession
	for i := 0; i < 3; i++ {
		s, err := p.Acquire(context.Background())
		if err != nil {
			t.Fatalf("Acquire() error: %v", err)
		}
		sessions = append(sessions, s)
	}
	for _, s := range sessions {
		p.Release(s)
	}

	// Age every session past the idle timeout.
	p.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	p.sweepIdle()

	if p.Size() != 1 {
		t.Errorf("sweep should keep one warm session, kept %d", p.Size())
	}
}

func TestPool_SweepIdle_SkipsBusySessions(t *testing.T) {
	p, _ := newTestPool(2)
	defer p.Close()

	busy, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	idle, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	p.Release(idle)

	p.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	p.sweepIdle()

	if p.Size() != 1 {
		t.Errorf("expected only the busy session to remain, got %d", p.Size())
	}
	p.Release(busy)
}

func TestPool_Close_StopsAcquire(t *testing.T) {
	p, _ := newTestPool(1)

	if err := p.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	if _, err := p.Acquire(context.Background()); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("expected ErrPoolClosed, got %v", err)
	}
}
