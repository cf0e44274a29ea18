package session_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/taiwalabs/taiwa/internal/session"
)

func TestNewPool_DefaultSize(t *testing.T) {
	if got := session.NewPool(0).Size(); got != session.DefaultPoolSize {
		t.Errorf("expected default size %d, got %d", session.DefaultPoolSize, got)
	}
	if got := session.NewPool(3).Size(); got != 3 {
		t.Errorf("expected size 3, got %d", got)
	}
}

func TestPool_BoundsConcurrency(t *testing.T) {
	p := session.NewPool(2)

	var cur, peak atomic.Int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.Acquire(context.Background()); err != nil {
				t.Errorf("acquire failed: %v", err)
				return
			}
			defer p.Release()

			c := cur.Add(1)
			for {
				m := peak.Load()
				if c <= m || peak.CompareAndSwap(m, c) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			cur.Add(-1)
		}()
	}
	wg.Wait()

	if got := peak.Load(); got > 2 {
		t.Errorf("expected at most 2 concurrent holders, got %d", got)
	}
}

func TestPool_AcquireHonoursContext(t *testing.T) {
	p := session.NewPool(1)
	if err := p.Acquire(context.Background()); err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	defer p.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := p.Acquire(ctx); err == nil {
		t.Fatal("expected acquire to fail once the context expired")
	}
}
