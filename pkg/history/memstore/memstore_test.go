package memstore_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/taiwalabs/taiwa/pkg/history"
	"github.com/taiwalabs/taiwa/pkg/history/memstore"
)

func appendN(t *testing.T, s *memstore.Store, sessionID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		ex := history.Exchange{
			SessionID: sessionID,
			UserText:  fmt.Sprintf("質問%d", i),
			CoachText: fmt.Sprintf("返事%d", i),
		}
		if err := s.Append(context.Background(), ex); err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
	}
}

func TestAppendAndRecent(t *testing.T) {
	s := memstore.New()
	appendN(t, s, "sess-1", 3)

	got, err := s.Recent(context.Background(), "sess-1", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Recent returned %d exchanges, want 3", len(got))
	}
	// Oldest first, IDs assigned in order.
	for i, ex := range got {
		if ex.UserText != fmt.Sprintf("質問%d", i) {
			t.Errorf("got[%d].UserText = %q, want 質問%d", i, ex.UserText, i)
		}
		if ex.ID != int64(i+1) {
			t.Errorf("got[%d].ID = %d, want %d", i, ex.ID, i+1)
		}
		if ex.At.IsZero() {
			t.Errorf("got[%d].At is zero, want stamped", i)
		}
	}
}

func TestRecent_LimitsToN(t *testing.T) {
	s := memstore.New()
	appendN(t, s, "sess-1", 5)

	got, err := s.Recent(context.Background(), "sess-1", 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Recent returned %d exchanges, want 2", len(got))
	}
	// The two newest, still oldest first.
	if got[0].UserText != "質問3" || got[1].UserText != "質問4" {
		t.Errorf("Recent = [%q, %q], want [質問3, 質問4]", got[0].UserText, got[1].UserText)
	}
}

func TestRecent_UnknownSession(t *testing.T) {
	s := memstore.New()
	got, err := s.Recent(context.Background(), "nope", 5)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Recent returned %d exchanges for unknown session, want 0", len(got))
	}
}

func TestAppend_TrimsToCapacity(t *testing.T) {
	s := memstore.New(memstore.WithCapacity(3))
	appendN(t, s, "sess-1", 5)

	if n := s.Len("sess-1"); n != 3 {
		t.Fatalf("Len = %d, want 3", n)
	}
	got, err := s.Recent(context.Background(), "sess-1", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	// Oldest two fell off the window.
	if got[0].UserText != "質問2" {
		t.Errorf("oldest surviving exchange = %q, want 質問2", got[0].UserText)
	}
	if got[2].UserText != "質問4" {
		t.Errorf("newest exchange = %q, want 質問4", got[2].UserText)
	}
}

func TestAppend_SessionsAreIndependent(t *testing.T) {
	s := memstore.New(memstore.WithCapacity(2))
	appendN(t, s, "a", 2)
	appendN(t, s, "b", 1)

	if n := s.Len("a"); n != 2 {
		t.Errorf("Len(a) = %d, want 2", n)
	}
	if n := s.Len("b"); n != 1 {
		t.Errorf("Len(b) = %d, want 1", n)
	}
}

func TestAppend_KeepsCallerTimestamp(t *testing.T) {
	s := memstore.New()
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	err := s.Append(context.Background(), history.Exchange{
		SessionID: "sess-1",
		UserText:  "こんにちは",
		At:        at,
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	got, err := s.Recent(context.Background(), "sess-1", 1)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if !got[0].At.Equal(at) {
		t.Errorf("At = %v, want %v", got[0].At, at)
	}
}

func TestSimilar_AlwaysEmpty(t *testing.T) {
	s := memstore.New()
	appendN(t, s, "sess-1", 3)

	got, err := s.Similar(context.Background(), "質問1", 5)
	if err != nil {
		t.Fatalf("Similar: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Similar returned %d exchanges, want 0", len(got))
	}
}

func TestClose_DropsEverything(t *testing.T) {
	s := memstore.New()
	appendN(t, s, "sess-1", 3)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if n := s.Len("sess-1"); n != 0 {
		t.Errorf("Len after Close = %d, want 0", n)
	}
}

func TestConcurrentAppend(t *testing.T) {
	s := memstore.New(memstore.WithCapacity(1000))
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			appendGoroutine(s)
		}()
	}
	wg.Wait()

	if n := s.Len("shared"); n != 8*50 {
		t.Errorf("Len = %d, want %d", n, 8*50)
	}
}

func appendGoroutine(s *memstore.Store) {
	for i := 0; i < 50; i++ {
		_ = s.Append(context.Background(), history.Exchange{
			SessionID: "shared",
			UserText:  "同時",
		})
	}
}
