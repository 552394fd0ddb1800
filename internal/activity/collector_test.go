package activity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// mockStore records every batch it receives.
type mockStore struct {
	mu      sync.Mutex
	batches [][]Entry
	err     error
}

func (m *mockStore) BatchInsert(_ context.Context, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]Entry, len(entries))
	copy(cp, entries)
	m.batches = append(m.batches, cp)
	return m.err
}

func (m *mockStore) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.batches {
		n += len(b)
	}
	return n
}

func TestCollector_FlushesAtBatchSize(t *testing.T) {
	store := &mockStore{}
	c := NewCollector(store, 3, time.Hour)

	c.Record(Entry{TeamID: "t", Action: AssignmentCreated})
	c.Record(Entry{TeamID: "t", Action: AssignmentUpdated})
	if store.total() != 0 {
		t.Fatalf("expected no flush before batch size, got %d entries", store.total())
	}
	c.Record(Entry{TeamID: "t", Action: AssignmentGraded})

	if store.total() != 3 {
		t.Fatalf("expected 3 flushed entries, got %d", store.total())
	}
	if c.Pending() != 0 {
		t.Errorf("expected empty buffer after flush, got %d", c.Pending())
	}
}

func TestCollector_StampsTime(t *testing.T) {
	store := &mockStore{}
	c := NewCollector(store, 1, time.Hour)
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }

	c.Record(Entry{TeamID: "t", Action: MemberJoined})

	if got := store.batches[0][0].CreatedAt; !got.Equal(fixed) {
		t.Errorf("expected stamped time %v, got %v", fixed, got)
	}
}

func TestCollector_StopFlushesRemainder(t *testing.T) {
	store := &mockStore{}
	c := NewCollector(store, 100, time.Hour)

	done := make(chan struct{})
	go func() {
		c.Start(context.Background())
		close(done)
	}()

	c.Record(Entry{TeamID: "t", Action: TeamCreated})
	c.Stop()
	c.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("collector did not stop")
	}
	if store.total() != 1 {
		t.Errorf("expected final flush of 1 entry, got %d", store.total())
	}
}

func TestCollector_ObserverSeesErrors(t *testing.T) {
	store := &mockStore{err: errors.New("db down")}
	c := NewCollector(store, 10, time.Hour)

	var gotCount int
	var gotErr error
	c.OnFlush(func(count int, _ time.Duration, err error) {
		gotCount, gotErr = count, err
	})

	c.Record(Entry{TeamID: "t"})
	c.Record(Entry{TeamID: "t"})
	c.Flush()

	if gotCount != 2 || gotErr == nil {
		t.Errorf("observer got count=%d err=%v", gotCount, gotErr)
	}
	c.Flush()
	if len(store.batches) != 1 {
		t.Errorf("empty flush should not reach the store, got %d batches", len(store.batches))
	}
}

func TestCursorRoundTrip(t *testing.T) {
	ts := time.Date(2025, 1, 2, 3, 4, 5, 600, time.UTC)
	cur := EncodeCursor(ts, "abc")
	gotTS, gotID, err := DecodeCursor(cur)
	if err != nil {
		t.Fatalf("DecodeCursor: %v", err)
	}
	if !gotTS.Equal(ts) || gotID != "abc" {
		t.Errorf("got (%v, %q)", gotTS, gotID)
	}
	if _, _, err := DecodeCursor("!!!"); !errors.Is(err, ErrInvalidCursor) {
		t.Errorf("expected ErrInvalidCursor, got %v", err)
	}
}

func TestPage(t *testing.T) {
	now := time.Now()
	entries := []*Entry{
		{ID: "3", CreatedAt: now},
		{ID: "2", CreatedAt: now.Add(-time.Second)},
		{ID: "1", CreatedAt: now.Add(-2 * time.Second)},
	}
	page, next := Page(entries, 2)
	if len(page) != 2 || next == "" {
		t.Fatalf("expected 2 entries and a cursor, got %d %q", len(page), next)
	}
	_, id, _ := DecodeCursor(next)
	if id != "2" {
		t.Errorf("cursor should point at the last returned entry, got %q", id)
	}
	if _, next := Page(entries, 5); next != "" {
		t.Errorf("expected no cursor for a short page, got %q", next)
	}
}

func TestClampLimit(t *testing.T) {
	if ClampLimit(0) != defaultLimit || ClampLimit(-1) != defaultLimit {
		t.Error("non-positive limits should use the default")
	}
	if ClampLimit(1000) != maxLimit {
		t.Error("large limits should be capped")
	}
	if ClampLimit(7) != 7 {
		t.Error("in-range limits should pass through")
	}
}
