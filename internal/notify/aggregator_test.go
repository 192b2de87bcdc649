package notify

import (
	"path/filepath"
	"sort"
	"sync"
	"testing"
)

// mockService records notify/cancel calls keyed by id.
type mockService struct {
	mu       sync.Mutex
	notified map[string]Content
	canceled map[string]int
}

func newMockService() *mockService {
	return &mockService{
		notified: make(map[string]Content),
		canceled: make(map[string]int),
	}
}

func (m *mockService) Notify(id string, c Content) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notified[id] = c
	return nil
}

func (m *mockService) Cancel(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.notified, id)
	m.canceled[id]++
	return nil
}

func (m *mockService) summary() (Content, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.notified[GroupID]
	return c, ok
}

func openTestSet(t *testing.T) *PendingSet {
	t.Helper()
	p, err := OpenPendingSet(filepath.Join(t.TempDir(), "pending.db"))
	if err != nil {
		t.Fatalf("OpenPendingSet: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func TestShowAndCancel(t *testing.T) {
	set := openTestSet(t)
	svc := newMockService()
	a := NewAggregator(set, svc)

	if err := a.Show("r1", Content{Title: "pay rent"}); err != nil {
		t.Fatalf("Show: %v", err)
	}
	if err := a.Show("r2", Content{Title: "call mom"}); err != nil {
		t.Fatalf("Show: %v", err)
	}

	ids, err := a.Pending()
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	sort.Strings(ids)
	if len(ids) != 2 || ids[0] != "r1" || ids[1] != "r2" {
		t.Errorf("pending = %v", ids)
	}

	if c, ok := svc.summary(); !ok || c.Title != "2 reminders pending" {
		t.Errorf("summary = %+v, ok=%v", c, ok)
	}

	if err := a.Cancel("r1"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if c, ok := svc.summary(); !ok || c.Title != "1 reminder pending" {
		t.Errorf("summary after cancel = %+v, ok=%v", c, ok)
	}
}

func TestSummaryWithdrawnWhenEmpty(t *testing.T) {
	set := openTestSet(t)
	svc := newMockService()
	a := NewAggregator(set, svc)

	if err := a.Show("r1", Content{Title: "x"}); err != nil {
		t.Fatal(err)
	}
	if err := a.Cancel("r1"); err != nil {
		t.Fatal(err)
	}

	if _, ok := svc.summary(); ok {
		t.Error("summary should be withdrawn when the set empties")
	}
	if svc.canceled[GroupID] == 0 {
		t.Error("group notification was never canceled")
	}
}

func TestCancelUnknownIsNoOp(t *testing.T) {
	set := openTestSet(t)
	svc := newMockService()
	a := NewAggregator(set, svc)

	if err := a.Cancel("ghost"); err != nil {
		t.Fatalf("Cancel of unknown id: %v", err)
	}
}

func TestPendingSetSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pending.db")

	p, err := OpenPendingSet(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Add("r1"); err != nil {
		t.Fatal(err)
	}
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}

	p, err = OpenPendingSet(path)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	ok, err := p.Contains("r1")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("pending id lost across reopen")
	}
	n, err := p.Len()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("len = %d, want 1", n)
	}
}

func TestConcurrentShowCancel(t *testing.T) {
	set := openTestSet(t)
	svc := newMockService()
	a := NewAggregator(set, svc)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_ = a.Show(id, Content{Title: id})
			_ = a.Cancel(id)
		}(string(rune('a' + i)))
	}
	wg.Wait()

	n, err := set.Len()
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("set should be empty after paired show/cancel, len = %d", n)
	}
	if _, ok := svc.summary(); ok {
		t.Error("summary should be withdrawn at the end")
	}
}
