package history

import (
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/crycare/cry-pipeline/orchestrator"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	tick := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	s.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick = tick.Add(time.Millisecond)
		return tick
	}
	return s
}

var sample = orchestrator.Prediction{
	RandomForest: "hungry", KNN: "hungry", XGBoost: "tired", Overall: "hungry", SegmentsProcessed: 2,
}

func TestOpenCreatesEmptyList(t *testing.T) {
	s := openTest(t)
	data, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if strings.TrimSpace(string(data)) != "[]" {
		t.Fatalf("initial file: %q", data)
	}
	entries, err := s.List()
	if err != nil || len(entries) != 0 {
		t.Fatalf("List: %v %v", entries, err)
	}
}

func TestAppendListDelete(t *testing.T) {
	s := openTest(t)
	a, err := s.Append("a.wav", sample)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if a.ID != "2026-03-01T12:00:00.001Z_a.wav" {
		t.Fatalf("id: %q", a.ID)
	}
	b, _ := s.Append("b.wav", sample)

	entries, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 || entries[0].ID != a.ID || entries[1].ID != b.ID {
		t.Fatalf("entries: %+v", entries)
	}
	if entries[0].Predictions != sample {
		t.Fatalf("predictions: %+v", entries[0].Predictions)
	}

	if err := s.Delete(a.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(a.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
	entries, _ = s.List()
	if len(entries) != 1 || entries[0].ID != b.ID {
		t.Fatalf("after delete: %+v", entries)
	}

	if err := s.DeleteAll(); err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	if entries, _ = s.List(); len(entries) != 0 {
		t.Fatalf("after clear: %+v", entries)
	}
}

func TestReopenKeepsEntries(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s.Append("a.wav", sample); err != nil {
		t.Fatalf("Append: %v", err)
	}
	again, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if entries, _ := again.List(); len(entries) != 1 {
		t.Fatalf("entries after reopen: %d", len(entries))
	}
}

func TestConcurrentAppends(t *testing.T) {
	s := openTest(t)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Append("clip.wav", sample); err != nil {
				t.Errorf("Append: %v", err)
			}
		}()
	}
	wg.Wait()
	entries, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 20 {
		t.Fatalf("entries: got %d want 20", len(entries))
	}
}

func TestCorruptFile(t *testing.T) {
	s := openTest(t)
	if err := os.WriteFile(s.Path(), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.List(); err == nil {
		t.Fatal("expected parse error")
	}
}
