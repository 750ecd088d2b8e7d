package journal

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTemp(t *testing.T) *Journal {
	t.Helper()

	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestBeginFinish(t *testing.T) {
	j := openTemp(t)

	if err := j.Begin("id-1", "127.0.0.1", "GET", "/a"); err != nil {
		t.Fatalf("begin: %v", err)
	}

	ex, err := j.Get("id-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ex.Outcome != OUTCOME_PENDING || ex.Target != "/a" || !ex.ResponseTime.IsZero() {
		t.Fatalf("unexpected pending entry %+v", ex)
	}

	if err := j.Finish("id-1", "delivered", 200); err != nil {
		t.Fatalf("finish: %v", err)
	}
	// The first outcome sticks.
	if err := j.Finish("id-1", "expired", 504); err != nil {
		t.Fatalf("second finish: %v", err)
	}

	ex, _ = j.Get("id-1")
	if ex.Outcome != "delivered" || ex.StatusCode != 200 || ex.ResponseTime.IsZero() {
		t.Fatalf("unexpected finished entry %+v", ex)
	}

	if err := j.Finish("missing", "delivered", 200); !errors.Is(err, ErrUnknownExchange) {
		t.Fatalf("expected ErrUnknownExchange, got %v", err)
	}
	if _, err := j.Get("missing"); !errors.Is(err, ErrUnknownExchange) {
		t.Fatalf("expected ErrUnknownExchange, got %v", err)
	}
}

func TestPagesAndSummary(t *testing.T) {
	j := openTemp(t)

	for _, id := range []string{"a", "b", "c"} {
		if err := j.Begin(id, "h", "POST", "/x"); err != nil {
			t.Fatalf("begin: %v", err)
		}
	}
	j.Finish("b", "expired", 504)

	count, err := j.Count()
	if err != nil || count != 3 {
		t.Fatalf("count: %d %v", count, err)
	}

	page, err := j.GetPage(1, 1)
	if err != nil || len(page) != 1 {
		t.Fatalf("page: %v %v", page, err)
	}

	summary, err := j.Summary()
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary[OUTCOME_PENDING] != 2 || summary["expired"] != 1 {
		t.Fatalf("unexpected summary %v", summary)
	}
}

func TestPrune(t *testing.T) {
	j := openTemp(t)

	j.Begin("old", "h", "GET", "/")
	time.Sleep(200 * time.Millisecond)
	j.Begin("new", "h", "GET", "/")

	removed, err := j.Prune(100 * time.Millisecond)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected one pruned entry, got %d", removed)
	}
	if _, err := j.Get("new"); err != nil {
		t.Fatalf("recent entry pruned: %v", err)
	}
}
