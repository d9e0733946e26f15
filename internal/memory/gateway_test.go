package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeStore allows per-call control over latency and results.
type fakeStore struct {
	mu      sync.Mutex
	delay   time.Duration
	err     error
	records []Record
	added   []string
}

func (f *fakeStore) Search(ctx context.Context, query, userID string, limit int) ([]Record, error) {
	f.mu.Lock()
	delay := f.delay
	err := f.err
	records := f.records
	f.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return records, err
}

func (f *fakeStore) Add(ctx context.Context, text, userID string, metadata map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.added = append(f.added, text)
	return nil
}

func TestGateway_NilStoreUnavailable(t *testing.T) {
	g := NewGateway(nil)
	if g.Available() {
		t.Fatalf("expected unavailable")
	}
	_, err := g.Search(context.Background(), "u", "q", 3)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if err := g.Append(context.Background(), "u", "cat", "text", nil); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestGateway_SearchFiltersBlankMemories(t *testing.T) {
	store := &fakeStore{records: []Record{{Memory: " a "}, {Memory: ""}, {Memory: "b"}}}
	g := NewGateway(store)
	texts, err := g.Search(context.Background(), "u", "q", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(texts) != 2 || texts[0] != "a" || texts[1] != "b" {
		t.Fatalf("unexpected texts: %v", texts)
	}
}

func TestGateway_SearchTimeoutDoesNotBlockNextCall(t *testing.T) {
	slow := &fakeStore{delay: 5 * time.Second}
	g := NewGateway(slow)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := g.searchBounded(ctx, "u", "q", 3, 50*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("timed-out search blocked for %v", time.Since(start))
	}

	// A second, fast call must complete independently of the stalled one.
	slow.mu.Lock()
	slow.delay = 0
	slow.records = []Record{{Memory: "fresh"}}
	slow.mu.Unlock()
	texts, err := g.searchBounded(context.Background(), "u", "q", 3, time.Second)
	if err != nil {
		t.Fatalf("second search failed: %v", err)
	}
	if len(texts) != 1 || texts[0] != "fresh" {
		t.Fatalf("unexpected texts: %v", texts)
	}
}

func TestGateway_SearchMapsContextErrorsFromStore(t *testing.T) {
	// An HTTP-backed store reports the expired budget through its own
	// error return, wrapped the way net/http wraps it.
	store := &fakeStore{err: fmt.Errorf("Post %q: %w", "https://api.mem0.ai/v1/memories/search/", context.DeadlineExceeded)}
	g := NewGateway(store)
	_, err := g.Search(context.Background(), "u", "q", 3)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout for wrapped deadline error, got %v", err)
	}

	store.mu.Lock()
	store.err = fmt.Errorf("read tcp: %w", context.Canceled)
	store.mu.Unlock()
	_, err = g.Search(context.Background(), "u", "q", 3)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout for wrapped cancellation, got %v", err)
	}
}

func TestGateway_PrimingSwallowsErrors(t *testing.T) {
	store := &fakeStore{err: errors.New("backend down")}
	g := NewGateway(store)
	if texts := g.SearchPriming(context.Background(), "u", "q", 5); texts != nil {
		t.Fatalf("expected nil on backend error, got %v", texts)
	}
}

func TestGateway_AppendBestEffort(t *testing.T) {
	store := &fakeStore{}
	g := NewGateway(store)
	if err := g.Append(context.Background(), "u", "goals", "run a marathon", map[string]interface{}{"category": "goals"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.added) != 1 || store.added[0] != "run a marathon" {
		t.Fatalf("append not recorded: %v", store.added)
	}
}
