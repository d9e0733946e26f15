// Package memory wraps the remote memory backend with bounded-time
// execution. Absence of memory is always a valid outcome: callers that do
// not care why a search came back empty may ignore the error entirely.
package memory

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"
)

// Store is the minimal contract of the memory backend. Calls may block for
// an unspecified time; the gateway bounds every call.
type Store interface {
	Search(ctx context.Context, query, userID string, limit int) ([]Record, error)
	Add(ctx context.Context, text, userID string, metadata map[string]interface{}) error
}

// Timeout budgets. Interactive recall must stay snappy; the bulk startup
// context pull is allowed a little longer.
const (
	SearchTimeout  = 10 * time.Second
	PrimingTimeout = 15 * time.Second
	AppendTimeout  = 10 * time.Second
)

// ErrTimeout marks a search or append that exceeded its budget.
var ErrTimeout = errors.New("memory: call timed out")

// ErrUnavailable marks the no-backend condition.
var ErrUnavailable = errors.New("memory: store not available")

// Gateway executes store calls off the session's event loop with explicit
// timeouts. A nil store means memory is unavailable; every operation
// degrades instead of blocking or panicking.
type Gateway struct {
	store Store
}

// NewGateway wraps a store. store may be nil when no backend is configured.
func NewGateway(store Store) *Gateway {
	return &Gateway{store: store}
}

// Available reports whether a backend is configured.
func (g *Gateway) Available() bool {
	return g != nil && g.store != nil
}

type searchResult struct {
	records []Record
	err     error
}

// searchBounded offloads the blocking store call to a goroutine and waits
// at most timeout. The goroutine is left to finish on its own if the
// deadline fires; only the primary wait chain reacts.
func (g *Gateway) searchBounded(ctx context.Context, userID, query string, limit int, timeout time.Duration) ([]string, error) {
	if !g.Available() {
		log.Println("memory: store not available for search")
		return nil, ErrUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch := make(chan searchResult, 1)
	go func() {
		records, err := g.store.Search(ctx, query, userID, limit)
		ch <- searchResult{records: records, err: err}
	}()

	select {
	case <-ctx.Done():
		log.Printf("memory: search timed out after %s for query %q", timeout, truncate(query, 100))
		return nil, ErrTimeout
	case res := <-ch:
		if res.err != nil {
			// The store may surface the expired budget through its own
			// error return (an HTTP client wraps it in url.Error) before
			// the ctx.Done branch wins the select.
			if errors.Is(res.err, context.DeadlineExceeded) || errors.Is(res.err, context.Canceled) {
				log.Printf("memory: search timed out in backend for query %q", truncate(query, 100))
				return nil, ErrTimeout
			}
			log.Printf("memory: search error: %v", res.err)
			return nil, res.err
		}
		texts := make([]string, 0, len(res.records))
		for _, r := range res.records {
			if t := strings.TrimSpace(r.Memory); t != "" {
				texts = append(texts, t)
			}
		}
		return texts, nil
	}
}

// Search returns up to limit memory texts for the user, bounded by the
// interactive timeout.
func (g *Gateway) Search(ctx context.Context, userID, query string, limit int) ([]string, error) {
	return g.searchBounded(ctx, userID, query, limit, SearchTimeout)
}

// SearchPriming is Search with the larger startup budget. Priming treats
// any failure as "no prior context", so only the texts are returned.
func (g *Gateway) SearchPriming(ctx context.Context, userID, query string, limit int) []string {
	texts, err := g.searchBounded(ctx, userID, query, limit, PrimingTimeout)
	if err != nil {
		return nil
	}
	return texts
}

// Append stores one memory, best-effort, single attempt. The caller turns
// a failure into "remembered for this conversation only" messaging.
func (g *Gateway) Append(ctx context.Context, userID, category, content string, metadata map[string]interface{}) error {
	if !g.Available() {
		return ErrUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, AppendTimeout)
	defer cancel()

	ch := make(chan error, 1)
	go func() {
		ch <- g.store.Add(ctx, content, userID, metadata)
	}()
	select {
	case <-ctx.Done():
		log.Printf("memory: append timed out for user %s category %s", userID, category)
		return ErrTimeout
	case err := <-ch:
		if err != nil {
			log.Printf("memory: append failed for user %s: %v", userID, err)
		}
		return err
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
