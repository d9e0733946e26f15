package summarize

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

func newFakeOpenAI(t *testing.T, calls *int32, body string, status int) (*openai.Client, func()) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	return openai.NewClientWithConfig(cfg), srv.Close
}

func TestSummarize_EmptyTranscriptNoCall(t *testing.T) {
	var calls int32
	client, closeSrv := newFakeOpenAI(t, &calls, `{}`, http.StatusOK)
	defer closeSrv()
	s := New(client, "gpt-4o")

	for _, transcript := range []string{"", "   ", "\n\t"} {
		got := s.Summarize(context.Background(), transcript)
		if got != EmptyTranscriptText {
			t.Fatalf("transcript %q: got %q, want %q", transcript, got, EmptyTranscriptText)
		}
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("expected no model calls for empty transcript, got %d", calls)
	}
}

func TestSummarize_NoClient(t *testing.T) {
	s := New(nil, "")
	got := s.Summarize(context.Background(), "some transcript")
	if got != MissingKeyText {
		t.Fatalf("got %q, want %q", got, MissingKeyText)
	}
}

func TestSummarize_Success(t *testing.T) {
	var calls int32
	body := `{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"  Ringkasan rapat.  "}}]}`
	client, closeSrv := newFakeOpenAI(t, &calls, body, http.StatusOK)
	defer closeSrv()
	s := New(client, "gpt-4o")

	got := s.Summarize(context.Background(), "panjang transkrip rapat")
	if got != "Ringkasan rapat." {
		t.Fatalf("got %q", got)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected exactly one model call, got %d", calls)
	}
}

func TestSummarize_EmptyContent(t *testing.T) {
	var calls int32
	body := `{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"   "}}]}`
	client, closeSrv := newFakeOpenAI(t, &calls, body, http.StatusOK)
	defer closeSrv()
	s := New(client, "gpt-4o")

	got := s.Summarize(context.Background(), "transkrip")
	if got != EmptySummaryText {
		t.Fatalf("got %q, want %q", got, EmptySummaryText)
	}
}

func TestSummarize_TransportErrorNoRetry(t *testing.T) {
	var calls int32
	client, closeSrv := newFakeOpenAI(t, &calls, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
	defer closeSrv()
	s := New(client, "gpt-4o")

	got := s.Summarize(context.Background(), "transkrip")
	if got == "" || got == EmptyTranscriptText {
		t.Fatalf("expected error placeholder text, got %q", got)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected exactly one attempt (no retry), got %d", calls)
	}
}
