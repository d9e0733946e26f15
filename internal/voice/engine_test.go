package voice

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

type fakeTranscriber struct {
	finals chan string
	closed int32
}

func (f *fakeTranscriber) Connect() error          { return nil }
func (f *fakeTranscriber) Finalize() <-chan string { return f.finals }
func (f *fakeTranscriber) Close() error            { atomic.AddInt32(&f.closed, 1); return nil }

type fakeChat struct {
	replies []openai.ChatCompletionResponse
	err     error
	calls   int32
}

func (f *fakeChat) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	idx := int(n) - 1
	if idx >= len(f.replies) {
		idx = len(f.replies) - 1
	}
	return f.replies[idx], nil
}

func contentReply(text string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{
		{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: text}},
	}}
}

func toolReply(id, name, args string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{
		{Message: openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleAssistant,
			ToolCalls: []openai.ToolCall{{
				ID:       id,
				Type:     openai.ToolTypeFunction,
				Function: openai.FunctionCall{Name: name, Arguments: args},
			}},
		}},
	}}
}

type fakeDispatcher struct {
	lastName string
	lastArgs string
	result   string
	calls    int32
}

func (f *fakeDispatcher) Tools() []openai.Tool { return nil }
func (f *fakeDispatcher) Dispatch(ctx context.Context, name, argsJSON string) string {
	atomic.AddInt32(&f.calls, 1)
	f.lastName = name
	f.lastArgs = argsJSON
	return f.result
}

type fakeTTS struct{ frames int32 }

func (f *fakeTTS) StreamPCM(ctx context.Context, text string) (<-chan []byte, <-chan error) {
	pcm := make(chan []byte, 10)
	errc := make(chan error, 1)
	go func() {
		defer close(pcm)
		defer close(errc)
		for i := 0; i < 3; i++ {
			select {
			case <-ctx.Done():
				return
			default:
			}
			pcm <- []byte{1, 0, 2, 0}
			atomic.AddInt32(&f.frames, 1)
			time.Sleep(5 * time.Millisecond)
		}
	}()
	return pcm, errc
}

type fakeSink struct{ wrote int32 }

func (s *fakeSink) WritePCM(p []byte) { atomic.AddInt32(&s.wrote, 1) }
func (*fakeSink) FlushTail()          {}
func (*fakeSink) Reset()              {}

func historyCounts(e *Engine) (user, assistant int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, m := range e.history {
		switch m.Role {
		case openai.ChatMessageRoleUser:
			user++
		case openai.ChatMessageRoleAssistant:
			assistant++
		}
	}
	return
}

func TestEngine_ToolCallRoutedThroughDispatcher(t *testing.T) {
	tr := &fakeTranscriber{finals: make(chan string, 10)}
	chat := &fakeChat{replies: []openai.ChatCompletionResponse{
		toolReply("call_1", "set_device_alarm", `{"hour":7,"minute":0,"date":"2026-09-01","message":"meeting"}`),
		contentReply("Alarm sudah diatur."),
	}}
	d := &fakeDispatcher{result: "Oke, alarm terkirim."}
	e := NewEngine(tr, chat, "gpt-4o-mini", d, &fakeTTS{}, &fakeSink{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop, err := e.Start(ctx)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer stop()

	tr.finals <- "set an alarm for tomorrow"
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && atomic.LoadInt32(&d.calls) == 0 {
		time.Sleep(2 * time.Millisecond)
	}
	if atomic.LoadInt32(&d.calls) != 1 {
		t.Fatalf("expected one dispatched tool call, got %d", d.calls)
	}
	if d.lastName != "set_device_alarm" {
		t.Fatalf("unexpected tool name: %s", d.lastName)
	}
}

func TestEngine_NoAssistantOnModelError(t *testing.T) {
	tr := &fakeTranscriber{finals: make(chan string, 10)}
	chat := &fakeChat{err: errors.New("boom")}
	e := NewEngine(tr, chat, "gpt-4o-mini", nil, &fakeTTS{}, &fakeSink{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop, err := e.Start(ctx)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer stop()

	tr.finals <- "hi"
	time.Sleep(30 * time.Millisecond)
	if _, assistant := historyCounts(e); assistant != 0 {
		t.Fatalf("expected 0 assistant entries on model error, got %d", assistant)
	}
}

func TestEngine_BargeInStopsAudio(t *testing.T) {
	tr := &fakeTranscriber{finals: make(chan string, 10)}
	chat := &fakeChat{replies: []openai.ChatCompletionResponse{
		contentReply("Hello world. This will be interrupted. And more. And more still."),
	}}
	tts := &fakeTTS{}
	sink := &fakeSink{}
	e := NewEngine(tr, chat, "gpt-4o-mini", nil, tts, sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop, err := e.Start(ctx)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer stop()

	tr.finals <- "hi"
	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) && atomic.LoadInt32(&tts.frames) == 0 {
		time.Sleep(2 * time.Millisecond)
	}
	e.BargeIn()
	time.Sleep(50 * time.Millisecond)
	if e.IsSpeaking() {
		t.Fatalf("engine still speaking after barge-in window")
	}
}

func TestEngine_SayNotInterruptibleRunsToCompletion(t *testing.T) {
	tr := &fakeTranscriber{finals: make(chan string, 1)}
	tts := &fakeTTS{}
	sink := &fakeSink{}
	e := NewEngine(tr, &fakeChat{replies: []openai.ChatCompletionResponse{contentReply("x")}}, "gpt-4o-mini", nil, tts, sink)

	done := make(chan error, 1)
	go func() { done <- e.Say(context.Background(), "Halo, saya Anty.", false) }()
	time.Sleep(5 * time.Millisecond)
	e.BargeIn()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("say: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("say did not complete")
	}
	if atomic.LoadInt32(&sink.wrote) == 0 {
		t.Fatalf("expected audio written for non-interruptible say")
	}
}

func TestEngine_CloseIdempotent(t *testing.T) {
	tr := &fakeTranscriber{finals: make(chan string, 1)}
	e := NewEngine(tr, nil, "", nil, &fakeTTS{}, nil)
	if err := e.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if got := atomic.LoadInt32(&tr.closed); got != 1 {
		t.Fatalf("transcriber closed %d times, want 1", got)
	}
}

func TestChunkReply_SplitsAndTrims(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"  Hello world.  How are you?\nI am fine!  ", []string{"Hello world.", "How are you?", "I am fine!"}},
		{"no punctuation here", []string{"no punctuation here"}},
		{"", nil},
	}
	for _, tc := range cases {
		got := chunkReply(tc.in)
		if len(got) != len(tc.want) {
			t.Fatalf("len mismatch for %q: got %d want %d", tc.in, len(got), len(tc.want))
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("elem %d mismatch: got %q want %q", i, got[i], tc.want[i])
			}
		}
	}
}
