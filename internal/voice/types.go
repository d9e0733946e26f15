package voice

import (
	"context"

	openai "github.com/sashabaranov/go-openai"
)

// Transcriber is the minimal interface for realtime STT. It emits one
// string per finalized user utterance.
type Transcriber interface {
	Connect() error
	Finalize() <-chan string
	Close() error
}

// TTS streams synthesized PCM audio for the given text.
type TTS interface {
	StreamPCM(ctx context.Context, text string) (<-chan []byte, <-chan error)
}

// AudioSink consumes PCM bytes and performs delivery (e.g., publish to the
// room's audio track). Implementations should buffer internally and pace
// delivery.
type AudioSink interface {
	WritePCM(pcm []byte)
	FlushTail()
	// Reset drops any queued frames immediately (used for barge-in).
	Reset()
}

// ChatCompleter is the slice of the model client the engine needs.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Dispatcher executes model tool calls. Always returns text; never errors.
type Dispatcher interface {
	Tools() []openai.Tool
	Dispatch(ctx context.Context, name, argsJSON string) string
}
