// Package voice is the dialogue engine: finalized utterance in, spoken
// reply out, with model tool calls routed through the dispatch surface.
package voice

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	chatTimeout   = 20 * time.Second
	maxToolRounds = 5
)

// chunkReply splits an assistant reply into sentence-like chunks so the
// engine can commit transcript increments only after corresponding audio
// is emitted. Heuristic: split on '.', '?', '!' and newlines, retaining
// punctuation.
func chunkReply(reply string) []string {
	txt := strings.TrimSpace(reply)
	if txt == "" {
		return nil
	}
	var chunks []string
	var b strings.Builder
	for _, r := range txt {
		switch r {
		case '.', '!', '?':
			b.WriteRune(r)
			chunk := strings.TrimSpace(b.String())
			if chunk != "" {
				chunks = append(chunks, chunk)
			}
			b.Reset()
		case '\n', '\r':
			chunk := strings.TrimSpace(b.String())
			if chunk != "" {
				chunks = append(chunks, chunk)
			}
			b.Reset()
		default:
			b.WriteRune(r)
		}
	}
	tail := strings.TrimSpace(b.String())
	if tail != "" {
		chunks = append(chunks, tail)
	}
	return chunks
}

// Engine orchestrates STT -> model (with tools) -> TTS for one session.
type Engine struct {
	transcriber Transcriber
	chat        ChatCompleter
	model       string
	dispatcher  Dispatcher
	tts         TTS
	sink        AudioSink

	mu               sync.Mutex
	history          []openai.ChatCompletionMessage
	speaking         bool
	ttsCancel        context.CancelFunc
	bargeInRequested bool

	closeOnce sync.Once
}

// NewEngine constructs the dialogue engine around an already-built
// dispatch surface.
func NewEngine(t Transcriber, chat ChatCompleter, model string, d Dispatcher, tts TTS, sink AudioSink) *Engine {
	if sink == nil {
		sink = nopSink{}
	}
	return &Engine{transcriber: t, chat: chat, model: model, dispatcher: d, tts: tts, sink: sink}
}

// Prime seeds the conversation with the system context and the initial
// greeting. Append-only; called once before Start.
func (e *Engine) Prime(systemPrompt, greeting string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = append(e.history,
		openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	if greeting != "" {
		e.history = append(e.history,
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: greeting})
	}
}

func (e *Engine) appendMessage(role, content string) {
	e.mu.Lock()
	e.history = append(e.history, openai.ChatCompletionMessage{Role: role, Content: content})
	e.mu.Unlock()
}

func (e *Engine) snapshotHistory() []openai.ChatCompletionMessage {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]openai.ChatCompletionMessage(nil), e.history...)
}

// complete runs the chat call, executing tool calls through the dispatch
// surface until the model produces plain content. Tool results never carry
// errors; the dispatch surface is total.
func (e *Engine) complete(ctx context.Context) (string, error) {
	if e.chat == nil {
		return "", fmt.Errorf("voice: chat client not configured")
	}
	msgs := e.snapshotHistory()
	var tools []openai.Tool
	if e.dispatcher != nil {
		tools = e.dispatcher.Tools()
	}
	for round := 0; round < maxToolRounds; round++ {
		resp, err := e.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:    e.model,
			Messages: msgs,
			Tools:    tools,
		})
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("voice: empty choices")
		}
		msg := resp.Choices[0].Message
		if len(msg.ToolCalls) == 0 {
			return strings.TrimSpace(msg.Content), nil
		}
		msgs = append(msgs, msg)
		for _, tc := range msg.ToolCalls {
			log.Printf("voice: executing tool call %s", tc.Function.Name)
			result := e.dispatcher.Dispatch(ctx, tc.Function.Name, tc.Function.Arguments)
			msgs = append(msgs, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    result,
				ToolCallID: tc.ID,
			})
		}
	}
	return "", fmt.Errorf("voice: tool-call loop exceeded %d rounds", maxToolRounds)
}

// Start connects the transcriber and begins processing finalized
// utterances. It returns a stop function.
func (e *Engine) Start(ctx context.Context) (func(), error) {
	if err := e.transcriber.Connect(); err != nil {
		return nil, err
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case utterance, ok := <-e.transcriber.Finalize():
				if !ok {
					return
				}
				prompt := strings.TrimSpace(utterance)
				if prompt == "" {
					continue
				}
				log.Printf("voice: heard(final): %s", prompt)
				e.appendMessage(openai.ChatMessageRoleUser, prompt)

				ctxChat, cancel := context.WithTimeout(ctx, chatTimeout)
				reply, err := e.complete(ctxChat)
				cancel()
				if err != nil {
					log.Printf("voice: model error: %v", err)
					continue
				}
				if reply == "" {
					continue
				}
				e.appendMessage(openai.ChatMessageRoleAssistant, reply)
				spoken, barged := e.speak(ctx, reply, true)
				if barged {
					log.Printf("voice: reply interrupted, spoken so far: %s", spoken)
				}
			}
		}
	}()

	stop := func() {
		_ = e.transcriber.Close()
	}
	return stop, nil
}

// speak streams the text through TTS in sentence chunks, honoring
// barge-in. It returns the text actually spoken and whether the user
// interrupted.
func (e *Engine) speak(ctx context.Context, text string, allowInterruptions bool) (string, bool) {
	ctxTTS, cancelTTS := context.WithCancel(ctx)
	e.mu.Lock()
	e.speaking = true
	if allowInterruptions {
		e.ttsCancel = cancelTTS
	}
	e.bargeInRequested = false
	e.mu.Unlock()

	var spokenBuilder strings.Builder
	chunks := chunkReply(text)
CHUNK_LOOP:
	for i, chunk := range chunks {
		if allowInterruptions && e.bargedIn() {
			break CHUNK_LOOP
		}

		pcmCh, errCh := e.tts.StreamPCM(ctxTTS, chunk)
		openPCM, openErr := true, true
		for openPCM || openErr {
			select {
			case b, ok := <-pcmCh:
				if ok {
					if len(b) > 0 && !(allowInterruptions && e.bargedIn()) {
						e.sink.WritePCM(b)
					}
				} else {
					openPCM = false
				}
			case err, ok := <-errCh:
				if ok && err != nil {
					log.Printf("voice: tts stream error: %v", err)
				}
				openErr = false
			case <-ctx.Done():
				openPCM, openErr = false, false
			}
		}
		if allowInterruptions && e.bargedIn() {
			break CHUNK_LOOP
		}
		spokenBuilder.WriteString(strings.TrimSpace(chunk))
		if i < len(chunks)-1 {
			spokenBuilder.WriteString(" ")
		}
	}

	e.mu.Lock()
	wasBarged := e.bargeInRequested
	e.speaking = false
	e.ttsCancel = nil
	e.bargeInRequested = false
	e.mu.Unlock()
	cancelTTS()
	if !wasBarged {
		e.sink.FlushTail()
	}
	return strings.TrimSpace(spokenBuilder.String()), wasBarged && allowInterruptions
}

func (e *Engine) bargedIn() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bargeInRequested
}

// Say speaks the given text directly, outside the utterance loop. With
// allowInterruptions false the speech runs to completion regardless of
// barge-in requests.
func (e *Engine) Say(ctx context.Context, text string, allowInterruptions bool) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if e.tts == nil {
		return fmt.Errorf("voice: tts not configured")
	}
	e.appendMessage(openai.ChatMessageRoleAssistant, text)
	spoken, barged := e.speak(ctx, text, allowInterruptions)
	if barged {
		log.Printf("voice: say interrupted, spoken so far: %s", spoken)
	}
	return ctx.Err()
}

// IsSpeaking reports whether TTS is currently active.
func (e *Engine) IsSpeaking() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speaking
}

// BargeIn cancels current TTS streaming and prevents further audio from
// being written to the sink.
func (e *Engine) BargeIn() {
	e.mu.Lock()
	cancel := e.ttsCancel
	if e.speaking {
		e.bargeInRequested = true
	}
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	// Drop any queued audio immediately so the interruption feels instant.
	e.sink.Reset()
}

// Close releases the transcriber. Safe to call more than once.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		err = e.transcriber.Close()
	})
	return err
}

type nopSink struct{}

func (nopSink) WritePCM(_ []byte) {}
func (nopSink) FlushTail()        {}
func (nopSink) Reset()            {}
