package voice

import (
	"log"
	"strings"
	"sync"
)

// TextFeed is a Transcriber fed with already-finalized text, e.g.
// client-side speech recognition delivered over the room's data channel.
type TextFeed struct {
	ch        chan string
	closeOnce sync.Once
}

// NewTextFeed returns a feed with a small buffer; pushes into a full
// buffer are dropped rather than blocking the data callback.
func NewTextFeed() *TextFeed {
	return &TextFeed{ch: make(chan string, 8)}
}

func (f *TextFeed) Connect() error { return nil }

func (f *TextFeed) Finalize() <-chan string { return f.ch }

// Push hands one finalized utterance to the engine. Never blocks.
func (f *TextFeed) Push(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	select {
	case f.ch <- text:
	default:
		log.Printf("voice: text feed full, dropping utterance: %s", text)
	}
}

func (f *TextFeed) Close() error {
	f.closeOnce.Do(func() { close(f.ch) })
	return nil
}
