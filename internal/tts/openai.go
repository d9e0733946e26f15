// Package tts streams synthesized speech audio. Thin wrapper over the
// OpenAI speech endpoint; the channel-pair contract lets the dialogue
// engine drop audio mid-stream on barge-in.
package tts

import (
	"context"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient synthesizes speech as 24kHz 16-bit mono PCM.
type OpenAIClient struct {
	client *openai.Client
	voice  openai.SpeechVoice
}

// NewOpenAIClient constructs the wrapper. client may be nil when no API
// key is configured; streams then fail with an error on the error channel.
func NewOpenAIClient(client *openai.Client, voice string) *OpenAIClient {
	v := openai.SpeechVoice(voice)
	if voice == "" {
		v = openai.VoiceNova
	}
	return &OpenAIClient{client: client, voice: v}
}

// StreamPCM issues one speech request and forwards the response body in
// chunks. Both channels are closed when the stream ends; cancellation of
// ctx stops the stream.
func (c *OpenAIClient) StreamPCM(ctx context.Context, text string) (<-chan []byte, <-chan error) {
	pcmCh := make(chan []byte, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(pcmCh)
		defer close(errCh)

		if c.client == nil {
			errCh <- fmt.Errorf("tts: client not configured")
			return
		}
		if text == "" {
			return
		}

		resp, err := c.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
			Model:          openai.TTSModel1,
			Input:          text,
			Voice:          c.voice,
			ResponseFormat: openai.SpeechResponseFormatPcm,
		})
		if err != nil {
			errCh <- fmt.Errorf("tts: create speech: %w", err)
			return
		}
		defer resp.Close()

		buf := make([]byte, 4096)
		for {
			n, err := resp.Read(buf)
			if n > 0 {
				b := make([]byte, n)
				copy(b, buf[:n])
				select {
				case pcmCh <- b:
				case <-ctx.Done():
					return
				}
			}
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- fmt.Errorf("tts: stream read: %w", err)
				return
			}
		}
	}()

	return pcmCh, errCh
}
