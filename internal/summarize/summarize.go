// Package summarize produces meeting summaries with a single direct model
// call. Every failure maps to Indonesian placeholder text; the caller never
// sees an error, matching the dispatch surface's always-answer contract.
package summarize

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Fixed result texts. Tests pin these.
const (
	EmptyTranscriptText = "Error: Transkrip kosong."
	MissingKeyText      = "Error: Konfigurasi API Key OpenAI tidak ditemukan."
	EmptySummaryText    = "Model AI tidak dapat menghasilkan ringkasan dari transkrip ini."
	BadResponseText     = "Error: Struktur respons tidak terduga dari API OpenAI."
)

const promptTemplate = "Anda adalah asisten AI yang bertugas merangkum transkrip berikut dalam Bahasa Indonesia. " +
	"Sebutkan topik utama yang dibahas. Jika ada keputusan atau item tindakan yang jelas, sebutkan juga. " +
	"Jika tidak ada, cukup rangkum poin utamanya saja secara singkat.\n\n" +
	"Transkrip:\n%s\n\n" +
	"--- Akhir Transkrip ---\n\n" +
	"Ringkasan:"

// Summarizer makes one blocking, non-streaming model call per transcript.
// No retry: a summary request is re-issued by the user, never silently.
type Summarizer struct {
	client *openai.Client
	model  string
}

// New constructs a Summarizer. A nil client (no API key configured) is
// allowed; Summarize degrades to MissingKeyText.
func New(client *openai.Client, model string) *Summarizer {
	if model == "" {
		model = "gpt-4o"
	}
	return &Summarizer{client: client, model: model}
}

// Summarize returns the summary text or an error placeholder naming the
// failure. A blank transcript returns the fixed error text without any
// model call.
func (s *Summarizer) Summarize(ctx context.Context, transcript string) string {
	if strings.TrimSpace(transcript) == "" {
		log.Println("summarize: attempted to summarize empty transcript")
		return EmptyTranscriptText
	}
	if s == nil || s.client == nil {
		log.Println("summarize: no model client configured")
		return MissingKeyText
	}

	start := time.Now()
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf(promptTemplate, transcript)},
		},
	})
	if err != nil {
		log.Printf("summarize: model call failed: %v", err)
		return fmt.Sprintf("Error saat membuat ringkasan: %v", summarizeErrName(err))
	}
	log.Printf("summarize: model call finished in %.2fs", time.Since(start).Seconds())

	if len(resp.Choices) == 0 {
		log.Printf("summarize: unexpected response structure: %+v", resp)
		return BadResponseText
	}
	summary := strings.TrimSpace(resp.Choices[0].Message.Content)
	if summary == "" {
		log.Println("summarize: model returned empty summary content")
		return EmptySummaryText
	}
	log.Printf("summarize: generated summary of length %d", len(summary))
	return summary
}

// Close releases model-call resources. The OpenAI client holds no
// connection state of its own, but the teardown sequence calls this
// unconditionally so the step stays ordered and guarded.
func (s *Summarizer) Close() error { return nil }

func summarizeErrName(err error) string {
	msg := err.Error()
	if i := strings.IndexByte(msg, ':'); i > 0 {
		return msg[:i]
	}
	return msg
}
