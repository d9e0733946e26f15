// Package search wraps the Perplexity online-search API. Failure classes
// are distinguished so the dispatch surface can answer with a specific
// user-facing message per class.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	endpoint = "https://api.perplexity.ai/chat/completions"

	// Timeout is the budget for one search call end to end.
	Timeout = 25 * time.Second
)

// Sentinel errors for the failure classes the caller messages differently.
var (
	ErrMissingKey  = errors.New("search: api key missing")
	ErrAuth        = errors.New("search: authentication failed")
	ErrRateLimited = errors.New("search: rate limited")
	ErrBadResponse = errors.New("search: unexpected response structure")
)

// Searcher answers a query with synthesized text from an online search.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// PerplexityClient calls the Perplexity chat-completions endpoint with an
// online model.
type PerplexityClient struct {
	HTTPClient *http.Client
	APIKey     string
	Model      string
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionsRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatChoice struct {
	Index   int         `json:"index"`
	Message chatMessage `json:"message"`
}

type chatCompletionsResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
}

func NewPerplexityClient(apiKey string) *PerplexityClient {
	return &PerplexityClient{
		HTTPClient: &http.Client{Timeout: Timeout},
		APIKey:     apiKey,
		Model:      "sonar-medium-online",
	}
}

// Search posts the query and returns the synthesized answer text.
func (c *PerplexityClient) Search(ctx context.Context, query string) (string, error) {
	if c.APIKey == "" {
		return "", ErrMissingKey
	}

	messages := []chatMessage{
		{Role: "system", Content: "You are an AI assistant that searches the internet to provide accurate, concise, and up-to-date answers based on the user's query. Cite sources if possible."},
		{Role: "user", Content: query},
	}

	reqBody, _ := json.Marshal(chatCompletionsRequest{Model: c.Model, Messages: messages})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return "", ErrAuth
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", ErrRateLimited
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("search: status=%d body=%s", resp.StatusCode, string(b))
	}

	var cr chatCompletionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", ErrBadResponse
	}
	if len(cr.Choices) == 0 || cr.Choices[0].Message.Content == "" {
		return "", ErrBadResponse
	}
	return strings.TrimSpace(cr.Choices[0].Message.Content), nil
}
