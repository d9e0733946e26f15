package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultBaseURL = "https://api.mem0.ai"

// Record is one stored memory as returned by the backend.
type Record struct {
	ID       string                 `json:"id,omitempty"`
	Memory   string                 `json:"memory"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Client is a typed HTTP client for the mem0 memory API.
type Client struct {
	HTTPClient *http.Client
	APIKey     string
	BaseURL    string
}

type searchRequest struct {
	Query  string `json:"query"`
	UserID string `json:"user_id"`
	Limit  int    `json:"limit,omitempty"`
}

type addRequest struct {
	Messages []addMessage           `json:"messages"`
	UserID   string                 `json:"user_id"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

type addMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewClient constructs a mem0 client. The HTTP client timeout is a safety
// net; callers bound individual calls with their own contexts.
func NewClient(apiKey string) *Client {
	return &Client{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		APIKey:     apiKey,
		BaseURL:    defaultBaseURL,
	}
}

// Search runs a semantic search over the user's memories.
func (c *Client) Search(ctx context.Context, query, userID string, limit int) ([]Record, error) {
	if c.APIKey == "" {
		return nil, fmt.Errorf("mem0: api key missing")
	}
	reqBody, _ := json.Marshal(searchRequest{Query: query, UserID: userID, Limit: limit})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/memories/search/", bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Token "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("mem0 search error: status=%d body=%s", resp.StatusCode, string(b))
	}
	var records []Record
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, err
	}
	return records, nil
}

// Add appends one memory for the user. There is no update or delete path:
// writes are append-only from this system's perspective.
func (c *Client) Add(ctx context.Context, text, userID string, metadata map[string]interface{}) error {
	if c.APIKey == "" {
		return fmt.Errorf("mem0: api key missing")
	}
	reqBody, _ := json.Marshal(addRequest{
		Messages: []addMessage{{Role: "user", Content: text}},
		UserID:   userID,
		Metadata: metadata,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/memories/", bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Token "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("mem0 add error: status=%d body=%s", resp.StatusCode, string(b))
	}
	return nil
}
