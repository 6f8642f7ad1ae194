// Package ner provides the statistical recognizers behind the classifier: an
// HTTP client for an external NER sidecar and a bundled trainable tagger.
package ner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/killallgit/sensitive-data-api/internal/classification"
)

// Client calls a NER sidecar's /classify endpoint
type Client struct {
	baseURL string
	http    *http.Client
}

var _ classification.Recognizer = (*Client)(nil)

// NewClient creates a Client for the sidecar at baseURL
// (e.g. "http://ner-sidecar:8001").
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type classifyRequest struct {
	Text string `json:"text"`
}

type classifyResponse struct {
	Spans []classification.RawSpan `json:"spans"`
}

// Recognize sends text to the sidecar. Offsets in the response are rune offsets.
func (c *Client) Recognize(ctx context.Context, text string) ([]classification.RawSpan, error) {
	body, err := json.Marshal(classifyRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("ner: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/classify", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ner: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ner: sidecar unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ner: unexpected status %d", resp.StatusCode)
	}

	var result classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("ner: decode: %w", err)
	}
	return result.Spans, nil
}

// HealthCheck verifies the sidecar answers on /health
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("ner: request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ner: sidecar unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ner: sidecar unhealthy: status %d", resp.StatusCode)
	}
	return nil
}
