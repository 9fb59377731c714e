// Package search wraps the web search provider behind a normalized
// result shape and a typed failure taxonomy.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
)

const (
	// DefaultEndpoint is the provider's search URL.
	DefaultEndpoint = "https://google.serper.dev/search"

	// DefaultTimeout bounds one search request. The provider hanging is
	// reported as a network failure, never an indefinite wait.
	DefaultTimeout = 15 * time.Second

	// MaxResults is the provider's per-request result ceiling.
	MaxResults = 100

	serviceName = "search"
	provenance  = "web_search"
)

// Client calls the web search provider. It performs no retries; the
// caller owns resilience policy.
type Client struct {
	apiKey   string
	endpoint string
	httpc    *http.Client
}

// New creates a search client. A zero timeout falls back to DefaultTimeout;
// an empty endpoint falls back to DefaultEndpoint.
func New(apiKey, endpoint string, timeout time.Duration) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		apiKey:   apiKey,
		endpoint: endpoint,
		httpc:    &http.Client{Timeout: timeout},
	}
}

type searchRequest struct {
	Q      string `json:"q"`
	Num    int    `json:"num"`
	Region string `json:"gl"`
}

type searchResponse struct {
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic"`
}

// Search runs one query and returns normalized results. Validation
// failures (blank query, out-of-range maxResults, missing credential)
// are raised before any network traffic. A response without an organic
// list yields an empty slice, not an error.
func (c *Client) Search(ctx context.Context, query string, maxResults int, region string) ([]models.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, apperr.Validation("search query must be a non-empty string")
	}
	if maxResults < 1 || maxResults > MaxResults {
		return nil, apperr.Validation("maxResults must be between 1 and %d, got %d", MaxResults, maxResults)
	}
	if c.apiKey == "" {
		return nil, apperr.Validation("search API key is not configured")
	}
	if region == "" {
		region = "us"
	}

	body, err := json.Marshal(searchRequest{Q: query, Num: maxResults, Region: region})
	if err != nil {
		return nil, fmt.Errorf("search: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("search: build request: %w", err)
	}
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, apperr.Upstream(apperr.UpstreamNetwork, serviceName, 0, "no response from search provider", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, apperr.Upstream(apperr.UpstreamNetwork, serviceName, resp.StatusCode, "reading response body", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode, string(raw))
	}

	var parsed searchResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, apperr.Upstream(apperr.UpstreamUnknown, serviceName, resp.StatusCode, "malformed provider response", err)
	}

	now := time.Now().UTC()
	results := make([]models.SearchResult, 0, len(parsed.Organic))
	for _, item := range parsed.Organic {
		title := item.Title
		if title == "" {
			title = "Untitled"
		}
		results = append(results, models.SearchResult{
			Title:       title,
			URL:         item.Link,
			Snippet:     item.Snippet,
			Source:      provenance,
			RetrievedAt: now,
		})
	}
	return results, nil
}

func classifyStatus(status int, body string) error {
	msg := strings.TrimSpace(body)
	if len(msg) > 300 {
		msg = msg[:300]
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return apperr.Upstream(apperr.UpstreamAuth, serviceName, status, msg, nil)
	case status == http.StatusTooManyRequests:
		return apperr.Upstream(apperr.UpstreamRateLimit, serviceName, status, msg, nil)
	case status >= 400 && status < 500:
		return apperr.Upstream(apperr.UpstreamBadRequest, serviceName, status, msg, nil)
	case status >= 500:
		return apperr.Upstream(apperr.UpstreamServer, serviceName, status, msg, nil)
	default:
		return apperr.Upstream(apperr.UpstreamUnknown, serviceName, status, msg, nil)
	}
}
