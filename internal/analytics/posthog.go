package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxErrorBody caps how much of a failed response is kept in a QueryError.
const maxErrorBody = 4 << 10

// PostHogClient runs HogQL queries through the PostHog query API.
type PostHogClient struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewPostHogClient creates a client for one PostHog project. A zero timeout
// leaves the request bounded only by ctx.
func NewPostHogClient(host, projectID, apiKey string, timeout time.Duration) *PostHogClient {
	return &PostHogClient{
		endpoint: strings.TrimRight(host, "/") + "/api/projects/" + url.PathEscape(projectID) + "/query/",
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}
}

type hogQLRequest struct {
	Query hogQLQuery `json:"query"`
}

type hogQLQuery struct {
	Kind  string `json:"kind"`
	Query string `json:"query"`
}

type hogQLResponse struct {
	Columns []string `json:"columns"`
	Results [][]any  `json:"results"`
}

// RunQuery posts query as a HogQLQuery. A non-2xx response is returned as
// *QueryError carrying the status and body. Numbers decode as json.Number.
func (c *PostHogClient) RunQuery(ctx context.Context, query string) ([][]any, error) {
	payload, err := json.Marshal(hogQLRequest{Query: hogQLQuery{Kind: "HogQLQuery", Query: query}})
	if err != nil {
		return nil, fmt.Errorf("posthog: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("posthog: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	started := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("posthog: send query: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &QueryError{Status: resp.StatusCode, Body: string(body)}
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var out hogQLResponse
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("posthog: decode response: %w", err)
	}

	slog.Debug("[PostHog] Query complete",
		"rows", len(out.Results),
		"columns", out.Columns,
		"duration", time.Since(started))
	return out.Results, nil
}
