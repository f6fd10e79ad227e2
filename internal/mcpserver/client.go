package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Config holds the configuration for connecting to the aw3econ API.
type Config struct {
	APIURL string // Base URL, e.g. "http://localhost:8080"
}

// EconClient is a thin HTTP client for the aw3econ API. Amounts travel as
// decimal strings in both directions.
type EconClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewEconClient creates a new API client.
func NewEconClient(cfg Config) *EconClient {
	return &EconClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiError represents an error response from the API.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"details"`
}

func (e apiError) String() string {
	msg := e.Message
	for _, d := range e.Details {
		msg += fmt.Sprintf("; %s: %s", d.Field, d.Message)
	}
	return msg
}

// doRequest makes an HTTP request to the API and returns the response body.
func (c *EconClient) doRequest(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.String())
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// EstimateFees requests a signed fee estimate.
func (c *EconClient) EstimateFees(ctx context.Context, req map[string]any) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodPost, "/v1/fees/estimate", nil, req)
}

// AcceptEstimate accepts a previously issued estimate.
func (c *EconClient) AcceptEstimate(ctx context.Context, estimateID, signature string) (json.RawMessage, error) {
	path := "/v1/fees/estimates/" + url.PathEscape(estimateID) + "/accept"
	return c.doRequest(ctx, http.MethodPost, path, nil, map[string]string{"signature": signature})
}

// Settle computes a performance-adjusted settlement.
func (c *EconClient) Settle(ctx context.Context, req map[string]any) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodPost, "/v1/settlements", nil, req)
}

// ScoreCVPI scores a completed deliverable.
func (c *EconClient) ScoreCVPI(ctx context.Context, req map[string]any) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodPost, "/v1/cvpi/score", nil, req)
}

// CreatorHistory returns a creator's CVPI summary for a period such as "30d".
func (c *EconClient) CreatorHistory(ctx context.Context, creatorID, period string) (json.RawMessage, error) {
	q := url.Values{}
	if period != "" {
		q.Set("period", period)
	}
	return c.doRequest(ctx, http.MethodGet, "/v1/cvpi/creators/"+url.PathEscape(creatorID), q, nil)
}

// EvaluateReputation returns the tier, benefits and next tier for a score.
func (c *EconClient) EvaluateReputation(ctx context.Context, scale, score string) (json.RawMessage, error) {
	body := map[string]string{"score": score}
	if scale != "" {
		body["scale"] = scale
	}
	return c.doRequest(ctx, http.MethodPost, "/v1/reputation/evaluate", nil, body)
}

// Info returns the service info including the effective economic tables.
func (c *EconClient) Info(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/info", nil, nil)
}
