// Package rewrite adapts the external generative-rewrite service. One
// submission produces up to five derivative question/answer variants.
package rewrite

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ErrUnconfigured means no base URL or API key is set.
var ErrUnconfigured = errors.New("rewrite service not configured")

// MaxVariants is the most variants a single job can return.
const MaxVariants = 5

// JobStatus is the external job state reported by Poll.
type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// Variant is one generated question/answer pair.
type Variant struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Result is one Poll observation.
type Result struct {
	Status   JobStatus `json:"status"`
	Variants []Variant `json:"variants"`
}

// Request describes one rewrite submission. PromptVersion travels with
// the request so generated variants can be traced to their template.
type Request struct {
	Question       string `json:"question"`
	Answer         string `json:"answer"`
	PromptTemplate string `json:"prompt_template"`
	PromptVersion  int    `json:"prompt_version"`
	Count          int    `json:"count"`
}

// Client is the rewrite service contract.
type Client interface {
	Submit(ctx context.Context, req Request) (string, error)
	Poll(ctx context.Context, handle string) (Result, error)
}

// Config holds connection settings for the rewrite service.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Configured reports whether credentials are present.
func (c Config) Configured() bool {
	return c.BaseURL != "" && c.APIKey != ""
}

// HTTPClient is a thin JSON-over-HTTP adapter. Poll payloads are
// validated against a JSON schema before they are trusted, since the
// generative service output feeds directly into stored drafts.
type HTTPClient struct {
	cfg        Config
	httpClient *http.Client
	log        *slog.Logger
}

// NewHTTPClient creates a rewrite client.
func NewHTTPClient(cfg Config, logger *slog.Logger) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		log:        logger,
	}
}

// Submit sends the accepted content and returns the external job handle.
func (c *HTTPClient) Submit(ctx context.Context, req Request) (string, error) {
	if !c.cfg.Configured() {
		return "", ErrUnconfigured
	}
	if req.Count <= 0 || req.Count > MaxVariants {
		req.Count = MaxVariants
	}

	body := map[string]any{
		"model":           c.cfg.Model,
		"question":        req.Question,
		"answer":          req.Answer,
		"prompt_template": req.PromptTemplate,
		"prompt_version":  req.PromptVersion,
		"count":           req.Count,
	}
	raw, err := c.post(ctx, "/v1/rewrites", body)
	if err != nil {
		return "", err
	}

	var resp struct {
		JobID string `json:"job_id"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("decode submit response: %w", err)
	}
	if resp.JobID == "" {
		return "", fmt.Errorf("submit response missing job_id")
	}

	c.log.Debug("rewrite submitted", "job_id", resp.JobID, "prompt_version", req.PromptVersion, "count", req.Count)
	return resp.JobID, nil
}

// Poll reports the current state of a submitted job. A done payload that
// fails schema validation is an error, not a half-applied result.
func (c *HTTPClient) Poll(ctx context.Context, handle string) (Result, error) {
	if !c.cfg.Configured() {
		return Result{}, ErrUnconfigured
	}

	raw, err := c.get(ctx, "/v1/rewrites/"+handle)
	if err != nil {
		return Result{}, err
	}

	if err := ValidateResultPayload(raw); err != nil {
		return Result{}, fmt.Errorf("rewrite poll payload: %w", err)
	}

	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return Result{}, fmt.Errorf("decode poll response: %w", err)
	}
	return res, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.cfg.BaseURL, "/")+path, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *HTTPClient) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(c.cfg.BaseURL, "/")+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	return c.do(req)
}

func (c *HTTPClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rewrite http error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("rewrite status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
