// Package recognition adapts the external text-recognition service to the
// submit/poll contract the orchestrator drives.
package recognition

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

// ErrUnconfigured means no base URL or API key is set; callers fall back
// to manual-entry placeholders instead of retrying.
var ErrUnconfigured = errors.New("recognition service not configured")

// JobStatus is the external job state reported by Poll.
type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// Result is one Poll observation. Question/Answer are set when Status is
// done. Polling is at-least-once; a done result may be observed multiple
// times.
type Result struct {
	Status   JobStatus `json:"status"`
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
}

// Client is the recognition service contract.
type Client interface {
	Submit(ctx context.Context, images []string) (string, error)
	Poll(ctx context.Context, handle string) (Result, error)
}

// Config holds connection settings for the recognition service.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Configured reports whether credentials are present.
func (c Config) Configured() bool {
	return c.BaseURL != "" && c.APIKey != ""
}

// HTTPClient is a thin JSON-over-HTTP adapter.
type HTTPClient struct {
	cfg        Config
	httpClient *http.Client
	log        *slog.Logger
}

// NewHTTPClient creates a recognition client.
func NewHTTPClient(cfg Config, logger *slog.Logger) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		log:        logger,
	}
}

// Submit sends the image references and returns the external job handle.
func (c *HTTPClient) Submit(ctx context.Context, images []string) (string, error) {
	if !c.cfg.Configured() {
		return "", ErrUnconfigured
	}

	raw, err := c.post(ctx, "/v1/recognitions", map[string]any{"images": images})
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

	c.log.Debug("recognition submitted", "job_id", resp.JobID, "images", len(images))
	return resp.JobID, nil
}

// Poll reports the current state of a submitted job.
func (c *HTTPClient) Poll(ctx context.Context, handle string) (Result, error) {
	if !c.cfg.Configured() {
		return Result{}, ErrUnconfigured
	}

	raw, err := c.get(ctx, "/v1/recognitions/"+handle)
	if err != nil {
		return Result{}, err
	}

	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return Result{}, fmt.Errorf("decode poll response: %w", err)
	}
	switch res.Status {
	case JobPending, JobDone, JobFailed:
	default:
		return Result{}, fmt.Errorf("unknown job status %q", res.Status)
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
		return nil, fmt.Errorf("recognition http error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("recognition status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
