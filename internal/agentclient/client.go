// Package agentclient talks to a remote agent job backend over HTTP.
package agentclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/adforge/internal/httpclient"
	"github.com/ternarybob/adforge/internal/interfaces"
	"github.com/ternarybob/adforge/internal/models"
	"github.com/ternarybob/arbor"
)

// Client implements interfaces.JobService against the backend's HTTP API
type Client struct {
	baseURL string
	http    *http.Client
	logger  arbor.ILogger
}

var _ interfaces.JobService = (*Client)(nil)

// NewClient creates a client for the backend at baseURL
func NewClient(baseURL string, timeout time.Duration, logger arbor.ILogger) (*Client, error) {
	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("invalid backend URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("invalid backend URL %q: scheme must be http or https", baseURL)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("invalid backend URL %q: missing host", baseURL)
	}

	return &Client{
		baseURL: strings.TrimRight(parsed.String(), "/"),
		http:    httpclient.NewDefaultHTTPClient(timeout),
		logger:  logger,
	}, nil
}

// Start asks the backend to begin a new campaign analysis job
func (c *Client) Start(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/start-campaign", nil)
	if err != nil {
		return "", fmt.Errorf("failed to build start request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("start request failed: %w", err)
	}

	var body models.StartJobResponse
	if err := httpclient.DecodeJSON(resp, &body); err != nil {
		return "", err
	}
	if !body.Success || resp.StatusCode >= http.StatusBadRequest {
		return "", backendError(resp.StatusCode, body.Error)
	}
	if body.JobID == "" {
		return "", errors.New("backend returned no job id")
	}

	c.logger.Debug().Str("job_id", body.JobID).Str("backend", c.baseURL).Msg("Remote job started")
	return body.JobID, nil
}

// GetStatus fetches the job's info and its full log
func (c *Client) GetStatus(ctx context.Context, jobID string) (*models.JobStatusReport, error) {
	endpoint := c.baseURL + "/get-campaign-status/" + url.PathEscape(jobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build status request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}

	var report models.JobStatusReport
	if err := httpclient.DecodeJSON(resp, &report); err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrJobNotFound, jobID)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, backendError(resp.StatusCode, report.Error)
	}
	return &report, nil
}

// Health reports whether the backend answers its health check
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	var body struct {
		Success bool `json:"success"`
	}
	if err := httpclient.DecodeJSON(resp, &body); err != nil {
		return err
	}
	if !body.Success {
		return backendError(resp.StatusCode, "backend reported unhealthy")
	}
	return nil
}

func backendError(status int, message string) error {
	if message == "" {
		message = http.StatusText(status)
	}
	return fmt.Errorf("backend error (HTTP %d): %s", status, message)
}
