package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxResponseBytes bounds how much of a response body is decoded
const maxResponseBytes = 16 << 20

// NewDefaultHTTPClient creates a simple HTTP client with a timeout
func NewDefaultHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
	}
}

// DecodeJSON reads a JSON response body into v and closes it.
// Non-JSON bodies are reported with the HTTP status for context.
func DecodeJSON(resp *http.Response, v interface{}) error {
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to decode response (HTTP %d): %w", resp.StatusCode, err)
	}
	return nil
}
