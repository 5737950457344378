package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

var (
	ErrConfiguration     = errors.New("ai provider is not configured")
	ErrEmbeddingService  = errors.New("embedding service error")
	ErrCompletionService = errors.New("completion service error")
	ErrTimeout           = errors.New("ai provider timed out")
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewHTTPClient returns the client shared by the provider calls; every call is
// bounded by timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// postJSON sends body to baseURL+path and decodes a 2xx answer into out.
// Transport failures, non-2xx statuses and undecodable bodies are wrapped in kind.
func postJSON(ctx context.Context, client *http.Client, kind error, baseURL, apiKey, path string, body, out any) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%w: marshal request failed: %v", kind, err)
	}

	url := strings.TrimRight(baseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("%w: build request failed: %v", kind, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	if client == nil {
		client = NewHTTPClient(defaultTimeout)
	}
	resp, err := client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%w: %w: %v", kind, ErrTimeout, err)
		}
		return fmt.Errorf("%w: request failed: %v", kind, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%w: %w: %v", kind, ErrTimeout, err)
		}
		return fmt.Errorf("%w: read response failed: %v", kind, err)
	}
	if resp.StatusCode >= 300 {
		var parsed apiError
		if json.Unmarshal(raw, &parsed) == nil && parsed.Error.Message != "" {
			return fmt.Errorf("%w: status %d: %s", kind, resp.StatusCode, parsed.Error.Message)
		}
		return fmt.Errorf("%w: status %d: %s", kind, resp.StatusCode, truncate(string(raw), 512))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: parse response json failed: %v", kind, err)
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
