package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultTimeout bounds a single delivery request.
	DefaultTimeout = 5 * time.Second
	retryStep      = 200 * time.Millisecond
	maxErrorBody   = 1024
)

// PostParams groups the inputs of PostJSON.
type PostParams struct {
	Client     *http.Client
	URL        string
	Body       []byte
	RetryLimit int
	// Service names the destination in error messages, e.g. "slack".
	Service string
}

// PostJSON posts Body to URL, retrying up to RetryLimit extra times with a linear delay.
// Any non-2xx response counts as a failed attempt.
func PostJSON(ctx context.Context, p PostParams) error {
	client := p.Client
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}

	attempts := max(p.RetryLimit, 0) + 1
	var lastErr error
	for attempt := range attempts {
		lastErr = postOnce(ctx, client, p)
		if lastErr == nil {
			return nil
		}
		if attempt == attempts-1 {
			break
		}
		timer := time.NewTimer(time.Duration(attempt+1) * retryStep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

func postOnce(ctx context.Context, client *http.Client, p PostParams) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, bytes.NewReader(p.Body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", p.Service, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", p.Service, err)
	}

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	closeErr := resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: %s", p.Service, resp.Status, strings.TrimSpace(string(body)))
	}
	if readErr != nil || closeErr != nil {
		return errors.Join(readErr, closeErr)
	}
	return nil
}

// Fallback returns value unless it is blank.
func Fallback(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
