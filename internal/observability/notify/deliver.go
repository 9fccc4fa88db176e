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

// RetryStep is the linear backoff unit between delivery attempts.
const RetryStep = 200 * time.Millisecond

// WithRetry calls send up to retries+1 times, sleeping RetryStep*attempt between tries.
// It stops early when ctx is done.
func WithRetry(ctx context.Context, retries int, send func(context.Context) error) error {
	attempts := max(retries, 0) + 1
	var lastErr error
	for attempt := range attempts {
		if lastErr = send(ctx); lastErr == nil {
			return nil
		}
		if attempt == attempts-1 {
			break
		}
		timer := time.NewTimer(time.Duration(attempt+1) * RetryStep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

// PostJSON posts body to endpoint and turns a non-2xx reply into an error naming the sink.
func PostJSON(ctx context.Context, hc *http.Client, sink, endpoint string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", sink, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", sink, err)
	}

	var readErr error
	var respBody []byte
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, readErr = io.ReadAll(resp.Body)
	} else {
		_, readErr = io.Copy(io.Discard, resp.Body)
	}
	if closeErr := resp.Body.Close(); closeErr != nil {
		readErr = errors.Join(readErr, fmt.Errorf("close response body: %w", closeErr))
	}
	if readErr != nil {
		return fmt.Errorf("read %s response: %w", sink, readErr)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: %s", sink, resp.Status, strings.TrimSpace(string(respBody)))
	}
	return nil
}

// HTTPClient returns hc, or a client with the given timeout (5s when unset).
func HTTPClient(hc *http.Client, timeout time.Duration) *http.Client {
	if hc != nil {
		return hc
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// Fallback returns value, or fallback when value is blank.
func Fallback(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
