package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"docchat/internal/failure"
)

const maxAttempts = 4

// statusError carries a non-success HTTP status and the response body.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.status, e.body)
}

// retryable reports whether a status is worth another attempt.
func retryable(status int) bool {
	return status >= 500 || status == http.StatusTooManyRequests
}

// backoffDelay grows quadratically with jitter. A server-sent Retry-After
// overrides the computed delay.
func backoffDelay(attempt int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		return retryAfter
	}
	base := time.Duration(attempt*attempt) * time.Second
	return base + time.Duration(rand.Int63n(int64(base/2+1)))
}

// doWithRetry runs buildReq against client until success, a non-retryable
// status, or the attempt budget is spent. Terminal errors carry a failure
// kind so callers never have to sniff message text.
func doWithRetry(ctx context.Context, client *http.Client, buildReq func() (*http.Request, error), logger *slog.Logger) (*http.Response, error) {
	var lastErr error
	var retryAfter time.Duration

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			delay := backoffDelay(attempt-1, retryAfter)
			logger.Warn("retrying request", "attempt", attempt, "delay", delay)
			select {
			case <-ctx.Done():
				return nil, &failure.KindError{Kind: failure.KindTimeout, Err: ctx.Err()}
			case <-time.After(delay):
			}
		}
		retryAfter = 0

		req, err := buildReq()
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return nil, &failure.KindError{Kind: failure.KindTimeout, Err: err}
			}
			logger.Warn("request failed", "attempt", attempt, "err", err)
			lastErr = &failure.KindError{Kind: failure.KindNetwork, Err: err}
			continue
		}

		if retryable(resp.StatusCode) {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			serr := &statusError{status: resp.StatusCode, body: string(body)}
			kind := failure.KindNetwork
			if resp.StatusCode == http.StatusTooManyRequests {
				kind = failure.KindRateLimit
				retryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
			}
			lastErr = &failure.KindError{Kind: kind, Err: serr}
			logger.Warn("server error", "attempt", attempt, "status", resp.StatusCode)
			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("giving up after %d attempts: %w", maxAttempts, lastErr)
}

// parseRetryAfter handles the delay-seconds form only; HTTP-date values are
// ignored and fall back to computed backoff.
func parseRetryAfter(h string) time.Duration {
	secs, err := strconv.Atoi(h)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
