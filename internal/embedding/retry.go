package embedding

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/openai/openai-go"
)

// Retrying wraps an Embedder with exponential backoff.
type Retrying struct {
	inner      Embedder
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	logger     *slog.Logger
}

// WithRetry wraps e. maxRetries <= 0 selects 3 and baseDelay <= 0 selects
// 500ms.
func WithRetry(e Embedder, maxRetries int, baseDelay time.Duration, logger *slog.Logger) *Retrying {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrying{inner: e, maxRetries: maxRetries, baseDelay: baseDelay, maxDelay: 30 * time.Second, logger: logger}
}

// Model implements Embedder.
func (r *Retrying) Model() string { return r.inner.Model() }

// Embed implements Embedder. On exhaustion the last error is returned as a
// DependencyUnavailable error.
func (r *Retrying) Embed(ctx context.Context, text string) ([]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		vec, err := r.inner.Embed(ctx, text)
		if err == nil {
			return vec, nil
		}
		lastErr = err
		if !isRetryable(err) || attempt == r.maxRetries {
			break
		}
		r.logger.Warn("embedding: retrying",
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()))
		if err := r.backoff(ctx, attempt); err != nil {
			break
		}
	}
	return nil, unavailable("embedding.Retrying", fmt.Errorf("after %d retries: %w", r.maxRetries, lastErr))
}

// isRetryable reports whether err is transient: a 429 or 5xx answer from
// the API, a transport failure or a per-attempt timeout. Other API answers
// (400, 401, 404, ...) and cancellation are final.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= http.StatusInternalServerError
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func (r *Retrying) backoff(ctx context.Context, attempt int) error {
	delay := time.Duration(float64(r.baseDelay) * math.Pow(2, float64(attempt)))
	if delay > r.maxDelay {
		delay = r.maxDelay
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
