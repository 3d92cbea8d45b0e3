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
	"net/http/httptest"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/starford/cadence/internal/apperr"
	"github.com/starford/cadence/internal/retrieval"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHashIsDeterministicAndNormalised(t *testing.T) {
	h := NewHash(64)
	a, err := h.Embed(context.Background(), "Left knee hurts on long descents")
	require.NoError(t, err)
	b, err := h.Embed(context.Background(), "Left knee hurts on long descents")
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Len(t, a, 64)

	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	require.InDelta(t, 1, math.Sqrt(norm), 1e-5)
	require.Equal(t, "hash-64", h.Model())
}

func TestHashSimilarity(t *testing.T) {
	h := NewHash(256)
	ctx := context.Background()
	q, _ := h.Embed(ctx, "knee pain")
	near, _ := h.Embed(ctx, "knee pain after running")
	far, _ := h.Embed(ctx, "prefers oat milk")
	require.Greater(t, retrieval.Cosine(q, near), retrieval.Cosine(q, far))
}

func TestHashEmptyText(t *testing.T) {
	v, err := NewHash(8).Embed(context.Background(), "the of")
	require.NoError(t, err)
	require.Equal(t, make([]float32, 8), v)
}

type flaky struct {
	fails int
	calls int
	err   error
}

func (f *flaky) Model() string { return "flaky" }

func (f *flaky) Embed(_ context.Context, _ string) ([]float32, error) {
	f.calls++
	if f.calls <= f.fails {
		return nil, f.err
	}
	return []float32{1}, nil
}

func TestRetryingRecovers(t *testing.T) {
	inner := &flaky{fails: 2, err: refused()}
	r := WithRetry(inner, 3, time.Millisecond, quietLogger())
	v, err := r.Embed(context.Background(), "x")
	require.NoError(t, err)
	require.Equal(t, []float32{1}, v)
	require.Equal(t, 3, inner.calls)
	require.Equal(t, "flaky", r.Model())
}

func TestRetryingExhausts(t *testing.T) {
	inner := &flaky{fails: 100, err: refused()}
	r := WithRetry(inner, 2, time.Millisecond, quietLogger())
	_, err := r.Embed(context.Background(), "x")
	require.ErrorIs(t, err, apperr.ErrDependencyUnavailable)
	require.Equal(t, 3, inner.calls)
}

func refused() error {
	return &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}
}

func TestRetryingStopsOnPermanentError(t *testing.T) {
	inner := &flaky{fails: 100, err: errors.New("status 401 unauthorized")}
	r := WithRetry(inner, 5, time.Millisecond, quietLogger())
	_, err := r.Embed(context.Background(), "x")
	require.ErrorIs(t, err, apperr.ErrDependencyUnavailable)
	require.Equal(t, 1, inner.calls)
}

func TestRetryingHonoursCancellation(t *testing.T) {
	inner := &flaky{fails: 100, err: refused()}
	r := WithRetry(inner, 5, time.Hour, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := r.Embed(ctx, "x")
	require.Error(t, err)
	require.Equal(t, 1, inner.calls)
}

func TestOpenAIEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embeddings", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","model":"test-embed","data":[{"object":"embedding","index":0,"embedding":[0.5,-0.25,1]}],"usage":{"prompt_tokens":2,"total_tokens":2}}`)
	}))
	defer srv.Close()

	o := NewOpenAI(OpenAIConfig{APIKey: "k", BaseURL: srv.URL, Model: "test-embed", Timeout: time.Second})
	v, err := o.Embed(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, []float32{0.5, -0.25, 1}, v)
	require.Equal(t, "test-embed", o.Model())
}

func TestOpenAIServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"down"}}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	o := NewOpenAI(OpenAIConfig{APIKey: "k", BaseURL: srv.URL, Model: "m"})
	_, err := o.Embed(context.Background(), "hello")
	require.ErrorIs(t, err, apperr.ErrDependencyUnavailable)
}

func TestRetryingStopsOnUnavailableWithoutTransientCause(t *testing.T) {
	inner := &flaky{fails: 100, err: apperr.New(apperr.ErrDependencyUnavailable, "test", errors.New("empty embeddings response"))}
	r := WithRetry(inner, 5, time.Millisecond, quietLogger())
	_, err := r.Embed(context.Background(), "x")
	require.ErrorIs(t, err, apperr.ErrDependencyUnavailable)
	require.Equal(t, 1, inner.calls)
}

// statusServer answers the first len(codes) requests with those statuses
// and every later one with a valid embedding.
func statusServer(t *testing.T, codes ...int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := int(calls.Add(1))
		w.Header().Set("Content-Type", "application/json")
		if n <= len(codes) {
			w.WriteHeader(codes[n-1])
			fmt.Fprint(w, `{"error":{"message":"nope","type":"test"}}`)
			return
		}
		fmt.Fprint(w, `{"object":"list","model":"m","data":[{"object":"embedding","index":0,"embedding":[1]}],"usage":{"prompt_tokens":1,"total_tokens":1}}`)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestRetryingOpenAIStatusClasses(t *testing.T) {
	cases := []struct {
		name  string
		codes []int
		calls int32
		ok    bool
	}{
		{"rate limited then ok", []int{http.StatusTooManyRequests}, 2, true},
		{"server errors then ok", []int{http.StatusInternalServerError, http.StatusBadGateway}, 3, true},
		{"bad request is final", []int{http.StatusBadRequest}, 1, false},
		{"unauthorized is final", []int{http.StatusUnauthorized}, 1, false},
		{"not found is final", []int{http.StatusNotFound}, 1, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv, calls := statusServer(t, tc.codes...)
			o := NewOpenAI(OpenAIConfig{APIKey: "k", BaseURL: srv.URL, Model: "m", Timeout: time.Second})
			_, err := WithRetry(o, 3, time.Millisecond, quietLogger()).Embed(context.Background(), "x")
			if tc.ok {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, apperr.ErrDependencyUnavailable)
			}
			require.Equal(t, tc.calls, calls.Load())
		})
	}
}

func TestIsRetryable(t *testing.T) {
	require.True(t, isRetryable(refused()))
	require.True(t, isRetryable(fmt.Errorf("read: %w", syscall.ECONNRESET)))
	require.True(t, isRetryable(io.ErrUnexpectedEOF))
	require.True(t, isRetryable(context.DeadlineExceeded))
	require.False(t, isRetryable(context.Canceled))
	require.False(t, isRetryable(errors.New("503 in the message text only")))
}
