package fetch

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/zapic/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/zapic/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/zapic/internal/page"
)

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func newTestFetcher(cfg Config, sleeper *sleepRecorder, metrics *monitoring.Metrics) *Fetcher {
	return New(cfg, nil, metrics,
		WithBackoff(resilience.NewBackoffWithSource(rand.NewPCG(1, 2))),
		WithSleep(sleeper.sleep))
}

func TestFetchSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("ETag", `"v7"`)
		w.Header().Set("Cache-Control", "public, max-age=120")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html><head></head><body>ok</body></html>"))
	}))
	defer server.Close()

	metrics := monitoring.NewMetrics()
	f := newTestFetcher(Config{StaleThreshold: 2}, &sleepRecorder{}, metrics)

	p, err := f.Fetch(context.Background(), server.URL, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "<html><head></head><body>ok</body></html>", p.HTML)
	assert.Equal(t, `"v7"`, p.Headers["etag"])
	assert.Equal(t, 2*time.Minute, p.MaxAge())
	assert.True(t, p.LastValidatedAt.IsZero())
	assert.Equal(t, int64(1), metrics.Snapshot().FetchSuccesses)
}

func TestFetchServesStaleAfterThreshold(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	sleeper := &sleepRecorder{}
	f := newTestFetcher(Config{StaleThreshold: 2}, sleeper, nil)
	stale := page.New("<html>old</html>", nil, time.Now().Add(-time.Hour))

	var attempts []Attempt
	p, err := f.Fetch(context.Background(), server.URL, stale, func(a Attempt) {
		attempts = append(attempts, a)
	})
	require.NoError(t, err)

	assert.Same(t, stale, p)
	assert.Equal(t, int32(3), requests.Load())
	require.Len(t, attempts, 3)
	for i, a := range attempts {
		assert.Equal(t, i+1, a.Number)
		assert.GreaterOrEqual(t, a.NextDelay, resilience.DefaultBase)
		assert.LessOrEqual(t, a.NextDelay, resilience.DefaultBase<<i)
	}
	// no wait after the last failure
	assert.Len(t, sleeper.delays, 2)
}

func TestFetchRetriesWithoutStalePage(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) <= 4 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("fresh"))
	}))
	defer server.Close()

	sleeper := &sleepRecorder{}
	f := newTestFetcher(Config{StaleThreshold: 2}, sleeper, nil)

	var failures int
	p, err := f.Fetch(context.Background(), server.URL, nil, func(Attempt) { failures++ })
	require.NoError(t, err)

	assert.Equal(t, "fresh", p.HTML)
	assert.Equal(t, int32(5), requests.Load())
	assert.Equal(t, 4, failures)
	assert.Len(t, sleeper.delays, 4)
}

func TestFetchNonOKIsFailure(t *testing.T) {
	tests := []int{http.StatusNotModified, http.StatusNoContent, http.StatusNotFound}

	for _, code := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
		}))

		metrics := monitoring.NewMetrics()
		f := newTestFetcher(Config{StaleThreshold: 0}, &sleepRecorder{}, metrics)
		stale := page.New("stale", nil, time.Time{})

		p, err := f.Fetch(context.Background(), server.URL, stale, nil)
		require.NoError(t, err)
		assert.Same(t, stale, p, "status %d", code)
		assert.Equal(t, int64(1), metrics.Snapshot().FetchFailures)

		server.Close()
	}
}

func TestFetchCancelledBeforeStart(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := newTestFetcher(Config{}, &sleepRecorder{}, nil)
	p, err := f.Fetch(ctx, server.URL, page.New("stale", nil, time.Time{}), nil)

	assert.Nil(t, p)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, requests.Load())
}

func TestFetchCancelledWhileWaiting(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	f := New(Config{StaleThreshold: 2}, nil, nil, WithSleep(func(ctx context.Context, d time.Duration) error {
		cancel()
		return resilience.Sleep(ctx, d)
	}))

	p, err := f.Fetch(ctx, server.URL, nil, nil)
	assert.Nil(t, p)
	assert.True(t, errors.Is(err, ErrCancelled))
}

func TestFetchCancelledDuringBody(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>partial"))
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	f := newTestFetcher(Config{}, &sleepRecorder{}, nil)
	p, err := f.Fetch(ctx, server.URL, page.New("stale", nil, time.Time{}), nil)

	assert.Nil(t, p)
	assert.ErrorIs(t, err, ErrCancelled)
}

// closeHookBody runs onClose when the body is closed, after the whole
// document has been read.
type closeHookBody struct {
	*strings.Reader
	onClose func()
}

func (b closeHookBody) Close() error {
	b.onClose()
	return nil
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (fn roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return fn(r) }

func TestFetchCancelledAfterBodyIsNotDelivered(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	transport := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": {"text/html; charset=utf-8"}},
			Body: closeHookBody{
				Reader:  strings.NewReader("<html><head></head><body>late</body></html>"),
				onClose: cancel,
			},
			Request: r,
		}, nil
	})

	metrics := monitoring.NewMetrics()
	f := New(Config{}, nil, metrics, WithTransport(transport), WithSleep((&sleepRecorder{}).sleep))
	p, err := f.Fetch(ctx, "http://app.test/", nil, nil)

	assert.Nil(t, p)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, int64(0), metrics.Snapshot().FetchSuccesses)
}

func TestFetchReadTimeoutIsFailure(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>partial"))
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	f := newTestFetcher(Config{ReadTimeout: 50 * time.Millisecond, StaleThreshold: 0}, &sleepRecorder{}, nil)
	stale := page.New("stale", nil, time.Time{})

	var attempts []Attempt
	p, err := f.Fetch(context.Background(), server.URL, stale, func(a Attempt) { attempts = append(attempts, a) })
	require.NoError(t, err)
	assert.Same(t, stale, p)
	assert.Len(t, attempts, 1)
}

func TestFetchUnreachableHost(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	f := newTestFetcher(Config{ConnectTimeout: time.Second, StaleThreshold: 1}, &sleepRecorder{}, nil)
	stale := page.New("stale", nil, time.Time{})

	var failures int
	p, err := f.Fetch(context.Background(), url, stale, func(Attempt) { failures++ })
	require.NoError(t, err)
	assert.Same(t, stale, p)
	assert.Equal(t, 2, failures)
}
