package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/zapic/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/zapic/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/zapic/internal/page"
)

const (
	DefaultTimeout        = 10 * time.Second
	DefaultStaleThreshold = 2

	chunkSize = 32 * 1024
)

var ErrCancelled = errors.New("fetch: cancelled")

// Attempt describes a failed download attempt.
type Attempt struct {
	Number    int
	NextDelay time.Duration
}

// Config holds fetcher settings.
type Config struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	StaleThreshold int
	UserAgent      string
}

// Fetcher downloads the web app document, retrying until it succeeds, the
// context is cancelled, or a stale copy can be served instead.
type Fetcher struct {
	client      *resty.Client
	readTimeout time.Duration
	threshold   int
	backoff     *resilience.Backoff
	sleep       func(ctx context.Context, d time.Duration) error
	logger      *zap.Logger
	metrics     *monitoring.Metrics
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithBackoff replaces the retry delay source.
func WithBackoff(b *resilience.Backoff) Option {
	return func(f *Fetcher) { f.backoff = b }
}

// WithSleep replaces the function used to wait between attempts.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(f *Fetcher) { f.sleep = fn }
}

// WithTransport replaces the HTTP transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(f *Fetcher) { f.client.SetTransport(rt) }
}

// New creates a fetcher.
func New(cfg Config, logger *zap.Logger, metrics *monitoring.Metrics, opts ...Option) *Fetcher {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultTimeout
	}
	if cfg.StaleThreshold < 0 {
		cfg.StaleThreshold = DefaultStaleThreshold
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "zapic-host/1.0"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	f := &Fetcher{
		client:      newClient(cfg, logger),
		readTimeout: cfg.ReadTimeout,
		threshold:   cfg.StaleThreshold,
		backoff:     resilience.NewBackoff(),
		sleep:       resilience.Sleep,
		logger:      logger,
		metrics:     metrics,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// newClient builds a resty client on the pooled retryablehttp transport.
// Retries are driven by Fetch, so resty's own retry is off.
func newClient(cfg Config, logger *zap.Logger) *resty.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 0
	retryClient.Logger = nil

	transport := retryClient.HTTPClient.Transport
	if t, ok := transport.(*http.Transport); ok {
		t.DialContext = (&net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext
		t.TLSHandshakeTimeout = cfg.ConnectTimeout
		t.ResponseHeaderTimeout = cfg.ReadTimeout
	}

	return resty.New().
		SetTransport(transport).
		SetRetryCount(0).
		SetLogger(restyLogger{logger.Sugar()}).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Accept", "text/html,application/xhtml+xml")
}

// Fetch downloads url. Each failed attempt is reported to onFailure before
// the retry delay. Once more than the stale threshold of consecutive attempts
// have failed, stale is returned if it is non-nil; without it Fetch retries
// until ctx is cancelled, returning ErrCancelled.
func (f *Fetcher) Fetch(ctx context.Context, url string, stale *page.CachedPage, onFailure func(Attempt)) (*page.CachedPage, error) {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, cancelled(err)
		}

		start := time.Now()
		p, err := f.attempt(ctx, url)
		if err == nil {
			// a page that arrives after cancellation is not delivered
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, cancelled(ctxErr)
			}
			f.metrics.RecordFetch("success", time.Since(start))
			f.logger.Info("Fetched web page",
				zap.String("url", url),
				zap.Int("attempt", attempt),
				zap.Int("bytes", len(p.HTML)))
			return p, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, cancelled(ctxErr)
		}

		var status statusError
		result := "io_error"
		if errors.As(err, &status) {
			result = "http_error"
		}
		f.metrics.RecordFetch(result, time.Since(start))

		delay := f.backoff.Delay(attempt)
		f.logger.Warn("Web page fetch failed",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Duration("next_delay", delay),
			zap.Error(err))
		if onFailure != nil {
			onFailure(Attempt{Number: attempt, NextDelay: delay})
		}

		if attempt > f.threshold && stale != nil {
			f.logger.Info("Serving stale web page", zap.Int("failures", attempt))
			return stale, nil
		}

		if err := f.sleep(ctx, delay); err != nil {
			return nil, cancelled(err)
		}
	}
}

type statusError struct {
	code int
}

func (e statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.code)
}

// attempt performs one GET. Reading the body is bounded by the read timeout
// between chunks.
func (f *Fetcher) attempt(ctx context.Context, url string) (*page.CachedPage, error) {
	actx, cancel := context.WithCancel(ctx)
	defer cancel()

	resp, err := f.client.R().
		SetContext(actx).
		SetDoNotParseResponse(true).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	body := resp.RawBody()
	defer body.Close()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, statusError{code: resp.StatusCode()}
	}

	headers := make(map[string]string, len(resp.Header()))
	for name, values := range resp.Header() {
		if len(values) > 0 {
			headers[name] = values[0]
		}
	}

	data, err := f.readBody(ctx, cancel, body)
	if err != nil {
		return nil, err
	}

	html, err := decodeBody(data, resp.Header().Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("failed to decode body: %w", err)
	}
	return page.New(html, headers, time.Time{}), nil
}

// readBody reads r in chunks, checking ctx between chunks. A chunk that takes
// longer than the read timeout aborts the attempt through cancel.
func (f *Fetcher) readBody(ctx context.Context, cancel context.CancelFunc, r io.Reader) ([]byte, error) {
	idle := time.AfterFunc(f.readTimeout, cancel)
	defer idle.Stop()

	var data []byte
	buf := make([]byte, chunkSize)
	for {
		n, err := r.Read(buf)
		data = append(data, buf[:n]...)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if err == io.EOF {
			return data, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read body: %w", err)
		}
		idle.Reset(f.readTimeout)
	}
}

func cancelled(cause error) error {
	return fmt.Errorf("%w: %w", ErrCancelled, cause)
}

// restyLogger routes resty's diagnostics to zap.
type restyLogger struct {
	s *zap.SugaredLogger
}

func (l restyLogger) Errorf(format string, v ...interface{}) { l.s.Errorf(format, v...) }
func (l restyLogger) Warnf(format string, v ...interface{}) { l.s.Warnf(format, v...) }
func (l restyLogger) Debugf(format string, v ...interface{}) { l.s.Debugf(format, v...) }
