package connectivity

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultProbeInterval = 15 * time.Second
	DefaultProbeTimeout  = 5 * time.Second
)

// Prober feeds a Monitor by periodically sending a HEAD request to a URL.
// Any HTTP response counts as online; a transport error counts as offline.
type Prober struct {
	client   *resty.Client
	url      string
	interval time.Duration
	monitor  *Monitor
	limiter  *rate.Limiter
	trigger  chan struct{}
	logger   *zap.Logger
}

// NewProber creates a prober for url.
func NewProber(url string, interval, timeout time.Duration, monitor *Monitor, logger *zap.Logger) *Prober {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Prober{
		client: resty.New().
			SetTimeout(timeout).
			SetRetryCount(0).
			SetHeader("User-Agent", "zapic-host/1.0"),
		url:      url,
		interval: interval,
		monitor:  monitor,
		limiter:  rate.NewLimiter(rate.Every(time.Second), 3),
		trigger:  make(chan struct{}, 1),
		logger:   logger,
	}
}

// Run probes immediately, then on every interval and on Trigger, until ctx
// is done.
func (p *Prober) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-p.trigger:
		}
		p.Probe(ctx)
	}
}

// Trigger requests an immediate probe. Bursts are rate limited; it reports
// whether the request was accepted.
func (p *Prober) Trigger() bool {
	if !p.limiter.Allow() {
		return false
	}
	select {
	case p.trigger <- struct{}{}:
	default:
	}
	return true
}

// Probe sends one request and updates the monitor. It reports whether the
// network was reachable.
func (p *Prober) Probe(ctx context.Context) bool {
	resp, err := p.client.R().SetContext(ctx).Head(p.url)
	if ctx.Err() != nil {
		return false
	}
	if err != nil {
		p.logger.Debug("Connectivity probe failed", zap.String("url", p.url), zap.Error(err))
		p.monitor.SetOffline()
		return false
	}

	p.logger.Debug("Connectivity probe succeeded", zap.Int("status", resp.StatusCode()))
	p.monitor.SetOnline()
	return true
}
