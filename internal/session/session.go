package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/zapic/internal/bridge"
	"github.com/GriffinCanCode/zapic/internal/cache"
	"github.com/GriffinCanCode/zapic/internal/connectivity"
	"github.com/GriffinCanCode/zapic/internal/executor"
	"github.com/GriffinCanCode/zapic/internal/fetch"
	"github.com/GriffinCanCode/zapic/internal/infrastructure/config"
	"github.com/GriffinCanCode/zapic/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/zapic/internal/page"
	"github.com/GriffinCanCode/zapic/internal/player"
	"github.com/GriffinCanCode/zapic/internal/view"
	"github.com/GriffinCanCode/zapic/internal/webview"
)

var ErrAlreadyStarted = errors.New("session: already started")

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(s *Session) { s.metrics = metrics }
}

// WithFetcher replaces the page fetcher.
func WithFetcher(f view.PageFetcher) Option {
	return func(s *Session) { s.fetcher = f }
}

// WithViewFactory replaces the web view factory.
func WithViewFactory(f view.Factory) Option {
	return func(s *Session) { s.newView = f }
}

// Session is the host core: it owns the UI loop, the worker pool, the cache,
// the bridge and the load pipeline, and is the entry point for the host game.
type Session struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *monitoring.Metrics

	loop       *executor.Loop
	pool       *executor.Pool
	store      *cache.Store
	fetcher    view.PageFetcher
	newView    view.Factory
	bridge     *bridge.Bridge
	players    *player.Manager
	monitor    *connectivity.Monitor
	prober     *connectivity.Prober
	controller *view.Controller
	surfaces   *surfaceStack
	presenter  stackPresenter

	installationID uuid.UUID

	started atomic.Bool
	stopped atomic.Bool
	cancel  context.CancelFunc
	ctx     context.Context
	workers sync.WaitGroup

	// Owned by the UI loop.
	requestedPage string
	pendingData   []json.RawMessage
}

// New creates a session from cfg. Nothing runs until Start.
func New(cfg *config.Config, opts ...Option) (*Session, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Session{
		cfg:      cfg,
		logger:   zap.NewNop(),
		surfaces: &surfaceStack{},
		ctx:      context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.presenter = stackPresenter{stack: s.surfaces}

	store, err := cache.New(cfg.Cache.Dir, s.logger.Named("cache"), s.metrics)
	if err != nil {
		return nil, err
	}
	s.store = store

	s.loop = executor.NewLoop(s.logger.Named("loop"))
	s.pool = executor.NewPool(cfg.Fetch.Workers, s.logger.Named("pool"))

	if s.fetcher == nil {
		s.fetcher = fetch.New(fetch.Config{
			ConnectTimeout: cfg.Fetch.ConnectTimeout,
			ReadTimeout:    cfg.Fetch.ReadTimeout,
			StaleThreshold: cfg.Fetch.StaleThreshold,
			UserAgent:      "zapic/" + cfg.Page.Version,
		}, s.logger.Named("fetch"), s.metrics)
	}
	if s.newView == nil {
		s.newView = s.newWebView
	}

	s.bridge = bridge.New(bridge.Config{
		Debounce:      cfg.Bridge.Debounce,
		QueueCapacity: cfg.Bridge.QueueCapacity,
	}, s.loop, s, s.logger.Named("bridge"), s.metrics)

	s.players = player.NewManager(s.logger.Named("player"))
	s.monitor = connectivity.NewMonitor(s.logger.Named("connectivity"), s.metrics)
	if cfg.Connectivity.Enabled {
		s.prober = connectivity.NewProber(cfg.Connectivity.ProbeURL, cfg.Connectivity.Interval,
			cfg.Fetch.ConnectTimeout, s.monitor, s.logger.Named("probe"))
	}

	s.controller = view.NewController(view.Config{
		URL:            cfg.Page.URL,
		StaleThreshold: cfg.Fetch.StaleThreshold,
	}, view.Deps{
		Loop:      s.loop,
		Pool:      s.pool,
		Store:     s.store,
		Fetcher:   s.fetcher,
		Bridge:    s.bridge,
		NewView:   s.newView,
		Presenter: s.presenter,
		Bootstrap: s.bootstrap,
		Logger:    s.logger.Named("controller"),
		Metrics:   s.metrics,
	})

	return s, nil
}

// Start loads the installation id and the persisted event backlog, then
// starts the UI loop, the load pipeline and the connectivity prober.
func (s *Session) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	id, ok := s.store.ReadInstallationID()
	if !ok {
		id = uuid.New()
		if err := s.store.WriteInstallationID(id); err != nil {
			s.logger.Warn("Failed to persist installation id", zap.Error(err))
		}
	}
	s.installationID = id

	if events, ok := s.store.ReadEvents(); ok {
		s.logger.Info("Restoring pending events", zap.Int("count", len(events)))
		s.bridge.Restore(events)
		if err := s.store.DeleteEvents(); err != nil {
			s.logger.Warn("Failed to delete restored events", zap.Error(err))
		}
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.loop.Start(s.ctx)

	s.monitor.Subscribe(func(online bool) {
		s.loop.Post(func() { s.onConnectivity(online) })
	})
	s.loop.Post(func() { s.controller.Start(s.ctx) })

	if s.prober != nil {
		s.workers.Add(1)
		go func() {
			defer s.workers.Done()
			s.prober.Run(s.ctx)
		}()
	}

	s.logger.Info("Session started",
		zap.String("url", s.cfg.Page.URL),
		zap.String("installation_id", id.String()))
	return nil
}

// Stop tears the web view down, persists undelivered events, clears the
// share directory and stops all goroutines. It is safe to call more than
// once.
func (s *Session) Stop() {
	if !s.started.Load() || !s.stopped.CompareAndSwap(false, true) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Bridge.EvalTimeout)
	if err := s.loop.Call(ctx, s.controller.Stop); err != nil {
		s.logger.Warn("Failed to stop controller on loop", zap.Error(err))
	}
	cancel()

	s.cancel()
	s.loop.Stop()
	<-s.loop.Done()
	s.pool.Close()
	s.workers.Wait()

	events := s.bridge.Drain()
	if len(events) > 0 {
		if err := s.store.WriteEvents(events); err != nil {
			s.logger.Error("Failed to persist pending events", zap.Error(err))
		} else {
			s.logger.Info("Persisted pending events", zap.Int("count", len(events)))
		}
	}
	if err := s.store.ClearShare(); err != nil {
		s.logger.Warn("Failed to clear share directory", zap.Error(err))
	}

	s.logger.Info("Session stopped")
}

// Attach pushes surface on top of the surface stack. The returned function
// removes exactly that surface.
func (s *Session) Attach(surface Surface) (detach func()) {
	id := s.surfaces.push(surface)
	var once sync.Once
	return func() {
		once.Do(func() { s.surfaces.remove(id) })
	}
}

// Show opens the web app at page. Pages requested before the app has started
// are opened once it does. While the network is believed down a fresh
// connectivity probe is requested.
func (s *Session) Show(page string) {
	if s.prober != nil && !s.monitor.Online() {
		if !s.prober.Trigger() {
			s.logger.Debug("Connectivity probe rate limited")
		}
	}

	s.post(func() {
		s.requestedPage = page
		if s.bridge.State() >= bridge.StateStarted {
			s.bridge.Send(bridge.OpenPage(page))
		}

		switch {
		case s.bridge.State() >= bridge.StateReady:
			s.presenter.ShowPage()
		case s.controller.Loaded() || s.controller.Loading():
			s.presenter.ShowLoading()
		default:
			s.controller.Retry()
		}
	})
}

// SubmitEvent queues a host event for the web app. params must be a JSON
// object.
func (s *Session) SubmitEvent(kind bridge.EventKind, params []byte) error {
	e, err := bridge.NewEvent(kind, params)
	if err != nil {
		return err
	}
	s.bridge.SubmitEvent(e)
	return nil
}

// SetAuthHandler registers h for login and logout notifications.
func (s *Session) SetAuthHandler(h player.Handler) (remove func()) {
	return s.players.AddHandler(h)
}

// HandleData forwards a deep link or push notification payload to the web
// app, holding it until the app has started.
func (s *Session) HandleData(payload []byte) error {
	if !sonic.Valid(payload) {
		return fmt.Errorf("payload is not valid JSON")
	}
	data := json.RawMessage(append([]byte(nil), payload...))

	s.post(func() {
		if s.bridge.State() >= bridge.StateStarted {
			s.bridge.Send(bridge.HandleData(data))
			return
		}
		s.pendingData = append(s.pendingData, data)
	})
	return nil
}

// Dispatch feeds a raw web to native message into the bridge.
func (s *Session) Dispatch(raw string) {
	s.bridge.HandleInbound(raw)
}

// SetOnline reports that the network became reachable.
func (s *Session) SetOnline() { s.monitor.SetOnline() }

// SetOffline reports that the network became unreachable.
func (s *Session) SetOffline() { s.monitor.SetOffline() }

// Player returns the signed-in player.
func (s *Session) Player() (player.Player, bool) {
	return s.players.Current()
}

// SetTap mirrors every script evaluated in the web view to fn.
func (s *Session) SetTap(fn func(script string)) {
	s.bridge.SetTap(fn)
}

// Metrics returns the session metrics collector, which may be nil.
func (s *Session) Metrics() *monitoring.Metrics {
	return s.metrics
}

// Status is a point-in-time view of the session.
type Status struct {
	BridgeState    string `json:"bridgeState"`
	PlayerID       string `json:"playerId,omitempty"`
	PendingEvents  int    `json:"pendingEvents"`
	Online         bool   `json:"online"`
	InstallationID string `json:"installationId"`
	Surfaces       int    `json:"surfaces"`

	Workers executor.PoolStats `json:"workers"`
}

// Status reports the current session state.
func (s *Session) Status() Status {
	st := Status{
		BridgeState:   s.bridge.State().String(),
		PendingEvents: s.bridge.PendingEvents(),
		Online:        s.monitor.Online(),
		Surfaces:      s.surfaces.len(),
		Workers:       s.pool.Stats(),
	}
	if p, ok := s.players.Current(); ok {
		st.PlayerID = p.ID
	}
	if s.installationID != uuid.Nil {
		st.InstallationID = s.installationID.String()
	}
	return st
}

// Page returns the cached page as it is loaded into the web view.
func (s *Session) Page() (*page.CachedPage, bool) {
	p, ok := s.store.ReadWebPage()
	if !ok {
		return nil, false
	}
	return page.Inject(p, s.bootstrap()), true
}

func (s *Session) bootstrap() page.Bootstrap {
	id := ""
	if s.installationID != uuid.Nil {
		id = s.installationID.String()
	}
	return page.Bootstrap{
		Environment:     s.cfg.Page.Environment,
		Version:         s.cfg.Page.Version,
		PackageName:     s.cfg.Page.PackageName,
		InstallationID:  id,
		WatchdogTimeout: s.cfg.WatchdogTimeout(),
	}
}

func (s *Session) newWebView(onMessage func(string), onCrash func(error)) (view.WebView, error) {
	v, err := webview.New(webview.Config{EvalTimeout: s.cfg.Bridge.EvalTimeout},
		s.loop, onMessage, onCrash, s.logger.Named("webview"))
	if err != nil {
		return nil, err
	}
	v.SetFileChooser(s.controller.ChooseFile)
	return v, nil
}

func (s *Session) onConnectivity(online bool) {
	if online {
		s.controller.OnOnline()
		s.bridge.Send(bridge.Online())
		return
	}
	s.controller.OnOffline()
	s.bridge.Send(bridge.Offline())
}

func (s *Session) post(fn func()) {
	if !s.loop.Post(fn) {
		s.logger.Debug("Session stopped, dropping call")
	}
}
