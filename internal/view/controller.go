package view

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/zapic/internal/bridge"
	"github.com/GriffinCanCode/zapic/internal/executor"
	"github.com/GriffinCanCode/zapic/internal/fetch"
	"github.com/GriffinCanCode/zapic/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/zapic/internal/page"
)

// PageStore reads and writes the cached page.
type PageStore interface {
	ReadWebPage() (*page.CachedPage, bool)
	WriteWebPage(p *page.CachedPage) error
}

// PageFetcher downloads the page.
type PageFetcher interface {
	Fetch(ctx context.Context, url string, stale *page.CachedPage, onFailure func(fetch.Attempt)) (*page.CachedPage, error)
}

// WebView is the page runtime the controller drives.
type WebView interface {
	bridge.WebView
	LoadHTML(document string) error
	Destroy()
}

// Factory creates a web view wired to the given callbacks.
type Factory func(onMessage func(raw string), onCrash func(err error)) (WebView, error)

// Config holds controller settings.
type Config struct {
	URL            string
	StaleThreshold int
}

// Deps are the collaborators of a Controller.
type Deps struct {
	Loop      *executor.Loop
	Pool      *executor.Pool
	Store     PageStore
	Fetcher   PageFetcher
	Bridge    *bridge.Bridge
	NewView   Factory
	Presenter Presenter
	Bootstrap func() page.Bootstrap
	Logger    *zap.Logger
	Metrics   *monitoring.Metrics
	Now       func() time.Time
}

// Controller runs the load pipeline: cached or fetched page, bootstrap
// injection, web view creation and bridge attachment. It also tears the view
// down when the runtime crashes or the app fails to start.
//
// All methods must be called on the UI loop.
type Controller struct {
	cfg Config
	Deps

	base       context.Context
	view       WebView
	loading    bool
	cancelLoad context.CancelFunc
	generation int
	viewSeq    int
	stopped    bool

	chooser      func(paths []string)
	chooserToken int
}

// NewController creates a controller.
func NewController(cfg Config, deps Deps) *Controller {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Presenter == nil {
		deps.Presenter = NopPresenter{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Bootstrap == nil {
		deps.Bootstrap = func() page.Bootstrap { return page.Bootstrap{} }
	}
	return &Controller{cfg: cfg, Deps: deps, base: context.Background()}
}

// Start begins the first load. Loads are cancelled when ctx is done.
func (c *Controller) Start(ctx context.Context) {
	c.base = ctx
	c.stopped = false
	c.load()
}

// Retry starts a load unless a page is loaded or loading.
func (c *Controller) Retry() {
	c.load()
}

// Loaded reports whether a web view holds a page.
func (c *Controller) Loaded() bool {
	return c.view != nil
}

// Loading reports whether a load is in flight.
func (c *Controller) Loading() bool {
	return c.loading
}

// OnOnline resumes loading when nothing is loaded.
func (c *Controller) OnOnline() {
	c.load()
}

// OnOffline cancels the in-flight load and shows the retry page when nothing
// is loaded.
func (c *Controller) OnOffline() {
	c.cancel()
	if c.view == nil && !c.stopped {
		c.Presenter.ShowRetry()
	}
}

// OnCrash handles the runtime dying: the view is torn down and a new load
// starts.
func (c *Controller) OnCrash(err error) {
	c.Logger.Warn("Web view crashed, reloading", zap.Error(err))
	c.Metrics.RecordRuntimeRestart("crash")
	c.teardown()
	c.load()
}

// AppFailed handles the web app not starting in time.
func (c *Controller) AppFailed() {
	c.Logger.Warn("Web app failed to start")
	c.Metrics.RecordRuntimeRestart("app_failed")
	c.teardown()
	if !c.stopped {
		c.Presenter.ShowRetry()
	}
}

// ChooseFile forwards a file request to the presenter. The pending callback
// is resolved with nil if the view goes away first.
func (c *Controller) ChooseFile(accept string, done func(paths []string)) {
	c.resolveChooser(nil)

	c.chooserToken++
	token := c.chooserToken
	c.chooser = done

	c.Presenter.ChooseFile(accept, func(paths []string) {
		c.Loop.Post(func() {
			if c.chooserToken != token || c.chooser == nil {
				return
			}
			c.resolveChooser(paths)
		})
	})
}

// Stop cancels loading and destroys the view.
func (c *Controller) Stop() {
	c.stopped = true
	c.cancel()
	c.teardown()
}

func (c *Controller) load() {
	if c.stopped || c.view != nil || c.loading {
		return
	}

	c.generation++
	gen := c.generation
	ctx, cancel := context.WithCancel(c.base)
	c.loading = true
	c.cancelLoad = cancel
	c.Presenter.ShowLoading()

	err := c.Pool.Go(ctx, func(ctx context.Context) {
		p, err := c.resolve(ctx, gen)
		c.Loop.Post(func() { c.finish(gen, p, err) })
	})
	if err != nil {
		c.Logger.Warn("Could not schedule page load", zap.Error(err))
		c.loading = false
		c.cancelLoad = nil
		cancel()
		if !c.stopped && ctx.Err() == nil {
			c.Presenter.ShowRetry()
		}
	}
}

// resolve produces the page to load. Runs on the pool.
func (c *Controller) resolve(ctx context.Context, gen int) (*page.CachedPage, error) {
	cached, ok := c.Store.ReadWebPage()
	if ok && !page.IsStale(cached, c.Now()) {
		c.Logger.Debug("Using cached web page", zap.Duration("max_age", cached.MaxAge()))
		return cached, nil
	}

	onFailure := func(a fetch.Attempt) {
		if cached == nil && a.Number > c.cfg.StaleThreshold {
			c.Loop.Post(func() {
				if c.generation == gen && c.loading {
					c.Presenter.ShowRetry()
				}
			})
		}
	}

	fetched, err := c.Fetcher.Fetch(ctx, c.cfg.URL, cached, onFailure)
	if err != nil {
		return nil, err
	}
	if cached != nil && fetched == cached {
		return cached, nil
	}

	fresh := fetched.Validated(c.Now())
	if err := c.Store.WriteWebPage(fresh); err != nil {
		c.Logger.Warn("Failed to cache web page", zap.Error(err))
	}
	return fresh, nil
}

// finish loads the resolved page into a new web view.
func (c *Controller) finish(gen int, p *page.CachedPage, err error) {
	if gen != c.generation || c.stopped {
		return
	}
	c.loading = false
	c.cancelLoad = nil

	if err != nil {
		if errors.Is(err, fetch.ErrCancelled) {
			c.Logger.Debug("Page load cancelled")
			return
		}
		c.Logger.Error("Page load failed", zap.Error(err))
		c.Presenter.ShowRetry()
		return
	}

	if err := c.present(p); err != nil {
		c.Logger.Error("Failed to load page into web view", zap.Error(err))
		c.teardown()
		c.Presenter.ShowRetry()
	}
}

func (c *Controller) present(p *page.CachedPage) error {
	injected := page.Inject(p, c.Bootstrap())

	c.viewSeq++
	seq := c.viewSeq
	view, err := c.NewView(c.Bridge.HandleInbound, func(err error) {
		// crash callbacks fire inside view calls; handle them afterwards
		c.Loop.Post(func() {
			if seq == c.viewSeq && c.view != nil {
				c.OnCrash(err)
			}
		})
	})
	if err != nil {
		return fmt.Errorf("failed to create web view: %w", err)
	}

	c.view = view
	c.Bridge.Attach(view)
	if err := view.LoadHTML(injected.HTML); err != nil {
		return err
	}
	c.Bridge.MarkLoaded()
	c.Logger.Info("Web page loaded", zap.Int("bytes", len(injected.HTML)))
	return nil
}

func (c *Controller) cancel() {
	if c.cancelLoad != nil {
		c.cancelLoad()
		c.cancelLoad = nil
	}
	if c.loading {
		// results of the cancelled generation are ignored
		c.generation++
		c.loading = false
	}
}

// teardown destroys the view, resets the bridge and resolves a pending file
// chooser with nothing.
func (c *Controller) teardown() {
	if c.view != nil {
		c.view.Destroy()
		c.view = nil
	}
	c.Bridge.Reset()
	c.resolveChooser(nil)
}

func (c *Controller) resolveChooser(paths []string) {
	done := c.chooser
	c.chooser = nil
	if done != nil {
		done(paths)
	}
}
