package bridge

import (
	"errors"
	"html"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/zapic/internal/executor"
	"github.com/GriffinCanCode/zapic/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/zapic/internal/player"
)

const (
	DefaultDebounce      = 20 * time.Millisecond
	DefaultQueueCapacity = 1000
)

var ErrNotStarted = errors.New("bridge: web app not started")

// WebView evaluates scripts in the web runtime. It is only called on the UI
// loop.
type WebView interface {
	EvaluateJavascript(script string)
}

// Config holds bridge settings.
type Config struct {
	Debounce      time.Duration
	QueueCapacity int
}

// Bridge carries messages between the host and the web app.
//
// Inbound messages may arrive on any goroutine and are dispatched to the
// Handler on the UI loop. Outbound messages are coalesced for a short window
// and evaluated in one script. Events submitted before the web app has
// started are held in a bounded backlog and flushed in order once it starts.
type Bridge struct {
	loop     *executor.Loop
	handler  Handler
	logger   *zap.Logger
	metrics  *monitoring.Metrics
	debounce time.Duration
	policy   *bluemonday.Policy

	state atomic.Int32

	// mu guards the backlog and state transitions so that a submitted event
	// either lands in the backlog before it is flushed or is sent directly.
	mu      sync.Mutex
	backlog *EventQueue

	tap atomic.Pointer[func(string)]

	// Owned by the UI loop.
	view        WebView
	outbound    []string
	cancelFlush func() bool
}

// New creates a bridge dispatching to handler on loop.
func New(cfg Config, loop *executor.Loop, handler Handler, logger *zap.Logger, metrics *monitoring.Metrics) *Bridge {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = DefaultQueueCapacity
	}
	if handler == nil {
		handler = NopHandler{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Bridge{
		loop:     loop,
		handler:  handler,
		logger:   logger,
		metrics:  metrics,
		debounce: cfg.Debounce,
		policy:   bluemonday.StrictPolicy(),
		backlog:  NewEventQueue(cfg.QueueCapacity),
	}
}

// State returns the current bridge state.
func (b *Bridge) State() State {
	return State(b.state.Load())
}

// PendingEvents returns the number of events waiting for the web app.
func (b *Bridge) PendingEvents() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.backlog.Len()
}

// SetTap registers fn to observe every evaluated script. Pass nil to remove.
func (b *Bridge) SetTap(fn func(script string)) {
	if fn == nil {
		b.tap.Store(nil)
		return
	}
	b.tap.Store(&fn)
}

// Attach binds the web view scripts are evaluated in. Call on the UI loop.
func (b *Bridge) Attach(view WebView) {
	b.view = view
}

// MarkLoaded records that the page has been loaded into the runtime.
func (b *Bridge) MarkLoaded() {
	b.mu.Lock()
	b.advance(StateLoaded)
	b.mu.Unlock()
}

// Reset returns the bridge to NotCreated after the runtime was destroyed.
// Unflushed outbound messages are discarded; the event backlog is kept.
// Call on the UI loop.
func (b *Bridge) Reset() {
	b.mu.Lock()
	b.state.Store(int32(StateNotCreated))
	b.mu.Unlock()
	b.metrics.SetBridgeState(int(StateNotCreated))

	if b.cancelFlush != nil {
		b.cancelFlush()
		b.cancelFlush = nil
	}
	if len(b.outbound) > 0 {
		b.logger.Debug("Discarding unflushed messages", zap.Int("count", len(b.outbound)))
	}
	b.outbound = nil
	b.view = nil
}

// HandleInbound decodes a web to native message and dispatches it on the UI
// loop. Malformed messages are logged and dropped. Safe to call from any
// goroutine.
func (b *Bridge) HandleInbound(raw string) {
	var env envelope
	if err := sonic.UnmarshalString(raw, &env); err != nil {
		b.logger.Warn("Dropping malformed bridge message", zap.Error(err), zap.Int("length", len(raw)))
		return
	}
	if env.Type == "" {
		b.logger.Warn("Dropping bridge message without type")
		return
	}

	b.metrics.RecordMessage("in", string(env.Type))
	b.loop.Post(func() { b.dispatch(env) })
}

func (b *Bridge) dispatch(env envelope) {
	b.logger.Debug("Received message", zap.String("type", string(env.Type)))

	switch env.Type {
	case TypeAppLoaded:
		b.handler.AppLoaded()

	case TypeAppStarted:
		b.start(StateStarted)
		b.handler.AppStarted()

	case TypeAppFailed:
		b.handler.AppFailed()

	case TypeClosePageRequested:
		b.handler.CloseRequested()

	case TypeLoggedIn:
		var p player.Player
		if err := sonic.Unmarshal(env.Payload, &p); err != nil || p.ID == "" {
			b.logger.Warn("Dropping LOGGED_IN without player", zap.Error(err))
			return
		}
		b.handler.LoggedIn(p)

	case TypeLoggedOut:
		b.handler.LoggedOut()

	case TypeLogin:
		b.handler.LoginRequested()

	case TypeLogout:
		b.handler.LogoutRequested()

	case TypePageReady:
		b.start(StateReady)
		b.handler.PageReady()

	case TypeShowBanner:
		var banner Banner
		if err := sonic.Unmarshal(env.Payload, &banner); err != nil {
			b.logger.Warn("Dropping malformed banner", zap.Error(err))
			return
		}
		banner.Title = b.sanitize(banner.Title)
		banner.Subtitle = b.sanitize(banner.Subtitle)
		if banner.Title == "" {
			b.logger.Warn("Dropping banner without title")
			return
		}
		b.handler.ShowBanner(banner)

	case TypeShowShare:
		var req ShareRequest
		if err := sonic.Unmarshal(env.Payload, &req); err != nil {
			b.logger.Warn("Dropping malformed share request", zap.Error(err))
			return
		}
		req.Text = b.sanitize(req.Text)
		if req.Empty() {
			b.logger.Warn("Dropping empty share request")
			return
		}
		b.handler.Share(req)

	default:
		b.logger.Warn("Ignoring unknown message type", zap.String("type", string(env.Type)))
	}
}

// start advances to state and, on the first transition past Loaded, flushes
// the event backlog in order.
func (b *Bridge) start(state State) {
	b.mu.Lock()
	wasStarted := b.State() >= StateStarted
	b.advance(state)
	var pending []Event
	if !wasStarted {
		pending = b.backlog.Drain()
	}
	b.mu.Unlock()

	if len(pending) > 0 {
		b.logger.Info("Flushing pending events", zap.Int("count", len(pending)))
		b.metrics.SetPendingEvents(0)
	}
	for _, e := range pending {
		b.enqueue(e.message())
	}
}

// advance moves the state forward; it never moves backwards. Caller holds mu.
func (b *Bridge) advance(to State) {
	for {
		cur := b.state.Load()
		if State(cur) >= to {
			return
		}
		if b.state.CompareAndSwap(cur, int32(to)) {
			b.metrics.SetBridgeState(int(to))
			b.logger.Debug("Bridge state changed", zap.Stringer("from", State(cur)), zap.Stringer("to", to))
			return
		}
	}
}

// Send queues m for the web app. Messages sent before the web app has
// started are dropped and ErrNotStarted is returned. Safe to call from any
// goroutine.
func (b *Bridge) Send(m Message) error {
	if b.State() < StateStarted {
		b.logger.Debug("Dropping message before start", zap.String("type", string(m.Type)))
		return ErrNotStarted
	}
	b.post(m)
	return nil
}

// SubmitEvent sends e once the web app has started, holding it in the
// backlog until then. Safe to call from any goroutine.
func (b *Bridge) SubmitEvent(e Event) {
	b.mu.Lock()
	if b.State() >= StateStarted {
		b.mu.Unlock()
		b.post(e.message())
		return
	}
	dropped := b.backlog.Push(e)
	pending := b.backlog.Len()
	b.mu.Unlock()

	if dropped > 0 {
		b.logger.Warn("Event backlog full, dropped oldest event", zap.Int("capacity", b.backlog.Cap()))
		b.metrics.AddDroppedEvents(dropped)
	}
	b.metrics.SetPendingEvents(pending)
}

// Drain removes and returns the event backlog.
func (b *Bridge) Drain() []Event {
	b.mu.Lock()
	events := b.backlog.Drain()
	b.mu.Unlock()

	b.metrics.SetPendingEvents(0)
	return events
}

// Restore submits previously drained events in order.
func (b *Bridge) Restore(events []Event) {
	for _, e := range events {
		b.SubmitEvent(e)
	}
}

// post hands m to the UI loop, preserving call order.
func (b *Bridge) post(m Message) {
	if !b.loop.Post(func() { b.enqueue(m) }) {
		b.logger.Debug("Loop stopped, dropping message", zap.String("type", string(m.Type)))
	}
}

// enqueue adds m to the outbound batch and schedules a flush. UI loop only.
func (b *Bridge) enqueue(m Message) {
	script, err := m.Script()
	if err != nil {
		b.logger.Error("Failed to encode message", zap.Error(err))
		return
	}
	b.metrics.RecordMessage("out", string(m.Type))

	b.outbound = append(b.outbound, script)
	if len(b.outbound) == 1 {
		b.cancelFlush = b.loop.AfterFunc(b.debounce, b.flush)
	}
}

// flush evaluates the outbound batch in one script. UI loop only.
func (b *Bridge) flush() {
	batch := b.outbound
	b.outbound = nil
	b.cancelFlush = nil
	if len(batch) == 0 {
		return
	}
	if b.view == nil {
		b.logger.Warn("No web view attached, dropping messages", zap.Int("count", len(batch)))
		return
	}

	script := batch[0]
	if len(batch) > 1 {
		script = strings.Join(batch, ";")
	}

	b.metrics.RecordFlush(len(batch))
	b.view.EvaluateJavascript(script)
	if tap := b.tap.Load(); tap != nil {
		(*tap)(script)
	}
}

// sanitize strips markup from text shown by native UI.
func (b *Bridge) sanitize(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(b.policy.Sanitize(s)))
}
