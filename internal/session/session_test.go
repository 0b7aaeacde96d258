package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/zapic/internal/bridge"
	"github.com/GriffinCanCode/zapic/internal/cache"
	"github.com/GriffinCanCode/zapic/internal/infrastructure/config"
	"github.com/GriffinCanCode/zapic/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/zapic/internal/player"
)

// appPage is a minimal web app: it subscribes through the bootstrap, reports
// APP_STARTED, and answers OPEN_PAGE with PAGE_READY.
const appPage = `<html><head><title>app</title></head><body><script>
var listeners = [];
var action$ = { subscribe: function (fn) { listeners.push(fn); } };
function emit(action) { listeners.forEach(function (fn) { fn(action); }); }
window.zapic.onLoaded(action$, function (action) {
	if (action.type === "OPEN_PAGE") { emit({ type: "PAGE_READY" }); }
});
emit({ type: "APP_STARTED" });
</script></body></html>`

type fakeSurface struct {
	mu       sync.Mutex
	calls    []string
	shares   []string
	loginErr error
	// when set, Login waits for it to close
	block chan struct{}
}

func (f *fakeSurface) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeSurface) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeSurface) has(call string) bool {
	for _, c := range f.Calls() {
		if c == call {
			return true
		}
	}
	return false
}

func (f *fakeSurface) ShowLoading() { f.record("loading") }
func (f *fakeSurface) ShowPage() { f.record("page") }
func (f *fakeSurface) ShowRetry() { f.record("retry") }
func (f *fakeSurface) ShowBanner(b bridge.Banner) { f.record("banner:" + b.Title) }
func (f *fakeSurface) Close() { f.record("close") }

func (f *fakeSurface) Share(r bridge.ShareRequest, imagePath string) {
	f.mu.Lock()
	f.shares = append(f.shares, imagePath)
	f.mu.Unlock()
	f.record("share:" + r.Text)
}

func (f *fakeSurface) ChooseFile(_ string, done func([]string)) { done(nil) }

func (f *fakeSurface) Login(ctx context.Context) (string, error) {
	f.record("login")
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.loginErr != nil {
		return "", f.loginErr
	}
	return "auth-code", nil
}

func (f *fakeSurface) Logout(context.Context) error {
	f.record("logout")
	return nil
}

type tap struct {
	mu      sync.Mutex
	scripts []string
}

func (t *tap) record(script string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.scripts = append(t.scripts, script)
}

func (t *tap) contains(s string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, script := range t.scripts {
		if strings.Contains(script, s) {
			return true
		}
	}
	return false
}

func newServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "max-age=300")
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func testConfig(t *testing.T, url string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Page.URL = url
	cfg.Cache.Dir = t.TempDir()
	cfg.Connectivity.Enabled = false
	cfg.Bridge.Debounce = 5 * time.Millisecond
	cfg.Fetch.ConnectTimeout = 2 * time.Second
	cfg.Fetch.ReadTimeout = 2 * time.Second
	return cfg
}

func startSession(t *testing.T, cfg *config.Config, recorder *tap) *Session {
	t.Helper()
	s, err := New(cfg, WithMetrics(monitoring.NewMetrics()))
	require.NoError(t, err)
	if recorder != nil {
		s.SetTap(recorder.record)
	}
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Stop)
	return s
}

func waitState(t *testing.T, s *Session, state bridge.State) {
	t.Helper()
	require.Eventually(t, func() bool { return s.bridge.State() >= state }, 5*time.Second, 10*time.Millisecond)
}

func TestStartLoadsAndOpensRequestedPage(t *testing.T) {
	server := newServer(t, appPage)
	recorder := &tap{}
	s := startSession(t, testConfig(t, server.URL), recorder)

	surface := &fakeSurface{}
	s.Attach(surface)

	waitState(t, s, bridge.StateStarted)
	s.Show("profile")

	waitState(t, s, bridge.StateReady)
	require.Eventually(t, func() bool { return surface.has("page") }, 5*time.Second, 10*time.Millisecond)
	assert.True(t, recorder.contains(`{"type":"OPEN_PAGE","payload":{"page":"profile"}}`))

	// the page was cached with a validation stamp
	cached, ok := s.store.ReadWebPage()
	require.True(t, ok)
	assert.False(t, cached.LastValidatedAt.IsZero())
	assert.Equal(t, "max-age=300", cached.Headers.Get("cache-control"))

	st := s.Status()
	assert.Equal(t, "ready", st.BridgeState)
	assert.Equal(t, 4, st.Workers.Size)
	assert.False(t, st.Workers.Closed)
	assert.NotEmpty(t, st.InstallationID)
	assert.Equal(t, 1, st.Surfaces)
}

func TestPageRequestedBeforeStartIsOpenedOnStart(t *testing.T) {
	server := newServer(t, appPage)
	cfg := testConfig(t, server.URL)
	s, err := New(cfg)
	require.NoError(t, err)

	surface := &fakeSurface{}
	s.Attach(surface)
	s.Show("challenges")
	require.NoError(t, s.HandleData([]byte(`{"deepLink":"zapic://x"}`)))

	recorder := &tap{}
	s.SetTap(recorder.record)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	waitState(t, s, bridge.StateReady)
	require.Eventually(t, func() bool {
		return recorder.contains(`"page":"challenges"`) && recorder.contains(`"deepLink":"zapic://x"`)
	}, 5*time.Second, 10*time.Millisecond)

	assert.ErrorIs(t, s.Start(context.Background()), ErrAlreadyStarted)
	assert.Error(t, s.HandleData([]byte("{broken")))
}

func TestLoginReplacementOrder(t *testing.T) {
	server := newServer(t, appPage)
	s := startSession(t, testConfig(t, server.URL), nil)
	waitState(t, s, bridge.StateStarted)

	var mu sync.Mutex
	var calls []string
	s.SetAuthHandler(player.HandlerFuncs{
		Login: func(p player.Player) {
			mu.Lock()
			calls = append(calls, "login:"+p.ID+":"+p.NotificationToken)
			mu.Unlock()
		},
		Logout: func(p player.Player) {
			mu.Lock()
			calls = append(calls, "logout:"+p.ID)
			mu.Unlock()
		},
	})

	s.Dispatch(`{"type":"LOGGED_IN","payload":{"userId":"abc","notificationToken":"t1"}}`)
	s.Dispatch(`{"type":"LOGGED_IN","payload":{"userId":"def","notificationToken":"t2"}}`)
	s.Dispatch(`{"type":"LOGGED_OUT"}`)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(calls) == 4
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"login:abc:t1", "logout:abc", "login:def:t2", "logout:def"}, calls)
	mu.Unlock()
	_, ok := s.Player()
	assert.False(t, ok)
}

func TestSignInRoundTrip(t *testing.T) {
	server := newServer(t, appPage)
	recorder := &tap{}
	s := startSession(t, testConfig(t, server.URL), recorder)
	waitState(t, s, bridge.StateStarted)

	// nothing attached
	s.Dispatch(`{"type":"LOGIN"}`)
	require.Eventually(t, func() bool { return recorder.contains(`"LOGIN_FAILED"`) }, 5*time.Second, 10*time.Millisecond)

	surface := &fakeSurface{}
	detach := s.Attach(surface)
	s.Dispatch(`{"type":"LOGIN"}`)
	require.Eventually(t, func() bool {
		return recorder.contains(`{"type":"LOGIN_SUCCEEDED","payload":{"authCode":"auth-code"}}`)
	}, 5*time.Second, 10*time.Millisecond)

	s.Dispatch(`{"type":"LOGOUT"}`)
	require.Eventually(t, func() bool { return recorder.contains(`"LOGOUT_SUCCEEDED"`) }, 5*time.Second, 10*time.Millisecond)
	assert.True(t, surface.has("login"))
	assert.True(t, surface.has("logout"))

	// the top surface is used
	failing := &fakeSurface{loginErr: errors.New("cancelled by user")}
	detachFailing := s.Attach(failing)
	s.Dispatch(`{"type":"LOGIN"}`)
	require.Eventually(t, func() bool {
		return recorder.contains(`{"type":"LOGIN_FAILED","payload":{"error":"cancelled by user"}}`)
	}, 5*time.Second, 10*time.Millisecond)

	detachFailing()
	detachFailing()
	detach()
	assert.Equal(t, 0, s.Status().Surfaces)
}

func TestSurfaceMessages(t *testing.T) {
	server := newServer(t, appPage)
	s := startSession(t, testConfig(t, server.URL), nil)
	surface := &fakeSurface{}
	s.Attach(surface)
	waitState(t, s, bridge.StateStarted)

	s.Dispatch(`{"type":"SHOW_BANNER","payload":{"title":"Achievement unlocked"}}`)
	s.Dispatch(`{"type":"SHOW_SHARE","payload":{"text":"Join me","image":"iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="}}`)
	s.Dispatch(`{"type":"CLOSE_PAGE_REQUESTED"}`)

	require.Eventually(t, func() bool {
		return surface.has("banner:Achievement unlocked") && surface.has("share:Join me") && surface.has("close")
	}, 5*time.Second, 10*time.Millisecond)

	surface.mu.Lock()
	require.Len(t, surface.shares, 1)
	assert.True(t, strings.HasSuffix(surface.shares[0], ".png"))
	surface.mu.Unlock()
}

func TestEventsPersistAcrossRestart(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.Fetch.ConnectTimeout = 100 * time.Millisecond

	s, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, s.SubmitEvent(bridge.KindGameplay, []byte(`{"score":1}`)))
	require.NoError(t, s.SubmitEvent(bridge.KindInteraction, []byte(`{"button":"play"}`)))
	assert.Error(t, s.SubmitEvent(bridge.KindGameplay, []byte(`[1]`)))
	require.NoError(t, s.Start(context.Background()))
	s.Stop()
	s.Stop()

	store, err := cache.New(cfg.Cache.Dir, nil, nil)
	require.NoError(t, err)
	events, ok := store.ReadEvents()
	require.True(t, ok)
	require.Len(t, events, 2)

	// the next session restores and then delivers them
	server := newServer(t, appPage)
	cfg.Page.URL = server.URL
	cfg.Fetch.ConnectTimeout = 2 * time.Second
	recorder := &tap{}
	startSession(t, cfg, recorder)

	require.Eventually(t, func() bool {
		return recorder.contains(`"params":{"score":1}`) && recorder.contains(`"params":{"button":"play"}`)
	}, 5*time.Second, 10*time.Millisecond)
	_, ok = store.ReadEvents()
	assert.False(t, ok)
}

func TestWatchdogShowsRetry(t *testing.T) {
	server := newServer(t, `<html><head></head><body>no app here</body></html>`)
	cfg := testConfig(t, server.URL)
	cfg.Fetch.ConnectTimeout = 100 * time.Millisecond

	s := startSession(t, cfg, nil)
	surface := &fakeSurface{}
	s.Attach(surface)

	require.Eventually(t, func() bool { return surface.has("retry") }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, bridge.StateNotCreated, s.bridge.State())
}

func TestConnectivitySignals(t *testing.T) {
	server := newServer(t, appPage)
	recorder := &tap{}
	s := startSession(t, testConfig(t, server.URL), recorder)
	waitState(t, s, bridge.StateStarted)

	s.SetOffline()
	s.SetOnline()
	require.Eventually(t, func() bool {
		return recorder.contains(`"OFFLINE"`) && recorder.contains(`"ONLINE"`)
	}, 5*time.Second, 10*time.Millisecond)
	assert.True(t, s.Status().Online)
}

func TestUILoopRespondsWhileWorkersBusy(t *testing.T) {
	server := newServer(t, appPage)
	cfg := testConfig(t, server.URL)
	cfg.Fetch.Workers = 1
	recorder := &tap{}
	s := startSession(t, cfg, recorder)
	waitState(t, s, bridge.StateStarted)

	release := make(chan struct{})
	defer close(release)
	surface := &fakeSurface{block: release}
	s.Attach(surface)

	s.Dispatch(`{"type":"LOGIN"}`)
	s.Dispatch(`{"type":"LOGIN"}`)
	require.Eventually(t, func() bool { return surface.has("login") }, 5*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	require.NoError(t, s.loop.Call(ctx, func() {}))

	st := s.Status()
	assert.Equal(t, 1, st.Workers.InUse)
	assert.Equal(t, 1, st.Workers.Waiting)
}

func TestShowWhileOfflineTriggersProbe(t *testing.T) {
	var heads atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			heads.Add(1)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(appPage))
	}))
	t.Cleanup(server.Close)

	cfg := testConfig(t, server.URL)
	cfg.Connectivity.Enabled = true
	cfg.Connectivity.ProbeURL = server.URL
	cfg.Connectivity.Interval = time.Hour
	s := startSession(t, cfg, nil)

	require.Eventually(t, func() bool { return heads.Load() >= 1 }, 5*time.Second, 10*time.Millisecond)
	before := heads.Load()

	// online: no extra probe
	s.Show("home")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, before, heads.Load())

	s.SetOffline()
	s.Show("home")
	require.Eventually(t, func() bool { return heads.Load() > before }, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return s.Status().Online }, 5*time.Second, 10*time.Millisecond)
}
