// Package player tracks the signed-in player of the web app.
package player

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Player is the signed-in identity reported by the web app.
type Player struct {
	ID                string `json:"userId"`
	NotificationToken string `json:"notificationToken"`
}

// Handler receives login and logout notifications.
type Handler interface {
	OnLogin(p Player)
	OnLogout(p Player)
}

// Manager holds the current player. Mutations happen on the UI loop; Current
// may be read from any goroutine.
type Manager struct {
	logger  *zap.Logger
	current atomic.Pointer[Player]

	mu       sync.RWMutex
	nextID   uint64
	handlers []registration
}

type registration struct {
	id uint64
	h  Handler
}

// NewManager creates a manager with no current player.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{logger: logger}
}

// Current returns the signed-in player, if any.
func (m *Manager) Current() (Player, bool) {
	p := m.current.Load()
	if p == nil {
		return Player{}, false
	}
	return *p, true
}

// AddHandler registers h and returns a function that removes it.
func (m *Manager) AddHandler(h Handler) (remove func()) {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.handlers = append(m.handlers, registration{id: id, h: h})
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			for i, existing := range m.handlers {
				if existing.id == id {
					m.handlers = append(m.handlers[:i:i], m.handlers[i+1:]...)
					return
				}
			}
		})
	}
}

// LoggedIn replaces the current player with p. Replacing a different player
// notifies OnLogout for the previous one before OnLogin for p.
func (m *Manager) LoggedIn(p Player) {
	prev := m.current.Load()
	if prev != nil && *prev == p {
		return
	}

	next := p
	m.current.Store(&next)
	m.logger.Info("Player logged in", zap.String("player_id", p.ID))

	handlers := m.snapshot()
	if prev != nil {
		for _, h := range handlers {
			h.OnLogout(*prev)
		}
	}
	for _, h := range handlers {
		h.OnLogin(p)
	}
}

// LoggedOut clears the current player.
func (m *Manager) LoggedOut() {
	prev := m.current.Swap(nil)
	if prev == nil {
		return
	}
	m.logger.Info("Player logged out", zap.String("player_id", prev.ID))

	for _, h := range m.snapshot() {
		h.OnLogout(*prev)
	}
}

func (m *Manager) snapshot() []Handler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Handler, len(m.handlers))
	for i, r := range m.handlers {
		out[i] = r.h
	}
	return out
}

// HandlerFuncs adapts plain functions to Handler. Nil fields are skipped.
type HandlerFuncs struct {
	Login  func(Player)
	Logout func(Player)
}

func (f HandlerFuncs) OnLogin(p Player) {
	if f.Login != nil {
		f.Login(p)
	}
}

func (f HandlerFuncs) OnLogout(p Player) {
	if f.Logout != nil {
		f.Logout(p)
	}
}
