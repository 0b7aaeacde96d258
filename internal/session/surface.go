package session

import (
	"context"
	"sync"

	"github.com/GriffinCanCode/zapic/internal/bridge"
	"github.com/GriffinCanCode/zapic/internal/view"
)

// Authenticator performs platform sign-in on behalf of the web app.
type Authenticator interface {
	// Login signs the user in and returns a server auth code.
	Login(ctx context.Context) (authCode string, err error)
	Logout(ctx context.Context) error
}

// Surface is a UI attached to the session: it presents the web app and
// handles sign-in requests.
type Surface interface {
	view.Presenter
	Authenticator
}

type surfaceEntry struct {
	id      int
	surface Surface
}

// surfaceStack holds attached surfaces; the most recently attached one is
// on top and receives all calls.
type surfaceStack struct {
	mu      sync.Mutex
	nextID  int
	entries []surfaceEntry
}

func (s *surfaceStack) push(surface Surface) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.entries = append(s.entries, surfaceEntry{id: s.nextID, surface: surface})
	return s.nextID
}

func (s *surfaceStack) remove(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.entries {
		if e.id == id {
			s.entries = append(s.entries[:i:i], s.entries[i+1:]...)
			return
		}
	}
}

func (s *surfaceStack) top() (Surface, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return nil, false
	}
	return s.entries[len(s.entries)-1].surface, true
}

func (s *surfaceStack) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// stackPresenter forwards presenter calls to the top surface.
type stackPresenter struct {
	stack *surfaceStack
}

func (p stackPresenter) current() view.Presenter {
	if s, ok := p.stack.top(); ok {
		return s
	}
	return view.NopPresenter{}
}

func (p stackPresenter) ShowLoading() { p.current().ShowLoading() }
func (p stackPresenter) ShowPage() { p.current().ShowPage() }
func (p stackPresenter) ShowRetry() { p.current().ShowRetry() }
func (p stackPresenter) ShowBanner(b bridge.Banner) { p.current().ShowBanner(b) }
func (p stackPresenter) Close() { p.current().Close() }

func (p stackPresenter) Share(r bridge.ShareRequest, imagePath string) {
	p.current().Share(r, imagePath)
}

func (p stackPresenter) ChooseFile(accept string, done func(paths []string)) {
	p.current().ChooseFile(accept, done)
}
