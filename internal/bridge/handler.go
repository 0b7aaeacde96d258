package bridge

import (
	"github.com/GriffinCanCode/zapic/internal/player"
)

// Handler receives recognised web to native messages. Every method is called
// on the UI loop.
type Handler interface {
	AppLoaded()
	AppStarted()
	AppFailed()
	CloseRequested()
	LoggedIn(p player.Player)
	LoggedOut()
	LoginRequested()
	LogoutRequested()
	PageReady()
	ShowBanner(b Banner)
	Share(r ShareRequest)
}

// Banner is an in-app notification requested by the web app.
type Banner struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle,omitempty"`
	Icon     []byte `json:"icon,omitempty"`
}

// ShareRequest is content the web app wants shared through the platform.
type ShareRequest struct {
	Text  string `json:"text,omitempty"`
	URL   string `json:"url,omitempty"`
	Image []byte `json:"image,omitempty"`
}

// Empty reports whether there is nothing to share.
func (r ShareRequest) Empty() bool {
	return r.Text == "" && r.URL == "" && len(r.Image) == 0
}

// NopHandler ignores every message. Embed it to implement part of Handler.
type NopHandler struct{}

func (NopHandler) AppLoaded() {}
func (NopHandler) AppStarted() {}
func (NopHandler) AppFailed() {}
func (NopHandler) CloseRequested() {}
func (NopHandler) LoggedIn(player.Player) {}
func (NopHandler) LoggedOut() {}
func (NopHandler) LoginRequested() {}
func (NopHandler) LogoutRequested() {}
func (NopHandler) PageReady() {}
func (NopHandler) ShowBanner(Banner) {}
func (NopHandler) Share(ShareRequest) {}
