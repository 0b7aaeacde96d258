package session

import (
	"context"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/zapic/internal/bridge"
	"github.com/GriffinCanCode/zapic/internal/player"
)

var _ bridge.Handler = (*Session)(nil)

// The methods below implement bridge.Handler and run on the UI loop.

func (s *Session) AppLoaded() {
	s.logger.Debug("Web app loaded")
}

// AppStarted opens the requested page and delivers held data.
func (s *Session) AppStarted() {
	s.logger.Info("Web app started")

	if s.requestedPage != "" {
		s.bridge.Send(bridge.OpenPage(s.requestedPage))
	}
	for _, data := range s.pendingData {
		s.bridge.Send(bridge.HandleData(data))
	}
	s.pendingData = nil
}

func (s *Session) AppFailed() {
	s.controller.AppFailed()
}

func (s *Session) CloseRequested() {
	s.requestedPage = ""
	s.presenter.Close()
}

func (s *Session) LoggedIn(p player.Player) {
	s.players.LoggedIn(p)
}

func (s *Session) LoggedOut() {
	s.players.LoggedOut()
}

func (s *Session) PageReady() {
	s.presenter.ShowPage()
}

func (s *Session) ShowBanner(b bridge.Banner) {
	s.presenter.ShowBanner(b)
}

// LoginRequested runs platform sign-in on the worker pool and reports the
// result to the web app.
func (s *Session) LoginRequested() {
	surface, ok := s.surfaces.top()
	if !ok {
		s.logger.Warn("Login requested with no surface attached")
		s.bridge.Send(bridge.LoginFailed("no sign-in surface available"))
		return
	}

	err := s.pool.Go(s.ctx, func(ctx context.Context) {
		code, err := surface.Login(ctx)
		if err != nil {
			s.logger.Warn("Sign-in failed", zap.Error(err))
			s.bridge.Send(bridge.LoginFailed(err.Error()))
			return
		}
		s.bridge.Send(bridge.LoginSucceeded(code))
	})
	if err != nil {
		s.logger.Warn("Could not schedule sign-in", zap.Error(err))
	}
}

// LogoutRequested runs platform sign-out on the worker pool.
func (s *Session) LogoutRequested() {
	surface, ok := s.surfaces.top()
	if !ok {
		s.bridge.Send(bridge.LogoutSucceeded())
		return
	}

	err := s.pool.Go(s.ctx, func(ctx context.Context) {
		if err := surface.Logout(ctx); err != nil {
			s.logger.Warn("Sign-out failed", zap.Error(err))
		}
		s.bridge.Send(bridge.LogoutSucceeded())
	})
	if err != nil {
		s.logger.Warn("Could not schedule sign-out", zap.Error(err))
	}
}

// Share exports an attached image on the worker pool before handing the
// request to the presenter.
func (s *Session) Share(r bridge.ShareRequest) {
	if len(r.Image) == 0 {
		s.presenter.Share(r, "")
		return
	}

	err := s.pool.Go(s.ctx, func(ctx context.Context) {
		path, err := s.store.ExportImage(r.Image)
		if err != nil {
			s.logger.Warn("Failed to export shared image", zap.Error(err))
		}
		s.post(func() { s.presenter.Share(r, path) })
	})
	if err != nil {
		s.logger.Warn("Could not schedule share", zap.Error(err))
	}
}
