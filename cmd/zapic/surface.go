package main

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/zapic/internal/bridge"
)

var errNoAuthCode = errors.New("sign-in is not available")

// consoleSurface presents the web app to the log. Sign-in succeeds with a
// fixed auth code when one is configured.
type consoleSurface struct {
	logger   *zap.Logger
	authCode string
}

func newConsoleSurface(logger *zap.Logger, authCode string) *consoleSurface {
	return &consoleSurface{logger: logger, authCode: authCode}
}

func (c *consoleSurface) ShowLoading() { c.logger.Info("Loading web app") }
func (c *consoleSurface) ShowPage()    { c.logger.Info("Web app page ready") }
func (c *consoleSurface) ShowRetry()   { c.logger.Warn("Web app unavailable, retry offered") }
func (c *consoleSurface) Close()       { c.logger.Info("Web app closed its page") }

func (c *consoleSurface) ShowBanner(b bridge.Banner) {
	c.logger.Info("Banner", zap.String("title", b.Title), zap.String("subtitle", b.Subtitle))
}

func (c *consoleSurface) Share(r bridge.ShareRequest, imagePath string) {
	c.logger.Info("Share",
		zap.String("text", r.Text),
		zap.String("url", r.URL),
		zap.String("image", imagePath))
}

func (c *consoleSurface) ChooseFile(accept string, done func([]string)) {
	c.logger.Info("File chooser requested, nothing selected", zap.String("accept", accept))
	done(nil)
}

func (c *consoleSurface) Login(ctx context.Context) (string, error) {
	if c.authCode == "" {
		return "", errNoAuthCode
	}
	c.logger.Info("Sign-in requested, returning configured auth code")
	return c.authCode, nil
}

func (c *consoleSurface) Logout(ctx context.Context) error {
	c.logger.Info("Sign-out requested")
	return nil
}
