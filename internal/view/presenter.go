package view

import (
	"github.com/GriffinCanCode/zapic/internal/bridge"
)

// Presenter is the platform UI the host reports to. Methods are called on
// the UI loop.
type Presenter interface {
	ShowLoading()
	ShowPage()
	ShowRetry()
	ShowBanner(b bridge.Banner)
	Share(r bridge.ShareRequest, imagePath string)
	Close()
	// ChooseFile asks the user for files. done must be called once; nil
	// means nothing was chosen.
	ChooseFile(accept string, done func(paths []string))
}

// NopPresenter ignores every call and resolves file choosers with nothing.
type NopPresenter struct{}

func (NopPresenter) ShowLoading() {}
func (NopPresenter) ShowPage() {}
func (NopPresenter) ShowRetry() {}
func (NopPresenter) ShowBanner(bridge.Banner) {}
func (NopPresenter) Share(bridge.ShareRequest, string) {}
func (NopPresenter) Close() {}
func (NopPresenter) ChooseFile(_ string, done func(paths []string)) { done(nil) }
