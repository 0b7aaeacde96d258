package webview

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/zapic/internal/executor"
)

// View is a headless page runtime backed by a goja VM. All methods except
// Terminate must be called on the UI loop.
type View struct {
	vm        *goja.Runtime
	loop      *executor.Loop
	config    Config
	logger    *zap.Logger
	onMessage MessageHandler
	onCrash   CrashHandler
	chooser   FileChooser

	timers    map[int64]func() bool
	nextTimer int64
	loaded    bool
	destroyed bool
}

// New creates a view. onMessage receives every androidWebView.dispatch call;
// onCrash is called once if the runtime dies.
func New(config Config, loop *executor.Loop, onMessage MessageHandler, onCrash CrashHandler, logger *zap.Logger) (*View, error) {
	if config.EvalTimeout <= 0 {
		config.EvalTimeout = DefaultEvalTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	v := &View{
		vm:        goja.New(),
		loop:      loop,
		config:    config,
		logger:    logger,
		onMessage: onMessage,
		onCrash:   onCrash,
		timers:    make(map[int64]func() bool),
	}
	v.vm.SetMaxCallStackSize(1024)

	if err := v.setupGlobals(); err != nil {
		return nil, err
	}
	return v, nil
}

// LoadHTML runs the inline scripts of document in order. A script that throws
// is logged and the rest still run, as in a browser.
func (v *View) LoadHTML(document string) error {
	if v.destroyed {
		return fmt.Errorf("view destroyed")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(document))
	if err != nil {
		return fmt.Errorf("failed to parse document: %w", err)
	}

	var scripts []string
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		if _, external := s.Attr("src"); external {
			return
		}
		if typ, _ := s.Attr("type"); !isJavaScript(typ) {
			return
		}
		scripts = append(scripts, s.Text())
	})

	v.loaded = true
	v.logger.Debug("Loading document", zap.Int("bytes", len(document)), zap.Int("scripts", len(scripts)))

	for i, script := range scripts {
		if err := v.run(func() (goja.Value, error) { return v.vm.RunString(script) }); err != nil {
			if v.destroyed {
				return err
			}
			v.logger.Warn("Page script failed", zap.Int("index", i), zap.Error(err))
		}
	}
	return nil
}

// EvaluateJavascript runs script in the page. Exceptions are logged.
func (v *View) EvaluateJavascript(script string) {
	if v.destroyed {
		v.logger.Debug("Ignoring evaluation on destroyed view")
		return
	}
	if err := v.run(func() (goja.Value, error) { return v.vm.RunString(script) }); err != nil && !v.destroyed {
		v.logger.Warn("Script evaluation failed", zap.Error(err))
	}
}

// SetFileChooser installs the handler behind androidWebView.chooseFile.
func (v *View) SetFileChooser(fn FileChooser) {
	v.chooser = fn
}

// Loaded reports whether a document has been loaded.
func (v *View) Loaded() bool {
	return v.loaded && !v.destroyed
}

// Destroyed reports whether the view has been destroyed.
func (v *View) Destroyed() bool {
	return v.destroyed
}

// Terminate kills the runtime as if the renderer process died. It may be
// called from any goroutine; the crash handler runs on the UI loop.
func (v *View) Terminate() {
	v.loop.Post(func() { v.crash(ErrTerminated) })
}

// Destroy stops all timers and releases the VM.
func (v *View) Destroy() {
	if v.destroyed {
		return
	}
	v.destroyed = true
	for id, cancel := range v.timers {
		cancel()
		delete(v.timers, id)
	}
	v.vm.Interrupt(ErrTerminated)
	v.vm = nil
}

// run executes fn under the evaluation timeout. A timeout destroys the view
// and reports a crash.
func (v *View) run(fn func() (goja.Value, error)) error {
	vm := v.vm
	timer := time.AfterFunc(v.config.EvalTimeout, func() {
		vm.Interrupt(ErrEvalTimeout)
	})
	_, err := fn()
	timer.Stop()
	if v.destroyed {
		return ErrTerminated
	}
	vm.ClearInterrupt()

	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		v.crash(ErrEvalTimeout)
		return ErrEvalTimeout
	}
	return err
}

func (v *View) crash(err error) {
	if v.destroyed {
		return
	}
	v.logger.Error("Web runtime crashed", zap.Error(err))
	v.Destroy()
	if v.onCrash != nil {
		v.onCrash(err)
	}
}

func isJavaScript(typ string) bool {
	switch strings.ToLower(strings.TrimSpace(typ)) {
	case "", "text/javascript", "application/javascript", "application/ecmascript", "text/ecmascript":
		return true
	default:
		return false
	}
}
