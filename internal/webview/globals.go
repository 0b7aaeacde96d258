package webview

import (
	"strings"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/zapic/internal/page"
)

const minInterval = 4 * time.Millisecond

// setupGlobals installs the browser surface the bootstrap and web app use.
func (v *View) setupGlobals() error {
	// Remove globals a page has no business with
	for _, name := range []string{"require", "process", "module", "exports"} {
		if err := v.vm.Set(name, goja.Undefined()); err != nil {
			return err
		}
	}

	if err := v.vm.Set("window", v.vm.GlobalObject()); err != nil {
		return err
	}

	console := v.vm.NewObject()
	for _, level := range []string{"log", "info", "warn", "error", "debug"} {
		if err := console.Set(level, v.makeConsoleFunc(level)); err != nil {
			return err
		}
	}
	if err := v.vm.Set("console", console); err != nil {
		return err
	}

	timers := map[string]func(goja.FunctionCall) goja.Value{
		"setTimeout":    v.makeTimerFunc(false),
		"setInterval":   v.makeTimerFunc(true),
		"clearTimeout":  v.clearTimer,
		"clearInterval": v.clearTimer,
	}
	for name, fn := range timers {
		if err := v.vm.Set(name, fn); err != nil {
			return err
		}
	}

	native := v.vm.NewObject()
	if err := native.Set("dispatch", v.dispatch); err != nil {
		return err
	}
	if err := native.Set("chooseFile", v.chooseFile); err != nil {
		return err
	}
	return v.vm.Set(page.NativeInterface, native)
}

// dispatch is androidWebView.dispatch(json).
func (v *View) dispatch(call goja.FunctionCall) goja.Value {
	arg := call.Argument(0)
	if goja.IsUndefined(arg) || goja.IsNull(arg) {
		v.logger.Warn("Native dispatch called without message")
		return goja.Undefined()
	}
	if v.onMessage != nil {
		v.onMessage(arg.String())
	}
	return goja.Undefined()
}

// chooseFile is androidWebView.chooseFile(accept, callback). The callback
// receives an array of paths, or null when nothing was chosen.
func (v *View) chooseFile(call goja.FunctionCall) goja.Value {
	accept := ""
	if arg := call.Argument(0); !goja.IsUndefined(arg) && !goja.IsNull(arg) {
		accept = arg.String()
	}
	callback, ok := goja.AssertFunction(call.Argument(1))
	if !ok || v.chooser == nil {
		return goja.Undefined()
	}

	v.chooser(accept, func(paths []string) {
		if v.destroyed {
			return
		}
		result := goja.Null()
		if paths != nil {
			result = v.vm.ToValue(paths)
		}
		if err := v.run(func() (goja.Value, error) { return callback(goja.Undefined(), result) }); err != nil && !v.destroyed {
			v.logger.Warn("File chooser callback failed", zap.Error(err))
		}
	})
	return goja.Undefined()
}

// makeConsoleFunc creates a console function that logs to zap
func (v *View) makeConsoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		msg := strings.Join(parts, " ")

		switch level {
		case "error":
			v.logger.Error(msg, zap.String("source", "console"))
		case "warn":
			v.logger.Warn(msg, zap.String("source", "console"))
		case "debug":
			v.logger.Debug(msg, zap.String("source", "console"))
		default:
			v.logger.Info(msg, zap.String("source", "console"))
		}
		return goja.Undefined()
	}
}

// makeTimerFunc implements setTimeout and setInterval on the UI loop.
func (v *View) makeTimerFunc(repeat bool) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			return v.vm.ToValue(0)
		}
		delay := time.Duration(call.Argument(1).ToInteger()) * time.Millisecond
		if delay < 0 {
			delay = 0
		}
		if repeat && delay < minInterval {
			delay = minInterval
		}
		var args []goja.Value
		if len(call.Arguments) > 2 {
			args = append(args, call.Arguments[2:]...)
		}

		v.nextTimer++
		id := v.nextTimer
		v.schedule(id, delay, repeat, fn, args)
		return v.vm.ToValue(id)
	}
}

func (v *View) schedule(id int64, delay time.Duration, repeat bool, fn goja.Callable, args []goja.Value) {
	v.timers[id] = v.loop.AfterFunc(delay, func() {
		if v.destroyed {
			return
		}
		if _, pending := v.timers[id]; !pending {
			return
		}
		delete(v.timers, id)
		if repeat {
			v.schedule(id, delay, repeat, fn, args)
		}

		if err := v.run(func() (goja.Value, error) { return fn(goja.Undefined(), args...) }); err != nil && !v.destroyed {
			v.logger.Warn("Timer callback failed", zap.Int64("timer", id), zap.Error(err))
		}
	})
}

func (v *View) clearTimer(call goja.FunctionCall) goja.Value {
	id := call.Argument(0).ToInteger()
	if cancel, ok := v.timers[id]; ok {
		cancel()
		delete(v.timers, id)
	}
	return goja.Undefined()
}
