package webview

import (
	"errors"
	"time"
)

const DefaultEvalTimeout = 5 * time.Second

var (
	// ErrEvalTimeout is reported to the crash handler when a script runs
	// past the evaluation timeout.
	ErrEvalTimeout = errors.New("webview: script evaluation timed out")
	// ErrTerminated is reported when the runtime is killed from outside.
	ErrTerminated = errors.New("webview: runtime terminated")
)

// Config defines runtime configuration
type Config struct {
	EvalTimeout time.Duration // Per script and per callback
}

// MessageHandler receives JSON strings the page passes to the native
// interface.
type MessageHandler func(raw string)

// CrashHandler is told when the runtime dies. The view is already destroyed
// when it is called.
type CrashHandler func(err error)

// FileChooser asks the user to pick files matching accept. done must be
// called exactly once on the UI loop; nil means nothing was chosen.
type FileChooser func(accept string, done func(paths []string))
