package config

import (
	"fmt"
	"time"
)

// duration decodes a TOML string such as "250ms" or "1m30s".
type duration time.Duration

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	if v < 0 {
		return fmt.Errorf("duration %q cannot be negative", text)
	}
	*d = duration(v)
	return nil
}

// fileDurations mirrors the duration keys of a config file. A nil field
// means the key was absent.
type fileDurations struct {
	Fetch struct {
		ConnectTimeout *duration `toml:"connect_timeout"`
		ReadTimeout    *duration `toml:"read_timeout"`
	} `toml:"fetch"`
	Bridge struct {
		Debounce    *duration `toml:"debounce"`
		EvalTimeout *duration `toml:"eval_timeout"`
	} `toml:"bridge"`
	Connectivity struct {
		Interval *duration `toml:"interval"`
	} `toml:"connectivity"`
}

func (f fileDurations) apply(cfg *Config) {
	set := func(dst *time.Duration, src *duration) {
		if src != nil {
			*dst = time.Duration(*src)
		}
	}
	set(&cfg.Fetch.ConnectTimeout, f.Fetch.ConnectTimeout)
	set(&cfg.Fetch.ReadTimeout, f.Fetch.ReadTimeout)
	set(&cfg.Bridge.Debounce, f.Bridge.Debounce)
	set(&cfg.Bridge.EvalTimeout, f.Bridge.EvalTimeout)
	set(&cfg.Connectivity.Interval, f.Connectivity.Interval)
}
