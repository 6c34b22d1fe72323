// pkg/webdriver/options.go
package webdriver

import (
	"time"

	"go.uber.org/zap"
)

// Timeouts bound the driver's own waiting. Zero values fall back to the defaults.
type Timeouts struct {
	// Alert is how long SwitchTo().Alert() waits for a dialog.
	Alert time.Duration
	// Script bounds ExecuteScript.
	Script time.Duration
	// Settle is how long answering a dialog waits for the interaction that
	// raised it to finish.
	Settle time.Duration
	// Quit bounds closing the browser.
	Quit time.Duration
}

// DefaultTimeouts returns the timeouts used when none are configured.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Alert:  5 * time.Second,
		Script: 30 * time.Second,
		Settle: 5 * time.Second,
		Quit:   10 * time.Second,
	}
}

type options struct {
	logger   *zap.Logger
	timeouts Timeouts
}

// Option configures a Driver.
type Option func(*options)

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTimeouts overrides the non-zero fields of t.
func WithTimeouts(t Timeouts) Option {
	return func(o *options) {
		if t.Alert > 0 {
			o.timeouts.Alert = t.Alert
		}
		if t.Script > 0 {
			o.timeouts.Script = t.Script
		}
		if t.Settle > 0 {
			o.timeouts.Settle = t.Settle
		}
		if t.Quit > 0 {
			o.timeouts.Quit = t.Quit
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: zap.NewNop(), timeouts: DefaultTimeouts()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
