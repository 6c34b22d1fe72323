// pkg/webdriver/wait/wait.go
package wait

import (
	"context"
	"errors"
	"time"

	"github.com/brit/playwrightium/api/schemas"
	"github.com/brit/playwrightium/pkg/webdriver"
)

// DefaultPollInterval is used when PollingEvery is not set.
const DefaultPollInterval = 500 * time.Millisecond

// Condition is polled until it returns ok or an error the wait does not ignore.
type Condition[T any] func(ctx context.Context, d *webdriver.Driver) (value T, ok bool, err error)

// Wait polls conditions against a driver.
type Wait struct {
	d        *webdriver.Driver
	timeout  time.Duration
	interval time.Duration
	ignored  []error
	message  string
}

// New returns a wait with the given budget. NoSuchElement, NoSuchFrame and
// StaleElement are always treated as "not yet".
func New(d *webdriver.Driver, timeout time.Duration) *Wait {
	return &Wait{
		d:        d,
		timeout:  timeout,
		interval: DefaultPollInterval,
		ignored:  []error{schemas.ErrNoSuchElement, schemas.ErrNoSuchFrame, schemas.ErrStaleElement},
	}
}

func (w *Wait) PollingEvery(interval time.Duration) *Wait {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

// Ignoring adds error kinds that count as "not yet".
func (w *Wait) Ignoring(kinds ...error) *Wait {
	w.ignored = append(w.ignored, kinds...)
	return w
}

// WithMessage is included in the timeout error.
func (w *Wait) WithMessage(msg string) *Wait {
	w.message = msg
	return w
}

func (w *Wait) ignores(err error) bool {
	for _, kind := range w.ignored {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// Until polls cond immediately and then every poll interval. It returns the
// first satisfied value, the first error that is not ignored, or a
// *schemas.TimeoutError carrying the last ignored error. Quitting the
// session ends the wait with ErrSessionClosed.
func Until[T any](ctx context.Context, w *Wait, cond Condition[T]) (T, error) {
	var zero T
	deadline := time.NewTimer(w.timeout)
	defer deadline.Stop()
	tick := time.NewTimer(w.interval)
	defer tick.Stop()

	var last error
	for {
		select {
		case <-w.d.Done():
			return zero, schemas.ErrSessionClosed
		case <-ctx.Done():
			return zero, ctx.Err()
		default:
		}

		// cond runs before the deadline is consulted, so an expired or zero
		// timeout still gets one evaluation.
		v, ok, err := cond(ctx, w.d)
		switch {
		case err != nil && !w.ignores(err):
			return zero, err
		case err != nil:
			last = err
		case ok:
			return v, nil
		}

		tick.Reset(w.interval)
		select {
		case <-tick.C:
		case <-deadline.C:
			return zero, &schemas.TimeoutError{Timeout: w.timeout, Message: w.message, Cause: last}
		case <-w.d.Done():
			return zero, schemas.ErrSessionClosed
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}
