// api/schemas/errors.go
package schemas

import (
	"errors"
	"fmt"
	"time"
)

// Error kinds surfaced by the driver. Callers match them with errors.Is.
var (
	ErrNoSuchElement        = errors.New("no such element")
	ErrNoSuchFrame          = errors.New("no such frame")
	ErrStaleElement         = errors.New("stale element reference")
	ErrNoAlertPresent       = errors.New("no such alert")
	ErrTimeout              = errors.New("timeout")
	ErrUnsupportedOperation = errors.New("unsupported operation")
	ErrSessionClosed        = errors.New("session closed")
	ErrUnexpectedAlertOpen  = errors.New("unexpected alert open")
	ErrInvalidSelector      = errors.New("invalid selector")
	ErrInvalidArgument      = errors.New("invalid argument")
)

// LocatorError reports a lookup failure together with the locator that caused it.
type LocatorError struct {
	Kind    error
	Locator Locator
	Err     error
}

func (e *LocatorError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %s: %v", e.Kind, e.Locator, e.Err)
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Locator)
}

// Unwrap exposes both the kind and the underlying cause.
func (e *LocatorError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// TimeoutError is returned by explicit waits once their budget is exhausted.
// Cause holds the last failure observed while polling, if any.
type TimeoutError struct {
	Timeout time.Duration
	Message string
	Cause   error
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("timed out after %s", e.Timeout)
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: last error: %v", msg, e.Cause)
	}
	return msg
}

func (e *TimeoutError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrTimeout, e.Cause}
	}
	return []error{ErrTimeout}
}
