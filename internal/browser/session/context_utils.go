// internal/browser/session/context_utils.go
package session

import (
	"context"
)

// CombineContext runs work on a long-lived connection context (primary)
// under a caller's deadline (secondary). The result carries primary's values
// and ends when either ends; context.Cause reports secondary's error when it
// was the one that fired.
func CombineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancelCause(primary)
	stop := context.AfterFunc(secondary, func() {
		cancel(context.Cause(secondary))
	})
	return combined, func() {
		stop()
		cancel(context.Canceled)
	}
}

// Detach keeps the values of ctx but drops its deadline and cancellation,
// for teardown that must finish after the caller gave up.
func Detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
