// internal/transport/cdp/script.go
package cdp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	json "github.com/json-iterator/go"

	cdpproto "github.com/chromedp/cdproto/cdp"

	"github.com/brit/playwrightium/internal/transport"
)

// scriptError is an exception thrown by a function we called.
type scriptError struct {
	details *runtime.ExceptionDetails
}

func (e *scriptError) Error() string { return "script exception: " + e.details.Error() }

var contextLostMessages = []string{
	"Cannot find context with specified id",
	"Could not find object with given id",
	"Execution context was destroyed",
	"No node with given id found",
	"Node with given id does not belong to the document",
	"Inspected target navigated or closed",
}

// mapError translates protocol failures into transport errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var se *scriptError
	if errors.As(err, &se) {
		return err
	}
	msg := err.Error()
	for _, m := range contextLostMessages {
		if strings.Contains(msg, m) {
			return fmt.Errorf("%w: %v", transport.ErrContextLost, err)
		}
	}
	switch {
	case strings.Contains(msg, "No dialog is showing"):
		return fmt.Errorf("%w: %v", transport.ErrNoDialog, err)
	case strings.Contains(msg, "No frame for given id found"), strings.Contains(msg, "Frame with the given id was not found"):
		return fmt.Errorf("%w: %v", transport.ErrNoSuchFrame, err)
	case errors.Is(err, chromedp.ErrInvalidContext), strings.Contains(msg, "websocket: close"),
		strings.Contains(msg, "target closed"), strings.Contains(msg, "browser closed"):
		return fmt.Errorf("%w: %v", transport.ErrTargetClosed, err)
	}
	return err
}

// world returns the utility world of a frame, creating it on first use.
// Nodes handed out by Query live in this world, so page scripts cannot
// tamper with the functions we call on them.
func (b *Browser) world(ctx context.Context, frame transport.FrameID) (runtime.ExecutionContextID, error) {
	b.mu.Lock()
	id, ok := b.worlds[frame]
	b.mu.Unlock()
	if ok {
		return id, nil
	}

	err := b.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		id, err = page.CreateIsolatedWorld(cdpproto.FrameID(frame)).WithWorldName(worldName).Do(ctx)
		return err
	}))
	if err != nil {
		if errors.Is(err, transport.ErrContextLost) || strings.Contains(err.Error(), "frame") {
			return 0, fmt.Errorf("%w: %v", transport.ErrNoSuchFrame, err)
		}
		return 0, err
	}

	b.mu.Lock()
	b.worlds[frame] = id
	b.mu.Unlock()
	return id, nil
}

func (b *Browser) dropWorld(frame transport.FrameID, id runtime.ExecutionContextID) {
	b.mu.Lock()
	if cur, ok := b.worlds[frame]; ok && cur == id {
		delete(b.worlds, frame)
	}
	b.mu.Unlock()
}

// callOn calls fn with this bound to the remote object.
func (b *Browser) callOn(ctx context.Context, obj runtime.RemoteObjectID, fn string, byValue bool) (*runtime.RemoteObject, error) {
	return b.call(ctx, runtime.CallFunctionOn(fn).WithObjectID(obj), byValue)
}

// callIn calls fn in the utility world of frame. A world that vanished
// because the frame navigated is recreated once.
func (b *Browser) callIn(ctx context.Context, frame transport.FrameID, fn string, byValue bool) (*runtime.RemoteObject, error) {
	for attempt := 0; ; attempt++ {
		id, err := b.world(ctx, frame)
		if err != nil {
			return nil, err
		}
		res, err := b.call(ctx, runtime.CallFunctionOn(fn).WithExecutionContextID(id), byValue)
		if err != nil && errors.Is(err, transport.ErrContextLost) && attempt == 0 {
			b.dropWorld(frame, id)
			continue
		}
		return res, err
	}
}

func (b *Browser) call(ctx context.Context, p *runtime.CallFunctionOnParams, byValue bool) (*runtime.RemoteObject, error) {
	var res *runtime.RemoteObject
	err := b.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		r, exc, err := p.WithReturnByValue(byValue).WithAwaitPromise(true).Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return &scriptError{details: exc}
		}
		res = r
		return nil
	}))
	return res, err
}

func (b *Browser) release(ctx context.Context, obj runtime.RemoteObjectID) {
	_ = b.run(ctx, runtime.ReleaseObject(obj))
}

// decode unmarshals a by-value result into out.
func decode(res *runtime.RemoteObject, out any) error {
	if out == nil || res == nil || len(res.Value) == 0 {
		return nil
	}
	if err := json.Unmarshal([]byte(res.Value), out); err != nil {
		return fmt.Errorf("failed to decode script result: %w", err)
	}
	return nil
}

// jsString renders v as a JavaScript literal for embedding in a function body.
func jsString(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(data)
}

// Evaluate runs script as a function body in the frame's page world for the
// main frame, so page globals are visible. Other frames use the utility world.
func (b *Browser) Evaluate(ctx context.Context, frame transport.FrameID, script string, out any) error {
	body := "(function(){\n" + script + "\n})()"
	if frame == "" || frame == b.MainFrame() {
		var res *runtime.RemoteObject
		err := b.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
			r, exc, err := runtime.Evaluate(body).WithReturnByValue(true).WithAwaitPromise(true).Do(ctx)
			if err != nil {
				return err
			}
			if exc != nil {
				return &scriptError{details: exc}
			}
			res = r
			return nil
		}))
		if err != nil {
			return err
		}
		return decode(res, out)
	}

	res, err := b.callIn(ctx, frame, "function(){ return "+body+"; }", true)
	if err != nil {
		return err
	}
	return decode(res, out)
}
