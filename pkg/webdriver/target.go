// pkg/webdriver/target.go
package webdriver

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/brit/playwrightium/api/schemas"
	"github.com/brit/playwrightium/internal/browser/session"
	"github.com/brit/playwrightium/internal/transport"
)

// TargetLocator switches between frames and reaches dialogs.
type TargetLocator struct {
	d *Driver
}

// Frame enters the child frame of the current context whose frame element
// has the given name or id.
func (t *TargetLocator) Frame(ctx context.Context, nameOrID string) error {
	frames, err := t.children(ctx)
	if err != nil {
		return err
	}
	for _, f := range frames {
		if f.Name == nameOrID {
			return t.enter(ctx, f.ID)
		}
	}
	for _, f := range frames {
		if f.ElementID == nameOrID {
			return t.enter(ctx, f.ID)
		}
	}
	return fmt.Errorf("%w: %q", schemas.ErrNoSuchFrame, nameOrID)
}

// FrameIndex enters the index-th child frame in document order.
func (t *TargetLocator) FrameIndex(ctx context.Context, index int) error {
	frames, err := t.children(ctx)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(frames) {
		return fmt.Errorf("%w: index %d of %d", schemas.ErrNoSuchFrame, index, len(frames))
	}
	return t.enter(ctx, frames[index].ID)
}

// FrameElement enters the frame hosted by a frame or iframe element.
func (t *TargetLocator) FrameElement(ctx context.Context, el *WebElement) error {
	if err := el.check(); err != nil {
		return err
	}
	id, err := t.d.tr.FrameOf(ctx, el.ref)
	if err != nil {
		if errors.Is(err, transport.ErrNoSuchFrame) {
			return fmt.Errorf("%w: %s is not a frame", schemas.ErrNoSuchFrame, el.loc)
		}
		return t.d.wrap("frame", err)
	}
	return t.enter(ctx, id)
}

func (t *TargetLocator) children(ctx context.Context) ([]transport.FrameInfo, error) {
	if err := t.d.check(); err != nil {
		return nil, err
	}
	ec, err := t.d.current(ctx)
	if err != nil {
		return nil, err
	}
	if ec.Gone {
		return nil, schemas.ErrNoSuchFrame
	}
	frames, err := t.d.tr.Frames(ctx, ec.Frame)
	return frames, t.d.wrap("frames", err)
}

func (t *TargetLocator) enter(ctx context.Context, frame transport.FrameID) error {
	doc, err := t.d.tr.Document(ctx, frame)
	if err != nil {
		if errors.Is(err, transport.ErrNoSuchFrame) {
			return fmt.Errorf("%w: frame is not loaded", schemas.ErrNoSuchFrame)
		}
		return t.d.wrap("frame", err)
	}
	t.d.contexts.Push(frame, doc)
	t.d.logger.Debug("Switched to frame.", zap.String("frame", string(frame)), zap.Int("depth", t.d.contexts.Depth()))
	return nil
}

// ParentFrame leaves the current frame. At the top level it does nothing.
func (t *TargetLocator) ParentFrame(ctx context.Context) error {
	if err := t.d.check(); err != nil {
		return err
	}
	t.d.contexts.Pop()
	return nil
}

// DefaultContent returns to the top-level document.
func (t *TargetLocator) DefaultContent(ctx context.Context) error {
	if err := t.d.check(); err != nil {
		return err
	}
	t.d.contexts.PopToRoot()
	return nil
}

// Alert waits up to the alert timeout for a dialog and returns it.
func (t *TargetLocator) Alert(ctx context.Context) (*Alert, error) {
	if t.d.closed.Load() {
		return nil, schemas.ErrSessionClosed
	}
	dlg, err := t.d.dialogs.WaitPending(ctx, t.d.timeouts.Alert)
	if err != nil {
		return nil, err
	}
	return &Alert{d: t.d, dialog: dlg}, nil
}

// PendingAlert returns the open dialog without waiting.
func (t *TargetLocator) PendingAlert() (*Alert, error) {
	if t.d.closed.Load() {
		return nil, schemas.ErrSessionClosed
	}
	dlg, ok := t.d.dialogs.Pending()
	if !ok {
		return nil, schemas.ErrNoAlertPresent
	}
	return &Alert{d: t.d, dialog: dlg}, nil
}

// ExpectAlert prepares a response for a dialog that has not been raised
// yet. Choose the response with Accept or Dismiss before triggering it.
func (t *TargetLocator) ExpectAlert() *ExpectedAlert {
	return &ExpectedAlert{d: t.d}
}

// Alert is a dialog the browser is blocked on.
type Alert struct {
	d       *Driver
	dialog  schemas.Dialog
	keys    string
	hasKeys bool
}

// Kind reports whether this is an alert, confirm or prompt.
func (a *Alert) Kind() schemas.DialogKind { return a.dialog.Kind }

// Text returns the dialog's message while it is still open.
func (a *Alert) Text() (string, error) {
	if _, err := a.d.dialogs.Check(a.dialog.Seq); err != nil {
		return "", err
	}
	return a.dialog.Message, nil
}

// SendKeys sets the text a prompt answers with on Accept.
func (a *Alert) SendKeys(text string) error {
	if _, err := a.d.dialogs.Check(a.dialog.Seq); err != nil {
		return err
	}
	if a.dialog.Kind != schemas.DialogPrompt {
		return fmt.Errorf("%w: %s dialogs take no input", schemas.ErrUnsupportedOperation, a.dialog.Kind)
	}
	a.keys, a.hasKeys = text, true
	return nil
}

func (a *Alert) Accept(ctx context.Context) error {
	return a.respond(ctx, session.Response{Accept: true, Text: a.keys, HasText: a.hasKeys})
}

func (a *Alert) Dismiss(ctx context.Context) error {
	return a.respond(ctx, session.Response{Accept: false})
}

func (a *Alert) respond(ctx context.Context, resp session.Response) error {
	if err := a.d.dialogs.Respond(ctx, a.dialog.Seq, resp); err != nil {
		return err
	}
	a.d.settle(ctx)
	return nil
}

// ExpectedAlert answers the next dialog as soon as it opens, so the
// interaction that raises it runs to completion.
type ExpectedAlert struct {
	d       *Driver
	keys    string
	hasKeys bool
	exp     *session.Expectation
}

// SendKeys sets the text a prompt is answered with on Accept.
func (a *ExpectedAlert) SendKeys(text string) *ExpectedAlert {
	a.keys, a.hasKeys = text, true
	return a
}

func (a *ExpectedAlert) Accept(ctx context.Context) error {
	return a.arm(ctx, session.Response{Accept: true, Text: a.keys, HasText: a.hasKeys})
}

func (a *ExpectedAlert) Dismiss(ctx context.Context) error {
	return a.arm(ctx, session.Response{Accept: false})
}

func (a *ExpectedAlert) arm(ctx context.Context, resp session.Response) error {
	if a.d.closed.Load() {
		return schemas.ErrSessionClosed
	}
	if a.exp != nil {
		return fmt.Errorf("%w: response already chosen", schemas.ErrInvalidArgument)
	}
	exp, err := a.d.dialogs.Arm(ctx, resp)
	if err != nil {
		return err
	}
	a.exp = exp
	return nil
}

// Text waits up to the alert timeout for the expected dialog and returns
// its message.
func (a *ExpectedAlert) Text(ctx context.Context) (string, error) {
	if a.exp == nil {
		return "", fmt.Errorf("%w: no response chosen", schemas.ErrNoAlertPresent)
	}
	dlg, err := a.exp.Wait(ctx, a.d.timeouts.Alert)
	return dlg.Message, err
}

// Cancel withdraws the response if no dialog used it.
func (a *ExpectedAlert) Cancel() {
	if a.exp != nil {
		a.d.dialogs.Disarm(a.exp)
	}
}

// Navigation moves through the session history.
type Navigation struct {
	d *Driver
}

func (n *Navigation) To(ctx context.Context, url string) error { return n.d.Get(ctx, url) }

func (n *Navigation) Back(ctx context.Context) error {
	return n.traverse(ctx, "back", n.d.tr.Back)
}

func (n *Navigation) Forward(ctx context.Context) error {
	return n.traverse(ctx, "forward", n.d.tr.Forward)
}

func (n *Navigation) Refresh(ctx context.Context) error {
	return n.traverse(ctx, "refresh", n.d.tr.Reload)
}

func (n *Navigation) traverse(ctx context.Context, name string, fn func(context.Context) error) error {
	if err := n.d.check(); err != nil {
		return err
	}
	blocked, err := n.d.interact(ctx, name, fn)
	if err != nil || blocked {
		return err
	}
	return n.d.resetRoot(ctx)
}
