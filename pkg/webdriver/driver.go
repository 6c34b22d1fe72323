// pkg/webdriver/driver.go
package webdriver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/brit/playwrightium/api/schemas"
	"github.com/brit/playwrightium/internal/browser/session"
	"github.com/brit/playwrightium/internal/transport"
)

// Driver is one browser session driven through the WebDriver vocabulary.
// Calls are expected from a single goroutine at a time; dialog and
// navigation events are absorbed concurrently by an internal event pump.
type Driver struct {
	id       string
	tr       transport.Transport
	logger   *zap.Logger
	timeouts Timeouts

	contexts *session.ContextManager
	resolver *session.Resolver
	dialogs  *session.DialogMediator

	// ctx lives as long as the session. Interactions left outstanding
	// behind a dialog run under it.
	ctx    context.Context
	cancel context.CancelFunc

	closed     atomic.Bool
	quitOnce   sync.Once
	quitErr    error
	pumpDone   chan struct{}
	background sync.WaitGroup

	mu          sync.Mutex
	outstanding *operation
}

// operation is an interaction running in the background.
type operation struct {
	name string
	done chan struct{}
	err  error
}

// New opens tr and starts a session on its main frame. The transport is
// owned by the driver from here on and closed by Quit.
func New(ctx context.Context, tr transport.Transport, opts ...Option) (*Driver, error) {
	o := buildOptions(opts)
	id := uuid.NewString()
	logger := o.logger.Named("webdriver").With(zap.String("session_id", id))

	d := &Driver{
		id:       id,
		tr:       tr,
		logger:   logger,
		timeouts: o.timeouts,
		contexts: session.NewContextManager(),
		resolver: session.NewResolver(tr, logger),
		dialogs:  session.NewDialogMediator(tr, logger),
		pumpDone: make(chan struct{}),
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())

	if err := tr.Open(ctx); err != nil {
		d.cancel()
		_ = tr.Close(session.Detach(ctx))
		return nil, fmt.Errorf("failed to open browser: %w", err)
	}
	go d.pump()

	if err := d.resetRoot(ctx); err != nil {
		_ = d.Quit(ctx)
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	d.logger.Info("Session started.")
	return d, nil
}

// ID is the session's unique identifier.
func (d *Driver) ID() string { return d.id }

// Done is closed when the session ends, by Quit or because the browser went away.
func (d *Driver) Done() <-chan struct{} { return d.ctx.Done() }

func (d *Driver) pump() {
	defer close(d.pumpDone)
	for ev := range d.tr.Events() {
		switch ev.Kind {
		case transport.EventDialogOpened:
			d.dialogs.Opened(d.ctx, ev.Dialog)
		case transport.EventDialogClosed:
			d.dialogs.Closed(ev.Dialog)
		case transport.EventFrameNavigated:
			d.contexts.Navigated(ev.Frame, ev.Document, ev.Main)
		case transport.EventFrameDetached:
			d.contexts.Detached(ev.Frame)
		case transport.EventTargetClosed:
			d.terminate()
		}
	}
}

// terminate ends the session without closing the transport.
func (d *Driver) terminate() {
	if d.closed.Swap(true) {
		return
	}
	d.logger.Warn("Browser went away; session closed.")
	d.dialogs.Close()
	d.cancel()
}

// Quit closes the browser. Every later call fails with ErrSessionClosed.
// It is safe to call more than once.
func (d *Driver) Quit(ctx context.Context) error {
	d.quitOnce.Do(func() {
		d.closed.Store(true)
		d.dialogs.Close()
		d.cancel()

		closeCtx, cancel := context.WithTimeout(session.Detach(ctx), d.timeouts.Quit)
		defer cancel()
		if err := d.tr.Close(closeCtx); err != nil {
			d.quitErr = fmt.Errorf("failed to close browser: %w", err)
		}
		<-d.pumpDone
		d.background.Wait()
		d.logger.Info("Session closed.")
	})
	return d.quitErr
}

// check guards every command except the alert ones.
func (d *Driver) check() error {
	if d.closed.Load() {
		return schemas.ErrSessionClosed
	}
	if dlg, ok := d.dialogs.Pending(); ok {
		return fmt.Errorf("%w: %s %q", schemas.ErrUnexpectedAlertOpen, dlg.Kind, dlg.Message)
	}
	return nil
}

// wrap classifies a transport error, preferring ErrSessionClosed once the
// session is gone.
func (d *Driver) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if d.closed.Load() && !errors.Is(err, schemas.ErrSessionClosed) {
		return fmt.Errorf("%s: %w: %w", op, schemas.ErrSessionClosed, err)
	}
	return session.Wrap(op, err)
}

// current returns the active execution context after reconciling it with
// the frame's live document. This closes the gap between a navigation and
// the pump seeing its event.
func (d *Driver) current(ctx context.Context) (session.ExecutionContext, error) {
	ec, ok := d.contexts.Current()
	if !ok {
		return ec, schemas.ErrSessionClosed
	}
	if ec.Gone {
		return ec, nil
	}
	doc, err := d.tr.Document(ctx, ec.Frame)
	if errors.Is(err, transport.ErrNoSuchFrame) && d.contexts.Depth() > 0 {
		d.contexts.Detached(ec.Frame)
		ec.Gone = true
		return ec, nil
	}
	if err != nil {
		return ec, d.wrap("current context", err)
	}
	if doc != ec.Document {
		d.contexts.Navigated(ec.Frame, doc, d.contexts.Depth() == 0)
		ec, _ = d.contexts.Current()
	}
	return ec, nil
}

func (d *Driver) resetRoot(ctx context.Context) error {
	main := d.tr.MainFrame()
	doc, err := d.tr.Document(ctx, main)
	if err != nil {
		return d.wrap("document", err)
	}
	d.contexts.Reset(main, doc)
	return nil
}

// interact runs fn in the background and waits for it. When fn raises a
// dialog that nobody armed a response for, interact reports blocked and
// leaves fn outstanding until the dialog is answered.
func (d *Driver) interact(ctx context.Context, name string, fn func(context.Context) error) (blocked bool, err error) {
	op := &operation{name: name, done: make(chan struct{})}
	d.background.Add(1)
	go func() {
		defer d.background.Done()
		op.err = fn(d.ctx)
		close(op.done)

		d.mu.Lock()
		left := d.outstanding == op
		if left {
			d.outstanding = nil
		}
		d.mu.Unlock()
		if left && op.err != nil {
			d.logger.Debug("Outstanding interaction failed.", zap.String("op", name), zap.Error(op.err))
		}
	}()

	for {
		changed := d.dialogs.Changed()
		select {
		case <-op.done:
			return false, d.wrap(name, op.err)
		default:
		}
		if dlg, ok := d.dialogs.Pending(); ok {
			d.mu.Lock()
			d.outstanding = op
			d.mu.Unlock()
			d.logger.Debug("Interaction blocked by dialog.", zap.String("op", name), zap.String("kind", string(dlg.Kind)))
			return true, nil
		}
		select {
		case <-op.done:
			return false, d.wrap(name, op.err)
		case <-changed:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}

// settle waits for an interaction left outstanding by a dialog to finish,
// or for it to raise another dialog.
func (d *Driver) settle(ctx context.Context) {
	d.mu.Lock()
	op := d.outstanding
	d.mu.Unlock()
	if op == nil {
		return
	}
	timer := time.NewTimer(d.timeouts.Settle)
	defer timer.Stop()
	for {
		changed := d.dialogs.Changed()
		if _, ok := d.dialogs.Pending(); ok {
			return
		}
		select {
		case <-op.done:
			return
		case <-changed:
		case <-timer.C:
			d.logger.Warn("Interaction still running after dialog was answered.", zap.String("op", op.name))
			return
		case <-ctx.Done():
			return
		}
	}
}

// Get loads url in the top-level frame and returns to the top-level document.
func (d *Driver) Get(ctx context.Context, url string) error {
	if err := d.check(); err != nil {
		return err
	}
	d.logger.Debug("Navigating.", zap.String("url", url))
	blocked, err := d.interact(ctx, "navigate", func(c context.Context) error {
		return d.tr.Navigate(c, url)
	})
	if err != nil || blocked {
		return err
	}
	return d.resetRoot(ctx)
}

func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	if err := d.check(); err != nil {
		return "", err
	}
	u, err := d.tr.CurrentURL(ctx)
	return u, d.wrap("current url", err)
}

func (d *Driver) Title(ctx context.Context) (string, error) {
	if err := d.check(); err != nil {
		return "", err
	}
	t, err := d.tr.Title(ctx)
	return t, d.wrap("title", err)
}

// PageSource serializes the document of the current context.
func (d *Driver) PageSource(ctx context.Context) (string, error) {
	if err := d.check(); err != nil {
		return "", err
	}
	ec, err := d.current(ctx)
	if err != nil {
		return "", err
	}
	if ec.Gone {
		return "", schemas.ErrNoSuchFrame
	}
	src, err := d.tr.PageSource(ctx, ec.Frame)
	return src, d.wrap("page source", err)
}

// FindElement returns the first element matching loc in document order.
func (d *Driver) FindElement(ctx context.Context, loc Locator) (*WebElement, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	ec, err := d.current(ctx)
	if err != nil {
		return nil, err
	}
	ref, err := d.resolver.First(ctx, ec, "", loc)
	if err != nil {
		return nil, err
	}
	return d.element(ec, ref, loc), nil
}

// FindElements returns every element matching loc. No match is not an error.
func (d *Driver) FindElements(ctx context.Context, loc Locator) ([]*WebElement, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	ec, err := d.current(ctx)
	if err != nil {
		return nil, err
	}
	refs, err := d.resolver.Resolve(ctx, ec, "", loc)
	if err != nil {
		return nil, err
	}
	return d.elements(ec, refs, loc), nil
}

// ExecuteScript runs script as a function body in the current context and
// returns its JSON-decoded result.
func (d *Driver) ExecuteScript(ctx context.Context, script string) (any, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	ec, err := d.current(ctx)
	if err != nil {
		return nil, err
	}
	if ec.Gone {
		return nil, schemas.ErrNoSuchFrame
	}
	var out any
	blocked, err := d.interact(ctx, "execute script", func(c context.Context) error {
		opCtx, cancel := context.WithTimeout(c, d.timeouts.Script)
		defer cancel()
		return d.tr.Evaluate(opCtx, ec.Frame, script, &out)
	})
	if err != nil || blocked {
		// A blocked script has not produced its result yet.
		return nil, err
	}
	return out, nil
}

// SwitchTo selects frames and dialogs.
func (d *Driver) SwitchTo() *TargetLocator { return &TargetLocator{d: d} }

// Navigate exposes history navigation.
func (d *Driver) Navigate() *Navigation { return &Navigation{d: d} }
