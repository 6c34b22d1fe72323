// internal/transport/cdp/browser.go
package cdp

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/inspector"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/brit/playwrightium/api/schemas"
	"github.com/brit/playwrightium/internal/browser/session"
	"github.com/brit/playwrightium/internal/transport"
)

// Config controls how Chrome is launched.
type Config struct {
	Headless     bool
	ExecPath     string
	Args         []string
	WindowWidth  int
	WindowHeight int
	UserAgent    string
	// NavigationTimeout bounds Navigate, Back, Forward and Reload.
	NavigationTimeout time.Duration
}

const worldName = "__playwrightium_utility__"

// Browser drives a single Chrome tab over the DevTools protocol.
type Browser struct {
	id     string
	cfg    Config
	logger *zap.Logger

	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc
	targetID    target.ID

	mu     sync.Mutex
	opened bool
	closed bool
	main   transport.FrameID
	worlds map[transport.FrameID]runtime.ExecutionContextID

	dialogSeq atomic.Uint64
	events    *transport.Queue
}

var _ transport.Transport = (*Browser)(nil)

// New creates a Browser. Chrome is started by Open.
func New(cfg Config, logger *zap.Logger) *Browser {
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()
	return &Browser{
		id:     id,
		cfg:    cfg,
		logger: logger.Named("cdp").With(zap.String("browser_id", id)),
		worlds: make(map[transport.FrameID]runtime.ExecutionContextID),
		events: transport.NewQueue(),
	}
}

func (b *Browser) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if !b.cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if b.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(b.cfg.ExecPath))
	}
	if b.cfg.WindowWidth > 0 && b.cfg.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(b.cfg.WindowWidth, b.cfg.WindowHeight))
	}
	if b.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(b.cfg.UserAgent))
	}
	for _, arg := range b.cfg.Args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if hasValue {
			opts = append(opts, chromedp.Flag(name, value))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}
	return opts
}

// Open launches Chrome and attaches to its first tab. The browser lives
// until Close; ctx only bounds the startup.
func (b *Browser) Open(ctx context.Context) error {
	b.mu.Lock()
	if b.opened {
		b.mu.Unlock()
		return nil
	}
	b.opened = true
	b.mu.Unlock()

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), b.allocatorOptions()...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(b.logger.Sugar().Debugf),
		chromedp.WithErrorf(b.logger.Sugar().Warnf),
	)
	b.allocCancel = allocCancel
	b.ctx = tabCtx
	b.cancel = tabCancel

	chromedp.ListenTarget(tabCtx, b.onEvent)

	// The first Run allocates the browser and ties its lifetime to the
	// context it is given, so it must get the tab context itself.
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(tabCtx) }()
	select {
	case err := <-started:
		if err != nil {
			tabCancel()
			allocCancel()
			return fmt.Errorf("failed to start browser: %w", err)
		}
	case <-ctx.Done():
		tabCancel()
		allocCancel()
		return ctx.Err()
	}

	var tree *page.FrameTree
	err := b.run(ctx, page.Enable(), chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		tree, err = page.GetFrameTree().Do(ctx)
		return err
	}))
	if err != nil {
		tabCancel()
		allocCancel()
		return fmt.Errorf("failed to start browser: %w", err)
	}

	b.mu.Lock()
	b.main = transport.FrameID(tree.Frame.ID)
	if c := chromedp.FromContext(tabCtx); c != nil && c.Target != nil {
		b.targetID = c.Target.TargetID
	}
	b.mu.Unlock()
	b.logger.Info("Browser started.", zap.Bool("headless", b.cfg.Headless))
	return nil
}

// Close shuts Chrome down. It is safe to call more than once.
func (b *Browser) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	cancel, allocCancel, tabCtx := b.cancel, b.allocCancel, b.ctx
	b.mu.Unlock()

	var err error
	if tabCtx != nil {
		// Cancel closes the browser gracefully and waits for it to exit.
		if cerr := chromedp.Cancel(tabCtx); cerr != nil && !strings.Contains(cerr.Error(), "context canceled") {
			err = fmt.Errorf("failed to close browser: %w", cerr)
		}
		cancel()
		allocCancel()
	}
	b.events.Post(transport.Event{Kind: transport.EventTargetClosed})
	b.events.Close()
	b.logger.Info("Browser closed.")
	return err
}

func (b *Browser) Events() <-chan transport.Event { return b.events.C() }

func (b *Browser) MainFrame() transport.FrameID {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.main
}

// run executes actions against the tab. The tab context carries the CDP
// target; ctx only adds the caller's deadline.
func (b *Browser) run(ctx context.Context, actions ...chromedp.Action) error {
	b.mu.Lock()
	closed, tabCtx := b.closed, b.ctx
	b.mu.Unlock()
	if closed || tabCtx == nil {
		return transport.ErrTargetClosed
	}
	runCtx, cancel := session.CombineContext(tabCtx, ctx)
	defer cancel()
	return mapError(chromedp.Run(runCtx, actions...))
}

func (b *Browser) navigation(ctx context.Context, action chromedp.Action) error {
	if b.cfg.NavigationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.NavigationTimeout)
		defer cancel()
	}
	return b.run(ctx, action)
}

func (b *Browser) Navigate(ctx context.Context, url string) error {
	return b.navigation(ctx, chromedp.Navigate(url))
}

func (b *Browser) Back(ctx context.Context) error {
	return b.navigation(ctx, chromedp.NavigateBack())
}

func (b *Browser) Forward(ctx context.Context) error {
	return b.navigation(ctx, chromedp.NavigateForward())
}

func (b *Browser) Reload(ctx context.Context) error {
	return b.navigation(ctx, chromedp.Reload())
}

func (b *Browser) CurrentURL(ctx context.Context) (string, error) {
	var u string
	err := b.run(ctx, chromedp.Location(&u))
	return u, err
}

func (b *Browser) Title(ctx context.Context) (string, error) {
	var title string
	err := b.run(ctx, chromedp.Title(&title))
	return title, err
}

func (b *Browser) Document(ctx context.Context, frame transport.FrameID) (transport.DocumentID, error) {
	tree, err := b.frameTree(ctx)
	if err != nil {
		return "", err
	}
	node := findFrame(tree, frame)
	if node == nil {
		return "", transport.ErrNoSuchFrame
	}
	return transport.DocumentID(node.Frame.LoaderID), nil
}

func (b *Browser) HandleDialog(ctx context.Context, accept bool, promptText string) error {
	return b.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		p := page.HandleJavaScriptDialog(accept)
		if promptText != "" {
			p = p.WithPromptText(promptText)
		}
		return p.Do(ctx)
	}))
}

// onEvent runs on the connection's read loop. It must not block or issue
// commands; everything goes through the event queue.
func (b *Browser) onEvent(ev any) {
	switch e := ev.(type) {
	case *page.EventJavascriptDialogOpening:
		d := schemas.Dialog{
			Seq:           b.dialogSeq.Add(1),
			Kind:          dialogKind(e.Type),
			Message:       e.Message,
			DefaultPrompt: e.DefaultPrompt,
		}
		b.events.Post(transport.Event{Kind: transport.EventDialogOpened, Frame: transport.FrameID(e.FrameID), Dialog: d})

	case *page.EventJavascriptDialogClosed:
		b.events.Post(transport.Event{Kind: transport.EventDialogClosed, Frame: transport.FrameID(e.FrameID)})

	case *page.EventFrameNavigated:
		if e.Frame == nil {
			return
		}
		id := transport.FrameID(e.Frame.ID)
		main := e.Frame.ParentID == ""
		b.mu.Lock()
		delete(b.worlds, id)
		if main {
			b.main = id
		}
		b.mu.Unlock()
		b.events.Post(transport.Event{
			Kind:     transport.EventFrameNavigated,
			Frame:    id,
			Document: transport.DocumentID(e.Frame.LoaderID),
			Main:     main,
		})

	case *page.EventFrameDetached:
		id := transport.FrameID(e.FrameID)
		b.mu.Lock()
		delete(b.worlds, id)
		b.mu.Unlock()
		b.events.Post(transport.Event{Kind: transport.EventFrameDetached, Frame: id})

	case *runtime.EventExecutionContextsCleared:
		b.mu.Lock()
		b.worlds = make(map[transport.FrameID]runtime.ExecutionContextID)
		b.mu.Unlock()

	case *inspector.EventDetached, *inspector.EventTargetCrashed:
		b.logger.Warn("Browser target lost.", zap.String("event", fmt.Sprintf("%T", ev)))
		b.events.Post(transport.Event{Kind: transport.EventTargetClosed})

	case *target.EventTargetDestroyed:
		b.mu.Lock()
		own := e.TargetID == b.targetID
		b.mu.Unlock()
		if own {
			b.events.Post(transport.Event{Kind: transport.EventTargetClosed})
		}
	}
}

func dialogKind(t page.DialogType) schemas.DialogKind {
	switch t {
	case page.DialogTypeConfirm:
		return schemas.DialogConfirm
	case page.DialogTypePrompt:
		return schemas.DialogPrompt
	case page.DialogTypeBeforeunload:
		return schemas.DialogBeforeUnload
	}
	return schemas.DialogAlert
}
