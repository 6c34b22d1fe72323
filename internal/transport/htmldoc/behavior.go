// internal/transport/htmldoc/behavior.go
package htmldoc

import (
	"context"
	"fmt"
	"net/http"

	"github.com/andybalholm/cascadia"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/brit/playwrightium/api/schemas"
	"github.com/brit/playwrightium/internal/transport"
)

// Handler is the Go stand-in for a page script listener.
type Handler func(ctx context.Context, p *Page) error

type behavior struct {
	event    string
	selector string
	match    cascadia.Selector
	fn       Handler
}

// WithBehavior binds fn to eventType on every element matching selector, in
// every document the browser loads. Click behaviors run before the
// element's default action.
func WithBehavior(eventType, selector string, fn Handler) Option {
	sel := cascadia.MustCompile(selector)
	return func(b *Browser) {
		b.behaviors = append(b.behaviors, &behavior{event: eventType, selector: selector, match: sel, fn: fn})
	}
}

// OnClick is WithBehavior for click events.
func OnClick(selector string, fn Handler) Option {
	return WithBehavior("click", selector, fn)
}

// Page is the view of the document a Handler gets. Methods lock the browser
// themselves and must not be called after the handler returns.
type Page struct {
	b      *Browser
	f      *frame
	doc    transport.DocumentID
	target *html.Node
}

// Alert raises an alert dialog and blocks until it is handled.
func (p *Page) Alert(ctx context.Context, message string) error {
	_, err := p.b.raiseDialog(ctx, p.f, schemas.DialogAlert, message, "")
	return err
}

// Confirm raises a confirm dialog and reports whether it was accepted.
func (p *Page) Confirm(ctx context.Context, message string) (bool, error) {
	r, err := p.b.raiseDialog(ctx, p.f, schemas.DialogConfirm, message, "")
	return r.accept, err
}

// Prompt raises a prompt dialog. ok is false when the prompt was dismissed,
// the equivalent of prompt() returning null.
func (p *Page) Prompt(ctx context.Context, message, defaultValue string) (text string, ok bool, err error) {
	r, err := p.b.raiseDialog(ctx, p.f, schemas.DialogPrompt, message, defaultValue)
	if err != nil || !r.accept {
		return "", false, err
	}
	return r.text, true, nil
}

// SetText replaces the content of the first element matching selector.
func (p *Page) SetText(selector, text string) error {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return fmt.Errorf("%w: %v", transport.ErrInvalidQuery, err)
	}
	p.b.mu.Lock()
	defer p.b.mu.Unlock()
	if err := p.checkLocked(); err != nil {
		return err
	}
	n := cascadia.Query(p.f.root, sel)
	if n == nil {
		return fmt.Errorf("no element matches %q", selector)
	}
	setText(n, text)
	return nil
}

// Attribute reads an attribute of the element the event fired on.
func (p *Page) Attribute(name string) string {
	p.b.mu.Lock()
	defer p.b.mu.Unlock()
	return attr(p.target, name)
}

// Navigate loads url into the handler's frame.
func (p *Page) Navigate(ctx context.Context, rawURL string) error {
	u, err := p.b.resolveURL(p.f, rawURL)
	if err != nil {
		return err
	}
	return p.b.navigateFrame(ctx, p.f, historyEntry{method: http.MethodGet, url: u.String()}, p.f.parent == nil)
}

func (p *Page) checkLocked() error {
	if cur, ok := p.b.frames[p.f.id]; !ok || cur != p.f || p.f.doc != p.doc {
		return transport.ErrContextLost
	}
	return nil
}

// fire runs the behaviors bound to eventType whose selector matches the node.
func (b *Browser) fire(ctx context.Context, node transport.NodeRef, eventType string) error {
	b.mu.Lock()
	e, err := b.lookupLocked(node)
	if err != nil {
		b.mu.Unlock()
		return err
	}
	var matched []*behavior
	for _, bh := range b.behaviors {
		if bh.event == eventType && bh.match.Match(e.n) {
			matched = append(matched, bh)
		}
	}
	b.mu.Unlock()

	page := &Page{b: b, f: e.f, doc: e.doc, target: e.n}
	for _, bh := range matched {
		b.logger.Debug("Running behavior.", zap.String("event", eventType), zap.String("selector", bh.selector))
		if err := bh.fn(ctx, page); err != nil {
			return fmt.Errorf("%s handler for %q: %w", eventType, bh.selector, err)
		}
	}
	return nil
}

// raiseDialog blocks the caller the way a modal dialog blocks page script.
// The dialog is resolved by HandleDialog, or abandoned when ctx ends or the
// browser closes.
func (b *Browser) raiseDialog(ctx context.Context, f *frame, kind schemas.DialogKind, message, defaultPrompt string) (dialogReply, error) {
	b.mu.Lock()
	select {
	case <-b.closed:
		b.mu.Unlock()
		return dialogReply{}, transport.ErrTargetClosed
	default:
	}
	if b.dialog != nil {
		b.mu.Unlock()
		return dialogReply{}, fmt.Errorf("%w: a dialog is already open", transport.ErrUnsupported)
	}
	b.dialogSeq++
	d := &pendingDialog{
		info: schemas.Dialog{
			Seq:           b.dialogSeq,
			Kind:          kind,
			Message:       message,
			DefaultPrompt: defaultPrompt,
		},
		frame: f.id,
		reply: make(chan dialogReply, 1),
	}
	b.dialog = d
	b.mu.Unlock()

	b.logger.Debug("Dialog opened.", zap.String("kind", string(kind)), zap.String("message", message))
	b.events.Post(transport.Event{Kind: transport.EventDialogOpened, Frame: f.id, Dialog: d.info})

	select {
	case r := <-d.reply:
		return r, nil
	case <-ctx.Done():
		b.abandonDialog(d)
		return dialogReply{}, ctx.Err()
	case <-b.closed:
		return dialogReply{}, transport.ErrTargetClosed
	}
}

func (b *Browser) abandonDialog(d *pendingDialog) {
	b.mu.Lock()
	owned := b.dialog == d
	if owned {
		b.dialog = nil
	}
	b.mu.Unlock()
	if owned {
		b.events.Post(transport.Event{Kind: transport.EventDialogClosed, Frame: d.frame, Dialog: d.info})
	}
}

func (b *Browser) HandleDialog(ctx context.Context, accept bool, promptText string) error {
	b.mu.Lock()
	select {
	case <-b.closed:
		b.mu.Unlock()
		return transport.ErrTargetClosed
	default:
	}
	d := b.dialog
	if d == nil {
		b.mu.Unlock()
		return transport.ErrNoDialog
	}
	b.dialog = nil
	b.mu.Unlock()

	d.reply <- dialogReply{accept: accept, text: promptText}
	b.events.Post(transport.Event{Kind: transport.EventDialogClosed, Frame: d.frame, Dialog: d.info})
	return nil
}
