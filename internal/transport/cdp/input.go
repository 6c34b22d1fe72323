// internal/transport/cdp/input.go
package cdp

import (
	"context"
	"fmt"

	cdpproto "github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/brit/playwrightium/internal/transport"
)

var errNotInteractable = fmt.Errorf("%w: element is not interactable", transport.ErrUnsupported)

// Click scrolls the element into view and presses the left button at the
// center of its first content quad. The call returns once the page has
// handled the click, which is after any dialog it opened was closed.
func (b *Browser) Click(ctx context.Context, node transport.NodeRef) error {
	obj := runtime.RemoteObjectID(node)

	var x, y float64
	err := b.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		if err := dom.ScrollIntoViewIfNeeded().WithObjectID(obj).Do(ctx); err != nil {
			return err
		}
		quads, err := dom.GetContentQuads().WithObjectID(obj).Do(ctx)
		if err != nil {
			return err
		}
		if len(quads) == 0 || len(quads[0]) < 8 {
			return errNotInteractable
		}
		q := quads[0]
		x = (q[0] + q[2] + q[4] + q[6]) / 4
		y = (q[1] + q[3] + q[5] + q[7]) / 4
		return nil
	}))
	if err != nil {
		return err
	}

	ox, oy, err := b.frameOffset(ctx, node)
	if err != nil {
		return err
	}
	x, y = x+ox, y+oy

	return b.run(ctx,
		input.DispatchMouseEvent(input.MouseMoved, x, y),
		input.DispatchMouseEvent(input.MousePressed, x, y).WithButton(input.Left).WithClickCount(1),
		input.DispatchMouseEvent(input.MouseReleased, x, y).WithButton(input.Left).WithClickCount(1),
	)
}

// frameOffset is the position of the node's frame inside the top-level
// viewport. Content quads are relative to the node's own frame.
func (b *Browser) frameOffset(ctx context.Context, node transport.NodeRef) (float64, float64, error) {
	var frame transport.FrameID
	err := b.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		n, err := dom.DescribeNode().WithObjectID(runtime.RemoteObjectID(node)).Do(ctx)
		if err != nil {
			return err
		}
		frame = transport.FrameID(n.FrameID)
		return nil
	}))
	if err != nil {
		return 0, 0, err
	}
	if frame == "" || frame == b.MainFrame() {
		return 0, 0, nil
	}

	tree, err := b.frameTree(ctx)
	if err != nil {
		return 0, 0, err
	}
	var ox, oy float64
	for frame != "" {
		parent, ok := parentOf(tree, frame)
		if !ok {
			break
		}
		var box *dom.BoxModel
		owner := frame
		err := b.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
			backend, _, err := dom.GetFrameOwner(cdpproto.FrameID(owner)).Do(ctx)
			if err != nil {
				return err
			}
			box, err = dom.GetBoxModel().WithBackendNodeID(backend).Do(ctx)
			return err
		}))
		if err != nil {
			return 0, 0, err
		}
		if box != nil && len(box.Content) >= 2 {
			ox += box.Content[0]
			oy += box.Content[1]
		}
		frame = parent
	}
	return ox, oy, nil
}

const focusFunction = `function() {
	this.focus();
	if (typeof this.setSelectionRange === "function") {
		try { const l = this.value.length; this.setSelectionRange(l, l); } catch (e) {}
	}
}`

// Type focuses the element with the caret at the end and sends key events.
func (b *Browser) Type(ctx context.Context, node transport.NodeRef, text string) error {
	info, err := b.Describe(ctx, node)
	if err != nil {
		return err
	}
	if !info.Editable {
		return errNotInteractable
	}
	if _, err := b.callOn(ctx, runtime.RemoteObjectID(node), focusFunction, true); err != nil {
		return err
	}
	return b.run(ctx, chromedp.KeyEvent(text))
}

const clearFunction = `function() {
	if (this.disabled || this.readOnly) return;
	if ("value" in this && (this.localName === "input" || this.localName === "textarea")) {
		this.value = "";
	} else if (this.isContentEditable) {
		this.textContent = "";
	} else {
		return;
	}
	this.dispatchEvent(new Event("input", {bubbles: true}));
	this.dispatchEvent(new Event("change", {bubbles: true}));
}`

func (b *Browser) Clear(ctx context.Context, node transport.NodeRef) error {
	_, err := b.callOn(ctx, runtime.RemoteObjectID(node), clearFunction, true)
	return err
}

func (b *Browser) SetFiles(ctx context.Context, node transport.NodeRef, paths []string) error {
	return b.run(ctx, dom.SetFileInputFiles(paths).WithObjectID(runtime.RemoteObjectID(node)))
}

const submitFunction = `function() {
	const form = this.localName === "form" ? this : (this.form || this.closest("form"));
	if (!form) return false;
	if (typeof form.requestSubmit === "function") form.requestSubmit(); else form.submit();
	return true;
}`

func (b *Browser) Submit(ctx context.Context, node transport.NodeRef) error {
	res, err := b.callOn(ctx, runtime.RemoteObjectID(node), submitFunction, true)
	if err != nil {
		return err
	}
	var ok bool
	if err := decode(res, &ok); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: element is not in a form", transport.ErrUnsupported)
	}
	return nil
}
