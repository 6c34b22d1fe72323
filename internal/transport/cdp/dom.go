// internal/transport/cdp/dom.go
package cdp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/brit/playwrightium/internal/transport"
)

// queryFunction returns matching elements as an array. `this` is the search
// root when one is given, otherwise the frame's document is searched.
const queryFunction = `function() {
	const root = (this && this.nodeType) ? this : document;
	const kind = %s, expr = %s, name = %s, value = %s;
	const out = [];
	if (kind === "css") {
		return Array.from(root.querySelectorAll(expr));
	}
	if (kind === "xpath") {
		const doc = root.ownerDocument || root;
		const res = doc.evaluate(expr, root, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
		for (let i = 0; i < res.snapshotLength; i++) {
			const n = res.snapshotItem(i);
			if (n.nodeType === Node.ELEMENT_NODE && n !== root) out.push(n);
		}
		return out;
	}
	const walker = (root.ownerDocument || root).createTreeWalker(root, NodeFilter.SHOW_ELEMENT);
	while (walker.nextNode()) {
		const n = walker.currentNode;
		if (n.getAttribute(name) === value) out.push(n);
	}
	return out;
}`

func (b *Browser) Query(ctx context.Context, frame transport.FrameID, root transport.NodeRef, q transport.Query) ([]transport.NodeRef, error) {
	var kind string
	switch q.Kind {
	case transport.QueryCSS:
		kind = "css"
	case transport.QueryXPath:
		kind = "xpath"
	case transport.QueryAttribute:
		kind = "attribute"
	default:
		return nil, fmt.Errorf("%w: unknown query kind %d", transport.ErrInvalidQuery, q.Kind)
	}
	fn := fmt.Sprintf(queryFunction, jsString(kind), jsString(q.Expr), jsString(q.Name), jsString(q.Value))

	var arr *runtime.RemoteObject
	var err error
	if root != "" {
		arr, err = b.callOn(ctx, runtime.RemoteObjectID(root), fn, false)
	} else {
		arr, err = b.callIn(ctx, frame, fn, false)
	}
	if err != nil {
		var se *scriptError
		if errors.As(err, &se) {
			return nil, fmt.Errorf("%w: %v", transport.ErrInvalidQuery, se)
		}
		return nil, err
	}
	if arr == nil || arr.ObjectID == "" {
		return nil, nil
	}
	defer b.release(ctx, arr.ObjectID)

	var n int
	res, err := b.callOn(ctx, arr.ObjectID, "function() { return this.length; }", true)
	if err != nil {
		return nil, err
	}
	if err := decode(res, &n); err != nil {
		return nil, err
	}

	refs := make([]transport.NodeRef, 0, n)
	for i := 0; i < n; i++ {
		el, err := b.callOn(ctx, arr.ObjectID, fmt.Sprintf("function() { return this[%d]; }", i), false)
		if err != nil {
			return nil, err
		}
		refs = append(refs, transport.NodeRef(el.ObjectID))
	}
	return refs, nil
}

const describeFunction = `function() {
	const tag = (this.localName || "").toLowerCase();
	const type = tag === "input" ? (this.type || "text").toLowerCase() : "";
	const textTypes = ["text","password","email","search","tel","url","number","date","datetime-local","month","week","time","color"];
	const visible = (el) => {
		if (!el.isConnected) return false;
		const style = el.ownerDocument.defaultView.getComputedStyle(el);
		if (style.visibility === "hidden" || style.visibility === "collapse") return false;
		return el.getClientRects().length > 0;
	};
	let displayed;
	if (tag === "option") {
		const sel = this.closest("select");
		displayed = sel ? visible(sel) : false;
	} else {
		displayed = visible(this);
	}
	let selected = false;
	if (type === "checkbox" || type === "radio") selected = !!this.checked;
	if (tag === "option") selected = !!this.selected;
	const enabled = !this.disabled;
	const editable = enabled && !this.readOnly &&
		(tag === "textarea" || (tag === "input" && textTypes.includes(type)) || !!this.isContentEditable);
	return {tag, type, multiple: !!this.multiple, selected, editable, enabled, displayed};
}`

type nodeInfo struct {
	Tag       string `json:"tag"`
	Type      string `json:"type"`
	Multiple  bool   `json:"multiple"`
	Selected  bool   `json:"selected"`
	Editable  bool   `json:"editable"`
	Enabled   bool   `json:"enabled"`
	Displayed bool   `json:"displayed"`
}

func (b *Browser) Describe(ctx context.Context, node transport.NodeRef) (transport.NodeInfo, error) {
	res, err := b.callOn(ctx, runtime.RemoteObjectID(node), describeFunction, true)
	if err != nil {
		return transport.NodeInfo{}, err
	}
	var info nodeInfo
	if err := decode(res, &info); err != nil {
		return transport.NodeInfo{}, err
	}
	return transport.NodeInfo(info), nil
}

const textFunction = `function() {
	if (!this.isConnected || this.getClientRects().length === 0) return "";
	const text = this.localName === "textarea" ? this.value : (this.innerText || "");
	return text.replace(/\u00a0/g, " ").split("\n").map(l => l.replace(/^[ \t]+|[ \t]+$/g, "")).filter(l => l).join("\n");
}`

func (b *Browser) Text(ctx context.Context, node transport.NodeRef) (string, error) {
	res, err := b.callOn(ctx, runtime.RemoteObjectID(node), textFunction, true)
	if err != nil {
		return "", err
	}
	var text string
	err = decode(res, &text)
	return text, err
}

func (b *Browser) Attribute(ctx context.Context, node transport.NodeRef, name string) (string, bool, error) {
	fn := fmt.Sprintf(`function() {
	const n = %s;
	return this.hasAttribute(n) ? [true, this.getAttribute(n)] : [false, ""];
}`, jsString(name))
	res, err := b.callOn(ctx, runtime.RemoteObjectID(node), fn, true)
	if err != nil {
		return "", false, err
	}
	var pair [2]any
	if err := decode(res, &pair); err != nil {
		return "", false, err
	}
	ok, _ := pair[0].(bool)
	value, _ := pair[1].(string)
	return value, ok, nil
}

func (b *Browser) Property(ctx context.Context, node transport.NodeRef, name string) (any, error) {
	fn := fmt.Sprintf(`function() {
	const v = this[%s];
	if (v === undefined || typeof v === "function") return null;
	if (v !== null && typeof v === "object") return String(v);
	return v;
}`, jsString(name))
	res, err := b.callOn(ctx, runtime.RemoteObjectID(node), fn, true)
	if err != nil {
		return nil, err
	}
	var v any
	err = decode(res, &v)
	return v, err
}

func (b *Browser) SetProperty(ctx context.Context, node transport.NodeRef, name string, value any) error {
	fn := fmt.Sprintf("function() { this[%s] = %s; }", jsString(name), jsString(value))
	_, err := b.callOn(ctx, runtime.RemoteObjectID(node), fn, true)
	return err
}

func (b *Browser) DispatchEvent(ctx context.Context, node transport.NodeRef, eventType string) error {
	fn := fmt.Sprintf("function() { this.dispatchEvent(new Event(%s, {bubbles: true})); }", jsString(eventType))
	_, err := b.callOn(ctx, runtime.RemoteObjectID(node), fn, true)
	return err
}

func (b *Browser) PageSource(ctx context.Context, frame transport.FrameID) (string, error) {
	res, err := b.callIn(ctx, frame, "function() { return document.documentElement ? document.documentElement.outerHTML : \"\"; }", true)
	if err != nil {
		return "", err
	}
	var src string
	err = decode(res, &src)
	return src, err
}

// Frames lists the frame and iframe elements of parent's document in
// document order, resolved to the frames they host.
func (b *Browser) Frames(ctx context.Context, parent transport.FrameID) ([]transport.FrameInfo, error) {
	refs, err := b.Query(ctx, parent, "", transport.Query{Kind: transport.QueryCSS, Expr: "frame, iframe"})
	if err != nil {
		return nil, err
	}
	infos := make([]transport.FrameInfo, 0, len(refs))
	for _, ref := range refs {
		id, err := b.FrameOf(ctx, ref)
		if errors.Is(err, transport.ErrNoSuchFrame) {
			// Not loaded yet.
			continue
		}
		if err != nil {
			return nil, err
		}
		name, _, err := b.Attribute(ctx, ref, "name")
		if err != nil {
			return nil, err
		}
		elemID, _, err := b.Attribute(ctx, ref, "id")
		if err != nil {
			return nil, err
		}
		infos = append(infos, transport.FrameInfo{ID: id, Name: name, ElementID: elemID})
	}
	return infos, nil
}

func (b *Browser) FrameOf(ctx context.Context, node transport.NodeRef) (transport.FrameID, error) {
	var id transport.FrameID
	err := b.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		n, err := dom.DescribeNode().WithObjectID(runtime.RemoteObjectID(node)).Do(ctx)
		if err != nil {
			return err
		}
		name := strings.ToLower(n.LocalName)
		if (name != "frame" && name != "iframe") || n.FrameID == "" {
			return transport.ErrNoSuchFrame
		}
		id = transport.FrameID(n.FrameID)
		return nil
	}))
	return id, err
}

func (b *Browser) frameTree(ctx context.Context) (*page.FrameTree, error) {
	var tree *page.FrameTree
	err := b.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		tree, err = page.GetFrameTree().Do(ctx)
		return err
	}))
	return tree, err
}

func findFrame(tree *page.FrameTree, id transport.FrameID) *page.FrameTree {
	if tree == nil || tree.Frame == nil {
		return nil
	}
	if transport.FrameID(tree.Frame.ID) == id {
		return tree
	}
	for _, c := range tree.ChildFrames {
		if found := findFrame(c, id); found != nil {
			return found
		}
	}
	return nil
}

func parentOf(tree *page.FrameTree, id transport.FrameID) (transport.FrameID, bool) {
	for _, c := range tree.ChildFrames {
		if transport.FrameID(c.Frame.ID) == id {
			return transport.FrameID(tree.Frame.ID), true
		}
		if p, ok := parentOf(c, id); ok {
			return p, true
		}
	}
	return "", false
}
