// pkg/webdriver/element.go
package webdriver

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/brit/playwrightium/api/schemas"
	"github.com/brit/playwrightium/internal/browser/session"
	"github.com/brit/playwrightium/internal/transport"
)

// WebElement is a handle to a DOM element in the execution context it was
// found in. It goes stale when that context navigates or is left.
type WebElement struct {
	d   *Driver
	ref transport.NodeRef
	ec  session.ExecutionContext
	loc Locator
}

func (d *Driver) element(ec session.ExecutionContext, ref transport.NodeRef, loc Locator) *WebElement {
	return &WebElement{d: d, ref: ref, ec: ec, loc: loc}
}

func (d *Driver) elements(ec session.ExecutionContext, refs []transport.NodeRef, loc Locator) []*WebElement {
	out := make([]*WebElement, 0, len(refs))
	for _, ref := range refs {
		out = append(out, d.element(ec, ref, loc))
	}
	return out
}

// Locator is the locator the element was found with.
func (e *WebElement) Locator() Locator { return e.loc }

func (e *WebElement) String() string {
	return fmt.Sprintf("WebElement(%s)", e.loc)
}

func (e *WebElement) check() error {
	if err := e.d.check(); err != nil {
		return err
	}
	if !e.d.contexts.Alive(e.ec.Token) {
		return fmt.Errorf("%w: %s", schemas.ErrStaleElement, e.loc)
	}
	return nil
}

func (e *WebElement) describe(ctx context.Context) (transport.NodeInfo, error) {
	if err := e.check(); err != nil {
		return transport.NodeInfo{}, err
	}
	info, err := e.d.tr.Describe(ctx, e.ref)
	return info, e.d.wrap("describe", err)
}

// FindElement searches the element's subtree.
func (e *WebElement) FindElement(ctx context.Context, loc Locator) (*WebElement, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	ref, err := e.d.resolver.First(ctx, e.ec, e.ref, loc)
	if err != nil {
		return nil, err
	}
	return e.d.element(e.ec, ref, loc), nil
}

func (e *WebElement) FindElements(ctx context.Context, loc Locator) ([]*WebElement, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	refs, err := e.d.resolver.Resolve(ctx, e.ec, e.ref, loc)
	if err != nil {
		return nil, err
	}
	return e.d.elements(e.ec, refs, loc), nil
}

// Text is the rendered text of the element; hidden elements have none.
func (e *WebElement) Text(ctx context.Context) (string, error) {
	if err := e.check(); err != nil {
		return "", err
	}
	text, err := e.d.tr.Text(ctx, e.ref)
	return text, e.d.wrap("text", err)
}

func (e *WebElement) TagName(ctx context.Context) (string, error) {
	info, err := e.describe(ctx)
	return info.Tag, err
}

// booleanAttributes report "true" when present.
var booleanAttributes = map[string]bool{
	"async": true, "autofocus": true, "autoplay": true, "checked": true, "compact": true,
	"controls": true, "declare": true, "default": true, "defer": true, "disabled": true,
	"formnovalidate": true, "hidden": true, "ismap": true, "loop": true, "multiple": true,
	"muted": true, "nohref": true, "noresize": true, "noshade": true, "novalidate": true,
	"nowrap": true, "open": true, "readonly": true, "required": true, "reversed": true,
	"selected": true,
}

// GetAttribute returns the live value for value, checked and selected, "true"
// or "" for other boolean attributes, and the markup attribute otherwise.
// An absent attribute yields "".
func (e *WebElement) GetAttribute(ctx context.Context, name string) (string, error) {
	if err := e.check(); err != nil {
		return "", err
	}
	lname := strings.ToLower(name)
	switch lname {
	case "value", "checked", "selected":
		v, err := e.d.tr.Property(ctx, e.ref, lname)
		if err != nil {
			return "", e.d.wrap("attribute", err)
		}
		switch v := v.(type) {
		case bool:
			if v {
				return "true", nil
			}
			return "", nil
		case nil:
			// No such property; use the attribute.
		default:
			return fmt.Sprint(v), nil
		}
	}

	v, ok, err := e.d.tr.Attribute(ctx, e.ref, lname)
	if err != nil {
		return "", e.d.wrap("attribute", err)
	}
	if booleanAttributes[lname] {
		if ok {
			return "true", nil
		}
		return "", nil
	}
	return v, nil
}

// GetDOMAttribute returns the markup attribute as written.
func (e *WebElement) GetDOMAttribute(ctx context.Context, name string) (string, bool, error) {
	if err := e.check(); err != nil {
		return "", false, err
	}
	v, ok, err := e.d.tr.Attribute(ctx, e.ref, name)
	return v, ok, e.d.wrap("attribute", err)
}

// GetProperty returns a live DOM property.
func (e *WebElement) GetProperty(ctx context.Context, name string) (any, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	v, err := e.d.tr.Property(ctx, e.ref, name)
	return v, e.d.wrap("property", err)
}

func (e *WebElement) IsSelected(ctx context.Context) (bool, error) {
	info, err := e.describe(ctx)
	return info.Selected, err
}

func (e *WebElement) IsDisplayed(ctx context.Context) (bool, error) {
	info, err := e.describe(ctx)
	return info.Displayed, err
}

func (e *WebElement) IsEnabled(ctx context.Context) (bool, error) {
	info, err := e.describe(ctx)
	return info.Enabled, err
}

// Click clicks the element. Options are selected (or toggled, in a multiple
// select) directly. If the click raises a dialog the call returns and the
// click completes once the dialog is answered.
func (e *WebElement) Click(ctx context.Context) error {
	info, err := e.describe(ctx)
	if err != nil {
		return err
	}
	e.d.logger.Debug("Clicking element.", zap.Stringer("locator", e.loc), zap.String("tag", info.Tag))
	if info.Tag == "option" {
		return e.toggleOption(ctx, info)
	}
	_, err = e.d.interact(ctx, "click", func(c context.Context) error {
		return e.d.tr.Click(c, e.ref)
	})
	return err
}

func (e *WebElement) toggleOption(ctx context.Context, info transport.NodeInfo) error {
	selects, err := e.d.tr.Query(ctx, e.ec.Frame, e.ref, transport.Query{Kind: transport.QueryXPath, Expr: "ancestor::select[1]"})
	if err != nil {
		return e.d.wrap("click", err)
	}
	if len(selects) == 0 {
		return fmt.Errorf("%w: option outside a select", schemas.ErrUnsupportedOperation)
	}
	sel, err := e.d.tr.Describe(ctx, selects[0])
	if err != nil {
		return e.d.wrap("click", err)
	}
	if !sel.Enabled || !info.Enabled {
		return nil
	}
	want := true
	if sel.Multiple {
		want = !info.Selected
	}
	return e.d.setOption(ctx, e.ref, selects[0], want)
}

// setOption changes an option's selectedness and notifies the select.
func (d *Driver) setOption(ctx context.Context, option, sel transport.NodeRef, selected bool) error {
	if err := d.tr.SetProperty(ctx, option, "selected", selected); err != nil {
		return d.wrap("select option", err)
	}
	for _, ev := range []string{"input", "change"} {
		if _, err := d.interact(ctx, ev, func(c context.Context) error {
			return d.tr.DispatchEvent(c, sel, ev)
		}); err != nil {
			return err
		}
	}
	return nil
}

// SendKeys types text into the element. For file inputs text is a path,
// or several paths separated by newlines, to upload.
func (e *WebElement) SendKeys(ctx context.Context, text string) error {
	info, err := e.describe(ctx)
	if err != nil {
		return err
	}
	if info.Tag == "input" && info.Type == "file" {
		var paths []string
		for _, p := range strings.Split(text, "\n") {
			if p = strings.TrimSpace(p); p != "" {
				paths = append(paths, p)
			}
		}
		if len(paths) == 0 {
			return fmt.Errorf("%w: no file path given", schemas.ErrInvalidArgument)
		}
		e.d.logger.Debug("Uploading files.", zap.Stringer("locator", e.loc), zap.Strings("paths", paths))
		return e.d.wrap("upload", e.d.tr.SetFiles(ctx, e.ref, paths))
	}
	_, err = e.d.interact(ctx, "send keys", func(c context.Context) error {
		return e.d.tr.Type(c, e.ref, text)
	})
	return err
}

// Clear empties an editable element. Anything else is left alone.
func (e *WebElement) Clear(ctx context.Context) error {
	info, err := e.describe(ctx)
	if err != nil {
		return err
	}
	if !info.Editable {
		return nil
	}
	return e.d.wrap("clear", e.d.tr.Clear(ctx, e.ref))
}

// Submit submits the form the element belongs to.
func (e *WebElement) Submit(ctx context.Context) error {
	if err := e.check(); err != nil {
		return err
	}
	_, err := e.d.interact(ctx, "submit", func(c context.Context) error {
		return e.d.tr.Submit(c, e.ref)
	})
	return err
}
