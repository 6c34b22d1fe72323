// internal/transport/htmldoc/nodes.go
package htmldoc

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"

	"github.com/brit/playwrightium/internal/transport"
)

func (b *Browser) Describe(ctx context.Context, node transport.NodeRef) (transport.NodeInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, err := b.lookupLocked(node)
	if err != nil {
		return transport.NodeInfo{}, err
	}
	n := e.n
	info := transport.NodeInfo{
		Tag:       n.Data,
		Type:      inputType(n),
		Multiple:  hasAttr(n, "multiple"),
		Editable:  isEditable(n),
		Enabled:   isEnabled(n),
		Displayed: isDisplayed(n),
	}
	switch {
	case n.Data == "option":
		info.Selected = hasAttr(n, "selected")
		if sel := enclosing(n, "select"); sel != nil {
			info.Displayed = isDisplayed(sel)
		}
	case info.Type == "checkbox" || info.Type == "radio":
		info.Selected = hasAttr(n, "checked")
	}
	return info, nil
}

func (b *Browser) Text(ctx context.Context, node transport.NodeRef) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, err := b.lookupLocked(node)
	if err != nil {
		return "", err
	}
	return visibleText(e.n), nil
}

func (b *Browser) Attribute(ctx context.Context, node transport.NodeRef, name string) (string, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, err := b.lookupLocked(node)
	if err != nil {
		return "", false, err
	}
	v, ok := attrOK(e.n, name)
	return v, ok, nil
}

func (b *Browser) Property(ctx context.Context, node transport.NodeRef, name string) (any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, err := b.lookupLocked(node)
	if err != nil {
		return nil, err
	}
	n := e.n

	switch name {
	case "value":
		return b.valueLocked(n), nil
	case "checked":
		t := inputType(n)
		return (t == "checkbox" || t == "radio") && hasAttr(n, "checked"), nil
	case "selected":
		return n.Data == "option" && hasAttr(n, "selected"), nil
	case "disabled":
		return !isEnabled(n), nil
	case "multiple", "readOnly", "required", "hidden":
		return hasAttr(n, strings.ToLower(name)), nil
	case "tagName":
		return strings.ToUpper(n.Data), nil
	case "textContent":
		return textContent(n), nil
	case "innerText":
		return visibleText(n), nil
	case "outerHTML":
		var sb strings.Builder
		if err := html.Render(&sb, n); err != nil {
			return nil, err
		}
		return sb.String(), nil
	case "index":
		if n.Data == "option" {
			if sel := enclosing(n, "select"); sel != nil {
				for i, o := range options(sel) {
					if o == n {
						return i, nil
					}
				}
			}
		}
		return nil, nil
	}
	if v, ok := attrOK(n, name); ok {
		return v, nil
	}
	return nil, nil
}

// valueLocked mirrors the value IDL attribute of form controls.
func (b *Browser) valueLocked(n *html.Node) string {
	switch n.Data {
	case "textarea":
		return textContent(n)
	case "select":
		for _, o := range options(n) {
			if hasAttr(o, "selected") {
				return optionValue(o)
			}
		}
		return ""
	case "option":
		return optionValue(n)
	case "input":
		switch inputType(n) {
		case "checkbox", "radio":
			if v, ok := attrOK(n, "value"); ok {
				return v
			}
			return "on"
		case "file":
			if files := b.files[n]; len(files) > 0 {
				return `C:\fakepath\` + filepath.Base(files[0])
			}
			return ""
		}
	}
	return attr(n, "value")
}

func (b *Browser) SetProperty(ctx context.Context, node transport.NodeRef, name string, value any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, err := b.lookupLocked(node)
	if err != nil {
		return err
	}
	n := e.n

	switch name {
	case "value":
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("%w: value must be a string, got %T", transport.ErrUnsupported, value)
		}
		switch {
		case n.Data == "textarea":
			setText(n, s)
		case n.Data == "input" && inputType(n) != "file":
			setAttr(n, "value", s)
		default:
			return fmt.Errorf("%w: cannot set value of <%s>", transport.ErrUnsupported, n.Data)
		}
		return nil

	case "checked":
		on, ok := value.(bool)
		if !ok {
			return fmt.Errorf("%w: checked must be a bool, got %T", transport.ErrUnsupported, value)
		}
		switch inputType(n) {
		case "checkbox":
			setBoolAttr(n, "checked", on)
		case "radio":
			setChecked(e.f.root, n, on)
		default:
			return fmt.Errorf("%w: <%s> is not checkable", transport.ErrUnsupported, n.Data)
		}
		return nil

	case "selected":
		on, ok := value.(bool)
		if !ok {
			return fmt.Errorf("%w: selected must be a bool, got %T", transport.ErrUnsupported, value)
		}
		if n.Data != "option" {
			return fmt.Errorf("%w: <%s> is not an option", transport.ErrUnsupported, n.Data)
		}
		setSelected(n, on)
		return nil
	}
	return fmt.Errorf("%w: property %q", transport.ErrUnsupported, name)
}

// setChecked checks a radio button and unchecks the rest of its group.
func setChecked(root, n *html.Node, on bool) {
	if !on {
		removeAttr(n, "checked")
		return
	}
	name := attr(n, "name")
	form := enclosing(n, "form")
	if name != "" {
		walk(root, func(o *html.Node) bool {
			if o != n && inputType(o) == "radio" && attr(o, "name") == name && enclosing(o, "form") == form {
				removeAttr(o, "checked")
			}
			return true
		})
	}
	setAttr(n, "checked", "")
}

// setSelected changes an option's selectedness. Selecting an option of a
// single-select deselects its siblings.
func setSelected(o *html.Node, on bool) {
	sel := enclosing(o, "select")
	if on && sel != nil && !hasAttr(sel, "multiple") {
		for _, other := range options(sel) {
			if other != o {
				removeAttr(other, "selected")
			}
		}
	}
	setBoolAttr(o, "selected", on)
}

// DispatchEvent runs the behaviors bound to eventType on the node. Without
// a script engine there are no other listeners.
func (b *Browser) DispatchEvent(ctx context.Context, node transport.NodeRef, eventType string) error {
	return b.fire(ctx, node, eventType)
}
