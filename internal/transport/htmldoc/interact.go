// internal/transport/htmldoc/interact.go
package htmldoc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/brit/playwrightium/internal/transport"
)

var errNotInteractable = fmt.Errorf("%w: element is not interactable", transport.ErrUnsupported)

// Click runs click behaviors and then the element's activation behavior:
// toggling checkable inputs, selecting options, submitting forms and
// following links.
func (b *Browser) Click(ctx context.Context, node transport.NodeRef) error {
	if err := b.fire(ctx, node, "click"); err != nil {
		return err
	}

	b.mu.Lock()
	e, err := b.lookupLocked(node)
	if err != nil {
		b.mu.Unlock()
		// The handler replaced the document; there is nothing left to activate.
		if errors.Is(err, transport.ErrContextLost) {
			return nil
		}
		return err
	}
	n := e.n
	if !isEnabled(n) {
		b.mu.Unlock()
		return nil
	}

	switch {
	case inputType(n) == "checkbox":
		setBoolAttr(n, "checked", !hasAttr(n, "checked"))
		b.mu.Unlock()
		return b.fire(ctx, node, "change")

	case inputType(n) == "radio":
		setChecked(e.f.root, n, true)
		b.mu.Unlock()
		return b.fire(ctx, node, "change")

	case n.Data == "option":
		sel := enclosing(n, "select")
		if sel != nil && hasAttr(sel, "multiple") {
			setSelected(n, !hasAttr(n, "selected"))
		} else {
			setSelected(n, true)
		}
		b.mu.Unlock()
		return b.fire(ctx, node, "change")

	case isSubmitter(n):
		form := formOwner(n)
		if form == nil {
			b.mu.Unlock()
			return nil
		}
		sub, err := b.buildSubmissionLocked(e.f, form, n)
		b.mu.Unlock()
		if err != nil {
			return err
		}
		return b.submit(ctx, e.f, sub)

	case n.Data == "a" && hasAttr(n, "href"):
		href := attr(n, "href")
		f := e.f
		b.mu.Unlock()
		if strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
			return nil
		}
		u, err := b.resolveURL(f, href)
		if err != nil {
			return err
		}
		return b.navigateFrame(ctx, f, historyEntry{method: http.MethodGet, url: u.String()}, f.parent == nil)
	}
	b.mu.Unlock()
	return nil
}

func (b *Browser) Submit(ctx context.Context, node transport.NodeRef) error {
	b.mu.Lock()
	e, err := b.lookupLocked(node)
	if err != nil {
		b.mu.Unlock()
		return err
	}
	form := e.n
	if form.Data != "form" {
		form = formOwner(e.n)
	}
	if form == nil {
		b.mu.Unlock()
		return fmt.Errorf("%w: element is not in a form", transport.ErrUnsupported)
	}
	sub, err := b.buildSubmissionLocked(e.f, form, nil)
	b.mu.Unlock()
	if err != nil {
		return err
	}
	return b.submit(ctx, e.f, sub)
}

// Type appends text to an editable control. A newline in a single-line
// input acts as the Enter key and submits the owning form.
func (b *Browser) Type(ctx context.Context, node transport.NodeRef, text string) error {
	b.mu.Lock()
	e, err := b.lookupLocked(node)
	if err != nil {
		b.mu.Unlock()
		return err
	}
	n := e.n
	if !isEditable(n) {
		b.mu.Unlock()
		return errNotInteractable
	}

	enter := false
	if n.Data == "textarea" {
		setText(n, textContent(n)+text)
	} else {
		if strings.ContainsAny(text, "\r\n") {
			enter = true
			text = strings.NewReplacer("\r", "", "\n", "").Replace(text)
		}
		value := attr(n, "value") + text
		if limit := maxLength(n); limit >= 0 && len([]rune(value)) > limit {
			value = string([]rune(value)[:limit])
		}
		setAttr(n, "value", value)
	}

	var sub *submission
	if enter {
		if form := formOwner(n); form != nil {
			sub, err = b.buildSubmissionLocked(e.f, form, nil)
		}
	}
	b.mu.Unlock()
	if err != nil {
		return err
	}

	if err := b.fire(ctx, node, "input"); err != nil {
		return err
	}
	if sub != nil {
		return b.submit(ctx, e.f, sub)
	}
	return nil
}

// Clear empties an editable control. Anything else is left untouched.
func (b *Browser) Clear(ctx context.Context, node transport.NodeRef) error {
	b.mu.Lock()
	e, err := b.lookupLocked(node)
	if err != nil {
		b.mu.Unlock()
		return err
	}
	if !isEditable(e.n) {
		b.mu.Unlock()
		return nil
	}
	if e.n.Data == "textarea" {
		setText(e.n, "")
	} else {
		setAttr(e.n, "value", "")
	}
	b.mu.Unlock()
	return b.fire(ctx, node, "change")
}

func (b *Browser) SetFiles(ctx context.Context, node transport.NodeRef, paths []string) error {
	b.mu.Lock()
	e, err := b.lookupLocked(node)
	if err != nil {
		b.mu.Unlock()
		return err
	}
	n := e.n
	if inputType(n) != "file" || !isEnabled(n) {
		b.mu.Unlock()
		return errNotInteractable
	}
	if len(paths) > 1 && !hasAttr(n, "multiple") {
		b.mu.Unlock()
		return fmt.Errorf("%w: input accepts a single file", transport.ErrUnsupported)
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			b.mu.Unlock()
			return fmt.Errorf("cannot upload %q: %w", p, err)
		}
	}
	b.files[n] = append([]string(nil), paths...)
	b.mu.Unlock()
	return b.fire(ctx, node, "change")
}

func maxLength(n *html.Node) int {
	v, ok := attrOK(n, "maxlength")
	if !ok {
		return -1
	}
	var limit int
	if _, err := fmt.Sscanf(v, "%d", &limit); err != nil || limit < 0 {
		return -1
	}
	return limit
}

func isSubmitter(n *html.Node) bool {
	switch n.Data {
	case "input":
		t := inputType(n)
		return t == "submit" || t == "image"
	case "button":
		t := strings.ToLower(attr(n, "type"))
		return t == "" || t == "submit"
	}
	return false
}

func formOwner(n *html.Node) *html.Node {
	if id, ok := attrOK(n, "form"); ok && id != "" {
		root := n
		for root.Parent != nil {
			root = root.Parent
		}
		return findFirst(root, func(c *html.Node) bool {
			return c.Type == html.ElementNode && c.Data == "form" && attr(c, "id") == id
		})
	}
	return enclosing(n, "form")
}

type formField struct {
	name  string
	value string
	files []string
	file  bool
}

type submission struct {
	method  string
	action  *url.URL
	enctype string
	fields  []formField
}

// buildSubmissionLocked collects the form data set in tree order.
func (b *Browser) buildSubmissionLocked(f *frame, form, submitter *html.Node) (*submission, error) {
	action := attr(form, "action")
	if submitter != nil {
		if v, ok := attrOK(submitter, "formaction"); ok {
			action = v
		}
	}
	var u *url.URL
	var err error
	if strings.TrimSpace(action) == "" {
		u = f.url
	} else if u, err = b.resolveURL(f, action); err != nil {
		return nil, err
	}

	sub := &submission{
		method:  strings.ToUpper(attr(form, "method")),
		action:  u,
		enctype: strings.ToLower(attr(form, "enctype")),
	}
	if sub.method != http.MethodPost {
		sub.method = http.MethodGet
	}

	root := form
	for root.Parent != nil {
		root = root.Parent
	}
	walk(root, func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return true
		}
		switch n.Data {
		case "input", "textarea", "select", "button":
		default:
			return true
		}
		if formOwner(n) != form || !isEnabled(n) {
			return false
		}
		name := attr(n, "name")
		if name == "" {
			return false
		}
		switch n.Data {
		case "textarea":
			sub.fields = append(sub.fields, formField{name: name, value: textContent(n)})
		case "select":
			for _, o := range options(n) {
				if hasAttr(o, "selected") && isEnabled(o) {
					sub.fields = append(sub.fields, formField{name: name, value: optionValue(o)})
				}
			}
		case "button":
			if n == submitter {
				sub.fields = append(sub.fields, formField{name: name, value: attr(n, "value")})
			}
		case "input":
			switch inputType(n) {
			case "submit", "image":
				if n == submitter {
					sub.fields = append(sub.fields, formField{name: name, value: attr(n, "value")})
				}
			case "checkbox", "radio":
				if hasAttr(n, "checked") {
					sub.fields = append(sub.fields, formField{name: name, value: b.valueLocked(n)})
				}
			case "file":
				sub.fields = append(sub.fields, formField{name: name, files: b.files[n], file: true})
			case "reset", "button":
			default:
				sub.fields = append(sub.fields, formField{name: name, value: attr(n, "value")})
			}
		}
		return false
	})
	return sub, nil
}

// submit encodes the form data set and navigates the frame to the result.
func (b *Browser) submit(ctx context.Context, f *frame, sub *submission) error {
	entry := historyEntry{method: sub.method}
	switch {
	case sub.method == http.MethodGet:
		u := *sub.action
		u.RawQuery = urlEncode(sub.fields)
		entry.url = u.String()

	case sub.enctype == "multipart/form-data":
		body, contentType, err := multipartEncode(sub.fields)
		if err != nil {
			return err
		}
		entry.url = sub.action.String()
		entry.body = body
		entry.contentType = contentType

	default:
		entry.url = sub.action.String()
		entry.body = []byte(urlEncode(sub.fields))
		entry.contentType = "application/x-www-form-urlencoded"
	}

	b.logger.Debug("Submitting form.", zap.String("method", entry.method), zap.String("action", entry.url))
	return b.navigateFrame(ctx, f, entry, f.parent == nil)
}

func urlEncode(fields []formField) string {
	var parts []string
	for _, fl := range fields {
		if fl.file {
			name := ""
			if len(fl.files) > 0 {
				name = filepath.Base(fl.files[0])
			}
			parts = append(parts, url.QueryEscape(fl.name)+"="+url.QueryEscape(name))
			continue
		}
		parts = append(parts, url.QueryEscape(fl.name)+"="+url.QueryEscape(fl.value))
	}
	return strings.Join(parts, "&")
}

func multipartEncode(fields []formField) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, fl := range fields {
		if !fl.file {
			if err := w.WriteField(fl.name, fl.value); err != nil {
				return nil, "", err
			}
			continue
		}
		if len(fl.files) == 0 {
			if _, err := w.CreateFormFile(fl.name, ""); err != nil {
				return nil, "", err
			}
			continue
		}
		for _, p := range fl.files {
			if err := writeFilePart(w, fl.name, p); err != nil {
				return nil, "", err
			}
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func writeFilePart(w *multipart.Writer, field, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("cannot upload %q: %w", path, err)
	}
	defer src.Close()
	part, err := w.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return err
	}
	_, err = io.Copy(part, src)
	return err
}
