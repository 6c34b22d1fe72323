// internal/transport/htmldoc/load.go
package htmldoc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/brit/playwrightium/internal/transport"
)

const maxBodySize = 16 << 20

const blankDocument = "<html><head></head><body></body></html>"

// navigateFrame loads entry into f, replaces the frame's document and then
// loads its child frames. The lock is not held during network I/O.
func (b *Browser) navigateFrame(ctx context.Context, f *frame, entry historyEntry, record bool) error {
	root, final, err := b.fetch(ctx, entry)
	if err != nil {
		return err
	}
	return b.commit(ctx, f, root, final, entry, record)
}

func (b *Browser) commit(ctx context.Context, f *frame, root *html.Node, final *url.URL, entry historyEntry, record bool) error {
	b.mu.Lock()
	select {
	case <-b.closed:
		b.mu.Unlock()
		return transport.ErrTargetClosed
	default:
	}
	if cur, ok := b.frames[f.id]; !ok || cur != f {
		b.mu.Unlock()
		return transport.ErrNoSuchFrame
	}

	detached := b.installLocked(f, root, final)
	if record && f == b.main {
		if b.histPos < len(b.history)-1 {
			b.history = b.history[:b.histPos+1]
		}
		entry.url = final.String()
		b.history = append(b.history, entry)
		b.histPos = len(b.history) - 1
	}
	children := b.discoverFramesLocked(f)
	doc := f.doc
	isMain := f == b.main
	b.mu.Unlock()

	for _, id := range detached {
		b.events.Post(transport.Event{Kind: transport.EventFrameDetached, Frame: id})
	}
	b.events.Post(transport.Event{Kind: transport.EventFrameNavigated, Frame: f.id, Document: doc, Main: isMain})
	b.logger.Debug("Frame navigated.",
		zap.String("frame", string(f.id)),
		zap.String("url", final.String()),
		zap.Bool("main", isMain))

	for _, c := range children {
		if err := b.loadChild(ctx, c); err != nil {
			// A broken subframe does not fail the parent navigation.
			b.logger.Warn("Failed to load frame.",
				zap.String("frame", string(c.id)),
				zap.String("name", c.name),
				zap.Error(err))
		}
	}
	return nil
}

// installLocked swaps in a new document and forgets everything that hung off
// the old one. It returns the IDs of the frames that were detached.
func (b *Browser) installLocked(f *frame, root *html.Node, u *url.URL) []transport.FrameID {
	var detached []transport.FrameID
	for _, c := range f.children {
		detached = append(detached, b.detachLocked(c)...)
	}
	f.children = nil

	if f.root != nil {
		b.forgetLocked(f.doc)
	}
	f.root = root
	f.url = u
	f.doc = transport.DocumentID(uuid.NewString())
	normalizeSelects(root)
	return detached
}

func (b *Browser) detachLocked(f *frame) []transport.FrameID {
	var ids []transport.FrameID
	for _, c := range f.children {
		ids = append(ids, b.detachLocked(c)...)
	}
	if f.root != nil {
		b.forgetLocked(f.doc)
	}
	delete(b.frames, f.id)
	return append(ids, f.id)
}

func (b *Browser) forgetLocked(doc transport.DocumentID) {
	for ref, e := range b.nodes {
		if e.doc == doc {
			delete(b.nodes, ref)
			delete(b.refs, e.n)
			delete(b.files, e.n)
		}
	}
}

// discoverFramesLocked registers a child frame for every frame and iframe
// element of f's document, in document order.
func (b *Browser) discoverFramesLocked(f *frame) []*frame {
	if f.depth >= b.maxDepth {
		return nil
	}
	walk(f.root, func(n *html.Node) bool {
		if n.Type != html.ElementNode || (n.Data != "frame" && n.Data != "iframe") {
			return true
		}
		c := &frame{
			id:     transport.FrameID(uuid.NewString()),
			parent: f,
			owner:  n,
			name:   attr(n, "name"),
			elemID: attr(n, "id"),
			depth:  f.depth + 1,
		}
		f.children = append(f.children, c)
		b.frames[c.id] = c
		return false
	})
	return f.children
}

func (b *Browser) loadChild(ctx context.Context, c *frame) error {
	if srcdoc, ok := attrOK(c.owner, "srcdoc"); ok {
		root, err := html.Parse(strings.NewReader(srcdoc))
		if err != nil {
			return fmt.Errorf("failed to parse srcdoc: %w", err)
		}
		u, _ := url.Parse("about:srcdoc")
		return b.commit(ctx, c, root, u, historyEntry{}, false)
	}

	src := strings.TrimSpace(attr(c.owner, "src"))
	if src == "" {
		src = "about:blank"
	}
	u, err := b.resolveURL(c.parent, src)
	if err != nil {
		return err
	}
	return b.navigateFrame(ctx, c, historyEntry{method: http.MethodGet, url: u.String()}, false)
}

// fetch retrieves and parses a document. It returns the final URL after
// redirects.
func (b *Browser) fetch(ctx context.Context, entry historyEntry) (*html.Node, *url.URL, error) {
	u, err := url.Parse(entry.url)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid url %q: %w", entry.url, err)
	}

	var body io.Reader
	switch u.Scheme {
	case "about":
		body = strings.NewReader(blankDocument)
	case "file":
		data, err := os.ReadFile(u.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read %s: %w", u.Path, err)
		}
		body = bytes.NewReader(data)
	case "http", "https":
		resp, err := b.do(ctx, entry)
		if err != nil {
			return nil, nil, err
		}
		defer resp.Body.Close()
		u = resp.Request.URL
		body = io.LimitReader(resp.Body, maxBodySize)
	default:
		return nil, nil, fmt.Errorf("%w: url scheme %q", transport.ErrUnsupported, u.Scheme)
	}

	root, err := html.Parse(body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse %s: %w", u, err)
	}
	return root, u, nil
}

func (b *Browser) do(ctx context.Context, entry historyEntry) (*http.Response, error) {
	method := entry.method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if entry.body != nil {
		body = bytes.NewReader(entry.body)
	}
	req, err := http.NewRequestWithContext(ctx, method, entry.url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if entry.contentType != "" {
		req.Header.Set("Content-Type", entry.contentType)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", entry.url, err)
	}
	b.logger.Debug("Fetched document.",
		zap.String("method", method),
		zap.String("url", entry.url),
		zap.Int("status", resp.StatusCode))
	return resp, nil
}

// normalizeSelects gives every single-select exactly one selected option,
// as a browser does when it first renders the control.
func normalizeSelects(root *html.Node) {
	walk(root, func(n *html.Node) bool {
		if n.Type != html.ElementNode || n.Data != "select" {
			return true
		}
		if hasAttr(n, "multiple") {
			return false
		}
		opts := options(n)
		var last *html.Node
		for _, o := range opts {
			if hasAttr(o, "selected") {
				if last != nil {
					removeAttr(last, "selected")
				}
				last = o
			}
		}
		if last == nil && len(opts) > 0 {
			setAttr(opts[0], "selected", "")
		}
		return false
	})
}
