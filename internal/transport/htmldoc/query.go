// internal/transport/htmldoc/query.go
package htmldoc

import (
	"context"
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/brit/playwrightium/internal/transport"
)

// Query runs one lookup pass against the frame's current document. Results
// are in document order and never include root itself.
func (b *Browser) Query(ctx context.Context, id transport.FrameID, root transport.NodeRef, q transport.Query) ([]transport.NodeRef, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := b.frameLocked(id)
	if err != nil {
		return nil, err
	}
	scope := f.root
	if root != "" {
		e, err := b.lookupLocked(root)
		if err != nil {
			return nil, err
		}
		if e.f != f {
			return nil, transport.ErrContextLost
		}
		scope = e.n
	}

	matches, err := runQuery(scope, q)
	if err != nil {
		return nil, err
	}
	refs := make([]transport.NodeRef, 0, len(matches))
	for _, n := range matches {
		refs = append(refs, b.refLocked(f, n))
	}
	return refs, nil
}

func runQuery(scope *html.Node, q transport.Query) ([]*html.Node, error) {
	switch q.Kind {
	case transport.QueryCSS:
		sel, err := cascadia.Compile(q.Expr)
		if err != nil {
			return nil, fmt.Errorf("%w: css %q: %v", transport.ErrInvalidQuery, q.Expr, err)
		}
		return goquery.NewDocumentFromNode(scope).FindMatcher(sel).Nodes, nil

	case transport.QueryXPath:
		found, err := htmlquery.QueryAll(scope, q.Expr)
		if err != nil {
			return nil, fmt.Errorf("%w: xpath %q: %v", transport.ErrInvalidQuery, q.Expr, err)
		}
		// Text and attribute results cannot become element handles.
		elems := found[:0]
		for _, n := range found {
			if n.Type == html.ElementNode && n != scope {
				elems = append(elems, n)
			}
		}
		return elems, nil

	case transport.QueryAttribute:
		if q.Name == "" {
			return nil, fmt.Errorf("%w: empty attribute name", transport.ErrInvalidQuery)
		}
		var elems []*html.Node
		walk(scope, func(n *html.Node) bool {
			if n.Type == html.ElementNode {
				if v, ok := attrOK(n, q.Name); ok && v == q.Value {
					elems = append(elems, n)
				}
			}
			return true
		})
		return elems, nil
	}
	return nil, fmt.Errorf("%w: unknown query kind %d", transport.ErrInvalidQuery, q.Kind)
}
