// internal/transport/htmldoc/browser.go
package htmldoc

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/brit/playwrightium/api/schemas"
	"github.com/brit/playwrightium/internal/transport"
)

const defaultMaxFrameDepth = 8

// Browser is a script-less headless browser. Pages are fetched over HTTP,
// parsed with x/net/html and kept as a live node tree; form controls keep
// their state in the tree itself. Dialogs can only be raised by Behaviors.
type Browser struct {
	id       string
	logger   *zap.Logger
	client   *http.Client
	maxDepth int

	behaviors []*behavior

	mu     sync.Mutex
	opened bool
	closed chan struct{}
	main   *frame
	frames map[transport.FrameID]*frame
	nodes  map[transport.NodeRef]nodeEntry
	refs   map[*html.Node]transport.NodeRef
	files  map[*html.Node][]string

	history []historyEntry
	histPos int

	dialog    *pendingDialog
	dialogSeq uint64

	nextRef atomic.Uint64
	events  *transport.Queue
}

var _ transport.Transport = (*Browser)(nil)

type frame struct {
	id       transport.FrameID
	parent   *frame
	owner    *html.Node
	name     string
	elemID   string
	url      *url.URL
	root     *html.Node
	doc      transport.DocumentID
	children []*frame
	depth    int
}

type nodeEntry struct {
	n   *html.Node
	f   *frame
	doc transport.DocumentID
}

type historyEntry struct {
	method      string
	url         string
	body        []byte
	contentType string
}

// Option configures a Browser.
type Option func(*Browser)

// WithHTTPClient replaces the default client (cookie jar, 30s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(b *Browser) { b.client = c }
}

// WithLogger sets the logger. The default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Browser) { b.logger = l }
}

// WithMaxFrameDepth limits how deep nested frames are loaded.
func WithMaxFrameDepth(depth int) Option {
	return func(b *Browser) {
		if depth > 0 {
			b.maxDepth = depth
		}
	}
}

// New creates a Browser. Open must be called before use.
func New(opts ...Option) *Browser {
	b := &Browser{
		id:       uuid.NewString(),
		logger:   zap.NewNop(),
		maxDepth: defaultMaxFrameDepth,
		closed:   make(chan struct{}),
		frames:   make(map[transport.FrameID]*frame),
		nodes:    make(map[transport.NodeRef]nodeEntry),
		refs:     make(map[*html.Node]transport.NodeRef),
		files:    make(map[*html.Node][]string),
		events:   transport.NewQueue(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.client == nil {
		jar, _ := cookiejar.New(nil)
		b.client = &http.Client{Jar: jar, Timeout: 30 * time.Second}
	}
	b.logger = b.logger.Named("htmldoc").With(zap.String("browser_id", b.id))
	return b
}

// Open loads about:blank into the main frame.
func (b *Browser) Open(ctx context.Context) error {
	b.mu.Lock()
	if b.opened {
		b.mu.Unlock()
		return nil
	}
	select {
	case <-b.closed:
		b.mu.Unlock()
		return transport.ErrTargetClosed
	default:
	}
	b.opened = true
	b.main = &frame{id: transport.FrameID(uuid.NewString())}
	b.frames[b.main.id] = b.main
	b.mu.Unlock()

	return b.navigateFrame(ctx, b.main, historyEntry{method: http.MethodGet, url: "about:blank"}, true)
}

// Close releases the browser. Any click blocked on a dialog returns
// ErrTargetClosed.
func (b *Browser) Close(ctx context.Context) error {
	b.mu.Lock()
	select {
	case <-b.closed:
		b.mu.Unlock()
		return nil
	default:
	}
	close(b.closed)
	b.frames = make(map[transport.FrameID]*frame)
	b.nodes = make(map[transport.NodeRef]nodeEntry)
	b.refs = make(map[*html.Node]transport.NodeRef)
	b.files = make(map[*html.Node][]string)
	b.dialog = nil
	b.mu.Unlock()

	b.events.Post(transport.Event{Kind: transport.EventTargetClosed})
	b.events.Close()
	b.client.CloseIdleConnections()
	b.logger.Debug("Browser closed.")
	return nil
}

func (b *Browser) Events() <-chan transport.Event { return b.events.C() }

func (b *Browser) MainFrame() transport.FrameID {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.main == nil {
		return ""
	}
	return b.main.id
}

func (b *Browser) Navigate(ctx context.Context, rawURL string) error {
	main, err := b.mainFrame()
	if err != nil {
		return err
	}
	u, err := b.resolveURL(main, rawURL)
	if err != nil {
		return err
	}
	return b.navigateFrame(ctx, main, historyEntry{method: http.MethodGet, url: u.String()}, true)
}

func (b *Browser) Back(ctx context.Context) error    { return b.traverse(ctx, -1) }
func (b *Browser) Forward(ctx context.Context) error { return b.traverse(ctx, 1) }
func (b *Browser) Reload(ctx context.Context) error  { return b.traverse(ctx, 0) }

func (b *Browser) traverse(ctx context.Context, delta int) error {
	main, err := b.mainFrame()
	if err != nil {
		return err
	}
	b.mu.Lock()
	pos := b.histPos + delta
	if pos < 0 || pos >= len(b.history) {
		b.mu.Unlock()
		return nil
	}
	entry := b.history[pos]
	b.mu.Unlock()

	if err := b.navigateFrame(ctx, main, entry, false); err != nil {
		return err
	}
	b.mu.Lock()
	b.histPos = pos
	b.mu.Unlock()
	return nil
}

func (b *Browser) CurrentURL(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkOpenLocked(); err != nil {
		return "", err
	}
	return b.main.url.String(), nil
}

func (b *Browser) Title(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkOpenLocked(); err != nil {
		return "", err
	}
	title := findFirst(b.main.root, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "title"
	})
	if title == nil {
		return "", nil
	}
	return strings.TrimSpace(collapseSpace(textContent(title))), nil
}

func (b *Browser) PageSource(ctx context.Context, id transport.FrameID) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	f, err := b.frameLocked(id)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	if err := html.Render(&sb, f.root); err != nil {
		return "", fmt.Errorf("failed to render document: %w", err)
	}
	return sb.String(), nil
}

func (b *Browser) Document(ctx context.Context, id transport.FrameID) (transport.DocumentID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	f, err := b.frameLocked(id)
	if err != nil {
		return "", err
	}
	return f.doc, nil
}

func (b *Browser) Frames(ctx context.Context, parent transport.FrameID) ([]transport.FrameInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	f, err := b.frameLocked(parent)
	if err != nil {
		return nil, err
	}
	infos := make([]transport.FrameInfo, 0, len(f.children))
	for _, c := range f.children {
		infos = append(infos, transport.FrameInfo{ID: c.id, Name: c.name, ElementID: c.elemID})
	}
	return infos, nil
}

func (b *Browser) FrameOf(ctx context.Context, node transport.NodeRef) (transport.FrameID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, err := b.lookupLocked(node)
	if err != nil {
		return "", err
	}
	for _, c := range e.f.children {
		if c.owner == e.n {
			return c.id, nil
		}
	}
	return "", transport.ErrNoSuchFrame
}

// Evaluate is not available: the browser has no script engine.
func (b *Browser) Evaluate(ctx context.Context, id transport.FrameID, script string, out any) error {
	return fmt.Errorf("%w: script evaluation requires a script engine", transport.ErrUnsupported)
}

func (b *Browser) mainFrame() (*frame, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkOpenLocked(); err != nil {
		return nil, err
	}
	return b.main, nil
}

func (b *Browser) checkOpenLocked() error {
	select {
	case <-b.closed:
		return transport.ErrTargetClosed
	default:
	}
	if !b.opened || b.main == nil || b.main.root == nil {
		return transport.ErrTargetClosed
	}
	return nil
}

func (b *Browser) frameLocked(id transport.FrameID) (*frame, error) {
	if err := b.checkOpenLocked(); err != nil {
		return nil, err
	}
	f, ok := b.frames[id]
	if !ok || f.root == nil {
		return nil, transport.ErrNoSuchFrame
	}
	return f, nil
}

// lookupLocked resolves a node reference. A reference into a document that
// has since been replaced reports ErrContextLost.
func (b *Browser) lookupLocked(ref transport.NodeRef) (nodeEntry, error) {
	if err := b.checkOpenLocked(); err != nil {
		return nodeEntry{}, err
	}
	e, ok := b.nodes[ref]
	if !ok {
		return nodeEntry{}, transport.ErrContextLost
	}
	if cur, ok := b.frames[e.f.id]; !ok || cur != e.f || e.f.doc != e.doc {
		return nodeEntry{}, transport.ErrContextLost
	}
	if !attached(e.n) {
		return nodeEntry{}, transport.ErrContextLost
	}
	return e, nil
}

func (b *Browser) refLocked(f *frame, n *html.Node) transport.NodeRef {
	if ref, ok := b.refs[n]; ok {
		return ref
	}
	ref := transport.NodeRef(string(f.doc[:8]) + "." + strconv.FormatUint(b.nextRef.Add(1), 10))
	b.refs[n] = ref
	b.nodes[ref] = nodeEntry{n: n, f: f, doc: f.doc}
	return ref
}

func (b *Browser) resolveURL(f *frame, raw string) (*url.URL, error) {
	ref, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if f != nil && f.url != nil && f.url.Scheme != "about" {
		return f.url.ResolveReference(ref), nil
	}
	if !ref.IsAbs() {
		return nil, fmt.Errorf("invalid url %q: not absolute", raw)
	}
	return ref, nil
}

// attached reports whether n is still connected to a document node.
func attached(n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n.Type == html.DocumentNode {
			return true
		}
	}
	return false
}

type pendingDialog struct {
	info  schemas.Dialog
	frame transport.FrameID
	reply chan dialogReply
}

type dialogReply struct {
	accept bool
	text   string
}
