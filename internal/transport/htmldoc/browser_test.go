// internal/transport/htmldoc/browser_test.go
package htmldoc

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/net/html"

	"github.com/brit/playwrightium/api/schemas"
	"github.com/brit/playwrightium/internal/transport"
)

// createStaticTestServer serves a fixed set of pages keyed by path.
func createStaticTestServer(t *testing.T, pages map[string]string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestBrowser(t *testing.T, opts ...Option) (*Browser, context.Context) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	b := New(append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)...)
	go func() {
		// Drain events so the queue never builds up during tests that ignore them.
		for range b.Events() {
		}
	}()
	require.NoError(t, b.Open(ctx))
	t.Cleanup(func() { _ = b.Close(context.Background()) })
	return b, ctx
}

func queryOne(t *testing.T, ctx context.Context, b *Browser, q transport.Query) transport.NodeRef {
	t.Helper()
	refs, err := b.Query(ctx, b.MainFrame(), "", q)
	require.NoError(t, err)
	require.NotEmpty(t, refs, "query %+v matched nothing", q)
	return refs[0]
}

const queryPage = `<html><head><title> Query   Page </title></head><body>
<div id="user">first</div>
<div id="username">second</div>
<p class="item" name="entry">one</p>
<p class="item" name="entry">two</p>
<p class="item" name="entry-x">three</p>
<span hidden>invisible</span>
</body></html>`

func TestBrowserQuery(t *testing.T) {
	server := createStaticTestServer(t, map[string]string{"/": queryPage})
	b, ctx := newTestBrowser(t)
	require.NoError(t, b.Navigate(ctx, server.URL+"/"))

	title, err := b.Title(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Query Page", title)

	t.Run("AttributeMatchIsExact", func(t *testing.T) {
		refs, err := b.Query(ctx, b.MainFrame(), "", transport.Query{Kind: transport.QueryAttribute, Name: "id", Value: "user"})
		require.NoError(t, err)
		require.Len(t, refs, 1)
		text, err := b.Text(ctx, refs[0])
		require.NoError(t, err)
		assert.Equal(t, "first", text)

		refs, err = b.Query(ctx, b.MainFrame(), "", transport.Query{Kind: transport.QueryAttribute, Name: "name", Value: "entry"})
		require.NoError(t, err)
		assert.Len(t, refs, 2)
	})

	t.Run("CSSInDocumentOrder", func(t *testing.T) {
		refs, err := b.Query(ctx, b.MainFrame(), "", transport.Query{Kind: transport.QueryCSS, Expr: "p.item"})
		require.NoError(t, err)
		require.Len(t, refs, 3)
		var texts []string
		for _, r := range refs {
			text, err := b.Text(ctx, r)
			require.NoError(t, err)
			texts = append(texts, text)
		}
		assert.Equal(t, []string{"one", "two", "three"}, texts)
	})

	t.Run("XPathElementsOnly", func(t *testing.T) {
		refs, err := b.Query(ctx, b.MainFrame(), "", transport.Query{Kind: transport.QueryXPath, Expr: "//p[@name='entry']"})
		require.NoError(t, err)
		assert.Len(t, refs, 2)

		refs, err = b.Query(ctx, b.MainFrame(), "", transport.Query{Kind: transport.QueryXPath, Expr: "//p/text()"})
		require.NoError(t, err)
		assert.Empty(t, refs)
	})

	t.Run("SameNodeSameRef", func(t *testing.T) {
		a := queryOne(t, ctx, b, transport.Query{Kind: transport.QueryCSS, Expr: "#user"})
		c := queryOne(t, ctx, b, transport.Query{Kind: transport.QueryXPath, Expr: "//div[@id='user']"})
		assert.Equal(t, a, c)
	})

	t.Run("InvalidQueries", func(t *testing.T) {
		_, err := b.Query(ctx, b.MainFrame(), "", transport.Query{Kind: transport.QueryCSS, Expr: "p[["})
		assert.ErrorIs(t, err, transport.ErrInvalidQuery)
		_, err = b.Query(ctx, b.MainFrame(), "", transport.Query{Kind: transport.QueryXPath, Expr: "//p[@"})
		assert.ErrorIs(t, err, transport.ErrInvalidQuery)
	})

	t.Run("Displayed", func(t *testing.T) {
		span := queryOne(t, ctx, b, transport.Query{Kind: transport.QueryCSS, Expr: "span"})
		info, err := b.Describe(ctx, span)
		require.NoError(t, err)
		assert.False(t, info.Displayed)
		text, err := b.Text(ctx, span)
		require.NoError(t, err)
		assert.Empty(t, text)
	})

	t.Run("UnknownFrame", func(t *testing.T) {
		_, err := b.Query(ctx, "nope", "", transport.Query{Kind: transport.QueryCSS, Expr: "p"})
		assert.ErrorIs(t, err, transport.ErrNoSuchFrame)
	})
}

func TestBrowserNavigationInvalidatesRefs(t *testing.T) {
	server := createStaticTestServer(t, map[string]string{
		"/one": `<html><body><a id="next" href="/two">next</a></body></html>`,
		"/two": `<html><body><h1>Two</h1></body></html>`,
	})
	b, ctx := newTestBrowser(t)
	require.NoError(t, b.Navigate(ctx, server.URL+"/one"))

	link := queryOne(t, ctx, b, transport.Query{Kind: transport.QueryCSS, Expr: "#next"})
	before, err := b.Document(ctx, b.MainFrame())
	require.NoError(t, err)

	require.NoError(t, b.Click(ctx, link))

	after, err := b.Document(ctx, b.MainFrame())
	require.NoError(t, err)
	assert.NotEqual(t, before, after)

	_, err = b.Text(ctx, link)
	assert.ErrorIs(t, err, transport.ErrContextLost)

	current, err := b.CurrentURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/two", current)

	t.Run("History", func(t *testing.T) {
		require.NoError(t, b.Back(ctx))
		current, err := b.CurrentURL(ctx)
		require.NoError(t, err)
		assert.Equal(t, server.URL+"/one", current)

		require.NoError(t, b.Forward(ctx))
		current, err = b.CurrentURL(ctx)
		require.NoError(t, err)
		assert.Equal(t, server.URL+"/two", current)
	})
}

func TestBrowserFrames(t *testing.T) {
	server := createStaticTestServer(t, map[string]string{
		"/": `<html><body>
<iframe name="a" id="frame-a" src="/a"></iframe>
<iframe name="b" srcdoc="&lt;p&gt;inline&lt;/p&gt;"></iframe>
</body></html>`,
		"/a": `<html><body><h1>A</h1><iframe name="nested" src="/nested"></iframe></body></html>`,
		"/nested": `<html><body><h1>Nested</h1></body></html>`,
	})
	b, ctx := newTestBrowser(t)
	require.NoError(t, b.Navigate(ctx, server.URL+"/"))

	frames, err := b.Frames(ctx, b.MainFrame())
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, "a", frames[0].Name)
	assert.Equal(t, "frame-a", frames[0].ElementID)
	assert.Equal(t, "b", frames[1].Name)

	t.Run("FrameOf", func(t *testing.T) {
		el := queryOne(t, ctx, b, transport.Query{Kind: transport.QueryCSS, Expr: "#frame-a"})
		id, err := b.FrameOf(ctx, el)
		require.NoError(t, err)
		assert.Equal(t, frames[0].ID, id)

		body := queryOne(t, ctx, b, transport.Query{Kind: transport.QueryCSS, Expr: "body"})
		_, err = b.FrameOf(ctx, body)
		assert.ErrorIs(t, err, transport.ErrNoSuchFrame)
	})

	t.Run("QueriesAreScopedToFrame", func(t *testing.T) {
		refs, err := b.Query(ctx, frames[0].ID, "", transport.Query{Kind: transport.QueryXPath, Expr: "//h1"})
		require.NoError(t, err)
		require.Len(t, refs, 1)
		text, err := b.Text(ctx, refs[0])
		require.NoError(t, err)
		assert.Equal(t, "A", text)

		refs, err = b.Query(ctx, b.MainFrame(), "", transport.Query{Kind: transport.QueryXPath, Expr: "//h1"})
		require.NoError(t, err)
		assert.Empty(t, refs)

		refs, err = b.Query(ctx, frames[1].ID, "", transport.Query{Kind: transport.QueryCSS, Expr: "p"})
		require.NoError(t, err)
		assert.Len(t, refs, 1)
	})

	t.Run("NestedFrames", func(t *testing.T) {
		nested, err := b.Frames(ctx, frames[0].ID)
		require.NoError(t, err)
		require.Len(t, nested, 1)
		assert.Equal(t, "nested", nested[0].Name)
	})

	t.Run("NavigationDetachesFrames", func(t *testing.T) {
		require.NoError(t, b.Navigate(ctx, server.URL+"/nested"))
		_, err := b.Document(ctx, frames[0].ID)
		assert.ErrorIs(t, err, transport.ErrNoSuchFrame)
	})
}

func TestBrowserFormSubmission(t *testing.T) {
	var mu sync.Mutex
	var got map[string][]string
	var uploaded string

	mux := http.NewServeMux()
	mux.HandleFunc("/form", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><form action="/submit" method="post" enctype="multipart/form-data">
<input type="text" name="user" maxlength="5">
<textarea name="comments">Comments...</textarea>
<input type="checkbox" name="cb" value="cb1">
<input type="checkbox" name="cb" value="cb2" checked>
<input type="radio" name="rd" value="rd1" checked>
<input type="radio" name="rd" value="rd2">
<select name="single"><option value="s1">One</option><option value="s2">Two</option></select>
<select name="multi" multiple><option value="m1" selected>M1</option><option value="m2">M2</option></select>
<input type="file" name="upload">
<input type="text" name="off" value="x" disabled>
<input type="submit" name="go" value="Go">
</form></body></html>`)
	})
	mux.HandleFunc("/submit", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mu.Lock()
		got = r.MultipartForm.Value
		if fhs := r.MultipartForm.File["upload"]; len(fhs) > 0 {
			f, _ := fhs[0].Open()
			buf := make([]byte, 64)
			n, _ := f.Read(buf)
			f.Close()
			uploaded = fhs[0].Filename + ":" + string(buf[:n])
		}
		mu.Unlock()
		fmt.Fprint(w, `<html><body><h1>Done</h1></body></html>`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	file := filepath.Join(t.TempDir(), "upload.txt")
	require.NoError(t, os.WriteFile(file, []byte("payload"), 0o600))

	b, ctx := newTestBrowser(t)
	require.NoError(t, b.Navigate(ctx, server.URL+"/form"))
	q := func(css string) transport.NodeRef {
		return queryOne(t, ctx, b, transport.Query{Kind: transport.QueryCSS, Expr: css})
	}

	require.NoError(t, b.Type(ctx, q("input[name=user]"), "alice123"))
	v, err := b.Property(ctx, q("input[name=user]"), "value")
	require.NoError(t, err)
	assert.Equal(t, "alice", v, "maxlength truncates typed text")

	require.NoError(t, b.Clear(ctx, q("textarea")))
	require.NoError(t, b.Type(ctx, q("textarea"), "hello"))
	require.NoError(t, b.Click(ctx, q("input[value=cb1]")))
	require.NoError(t, b.Click(ctx, q("input[value=cb2]")))
	require.NoError(t, b.Click(ctx, q("input[value=rd2]")))
	require.NoError(t, b.SetProperty(ctx, q("option[value=s2]"), "selected", true))
	require.NoError(t, b.Click(ctx, q("option[value=m2]")))
	require.NoError(t, b.SetFiles(ctx, q("input[type=file]"), []string{file}))

	info, err := b.Describe(ctx, q("input[value=rd1]"))
	require.NoError(t, err)
	assert.False(t, info.Selected, "checking a radio unchecks its group")

	assert.ErrorIs(t, b.Type(ctx, q("input[name=off]"), "y"), transport.ErrUnsupported)
	assert.ErrorIs(t, b.SetFiles(ctx, q("input[type=file]"), []string{file, file}), transport.ErrUnsupported)

	require.NoError(t, b.Click(ctx, q("input[type=submit]")))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"alice"}, got["user"])
	assert.Equal(t, []string{"hello"}, got["comments"])
	assert.Equal(t, []string{"cb1"}, got["cb"])
	assert.Equal(t, []string{"rd2"}, got["rd"])
	assert.Equal(t, []string{"s2"}, got["single"])
	assert.Equal(t, []string{"m1", "m2"}, got["multi"])
	assert.Equal(t, []string{"Go"}, got["go"])
	assert.NotContains(t, got, "off")
	assert.Equal(t, "upload.txt:payload", uploaded)

	title := queryOne(t, ctx, b, transport.Query{Kind: transport.QueryCSS, Expr: "h1"})
	text, err := b.Text(ctx, title)
	require.NoError(t, err)
	assert.Equal(t, "Done", text)
}

func TestBrowserDialogs(t *testing.T) {
	server := createStaticTestServer(t, map[string]string{
		"/": `<html><body><button id="ask" type="button">ask</button><p id="out"></p></body></html>`,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	b := New(
		WithLogger(zaptest.NewLogger(t)),
		OnClick("#ask", func(ctx context.Context, p *Page) error {
			text, ok, err := p.Prompt(ctx, "name?", "anon")
			if err != nil {
				return err
			}
			if !ok {
				text = "null"
			}
			return p.SetText("#out", text)
		}),
	)
	require.NoError(t, b.Open(ctx))
	defer b.Close(context.Background())
	require.NoError(t, b.Navigate(ctx, server.URL+"/"))

	nextDialog := func() transport.Event {
		t.Helper()
		for {
			select {
			case ev := <-b.Events():
				if ev.Kind == transport.EventDialogOpened {
					return ev
				}
			case <-ctx.Done():
				t.Fatal("no dialog event")
			}
		}
	}
	ask := queryOne(t, ctx, b, transport.Query{Kind: transport.QueryCSS, Expr: "#ask"})
	out := queryOne(t, ctx, b, transport.Query{Kind: transport.QueryCSS, Expr: "#out"})

	t.Run("NoDialog", func(t *testing.T) {
		assert.ErrorIs(t, b.HandleDialog(ctx, true, ""), transport.ErrNoDialog)
	})

	t.Run("AcceptWithText", func(t *testing.T) {
		done := make(chan error, 1)
		go func() { done <- b.Click(ctx, ask) }()

		ev := nextDialog()
		assert.Equal(t, schemas.DialogPrompt, ev.Dialog.Kind)
		assert.Equal(t, "name?", ev.Dialog.Message)
		assert.Equal(t, "anon", ev.Dialog.DefaultPrompt)

		require.NoError(t, b.HandleDialog(ctx, true, "bob"))
		require.NoError(t, <-done)
		text, err := b.Text(ctx, out)
		require.NoError(t, err)
		assert.Equal(t, "bob", text)
	})

	t.Run("Dismiss", func(t *testing.T) {
		done := make(chan error, 1)
		go func() { done <- b.Click(ctx, ask) }()

		first := nextDialog()
		require.NoError(t, b.HandleDialog(ctx, false, ""))
		require.NoError(t, <-done)
		text, err := b.Text(ctx, out)
		require.NoError(t, err)
		assert.Equal(t, "null", text)
		assert.Greater(t, first.Dialog.Seq, uint64(1))
	})

	t.Run("CloseReleasesBlockedClick", func(t *testing.T) {
		done := make(chan error, 1)
		go func() { done <- b.Click(ctx, ask) }()
		nextDialog()

		require.NoError(t, b.Close(ctx))
		select {
		case err := <-done:
			assert.ErrorIs(t, err, transport.ErrTargetClosed)
		case <-time.After(5 * time.Second):
			t.Fatal("click still blocked after close")
		}
	})
}

func TestVisibleText(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(`<div id="root">
  <h1>Title</h1>
  <p>Line   one<br>line two</p>
  <span style="display:none">gone</span>
  <p>returned ` + "\u00a0" + `value</p>
  <script>var x = 1;</script>
</div>`))
	require.NoError(t, err)
	root := findFirst(doc, func(n *html.Node) bool { return attr(n, "id") == "root" })
	require.NotNil(t, root)

	assert.Equal(t, "Title\nLine one\nline two\nreturned  value", visibleText(root))
}

func TestBrowserCloseDropsSessionState(t *testing.T) {
	server := createStaticTestServer(t, map[string]string{
		"/": `<html><body><form><input type="file" name="upload"></form></body></html>`,
	})
	file := filepath.Join(t.TempDir(), "upload.txt")
	require.NoError(t, os.WriteFile(file, []byte("payload"), 0o600))

	b, ctx := newTestBrowser(t)
	require.NoError(t, b.Navigate(ctx, server.URL+"/"))
	input := queryOne(t, ctx, b, transport.Query{Kind: transport.QueryCSS, Expr: "input[type=file]"})
	require.NoError(t, b.SetFiles(ctx, input, []string{file}))

	b.mu.Lock()
	assert.Len(t, b.files, 1)
	b.mu.Unlock()

	require.NoError(t, b.Close(ctx))

	b.mu.Lock()
	defer b.mu.Unlock()
	assert.Empty(t, b.files)
	assert.Empty(t, b.nodes)
	assert.Empty(t, b.frames)
}
