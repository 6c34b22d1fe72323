// internal/transport/cdp/browser_test.go
package cdp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/brit/playwrightium/api/schemas"
	"github.com/brit/playwrightium/internal/transport"
)

func findChrome(t *testing.T) string {
	t.Helper()
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	t.Skip("no Chrome binary found; skipping CDP integration test")
	return ""
}

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

func newTestBrowser(t *testing.T) (*Browser, context.Context) {
	t.Helper()
	execPath := findChrome(t)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	t.Cleanup(cancel)

	b := New(Config{
		Headless:          true,
		ExecPath:          execPath,
		Args:              []string{"--no-sandbox"},
		NavigationTimeout: 20 * time.Second,
	}, zaptest.NewLogger(t))
	require.NoError(t, b.Open(ctx))
	t.Cleanup(func() { _ = b.Close(context.Background()) })
	return b, ctx
}

const integrationPage = `<html><head><title>CDP</title></head><body>
<div id="user">first</div>
<input id="name" type="text" value="x">
<button id="confirm" onclick="document.getElementById('out').textContent = String(confirm('sure?'))">go</button>
<p id="out"></p>
<iframe name="child" srcdoc="<p id='inner'>inside</p>"></iframe>
</body></html>`

func TestBrowserIntegration(t *testing.T) {
	b, ctx := newTestBrowser(t)
	server := createStaticTestServer(t, map[string]string{"/": integrationPage})
	require.NoError(t, b.Navigate(ctx, server.URL+"/"))

	title, err := b.Title(ctx)
	require.NoError(t, err)
	assert.Equal(t, "CDP", title)

	main := b.MainFrame()

	t.Run("QueryAndText", func(t *testing.T) {
		refs, err := b.Query(ctx, main, "", transport.Query{Kind: transport.QueryAttribute, Name: "id", Value: "user"})
		require.NoError(t, err)
		require.Len(t, refs, 1)
		text, err := b.Text(ctx, refs[0])
		require.NoError(t, err)
		assert.Equal(t, "first", text)

		_, err = b.Query(ctx, main, "", transport.Query{Kind: transport.QueryCSS, Expr: "div["})
		assert.ErrorIs(t, err, transport.ErrInvalidQuery)
	})

	t.Run("ClearAndType", func(t *testing.T) {
		refs, err := b.Query(ctx, main, "", transport.Query{Kind: transport.QueryCSS, Expr: "#name"})
		require.NoError(t, err)
		require.NoError(t, b.Clear(ctx, refs[0]))
		require.NoError(t, b.Type(ctx, refs[0], "alice123"))
		v, err := b.Property(ctx, refs[0], "value")
		require.NoError(t, err)
		assert.Equal(t, "alice123", v)
	})

	t.Run("Frames", func(t *testing.T) {
		frames, err := b.Frames(ctx, main)
		require.NoError(t, err)
		require.Len(t, frames, 1)
		assert.Equal(t, "child", frames[0].Name)

		refs, err := b.Query(ctx, frames[0].ID, "", transport.Query{Kind: transport.QueryCSS, Expr: "#inner"})
		require.NoError(t, err)
		assert.Len(t, refs, 1)
	})

	t.Run("ConfirmDialog", func(t *testing.T) {
		refs, err := b.Query(ctx, main, "", transport.Query{Kind: transport.QueryCSS, Expr: "#confirm"})
		require.NoError(t, err)

		clicked := make(chan error, 1)
		go func() { clicked <- b.Click(ctx, refs[0]) }()

		var opened transport.Event
		require.Eventually(t, func() bool {
			select {
			case ev := <-b.Events():
				if ev.Kind == transport.EventDialogOpened {
					opened = ev
					return true
				}
			default:
			}
			return false
		}, 10*time.Second, 20*time.Millisecond)
		assert.Equal(t, schemas.DialogConfirm, opened.Dialog.Kind)
		assert.Equal(t, "sure?", opened.Dialog.Message)

		require.NoError(t, b.HandleDialog(ctx, true, ""))
		require.NoError(t, <-clicked)

		out, err := b.Query(ctx, main, "", transport.Query{Kind: transport.QueryCSS, Expr: "#out"})
		require.NoError(t, err)
		text, err := b.Text(ctx, out[0])
		require.NoError(t, err)
		assert.Equal(t, "true", text)

		assert.ErrorIs(t, b.HandleDialog(ctx, true, ""), transport.ErrNoDialog)
	})

	t.Run("NavigationLosesContext", func(t *testing.T) {
		refs, err := b.Query(ctx, main, "", transport.Query{Kind: transport.QueryCSS, Expr: "#user"})
		require.NoError(t, err)
		require.NoError(t, b.Reload(ctx))
		_, err = b.Text(ctx, refs[0])
		assert.ErrorIs(t, err, transport.ErrContextLost)
	})

	require.NoError(t, b.Close(ctx))
	_, err = b.Title(ctx)
	assert.ErrorIs(t, err, transport.ErrTargetClosed)
}

func TestMapError(t *testing.T) {
	assert.Nil(t, mapError(nil))
	assert.ErrorIs(t, mapError(errors.New("Cannot find context with specified id (-32000)")), transport.ErrContextLost)
	assert.ErrorIs(t, mapError(errors.New("No dialog is showing (-32602)")), transport.ErrNoDialog)
	assert.ErrorIs(t, mapError(errors.New("No frame for given id found")), transport.ErrNoSuchFrame)

	other := errors.New("boom")
	assert.Equal(t, other, mapError(other))
}

func TestDialogKind(t *testing.T) {
	assert.Equal(t, schemas.DialogAlert, dialogKind(page.DialogTypeAlert))
	assert.Equal(t, schemas.DialogConfirm, dialogKind(page.DialogTypeConfirm))
	assert.Equal(t, schemas.DialogPrompt, dialogKind(page.DialogTypePrompt))
}

func TestAllocatorOptions(t *testing.T) {
	b := New(Config{Headless: false, Args: []string{"--no-sandbox", "--lang=en-US"}}, nil)
	base := New(Config{Headless: true}, nil)
	// One for headless=false plus one per arg.
	assert.Len(t, b.allocatorOptions(), len(base.allocatorOptions())+3)
	b.events.Close()
	base.events.Close()
}
