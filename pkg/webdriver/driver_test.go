// pkg/webdriver/driver_test.go
package webdriver_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/brit/playwrightium/internal/testpages"
	"github.com/brit/playwrightium/internal/transport/htmldoc"
	"github.com/brit/playwrightium/pkg/webdriver"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

// newTestDriver starts a session against the test pages with short timeouts.
func newTestDriver(t *testing.T) (*webdriver.Driver, *httptest.Server, context.Context) {
	t.Helper()
	server := testpages.NewServer()
	t.Cleanup(server.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	t.Cleanup(cancel)

	logger := zaptest.NewLogger(t)
	tr := htmldoc.New(append(testpages.Behaviors(), htmldoc.WithLogger(logger))...)
	d, err := webdriver.New(ctx, tr,
		webdriver.WithLogger(logger),
		webdriver.WithTimeouts(webdriver.Timeouts{Alert: 300 * time.Millisecond, Settle: 2 * time.Second}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Quit(context.Background()) })
	return d, server, ctx
}

func find(t *testing.T, ctx context.Context, d *webdriver.Driver, loc webdriver.Locator) *webdriver.WebElement {
	t.Helper()
	el, err := d.FindElement(ctx, loc)
	require.NoError(t, err)
	return el
}

func textOf(t *testing.T, ctx context.Context, d *webdriver.Driver, loc webdriver.Locator) string {
	t.Helper()
	text, err := find(t, ctx, d, loc).Text(ctx)
	require.NoError(t, err)
	return text
}

func TestFormSubmission(t *testing.T) {
	d, server, ctx := newTestDriver(t)
	require.NoError(t, d.Get(ctx, server.URL+testpages.FormPath))

	title, err := d.Title(ctx)
	require.NoError(t, err)
	assert.Equal(t, "HTML Form Elements", title)

	require.NoError(t, find(t, ctx, d, webdriver.ByName("username")).SendKeys(ctx, "alice123"))

	comments := find(t, ctx, d, webdriver.ByName("comments"))
	require.NoError(t, comments.Clear(ctx))
	require.NoError(t, comments.SendKeys(ctx, "hello there"))

	cb1 := find(t, ctx, d, webdriver.ByCSSSelector("input[value='cb1']"))
	require.NoError(t, cb1.Click(ctx))
	checked, err := cb1.GetAttribute(ctx, "checked")
	require.NoError(t, err)
	assert.Equal(t, "true", checked)

	require.NoError(t, find(t, ctx, d, webdriver.ByName("submitbutton")).Click(ctx))

	title, err = d.Title(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Processed Form Details", title)
	assert.Equal(t, "alice123", textOf(t, ctx, d, webdriver.ByID("_valueusername")))
	assert.Equal(t, "hello there", textOf(t, ctx, d, webdriver.ByID("_valuecomments")))
	assert.Equal(t, "cb1", textOf(t, ctx, d, webdriver.ByID("_valuecheckboxes0")))
	assert.Equal(t, "cb3", textOf(t, ctx, d, webdriver.ByID("_valuecheckboxes1")))
	assert.Equal(t, "rd2", textOf(t, ctx, d, webdriver.ByID("_valueradioval")))
}

func TestElementQueries(t *testing.T) {
	d, server, ctx := newTestDriver(t)
	require.NoError(t, d.Get(ctx, server.URL+testpages.FormPath))

	t.Run("MissingElement", func(t *testing.T) {
		_, err := d.FindElement(ctx, webdriver.ByID("does-not-exist"))
		assert.ErrorIs(t, err, webdriver.ErrNoSuchElement)

		els, err := d.FindElements(ctx, webdriver.ByID("does-not-exist"))
		require.NoError(t, err)
		assert.Empty(t, els)
	})

	t.Run("InvalidSelector", func(t *testing.T) {
		_, err := d.FindElements(ctx, webdriver.ByCSSSelector("input[[["))
		assert.ErrorIs(t, err, webdriver.ErrInvalidSelector)
		_, err = d.FindElements(ctx, webdriver.ByXPath("//input[@"))
		assert.ErrorIs(t, err, webdriver.ErrInvalidSelector)
	})

	t.Run("ScopedSearch", func(t *testing.T) {
		dropdown := find(t, ctx, d, webdriver.ByName("dropdown"))
		opts, err := dropdown.FindElements(ctx, webdriver.ByCSSSelector("option"))
		require.NoError(t, err)
		assert.Len(t, opts, 6)

		sel, err := opts[0].FindElement(ctx, webdriver.ByXPath("ancestor::select"))
		require.NoError(t, err)
		name, err := sel.GetAttribute(ctx, "name")
		require.NoError(t, err)
		assert.Equal(t, "dropdown", name)
	})

	t.Run("Attributes", func(t *testing.T) {
		multi := find(t, ctx, d, webdriver.ByName("multipleselect[]"))
		v, err := multi.GetAttribute(ctx, "multiple")
		require.NoError(t, err)
		assert.Equal(t, "true", v)
		v, err = multi.GetAttribute(ctx, "data-missing")
		require.NoError(t, err)
		assert.Empty(t, v)

		tag, err := multi.TagName(ctx)
		require.NoError(t, err)
		assert.Equal(t, "select", tag)

		hidden := find(t, ctx, d, webdriver.ByID("hidden-note"))
		shown, err := hidden.IsDisplayed(ctx)
		require.NoError(t, err)
		assert.False(t, shown)
		text, err := hidden.Text(ctx)
		require.NoError(t, err)
		assert.Empty(t, text)
	})

	t.Run("ScriptNeedsEngine", func(t *testing.T) {
		_, err := d.ExecuteScript(ctx, "return 1")
		assert.ErrorIs(t, err, webdriver.ErrUnsupportedOperation)
	})
}

func TestFrames(t *testing.T) {
	d, server, ctx := newTestDriver(t)
	require.NoError(t, d.Get(ctx, server.URL+testpages.FramesPath))

	frames, err := d.FindElements(ctx, webdriver.ByCSSSelector("frame"))
	require.NoError(t, err)
	assert.Len(t, frames, len(testpages.Frames))

	for _, f := range testpages.Frames {
		require.NoError(t, d.SwitchTo().Frame(ctx, f.Name), f.Name)
		items, err := d.FindElements(ctx, webdriver.ByCSSSelector("li"))
		require.NoError(t, err)
		assert.Len(t, items, f.Items, f.Name)
		assert.Equal(t, f.Title, textOf(t, ctx, d, webdriver.ByCSSSelector("h1")))
		require.NoError(t, d.SwitchTo().DefaultContent(ctx))
	}

	t.Run("ByIDAndIndex", func(t *testing.T) {
		require.NoError(t, d.SwitchTo().Frame(ctx, "left-frame"))
		assert.Equal(t, "Left", textOf(t, ctx, d, webdriver.ByCSSSelector("h1")))
		require.NoError(t, d.SwitchTo().ParentFrame(ctx))

		require.NoError(t, d.SwitchTo().FrameIndex(ctx, 0))
		assert.Equal(t, "Top", textOf(t, ctx, d, webdriver.ByCSSSelector("h1")))
		require.NoError(t, d.SwitchTo().DefaultContent(ctx))

		assert.ErrorIs(t, d.SwitchTo().Frame(ctx, "nope"), webdriver.ErrNoSuchFrame)
		assert.ErrorIs(t, d.SwitchTo().FrameIndex(ctx, 99), webdriver.ErrNoSuchFrame)
	})

	t.Run("ByElement", func(t *testing.T) {
		el := find(t, ctx, d, webdriver.ByName("right"))
		require.NoError(t, d.SwitchTo().FrameElement(ctx, el))
		assert.Equal(t, "Right", textOf(t, ctx, d, webdriver.ByCSSSelector("h1")))
		require.NoError(t, d.SwitchTo().DefaultContent(ctx))

		_, err := d.FindElement(ctx, webdriver.ByCSSSelector("h1"))
		assert.ErrorIs(t, err, webdriver.ErrNoSuchElement)
	})

	t.Run("ParentAtTopIsNoop", func(t *testing.T) {
		require.NoError(t, d.SwitchTo().ParentFrame(ctx))
		title, err := d.Title(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Frameset Example Title (Example 6)", title)
	})

	t.Run("LeavingFrameStalesItsElements", func(t *testing.T) {
		root := find(t, ctx, d, webdriver.ByName("middle"))

		require.NoError(t, d.SwitchTo().Frame(ctx, "middle"))
		item := find(t, ctx, d, webdriver.ByCSSSelector("li"))
		_, err := item.Text(ctx)
		require.NoError(t, err)

		// Handles from enclosing documents stay usable inside a frame.
		name, err := root.GetAttribute(ctx, "name")
		require.NoError(t, err)
		assert.Equal(t, "middle", name)

		require.NoError(t, d.SwitchTo().DefaultContent(ctx))
		require.NoError(t, d.SwitchTo().Frame(ctx, "middle"))
		_, err = item.Text(ctx)
		assert.ErrorIs(t, err, webdriver.ErrStaleElement)
		require.NoError(t, d.SwitchTo().DefaultContent(ctx))
	})
}

func TestAlerts(t *testing.T) {
	d, server, ctx := newTestDriver(t)
	require.NoError(t, d.Get(ctx, server.URL+testpages.AlertsPath))

	t.Run("NoneOpen", func(t *testing.T) {
		_, err := d.SwitchTo().Alert(ctx)
		assert.ErrorIs(t, err, webdriver.ErrNoAlertPresent)
	})

	t.Run("AcceptAlert", func(t *testing.T) {
		require.NoError(t, find(t, ctx, d, webdriver.ByID("alertexamples")).Click(ctx))

		_, err := d.FindElement(ctx, webdriver.ByID("alertexplanation"))
		assert.ErrorIs(t, err, webdriver.ErrUnexpectedAlertOpen)

		alert, err := d.SwitchTo().Alert(ctx)
		require.NoError(t, err)
		text, err := alert.Text()
		require.NoError(t, err)
		assert.Equal(t, testpages.AlertMessage, text)
		assert.ErrorIs(t, alert.SendKeys("nope"), webdriver.ErrUnsupportedOperation)
		require.NoError(t, alert.Accept(ctx))

		assert.Equal(t, "You triggered and handled the alert dialog", textOf(t, ctx, d, webdriver.ByID("alertexplanation")))
		assert.ErrorIs(t, alert.Accept(ctx), webdriver.ErrNoAlertPresent)
	})

	t.Run("Confirm", func(t *testing.T) {
		for _, accept := range []bool{false, true} {
			require.NoError(t, find(t, ctx, d, webdriver.ByID("confirmexample")).Click(ctx))
			alert, err := d.SwitchTo().Alert(ctx)
			require.NoError(t, err)
			text, err := alert.Text()
			require.NoError(t, err)
			assert.Equal(t, testpages.ConfirmMessage, text)
			if accept {
				require.NoError(t, alert.Accept(ctx))
			} else {
				require.NoError(t, alert.Dismiss(ctx))
			}
			want := "false"
			if accept {
				want = "true"
			}
			assert.Equal(t, want, textOf(t, ctx, d, webdriver.ByID("confirmreturn")))
			assert.Equal(t, testpages.ConfirmExplanation(accept), textOf(t, ctx, d, webdriver.ByID("confirmexplanation")))
		}
	})

	t.Run("Prompt", func(t *testing.T) {
		click := func() *webdriver.Alert {
			require.NoError(t, find(t, ctx, d, webdriver.ByID("promptexample")).Click(ctx))
			alert, err := d.SwitchTo().Alert(ctx)
			require.NoError(t, err)
			return alert
		}

		alert := click()
		require.NoError(t, alert.SendKeys("hello"))
		require.NoError(t, alert.Accept(ctx))
		assert.Equal(t, "hello", textOf(t, ctx, d, webdriver.ByID("promptreturn")))
		assert.Equal(t, testpages.PromptExplanation("hello", true), textOf(t, ctx, d, webdriver.ByID("promptexplanation")))

		require.NoError(t, click().Accept(ctx))
		assert.Equal(t, testpages.PromptDefault, textOf(t, ctx, d, webdriver.ByID("promptreturn")))

		require.NoError(t, click().Dismiss(ctx))
		assert.Equal(t, "null", textOf(t, ctx, d, webdriver.ByID("promptreturn")))
		assert.Equal(t, testpages.PromptExplanation("", false), textOf(t, ctx, d, webdriver.ByID("promptexplanation")))
	})

	t.Run("ExpectedBeforeClick", func(t *testing.T) {
		exp := d.SwitchTo().ExpectAlert().SendKeys("armed")
		require.NoError(t, exp.Accept(ctx))
		require.NoError(t, find(t, ctx, d, webdriver.ByID("promptexample")).Click(ctx))

		text, err := exp.Text(ctx)
		require.NoError(t, err)
		assert.Equal(t, testpages.PromptMessage, text)
		assert.Equal(t, "armed", textOf(t, ctx, d, webdriver.ByID("promptreturn")))
	})

	t.Run("ExpectedButNeverRaised", func(t *testing.T) {
		exp := d.SwitchTo().ExpectAlert()
		require.NoError(t, exp.Dismiss(ctx))
		_, err := exp.Text(ctx)
		assert.ErrorIs(t, err, webdriver.ErrNoAlertPresent)
		exp.Cancel()

		// The withdrawn response must not answer later dialogs.
		require.NoError(t, find(t, ctx, d, webdriver.ByID("alertexamples")).Click(ctx))
		alert, err := d.SwitchTo().PendingAlert()
		require.NoError(t, err)
		require.NoError(t, alert.Accept(ctx))
	})
}

func TestNavigation(t *testing.T) {
	d, server, ctx := newTestDriver(t)
	require.NoError(t, d.Get(ctx, server.URL+testpages.FormPath))

	t.Run("RefreshStalesElements", func(t *testing.T) {
		el := find(t, ctx, d, webdriver.ByName("username"))
		require.NoError(t, d.Navigate().Refresh(ctx))
		_, err := el.Text(ctx)
		assert.ErrorIs(t, err, webdriver.ErrStaleElement)
		assert.ErrorIs(t, el.Click(ctx), webdriver.ErrStaleElement)
	})

	t.Run("History", func(t *testing.T) {
		require.NoError(t, d.Navigate().To(ctx, server.URL+testpages.AlertsPath))
		require.NoError(t, d.Navigate().Back(ctx))
		title, err := d.Title(ctx)
		require.NoError(t, err)
		assert.Equal(t, "HTML Form Elements", title)

		require.NoError(t, d.Navigate().Forward(ctx))
		url, err := d.CurrentURL(ctx)
		require.NoError(t, err)
		assert.Equal(t, server.URL+testpages.AlertsPath, url)
	})

	t.Run("GetLeavesFrame", func(t *testing.T) {
		require.NoError(t, d.Get(ctx, server.URL+testpages.FramesPath))
		require.NoError(t, d.SwitchTo().Frame(ctx, "left"))
		require.NoError(t, d.Get(ctx, server.URL+testpages.FormPath))
		src, err := d.PageSource(ctx)
		require.NoError(t, err)
		assert.Contains(t, src, "Basic HTML Form Example")
	})
}

func TestQuit(t *testing.T) {
	d, server, ctx := newTestDriver(t)
	require.NoError(t, d.Get(ctx, server.URL+testpages.FormPath))
	el := find(t, ctx, d, webdriver.ByName("username"))

	require.NoError(t, d.Quit(ctx))
	require.NoError(t, d.Quit(ctx))

	select {
	case <-d.Done():
	default:
		t.Fatal("Done not closed after Quit")
	}

	_, err := d.Title(ctx)
	assert.ErrorIs(t, err, webdriver.ErrSessionClosed)
	_, err = d.FindElement(ctx, webdriver.ByName("username"))
	assert.ErrorIs(t, err, webdriver.ErrSessionClosed)
	_, err = el.Text(ctx)
	assert.ErrorIs(t, err, webdriver.ErrSessionClosed)
	_, err = d.SwitchTo().Alert(ctx)
	assert.ErrorIs(t, err, webdriver.ErrSessionClosed)
	assert.ErrorIs(t, d.Get(ctx, server.URL), webdriver.ErrSessionClosed)
}
