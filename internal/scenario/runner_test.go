// internal/scenario/runner_test.go
package scenario

import (
	"context"
	"os"
	"path/filepath"
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

func newTestRunner(t *testing.T) (*Runner, context.Context) {
	t.Helper()
	server := testpages.NewServer()
	t.Cleanup(server.Close)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)

	logger := zaptest.NewLogger(t)
	tr := htmldoc.New(append(testpages.Behaviors(), htmldoc.WithLogger(logger))...)
	d, err := webdriver.New(ctx, tr,
		webdriver.WithLogger(logger),
		webdriver.WithTimeouts(webdriver.Timeouts{Alert: 500 * time.Millisecond}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Quit(context.Background()) })

	r := NewRunner(d,
		WithLogger(logger),
		WithBaseURL(server.URL),
		WithWait(time.Second, 20*time.Millisecond),
	)
	return r, ctx
}

func mustParse(t *testing.T, flow string) *Scenario {
	t.Helper()
	sc, err := Parse([]byte(flow), filepath.Join(t.TempDir(), "flow.yaml"))
	require.NoError(t, err)
	return sc
}

func requirePassed(t *testing.T, report *Report) {
	t.Helper()
	for _, res := range report.Results {
		require.Equal(t, StatusPassed, res.Status, "line %d (%s): %v", res.Step.Line, res.Step.Kind, res.Err)
	}
	require.NoError(t, report.Err())
}

func TestRunnerForm(t *testing.T) {
	r, ctx := newTestRunner(t)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("notes"), 0o600))
	flow := `steps:
  - open: /styled/basic-html-form-test.html
  - type: {name: username, text: alice123}
  - clear: textarea
  - type: {name: comments, text: hi}
  - select: {name: dropdown, text: Drop Down Item 5}
  - select: {name: "multipleselect[]", deselectAll: true}
  - select: {name: "multipleselect[]", index: 1}
  - upload: {name: filename, file: notes.txt}
  - click: {name: submitbutton}
  - waitVisible: {id: _valueusername}
  - assertText: {id: _valueusername, equals: alice123}
  - assertText: {id: _valuecomments, equals: hi}
  - assertText: {id: _valuedropdown, equals: dd5}
  - assertText: {id: _valuemultipleselect0, equals: ms2}
  - assertText: {id: _valuefilename, equals: notes.txt}
  - assertCount: {css: "#_multipleselect li", count: 1}
`
	sc, err := Parse([]byte(flow), filepath.Join(dir, "form.yaml"))
	require.NoError(t, err)
	requirePassed(t, r.Run(ctx, sc))
}

func TestRunnerFrames(t *testing.T) {
	r, ctx := newTestRunner(t)
	requirePassed(t, r.Run(ctx, mustParse(t, `steps:
  - open: /styled/frames/frames-test.html
  - switchFrame: left
  - assertCount: {css: li, count: 30}
  - parentFrame
  - switchFrame: {index: 2}
  - assertCount: {css: li, count: 40}
  - defaultContent
  - assertCount: {css: frame, count: 5}
`)))
}

func TestRunnerAlerts(t *testing.T) {
	r, ctx := newTestRunner(t)
	requirePassed(t, r.Run(ctx, mustParse(t, `steps:
  - open: /styled/alerts/alert-test.html
  - click: {id: confirmexample}
  - alert: {action: dismiss, message: I am a confirm alert}
  - assertText: {id: confirmreturn, equals: "false"}
  - alert: {expect: true, keys: typed, message: I prompt you}
  - click: {id: promptexample}
  - assertText: {id: promptreturn, equals: typed}
  - click: {id: alertexamples}
  - alert: accept
  - assertText: {id: alertexplanation, contains: handled the alert}
`)))
}

func TestRunnerFailureSkipsRest(t *testing.T) {
	r, ctx := newTestRunner(t)
	report := r.Run(ctx, mustParse(t, `steps:
  - open: /styled/basic-html-form-test.html
  - assertText: {css: h1, equals: Something Else}
  - click: {name: submitbutton}
`))
	require.Len(t, report.Results, 3)
	assert.Equal(t, StatusPassed, report.Results[0].Status)
	assert.Equal(t, StatusFailed, report.Results[1].Status)
	assert.Equal(t, StatusSkipped, report.Results[2].Status)
	assert.True(t, report.Failed())
	assert.ErrorContains(t, report.Err(), "flow.yaml:3: assertText:")
}

func TestRunnerMissingElementTimesOut(t *testing.T) {
	r, ctx := newTestRunner(t)
	report := r.Run(ctx, mustParse(t, `steps:
  - open: /styled/basic-html-form-test.html
  - click: {id: ghost}
`))
	require.True(t, report.Failed())
	err := report.Results[1].Err
	assert.ErrorIs(t, err, webdriver.ErrTimeout)
	assert.ErrorIs(t, err, webdriver.ErrNoSuchElement)
}

func TestRunnerUnansweredExpectation(t *testing.T) {
	r, ctx := newTestRunner(t)
	report := r.Run(ctx, mustParse(t, `steps:
  - open: /styled/alerts/alert-test.html
  - alert: {expect: true}
  - assertCount: {css: input, count: 3}
`))
	require.True(t, report.Failed())
	assert.Equal(t, StatusFailed, report.Results[2].Status)
	assert.ErrorIs(t, report.Results[2].Err, webdriver.ErrNoAlertPresent)
}
