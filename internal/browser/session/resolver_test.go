// internal/browser/session/resolver_test.go
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/brit/playwrightium/api/schemas"
	"github.com/brit/playwrightium/internal/transport"
	"github.com/brit/playwrightium/internal/transport/htmldoc"
)

const resolverPage = `<html><body>
<input id="user" name="user">
<input id="username" name="username">
<div class="row"><span class="cell">a</span><span class="cell">b</span></div>
<div class="row"><span class="cell">c</span></div>
</body></html>`

func newResolverFixture(t *testing.T) (*Resolver, transport.Transport, ExecutionContext, context.Context) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, resolverPage)
	}))
	t.Cleanup(server.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	logger := zaptest.NewLogger(t)
	tr := htmldoc.New(htmldoc.WithLogger(logger))
	go func() {
		for range tr.Events() {
		}
	}()
	require.NoError(t, tr.Open(ctx))
	t.Cleanup(func() { _ = tr.Close(context.Background()) })
	require.NoError(t, tr.Navigate(ctx, server.URL))

	doc, err := tr.Document(ctx, tr.MainFrame())
	require.NoError(t, err)
	m := NewContextManager()
	ec := m.Reset(tr.MainFrame(), doc)
	return NewResolver(tr, logger), tr, ec, ctx
}

func TestTranslate(t *testing.T) {
	q, err := Translate(schemas.Locator{Strategy: schemas.StrategyID, Value: "user"})
	require.NoError(t, err)
	assert.Equal(t, transport.Query{Kind: transport.QueryAttribute, Name: "id", Value: "user"}, q)

	q, err = Translate(schemas.Locator{Strategy: schemas.StrategyName, Value: "user"})
	require.NoError(t, err)
	assert.Equal(t, transport.Query{Kind: transport.QueryAttribute, Name: "name", Value: "user"}, q)

	q, err = Translate(schemas.Locator{Strategy: schemas.StrategyXPath, Value: "//p"})
	require.NoError(t, err)
	assert.Equal(t, transport.QueryXPath, q.Kind)

	_, err = Translate(schemas.Locator{Strategy: "link text", Value: "x"})
	assert.ErrorIs(t, err, schemas.ErrInvalidArgument)
	_, err = Translate(schemas.Locator{Strategy: schemas.StrategyCSS})
	assert.ErrorIs(t, err, schemas.ErrInvalidArgument)
}

func TestResolver(t *testing.T) {
	r, tr, ec, ctx := newResolverFixture(t)

	t.Run("IDIsExactMatch", func(t *testing.T) {
		refs, err := r.Resolve(ctx, ec, "", schemas.Locator{Strategy: schemas.StrategyID, Value: "user"})
		require.NoError(t, err)
		require.Len(t, refs, 1)
		v, _, err := tr.Attribute(ctx, refs[0], "id")
		require.NoError(t, err)
		assert.Equal(t, "user", v)
	})

	t.Run("ZeroMatches", func(t *testing.T) {
		loc := schemas.Locator{Strategy: schemas.StrategyName, Value: "use"}
		refs, err := r.Resolve(ctx, ec, "", loc)
		require.NoError(t, err)
		assert.Empty(t, refs)

		_, err = r.First(ctx, ec, "", loc)
		assert.ErrorIs(t, err, schemas.ErrNoSuchElement)
		var le *schemas.LocatorError
		require.True(t, errors.As(err, &le))
		assert.Equal(t, loc, le.Locator)
	})

	t.Run("ScopedToRoot", func(t *testing.T) {
		row, err := r.First(ctx, ec, "", schemas.Locator{Strategy: schemas.StrategyCSS, Value: "div.row"})
		require.NoError(t, err)
		cells, err := r.Resolve(ctx, ec, row, schemas.Locator{Strategy: schemas.StrategyCSS, Value: ".cell"})
		require.NoError(t, err)
		assert.Len(t, cells, 2)
	})

	t.Run("InvalidSelector", func(t *testing.T) {
		_, err := r.Resolve(ctx, ec, "", schemas.Locator{Strategy: schemas.StrategyCSS, Value: "div[["})
		assert.ErrorIs(t, err, schemas.ErrInvalidSelector)
		assert.ErrorIs(t, err, transport.ErrInvalidQuery)
	})

	t.Run("GoneFrame", func(t *testing.T) {
		gone := ec
		gone.Gone = true
		_, err := r.Resolve(ctx, gone, "", schemas.Locator{Strategy: schemas.StrategyCSS, Value: "div"})
		assert.ErrorIs(t, err, schemas.ErrNoSuchFrame)
	})
}

func TestClassify(t *testing.T) {
	assert.Equal(t, schemas.ErrStaleElement, Classify(transport.ErrContextLost))
	assert.Equal(t, schemas.ErrSessionClosed, Classify(fmt.Errorf("x: %w", transport.ErrTargetClosed)))
	assert.Equal(t, schemas.ErrUnsupportedOperation, Classify(transport.ErrUnsupported))

	other := errors.New("boom")
	assert.Equal(t, other, Classify(other))

	err := Wrap("click", transport.ErrContextLost)
	assert.ErrorIs(t, err, schemas.ErrStaleElement)
	assert.ErrorIs(t, err, transport.ErrContextLost)
	assert.NoError(t, Wrap("click", nil))
}
