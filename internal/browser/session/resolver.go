// internal/browser/session/resolver.go
package session

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/brit/playwrightium/api/schemas"
	"github.com/brit/playwrightium/internal/transport"
)

// Resolver turns locators into node references with a single lookup pass.
type Resolver struct {
	tr     transport.Transport
	logger *zap.Logger
}

func NewResolver(tr transport.Transport, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{tr: tr, logger: logger.Named("resolver")}
}

// Translate maps a locator onto the transport's native query. id and name
// are exact attribute matches, never css shorthands.
func Translate(loc schemas.Locator) (transport.Query, error) {
	if !loc.Valid() {
		return transport.Query{}, &schemas.LocatorError{Kind: schemas.ErrInvalidArgument, Locator: loc}
	}
	switch loc.Strategy {
	case schemas.StrategyID:
		return transport.Query{Kind: transport.QueryAttribute, Name: "id", Value: loc.Value}, nil
	case schemas.StrategyName:
		return transport.Query{Kind: transport.QueryAttribute, Name: "name", Value: loc.Value}, nil
	case schemas.StrategyCSS:
		return transport.Query{Kind: transport.QueryCSS, Expr: loc.Value}, nil
	case schemas.StrategyXPath:
		return transport.Query{Kind: transport.QueryXPath, Expr: loc.Value}, nil
	}
	return transport.Query{}, &schemas.LocatorError{Kind: schemas.ErrInvalidArgument, Locator: loc}
}

// Resolve returns every match in document order. root scopes the search to
// a subtree; the zero NodeRef searches the whole document of frame. An empty
// result is not an error.
func (r *Resolver) Resolve(ctx context.Context, ec ExecutionContext, root transport.NodeRef, loc schemas.Locator) ([]transport.NodeRef, error) {
	q, err := Translate(loc)
	if err != nil {
		return nil, err
	}
	if ec.Gone {
		return nil, &schemas.LocatorError{Kind: schemas.ErrNoSuchFrame, Locator: loc}
	}
	refs, err := r.tr.Query(ctx, ec.Frame, root, q)
	if err != nil {
		r.logger.Debug("Lookup failed.", zap.Stringer("locator", loc), zap.Error(err))
		return nil, &schemas.LocatorError{Kind: Classify(err), Locator: loc, Err: err}
	}
	r.logger.Debug("Lookup done.", zap.Stringer("locator", loc), zap.Int("matches", len(refs)))
	return refs, nil
}

// First returns the first match or a NoSuchElement error.
func (r *Resolver) First(ctx context.Context, ec ExecutionContext, root transport.NodeRef, loc schemas.Locator) (transport.NodeRef, error) {
	refs, err := r.Resolve(ctx, ec, root, loc)
	if err != nil {
		return "", err
	}
	if len(refs) == 0 {
		return "", &schemas.LocatorError{Kind: schemas.ErrNoSuchElement, Locator: loc}
	}
	return refs[0], nil
}

// Classify maps a transport failure onto the driver's error kinds.
func Classify(err error) error {
	switch {
	case errors.Is(err, transport.ErrInvalidQuery):
		return schemas.ErrInvalidSelector
	case errors.Is(err, transport.ErrContextLost):
		return schemas.ErrStaleElement
	case errors.Is(err, transport.ErrNoSuchFrame):
		return schemas.ErrNoSuchFrame
	case errors.Is(err, transport.ErrTargetClosed):
		return schemas.ErrSessionClosed
	case errors.Is(err, transport.ErrUnsupported):
		return schemas.ErrUnsupportedOperation
	}
	return err
}

// Wrap attaches the classified kind to a transport error so callers can
// match both with errors.Is.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	kind := Classify(err)
	if kind == err {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, kind, err)
}
