// pkg/webdriver/by.go
package webdriver

import "github.com/brit/playwrightium/api/schemas"

// Locator identifies elements by strategy and value.
type Locator = schemas.Locator

func ByID(id string) Locator {
	return Locator{Strategy: schemas.StrategyID, Value: id}
}

func ByName(name string) Locator {
	return Locator{Strategy: schemas.StrategyName, Value: name}
}

func ByCSSSelector(selector string) Locator {
	return Locator{Strategy: schemas.StrategyCSS, Value: selector}
}

func ByXPath(expr string) Locator {
	return Locator{Strategy: schemas.StrategyXPath, Value: expr}
}

// Error kinds, for matching with errors.Is.
var (
	ErrNoSuchElement        = schemas.ErrNoSuchElement
	ErrNoSuchFrame          = schemas.ErrNoSuchFrame
	ErrStaleElement         = schemas.ErrStaleElement
	ErrNoAlertPresent       = schemas.ErrNoAlertPresent
	ErrTimeout              = schemas.ErrTimeout
	ErrUnsupportedOperation = schemas.ErrUnsupportedOperation
	ErrSessionClosed        = schemas.ErrSessionClosed
	ErrUnexpectedAlertOpen  = schemas.ErrUnexpectedAlertOpen
	ErrInvalidSelector      = schemas.ErrInvalidSelector
	ErrInvalidArgument      = schemas.ErrInvalidArgument
)
