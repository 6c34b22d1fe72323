// api/schemas/locator.go
package schemas

import "fmt"

// Strategy names the lookup mechanism of a Locator.
type Strategy string

const (
	StrategyID    Strategy = "id"
	StrategyName  Strategy = "name"
	StrategyCSS   Strategy = "css selector"
	StrategyXPath Strategy = "xpath"
)

// Locator is an immutable (strategy, value) pair identifying elements.
type Locator struct {
	Strategy Strategy
	Value    string
}

// String renders the locator the way WebDriver bindings print a By.
func (l Locator) String() string {
	return fmt.Sprintf("By.%s: %s", l.Strategy, l.Value)
}

// Valid reports whether the strategy is one the resolver understands and the value is non-empty.
func (l Locator) Valid() bool {
	switch l.Strategy {
	case StrategyID, StrategyName, StrategyCSS, StrategyXPath:
		return l.Value != ""
	}
	return false
}
