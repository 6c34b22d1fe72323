// pkg/webdriver/wait/conditions.go
package wait

import (
	"context"
	"errors"
	"strings"

	"github.com/brit/playwrightium/api/schemas"
	"github.com/brit/playwrightium/pkg/webdriver"
)

// PresenceOfElementLocated waits for an element to exist.
func PresenceOfElementLocated(loc webdriver.Locator) Condition[*webdriver.WebElement] {
	return func(ctx context.Context, d *webdriver.Driver) (*webdriver.WebElement, bool, error) {
		el, err := d.FindElement(ctx, loc)
		if err != nil {
			return nil, false, err
		}
		return el, true, nil
	}
}

// VisibilityOfElementLocated waits for an element to exist and be displayed.
func VisibilityOfElementLocated(loc webdriver.Locator) Condition[*webdriver.WebElement] {
	return func(ctx context.Context, d *webdriver.Driver) (*webdriver.WebElement, bool, error) {
		el, err := d.FindElement(ctx, loc)
		if err != nil {
			return nil, false, err
		}
		shown, err := el.IsDisplayed(ctx)
		if err != nil {
			return nil, false, err
		}
		return el, shown, nil
	}
}

// InvisibilityOfElementLocated is satisfied when no matching element is displayed.
func InvisibilityOfElementLocated(loc webdriver.Locator) Condition[bool] {
	return func(ctx context.Context, d *webdriver.Driver) (bool, bool, error) {
		el, err := d.FindElement(ctx, loc)
		if errors.Is(err, schemas.ErrNoSuchElement) {
			return true, true, nil
		}
		if err != nil {
			return false, false, err
		}
		shown, err := el.IsDisplayed(ctx)
		if errors.Is(err, schemas.ErrStaleElement) {
			return true, true, nil
		}
		if err != nil {
			return false, false, err
		}
		return !shown, !shown, nil
	}
}

// ElementToBeClickable waits for a displayed, enabled element.
func ElementToBeClickable(loc webdriver.Locator) Condition[*webdriver.WebElement] {
	visible := VisibilityOfElementLocated(loc)
	return func(ctx context.Context, d *webdriver.Driver) (*webdriver.WebElement, bool, error) {
		el, ok, err := visible(ctx, d)
		if !ok || err != nil {
			return nil, false, err
		}
		enabled, err := el.IsEnabled(ctx)
		if err != nil {
			return nil, false, err
		}
		return el, enabled, nil
	}
}

// TextToBePresentInElement waits for an element's text to contain text.
func TextToBePresentInElement(loc webdriver.Locator, text string) Condition[bool] {
	return func(ctx context.Context, d *webdriver.Driver) (bool, bool, error) {
		el, err := d.FindElement(ctx, loc)
		if err != nil {
			return false, false, err
		}
		got, err := el.Text(ctx)
		if err != nil {
			return false, false, err
		}
		ok := strings.Contains(got, text)
		return ok, ok, nil
	}
}

// NumberOfElementsToBe waits for exactly n matches.
func NumberOfElementsToBe(loc webdriver.Locator, n int) Condition[[]*webdriver.WebElement] {
	return func(ctx context.Context, d *webdriver.Driver) ([]*webdriver.WebElement, bool, error) {
		els, err := d.FindElements(ctx, loc)
		if err != nil {
			return nil, false, err
		}
		return els, len(els) == n, nil
	}
}

// AlertIsPresent waits for a dialog. Each poll checks without blocking.
func AlertIsPresent() Condition[*webdriver.Alert] {
	return func(ctx context.Context, d *webdriver.Driver) (*webdriver.Alert, bool, error) {
		a, err := d.SwitchTo().PendingAlert()
		if errors.Is(err, schemas.ErrNoAlertPresent) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, err
		}
		return a, true, nil
	}
}

// FrameToBeAvailableAndSwitchToIt enters the named frame once it exists.
func FrameToBeAvailableAndSwitchToIt(nameOrID string) Condition[bool] {
	return func(ctx context.Context, d *webdriver.Driver) (bool, bool, error) {
		if err := d.SwitchTo().Frame(ctx, nameOrID); err != nil {
			return false, false, err
		}
		return true, true, nil
	}
}

// Not inverts a condition. An error from cond counts as cond not holding.
func Not[T any](cond Condition[T]) Condition[bool] {
	return func(ctx context.Context, d *webdriver.Driver) (bool, bool, error) {
		_, ok, err := cond(ctx, d)
		if err != nil {
			if errors.Is(err, schemas.ErrSessionClosed) {
				return false, false, err
			}
			return true, true, nil
		}
		return !ok, !ok, nil
	}
}
