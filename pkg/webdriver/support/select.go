// pkg/webdriver/support/select.go
package support

import (
	"context"
	"fmt"
	"strings"

	"github.com/brit/playwrightium/api/schemas"
	"github.com/brit/playwrightium/pkg/webdriver"
)

// Select drives a <select> element through clicks on its options.
type Select struct {
	el       *webdriver.WebElement
	multiple bool
}

// NewSelect wraps el, which must be a select element.
func NewSelect(ctx context.Context, el *webdriver.WebElement) (*Select, error) {
	tag, err := el.TagName(ctx)
	if err != nil {
		return nil, err
	}
	if tag != "select" {
		return nil, fmt.Errorf("%w: element is <%s>, not <select>", schemas.ErrUnsupportedOperation, tag)
	}
	multiple, err := el.GetAttribute(ctx, "multiple")
	if err != nil {
		return nil, err
	}
	return &Select{el: el, multiple: multiple == "true"}, nil
}

// IsMultiple reports whether several options can be selected at once.
func (s *Select) IsMultiple() bool { return s.multiple }

// Element is the wrapped select element.
func (s *Select) Element() *webdriver.WebElement { return s.el }

// Options returns every option in document order.
func (s *Select) Options(ctx context.Context) ([]*webdriver.WebElement, error) {
	return s.el.FindElements(ctx, webdriver.ByCSSSelector("option"))
}

// AllSelectedOptions returns the selected options in document order, not
// in the order they were selected.
func (s *Select) AllSelectedOptions(ctx context.Context) ([]*webdriver.WebElement, error) {
	opts, err := s.Options(ctx)
	if err != nil {
		return nil, err
	}
	var selected []*webdriver.WebElement
	for _, o := range opts {
		ok, err := o.IsSelected(ctx)
		if err != nil {
			return nil, err
		}
		if ok {
			selected = append(selected, o)
		}
	}
	return selected, nil
}

func (s *Select) FirstSelectedOption(ctx context.Context) (*webdriver.WebElement, error) {
	selected, err := s.AllSelectedOptions(ctx)
	if err != nil {
		return nil, err
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("%w: no option is selected", schemas.ErrNoSuchElement)
	}
	return selected[0], nil
}

// SelectByValue selects every option with the given value; a single
// select stops at the first.
func (s *Select) SelectByValue(ctx context.Context, value string) error {
	return s.selectWhere(ctx, fmt.Sprintf("value %q", value), func(i int, o *webdriver.WebElement) (bool, error) {
		v, err := o.GetAttribute(ctx, "value")
		return v == value, err
	})
}

func (s *Select) SelectByIndex(ctx context.Context, index int) error {
	return s.selectWhere(ctx, fmt.Sprintf("index %d", index), func(i int, o *webdriver.WebElement) (bool, error) {
		return i == index, nil
	})
}

// SelectByVisibleText matches the option text after trimming.
func (s *Select) SelectByVisibleText(ctx context.Context, text string) error {
	want := strings.TrimSpace(text)
	return s.selectWhere(ctx, fmt.Sprintf("text %q", text), func(i int, o *webdriver.WebElement) (bool, error) {
		got, err := o.Text(ctx)
		return strings.TrimSpace(got) == want, err
	})
}

func (s *Select) selectWhere(ctx context.Context, desc string, match func(int, *webdriver.WebElement) (bool, error)) error {
	opts, err := s.Options(ctx)
	if err != nil {
		return err
	}
	found := false
	for i, o := range opts {
		ok, err := match(i, o)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		found = true
		if err := s.setSelected(ctx, o, true); err != nil {
			return err
		}
		if !s.multiple {
			return nil
		}
	}
	if !found {
		return fmt.Errorf("%w: no option with %s", schemas.ErrNoSuchElement, desc)
	}
	return nil
}

// DeselectAll clears a multiple select. Single selects always have a
// selection, so they fail with ErrUnsupportedOperation.
func (s *Select) DeselectAll(ctx context.Context) error {
	if err := s.requireMultiple("deselect all"); err != nil {
		return err
	}
	selected, err := s.AllSelectedOptions(ctx)
	if err != nil {
		return err
	}
	for _, o := range selected {
		if err := s.setSelected(ctx, o, false); err != nil {
			return err
		}
	}
	return nil
}

func (s *Select) DeselectByValue(ctx context.Context, value string) error {
	if err := s.requireMultiple("deselect"); err != nil {
		return err
	}
	opts, err := s.Options(ctx)
	if err != nil {
		return err
	}
	for _, o := range opts {
		v, err := o.GetAttribute(ctx, "value")
		if err != nil {
			return err
		}
		if v == value {
			if err := s.setSelected(ctx, o, false); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Select) DeselectByIndex(ctx context.Context, index int) error {
	if err := s.requireMultiple("deselect"); err != nil {
		return err
	}
	opts, err := s.Options(ctx)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(opts) {
		return fmt.Errorf("%w: no option with index %d", schemas.ErrNoSuchElement, index)
	}
	return s.setSelected(ctx, opts[index], false)
}

func (s *Select) requireMultiple(op string) error {
	if !s.multiple {
		return fmt.Errorf("%w: cannot %s on a single select", schemas.ErrUnsupportedOperation, op)
	}
	return nil
}

func (s *Select) setSelected(ctx context.Context, o *webdriver.WebElement, want bool) error {
	cur, err := o.IsSelected(ctx)
	if err != nil {
		return err
	}
	if cur == want {
		return nil
	}
	if want {
		enabled, err := o.IsEnabled(ctx)
		if err != nil {
			return err
		}
		if !enabled {
			return fmt.Errorf("%w: option is disabled", schemas.ErrUnsupportedOperation)
		}
	}
	return o.Click(ctx)
}
