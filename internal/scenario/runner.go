// internal/scenario/runner.go
package scenario

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/brit/playwrightium/pkg/webdriver"
	"github.com/brit/playwrightium/pkg/webdriver/support"
	"github.com/brit/playwrightium/pkg/webdriver/wait"
)

// Status of a step after a run.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Result is the outcome of one step.
type Result struct {
	Step     Step
	Status   Status
	Duration time.Duration
	Err      error
}

// Report collects the results of one scenario run.
type Report struct {
	Scenario *Scenario
	Results  []Result
	Duration time.Duration
}

// Failed reports whether any step failed.
func (r *Report) Failed() bool {
	for _, res := range r.Results {
		if res.Status == StatusFailed {
			return true
		}
	}
	return false
}

// Err returns the first step failure, located in the flow file.
func (r *Report) Err() error {
	for _, res := range r.Results {
		if res.Status == StatusFailed {
			return fmt.Errorf("%s:%d: %s: %w", r.Scenario.Path, res.Step.Line, res.Step.Kind, res.Err)
		}
	}
	return nil
}

// Runner executes scenarios against one session.
type Runner struct {
	d            *webdriver.Driver
	logger       *zap.Logger
	waitTimeout  time.Duration
	pollInterval time.Duration
	baseURL      string

	armed *armedAlert
}

type armedAlert struct {
	exp     *webdriver.ExpectedAlert
	message *string
	line    int
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithWait sets the budget and poll interval for locating elements.
func WithWait(timeout, interval time.Duration) RunnerOption {
	return func(r *Runner) {
		if timeout > 0 {
			r.waitTimeout = timeout
		}
		if interval > 0 {
			r.pollInterval = interval
		}
	}
}

// WithBaseURL resolves relative open URLs, overriding a flow's baseURL.
func WithBaseURL(base string) RunnerOption {
	return func(r *Runner) { r.baseURL = base }
}

func WithLogger(logger *zap.Logger) RunnerOption {
	return func(r *Runner) { r.logger = logger }
}

func NewRunner(d *webdriver.Driver, opts ...RunnerOption) *Runner {
	r := &Runner{
		d:            d,
		logger:       zap.NewNop(),
		waitTimeout:  10 * time.Second,
		pollInterval: wait.DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Named("scenario")
	return r
}

// Run executes the steps in order. After the first failure the remaining
// steps are reported as skipped.
func (r *Runner) Run(ctx context.Context, sc *Scenario) *Report {
	logger := r.logger.With(zap.String("scenario", sc.Name), zap.String("session_id", r.d.ID()))
	logger.Info("Running scenario.", zap.Int("steps", len(sc.Steps)))

	report := &Report{Scenario: sc}
	start := time.Now()
	failed := false
	r.armed = nil
	for _, step := range sc.Steps {
		if failed {
			report.Results = append(report.Results, Result{Step: step, Status: StatusSkipped})
			continue
		}
		stepStart := time.Now()
		err := r.execute(ctx, sc, step)
		if err == nil {
			err = r.verifyArmed(ctx, step)
		}
		res := Result{Step: step, Status: StatusPassed, Duration: time.Since(stepStart), Err: err}
		if err != nil {
			res.Status = StatusFailed
			failed = true
			logger.Warn("Step failed.", zap.Int("line", step.Line), zap.String("step", string(step.Kind)), zap.Error(err))
		} else {
			logger.Debug("Step passed.", zap.Int("line", step.Line), zap.String("step", string(step.Kind)), zap.Duration("duration", res.Duration))
		}
		report.Results = append(report.Results, res)
	}
	if r.armed != nil {
		r.armed.exp.Cancel()
		r.armed = nil
	}
	report.Duration = time.Since(start)
	logger.Info("Scenario finished.", zap.Bool("failed", failed), zap.Duration("duration", report.Duration))
	return report
}

// verifyArmed checks an expected dialog once the step after the arming one
// has run.
func (r *Runner) verifyArmed(ctx context.Context, step Step) error {
	if r.armed == nil || r.armed.line == step.Line {
		return nil
	}
	armed := r.armed
	r.armed = nil
	defer armed.exp.Cancel()
	text, err := armed.exp.Text(ctx)
	if err != nil {
		return fmt.Errorf("expected dialog armed at line %d: %w", armed.line, err)
	}
	if armed.message != nil && text != *armed.message {
		return fmt.Errorf("dialog message %q, want %q", text, *armed.message)
	}
	return nil
}

func (r *Runner) find(ctx context.Context, step Step) (*webdriver.WebElement, error) {
	w := wait.New(r.d, r.waitTimeout).PollingEvery(r.pollInterval)
	return wait.Until(ctx, w, wait.PresenceOfElementLocated(step.Locator))
}

func (r *Runner) resolve(sc *Scenario, raw string) (string, error) {
	base := r.baseURL
	if base == "" {
		base = sc.BaseURL
	}
	if base == "" {
		return raw, nil
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base url %q: %w", base, err)
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", raw, err)
	}
	return b.ResolveReference(ref).String(), nil
}

func (r *Runner) execute(ctx context.Context, sc *Scenario, step Step) error {
	switch step.Kind {
	case StepOpen:
		u, err := r.resolve(sc, step.URL)
		if err != nil {
			return err
		}
		return r.d.Get(ctx, u)

	case StepType:
		el, err := r.find(ctx, step)
		if err != nil {
			return err
		}
		return el.SendKeys(ctx, step.Text)

	case StepClear:
		el, err := r.find(ctx, step)
		if err != nil {
			return err
		}
		return el.Clear(ctx)

	case StepClick:
		el, err := r.find(ctx, step)
		if err != nil {
			return err
		}
		return el.Click(ctx)

	case StepSelect:
		el, err := r.find(ctx, step)
		if err != nil {
			return err
		}
		s, err := support.NewSelect(ctx, el)
		if err != nil {
			return err
		}
		switch {
		case step.DeselectAll:
			return s.DeselectAll(ctx)
		case step.Index != nil:
			return s.SelectByIndex(ctx, *step.Index)
		case step.ByValue:
			return s.SelectByValue(ctx, step.Value)
		default:
			return s.SelectByVisibleText(ctx, step.Text)
		}

	case StepUpload:
		el, err := r.find(ctx, step)
		if err != nil {
			return err
		}
		return el.SendKeys(ctx, strings.Join(step.Files, "\n"))

	case StepSwitchFrame:
		w := wait.New(r.d, r.waitTimeout).PollingEvery(r.pollInterval)
		if step.Index != nil {
			_, err := wait.Until(ctx, w, func(ctx context.Context, d *webdriver.Driver) (bool, bool, error) {
				if err := d.SwitchTo().FrameIndex(ctx, *step.Index); err != nil {
					return false, false, err
				}
				return true, true, nil
			})
			return err
		}
		_, err := wait.Until(ctx, w, wait.FrameToBeAvailableAndSwitchToIt(step.Frame))
		return err

	case StepParentFrame:
		return r.d.SwitchTo().ParentFrame(ctx)

	case StepDefaultContent:
		return r.d.SwitchTo().DefaultContent(ctx)

	case StepAlert:
		return r.alert(ctx, step)

	case StepWaitVisible:
		timeout := step.Timeout
		if timeout <= 0 {
			timeout = r.waitTimeout
		}
		w := wait.New(r.d, timeout).PollingEvery(r.pollInterval)
		_, err := wait.Until(ctx, w, wait.VisibilityOfElementLocated(step.Locator))
		return err

	case StepAssertText:
		el, err := r.find(ctx, step)
		if err != nil {
			return err
		}
		text, err := el.Text(ctx)
		if err != nil {
			return err
		}
		if step.Contains != "" && !strings.Contains(text, step.Contains) {
			return fmt.Errorf("text %q does not contain %q", text, step.Contains)
		}
		if step.Contains == "" && text != step.Text {
			return fmt.Errorf("text %q, want %q", text, step.Text)
		}
		return nil

	case StepAssertCount:
		els, err := r.d.FindElements(ctx, step.Locator)
		if err != nil {
			return err
		}
		if len(els) != step.Count {
			return fmt.Errorf("found %d elements matching %s, want %d", len(els), step.Locator, step.Count)
		}
		return nil
	}
	return fmt.Errorf("unsupported step %q", step.Kind)
}

func (r *Runner) alert(ctx context.Context, step Step) error {
	if step.Expect {
		if r.armed != nil {
			return fmt.Errorf("a dialog response is already armed at line %d", r.armed.line)
		}
		exp := r.d.SwitchTo().ExpectAlert()
		if step.Keys != nil {
			exp.SendKeys(*step.Keys)
		}
		var err error
		if step.Action == ActionDismiss {
			err = exp.Dismiss(ctx)
		} else {
			err = exp.Accept(ctx)
		}
		if err != nil {
			return err
		}
		r.armed = &armedAlert{exp: exp, message: step.Message, line: step.Line}
		return nil
	}

	a, err := r.d.SwitchTo().Alert(ctx)
	if err != nil {
		return err
	}
	if step.Message != nil {
		text, err := a.Text()
		if err != nil {
			return err
		}
		if text != *step.Message {
			return fmt.Errorf("dialog message %q, want %q", text, *step.Message)
		}
	}
	if step.Keys != nil {
		if err := a.SendKeys(*step.Keys); err != nil {
			return err
		}
	}
	if step.Action == ActionDismiss {
		return a.Dismiss(ctx)
	}
	return a.Accept(ctx)
}
