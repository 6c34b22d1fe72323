// internal/scenario/scenario.go
package scenario

import (
	"time"

	"github.com/brit/playwrightium/api/schemas"
)

// StepKind names a step in a flow file.
type StepKind string

const (
	StepOpen           StepKind = "open"
	StepType           StepKind = "type"
	StepClear          StepKind = "clear"
	StepClick          StepKind = "click"
	StepSelect         StepKind = "select"
	StepUpload         StepKind = "upload"
	StepSwitchFrame    StepKind = "switchFrame"
	StepParentFrame    StepKind = "parentFrame"
	StepDefaultContent StepKind = "defaultContent"
	StepAlert          StepKind = "alert"
	StepWaitVisible    StepKind = "waitVisible"
	StepAssertText     StepKind = "assertText"
	StepAssertCount    StepKind = "assertCount"
)

var stepKinds = map[StepKind]bool{
	StepOpen: true, StepType: true, StepClear: true, StepClick: true, StepSelect: true,
	StepUpload: true, StepSwitchFrame: true, StepParentFrame: true, StepDefaultContent: true,
	StepAlert: true, StepWaitVisible: true, StepAssertText: true, StepAssertCount: true,
}

// Alert actions.
const (
	ActionAccept  = "accept"
	ActionDismiss = "dismiss"
)

// Scenario is one parsed flow file.
type Scenario struct {
	Name    string
	BaseURL string
	Path    string
	Steps   []Step
}

// Step is a single action or assertion. Which fields are set depends on Kind.
type Step struct {
	Kind StepKind
	Line int

	Locator schemas.Locator

	// open
	URL string
	// type, select by visible text, assertText equality
	Text string
	// select by value when ByValue is set
	Value   string
	ByValue bool
	// select by index, switchFrame by index
	Index *int
	// select
	DeselectAll bool
	// upload, resolved against the flow file's directory
	Files []string
	// switchFrame by name or id
	Frame string
	// alert
	Action  string
	Keys    *string
	Message *string
	Expect  bool
	// assertText substring
	Contains string
	// assertCount
	Count int
	// waitVisible; zero uses the runner default
	Timeout time.Duration
}
