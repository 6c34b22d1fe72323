// internal/scenario/parser.go
package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/brit/playwrightium/api/schemas"
)

// ParseError reports a problem in a flow file with its location.
type ParseError struct {
	Path    string
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ParseFile reads and parses a flow file.
func ParseFile(path string) (*Scenario, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- path is a user-provided flow file
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(data, path)
}

type document struct {
	Name    string      `yaml:"name"`
	BaseURL string      `yaml:"baseURL"`
	Steps   []yaml.Node `yaml:"steps"`
}

// Parse parses flow content. sourcePath is used for error locations and to
// resolve relative upload paths.
func Parse(data []byte, sourcePath string) (*Scenario, error) {
	if strings.TrimSpace(string(data)) == "" {
		return nil, &ParseError{Path: sourcePath, Line: 1, Message: "empty flow file"}
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Path: sourcePath, Message: fmt.Sprintf("invalid flow: %v", err)}
	}
	if len(doc.Steps) == 0 {
		return nil, &ParseError{Path: sourcePath, Line: 1, Message: "flow has no steps"}
	}

	sc := &Scenario{Name: doc.Name, BaseURL: doc.BaseURL, Path: sourcePath}
	if sc.Name == "" {
		sc.Name = strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	}
	for i := range doc.Steps {
		step, err := parseStep(&doc.Steps[i], sourcePath)
		if err != nil {
			return nil, err
		}
		sc.Steps = append(sc.Steps, step)
	}
	return sc, nil
}

// stepSpec is the mapping form of a step's value.
type stepSpec struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	CSS   string `yaml:"css"`
	XPath string `yaml:"xpath"`

	URL         string        `yaml:"url"`
	Text        *string       `yaml:"text"`
	Value       *string       `yaml:"value"`
	Index       *int          `yaml:"index"`
	DeselectAll bool          `yaml:"deselectAll"`
	File        string        `yaml:"file"`
	Files       []string      `yaml:"files"`
	Frame       string        `yaml:"frame"`
	Action      string        `yaml:"action"`
	Keys        *string       `yaml:"keys"`
	Message     *string       `yaml:"message"`
	Expect      bool          `yaml:"expect"`
	Equals      *string       `yaml:"equals"`
	Contains    string        `yaml:"contains"`
	Count       *int          `yaml:"count"`
	Timeout     time.Duration `yaml:"timeout"`
}

// decodeStrict decodes a step mapping, rejecting keys stepSpec does not know.
func decodeStrict(node *yaml.Node, out *stepSpec) error {
	raw, err := yaml.Marshal(node)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		var te *yaml.TypeError
		if errors.As(err, &te) {
			return errors.New(strings.Join(stripLines(te.Errors), "; "))
		}
		return err
	}
	return nil
}

// stripLines drops the "line N: " prefix; lines of the re-encoded step do
// not match the flow file.
func stripLines(msgs []string) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		if _, rest, ok := strings.Cut(m, ": "); ok && strings.HasPrefix(m, "line ") {
			m = rest
		}
		out[i] = m
	}
	return out
}

func (s stepSpec) locator() (schemas.Locator, int) {
	var loc schemas.Locator
	n := 0
	for _, c := range []schemas.Locator{
		{Strategy: schemas.StrategyID, Value: s.ID},
		{Strategy: schemas.StrategyName, Value: s.Name},
		{Strategy: schemas.StrategyCSS, Value: s.CSS},
		{Strategy: schemas.StrategyXPath, Value: s.XPath},
	} {
		if c.Value != "" {
			loc = c
			n++
		}
	}
	return loc, n
}

func parseStep(node *yaml.Node, path string) (Step, error) {
	fail := func(line int, format string, args ...any) (Step, error) {
		return Step{}, &ParseError{Path: path, Line: line, Message: fmt.Sprintf(format, args...)}
	}

	// "- defaultContent" carries no value.
	if node.Kind == yaml.ScalarNode {
		kind := StepKind(node.Value)
		if !stepKinds[kind] {
			return fail(node.Line, "unknown step type: %s", node.Value)
		}
		return buildStep(kind, node.Line, &yaml.Node{Kind: yaml.MappingNode}, path)
	}
	if node.Kind != yaml.MappingNode || len(node.Content) != 2 {
		return fail(node.Line, "step must be a step name or a mapping with one step name")
	}
	kind := StepKind(node.Content[0].Value)
	if !stepKinds[kind] {
		return fail(node.Content[0].Line, "unknown step type: %s", node.Content[0].Value)
	}
	return buildStep(kind, node.Line, node.Content[1], path)
}

func buildStep(kind StepKind, line int, value *yaml.Node, path string) (Step, error) {
	fail := func(format string, args ...any) (Step, error) {
		return Step{}, &ParseError{Path: path, Line: line, Message: fmt.Sprintf("%s: %s", kind, fmt.Sprintf(format, args...))}
	}

	var spec stepSpec
	switch value.Kind {
	case yaml.ScalarNode:
		// Shorthand: the scalar is the step's main argument.
		switch kind {
		case StepOpen:
			spec.URL = value.Value
		case StepSwitchFrame:
			spec.Frame = value.Value
		case StepAlert:
			spec.Action = value.Value
		case StepClick, StepClear, StepWaitVisible:
			spec.CSS = value.Value
		default:
			return fail("expects a mapping")
		}
	case yaml.MappingNode:
		if err := decodeStrict(value, &spec); err != nil {
			return fail("%v", err)
		}
	default:
		return fail("expects a mapping")
	}

	step := Step{
		Kind:     kind,
		Line:     line,
		URL:      spec.URL,
		Index:    spec.Index,
		Frame:    spec.Frame,
		Action:   spec.Action,
		Keys:     spec.Keys,
		Message:  spec.Message,
		Expect:   spec.Expect,
		Contains: spec.Contains,
		Timeout:  spec.Timeout,
	}
	loc, locators := spec.locator()
	if locators > 1 {
		return fail("give only one of id, name, css and xpath")
	}
	step.Locator = loc

	needsLocator := map[StepKind]bool{
		StepType: true, StepClear: true, StepClick: true, StepSelect: true, StepUpload: true,
		StepWaitVisible: true, StepAssertText: true, StepAssertCount: true,
	}
	if needsLocator[kind] && locators == 0 {
		return fail("needs one of id, name, css or xpath")
	}

	switch kind {
	case StepOpen:
		if step.URL == "" {
			return fail("needs a url")
		}

	case StepType:
		if spec.Text == nil {
			return fail("needs text")
		}
		step.Text = *spec.Text

	case StepSelect:
		chosen := 0
		if spec.Value != nil {
			step.Value = *spec.Value
			step.ByValue = true
			chosen++
		}
		if spec.Text != nil {
			step.Text = *spec.Text
			chosen++
		}
		if spec.Index != nil {
			chosen++
		}
		if spec.DeselectAll {
			step.DeselectAll = true
			chosen++
		}
		if chosen != 1 {
			return fail("give exactly one of value, text, index and deselectAll")
		}

	case StepUpload:
		files := spec.Files
		if spec.File != "" {
			files = append([]string{spec.File}, files...)
		}
		if len(files) == 0 {
			return fail("needs file or files")
		}
		for _, f := range files {
			if !filepath.IsAbs(f) {
				f = filepath.Join(filepath.Dir(path), f)
			}
			step.Files = append(step.Files, f)
		}

	case StepSwitchFrame:
		if (step.Frame == "") == (step.Index == nil) {
			return fail("give exactly one of frame and index")
		}

	case StepAlert:
		if step.Action == "" {
			step.Action = ActionAccept
		}
		if step.Action != ActionAccept && step.Action != ActionDismiss {
			return fail("action must be %s or %s, got %q", ActionAccept, ActionDismiss, step.Action)
		}

	case StepAssertText:
		if spec.Equals == nil && spec.Contains == "" {
			return fail("needs equals or contains")
		}
		if spec.Equals != nil {
			step.Text = *spec.Equals
		}

	case StepAssertCount:
		if spec.Count == nil || *spec.Count < 0 {
			return fail("needs a count of zero or more")
		}
		step.Count = *spec.Count
	}
	return step, nil
}
