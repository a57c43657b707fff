package types

import "time"

// ActionKind identifies the variant of an Action.
type ActionKind string

const (
	ActionKindNavigate   ActionKind = "navigate"
	ActionKindClick      ActionKind = "click"
	ActionKindType       ActionKind = "type"
	ActionKindScroll     ActionKind = "scroll"
	ActionKindExtract    ActionKind = "extract"
	ActionKindScreenshot ActionKind = "screenshot"
	ActionKindWait       ActionKind = "wait"
	ActionKindHover      ActionKind = "hover"
	ActionKindSelect     ActionKind = "select"
)

// Action is one atomic operation against a page. The set of variants is
// closed: the executor dispatches on the concrete type and treats anything
// else as a programming error. Actions are immutable once constructed.
type Action interface {
	Kind() ActionKind
}

// NavigateAction loads a URL in the page.
type NavigateAction struct {
	URL string
}

func (NavigateAction) Kind() ActionKind { return ActionKindNavigate }

// ClickAction clicks the first selector that resolves. Fallbacks are tried
// strictly in order after the primary selector; the action only fails when
// every selector has failed.
type ClickAction struct {
	Selector  string
	Fallbacks []string
}

func (ClickAction) Kind() ActionKind { return ActionKindClick }

// Selectors returns the primary selector followed by the fallbacks, in the
// order they must be attempted.
func (a ClickAction) Selectors() []string {
	return append([]string{a.Selector}, a.Fallbacks...)
}

// TypeAction types text into the element matching the selector. Delay is the
// pause between keystrokes; zero means the driver's default.
type TypeAction struct {
	Selector string
	Text     string
	Delay    time.Duration
}

func (TypeAction) Kind() ActionKind { return ActionKindType }

// ScrollAction scrolls the page or a specific element. Direction is "up" or
// "down"; Amount is in pixels (zero means one viewport).
type ScrollAction struct {
	Direction string
	Amount    int
	Selector  string
}

func (ScrollAction) Kind() ActionKind { return ActionKindScroll }

// ExtractField names one value to read from the page. If Attribute is empty
// the element's text content is extracted.
type ExtractField struct {
	Name      string
	Selector  string
	Attribute string
}

// ExtractAction reads a set of fields from the page. Missing fields are
// reported in the result rather than raised, since partial extraction is
// expected and recoverable.
type ExtractAction struct {
	Fields []ExtractField
}

func (ExtractAction) Kind() ActionKind { return ActionKindExtract }

// ScreenshotAction captures the current page.
type ScreenshotAction struct {
	FullPage bool
}

func (ScreenshotAction) Kind() ActionKind { return ActionKindScreenshot }

// WaitAction waits for a selector to appear, or for a fixed duration when
// Selector is empty.
type WaitAction struct {
	Selector string
	Timeout  time.Duration
	Duration time.Duration
}

func (WaitAction) Kind() ActionKind { return ActionKindWait }

// HoverAction moves the pointer over the element matching the selector.
type HoverAction struct {
	Selector string
}

func (HoverAction) Kind() ActionKind { return ActionKindHover }

// SelectAction chooses an option in a select element.
type SelectAction struct {
	Selector string
	Value    string
}

func (SelectAction) Kind() ActionKind { return ActionKindSelect }
