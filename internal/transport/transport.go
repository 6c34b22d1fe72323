// internal/transport/transport.go
package transport

import (
	"context"
	"errors"

	"github.com/brit/playwrightium/api/schemas"
)

// FrameID identifies a frame (browsing context) within a page. The main
// frame has an ID like any other frame; see Transport.MainFrame.
type FrameID string

// DocumentID identifies one loaded document of a frame. It changes every
// time the frame navigates.
type DocumentID string

// NodeRef is an opaque reference to a DOM node. The zero value addresses
// the document node of whichever frame a query runs against.
type NodeRef string

// QueryKind selects the native lookup primitive used by Query.
type QueryKind int

const (
	QueryCSS QueryKind = iota
	QueryXPath
	// QueryAttribute matches elements whose attribute Name equals Value exactly.
	QueryAttribute
)

// Query is a single native lookup. Expr is used by css and xpath queries.
type Query struct {
	Kind  QueryKind
	Expr  string
	Name  string
	Value string
}

// FrameInfo describes a child frame as seen from its parent document.
type FrameInfo struct {
	ID FrameID
	// Name and ElementID are the name and id attributes of the owning
	// <frame>/<iframe> element.
	Name      string
	ElementID string
}

// NodeInfo is a snapshot of the state of a single element.
type NodeInfo struct {
	Tag       string
	Type      string
	Multiple  bool
	Selected  bool
	Editable  bool
	Enabled   bool
	Displayed bool
}

var (
	// ErrContextLost means the node's document or execution context no longer exists.
	ErrContextLost = errors.New("transport: execution context lost")
	// ErrTargetClosed means the browser context is gone.
	ErrTargetClosed = errors.New("transport: target closed")
	// ErrInvalidQuery means the query expression could not be compiled.
	ErrInvalidQuery = errors.New("transport: invalid query")
	// ErrNoDialog means HandleDialog was called with no dialog open.
	ErrNoDialog = errors.New("transport: no dialog open")
	// ErrNoSuchFrame means the frame is unknown or detached.
	ErrNoSuchFrame = errors.New("transport: no such frame")
	// ErrUnsupported means the transport cannot perform the operation.
	ErrUnsupported = errors.New("transport: unsupported")
)

// Transport is the browser automation capability the driver is built on.
// A Transport owns exactly one browser context with one page.
type Transport interface {
	Open(ctx context.Context) error
	Close(ctx context.Context) error
	// Events delivers asynchronous browser events. The channel is closed by Close.
	Events() <-chan Event

	MainFrame() FrameID
	Navigate(ctx context.Context, url string) error
	Back(ctx context.Context) error
	Forward(ctx context.Context) error
	Reload(ctx context.Context) error
	CurrentURL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	PageSource(ctx context.Context, frame FrameID) (string, error)

	Document(ctx context.Context, frame FrameID) (DocumentID, error)
	Frames(ctx context.Context, parent FrameID) ([]FrameInfo, error)
	FrameOf(ctx context.Context, node NodeRef) (FrameID, error)

	Query(ctx context.Context, frame FrameID, root NodeRef, q Query) ([]NodeRef, error)
	Describe(ctx context.Context, node NodeRef) (NodeInfo, error)
	Text(ctx context.Context, node NodeRef) (string, error)
	// Attribute returns the markup attribute; ok is false when it is absent.
	Attribute(ctx context.Context, node NodeRef, name string) (value string, ok bool, err error)
	// Property returns the live DOM property (value, checked, selected, ...).
	Property(ctx context.Context, node NodeRef, name string) (any, error)
	SetProperty(ctx context.Context, node NodeRef, name string, value any) error
	DispatchEvent(ctx context.Context, node NodeRef, eventType string) error
	Click(ctx context.Context, node NodeRef) error
	// Submit submits the form owning node (or node itself when it is a form).
	Submit(ctx context.Context, node NodeRef) error
	Type(ctx context.Context, node NodeRef, text string) error
	Clear(ctx context.Context, node NodeRef) error
	SetFiles(ctx context.Context, node NodeRef, paths []string) error

	Evaluate(ctx context.Context, frame FrameID, script string, out any) error
	HandleDialog(ctx context.Context, accept bool, promptText string) error
}

// EventKind discriminates Event.
type EventKind int

const (
	EventDialogOpened EventKind = iota + 1
	EventDialogClosed
	EventFrameNavigated
	EventFrameDetached
	EventTargetClosed
)

func (k EventKind) String() string {
	switch k {
	case EventDialogOpened:
		return "dialog_opened"
	case EventDialogClosed:
		return "dialog_closed"
	case EventFrameNavigated:
		return "frame_navigated"
	case EventFrameDetached:
		return "frame_detached"
	case EventTargetClosed:
		return "target_closed"
	}
	return "unknown"
}

// Event is a browser notification. Only the fields relevant to Kind are set.
type Event struct {
	Kind     EventKind
	Frame    FrameID
	Document DocumentID
	// Main is set on FrameNavigated for the top-level frame.
	Main   bool
	Dialog schemas.Dialog
}
