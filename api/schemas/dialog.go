// api/schemas/dialog.go
package schemas

// DialogKind is the type of a native browser dialog.
type DialogKind string

const (
	DialogAlert        DialogKind = "alert"
	DialogConfirm      DialogKind = "confirm"
	DialogPrompt       DialogKind = "prompt"
	DialogBeforeUnload DialogKind = "beforeunload"
)

// Dialog describes a dialog the browser raised. Seq increases with every
// dialog a session observes, so two dialogs with the same text stay distinct.
type Dialog struct {
	Seq           uint64
	Kind          DialogKind
	Message       string
	DefaultPrompt string
}
