// internal/testpages/testpages.go
package testpages

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/brit/playwrightium/internal/transport/htmldoc"
)

// Paths served by Handler.
const (
	FormPath      = "/styled/basic-html-form-test.html"
	ProcessorPath = "/styled/the_form_processor.php"
	FramesPath    = "/styled/frames/frames-test.html"
	AlertsPath    = "/styled/alerts/alert-test.html"
)

// Frame contents of the frameset page: name, heading and list length.
var Frames = []struct {
	Name  string
	Title string
	Items int
}{
	{"top", "Top", 0},
	{"left", "Left", 30},
	{"middle", "Middle", 40},
	{"right", "Right", 50},
	{"bottom", "Bottom", 0},
}

// Messages raised and rendered by the alerts page.
const (
	AlertMessage   = "I am an alert box!"
	ConfirmMessage = "I am a confirm alert"
	PromptMessage  = "I prompt you"
	PromptDefault  = "change me"
)

// NewServer starts a server for Handler. The caller closes it.
func NewServer() *httptest.Server {
	return httptest.NewServer(Handler())
}

// Handler serves the form, frames and alerts pages.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(FormPath, servePage(formPage))
	mux.HandleFunc(ProcessorPath, processForm)
	mux.HandleFunc(FramesPath, servePage(framesetPage))
	for _, f := range Frames {
		mux.HandleFunc("/styled/frames/frames-test-"+f.Name+".html", serveFrame(f.Title, f.Items))
	}
	mux.HandleFunc(AlertsPath, servePage(alertsPage))
	return mux
}

// Behaviors reproduce the alerts page script for a browser without a
// script engine.
func Behaviors() []htmldoc.Option {
	return []htmldoc.Option{
		htmldoc.OnClick("#alertexamples", func(ctx context.Context, p *htmldoc.Page) error {
			if err := p.Alert(ctx, AlertMessage); err != nil {
				return err
			}
			return p.SetText("#alertexplanation", "You triggered and handled the alert dialog")
		}),
		htmldoc.OnClick("#confirmexample", func(ctx context.Context, p *htmldoc.Page) error {
			ok, err := p.Confirm(ctx, ConfirmMessage)
			if err != nil {
				return err
			}
			if err := p.SetText("#confirmreturn", fmt.Sprint(ok)); err != nil {
				return err
			}
			return p.SetText("#confirmexplanation", ConfirmExplanation(ok))
		}),
		htmldoc.OnClick("#promptexample", func(ctx context.Context, p *htmldoc.Page) error {
			text, ok, err := p.Prompt(ctx, PromptMessage, PromptDefault)
			if err != nil {
				return err
			}
			ret := "null"
			if ok {
				ret = text
			}
			if err := p.SetText("#promptreturn", ret); err != nil {
				return err
			}
			// The page separates the value with a space and a non-breaking space.
			return p.SetText("#promptexplanation", strings.Replace(PromptExplanation(text, ok), "  ", " \u00a0", 1))
		}),
	}
}

// ConfirmExplanation is the text the alerts page shows after a confirm.
func ConfirmExplanation(accepted bool) string {
	if accepted {
		return "You clicked OK, confirm returned true."
	}
	return "You clicked Cancel, confirm returned false."
}

// PromptExplanation is the text the alerts page shows after a prompt.
func PromptExplanation(text string, accepted bool) string {
	if accepted {
		return "You clicked OK. 'prompt' returned  " + text
	}
	return "You clicked Cancel. 'prompt' returned null"
}

func servePage(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, body)
	}
}

func serveFrame(title string, items int) http.HandlerFunc {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<html><head><title>Frame %s</title></head><body><h1>%s</h1>", title, title)
	if items > 0 {
		sb.WriteString("<ul>")
		for i := 1; i <= items; i++ {
			fmt.Fprintf(&sb, "<li>%s List Item %d</li>", title, i)
		}
		sb.WriteString("</ul>")
	}
	sb.WriteString("</body></html>")
	return servePage(sb.String())
}

// processorFields is the rendering order of the processed form page.
var processorFields = []string{
	"username", "password", "comments", "filename", "hiddenField",
	"checkboxes[]", "radioval", "multipleselect[]", "dropdown", "submitbutton",
}

var processorTemplate = template.Must(template.New("processor").Parse(`<html>
<head><title>Processed Form Details</title></head>
<body>
<h1>Processed Form Details</h1>
<p>You submitted a form. The details below show the values you entered for processing.</p>
{{range .}}<div id="_{{.Name}}">
<p><strong>{{.Name}}</strong></p>
<ul>{{$name := .Name}}{{if .Multi}}{{range $i, $v := .Values}}<li id="_value{{$name}}{{$i}}">{{$v}}</li>{{end}}{{else}}<li id="_value{{$name}}">{{index .Values 0}}</li>{{end}}</ul>
</div>
{{end}}</body>
</html>`))

type processedField struct {
	Name   string
	Multi  bool
	Values []string
}

func processForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(10 << 20); err != nil && err != http.ErrNotMultipart {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if r.Form == nil {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	var fields []processedField
	for _, key := range processorFields {
		values := r.Form[key]
		if key == "filename" && r.MultipartForm != nil {
			for _, fh := range r.MultipartForm.File[key] {
				if fh.Filename != "" {
					values = append(values, fh.Filename)
				}
			}
		}
		if len(values) == 0 {
			continue
		}
		multi := strings.HasSuffix(key, "[]")
		fields = append(fields, processedField{Name: strings.TrimSuffix(key, "[]"), Multi: multi, Values: values})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := processorTemplate.Execute(w, fields); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

const formPage = `<!DOCTYPE html>
<html>
<head><title>HTML Form Elements</title></head>
<body>
<h1>Basic HTML Form Example</h1>
<form name="HTMLFormElements" id="HTMLFormElements" action="the_form_processor.php" method="post" enctype="multipart/form-data">
<table>
<tr><td>Username:</td><td><input type="text" name="username" size="15"></td></tr>
<tr><td>Password:</td><td><input type="password" name="password" size="15"></td></tr>
<tr><td>TextArea Comment:</td><td><textarea cols="40" rows="5" name="comments">Comments...</textarea></td></tr>
<tr><td>Filename:</td><td><input type="file" name="filename"></td></tr>
<tr><td><input type="hidden" name="hiddenField" value="Hidden Field Value"></td></tr>
<tr><td>Checkbox Items:</td><td>
<input type="checkbox" name="checkboxes[]" value="cb1"> Checkbox 1
<input type="checkbox" name="checkboxes[]" value="cb2"> Checkbox 2
<input type="checkbox" name="checkboxes[]" value="cb3" checked> Checkbox 3
</td></tr>
<tr><td>Radio Items:</td><td>
<input type="radio" name="radioval" value="rd1"> Radio 1
<input type="radio" name="radioval" value="rd2" checked> Radio 2
<input type="radio" name="radioval" value="rd3"> Radio 3
</td></tr>
<tr><td>Multiple Select Values:</td><td>
<select multiple="multiple" name="multipleselect[]" size="4">
<option value="ms1">Selection Item 1</option>
<option value="ms2">Selection Item 2</option>
<option value="ms3">Selection Item 3</option>
<option value="ms4" selected>Selection Item 4</option>
</select>
</td></tr>
<tr><td>Dropdown:</td><td>
<select name="dropdown">
<option value="dd1">Drop Down Item 1</option>
<option value="dd2">Drop Down Item 2</option>
<option value="dd3" selected>Drop Down Item 3</option>
<option value="dd4">Drop Down Item 4</option>
<option value="dd5">Drop Down Item 5</option>
<option value="dd6">Drop Down Item 6</option>
</select>
</td></tr>
<tr><td colspan="2">
<input type="reset" name="resetbutton" value="cancel">
<input type="submit" name="submitbutton" value="submit">
</td></tr>
</table>
</form>
<p id="hidden-note" style="display: none">not rendered</p>
</body>
</html>`

const framesetPage = `<!DOCTYPE html>
<html>
<head><title>Frameset Example Title (Example 6)</title></head>
<frameset rows="15%,75%,10%">
<frame name="top" src="frames-test-top.html">
<frameset cols="25%,50%,25%">
<frame name="left" id="left-frame" src="frames-test-left.html">
<frame name="middle" src="frames-test-middle.html">
<frame name="right" src="frames-test-right.html">
</frameset>
<frame name="bottom" src="frames-test-bottom.html">
</frameset>
</html>`

const alertsPage = `<!DOCTYPE html>
<html>
<head>
<title>Alert Box Examples</title>
<script>
function alertexamples() {
  alert("I am an alert box!");
  document.getElementById("alertexplanation").innerText = "You triggered and handled the alert dialog";
}
function confirmexample() {
  var ret = confirm("I am a confirm alert");
  document.getElementById("confirmreturn").innerText = "" + ret;
  document.getElementById("confirmexplanation").innerText = ret
    ? "You clicked OK, confirm returned true."
    : "You clicked Cancel, confirm returned false.";
}
function promptexample() {
  var ret = prompt("I prompt you", "change me");
  document.getElementById("promptreturn").innerText = ret === null ? "null" : ret;
  document.getElementById("promptexplanation").innerText = ret === null
    ? "You clicked Cancel. 'prompt' returned null"
    : "You clicked OK. 'prompt' returned \u00a0" + ret;
}
</script>
</head>
<body>
<h1>Alert Box Examples</h1>
<p><input type="button" id="alertexamples" value="Show alert box" onclick="alertexamples()"></p>
<p id="alertexplanation"></p>
<p><input type="button" id="confirmexample" value="Show confirm box" onclick="confirmexample()"></p>
<p id="confirmexplanation"></p>
<p id="confirmreturn"></p>
<p><input type="button" id="promptexample" value="Show prompt box" onclick="promptexample()"></p>
<p id="promptexplanation"></p>
<p id="promptreturn"></p>
</body>
</html>`
