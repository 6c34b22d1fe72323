// internal/transport/htmldoc/dom.go
package htmldoc

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

func walk(n *html.Node, fn func(*html.Node) bool) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if fn(c) {
			walk(c, fn)
		}
	}
}

func findFirst(root *html.Node, match func(*html.Node) bool) *html.Node {
	var found *html.Node
	walk(root, func(n *html.Node) bool {
		if found != nil {
			return false
		}
		if match(n) {
			found = n
			return false
		}
		return true
	})
	return found
}

func attrOK(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

func attr(n *html.Node, key string) string {
	v, _ := attrOK(n, key)
	return v
}

func hasAttr(n *html.Node, key string) bool {
	_, ok := attrOK(n, key)
	return ok
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	out := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			continue
		}
		out = append(out, a)
	}
	n.Attr = out
}

func setBoolAttr(n *html.Node, key string, on bool) {
	if on {
		setAttr(n, key, "")
	} else {
		removeAttr(n, key)
	}
}

func setText(n *html.Node, text string) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	if text != "" {
		n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	walk(n, func(c *html.Node) bool {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
		return true
	})
	return sb.String()
}

func inputType(n *html.Node) string {
	if n.Data != "input" {
		return ""
	}
	t := strings.ToLower(strings.TrimSpace(attr(n, "type")))
	if t == "" {
		return "text"
	}
	return t
}

var textInputTypes = map[string]bool{
	"text": true, "password": true, "email": true, "search": true, "tel": true,
	"url": true, "number": true, "date": true, "datetime-local": true,
	"month": true, "week": true, "time": true, "color": true,
}

func isTextControl(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	return n.Data == "textarea" || textInputTypes[inputType(n)]
}

func isEnabled(n *html.Node) bool {
	switch n.Data {
	case "input", "textarea", "select", "button", "option", "optgroup", "fieldset":
		if hasAttr(n, "disabled") {
			return false
		}
	}
	for p := n.Parent; p != nil && p.Type == html.ElementNode; p = p.Parent {
		switch p.Data {
		case "select", "optgroup", "fieldset":
			if hasAttr(p, "disabled") {
				return false
			}
		}
	}
	return true
}

func isEditable(n *html.Node) bool {
	return isTextControl(n) && isEnabled(n) && !hasAttr(n, "readonly")
}

var (
	displayNone      = regexp.MustCompile(`(?i)(^|;)\s*display\s*:\s*none\s*(!important)?\s*(;|$)`)
	visibilityHidden = regexp.MustCompile(`(?i)(^|;)\s*visibility\s*:\s*(hidden|collapse)\s*(!important)?\s*(;|$)`)
)

var hiddenTags = map[string]bool{
	"head": true, "script": true, "style": true, "title": true, "meta": true,
	"link": true, "noscript": true, "template": true, "base": true,
}

func hiddenSelf(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if hiddenTags[n.Data] || hasAttr(n, "hidden") {
		return true
	}
	if n.Data == "input" && inputType(n) == "hidden" {
		return true
	}
	style := attr(n, "style")
	return style != "" && (displayNone.MatchString(style) || visibilityHidden.MatchString(style))
}

// isDisplayed applies the inline rendering rules available without a
// style engine: hidden attributes, inline display/visibility and
// non-rendered elements, inherited from every ancestor.
func isDisplayed(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if hiddenSelf(p) {
			return false
		}
	}
	return true
}

var blockTags = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true, "dd": true,
	"div": true, "dl": true, "dt": true, "fieldset": true, "figcaption": true,
	"figure": true, "footer": true, "form": true, "h1": true, "h2": true, "h3": true,
	"h4": true, "h5": true, "h6": true, "header": true, "hr": true, "li": true,
	"main": true, "nav": true, "ol": true, "p": true, "pre": true, "section": true,
	"table": true, "tr": true, "ul": true, "option": true, "caption": true,
	"tbody": true, "thead": true, "tfoot": true, "legend": true, "body": true,
}

var spaceRun = regexp.MustCompile(`[ \t\n\r\f]+`)

func collapseSpace(s string) string {
	return spaceRun.ReplaceAllString(s, " ")
}

// visibleText renders the text a user would see: hidden subtrees are
// skipped, whitespace collapses, block elements and <br> break lines and
// non-breaking spaces become plain spaces.
func visibleText(n *html.Node) string {
	if !isDisplayed(n) {
		return ""
	}
	var sb strings.Builder
	var render func(*html.Node)
	render = func(c *html.Node) {
		switch c.Type {
		case html.TextNode:
			sb.WriteString(collapseSpace(c.Data))
			return
		case html.ElementNode:
			if hiddenSelf(c) {
				return
			}
			if c.Data == "br" {
				sb.WriteByte('\n')
				return
			}
			if c.Data == "td" || c.Data == "th" {
				sb.WriteByte(' ')
			}
		}
		block := c.Type == html.ElementNode && blockTags[c.Data]
		if block {
			sb.WriteByte('\n')
		}
		for cc := c.FirstChild; cc != nil; cc = cc.NextSibling {
			render(cc)
		}
		if block {
			sb.WriteByte('\n')
		}
	}
	if n.Type == html.ElementNode && n.Data == "textarea" {
		return strings.TrimSpace(textContent(n))
	}
	render(n)

	lines := strings.Split(sb.String(), "\n")
	out := lines[:0]
	for _, l := range lines {
		l = strings.Trim(l, " ")
		if l != "" {
			out = append(out, strings.ReplaceAll(l, "\u00a0", " "))
		}
	}
	return strings.Join(out, "\n")
}

func options(sel *html.Node) []*html.Node {
	var opts []*html.Node
	walk(sel, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "option" {
			opts = append(opts, n)
			return false
		}
		return true
	})
	return opts
}

func enclosing(n *html.Node, tag string) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && p.Data == tag {
			return p
		}
	}
	return nil
}

func optionValue(o *html.Node) string {
	if v, ok := attrOK(o, "value"); ok {
		return v
	}
	return strings.TrimSpace(collapseSpace(textContent(o)))
}
