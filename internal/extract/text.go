package extract

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	anySpace        = regexp.MustCompile(`[\s\x{00a0}]+`)
	horizontalSpace = regexp.MustCompile(`[ \t\f\v\x{00a0}]+`)
	blankLines      = regexp.MustCompile(`\n{3,}`)
)

var skippedElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Svg:      true,
	atom.Head:     true,
	atom.Iframe:   true,
}

var blockElements = map[atom.Atom]bool{
	atom.Address: true, atom.Aside: true, atom.Blockquote: true, atom.Br: true,
	atom.Dd: true, atom.Div: true, atom.Dl: true, atom.Dt: true, atom.Fieldset: true,
	atom.Figcaption: true, atom.Figure: true, atom.Footer: true, atom.Form: true,
	atom.H5: true, atom.H6: true, atom.Header: true, atom.Hr: true, atom.Li: true,
	atom.Main: true, atom.Nav: true, atom.Pre: true, atom.Tr: true,
}

var paragraphElements = map[atom.Atom]bool{
	atom.P: true, atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true,
	atom.Section: true, atom.Article: true, atom.Ul: true, atom.Ol: true, atom.Table: true,
}

// VisibleText approximates the rendered innerText of the document body:
// script and style content is dropped, block elements break lines and
// paragraphs are separated by a blank line.
func VisibleText(doc *goquery.Document) string {
	body := doc.Find("body")
	if body.Length() == 0 {
		return selectionText(doc.Selection)
	}
	return selectionText(body)
}

func selectionText(sel *goquery.Selection) string {
	w := &textWriter{}
	for _, n := range sel.Nodes {
		w.node(n)
	}
	return normalizeText(string(w.buf))
}

type textWriter struct {
	buf []byte
}

func (w *textWriter) node(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		w.text(n.Data)
		return
	case html.CommentNode, html.DoctypeNode:
		return
	case html.ElementNode:
		if skippedElements[n.DataAtom] {
			return
		}
	}
	breaks := 0
	if n.Type == html.ElementNode {
		switch {
		case paragraphElements[n.DataAtom]:
			breaks = 2
		case blockElements[n.DataAtom]:
			breaks = 1
		}
	}
	w.lineBreak(breaks)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.node(c)
	}
	w.lineBreak(breaks)
}

func (w *textWriter) text(s string) {
	s = anySpace.ReplaceAllString(s, " ")
	if len(w.buf) == 0 || w.buf[len(w.buf)-1] == '\n' || w.buf[len(w.buf)-1] == ' ' {
		s = strings.TrimLeft(s, " ")
	}
	w.buf = append(w.buf, s...)
}

// lineBreak makes the buffer end with at least n newlines.
func (w *textWriter) lineBreak(n int) {
	if n == 0 {
		return
	}
	w.buf = bytes.TrimRight(w.buf, " ")
	if len(w.buf) == 0 {
		return
	}
	have := len(w.buf) - len(bytes.TrimRight(w.buf, "\n"))
	for ; have < n; have++ {
		w.buf = append(w.buf, '\n')
	}
}

// normalizeText collapses runs of horizontal whitespace, trims every line and
// keeps at most one blank line between paragraphs.
func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(horizontalSpace.ReplaceAllString(line, " "))
	}
	s = strings.Join(lines, "\n")
	s = blankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// inlineText squashes all whitespace, including newlines, to single spaces.
func inlineText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
