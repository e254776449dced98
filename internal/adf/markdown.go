package adf

import (
	"bytes"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// The parser configuration never changes and goldmark parsers are safe to
// share; every Parse call builds its own state.
var (
	markdownParser     goldmark.Markdown
	markdownParserOnce sync.Once
)

func getMarkdownParser() goldmark.Markdown {
	markdownParserOnce.Do(func() {
		markdownParser = goldmark.New(
			goldmark.WithExtensions(
				extension.Strikethrough,
				extension.Linkify,
			),
		)
	})
	return markdownParser
}

// alertPattern matches a GitHub-style alert marker ("[!WARNING]") at the
// start of a blockquote.
var alertPattern = regexp.MustCompile(`^\[!([A-Za-z]+)\][ \t]*\n?`)

// alertPanelTypes maps alert markers onto ADF panel types.
var alertPanelTypes = map[string]string{
	"INFO":      "info",
	"IMPORTANT": "info",
	"NOTE":      "note",
	"TIP":       "success",
	"SUCCESS":   "success",
	"WARNING":   "warning",
	"CAUTION":   "error",
	"ERROR":     "error",
	"DANGER":    "error",
}

// FromMarkdown converts CommonMark source into a document.
//
// Headings, paragraphs, bullet and ordered lists, fenced and indented code
// blocks map one to one. Emphasis, strong, inline code, strikethrough and
// links become marks. Blockquotes become panels; a leading "[!WARNING]"
// style marker picks the panel type, otherwise the panel is an info panel.
// Thematic breaks are dropped and raw HTML is kept as literal text.
func FromMarkdown(source string) Node {
	src := []byte(source)
	root := getMarkdownParser().Parser().Parse(text.NewReader(src))
	conv := &mdConverter{source: src}
	return Document(conv.blocks(root)...)
}

type mdConverter struct {
	source []byte
}

func (c *mdConverter) blocks(parent ast.Node) []Node {
	var out []Node
	for child := parent.FirstChild(); child != nil; child = child.NextSibling() {
		switch n := child.(type) {
		case *ast.Heading:
			out = append(out, Heading(n.Level, c.inlines(n, nil)...))
		case *ast.Paragraph, *ast.TextBlock:
			if inline := c.inlines(n, nil); len(inline) > 0 {
				out = append(out, Paragraph(inline...))
			}
		case *ast.List:
			items := make([]Node, 0, n.ChildCount())
			for item := n.FirstChild(); item != nil; item = item.NextSibling() {
				items = append(items, ListItem(c.blocks(item)...))
			}
			if n.IsOrdered() {
				out = append(out, OrderedList(items...))
			} else {
				out = append(out, BulletList(items...))
			}
		case *ast.FencedCodeBlock:
			out = append(out, CodeBlock(c.lines(n), string(n.Language(c.source))))
		case *ast.CodeBlock:
			out = append(out, CodeBlock(c.lines(n), ""))
		case *ast.Blockquote:
			out = append(out, c.panel(n))
		case *ast.HTMLBlock:
			if raw := strings.TrimSpace(c.lines(n)); raw != "" {
				out = append(out, Paragraph(Text(raw)))
			}
		case *ast.ThematicBreak:
			// no ADF kind in this package for rules
		default:
			out = append(out, c.blocks(n)...)
		}
	}
	return out
}

func (c *mdConverter) panel(quote *ast.Blockquote) Node {
	children := c.blocks(quote)
	panelType := DefaultPanelType

	if len(children) > 0 && children[0].Type == KindParagraph && len(children[0].Content) > 0 {
		first := children[0].Content[0]
		if first.Type == KindText {
			if m := alertPattern.FindStringSubmatch(first.Text); m != nil {
				if mapped, ok := alertPanelTypes[strings.ToUpper(m[1])]; ok {
					panelType = mapped
					rest := strings.TrimLeft(first.Text[len(m[0]):], " \t")
					para := children[0].Clone()
					if rest == "" {
						para.Content = para.Content[1:]
					} else {
						para.Content[0].Text = rest
					}
					if len(para.Content) == 0 {
						children = children[1:]
					} else {
						children[0] = para
					}
				}
			}
		}
	}
	return Panel(panelType, children...)
}

// inlines flattens the inline children of n into text nodes, carrying the
// marks of every enclosing emphasis, link or code span.
func (c *mdConverter) inlines(n ast.Node, marks []Mark) []Node {
	var out []Node
	emit := func(value string, marks []Mark) {
		if value == "" {
			return
		}
		if last := len(out) - 1; last >= 0 && out[last].Type == KindText && sameMarks(out[last].Marks, marks) {
			out[last].Text += value
			return
		}
		out = append(out, Text(value, marks...))
	}

	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		switch in := child.(type) {
		case *ast.Text:
			value := string(in.Segment.Value(c.source))
			switch {
			case in.HardLineBreak():
				value += "\n"
			case in.SoftLineBreak():
				value += " "
			}
			emit(value, marks)
		case *ast.String:
			emit(string(in.Value), marks)
		case *ast.Emphasis:
			m := Em()
			if in.Level >= 2 {
				m = Strong()
			}
			for _, t := range c.inlines(in, withMark(marks, m)) {
				emit(t.Text, t.Marks)
			}
		case *ast.CodeSpan:
			var buf bytes.Buffer
			for seg := in.FirstChild(); seg != nil; seg = seg.NextSibling() {
				if t, ok := seg.(*ast.Text); ok {
					buf.Write(t.Segment.Value(c.source))
				}
			}
			emit(buf.String(), withMark(marks, Code()))
		case *ast.Link:
			for _, t := range c.inlines(in, withMark(marks, Link(string(in.Destination)))) {
				emit(t.Text, t.Marks)
			}
		case *ast.AutoLink:
			emit(string(in.Label(c.source)), withMark(marks, Link(string(in.URL(c.source)))))
		case *ast.Image:
			for _, t := range c.inlines(in, withMark(marks, Link(string(in.Destination)))) {
				emit(t.Text, t.Marks)
			}
		case *extast.Strikethrough:
			for _, t := range c.inlines(in, withMark(marks, Strike())) {
				emit(t.Text, t.Marks)
			}
		case *ast.RawHTML:
			var buf bytes.Buffer
			for i := 0; i < in.Segments.Len(); i++ {
				seg := in.Segments.At(i)
				buf.Write(seg.Value(c.source))
			}
			emit(buf.String(), marks)
		default:
			for _, t := range c.inlines(in, marks) {
				emit(t.Text, t.Marks)
			}
		}
	}
	return out
}

func (c *mdConverter) lines(n ast.Node) string {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(c.source))
	}
	return strings.TrimRight(buf.String(), "\n")
}

func withMark(marks []Mark, m Mark) []Mark {
	out := make([]Mark, 0, len(marks)+1)
	out = append(out, marks...)
	return append(out, m)
}

func sameMarks(a, b []Mark) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}
