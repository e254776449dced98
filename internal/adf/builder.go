package adf

// DefaultPanelType is used by Panel when no panel type is given.
const DefaultPanelType = "info"

// Mark types Jira understands for text nodes.
const (
	MarkStrong = "strong"
	MarkEm     = "em"
	MarkCode   = "code"
	MarkStrike = "strike"
	MarkLink   = "link"
)

// Document returns the root doc node.
func Document(children ...Node) Node {
	return Node{Type: KindDoc, Version: DocVersion, Content: nodes(children)}
}

// Paragraph returns a paragraph holding inline children.
func Paragraph(children ...Node) Node {
	return Node{Type: KindParagraph, Content: nodes(children)}
}

// Heading returns a heading of the given level. The level is not range
// checked; Jira rejects values outside 1-6 itself.
func Heading(level int, children ...Node) Node {
	return Node{
		Type:    KindHeading,
		Attrs:   map[string]any{AttrLevel: level},
		Content: nodes(children),
	}
}

// Text returns a text node. The marks field is omitted when no marks are
// given.
func Text(value string, marks ...Mark) Node {
	n := Node{Type: KindText, Text: value}
	if len(marks) > 0 {
		n.Marks = append([]Mark(nil), marks...)
	}
	return n
}

// NewMark returns a mark of the given type. attrs is only set when
// non-empty.
func NewMark(kind string, attrs map[string]any) Mark {
	if len(attrs) == 0 {
		return Mark{Type: kind}
	}
	return Mark{Type: kind, Attrs: cloneAttrs(attrs)}
}

func Strong() Mark { return NewMark(MarkStrong, nil) }
func Em() Mark     { return NewMark(MarkEm, nil) }
func Code() Mark   { return NewMark(MarkCode, nil) }
func Strike() Mark { return NewMark(MarkStrike, nil) }

// Link returns a link mark pointing at href.
func Link(href string) Mark {
	return NewMark(MarkLink, map[string]any{"href": href})
}

// BulletList returns an unordered list of listItem nodes.
func BulletList(items ...Node) Node {
	return Node{Type: KindBulletList, Content: nodes(items)}
}

// OrderedList returns a numbered list of listItem nodes.
func OrderedList(items ...Node) Node {
	return Node{Type: KindOrderedList, Content: nodes(items)}
}

// ListItem returns a list item holding block children, usually paragraphs.
func ListItem(children ...Node) Node {
	return Node{Type: KindListItem, Content: nodes(children)}
}

// CodeBlock wraps code in a single text child. The language attribute is
// always present, even when empty.
func CodeBlock(code, language string) Node {
	return Node{
		Type:    KindCodeBlock,
		Attrs:   map[string]any{AttrLanguage: language},
		Content: []Node{Text(code)},
	}
}

// Panel returns a callout panel. An empty panelType means DefaultPanelType.
func Panel(panelType string, children ...Node) Node {
	if panelType == "" {
		panelType = DefaultPanelType
	}
	return Node{
		Type:    KindPanel,
		Attrs:   map[string]any{AttrPanelType: panelType},
		Content: nodes(children),
	}
}

// nodes copies the children so the built node never aliases the caller's
// slice, and never returns nil so the content array is always emitted.
func nodes(children []Node) []Node {
	out := make([]Node, len(children))
	copy(out, children)
	return out
}
