// Package adf builds and checks Atlassian Document Format trees, the
// structured rich-text representation Jira uses for descriptions and
// comments in place of plain strings.
//
// Trees are plain values. Constructors never fail and never perform I/O;
// well-formedness is checked separately by Validate.
package adf

import (
	"encoding/json"
	"math"
)

// Kind is the node type tag carried in the "type" field on the wire.
type Kind string

const (
	KindDoc         Kind = "doc"
	KindHeading     Kind = "heading"
	KindParagraph   Kind = "paragraph"
	KindText        Kind = "text"
	KindBulletList  Kind = "bulletList"
	KindOrderedList Kind = "orderedList"
	KindListItem    Kind = "listItem"
	KindCodeBlock   Kind = "codeBlock"
	KindPanel       Kind = "panel"
)

// DocVersion is the only ADF document version Jira accepts.
const DocVersion = 1

// Attribute keys carried by the kinds that have attributes.
const (
	AttrLevel     = "level"
	AttrLanguage  = "language"
	AttrPanelType = "panelType"
)

// kindRule describes which fields a kind may carry.
type kindRule struct {
	container bool      // carries "content"
	attr      string    // the single attribute key it requires, if any
	children  childKind // what its content may hold
	block     bool      // may sit where blocks are expected
}

type childKind int

const (
	childNone childKind = iota
	childBlocks
	childInline
	childListItems
)

var kindRules = map[Kind]kindRule{
	KindDoc:         {container: true, children: childBlocks},
	KindHeading:     {container: true, attr: AttrLevel, children: childInline, block: true},
	KindParagraph:   {container: true, children: childInline, block: true},
	KindText:        {},
	KindBulletList:  {container: true, children: childListItems, block: true},
	KindOrderedList: {container: true, children: childListItems, block: true},
	KindListItem:    {container: true, children: childBlocks},
	KindCodeBlock:   {container: true, attr: AttrLanguage, children: childInline, block: true},
	KindPanel:       {container: true, attr: AttrPanelType, children: childBlocks, block: true},
}

// allows reports whether a node of kind child may appear in the content of
// a node governed by r.
func (r kindRule) allows(child Kind) bool {
	switch r.children {
	case childBlocks:
		return kindRules[child].block
	case childInline:
		return child == KindText
	case childListItems:
		return child == KindListItem
	default:
		return false
	}
}

// Known reports whether k is one of the kinds this package builds.
func (k Kind) Known() bool {
	_, ok := kindRules[k]
	return ok
}

// IsContainer reports whether nodes of this kind carry a content array.
func (k Kind) IsContainer() bool {
	return kindRules[k].container
}

// Node is one element of a document tree.
//
// Which fields are meaningful depends on Type: Text and Marks only on text
// nodes, Content only on container kinds, Attrs only on heading, codeBlock
// and panel, Version only on the doc root.
type Node struct {
	Type    Kind
	Version int
	Attrs   map[string]any
	Content []Node
	Marks   []Mark
	Text    string
}

// Mark is a flat formatting modifier on a text node.
type Mark struct {
	Type  string         `json:"type"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// wireNode is the JSON shape of a Node. Pointers let MarshalJSON emit an
// empty content array or an empty text string when the kind requires one.
type wireNode struct {
	Type    Kind           `json:"type"`
	Version int            `json:"version,omitempty"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Content *[]Node        `json:"content,omitempty"`
	Text    *string        `json:"text,omitempty"`
	Marks   []Mark         `json:"marks,omitempty"`
}

// MarshalJSON writes only the fields legal for the node's kind. Container
// kinds always get a content array, text nodes always get a text field.
// Unknown kinds are written as-is.
func (n Node) MarshalJSON() ([]byte, error) {
	w := wireNode{Type: n.Type}

	if !n.Type.Known() {
		w.Version = n.Version
		w.Attrs = n.Attrs
		w.Marks = n.Marks
		if n.Content != nil {
			content := n.Content
			w.Content = &content
		}
		if n.Text != "" {
			text := n.Text
			w.Text = &text
		}
		return json.Marshal(w)
	}

	rule := kindRules[n.Type]
	if n.Type == KindDoc {
		w.Version = n.Version
	}
	if rule.attr != "" {
		w.Attrs = n.Attrs
	}
	if rule.container {
		content := n.Content
		if content == nil {
			content = []Node{}
		}
		w.Content = &content
	}
	if n.Type == KindText {
		text := n.Text
		w.Text = &text
		if len(n.Marks) > 0 {
			w.Marks = n.Marks
		}
	}
	return json.Marshal(w)
}

// UnmarshalJSON reads the wire form. Integral numeric attributes decode
// as int so heading levels survive a round trip unchanged.
func (n *Node) UnmarshalJSON(data []byte) error {
	var w wireNode
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*n = Node{
		Type:    w.Type,
		Version: w.Version,
		Attrs:   normalizeAttrs(w.Attrs),
		Marks:   w.Marks,
	}
	if w.Content != nil {
		n.Content = *w.Content
	}
	if w.Text != nil {
		n.Text = *w.Text
	}
	return nil
}

// UnmarshalJSON applies the same numeric normalization as Node.
func (m *Mark) UnmarshalJSON(data []byte) error {
	type plain Mark
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	p.Attrs = normalizeAttrs(p.Attrs)
	*m = Mark(p)
	return nil
}

func normalizeAttrs(attrs map[string]any) map[string]any {
	for k, v := range attrs {
		if f, ok := v.(float64); ok && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			attrs[k] = int(f)
		}
	}
	return attrs
}

// Clone returns a deep copy of the tree rooted at n.
func (n Node) Clone() Node {
	out := Node{
		Type:    n.Type,
		Version: n.Version,
		Text:    n.Text,
		Attrs:   cloneAttrs(n.Attrs),
	}
	if n.Content != nil {
		out.Content = make([]Node, len(n.Content))
		for i, child := range n.Content {
			out.Content[i] = child.Clone()
		}
	}
	if n.Marks != nil {
		out.Marks = make([]Mark, len(n.Marks))
		for i, m := range n.Marks {
			out.Marks[i] = Mark{Type: m.Type, Attrs: cloneAttrs(m.Attrs)}
		}
	}
	return out
}

func cloneAttrs(attrs map[string]any) map[string]any {
	if attrs == nil {
		return nil
	}
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}

// Attr returns the attribute value for key, or nil.
func (n Node) Attr(key string) any {
	if n.Attrs == nil {
		return nil
	}
	return n.Attrs[key]
}

// PlainText concatenates the text of every text node below n.
func (n Node) PlainText() string {
	if n.Type == KindText {
		return n.Text
	}
	var out []byte
	for _, child := range n.Content {
		out = append(out, child.PlainText()...)
	}
	return string(out)
}
