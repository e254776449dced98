package adf

import (
	"fmt"
	"strings"
)

// ToMarkdown renders a document back to Markdown for previews. Panels
// become blockquotes led by an alert marker that FromMarkdown understands.
func ToMarkdown(doc Node) string {
	var b strings.Builder
	renderBlocks(&b, doc.Content, "")
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func renderBlocks(b *strings.Builder, blocks []Node, prefix string) {
	for i, n := range blocks {
		if i > 0 {
			b.WriteString(strings.TrimRight(prefix, " "))
			b.WriteString("\n")
		}
		renderBlock(b, n, prefix)
	}
}

func renderBlock(b *strings.Builder, n Node, prefix string) {
	switch n.Type {
	case KindHeading:
		level, _ := n.Attr(AttrLevel).(int)
		if level < 1 {
			level = 1
		}
		writeLines(b, prefix, strings.Repeat("#", level)+" "+renderInline(n.Content))
	case KindParagraph:
		writeLines(b, prefix, renderInline(n.Content))
	case KindText:
		writeLines(b, prefix, renderInline([]Node{n}))
	case KindBulletList, KindOrderedList:
		for i, item := range n.Content {
			bullet := "- "
			if n.Type == KindOrderedList {
				bullet = fmt.Sprintf("%d. ", i+1)
			}
			renderListItem(b, item, prefix, bullet)
		}
	case KindListItem:
		renderListItem(b, n, prefix, "- ")
	case KindCodeBlock:
		lang, _ := n.Attr(AttrLanguage).(string)
		writeLines(b, prefix, "```"+lang+"\n"+n.PlainText()+"\n```")
	case KindPanel:
		panelType, _ := n.Attr(AttrPanelType).(string)
		if panelType == "" {
			panelType = DefaultPanelType
		}
		writeLines(b, prefix+"> ", "[!"+strings.ToUpper(panelType)+"]")
		renderBlocks(b, n.Content, prefix+"> ")
	default:
		renderBlocks(b, n.Content, prefix)
	}
}

func renderListItem(b *strings.Builder, item Node, prefix, bullet string) {
	indent := strings.Repeat(" ", len(bullet))
	var inner strings.Builder
	renderBlocks(&inner, item.Content, "")
	lines := strings.Split(strings.TrimRight(inner.String(), "\n"), "\n")
	for i, line := range lines {
		lead := indent
		if i == 0 {
			lead = bullet
		}
		if line == "" {
			b.WriteString(strings.TrimRight(prefix, " ") + "\n")
			continue
		}
		b.WriteString(prefix + lead + line + "\n")
	}
}

func writeLines(b *strings.Builder, prefix, s string) {
	for _, line := range strings.Split(s, "\n") {
		b.WriteString(prefix)
		b.WriteString(line)
		b.WriteString("\n")
	}
}

func renderInline(nodes []Node) string {
	var b strings.Builder
	for _, n := range nodes {
		if n.Type != KindText {
			b.WriteString(renderInline(n.Content))
			continue
		}
		s := n.Text
		var href string
		for _, m := range n.Marks {
			switch m.Type {
			case MarkStrong:
				s = "**" + s + "**"
			case MarkEm:
				s = "_" + s + "_"
			case MarkCode:
				s = "`" + s + "`"
			case MarkStrike:
				s = "~~" + s + "~~"
			case MarkLink:
				href, _ = m.Attrs["href"].(string)
			}
		}
		if href != "" {
			s = "[" + s + "](" + href + ")"
		}
		b.WriteString(s)
	}
	return b.String()
}
