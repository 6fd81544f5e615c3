// Package prose converts between rich-text chapter documents and the flat
// text exchanged with the language model, and applies the edits the model
// suggests.
package prose

import (
	"strings"

	"github.com/neyasbook/neyasbook/internal/manuscript"
)

// ToText projects doc to plain text. Marks and attributes are dropped;
// paragraphs are separated by a blank line and horizontal rules become a
// "---" line of their own.
func ToText(doc *manuscript.Doc) string {
	if doc == nil {
		return ""
	}
	var b []byte
	var walk func(n *manuscript.Doc)
	walk = func(n *manuscript.Doc) {
		switch n.Type {
		case "text":
			b = append(b, n.Text...)
		case "hardBreak":
			b = append(b, '\n')
		case "horizontalRule":
			if len(b) > 0 && b[len(b)-1] != '\n' {
				b = append(b, '\n')
			}
			b = append(b, "---\n"...)
		case "paragraph":
			for i := range n.Content {
				walk(&n.Content[i])
			}
			b = append(b, "\n\n"...)
		default:
			for i := range n.Content {
				walk(&n.Content[i])
			}
		}
	}
	for i := range doc.Content {
		walk(&doc.Content[i])
	}
	return strings.TrimSpace(string(b))
}

// ToDoc builds a document from flat text. A "---" line becomes a horizontal
// rule, blank lines end paragraphs and the remaining lines of a paragraph
// are joined with single spaces.
func ToDoc(text string) *manuscript.Doc {
	doc := &manuscript.Doc{Type: "doc", Content: []manuscript.Doc{}}
	var para []string
	flush := func() {
		if len(para) == 0 {
			return
		}
		doc.Content = append(doc.Content, paragraph(strings.Join(para, " ")))
		para = para[:0]
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch line {
		case "---":
			flush()
			doc.Content = append(doc.Content, manuscript.Doc{Type: "horizontalRule"})
		case "":
			flush()
		default:
			para = append(para, line)
		}
	}
	flush()
	return doc
}

func paragraph(text string) manuscript.Doc {
	return manuscript.Doc{
		Type:    "paragraph",
		Content: []manuscript.Doc{{Type: "text", Text: text}},
	}
}
