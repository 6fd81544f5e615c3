package prose

import (
	"testing"

	"github.com/neyasbook/neyasbook/internal/manuscript"
)

func text(s string) manuscript.Doc { return manuscript.Doc{Type: "text", Text: s} }

func para(children ...manuscript.Doc) manuscript.Doc {
	return manuscript.Doc{Type: "paragraph", Content: children}
}

func doc(children ...manuscript.Doc) *manuscript.Doc {
	return &manuscript.Doc{Type: "doc", Content: children}
}

func TestToText_ParagraphThenRule(t *testing.T) {
	d := doc(para(text("Hello")), manuscript.Doc{Type: "horizontalRule"})
	if got := ToText(d); got != "Hello\n\n---" {
		t.Errorf("ToText = %q, want %q", got, "Hello\n\n---")
	}
}

func TestToText_BreaksAndContainers(t *testing.T) {
	d := doc(
		para(text("Line one"), manuscript.Doc{Type: "hardBreak"}, text("line two")),
		manuscript.Doc{Type: "blockquote", Content: []manuscript.Doc{para(text("Quoted"))}},
		para(text("Bold "), manuscript.Doc{Type: "text", Text: "word", Marks: []manuscript.Mark{{Type: "bold"}}}),
	)
	want := "Line one\nline two\n\nQuoted\n\nBold word"
	if got := ToText(d); got != want {
		t.Errorf("ToText = %q, want %q", got, want)
	}
}

func TestToText_Empty(t *testing.T) {
	if got := ToText(nil); got != "" {
		t.Errorf("ToText(nil) = %q", got)
	}
	if got := ToText(doc(para())); got != "" {
		t.Errorf("ToText(empty paragraph) = %q", got)
	}
}

func TestToDoc(t *testing.T) {
	d := ToDoc("The rain fell\non the moors.\n\n---\n  Elias waited.  \n")
	if len(d.Content) != 3 {
		t.Fatalf("nodes = %+v, want 3", d.Content)
	}
	if got := d.Content[0].Content[0].Text; got != "The rain fell on the moors." {
		t.Errorf("first paragraph = %q", got)
	}
	if d.Content[1].Type != "horizontalRule" {
		t.Errorf("second node = %q, want horizontalRule", d.Content[1].Type)
	}
	if got := d.Content[2].Content[0].Text; got != "Elias waited." {
		t.Errorf("third paragraph = %q", got)
	}
}

func TestToDoc_Empty(t *testing.T) {
	d := ToDoc("")
	if d.Type != "doc" || len(d.Content) != 0 {
		t.Errorf("ToDoc(\"\") = %+v", d)
	}
}
