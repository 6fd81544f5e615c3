package prose

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/neyasbook/neyasbook/internal/manuscript"
)

var (
	// ErrPatchNotFound means the text to replace is not in the document.
	ErrPatchNotFound = errors.New("original text not found in chapter")

	// ErrEmptySuggestion means a suggestion carries no replacement text.
	ErrEmptySuggestion = errors.New("suggestion is empty")
)

var whitespaceRun = regexp.MustCompile(`\s+`)

func normalizeSpace(s string) string {
	return whitespaceRun.ReplaceAllString(s, " ")
}

// ApplyPatch replaces the first occurrence of original with suggested in
// the first text node (depth-first) that contains it. When no node contains
// original verbatim, node text and original are compared with whitespace
// runs collapsed, and the matching node is rewritten in its collapsed
// form. doc is never modified; the patched copy is returned.
func ApplyPatch(doc *manuscript.Doc, original, suggested string) (*manuscript.Doc, error) {
	if original == "" {
		return nil, ErrPatchNotFound
	}
	out := clone(doc)

	if replaceFirst(out, func(text string) (string, bool) {
		if !strings.Contains(text, original) {
			return "", false
		}
		return strings.Replace(text, original, suggested, 1), true
	}) {
		return out, nil
	}

	normOriginal := normalizeSpace(original)
	if replaceFirst(out, func(text string) (string, bool) {
		norm := normalizeSpace(text)
		if !strings.Contains(norm, normOriginal) {
			return "", false
		}
		return strings.Replace(norm, normOriginal, suggested, 1), true
	}) {
		return out, nil
	}
	return nil, ErrPatchNotFound
}

func replaceFirst(n *manuscript.Doc, fn func(string) (string, bool)) bool {
	if n.Text != "" {
		if replaced, ok := fn(n.Text); ok {
			n.Text = replaced
			return true
		}
	}
	for i := range n.Content {
		if replaceFirst(&n.Content[i], fn) {
			return true
		}
	}
	return false
}

// Append adds the paragraphs of suggested to the end of doc.
func Append(doc *manuscript.Doc, suggested string) (*manuscript.Doc, error) {
	if strings.TrimSpace(suggested) == "" {
		return nil, ErrEmptySuggestion
	}
	out := clone(doc)
	if out.Type == "" {
		out.Type = "doc"
	}
	out.Content = append(out.Content, ToDoc(suggested).Content...)
	return out, nil
}

// Reformat replaces the whole chapter with suggested.
func Reformat(suggested string) (*manuscript.Doc, error) {
	if strings.TrimSpace(suggested) == "" {
		return nil, ErrEmptySuggestion
	}
	return ToDoc(suggested), nil
}

// ApplySuggestion dispatches on the suggestion kind.
func ApplySuggestion(doc *manuscript.Doc, s manuscript.Suggestion) (*manuscript.Doc, error) {
	switch s.Kind() {
	case manuscript.SuggestReformat:
		return Reformat(s.Suggested)
	case manuscript.SuggestAppend:
		return Append(doc, s.Suggested)
	default:
		return ApplyPatch(doc, s.Original, s.Suggested)
	}
}

// clone deep-copies a document through its JSON form so attrs maps are not
// shared with the input.
func clone(doc *manuscript.Doc) *manuscript.Doc {
	out := &manuscript.Doc{Type: "doc"}
	if doc == nil {
		return out
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return out
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &manuscript.Doc{Type: "doc"}
	}
	return out
}
