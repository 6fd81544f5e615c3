// Package manuscript defines the Neyasbook document model and a typed
// repository that persists it in a blob.Store.
package manuscript

import (
	"slices"
	"strings"
)

// Project is the root of one manuscript's namespace.
type Project struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Manifest describes the structure of a manuscript.
type Manifest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Hierarchy   []Part `json:"hierarchy"`
}

// Part is a top-level grouping of chapters and notes ("Volume I").
type Part struct {
	ID       string `json:"id"`
	Type     string `json:"type,omitempty"`
	Title    string `json:"title"`
	Children []Node `json:"children"`
}

// Node is a chapter, note or section inside a part. Sections may nest.
type Node struct {
	ID       string `json:"id"`
	Type     string `json:"type,omitempty"`
	Title    string `json:"title"`
	Children []Node `json:"children,omitempty"`
}

const (
	NodeChapter = "chapter"
	NodeNote    = "note"
)

// IsChapter reports whether the node counts toward the chapter sequence.
// Older manifests omit the type on chapter nodes.
func (n Node) IsChapter() bool {
	return n.Type == NodeChapter || (n.Type == "" && len(n.Children) == 0)
}

// Chapters flattens the hierarchy into chapter nodes in presentation order.
func (m *Manifest) Chapters() []Node {
	var out []Node
	var walk func(nodes []Node)
	walk = func(nodes []Node) {
		for _, n := range nodes {
			if n.IsChapter() {
				out = append(out, n)
			}
			walk(n.Children)
		}
	}
	for _, p := range m.Hierarchy {
		walk(p.Children)
	}
	return out
}

// ChapterSequence returns the ids of Chapters in order.
func (m *Manifest) ChapterSequence() []string {
	chapters := m.Chapters()
	ids := make([]string, len(chapters))
	for i, c := range chapters {
		ids[i] = c.ID
	}
	return ids
}

// FindChapter returns the chapter node with the given id.
func (m *Manifest) FindChapter(id string) (Node, bool) {
	for _, c := range m.Chapters() {
		if c.ID == id {
			return c, true
		}
	}
	return Node{}, false
}

// IndexOf returns the position of id in seq, or -1.
func IndexOf(seq []string, id string) int {
	for i, s := range seq {
		if s == id {
			return i
		}
	}
	return -1
}

// DefaultManifest is the structure a freshly created project starts with.
func DefaultManifest(title, description string) Manifest {
	return Manifest{
		Title:       title,
		Description: description,
		Hierarchy: []Part{{
			ID:    "p1",
			Type:  "part",
			Title: "Volume I",
			Children: []Node{
				{ID: "1", Type: NodeChapter, Title: "Chapter 1"},
			},
		}},
	}
}

// Doc is a node of a rich-text document tree. The root has type "doc".
type Doc struct {
	Type    string         `json:"type"`
	Text    string         `json:"text,omitempty"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Marks   []Mark         `json:"marks,omitempty"`
	Content []Doc          `json:"content,omitempty"`
}

// Mark is inline formatting attached to a text node.
type Mark struct {
	Type  string         `json:"type"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// Entity types accepted from extraction.
const (
	EntityCharacter   = "character"
	EntityPlace       = "place"
	EntityInstitution = "institution"
	EntityObject      = "object"
)

// ValidEntityType reports whether t is one of the known entity types.
func ValidEntityType(t string) bool {
	switch t {
	case EntityCharacter, EntityPlace, EntityInstitution, EntityObject:
		return true
	}
	return false
}

// Fact is a canonical fact and the chapter that first revealed it.
type Fact struct {
	Fact      string `json:"fact"`
	ChapterID string `json:"chapterId,omitempty"`
}

// TimelineEntry records an entity's state in one chapter.
type TimelineEntry struct {
	ChapterID    string `json:"chapterId"`
	ChapterTitle string `json:"chapterTitle,omitempty"`
	Status       string `json:"status"`
	Motivation   string `json:"motivation"`
}

// EntityProfile is everything known about one character, place,
// institution or object.
type EntityProfile struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Type           string          `json:"type"`
	CanonicalFacts []Fact          `json:"canonicalFacts"`
	Timeline       []TimelineEntry `json:"timeline"`
}

// NewEntityProfile returns an empty profile.
func NewEntityProfile(id, name, typ string) *EntityProfile {
	return &EntityProfile{
		ID:             id,
		Name:           name,
		Type:           typ,
		CanonicalFacts: []Fact{},
		Timeline:       []TimelineEntry{},
	}
}

// AddFact appends fact unless an identical fact text is already recorded,
// whichever chapter introduced it. It reports whether the fact was added.
func (p *EntityProfile) AddFact(fact, chapterID string) bool {
	for _, f := range p.CanonicalFacts {
		if f.Fact == fact {
			return false
		}
	}
	p.CanonicalFacts = append(p.CanonicalFacts, Fact{Fact: fact, ChapterID: chapterID})
	return true
}

// UpsertTimeline overwrites the status and motivation of the entry for
// e.ChapterID, or appends e when the chapter has no entry yet. The timeline
// is re-sorted afterwards.
func (p *EntityProfile) UpsertTimeline(e TimelineEntry) {
	found := false
	for i := range p.Timeline {
		if p.Timeline[i].ChapterID == e.ChapterID {
			p.Timeline[i].Status = e.Status
			p.Timeline[i].Motivation = e.Motivation
			found = true
			break
		}
	}
	if !found {
		p.Timeline = append(p.Timeline, e)
	}
	p.SortTimeline()
}

// SortTimeline orders entries by chapter id with CompareChapterIDs.
func (p *EntityProfile) SortTimeline() {
	slices.SortStableFunc(p.Timeline, func(a, b TimelineEntry) int {
		return CompareChapterIDs(a.ChapterID, b.ChapterID)
	})
}

// Summary returns the index entry for the profile.
func (p *EntityProfile) Summary() EntitySummary {
	return EntitySummary{ID: p.ID, Name: p.Name, Type: p.Type}
}

// EntitySummary is one row of the entity index.
type EntitySummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// EntityIndex lists every known entity of a project.
type EntityIndex []EntitySummary

// Find returns the position of id in the index, or -1.
func (idx EntityIndex) Find(id string) int {
	for i, e := range idx {
		if e.ID == id {
			return i
		}
	}
	return -1
}

// SweepMetadata maps chapter ids to the change marker recorded when the
// chapter was last swept.
type SweepMetadata map[string]string

// Suggestion is an edit proposed by the editor persona. Original is the
// text to replace; an empty Original means append and ReformatMarker means
// the whole chapter is replaced.
type Suggestion struct {
	Original  string `json:"original"`
	Suggested string `json:"suggested"`
}

// ReformatMarker is the Original value of a whole-chapter suggestion.
const ReformatMarker = "FULL_CHAPTER_REFORMAT"

// SuggestionKind classifies a Suggestion.
type SuggestionKind int

const (
	SuggestPatch SuggestionKind = iota
	SuggestAppend
	SuggestReformat
)

func (k SuggestionKind) String() string {
	switch k {
	case SuggestAppend:
		return "append"
	case SuggestReformat:
		return "reformat"
	default:
		return "patch"
	}
}

// Kind derives the suggestion kind from Original.
func (s Suggestion) Kind() SuggestionKind {
	switch {
	case s.Original == ReformatMarker:
		return SuggestReformat
	case strings.TrimSpace(s.Original) == "":
		return SuggestAppend
	default:
		return SuggestPatch
	}
}

// ChatMessage is one entry of a chat transcript.
type ChatMessage struct {
	Role       string      `json:"role"`
	Content    string      `json:"content"`
	PersonaID  string      `json:"personaId,omitempty"`
	Suggestion *Suggestion `json:"suggestion,omitempty"`
}

// ChatTranscript is the persisted chat history of a project. Messages
// before ContextStartIndex are kept for display but not sent to the model.
type ChatTranscript struct {
	Messages          []ChatMessage `json:"messages"`
	ContextStartIndex int           `json:"contextStartIndex"`
}

// ActiveMessages returns the messages still in context.
func (t *ChatTranscript) ActiveMessages() []ChatMessage {
	start := t.ContextStartIndex
	if start < 0 {
		start = 0
	}
	if start > len(t.Messages) {
		start = len(t.Messages)
	}
	return t.Messages[start:]
}

// ResetContext moves the context window past every current message.
func (t *ChatTranscript) ResetContext() {
	t.ContextStartIndex = len(t.Messages)
}
