package persona

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/neyasbook/neyasbook/internal/llm"
	"github.com/neyasbook/neyasbook/internal/manuscript"
	"github.com/neyasbook/neyasbook/internal/prose"
)

const (
	defaultMaxLoreTokens = 4000
	chapterSnippetRunes  = 1000
)

// Input describes one chat turn.
type Input struct {
	Persona          Persona
	ChapterContent   string
	ChapterTitle     string
	SelectedText     string
	CurrentChapterID string
	// ReferencedIDs are entity or chapter ids the author mentioned.
	ReferencedIDs []string
}

// Prompt is the system message and tool list for a turn. Tools is empty
// for roleplay personas.
type Prompt struct {
	System string
	Tools  []llm.Tool
}

// Builder assembles prompts from the project's stored documents. It reads
// profiles, the manifest and referenced chapters; it never calls the model.
type Builder struct {
	repo          *manuscript.Repository
	MaxLoreTokens int
}

// NewBuilder creates a Builder. If maxLoreTokens <= 0, the default (4000)
// is used as the budget for referenced lore.
func NewBuilder(repo *manuscript.Repository, maxLoreTokens int) *Builder {
	if maxLoreTokens <= 0 {
		maxLoreTokens = defaultMaxLoreTokens
	}
	return &Builder{repo: repo, MaxLoreTokens: maxLoreTokens}
}

// Build returns the prompt for in.Persona.
func (b *Builder) Build(ctx context.Context, projectID string, in Input) (*Prompt, error) {
	p, roleplay := in.Persona.(Roleplay)
	if !roleplay {
		lore, err := b.loreContext(ctx, projectID, in.ReferencedIDs, nil)
		if err != nil {
			return nil, err
		}
		return &Prompt{
			System: editorPrompt(in, lore),
			Tools:  EditorTools(),
		}, nil
	}

	seq, err := b.chapterSequence(ctx, projectID)
	if err != nil {
		return nil, err
	}
	// A character only knows the lore up to the current chapter, including
	// about entities the author mentions.
	hideSpoilers := func(profile *manuscript.EntityProfile) *manuscript.EntityProfile {
		filtered := *profile
		filtered.CanonicalFacts, filtered.Timeline = FilterSpoilers(profile, seq, in.CurrentChapterID)
		return &filtered
	}
	lore, err := b.loreContext(ctx, projectID, in.ReferencedIDs, hideSpoilers)
	if err != nil {
		return nil, err
	}
	return b.roleplay(ctx, projectID, p, seq, in, lore)
}

// chapterSequence returns the chapter ids in reading order, or nil when the
// project has no manifest.
func (b *Builder) chapterSequence(ctx context.Context, projectID string) ([]string, error) {
	manifest, err := b.repo.LoadManifest(ctx, projectID)
	switch {
	case errors.Is(err, manuscript.ErrNotFound):
		slog.Debug("no manifest, timeline unfiltered", "project", projectID)
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("loading manifest: %w", err)
	}
	return manifest.ChapterSequence(), nil
}

func (b *Builder) roleplay(ctx context.Context, projectID string, p Roleplay, seq []string, in Input, lore string) (*Prompt, error) {
	profile, err := b.repo.LoadProfile(ctx, projectID, p.EntityID)
	switch {
	case errors.Is(err, manuscript.ErrNotFound), errors.Is(err, manuscript.ErrInvalidID):
		profile = manuscript.NewEntityProfile(p.EntityID, p.EntityID, "entity")
	case err != nil:
		return nil, fmt.Errorf("loading profile %s: %w", p.EntityID, err)
	}

	facts, timeline := FilterSpoilers(profile, seq, in.CurrentChapterID)
	return &Prompt{
		System: roleplayPrompt(profile, facts, timeline, in, lore),
		Tools:  []llm.Tool{},
	}, nil
}

// loreContext formats every referenced id that resolves to an entity
// profile or, failing that, a chapter. Ids that resolve to neither are
// skipped, as are entries that no longer fit the token budget. A non-nil
// filter is applied to every referenced profile before it is formatted.
func (b *Builder) loreContext(ctx context.Context, projectID string, ids []string, filter func(*manuscript.EntityProfile) *manuscript.EntityProfile) (string, error) {
	var sb strings.Builder
	remaining := b.MaxLoreTokens
	for _, id := range ids {
		if id == "" {
			continue
		}
		entry, err := b.resolveReference(ctx, projectID, id, filter)
		if err != nil {
			return "", err
		}
		if entry == "" {
			slog.Debug("unresolved reference", "project", projectID, "id", id)
			continue
		}
		tokens := EstimateTokens(entry)
		if tokens > remaining {
			slog.Debug("reference dropped, lore budget exhausted", "project", projectID, "id", id)
			continue
		}
		sb.WriteString(entry)
		remaining -= tokens
	}
	return sb.String(), nil
}

func (b *Builder) resolveReference(ctx context.Context, projectID, id string, filter func(*manuscript.EntityProfile) *manuscript.EntityProfile) (string, error) {
	profile, err := b.repo.LoadProfile(ctx, projectID, id)
	if err == nil {
		if filter != nil {
			profile = filter(profile)
		}
		return formatEntityReference(profile), nil
	}
	if !errors.Is(err, manuscript.ErrNotFound) && !errors.Is(err, manuscript.ErrInvalidID) {
		return "", fmt.Errorf("loading referenced entity %s: %w", id, err)
	}

	doc, err := b.repo.LoadChapter(ctx, projectID, id)
	if errors.Is(err, manuscript.ErrNotFound) || errors.Is(err, manuscript.ErrInvalidID) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("loading referenced chapter %s: %w", id, err)
	}
	return formatChapterReference(id, prose.ToText(doc)), nil
}

func formatEntityReference(p *manuscript.EntityProfile) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "\n[Reference: %s (%s)]\n", p.Name, p.Type)
	facts := make([]string, len(p.CanonicalFacts))
	for i, f := range p.CanonicalFacts {
		facts[i] = f.Fact
	}
	fmt.Fprintf(&sb, "Canon Facts: %s\n", strings.Join(facts, ". "))
	if len(p.Timeline) > 0 {
		sb.WriteString("Timeline History:\n")
		for _, t := range p.Timeline {
			fmt.Fprintf(&sb, "- Chapter %s: %s\n", t.ChapterID, t.Status)
		}
	}
	return sb.String()
}

func formatChapterReference(id, text string) string {
	return fmt.Sprintf("\n[Reference: Chapter Content (%s)]\nSummary/Snippet: %s...\n", id, truncateRunes(text, chapterSnippetRunes))
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
