package persona

import (
	"context"
	"strings"
	"testing"

	"github.com/neyasbook/neyasbook/internal/blob"
	"github.com/neyasbook/neyasbook/internal/manuscript"
	"github.com/neyasbook/neyasbook/internal/prose"
)

const project = "neyas"

func newTestBuilder(t *testing.T) (*Builder, *manuscript.Repository) {
	t.Helper()
	store, err := blob.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	repo := manuscript.NewRepository(store)
	return NewBuilder(repo, 0), repo
}

func seedProject(t *testing.T, repo *manuscript.Repository) {
	t.Helper()
	ctx := context.Background()
	m := manuscript.Manifest{Hierarchy: []manuscript.Part{{ID: "p1", Title: "Volume I", Children: []manuscript.Node{
		{ID: "1", Type: manuscript.NodeChapter, Title: "Arrival"},
		{ID: "2", Type: manuscript.NodeChapter, Title: "The Fever"},
		{ID: "3", Type: manuscript.NodeChapter, Title: "Ashes"},
	}}}}
	if err := repo.SaveManifest(ctx, project, &m); err != nil {
		t.Fatal(err)
	}
	if err := repo.SaveProfile(ctx, project, threeChapterProfile()); err != nil {
		t.Fatal(err)
	}
}

func TestBuild_EditorPrompt(t *testing.T) {
	b, _ := newTestBuilder(t)
	p, err := b.Build(context.Background(), project, Input{
		Persona:        Editor{},
		ChapterTitle:   "Arrival",
		ChapterContent: "The carriage stopped.",
		SelectedText:   "stopped",
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	for _, want := range []string{
		"You are Archie, the Demon of Literature.",
		`Chapter "Arrival"`,
		"=== CURRENT CHAPTER CONTENT ===\nThe carriage stopped.\n=== END OF CHAPTER ===",
		"SELECTED this specific text for your attention:\n\"stopped\"",
	} {
		if !strings.Contains(p.System, want) {
			t.Errorf("system prompt missing %q:\n%s", want, p.System)
		}
	}
	if strings.Contains(p.System, "RELEVANT WORLD LORE") {
		t.Error("lore section present without references")
	}

	var names []string
	for _, tool := range p.Tools {
		names = append(names, tool.Function.Name)
	}
	if strings.Join(names, ",") != "patch_text,append_text,reformat_chapter" {
		t.Errorf("tools = %v", names)
	}
}

func TestBuild_EditorEmptyChapter(t *testing.T) {
	b, _ := newTestBuilder(t)
	p, err := b.Build(context.Background(), project, Input{Persona: Editor{}, ChapterTitle: "New"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !strings.Contains(p.System, "(Empty chapter - no content yet)") {
		t.Errorf("system prompt = %s", p.System)
	}
}

func TestBuild_RoleplayFiltersFutureChapters(t *testing.T) {
	b, repo := newTestBuilder(t)
	seedProject(t, repo)

	p, err := b.Build(context.Background(), project, Input{
		Persona:          Roleplay{EntityID: "neya"},
		ChapterTitle:     "The Fever",
		CurrentChapterID: "2",
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(p.Tools) != 0 {
		t.Errorf("roleplay tools = %d, want 0", len(p.Tools))
	}
	for _, want := range []string{
		"You are roleplaying as Neya, a character in the story.",
		"- Chapter 1: status 1",
		"- Chapter 2: status 2",
		"- Fears fire",
		"after Chapter 2",
	} {
		if !strings.Contains(p.System, want) {
			t.Errorf("system prompt missing %q:\n%s", want, p.System)
		}
	}
	for _, hidden := range []string{"status 3", "Lost her brother", "deleted chapter"} {
		if strings.Contains(p.System, hidden) {
			t.Errorf("system prompt leaks %q", hidden)
		}
	}
}

func TestBuild_RoleplayUnknownChapterFailsOpen(t *testing.T) {
	b, repo := newTestBuilder(t)
	seedProject(t, repo)

	p, err := b.Build(context.Background(), project, Input{
		Persona:          Roleplay{EntityID: "neya"},
		CurrentChapterID: "epilogue",
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !strings.Contains(p.System, "status 3") || !strings.Contains(p.System, "Lost her brother") {
		t.Errorf("expected full history:\n%s", p.System)
	}
}

func TestBuild_RoleplayMissingProfileAndManifest(t *testing.T) {
	b, _ := newTestBuilder(t)
	p, err := b.Build(context.Background(), "empty", Input{
		Persona:          Roleplay{EntityID: "stranger"},
		CurrentChapterID: "1",
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !strings.Contains(p.System, "You are roleplaying as stranger, a entity in the story.") {
		t.Errorf("system prompt = %s", p.System)
	}
}

func TestBuild_LoreContext(t *testing.T) {
	ctx := context.Background()
	b, repo := newTestBuilder(t)
	seedProject(t, repo)

	long := strings.Repeat("é", 1500)
	if err := repo.SaveChapter(ctx, project, "3", prose.ToDoc(long)); err != nil {
		t.Fatal(err)
	}
	// An id that names both a profile and a chapter resolves to the profile.
	if err := repo.SaveChapter(ctx, project, "neya", prose.ToDoc("chapter named neya")); err != nil {
		t.Fatal(err)
	}

	p, err := b.Build(ctx, project, Input{
		Persona:       Editor{},
		ReferencedIDs: []string{"neya", "3", "nobody"},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if !strings.Contains(p.System, "=== RELEVANT WORLD LORE (from @mentions) ===") {
		t.Fatalf("lore section missing:\n%s", p.System)
	}
	if !strings.Contains(p.System, "[Reference: Neya (character)]\nCanon Facts: Born in winter. Fears fire. Lost her brother. From a deleted chapter\n") {
		t.Errorf("entity reference malformed:\n%s", p.System)
	}
	if !strings.Contains(p.System, "Timeline History:\n- Chapter 1: status 1\n") {
		t.Errorf("timeline digest missing:\n%s", p.System)
	}
	if strings.Contains(p.System, "chapter named neya") {
		t.Error("chapter took precedence over entity")
	}
	want := "[Reference: Chapter Content (3)]\nSummary/Snippet: " + strings.Repeat("é", 1000) + "...\n"
	if !strings.Contains(p.System, want) {
		t.Error("chapter snippet not truncated to 1000 characters")
	}
	if strings.Contains(p.System, "nobody") {
		t.Error("unresolved reference should be skipped")
	}
}

func TestBuild_RoleplayLoreHidesFutureChapters(t *testing.T) {
	b, repo := newTestBuilder(t)
	seedProject(t, repo)

	for _, persona := range []string{"stranger", "neya"} {
		t.Run(persona, func(t *testing.T) {
			p, err := b.Build(context.Background(), project, Input{
				Persona:          Roleplay{EntityID: persona},
				CurrentChapterID: "2",
				ReferencedIDs:    []string{"neya"},
			})
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			if !strings.Contains(p.System, "[Reference: Neya (character)]\nCanon Facts: Born in winter. Fears fire\n") {
				t.Errorf("reference not filtered to chapter 2:\n%s", p.System)
			}
			for _, hidden := range []string{"status 3", "Lost her brother", "deleted chapter"} {
				if strings.Contains(p.System, hidden) {
					t.Errorf("lore leaks %q", hidden)
				}
			}
		})
	}
}

func TestBuild_LoreBudget(t *testing.T) {
	ctx := context.Background()
	_, repo := newTestBuilder(t)
	b := NewBuilder(repo, 10)
	repo.SaveChapter(ctx, project, "1", prose.ToDoc(strings.Repeat("word ", 50)))

	p, err := b.Build(ctx, project, Input{Persona: Editor{}, ReferencedIDs: []string{"1"}})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if strings.Contains(p.System, "RELEVANT WORLD LORE") {
		t.Error("reference over budget should be dropped")
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := EstimateTokens("abcd"); got != 1 {
		t.Errorf("EstimateTokens(4 chars) = %d", got)
	}
	if got := EstimateTokens(""); got != 0 {
		t.Errorf("EstimateTokens(empty) = %d", got)
	}
}
