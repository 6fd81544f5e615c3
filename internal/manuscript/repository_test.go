package manuscript

import (
	"context"
	"errors"
	"testing"

	"github.com/neyasbook/neyasbook/internal/blob"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	store, err := blob.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return NewRepository(store)
}

func TestCreateProject_SeedsDefaultManifest(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)

	p, err := r.CreateProject(ctx, Project{ID: "neyas", Description: "gothic"})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if p.Title != "neyas" {
		t.Errorf("title = %q, want id fallback", p.Title)
	}

	m, err := r.LoadManifest(ctx, "neyas")
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if len(m.Hierarchy) != 1 || m.Hierarchy[0].Title != "Volume I" {
		t.Fatalf("hierarchy = %+v", m.Hierarchy)
	}
	if seq := m.ChapterSequence(); len(seq) != 1 || seq[0] != "1" {
		t.Errorf("sequence = %v, want [1]", seq)
	}

	if _, err := r.CreateProject(ctx, Project{ID: "neyas"}); !errors.Is(err, ErrExists) {
		t.Errorf("second CreateProject err = %v, want ErrExists", err)
	}
}

func TestCreateProject_GeneratesID(t *testing.T) {
	r := newTestRepo(t)
	p, err := r.CreateProject(context.Background(), Project{Title: "Untitled"})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if p.ID == "" {
		t.Error("expected generated id")
	}
}

func TestListProjects(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)

	r.CreateProject(ctx, Project{ID: "b", Title: "Book B", Description: "second"})
	r.CreateProject(ctx, Project{ID: "a", Title: "Book A"})
	// A project with only chat history and no manifest.
	r.SaveTranscript(ctx, "c", &ChatTranscript{})

	got, err := r.ListProjects(ctx)
	if err != nil {
		t.Fatalf("ListProjects: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("projects = %+v, want 3", got)
	}
	if got[0].ID != "a" || got[0].Title != "Book A" {
		t.Errorf("got[0] = %+v", got[0])
	}
	if got[1].Description != "second" {
		t.Errorf("got[1] = %+v", got[1])
	}
	if got[2].Title != "c" {
		t.Errorf("manifest-less project title = %q, want id", got[2].Title)
	}
}

func TestDeleteProject(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	r.CreateProject(ctx, Project{ID: "gone"})
	r.SaveChapter(ctx, "gone", "1", &Doc{Type: "doc"})

	if err := r.DeleteProject(ctx, "gone"); err != nil {
		t.Fatalf("DeleteProject: %v", err)
	}
	if _, err := r.LoadManifest(ctx, "gone"); !errors.Is(err, ErrNotFound) {
		t.Errorf("manifest after delete err = %v", err)
	}
	if err := r.DeleteProject(ctx, "gone"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestRejectsTraversalIDs(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	if _, err := r.LoadManifest(ctx, ".."); !errors.Is(err, ErrInvalidID) {
		t.Errorf("LoadManifest(..) err = %v", err)
	}
	if _, err := r.LoadProfile(ctx, "p", "a/b"); !errors.Is(err, ErrInvalidID) {
		t.Errorf("LoadProfile(a/b) err = %v", err)
	}
}

func TestChapterIDWithSlash(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	doc := &Doc{Type: "doc", Content: []Doc{{Type: "paragraph", Content: []Doc{{Type: "text", Text: "hi"}}}}}
	if err := r.SaveChapter(ctx, "p", "part1/ch1", doc); err != nil {
		t.Fatalf("SaveChapter: %v", err)
	}
	ok, _ := r.Store().Exists(ctx, "projects/p/chapters/part1_ch1.json")
	if !ok {
		t.Error("chapter not stored under folded key")
	}
	got, err := r.LoadChapter(ctx, "p", "part1/ch1")
	if err != nil {
		t.Fatalf("LoadChapter: %v", err)
	}
	if got.Content[0].Content[0].Text != "hi" {
		t.Errorf("round trip lost text: %+v", got)
	}
}

func TestDefaultsForMissingDocuments(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)

	idx, err := r.LoadIndex(ctx, "p")
	if err != nil || idx == nil || len(idx) != 0 {
		t.Errorf("LoadIndex = %v, %v", idx, err)
	}
	meta, err := r.LoadSweepMetadata(ctx, "p")
	if err != nil || meta == nil || len(meta) != 0 {
		t.Errorf("LoadSweepMetadata = %v, %v", meta, err)
	}
	tr, err := r.LoadTranscript(ctx, "p")
	if err != nil || tr.Messages == nil {
		t.Errorf("LoadTranscript = %+v, %v", tr, err)
	}
	if _, err := r.LoadProfile(ctx, "p", "nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("LoadProfile err = %v, want ErrNotFound", err)
	}
}

func TestSaveProfileAndIndex_RefreshesSummary(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)

	p := NewEntityProfile("voss", "Voss", EntityCharacter)
	if err := r.SaveProfileAndIndex(ctx, "p", p); err != nil {
		t.Fatalf("SaveProfileAndIndex: %v", err)
	}
	p.Name = "Dr. Voss"
	p.Type = EntityInstitution
	if err := r.SaveProfileAndIndex(ctx, "p", p); err != nil {
		t.Fatalf("SaveProfileAndIndex: %v", err)
	}

	idx, _ := r.LoadIndex(ctx, "p")
	if len(idx) != 1 {
		t.Fatalf("index = %+v, want 1 entry", idx)
	}
	if idx[0].Name != "Dr. Voss" || idx[0].Type != EntityInstitution {
		t.Errorf("index entry = %+v", idx[0])
	}
}
