package manuscript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/neyasbook/neyasbook/internal/blob"
)

// ErrNotFound is returned when a manifest, chapter, profile or project does
// not exist.
var ErrNotFound = blob.ErrNotFound

// ErrExists is returned by CreateProject when the project already has a
// manifest.
var ErrExists = errors.New("already exists")

// ErrInvalidID is returned for ids that cannot be used as a key segment.
var ErrInvalidID = errors.New("invalid id")

const projectsPrefix = "projects/"

// Repository reads and writes project documents. Every call goes to the
// underlying store; nothing is cached between calls.
type Repository struct {
	store blob.Store
}

// NewRepository wraps store.
func NewRepository(store blob.Store) *Repository {
	return &Repository{store: store}
}

// Store returns the underlying blob store.
func (r *Repository) Store() blob.Store { return r.store }

func checkID(kind, id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, "/\\") {
		return fmt.Errorf("%s id %q: %w", kind, id, ErrInvalidID)
	}
	return nil
}

// chapterSegment maps a chapter id to its file name; slashes are folded
// into underscores.
func chapterSegment(id string) string {
	return strings.ReplaceAll(id, "/", "_")
}

func projectKey(projectID string, parts ...string) string {
	return projectsPrefix + projectID + "/" + strings.Join(parts, "/")
}

func ManifestKey(projectID string) string { return projectKey(projectID, "manifest.json") }

func ChapterKey(projectID, chapterID string) string {
	return projectKey(projectID, "chapters", chapterSegment(chapterID)+".json")
}

func IndexKey(projectID string) string { return projectKey(projectID, "entities", "index.json") }

func ProfileKey(projectID, entityID string) string {
	return projectKey(projectID, "entities", "profiles", entityID+".json")
}

func TranscriptKey(projectID string) string { return projectKey(projectID, "chat.json") }

func SweepMetadataKey(projectID string) string {
	return projectKey(projectID, "sweeps", "last_processed.json")
}

func (r *Repository) readJSON(ctx context.Context, key string, v any) error {
	data, err := r.store.Read(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", key, err)
	}
	return nil
}

func (r *Repository) writeJSON(ctx context.Context, key string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return r.store.Write(ctx, key, data)
}

// ListProjects returns every project that has at least one stored document,
// ordered by id. Title and description come from the manifest when present.
func (r *Repository) ListProjects(ctx context.Context) ([]Project, error) {
	keys, err := r.store.List(ctx, projectsPrefix)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}

	seen := make(map[string]bool)
	var ids []string
	for _, k := range keys {
		rest := strings.TrimPrefix(k, projectsPrefix)
		id, _, ok := strings.Cut(rest, "/")
		if !ok || id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	sort.Strings(ids)

	projects := make([]Project, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, id := range ids {
		g.Go(func() error {
			p := Project{ID: id, Title: id}
			m, err := r.LoadManifest(gctx, id)
			switch {
			case errors.Is(err, ErrNotFound):
			case err != nil:
				return err
			default:
				if m.Title != "" {
					p.Title = m.Title
				}
				p.Description = m.Description
			}
			projects[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return projects, nil
}

// CreateProject seeds a project with the default manifest. An empty ID is
// replaced with a generated one and an empty title defaults to the id.
func (r *Repository) CreateProject(ctx context.Context, p Project) (Project, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if err := checkID("project", p.ID); err != nil {
		return Project{}, err
	}
	if p.Title == "" {
		p.Title = p.ID
	}

	exists, err := r.store.Exists(ctx, ManifestKey(p.ID))
	if err != nil {
		return Project{}, err
	}
	if exists {
		return Project{}, fmt.Errorf("project %s: %w", p.ID, ErrExists)
	}

	m := DefaultManifest(p.Title, p.Description)
	if err := r.SaveManifest(ctx, p.ID, &m); err != nil {
		return Project{}, err
	}
	return p, nil
}

// DeleteProject removes every document of the project.
func (r *Repository) DeleteProject(ctx context.Context, projectID string) error {
	if err := checkID("project", projectID); err != nil {
		return err
	}
	prefix := projectsPrefix + projectID + "/"
	keys, err := r.store.List(ctx, prefix)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}
	return r.store.DeletePrefix(ctx, prefix)
}

func (r *Repository) LoadManifest(ctx context.Context, projectID string) (*Manifest, error) {
	if err := checkID("project", projectID); err != nil {
		return nil, err
	}
	var m Manifest
	if err := r.readJSON(ctx, ManifestKey(projectID), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *Repository) SaveManifest(ctx context.Context, projectID string, m *Manifest) error {
	if err := checkID("project", projectID); err != nil {
		return err
	}
	return r.writeJSON(ctx, ManifestKey(projectID), m)
}

// LoadChapterRaw returns the stored bytes of a chapter document.
func (r *Repository) LoadChapterRaw(ctx context.Context, projectID, chapterID string) ([]byte, error) {
	if err := checkID("project", projectID); err != nil {
		return nil, err
	}
	if chapterID == "" {
		return nil, fmt.Errorf("chapter id: %w", ErrInvalidID)
	}
	return r.store.Read(ctx, ChapterKey(projectID, chapterID))
}

func (r *Repository) LoadChapter(ctx context.Context, projectID, chapterID string) (*Doc, error) {
	data, err := r.LoadChapterRaw(ctx, projectID, chapterID)
	if err != nil {
		return nil, err
	}
	var d Doc
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decoding chapter %s: %w", chapterID, err)
	}
	return &d, nil
}

func (r *Repository) SaveChapter(ctx context.Context, projectID, chapterID string, d *Doc) error {
	if err := checkID("project", projectID); err != nil {
		return err
	}
	if chapterID == "" {
		return fmt.Errorf("chapter id: %w", ErrInvalidID)
	}
	return r.writeJSON(ctx, ChapterKey(projectID, chapterID), d)
}

// DeleteChapter removes a chapter document. Missing chapters are ignored.
func (r *Repository) DeleteChapter(ctx context.Context, projectID, chapterID string) error {
	if err := checkID("project", projectID); err != nil {
		return err
	}
	return r.store.Delete(ctx, ChapterKey(projectID, chapterID))
}

// LoadIndex returns the entity index, or an empty index if none is stored.
func (r *Repository) LoadIndex(ctx context.Context, projectID string) (EntityIndex, error) {
	if err := checkID("project", projectID); err != nil {
		return nil, err
	}
	idx := EntityIndex{}
	err := r.readJSON(ctx, IndexKey(projectID), &idx)
	if errors.Is(err, ErrNotFound) {
		return EntityIndex{}, nil
	}
	if err != nil {
		return nil, err
	}
	return idx, nil
}

func (r *Repository) SaveIndex(ctx context.Context, projectID string, idx EntityIndex) error {
	if err := checkID("project", projectID); err != nil {
		return err
	}
	if idx == nil {
		idx = EntityIndex{}
	}
	return r.writeJSON(ctx, IndexKey(projectID), idx)
}

func (r *Repository) LoadProfile(ctx context.Context, projectID, entityID string) (*EntityProfile, error) {
	if err := checkID("project", projectID); err != nil {
		return nil, err
	}
	if err := checkID("entity", entityID); err != nil {
		return nil, err
	}
	var p EntityProfile
	if err := r.readJSON(ctx, ProfileKey(projectID, entityID), &p); err != nil {
		return nil, err
	}
	if p.CanonicalFacts == nil {
		p.CanonicalFacts = []Fact{}
	}
	if p.Timeline == nil {
		p.Timeline = []TimelineEntry{}
	}
	return &p, nil
}

func (r *Repository) SaveProfile(ctx context.Context, projectID string, p *EntityProfile) error {
	if err := checkID("project", projectID); err != nil {
		return err
	}
	if err := checkID("entity", p.ID); err != nil {
		return err
	}
	return r.writeJSON(ctx, ProfileKey(projectID, p.ID), p)
}

// SaveProfileAndIndex stores p and makes sure the index carries its current
// name and type. Used for direct edits, where the author is the authority on
// naming.
func (r *Repository) SaveProfileAndIndex(ctx context.Context, projectID string, p *EntityProfile) error {
	if err := r.SaveProfile(ctx, projectID, p); err != nil {
		return err
	}
	idx, err := r.LoadIndex(ctx, projectID)
	if err != nil {
		return err
	}
	i := idx.Find(p.ID)
	switch {
	case i < 0:
		idx = append(idx, p.Summary())
	case idx[i].Name != p.Name || idx[i].Type != p.Type:
		idx[i].Name = p.Name
		idx[i].Type = p.Type
	default:
		return nil
	}
	return r.SaveIndex(ctx, projectID, idx)
}

// LoadSweepMetadata returns the recorded chapter markers, or an empty map.
func (r *Repository) LoadSweepMetadata(ctx context.Context, projectID string) (SweepMetadata, error) {
	if err := checkID("project", projectID); err != nil {
		return nil, err
	}
	meta := SweepMetadata{}
	err := r.readJSON(ctx, SweepMetadataKey(projectID), &meta)
	if errors.Is(err, ErrNotFound) {
		return SweepMetadata{}, nil
	}
	if err != nil {
		return nil, err
	}
	if meta == nil {
		meta = SweepMetadata{}
	}
	return meta, nil
}

func (r *Repository) SaveSweepMetadata(ctx context.Context, projectID string, meta SweepMetadata) error {
	if err := checkID("project", projectID); err != nil {
		return err
	}
	return r.writeJSON(ctx, SweepMetadataKey(projectID), meta)
}

// LoadTranscript returns the chat transcript, or an empty one.
func (r *Repository) LoadTranscript(ctx context.Context, projectID string) (*ChatTranscript, error) {
	if err := checkID("project", projectID); err != nil {
		return nil, err
	}
	t := &ChatTranscript{}
	err := r.readJSON(ctx, TranscriptKey(projectID), t)
	if errors.Is(err, ErrNotFound) {
		return &ChatTranscript{Messages: []ChatMessage{}}, nil
	}
	if err != nil {
		return nil, err
	}
	if t.Messages == nil {
		t.Messages = []ChatMessage{}
	}
	return t, nil
}

func (r *Repository) SaveTranscript(ctx context.Context, projectID string, t *ChatTranscript) error {
	if err := checkID("project", projectID); err != nil {
		return err
	}
	if t.Messages == nil {
		t.Messages = []ChatMessage{}
	}
	return r.writeJSON(ctx, TranscriptKey(projectID), t)
}
