// Package sweep extracts entities from chapter prose and merges them into
// the project's entity profiles.
package sweep

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/neyasbook/neyasbook/internal/manuscript"
	"github.com/neyasbook/neyasbook/internal/prose"
)

// Result counts what one sweep did.
type Result struct {
	Scanned int `json:"scanned"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Message is the user-facing summary of the sweep.
func (r Result) Message() string {
	msg := fmt.Sprintf("Archie has finished weaving. Scanned: %d, Skipped: %d.", r.Scanned, r.Skipped)
	if r.Failed > 0 {
		msg += fmt.Sprintf(" Failed: %d.", r.Failed)
	}
	return msg
}

// EntityExtractor returns the entities mentioned in one chapter.
type EntityExtractor interface {
	Extract(ctx context.Context, chapterTitle, text string) ([]Extraction, error)
}

// Engine runs sweeps. Concurrent sweeps of the same project within one
// process share a single run.
type Engine struct {
	repo      *manuscript.Repository
	extractor EntityExtractor
	group     singleflight.Group
}

func NewEngine(repo *manuscript.Repository, extractor EntityExtractor) *Engine {
	return &Engine{repo: repo, extractor: extractor}
}

// Marker is the change marker recorded for a chapter: the hex SHA-256 of
// its stored bytes.
func Marker(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Sweep scans every chapter of the project in manifest order. Chapters
// whose marker matches the last recorded one are skipped. A chapter that
// fails extraction or merging is logged, left unrecorded so the next sweep
// retries it, and does not stop the others. A missing manifest returns an
// error wrapping manuscript.ErrNotFound.
//
// The shared run is detached from the caller's cancellation. A caller whose
// ctx ends gets ctx.Err() at once while the run finishes for the others.
func (e *Engine) Sweep(ctx context.Context, projectID string) (Result, error) {
	ch := e.group.DoChan(projectID, func() (any, error) {
		return e.sweep(context.WithoutCancel(ctx), projectID)
	})
	select {
	case r := <-ch:
		if r.Shared {
			slog.Debug("sweep coalesced", "project", projectID)
		}
		if r.Err != nil {
			return Result{}, r.Err
		}
		return r.Val.(Result), nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (e *Engine) sweep(ctx context.Context, projectID string) (Result, error) {
	var res Result

	manifest, err := e.repo.LoadManifest(ctx, projectID)
	if err != nil {
		return res, fmt.Errorf("loading manifest of %s: %w", projectID, err)
	}
	meta, err := e.repo.LoadSweepMetadata(ctx, projectID)
	if err != nil {
		return res, fmt.Errorf("loading sweep metadata: %w", err)
	}

	chapters := manifest.Chapters()
	slog.Info("sweep started", "project", projectID, "chapters", len(chapters))

	for _, ch := range chapters {
		raw, err := e.repo.LoadChapterRaw(ctx, projectID, ch.ID)
		if errors.Is(err, manuscript.ErrNotFound) {
			continue
		}
		if err != nil {
			e.saveProgress(ctx, projectID, meta)
			return res, fmt.Errorf("reading chapter %s: %w", ch.ID, err)
		}

		marker := Marker(raw)
		if meta[ch.ID] == marker {
			res.Skipped++
			continue
		}

		var doc manuscript.Doc
		if err := json.Unmarshal(raw, &doc); err != nil {
			slog.Warn("sweep: chapter is not a valid document", "project", projectID, "chapter", ch.ID, "error", err)
			res.Failed++
			continue
		}
		text := prose.ToText(&doc)
		if text == "" {
			meta[ch.ID] = marker
			continue
		}

		slog.Debug("sweep: scanning chapter", "project", projectID, "chapter", ch.ID, "title", ch.Title)
		res.Scanned++

		if err := e.sweepChapter(ctx, projectID, ch, text); err != nil {
			slog.Warn("sweep: chapter failed", "project", projectID, "chapter", ch.ID, "error", err)
			res.Failed++
			continue
		}
		meta[ch.ID] = marker
	}

	if err := e.repo.SaveSweepMetadata(ctx, projectID, meta); err != nil {
		return res, fmt.Errorf("saving sweep metadata: %w", err)
	}
	slog.Info("sweep finished", "project", projectID,
		"scanned", res.Scanned, "skipped", res.Skipped, "failed", res.Failed)
	return res, nil
}

// saveProgress records the markers gathered so far when a sweep aborts.
func (e *Engine) saveProgress(ctx context.Context, projectID string, meta manuscript.SweepMetadata) {
	if err := e.repo.SaveSweepMetadata(ctx, projectID, meta); err != nil {
		slog.Warn("sweep: saving partial metadata failed", "project", projectID, "error", err)
	}
}

func (e *Engine) sweepChapter(ctx context.Context, projectID string, ch manuscript.Node, text string) error {
	entities, err := e.extractor.Extract(ctx, ch.Title, text)
	if err != nil {
		return err
	}

	index, err := e.repo.LoadIndex(ctx, projectID)
	if err != nil {
		return err
	}

	for _, ent := range entities {
		id := manuscript.EntityID(ent.Name)

		profile, err := e.repo.LoadProfile(ctx, projectID, id)
		if errors.Is(err, manuscript.ErrNotFound) {
			profile = manuscript.NewEntityProfile(id, ent.Name, ent.Type)
		} else if err != nil {
			return fmt.Errorf("loading profile %s: %w", id, err)
		}

		for _, fact := range ent.NewFacts {
			profile.AddFact(fact, ch.ID)
		}
		profile.UpsertTimeline(manuscript.TimelineEntry{
			ChapterID:    ch.ID,
			ChapterTitle: ch.Title,
			Status:       ent.Status,
			Motivation:   ent.Motivation,
		})

		if err := e.repo.SaveProfile(ctx, projectID, profile); err != nil {
			return fmt.Errorf("saving profile %s: %w", id, err)
		}

		// The index entry is written once, right after its profile; later
		// sweeps do not rename it.
		if index.Find(id) < 0 {
			index = append(index, profile.Summary())
			if err := e.repo.SaveIndex(ctx, projectID, index); err != nil {
				return fmt.Errorf("saving entity index: %w", err)
			}
		}
	}
	return nil
}
