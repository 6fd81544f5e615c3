package sweep

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/neyasbook/neyasbook/internal/llm"
	"github.com/neyasbook/neyasbook/internal/manuscript"
)

const extractionTimeout = 2 * time.Minute

// ErrExtraction marks a chapter whose extraction call failed or returned a
// payload that does not match the expected shape.
var ErrExtraction = errors.New("entity extraction failed")

// Chatter is the chat completion call the extractor needs.
type Chatter interface {
	Chat(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// Extraction is one entity reported by the model for a chapter.
type Extraction struct {
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	Status     string   `json:"status"`
	Motivation string   `json:"motivation"`
	NewFacts   []string `json:"newFacts"`
}

type payload struct {
	Entities *[]Extraction `json:"entities"`
}

// Extractor asks the model for the entities of a chapter.
type Extractor struct {
	client Chatter
	model  string
}

func NewExtractor(client Chatter, model string) *Extractor {
	return &Extractor{client: client, model: model}
}

// Extract returns the validated entities of one chapter. Every failure is
// wrapped in ErrExtraction.
func (e *Extractor) Extract(ctx context.Context, chapterTitle, text string) ([]Extraction, error) {
	ctx, cancel := context.WithTimeout(ctx, extractionTimeout)
	defer cancel()

	resp, err := e.client.Chat(ctx, llm.Request{
		Model:    e.model,
		Messages: BuildPrompt(chapterTitle, text),
		JSONMode: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	return Decode(resp.Content)
}

// Decode parses and validates an extraction payload. Names are trimmed,
// types lowercased and blank facts dropped. An entity with an unknown type
// is skipped; a missing entity list or an unusable name rejects the whole
// payload.
func Decode(raw string) ([]Extraction, error) {
	var p payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("%w: decoding payload: %v", ErrExtraction, err)
	}
	if p.Entities == nil {
		return nil, fmt.Errorf("%w: payload has no entities list", ErrExtraction)
	}

	out := make([]Extraction, 0, len(*p.Entities))
	for i, ent := range *p.Entities {
		ent.Name = strings.TrimSpace(ent.Name)
		ent.Type = strings.ToLower(strings.TrimSpace(ent.Type))
		if ent.Name == "" {
			return nil, fmt.Errorf("%w: entity %d has no name", ErrExtraction, i)
		}
		if manuscript.EntityID(ent.Name) == "-" {
			return nil, fmt.Errorf("%w: entity name %q yields no id", ErrExtraction, ent.Name)
		}
		if !manuscript.ValidEntityType(ent.Type) {
			slog.Warn("sweep: skipping entity with unknown type", "name", ent.Name, "type", ent.Type)
			continue
		}
		facts := make([]string, 0, len(ent.NewFacts))
		for _, f := range ent.NewFacts {
			if strings.TrimSpace(f) != "" {
				facts = append(facts, f)
			}
		}
		ent.NewFacts = facts
		out = append(out, ent)
	}
	return out, nil
}
