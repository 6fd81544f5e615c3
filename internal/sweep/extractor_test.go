package sweep

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/neyasbook/neyasbook/internal/llm"
)

// mockChatter implements Chatter. Responses are picked by the chapter
// title found in the user message; a title with no entry gets fallback.
type mockChatter struct {
	byTitle  map[string]string
	fallback string
	err      error
	calls    int
	requests []llm.Request
}

func (m *mockChatter) Chat(ctx context.Context, req llm.Request) (*llm.Response, error) {
	m.calls++
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	user := req.Messages[len(req.Messages)-1].Content
	for title, resp := range m.byTitle {
		if strings.Contains(user, `"`+title+`"`) {
			return &llm.Response{Content: resp}, nil
		}
	}
	return &llm.Response{Content: m.fallback}, nil
}

func TestExtract_RequestUsesJSONMode(t *testing.T) {
	mock := &mockChatter{fallback: `{"entities":[]}`}
	e := NewExtractor(mock, "gpt-4o-mini")

	got, err := e.Extract(context.Background(), "The Storm", "Rain.")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("entities = %+v, want none", got)
	}

	req := mock.requests[0]
	if !req.JSONMode || req.Model != "gpt-4o-mini" {
		t.Errorf("request = %+v", req)
	}
	if req.Messages[0].Role != "system" || !strings.Contains(req.Messages[0].Content, "World Weaver") {
		t.Errorf("system message = %+v", req.Messages[0])
	}
	if !strings.Contains(req.Messages[1].Content, "Chapter Title: \"The Storm\"\n\nContent:\nRain.") {
		t.Errorf("user message = %q", req.Messages[1].Content)
	}
}

func TestExtract_ChatError(t *testing.T) {
	e := NewExtractor(&mockChatter{err: errors.New("connection refused")}, "m")
	_, err := e.Extract(context.Background(), "t", "x")
	if !errors.Is(err, ErrExtraction) {
		t.Errorf("err = %v, want ErrExtraction", err)
	}
}

func TestDecode_Normalizes(t *testing.T) {
	got, err := Decode(`{"entities":[{"name":"  Elias Voss ","type":"Character","status":"fleeing","motivation":"hide","newFacts":["Is a doctor","  "]}]}`)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("entities = %+v", got)
	}
	e := got[0]
	if e.Name != "Elias Voss" || e.Type != "character" {
		t.Errorf("entity = %+v", e)
	}
	if len(e.NewFacts) != 1 || e.NewFacts[0] != "Is a doctor" {
		t.Errorf("facts = %q", e.NewFacts)
	}
}

func TestDecode_SkipsUnknownType(t *testing.T) {
	got, err := Decode(`{"entities":[{"name":"Fog","type":"weather"},{"name":"Saint Aubin","type":"Organization"},{"name":"Asylum","type":"place"}]}`)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != 1 || got[0].Name != "Asylum" {
		t.Errorf("entities = %+v, want only Asylum", got)
	}
}

func TestDecode_Rejects(t *testing.T) {
	cases := map[string]string{
		"not json":     `Sure! Here are the entities`,
		"missing list": `{"characters":[]}`,
		"null list":    `{"entities":null}`,
		"empty name":   `{"entities":[{"name":"","type":"place"}]}`,
		"punctuation":  `{"entities":[{"name":"???","type":"object"}]}`,
		"wrong shape":  `{"entities":[{"name":"A","type":"place","newFacts":"one fact"}]}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Decode(raw); !errors.Is(err, ErrExtraction) {
				t.Errorf("Decode(%s) err = %v, want ErrExtraction", raw, err)
			}
		})
	}
}
