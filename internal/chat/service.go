// Package chat runs chat turns against the editor and roleplay personas
// and manages the persisted transcript.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/neyasbook/neyasbook/internal/llm"
	"github.com/neyasbook/neyasbook/internal/manuscript"
	"github.com/neyasbook/neyasbook/internal/persona"
	"github.com/neyasbook/neyasbook/internal/prose"
)

// Chatter is the model client the service needs.
type Chatter interface {
	Chat(ctx context.Context, req llm.Request) (*llm.Response, error)
	Stream(ctx context.Context, req llm.Request, fn func(llm.Delta) error) (*llm.Response, error)
}

// Message is a transcript message as sent by clients. Only role and content
// reach the model.
type Message = manuscript.ChatMessage

// TurnRequest is one chat turn as posted by the editor client.
type TurnRequest struct {
	Messages            []Message `json:"messages"`
	ChapterContent      string    `json:"chapterContent"`
	ChapterTitle        string    `json:"chapterTitle"`
	SelectedText        string    `json:"selectedText,omitempty"`
	Persona             string    `json:"persona"`
	CurrentChapterID    string    `json:"currentChapterId"`
	ReferencedEntityIDs []string  `json:"referencedEntityIds,omitempty"`
}

// TurnResponse is the model's answer. ToolCalls keeps the wire shape of the
// model's tool calls; Suggestions holds the same calls decoded as edits.
type TurnResponse struct {
	Content     string                  `json:"content"`
	ToolCalls   []llm.ToolCall          `json:"toolCalls"`
	Suggestions []manuscript.Suggestion `json:"suggestions,omitempty"`
}

// Service runs chat turns.
type Service struct {
	repo    *manuscript.Repository
	builder *persona.Builder
	client  Chatter
	model   string
}

func NewService(repo *manuscript.Repository, builder *persona.Builder, client Chatter, model string) *Service {
	return &Service{repo: repo, builder: builder, client: client, model: model}
}

func (s *Service) request(ctx context.Context, projectID string, req TurnRequest) (llm.Request, error) {
	prompt, err := s.builder.Build(ctx, projectID, persona.Input{
		Persona:          persona.Parse(req.Persona),
		ChapterContent:   req.ChapterContent,
		ChapterTitle:     req.ChapterTitle,
		SelectedText:     req.SelectedText,
		CurrentChapterID: req.CurrentChapterID,
		ReferencedIDs:    req.ReferencedEntityIDs,
	})
	if err != nil {
		return llm.Request{}, fmt.Errorf("building prompt: %w", err)
	}

	msgs := make([]llm.Message, 0, len(req.Messages)+1)
	msgs = append(msgs, llm.Message{Role: "system", Content: prompt.System})
	for _, m := range req.Messages {
		switch m.Role {
		case "user", "assistant":
			msgs = append(msgs, llm.Message{Role: m.Role, Content: m.Content})
		}
	}
	return llm.Request{Model: s.model, Messages: msgs, Tools: prompt.Tools}, nil
}

// Turn runs one non-streaming turn.
func (s *Service) Turn(ctx context.Context, projectID string, req TurnRequest) (*TurnResponse, error) {
	llmReq, err := s.request(ctx, projectID, req)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Chat(ctx, llmReq)
	if err != nil {
		return nil, err
	}
	return newTurnResponse(resp.Content, resp.ToolCalls), nil
}

func newTurnResponse(content string, calls []llm.ToolCall) *TurnResponse {
	if calls == nil {
		calls = []llm.ToolCall{}
	}
	out := &TurnResponse{Content: content, ToolCalls: calls}
	for _, tc := range calls {
		sug, err := DecodeSuggestion(tc)
		if err != nil {
			slog.Warn("ignoring tool call", "name", tc.Function.Name, "error", err)
			continue
		}
		out.Suggestions = append(out.Suggestions, sug)
	}
	return out
}

// Event is one server-sent event of a streamed turn.
type Event struct {
	Name string
	Data any
}

// Stream event names.
const (
	EventToken    = "token"
	EventToolCall = "tool_call"
	EventDone     = "done"
	EventError    = "error"
)

// ToolCallEvent is the payload of a tool_call event.
type ToolCallEvent struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	Arguments  string                 `json:"arguments"`
	Suggestion *manuscript.Suggestion `json:"suggestion,omitempty"`
}

// StreamTurn runs one streaming turn. Content fragments are emitted as
// token events, followed by a tool_call event per tool call and a final
// done event carrying the full response. On failure an error event is
// emitted and the error returned.
func (s *Service) StreamTurn(ctx context.Context, projectID string, req TurnRequest, emit func(Event) error) error {
	fail := func(err error) error {
		if emitErr := emit(Event{Name: EventError, Data: map[string]string{"message": err.Error()}}); emitErr != nil {
			slog.Debug("could not deliver stream error", "error", emitErr)
		}
		return err
	}

	llmReq, err := s.request(ctx, projectID, req)
	if err != nil {
		return fail(err)
	}

	resp, err := s.client.Stream(ctx, llmReq, func(d llm.Delta) error {
		return emit(Event{Name: EventToken, Data: map[string]string{"content": d.Content}})
	})
	if err != nil {
		return fail(err)
	}

	for i := range resp.ToolCalls {
		tc := &resp.ToolCalls[i]
		if tc.ID == "" {
			tc.ID = "call_" + uuid.NewString()
		}
		ev := ToolCallEvent{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments}
		if sug, err := DecodeSuggestion(*tc); err == nil {
			ev.Suggestion = &sug
		}
		if err := emit(Event{Name: EventToolCall, Data: ev}); err != nil {
			return err
		}
	}
	return emit(Event{Name: EventDone, Data: newTurnResponse(resp.Content, resp.ToolCalls)})
}

// ErrUnknownTool is returned for tool calls that are not editor tools.
var ErrUnknownTool = errors.New("unknown tool")

// DecodeSuggestion turns an editor tool call into a Suggestion.
func DecodeSuggestion(tc llm.ToolCall) (manuscript.Suggestion, error) {
	var args struct {
		Original       string `json:"original"`
		Suggested      string `json:"suggested"`
		UpdatedContent string `json:"updated_content"`
	}
	if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
		return manuscript.Suggestion{}, fmt.Errorf("decoding %s arguments: %w", tc.Function.Name, err)
	}

	switch tc.Function.Name {
	case persona.ToolPatchText:
		return manuscript.Suggestion{Original: args.Original, Suggested: args.Suggested}, nil
	case persona.ToolAppendText:
		return manuscript.Suggestion{Suggested: args.Suggested}, nil
	case persona.ToolReformatChapter:
		return manuscript.Suggestion{Original: manuscript.ReformatMarker, Suggested: args.UpdatedContent}, nil
	default:
		return manuscript.Suggestion{}, fmt.Errorf("%w: %s", ErrUnknownTool, tc.Function.Name)
	}
}

// History returns the project's transcript.
func (s *Service) History(ctx context.Context, projectID string) (*manuscript.ChatTranscript, error) {
	return s.repo.LoadTranscript(ctx, projectID)
}

// SaveHistory replaces the project's transcript.
func (s *Service) SaveHistory(ctx context.Context, projectID string, t *manuscript.ChatTranscript) error {
	return s.repo.SaveTranscript(ctx, projectID, t)
}

// ResetContext keeps the transcript but excludes every current message
// from future turns.
func (s *Service) ResetContext(ctx context.Context, projectID string) (*manuscript.ChatTranscript, error) {
	t, err := s.repo.LoadTranscript(ctx, projectID)
	if err != nil {
		return nil, err
	}
	t.ResetContext()
	if err := s.repo.SaveTranscript(ctx, projectID, t); err != nil {
		return nil, err
	}
	return t, nil
}

// ConverseRequest is a turn driven from stored state rather than from an
// editor client.
type ConverseRequest struct {
	Persona       string
	ChapterID     string
	Message       string
	ReferencedIDs []string
}

// Converse appends the author's message to the stored transcript, runs a
// turn over the transcript's active window with the stored chapter as
// context and records the reply.
func (s *Service) Converse(ctx context.Context, projectID string, req ConverseRequest) (*TurnResponse, error) {
	if req.Message == "" {
		return nil, errors.New("message is empty")
	}
	t, err := s.repo.LoadTranscript(ctx, projectID)
	if err != nil {
		return nil, err
	}

	turn := TurnRequest{
		Persona:             req.Persona,
		CurrentChapterID:    req.ChapterID,
		ReferencedEntityIDs: req.ReferencedIDs,
	}
	if req.ChapterID != "" {
		if err := s.loadChapterContext(ctx, projectID, req.ChapterID, &turn); err != nil {
			return nil, err
		}
	}

	t.Messages = append(t.Messages, Message{Role: "user", Content: req.Message})
	turn.Messages = t.ActiveMessages()

	resp, err := s.Turn(ctx, projectID, turn)
	if err != nil {
		return nil, err
	}

	reply := Message{
		Role:      "assistant",
		Content:   resp.Content,
		PersonaID: persona.Parse(req.Persona).ID(),
	}
	if len(resp.Suggestions) > 0 {
		reply.Suggestion = &resp.Suggestions[0]
	}
	t.Messages = append(t.Messages, reply)
	if err := s.repo.SaveTranscript(ctx, projectID, t); err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *Service) loadChapterContext(ctx context.Context, projectID, chapterID string, turn *TurnRequest) error {
	turn.ChapterTitle = chapterID
	if m, err := s.repo.LoadManifest(ctx, projectID); err == nil {
		if node, ok := m.FindChapter(chapterID); ok {
			turn.ChapterTitle = node.Title
		}
	} else if !errors.Is(err, manuscript.ErrNotFound) {
		return err
	}

	doc, err := s.repo.LoadChapter(ctx, projectID, chapterID)
	switch {
	case errors.Is(err, manuscript.ErrNotFound):
	case err != nil:
		return err
	default:
		turn.ChapterContent = prose.ToText(doc)
	}
	return nil
}
