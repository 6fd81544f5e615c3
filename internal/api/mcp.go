package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/neyasbook/neyasbook/internal/manuscript"
	"github.com/neyasbook/neyasbook/internal/persona"
	"github.com/neyasbook/neyasbook/internal/prose"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Repo    *manuscript.Repository
	Sweeper Sweeper
	Prompts *persona.Builder
	Version string
}

// NewMCPServer creates an MCP server with the manuscript tools and
// resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"neyasbook",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("neyasbook: manuscripts, chapters and the entity lore extracted from them."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("sweep_project",
			mcp.WithDescription("Extract entities from every changed chapter of a project and merge them into the lore."),
			mcp.WithString("project", mcp.Description("Project id"), mcp.Required()),
		),
		mcpSweepProject(deps),
	)

	s.AddTool(
		mcp.NewTool("list_entities",
			mcp.WithDescription("List the entities known for a project as a JSON array of {id, name, type}."),
			mcp.WithString("project", mcp.Description("Project id"), mcp.Required()),
		),
		mcpListEntities(deps),
	)

	s.AddTool(
		mcp.NewTool("get_entity",
			mcp.WithDescription("Return an entity profile. With current_chapter, facts and timeline after that chapter are hidden."),
			mcp.WithString("project", mcp.Description("Project id"), mcp.Required()),
			mcp.WithString("entity_id", mcp.Description("Entity id, e.g. dr-elias-voss"), mcp.Required()),
			mcp.WithString("current_chapter", mcp.Description("Chapter id the reader has reached")),
		),
		mcpGetEntity(deps),
	)

	s.AddTool(
		mcp.NewTool("chapter_text",
			mcp.WithDescription("Return a chapter as plain text."),
			mcp.WithString("project", mcp.Description("Project id"), mcp.Required()),
			mcp.WithString("chapter_id", mcp.Description("Chapter id"), mcp.Required()),
		),
		mcpChapterText(deps),
	)

	s.AddTool(
		mcp.NewTool("build_persona_prompt",
			mcp.WithDescription("Assemble the system prompt a chat persona would receive for a chapter."),
			mcp.WithString("project", mcp.Description("Project id"), mcp.Required()),
			mcp.WithString("persona", mcp.Description("archie for the editor, or an entity id (default archie)")),
			mcp.WithString("chapter_id", mcp.Description("Chapter the author is working on")),
			mcp.WithArray("referenced_ids", mcp.Description("Entity or chapter ids to include as lore")),
		),
		mcpBuildPersonaPrompt(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"neyasbook://projects",
			"Projects",
			mcp.WithResourceDescription("All projects as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceProjects(deps),
	)

	return s
}

func mcpSweepProject(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		project, err := req.RequireString("project")
		if err != nil {
			return mcpError("project is required"), nil
		}
		res, err := deps.Sweeper.Sweep(ctx, project)
		if errors.Is(err, manuscript.ErrNotFound) {
			return mcpError(fmt.Sprintf("project %q has no manifest", project)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("sweep failed: %v", err)), nil
		}
		return mcpText(res.Message()), nil
	}
}

func mcpListEntities(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		project, err := req.RequireString("project")
		if err != nil {
			return mcpError("project is required"), nil
		}
		idx, err := deps.Repo.LoadIndex(ctx, project)
		if err != nil {
			return mcpError(fmt.Sprintf("loading entities: %v", err)), nil
		}
		if len(idx) == 0 {
			return mcpText("[]"), nil
		}
		b, err := json.Marshal(idx)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal entities: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGetEntity(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		project, err := req.RequireString("project")
		if err != nil {
			return mcpError("project is required"), nil
		}
		id, err := req.RequireString("entity_id")
		if err != nil {
			return mcpError("entity_id is required"), nil
		}

		p, err := deps.Repo.LoadProfile(ctx, project, id)
		if errors.Is(err, manuscript.ErrNotFound) {
			return mcpError(fmt.Sprintf("entity %q not found", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("loading entity: %v", err)), nil
		}

		if current := req.GetString("current_chapter", ""); current != "" {
			m, err := deps.Repo.LoadManifest(ctx, project)
			if err != nil && !errors.Is(err, manuscript.ErrNotFound) {
				return mcpError(fmt.Sprintf("loading manifest: %v", err)), nil
			}
			var seq []string
			if m != nil {
				seq = m.ChapterSequence()
			}
			p.CanonicalFacts, p.Timeline = persona.FilterSpoilers(p, seq, current)
		}

		b, err := json.Marshal(p)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal entity: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpChapterText(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		project, err := req.RequireString("project")
		if err != nil {
			return mcpError("project is required"), nil
		}
		chapterID, err := req.RequireString("chapter_id")
		if err != nil {
			return mcpError("chapter_id is required"), nil
		}
		doc, err := deps.Repo.LoadChapter(ctx, project, chapterID)
		if errors.Is(err, manuscript.ErrNotFound) {
			return mcpError(fmt.Sprintf("chapter %q not found", chapterID)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("loading chapter: %v", err)), nil
		}
		return mcpText(prose.ToText(doc)), nil
	}
}

func mcpBuildPersonaPrompt(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		project, err := req.RequireString("project")
		if err != nil {
			return mcpError("project is required"), nil
		}

		in := persona.Input{
			Persona:          persona.Parse(req.GetString("persona", "")),
			CurrentChapterID: req.GetString("chapter_id", ""),
			ReferencedIDs:    req.GetStringSlice("referenced_ids", nil),
		}
		if in.CurrentChapterID != "" {
			in.ChapterTitle = in.CurrentChapterID
			if m, err := deps.Repo.LoadManifest(ctx, project); err == nil {
				if node, ok := m.FindChapter(in.CurrentChapterID); ok {
					in.ChapterTitle = node.Title
				}
			}
			if doc, err := deps.Repo.LoadChapter(ctx, project, in.CurrentChapterID); err == nil {
				in.ChapterContent = prose.ToText(doc)
			}
		}

		prompt, err := deps.Prompts.Build(ctx, project, in)
		if err != nil {
			return mcpError(fmt.Sprintf("building prompt: %v", err)), nil
		}
		return mcpText(prompt.System), nil
	}
}

func mcpResourceProjects(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		projects, err := deps.Repo.ListProjects(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list projects: %w", err)
		}
		if projects == nil {
			projects = []manuscript.Project{}
		}

		b, err := json.Marshal(projects)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal projects: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
