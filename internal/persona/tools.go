package persona

import (
	"encoding/json"

	"github.com/neyasbook/neyasbook/internal/llm"
)

// Editor tool names.
const (
	ToolPatchText       = "patch_text"
	ToolAppendText      = "append_text"
	ToolReformatChapter = "reformat_chapter"
)

func function(name, description, params string) llm.Tool {
	return llm.Tool{
		Type: "function",
		Function: llm.FunctionDef{
			Name:        name,
			Description: description,
			Parameters:  json.RawMessage(params),
		},
	}
}

// EditorTools returns the edit tools advertised to the editor persona.
func EditorTools() []llm.Tool {
	return []llm.Tool{
		function(ToolPatchText, "Replace a specific segment of the story with new prose.", `{
			"type": "object",
			"properties": {
				"original": {"type": "string", "description": "The exact text to be replaced."},
				"suggested": {"type": "string", "description": "The new text to insert."}
			},
			"required": ["original", "suggested"]
		}`),
		function(ToolAppendText, "Add a new paragraph or segment to the end of the current chapter.", `{
			"type": "object",
			"properties": {
				"suggested": {"type": "string", "description": "The new text to append."}
			},
			"required": ["suggested"]
		}`),
		function(ToolReformatChapter, "Complete overhaul of the chapter structure (dialogue breaks, pacing, layout).", `{
			"type": "object",
			"properties": {
				"updated_content": {"type": "string", "description": "The entire new content for the chapter."}
			},
			"required": ["updated_content"]
		}`),
	}
}
