package sweep

import (
	"fmt"

	"github.com/neyasbook/neyasbook/internal/llm"
)

const systemPrompt = `You are the World Weaver. Extract all characters, places, institutions and notable objects from the following chapter.
For each entity, provide:
- Name (Clear and consistent)
- Type (character, place, institution, or object)
- Status (A brief summary of their actions or status in this chapter)
- Motivation (Their primary goal in this specific chapter)
- NewFacts (A list of short canonical facts revealed about them)

Return strictly valid JSON in this format:
{
  "entities": [
    { "name": "...", "type": "...", "status": "...", "motivation": "...", "newFacts": ["...", "..."] }
  ]
}`

// BuildPrompt constructs the extraction messages for one chapter.
func BuildPrompt(chapterTitle, text string) []llm.Message {
	return []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: fmt.Sprintf("Chapter Title: \"%s\"\n\nContent:\n%s", chapterTitle, text)},
	}
}
