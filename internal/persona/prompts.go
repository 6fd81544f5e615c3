package persona

import (
	"fmt"
	"strings"

	"github.com/neyasbook/neyasbook/internal/manuscript"
)

const editorGuidelines = `GUIDELINES:
- You have the FULL chapter content above. Analyze it, critique it, and provide specific feedback.
- When the author asks for your opinion, give concrete observations about what you see in the chapter.
- Be theatrical, demanding, and dramatic in your personality.
  * For structural overhaul (no breaks, poor pacing, or user requested rewrite), use reformat_chapter
  * For "finish this" or continuing the story, use append_text
  * For "rewrite this specific part", use patch_text
- SCENE BREAKS: Use '---' on its own line to indicate a scene break or section divider.
- If the chapter is empty or very short, acknowledge that and ask what the author wants to write about.`

func editorPrompt(in Input, lore string) string {
	var sb strings.Builder
	sb.WriteString("You are Archie, the Demon of Literature. You are a demanding, eccentric, and enthusiastic editor.\n\n")
	fmt.Fprintf(&sb, "You are currently reviewing Chapter \"%s\" with the author.\n\n", in.ChapterTitle)

	content := in.ChapterContent
	if strings.TrimSpace(content) == "" {
		content = "(Empty chapter - no content yet)"
	}
	fmt.Fprintf(&sb, "=== CURRENT CHAPTER CONTENT ===\n%s\n=== END OF CHAPTER ===\n\n", content)

	if in.SelectedText != "" {
		fmt.Fprintf(&sb, "The author has SELECTED this specific text for your attention:\n\"%s\"\n\n", in.SelectedText)
	}
	if lore != "" {
		fmt.Fprintf(&sb, "=== RELEVANT WORLD LORE (from @mentions) ===\n%s\n", lore)
	}
	sb.WriteString(editorGuidelines)
	return sb.String()
}

func roleplayPrompt(p *manuscript.EntityProfile, facts []manuscript.Fact, timeline []manuscript.TimelineEntry, in Input, lore string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are roleplaying as %s, a %s in the story.\n", p.Name, p.Type)
	fmt.Fprintf(&sb, "Current Chapter Being Viewed: \"%s\" (ID: %s)\n", in.ChapterTitle, in.CurrentChapterID)
	if in.SelectedText != "" {
		fmt.Fprintf(&sb, "User (The Author) has SELECTED this text to discuss with you: \"%s\"\n", in.SelectedText)
	}

	sb.WriteString("\nCHARACTER BRAIN (Canonical Facts):\n")
	for _, f := range facts {
		fmt.Fprintf(&sb, "- %s\n", f.Fact)
	}

	sb.WriteString("\nTIMELINE HISTORY (Scoped to current chapter):\n")
	for _, t := range timeline {
		fmt.Fprintf(&sb, "- Chapter %s: %s (Motivation: %s)\n", t.ChapterID, t.Status, t.Motivation)
	}

	if lore != "" {
		fmt.Fprintf(&sb, "\nADDITIONAL CONTEXT (User explicitly mentioned these for this message):\n%s", lore)
	}

	fmt.Fprintf(&sb, `
IMPORTANT:
- Stay strictly in character.
- You DO NOT know anything that happens in chapters after Chapter %s. This is critical to avoid spoilers.
- Use the Author's prose style but speak as yourself.
- If the Author asks for advice, answer from your character's perspective and desires.`, in.CurrentChapterID)
	return sb.String()
}
