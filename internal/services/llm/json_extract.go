package llm

import (
	"strings"
)

// ExtractJSONBlock returns the body of the first ```json fenced block in text,
// or the trimmed text unchanged when there is no fence.
func ExtractJSONBlock(text string) string {
	start := strings.Index(text, "```json")
	if start < 0 {
		if plain := strings.Index(text, "```"); plain >= 0 {
			start = plain
			rest := text[start+3:]
			if end := strings.Index(rest, "```"); end >= 0 {
				return strings.TrimSpace(rest[:end])
			}
			return strings.TrimSpace(rest)
		}
		return strings.TrimSpace(text)
	}

	rest := text[start+len("```json"):]
	if end := strings.Index(rest, "```"); end >= 0 {
		return strings.TrimSpace(rest[:end])
	}
	return strings.TrimSpace(rest)
}
