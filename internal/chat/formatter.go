package chat

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	headerRe     = regexp.MustCompile(`(?m)^(#{1,6})\s*(.+)$`)
	bulletRe     = regexp.MustCompile(`(?m)^\s*[-*]\s+`)
	bareFenceRe  = regexp.MustCompile("```\n")
	highlightRe  = regexp.MustCompile(`(?i)\b(important|key point|note|warning|critical|conclusion|summary|result)\b`)
	whitespaceRe = regexp.MustCompile(`\s+`)
	scriptRe     = regexp.MustCompile(`(?is)<script.*?</script>`)
)

// FormatMarkdown normalizes header spacing and list markers in a model
// response.
func FormatMarkdown(text string) string {
	text = headerRe.ReplaceAllString(text, "$1 $2\n")
	text = bulletRe.ReplaceAllString(text, "- ")
	return text
}

// FormatCodeBlocks gives bare code fences a default language specifier so
// renderers do not guess.
func FormatCodeBlocks(text string) string {
	return bareFenceRe.ReplaceAllString(text, "```text\n")
}

// HighlightKeyPoints bolds signal words like "important" and "warning".
func HighlightKeyPoints(text string) string {
	return highlightRe.ReplaceAllString(text, "**$1**")
}

// AddReferences appends a numbered reference list to a response.
func AddReferences(text string, references []string) string {
	if len(references) == 0 {
		return text
	}
	var sb strings.Builder
	sb.WriteString(text)
	sb.WriteString("\n\n---\n**📚 References:**\n")
	for i, ref := range references {
		sb.WriteString(strconv.Itoa(i+1) + ". " + ref + "\n")
	}
	return sb.String()
}

// cleanMessage collapses whitespace and strips script markup from user input.
func cleanMessage(message string) string {
	message = scriptRe.ReplaceAllString(message, "")
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(message, " "))
}
