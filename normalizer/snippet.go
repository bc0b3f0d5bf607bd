package normalizer

import "strings"

const snippetMaxRunes = 140

// FeedbackSnippet returns the first non-blank line of text, cut to 140 runes.
func FeedbackSnippet(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		runes := []rune(line)
		if len(runes) > snippetMaxRunes {
			return string(runes[:snippetMaxRunes])
		}
		return line
	}
	return ""
}
