package tiering

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	curlyQuotes   = strings.NewReplacer(
		"“", `"`, "”", `"`,
		"‘", "'", "’", "'",
	)
)

// ExecuteTask runs the named local handler over content. The mission text
// is consulted only by handlers that need a direction (case transforms).
// Unknown handlers are the identity transformation.
func ExecuteTask(handler, mission, content string) string {
	switch handler {
	case "textCleaner":
		return textCleaner(content)
	case "whitespaceHandler":
		return whitespaceHandler(content)
	case "caseTransformer":
		return caseTransformer(mission, content)
	case "counter":
		return counter(content)
	default:
		return content
	}
}

// textCleaner collapses whitespace runs and normalizes curly quotes.
func textCleaner(content string) string {
	return curlyQuotes.Replace(whitespaceRun.ReplaceAllString(content, " "))
}

// whitespaceHandler collapses whitespace runs and trims the result.
func whitespaceHandler(content string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(content, " "))
}

// caseTransformer applies the case direction named in the mission:
// upper, lower, or sentence case (the default).
func caseTransformer(mission, content string) string {
	m := strings.ToLower(mission)
	switch {
	case strings.Contains(m, "upper"):
		return strings.ToUpper(content)
	case strings.Contains(m, "lower"):
		return strings.ToLower(content)
	default:
		return sentenceCase(content)
	}
}

// sentenceCase lowercases the text and capitalizes the first letter of
// each sentence.
func sentenceCase(content string) string {
	runes := []rune(strings.ToLower(content))
	capitalizeNext := true
	for i, r := range runes {
		if capitalizeNext && isLetter(r) {
			runes[i] = toUpperRune(r)
			capitalizeNext = false
		}
		if r == '.' || r == '!' || r == '?' {
			capitalizeNext = true
		}
	}
	return string(runes)
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func toUpperRune(r rune) rune {
	if r >= 'a' && r <= 'z' {
		return r - 'a' + 'A'
	}
	return r
}

// counter reports word, character, and line counts of the content.
func counter(content string) string {
	words := len(strings.Fields(content))
	chars := len([]rune(content))
	lines := 0
	if content != "" {
		lines = strings.Count(content, "\n") + 1
	}
	return fmt.Sprintf("Words: %d, Characters: %d, Lines: %d", words, chars, lines)
}
