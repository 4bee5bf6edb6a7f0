// Package tiering decides whether a request is a trivial local task or a
// mission that warrants invoking the swarm.
package tiering

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Tier is the routing decision for a request.
type Tier string

// Tiers.
const (
	TierTask    Tier = "task"
	TierMission Tier = "mission"
)

// Classification is the result of classifying a mission string.
type Classification struct {
	Tier         Tier    `json:"tier"`
	Confidence   float64 `json:"confidence"`
	Reason       string  `json:"reason"`
	LocalHandler string  `json:"localHandler,omitempty"`
}

// simpleTaskPattern maps a request shape to the local handler that serves it.
type simpleTaskPattern struct {
	regex   *regexp.Regexp
	handler string
}

var simpleTaskPatterns = []simpleTaskPattern{
	{regexp.MustCompile(`(?i)\b(?:clean|fix)\b.{0,20}\b(?:text|spelling|typos?|grammar)\b`), "textCleaner"},
	{regexp.MustCompile(`(?i)\bclean\b`), "textCleaner"},
	{regexp.MustCompile(`(?i)\b(?:trim|collapse|strip)\b.{0,20}\b(?:whitespace|spaces?)\b`), "whitespaceHandler"},
	{regexp.MustCompile(`(?i)\bwhitespace\b`), "whitespaceHandler"},
	{regexp.MustCompile(`(?i)\b(?:upper|lower|sentence)\s*case\b|\bcapitalize\b`), "caseTransformer"},
	{regexp.MustCompile(`(?i)\bcount\b.{0,20}\b(?:words?|chars?|characters?|lines?)\b`), "counter"},
	{regexp.MustCompile(`(?i)\bcount\b`), "counter"},
	{regexp.MustCompile(`(?i)\bformat\b`), "formatter"},
	{regexp.MustCompile(`(?i)\bconvert\b`), "converter"},
	{regexp.MustCompile(`(?i)\bextract\b`), "extractor"},
	{regexp.MustCompile(`(?i)\bsort\b`), "sorter"},
}

// missionIndicators is the fixed vocabulary whose occurrence count drives
// the mission-tier rules.
var missionIndicators = []string{
	"analyze", "synthesize", "design", "architect", "evaluate", "compare",
	"research", "investigate", "strategy", "comprehensive", "optimize",
	"assess", "recommend", "plan",
}

// Classify decides the tier for a mission. Pure: equal inputs yield equal
// outputs. Rules are evaluated in order; the first match wins.
func Classify(mission string) Classification {
	words := strings.Fields(mission)
	wordCount := len(words)
	charCount := utf8.RuneCountInString(mission)

	// 1. Simple task shapes route to a local handler.
	for _, p := range simpleTaskPatterns {
		if p.regex.MatchString(mission) {
			return Classification{
				Tier:         TierTask,
				Confidence:   0.95,
				Reason:       fmt.Sprintf("matched simple task pattern (%s)", p.handler),
				LocalHandler: p.handler,
			}
		}
	}

	// 2. Very short input is a task.
	if wordCount < 5 && charCount < 40 {
		return Classification{
			Tier:       TierTask,
			Confidence: 0.7,
			Reason:     "short input with no mission indicators",
		}
	}

	// 3. Mission indicator vocabulary.
	lower := strings.ToLower(mission)
	indicators := 0
	for _, ind := range missionIndicators {
		indicators += strings.Count(lower, ind)
	}
	if indicators >= 2 {
		return Classification{
			Tier:       TierMission,
			Confidence: 0.9,
			Reason:     fmt.Sprintf("%d mission indicators present", indicators),
		}
	}
	if indicators == 1 && wordCount >= 15 {
		return Classification{
			Tier:       TierMission,
			Confidence: 0.8,
			Reason:     "mission indicator in a substantial request",
		}
	}

	// 4. Long input defaults to mission.
	if wordCount >= 15 || charCount >= 80 {
		return Classification{
			Tier:       TierMission,
			Confidence: 0.75,
			Reason:     "long request without explicit indicators",
		}
	}

	// 5. Fallback.
	return Classification{
		Tier:       TierTask,
		Confidence: 0.6,
		Reason:     "no mission signals detected",
	}
}
