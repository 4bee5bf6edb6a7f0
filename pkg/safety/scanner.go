// Package safety provides regex-based content classification with
// severities, block decisions, and redaction of sensitive data before
// persistence.
package safety

import (
	"regexp"

	"github.com/google/uuid"

	"github.com/hivemind-ai/hivemind/pkg/models"
)

// compiledPattern is one labeled safety pattern with its classification.
type compiledPattern struct {
	Category    string
	Severity    models.Severity
	Regex       *regexp.Regexp
	Explanation string
}

// patterns is the closed set of safety patterns. All matching is
// case-insensitive; overlapping matches each produce an independent flag.
var patterns = []compiledPattern{
	{
		Category:    "violence",
		Severity:    models.SeverityCritical,
		Regex:       regexp.MustCompile(`(?i)\b(?:make|build|construct|assemble)\b.{0,40}\b(?:bomb|explosive|weapon|firearm)\b`),
		Explanation: "Instructions for creating weapons or explosives.",
	},
	{
		Category:    "violence",
		Severity:    models.SeverityHigh,
		Regex:       regexp.MustCompile(`(?i)\b(?:kill|murder|assassinate|maim)\b.{0,30}\b(?:person|people|someone|him|her|them)\b`),
		Explanation: "Content describing violence against people.",
	},
	{
		Category:    "illegal",
		Severity:    models.SeverityHigh,
		Regex:       regexp.MustCompile(`(?i)\bhow\s+to\b.{0,40}\b(?:synthesize|manufacture|cook)\b.{0,30}\b(?:meth|methamphetamine|fentanyl|heroin)\b`),
		Explanation: "Instructions for synthesizing controlled substances.",
	},
	{
		Category:    "illegal",
		Severity:    models.SeverityMedium,
		Regex:       regexp.MustCompile(`(?i)\b(?:launder(?:ing)?\s+money|evade\s+taxes|counterfeit\s+currency)\b`),
		Explanation: "Content facilitating financial crime.",
	},
	{
		Category:    "pii",
		Severity:    models.SeverityMedium,
		Regex:       regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
		Explanation: "Content containing a social security number.",
	},
	{
		Category:    "pii",
		Severity:    models.SeverityMedium,
		Regex:       regexp.MustCompile(`\b(?:\d[ -]*?){16}\b`),
		Explanation: "Content containing a payment card number.",
	},
	{
		Category:    "manipulation",
		Severity:    models.SeverityMedium,
		Regex:       regexp.MustCompile(`(?i)\b(?:ignore|disregard|forget)\b.{0,25}\b(?:previous|prior|above|system)\b.{0,15}\binstructions?\b`),
		Explanation: "Prompt-injection attempt detected.",
	},
	{
		Category:    "self-harm",
		Severity:    models.SeverityCritical,
		Regex:       regexp.MustCompile(`(?i)\b(?:how\s+to|best\s+way\s+to|methods?\s+(?:of|for))\b.{0,25}\b(?:suicide|kill\s+myself|self[- ]harm)\b`),
		Explanation: "Content seeking self-harm methods.",
	},
	{
		Category:    "csam",
		Severity:    models.SeverityCritical,
		Regex:       regexp.MustCompile(`(?i)\b(?:sexual|explicit|nude)\b.{0,30}\b(?:child|children|minor|underage)\b`),
		Explanation: "Content sexualizing minors.",
	},
}

// Scanner classifies content against the built-in pattern set. Stateless;
// safe for concurrent use.
type Scanner struct{}

// NewScanner creates a Scanner.
func NewScanner() *Scanner {
	return &Scanner{}
}

// Scan evaluates the content against every pattern and returns one flag per
// match, each with a fresh UUID and the matched substring as its content.
func (s *Scanner) Scan(content string, source models.FlagSource) []models.RedTeamFlag {
	var flags []models.RedTeamFlag
	for _, p := range patterns {
		for _, match := range p.Regex.FindAllString(content, -1) {
			flags = append(flags, models.RedTeamFlag{
				FlagID:      uuid.New().String(),
				Severity:    p.Severity,
				Categories:  []string{p.Category},
				Explanation: p.Explanation,
				Source:      source,
				Content:     match,
			})
		}
	}
	return flags
}

// HighestSeverity returns the most severe tier present in flags, or the
// empty severity when flags is empty.
func HighestSeverity(flags []models.RedTeamFlag) models.Severity {
	var highest models.Severity
	for _, f := range flags {
		if f.Severity.MoreSevere(highest) {
			highest = f.Severity
		}
	}
	return highest
}

// ShouldBlock reports whether any flag is HIGH or CRITICAL.
func ShouldBlock(flags []models.RedTeamFlag) bool {
	for _, f := range flags {
		if f.Severity == models.SeverityHigh || f.Severity == models.SeverityCritical {
			return true
		}
	}
	return false
}
