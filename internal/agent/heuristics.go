package agent

import (
	"regexp"
	"strings"
)

// LanguageUnknown is reported when no language rule matches.
const LanguageUnknown = "unknown"

// LanguageDetector guesses the programming language of a code blob.
type LanguageDetector interface {
	DetectLanguage(code string) string
}

// SkillDetector derives skill labels from a code blob.
type SkillDetector interface {
	DetectSkills(code string) []string
}

// DefaultLanguageMultipliers returns a fresh copy of the reward multiplier table.
func DefaultLanguageMultipliers() map[string]float64 {
	return map[string]float64{
		"rust":          1.3,
		"solidity":      1.4,
		"go":            1.2,
		"javascript":    1.0,
		"python":        1.1,
		LanguageUnknown: 0.8,
	}
}

type languageRule struct {
	language string
	pattern  *regexp.Regexp
}

// KeywordLanguageDetector sniffs language keywords. Rules are checked in order
// and the first match wins, so more distinctive signatures come first.
type KeywordLanguageDetector struct {
	rules []languageRule
}

// NewKeywordLanguageDetector returns the default keyword rule set.
func NewKeywordLanguageDetector() *KeywordLanguageDetector {
	return &KeywordLanguageDetector{
		rules: []languageRule{
			{"solidity", regexp.MustCompile(`\bpragma\s+solidity\b|\bcontract\s+\w+\s*(is\s+[\w\s,]+)?\{`)},
			{"go", regexp.MustCompile(`(?m)^\s*package\s+\w+\s*$|\bfunc\s+(\([^)]*\)\s*)?\w+\s*\(`)},
			{"rust", regexp.MustCompile(`\bfn\s+\w+|\blet\s+mut\b|\bpub\s+(fn|struct|enum|mod)\b|\bimpl\b`)},
			{"python", regexp.MustCompile(`(?m)^\s*def\s+\w+\s*\(|^\s*from\s+[\w.]+\s+import\b|^\s*import\s+[\w.]+\s*$`)},
			{"javascript", regexp.MustCompile(`\b(function|const|let|var)\b|=>`)},
		},
	}
}

// DetectLanguage returns the first matching language or LanguageUnknown.
func (d *KeywordLanguageDetector) DetectLanguage(code string) string {
	for _, rule := range d.rules {
		if rule.pattern.MatchString(code) {
			return rule.language
		}
	}
	return LanguageUnknown
}

var languageAliases = map[string]string{
	"js":     "javascript",
	"node":   "javascript",
	"py":     "python",
	"golang": "go",
	"rs":     "rust",
	"sol":    "solidity",
}

// normalizeLanguage lowercases a language hint and resolves common aliases.
func normalizeLanguage(hint string) string {
	lang := strings.ToLower(strings.TrimSpace(hint))
	if alias, ok := languageAliases[lang]; ok {
		return alias
	}
	return lang
}

type skillRule struct {
	skill   string
	pattern *regexp.Regexp
}

// KeywordSkillDetector tags skills by case-insensitive keyword checks.
// Tags are reported in rule order.
type KeywordSkillDetector struct {
	rules []skillRule
}

// NewKeywordSkillDetector returns the default skill rule set.
func NewKeywordSkillDetector() *KeywordSkillDetector {
	return &KeywordSkillDetector{
		rules: []skillRule{
			{"react", regexp.MustCompile(`(?i)react|jsx`)},
			{"async_programming", regexp.MustCompile(`(?i)async|await`)},
			{"testing", regexp.MustCompile(`(?i)test|spec`)},
			{"blockchain", regexp.MustCompile(`(?i)contract|solidity`)},
			// "ml" as a bare substring would match html and xml
			{"machine_learning", regexp.MustCompile(`(?i)\bml\b|tensorflow`)},
		},
	}
}

// DetectSkills returns the matching skill tags, never nil.
func (d *KeywordSkillDetector) DetectSkills(code string) []string {
	skills := []string{}
	for _, rule := range d.rules {
		if rule.pattern.MatchString(code) {
			skills = append(skills, rule.skill)
		}
	}
	return skills
}
