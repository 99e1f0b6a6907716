package agent

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode"

	"github.com/dyluth/appraise/pkg/ledger"
)

// Sub-metric weights of the quality score. They sum to 1.
const (
	weightComplexity    = 0.25
	weightReadability   = 0.25
	weightTestCoverage  = 0.20
	weightDocumentation = 0.15
	weightPerformance   = 0.15
)

var (
	decisionKeywordPattern = regexp.MustCompile(`\b(if|while|for|switch|catch|case)\b`)
	identifierPattern      = regexp.MustCompile(`\b[a-zA-Z_][a-zA-Z0-9_]*\b`)
	singleLowerPattern     = regexp.MustCompile(`^[a-z]$`)
	operatorSpacingPattern = regexp.MustCompile(`\s[+\-*/=]\s`)

	testKeywordPattern  = regexp.MustCompile(`(?i)\b(test|spec|describe|it|should|expect|assert)\b`)
	testCallPattern     = regexp.MustCompile(`\b(test|it|should)\s*\(`)
	functionDeclPattern = regexp.MustCompile(`\b(function|func|def|fn)\s+\w+`)

	docBlockPattern      = regexp.MustCompile(`(?s)/\*\*.*?\*/`)
	inlineCommentPattern = regexp.MustCompile(`//.*`)

	optimizationPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bcache\b`),
		regexp.MustCompile(`(?i)\bmemo`),
		regexp.MustCompile(`(?i)\boptimiz`),
		regexp.MustCompile(`\basync\b`),
		regexp.MustCompile(`\bPromise\.all\b`),
	}
	antipatternPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?s)\bfor\b.*\bfor\b.*\bfor\b`),
		regexp.MustCompile(`(?s)\bwhile\b.*\bwhile\b`),
		regexp.MustCompile(`\beval\b`),
	}

	weakIdentifiers = map[string]bool{"tmp": true, "temp": true, "var": true, "val": true}
)

// QualityMetrics holds the CodeQualityAgent sub-metrics, each in [0,100].
type QualityMetrics struct {
	Complexity    float64
	Readability   float64
	TestCoverage  float64
	Documentation float64
	Performance   float64
	LinesOfCode   int
	Language      string
}

// Score returns the weighted quality score in [0,1].
func (m QualityMetrics) Score() float64 {
	weighted := m.Complexity*weightComplexity +
		m.Readability*weightReadability +
		m.TestCoverage*weightTestCoverage +
		m.Documentation*weightDocumentation +
		m.Performance*weightPerformance

	return clamp(0, 1, weighted/100)
}

// CodeQualityAgent scores the code itself with fixed heuristics. It is stateless:
// evaluating the same contribution twice yields identical decisions.
type CodeQualityAgent struct {
	multipliers map[string]float64
	languages   LanguageDetector
	skills      SkillDetector
}

// CodeQualityOption customises a CodeQualityAgent.
type CodeQualityOption func(*CodeQualityAgent)

// WithLanguageMultipliers overrides entries of the default multiplier table.
func WithLanguageMultipliers(overrides map[string]float64) CodeQualityOption {
	return func(a *CodeQualityAgent) {
		for lang, m := range overrides {
			a.multipliers[normalizeLanguage(lang)] = m
		}
	}
}

// WithLanguageDetector replaces the keyword language detector.
func WithLanguageDetector(d LanguageDetector) CodeQualityOption {
	return func(a *CodeQualityAgent) {
		if d != nil {
			a.languages = d
		}
	}
}

// WithSkillDetector replaces the keyword skill detector.
func WithSkillDetector(d SkillDetector) CodeQualityOption {
	return func(a *CodeQualityAgent) {
		if d != nil {
			a.skills = d
		}
	}
}

// NewCodeQualityAgent creates a CodeQualityAgent with the default rule sets.
func NewCodeQualityAgent(opts ...CodeQualityOption) *CodeQualityAgent {
	a := &CodeQualityAgent{
		multipliers: DefaultLanguageMultipliers(),
		languages:   NewKeywordLanguageDetector(),
		skills:      NewKeywordSkillDetector(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Type implements Agent.
func (a *CodeQualityAgent) Type() ledger.AgentType {
	return ledger.AgentTypeCodeQuality
}

// Initialize implements Agent. There is nothing to set up.
func (a *CodeQualityAgent) Initialize(ctx context.Context) error {
	return nil
}

// HealthCheck implements HealthChecker.
func (a *CodeQualityAgent) HealthCheck(ctx context.Context) error {
	return nil
}

// Evaluate implements Agent.
func (a *CodeQualityAgent) Evaluate(ctx context.Context, c *ledger.Contribution) (*ledger.Decision, error) {
	if c == nil {
		return nil, fmt.Errorf("contribution is nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	metrics := a.Metrics(c)
	quality := metrics.Score()
	multiplier := a.languageMultiplier(metrics.Language)
	reward := baseReward(metrics.LinesOfCode) * quality * multiplier

	return &ledger.Decision{
		AgentType:         ledger.AgentTypeCodeQuality,
		Developer:         c.Developer,
		RecommendedReward: reward,
		Confidence:        quality,
		Reasoning:         qualityReasoning(metrics),
		SkillTags:         a.skills.DetectSkills(c.Code),
		Suggestions:       qualitySuggestions(metrics),
		Language:          metrics.Language,
		Metrics: map[string]float64{
			"complexity":          metrics.Complexity,
			"readability":         metrics.Readability,
			"test_coverage":       metrics.TestCoverage,
			"documentation":       metrics.Documentation,
			"performance":         metrics.Performance,
			"lines_of_code":       float64(metrics.LinesOfCode),
			"quality_score":       quality,
			"language_multiplier": multiplier,
		},
	}, nil
}

// Metrics computes every sub-metric for a contribution.
func (a *CodeQualityAgent) Metrics(c *ledger.Contribution) QualityMetrics {
	return QualityMetrics{
		Complexity:    ComplexityScore(c.Code),
		Readability:   ReadabilityScore(c.Code),
		TestCoverage:  TestCoverageScore(c.Code),
		Documentation: DocumentationScore(c.Code),
		Performance:   PerformanceScore(c.Code),
		LinesOfCode:   len(strings.Split(c.Code, "\n")),
		Language:      a.detectLanguage(c),
	}
}

// detectLanguage sniffs the code; the caller's hint is only used when sniffing
// fails and the hint names a language with a known multiplier.
func (a *CodeQualityAgent) detectLanguage(c *ledger.Contribution) string {
	detected := a.languages.DetectLanguage(c.Code)
	if detected != LanguageUnknown {
		return detected
	}

	hint := normalizeLanguage(c.Language)
	if _, ok := a.multipliers[hint]; ok && hint != "" {
		return hint
	}
	return LanguageUnknown
}

func (a *CodeQualityAgent) languageMultiplier(language string) float64 {
	if m, ok := a.multipliers[language]; ok {
		return m
	}
	return a.multipliers[LanguageUnknown]
}

// baseReward pays 0.1 token per line, capped at 10.
func baseReward(linesOfCode int) float64 {
	return math.Min(10, float64(linesOfCode)*0.1)
}

// DecisionPoints counts control-flow keywords plus one, cyclomatic style.
func DecisionPoints(code string) int {
	return len(decisionKeywordPattern.FindAllStringIndex(code, -1)) + 1
}

// MaxNestingDepth is the highest running depth of open braces and parentheses.
func MaxNestingDepth(code string) int {
	maxDepth, depth := 0, 0
	for _, ch := range code {
		switch ch {
		case '{', '(':
			depth++
		case '}', ')':
			depth--
		}
		if depth > maxDepth {
			maxDepth = depth
		}
	}
	return maxDepth
}

// ComplexityScore penalises decision points and nesting depth.
func ComplexityScore(code string) float64 {
	penalty := float64(DecisionPoints(code)*2 + MaxNestingDepth(code)*5)
	return clamp(0, 100, 100-penalty)
}

// ReadabilityScore is the mean of naming, comment ratio and formatting.
func ReadabilityScore(code string) float64 {
	return (namingScore(code) + commentRatioScore(code) + formattingScore(code)) / 3
}

// namingScore is the share of meaningful identifiers, 50 when there are none.
func namingScore(code string) float64 {
	identifiers := identifierPattern.FindAllString(code, -1)
	if len(identifiers) == 0 {
		return 50
	}

	meaningful := 0
	for _, id := range identifiers {
		if len(id) > 2 && !singleLowerPattern.MatchString(id) && !weakIdentifiers[strings.ToLower(id)] {
			meaningful++
		}
	}
	return float64(meaningful) / float64(len(identifiers)) * 100
}

func commentRatioScore(code string) float64 {
	commentLines, codeLines := 0, 0
	for _, line := range strings.Split(code, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "/*") ||
			strings.HasPrefix(trimmed, "*") || strings.HasPrefix(trimmed, "#") {
			commentLines++
		}
		if trimmed != "" && !strings.HasPrefix(trimmed, "//") {
			codeLines++
		}
	}

	if codeLines == 0 {
		return 0
	}
	return math.Min(100, float64(commentLines)/float64(codeLines)*500)
}

func formattingScore(code string) float64 {
	return (indentationScore(code) + spacingScore(code)) / 2
}

// indentationScore is 100 when every non-blank line is indented by an even
// number of whitespace characters, 60 otherwise.
func indentationScore(code string) float64 {
	for _, line := range strings.Split(code, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		indent := 0
		for _, r := range line {
			if !unicode.IsSpace(r) {
				break
			}
			indent++
		}
		if indent%2 != 0 && indent%4 != 0 {
			return 60
		}
	}
	return 100
}

func spacingScore(code string) float64 {
	if operatorSpacingPattern.MatchString(code) {
		return 100
	}
	return 70
}

// TestCoverageScore estimates test coverage from test keywords and test calls.
func TestCoverageScore(code string) float64 {
	hasTestKeywords := testKeywordPattern.MatchString(code)
	testCalls := len(testCallPattern.FindAllStringIndex(code, -1))

	if hasTestKeywords && testCalls > 0 {
		functions := len(functionDeclPattern.FindAllStringIndex(code, -1))
		return math.Min(100, float64(testCalls)/math.Max(1, float64(functions))*100)
	}
	if hasTestKeywords {
		return 50
	}
	return 20
}

// DocumentationScore rewards doc blocks and inline comments.
func DocumentationScore(code string) float64 {
	score := 0.0
	if docBlockPattern.MatchString(code) {
		score += 50
	}
	if inlineCommentPattern.MatchString(code) {
		score += 30
	}
	return math.Min(100, score)
}

// PerformanceScore starts at 70, gains 20 for optimisation hints and loses 30
// for known antipatterns.
func PerformanceScore(code string) float64 {
	score := 70.0
	if matchesAny(optimizationPatterns, code) {
		score += 20
	}
	if matchesAny(antipatternPatterns, code) {
		score -= 30
	}
	return clamp(0, 100, score)
}

func matchesAny(patterns []*regexp.Regexp, s string) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

func qualityReasoning(m QualityMetrics) string {
	var reasons []string
	if m.Complexity > 80 {
		reasons = append(reasons, "excellent code complexity management")
	}
	if m.Readability > 80 {
		reasons = append(reasons, "highly readable and well-structured code")
	}
	if m.TestCoverage > 70 {
		reasons = append(reasons, "good test coverage")
	}
	if m.Documentation > 60 {
		reasons = append(reasons, "well-documented code")
	}
	if m.Performance > 80 {
		reasons = append(reasons, "performance-optimized implementation")
	}

	if len(reasons) == 0 {
		return "standard code contribution"
	}
	return strings.Join(reasons, ", ")
}

func qualitySuggestions(m QualityMetrics) []string {
	var suggestions []string
	if m.Complexity < 60 {
		suggestions = append(suggestions, "Consider reducing complexity with smaller functions")
	}
	if m.Readability < 60 {
		suggestions = append(suggestions, "Improve variable naming and add comments")
	}
	if m.TestCoverage < 50 {
		suggestions = append(suggestions, "Add unit tests for better reliability")
	}
	if m.Documentation < 40 {
		suggestions = append(suggestions, "Add doc comments or inline documentation")
	}
	if m.Performance < 60 {
		suggestions = append(suggestions, "Review for potential performance optimizations")
	}
	return suggestions
}
