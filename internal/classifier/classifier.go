// Package classifier implements the context-level classifier (spec.md
// 4.5): a pure, deterministic, case-insensitive function from memory
// content and category to a ContextLevel.
package classifier

import (
	"math"
	"regexp"
	"strings"

	"github.com/scrypster/memento/pkg/types"
)

// fallbackThreshold is the minimum top score below which the classifier
// falls back to the category default (spec.md 4.5 step 4).
const fallbackThreshold = 0.3

var (
	preferenceCues = []*regexp.Regexp{
		regexp.MustCompile(`\bi (?:prefer|like|want|always|never|hate|love)\b`),
		regexp.MustCompile(`\bmy (?:favorite|style|preference|convention)\b`),
		regexp.MustCompile(`\bplease (?:always|never|use|avoid)\b`),
		regexp.MustCompile(`\b(?:tabs|spaces|indent)\b.*\bover\b`),
	}

	projectContextCues = []*regexp.Regexp{
		regexp.MustCompile(`\bthis (?:project|repo|repository|codebase)\b`),
		regexp.MustCompile(`\barchitecture\b`),
		regexp.MustCompile(`\b(?:module|package|service|component)\b`),
		regexp.MustCompile(`\bdepends on\b`),
		regexp.MustCompile(`\bconfig(?:uration)?\b`),
	}

	sessionStateCues = []*regexp.Regexp{
		regexp.MustCompile(`\bcurrently\b`),
		regexp.MustCompile(`\bin progress\b`),
		regexp.MustCompile(`\bnext step\b`),
		regexp.MustCompile(`\bjust (?:finished|started|fixed|broke)\b`),
		regexp.MustCompile(`\bwe are (?:working on|debugging|investigating)\b`),
	}

	// codeConstructCue nudges toward project-context: content that looks
	// like it quotes code (function/class declarations, braces, arrows).
	codeConstructCue = regexp.MustCompile(`\b(?:func|function|class|def|interface)\s+\w+|[{}();]|=>`)

	// imperativeOpenerCue nudges toward session-state: content phrased as
	// a standing instruction about what to do next.
	imperativeOpenerCue = regexp.MustCompile(`^\s*(?:run|fix|finish|continue|implement|deploy|check)\b`)
)

const (
	preferenceBoost = 0.5
	contextBoost    = 0.3
	workflowBoost   = 0.2
	eventBoost      = 0.3
	lexicalNudge    = 0.15
)

// ClassifyContextLevel implements spec.md 4.5's 5-step algorithm.
func ClassifyContextLevel(content string, category types.MemoryCategory) types.ContextLevel {
	lower := strings.ToLower(content)

	scores := map[types.ContextLevel]float64{
		types.ContextUserPreference: score(lower, preferenceCues),
		types.ContextProjectContext: score(lower, projectContextCues),
		types.ContextSessionState:   score(lower, sessionStateCues),
	}

	switch category {
	case types.CategoryPreference:
		scores[types.ContextUserPreference] += preferenceBoost
	case types.CategoryContext:
		scores[types.ContextProjectContext] += contextBoost
	case types.CategoryWorkflow:
		scores[types.ContextProjectContext] += workflowBoost
	case types.CategoryEvent:
		scores[types.ContextSessionState] += eventBoost
	}

	if codeConstructCue.MatchString(lower) {
		scores[types.ContextProjectContext] += lexicalNudge
	}
	if imperativeOpenerCue.MatchString(lower) {
		scores[types.ContextSessionState] += lexicalNudge
	}

	top, topScore := pickTop(scores)
	if topScore < fallbackThreshold {
		return categoryDefault(category)
	}
	return top
}

// score computes the capped ratio of matching cue patterns to the total
// number of patterns in the set (spec.md 4.5 step 1).
func score(lower string, cues []*regexp.Regexp) float64 {
	matches := 0
	for _, re := range cues {
		if re.MatchString(lower) {
			matches++
		}
	}
	return math.Min(1.0, float64(matches)/float64(len(cues)))
}

// pickTop returns the highest-scoring ContextLevel, breaking ties by
// the defined enum order (spec.md 4.5 step 5: USER_PREFERENCE,
// PROJECT_CONTEXT, SESSION_STATE).
func pickTop(scores map[types.ContextLevel]float64) (types.ContextLevel, float64) {
	best := types.ValidContextLevels[0]
	bestScore := scores[best]
	for _, level := range types.ValidContextLevels[1:] {
		if scores[level] > bestScore {
			best = level
			bestScore = scores[level]
		}
	}
	return best, bestScore
}

// categoryDefault implements spec.md 4.5 step 4's fallback table.
func categoryDefault(category types.MemoryCategory) types.ContextLevel {
	switch category {
	case types.CategoryPreference:
		return types.ContextUserPreference
	case types.CategoryEvent:
		return types.ContextSessionState
	default:
		return types.ContextProjectContext
	}
}
