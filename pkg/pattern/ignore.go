package pattern

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nightwatch-dev/nightwatch/pkg/model"
)

// noiseIndicators maps a lowercase substring match to the reason it is
// treated as likely transient noise rather than a real bug.
var noiseIndicators = []struct {
	indicator string
	reason    string
}{
	{"timeout", "Timeout errors are typically transient network issues"},
	{"rate limit", "Rate limiting errors are expected under load"},
	{"connection reset", "Connection resets are transient infrastructure issues"},
	{"ssl", "SSL errors are often transient certificate/handshake issues"},
	{"econnrefused", "Connection refused errors are transient"},
	{"deadlock", "Deadlock errors may be transient under high concurrency"},
}

// transientIndicators is the broader set of substrings that mark an
// error as known transient/noise, used by detectTransientErrors.
var transientIndicators = []string{
	"timeout", "timed out", "rate limit", "rate_limit",
	"connection reset", "connection refused", "econnrefused", "econnreset",
	"ssl", "deadlock", "lock wait", "too many connections",
	"service unavailable", "502", "503", "504",
}

// SuggestIgnores proposes errors for an ignore configuration: low
// confidence analyses with no fix across minOccurrences+ occurrences, and
// errors whose class or message matches a known noise indicator.
// Deduplicated by (match, pattern).
func SuggestIgnores(analyses []model.ErrorAnalysisResult, minOccurrences int) []model.IgnoreSuggestion {
	var suggestions []model.IgnoreSuggestion

	for _, result := range analyses {
		err := result.Error
		analysis := result.Analysis

		if analysis.Confidence == model.ConfidenceLow && !analysis.HasFix && err.Occurrences >= minOccurrences {
			suggestions = append(suggestions, model.IgnoreSuggestion{
				Pattern: err.ErrorClass,
				Match:   model.MatchExact,
				Reason:  fmt.Sprintf("Low confidence analysis with no fix (%d occurrences)", err.Occurrences),
				Evidence: fmt.Sprintf("Analyzed in %s — root cause: %s", err.Transaction, truncateString(analysis.RootCause, 100)),
			})
		}

		errorText := strings.ToLower(err.ErrorClass + " " + err.Message)
		for _, ni := range noiseIndicators {
			if strings.Contains(errorText, ni.indicator) {
				suggestions = append(suggestions, model.IgnoreSuggestion{
					Pattern:  ni.indicator,
					Match:    model.MatchContains,
					Reason:   ni.reason,
					Evidence: fmt.Sprintf("Matched in %s: %s", err.ErrorClass, truncateString(err.Message, 100)),
				})
				break // one suggestion per error
			}
		}
	}

	return dedupeSuggestions(suggestions)
}

func dedupeSuggestions(suggestions []model.IgnoreSuggestion) []model.IgnoreSuggestion {
	seen := map[string]bool{}
	var unique []model.IgnoreSuggestion
	for _, s := range suggestions {
		key := s.Key()
		if !seen[key] {
			seen[key] = true
			unique = append(unique, s)
		}
	}
	return unique
}

// SuggestIgnoreUpdates extends SuggestIgnores by filtering out patterns
// already present in the ignore configuration at ignorePath.
func SuggestIgnoreUpdates(analyses []model.ErrorAnalysisResult, ignorePath string, minOccurrences int) []model.IgnoreSuggestion {
	raw := SuggestIgnores(analyses, minOccurrences)

	current := loadIgnorePatterns(ignorePath)
	if len(current) == 0 {
		return raw
	}

	var fresh []model.IgnoreSuggestion
	for _, s := range raw {
		patternLower := strings.ToLower(s.Pattern)
		covered := false
		for existing := range current {
			if strings.Contains(existing, patternLower) || strings.Contains(patternLower, existing) {
				covered = true
				break
			}
		}
		if !covered {
			fresh = append(fresh, s)
		}
	}
	return fresh
}

type ignoreEntry struct {
	Pattern string `yaml:"pattern"`
}

type ignoreFile struct {
	Ignore []ignoreEntry `yaml:"ignore"`
}

// loadIgnorePatterns loads the current ignore configuration's patterns
// as a set of lowercase strings. A missing or unparseable file yields an
// empty set.
func loadIgnorePatterns(path string) map[string]bool {
	patterns := map[string]bool{}
	if path == "" {
		path = "ignore.yml"
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return patterns
	}

	var data ignoreFile
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return patterns
	}

	for _, entry := range data.Ignore {
		if entry.Pattern != "" {
			patterns[strings.ToLower(entry.Pattern)] = true
		}
	}
	return patterns
}

// findRecurringInKnowledge flags error classes from the current run
// that also appear in the knowledge base — a strong signal of a
// systemic issue left unfixed across runs.
func findRecurringInKnowledge(analyses []model.ErrorAnalysisResult, kb KnowledgeLookup) []model.DetectedPattern {
	currentClasses := map[string]bool{}
	var order []string
	for _, r := range analyses {
		ec := r.Error.ErrorClass
		if !currentClasses[ec] {
			currentClasses[ec] = true
			order = append(order, ec)
		}
	}

	var patterns []model.DetectedPattern
	for _, errorClass := range order {
		kbCount := kb.SolutionCountByErrorClass(errorClass)
		if kbCount < 1 {
			continue
		}
		total := kbCount + 1
		patterns = append(patterns, model.DetectedPattern{
			Title:        "Recurring: " + errorClass,
			Description:  fmt.Sprintf("`%s` has appeared in %d runs (%d prior + current run).", errorClass, total, kbCount),
			ErrorClasses: []string{errorClass},
			Occurrences:  total,
			Suggestion:   "This error recurs across runs. Consider prioritizing a permanent fix.",
			PatternType:  model.PatternRecurringError,
		})
	}
	return patterns
}

// detectTransientErrors flags errors matching transientIndicators as
// likely noise worth ignoring.
func detectTransientErrors(analyses []model.ErrorAnalysisResult) []model.DetectedPattern {
	var transientClasses []string
	for _, result := range analyses {
		if isTransientError(result) {
			transientClasses = append(transientClasses, result.Error.ErrorClass)
		}
	}
	if len(transientClasses) == 0 {
		return nil
	}

	unique := uniqueSorted(transientClasses)
	return []model.DetectedPattern{{
		Title:        fmt.Sprintf("Transient noise: %d error types", len(unique)),
		Description:  fmt.Sprintf("%d errors match transient/noise patterns: %s", len(transientClasses), strings.Join(unique, ", ")),
		ErrorClasses: unique,
		Occurrences:  len(transientClasses),
		Suggestion:   "Consider adding these to ignore.yml to reduce noise in future runs.",
		PatternType:  model.PatternTransientNoise,
	}}
}

func isTransientError(result model.ErrorAnalysisResult) bool {
	errorText := strings.ToLower(result.Error.ErrorClass + " " + result.Error.Message)
	for _, indicator := range transientIndicators {
		if strings.Contains(errorText, indicator) {
			return true
		}
	}
	return false
}

func truncateString(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
