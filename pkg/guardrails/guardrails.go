// Package guardrails renders a run's high-confidence findings as a
// guardrails.md file in the Ralph "Sign" format: one dated entry per
// confident fix plus one per detected cross-error pattern, meant to be
// appended to a coding agent's standing instructions. Grounded on
// guardrails.py's generate_guardrails/_generate_sign/_slugify/
// _extract_module.
package guardrails

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/nightwatch-dev/nightwatch/pkg/model"
)

// qualityThreshold is the minimum QualityScore a confident analysis
// must reach to produce a Sign, matching the knowledge-compounding gate
// in pkg/pipeline.
const qualityThreshold = 0.7

var nonSlugChars = regexp.MustCompile(`[^a-z0-9\s-]+`)
var slugSeparators = regexp.MustCompile(`[\s_]+`)

func slugify(text string) string {
	s := strings.ToLower(text)
	s = nonSlugChars.ReplaceAllString(s, "")
	s = slugSeparators.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > 50 {
		s = s[:50]
	}
	return strings.Trim(s, "-")
}

// extractModule pulls a short module/method label out of a transaction
// name: "Module#method" keeps "Module", "path/to/module" keeps the
// last segment, anything else passes through unchanged.
func extractModule(transaction string) string {
	if idx := strings.Index(transaction, "#"); idx >= 0 {
		return transaction[:idx]
	}
	if idx := strings.LastIndex(transaction, "/"); idx >= 0 {
		return transaction[idx+1:]
	}
	return transaction
}

func generateSign(n int, errorClass, transaction, rootCause string, date string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "### Sign %d: %s in %s\n\n", n, errorClass, extractModule(transaction))
	fmt.Fprintf(&b, "**Trigger**: %s occurring in `%s`\n\n", errorClass, transaction)
	fmt.Fprintf(&b, "**Instruction**: %s\n\n", rootCause)
	fmt.Fprintf(&b, "**Added after**: NightWatch run on %s\n\n", date)
	fmt.Fprintf(&b, "**Example**: `%s`\n\n", slugify(errorClass+" "+transaction))
	return b.String()
}

func generatePatternSign(n int, p model.DetectedPattern) string {
	var b strings.Builder
	fmt.Fprintf(&b, "### Sign %d: Recurring %s\n\n", n, strings.Join(p.ErrorClasses, ", "))
	fmt.Fprintf(&b, "**Trigger**: occurred %d times across %s\n\n", p.Occurrences, strings.Join(p.Modules, ", "))
	fmt.Fprintf(&b, "**Instruction**: %s\n\n", p.Suggestion)
	return b.String()
}

// Generate renders report as guardrails.md content. When outputPath is
// non-empty the content is also written there, creating parent
// directories as needed.
func Generate(report model.RunReport, outputPath string) (string, error) {
	var b strings.Builder
	b.WriteString("# NightWatch Guardrails\n\n")

	n := 0
	for _, a := range report.Analyses {
		if a.QualityScore < qualityThreshold {
			continue
		}
		n++
		date := a.Error.LastSeen
		if date == "" {
			date = report.Timestamp.Format("2006-01-02")
		}
		b.WriteString(generateSign(n, a.Error.ErrorClass, a.Error.Transaction, a.Analysis.RootCause, date))
	}
	for _, p := range report.Patterns {
		n++
		b.WriteString(generatePatternSign(n, p))
	}

	if n == 0 {
		b.WriteString("No high-confidence signs this run.\n")
	}

	content := b.String()
	if outputPath != "" {
		if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
			return content, fmt.Errorf("guardrails: creating output dir: %w", err)
		}
		if err := os.WriteFile(outputPath, []byte(content), 0o644); err != nil {
			return content, fmt.Errorf("guardrails: writing %s: %w", outputPath, err)
		}
	}
	return content, nil
}
