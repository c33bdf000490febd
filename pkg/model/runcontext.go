package model

import (
	"fmt"
	"strings"
)

// RunContext is an append-only per-run accumulator of codebase knowledge
// gathered across error analyses in a single run. Inspired by the
// original implementation's "Ralph's progress.txt" pattern: append-only,
// read-first. Tracks files examined and patterns discovered so later
// analyses benefit from earlier discoveries.
type RunContext struct {
	FilesExamined      map[string]string // path → summary, ≤80 chars
	PatternsDiscovered []string
	ErrorsAnalyzed     []string // "ErrorClass in transaction — cause"

	// filesOrder preserves insertion order for FilesExamined, since map
	// iteration order is not stable and ToPromptSection needs "most
	// recently examined" semantics.
	filesOrder []string
}

// NewRunContext returns an empty RunContext.
func NewRunContext() *RunContext {
	return &RunContext{FilesExamined: make(map[string]string)}
}

// ToPromptSection formats accumulated context as a prompt section,
// showing the last 5 errors analyzed, last 5 patterns discovered, and
// last 10 files examined, capped at maxChars.
func (rc *RunContext) ToPromptSection(maxChars int) string {
	if len(rc.FilesExamined) == 0 && len(rc.PatternsDiscovered) == 0 && len(rc.ErrorsAnalyzed) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("## Codebase Context from Previous Analyses")

	if len(rc.ErrorsAnalyzed) > 0 {
		b.WriteString("\n\n### Errors Already Analyzed")
		for _, entry := range lastN(rc.ErrorsAnalyzed, 5) {
			b.WriteString("\n- " + entry)
		}
	}

	if len(rc.PatternsDiscovered) > 0 {
		b.WriteString("\n\n### Codebase Patterns Discovered")
		for _, p := range lastN(rc.PatternsDiscovered, 5) {
			b.WriteString("\n- " + p)
		}
	}

	if len(rc.FilesExamined) > 0 {
		b.WriteString("\n\n### Key Files Examined")
		for _, path := range lastNKeysInsertionOrder(rc.filesOrder, 10) {
			b.WriteString(fmt.Sprintf("\n- `%s`: %s", path, rc.FilesExamined[path]))
		}
	}

	result := b.String()
	if len(result) > maxChars {
		cut := maxChars - 20
		if cut < 0 {
			cut = 0
		}
		result = result[:cut] + "\n\n[...truncated]"
	}
	return result
}

func lastN(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[len(items)-n:]
}

func lastNKeysInsertionOrder(keys []string, n int) []string {
	return lastN(keys, n)
}

// RecordAnalysis appends a completed analysis summary for future context.
func (rc *RunContext) RecordAnalysis(errorClass, transaction, summary string) {
	entry := fmt.Sprintf("%s in %s", errorClass, transaction)
	if summary != "" {
		entry += " — " + truncate(summary, 100)
	}
	rc.ErrorsAnalyzed = append(rc.ErrorsAnalyzed, entry)
}

// RecordFile records a file that was examined, keeping insertion order
// so ToPromptSection can show the most recently examined files.
func (rc *RunContext) RecordFile(path, summary string) {
	if _, exists := rc.FilesExamined[path]; !exists {
		rc.filesOrder = append(rc.filesOrder, path)
	}
	rc.FilesExamined[path] = truncate(summary, 80)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
