// Package quality implements the pre-PR quality gate: five ordered
// validation layers over an Analysis's file changes, plus one-shot
// LLM correction on failure. Grounded on spec §4.5 and structured
// after the platform's layered validation pipeline
// (pkg/agent/controller's stage sequencing), adapted from chat-alert
// scoring to file-change validation.
package quality

import (
	"path/filepath"
	"strings"

	"github.com/nightwatch-dev/nightwatch/pkg/model"
)

// Severity distinguishes a blocking failure from an advisory one.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Finding is one layer's verdict on one file change (or the analysis
// as a whole, when Path is empty).
type Finding struct {
	Layer    string
	Severity Severity
	Path     string
	Message  string
}

// Result is the gate's overall verdict.
type Result struct {
	Valid          bool
	Layers         []string
	BlockingErrors []Finding
	Warnings       []Finding
}

// Config tunes the Quality layer's thresholds.
type Config struct {
	MinConfidence model.Confidence
	MaxFiles      int
}

// Run applies all five layers in order. PathSafety failures short-
// circuit the remaining layers for that analysis; the other four
// layers always all run.
func Run(a model.Analysis, cfg Config) Result {
	result := Result{Valid: true, Layers: []string{"path_safety", "content", "syntax", "semantic", "quality"}}

	pathFindings := pathSafety(a.FileChanges)
	result.absorb(pathFindings)
	if hasError(pathFindings) {
		return result
	}

	result.absorb(content(a.FileChanges))
	result.absorb(syntax(a.FileChanges))
	result.absorb(semantic(a))
	result.absorb(qualityLayer(a, cfg))

	return result
}

func (r *Result) absorb(findings []Finding) {
	for _, f := range findings {
		switch f.Severity {
		case SeverityError:
			r.BlockingErrors = append(r.BlockingErrors, f)
			r.Valid = false
		default:
			r.Warnings = append(r.Warnings, f)
		}
	}
}

func hasError(findings []Finding) bool {
	for _, f := range findings {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}

// pathSafety rejects absolute paths and any path containing "..".
func pathSafety(changes []model.FileChange) []Finding {
	var findings []Finding
	for _, fc := range changes {
		if filepath.IsAbs(fc.Path) {
			findings = append(findings, Finding{Layer: "path_safety", Severity: SeverityError, Path: fc.Path, Message: "absolute paths are not allowed"})
			continue
		}
		if strings.Contains(fc.Path, "..") {
			findings = append(findings, Finding{Layer: "path_safety", Severity: SeverityError, Path: fc.Path, Message: "path traversal (\"..\") is not allowed"})
		}
	}
	return findings
}

// content rejects empty/whitespace-only content for modify/create
// changes, and warns on suspiciously short modify content.
func content(changes []model.FileChange) []Finding {
	var findings []Finding
	for _, fc := range changes {
		if fc.Action != model.FileActionModify && fc.Action != model.FileActionCreate {
			continue
		}
		stripped := strings.TrimSpace(fc.Content)
		if stripped == "" {
			findings = append(findings, Finding{Layer: "content", Severity: SeverityError, Path: fc.Path, Message: "content is empty"})
			continue
		}
		if fc.Action == model.FileActionModify && len(stripped) < 20 {
			findings = append(findings, Finding{Layer: "content", Severity: SeverityWarning, Path: fc.Path, Message: "suspiciously short content for a modify"})
		}
	}
	return findings
}

var rubyOpeners = []string{"def ", "class ", "module ", "do", "if ", "unless ", "begin"}

// syntax is an optional, extension-scoped sanity check. For Ruby files
// it counts block-opener keywords against "end" terminators on
// non-comment lines.
func syntax(changes []model.FileChange) []Finding {
	var findings []Finding
	for _, fc := range changes {
		if fc.Action == model.FileActionDelete || !strings.HasSuffix(fc.Path, ".rb") {
			continue
		}
		openers, enders := countRubyBlocks(fc.Content)
		if openers > 0 && enders == 0 {
			findings = append(findings, Finding{Layer: "syntax", Severity: SeverityError, Path: fc.Path, Message: "block openers present with no matching \"end\""})
			continue
		}
		if diff := openers - enders; diff > 2 || diff < -2 {
			findings = append(findings, Finding{Layer: "syntax", Severity: SeverityError, Path: fc.Path, Message: "opener/end count mismatch suggests unbalanced blocks"})
		}
	}
	return findings
}

func countRubyBlocks(content string) (openers, enders int) {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			continue
		}
		for _, kw := range rubyOpeners {
			if strings.Contains(trimmed, kw) {
				openers++
				break
			}
		}
		if trimmed == "end" || strings.HasSuffix(trimmed, " end") {
			enders++
		}
	}
	return
}

// semantic warns when too many files are touched, or when no changed
// path's directory is referenced anywhere in the stated root cause or
// reasoning.
func semantic(a model.Analysis) []Finding {
	var findings []Finding
	if len(a.FileChanges) > 5 {
		findings = append(findings, Finding{Layer: "semantic", Severity: SeverityWarning, Message: "more than 5 files changed"})
	}

	context := strings.ToLower(a.RootCause + " " + a.Reasoning)
	mentioned := false
	for _, fc := range a.FileChanges {
		dir := filepath.Dir(fc.Path)
		for _, part := range strings.Split(dir, "/") {
			if len(part) >= 3 && strings.Contains(context, strings.ToLower(part)) {
				mentioned = true
			}
		}
	}
	if len(a.FileChanges) > 0 && !mentioned {
		findings = append(findings, Finding{Layer: "semantic", Severity: SeverityWarning, Message: "no changed file's directory is mentioned in the stated root cause or reasoning"})
	}
	return findings
}

// qualityLayer requires a minimum confidence and a non-empty root
// cause, and warns on empty reasoning or exceeding the configured
// file-count maximum.
func qualityLayer(a model.Analysis, cfg Config) []Finding {
	var findings []Finding

	if a.Confidence.Rank() < cfg.MinConfidence.Rank() {
		findings = append(findings, Finding{Layer: "quality", Severity: SeverityError, Message: "confidence below configured minimum"})
	}
	if strings.TrimSpace(a.RootCause) == "" {
		findings = append(findings, Finding{Layer: "quality", Severity: SeverityError, Message: "root cause is empty"})
	}
	if strings.TrimSpace(a.Reasoning) == "" {
		findings = append(findings, Finding{Layer: "quality", Severity: SeverityWarning, Message: "reasoning is empty"})
	}
	if cfg.MaxFiles > 0 && len(a.FileChanges) > cfg.MaxFiles {
		findings = append(findings, Finding{Layer: "quality", Severity: SeverityWarning, Message: "file count exceeds configured maximum"})
	}
	return findings
}
