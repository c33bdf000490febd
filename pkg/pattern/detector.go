// Package pattern implements cross-error pattern detection: clustering
// completed analyses by module, error class, and file hotspot, plus
// transient-noise and cross-run recurrence detection against the
// knowledge store. Grounded line-for-line on the platform's
// patterns.py.
package pattern

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nightwatch-dev/nightwatch/pkg/model"
)

// KnowledgeLookup is the subset of the knowledge store a detector needs
// for cross-run recurrence detection.
type KnowledgeLookup interface {
	SolutionCountByErrorClass(errorClass string) int
}

// Detect runs the three in-run detectors — module clustering, error
// class clustering, file hotspots — and merges their results, sorted by
// occurrence count descending (ties broken by title).
func Detect(analyses []model.ErrorAnalysisResult, minClusterSize int) []model.DetectedPattern {
	if len(analyses) < minClusterSize {
		return nil
	}

	var patterns []model.DetectedPattern
	patterns = append(patterns, detectModuleClusters(analyses, minClusterSize)...)
	patterns = append(patterns, detectErrorClassClusters(analyses, minClusterSize)...)
	patterns = append(patterns, detectFileHotspots(analyses, minClusterSize)...)

	sortPatterns(patterns)
	return patterns
}

// DetectWithKnowledge extends Detect with cross-run recurring errors (via
// kb) and transient/noise detection.
func DetectWithKnowledge(analyses []model.ErrorAnalysisResult, kb KnowledgeLookup, minClusterSize int) []model.DetectedPattern {
	patterns := Detect(analyses, minClusterSize)

	if kb != nil {
		patterns = append(patterns, findRecurringInKnowledge(analyses, kb)...)
	}
	patterns = append(patterns, detectTransientErrors(analyses)...)

	sortPatterns(patterns)
	return patterns
}

func sortPatterns(patterns []model.DetectedPattern) {
	sort.SliceStable(patterns, func(i, j int) bool {
		if patterns[i].Occurrences != patterns[j].Occurrences {
			return patterns[i].Occurrences > patterns[j].Occurrences
		}
		return patterns[i].Title < patterns[j].Title
	})
}

// detectModuleClusters finds directories touched by multiple errors,
// via proposed file changes and a Controller/X/Y transaction heuristic.
func detectModuleClusters(analyses []model.ErrorAnalysisResult, minSize int) []model.DetectedPattern {
	dirToErrors := map[string][]string{}
	var order []string

	for _, result := range analyses {
		dirs := map[string]bool{}

		for _, fc := range result.Analysis.FileChanges {
			if parent := parentDir(fc.Path); parent != "" {
				dirs[parent] = true
			}
		}
		if txDir := transactionToDirectory(result.Error.Transaction); txDir != "" {
			dirs[txDir] = true
		}

		for d := range dirs {
			if _, seen := dirToErrors[d]; !seen {
				order = append(order, d)
			}
			dirToErrors[d] = append(dirToErrors[d], result.Error.ErrorClass)
		}
	}

	var patterns []model.DetectedPattern
	for _, directory := range order {
		errorClasses := dirToErrors[directory]
		if len(errorClasses) < minSize {
			continue
		}
		unique := uniqueSorted(errorClasses)
		patterns = append(patterns, model.DetectedPattern{
			Title:        "Multiple errors in " + directory,
			Description:  fmt.Sprintf("%d errors touch the `%s` module. Error classes: %s", len(errorClasses), directory, strings.Join(unique, ", ")),
			ErrorClasses: unique,
			Modules:      []string{directory},
			Occurrences:  len(errorClasses),
			Suggestion:   fmt.Sprintf("Review `%s` for systemic issues — %d distinct error types in one module.", directory, len(unique)),
			PatternType:  model.PatternSystemicIssue,
		})
	}
	return patterns
}

// detectErrorClassClusters finds error classes appearing across
// multiple transactions.
func detectErrorClassClusters(analyses []model.ErrorAnalysisResult, minSize int) []model.DetectedPattern {
	classToTxs := map[string][]string{}
	var order []string

	for _, result := range analyses {
		ec := result.Error.ErrorClass
		if _, seen := classToTxs[ec]; !seen {
			order = append(order, ec)
		}
		classToTxs[ec] = append(classToTxs[ec], result.Error.Transaction)
	}

	var patterns []model.DetectedPattern
	for _, errorClass := range order {
		transactions := classToTxs[errorClass]
		if len(transactions) < minSize {
			continue
		}
		uniqueTxs := uniqueSorted(transactions)

		var modules []string
		seenDir := map[string]bool{}
		for _, tx := range transactions {
			if d := transactionToDirectory(tx); d != "" && !seenDir[d] {
				seenDir[d] = true
				modules = append(modules, d)
			}
		}
		sort.Strings(modules)

		patterns = append(patterns, model.DetectedPattern{
			Title:        fmt.Sprintf("%s across %d transactions", errorClass, len(uniqueTxs)),
			Description:  fmt.Sprintf("`%s` appears in %d analyses across transactions: %s", errorClass, len(transactions), strings.Join(uniqueTxs, ", ")),
			ErrorClasses: []string{errorClass},
			Modules:      modules,
			Occurrences:  len(transactions),
			Suggestion:   fmt.Sprintf("Investigate common root cause for `%s` — may be a shared dependency or pattern issue.", errorClass),
			PatternType:  model.PatternRecurringError,
		})
	}
	return patterns
}

// detectFileHotspots finds files proposed for changes across multiple
// analyses.
func detectFileHotspots(analyses []model.ErrorAnalysisResult, minSize int) []model.DetectedPattern {
	fileToErrors := map[string][]string{}
	var order []string

	for _, result := range analyses {
		for _, fc := range result.Analysis.FileChanges {
			if _, seen := fileToErrors[fc.Path]; !seen {
				order = append(order, fc.Path)
			}
			fileToErrors[fc.Path] = append(fileToErrors[fc.Path], result.Error.ErrorClass)
		}
	}

	var patterns []model.DetectedPattern
	for _, filePath := range order {
		errorClasses := fileToErrors[filePath]
		if len(errorClasses) < minSize {
			continue
		}
		unique := uniqueSorted(errorClasses)

		var modules []string
		if parent := parentDir(filePath); parent != "" {
			modules = []string{parent}
		}

		patterns = append(patterns, model.DetectedPattern{
			Title:        "Hotspot: " + filePath,
			Description:  fmt.Sprintf("`%s` is targeted by %d separate fix proposals. Error classes: %s", filePath, len(errorClasses), strings.Join(unique, ", ")),
			ErrorClasses: unique,
			Modules:      modules,
			Occurrences:  len(errorClasses),
			Suggestion:   fmt.Sprintf("Consider a comprehensive review of `%s` — multiple errors point here.", filePath),
			PatternType:  model.PatternSystemicIssue,
		})
	}
	return patterns
}

// transactionToDirectory maps a New Relic transaction name to a likely
// source directory.
//
//	Controller/orders/update            -> app/controllers/orders
//	Controller/api/v2/products/index    -> app/controllers/api/v2/products
//	OtherTransaction/Rake/some_task     -> ""
func transactionToDirectory(transaction string) string {
	if !strings.HasPrefix(transaction, "Controller/") {
		return ""
	}
	parts := strings.Split(transaction, "/")
	if len(parts) < 3 {
		return ""
	}
	pathParts := parts[1 : len(parts)-1]
	if len(pathParts) == 0 {
		return ""
	}
	return "app/controllers/" + strings.Join(pathParts, "/")
}

func parentDir(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx <= 0 {
		return ""
	}
	return path[:idx]
}

func uniqueSorted(values []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}
