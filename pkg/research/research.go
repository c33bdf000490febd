// Package research gathers context before the main analysis loop runs:
// likely-relevant files inferred from the transaction name and stack
// trace, pre-fetched file previews, and correlated recent PRs. Grounded
// on research.py's research_error and its file-inference helpers.
package research

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/nightwatch-dev/nightwatch/pkg/model"
)

// Context is the pre-gathered context injected into the analysis
// prompt for one error.
type Context struct {
	PriorAnalyses []model.PriorAnalysis
	LikelyFiles   []string
	CorrelatedPRs []model.CorrelatedPR
	FilePreviews  map[string]string
}

// CodeReader is the narrow capability.CodeHost surface research needs.
type CodeReader interface {
	ReadFile(ctx context.Context, path string) (content string, found bool, err error)
}

var appPathPattern = regexp.MustCompile(`(app/[\w/]+\.rb|lib/[\w/]+\.rb)`)

// Research infers likely files, pre-fetches previews for up to 5 of
// them, and bundles everything into a Context for the analysis prompt.
func Research(ctx context.Context, log *slog.Logger, err model.ErrorGroup, traces model.TraceData, reader CodeReader, correlatedPRs []model.CorrelatedPR, priorAnalyses []model.PriorAnalysis) Context {
	fromTx := inferFilesFromTransaction(err.Transaction)
	fromTraces := inferFilesFromTraces(traces)

	seen := make(map[string]bool)
	var likelyFiles []string
	for _, f := range append(fromTx, fromTraces...) {
		if !seen[f] {
			seen[f] = true
			likelyFiles = append(likelyFiles, f)
		}
	}

	previews := preFetchFiles(ctx, log, likelyFiles, reader, 100, 5)

	return Context{
		PriorAnalyses: priorAnalyses,
		LikelyFiles:   likelyFiles,
		CorrelatedPRs: correlatedPRs,
		FilePreviews:  previews,
	}
}

// inferFilesFromTransaction maps a Rails-style transaction name to the
// controller/model/job file it most likely corresponds to.
//
//	"Controller/products/show" -> app/controllers/products_controller.rb, app/models/product.rb
//	"Sidekiq/ImportJob"        -> app/jobs/import_job.rb
func inferFilesFromTransaction(transaction string) []string {
	var files []string
	parts := strings.Split(transaction, "/")
	if len(parts) == 0 {
		return files
	}

	switch prefix := parts[0]; {
	case prefix == "Controller" && len(parts) >= 3:
		namespaceParts := parts[1 : len(parts)-1]
		if len(namespaceParts) == 0 {
			return files
		}
		resource := namespaceParts[len(namespaceParts)-1]
		namespacePath := ""
		if len(namespaceParts) > 1 {
			namespacePath = strings.Join(namespaceParts[:len(namespaceParts)-1], "/")
		}

		if resource != "" {
			if namespacePath != "" {
				files = append(files, "app/controllers/"+namespacePath+"/"+resource+"_controller.rb")
			} else {
				files = append(files, "app/controllers/"+resource+"_controller.rb")
			}
			modelName := strings.TrimSuffix(resource, "s")
			files = append(files, "app/models/"+modelName+".rb")
		}

	case prefix == "Sidekiq" && len(parts) >= 2:
		files = append(files, "app/jobs/"+camelToSnake(parts[1])+".rb")
	}

	return files
}

// inferFilesFromTraces extracts app-relative file paths (app/ or lib/)
// from stack trace strings, returning up to 5 unique paths.
func inferFilesFromTraces(traces model.TraceData) []string {
	var files []string
	seen := make(map[string]bool)

	for _, trace := range traces.ErrorTraces {
		stack, _ := traceStack(trace)
		if stack == "" {
			continue
		}
		for _, match := range appPathPattern.FindAllString(stack, -1) {
			if seen[match] {
				continue
			}
			seen[match] = true
			files = append(files, match)
			if len(files) >= 5 {
				return files
			}
		}
	}
	return files
}

func traceStack(trace map[string]any) (string, bool) {
	if v, ok := trace["error.stack_trace"]; ok {
		if s, ok := v.(string); ok {
			return s, true
		}
	}
	if v, ok := trace["stackTrace"]; ok {
		if s, ok := v.(string); ok {
			return s, true
		}
	}
	return "", false
}

// preFetchFiles reads the first maxLines of each of the first maxFiles
// likely files from the code host, silently skipping files that don't
// exist or fail to read.
func preFetchFiles(ctx context.Context, log *slog.Logger, files []string, reader CodeReader, maxLines, maxFiles int) map[string]string {
	result := make(map[string]string)
	if reader == nil {
		return result
	}

	limit := len(files)
	if limit > maxFiles {
		limit = maxFiles
	}

	for _, path := range files[:limit] {
		content, found, err := reader.ReadFile(ctx, path)
		if err != nil {
			if log != nil {
				log.Debug("could not pre-fetch file", "path", path, "error", err)
			}
			continue
		}
		if !found {
			continue
		}
		lines := strings.Split(content, "\n")
		if len(lines) > maxLines {
			content = strings.Join(lines[:maxLines], "\n") + "\n# ... truncated"
		}
		result[path] = content
	}
	return result
}

func camelToSnake(name string) string {
	var b strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		if i > 0 && isUpper(r) && (isLower(runes[i-1]) || (i+1 < len(runes) && isLower(runes[i+1]))) {
			b.WriteRune('_')
		}
		b.WriteRune(toLower(r))
	}
	return b.String()
}

func isUpper(r rune) bool { return r >= 'A' && r <= 'Z' }
func isLower(r rune) bool { return r >= 'a' && r <= 'z' }
func toLower(r rune) rune {
	if isUpper(r) {
		return r + ('a' - 'A')
	}
	return r
}
