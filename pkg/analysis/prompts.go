package analysis

import (
	"fmt"
	"strings"

	"github.com/nightwatch-dev/nightwatch/pkg/capability"
	"github.com/nightwatch-dev/nightwatch/pkg/model"
)

// SystemPrompt instructs the model to ground every finding in the
// actual source tree rather than guessing from the error message
// alone. The loop sends it on every call with SystemCacheable set; the
// llm client does not attach a cache-control marker for it.
const SystemPrompt = `You are NightWatch, an AI agent that analyzes production errors.

Given error data from an observability backend, you MUST:
1. Search and read the actual codebase using your tools
2. Identify the root cause from source code
3. Propose a concrete fix if possible

MANDATORY: Always use search_code and read_file to examine the actual code. Never guess.

Investigation steps:
1. Extract the controller/handler and action from the transaction name
2. search_code to find the file
3. read_file to examine it
4. Search for related models, services, and concerns
5. Read files referenced in the error message

If one search fails, try variations: action name, error class, keywords from the message.`

// Tools returns the fixed tool schema offered to the model on every
// call of the analysis loop.
func Tools() []capability.ToolSchema {
	return []capability.ToolSchema{
		{
			Name:        "read_file",
			Description: "Read a file from the repository. Use this to examine source code.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{"type": "string", "description": "File path relative to repo root"},
				},
				"required":             []string{"path"},
				"additionalProperties": false,
			},
		},
		{
			Name:        "search_code",
			Description: "Search for code patterns in the repository. Returns the name, path and URL of each matching file.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query":          map[string]any{"type": "string", "description": "Search query — method name, class name, error message, etc."},
					"file_extension": map[string]any{"type": "string", "description": "Optional file extension filter"},
				},
				"required":             []string{"query"},
				"additionalProperties": false,
			},
		},
		{
			Name:        "list_directory",
			Description: "List files and subdirectories in a directory.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{"type": "string", "description": "Directory path relative to repo root"},
				},
				"required":             []string{"path"},
				"additionalProperties": false,
			},
		},
		{
			Name:        "get_error_traces",
			Description: "Fetch the pre-loaded trace samples for the current error.",
			InputSchema: map[string]any{
				"type":                 "object",
				"properties":           map[string]any{"limit": map[string]any{"type": "integer", "description": "Number of trace samples to return (default 5)"}},
				"required":             []string{},
				"additionalProperties": false,
			},
		},
	}
}

// BuildAnalysisPrompt composes the initial user turn: error header,
// trace summary, and optional prior-knowledge / research /
// correlated-PR sections.
func BuildAnalysisPrompt(err model.ErrorGroup, traceSummary string, priorAnalyses []model.PriorAnalysis, filePreviews map[string]string, correlatedPRs []model.CorrelatedPR, seedContext string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze this production error and propose a fix:\n\n")
	fmt.Fprintf(&b, "## Error Information\n")
	fmt.Fprintf(&b, "- **Exception Class**: `%s`\n", err.ErrorClass)
	fmt.Fprintf(&b, "- **Transaction**: `%s`\n", err.Transaction)
	fmt.Fprintf(&b, "- **Message**: `%s`\n", truncate(err.Message, 500))
	fmt.Fprintf(&b, "- **Occurrences**: %d\n\n", err.Occurrences)
	fmt.Fprintf(&b, "## Trace Data\n%s\n\n", traceSummary)
	b.WriteString("**Instructions**: The transaction name tells you which controller/action is failing. Use search_code to find the relevant code, then read_file to examine it. Search for related models and services.")

	if len(priorAnalyses) > 0 {
		b.WriteString("\n\n## Prior Knowledge\n\n")
		b.WriteString("NightWatch has analyzed similar errors before. Use this as context but verify independently — the root cause may differ this time.\n\n")
		for i, p := range priorAnalyses {
			fmt.Fprintf(&b, "### Prior Analysis #%d (match: %.0f%%)\n", i+1, p.MatchScore*100)
			fmt.Fprintf(&b, "- **Error**: `%s` in `%s`\n", p.ErrorClass, p.Transaction)
			fmt.Fprintf(&b, "- **Root cause**: %s\n", p.RootCause)
			fmt.Fprintf(&b, "- **Confidence**: %s\n", p.FixConfidence)
			fmt.Fprintf(&b, "- **Had fix**: %s\n", yesNo(p.HasFix))
			fmt.Fprintf(&b, "- **Summary**: %s\n\n", p.Summary)
		}
	}

	if len(filePreviews) > 0 {
		b.WriteString("\n\n## Pre-Fetched Source Files\n\n")
		b.WriteString("These files were identified as likely relevant based on the transaction name and stack traces. You can read_file for full content or search_code for related files.\n\n")
		for path, content := range filePreviews {
			fmt.Fprintf(&b, "### `%s` (first 100 lines)\n```\n%s\n```\n\n", path, content)
		}
	}

	if len(correlatedPRs) > 0 {
		b.WriteString("\n\n## Recently Merged PRs (Possible Cause)\n\n")
		for i, pr := range correlatedPRs {
			if i >= 3 {
				break
			}
			changed := "N/A"
			if len(pr.ChangedFiles) > 0 {
				n := len(pr.ChangedFiles)
				if n > 5 {
					n = 5
				}
				changed = strings.Join(pr.ChangedFiles[:n], ", ")
			}
			fmt.Fprintf(&b, "- **PR #%d**: %s (merged %s, overlap: %.0f%%)\n  Changed: %s\n",
				pr.Number, pr.Title, pr.MergedAt, pr.OverlapScore*100, changed)
		}
	}

	if seedContext != "" {
		b.WriteString("\n\n" + seedContext)
	}

	return b.String()
}

// SummarizeTraces renders trace material into a compact prompt section,
// showing up to maxErrors of each kind.
func SummarizeTraces(traces model.TraceData, maxErrors int) string {
	var parts []string

	if len(traces.TransactionErrors) > 0 {
		parts = append(parts, fmt.Sprintf("### Transaction Errors (%d total)", len(traces.TransactionErrors)))
		for i, e := range traces.TransactionErrors {
			if i >= maxErrors {
				break
			}
			parts = append(parts, fmt.Sprintf(
				"**Error %d**: `%s` — `%s`\n  Transaction: `%s` | Path: `%s` | Host: `%s`",
				i+1, stringField(e, "error.class"), truncate(stringField(e, "error.message"), 300),
				stringField(e, "transactionName"), stringField(e, "path"), stringField(e, "host"),
			))
		}
	}

	if len(traces.ErrorTraces) > 0 {
		parts = append(parts, fmt.Sprintf("\n### Stack Traces (%d total)", len(traces.ErrorTraces)))
		for i, tr := range traces.ErrorTraces {
			if i >= maxErrors {
				break
			}
			stack := stringField(tr, "error.stack_trace")
			if stack == "" {
				stack = stringField(tr, "stackTrace")
			}
			stack = truncate(stack, 500)
			msg := stringField(tr, "error.message")
			if msg == "" {
				msg = stringField(tr, "message")
			}
			parts = append(parts, fmt.Sprintf("**Trace %d**: `%s`\n```\n%s\n```", i+1, truncate(msg, 200), stack))
		}
	}

	if len(parts) == 0 {
		return "No trace data available."
	}
	return strings.Join(parts, "\n")
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprintf("%v", v)
	}
	return ""
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
