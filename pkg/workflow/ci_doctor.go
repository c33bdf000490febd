package workflow

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	goslack "github.com/slack-go/slack"
)

// knownCIPattern is one known-failure signature CIDoctorWorkflow
// recognizes without needing deep LLM analysis.
type knownCIPattern struct {
	pattern     *regexp.Regexp
	rootCause   string
	category    string
	confidence  float64
	suggestedFix string
	isTransient bool
}

var knownCIPatterns = []knownCIPattern{
	{
		pattern:      regexp.MustCompile(`(?i)ETIMEDOUT|ECONNREFUSED|network timeout`),
		rootCause:    "Network timeout or connection refused",
		category:     "infrastructure",
		confidence:   0.95,
		suggestedFix: "Retry the workflow — likely a transient network issue",
		isTransient:  true,
	},
	{
		pattern:      regexp.MustCompile(`(?i)rate limit|API rate limit exceeded|403.*rate`),
		rootCause:    "API rate limit exceeded",
		category:     "rate_limit",
		confidence:   0.95,
		suggestedFix: "Wait and retry, or add rate limiting/caching",
		isTransient:  true,
	},
	{
		pattern:      regexp.MustCompile(`(?i)No space left on device|disk full|ENOSPC`),
		rootCause:    "Disk space exhausted on runner",
		category:     "resource_limit",
		confidence:   0.95,
		suggestedFix: "Clean up disk space or use a larger runner",
		isTransient:  false,
	},
	{
		pattern:      regexp.MustCompile(`(?i)Out of memory|OOMKilled|MemoryError`),
		rootCause:    "Out of memory on runner",
		category:     "resource_limit",
		confidence:   0.90,
		suggestedFix: "Optimize memory usage or use a larger runner",
		isTransient:  false,
	},
}

// CIRun is a failed workflow run as reported by the code host.
type CIRun struct {
	ID         string
	Name       string
	RunNumber  int
	Branch     string
	SHA        string
	URL        string
	LogText    string
}

// CIRunFetcher is the narrow capability CIDoctorWorkflow needs: list
// recent failed CI runs.
type CIRunFetcher interface {
	FailedRuns(ctx context.Context) ([]CIRun, error)
}

// CIDoctorWorkflow diagnoses GitHub Actions failures against a table of
// known failure signatures, producing a root-cause comment action for
// anything it recognizes with reasonable confidence. Grounded on
// workflows/ci_doctor.py's CIDoctorWorkflow.
type CIDoctorWorkflow struct {
	Fetcher CIRunFetcher
}

var _ Workflow = CIDoctorWorkflow{}

func (CIDoctorWorkflow) Name() string { return "ci_doctor" }
func (CIDoctorWorkflow) Description() string {
	return "Diagnose GitHub Actions failures and post root-cause comments"
}
func (CIDoctorWorkflow) SafeOutputs() []SafeOutput {
	return []SafeOutput{SafeOutputAddComment, SafeOutputAddLabel, SafeOutputSendChat}
}

func (w CIDoctorWorkflow) Fetch(ctx context.Context, params Params) ([]Item, error) {
	if w.Fetcher == nil {
		return nil, nil
	}
	runs, err := w.Fetcher.FailedRuns(ctx)
	if err != nil {
		return nil, fmt.Errorf("ci_doctor: fetching failed runs: %w", err)
	}

	items := make([]Item, 0, len(runs))
	for _, run := range runs {
		items = append(items, Item{
			ID:      run.ID,
			Title:   fmt.Sprintf("%s #%d", run.Name, run.RunNumber),
			RawData: run,
			Metadata: map[string]string{
				"branch": run.Branch,
				"sha":    run.SHA,
				"url":    run.URL,
			},
		})
	}
	return items, nil
}

// Filter prioritizes main/master branch failures, then truncates to
// params.MaxItems (default 5).
func (CIDoctorWorkflow) Filter(items []Item, params Params) []Item {
	maxItems := params.MaxItems
	if maxItems == 0 {
		maxItems = 5
	}

	sorted := make([]Item, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return isMainBranch(sorted[i].Metadata["branch"]) && !isMainBranch(sorted[j].Metadata["branch"])
	})

	if len(sorted) > maxItems {
		sorted = sorted[:maxItems]
	}
	return sorted
}

func isMainBranch(branch string) bool {
	return branch == "main" || branch == "master"
}

func (CIDoctorWorkflow) Analyze(ctx context.Context, items []Item, params Params) []Analysis {
	analyses := make([]Analysis, 0, len(items))
	for _, item := range items {
		run, _ := item.RawData.(CIRun)
		if known := matchKnownPattern(run.LogText); known != nil {
			analyses = append(analyses, Analysis{
				Item:    item,
				Summary: known.rootCause,
				Details: map[string]any{
					"category":      known.category,
					"suggested_fix": known.suggestedFix,
					"is_transient":  known.isTransient,
				},
				Confidence: known.confidence,
			})
			continue
		}
		analyses = append(analyses, Analysis{
			Item:       item,
			Summary:    "Requires deeper analysis",
			Details:    map[string]any{"category": "unknown", "is_transient": false},
			Confidence: 0,
		})
	}
	return analyses
}

func matchKnownPattern(logText string) *knownCIPattern {
	for i := range knownCIPatterns {
		if knownCIPatterns[i].pattern.MatchString(logText) {
			return &knownCIPatterns[i]
		}
	}
	return nil
}

// Act builds an add_comment Action holding a diagnosis comment for every
// analysis with confidence above 0.5. It does not send the comment;
// Success is true unless params.DryRun is set.
func (CIDoctorWorkflow) Act(ctx context.Context, analyses []Analysis, params Params) []Action {
	var actions []Action
	for _, a := range analyses {
		if a.Confidence <= 0.5 {
			continue
		}
		comment := buildDiagnosisComment(a)
		actions = append(actions, Action{
			ActionType: SafeOutputAddComment,
			Target:     a.Item.Title,
			Details:    map[string]any{"comment": comment, "dry_run": params.DryRun},
			Success:    !params.DryRun,
		})
	}
	return actions
}

func buildDiagnosisComment(a Analysis) string {
	isTransient := "No"
	if v, _ := a.Details["is_transient"].(bool); v {
		isTransient = "Yes"
	}
	category, _ := a.Details["category"].(string)
	if category == "" {
		category = "unknown"
	}
	fix, _ := a.Details["suggested_fix"].(string)
	if fix == "" {
		fix = "N/A"
	}

	var b strings.Builder
	b.WriteString("## NightWatch CI Diagnosis\n\n")
	b.WriteString("| Field | Value |\n|-------|-------|\n")
	fmt.Fprintf(&b, "| **Root Cause** | %s |\n", a.Summary)
	fmt.Fprintf(&b, "| **Category** | %s |\n", category)
	fmt.Fprintf(&b, "| **Confidence** | %.0f%% |\n", a.Confidence*100)
	fmt.Fprintf(&b, "| **Suggested Fix** | %s |\n", fix)
	fmt.Fprintf(&b, "| **Transient** | %s |\n", isTransient)
	return b.String()
}

func (CIDoctorWorkflow) ReportSection(result Result) []goslack.Block {
	if len(result.Analyses) == 0 {
		return nil
	}
	blocks := []goslack.Block{
		goslack.NewSectionBlock(goslack.NewTextBlockObject(goslack.MarkdownType,
			fmt.Sprintf("*CI Doctor* — %d failures diagnosed", len(result.Analyses)), false, false), nil, nil),
	}
	limit := len(result.Analyses)
	if limit > 5 {
		limit = 5
	}
	for _, a := range result.Analyses[:limit] {
		emoji := ":red_circle:"
		if v, _ := a.Details["is_transient"].(bool); v {
			emoji = ":white_check_mark:"
		}
		text := fmt.Sprintf("%s %s: %s (%.0f%%)", emoji, a.Item.Title, a.Summary, a.Confidence*100)
		blocks = append(blocks, goslack.NewSectionBlock(goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false), nil, nil))
	}
	return blocks
}

func init() {
	DefaultRegistry.Register("ci_doctor", func() Workflow { return CIDoctorWorkflow{} })
}
