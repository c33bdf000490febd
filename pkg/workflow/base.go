// Package workflow defines NightWatch's pluggable workflow contract —
// fetch→filter→analyze→act→report_section — and the safe-output
// allowlist that bounds what each workflow may do. Grounded on
// workflows/base.py.
package workflow

import (
	"context"
	"log/slog"

	goslack "github.com/slack-go/slack"
)

// SafeOutput is an action a workflow is allowed to take.
type SafeOutput string

const (
	SafeOutputCreateIssue SafeOutput = "create_issue"
	SafeOutputCreatePR    SafeOutput = "create_pr"
	SafeOutputAddComment  SafeOutput = "add_comment"
	SafeOutputAddLabel    SafeOutput = "add_label"
	SafeOutputSendChat    SafeOutput = "send_chat"
	SafeOutputWriteFile   SafeOutput = "write_file"
)

// Item is one unit of work a workflow fetched and may analyze.
type Item struct {
	ID       string
	Title    string
	RawData  any
	Metadata map[string]string
}

// Analysis is one Item's analysis result.
type Analysis struct {
	Item       Item
	Summary    string
	Details    map[string]any
	Confidence float64
	TokensUsed int
}

// Action is one action a workflow took (or, in a dry run, would take).
type Action struct {
	ActionType SafeOutput
	Target     string
	Details    map[string]any
	Success    bool
}

// Result is the complete output of one workflow run.
type Result struct {
	WorkflowName string
	ItemsFetched int
	Analyses     []Analysis
	Actions      []Action
	Errors       []string
}

// Params bundles the kwargs-style inputs each workflow stage needs.
// Concrete workflows read only the fields relevant to them.
type Params struct {
	MaxItems int
	DryRun   bool
	Extra    map[string]any
}

// Workflow is NightWatch's pluggable unit of autonomous work: fetch
// items, filter/prioritize them, analyze them, then act within its
// declared SafeOutputs.
type Workflow interface {
	Name() string
	Description() string
	SafeOutputs() []SafeOutput

	Fetch(ctx context.Context, params Params) ([]Item, error)
	Filter(items []Item, params Params) []Item
	Analyze(ctx context.Context, items []Item, params Params) []Analysis
	Act(ctx context.Context, analyses []Analysis, params Params) []Action
	ReportSection(result Result) []goslack.Block
}

// CheckSafeOutput reports whether actionType is in w's allowlist,
// logging a warning and returning false otherwise.
func CheckSafeOutput(w Workflow, actionType SafeOutput, log *slog.Logger) bool {
	for _, allowed := range w.SafeOutputs() {
		if allowed == actionType {
			return true
		}
	}
	if log != nil {
		log.Warn("workflow attempted unauthorized action", "workflow", w.Name(), "action", actionType, "allowed", w.SafeOutputs())
	}
	return false
}

// Run drives one workflow through its full lifecycle and assembles a
// Result. A fetch error is recorded in Result.Errors and ends the run;
// Analyze and Act return no errors, so nothing else is recorded there.
func Run(ctx context.Context, w Workflow, params Params) Result {
	result := Result{WorkflowName: w.Name()}

	items, err := w.Fetch(ctx, params)
	if err != nil {
		result.Errors = append(result.Errors, "fetch: "+err.Error())
		return result
	}
	result.ItemsFetched = len(items)

	filtered := w.Filter(items, params)
	result.Analyses = w.Analyze(ctx, filtered, params)
	result.Actions = w.Act(ctx, result.Analyses, params)
	return result
}
