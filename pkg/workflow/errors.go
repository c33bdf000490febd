package workflow

import (
	"context"
	"fmt"

	goslack "github.com/slack-go/slack"

	"github.com/nightwatch-dev/nightwatch/pkg/model"
)

// ErrorsWorkflow wraps NightWatch's core error-analysis pipeline in the
// workflow contract: fetch/analyze are populated by the pipeline runner
// via Params.Extra rather than performed here, since the pipeline
// already owns ingestion and the agentic analysis loop. Grounded on
// workflows/errors.py's ErrorAnalysisWorkflow.
type ErrorsWorkflow struct{}

var _ Workflow = ErrorsWorkflow{}

func (ErrorsWorkflow) Name() string        { return "errors" }
func (ErrorsWorkflow) Description() string { return "Analyze production errors and create GitHub issues/PRs" }
func (ErrorsWorkflow) SafeOutputs() []SafeOutput {
	return []SafeOutput{SafeOutputCreateIssue, SafeOutputCreatePR, SafeOutputSendChat}
}

// Fetch wraps the ErrorGroups the pipeline already ingested (passed via
// Params.Extra["errors"]) as workflow Items.
func (ErrorsWorkflow) Fetch(ctx context.Context, params Params) ([]Item, error) {
	raw, _ := params.Extra["errors"].([]model.ErrorGroup)
	items := make([]Item, 0, len(raw))
	for i, e := range raw {
		items = append(items, Item{
			ID:      fmt.Sprintf("%d", i),
			Title:   fmt.Sprintf("%s in %s", e.ErrorClass, e.Transaction),
			RawData: e,
		})
	}
	return items, nil
}

// Filter truncates to params.MaxItems — the pipeline has already
// ranked and selected errors by impact score before this runs.
func (ErrorsWorkflow) Filter(items []Item, params Params) []Item {
	if params.MaxItems > 0 && len(items) > params.MaxItems {
		return items[:params.MaxItems]
	}
	return items
}

// Analyze projects the pipeline's ErrorAnalysisResults (passed via
// Params.Extra["analyses"]) onto the matching Items.
func (ErrorsWorkflow) Analyze(ctx context.Context, items []Item, params Params) []Analysis {
	raw, _ := params.Extra["analyses"].([]model.ErrorAnalysisResult)

	analyses := make([]Analysis, 0, len(items))
	for i, item := range items {
		if i >= len(raw) {
			analyses = append(analyses, Analysis{Item: item})
			continue
		}
		a := raw[i]
		analyses = append(analyses, Analysis{
			Item:       item,
			Summary:    a.Analysis.RootCause,
			Confidence: a.Analysis.Confidence.Score(),
			TokensUsed: a.TokensUsed,
		})
	}
	return analyses
}

// Act projects actions already taken by the pipeline (issue/PR
// creation) back into the workflow's Action shape, enforcing the
// safe-output allowlist on each.
func (ErrorsWorkflow) Act(ctx context.Context, analyses []Analysis, params Params) []Action {
	raw, _ := params.Extra["actions_taken"].([]Action)
	actions := make([]Action, 0, len(raw))
	for _, a := range raw {
		if !CheckSafeOutput(ErrorsWorkflow{}, a.ActionType, nil) {
			continue
		}
		actions = append(actions, a)
	}
	return actions
}

func (ErrorsWorkflow) ReportSection(result Result) []goslack.Block {
	blocks := []goslack.Block{
		goslack.NewSectionBlock(goslack.NewTextBlockObject(goslack.MarkdownType,
			fmt.Sprintf("*Error Analysis* — %d errors analyzed", len(result.Analyses)), false, false), nil, nil),
	}
	limit := len(result.Analyses)
	if limit > 5 {
		limit = 5
	}
	for _, a := range result.Analyses[:limit] {
		summary := a.Summary
		if len(summary) > 100 {
			summary = summary[:100]
		}
		text := fmt.Sprintf("• %s: %s", a.Item.Title, summary)
		blocks = append(blocks, goslack.NewSectionBlock(goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false), nil, nil))
	}
	return blocks
}

func init() {
	DefaultRegistry.Register("errors", func() Workflow { return ErrorsWorkflow{} })
}
