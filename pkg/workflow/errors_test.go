package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightwatch-dev/nightwatch/pkg/model"
)

func TestErrorsWorkflowFetchWrapsErrorGroups(t *testing.T) {
	w := ErrorsWorkflow{}
	params := Params{Extra: map[string]any{
		"errors": []model.ErrorGroup{
			{ErrorClass: "NoMethodError", Transaction: "Controller/Users/show"},
		},
	}}

	items, err := w.Fetch(context.Background(), params)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "NoMethodError in Controller/Users/show", items[0].Title)
}

func TestErrorsWorkflowFetchHandlesMissingExtra(t *testing.T) {
	w := ErrorsWorkflow{}
	items, err := w.Fetch(context.Background(), Params{})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestErrorsWorkflowFilterTruncatesToMaxItems(t *testing.T) {
	w := ErrorsWorkflow{}
	items := []Item{{ID: "1"}, {ID: "2"}, {ID: "3"}}
	filtered := w.Filter(items, Params{MaxItems: 2})
	assert.Len(t, filtered, 2)
}

func TestErrorsWorkflowAnalyzeProjectsConfidenceFromAnalyses(t *testing.T) {
	w := ErrorsWorkflow{}
	items := []Item{{ID: "1"}}
	params := Params{Extra: map[string]any{
		"analyses": []model.ErrorAnalysisResult{
			{Analysis: model.Analysis{RootCause: "nil pointer deref", Confidence: model.ConfidenceHigh}, TokensUsed: 42},
		},
	}}

	analyses := w.Analyze(context.Background(), items, params)
	require.Len(t, analyses, 1)
	assert.Equal(t, "nil pointer deref", analyses[0].Summary)
	assert.Equal(t, 42, analyses[0].TokensUsed)
	assert.Greater(t, analyses[0].Confidence, 0.0)
}

func TestErrorsWorkflowActFiltersUnauthorizedActions(t *testing.T) {
	w := ErrorsWorkflow{}
	params := Params{Extra: map[string]any{
		"actions_taken": []Action{
			{ActionType: SafeOutputCreateIssue, Target: "issue-1"},
			{ActionType: SafeOutputWriteFile, Target: "not-allowed"},
		},
	}}

	actions := w.Act(context.Background(), nil, params)
	require.Len(t, actions, 1)
	assert.Equal(t, SafeOutputCreateIssue, actions[0].ActionType)
}

func TestErrorsWorkflowReportSectionSummarizesAnalyses(t *testing.T) {
	w := ErrorsWorkflow{}
	result := Result{Analyses: []Analysis{
		{Item: Item{Title: "err one"}, Summary: "root cause one"},
	}}

	blocks := w.ReportSection(result)
	assert.NotEmpty(t, blocks)
}

func TestErrorsWorkflowIsRegisteredByDefault(t *testing.T) {
	workflows := DefaultRegistry.Enabled([]string{"errors"})
	require.Len(t, workflows, 1)
	assert.Equal(t, "errors", workflows[0].Name())
}
