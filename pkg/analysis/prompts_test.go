package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nightwatch-dev/nightwatch/pkg/model"
)

func TestBuildAnalysisPromptIncludesErrorHeader(t *testing.T) {
	err := model.ErrorGroup{ErrorClass: "NoMethodError", Transaction: "UsersController#show", Message: "undefined method", Occurrences: 12}
	prompt := BuildAnalysisPrompt(err, "trace summary", nil, nil, nil, "")
	assert.Contains(t, prompt, "NoMethodError")
	assert.Contains(t, prompt, "UsersController#show")
	assert.Contains(t, prompt, "trace summary")
	assert.Contains(t, prompt, "12")
}

func TestBuildAnalysisPromptIncludesPriorKnowledge(t *testing.T) {
	prior := []model.PriorAnalysis{{ErrorClass: "X", Transaction: "Y", RootCause: "cause", FixConfidence: "high", HasFix: true, Summary: "summary", MatchScore: 0.8}}
	prompt := BuildAnalysisPrompt(model.ErrorGroup{}, "", prior, nil, nil, "")
	assert.Contains(t, prompt, "Prior Knowledge")
	assert.Contains(t, prompt, "80%")
}

func TestBuildAnalysisPromptIncludesCorrelatedPRs(t *testing.T) {
	prs := []model.CorrelatedPR{{Number: 42, Title: "Fix auth bug", MergedAt: "2026-07-01", ChangedFiles: []string{"a.rb", "b.rb"}, OverlapScore: 0.5}}
	prompt := BuildAnalysisPrompt(model.ErrorGroup{}, "", nil, nil, prs, "")
	assert.Contains(t, prompt, "PR #42")
	assert.Contains(t, prompt, "Fix auth bug")
}

func TestSummarizeTracesNoDataAvailable(t *testing.T) {
	assert.Equal(t, "No trace data available.", SummarizeTraces(model.TraceData{}, 3))
}

func TestSummarizeTracesIncludesTransactionErrors(t *testing.T) {
	traces := model.TraceData{
		TransactionErrors: []map[string]any{
			{"error.class": "NoMethodError", "error.message": "oops", "transactionName": "X", "path": "/a", "host": "h1"},
		},
	}
	summary := SummarizeTraces(traces, 3)
	assert.Contains(t, summary, "NoMethodError")
	assert.Contains(t, summary, "/a")
}

func TestToolsReturnsFourSchemas(t *testing.T) {
	assert.Len(t, Tools(), 4)
}
