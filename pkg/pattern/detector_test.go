package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightwatch-dev/nightwatch/pkg/model"
)

func analysisWith(errorClass, transaction string, filePaths ...string) model.ErrorAnalysisResult {
	var changes []model.FileChange
	for _, p := range filePaths {
		changes = append(changes, model.FileChange{Path: p, Action: model.FileActionModify})
	}
	return model.ErrorAnalysisResult{
		Error:    model.ErrorGroup{ErrorClass: errorClass, Transaction: transaction},
		Analysis: model.Analysis{FileChanges: changes},
	}
}

func TestDetectReturnsNilBelowMinClusterSize(t *testing.T) {
	analyses := []model.ErrorAnalysisResult{analysisWith("NoMethodError", "Controller/orders/show")}
	assert.Empty(t, Detect(analyses, 2))
}

func TestDetectModuleClusterFromFileChanges(t *testing.T) {
	analyses := []model.ErrorAnalysisResult{
		analysisWith("NoMethodError", "Controller/orders/show", "app/controllers/orders_controller.rb"),
		analysisWith("ArgumentError", "Controller/orders/update", "app/controllers/orders_controller.rb"),
	}
	patterns := Detect(analyses, 2)

	require.NotEmpty(t, patterns)
	found := false
	for _, p := range patterns {
		if p.PatternType == model.PatternSystemicIssue && p.Occurrences == 2 {
			found = true
		}
	}
	assert.True(t, found)
}

func TestDetectErrorClassClusterAcrossTransactions(t *testing.T) {
	analyses := []model.ErrorAnalysisResult{
		analysisWith("NoMethodError", "Controller/orders/show"),
		analysisWith("NoMethodError", "Controller/users/show"),
	}
	patterns := Detect(analyses, 2)

	require.NotEmpty(t, patterns)
	var recurring *model.DetectedPattern
	for i := range patterns {
		if patterns[i].PatternType == model.PatternRecurringError {
			recurring = &patterns[i]
		}
	}
	require.NotNil(t, recurring)
	assert.Equal(t, 2, recurring.Occurrences)
	assert.Equal(t, []string{"NoMethodError"}, recurring.ErrorClasses)
}

func TestDetectFileHotspot(t *testing.T) {
	analyses := []model.ErrorAnalysisResult{
		analysisWith("A", "tx1", "app/models/order.rb"),
		analysisWith("B", "tx2", "app/models/order.rb"),
	}
	patterns := Detect(analyses, 2)

	found := false
	for _, p := range patterns {
		if p.Title == "Hotspot: app/models/order.rb" {
			found = true
			assert.Equal(t, []string{"A", "B"}, p.ErrorClasses)
		}
	}
	assert.True(t, found)
}

func TestDetectSortsByOccurrencesDescending(t *testing.T) {
	analyses := []model.ErrorAnalysisResult{
		analysisWith("A", "Controller/x/show"),
		analysisWith("A", "Controller/x/update"),
		analysisWith("B", "Controller/y/show"),
		analysisWith("B", "Controller/y/update"),
		analysisWith("B", "Controller/y/create"),
	}
	patterns := Detect(analyses, 2)
	require.True(t, len(patterns) >= 2)
	for i := 1; i < len(patterns); i++ {
		assert.GreaterOrEqual(t, patterns[i-1].Occurrences, patterns[i].Occurrences)
	}
}

func TestTransactionToDirectoryMapsControllerTransactions(t *testing.T) {
	assert.Equal(t, "app/controllers/orders", transactionToDirectory("Controller/orders/update"))
	assert.Equal(t, "app/controllers/api/v2/products", transactionToDirectory("Controller/api/v2/products/index"))
	assert.Equal(t, "", transactionToDirectory("OtherTransaction/Rake/some_task"))
	assert.Equal(t, "", transactionToDirectory("WebTransaction/Sinatra/GET /health"))
}

type stubKnowledge struct{ counts map[string]int }

func (s stubKnowledge) SolutionCountByErrorClass(errorClass string) int { return s.counts[errorClass] }

func TestDetectWithKnowledgeAddsRecurringPattern(t *testing.T) {
	analyses := []model.ErrorAnalysisResult{
		analysisWith("NoMethodError", "Controller/orders/show"),
		analysisWith("ArgumentError", "Controller/users/show"),
	}
	kb := stubKnowledge{counts: map[string]int{"NoMethodError": 3}}

	patterns := DetectWithKnowledge(analyses, kb, 2)

	found := false
	for _, p := range patterns {
		if p.Title == "Recurring: NoMethodError" {
			found = true
			assert.Equal(t, 4, p.Occurrences)
		}
	}
	assert.True(t, found)
}

func TestDetectWithKnowledgeAddsTransientPattern(t *testing.T) {
	analyses := []model.ErrorAnalysisResult{
		{Error: model.ErrorGroup{ErrorClass: "Net::ReadTimeout", Message: "connection timeout"}},
		{Error: model.ErrorGroup{ErrorClass: "PG::Error", Message: "deadlock detected"}},
	}
	patterns := DetectWithKnowledge(analyses, nil, 2)

	found := false
	for _, p := range patterns {
		if p.PatternType == model.PatternTransientNoise {
			found = true
			assert.Equal(t, 2, p.Occurrences)
		}
	}
	assert.True(t, found)
}
