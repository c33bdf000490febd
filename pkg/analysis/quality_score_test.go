package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nightwatch-dev/nightwatch/pkg/model"
)

func TestQualityScoreHighConfidenceWithFixAndChanges(t *testing.T) {
	a := model.Analysis{
		Confidence:         model.ConfidenceHigh,
		HasFix:             true,
		FileChanges:        []model.FileChange{{Path: "a.rb"}},
		RootCause:          "nil pointer in user lookup due to missing association",
		Reasoning:          string(make([]byte, 250)),
		SuggestedNextSteps: []string{"a", "b", "c"},
	}
	score := QualityScore(a)
	assert.InDelta(t, 0.95, score, 0.01)
}

func TestQualityScoreLowConfidenceNoFix(t *testing.T) {
	a := model.Analysis{Confidence: model.ConfidenceLow, HasFix: false, RootCause: "Unknown"}
	score := QualityScore(a)
	assert.InDelta(t, 0.15, score, 0.01)
}

func TestQualityScoreFixWithoutFileChangesGetsPartialCredit(t *testing.T) {
	a := model.Analysis{Confidence: model.ConfidenceMedium, HasFix: true}
	score := QualityScore(a)
	assert.InDelta(t, 0.5*0.6+0.10, score, 0.01)
}

func TestQualityScoreClampedToOne(t *testing.T) {
	a := model.Analysis{
		Confidence:         model.ConfidenceHigh,
		HasFix:             true,
		FileChanges:        []model.FileChange{{Path: "a.rb"}},
		RootCause:          "a very long and specific root cause description",
		Reasoning:          string(make([]byte, 1000)),
		SuggestedNextSteps: []string{"a", "b", "c", "d", "e"},
	}
	assert.LessOrEqual(t, QualityScore(a), 1.0)
}
