package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfidenceRankOrdering(t *testing.T) {
	assert.Less(t, ConfidenceLow.Rank(), ConfidenceMedium.Rank())
	assert.Less(t, ConfidenceMedium.Rank(), ConfidenceHigh.Rank())
}

func TestConfidenceScore(t *testing.T) {
	assert.Equal(t, 0.9, ConfidenceHigh.Score())
	assert.Equal(t, 0.6, ConfidenceMedium.Score())
	assert.Equal(t, 0.3, ConfidenceLow.Score())
	assert.Equal(t, 0.5, Confidence("unknown").Score())
}

func TestRunReportFixesFoundAndHighConfidence(t *testing.T) {
	report := RunReport{
		Analyses: []ErrorAnalysisResult{
			{Analysis: Analysis{HasFix: true, Confidence: ConfidenceHigh}},
			{Analysis: Analysis{HasFix: true, Confidence: ConfidenceLow}},
			{Analysis: Analysis{HasFix: false, Confidence: ConfidenceHigh}},
		},
	}
	assert.Equal(t, 2, report.FixesFound())
	assert.Equal(t, 1, report.HighConfidence())
}

func TestIgnoreSuggestionKeyUniqueness(t *testing.T) {
	a := IgnoreSuggestion{Match: MatchExact, Pattern: "Foo::Error"}
	b := IgnoreSuggestion{Match: MatchExact, Pattern: "Foo::Error"}
	c := IgnoreSuggestion{Match: MatchContains, Pattern: "Foo::Error"}
	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
}

func TestValidateAnalysisRejectsEmptyContentWithFix(t *testing.T) {
	a := Analysis{
		HasFix: true,
		FileChanges: []FileChange{
			{Path: "app/models/user.rb", Action: FileActionModify, Content: ""},
		},
	}
	assert.Error(t, ValidateAnalysis(a))
}

func TestValidateAnalysisAcceptsDeleteWithoutContent(t *testing.T) {
	a := Analysis{
		HasFix: true,
		FileChanges: []FileChange{
			{Path: "app/models/user.rb", Action: FileActionDelete},
		},
	}
	assert.NoError(t, ValidateAnalysis(a))
}

func TestValidateAnalysisSkippedWhenNoFix(t *testing.T) {
	a := Analysis{HasFix: false}
	assert.NoError(t, ValidateAnalysis(a))
}

func TestRunContextToPromptSectionEmpty(t *testing.T) {
	rc := NewRunContext()
	assert.Equal(t, "", rc.ToPromptSection(1000))
}

func TestRunContextRecordAnalysisAndFile(t *testing.T) {
	rc := NewRunContext()
	rc.RecordAnalysis("NoMethodError", "UsersController#show", "nil user lookup")
	rc.RecordFile("app/controllers/users_controller.rb", "renders show action")

	section := rc.ToPromptSection(1000)
	assert.Contains(t, section, "NoMethodError in UsersController#show")
	assert.Contains(t, section, "nil user lookup")
	assert.Contains(t, section, "app/controllers/users_controller.rb")
	assert.Contains(t, section, "renders show action")
}

func TestRunContextToPromptSectionShowsOnlyLastN(t *testing.T) {
	rc := NewRunContext()
	for i := 0; i < 8; i++ {
		rc.RecordAnalysis("Error", "tx", "summary")
	}
	for i := 0; i < 15; i++ {
		rc.RecordFile(string(rune('a'+i))+".rb", "summary")
	}

	section := rc.ToPromptSection(100000)
	assert.Equal(t, 5, strings.Count(section, "Error in tx"))
	assert.Equal(t, 10, strings.Count(section, ".rb`:"))
}

func TestRunContextToPromptSectionTruncatesAtMaxChars(t *testing.T) {
	rc := NewRunContext()
	rc.RecordAnalysis("Error", "tx", "a long summary describing the root cause in detail")
	section := rc.ToPromptSection(40)
	assert.LessOrEqual(t, len(section), 40+len("\n\n[...truncated]"))
	assert.Contains(t, section, "[...truncated]")
}
