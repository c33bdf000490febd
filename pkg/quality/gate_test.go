package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nightwatch-dev/nightwatch/pkg/model"
)

func validAnalysis() model.Analysis {
	return model.Analysis{
		RootCause:  "nil user lookup in the controller before rendering the view",
		Reasoning:  "the controller looks up a user by id but does not guard against a missing record, so calling a method on nil raises",
		Confidence: model.ConfidenceHigh,
		HasFix:     true,
		FileChanges: []model.FileChange{
			{Path: "app/controllers/users_controller.rb", Action: model.FileActionModify, Content: "def show\n  @user = User.find_by(id: params[:id])\nend"},
		},
	}
}

func TestRunAcceptsValidAnalysis(t *testing.T) {
	result := Run(validAnalysis(), Config{MinConfidence: model.ConfidenceLow, MaxFiles: 5})
	assert.True(t, result.Valid)
	assert.Empty(t, result.BlockingErrors)
}

func TestRunRejectsAbsolutePath(t *testing.T) {
	a := validAnalysis()
	a.FileChanges[0].Path = "/etc/passwd"
	result := Run(a, Config{MinConfidence: model.ConfidenceLow})
	assert.False(t, result.Valid)
}

func TestRunRejectsPathTraversal(t *testing.T) {
	a := validAnalysis()
	a.FileChanges[0].Path = "../../etc/passwd"
	result := Run(a, Config{MinConfidence: model.ConfidenceLow})
	assert.False(t, result.Valid)
}

func TestRunShortCircuitsOnPathSafetyFailure(t *testing.T) {
	a := validAnalysis()
	a.FileChanges[0].Path = "/etc/passwd"
	a.FileChanges[0].Content = ""
	result := Run(a, Config{MinConfidence: model.ConfidenceLow})
	assert.Len(t, result.BlockingErrors, 1)
	assert.Equal(t, "path_safety", result.BlockingErrors[0].Layer)
}

func TestRunRejectsEmptyContentOnModify(t *testing.T) {
	a := validAnalysis()
	a.FileChanges[0].Content = "   "
	result := Run(a, Config{MinConfidence: model.ConfidenceLow})
	assert.False(t, result.Valid)
}

func TestRunWarnsOnShortModifyContent(t *testing.T) {
	a := validAnalysis()
	a.FileChanges[0].Content = "x = 1"
	result := Run(a, Config{MinConfidence: model.ConfidenceLow})
	assert.True(t, result.Valid)
	assert.NotEmpty(t, result.Warnings)
}

func TestRunRejectsUnbalancedRubyBlocks(t *testing.T) {
	a := validAnalysis()
	a.FileChanges[0].Content = "def show\ndef other\ndef third\ndef fourth\nend"
	result := Run(a, Config{MinConfidence: model.ConfidenceLow})
	assert.False(t, result.Valid)
}

func TestRunAllowsBalancedRubyBlocks(t *testing.T) {
	a := validAnalysis()
	a.FileChanges[0].Content = "def show\n  @user = User.find(params[:id])\nend"
	result := Run(a, Config{MinConfidence: model.ConfidenceLow})
	assert.True(t, result.Valid)
}

func TestRunWarnsWhenFileCountExceedsFive(t *testing.T) {
	a := validAnalysis()
	for i := 0; i < 5; i++ {
		a.FileChanges = append(a.FileChanges, model.FileChange{Path: "app/models/x.rb", Action: model.FileActionModify, Content: "class X\nend"})
	}
	result := Run(a, Config{MinConfidence: model.ConfidenceLow, MaxFiles: 10})
	assert.Contains(t, findingMessages(result.Warnings), "more than 5 files changed")
}

func TestRunWarnsWhenNoDirectoryMentioned(t *testing.T) {
	a := validAnalysis()
	a.RootCause = "something unrelated entirely"
	a.Reasoning = "completely unrelated reasoning text"
	result := Run(a, Config{MinConfidence: model.ConfidenceLow})
	found := false
	for _, w := range result.Warnings {
		if w.Layer == "semantic" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestRunRejectsBelowMinimumConfidence(t *testing.T) {
	a := validAnalysis()
	a.Confidence = model.ConfidenceLow
	result := Run(a, Config{MinConfidence: model.ConfidenceHigh})
	assert.False(t, result.Valid)
}

func TestRunRejectsEmptyRootCause(t *testing.T) {
	a := validAnalysis()
	a.RootCause = ""
	result := Run(a, Config{MinConfidence: model.ConfidenceLow})
	assert.False(t, result.Valid)
}

func findingMessages(findings []Finding) []string {
	msgs := make([]string, len(findings))
	for i, f := range findings {
		msgs[i] = f.Message
	}
	return msgs
}
