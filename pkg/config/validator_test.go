package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAllAcceptsDefaults(t *testing.T) {
	assert.NoError(t, NewValidator(Defaults()).ValidateAll())
}

func TestValidateRunRejectsZeroMaxErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Run.MaxErrors = 0
	assert.Error(t, NewValidator(cfg).ValidateAll())
}

func TestValidateAnalysisRejectsEmptyModel(t *testing.T) {
	cfg := Defaults()
	cfg.Analysis.Model = ""
	assert.Error(t, NewValidator(cfg).ValidateAll())
}

func TestValidateAnalysisRejectsMaxPassesZeroWhenMultiPassEnabled(t *testing.T) {
	cfg := Defaults()
	cfg.Analysis.MultiPassEnabled = true
	cfg.Analysis.MaxPasses = 0
	assert.Error(t, NewValidator(cfg).ValidateAll())
}

func TestValidateQualityRejectsUnknownConfidence(t *testing.T) {
	cfg := Defaults()
	cfg.Quality.MinConfidence = "extreme"
	assert.Error(t, NewValidator(cfg).ValidateAll())
}

func TestCheckCapabilitiesReportsMissingCredentials(t *testing.T) {
	cfg := Defaults()
	results := NewValidator(cfg).CheckCapabilities()
	for _, r := range results {
		assert.False(t, r.OK, "capability %s should be missing credentials", r.Name)
		assert.Error(t, r.Err)
	}
}

func TestCheckCapabilitiesReportsPresentCredentials(t *testing.T) {
	cfg := Defaults()
	cfg.Credentials = Credentials{
		AnthropicAPIKey: "sk-x",
		GitHubToken:     "ghp-x",
		GitHubRepo:      "org/repo",
		NewRelicAPIKey:  "nr-x",
		NewRelicAccount: "123",
		SlackBotToken:   "xoxb-x",
		SlackNotifyUser: "alice",
	}
	results := NewValidator(cfg).CheckCapabilities()
	for _, r := range results {
		assert.True(t, r.OK, "capability %s should be satisfied", r.Name)
		assert.NoError(t, r.Err)
	}
}
