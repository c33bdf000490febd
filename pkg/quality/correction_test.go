package quality

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightwatch-dev/nightwatch/pkg/capability"
	"github.com/nightwatch-dev/nightwatch/pkg/model"
)

type stubProvider struct {
	resp capability.MessageResponse
	err  error
}

func (p *stubProvider) CreateMessage(ctx context.Context, req capability.MessageRequest) (capability.MessageResponse, error) {
	return p.resp, p.err
}
func (p *stubProvider) SubmitBatch(ctx context.Context, r []capability.BatchRequest) (string, error) {
	return "", nil
}
func (p *stubProvider) RetrieveBatch(ctx context.Context, id string) (capability.BatchStatus, error) {
	return capability.BatchStatus{}, nil
}
func (p *stubProvider) BatchResults(ctx context.Context, id string) ([]capability.BatchResult, error) {
	return nil, nil
}

func TestCorrectorAcceptsCorrectedAnalysisThatPassesGate(t *testing.T) {
	correctedJSON := `{"title":"fixed","reasoning":"this controller lookup now guards against a missing user record before rendering","root_cause":"nil user lookup guarded now","has_fix":true,"confidence":"high","file_changes":[{"path":"app/controllers/users_controller.rb","action":"modify","content":"def show\n  @user = User.find_by(id: params[:id])\n  return head :not_found unless @user\nend"}]}`
	provider := &stubProvider{resp: capability.MessageResponse{
		Content: []capability.ContentBlock{{Kind: capability.ContentText, Text: correctedJSON}},
	}}
	c := &Corrector{Provider: provider, Model: "test-model"}

	original := validAnalysis()
	original.FileChanges[0].Content = ""
	gateResult := Run(original, Config{MinConfidence: model.ConfidenceLow})
	require.False(t, gateResult.Valid)

	corrected, ok, err := c.Correct(context.Background(), original, gateResult, Config{MinConfidence: model.ConfidenceLow})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "fixed", corrected.Title)
}

func TestCorrectorReportsFailureWhenCorrectionStillInvalid(t *testing.T) {
	stillBad := `{"title":"still bad","reasoning":"short","root_cause":"x","has_fix":true,"confidence":"low","file_changes":[{"path":"a.rb","action":"modify","content":""}]}`
	provider := &stubProvider{resp: capability.MessageResponse{
		Content: []capability.ContentBlock{{Kind: capability.ContentText, Text: stillBad}},
	}}
	c := &Corrector{Provider: provider, Model: "test-model"}

	_, ok, err := c.Correct(context.Background(), validAnalysis(), Result{}, Config{MinConfidence: model.ConfidenceHigh})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCorrectorPropagatesProviderError(t *testing.T) {
	provider := &stubProvider{err: assert.AnError}
	c := &Corrector{Provider: provider, Model: "test-model"}
	_, _, err := c.Correct(context.Background(), validAnalysis(), Result{}, Config{})
	assert.Error(t, err)
}
