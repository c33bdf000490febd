package quality

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nightwatch-dev/nightwatch/pkg/capability"
	"github.com/nightwatch-dev/nightwatch/pkg/model"
)

// Corrector re-prompts the LLM with a failing gate's errors so it can
// amend its own file changes. One attempt only — a second gate failure
// is final.
type Corrector struct {
	Provider capability.LLMProvider
	Model    string
}

// Correct re-prompts the model with the blocking errors from result
// and the current analysis, parses the corrected Analysis, and
// re-runs the gate. When correction succeeds the returned Analysis is
// the corrected one; ok reports whether the corrected analysis passed.
func (c *Corrector) Correct(ctx context.Context, a model.Analysis, result Result, cfg Config) (corrected model.Analysis, ok bool, err error) {
	prompt := buildCorrectionPrompt(a, result)

	resp, err := c.Provider.CreateMessage(ctx, capability.MessageRequest{
		Model:     c.Model,
		MaxTokens: 8192,
		System:    "You are correcting a prior analysis that failed validation. Return only the corrected JSON analysis object.",
		Messages: []capability.ConversationMessage{
			{Role: "user", Content: []capability.ContentBlock{{Kind: capability.ContentText, Text: prompt}}},
		},
	})
	if err != nil {
		return model.Analysis{}, false, err
	}

	corrected, parseErr := parseCorrectedAnalysis(resp)
	if parseErr != nil {
		return model.Analysis{}, false, parseErr
	}

	rerun := Run(corrected, cfg)
	return corrected, rerun.Valid, nil
}

func buildCorrectionPrompt(a model.Analysis, result Result) string {
	var b strings.Builder
	b.WriteString("Your previous analysis failed validation. Fix the issues below and return the corrected analysis as JSON with the same schema (title, reasoning, root_cause, has_fix, confidence, file_changes, suggested_next_steps).\n\n")
	b.WriteString("## Validation Errors\n")
	for _, f := range result.BlockingErrors {
		if f.Path != "" {
			fmt.Fprintf(&b, "- [%s] %s: %s\n", f.Layer, f.Path, f.Message)
		} else {
			fmt.Fprintf(&b, "- [%s] %s\n", f.Layer, f.Message)
		}
	}

	raw, _ := json.MarshalIndent(a, "", "  ")
	fmt.Fprintf(&b, "\n## Current Analysis\n```json\n%s\n```\n", raw)
	return b.String()
}

func parseCorrectedAnalysis(resp capability.MessageResponse) (model.Analysis, error) {
	var text strings.Builder
	for _, block := range resp.Content {
		if block.Kind == capability.ContentText {
			text.WriteString(block.Text)
		}
	}
	raw := text.String()

	jsonStr := raw
	if start := strings.Index(raw, "```json"); start != -1 {
		if end := strings.Index(raw[start+7:], "```"); end != -1 {
			jsonStr = strings.TrimSpace(raw[start+7 : start+7+end])
		}
	}

	var a model.Analysis
	if err := json.Unmarshal([]byte(jsonStr), &a); err != nil {
		return model.Analysis{}, fmt.Errorf("quality: corrected analysis did not parse as JSON: %w", err)
	}
	return a, nil
}
