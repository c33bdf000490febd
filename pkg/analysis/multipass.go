package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nightwatch-dev/nightwatch/pkg/model"
)

// MultiPassConfig controls the §4.4.4 retry-on-low-confidence pass.
type MultiPassConfig struct {
	Enabled   bool
	MaxPasses int
}

// RunWithMultiPass runs Input through Run once, and again with a seeded
// second pass when the first pass's confidence is low, multi-pass is
// enabled, and MaxPasses > 1. Cost (tokens, api_calls, iterations)
// always accumulates across both passes. The second pass's Analysis is
// kept unless its confidence ranks strictly below the first's (a tie
// keeps the second); the discarded Analysis's cost is still counted.
func RunWithMultiPass(ctx context.Context, log *slog.Logger, in Input, cfg MultiPassConfig) model.ErrorAnalysisResult {
	first := Run(ctx, log, in)

	if !cfg.Enabled || cfg.MaxPasses <= 1 || first.Analysis.Confidence != model.ConfidenceLow {
		first.PassCount = 1
		return first
	}

	seed := buildSecondPassSeed(first.Analysis, in.SeedContext)
	secondIn := in
	secondIn.SeedContext = seed

	second := Run(ctx, log, secondIn)

	accumulated := model.ErrorAnalysisResult{
		Error:      in.Error,
		Traces:     in.Traces,
		Iterations: first.Iterations + second.Iterations,
		TokensUsed: first.TokensUsed + second.TokensUsed,
		APICalls:   first.APICalls + second.APICalls,
		PassCount:  2,
	}

	if second.Analysis.Confidence.Rank() < first.Analysis.Confidence.Rank() {
		accumulated.Analysis = first.Analysis
	} else {
		accumulated.Analysis = second.Analysis
	}
	return accumulated
}

func buildSecondPassSeed(prior model.Analysis, originalSeed string) string {
	var b strings.Builder
	b.WriteString("## Previous Pass Findings\n\n")
	fmt.Fprintf(&b, "- **Root cause hypothesis**: %s\n", prior.RootCause)
	fmt.Fprintf(&b, "- **Reasoning so far**: %s\n", truncate(prior.Reasoning, 500))

	if len(prior.FileChanges) > 0 {
		b.WriteString("- **Files examined**:\n")
		n := len(prior.FileChanges)
		if n > 5 {
			n = 5
		}
		for _, fc := range prior.FileChanges[:n] {
			fmt.Fprintf(&b, "  - %s\n", fc.Path)
		}
	}

	if len(prior.SuggestedNextSteps) > 0 {
		b.WriteString("- **Next steps suggested**:\n")
		n := len(prior.SuggestedNextSteps)
		if n > 3 {
			n = 3
		}
		for _, step := range prior.SuggestedNextSteps[:n] {
			fmt.Fprintf(&b, "  - %s\n", step)
		}
	}

	b.WriteString("\nThe previous pass was low confidence. Investigate more deeply before concluding.")

	if originalSeed != "" {
		b.WriteString("\n\n" + originalSeed)
	}
	return b.String()
}
