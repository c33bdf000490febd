package analysis

import "github.com/nightwatch-dev/nightwatch/pkg/model"

// QualityScore computes the post-pass quality score (§4.4.5),
// clamped to [0,1].
func QualityScore(a model.Analysis) float64 {
	score := 0.5 * a.Confidence.Score()

	if a.HasFix {
		if len(a.FileChanges) > 0 {
			score += 0.20
		} else {
			score += 0.10
		}
	}

	if len(a.RootCause) > 20 && a.RootCause != "Unknown" {
		score += 0.15
	}

	if len(a.Reasoning) > 200 {
		score += 0.10
	}

	steps := len(a.SuggestedNextSteps)
	ratio := float64(steps) / 3.0
	if ratio > 1 {
		ratio = 1
	}
	score += 0.05 * ratio

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
