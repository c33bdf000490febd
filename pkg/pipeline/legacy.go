package pipeline

import (
	"context"
	"time"

	"github.com/nightwatch-dev/nightwatch/pkg/analysis"
	"github.com/nightwatch-dev/nightwatch/pkg/model"
	"github.com/nightwatch-dev/nightwatch/pkg/observability"
	"github.com/nightwatch-dev/nightwatch/pkg/research"
)

// runLegacy is the fallback path the phased pipeline drops to when
// INGESTION or ANALYSIS fails and Config.Pipeline.Fallback is set: a
// direct, unphased ingest-then-analyze-then-report sequence with no
// bus, no state snapshots, and no agent registry indirection. Errors are
// analyzed one at a time and every result, including a failed one, goes
// into the report; a fetch failure ends the run with an empty report.
func (p *Pipeline) runLegacy(ctx context.Context, params RunParams) (model.RunReport, error) {
	d := p.deps
	log := d.logger()
	start := time.Now()

	since := params.Since
	if since == "" {
		since = d.Config.Run.Since
	}
	report := model.RunReport{Timestamp: start, Lookback: since}

	if d.Observability == nil {
		report.RunDurationSeconds = time.Since(start).Seconds()
		return report, nil
	}

	raw, err := d.Observability.FetchErrors(ctx, since)
	if err != nil {
		log.Error("legacy fallback: fetch errors failed", "error", err)
		report.RunDurationSeconds = time.Since(start).Seconds()
		return report, nil
	}

	patterns := observability.LoadIgnorePatterns("ignore.yml", log)
	filtered := observability.FilterErrors(raw, patterns, log)
	ranked := observability.RankErrors(filtered, time.Now)
	report.TotalErrorsFound = len(ranked)

	maxErrors := d.Config.Run.MaxErrors
	if maxErrors > 0 && len(ranked) > maxErrors {
		report.ErrorsFiltered = len(ranked) - maxErrors
		ranked = ranked[:maxErrors]
	}

	var recentPRs []model.CorrelatedPR
	if d.CodeHost != nil {
		if prs, prErr := d.CodeHost.RecentMerged(ctx, recentMergeWindowHours); prErr == nil {
			recentPRs = prs
		}
	}

	var analyses []model.ErrorAnalysisResult
	for _, e := range ranked {
		var prior []model.PriorAnalysis
		if d.Knowledge != nil {
			prior = d.Knowledge.SearchPriorKnowledge(e, 3)
		}
		correlated := research.CorrelateWithPRs(e, recentPRs)

		traces := model.TraceData{}
		if d.Observability != nil {
			if t, tErr := d.Observability.FetchTraces(ctx, e, since); tErr == nil {
				traces = t
			}
		}
		rc := research.Research(ctx, log, e, traces, d.CodeHost, correlated, prior)

		result := analysis.Run(ctx, log, analysis.Input{
			Error:                e,
			Traces:               traces,
			Reader:               d.CodeHost,
			Provider:             d.Provider,
			PriorAnalyses:        rc.PriorAnalyses,
			FilePreviews:         rc.FilePreviews,
			CorrelatedPRs:        rc.CorrelatedPRs,
			Model:                d.Config.Analysis.Model,
			MaxIterationsCeiling: d.Config.Analysis.MaxIterations,
			TokenCeiling:         d.Config.Budgets.TokenBudgetPerError,
			ContextEditing:       d.Config.Analysis.ContextEditing,
		})
		result.QualityScore = analysis.QualityScore(result.Analysis)
		analyses = append(analyses, result)
	}

	report.ErrorsAnalyzed = len(analyses)
	report.Analyses = analyses
	for _, a := range analyses {
		report.TotalTokensUsed += a.TokensUsed
		report.TotalAPICalls += a.APICalls
	}

	if d.Chat != nil {
		if _, err := d.Chat.NotifySummary(ctx, report); err != nil {
			log.Error("legacy fallback: notify failed", "error", err)
		}
	}

	report.RunDurationSeconds = time.Since(start).Seconds()
	p.saveHistory(report)
	return report, nil
}
