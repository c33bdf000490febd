package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nightwatch-dev/nightwatch/pkg/agent"
	"github.com/nightwatch-dev/nightwatch/pkg/analysis"
	"github.com/nightwatch-dev/nightwatch/pkg/model"
	"github.com/nightwatch-dev/nightwatch/pkg/observability"
)

// recentMergeWindowHours bounds how far back correlation looks for
// recently merged PRs to compare against each error's likely files.
const recentMergeWindowHours = 48

// Pipeline drives one NightWatch run through its seven phases.
type Pipeline struct {
	deps *Deps
}

// New builds a Pipeline and registers its concrete agents into
// deps.Agents.
func New(deps *Deps) *Pipeline {
	RegisterAgents(deps)
	return &Pipeline{deps: deps}
}

// Execute runs one full pipeline pass: ingest, enrich, analyze,
// synthesize, report, act, learn. On a failure during the two critical
// phases (INGESTION, ANALYSIS) it falls back to a simpler direct run
// when Config.Pipeline.Fallback is set, matching the original's
// "never let a partial failure drop the whole run" behavior.
func (p *Pipeline) Execute(ctx context.Context, params RunParams) (model.RunReport, error) {
	d := p.deps
	log := d.logger()
	start := time.Now()
	sessionID := uuid.NewString()

	d.State.InitializeState(sessionID)
	defer func() {
		d.Bus.ClearSession(sessionID)
		d.State.RemoveState(sessionID)
	}()

	since := params.Since
	if since == "" {
		since = d.Config.Run.Since
	}

	report := model.RunReport{Timestamp: start, Lookback: since}

	errors, recentPRs, err := p.runIngestion(ctx, sessionID, since)
	if err != nil {
		log.Error("ingestion failed", "error", err)
		if d.Config.Pipeline.Fallback {
			return p.runLegacy(ctx, params)
		}
		return report, fmt.Errorf("pipeline: ingestion: %w", err)
	}
	report.TotalErrorsFound = len(errors)

	maxErrors := d.Config.Run.MaxErrors
	if maxErrors > 0 && len(errors) > maxErrors {
		report.ErrorsFiltered = len(errors) - maxErrors
		errors = errors[:maxErrors]
	}

	if len(errors) == 0 {
		d.State.Complete(sessionID)
		report.RunDurationSeconds = time.Since(start).Seconds()
		p.saveHistory(report)
		return report, nil
	}

	d.State.SetPhase(sessionID, model.PhaseEnrichment)
	runContext := model.NewRunContext()
	researchBySignature := p.runEnrichment(ctx, errors, recentPRs)

	d.State.SetPhase(sessionID, model.PhaseAnalysis)
	analyses, err := p.runAnalysis(ctx, errors, researchBySignature, runContext)
	if err != nil {
		log.Error("analysis phase failed", "error", err)
		if d.Config.Pipeline.Fallback {
			return p.runLegacy(ctx, params)
		}
		return report, fmt.Errorf("pipeline: analysis: %w", err)
	}
	report.ErrorsAnalyzed = len(analyses)
	report.Analyses = analyses

	d.State.SetPhase(sessionID, model.PhaseSynthesis)
	synthesis := p.runSynthesis(ctx, analyses)
	report.Patterns = synthesis.Patterns
	report.IgnoreSuggestions = synthesis.IgnoreSuggestions

	d.State.SetPhase(sessionID, model.PhaseReporting)
	p.runReporting(ctx, report)

	d.State.SetPhase(sessionID, model.PhaseAction)
	issues, pr := p.runAction(ctx, analyses, params.DryRun)
	report.IssuesCreated = issues
	report.PRCreated = pr
	if !params.DryRun && len(issues) > 0 && d.Chat != nil {
		if _, notifyErr := d.Chat.NotifyActions(ctx, issues, pr); notifyErr != nil {
			log.Error("follow-up notify failed", "error", notifyErr)
		}
	}

	d.State.SetPhase(sessionID, model.PhaseLearning)
	p.runLearning(ctx, analyses, synthesis, params.DryRun)

	for _, a := range analyses {
		report.TotalTokensUsed += a.TokensUsed
		report.TotalAPICalls += a.APICalls
		if a.PassCount > 1 {
			report.MultiPassRetries++
		}
	}

	d.State.Complete(sessionID)
	report.RunDurationSeconds = time.Since(start).Seconds()
	p.saveHistory(report)
	return report, nil
}

func (p *Pipeline) saveHistory(report model.RunReport) {
	if p.deps.Recorder != nil {
		p.deps.Recorder.SaveRun(report)
	}
}

// runIngestion fetches, filters, and ranks errors, then broadcasts
// ERRORS_READY on the bus. Also fetches the recent-merged-PR window
// used by every error's correlation step.
func (p *Pipeline) runIngestion(ctx context.Context, sessionID, since string) ([]model.ErrorGroup, []model.CorrelatedPR, error) {
	d := p.deps
	if d.Observability == nil {
		return nil, nil, fmt.Errorf("pipeline: no observability client configured")
	}

	raw, err := d.Observability.FetchErrors(ctx, since)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch errors: %w", err)
	}

	patterns := observability.LoadIgnorePatterns("ignore.yml", d.logger())
	filtered := observability.FilterErrors(raw, patterns, d.logger())
	ranked := observability.RankErrors(filtered, time.Now)

	var recentPRs []model.CorrelatedPR
	if d.CodeHost != nil {
		recentPRs, err = d.CodeHost.RecentMerged(ctx, recentMergeWindowHours)
		if err != nil {
			d.logger().Warn("could not fetch recently merged PRs", "error", err)
			recentPRs = nil
		}
	}

	d.Bus.Broadcast(model.AgentMessage{
		ID:        sessionID + "-errors-ready",
		Type:      MsgErrorsReady,
		Payload:   errorsReadyPayload{Errors: ranked},
		Timestamp: time.Now(),
		Priority:  model.PriorityHigh,
		SessionID: sessionID,
	})

	return ranked, recentPRs, nil
}

// runEnrichment pre-gathers research context for every error, keyed by
// error class + transaction, via the researcher agent.
func (p *Pipeline) runEnrichment(ctx context.Context, errors []model.ErrorGroup, recentPRs []model.CorrelatedPR) map[string]any {
	d := p.deps
	researcher, err := d.Agents.Create(AgentTypeResearcher)
	if err != nil {
		d.logger().Error("could not create researcher agent", "error", err)
		return nil
	}

	out := make(map[string]any, len(errors))
	for _, e := range errors {
		execCtx := &agent.Context{
			Error: e,
			Extra: map[string]any{extraRecentPRs: recentPRs},
		}
		result, _ := researcher.Execute(ctx, execCtx)
		if result != nil && result.Success {
			out[errorSignature(e)] = result.Output
		}
	}
	return out
}

func errorSignature(e model.ErrorGroup) string { return e.ErrorClass + "|" + e.Transaction }

// runAnalysis fans out over errors (bounded by Pipeline.MaxConcurrent)
// via the analyzer agent.
func (p *Pipeline) runAnalysis(ctx context.Context, errors []model.ErrorGroup, researchBySignature map[string]any, runContext *model.RunContext) ([]model.ErrorAnalysisResult, error) {
	d := p.deps
	analyzer, err := d.Agents.Create(AgentTypeAnalyzer)
	if err != nil {
		return nil, fmt.Errorf("create analyzer agent: %w", err)
	}

	results := fanOut(ctx, errors, d.Config.Pipeline.MaxConcurrent, func(ctx context.Context, _ int, e model.ErrorGroup) model.ErrorAnalysisResult {
		extra := map[string]any{}
		if rc, ok := researchBySignature[errorSignature(e)]; ok {
			extra[extraResearch] = rc
		}
		result, execErr := analyzer.Execute(ctx, &agent.Context{Error: e, RunContext: runContext, Extra: extra})
		if execErr != nil || result == nil || !result.Success {
			d.logger().Warn("analysis failed for error", "error_class", e.ErrorClass, "transaction", e.Transaction)
			return model.ErrorAnalysisResult{Error: e}
		}
		analysisResult, _ := result.Output.(model.ErrorAnalysisResult)
		analysisResult.QualityScore = analysis.QualityScore(analysisResult.Analysis)
		if d.Config.Analysis.RunContextEnabled && runContext != nil {
			runContext.RecordAnalysis(e.ErrorClass, e.Transaction, analysisResult.Analysis.RootCause)
		}
		return analysisResult
	})

	return results, nil
}

// runSynthesis detects cross-error patterns and ignore candidates, once
// per run.
func (p *Pipeline) runSynthesis(ctx context.Context, analyses []model.ErrorAnalysisResult) synthesisOutput {
	d := p.deps
	detector, err := d.Agents.Create(AgentTypePatternDetector)
	if err != nil {
		d.logger().Error("could not create pattern detector agent", "error", err)
		return synthesisOutput{}
	}
	result, _ := detector.Execute(ctx, &agent.Context{Extra: map[string]any{extraAnalyses: analyses}})
	if result == nil || !result.Success {
		return synthesisOutput{}
	}
	out, _ := result.Output.(synthesisOutput)
	return out
}

// runReporting sends the run summary, once per run.
func (p *Pipeline) runReporting(ctx context.Context, report model.RunReport) {
	d := p.deps
	reporter, err := d.Agents.Create(AgentTypeReporter)
	if err != nil {
		d.logger().Error("could not create reporter agent", "error", err)
		return
	}
	if _, execErr := reporter.Execute(ctx, &agent.Context{Extra: map[string]any{extraRunReport: report}}); execErr != nil {
		d.logger().Error("reporting failed", "error", execErr)
	}
}

// runAction validates and, for confident fixes, creates issues/PRs for
// every analysis, bounded by the same concurrency cap as ANALYSIS.
func (p *Pipeline) runAction(ctx context.Context, analyses []model.ErrorAnalysisResult, dryRun bool) ([]model.CreatedIssueResult, *model.CreatedPRResult) {
	d := p.deps
	validator, err := d.Agents.Create(AgentTypeValidator)
	if err != nil {
		d.logger().Error("could not create validator agent", "error", err)
		return nil, nil
	}

	maxIssues := d.Config.Run.MaxIssues
	outcomes := fanOut(ctx, analyses, d.Config.Pipeline.MaxConcurrent, func(ctx context.Context, _ int, a model.ErrorAnalysisResult) actionOutcome {
		result, execErr := validator.Execute(ctx, &agent.Context{
			Error: a.Error, Traces: a.Traces,
			Extra: map[string]any{extraActionItem: a, extraDryRun: dryRun},
		})
		if execErr != nil || result == nil || !result.Success {
			return actionOutcome{}
		}
		outcome, _ := result.Output.(actionOutcome)
		return outcome
	})

	var issues []model.CreatedIssueResult
	var pr *model.CreatedPRResult
	for _, o := range outcomes {
		if o.Issue != nil && (maxIssues <= 0 || len(issues) < maxIssues) {
			issues = append(issues, *o.Issue)
		}
		if o.PR != nil && pr == nil {
			pr = o.PR
		}
	}
	return issues, pr
}

// runLearning compounds confident analyses into the knowledge store,
// saves detected patterns, and rebuilds the index. Skipped entirely
// under dry-run or when compounding is disabled, matching the original's
// "never write durable knowledge from a dry run" invariant.
func (p *Pipeline) runLearning(ctx context.Context, analyses []model.ErrorAnalysisResult, synthesis synthesisOutput, dryRun bool) {
	d := p.deps
	if d.Knowledge == nil || dryRun || !d.Config.Knowledge.CompoundEnabled {
		return
	}

	for _, a := range analyses {
		if a.QualityScore < 0.7 {
			continue
		}
		if _, err := d.Knowledge.CompoundResult(a); err != nil {
			d.logger().Warn("could not compound analysis", "error", err)
		}
	}
	for _, pat := range synthesis.Patterns {
		if _, err := d.Knowledge.SaveDetectedPattern(pat); err != nil {
			d.logger().Warn("could not save detected pattern", "error", err)
		}
	}
	if err := d.Knowledge.RebuildIndex(); err != nil {
		d.logger().Warn("could not rebuild knowledge index", "error", err)
	}
}
