package pipeline

import (
	"context"

	"github.com/nightwatch-dev/nightwatch/pkg/agent"
	"github.com/nightwatch-dev/nightwatch/pkg/analysis"
	"github.com/nightwatch-dev/nightwatch/pkg/capability"
	"github.com/nightwatch-dev/nightwatch/pkg/config"
	"github.com/nightwatch-dev/nightwatch/pkg/knowledge"
	"github.com/nightwatch-dev/nightwatch/pkg/model"
	"github.com/nightwatch-dev/nightwatch/pkg/pattern"
	"github.com/nightwatch-dev/nightwatch/pkg/quality"
	"github.com/nightwatch-dev/nightwatch/pkg/research"
)

// Agent type tags registered into the shared agent.Registry. Named after
// the platform's fixed pipeline roles (error-analyzer, pattern-detector,
// researcher, validator, reporter).
const (
	AgentTypeResearcher      = "researcher"
	AgentTypeAnalyzer        = "analyzer"
	AgentTypePatternDetector = "pattern_detector"
	AgentTypeValidator       = "validator"
	AgentTypeReporter        = "reporter"
)

// RegisterAgents wires every concrete agent's constructor into
// deps.Agents, closing over the capabilities each role needs. Factories
// share deps' long-lived adapters; BaseAgent gives each instance its own
// status machine.
func RegisterAgents(deps *Deps) {
	log := deps.logger()

	deps.Agents.Register(AgentTypeResearcher, func() agent.Agent {
		return &researcherAgent{
			BaseAgent: agent.NewBaseAgent(agent.Config{Name: AgentTypeResearcher, TimeoutSeconds: 30}, log),
			reader:    deps.CodeHost,
			kb:        deps.Knowledge,
		}
	})

	deps.Agents.Register(AgentTypeAnalyzer, func() agent.Agent {
		return &analyzerAgent{
			BaseAgent: agent.NewBaseAgent(agent.Config{
				Name:           AgentTypeAnalyzer,
				TimeoutSeconds: 300,
				Model:          deps.Config.Analysis.Model,
				ThinkingBudget: deps.Config.Analysis.ThinkingBudget,
				MaxIterations:  deps.Config.Analysis.MaxIterations,
			}, log),
			reader:   deps.CodeHost,
			provider: deps.Provider,
			cfg:      deps.Config.Analysis,
			budget:   deps.Config.Budgets.TokenBudgetPerError,
		}
	})

	deps.Agents.Register(AgentTypePatternDetector, func() agent.Agent {
		var kb pattern.KnowledgeLookup
		if deps.Knowledge != nil {
			kb = deps.Knowledge
		}
		return &patternAgent{
			BaseAgent: agent.NewBaseAgent(agent.Config{Name: AgentTypePatternDetector, TimeoutSeconds: 30}, log),
			kb:        kb,
		}
	})

	deps.Agents.Register(AgentTypeValidator, func() agent.Agent {
		return &validatorAgent{
			BaseAgent: agent.NewBaseAgent(agent.Config{Name: AgentTypeValidator, TimeoutSeconds: 120}, log),
			codeHost:  deps.CodeHost,
			corrector: &quality.Corrector{Provider: deps.Provider, Model: deps.Config.Analysis.Model},
			qualityCfg: quality.Config{
				MinConfidence: parseConfidence(deps.Config.Quality.MinConfidence),
				MaxFiles:      deps.Config.Quality.MaxFiles,
			},
			correctionEnabled: deps.Config.Quality.CorrectionEnabled,
			maxOpenIssues:     deps.Config.Run.MaxOpenIssues,
		}
	})

	deps.Agents.Register(AgentTypeReporter, func() agent.Agent {
		return &reporterAgent{
			BaseAgent: agent.NewBaseAgent(agent.Config{Name: AgentTypeReporter, TimeoutSeconds: 30}, log),
			chat:      deps.Chat,
		}
	})
}

func parseConfidence(s string) model.Confidence {
	switch s {
	case "medium":
		return model.ConfidenceMedium
	case "high":
		return model.ConfidenceHigh
	default:
		return model.ConfidenceLow
	}
}

// researcherAgent pre-gathers context for one error: likely files, file
// previews, correlated PRs, and prior-knowledge seeds.
type researcherAgent struct {
	*agent.BaseAgent
	reader capability.CodeHost
	kb     *knowledge.Store
}

func (a *researcherAgent) Execute(ctx context.Context, execCtx *agent.Context) (*agent.Result, error) {
	return a.ExecuteWithTimeout(ctx, func(ctx context.Context) (any, error) {
		recentPRs, _ := execCtx.Extra[extraRecentPRs].([]model.CorrelatedPR)
		correlated := research.CorrelateWithPRs(execCtx.Error, recentPRs)

		var prior []model.PriorAnalysis
		if a.kb != nil {
			prior = a.kb.SearchPriorKnowledge(execCtx.Error, 3)
		}

		return research.Research(ctx, a.Log, execCtx.Error, execCtx.Traces, a.reader, correlated, prior), nil
	}), nil
}

// analyzerAgent drives the full agentic analysis loop for one error.
type analyzerAgent struct {
	*agent.BaseAgent
	reader   capability.CodeHost
	provider capability.LLMProvider
	cfg      config.AnalysisConfig
	budget   int
}

func (a *analyzerAgent) Execute(ctx context.Context, execCtx *agent.Context) (*agent.Result, error) {
	return a.ExecuteWithTimeout(ctx, func(ctx context.Context) (any, error) {
		rc, _ := execCtx.Extra[extraResearch].(research.Context)

		seed := ""
		if execCtx.RunContext != nil && a.cfg.RunContextEnabled {
			seed = execCtx.RunContext.ToPromptSection(a.cfg.RunContextMaxChars)
		}

		in := analysis.Input{
			Error:                execCtx.Error,
			Traces:               execCtx.Traces,
			Reader:               a.reader,
			Provider:             a.provider,
			PriorAnalyses:        rc.PriorAnalyses,
			FilePreviews:         rc.FilePreviews,
			CorrelatedPRs:        rc.CorrelatedPRs,
			SeedContext:          seed,
			Model:                a.cfg.Model,
			MaxIterationsCeiling: a.cfg.MaxIterations,
			TokenCeiling:         a.budget,
			ContextEditing:       a.cfg.ContextEditing,
		}
		return analysis.Run(ctx, a.Log, in), nil
	}), nil
}

// synthesisOutput is the pattern detector's result bundle.
type synthesisOutput struct {
	Patterns          []model.DetectedPattern
	IgnoreSuggestions []model.IgnoreSuggestion
}

// patternAgent clusters the run's completed analyses and flags ignore
// candidates, once per run.
type patternAgent struct {
	*agent.BaseAgent
	kb pattern.KnowledgeLookup
}

func (a *patternAgent) Execute(ctx context.Context, execCtx *agent.Context) (*agent.Result, error) {
	return a.ExecuteWithTimeout(ctx, func(ctx context.Context) (any, error) {
		analyses, _ := execCtx.Extra[extraAnalyses].([]model.ErrorAnalysisResult)
		return synthesisOutput{
			Patterns:          pattern.DetectWithKnowledge(analyses, a.kb, 2),
			IgnoreSuggestions: pattern.SuggestIgnores(analyses, 3),
		}, nil
	}), nil
}

// actionOutcome is one error's ACTION-phase verdict.
type actionOutcome struct {
	Issue *model.CreatedIssueResult
	PR    *model.CreatedPRResult
}

// validatorAgent runs the quality gate over one analysis with a fix,
// attempts one-shot correction on failure, and — if it still passes and
// we are not in dry-run — creates or updates a tracker issue and, for
// high-confidence fixes, a draft PR.
type validatorAgent struct {
	*agent.BaseAgent
	codeHost          capability.CodeHost
	corrector         *quality.Corrector
	qualityCfg        quality.Config
	correctionEnabled bool
	maxOpenIssues     int
}

func (a *validatorAgent) Execute(ctx context.Context, execCtx *agent.Context) (*agent.Result, error) {
	return a.ExecuteWithTimeout(ctx, func(ctx context.Context) (any, error) {
		item, _ := execCtx.Extra[extraActionItem].(model.ErrorAnalysisResult)
		dryRun, _ := execCtx.Extra[extraDryRun].(bool)

		if !item.Analysis.HasFix {
			return actionOutcome{}, nil
		}

		verdict := quality.Run(item.Analysis, a.qualityCfg)
		verifiedAnalysis := item.Analysis
		if !verdict.Valid && a.correctionEnabled && a.corrector != nil {
			corrected, ok, err := a.corrector.Correct(ctx, verifiedAnalysis, verdict, a.qualityCfg)
			if err == nil && ok {
				verifiedAnalysis = corrected
				verdict = quality.Run(verifiedAnalysis, a.qualityCfg)
			}
		}
		if !verdict.Valid {
			return actionOutcome{}, nil
		}
		item.Analysis = verifiedAnalysis

		if dryRun || a.codeHost == nil {
			return actionOutcome{}, nil
		}

		existing, err := a.codeHost.FindExistingIssue(ctx, item.Error)
		if err != nil {
			return nil, err
		}

		var issueResult model.CreatedIssueResult
		if existing != nil {
			issueResult, err = a.codeHost.AddOccurrenceComment(ctx, *existing, item.Error, &verifiedAnalysis)
		} else {
			openCount, countErr := a.codeHost.GetOpenTrackedCount(ctx)
			if countErr == nil && a.maxOpenIssues > 0 && openCount >= a.maxOpenIssues {
				if a.Log != nil {
					a.Log.Warn("skipping issue creation: WIP limit reached",
						"error_class", item.Error.ErrorClass, "open_count", openCount, "max_open_issues", a.maxOpenIssues)
				}
				return actionOutcome{}, nil
			}
			issueResult, err = a.codeHost.CreateIssue(ctx, item, "")
		}
		if err != nil {
			return nil, err
		}

		outcome := actionOutcome{Issue: &issueResult}
		if issueResult.Action == "created" && verifiedAnalysis.Confidence == model.ConfidenceHigh {
			pr, prErr := a.codeHost.CreatePullRequest(ctx, item, issueResult.IssueNumber)
			if prErr == nil {
				outcome.PR = &pr
			}
		}
		return outcome, nil
	}), nil
}

// reporterAgent sends the run summary, once per run.
type reporterAgent struct {
	*agent.BaseAgent
	chat capability.ChatNotifier
}

func (a *reporterAgent) Execute(ctx context.Context, execCtx *agent.Context) (*agent.Result, error) {
	return a.ExecuteWithTimeout(ctx, func(ctx context.Context) (any, error) {
		if a.chat == nil {
			return false, nil
		}
		report, _ := execCtx.Extra[extraRunReport].(model.RunReport)
		return a.chat.NotifySummary(ctx, report)
	}), nil
}
