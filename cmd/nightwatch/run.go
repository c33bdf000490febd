package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nightwatch-dev/nightwatch/pkg/guardrails"
	"github.com/nightwatch-dev/nightwatch/pkg/model"
	"github.com/nightwatch-dev/nightwatch/pkg/observability"
	"github.com/nightwatch-dev/nightwatch/pkg/pipeline"
	"github.com/nightwatch-dev/nightwatch/pkg/workflow"
)

type runOptions struct {
	since            string
	maxErrors        int
	maxIssues        int
	dryRun           bool
	model            string
	agent            string
	workflows        string
	guardrailsOutput string
	batch            bool
	collect          bool
	batchID          string
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Analyze production errors",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.since, "since", "", "lookback period (e.g. \"24 hours\", \"10 minutes\")")
	flags.IntVar(&opts.maxErrors, "max-errors", 0, "max errors to analyze (0 = use config default)")
	flags.IntVar(&opts.maxIssues, "max-issues", 0, "max GitHub issues to create (0 = use config default)")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "analyze only, no issues/PRs/chat")
	flags.StringVar(&opts.model, "model", "", "override the Claude model")
	flags.StringVar(&opts.agent, "agent", "base-analyzer", "agent configuration name")
	flags.StringVar(&opts.workflows, "workflows", "", "comma-separated workflow names (default: errors)")
	flags.StringVar(&opts.guardrailsOutput, "guardrails-output", "", "path to write guardrails.md")
	flags.BoolVar(&opts.batch, "batch", false, "submit a batch triage request instead of running inline")
	flags.BoolVar(&opts.collect, "collect", false, "poll and print results for the most recently submitted batch")
	flags.StringVar(&opts.batchID, "batch-id", "", "poll and print results for a specific batch ID")
	return cmd
}

func runRun(ctx context.Context, opts *runOptions) error {
	log := setupLogger(verbose)
	deps, cfg, err := buildDeps(log)
	if err != nil {
		return err
	}

	if opts.since != "" {
		cfg.Run.Since = opts.since
	}
	if opts.maxErrors > 0 {
		cfg.Run.MaxErrors = opts.maxErrors
	}
	if opts.maxIssues > 0 {
		cfg.Run.MaxIssues = opts.maxIssues
	}
	if opts.model != "" {
		cfg.Analysis.Model = opts.model
	}
	cfg.Run.DryRun = cfg.Run.DryRun || opts.dryRun
	cfg.Run.Verbose = cfg.Run.Verbose || verbose

	log.Info("starting nightwatch run", "agent", opts.agent, "since", cfg.Run.Since, "dry_run", cfg.Run.DryRun)

	switch {
	case opts.batchID != "" || opts.collect:
		return runCollect(ctx, deps, opts)
	case opts.batch:
		return runSubmitBatch(ctx, deps)
	default:
		return runInline(ctx, deps, opts)
	}
}

func runInline(ctx context.Context, deps *pipeline.Deps, opts *runOptions) error {
	p := pipeline.New(deps)
	report, err := p.Execute(ctx, pipeline.RunParams{DryRun: deps.Config.Run.DryRun, Since: deps.Config.Run.Since})
	if err != nil {
		return err
	}

	if opts.guardrailsOutput != "" {
		if _, err := guardrails.Generate(report, opts.guardrailsOutput); err != nil {
			deps.Log.Warn("could not write guardrails output", "error", err)
		}
	}

	runWorkflows(ctx, deps, opts, report)

	if deps.Config.Run.DryRun {
		printDryRunSummary(report)
	}
	return nil
}

// runWorkflows wraps the pipeline's already-produced errors/analyses/
// actions in the workflow contract for reporting and safe-output
// enforcement — the pipeline itself owns ingestion and analysis, so
// workflows here only replay that data through Params.Extra.
func runWorkflows(ctx context.Context, deps *pipeline.Deps, opts *runOptions, report model.RunReport) {
	var names []string
	if opts.workflows != "" {
		for _, n := range strings.Split(opts.workflows, ",") {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}
	}

	errs := make([]model.ErrorGroup, 0, len(report.Analyses))
	for _, a := range report.Analyses {
		errs = append(errs, a.Error)
	}

	var actions []workflow.Action
	for _, issue := range report.IssuesCreated {
		actions = append(actions, workflow.Action{
			ActionType: workflow.SafeOutputCreateIssue,
			Target:     issue.IssueURL,
			Success:    true,
		})
	}
	if report.PRCreated != nil {
		actions = append(actions, workflow.Action{
			ActionType: workflow.SafeOutputCreatePR,
			Target:     report.PRCreated.PRURL,
			Success:    true,
		})
	}

	params := workflow.Params{
		DryRun: deps.Config.Run.DryRun,
		Extra: map[string]any{
			"errors":        errs,
			"analyses":      report.Analyses,
			"actions_taken": actions,
		},
	}

	for _, w := range deps.Workflows.Enabled(names) {
		result := workflow.Run(ctx, w, params)
		deps.Log.Info("workflow completed", "name", result.WorkflowName,
			"items_fetched", result.ItemsFetched, "actions", len(result.Actions), "errors", result.Errors)
	}
}

func printDryRunSummary(report model.RunReport) {
	fmt.Println()
	fmt.Println("NightWatch dry-run summary")
	fmt.Printf("  Errors found:       %d\n", report.TotalErrorsFound)
	fmt.Printf("  Errors filtered:    %d\n", report.ErrorsFiltered)
	fmt.Printf("  Errors analyzed:    %d\n", report.ErrorsAnalyzed)
	fmt.Printf("  Fixes found:        %d\n", report.FixesFound())
	fmt.Printf("  High confidence:    %d\n", report.HighConfidence())
	fmt.Printf("  Tokens:             %d\n", report.TotalTokensUsed)
	fmt.Printf("  API calls:          %d\n", report.TotalAPICalls)
	fmt.Printf("  Duration:           %.1fs\n", report.RunDurationSeconds)
	if report.MultiPassRetries > 0 {
		fmt.Printf("  Multi-pass retries: %d\n", report.MultiPassRetries)
	}
	if report.PRValidationFailures > 0 {
		fmt.Printf("  PR gate fails:      %d\n", report.PRValidationFailures)
	}
}

func runSubmitBatch(ctx context.Context, deps *pipeline.Deps) error {
	config := deps.Config
	if deps.Batch == nil {
		return fmt.Errorf("batch mode requires an LLM provider; check ANTHROPIC_API_KEY")
	}
	if deps.Observability == nil {
		return fmt.Errorf("batch mode requires an observability client; check New Relic credentials")
	}

	raw, err := deps.Observability.FetchErrors(ctx, config.Run.Since)
	if err != nil {
		return fmt.Errorf("fetch errors: %w", err)
	}
	patterns := observability.LoadIgnorePatterns("ignore.yml", deps.Log)
	filtered := observability.FilterErrors(raw, patterns, deps.Log)
	ranked := observability.RankErrors(filtered, time.Now)
	if config.Run.MaxErrors > 0 && len(ranked) > config.Run.MaxErrors {
		ranked = ranked[:config.Run.MaxErrors]
	}

	traces := make(map[string]model.TraceData, len(ranked))
	for _, e := range ranked {
		if t, err := deps.Observability.FetchTraces(ctx, e, config.Run.Since); err == nil {
			traces[e.ErrorClass+":"+e.Transaction] = t
		}
	}

	batchID, err := deps.Batch.SubmitBatch(ctx, ranked, traces)
	if err != nil {
		return fmt.Errorf("submit batch: %w", err)
	}
	fmt.Printf("Submitted batch %s for %d errors\n", batchID, len(ranked))
	return nil
}

func runCollect(ctx context.Context, deps *pipeline.Deps, opts *runOptions) error {
	config := deps.Config
	if deps.Batch == nil {
		return fmt.Errorf("batch triage requires an LLM provider; check ANTHROPIC_API_KEY")
	}

	batchID := opts.batchID
	if batchID == "" {
		id, err := deps.Batch.GetLatestBatchID()
		if err != nil {
			return fmt.Errorf("find latest batch: %w", err)
		}
		batchID = id
	}

	results, err := deps.Batch.PollResults(ctx, batchID, config.Batch.PollEvery, config.Batch.MaxWait)
	if err != nil {
		return fmt.Errorf("poll batch %s: %w", batchID, err)
	}

	fmt.Printf("Batch %s: %d result(s)\n", batchID, len(results))
	for _, r := range results {
		fmt.Printf("  %-30s %-8s %s\n", r.Error.ErrorClass, r.Severity, r.LikelyRootCause)
	}
	return nil
}
