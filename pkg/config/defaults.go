package config

import "time"

// Defaults returns NightWatch's built-in configuration, before any
// user-supplied nightwatch.yaml or environment overrides are merged in.
// Values are grounded in the original implementation's Settings
// defaults (nightwatch_max_errors=5, nightwatch_since="10 minutes", etc.).
func Defaults() *Config {
	return &Config{
		Run: RunConfig{
			Since:         "10 minutes",
			MaxErrors:     5,
			MaxIssues:     3,
			MaxOpenIssues: 10,
			DryRun:        false,
			GitHubBranch:  "main",
		},
		Analysis: AnalysisConfig{
			Model:              "claude-sonnet-4-5-20250929",
			MaxIterations:      15,
			ThinkingBudget:     8000,
			MultiPassEnabled:   true,
			MaxPasses:          2,
			ContextEditing:     false,
			RunContextEnabled:  true,
			RunContextMaxChars: 1500,
		},
		Quality: QualityConfig{
			Enabled:           true,
			CorrectionEnabled: true,
			MinConfidence:     "low",
			MaxFiles:          5,
		},
		Knowledge: KnowledgeConfig{
			CompoundEnabled: true,
			Dir:             "knowledge",
		},
		Budgets: BudgetConfig{
			TokenBudgetPerError: 150_000,
			TotalTokenBudget:    0, // 0 = unbounded
		},
		Pipeline: PipelineConfig{
			V2:            true,
			Fallback:      true,
			MaxConcurrent: 1,
		},
		Batch: BatchConfig{
			Mode:      false,
			MaxWait:   30 * time.Minute,
			PollEvery: 20 * time.Second,
			StateDir:  "batch-state",
		},
		Workflows: []string{"error-analysis"},
		Providers: ProvidersConfig{
			NewRelicGraphQLURL: "https://api.newrelic.com/graphql",
			GitHubAPIBaseURL:   "https://api.github.com",
		},
	}
}
