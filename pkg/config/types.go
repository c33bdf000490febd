// Package config loads and validates NightWatch's run configuration from
// YAML defaults, a user override file, and environment variables.
package config

import "time"

// Config is the fully merged, validated configuration for one NightWatch
// invocation.
type Config struct {
	Credentials Credentials `yaml:"-"`

	Run        RunConfig        `yaml:"run"`
	Analysis   AnalysisConfig   `yaml:"analysis"`
	Quality    QualityConfig    `yaml:"quality_gate"`
	Knowledge  KnowledgeConfig  `yaml:"knowledge"`
	Budgets    BudgetConfig     `yaml:"budgets"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Batch      BatchConfig      `yaml:"batch"`
	Workflows  []string         `yaml:"workflows"`
	Providers  ProvidersConfig  `yaml:"providers"`
}

// Credentials holds secret values that are never read from YAML — only
// from the process environment; no .env file is loaded — and are never
// logged or serialized.
type Credentials struct {
	AnthropicAPIKey  string
	GitHubToken      string
	GitHubRepo       string // "owner/repo"
	NewRelicAPIKey   string
	NewRelicAccount  string
	NewRelicAppName  string
	SlackBotToken    string
	SlackNotifyUser  string
}

// RunConfig controls ingestion window and selection limits.
type RunConfig struct {
	Since          string `yaml:"since"`           // e.g. "10 minutes"
	MaxErrors      int    `yaml:"max_errors"`
	MaxIssues      int    `yaml:"max_issues"`
	MaxOpenIssues  int    `yaml:"max_open_issues"`
	DryRun         bool   `yaml:"dry_run"`
	Verbose        bool   `yaml:"verbose"`
	GitHubBranch   string `yaml:"github_base_branch"`
	GuardrailsPath string `yaml:"guardrails_output"`
}

// AnalysisConfig controls LLM call parameters for the Analysis Loop.
type AnalysisConfig struct {
	Model           string `yaml:"model"`
	MaxIterations   int    `yaml:"max_iterations"`
	ThinkingBudget  int    `yaml:"thinking_budget"`
	MultiPassEnabled bool  `yaml:"multi_pass_enabled"`
	MaxPasses       int    `yaml:"max_passes"`
	ContextEditing  bool   `yaml:"context_editing"`

	RunContextEnabled  bool `yaml:"run_context_enabled"`
	RunContextMaxChars int  `yaml:"run_context_max_chars"`
}

// QualityConfig controls the pre-PR quality gate.
type QualityConfig struct {
	Enabled           bool   `yaml:"enabled"`
	CorrectionEnabled bool   `yaml:"correction_enabled"`
	MinConfidence     string `yaml:"min_confidence"` // low|medium|high
	MaxFiles          int    `yaml:"max_files"`
}

// KnowledgeConfig controls the knowledge store.
type KnowledgeConfig struct {
	CompoundEnabled bool   `yaml:"compound_enabled"`
	Dir             string `yaml:"dir"`
}

// BudgetConfig controls hard cost ceilings.
type BudgetConfig struct {
	TokenBudgetPerError int `yaml:"token_budget_per_error"`
	TotalTokenBudget    int `yaml:"total_token_budget"`
}

// PipelineConfig controls orchestrator behavior.
type PipelineConfig struct {
	V2              bool `yaml:"v2"`
	Fallback        bool `yaml:"fallback"`
	MaxConcurrent   int  `yaml:"max_concurrent_analyses"`
}

// BatchConfig controls the batch triage path.
type BatchConfig struct {
	Mode       bool          `yaml:"mode"`
	MaxWait    time.Duration `yaml:"max_wait"`
	PollEvery  time.Duration `yaml:"poll_interval"`
	StateDir   string        `yaml:"state_dir"`
}

// ProvidersConfig points at the external collaborators' endpoints.
type ProvidersConfig struct {
	NewRelicGraphQLURL string `yaml:"new_relic_graphql_url"`
	GitHubAPIBaseURL   string `yaml:"github_api_base_url"`
}
