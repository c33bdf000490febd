package config

import "fmt"

// Validator validates a fully merged configuration with clear,
// per-capability error messages — the same report the `check`
// subcommand prints.
type Validator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// Capability is one external collaborator's connectivity/credential
// check result, as printed by `nightwatch check`.
type Capability struct {
	Name string
	OK   bool
	Err  error
}

// ValidateAll performs comprehensive validation, returning the first
// structural error found (run/analysis/budget fields). Credential
// presence is reported separately via CheckCapabilities, since a missing
// credential should not prevent `check` from reporting on the others.
func (v *Validator) ValidateAll() error {
	if err := v.validateRun(); err != nil {
		return fmt.Errorf("run: %w", err)
	}
	if err := v.validateAnalysis(); err != nil {
		return fmt.Errorf("analysis: %w", err)
	}
	if err := v.validateBudgets(); err != nil {
		return fmt.Errorf("budgets: %w", err)
	}
	if err := v.validateQuality(); err != nil {
		return fmt.Errorf("quality_gate: %w", err)
	}
	return nil
}

func (v *Validator) validateRun() error {
	r := v.cfg.Run
	if r.MaxErrors < 1 {
		return &ValidationError{Field: "max_errors", Err: fmt.Errorf("must be at least 1, got %d", r.MaxErrors)}
	}
	if r.MaxIssues < 0 {
		return &ValidationError{Field: "max_issues", Err: fmt.Errorf("must be non-negative, got %d", r.MaxIssues)}
	}
	if r.MaxOpenIssues < 0 {
		return &ValidationError{Field: "max_open_issues", Err: fmt.Errorf("must be non-negative, got %d", r.MaxOpenIssues)}
	}
	if r.Since == "" {
		return &ValidationError{Field: "since", Err: fmt.Errorf("must not be empty")}
	}
	return nil
}

func (v *Validator) validateAnalysis() error {
	a := v.cfg.Analysis
	if a.Model == "" {
		return &ValidationError{Field: "model", Err: fmt.Errorf("must not be empty")}
	}
	if a.MaxIterations < 1 {
		return &ValidationError{Field: "max_iterations", Err: fmt.Errorf("must be at least 1, got %d", a.MaxIterations)}
	}
	if a.ThinkingBudget < 0 {
		return &ValidationError{Field: "thinking_budget", Err: fmt.Errorf("must be non-negative, got %d", a.ThinkingBudget)}
	}
	if a.MultiPassEnabled && a.MaxPasses < 1 {
		return &ValidationError{Field: "max_passes", Err: fmt.Errorf("must be at least 1 when multi_pass_enabled, got %d", a.MaxPasses)}
	}
	return nil
}

func (v *Validator) validateBudgets() error {
	b := v.cfg.Budgets
	if b.TokenBudgetPerError < 0 {
		return &ValidationError{Field: "token_budget_per_error", Err: fmt.Errorf("must be non-negative, got %d", b.TokenBudgetPerError)}
	}
	if b.TotalTokenBudget < 0 {
		return &ValidationError{Field: "total_token_budget", Err: fmt.Errorf("must be non-negative, got %d", b.TotalTokenBudget)}
	}
	return nil
}

func (v *Validator) validateQuality() error {
	q := v.cfg.Quality
	switch q.MinConfidence {
	case "low", "medium", "high":
	default:
		return &ValidationError{Field: "min_confidence", Err: fmt.Errorf("must be low|medium|high, got %q", q.MinConfidence)}
	}
	if q.MaxFiles < 0 {
		return &ValidationError{Field: "max_files", Err: fmt.Errorf("must be non-negative, got %d", q.MaxFiles)}
	}
	return nil
}

// CheckCapabilities reports, for each external collaborator, whether its
// required credentials are present. It does not attempt network I/O —
// that is the caller's job (`nightwatch check` dials each adapter after
// this passes).
func (v *Validator) CheckCapabilities() []Capability {
	c := v.cfg.Credentials
	results := []Capability{
		{Name: "llm", OK: c.AnthropicAPIKey != ""},
		{Name: "code_host", OK: c.GitHubToken != "" && c.GitHubRepo != ""},
		{Name: "observability", OK: c.NewRelicAPIKey != "" && c.NewRelicAccount != ""},
		{Name: "chat", OK: c.SlackBotToken != "" && c.SlackNotifyUser != ""},
	}
	for i := range results {
		if !results[i].OK {
			results[i].Err = fmt.Errorf("%w for %s", ErrMissingCredential, results[i].Name)
		}
	}
	return results
}
