package pipeline

// Extra-map keys used to pass phase-specific data through agent.Context,
// since agent.Context intentionally keeps a narrow fixed shape (see its
// doc comment) and lets concrete agents type-assert the keys they need.
const (
	extraRecentPRs    = "recent_prs"
	extraResearch     = "research"
	extraDryRun       = "dry_run"
	extraAnalyses     = "analyses"
	extraActionItem   = "action_item"
	extraRunReport    = "run_report"
)
