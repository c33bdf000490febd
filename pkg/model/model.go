// Package model defines NightWatch's core data types: the entities that
// flow through the orchestration engine from ingestion to learning.
package model

import "time"

// Confidence is the LLM's self-reported confidence in an Analysis.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Rank orders confidence levels for comparison (low=0, medium=1, high=2).
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceMedium:
		return 1
	case ConfidenceHigh:
		return 2
	default:
		return 0
	}
}

// Score maps confidence to the numeric weight used by the quality score
// formula (§4.4.5): high→0.9, medium→0.6, low→0.3, unknown→0.5.
func (c Confidence) Score() float64 {
	switch c {
	case ConfidenceHigh:
		return 0.9
	case ConfidenceMedium:
		return 0.6
	case ConfidenceLow:
		return 0.3
	default:
		return 0.5
	}
}

// FileAction is what a FileChange does to its path.
type FileAction string

const (
	FileActionModify FileAction = "modify"
	FileActionCreate FileAction = "create"
	FileActionDelete FileAction = "delete"
)

// FileChange is one proposed edit from the LLM's analysis.
type FileChange struct {
	Path        string     `json:"path" yaml:"path"`
	Action      FileAction `json:"action" yaml:"action"`
	Content     string     `json:"content,omitempty" yaml:"content,omitempty"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
}

// Analysis is the LLM's structured verdict on a production error.
type Analysis struct {
	Title             string       `json:"title"`
	Reasoning         string       `json:"reasoning"`
	RootCause         string       `json:"root_cause"`
	HasFix            bool         `json:"has_fix"`
	Confidence        Confidence   `json:"confidence"`
	FileChanges       []FileChange `json:"file_changes"`
	SuggestedNextSteps []string    `json:"suggested_next_steps"`
}

// ErrorGroup is an aggregated production error: identical occurrences
// grouped by class + transaction. Created by ingestion; immutable
// thereafter except Score, which is set exactly once during ranking.
type ErrorGroup struct {
	ErrorClass  string
	Transaction string
	Message     string
	Occurrences int
	LastSeen    string // epoch-millis string, as returned by the observability backend
	HTTPPath    string
	Host        string
	EntityGUID  string // empty if not applicable
	Score       float64
}

// TraceData is pre-fetched trace material for one ErrorGroup: two lists
// of opaque attribute maps, owned by the session and never mutated after
// ingestion.
type TraceData struct {
	TransactionErrors []map[string]any
	ErrorTraces       []map[string]any
}

// TokenBreakdown is a detailed token-usage accounting for one analysis.
type TokenBreakdown struct {
	InputTokens      int
	OutputTokens     int
	ThinkingTokens   int
	CacheReadTokens  int
	CacheWriteTokens int
	ToolResultTokens int
}

// Total is input+output tokens.
func (t TokenBreakdown) Total() int { return t.InputTokens + t.OutputTokens }

// CacheSavings approximates tokens saved by cache hits.
func (t TokenBreakdown) CacheSavings() int { return t.CacheReadTokens }

// ErrorAnalysisResult is the result of analyzing a single error: the
// error plus the LLM's analysis and usage accounting.
type ErrorAnalysisResult struct {
	Error                   ErrorGroup
	Analysis                Analysis
	Traces                  TraceData
	Iterations              int
	TokensUsed              int
	APICalls                int
	IssueScore              float64 // set during issue selection
	PassCount               int     // how many analysis passes were run (1 or 2)
	ContextFilesContributed int     // files added to RunContext from this analysis
	QualityScore            float64 // quality gate score, 0.0-1.0
	TokenBreakdown          *TokenBreakdown
}

// CreatedIssueResult is the result of creating (or commenting on) a
// tracker issue.
type CreatedIssueResult struct {
	Error      ErrorGroup
	Analysis   Analysis
	Action     string // "created" | "commented"
	IssueNumber int
	IssueURL   string
}

// CreatedPRResult is the result of creating a draft fix PR.
type CreatedPRResult struct {
	IssueNumber  int
	PRNumber     int
	PRURL        string
	BranchName   string
	FilesChanged int
}

// CorrelatedPR is a recently merged PR that may correlate to an error.
type CorrelatedPR struct {
	Number       int
	Title        string
	URL          string
	MergedAt     string
	ChangedFiles []string
	OverlapScore float64
}

// PriorAnalysis is a projection of a knowledge-store document used as a
// prompt seed.
type PriorAnalysis struct {
	ErrorClass    string
	Transaction   string
	RootCause     string
	FixConfidence string
	HasFix        bool
	Summary       string // capped at 500 chars
	MatchScore    float64
	SourceFile    string
	FirstDetected string
}

// PatternType classifies a DetectedPattern.
type PatternType string

const (
	PatternRecurringError PatternType = "recurring_error"
	PatternSystemicIssue  PatternType = "systemic_issue"
	PatternTransientNoise PatternType = "transient_noise"
)

// DetectedPattern is a cross-error finding emitted by the pattern
// detector.
type DetectedPattern struct {
	Title        string
	Description  string
	ErrorClasses []string
	Modules      []string
	Occurrences  int
	Suggestion   string
	PatternType  PatternType
}

// MatchKind is how an IgnoreSuggestion's pattern is matched against an
// incoming error.
type MatchKind string

const (
	MatchContains MatchKind = "contains"
	MatchExact    MatchKind = "exact"
	MatchPrefix   MatchKind = "prefix"
)

// IgnoreSuggestion is a suggested addition to the ignore configuration.
// Unique by (Match, Pattern).
type IgnoreSuggestion struct {
	Pattern  string
	Match    MatchKind
	Reason   string
	Evidence string
}

// Key returns the (match, pattern) uniqueness key.
func (s IgnoreSuggestion) Key() string { return string(s.Match) + "|" + s.Pattern }

// Phase is a pipeline stage tag.
type Phase string

const (
	PhaseIngestion  Phase = "INGESTION"
	PhaseEnrichment Phase = "ENRICHMENT"
	PhaseAnalysis   Phase = "ANALYSIS"
	PhaseSynthesis  Phase = "SYNTHESIS"
	PhaseReporting  Phase = "REPORTING"
	PhaseAction     Phase = "ACTION"
	PhaseLearning   Phase = "LEARNING"
	PhaseComplete   Phase = "COMPLETE"
)

// Timestamps tracks the lifecycle times of a PipelineState.
type Timestamps struct {
	Started     time.Time
	PhaseStarted time.Time
	LastUpdated time.Time
	Completed   time.Time // zero value until PhaseComplete
}

// PipelineState is an immutable per-session snapshot. Every mutation
// (via pkg/state) produces a new value; LastUpdated monotonically
// advances.
type PipelineState struct {
	SessionID      string
	CurrentPhase   Phase
	IterationCount int
	ErrorsData     []ErrorGroup
	AnalysesData   []ErrorAnalysisResult
	Metadata       map[string]any
	Timestamps     Timestamps
}

// Priority orders AgentMessage delivery within get_messages_by_priority
// (ascending — HIGH first).
type Priority int

const (
	PriorityHigh   Priority = 0
	PriorityMedium Priority = 1
	PriorityLow    Priority = 2
)

// Payload is the sum-type contract for AgentMessage bodies: every
// concrete payload must know how to clone itself so the bus can hand out
// independent copies on publish and on delivery.
type Payload interface {
	Clone() Payload
}

// AgentMessage is one bus event.
type AgentMessage struct {
	ID        string
	FromAgent string // empty if unset
	ToAgent   string // empty = broadcast
	Type      string
	Payload   Payload
	Timestamp time.Time
	Priority  Priority
	SessionID string
}

// RunReport summarizes an entire NightWatch run.
type RunReport struct {
	Timestamp           time.Time
	Lookback            string
	TotalErrorsFound    int
	ErrorsFiltered      int
	ErrorsAnalyzed      int
	Analyses            []ErrorAnalysisResult
	IssuesCreated        []CreatedIssueResult
	PRCreated            *CreatedPRResult
	TotalTokensUsed      int
	TotalAPICalls        int
	RunDurationSeconds   float64
	MultiPassRetries     int
	PRValidationFailures int
	Patterns             []DetectedPattern
	IgnoreSuggestions    []IgnoreSuggestion
}

// FixesFound is the count of analyses where the LLM proposed a fix.
func (r RunReport) FixesFound() int {
	n := 0
	for _, a := range r.Analyses {
		if a.Analysis.HasFix {
			n++
		}
	}
	return n
}

// HighConfidence is the count of high-confidence analyses with a fix.
func (r RunReport) HighConfidence() int {
	n := 0
	for _, a := range r.Analyses {
		if a.Analysis.HasFix && a.Analysis.Confidence == ConfidenceHigh {
			n++
		}
	}
	return n
}

// TriageResult is one error's quick classification from a batch triage
// pass, before any error proceeds to the full agentic analysis loop.
type TriageResult struct {
	Error                  ErrorGroup
	Severity               string // "critical" | "high" | "medium" | "low"
	LikelyRootCause        string
	NeedsDeepInvestigation bool
	FixCategory            string // "code_bug" | "config" | "dependency" | "infra" | "unknown"
}

// BatchSubmission records a submitted triage batch so it can be polled
// and its results mapped back to the originating errors later.
type BatchSubmission struct {
	BatchID      string
	SubmittedAt  time.Time
	ErrorCount   int
	CustomIDMap  map[string]BatchCustomIDEntry
}

// BatchCustomIDEntry recovers an ErrorGroup's identity from the
// provider's opaque custom_id on a batch result.
type BatchCustomIDEntry struct {
	ErrorClass  string
	Transaction string
	Index       int
}
