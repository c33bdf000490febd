// Package capability defines the narrow interfaces through which
// NightWatch's core reaches every external collaborator. The core
// depends on these capabilities, never on a concrete wire protocol —
// concrete adapters live in pkg/observability, pkg/codehost, pkg/llm,
// and pkg/chat.
package capability

import (
	"context"

	"github.com/nightwatch-dev/nightwatch/pkg/model"
)

// ObservabilityClient is the read-only query surface over the
// production-error aggregator.
type ObservabilityClient interface {
	// Query executes a read-only query in the backend's query language.
	Query(ctx context.Context, queryText string) ([]map[string]any, error)
	// FetchErrors returns aggregated errors seen since the given lookback.
	FetchErrors(ctx context.Context, since string) ([]model.ErrorGroup, error)
	// FetchTraces returns pre-fetched trace material for one error.
	FetchTraces(ctx context.Context, err model.ErrorGroup, since string) (model.TraceData, error)
}

// CodeEntry is one directory-listing or search-result row.
type CodeEntry struct {
	Name string
	Path string
	Type string // "file" | "dir", only set by ListDirectory
	URL  string // only set by SearchCode
}

// TrackedIssue is an open tracker item, as returned by FindExistingIssue.
type TrackedIssue struct {
	Number int
	URL    string
}

// CodeHost is the source-repository and issue-tracker capability.
type CodeHost interface {
	// ReadFile returns the file content, or (false, nil) if not found.
	ReadFile(ctx context.Context, path string) (content string, found bool, err error)
	// SearchCode returns up to 20 matches for query, optionally scoped to
	// an extension.
	SearchCode(ctx context.Context, query, ext string) ([]CodeEntry, error)
	ListDirectory(ctx context.Context, path string) ([]CodeEntry, error)

	// FindExistingIssue returns the best-matching open tracked issue for
	// error, or (nil, nil) if none match. Precedence: (class+transaction)
	// > (class only) > (short transaction tail only).
	FindExistingIssue(ctx context.Context, err model.ErrorGroup) (*TrackedIssue, error)
	GetOpenTrackedCount(ctx context.Context) (int, error)

	CreateIssue(ctx context.Context, result model.ErrorAnalysisResult, correlatedPRsSection string) (model.CreatedIssueResult, error)
	AddOccurrenceComment(ctx context.Context, issue TrackedIssue, err model.ErrorGroup, analysis *model.Analysis) (model.CreatedIssueResult, error)
	CreatePullRequest(ctx context.Context, result model.ErrorAnalysisResult, issueNumber int) (model.CreatedPRResult, error)

	// RecentMerged returns PRs merged to the base branch in the last
	// hours, most recent first, with per-PR changed files.
	RecentMerged(ctx context.Context, hours int) ([]model.CorrelatedPR, error)
}

// ContentBlockKind distinguishes the blocks an LLM turn can contain.
type ContentBlockKind string

const (
	ContentText     ContentBlockKind = "text"
	ContentToolUse  ContentBlockKind = "tool_use"
	ContentThinking ContentBlockKind = "thinking"
)

// ContentBlock is one block of an LLM response, or — when submitted
// back in a user turn with Kind=ContentToolUse and Text set — a tool
// result keyed by ToolUseID.
type ContentBlock struct {
	Kind      ContentBlockKind
	Text      string
	Thinking  string
	ToolUseID string
	ToolName  string
	ToolInput map[string]any
	IsError   bool // only meaningful on a submitted tool result
}

// StopReason is why the LLM stopped generating.
type StopReason string

const (
	StopEndTurn  StopReason = "end_turn"
	StopToolUse  StopReason = "tool_use"
)

// Usage reports token accounting for one LLM call.
type Usage struct {
	InputTokens              int
	OutputTokens             int
	CacheReadInputTokens     int
	CacheCreationInputTokens int
}

// MessageResponse is one LLM turn.
type MessageResponse struct {
	StopReason StopReason
	Content    []ContentBlock
	Usage      Usage
}

// ConversationMessage is one turn of conversation history fed back to
// the LLM.
type ConversationMessage struct {
	Role    string // "user" | "assistant"
	Content []ContentBlock
}

// ToolSchema describes one tool the LLM may call.
type ToolSchema struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// MessageRequest is one call to the LLM provider's messages endpoint.
type MessageRequest struct {
	Model          string
	MaxTokens      int
	System         string
	SystemCacheable bool
	Tools          []ToolSchema
	Messages       []ConversationMessage
	ThinkingBudget int // 0 disables extended thinking
	ContextEditing bool
}

// RateLimitInfo carries the retry-after hint from a 429/529 response, if
// any.
type RateLimitInfo struct {
	StatusCode int
	RetryAfterSeconds int // 0 if absent
}

// RateLimitError signals a transient provider rate limit (§4.4.3).
type RateLimitError struct {
	Info RateLimitInfo
}

func (e *RateLimitError) Error() string { return "llm provider rate limited" }

// CreditLowError signals a 400 response whose message contains a
// credit-balance-low hint (§4.4.3).
type CreditLowError struct{ Message string }

func (e *CreditLowError) Error() string { return "llm provider credit balance low: " + e.Message }

// BatchRequest is one triage prompt submitted to the batch endpoint.
type BatchRequest struct {
	CustomID string
	Prompt   string
}

// BatchStatus is the polling-visible state of a submitted batch.
type BatchStatus struct {
	ProcessingStatus string // "in_progress" | "ended" | ...
	Succeeded        int
	Errored          int
}

// BatchResult is one completed triage's raw text result, keyed by the
// custom_id it was submitted under.
type BatchResult struct {
	CustomID string
	Text     string
	Failed   bool
}

// LLMProvider is the tool-using LLM capability.
type LLMProvider interface {
	CreateMessage(ctx context.Context, req MessageRequest) (MessageResponse, error)

	SubmitBatch(ctx context.Context, requests []BatchRequest) (batchID string, err error)
	RetrieveBatch(ctx context.Context, batchID string) (BatchStatus, error)
	BatchResults(ctx context.Context, batchID string) ([]BatchResult, error)
}

// ChatNotifier is the chat capability used for reporting.
type ChatNotifier interface {
	NotifySummary(ctx context.Context, report model.RunReport) (bool, error)
	NotifyActions(ctx context.Context, issues []model.CreatedIssueResult, pr *model.CreatedPRResult) (bool, error)
}
