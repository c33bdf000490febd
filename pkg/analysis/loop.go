package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nightwatch-dev/nightwatch/pkg/capability"
	"github.com/nightwatch-dev/nightwatch/pkg/model"
)

// CodeReader is the narrow tool surface the loop drives: read, search,
// and list over the target repository.
type CodeReader interface {
	ReadFile(ctx context.Context, path string) (content string, found bool, err error)
	SearchCode(ctx context.Context, query, ext string) ([]capability.CodeEntry, error)
	ListDirectory(ctx context.Context, path string) ([]capability.CodeEntry, error)
}

// Input bundles everything Run needs for one pass over an ErrorGroup.
type Input struct {
	Error  model.ErrorGroup
	Traces model.TraceData

	Reader   CodeReader
	Provider capability.LLMProvider

	PriorAnalyses []model.PriorAnalysis
	FilePreviews  map[string]string
	CorrelatedPRs []model.CorrelatedPR
	SeedContext   string

	Model              string
	MaxIterationsCeiling int
	TokenCeiling       int
	ContextEditing     bool
}

// sleepBetweenIterations is swapped out in tests.
var sleepBetweenIterations = func(ctx context.Context) { sleeper(ctx, 1500*time.Millisecond) }

// Run drives the agentic tool-use loop for a single ErrorGroup,
// producing a structured Analysis. Grounded on the platform's
// analyze_error: a bounded iteration loop that alternates LLM turns and
// tool execution until the model emits a final JSON verdict.
func Run(ctx context.Context, log *slog.Logger, in Input) model.ErrorAnalysisResult {
	maxIterations := MaxIterations(in.Error.ErrorClass, in.MaxIterationsCeiling)

	traceSummary := SummarizeTraces(in.Traces, 3)
	initial := BuildAnalysisPrompt(in.Error, traceSummary, in.PriorAnalyses, in.FilePreviews, in.CorrelatedPRs, in.SeedContext)

	messages := []capability.ConversationMessage{
		{Role: "user", Content: []capability.ContentBlock{{Kind: capability.ContentText, Text: initial}}},
	}

	totalTokens := 0
	apiCalls := 0

	for i := 1; i <= maxIterations; i++ {
		if i > 1 {
			sleepBetweenIterations(ctx)
		}

		if in.TokenCeiling > 0 && totalTokens > in.TokenCeiling {
			return budgetExhaustedResult(in, i, totalTokens, apiCalls)
		}

		req := capability.MessageRequest{
			Model:           in.Model,
			MaxTokens:       16384,
			System:          SystemPrompt,
			SystemCacheable: true,
			Tools:           Tools(),
			Messages:        messages,
			ThinkingBudget:  ThinkingBudget(i, maxIterations, in.Error.ErrorClass),
			ContextEditing:  in.ContextEditing,
		}

		resp, err := CallWithRetry(ctx, log, in.Provider, req)
		apiCalls++
		if err != nil {
			return errorResult(in, i, totalTokens, apiCalls, err)
		}
		totalTokens += resp.Usage.InputTokens + resp.Usage.OutputTokens

		if resp.StopReason == capability.StopToolUse {
			toolResults := executeTools(ctx, resp.Content, in)
			messages = append(messages, capability.ConversationMessage{Role: "assistant", Content: filterThinking(resp.Content)})
			messages = append(messages, capability.ConversationMessage{Role: "user", Content: toolResults})

			if i > 6 && len(messages) > 8 {
				messages = compressConversation(messages)
			}
			continue
		}

		analysis := parseAnalysis(resp.Content)
		if log != nil {
			log.Info("analysis complete", "iterations", i, "tokens", totalTokens, "has_fix", analysis.HasFix)
		}
		return model.ErrorAnalysisResult{
			Error:      in.Error,
			Analysis:   analysis,
			Traces:     in.Traces,
			Iterations: i,
			TokensUsed: totalTokens,
			APICalls:   apiCalls,
			PassCount:  1,
		}
	}

	if log != nil {
		log.Warn("hit max iterations", "max_iterations", maxIterations)
	}
	return model.ErrorAnalysisResult{
		Error: in.Error,
		Analysis: model.Analysis{
			Title:              fmt.Sprintf("%s in %s", in.Error.ErrorClass, in.Error.Transaction),
			Reasoning:          "Analysis incomplete — hit iteration limit",
			RootCause:          "Unknown — analysis did not complete",
			HasFix:             false,
			Confidence:         model.ConfidenceLow,
			SuggestedNextSteps: []string{"Manual investigation required"},
		},
		Traces:     in.Traces,
		Iterations: maxIterations,
		TokensUsed: totalTokens,
		APICalls:   apiCalls,
		PassCount:  1,
	}
}

func budgetExhaustedResult(in Input, iteration, tokens, apiCalls int) model.ErrorAnalysisResult {
	return model.ErrorAnalysisResult{
		Error: in.Error,
		Analysis: model.Analysis{
			Title:              fmt.Sprintf("%s in %s", in.Error.ErrorClass, in.Error.Transaction),
			Reasoning:          "Analysis stopped — per-error token budget exhausted",
			RootCause:          "Unknown — budget exhausted before conclusion",
			HasFix:             false,
			Confidence:         model.ConfidenceLow,
			SuggestedNextSteps: []string{"Increase token budget or investigate manually"},
		},
		Traces:     in.Traces,
		Iterations: iteration,
		TokensUsed: tokens,
		APICalls:   apiCalls,
		PassCount:  1,
	}
}

func errorResult(in Input, iteration, tokens, apiCalls int, err error) model.ErrorAnalysisResult {
	return model.ErrorAnalysisResult{
		Error: in.Error,
		Analysis: model.Analysis{
			Title:              fmt.Sprintf("%s in %s", in.Error.ErrorClass, in.Error.Transaction),
			Reasoning:          "Analysis failed: " + err.Error(),
			RootCause:          "Unknown — provider call failed",
			HasFix:             false,
			Confidence:         model.ConfidenceLow,
			SuggestedNextSteps: []string{"Retry manually once the provider is reachable"},
		},
		Traces:     in.Traces,
		Iterations: iteration,
		TokensUsed: tokens,
		APICalls:   apiCalls,
		PassCount:  1,
	}
}

func executeTools(ctx context.Context, content []capability.ContentBlock, in Input) []capability.ContentBlock {
	var results []capability.ContentBlock
	for _, block := range content {
		if block.Kind != capability.ContentToolUse {
			continue
		}
		text, isErr := executeSingleTool(ctx, block, in)
		results = append(results, capability.ContentBlock{
			Kind:      capability.ContentToolUse,
			ToolUseID: block.ToolUseID,
			Text:      text,
			IsError:   isErr,
		})
	}
	return results
}

func executeSingleTool(ctx context.Context, block capability.ContentBlock, in Input) (string, bool) {
	switch block.ToolName {
	case "read_file":
		path, _ := block.ToolInput["path"].(string)
		content, found, err := in.Reader.ReadFile(ctx, path)
		if err != nil {
			return "Error: " + err.Error(), true
		}
		if !found {
			return "File not found: " + path, false
		}
		return TruncateToolResult(content, CapReadFile), false

	case "search_code":
		query, _ := block.ToolInput["query"].(string)
		ext, _ := block.ToolInput["file_extension"].(string)
		entries, err := in.Reader.SearchCode(ctx, query, ext)
		if err != nil {
			return "Error: " + err.Error(), true
		}
		if len(entries) == 0 {
			return "No matches found", false
		}
		b, _ := json.MarshalIndent(entries, "", "  ")
		return TruncateToolResult(string(b), CapSearchCode), false

	case "list_directory":
		path, _ := block.ToolInput["path"].(string)
		entries, err := in.Reader.ListDirectory(ctx, path)
		if err != nil {
			return "Error: " + err.Error(), true
		}
		if len(entries) == 0 {
			return "Directory not found: " + path, false
		}
		b, _ := json.MarshalIndent(entries, "", "  ")
		return TruncateToolResult(string(b), CapListDirectory), false

	case "get_error_traces":
		limit := 5
		if v, ok := block.ToolInput["limit"].(float64); ok && v >= 1 {
			limit = int(v)
		}
		txErrors, errorTraces := in.Traces.TransactionErrors, in.Traces.ErrorTraces
		if len(txErrors) > limit {
			txErrors = txErrors[:limit]
		}
		if len(errorTraces) > limit {
			errorTraces = errorTraces[:limit]
		}
		b, _ := json.MarshalIndent(map[string]any{
			"transaction_errors": txErrors,
			"error_traces":       errorTraces,
		}, "", "  ")
		return TruncateToolResult(string(b), CapGetErrorTraces), false

	default:
		return "Unknown tool: " + block.ToolName, false
	}
}

// filterThinking drops thinking blocks from the assistant turn before
// it re-enters conversation history — the provider doesn't need to see
// its own prior extended thinking replayed back to it.
func filterThinking(content []capability.ContentBlock) []capability.ContentBlock {
	var out []capability.ContentBlock
	for _, b := range content {
		if b.Kind == capability.ContentThinking {
			continue
		}
		out = append(out, b)
	}
	return out
}

// compressConversation keeps the first message and the last four,
// replacing the middle with a synthetic summary of up to five tool
// calls extracted from the dropped turns.
func compressConversation(messages []capability.ConversationMessage) []capability.ConversationMessage {
	if len(messages) <= 6 {
		return messages
	}

	first := messages[0]
	recent := messages[len(messages)-4:]
	middle := messages[1 : len(messages)-4]

	var toolCalls []string
	for _, msg := range middle {
		for _, block := range msg.Content {
			// Tool results share ContentToolUse but carry no ToolName.
			if block.Kind == capability.ContentToolUse && block.ToolName != "" {
				toolCalls = append(toolCalls, fmt.Sprintf("- %s: %v", block.ToolName, block.ToolInput))
			}
		}
	}

	var summary strings.Builder
	fmt.Fprintf(&summary, "[COMPRESSED — %d messages summarized]\n", len(middle))
	if len(toolCalls) > 0 {
		fmt.Fprintf(&summary, "Tools used (%d calls):\n", len(toolCalls))
		n := len(toolCalls)
		if n > 5 {
			n = 5
		}
		summary.WriteString(strings.Join(toolCalls[:n], "\n"))
		if len(toolCalls) > 5 {
			fmt.Fprintf(&summary, "\n... and %d more", len(toolCalls)-5)
		}
	}

	compressed := []capability.ConversationMessage{
		first,
		{Role: "user", Content: []capability.ContentBlock{{Kind: capability.ContentText, Text: summary.String()}}},
	}
	return append(compressed, recent...)
}

// parseAnalysis parses the model's final turn as JSON, accepting both
// a fenced ```json block and raw JSON. On parse failure it falls back
// to a low-confidence Analysis carrying the raw text as reasoning.
func parseAnalysis(content []capability.ContentBlock) model.Analysis {
	var text strings.Builder
	for _, b := range content {
		if b.Kind == capability.ContentText {
			text.WriteString(b.Text)
		}
	}
	raw := text.String()

	jsonStr := raw
	if start := strings.Index(raw, "```json"); start != -1 {
		if end := strings.Index(raw[start+7:], "```"); end != -1 {
			jsonStr = strings.TrimSpace(raw[start+7 : start+7+end])
		}
	}

	var data struct {
		Title              string             `json:"title"`
		Reasoning          string             `json:"reasoning"`
		RootCause          string             `json:"root_cause"`
		HasFix             bool               `json:"has_fix"`
		Confidence         model.Confidence   `json:"confidence"`
		FileChanges        []model.FileChange `json:"file_changes"`
		SuggestedNextSteps []string           `json:"suggested_next_steps"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &data); err != nil {
		return model.Analysis{
			Title:              "Analysis Complete",
			Reasoning:          raw,
			RootCause:          "See reasoning",
			HasFix:             false,
			Confidence:         model.ConfidenceLow,
			SuggestedNextSteps: []string{"Review the analysis manually"},
		}
	}

	if data.Title == "" {
		data.Title = "Unknown Error"
	}
	if data.Reasoning == "" {
		data.Reasoning = raw
	}
	if data.Confidence == "" {
		data.Confidence = model.ConfidenceLow
	}
	for i := range data.FileChanges {
		if data.FileChanges[i].Action == "" {
			data.FileChanges[i].Action = model.FileActionModify
		}
	}

	return model.Analysis{
		Title:              data.Title,
		Reasoning:          data.Reasoning,
		RootCause:          data.RootCause,
		HasFix:             data.HasFix,
		Confidence:         data.Confidence,
		FileChanges:        data.FileChanges,
		SuggestedNextSteps: data.SuggestedNextSteps,
	}
}
