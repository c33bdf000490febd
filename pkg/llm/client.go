// Package llm implements capability.LLMProvider against Anthropic's
// Messages and Message Batches APIs via anthropic-sdk-go. Grounded on
// the platform's gRPC LLM client for the overall client-wrapper shape
// (config-driven construction, package logger, context-scoped calls)
// and on batch.py's triage submit/poll/collect flow for the batch
// methods.
package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/nightwatch-dev/nightwatch/pkg/capability"
)

// Client is an Anthropic Messages API client scoped to one API key.
type Client struct {
	api *anthropic.Client
	log *slog.Logger
}

// New returns a Client authenticated with apiKey.
func New(apiKey string, log *slog.Logger) *Client {
	api := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Client{api: &api, log: log}
}

var _ capability.LLMProvider = (*Client)(nil)

// CreateMessage sends one conversational turn and returns the model's
// response, translating to and from the provider-neutral capability
// types so the analysis loop never imports this package directly.
func (c *Client) CreateMessage(ctx context.Context, req capability.MessageRequest) (capability.MessageResponse, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(req.MaxTokens),
		Messages:  toProviderMessages(req.Messages),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		params.Tools = toProviderTools(req.Tools)
	}
	if req.ThinkingBudget > 0 {
		params.Thinking = anthropic.ThinkingConfigParamUnion{
			OfEnabled: &anthropic.ThinkingConfigEnabledParam{BudgetTokens: int64(req.ThinkingBudget)},
		}
	}

	resp, err := c.api.Messages.New(ctx, params)
	if err != nil {
		if rl, ok := asRateLimit(err); ok {
			return capability.MessageResponse{}, &capability.RateLimitError{Info: rl}
		}
		if msg, ok := asCreditLow(err); ok {
			return capability.MessageResponse{}, &capability.CreditLowError{Message: msg}
		}
		return capability.MessageResponse{}, fmt.Errorf("llm: create message: %w", err)
	}

	return capability.MessageResponse{
		StopReason: capability.StopReason(resp.StopReason),
		Content:    fromProviderContent(resp.Content),
		Usage: capability.Usage{
			InputTokens:              int(resp.Usage.InputTokens),
			OutputTokens:             int(resp.Usage.OutputTokens),
			CacheReadInputTokens:     int(resp.Usage.CacheReadInputTokens),
			CacheCreationInputTokens: int(resp.Usage.CacheCreationInputTokens),
		},
	}, nil
}

// SubmitBatch submits requests to the Message Batches endpoint and
// returns the provider batch ID for later polling.
func (c *Client) SubmitBatch(ctx context.Context, requests []capability.BatchRequest) (string, error) {
	items := make([]anthropic.MessageBatchNewParamsRequest, 0, len(requests))
	for _, r := range requests {
		items = append(items, anthropic.MessageBatchNewParamsRequest{
			CustomID: r.CustomID,
			Params: anthropic.MessageBatchNewParamsRequestParams{
				Model:     anthropic.ModelClaude3_5HaikuLatest,
				MaxTokens: 512,
				Messages: []anthropic.MessageParam{
					anthropic.NewUserMessage(anthropic.NewTextBlock(r.Prompt)),
				},
			},
		})
	}

	batch, err := c.api.Messages.Batches.New(ctx, anthropic.MessageBatchNewParams{Requests: items})
	if err != nil {
		return "", fmt.Errorf("llm: submit batch: %w", err)
	}
	if c.log != nil {
		c.log.Info("batch submitted", "batch_id", batch.ID, "requests", len(items))
	}
	return batch.ID, nil
}

// RetrieveBatch reports the processing state of a submitted batch.
func (c *Client) RetrieveBatch(ctx context.Context, batchID string) (capability.BatchStatus, error) {
	batch, err := c.api.Messages.Batches.Get(ctx, batchID)
	if err != nil {
		return capability.BatchStatus{}, fmt.Errorf("llm: retrieve batch: %w", err)
	}
	return capability.BatchStatus{
		ProcessingStatus: string(batch.ProcessingStatus),
		Succeeded:        int(batch.RequestCounts.Succeeded),
		Errored:          int(batch.RequestCounts.Errored),
	}, nil
}

// BatchResults streams and collects every completed result for batchID.
// The batch must already be in the "ended" processing state.
func (c *Client) BatchResults(ctx context.Context, batchID string) ([]capability.BatchResult, error) {
	stream := c.api.Messages.Batches.ResultsStreaming(ctx, batchID)

	var results []capability.BatchResult
	for stream.Next() {
		item := stream.Current()
		if item.Result.Type != "succeeded" {
			results = append(results, capability.BatchResult{CustomID: item.CustomID, Failed: true})
			continue
		}
		text := ""
		for _, block := range item.Result.Message.Content {
			if block.Type == "text" {
				text += block.Text
			}
		}
		results = append(results, capability.BatchResult{CustomID: item.CustomID, Text: text})
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("llm: collect batch results: %w", err)
	}
	return results, nil
}

func toProviderMessages(msgs []capability.ConversationMessage) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		blocks := toProviderContentBlocks(m.Content)
		if m.Role == "assistant" {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return out
}

func toProviderContentBlocks(blocks []capability.ContentBlock) []anthropic.ContentBlockParamUnion {
	out := make([]anthropic.ContentBlockParamUnion, 0, len(blocks))
	for _, b := range blocks {
		switch b.Kind {
		case capability.ContentToolUse:
			if b.ToolInput != nil {
				out = append(out, anthropic.NewToolUseBlock(b.ToolUseID, b.ToolInput, b.ToolName))
			} else {
				out = append(out, anthropic.NewToolResultBlock(b.ToolUseID, b.Text, b.IsError))
			}
		case capability.ContentThinking:
			continue
		default:
			out = append(out, anthropic.NewTextBlock(b.Text))
		}
	}
	return out
}

func toProviderTools(tools []capability.ToolSchema) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: t.InputSchema["properties"],
					Required:   toStringSlice(t.InputSchema["required"]),
				},
			},
		})
	}
	return out
}

func toStringSlice(v any) []string {
	if raw, ok := v.([]string); ok {
		return raw
	}
	anySlice, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(anySlice))
	for _, e := range anySlice {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func fromProviderContent(blocks []anthropic.ContentBlockUnion) []capability.ContentBlock {
	out := make([]capability.ContentBlock, 0, len(blocks))
	for _, b := range blocks {
		switch b.Type {
		case "text":
			out = append(out, capability.ContentBlock{Kind: capability.ContentText, Text: b.Text})
		case "thinking":
			out = append(out, capability.ContentBlock{Kind: capability.ContentThinking, Thinking: b.Thinking})
		case "tool_use":
			input, _ := b.Input.(map[string]any)
			out = append(out, capability.ContentBlock{
				Kind:      capability.ContentToolUse,
				ToolUseID: b.ID,
				ToolName:  b.Name,
				ToolInput: input,
			})
		}
	}
	return out
}

func asRateLimit(err error) (capability.RateLimitInfo, bool) {
	apiErr, ok := err.(*anthropic.Error)
	if !ok {
		return capability.RateLimitInfo{}, false
	}
	if apiErr.StatusCode != 429 && apiErr.StatusCode != 529 {
		return capability.RateLimitInfo{}, false
	}
	retryAfter := 0
	if v := apiErr.Response.Header.Get("retry-after"); v != "" {
		fmt.Sscanf(v, "%d", &retryAfter)
	}
	return capability.RateLimitInfo{StatusCode: apiErr.StatusCode, RetryAfterSeconds: retryAfter}, true
}

func asCreditLow(err error) (string, bool) {
	apiErr, ok := err.(*anthropic.Error)
	if !ok {
		return "", false
	}
	if apiErr.StatusCode != 400 {
		return "", false
	}
	if !containsFold(apiErr.Message, "credit balance") {
		return "", false
	}
	return apiErr.Message, true
}

func containsFold(haystack, needle string) bool {
	hl, nl := len(haystack), len(needle)
	if nl == 0 {
		return true
	}
	for i := 0; i+nl <= hl; i++ {
		if equalFold(haystack[i:i+nl], needle) {
			return true
		}
	}
	return false
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
