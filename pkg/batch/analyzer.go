// Package batch implements quick triage classification via the
// provider's Message Batches endpoint — a cheaper first pass that
// decides which errors need the full agentic analysis loop. Grounded
// on batch.py's BatchAnalyzer: prompt template, on-disk submission
// state, and poll/collect flow.
package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/nightwatch-dev/nightwatch/pkg/analysis"
	"github.com/nightwatch-dev/nightwatch/pkg/capability"
	"github.com/nightwatch-dev/nightwatch/pkg/model"
)

const triagePromptTemplate = `Analyze this production error and provide a quick triage classification.
Respond with ONLY a JSON object (no markdown, no explanation):

{
    "severity": "critical|high|medium|low",
    "likely_root_cause": "1-2 sentence description",
    "needs_deep_investigation": true|false,
    "fix_category": "code_bug|config|dependency|infra|unknown"
}

Error details:
- Error class: %s
- Transaction: %s
- Message: %s
- Occurrences: %d

%s
`

var jsonFence = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// sleeper is swapped out in tests so polling never actually blocks.
var sleeper = func(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// now is swapped out in tests.
var now = time.Now

// Analyzer submits errors for batch triage and later collects results.
type Analyzer struct {
	Provider capability.LLMProvider
	Model    string
	StateDir string
	Log      *slog.Logger
}

// New returns an Analyzer rooted at stateDir, creating it if absent.
func New(provider capability.LLMProvider, modelName, stateDir string, log *slog.Logger) (*Analyzer, error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("batch: creating state dir: %w", err)
	}
	return &Analyzer{Provider: provider, Model: modelName, StateDir: stateDir, Log: log}, nil
}

// SubmitBatch builds one triage prompt per error, submits them as a
// single batch, persists the submission state to disk, and returns the
// batch ID for later polling.
func (a *Analyzer) SubmitBatch(ctx context.Context, errors []model.ErrorGroup, tracesByKey map[string]model.TraceData) (string, error) {
	requests := make([]capability.BatchRequest, 0, len(errors))
	customIDMap := make(map[string]model.BatchCustomIDEntry, len(errors))

	for i, err := range errors {
		class := err.ErrorClass
		if len(class) > 30 {
			class = class[:30]
		}
		customID := fmt.Sprintf("triage-%d-%s", i, class)

		traceSummary := ""
		if traces, ok := tracesByKey[err.ErrorClass+":"+err.Transaction]; ok {
			traceSummary = analysis.SummarizeTraces(traces, 3)
		}

		prompt := fmt.Sprintf(triagePromptTemplate, err.ErrorClass, err.Transaction, err.Message, err.Occurrences, traceSummary)
		requests = append(requests, capability.BatchRequest{CustomID: customID, Prompt: prompt})
		customIDMap[customID] = model.BatchCustomIDEntry{ErrorClass: err.ErrorClass, Transaction: err.Transaction, Index: i}
	}

	batchID, submitErr := a.Provider.SubmitBatch(ctx, requests)
	if submitErr != nil {
		return "", fmt.Errorf("batch: submit: %w", submitErr)
	}
	if a.Log != nil {
		a.Log.Info("batch submitted", "batch_id", batchID, "errors", len(requests))
	}

	submission := model.BatchSubmission{
		BatchID:     batchID,
		SubmittedAt: now().UTC(),
		ErrorCount:  len(requests),
		CustomIDMap: customIDMap,
	}
	if err := a.saveState(submission); err != nil {
		return "", err
	}
	return batchID, nil
}

// PollResults blocks, polling at pollEvery, until the batch reaches the
// "ended" processing state or maxWait elapses, then collects and parses
// results. Returns an empty slice (not an error) if maxWait is exceeded.
func (a *Analyzer) PollResults(ctx context.Context, batchID string, pollEvery, maxWait time.Duration) ([]model.TriageResult, error) {
	submission, err := a.loadState(batchID)
	if err != nil {
		return nil, err
	}

	deadline := now().Add(maxWait)
	for {
		status, err := a.Provider.RetrieveBatch(ctx, batchID)
		if err != nil {
			return nil, fmt.Errorf("batch: retrieve: %w", err)
		}
		if a.Log != nil {
			a.Log.Info("batch status", "batch_id", batchID, "status", status.ProcessingStatus,
				"succeeded", status.Succeeded, "errored", status.Errored)
		}
		if status.ProcessingStatus == "ended" {
			break
		}
		if now().After(deadline) {
			if a.Log != nil {
				a.Log.Warn("batch did not complete before max wait", "batch_id", batchID)
			}
			return nil, nil
		}
		sleeper(ctx, pollEvery)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	rawResults, err := a.Provider.BatchResults(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("batch: collect results: %w", err)
	}

	results := make([]model.TriageResult, 0, len(rawResults))
	needsInvestigation := 0
	for _, raw := range rawResults {
		info := submission.CustomIDMap[raw.CustomID]
		errGroup := model.ErrorGroup{ErrorClass: defaultString(info.ErrorClass, "Unknown"), Transaction: defaultString(info.Transaction, "Unknown")}

		if raw.Failed {
			if a.Log != nil {
				a.Log.Warn("batch result failed", "custom_id", raw.CustomID)
			}
			results = append(results, model.TriageResult{Error: errGroup, Severity: "medium", NeedsDeepInvestigation: true, FixCategory: "unknown"})
			needsInvestigation++
			continue
		}

		triage := parseTriage(a.Log, raw.Text)
		result := model.TriageResult{
			Error:                  errGroup,
			Severity:               stringOr(triage, "severity", "medium"),
			LikelyRootCause:        stringOr(triage, "likely_root_cause", ""),
			NeedsDeepInvestigation: boolOr(triage, "needs_deep_investigation", true),
			FixCategory:            stringOr(triage, "fix_category", "unknown"),
		}
		if result.NeedsDeepInvestigation {
			needsInvestigation++
		}
		results = append(results, result)
	}

	if a.Log != nil {
		a.Log.Info("batch results collected", "total", len(results), "needs_investigation", needsInvestigation)
	}
	return results, nil
}

// GetLatestBatchID returns the most recently submitted batch's ID, or
// "" if no batch has been submitted.
func (a *Analyzer) GetLatestBatchID() (string, error) {
	entries, err := os.ReadDir(a.StateDir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("batch: reading state dir: %w", err)
	}

	var latestPath string
	var latestMod time.Time
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if latestPath == "" || info.ModTime().After(latestMod) {
			latestPath = filepath.Join(a.StateDir, entry.Name())
			latestMod = info.ModTime()
		}
	}
	if latestPath == "" {
		return "", nil
	}

	raw, err := os.ReadFile(latestPath)
	if err != nil {
		return "", fmt.Errorf("batch: reading %s: %w", latestPath, err)
	}
	var submission model.BatchSubmission
	if err := json.Unmarshal(raw, &submission); err != nil {
		return "", fmt.Errorf("batch: decoding %s: %w", latestPath, err)
	}
	return submission.BatchID, nil
}

// saveState writes submission's state via write-temp-then-rename so a
// concurrent poll never observes a partially written file.
func (a *Analyzer) saveState(submission model.BatchSubmission) error {
	path := filepath.Join(a.StateDir, submission.BatchID+".json")
	raw, err := json.MarshalIndent(submission, "", "  ")
	if err != nil {
		return fmt.Errorf("batch: encoding state: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("batch: writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("batch: committing %s: %w", path, err)
	}
	return nil
}

func (a *Analyzer) loadState(batchID string) (model.BatchSubmission, error) {
	path := filepath.Join(a.StateDir, batchID+".json")
	raw, err := os.ReadFile(path)
	if err != nil {
		return model.BatchSubmission{}, fmt.Errorf("batch: no saved state for batch %s: %w", batchID, err)
	}
	var submission model.BatchSubmission
	if err := json.Unmarshal(raw, &submission); err != nil {
		return model.BatchSubmission{}, fmt.Errorf("batch: decoding state: %w", err)
	}
	return submission, nil
}

// parseTriage extracts the triage JSON object from the model's raw
// response text, accepting either bare JSON or a fenced ```json block.
func parseTriage(log *slog.Logger, text string) map[string]any {
	trimmed := strings.TrimSpace(text)

	var data map[string]any
	if err := json.Unmarshal([]byte(trimmed), &data); err == nil {
		return data
	}

	if m := jsonFence.FindStringSubmatch(text); m != nil {
		if err := json.Unmarshal([]byte(m[1]), &data); err == nil {
			return data
		}
	}

	if log != nil {
		preview := text
		if len(preview) > 200 {
			preview = preview[:200]
		}
		log.Warn("could not parse triage response", "preview", preview)
	}
	return nil
}

func stringOr(m map[string]any, key, fallback string) string {
	if m == nil {
		return fallback
	}
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func boolOr(m map[string]any, key string, fallback bool) bool {
	if m == nil {
		return fallback
	}
	if v, ok := m[key].(bool); ok {
		return v
	}
	return fallback
}

func defaultString(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
