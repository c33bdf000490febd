// Package knowledge implements NightWatch's compound-engineering
// knowledge store: prior analyses and detected patterns persisted as
// YAML-frontmatter Markdown documents under a configurable root, with
// an index-first search so a new analysis only pays the cost of
// reading the handful of documents it actually needs. Grounded
// line-for-line on the platform's knowledge.py.
package knowledge

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nightwatch-dev/nightwatch/pkg/model"
)

// Store is a filesystem-backed knowledge base rooted at Dir.
type Store struct {
	Dir string
	Log *slog.Logger
	now func() time.Time
}

// New returns a Store rooted at dir.
func New(dir string, log *slog.Logger) *Store {
	return &Store{Dir: dir, Log: log, now: time.Now}
}

type indexEntry struct {
	File          string   `yaml:"file"`
	ErrorClass    string   `yaml:"error_class"`
	Transaction   string   `yaml:"transaction"`
	FixConfidence string   `yaml:"fix_confidence"`
	HasFix        bool     `yaml:"has_fix"`
	Tags          []string `yaml:"tags"`
}

type patternIndexEntry struct {
	File         string   `yaml:"file"`
	Title        string   `yaml:"title"`
	PatternType  string   `yaml:"pattern_type"`
	ErrorClasses []string `yaml:"error_classes"`
}

type index struct {
	LastUpdated    string              `yaml:"last_updated"`
	TotalSolutions int                 `yaml:"total_solutions"`
	TotalPatterns  int                 `yaml:"total_patterns"`
	Solutions      []indexEntry        `yaml:"solutions"`
	Patterns       []patternIndexEntry `yaml:"patterns"`
}

func (s *Store) indexPath() string    { return filepath.Join(s.Dir, "index.yml") }
func (s *Store) errorsDir() string    { return filepath.Join(s.Dir, "errors") }
func (s *Store) patternsDir() string  { return filepath.Join(s.Dir, "patterns") }

// SearchPriorKnowledge loads the index, scores every solution entry
// against error, and reads up to k full documents for the top-scoring
// entries with score > 0.
func (s *Store) SearchPriorKnowledge(errGroup model.ErrorGroup, k int) []model.PriorAnalysis {
	idx, ok := s.loadIndex()
	if !ok || len(idx.Solutions) == 0 {
		return nil
	}

	errorTags := extractTags(errGroup)

	type scored struct {
		score float64
		entry indexEntry
	}
	var candidates []scored
	for _, entry := range idx.Solutions {
		score := matchScore(errGroup, entry, errorTags)
		if score > 0 {
			candidates = append(candidates, scored{score, entry})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if len(candidates) > k {
		candidates = candidates[:k]
	}

	var results []model.PriorAnalysis
	for _, c := range candidates {
		docPath := filepath.Join(s.Dir, c.entry.File)
		raw, err := os.ReadFile(docPath)
		if err != nil {
			continue
		}
		fm, body := parseFrontmatter(string(raw))
		results = append(results, model.PriorAnalysis{
			ErrorClass:    stringOr(fm, "error_class", ""),
			Transaction:   stringOr(fm, "transaction", ""),
			RootCause:     stringOr(fm, "root_cause", ""),
			FixConfidence: stringOr(fm, "fix_confidence", "low"),
			HasFix:        boolOr(fm, "has_fix", false),
			Summary:       truncate(body, 500),
			MatchScore:    c.score,
			SourceFile:    docPath,
			FirstDetected: stringOr(fm, "first_detected", ""),
		})
	}
	return results
}

// CompoundResult persists an ErrorAnalysisResult as errors/YYYY-MM-DD_<slug>.md.
func (s *Store) CompoundResult(result model.ErrorAnalysisResult) (string, error) {
	if err := os.MkdirAll(s.errorsDir(), 0o755); err != nil {
		return "", fmt.Errorf("knowledge: creating errors dir: %w", err)
	}

	dateStr := s.now().UTC().Format("2006-01-02")
	slug := slugify(result.Error.ErrorClass + "_" + result.Error.Transaction)
	filename := fmt.Sprintf("%s_%s.md", dateStr, slug)
	docPath := filepath.Join(s.errorsDir(), filename)

	errorTags := extractTags(result.Error)
	tags := make([]string, 0, len(errorTags))
	for t := range errorTags {
		tags = append(tags, t)
	}
	sort.Strings(tags)

	frontmatter := map[string]any{
		"error_class":    result.Error.ErrorClass,
		"transaction":    result.Error.Transaction,
		"message":        truncate(result.Error.Message, 300),
		"occurrences":    result.Error.Occurrences,
		"root_cause":     result.Analysis.RootCause,
		"fix_confidence": string(result.Analysis.Confidence),
		"has_fix":        result.Analysis.HasFix,
		"issue_number":   nil,
		"pr_number":      nil,
		"tags":           tags,
		"first_detected": dateStr,
		"run_id":         s.now().UTC().Format(time.RFC3339),
		"iterations_used": result.Iterations,
		"tokens_used":    result.TokensUsed,
	}

	body := buildErrorBody(result)
	content, err := renderFrontmatter(frontmatter)
	if err != nil {
		return "", err
	}
	content += body

	if err := os.WriteFile(docPath, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("knowledge: writing %s: %w", docPath, err)
	}
	if s.Log != nil {
		s.Log.Info("compounded knowledge document", "file", filename)
	}
	return docPath, nil
}

func buildErrorBody(result model.ErrorAnalysisResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n## Root Cause\n\n%s\n\n## Analysis\n\n%s\n\n", result.Analysis.Title, result.Analysis.RootCause, result.Analysis.Reasoning)

	if len(result.Analysis.SuggestedNextSteps) > 0 {
		b.WriteString("## Next Steps\n\n")
		for _, step := range result.Analysis.SuggestedNextSteps {
			fmt.Fprintf(&b, "- %s\n", step)
		}
		b.WriteString("\n")
	}

	if len(result.Analysis.FileChanges) > 0 {
		b.WriteString("## File Changes\n\n")
		for _, fc := range result.Analysis.FileChanges {
			fmt.Fprintf(&b, "- `%s`: %s — %s\n", fc.Path, fc.Action, fc.Description)
		}
		b.WriteString("\n")
	}

	return b.String()
}

// SaveErrorPattern persists a detected pattern under patterns/. Returns
// "" and logs a warning on failure — pattern writes are best-effort.
func (s *Store) SaveErrorPattern(errorClass, transaction, description, confidence string) string {
	if err := os.MkdirAll(s.patternsDir(), 0o755); err != nil {
		if s.Log != nil {
			s.Log.Warn("failed to save error pattern", "error", err)
		}
		return ""
	}

	dateStr := s.now().UTC().Format("2006-01-02")
	slug := slugify(errorClass + "_" + transaction)
	filename := fmt.Sprintf("%s_%s.md", dateStr, slug)
	docPath := filepath.Join(s.patternsDir(), filename)

	frontmatter := map[string]any{
		"title":          fmt.Sprintf("Pattern: %s in %s", errorClass, transaction),
		"error_classes":  []string{errorClass},
		"pattern_type":   "recurring_error",
		"confidence":     confidence,
		"first_detected": dateStr,
		"transaction":    transaction,
	}
	body := fmt.Sprintf("# Pattern: %s\n\n## Description\n\n%s\n\n## Transaction\n\n`%s`\n", errorClass, description, transaction)

	content, err := renderFrontmatter(frontmatter)
	if err != nil {
		if s.Log != nil {
			s.Log.Warn("failed to save error pattern", "error", err)
		}
		return ""
	}
	content += body

	if err := os.WriteFile(docPath, []byte(content), 0o644); err != nil {
		if s.Log != nil {
			s.Log.Warn("failed to save error pattern", "error", err)
		}
		return ""
	}
	if s.Log != nil {
		s.Log.Info("saved error pattern", "file", filename)
	}
	return docPath
}

// SaveDetectedPattern persists a cross-error pattern under patterns/ as
// patterns/YYYY-MM-DD_<slug>.md. Returns the written path.
func (s *Store) SaveDetectedPattern(p model.DetectedPattern) (string, error) {
	if err := os.MkdirAll(s.patternsDir(), 0o755); err != nil {
		return "", fmt.Errorf("knowledge: creating patterns dir: %w", err)
	}

	dateStr := s.now().UTC().Format("2006-01-02")
	slug := slugify(p.Title)
	filename := fmt.Sprintf("%s_%s.md", dateStr, slug)
	docPath := filepath.Join(s.patternsDir(), filename)

	frontmatter := map[string]any{
		"title":          p.Title,
		"pattern_type":   string(p.PatternType),
		"error_classes":  p.ErrorClasses,
		"modules":        p.Modules,
		"occurrences":    p.Occurrences,
		"first_detected": dateStr,
	}

	body := fmt.Sprintf("# %s\n\n## Description\n\n%s\n\n## Suggestion\n\n%s\n", p.Title, p.Description, p.Suggestion)

	content, err := renderFrontmatter(frontmatter)
	if err != nil {
		return "", err
	}
	content += body

	if err := os.WriteFile(docPath, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("knowledge: writing %s: %w", docPath, err)
	}
	if s.Log != nil {
		s.Log.Info("pattern doc", "file", filename)
	}
	return docPath, nil
}

// RebuildIndex scans errors/ and patterns/ and atomically rewrites
// index.yml via write-temp-then-rename.
func (s *Store) RebuildIndex() error {
	var solutions []indexEntry
	var patterns []patternIndexEntry

	if entries, err := os.ReadDir(s.errorsDir()); err == nil {
		names := sortedMarkdownNames(entries)
		for _, name := range names {
			raw, err := os.ReadFile(filepath.Join(s.errorsDir(), name))
			if err != nil {
				continue
			}
			fm, _ := parseFrontmatter(string(raw))
			if len(fm) == 0 {
				continue
			}
			solutions = append(solutions, indexEntry{
				File:          "errors/" + name,
				ErrorClass:    stringOr(fm, "error_class", ""),
				Transaction:   stringOr(fm, "transaction", ""),
				FixConfidence: stringOr(fm, "fix_confidence", "low"),
				HasFix:        boolOr(fm, "has_fix", false),
				Tags:          stringSliceOr(fm, "tags"),
			})
		}
	}

	if entries, err := os.ReadDir(s.patternsDir()); err == nil {
		names := sortedMarkdownNames(entries)
		for _, name := range names {
			raw, err := os.ReadFile(filepath.Join(s.patternsDir(), name))
			if err != nil {
				continue
			}
			fm, _ := parseFrontmatter(string(raw))
			if len(fm) == 0 {
				continue
			}
			patterns = append(patterns, patternIndexEntry{
				File:         "patterns/" + name,
				Title:        stringOr(fm, "title", ""),
				PatternType:  stringOr(fm, "pattern_type", ""),
				ErrorClasses: stringSliceOr(fm, "error_classes"),
			})
		}
	}

	idx := index{
		LastUpdated:    s.now().UTC().Format(time.RFC3339),
		TotalSolutions: len(solutions),
		TotalPatterns:  len(patterns),
		Solutions:      solutions,
		Patterns:       patterns,
	}

	raw, err := yaml.Marshal(idx)
	if err != nil {
		return fmt.Errorf("knowledge: marshaling index: %w", err)
	}
	return writeAtomic(s.indexPath(), raw)
}

// UpdateResultMetadata locates the most recent error document matching
// (errorClass, transaction) and sets issueNumber/prNumber in place.
// Either may be 0 to leave that field untouched.
func (s *Store) UpdateResultMetadata(errorClass, transaction string, issueNumber, prNumber int) bool {
	entries, err := os.ReadDir(s.errorsDir())
	if err != nil {
		return false
	}

	var matching []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(s.errorsDir(), e.Name()))
		if err != nil {
			continue
		}
		fm, _ := parseFrontmatter(string(raw))
		if stringOr(fm, "error_class", "") == errorClass && stringOr(fm, "transaction", "") == transaction {
			matching = append(matching, e.Name())
		}
	}
	if len(matching) == 0 {
		return false
	}
	sort.Strings(matching)
	target := filepath.Join(s.errorsDir(), matching[len(matching)-1])

	raw, err := os.ReadFile(target)
	if err != nil {
		return false
	}
	fm, body := parseFrontmatter(string(raw))
	if issueNumber != 0 {
		fm["issue_number"] = issueNumber
	}
	if prNumber != 0 {
		fm["pr_number"] = prNumber
	}

	content, err := renderFrontmatter(fm)
	if err != nil {
		return false
	}
	if err := writeAtomic(target, []byte(content+body)); err != nil {
		return false
	}
	if s.Log != nil {
		s.Log.Info("updated knowledge metadata", "file", filepath.Base(target))
	}
	return true
}

// SolutionCountByErrorClass returns how many indexed solution documents
// carry the given error class, for cross-run recurrence detection.
func (s *Store) SolutionCountByErrorClass(errorClass string) int {
	idx, ok := s.loadIndex()
	if !ok {
		return 0
	}
	count := 0
	for _, entry := range idx.Solutions {
		if entry.ErrorClass == errorClass {
			count++
		}
	}
	return count
}

// BuildKnowledgeContext runs SearchPriorKnowledge and formats results
// as a Markdown prompt section, truncated to maxChars.
func (s *Store) BuildKnowledgeContext(errGroup model.ErrorGroup, maxResults, maxChars int) string {
	prior := s.SearchPriorKnowledge(errGroup, maxResults)
	if len(prior) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("## Prior Knowledge from NightWatch Knowledge Base")
	for i, p := range prior {
		fmt.Fprintf(&b, "\n\n### Prior Analysis #%d (match: %.1f%%)", i+1, p.MatchScore*100)
		fmt.Fprintf(&b, "\n- **Error**: `%s` in `%s`", p.ErrorClass, p.Transaction)
		fmt.Fprintf(&b, "\n- **Root Cause**: %s", truncate(p.RootCause, 200))
		fmt.Fprintf(&b, "\n- **Had Fix**: %t (confidence: %s)", p.HasFix, p.FixConfidence)
		if p.Summary != "" {
			fmt.Fprintf(&b, "\n- **Summary**: %s", truncate(p.Summary, 200))
		}
	}

	result := b.String()
	if len(result) > maxChars {
		result = result[:maxChars-20] + "\n\n[...truncated]"
	}
	return result
}

func sortedMarkdownNames(entries []os.DirEntry) []string {
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}

func (s *Store) loadIndex() (index, bool) {
	raw, err := os.ReadFile(s.indexPath())
	if err != nil {
		return index{}, false
	}
	var idx index
	if err := yaml.Unmarshal(raw, &idx); err != nil {
		if s.Log != nil {
			s.Log.Warn("failed to read knowledge index", "error", err)
		}
		return index{}, false
	}
	return idx, true
}

var noiseTags = map[string]bool{
	"controller": true, "action": true, "othertransaction": true,
	"rake": true, "n/a": true, "": true,
}

var tagSplitter = regexp.MustCompile(`[:./]+`)
var txSplitter = regexp.MustCompile(`/+`)

func extractTags(e model.ErrorGroup) map[string]bool {
	tags := make(map[string]bool)
	for _, p := range tagSplitter.Split(e.ErrorClass, -1) {
		p = strings.ToLower(strings.TrimSpace(p))
		if !noiseTags[p] {
			tags[p] = true
		}
	}
	for _, p := range txSplitter.Split(e.Transaction, -1) {
		p = strings.ToLower(strings.TrimSpace(p))
		if !noiseTags[p] {
			tags[p] = true
		}
	}
	return tags
}

func matchScore(e model.ErrorGroup, entry indexEntry, errorTags map[string]bool) float64 {
	score := 0.0
	if e.ErrorClass == entry.ErrorClass {
		score += 0.5
	}
	if e.Transaction == entry.Transaction {
		score += 0.3
	}
	for _, t := range entry.Tags {
		if errorTags[strings.ToLower(t)] {
			score += 0.1
		}
	}
	if score > 1.0 {
		return 1.0
	}
	return score
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(text string) string {
	slug := slugInvalid.ReplaceAllString(strings.ToLower(text), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > 60 {
		slug = slug[:60]
	}
	return slug
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func stringOr(m map[string]any, key, def string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

func boolOr(m map[string]any, key string, def bool) bool {
	if v, ok := m[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

func stringSliceOr(m map[string]any, key string) []string {
	v, ok := m[key]
	if !ok {
		return nil
	}
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
