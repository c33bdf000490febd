// Package codehost implements NightWatch's capability.CodeHost over a
// single GitHub repository, using go-github. Grounded on the platform's
// github.py (read_file/search_code/list_directory, duplicate-issue
// matching, issue/PR creation) and on pkg/runbook/github.go's style of a
// thin, logger-carrying client wrapping a concrete HTTP-backed SDK.
package codehost

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-github/v69/github"

	"github.com/nightwatch-dev/nightwatch/pkg/capability"
	"github.com/nightwatch-dev/nightwatch/pkg/model"
)

// Client is a go-github-backed capability.CodeHost bound to one
// owner/repo and base branch.
type Client struct {
	gh         *github.Client
	owner      string
	repo       string
	baseBranch string
	log        *slog.Logger
	now        func() time.Time
}

// New returns a Client authenticated with token (may be empty for
// public, rate-limited access) against "owner/repo".
func New(token, ownerRepo, baseBranch string, log *slog.Logger) (*Client, error) {
	parts := strings.SplitN(ownerRepo, "/", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("codehost: invalid repo %q, want owner/repo", ownerRepo)
	}
	gh := github.NewClient(nil)
	if token != "" {
		gh = gh.WithAuthToken(token)
	}
	return &Client{gh: gh, owner: parts[0], repo: parts[1], baseBranch: baseBranch, log: log, now: time.Now}, nil
}

var _ capability.CodeHost = (*Client)(nil)

// ReadFile returns the file content, or (false, nil) if not found.
func (c *Client) ReadFile(ctx context.Context, path string) (string, bool, error) {
	fileContent, dirContent, _, err := c.gh.Repositories.GetContents(ctx, c.owner, c.repo, path, &github.RepositoryContentGetOptions{Ref: c.baseBranch})
	if err != nil {
		if isNotFound(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("codehost: reading %s: %w", path, err)
	}
	if dirContent != nil || fileContent == nil {
		return "", false, nil
	}
	content, err := fileContent.GetContent()
	if err != nil {
		return "", false, fmt.Errorf("codehost: decoding %s: %w", path, err)
	}
	return content, true, nil
}

// SearchCode returns up to 20 matches for query, optionally scoped to
// an extension.
func (c *Client) SearchCode(ctx context.Context, query, ext string) ([]capability.CodeEntry, error) {
	q := fmt.Sprintf("%s repo:%s/%s", query, c.owner, c.repo)
	if ext != "" {
		q += " extension:" + ext
	}

	result, _, err := c.gh.Search.Code(ctx, q, &github.SearchOptions{ListOptions: github.ListOptions{PerPage: 20}})
	if err != nil {
		if c.log != nil {
			c.log.Error("search_code failed", "error", err)
		}
		return nil, nil
	}

	entries := make([]capability.CodeEntry, 0, len(result.CodeResults))
	for i, item := range result.CodeResults {
		if i >= 20 {
			break
		}
		entries = append(entries, capability.CodeEntry{
			Name: item.GetName(),
			Path: item.GetPath(),
			URL:  item.GetHTMLURL(),
		})
	}
	return entries, nil
}

// ListDirectory lists files in a directory.
func (c *Client) ListDirectory(ctx context.Context, path string) ([]capability.CodeEntry, error) {
	_, dirContent, _, err := c.gh.Repositories.GetContents(ctx, c.owner, c.repo, path, &github.RepositoryContentGetOptions{Ref: c.baseBranch})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("codehost: listing %s: %w", path, err)
	}

	entries := make([]capability.CodeEntry, 0, len(dirContent))
	for _, item := range dirContent {
		entries = append(entries, capability.CodeEntry{
			Name: item.GetName(),
			Path: item.GetPath(),
			Type: item.GetType(),
		})
	}
	return entries, nil
}

// FindExistingIssue returns the best-matching open "nightwatch"-labeled
// issue for err, using the same (class+transaction) > class > action
// precedence as the platform's find_existing_issue.
func (c *Client) FindExistingIssue(ctx context.Context, err model.ErrorGroup) (*capability.TrackedIssue, error) {
	if err.ErrorClass == "" && err.Transaction == "" {
		return nil, nil
	}

	issues, _, ghErr := c.gh.Issues.ListByRepo(ctx, c.owner, c.repo, &github.IssueListByRepoOptions{
		State:  "open",
		Labels: []string{"nightwatch"},
	})
	if ghErr != nil {
		return nil, nil
	}

	classLower := strings.ToLower(err.ErrorClass)
	txLower := strings.ToLower(err.Transaction)

	var actionName string
	if parts := strings.Split(err.Transaction, "/"); len(parts) >= 2 {
		actionName = strings.ToLower(strings.Join(parts[len(parts)-2:], "/"))
	}

	var good, best *capability.TrackedIssue
	for _, issue := range issues {
		combined := strings.ToLower(issue.GetTitle() + " " + issue.GetBody())

		hasClass := classLower != "" && strings.Contains(combined, classLower)
		hasTx := txLower != "" && strings.Contains(combined, txLower)
		hasAction := actionName != "" && strings.Contains(combined, actionName)

		tracked := &capability.TrackedIssue{Number: issue.GetNumber(), URL: issue.GetHTMLURL()}

		if hasClass && (hasTx || hasAction) {
			return tracked, nil
		}
		if hasClass && good == nil {
			good = tracked
		}
		if (hasTx || hasAction) && best == nil {
			best = tracked
		}
	}

	if good != nil {
		return good, nil
	}
	return best, nil
}

// GetOpenTrackedCount counts open issues with the "nightwatch" label.
func (c *Client) GetOpenTrackedCount(ctx context.Context) (int, error) {
	issues, _, err := c.gh.Issues.ListByRepo(ctx, c.owner, c.repo, &github.IssueListByRepoOptions{
		State:  "open",
		Labels: []string{"nightwatch"},
	})
	if err != nil {
		return 0, nil
	}
	return len(issues), nil
}

// CreateIssue creates a GitHub issue for an analyzed error.
func (c *Client) CreateIssue(ctx context.Context, result model.ErrorAnalysisResult, correlatedPRsSection string) (model.CreatedIssueResult, error) {
	title := buildIssueTitle(result.Error, result.Analysis)
	body := buildIssueBody(result, correlatedPRsSection)
	labels := buildLabels(result.Analysis)

	issue, _, err := c.gh.Issues.Create(ctx, c.owner, c.repo, &github.IssueRequest{
		Title:  &title,
		Body:   &body,
		Labels: &labels,
	})
	if err != nil {
		return model.CreatedIssueResult{}, fmt.Errorf("codehost: creating issue: %w", err)
	}
	if c.log != nil {
		c.log.Info("created issue", "number", issue.GetNumber(), "title", title)
	}

	return model.CreatedIssueResult{
		Error:       result.Error,
		Analysis:    result.Analysis,
		Action:      "created",
		IssueNumber: issue.GetNumber(),
		IssueURL:    issue.GetHTMLURL(),
	}, nil
}

// AddOccurrenceComment adds an occurrence comment to an existing issue.
func (c *Client) AddOccurrenceComment(ctx context.Context, issue capability.TrackedIssue, err model.ErrorGroup, analysis *model.Analysis) (model.CreatedIssueResult, error) {
	timestamp := c.now().UTC().Format("2006-01-02 15:04 UTC")

	var b strings.Builder
	fmt.Fprintf(&b, "## New Occurrence\n\n| Field | Value |\n|-------|-------|\n| **Time** | %s |\n| **Error** | `%s` |\n| **Transaction** | `%s` |\n| **Occurrences** | %d |\n",
		timestamp, err.ErrorClass, err.Transaction, err.Occurrences)
	if analysis != nil && analysis.Reasoning != "" {
		fmt.Fprintf(&b, "\n### Quick Analysis\n%s\n", truncate(analysis.Reasoning, 500))
	}
	b.WriteString("\n---\n*Logged by NightWatch*")
	body := b.String()

	if _, _, err2 := c.gh.Issues.CreateComment(ctx, c.owner, c.repo, issue.Number, &github.IssueComment{Body: &body}); err2 != nil {
		return model.CreatedIssueResult{}, fmt.Errorf("codehost: commenting on issue #%d: %w", issue.Number, err2)
	}
	if c.log != nil {
		c.log.Info("added occurrence comment", "issue", issue.Number)
	}

	analysisCopy := model.Analysis{Confidence: model.ConfidenceLow}
	if analysis != nil {
		analysisCopy = *analysis
	}
	return model.CreatedIssueResult{
		Error:       err,
		Analysis:    analysisCopy,
		Action:      "commented",
		IssueNumber: issue.Number,
		IssueURL:    issue.URL,
	}, nil
}

// CreatePullRequest creates a draft PR with the proposed fix.
func (c *Client) CreatePullRequest(ctx context.Context, result model.ErrorAnalysisResult, issueNumber int) (model.CreatedPRResult, error) {
	analysis := result.Analysis
	timestamp := c.now().UTC().Format("20060102150405")
	safeClass := safeErrorClassSlug(result.Error.ErrorClass)
	branchName := fmt.Sprintf("nightwatch/fix-%s-%s", safeClass, timestamp)

	baseRef, _, err := c.gh.Repositories.GetBranch(ctx, c.owner, c.repo, c.baseBranch, 0)
	if err != nil {
		return model.CreatedPRResult{}, fmt.Errorf("codehost: reading base branch: %w", err)
	}
	refName := "refs/heads/" + branchName
	if _, _, err := c.gh.Git.CreateRef(ctx, c.owner, c.repo, &github.Reference{
		Ref:    &refName,
		Object: &github.GitObject{SHA: baseRef.Commit.SHA},
	}); err != nil {
		return model.CreatedPRResult{}, fmt.Errorf("codehost: creating branch %s: %w", branchName, err)
	}

	filesChanged := 0
	for _, change := range analysis.FileChanges {
		if (change.Action != model.FileActionCreate && change.Action != model.FileActionModify) || change.Content == "" {
			continue
		}

		var sha *string
		if existing, _, _, err := c.gh.Repositories.GetContents(ctx, c.owner, c.repo, change.Path, &github.RepositoryContentGetOptions{Ref: branchName}); err == nil && existing != nil {
			sha = existing.SHA
		}

		message := "fix: " + analysis.Title
		opts := &github.RepositoryContentFileOptions{
			Message: &message,
			Content: []byte(change.Content),
			Branch:  &branchName,
			SHA:     sha,
		}
		if sha != nil {
			if _, _, err := c.gh.Repositories.UpdateFile(ctx, c.owner, c.repo, change.Path, opts); err != nil {
				return model.CreatedPRResult{}, fmt.Errorf("codehost: updating %s: %w", change.Path, err)
			}
		} else {
			if _, _, err := c.gh.Repositories.CreateFile(ctx, c.owner, c.repo, change.Path, opts); err != nil {
				return model.CreatedPRResult{}, fmt.Errorf("codehost: creating %s: %w", change.Path, err)
			}
		}
		filesChanged++
	}

	var changesList strings.Builder
	for _, ch := range analysis.FileChanges {
		fmt.Fprintf(&changesList, "- `%s`: %s\n", ch.Path, ch.Action)
	}

	prTitle := fmt.Sprintf("fix: %s [NO-JIRA]", analysis.Title)
	prBody := fmt.Sprintf("## Fixes #%d\n\n### Analysis\n%s\n\n### Root Cause\n%s\n\n### Changes\n%s\n### Confidence: **%s**\n\n---\n*Draft PR created by NightWatch*",
		issueNumber, truncate(analysis.Reasoning, 2000), analysis.RootCause, changesList.String(), strings.ToUpper(string(analysis.Confidence)))

	draft := true
	pr, _, err := c.gh.PullRequests.Create(ctx, c.owner, c.repo, &github.NewPullRequest{
		Title: &prTitle,
		Body:  &prBody,
		Head:  &branchName,
		Base:  &c.baseBranch,
		Draft: &draft,
	})
	if err != nil {
		return model.CreatedPRResult{}, fmt.Errorf("codehost: creating pull request: %w", err)
	}
	if c.log != nil {
		c.log.Info("created draft pr", "number", pr.GetNumber())
	}

	return model.CreatedPRResult{
		IssueNumber:  issueNumber,
		PRNumber:     pr.GetNumber(),
		PRURL:        pr.GetHTMLURL(),
		BranchName:   branchName,
		FilesChanged: filesChanged,
	}, nil
}

// RecentMerged returns PRs merged to the base branch in the last hours,
// most recent first, with per-PR changed files.
func (c *Client) RecentMerged(ctx context.Context, hours int) ([]model.CorrelatedPR, error) {
	cutoff := c.now().Add(-time.Duration(hours) * time.Hour)

	prs, _, err := c.gh.PullRequests.List(ctx, c.owner, c.repo, &github.PullRequestListOptions{
		State:       "closed",
		Base:        c.baseBranch,
		Sort:        "updated",
		Direction:   "desc",
		ListOptions: github.ListOptions{PerPage: 30},
	})
	if err != nil {
		return nil, fmt.Errorf("codehost: listing recent PRs: %w", err)
	}

	var out []model.CorrelatedPR
	for _, pr := range prs {
		if pr.MergedAt == nil || pr.GetMergedAt().Before(cutoff) {
			continue
		}

		files, _, err := c.gh.PullRequests.ListFiles(ctx, c.owner, c.repo, pr.GetNumber(), nil)
		if err != nil {
			continue
		}
		changed := make([]string, 0, len(files))
		for _, f := range files {
			changed = append(changed, f.GetFilename())
		}

		out = append(out, model.CorrelatedPR{
			Number:       pr.GetNumber(),
			Title:        pr.GetTitle(),
			URL:          pr.GetHTMLURL(),
			MergedAt:     pr.GetMergedAt().Format(time.RFC3339),
			ChangedFiles: changed,
		})
	}
	return out, nil
}

func isNotFound(err error) bool {
	var ghErr *github.ErrorResponse
	if asGithubError(err, &ghErr) {
		return ghErr.Response != nil && ghErr.Response.StatusCode == 404
	}
	return false
}

func asGithubError(err error, target **github.ErrorResponse) bool {
	for err != nil {
		if e, ok := err.(*github.ErrorResponse); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func safeErrorClassSlug(errorClass string) string {
	parts := strings.Split(errorClass, "::")
	last := parts[len(parts)-1]
	if len(last) > 30 {
		last = last[:30]
	}
	return strings.ToLower(strings.ReplaceAll(last, " ", "-"))
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func buildIssueTitle(err model.ErrorGroup, analysis model.Analysis) string {
	var shortTx string
	if err.Transaction != "" {
		trimmed := strings.ReplaceAll(err.Transaction, "Controller/", "")
		parts := strings.Split(trimmed, "/")
		if len(parts) >= 2 {
			shortTx = strings.Join(parts[len(parts)-2:], "/")
		} else {
			shortTx = parts[len(parts)-1]
		}
	}

	var shortMsg string
	if err.Message != "" {
		firstLine := strings.TrimSpace(strings.SplitN(err.Message, "\n", 2)[0])
		if len(firstLine) > 60 {
			shortMsg = firstLine[:57] + "..."
		} else {
			shortMsg = firstLine
		}
	}

	switch {
	case err.ErrorClass != "" && shortTx != "" && shortMsg != "":
		return fmt.Sprintf("%s in %s: %s", err.ErrorClass, shortTx, shortMsg)
	case err.ErrorClass != "" && shortTx != "":
		return fmt.Sprintf("%s in %s", err.ErrorClass, shortTx)
	case err.ErrorClass != "":
		return err.ErrorClass
	case analysis.Title != "" && analysis.Title != "Unknown Error":
		return analysis.Title
	default:
		return "Production Error"
	}
}

func buildLabels(analysis model.Analysis) []string {
	labels := []string{"nightwatch"}
	if analysis.HasFix {
		labels = append(labels, "has-fix")
	} else {
		labels = append(labels, "needs-investigation")
	}
	labels = append(labels, "confidence:"+string(analysis.Confidence))
	return labels
}

func buildIssueBody(result model.ErrorAnalysisResult, correlatedPRsSection string) string {
	err := result.Error
	analysis := result.Analysis

	var sections []string
	sections = append(sections, fmt.Sprintf("## Error Details\n\n- **Exception**: `%s`\n- **Transaction**: `%s`\n- **Occurrences**: %d\n- **Message**: %s\n- **Impact Score**: %s",
		err.ErrorClass, err.Transaction, err.Occurrences, truncate(err.Message, 500), strconv.FormatFloat(err.Score, 'f', 2, 64)))

	if correlatedPRsSection != "" {
		sections = append(sections, correlatedPRsSection)
	}
	if analysis.Reasoning != "" {
		sections = append(sections, "## Analysis\n\n"+truncate(analysis.Reasoning, 3000))
	}
	if analysis.RootCause != "" {
		sections = append(sections, "## Root Cause\n\n"+analysis.RootCause)
	}
	if analysis.HasFix && len(analysis.FileChanges) > 0 {
		var changes strings.Builder
		for _, c := range analysis.FileChanges {
			fmt.Fprintf(&changes, "- `%s`: %s — %s\n", c.Path, c.Action, c.Description)
		}
		sections = append(sections, "## Proposed Fix\n\n"+changes.String())
	}
	if len(analysis.SuggestedNextSteps) > 0 {
		var steps strings.Builder
		for _, s := range analysis.SuggestedNextSteps {
			fmt.Fprintf(&steps, "- [ ] %s\n", s)
		}
		sections = append(sections, "## Next Steps\n\n"+steps.String())
	}
	sections = append(sections, "---\n*Created by [NightWatch](https://github.com/nightwatch-dev/nightwatch)*")

	return strings.Join(sections, "\n\n")
}
