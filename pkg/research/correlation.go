package research

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nightwatch-dev/nightwatch/pkg/model"
)

// CorrelateWithPRs scores each PR's changed-file overlap against error
// and returns the ones with any overlap, sorted by overlap descending.
// Grounded on correlation.py's correlate_error_with_prs; the PR fetch
// itself lives in pkg/codehost (Client.RecentMerged).
func CorrelateWithPRs(err model.ErrorGroup, prs []model.CorrelatedPR) []model.CorrelatedPR {
	terms := extractSearchTerms(err.ErrorClass, err.Transaction)
	if len(terms) == 0 {
		return nil
	}

	var related []model.CorrelatedPR
	for _, pr := range prs {
		overlap := 0
		for _, f := range pr.ChangedFiles {
			lower := strings.ToLower(f)
			for _, term := range terms {
				if strings.Contains(lower, term) {
					overlap++
					break
				}
			}
		}
		if overlap == 0 {
			continue
		}
		denom := len(pr.ChangedFiles)
		if denom == 0 {
			denom = 1
		}
		pr.OverlapScore = float64(overlap) / float64(denom)
		related = append(related, pr)
	}

	sort.SliceStable(related, func(i, j int) bool { return related[i].OverlapScore > related[j].OverlapScore })
	return related
}

// FormatCorrelatedPRs renders up to 5 correlated PRs as a markdown
// table for inclusion in an issue body. Returns "" if prs is empty.
func FormatCorrelatedPRs(prs []model.CorrelatedPR, now time.Time) string {
	if len(prs) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("## Recent Related Changes\n\n")
	b.WriteString("| PR | Title | Merged | Overlap |\n")
	b.WriteString("|----|-------|--------|---------|\n")

	limit := len(prs)
	if limit > 5 {
		limit = 5
	}
	for _, pr := range prs[:limit] {
		title := pr.Title
		if len(title) > 40 {
			title = title[:40] + "..."
		}
		fmt.Fprintf(&b, "| [#%d](%s) | %s | %s | %.0f%% |\n",
			pr.Number, pr.URL, title, timeAgo(pr.MergedAt, now), pr.OverlapScore*100)
	}
	b.WriteString("\n")
	return b.String()
}

func extractSearchTerms(errorClass, transaction string) []string {
	terms := make(map[string]bool)

	if transaction != "" && strings.Contains(transaction, "/") {
		for _, part := range strings.Split(strings.ToLower(transaction), "/") {
			if part == "" || part == "controller" || part == "action" || part == "nested" {
				continue
			}
			terms[part] = true
			if strings.HasSuffix(part, "s") && len(part) > 2 {
				terms[strings.TrimSuffix(part, "s")] = true
			}
			if !strings.HasSuffix(part, "_controller") {
				terms[part+"_controller"] = true
			}
		}
	}

	if errorClass != "" && strings.Contains(errorClass, "::") {
		for _, part := range strings.Split(errorClass, "::") {
			if strings.Contains(strings.ToLower(part), "error") {
				continue
			}
			snake := camelToSnake(part)
			terms[snake] = true
			if strings.HasSuffix(snake, "_controller") {
				terms[strings.TrimSuffix(snake, "_controller")] = true
			}
		}
	} else if errorClass != "" {
		snake := camelToSnake(errorClass)
		if !strings.Contains(snake, "error") {
			terms[snake] = true
		}
	}

	var out []string
	for t := range terms {
		if len(t) > 2 {
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

func timeAgo(iso string, reference time.Time) string {
	dt, err := time.Parse(time.RFC3339, iso)
	if err != nil {
		return "?"
	}
	hours := reference.Sub(dt).Hours()
	switch {
	case hours < 1:
		return fmt.Sprintf("%dm ago", int(hours*60))
	case hours < 24:
		return fmt.Sprintf("%dh ago", int(hours))
	default:
		return fmt.Sprintf("%dd ago", int(hours/24))
	}
}
