package chat

import (
	"fmt"
	"strings"

	goslack "github.com/slack-go/slack"

	"github.com/nightwatch-dev/nightwatch/pkg/model"
)

var confidenceEmoji = map[model.Confidence]string{
	model.ConfidenceHigh:   ":large_green_circle:",
	model.ConfidenceMedium: ":large_yellow_circle:",
	model.ConfidenceLow:    ":red_circle:",
}

func buildReportBlocks(report model.RunReport) []goslack.Block {
	blocks := []goslack.Block{
		goslack.NewHeaderBlock(goslack.NewTextBlockObject(goslack.PlainTextType, "NightWatch Daily Report", false, false)),
		goslack.NewSectionBlock(nil, []*goslack.TextBlockObject{
			goslack.NewTextBlockObject(goslack.MarkdownType, fmt.Sprintf("*Errors Found:* %d groups", report.TotalErrorsFound), false, false),
			goslack.NewTextBlockObject(goslack.MarkdownType, fmt.Sprintf("*Filtered:* %d", report.ErrorsFiltered), false, false),
			goslack.NewTextBlockObject(goslack.MarkdownType, fmt.Sprintf("*Analyzed:* %d", report.ErrorsAnalyzed), false, false),
			goslack.NewTextBlockObject(goslack.MarkdownType, fmt.Sprintf("*Fixes Found:* %d", report.FixesFound()), false, false),
		}, nil),
		goslack.NewDividerBlock(),
	}

	for i, result := range report.Analyses {
		err := result.Error
		analysis := result.Analysis

		emoji, ok := confidenceEmoji[analysis.Confidence]
		if !ok {
			emoji = ":white_circle:"
		}
		status := "Needs investigation"
		if analysis.HasFix {
			status = "Fix found"
		}

		reasoning := analysis.Reasoning
		suffix := ""
		if len(reasoning) > 200 {
			reasoning = reasoning[:200]
			suffix = "..."
		}

		text := fmt.Sprintf("*%d. %s %s*\n`%s` · %d occurrences\n%s%s\nConfidence: *%s* · %s",
			i+1, emoji, err.ErrorClass, err.Transaction, err.Occurrences, reasoning, suffix, strings.ToUpper(string(analysis.Confidence)), status)

		blocks = append(blocks, goslack.NewSectionBlock(goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false), nil, nil))
	}

	blocks = append(blocks, goslack.NewDividerBlock())
	footer := fmt.Sprintf(":stopwatch: %.0fs · %d API calls · %d tokens", report.RunDurationSeconds, report.TotalAPICalls, report.TotalTokensUsed)
	blocks = append(blocks, goslack.NewContextBlock("", goslack.NewTextBlockObject(goslack.MarkdownType, footer, false, false)))

	return blocks
}

func buildFollowupBlocks(issues []model.CreatedIssueResult, pr *model.CreatedPRResult) []goslack.Block {
	blocks := []goslack.Block{
		goslack.NewHeaderBlock(goslack.NewTextBlockObject(goslack.PlainTextType, "NightWatch: Issues Created", false, false)),
	}

	for _, issue := range issues {
		actionText := "Updated"
		if issue.Action == "created" {
			actionText = "Created"
		}
		text := fmt.Sprintf("*%s:* <%s|#%d> — `%s` in `%s`", actionText, issue.IssueURL, issue.IssueNumber, issue.Error.ErrorClass, issue.Error.Transaction)
		blocks = append(blocks, goslack.NewSectionBlock(goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false), nil, nil))
	}

	if pr != nil {
		blocks = append(blocks, goslack.NewDividerBlock())
		text := fmt.Sprintf(":hammer_and_wrench: *Draft PR:* <%s|#%d> — %d files changed", pr.PRURL, pr.PRNumber, pr.FilesChanged)
		blocks = append(blocks, goslack.NewSectionBlock(goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false), nil, nil))
	}

	return blocks
}
