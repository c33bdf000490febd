// Package chat implements NightWatch's capability.ChatNotifier as a
// Slack bot-token DM with Block Kit reports. Grounded on the platform's
// slack.py (user lookup, DM-channel open, report/follow-up Block Kit
// builders) and on pkg/slack/client.go's style of a thin wrapper over
// the slack-go SDK.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	goslack "github.com/slack-go/slack"

	"github.com/nightwatch-dev/nightwatch/pkg/capability"
	"github.com/nightwatch-dev/nightwatch/pkg/model"
)

// Notifier sends NightWatch run reports as Slack DMs to a configured
// user.
type Notifier struct {
	api        *goslack.Client
	notifyUser string
	log        *slog.Logger

	userIDCache map[string]string
}

// New returns a Notifier authenticated with token, DMing notifyUser
// (a Slack display name).
func New(token, notifyUser string, log *slog.Logger) *Notifier {
	return &Notifier{
		api:         goslack.New(token),
		notifyUser:  notifyUser,
		log:         log,
		userIDCache: make(map[string]string),
	}
}

// NewWithAPIURL returns a Notifier whose Slack API calls target a
// custom base URL, for tests that stand up an httptest.Server.
func NewWithAPIURL(token, notifyUser, apiURL string, log *slog.Logger) *Notifier {
	return &Notifier{
		api:         goslack.New(token, goslack.OptionAPIURL(apiURL)),
		notifyUser:  notifyUser,
		log:         log,
		userIDCache: make(map[string]string),
	}
}

var _ capability.ChatNotifier = (*Notifier)(nil)

// NotifySummary sends the daily summary report as a DM.
func (n *Notifier) NotifySummary(ctx context.Context, report model.RunReport) (bool, error) {
	channel, err := n.dmChannel()
	if err != nil {
		return false, err
	}
	if channel == "" {
		return false, nil
	}

	blocks := buildReportBlocks(report)
	text := fmt.Sprintf("NightWatch: %d errors analyzed, %d fixes found", report.ErrorsAnalyzed, report.FixesFound())

	_, _, err = n.api.PostMessageContext(ctx, channel, goslack.MsgOptionBlocks(blocks...), goslack.MsgOptionText(text, false))
	if err != nil {
		if n.log != nil {
			n.log.Error("slack send error", "error", err)
		}
		return false, nil
	}
	if n.log != nil {
		n.log.Info("slack report sent")
	}
	return true, nil
}

// NotifyActions sends a follow-up message with created issues and PR
// links, threaded under the day's summary message when one can be
// found by fingerprint so a DM thread accumulates instead of spamming
// new top-level messages.
func (n *Notifier) NotifyActions(ctx context.Context, issues []model.CreatedIssueResult, pr *model.CreatedPRResult) (bool, error) {
	channel, err := n.dmChannel()
	if err != nil {
		return false, err
	}
	if channel == "" {
		return false, nil
	}

	blocks := buildFollowupBlocks(issues, pr)
	text := fmt.Sprintf("NightWatch: %d issues created", len(issues))

	opts := []goslack.MsgOption{goslack.MsgOptionBlocks(blocks...), goslack.MsgOptionText(text, false)}
	if threadTS, findErr := n.findMessageByFingerprint(ctx, channel, "NightWatch:"); findErr == nil && threadTS != "" {
		opts = append(opts, goslack.MsgOptionTS(threadTS))
	}

	_, _, err = n.api.PostMessageContext(ctx, channel, opts...)
	if err != nil {
		if n.log != nil {
			n.log.Error("slack follow-up error", "error", err)
		}
		return false, nil
	}
	if n.log != nil {
		n.log.Info("slack follow-up sent")
	}
	return true, nil
}

// findMessageByFingerprint searches the channel's recent history (last
// 24 hours, up to 1000 messages) for a message containing fingerprint,
// returning its timestamp for threading or "" if none matches.
// Grounded on the platform's pkg/slack/client.go.
func (n *Notifier) findMessageByFingerprint(ctx context.Context, channel, fingerprint string) (string, error) {
	oldest := fmt.Sprintf("%d", time.Now().Add(-24*time.Hour).Unix())
	normalizedFingerprint := strings.ToLower(strings.TrimSpace(fingerprint))

	params := &goslack.GetConversationHistoryParameters{
		ChannelID: channel,
		Oldest:    oldest,
		Limit:     200,
	}

	const maxPages = 5
	for page := 0; page < maxPages; page++ {
		history, err := n.api.GetConversationHistoryContext(ctx, params)
		if err != nil {
			return "", fmt.Errorf("conversations.history failed: %w", err)
		}

		for _, msg := range history.Messages {
			if strings.Contains(strings.ToLower(strings.TrimSpace(msg.Text)), normalizedFingerprint) {
				return msg.Timestamp, nil
			}
		}

		if !history.HasMore || history.ResponseMetaData.NextCursor == "" {
			break
		}
		params.Cursor = history.ResponseMetaData.NextCursor
	}

	return "", nil
}

// dmChannel resolves the configured notify-user to an open DM channel
// ID. Returns ("", nil) if the user can't be found or DM can't be
// opened — both are soft failures in the original.
func (n *Notifier) dmChannel() (string, error) {
	userID, err := n.userID(n.notifyUser)
	if err != nil || userID == "" {
		return "", nil
	}

	resp, err := n.api.OpenConversation(&goslack.OpenConversationParameters{Users: []string{userID}})
	if err != nil {
		if n.log != nil {
			n.log.Error("slack dm open error", "error", err)
		}
		return "", nil
	}
	return resp.ID, nil
}

// userID finds a Slack user ID by fuzzy display-name match, caching
// hits.
func (n *Notifier) userID(displayName string) (string, error) {
	if id, ok := n.userIDCache[displayName]; ok {
		return id, nil
	}

	members, err := n.api.GetUsers()
	if err != nil {
		if n.log != nil {
			n.log.Error("slack user lookup error", "error", err)
		}
		return "", nil
	}

	nameLower := strings.ToLower(displayName)
	for _, member := range members {
		if member.Deleted || member.IsBot {
			continue
		}
		names := []string{
			strings.ToLower(member.Name),
			strings.ToLower(member.RealName),
			strings.ToLower(member.Profile.DisplayName),
			strings.ToLower(member.Profile.RealName),
		}
		for _, name := range names {
			if name == nameLower || (name != "" && strings.Contains(name, nameLower)) {
				n.userIDCache[displayName] = member.ID
				if n.log != nil {
					n.log.Info("found slack user", "display_name", displayName, "id", member.ID)
				}
				return member.ID, nil
			}
		}
	}

	if n.log != nil {
		n.log.Warn("slack user not found", "display_name", displayName)
	}
	return "", nil
}
