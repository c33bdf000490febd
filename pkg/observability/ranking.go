package observability

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nightwatch-dev/nightwatch/pkg/model"
)

var (
	criticalClasses = []string{"SystemStackError", "NoMemoryError", "SecurityError", "SignalException"}
	highClasses     = []string{"NoMethodError", "NameError", "TypeError", "ActiveRecord::RecordNotFound", "ActiveRecord::StatementInvalid"}
	mediumClasses   = []string{"ArgumentError", "KeyError", "RuntimeError", "StandardError"}
	lowClasses      = []string{"NotAuthorizedError", "CanCan::AccessDenied", "Pundit::NotAuthorizedError", "ActionController::RoutingError"}
)

// RankErrors scores each error's impact (frequency + severity + recency
// + user-facing) and returns them sorted by score descending.
func RankErrors(errors []model.ErrorGroup, now func() time.Time) []model.ErrorGroup {
	ranked := make([]model.ErrorGroup, len(errors))
	copy(ranked, errors)

	for i := range ranked {
		ranked[i].Score = min(float64(ranked[i].Occurrences)/100, 1.0)*0.4 +
			severityWeight(ranked[i].ErrorClass)*0.3 +
			recencyWeight(ranked[i].LastSeen, now)*0.2 +
			userFacingWeight(ranked[i].Transaction)*0.1
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	return ranked
}

func severityWeight(errorClass string) float64 {
	switch {
	case containsAny(errorClass, criticalClasses):
		return 1.0
	case containsAny(errorClass, highClasses):
		return 0.7
	case containsAny(errorClass, mediumClasses):
		return 0.5
	case containsAny(errorClass, lowClasses):
		return 0.3
	default:
		return 0.5
	}
}

func containsAny(s string, candidates []string) bool {
	for _, c := range candidates {
		if strings.Contains(s, c) {
			return true
		}
	}
	return false
}

// recencyWeight scores 1.0 for errors seen just now, 0.0 for errors 24h
// or more stale. lastSeen is an epoch-millis string as returned by New
// Relic.
func recencyWeight(lastSeen string, now func() time.Time) float64 {
	if lastSeen == "" {
		return 0.5
	}
	millis, err := strconv.ParseFloat(lastSeen, 64)
	if err != nil {
		return 0.5
	}
	ageHours := now().Sub(time.UnixMilli(int64(millis))).Hours()
	return max(0.0, min(1.0, 1.0-(ageHours/24)))
}

func userFacingWeight(transaction string) float64 {
	tx := strings.ToLower(transaction)
	switch {
	case strings.Contains(tx, "controller") || strings.Contains(tx, "api/"):
		return 1.0
	case strings.Contains(tx, "job") || strings.Contains(tx, "worker") || strings.Contains(tx, "sidekiq"):
		return 0.3
	case strings.Contains(tx, "mailer") || strings.Contains(tx, "notifier"):
		return 0.5
	default:
		return 0.6
	}
}
