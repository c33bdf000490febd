package observability

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nightwatch-dev/nightwatch/pkg/model"
)

func fixedNow() func() time.Time {
	t := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return t }
}

func millisAgo(now time.Time, d time.Duration) string {
	return strconv.FormatInt(now.Add(-d).UnixMilli(), 10)
}

func TestRankErrorsOrdersCriticalAndFrequentAboveLowSeverity(t *testing.T) {
	now := fixedNow()
	errors := []model.ErrorGroup{
		{ErrorClass: "Pundit::NotAuthorizedError", Transaction: "Controller/orders/show", Occurrences: 2, LastSeen: millisAgo(now(), time.Hour)},
		{ErrorClass: "SystemStackError", Transaction: "Controller/checkout/create", Occurrences: 50, LastSeen: millisAgo(now(), time.Minute)},
	}

	ranked := RankErrors(errors, now)

	assert.Equal(t, "SystemStackError", ranked[0].ErrorClass)
	assert.Greater(t, ranked[0].Score, ranked[1].Score)
}

func TestRankErrorsIsStableSortByScoreDescending(t *testing.T) {
	now := fixedNow()
	errors := []model.ErrorGroup{
		{ErrorClass: "RuntimeError", Transaction: "Job/Sidekiq/Cleanup", Occurrences: 10, LastSeen: millisAgo(now(), 2*time.Hour)},
		{ErrorClass: "RuntimeError", Transaction: "Job/Sidekiq/Sweep", Occurrences: 10, LastSeen: millisAgo(now(), 2*time.Hour)},
	}

	ranked := RankErrors(errors, now)
	assert.Equal(t, ranked[0].Score, ranked[1].Score)
	assert.Equal(t, "Job/Sidekiq/Cleanup", ranked[0].Transaction)
}

func TestSeverityWeightClassifiesKnownClasses(t *testing.T) {
	assert.Equal(t, 1.0, severityWeight("SystemStackError"))
	assert.Equal(t, 0.7, severityWeight("NoMethodError"))
	assert.Equal(t, 0.5, severityWeight("ArgumentError"))
	assert.Equal(t, 0.3, severityWeight("CanCan::AccessDenied"))
	assert.Equal(t, 0.5, severityWeight("SomeUnknownError"))
}

func TestRecencyWeightDecaysToZeroAfter24Hours(t *testing.T) {
	now := fixedNow()
	assert.Equal(t, 1.0, recencyWeight(millisAgo(now(), 0), now))
	assert.InDelta(t, 0.5, recencyWeight(millisAgo(now(), 12*time.Hour), now), 0.001)
	assert.Equal(t, 0.0, recencyWeight(millisAgo(now(), 48*time.Hour), now))
}

func TestRecencyWeightFallsBackOnMissingOrBadInput(t *testing.T) {
	now := fixedNow()
	assert.Equal(t, 0.5, recencyWeight("", now))
	assert.Equal(t, 0.5, recencyWeight("not-a-number", now))
}

func TestUserFacingWeightClassifiesTransactionKinds(t *testing.T) {
	assert.Equal(t, 1.0, userFacingWeight("Controller/orders/show"))
	assert.Equal(t, 1.0, userFacingWeight("api/v1/orders"))
	assert.Equal(t, 0.3, userFacingWeight("Job/Sidekiq/CleanupWorker"))
	assert.Equal(t, 0.5, userFacingWeight("Mailer/OrderNotifier"))
	assert.Equal(t, 0.6, userFacingWeight("SomethingElse"))
}
