package quota

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func newTracker(clock *fakeClock) *Tracker {
	return New(map[string]Limits{
		"brave":      {Daily: 3, Monthly: 10},
		"serper":     {Monthly: 5},
		"duckduckgo": {},
	}, clock)
}

func TestTracker_DailyLimitExhaustion(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	tr := newTracker(clock)

	for i := 0; i < 3; i++ {
		require.True(t, tr.HasQuotaRemaining("brave"), "call %d should be allowed", i)
		tr.RecordCall("brave")
	}
	require.False(t, tr.HasQuotaRemaining("brave"))

	remaining := tr.GetRemainingCalls("brave")
	require.NotNil(t, remaining.Daily)
	require.Equal(t, 0, *remaining.Daily)
	require.NotNil(t, remaining.Monthly)
	require.Equal(t, 7, *remaining.Monthly)
}

func TestTracker_UnmeteredProviderAlwaysAvailable(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	tr := newTracker(clock)

	for i := 0; i < 100; i++ {
		tr.RecordCall("duckduckgo")
	}
	require.True(t, tr.HasQuotaRemaining("duckduckgo"))

	remaining := tr.GetRemainingCalls("duckduckgo")
	require.Nil(t, remaining.Daily)
	require.Nil(t, remaining.Monthly)
}

func TestTracker_DailyResetNextUTCDay(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, 3, 10, 23, 50, 0, 0, time.UTC)}
	tr := newTracker(clock)

	for i := 0; i < 3; i++ {
		tr.RecordCall("brave")
	}
	require.False(t, tr.HasQuotaRemaining("brave"))

	// Ten minutes later it is the next UTC day.
	clock.now = time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)
	tr.ResetExpiredQuotas()
	require.True(t, tr.HasQuotaRemaining("brave"))

	// The monthly counter survives the daily reset.
	remaining := tr.GetRemainingCalls("brave")
	require.Equal(t, 7, *remaining.Monthly)
}

func TestTracker_MonthlyResetNextMonth(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)}
	tr := newTracker(clock)

	for i := 0; i < 5; i++ {
		tr.RecordCall("serper")
	}
	require.False(t, tr.HasQuotaRemaining("serper"))

	clock.now = time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	tr.ResetExpiredQuotas()
	require.True(t, tr.HasQuotaRemaining("serper"))
}

func TestTracker_ResetWithinSameDayDoesNothing(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC)}
	tr := newTracker(clock)

	tr.RecordCall("brave")
	clock.now = clock.now.Add(6 * time.Hour)
	tr.ResetExpiredQuotas()

	remaining := tr.GetRemainingCalls("brave")
	require.Equal(t, 2, *remaining.Daily)
}

func TestTracker_UnknownProviderAllowed(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC)}
	tr := newTracker(clock)

	require.True(t, tr.HasQuotaRemaining("never-configured"))
	tr.RecordCall("never-configured") // no-op, must not panic
}
