package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/alarm-push/internal/dispatch"
	domain "github.com/oshokin/alarm-push/internal/domain/alarm"
)

// mustAlarm builds a valid alarm or fails the test.
func mustAlarm(t *testing.T, kind domain.Kind, owner string, hour, minute uint, message string) *domain.Alarm {
	t.Helper()

	a, err := domain.New(kind, owner, hour, minute, message)
	require.NoError(t, err)

	return a
}

// requireFuture asserts every entry lies strictly after now.
func requireFuture(t *testing.T, s *Schedule, now time.Time) {
	t.Helper()

	for _, e := range s.Entries() {
		require.True(t, e.At.After(now), "%s scheduled at %s, not after %s", e.Alarm, e.At, now)
	}
}

// TestBuild_NormalAlreadyPassedToday schedules today's passed slot for tomorrow.
func TestBuild_NormalAlreadyPassedToday(t *testing.T) {
	t.Parallel()

	wake := mustAlarm(t, domain.KindNormal, "u1", 7, 0, "wake")
	now := time.Date(2024, 5, 14, 7, 0, 1, 0, time.UTC)

	s, err := Build([]*domain.Alarm{wake}, now)
	require.NoError(t, err)
	require.Equal(t, 1, s.Len())

	head, ok := s.Peek()
	require.True(t, ok)
	require.Same(t, wake, head.Alarm)
	require.Equal(t, time.Date(2024, 5, 15, 7, 0, 0, 0, time.UTC), head.At)
}

// TestBuild_MonotonicFuture checks the post-condition for a mixed set of alarms.
func TestBuild_MonotonicFuture(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 14, 12, 0, 0, 0, time.UTC)
	alarms := []*domain.Alarm{
		mustAlarm(t, domain.KindNormal, "u1", 0, 0, "midnight"),
		mustAlarm(t, domain.KindNormal, "u1", 12, 0, "noon"),
		mustAlarm(t, domain.KindNormal, "u2", 18, 30, "evening"),
		mustAlarm(t, domain.KindPeriodic, "u2", 0, 15, "quarter"),
	}

	s, err := Build(alarms, now)
	require.NoError(t, err)
	require.Equal(t, len(alarms), s.Len())
	requireFuture(t, s, now)

	entries := s.Entries()
	require.Equal(t, "quarter", entries[0].Alarm.Message)
	require.Equal(t, now.Add(time.Second), entries[0].At)
	require.Equal(t, "evening", entries[1].Alarm.Message)
	require.Equal(t, "midnight", entries[2].Alarm.Message)
	require.Equal(t, "noon", entries[3].Alarm.Message)
}

// TestBuild_Empty returns an empty schedule.
func TestBuild_Empty(t *testing.T) {
	t.Parallel()

	s, err := Build(nil, time.Now())
	require.NoError(t, err)
	require.Zero(t, s.Len())

	_, ok := s.Peek()
	require.False(t, ok)

	fired, err := s.Fire(time.Now(), dispatch.NewQueue())
	require.NoError(t, err)
	require.Zero(t, fired)
}

// TestFire_QueuesDueAlarmsOnly fires the due entry and leaves the rest.
func TestFire_QueuesDueAlarmsOnly(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 14, 6, 0, 0, 0, time.UTC)
	wake := mustAlarm(t, domain.KindNormal, "alice", 7, 0, "wake")
	lunch := mustAlarm(t, domain.KindNormal, "bob", 12, 0, "lunch")

	s, err := Build([]*domain.Alarm{wake, lunch}, now)
	require.NoError(t, err)

	queue := dispatch.NewQueue()
	tick := time.Date(2024, 5, 14, 7, 0, 0, 0, time.UTC)

	fired, err := s.Fire(tick, queue)
	require.NoError(t, err)
	require.Equal(t, 1, fired)
	require.Equal(t, []*domain.Alarm{wake}, queue.Pending("alice"))
	require.Empty(t, queue.Pending("bob"))
	requireFuture(t, s, tick)

	head, ok := s.Peek()
	require.True(t, ok)
	require.Same(t, lunch, head.Alarm)
}

// TestFire_CatchUpCoalescing produces one queue entry however many slots were missed.
func TestFire_CatchUpCoalescing(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 5, 14, 10, 0, 0, 0, time.UTC)
	every10 := mustAlarm(t, domain.KindPeriodic, "u1", 0, 10, "ping")

	s, err := Build([]*domain.Alarm{every10}, start)
	require.NoError(t, err)

	// Blocked for 35 minutes: slots at +1s, +10m1s, +20m1s and +30m1s elapsed.
	queue := dispatch.NewQueue()
	now := start.Add(35 * time.Minute)

	fired, err := s.Fire(now, queue)
	require.NoError(t, err)
	require.Equal(t, 1, fired)
	require.Len(t, queue.Pending("u1"), 1)

	head, ok := s.Peek()
	require.True(t, ok)
	require.Equal(t, start.Add(40*time.Minute+time.Second), head.At)
	requireFuture(t, s, now)
}

// TestFire_SeedsFromTriggerNotNow keeps the cadence anchored on the trigger time.
func TestFire_SeedsFromTriggerNotNow(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 5, 14, 10, 0, 0, 0, time.UTC)
	hourly := mustAlarm(t, domain.KindPeriodic, "u1", 1, 0, "stand up")

	s, err := Build([]*domain.Alarm{hourly}, start)
	require.NoError(t, err)

	_, err = s.Fire(start.Add(3*time.Second), dispatch.NewQueue())
	require.NoError(t, err)

	head, ok := s.Peek()
	require.True(t, ok)
	require.Equal(t, start.Add(time.Hour+time.Second), head.At)
}

// TestFire_TiesInInsertionOrder fires same-instant alarms in the order they were scheduled.
func TestFire_TiesInInsertionOrder(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 14, 6, 0, 0, 0, time.UTC)
	first := mustAlarm(t, domain.KindNormal, "alice", 7, 0, "first")
	second := mustAlarm(t, domain.KindNormal, "alice", 7, 0, "second")
	third := mustAlarm(t, domain.KindNormal, "alice", 7, 0, "third")

	s, err := Build([]*domain.Alarm{first, second, third}, now)
	require.NoError(t, err)

	queue := dispatch.NewQueue()

	_, err = s.Fire(time.Date(2024, 5, 14, 7, 0, 0, 0, time.UTC), queue)
	require.NoError(t, err)
	require.Equal(t, []*domain.Alarm{first, second, third}, queue.Pending("alice"))
}

// TestFire_RepeatedWithoutDelivery keeps a single pending entry per alarm.
func TestFire_RepeatedWithoutDelivery(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 5, 14, 10, 0, 0, 0, time.UTC)
	every5 := mustAlarm(t, domain.KindPeriodic, "alice", 0, 5, "ping")

	s, err := Build([]*domain.Alarm{every5}, start)
	require.NoError(t, err)

	queue := dispatch.NewQueue()

	for i := 1; i <= 3; i++ {
		fired, err := s.Fire(start.Add(time.Duration(i)*6*time.Minute), queue)
		require.NoError(t, err)
		require.Equal(t, 1, fired)
	}

	require.Len(t, queue.Pending("alice"), 1)
}

// TestStalledAlarm_DroppedNotSpun guards against arithmetic that never advances.
func TestStalledAlarm_DroppedNotSpun(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 14, 10, 0, 0, 0, time.UTC)

	// Bypasses domain.New, which would reject the zero interval.
	degenerate := &domain.Alarm{Owner: "u1", Kind: domain.KindPeriodic, Message: "spin"}
	healthy := mustAlarm(t, domain.KindPeriodic, "u1", 0, 1, "ok")

	s, err := Build([]*domain.Alarm{degenerate, healthy}, now)
	require.NoError(t, err)
	require.Equal(t, 2, s.Len())

	queue := dispatch.NewQueue()

	fired, err := s.Fire(now.Add(2*time.Second), queue)
	require.ErrorIs(t, err, ErrStalledAlarm)
	require.Equal(t, 2, fired)
	require.Equal(t, 1, s.Len())

	head, ok := s.Peek()
	require.True(t, ok)
	require.Same(t, healthy, head.Alarm)
}

// TestDescribe lists entries in trigger order with relative times.
func TestDescribe(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 14, 7, 0, 0, 0, time.UTC)
	alarms := []*domain.Alarm{
		mustAlarm(t, domain.KindNormal, "bob", 9, 0, "standup"),
		mustAlarm(t, domain.KindNormal, "alice", 8, 0, "wake"),
	}

	s, err := Build(alarms, now)
	require.NoError(t, err)

	lines := s.Describe(now)
	require.Equal(t, []string{
		"2024.05.14 08:00:00 (1 hour from now) alice: 8:00 (N) wake",
		"2024.05.14 09:00:00 (2 hours from now) bob: 9:00 (N) standup",
	}, lines)

	empty, err := Build(nil, now)
	require.NoError(t, err)
	require.Empty(t, empty.Describe(now))
}
