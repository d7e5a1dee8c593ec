package schedule

import (
	"container/heap"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dustin/go-humanize"

	domain "github.com/oshokin/alarm-push/internal/domain/alarm"
)

// TimeLayout is the trigger time format used in schedule listings.
const TimeLayout = "2006.01.02 15:04:05"

// ErrStalledAlarm reports an alarm whose Next did not move past its input.
// Such an alarm is removed from the schedule instead of being requeued.
var ErrStalledAlarm = errors.New("alarm occurrence does not advance")

// Sink receives alarms as they fire.
type Sink interface {
	Push(alarm *domain.Alarm) bool
}

// Entry is one pending trigger.
type Entry struct {
	// At is the instant the alarm is due.
	At time.Time
	// Alarm is the shared, immutable definition.
	Alarm *domain.Alarm

	// seq orders entries sharing the same trigger time.
	seq uint64
}

// Schedule is an ordered multi-map from trigger time to alarm.
// It is not safe for concurrent use.
type Schedule struct {
	// entries is a min-heap on (At, seq).
	entries entryHeap
	// seq is the next insertion sequence number.
	seq uint64
}

// Build schedules every alarm at its first occurrence and fast-forwards the
// entries that are already due, using now as the catch-up reference.
// On return every entry lies strictly after now. The returned error lists
// alarms dropped because they did not advance; the schedule is usable anyway.
func Build(alarms []*domain.Alarm, now time.Time) (*Schedule, error) {
	s := &Schedule{
		entries: make(entryHeap, 0, len(alarms)),
	}

	for _, alarm := range alarms {
		s.push(alarm.First(now), alarm)
	}

	var errs []error

	for s.entries.Len() > 0 && !s.entries[0].At.After(now) {
		head := heap.Pop(&s.entries).(*Entry) //nolint:forcetypeassert // Heap only holds *Entry.

		next := head.Alarm.Next(now)
		if !next.After(now) {
			errs = append(errs, stalled(head.Alarm, now, next))
			continue
		}

		s.push(next, head.Alarm)
	}

	return s, errors.Join(errs...)
}

// Fire moves every alarm due at or before now into sink and requeues it at
// its first occurrence strictly after now. Missed occurrences are coalesced:
// an alarm is pushed once per call however many of its slots elapsed.
// It returns the number of alarms fired.
func (s *Schedule) Fire(now time.Time, sink Sink) (int, error) {
	var (
		fired int
		errs  []error
	)

	for s.entries.Len() > 0 && !s.entries[0].At.After(now) {
		head := heap.Pop(&s.entries).(*Entry) //nolint:forcetypeassert // Heap only holds *Entry.

		sink.Push(head.Alarm)
		fired++

		next, err := catchUp(head.Alarm, head.At, now)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		s.push(next, head.Alarm)
	}

	return fired, errors.Join(errs...)
}

// Len returns the number of scheduled alarms.
func (s *Schedule) Len() int {
	return s.entries.Len()
}

// Peek returns the earliest entry without removing it.
func (s *Schedule) Peek() (Entry, bool) {
	if s.entries.Len() == 0 {
		return Entry{}, false
	}

	return *s.entries[0], true
}

// Entries returns a copy of all entries in trigger order.
func (s *Schedule) Entries() []Entry {
	result := make([]Entry, 0, s.entries.Len())
	for _, e := range s.entries {
		result = append(result, *e)
	}

	slices.SortFunc(result, compareEntries)

	return result
}

// Describe renders one line per entry in trigger order, with the trigger time
// both absolute and relative to now.
func (s *Schedule) Describe(now time.Time) []string {
	entries := s.Entries()
	lines := make([]string, 0, len(entries))

	for _, e := range entries {
		lines = append(lines, fmt.Sprintf(
			"%s (%s) %s",
			e.At.Format(TimeLayout),
			humanize.RelTime(e.At, now, "ago", "from now"),
			e.Alarm,
		))
	}

	return lines
}

func (s *Schedule) push(at time.Time, alarm *domain.Alarm) {
	heap.Push(&s.entries, &Entry{
		At:    at,
		Alarm: alarm,
		seq:   s.seq,
	})

	s.seq++
}

// catchUp applies Next from the fired trigger until the result passes now.
func catchUp(alarm *domain.Alarm, from, now time.Time) (time.Time, error) {
	at := from

	for !at.After(now) {
		next := alarm.Next(at)
		if !next.After(at) {
			return time.Time{}, stalled(alarm, at, next)
		}

		at = next
	}

	return at, nil
}

func stalled(alarm *domain.Alarm, from, next time.Time) error {
	return fmt.Errorf("%w: %s: %s -> %s", ErrStalledAlarm, alarm, from.Format(time.DateTime), next.Format(time.DateTime))
}

func compareEntries(a, b Entry) int {
	if c := a.At.Compare(b.At); c != 0 {
		return c
	}

	switch {
	case a.seq < b.seq:
		return -1
	case a.seq > b.seq:
		return 1
	default:
		return 0
	}
}

// entryHeap implements heap.Interface ordered by trigger time, then insertion.
type entryHeap []*Entry

var _ heap.Interface = (*entryHeap)(nil)

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool { return compareEntries(*h[i], *h[j]) < 0 }

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x any) {
	*h = append(*h, x.(*Entry)) //nolint:forcetypeassert // Heap only holds *Entry.
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]

	return it
}
