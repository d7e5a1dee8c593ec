package dispatch

import (
	"slices"

	domain "github.com/oshokin/alarm-push/internal/domain/alarm"
)

// Queue maps an owner identity to the alarms fired for it since the last drain.
// It is not safe for concurrent use; the event loop is its only user.
type Queue struct {
	// pending keeps alarms per owner in firing order.
	pending map[string][]*domain.Alarm
}

// NewQueue creates an empty dispatch queue.
func NewQueue() *Queue {
	return &Queue{
		pending: make(map[string][]*domain.Alarm),
	}
}

// Push queues a fired alarm for its owner.
// An alarm that is still pending is not queued twice; Push then returns false.
func (q *Queue) Push(alarm *domain.Alarm) bool {
	list := q.pending[alarm.Owner]
	if slices.Contains(list, alarm) {
		return false
	}

	q.pending[alarm.Owner] = append(list, alarm)

	return true
}

// Pending returns a copy of the alarms queued for owner, in firing order.
func (q *Queue) Pending(owner string) []*domain.Alarm {
	return slices.Clone(q.pending[owner])
}

// Clear drops every alarm queued for owner.
func (q *Queue) Clear(owner string) {
	delete(q.pending, owner)
}

// Owners returns the owners with at least one pending alarm, sorted.
func (q *Queue) Owners() []string {
	owners := make([]string, 0, len(q.pending))

	for owner, list := range q.pending {
		if len(list) > 0 {
			owners = append(owners, owner)
		}
	}

	slices.Sort(owners)

	return owners
}

// Counts returns the number of pending alarms per owner.
func (q *Queue) Counts() map[string]int {
	counts := make(map[string]int, len(q.pending))

	for owner, list := range q.pending {
		if len(list) > 0 {
			counts[owner] = len(list)
		}
	}

	return counts
}

// Len returns the total number of pending alarms.
func (q *Queue) Len() int {
	total := 0
	for _, list := range q.pending {
		total += len(list)
	}

	return total
}
