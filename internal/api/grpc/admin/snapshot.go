package admin

import (
	"sync/atomic"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
)

// ScheduledAlarm is one schedule entry.
type ScheduledAlarm struct {
	// At is the trigger time.
	At time.Time
	// Owner is the alarm owner.
	Owner string
	// Kind is the kind token (normal or periodic).
	Kind string
	// Hour and Minute are the alarm fields.
	Hour, Minute uint
	// Message is the alert text.
	Message string
}

// ClientInfo describes one registered connection.
type ClientInfo struct {
	// ConnID identifies the connection.
	ConnID string
	// Identity is empty until the client says HELLO.
	Identity string
	// RemoteAddr is the peer address.
	RemoteAddr string
	// ConnectedAt is the registration time.
	ConnectedAt time.Time
	// LastDelivery is zero until the first alert is written.
	LastDelivery time.Time
}

// Snapshot is an immutable view of the dispatcher state after a tick.
type Snapshot struct {
	// GeneratedAt is the tick time.
	GeneratedAt time.Time
	// Schedule lists upcoming triggers in order.
	Schedule []ScheduledAlarm
	// Clients lists registered connections in registration order.
	Clients []ClientInfo
	// Pending counts fired but undelivered alarms per owner.
	Pending map[string]int
	// Serving reports whether a listening session is up.
	Serving bool
}

// Store holds the latest published snapshot.
// Publish is called by the event loop, Load by RPC handlers.
type Store struct {
	// current is the last published snapshot.
	current atomic.Pointer[Snapshot]
}

// Publish replaces the current snapshot. The caller must not modify s afterwards.
func (s *Store) Publish(snapshot *Snapshot) {
	s.current.Store(snapshot)
}

// Load returns the current snapshot, or an empty one before the first Publish.
func (s *Store) Load() *Snapshot {
	if snapshot := s.current.Load(); snapshot != nil {
		return snapshot
	}

	return &Snapshot{Pending: map[string]int{}}
}

// ToStruct converts the snapshot into a protobuf Struct.
func (s *Snapshot) ToStruct() (*structpb.Struct, error) {
	schedule := make([]any, 0, len(s.Schedule))
	for _, e := range s.Schedule {
		schedule = append(schedule, map[string]any{
			"at":      formatTime(e.At),
			"owner":   e.Owner,
			"kind":    e.Kind,
			"hour":    e.Hour,
			"minute":  e.Minute,
			"message": e.Message,
		})
	}

	clients := make([]any, 0, len(s.Clients))
	for _, c := range s.Clients {
		clients = append(clients, map[string]any{
			"conn_id":       c.ConnID,
			"identity":      c.Identity,
			"remote_addr":   c.RemoteAddr,
			"connected_at":  formatTime(c.ConnectedAt),
			"last_delivery": formatTime(c.LastDelivery),
		})
	}

	pending := make(map[string]any, len(s.Pending))
	for owner, count := range s.Pending {
		pending[owner] = count
	}

	return structpb.NewStruct(map[string]any{
		"generated_at": formatTime(s.GeneratedAt),
		"serving":      s.Serving,
		"schedule":     schedule,
		"clients":      clients,
		"pending":      pending,
	})
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	return t.Format(time.RFC3339)
}
