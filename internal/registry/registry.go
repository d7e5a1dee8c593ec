package registry

import (
	"errors"
	"net"
	"slices"
	"time"

	"github.com/google/uuid"
)

// DefaultCapacity is the number of concurrent clients the server accepts.
const DefaultCapacity = 5

var (
	// ErrRegistryFull is returned by Add when the registry is at capacity.
	ErrRegistryFull = errors.New("client registry is full")
	// ErrUnknownClient is returned for a connection ID that is not registered.
	ErrUnknownClient = errors.New("unknown client")
)

// Client is a registered connection.
type Client struct {
	// ID identifies the connection for logging and removal.
	ID uuid.UUID
	// Conn is the client socket.
	Conn net.Conn
	// Identity is the self-asserted client identity, empty until HELLO.
	Identity string
	// RemoteAddr is the peer address captured at accept time.
	RemoteAddr string
	// ConnectedAt is when the connection was registered.
	ConnectedAt time.Time
	// LastDelivery is the time of the last successful alert write.
	LastDelivery time.Time
	// LastHeartbeat is the time of the last HEARTBEAT message.
	LastHeartbeat time.Time
}

// Identified reports whether the client announced an identity.
func (c *Client) Identified() bool {
	return c.Identity != ""
}

// Registry maps connection IDs to clients.
// It is not safe for concurrent use; the event loop owns it.
type Registry struct {
	// clients holds the registered clients by ID.
	clients map[uuid.UUID]*Client
	// order keeps IDs in registration order for stable iteration.
	order []uuid.UUID
	// removals holds IDs marked during a sweep.
	removals []uuid.UUID
	// capacity is the maximum number of clients.
	capacity int
	// now returns the current time.
	now func() time.Time
}

// New creates an empty registry. A non-positive capacity selects DefaultCapacity,
// a nil clock selects time.Now.
func New(capacity int, now func() time.Time) *Registry {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	if now == nil {
		now = time.Now
	}

	return &Registry{
		clients:  make(map[uuid.UUID]*Client, capacity),
		order:    make([]uuid.UUID, 0, capacity),
		capacity: capacity,
		now:      now,
	}
}

// Add registers conn with an empty identity.
// It returns ErrRegistryFull without touching conn when the registry is full.
func (r *Registry) Add(conn net.Conn) (*Client, error) {
	if r.Full() {
		return nil, ErrRegistryFull
	}

	client := &Client{
		ID:          uuid.New(),
		Conn:        conn,
		ConnectedAt: r.now(),
	}

	if addr := conn.RemoteAddr(); addr != nil {
		client.RemoteAddr = addr.String()
	}

	r.clients[client.ID] = client
	r.order = append(r.order, client.ID)

	return client, nil
}

// Get returns the client registered under id.
func (r *Registry) Get(id uuid.UUID) (*Client, bool) {
	c, ok := r.clients[id]

	return c, ok
}

// Identify sets the identity of a client, overwriting any previous value.
func (r *Registry) Identify(id uuid.UUID, identity string) (*Client, error) {
	c, ok := r.clients[id]
	if !ok {
		return nil, ErrUnknownClient
	}

	c.Identity = identity

	return c, nil
}

// Heartbeat records a liveness message from a client.
func (r *Registry) Heartbeat(id uuid.UUID) (*Client, error) {
	c, ok := r.clients[id]
	if !ok {
		return nil, ErrUnknownClient
	}

	c.LastHeartbeat = r.now()

	return c, nil
}

// Delivered records a successful alert write at t.
func (r *Registry) Delivered(id uuid.UUID, t time.Time) {
	if c, ok := r.clients[id]; ok {
		c.LastDelivery = t
	}
}

// Remove closes the connection of a client and drops it from the registry.
// It reports whether the client was registered.
func (r *Registry) Remove(id uuid.UUID) bool {
	c, ok := r.clients[id]
	if !ok {
		return false
	}

	_ = c.Conn.Close() //nolint:errcheck // The connection is being discarded.

	delete(r.clients, id)
	r.order = slices.DeleteFunc(r.order, func(other uuid.UUID) bool { return other == id })

	return true
}

// MarkForRemoval defers the removal of a client until ApplyRemovals.
func (r *Registry) MarkForRemoval(id uuid.UUID) {
	if !slices.Contains(r.removals, id) {
		r.removals = append(r.removals, id)
	}
}

// ApplyRemovals removes every client marked since the last call and returns them.
func (r *Registry) ApplyRemovals() []*Client {
	removed := make([]*Client, 0, len(r.removals))

	for _, id := range r.removals {
		c, ok := r.clients[id]
		if !ok {
			continue
		}

		r.Remove(id)
		removed = append(removed, c)
	}

	r.removals = r.removals[:0]

	return removed
}

// Each calls fn for every client in registration order until fn returns false.
// fn must not add or remove clients; use MarkForRemoval instead.
func (r *Registry) Each(fn func(c *Client) bool) {
	for _, id := range r.order {
		if !fn(r.clients[id]) {
			return
		}
	}
}

// Clients returns copies of the registered clients in registration order.
func (r *Registry) Clients() []Client {
	result := make([]Client, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, *r.clients[id])
	}

	return result
}

// CloseAll closes and removes every client.
func (r *Registry) CloseAll() {
	for _, id := range slices.Clone(r.order) {
		r.Remove(id)
	}

	r.removals = r.removals[:0]
}

// Len returns the number of registered clients.
func (r *Registry) Len() int {
	return len(r.clients)
}

// Capacity returns the maximum number of clients.
func (r *Registry) Capacity() int {
	return r.capacity
}

// Full reports whether another client can be added.
func (r *Registry) Full() bool {
	return len(r.clients) >= r.capacity
}
