package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "github.com/oshokin/alarm-push/internal/domain/alarm"
	"github.com/oshokin/alarm-push/internal/protocol"
	"github.com/oshokin/alarm-push/internal/repository/journal"
)

var (
	errTestAccept = errors.New("test accept error")
	errTestLoad   = errors.New("test load error")
)

// pipeListener is an in-memory net.Listener handing out net.Pipe server ends.
type pipeListener struct {
	// conns carries server ends from dial to Accept.
	conns chan net.Conn
	// closed is closed by Close.
	closed chan struct{}
	// once guards closed.
	once sync.Once
	// acceptErr, when set, is returned by every Accept.
	acceptErr error
}

func newPipeListener() *pipeListener {
	return &pipeListener{
		conns:  make(chan net.Conn),
		closed: make(chan struct{}),
	}
}

// Accept waits for dial or Close.
func (l *pipeListener) Accept() (net.Conn, error) {
	if l.acceptErr != nil {
		return nil, l.acceptErr
	}

	select {
	case conn := <-l.conns:
		return conn, nil
	case <-l.closed:
		return nil, net.ErrClosed
	}
}

// Close stops Accept.
func (l *pipeListener) Close() error {
	l.once.Do(func() {
		close(l.closed)
	})

	return nil
}

// Addr returns a placeholder address.
func (l *pipeListener) Addr() net.Addr {
	return pipeAddr{}
}

// dial connects a new client and returns its end once the server accepted.
func (l *pipeListener) dial(t *testing.T) net.Conn {
	t.Helper()

	server, client := net.Pipe()
	l.conns <- server

	t.Cleanup(func() {
		_ = client.Close()
	})

	return client
}

// pipeAddr is the address of a pipeListener.
type pipeAddr struct{}

func (pipeAddr) Network() string { return "pipe" }
func (pipeAddr) String() string  { return "pipe" }

// memoryRepository is a minimal in-memory alarms.Repository for tests.
type memoryRepository struct {
	// alarms is returned by Load.
	alarms []*domain.Alarm
	// err is returned by Load.
	err error
}

// Load returns the configured alarms and error.
func (m *memoryRepository) Load(context.Context) ([]*domain.Alarm, error) {
	return m.alarms, m.err
}

// memoryJournal collects deliveries in memory.
type memoryJournal struct {
	mu         sync.Mutex
	deliveries []journal.Delivery
}

// Record appends d.
func (m *memoryJournal) Record(_ context.Context, d journal.Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deliveries = append(m.deliveries, d)

	return nil
}

// list returns a copy of the recorded deliveries.
func (m *memoryJournal) list() []journal.Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]journal.Delivery(nil), m.deliveries...)
}

// fakeClock is a settable clock for tests that drive the dispatcher directly.
type fakeClock struct {
	now time.Time
}

// Now returns the current fake time.
func (c *fakeClock) Now() time.Time {
	return c.now
}

// mustAlarm builds a valid alarm or fails the test.
func mustAlarm(t *testing.T, kind domain.Kind, owner string, hour, minute uint, message string) *domain.Alarm {
	t.Helper()

	a, err := domain.New(kind, owner, hour, minute, message)
	require.NoError(t, err)

	return a
}

// readAlerts decodes alerts from conn into the returned channel until conn fails.
func readAlerts(conn net.Conn) <-chan string {
	out := make(chan string, 16)

	go func() {
		defer close(out)

		var (
			decoder protocol.Decoder
			buf     = make([]byte, protocol.ReadBufferSize)
		)

		for {
			n, err := conn.Read(buf)
			for _, message := range decoder.Feed(buf[:n]) {
				out <- message
			}

			if err != nil {
				return
			}
		}
	}()

	return out
}

// readExactly reads n bytes from conn.
func readExactly(t *testing.T, conn net.Conn, n int) []byte {
	t.Helper()

	buf := make([]byte, n)
	read := 0

	for read < n {
		m, err := conn.Read(buf[read:])
		require.NoError(t, err)

		read += m
	}

	return buf
}
