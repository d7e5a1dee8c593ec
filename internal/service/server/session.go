package server

import (
	"bytes"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/oshokin/alarm-push/internal/protocol"
)

// eventBufferSize is the capacity of the session event channel.
const eventBufferSize = 64

// eventKind classifies inputs of the dispatcher.
type eventKind uint8

const (
	// eventAccepted carries a freshly accepted connection.
	eventAccepted eventKind = iota
	// eventRead carries the outcome of one read on a registered connection.
	eventRead
	// eventAcceptFailed reports that the listener stopped accepting.
	eventAcceptFailed
)

// event is one unit of work for the dispatcher.
type event struct {
	// kind selects which fields are set.
	kind eventKind
	// conn is the accepted connection (eventAccepted).
	conn net.Conn
	// id is the connection the read happened on (eventRead).
	id uuid.UUID
	// data holds the bytes of one read, at most protocol.ReadBufferSize.
	data []byte
	// err is the read or accept error, if any.
	err error
}

// session groups the goroutines serving one listening socket.
type session struct {
	// listener is the listening socket of this session.
	listener net.Listener
	// events feeds the dispatcher.
	events chan event
	// done is closed when the session ends; blocked senders give up.
	done chan struct{}
	// wg tracks the acceptor and reader goroutines.
	wg sync.WaitGroup
	// closeOnce guards done and the listener.
	closeOnce sync.Once
}

func newSession(listener net.Listener) *session {
	return &session{
		listener: listener,
		events:   make(chan event, eventBufferSize),
		done:     make(chan struct{}),
	}
}

// start launches the acceptor goroutine.
func (s *session) start() {
	s.wg.Add(1)

	go s.accept()
}

// watch launches the reader goroutine of a registered connection.
func (s *session) watch(id uuid.UUID, conn net.Conn) {
	s.wg.Add(1)

	go s.read(id, conn)
}

func (s *session) accept() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.send(event{kind: eventAcceptFailed, err: err})

			return
		}

		if !s.send(event{kind: eventAccepted, conn: conn}) {
			_ = conn.Close()

			return
		}
	}
}

// read forwards every read of conn until it fails.
// Messages longer than the buffer are truncated to their first read.
func (s *session) read(id uuid.UUID, conn net.Conn) {
	defer s.wg.Done()

	var (
		overflow protocol.Truncator
		buf      = make([]byte, protocol.ReadBufferSize)
	)

	for {
		n, err := conn.Read(buf)

		data := overflow.Cut(buf[:n], n == len(buf))
		if len(data) == 0 && err == nil {
			continue
		}

		ev := event{
			kind: eventRead,
			id:   id,
			err:  err,
		}

		if len(data) > 0 {
			ev.data = bytes.Clone(data)
		}

		if !s.send(ev) || err != nil {
			return
		}
	}
}

func (s *session) send(ev event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

// stop unblocks the acceptor and every sender.
func (s *session) stop() {
	s.closeOnce.Do(func() {
		close(s.done)

		_ = s.listener.Close()
	})
}

// wait blocks until every session goroutine returned, then closes connections
// that were accepted but never handed to the dispatcher.
// The caller closes registered connections beforehand so readers can exit.
func (s *session) wait() {
	s.wg.Wait()

	for {
		select {
		case ev := <-s.events:
			if ev.conn != nil {
				_ = ev.conn.Close()
			}
		default:
			return
		}
	}
}
