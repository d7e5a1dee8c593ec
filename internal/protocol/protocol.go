package protocol

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/oshokin/alarm-push/internal/logger"
	"github.com/oshokin/alarm-push/internal/registry"
)

const (
	// HelloPrefix starts an identification message.
	HelloPrefix = "HELLO\n"
	// HeartbeatPrefix starts a liveness message.
	HeartbeatPrefix = "HEARTBEAT\n"
	// Terminator ends every message written on the wire.
	Terminator byte = 0x00
	// ReadBufferSize bounds a single server-side read.
	ReadBufferSize = 1024
)

var (
	// ErrConnectionClosed reports an orderly close (a zero-byte read).
	ErrConnectionClosed = errors.New("connection closed by peer")
	// ErrProtocolViolation reports data that matches no known message.
	ErrProtocolViolation = errors.New("unrecognized message")
)

// MessageType classifies inbound data.
type MessageType uint8

const (
	// MessageUnknown is anything that is not a valid HELLO or HEARTBEAT.
	MessageUnknown MessageType = iota
	// MessageHello is an identification message.
	MessageHello
	// MessageHeartbeat is a liveness message.
	MessageHeartbeat
)

// String returns a log-friendly name.
func (t MessageType) String() string {
	switch t {
	case MessageHello:
		return "hello"
	case MessageHeartbeat:
		return "heartbeat"
	default:
		return "unknown"
	}
}

// Message is a classified inbound read.
type Message struct {
	// Type is the message classification.
	Type MessageType
	// Identity is the claimed identity of a HELLO message.
	Identity string
}

// Parse classifies the bytes of one read. Content after the first terminator is ignored.
func Parse(data []byte) Message {
	payload := data
	if i := bytes.IndexByte(payload, Terminator); i >= 0 {
		payload = payload[:i]
	}

	switch {
	case bytes.HasPrefix(payload, []byte(HelloPrefix)) && len(payload) > len(HelloPrefix):
		return Message{
			Type:     MessageHello,
			Identity: string(payload[len(HelloPrefix):]),
		}
	case bytes.HasPrefix(payload, []byte(HeartbeatPrefix)):
		return Message{Type: MessageHeartbeat}
	default:
		return Message{Type: MessageUnknown}
	}
}

// Result is the outcome of handling one read.
type Result struct {
	// Messages are the classified messages of the read, in order.
	Messages []Message
	// Reply holds bytes to write back to the client, if any.
	Reply []byte
}

// Split cuts one read into messages without their terminators. An unterminated
// tail counts as a message; the empty remainder after a final terminator does not.
func Split(data []byte) [][]byte {
	var messages [][]byte

	for len(data) > 0 {
		i := bytes.IndexByte(data, Terminator)
		if i < 0 {
			messages = append(messages, data)

			break
		}

		messages = append(messages, data[:i])
		data = data[i+1:]
	}

	return messages
}

// Handle applies every message of one read to the registry in order.
// Each HELLO is acknowledged by echoing it up to and including its terminator.
// An error means the connection must be torn down by the caller.
func Handle(ctx context.Context, clients *registry.Registry, id uuid.UUID, data []byte) (Result, error) {
	if len(data) == 0 {
		return Result{}, ErrConnectionClosed
	}

	var result Result

	for _, payload := range Split(data) {
		msg := Parse(payload)
		result.Messages = append(result.Messages, msg)

		switch msg.Type {
		case MessageHello:
			client, err := clients.Identify(id, msg.Identity)
			if err != nil {
				return result, fmt.Errorf("identify client: %w", err)
			}

			logger.InfoKV(ctx, "Client identified", "identity", client.Identity)

			result.Reply = append(result.Reply, payload...)
			result.Reply = append(result.Reply, Terminator)
		case MessageHeartbeat:
			client, err := clients.Heartbeat(id)
			if err != nil {
				return result, fmt.Errorf("heartbeat: %w", err)
			}

			logger.DebugKV(ctx, "Heartbeat received", "identity", client.Identity)
		default:
			return result, fmt.Errorf("%w: %q", ErrProtocolViolation, truncate(payload))
		}
	}

	return result, nil
}

// EncodeHello builds the identification message a client sends after connecting.
func EncodeHello(identity string) []byte {
	return terminate(HelloPrefix + identity)
}

// EncodeHeartbeat builds the liveness message.
func EncodeHeartbeat() []byte {
	return terminate(HeartbeatPrefix)
}

// EncodeAlert builds the alert written for an alarm message.
func EncodeAlert(message string) []byte {
	return terminate(message)
}

func terminate(s string) []byte {
	out := make([]byte, 0, len(s)+1)
	out = append(out, s...)

	return append(out, Terminator)
}

// maxLoggedBytes limits how much of an offending message ends up in errors.
const maxLoggedBytes = 64

func truncate(data []byte) []byte {
	if len(data) > maxLoggedBytes {
		return data[:maxLoggedBytes]
	}

	return data
}
