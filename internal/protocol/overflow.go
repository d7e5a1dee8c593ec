package protocol

import "bytes"

// Truncator cuts inbound messages at ReadBufferSize on the server side.
// When a read fills the buffer and ends without a terminator, the message is
// handled as read and the rest of it is dropped up to the next terminator.
type Truncator struct {
	// discarding is set while the tail of an oversized message is skipped.
	discarding bool
}

// Cut returns the part of chunk to handle; full reports that the read filled the buffer.
func (t *Truncator) Cut(chunk []byte, full bool) []byte {
	if t.discarding {
		i := bytes.IndexByte(chunk, Terminator)
		if i < 0 {
			return nil
		}

		t.discarding = false
		chunk = chunk[i+1:]
	}

	if full && len(chunk) > 0 && chunk[len(chunk)-1] != Terminator {
		t.discarding = true
	}

	return chunk
}
