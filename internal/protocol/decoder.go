package protocol

import "bytes"

// Decoder reassembles terminator-suffixed messages on the client side, where
// one read may carry several alerts or only part of one.
type Decoder struct {
	// partial holds bytes received after the last terminator.
	partial []byte
}

// Feed appends a chunk and returns the messages it completed.
func (d *Decoder) Feed(chunk []byte) []string {
	d.partial = append(d.partial, chunk...)

	var messages []string

	for {
		i := bytes.IndexByte(d.partial, Terminator)
		if i < 0 {
			break
		}

		messages = append(messages, string(d.partial[:i]))
		d.partial = d.partial[i+1:]
	}

	if len(d.partial) == 0 {
		d.partial = nil
	}

	return messages
}

// Flush returns any unterminated remainder and resets the decoder.
func (d *Decoder) Flush() (string, bool) {
	if len(d.partial) == 0 {
		return "", false
	}

	rest := string(d.partial)
	d.partial = nil

	return rest, true
}
