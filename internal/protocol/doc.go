// Package protocol implements the line-oriented client protocol.
//
// Clients identify with "HELLO\n<identity>" and keep the connection alive with
// "HEARTBEAT\n"; the server acknowledges HELLO by echoing it and pushes alerts
// as terminator-suffixed message text. There is no framing beyond these
// prefixes: a server-side read larger than ReadBufferSize is truncated.
package protocol
