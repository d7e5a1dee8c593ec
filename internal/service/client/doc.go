// Package client implements alarm-client, the reconnecting TCP peer of alarm-server.
//
// The client announces its identity with HELLO, prints every alert the server
// pushes and sends HEARTBEAT whenever the connection stays silent for one
// interval. Any failure closes the connection; a new one is attempted after
// the same interval.
package client
