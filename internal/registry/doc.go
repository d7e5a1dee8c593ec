// Package registry tracks the client connections accepted by the server.
//
// Each entry pairs a connection with the identity the client announced (empty
// until HELLO) and the time of the last successful delivery. The registry has a
// fixed capacity and iterates in connection order so a delivery sweep is
// stable within one tick; removals requested during a sweep are deferred until
// ApplyRemovals.
package registry
