// Package dispatch holds fired-but-undelivered alarms grouped by owner.
//
// The schedule pushes alarms into a Queue when they fire; the delivery step of
// the event loop drains the queue of every owner that has an identified client
// connected. Owners without such a client keep their entries until one appears.
package dispatch
