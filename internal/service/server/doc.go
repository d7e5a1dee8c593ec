// Package server implements the alarm-server process.
//
// A single dispatcher goroutine owns the schedule, the dispatch queue and the
// client registry. Per-session goroutines accept connections and read from
// them, handing every result to the dispatcher over one event channel. Each
// loop iteration waits for the first event or the tick interval, handles all
// queued events, then fires due alarms and delivers them to identified
// clients. A broken listener ends the session; the dispatcher closes every
// connection, sleeps for the interval and listens again while the schedule
// and the undelivered alarms carry over.
package server
