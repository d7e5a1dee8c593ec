// Package schedule maintains the ordered working set of upcoming alarm triggers.
//
// A Schedule maps trigger time to alarm and is kept always-future: after Build
// or Fire every entry lies strictly after the instant passed in. Entries that
// share a trigger time come out in insertion order.
package schedule
