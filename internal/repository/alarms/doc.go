// Package alarms loads alarm definitions from the plain-text alarms file.
//
// Each record spans five lines: the kind token (normal or periodic), the owner
// identity, "hour minute", the message text and a separator line. Loading
// stops at the first malformed record; the alarms decoded before it are kept.
package alarms
