// Package alarm contains the core domain type of the alarm business logic.
//
// An Alarm is an immutable, owned, recurring trigger definition. Its Kind is a
// closed variant (normal or periodic) selecting the occurrence arithmetic used
// by First and Next. Alarms are shared by pointer between the schedule and the
// dispatch queue, which is safe because nothing mutates them after New.
package alarm
