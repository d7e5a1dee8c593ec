package alarm

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind selects the occurrence arithmetic of an alarm.
type Kind uint8

const (
	// KindNormal fires once per day at Hour:Minute local time.
	KindNormal Kind = iota + 1
	// KindPeriodic fires every Hour hours and Minute minutes.
	KindPeriodic
)

const (
	// maxHour is the largest hour accepted for a time of day.
	maxHour = 23
	// maxMinute is the largest minute accepted for a time of day.
	maxMinute = 59
)

var (
	// ErrUnknownKind is returned when a kind token is neither normal nor periodic.
	ErrUnknownKind = errors.New("unknown alarm kind")
	// ErrEmptyOwner is returned when an alarm has no owner identity.
	ErrEmptyOwner = errors.New("alarm owner must be provided")
	// ErrTimeOfDayOutOfRange is returned when a normal alarm names an impossible time of day.
	ErrTimeOfDayOutOfRange = errors.New("time of day out of range")
	// ErrZeroInterval is returned for a periodic alarm that would never advance.
	ErrZeroInterval = errors.New("periodic interval must be positive")
)

// ParseKind converts a configuration token into a Kind.
func ParseKind(token string) (Kind, error) {
	switch strings.TrimSpace(token) {
	case "normal":
		return KindNormal, nil
	case "periodic":
		return KindPeriodic, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, token)
	}
}

// String returns the configuration token of the kind.
func (k Kind) String() string {
	switch k {
	case KindNormal:
		return "normal"
	case KindPeriodic:
		return "periodic"
	default:
		return "unknown"
	}
}

// Short returns the one-letter tag used in schedule listings.
func (k Kind) Short() string {
	switch k {
	case KindNormal:
		return "N"
	case KindPeriodic:
		return "P"
	default:
		return "?"
	}
}

// Alarm is a recurring trigger owned by a client identity.
type Alarm struct {
	// Owner is the identity of the client the message is delivered to.
	Owner string
	// Message is the delivered text, opaque to the scheduler.
	Message string
	// Hour is the hour of day (normal) or the hour part of the interval (periodic).
	Hour uint
	// Minute is the minute of hour (normal) or the minute part of the interval (periodic).
	Minute uint
	// Kind selects the occurrence arithmetic.
	Kind Kind
}

// New validates the fields and returns an immutable alarm.
func New(kind Kind, owner string, hour, minute uint, message string) (*Alarm, error) {
	a := &Alarm{
		Owner:   owner,
		Message: message,
		Hour:    hour,
		Minute:  minute,
		Kind:    kind,
	}

	if err := a.Validate(); err != nil {
		return nil, err
	}

	return a, nil
}

// Validate reports whether the alarm can be scheduled without stalling.
func (a *Alarm) Validate() error {
	if a.Owner == "" {
		return ErrEmptyOwner
	}

	switch a.Kind {
	case KindNormal:
		if a.Hour > maxHour || a.Minute > maxMinute {
			return fmt.Errorf("%w: %d:%02d", ErrTimeOfDayOutOfRange, a.Hour, a.Minute)
		}
	case KindPeriodic:
		if a.Hour == 0 && a.Minute == 0 {
			return ErrZeroInterval
		}
	default:
		return fmt.Errorf("%w: %d", ErrUnknownKind, a.Kind)
	}

	return nil
}

// First returns the first occurrence at or after now.
// A normal alarm returns today's slot even if it already passed; the schedule
// fast-forwards such entries.
func (a *Alarm) First(now time.Time) time.Time {
	switch a.Kind {
	case KindPeriodic:
		return now.Add(time.Second)
	default:
		y, m, d := now.Date()

		return time.Date(y, m, d, int(a.Hour), int(a.Minute), 0, 0, now.Location())
	}
}

// Next returns the occurrence following t. It is always strictly after t.
func (a *Alarm) Next(t time.Time) time.Time {
	switch a.Kind {
	case KindPeriodic:
		y, m, d := t.Date()
		hh, mm, ss := t.Clock()

		// Calendar-field addition keeps the wall-clock cadence across DST shifts.
		next := time.Date(y, m, d, hh+int(a.Hour), mm+int(a.Minute), ss, t.Nanosecond(), t.Location())
		if !next.After(t) {
			// Inside a repeated hour the normalized wall clock may land behind t.
			next = t.Add(a.Interval())
		}

		return next
	default:
		y, m, d := t.Date()

		return time.Date(y, m, d+1, int(a.Hour), int(a.Minute), 0, 0, t.Location())
	}
}

// Interval returns the absolute period of a periodic alarm, or a day for a normal one.
func (a *Alarm) Interval() time.Duration {
	if a.Kind == KindPeriodic {
		return time.Duration(a.Hour)*time.Hour + time.Duration(a.Minute)*time.Minute
	}

	return 24 * time.Hour
}

// String formats the alarm the way schedule listings print it.
func (a *Alarm) String() string {
	return fmt.Sprintf("%s: %d:%02d (%s) %s", a.Owner, a.Hour, a.Minute, a.Kind.Short(), a.Message)
}
