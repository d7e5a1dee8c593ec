// Package journal records alert deliveries in a SQLite database.
//
// The journal is an audit trail for operators: every write attempt made by the
// delivery step is stored with its outcome. Nothing reads it back into the
// schedule, which is always rebuilt from the alarms file.
package journal
