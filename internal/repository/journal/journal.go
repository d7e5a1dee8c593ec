package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// Registers the pure-Go "sqlite" driver.
	_ "modernc.org/sqlite"
)

// Status is the outcome of a delivery attempt.
type Status string

const (
	// StatusDelivered marks a successful write.
	StatusDelivered Status = "delivered"
	// StatusFailed marks a write that tore the connection down.
	StatusFailed Status = "failed"
)

// Delivery is one alert write attempt.
type Delivery struct {
	// ID is the row identifier assigned on insert.
	ID int64
	// Owner is the alarm owner and client identity.
	Owner string
	// Message is the alert text.
	Message string
	// ConnID identifies the connection written to.
	ConnID string
	// RemoteAddr is the peer address of the connection.
	RemoteAddr string
	// At is when the write was attempted.
	At time.Time
	// Status is the outcome.
	Status Status
}

// Recorder stores delivery attempts.
type Recorder interface {
	Record(ctx context.Context, d Delivery) error
}

// Store is a SQLite-backed Recorder.
type Store struct {
	// db is the underlying connection pool.
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS deliveries (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	owner       TEXT NOT NULL,
	message     TEXT NOT NULL,
	conn_id     TEXT NOT NULL,
	remote_addr TEXT NOT NULL,
	status      TEXT NOT NULL,
	attempted   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_deliveries_owner ON deliveries(owner, attempted);
`

// Open opens (or creates) the journal database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	// The dispatcher is the only writer.
	db.SetMaxOpenConns(1)

	if _, err = db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("migrate journal: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts a delivery attempt.
func (s *Store) Record(ctx context.Context, d Delivery) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO deliveries (owner, message, conn_id, remote_addr, status, attempted)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		d.Owner, d.Message, d.ConnID, d.RemoteAddr, string(d.Status), d.At.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record delivery: %w", err)
	}

	return nil
}

// Recent returns up to limit deliveries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Delivery, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, owner, message, conn_id, remote_addr, status, attempted
		 FROM deliveries ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query deliveries: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var result []Delivery

	for rows.Next() {
		var (
			d         Delivery
			status    string
			attempted string
		)

		if err = rows.Scan(&d.ID, &d.Owner, &d.Message, &d.ConnID, &d.RemoteAddr, &status, &attempted); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}

		d.Status = Status(status)

		if d.At, err = time.Parse(time.RFC3339Nano, attempted); err != nil {
			return nil, fmt.Errorf("parse delivery time: %w", err)
		}

		result = append(result, d)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deliveries: %w", err)
	}

	return result, nil
}
