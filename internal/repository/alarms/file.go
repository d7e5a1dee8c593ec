package alarms

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	domain "github.com/oshokin/alarm-push/internal/domain/alarm"
)

// DefaultFilePermissions is the mode used when writing an alarms file.
const DefaultFilePermissions = 0o600

var (
	// ErrNotFound is returned when the alarms file does not exist.
	ErrNotFound = errors.New("alarms file not found")
	// errTruncatedRecord is returned when input ends in the middle of a record.
	errTruncatedRecord = errors.New("truncated record")
	// errMissingField is returned when a required line is blank.
	errMissingField = errors.New("missing field")
	// errBadInterval is returned when the hour/minute line is not two unsigned integers.
	errBadInterval = errors.New("expected two unsigned integers")
)

// Repository provides the alarm definitions the server schedules.
type Repository interface {
	Load(ctx context.Context) ([]*domain.Alarm, error)
}

// RecordError describes the record that stopped loading.
type RecordError struct {
	// Line is the 1-based line number where the record starts.
	Line int
	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *RecordError) Error() string {
	return fmt.Sprintf("record at line %d: %v", e.Line, e.Err)
}

// Unwrap returns the underlying cause.
func (e *RecordError) Unwrap() error {
	return e.Err
}

// FileRepository reads alarms from a file on disk.
type FileRepository struct {
	// path is the filesystem location of the alarms file.
	path string
	// mu serializes file access.
	mu sync.Mutex
}

// NewFileRepository creates a repository for the alarms file at path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Path returns the location of the alarms file.
func (r *FileRepository) Path() string {
	return r.path
}

// Load reads and decodes the alarms file.
// On a malformed record it returns the alarms decoded so far together with a *RecordError.
func (r *FileRepository) Load(_ context.Context) ([]*domain.Alarm, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := os.Open(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("open alarms file: %w", err)
	}

	defer func() {
		_ = f.Close()
	}()

	return Decode(f)
}

// Save writes alarms to disk in the record format.
func (r *FileRepository) Save(_ context.Context, alarms []*domain.Alarm) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var b strings.Builder
	if err := Encode(&b, alarms); err != nil {
		return err
	}

	if err := os.WriteFile(r.path, []byte(b.String()), DefaultFilePermissions); err != nil {
		return fmt.Errorf("write alarms file: %w", err)
	}

	return nil
}

// Decode reads records until EOF or the first malformed record.
func Decode(in io.Reader) ([]*domain.Alarm, error) {
	lines := newLineReader(in)

	var result []*domain.Alarm

	for {
		// Blank lines between records are tolerated.
		if !lines.skipBlank() {
			return result, lines.err()
		}

		start := lines.number + 1

		alarm, err := decodeRecord(lines)
		if err != nil {
			return result, &RecordError{Line: start, Err: err}
		}

		result = append(result, alarm)
	}
}

func decodeRecord(lines *lineReader) (*domain.Alarm, error) {
	fields := make([]string, 0, 4)

	for range 4 {
		line, ok := lines.next()
		if !ok {
			if err := lines.err(); err != nil {
				return nil, err
			}

			return nil, errTruncatedRecord
		}

		fields = append(fields, line)
	}

	// Separator line, absent at the end of some files.
	lines.next()

	kind, err := domain.ParseKind(firstField(fields[0]))
	if err != nil {
		return nil, err
	}

	owner := firstField(fields[1])
	if owner == "" {
		return nil, fmt.Errorf("owner: %w", errMissingField)
	}

	hour, minute, err := parseInterval(fields[2])
	if err != nil {
		return nil, err
	}

	return domain.New(kind, owner, hour, minute, fields[3])
}

func parseInterval(line string) (uint, uint, error) {
	parts := strings.Fields(line)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: %q", errBadInterval, line)
	}

	hour, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", errBadInterval, line)
	}

	minute, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", errBadInterval, line)
	}

	return uint(hour), uint(minute), nil
}

func firstField(line string) string {
	if f := strings.Fields(line); len(f) > 0 {
		return f[0]
	}

	return ""
}

// Encode writes alarms in the record format read by Decode.
func Encode(out io.Writer, alarms []*domain.Alarm) error {
	for _, a := range alarms {
		if _, err := fmt.Fprintf(out, "%s\n%s\n%d %d\n%s\n\n", a.Kind, a.Owner, a.Hour, a.Minute, a.Message); err != nil {
			return fmt.Errorf("encode alarm %s: %w", a.Owner, err)
		}
	}

	return nil
}

// lineReader tracks line numbers and keeps one line of look-ahead.
type lineReader struct {
	// scanner splits the input into lines.
	scanner *bufio.Scanner
	// number is the count of lines consumed.
	number int
	// peeked holds a line read by skipBlank but not consumed yet.
	peeked *string
}

func newLineReader(in io.Reader) *lineReader {
	return &lineReader{scanner: bufio.NewScanner(in)}
}

func (l *lineReader) next() (string, bool) {
	if l.peeked != nil {
		line := *l.peeked
		l.peeked = nil
		l.number++

		return line, true
	}

	if !l.scanner.Scan() {
		return "", false
	}

	l.number++

	return strings.TrimSuffix(l.scanner.Text(), "\r"), true
}

// skipBlank consumes blank lines and reports whether a non-blank line follows.
func (l *lineReader) skipBlank() bool {
	for {
		line, ok := l.next()
		if !ok {
			return false
		}

		if strings.TrimSpace(line) != "" {
			l.number--
			l.peeked = &line

			return true
		}
	}
}

func (l *lineReader) err() error {
	if err := l.scanner.Err(); err != nil {
		return fmt.Errorf("read alarms: %w", err)
	}

	return nil
}
