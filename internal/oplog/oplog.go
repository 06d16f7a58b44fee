// Package oplog implements the opx operation log: delimited rows appended to
// one file per user per calendar day, mirroring what the console shows. The
// log is the primary audit trail for fleet operations; console output is
// transient, the operation log is not.
package oplog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Delimiter separates fields within a log row.
const Delimiter = ";"

// Level classifies a log row.
type Level string

const (
	LevelInfo    Level = "Info"
	LevelWarning Level = "Warning"
	LevelError   Level = "Error"
)

// Header is the first line of every log file.
var Header = strings.Join([]string{
	"DateTime", "UtcOffset", "Computer", "UserName",
	"LogType", "CallingCmdlet", "LogMessage", "CallingID",
}, Delimiter)

// timeLayout matches the row DateTime field.
const timeLayout = "2006-01-02 15:04:05"

// Record is one operation log row.
type Record struct {
	Time          time.Time
	UTCOffset     string
	Computer      string
	UserName      string
	Level         Level
	CallingCmdlet string
	Message       string
	CallingID     string
}

// Writer appends records to the current user's daily log file.
type Writer struct {
	root      string
	computer  string
	userName  string
	callingID string

	// lastFile is the most recently written file, exposed for the log
	// inspection command's "show me what just happened" default.
	lastFile string
}

// NewWriter creates a writer rooted at dir for the given identity. The
// correlation ID tags every row written during this session.
func NewWriter(dir, computer, userName, callingID string) *Writer {
	return &Writer{
		root:      dir,
		computer:  computer,
		userName:  userName,
		callingID: callingID,
	}
}

// FilePath returns the log file path for the given day.
func (w *Writer) FilePath(day time.Time) string {
	user := sanitizeComponent(w.userName)
	return filepath.Join(w.root, user, fmt.Sprintf("opx-%s.log", day.Format("20060102")))
}

// LastFile returns the path of the most recently written log file.
func (w *Writer) LastFile() string {
	return w.lastFile
}

// CallingID returns the session correlation ID.
func (w *Writer) CallingID() string {
	return w.callingID
}

// Root returns the log root directory.
func (w *Writer) Root() string {
	return w.root
}

// Append writes one row, creating the directory and file (with header) as
// needed.
func (w *Writer) Append(level Level, cmdlet, message string) error {
	now := time.Now()
	rec := Record{
		Time:          now,
		UTCOffset:     utcOffset(now),
		Computer:      w.computer,
		UserName:      w.userName,
		Level:         level,
		CallingCmdlet: cmdlet,
		Message:       message,
		CallingID:     w.callingID,
	}
	return w.AppendRecord(rec)
}

// AppendRecord writes an explicit record.
func (w *Writer) AppendRecord(rec Record) error {
	path := w.FilePath(rec.Time)

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	_, statErr := os.Stat(path)
	isNew := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	if isNew {
		if _, err := fmt.Fprintln(f, Header); err != nil {
			return fmt.Errorf("failed to write log header: %w", err)
		}
	}

	if _, err := fmt.Fprintln(f, formatRecord(rec)); err != nil {
		return fmt.Errorf("failed to write log row: %w", err)
	}

	w.lastFile = path
	return nil
}

// formatRecord renders a record as a delimited row. The delimiter is
// stripped from free-text fields so rows stay parseable.
func formatRecord(rec Record) string {
	fields := []string{
		rec.Time.Format(timeLayout),
		rec.UTCOffset,
		rec.Computer,
		rec.UserName,
		string(rec.Level),
		sanitizeField(rec.CallingCmdlet),
		sanitizeField(rec.Message),
		rec.CallingID,
	}
	return strings.Join(fields, Delimiter)
}

// ParseRecord parses one delimited row. The header line is not a record.
func ParseRecord(line string) (Record, error) {
	parts := strings.Split(line, Delimiter)
	if len(parts) != 8 {
		return Record{}, fmt.Errorf("malformed log row: expected 8 fields, got %d", len(parts))
	}

	ts, err := time.ParseInLocation(timeLayout, parts[0], time.Local)
	if err != nil {
		return Record{}, fmt.Errorf("malformed log timestamp %q: %w", parts[0], err)
	}

	return Record{
		Time:          ts,
		UTCOffset:     parts[1],
		Computer:      parts[2],
		UserName:      parts[3],
		Level:         Level(parts[4]),
		CallingCmdlet: parts[5],
		Message:       parts[6],
		CallingID:     parts[7],
	}, nil
}

func sanitizeField(s string) string {
	s = strings.ReplaceAll(s, Delimiter, ",")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", "")
	return s
}

// sanitizeComponent makes an identity safe to use as a directory name
// (DOMAIN\user becomes DOMAIN_user).
func sanitizeComponent(s string) string {
	replacer := strings.NewReplacer(
		"\\", "_",
		"/", "_",
		":", "_",
		"@", "_",
		" ", "_",
	)
	out := replacer.Replace(s)
	if out == "" {
		out = "unknown"
	}
	return out
}

func utcOffset(t time.Time) string {
	_, offsetSeconds := t.Zone()
	sign := "+"
	if offsetSeconds < 0 {
		sign = "-"
		offsetSeconds = -offsetSeconds
	}
	return fmt.Sprintf("%s%02d:%02d", sign, offsetSeconds/3600, (offsetSeconds%3600)/60)
}
