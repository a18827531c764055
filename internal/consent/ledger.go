// Package consent maintains the append-only JSON-Lines ledger of
// authorization events. Entries are immutable once written: the ledger only
// grows, and every append happens under an exclusive lock with fsync
// durability. Reads take no lock and may trail a concurrent writer by one
// entry; that staleness is acceptable for the "has consent ever been given"
// query the ledger exists to answer.
package consent

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/weftlabs/weft/internal/storage"
)

// SchemaVersion is the current ledger entry schema.
const SchemaVersion = 1

// Authorization modes.
const (
	ModeLoad   = "load"
	ModeEnable = "enable"
)

// maxRationaleLen bounds a rationale before truncation.
const maxRationaleLen = 2000

// tsFormat is ISO-8601 UTC at seconds precision; no sub-second noise so
// entries stay stable under diffing.
const tsFormat = "2006-01-02T15:04:05Z"

// ErrLockUnavailable is returned in strict mode when the configured lock
// cannot exclude other processes.
var ErrLockUnavailable = errors.New("strict locking requires a cross-process lock")

// Entry is one immutable authorization event.
type Entry struct {
	ID            string `json:"id"`
	TS            string `json:"ts"`
	Actor         string `json:"actor"`
	Mode          string `json:"mode"`
	Rationale     string `json:"rationale"`
	PID           int    `json:"pid"`
	Thread        string `json:"thread"`
	SchemaVersion int    `json:"schema_version"`
}

// requiredFields must be present on every ledger line.
var requiredFields = []string{"id", "ts", "actor", "mode", "rationale", "schema_version"}

// Ledger is a handle to one ledger file. It carries all lifecycle state
// explicitly so tests and callers never depend on process-wide globals.
type Ledger struct {
	path   string
	origin string
	strict bool
	lock   ExclusiveFileLock
	logf   func(format string, args ...any)
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithStrictLocking makes Record fail instead of degrading when the lock
// cannot exclude other processes.
func WithStrictLocking(on bool) Option {
	return func(l *Ledger) { l.strict = on }
}

// WithLock replaces the default cross-process lock.
func WithLock(lock ExclusiveFileLock) Option {
	return func(l *Ledger) { l.lock = lock }
}

// WithOrigin sets the label recorded in each entry's "thread" field.
func WithOrigin(origin string) Option {
	return func(l *Ledger) { l.origin = origin }
}

// WithLogf sets the sink for degraded-mode notices.
func WithLogf(logf func(format string, args ...any)) Option {
	return func(l *Ledger) { l.logf = logf }
}

// NewLedger returns a ledger handle for path. The default lock is an
// advisory flock on a "<path>.lock" sidecar.
func NewLedger(path string, opts ...Option) *Ledger {
	l := &Ledger{path: path, origin: "main"}
	for _, opt := range opts {
		opt(l)
	}
	if l.lock == nil {
		l.lock = NewCrossProcessLock(path + ".lock")
	}
	if l.logf == nil {
		l.logf = func(string, ...any) {}
	}
	return l
}

// Path returns the backing file path.
func (l *Ledger) Path() string { return l.path }

// Record appends one authorization event and returns it. The append is a
// single write syscall under the exclusive lock, followed by an fsync; file
// permissions are tightened to owner-only afterwards.
func (l *Ledger) Record(actor, mode, rationale string) (Entry, error) {
	if strings.TrimSpace(actor) == "" {
		return Entry{}, fmt.Errorf("actor is required")
	}
	if strings.TrimSpace(mode) == "" {
		return Entry{}, fmt.Errorf("mode is required")
	}
	if !l.lock.CrossProcess() {
		if l.strict {
			return Entry{}, ErrLockUnavailable
		}
		l.logf("consent ledger: in-process lock only; appends are not protected against other processes")
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0700); err != nil {
		return Entry{}, fmt.Errorf("create ledger dir: %w", err)
	}

	entry := Entry{
		ID:            uuid.NewString(),
		TS:            time.Now().UTC().Format(tsFormat),
		Actor:         actor,
		Mode:          mode,
		Rationale:     sanitizeRationale(rationale),
		PID:           os.Getpid(),
		Thread:        l.origin,
		SchemaVersion: SchemaVersion,
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return Entry{}, fmt.Errorf("marshal ledger entry: %w", err)
	}

	if err := l.lock.Lock(); err != nil {
		return Entry{}, err
	}
	defer func() {
		_ = l.lock.Unlock()
	}()

	if err := storage.AppendLine(l.path, line, 0600); err != nil {
		return Entry{}, fmt.Errorf("append ledger entry: %w", err)
	}
	if err := os.Chmod(l.path, 0600); err != nil {
		l.logf("consent ledger: tighten permissions: %v", err)
	}
	return entry, nil
}

// Query reports whether a matching (actor, mode) entry exists, scanning
// top-to-bottom without a lock. A non-zero since only counts entries at or
// after that instant. Malformed lines never match; an unparseable timestamp
// on an otherwise matching entry counts as a match rather than silently
// hiding recorded consent.
func (l *Ledger) Query(actor, mode string, since time.Time) (bool, error) {
	if actor == "" || mode == "" {
		return false, nil
	}

	found := false
	err := storage.ScanLines(l.path, func(_ int, line []byte) error {
		if found {
			return nil
		}
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil
		}
		if entry.Actor != actor || entry.Mode != mode {
			return nil
		}
		if !since.IsZero() {
			ts, err := parseTimestamp(entry.TS)
			if err == nil && ts.Before(since) {
				return nil
			}
		}
		found = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

// Verify checks every ledger line and returns the full list of defects
// rather than stopping at the first: invalid JSON, non-object lines, missing
// required fields, and unparseable timestamps. A missing ledger verifies
// clean.
func (l *Ledger) Verify() (bool, []string, error) {
	var defects []string
	err := storage.ScanLines(l.path, func(lineNum int, line []byte) error {
		var obj map[string]any
		if err := json.Unmarshal(line, &obj); err != nil {
			defects = append(defects, fmt.Sprintf("line %d: invalid JSON: %v", lineNum, err))
			return nil
		}
		for _, field := range requiredFields {
			if _, ok := obj[field]; !ok {
				defects = append(defects, fmt.Sprintf("line %d: missing field %q", lineNum, field))
			}
		}
		if ts, ok := obj["ts"].(string); ok {
			if _, err := parseTimestamp(ts); err != nil {
				defects = append(defects, fmt.Sprintf("line %d: invalid timestamp %q", lineNum, ts))
			}
		}
		return nil
	})
	if err != nil {
		return false, nil, err
	}
	return len(defects) == 0, defects, nil
}

// Export copies the entire ledger to destPath atomically (temp file, fsync,
// rename, directory fsync). A missing ledger exports as an empty file. The
// export is an audit/backup aid; it never mutates the ledger.
func (l *Ledger) Export(destPath string) error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("read ledger: %w", err)
		}
		data = nil
	}
	return storage.WriteFileAtomic(destPath, data, 0600)
}

// sanitizeRationale trims and bounds free-form rationale text. The cut backs
// up to a rune boundary so truncation never leaves invalid UTF-8.
func sanitizeRationale(text string) string {
	t := strings.TrimSpace(text)
	if len(t) <= maxRationaleLen {
		return t
	}
	cut := maxRationaleLen
	for cut > 0 && !utf8.RuneStart(t[cut]) {
		cut--
	}
	return t[:cut] + " …[truncated]"
}

// parseTimestamp accepts RFC3339 with or without sub-second precision.
func parseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
