// Package apply executes a validated patch set, or an already-parsed file
// list, against a root directory. It owns no persistent state: each call is a
// pure function of (root, changes) onto filesystem side effects plus a
// partitioned result. Failures are isolated per change; the batch never
// aborts.
package apply

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/weftlabs/weft/internal/pathguard"
	"github.com/weftlabs/weft/internal/patch"
	"github.com/weftlabs/weft/internal/storage"
)

// Entry records the outcome of one requested change.
type Entry struct {
	Path   string `json:"path"`
	Op     string `json:"op"`
	Status string `json:"status,omitempty"`
	Mode   string `json:"mode,omitempty"`
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`
	Note   string `json:"note,omitempty"`
	Backup string `json:"backup,omitempty"`
	DryRun bool   `json:"dry_run,omitempty"`
}

// Result partitions the requested changes: every change lands in exactly one
// of the three lists.
type Result struct {
	Applied []Entry `json:"applied"`
	Skipped []Entry `json:"skipped"`
	Errors  []Entry `json:"errors"`
}

// Engine applies changes under a root directory.
type Engine struct {
	root      string
	dryRun    bool
	protected []string
	logf      func(format string, args ...any)
}

// Option configures an Engine.
type Option func(*Engine)

// WithDryRun reports what would happen without touching the filesystem.
func WithDryRun(on bool) Option {
	return func(e *Engine) { e.dryRun = on }
}

// WithProtectedPaths excludes the given root-relative paths (and anything
// nested under them) from mutation.
func WithProtectedPaths(paths []string) Option {
	return func(e *Engine) { e.protected = paths }
}

// WithLogf sets the sink for non-fatal notices such as backup failures.
func WithLogf(logf func(format string, args ...any)) Option {
	return func(e *Engine) { e.logf = logf }
}

// NewEngine returns an engine rooted at root.
func NewEngine(root string, opts ...Option) *Engine {
	e := &Engine{root: root}
	for _, opt := range opts {
		opt(e)
	}
	if e.logf == nil {
		e.logf = func(string, ...any) {}
	}
	return e
}

// ApplySet applies a validated patch set. The returned error covers only an
// unusable root; per-change failures are recorded in the result.
func (e *Engine) ApplySet(set *patch.Set) (*Result, error) {
	return e.applyChanges(set.Changes)
}

// ApplyFiles applies an already-parsed file list as upserts.
func (e *Engine) ApplyFiles(files []patch.ParsedFile) (*Result, error) {
	return e.applyChanges(patch.FromFiles("", files).Changes)
}

func (e *Engine) applyChanges(changes []patch.Change) (*Result, error) {
	root, err := pathguard.EnsureRoot(e.root)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Applied: []Entry{},
		Skipped: []Entry{},
		Errors:  []Entry{},
	}
	for _, ch := range changes {
		e.applyOne(root, ch, result)
	}
	return result, nil
}

// applyOne routes a single change into exactly one result list.
func (e *Engine) applyOne(root string, ch patch.Change, result *Result) {
	target, err := pathguard.Resolve(root, ch.Path)
	if err != nil {
		result.Errors = append(result.Errors, Entry{
			Path: ch.Path, Op: ch.Op, Error: err.Error(), Note: ch.Note,
		})
		return
	}

	if e.isProtected(root, target) {
		result.Skipped = append(result.Skipped, Entry{
			Path: ch.Path, Op: ch.Op, Reason: "protected_path",
		})
		return
	}

	switch {
	case ch.Op == patch.OpDelete:
		e.applyDelete(target, ch, result)
	case ch.Op == patch.OpUpsert || ch.Op == patch.OpUpdate:
		e.applyWrite(target, ch, result)
	default:
		result.Errors = append(result.Errors, Entry{
			Path: ch.Path, Op: ch.Op, Note: ch.Note,
			Error: fmt.Sprintf("unsupported op: %s", ch.Op),
		})
	}
}

// isProtected reports whether target matches, or is nested under, any
// protected path. Protected entries that fail to resolve are ignored.
func (e *Engine) isProtected(root, target string) bool {
	for _, p := range e.protected {
		guarded, err := pathguard.Resolve(root, p)
		if err != nil {
			continue
		}
		if target == guarded || strings.HasPrefix(target, guarded+string(os.PathSeparator)) {
			return true
		}
	}
	return false
}

// applyDelete removes the target. Deleting an absent target is applied, not
// an error: delete is idempotent.
func (e *Engine) applyDelete(target string, ch patch.Change, result *Result) {
	if e.dryRun {
		result.Applied = append(result.Applied, Entry{Path: ch.Path, Op: ch.Op, DryRun: true})
		return
	}

	info, err := os.Lstat(target)
	if err == nil {
		if info.IsDir() {
			err = os.RemoveAll(target)
		} else {
			err = os.Remove(target)
		}
		if err != nil {
			result.Errors = append(result.Errors, Entry{
				Path: ch.Path, Op: ch.Op, Error: err.Error(), Note: ch.Note,
			})
			return
		}
	}
	result.Applied = append(result.Applied, Entry{Path: ch.Path, Op: ch.Op, Status: "deleted"})
}

// applyWrite upserts full content at the target. An existing file is first
// copied to a timestamped sibling backup; a backup failure is logged but
// never blocks the write. The write itself is atomic, so the target is never
// observed half-written.
func (e *Engine) applyWrite(target string, ch patch.Change, result *Result) {
	if ch.Content == nil {
		msg := "upsert/update requires content"
		if ch.Diff != nil {
			msg = "diff-based updates are not supported; provide full content"
		}
		result.Errors = append(result.Errors, Entry{
			Path: ch.Path, Op: ch.Op, Error: msg, Note: ch.Note,
		})
		return
	}

	if e.dryRun {
		result.Applied = append(result.Applied, Entry{
			Path: ch.Path, Op: ch.Op, Mode: "content", DryRun: true,
		})
		return
	}

	backup := e.backupExisting(target)
	if err := storage.WriteFileAtomic(target, []byte(*ch.Content), 0644); err != nil {
		result.Errors = append(result.Errors, Entry{
			Path: ch.Path, Op: ch.Op, Error: err.Error(), Note: ch.Note,
		})
		return
	}
	result.Applied = append(result.Applied, Entry{
		Path: ch.Path, Op: ch.Op, Status: "written", Mode: "content", Backup: backup,
	})
}

// backupExisting copies the target's current bytes to
// <target>.bak-<YYYYMMDD-HHMMSS> (UTC) and returns the backup's base name,
// or "" when there was nothing to back up or the copy failed.
func (e *Engine) backupExisting(target string) string {
	data, err := os.ReadFile(target)
	if err != nil {
		if !os.IsNotExist(err) {
			e.logf("backup read failed for %s (continuing): %v", target, err)
		}
		return ""
	}

	backup := target + ".bak-" + time.Now().UTC().Format("20060102-150405")
	if err := os.WriteFile(backup, data, 0644); err != nil {
		e.logf("backup failed for %s (continuing): %v", target, err)
		return ""
	}
	return filepath.Base(backup)
}
