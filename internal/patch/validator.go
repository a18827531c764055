package patch

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
)

// ValidationError reports the first schema violation in a patch set, naming
// the offending field, change index, and value. A single invalid change
// invalidates the entire set: this is the schema gate, stricter than the
// apply engine's later per-change isolation.
type ValidationError struct {
	Field  string
	Index  int // change index; -1 for set-level violations
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("patch set: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("changes[%d].%s: %s (value %q)", e.Index, e.Field, e.Reason, e.Value)
}

// validOps enumerates the operations a change may request.
var validOps = map[string]bool{
	OpUpsert: true,
	OpUpdate: true,
	OpDelete: true,
}

// Validate checks the field-level invariants of the set and fails on the
// first violation. Validation must run before any write. Language hints are
// normalized to lowercase in place; they never block validation.
func (s *Set) Validate() error {
	if len(s.Changes) == 0 {
		return &ValidationError{Field: "changes", Index: -1, Reason: "must not be empty"}
	}

	for i := range s.Changes {
		ch := &s.Changes[i]
		if err := validatePath(i, ch.Path); err != nil {
			return err
		}
		if !validOps[ch.Op] {
			return &ValidationError{Field: "op", Index: i, Value: ch.Op,
				Reason: "must be one of: upsert, update, delete"}
		}
		ch.Language = strings.ToLower(strings.TrimSpace(ch.Language))

		if ch.Op == OpDelete {
			continue // delete ignores content
		}
		if ch.Content != nil {
			continue // content wins even when a diff is also present
		}
		if ch.Diff != nil {
			return &ValidationError{Field: "diff", Index: i, Value: ch.Path,
				Reason: "diff-based updates are not supported; provide full content"}
		}
		return &ValidationError{Field: "content", Index: i, Value: ch.Path,
			Reason: "upsert/update requires content"}
	}
	return nil
}

func validatePath(index int, path string) error {
	if strings.TrimSpace(path) == "" {
		return &ValidationError{Field: "path", Index: index, Value: path, Reason: "must not be empty"}
	}
	if filepath.IsAbs(path) {
		return &ValidationError{Field: "path", Index: index, Value: path,
			Reason: "absolute paths are not allowed"}
	}
	for _, seg := range strings.Split(filepath.ToSlash(path), "/") {
		if seg == ".." {
			return &ValidationError{Field: "path", Index: index, Value: path,
				Reason: "path traversal '..' is not allowed"}
		}
	}
	return nil
}

// DecodeSet deserializes a JSON payload into a Set and validates it.
func DecodeSet(data []byte) (*Set, error) {
	var set Set
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("decode patch set: %w", err)
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return &set, nil
}
