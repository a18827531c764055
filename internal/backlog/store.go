// Package backlog is the append-only JSON-Lines work queue. Items are never
// edited in place: every state change appends a new line reusing the item's
// id, and the latest line per id is that item's current state. Stable digest
// ids make re-ingested findings land on the same item.
package backlog

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/weftlabs/weft/internal/storage"
)

// Item statuses.
const (
	StatusTodo       = "todo"
	StatusInProgress = "in_progress"
	StatusReview     = "review"
	StatusDone       = "done"
	StatusBlocked    = "blocked"
)

// ValidStatuses maps every recognized status.
var ValidStatuses = map[string]bool{
	StatusTodo:       true,
	StatusInProgress: true,
	StatusReview:     true,
	StatusDone:       true,
	StatusBlocked:    true,
}

const tsFormat = "2006-01-02T15:04:05Z"

// Item is one backlog line. File, Line, Rule and Source locate the finding
// the item tracks and name the tool that produced it; Meta carries free-form
// detail, with meta["digest"] holding the content digest the id was derived
// from.
type Item struct {
	ID        string            `json:"id"`
	Kind      string            `json:"kind"`
	Title     string            `json:"title"`
	Status    string            `json:"status"`
	File      string            `json:"file"`
	Line      string            `json:"line"`
	Rule      string            `json:"rule"`
	Source    string            `json:"source"`
	Owner     string            `json:"owner,omitempty"`
	Note      string            `json:"note,omitempty"`
	CreatedAt string            `json:"created_at"`
	UpdatedAt string            `json:"updated_at"`
	Meta      map[string]string `json:"meta,omitempty"`
}

// Digest derives the stable 12-hex-char content digest of a finding. The
// inputs are joined with NUL so field boundaries cannot collide.
func Digest(kind, file, line, rule, title string) string {
	h := sha1.Sum([]byte(strings.Join([]string{kind, file, line, rule, title}, "\x00")))
	return hex.EncodeToString(h[:])[:12]
}

// Store is a handle to one backlog file.
type Store struct {
	path string
}

// NewStore returns a store backed by path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Append writes one item line, stamping timestamps that are still empty.
func (s *Store) Append(item Item) (Item, error) {
	if item.ID == "" {
		return Item{}, fmt.Errorf("backlog item requires an id")
	}
	if !ValidStatuses[item.Status] {
		return Item{}, fmt.Errorf("invalid status %q", item.Status)
	}
	now := time.Now().UTC().Format(tsFormat)
	if item.CreatedAt == "" {
		item.CreatedAt = now
	}
	item.UpdatedAt = now

	line, err := json.Marshal(item)
	if err != nil {
		return Item{}, fmt.Errorf("marshal backlog item: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return Item{}, fmt.Errorf("create backlog dir: %w", err)
	}
	if err := storage.AppendLine(s.path, line, 0644); err != nil {
		return Item{}, fmt.Errorf("append backlog item: %w", err)
	}
	return item, nil
}

// Items returns every line in file order, skipping malformed lines. A
// missing file yields an empty slice.
func (s *Store) Items() ([]Item, error) {
	var items []Item
	err := storage.ScanLines(s.path, func(_ int, line []byte) error {
		var item Item
		if err := json.Unmarshal(line, &item); err != nil {
			return nil
		}
		if item.ID == "" {
			return nil
		}
		items = append(items, item)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// LatestByID folds the log into the current state of every item: the last
// line per id wins.
func (s *Store) LatestByID() (map[string]Item, error) {
	items, err := s.Items()
	if err != nil {
		return nil, err
	}
	latest := make(map[string]Item, len(items))
	for _, item := range items {
		latest[item.ID] = item
	}
	return latest, nil
}

// CreateOrReopen files an open item for the given finding. The id derives
// from the finding's digest, so the same finding always lands on the same
// item: the first call creates it, and every later call appends a fresh todo
// line under the same id (a reopen), whatever state the item was in. A prior
// line contributes its created_at (and owner, when none is given) so FIFO
// picking keeps the original age. The returned bool reports whether a prior
// line with this id existed.
func (s *Store) CreateOrReopen(kind, file, line, rule, title, source, owner string, meta map[string]string) (Item, bool, error) {
	digest := Digest(kind, file, line, rule, title)
	id := "T-" + digest

	latest, err := s.LatestByID()
	if err != nil {
		return Item{}, false, err
	}

	m := map[string]string{"digest": digest}
	for k, v := range meta {
		m[k] = v
	}

	item := Item{
		ID:     id,
		Kind:   kind,
		Title:  title,
		Status: StatusTodo,
		File:   file,
		Line:   line,
		Rule:   rule,
		Source: source,
		Owner:  owner,
		Meta:   m,
	}
	prev, existed := latest[id]
	if existed {
		item.CreatedAt = prev.CreatedAt
		if item.Owner == "" {
			item.Owner = prev.Owner
		}
	}
	appended, err := s.Append(item)
	if err != nil {
		return Item{}, false, err
	}
	return appended, existed, nil
}

// UpdateStatus appends a new line moving the item to status. Known items
// inherit their kind, title, owner, created_at and meta; an unknown id gets
// placeholder fields so the transition is still recorded. Meta entries in
// changes overwrite inherited ones.
func (s *Store) UpdateStatus(id, status, note string, changes map[string]string) (Item, error) {
	if !ValidStatuses[status] {
		return Item{}, fmt.Errorf("invalid status %q", status)
	}

	latest, err := s.LatestByID()
	if err != nil {
		return Item{}, err
	}

	item := Item{
		ID:     id,
		Kind:   "misc",
		Title:  "update " + id,
		Status: status,
		Note:   note,
	}
	if prev, ok := latest[id]; ok {
		item.Kind = prev.Kind
		item.Title = prev.Title
		item.File = prev.File
		item.Line = prev.Line
		item.Rule = prev.Rule
		item.Source = prev.Source
		item.Owner = prev.Owner
		item.CreatedAt = prev.CreatedAt
		if len(prev.Meta) > 0 {
			item.Meta = make(map[string]string, len(prev.Meta))
			for k, v := range prev.Meta {
				item.Meta[k] = v
			}
		}
	}
	if len(changes) > 0 {
		if item.Meta == nil {
			item.Meta = make(map[string]string, len(changes))
		}
		for k, v := range changes {
			item.Meta[k] = v
		}
	}
	return s.Append(item)
}

// PickBatch returns up to limit currently-todo items, oldest first by
// created_at. Empty kinds or owners filters match everything.
func (s *Store) PickBatch(limit int, kinds, owners []string) ([]Item, error) {
	latest, err := s.LatestByID()
	if err != nil {
		return nil, err
	}

	var todo []Item
	for _, item := range latest {
		if item.Status != StatusTodo {
			continue
		}
		if !matchesAny(item.Kind, kinds) {
			continue
		}
		if !matchesAny(item.Owner, owners) {
			continue
		}
		todo = append(todo, item)
	}
	sort.Slice(todo, func(i, j int) bool {
		if todo[i].CreatedAt != todo[j].CreatedAt {
			return todo[i].CreatedAt < todo[j].CreatedAt
		}
		return todo[i].ID < todo[j].ID
	})
	if limit > 0 && len(todo) > limit {
		todo = todo[:limit]
	}
	return todo, nil
}

// matchesAny reports whether value is in allowed; an empty filter matches
// everything.
func matchesAny(value string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == value {
			return true
		}
	}
	return false
}
