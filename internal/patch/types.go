// Package patch defines the structured patch-set contract, classifies raw
// generative-process output into one of three recognized shapes, and extracts
// file payloads from it. File content is treated as an opaque text payload.
package patch

import (
	"path/filepath"
	"strings"
)

// Operations allowed in a patch change.
const (
	OpUpsert = "upsert"
	OpUpdate = "update"
	OpDelete = "delete"
)

// ParsedFile is a single file payload extracted from raw text. It is
// ephemeral: produced by parsing, consumed once by the apply engine.
type ParsedFile struct {
	Path     string `json:"path"`
	Content  string `json:"content"`
	Language string `json:"language"`
}

// Change is one file-level instruction in a patch set.
// Content and Diff are pointers so that "absent" and "empty" stay distinct;
// upsert/update require Content (diff-based updates are rejected, and when
// both are present Content wins).
type Change struct {
	Path     string  `json:"path"`
	Op       string  `json:"op"`
	Language string  `json:"language,omitempty"`
	Content  *string `json:"content,omitempty"`
	Diff     *string `json:"diff,omitempty"`
	Note     string  `json:"note,omitempty"`
}

// Set is a structured batch of file changes plus a short plan description.
type Set struct {
	Plan    string   `json:"plan,omitempty"`
	Changes []Change `json:"changes"`
}

// langByExt maps file extensions to language hints.
var langByExt = map[string]string{
	".go":   "go",
	".py":   "python",
	".md":   "markdown",
	".json": "json",
	".yaml": "yaml",
	".yml":  "yaml",
	".toml": "toml",
	".txt":  "text",
}

// GuessLanguage returns a language hint for a path based on its extension,
// defaulting to "text".
func GuessLanguage(path string) string {
	if lang, ok := langByExt[strings.ToLower(filepath.Ext(path))]; ok {
		return lang
	}
	return "text"
}

// FromFiles builds an upsert-only patch set from parsed files, guessing a
// language hint from the path for files that carry none.
func FromFiles(plan string, files []ParsedFile) *Set {
	set := &Set{Plan: plan, Changes: make([]Change, 0, len(files))}
	for _, f := range files {
		lang := f.Language
		if lang == "" {
			lang = GuessLanguage(f.Path)
		}
		content := f.Content
		set.Changes = append(set.Changes, Change{
			Path:     f.Path,
			Op:       OpUpsert,
			Language: lang,
			Content:  &content,
		})
	}
	return set
}
