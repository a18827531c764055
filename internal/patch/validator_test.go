package patch

import (
	"errors"
	"strings"
	"testing"
)

func strptr(s string) *string { return &s }

func TestValidate_OK(t *testing.T) {
	set := &Set{
		Plan: "add two files",
		Changes: []Change{
			{Path: "a.py", Op: OpUpsert, Content: strptr("print('a')")},
			{Path: "b.py", Op: OpUpdate, Content: strptr("print('b')"), Language: "Python"},
			{Path: "old.py", Op: OpDelete},
		},
	}
	if err := set.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if set.Changes[1].Language != "python" {
		t.Errorf("language not normalized: %q", set.Changes[1].Language)
	}
}

func TestValidate_FirstViolationFailsWholeSet(t *testing.T) {
	tests := []struct {
		name      string
		set       *Set
		wantField string
		wantIndex int
	}{
		{
			"empty changes",
			&Set{},
			"changes", -1,
		},
		{
			"empty path",
			&Set{Changes: []Change{{Path: "  ", Op: OpDelete}}},
			"path", 0,
		},
		{
			"absolute path",
			&Set{Changes: []Change{{Path: "/etc/passwd", Op: OpUpsert, Content: strptr("x")}}},
			"path", 0,
		},
		{
			"traversal",
			&Set{Changes: []Change{
				{Path: "ok.py", Op: OpDelete},
				{Path: "../escape.py", Op: OpUpsert, Content: strptr("x")},
			}},
			"path", 1,
		},
		{
			"bad op",
			&Set{Changes: []Change{{Path: "a.py", Op: "replace", Content: strptr("x")}}},
			"op", 0,
		},
		{
			"diff only",
			&Set{Changes: []Change{{Path: "a.py", Op: OpUpdate, Diff: strptr("--- a\n+++ b")}}},
			"diff", 0,
		},
		{
			"no content no diff",
			&Set{Changes: []Change{{Path: "a.py", Op: OpUpsert}}},
			"content", 0,
		},
	}
	for _, tt := range tests {
		err := tt.set.Validate()
		if err == nil {
			t.Errorf("%s: Validate() = nil, want error", tt.name)
			continue
		}
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Errorf("%s: error type = %T, want *ValidationError", tt.name, err)
			continue
		}
		if vErr.Field != tt.wantField || vErr.Index != tt.wantIndex {
			t.Errorf("%s: got field=%q index=%d, want field=%q index=%d",
				tt.name, vErr.Field, vErr.Index, tt.wantField, tt.wantIndex)
		}
	}
}

func TestValidate_ContentWinsOverDiff(t *testing.T) {
	set := &Set{Changes: []Change{
		{Path: "a.py", Op: OpUpdate, Content: strptr("full"), Diff: strptr("--- a")},
	}}
	if err := set.Validate(); err != nil {
		t.Fatalf("Validate() error = %v, want content to take precedence", err)
	}
}

func TestDecodeSet(t *testing.T) {
	payload := `{"plan":"p","changes":[{"path":"a.py","op":"upsert","content":"x"}]}`
	set, err := DecodeSet([]byte(payload))
	if err != nil {
		t.Fatalf("DecodeSet() error = %v", err)
	}
	if set.Plan != "p" || len(set.Changes) != 1 {
		t.Errorf("set = %+v", set)
	}

	if _, err := DecodeSet([]byte(`{"changes":`)); err == nil {
		t.Error("DecodeSet(invalid json) expected error")
	}
	if _, err := DecodeSet([]byte(`{"changes":[]}`)); err == nil {
		t.Error("DecodeSet(empty changes) expected error")
	}
}

func TestFromFiles(t *testing.T) {
	set := FromFiles("bootstrap", []ParsedFile{
		{Path: "a.go", Content: "package a"},
		{Path: "b.py", Content: "print('b')", Language: "python"},
		{Path: "notes.unknown", Content: "hi"},
	})
	if err := set.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if set.Changes[0].Language != "go" {
		t.Errorf("guessed language = %q, want go", set.Changes[0].Language)
	}
	if set.Changes[1].Language != "python" {
		t.Errorf("language = %q, want python", set.Changes[1].Language)
	}
	if set.Changes[2].Language != "text" {
		t.Errorf("fallback language = %q, want text", set.Changes[2].Language)
	}
	for i, ch := range set.Changes {
		if ch.Op != OpUpsert || ch.Content == nil {
			t.Errorf("changes[%d] = %+v, want upsert with content", i, ch)
		}
	}
}

func TestValidationError_Message(t *testing.T) {
	err := &ValidationError{Field: "path", Index: 2, Value: "../x", Reason: "path traversal '..' is not allowed"}
	msg := err.Error()
	if !strings.Contains(msg, "changes[2].path") || !strings.Contains(msg, "../x") {
		t.Errorf("message = %q", msg)
	}
}
