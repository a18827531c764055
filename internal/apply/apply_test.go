package apply

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/weftlabs/weft/internal/patch"
)

func strptr(s string) *string { return &s }

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func countBackups(t *testing.T, dir, base string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	n := 0
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), base+".bak-") {
			n++
		}
	}
	return n
}

func TestApplySet_UpsertCreatesFile(t *testing.T) {
	root := t.TempDir()
	engine := NewEngine(root)

	result, err := engine.ApplySet(&patch.Set{Changes: []patch.Change{
		{Path: "pkg/new.py", Op: patch.OpUpsert, Content: strptr("print('hi')")},
	}})
	if err != nil {
		t.Fatalf("ApplySet() error = %v", err)
	}
	if len(result.Applied) != 1 || len(result.Skipped) != 0 || len(result.Errors) != 0 {
		t.Fatalf("result = %+v", result)
	}
	if result.Applied[0].Status != "written" {
		t.Errorf("status = %q", result.Applied[0].Status)
	}
	if got := readFile(t, filepath.Join(root, "pkg", "new.py")); got != "print('hi')" {
		t.Errorf("content = %q", got)
	}
}

func TestApplySet_SecondUpsertBacksUpAndOverwrites(t *testing.T) {
	root := t.TempDir()
	engine := NewEngine(root)

	for _, content := range []string{"first", "second"} {
		if _, err := engine.ApplySet(&patch.Set{Changes: []patch.Change{
			{Path: "a.py", Op: patch.OpUpsert, Content: strptr(content)},
		}}); err != nil {
			t.Fatal(err)
		}
	}

	if got := readFile(t, filepath.Join(root, "a.py")); got != "second" {
		t.Errorf("final content = %q, want %q", got, "second")
	}
	if n := countBackups(t, root, "a.py"); n != 1 {
		t.Errorf("backup count = %d, want 1", n)
	}
}

func TestApplySet_PathEscapeIsIsolatedError(t *testing.T) {
	root := t.TempDir()
	engine := NewEngine(root)

	result, err := engine.ApplySet(&patch.Set{Changes: []patch.Change{
		{Path: "../etc/passwd", Op: patch.OpUpsert, Content: strptr("x")},
		{Path: "ok.py", Op: patch.OpUpsert, Content: strptr("fine")},
	}})
	if err != nil {
		t.Fatalf("ApplySet() error = %v", err)
	}
	if len(result.Applied) != 1 || len(result.Errors) != 1 {
		t.Fatalf("result = %+v", result)
	}
	if !strings.Contains(result.Errors[0].Error, "traversal") {
		t.Errorf("error = %q, want path-escape reason", result.Errors[0].Error)
	}
	// Nothing escaped the root.
	if _, err := os.Stat(filepath.Join(filepath.Dir(root), "etc")); !os.IsNotExist(err) {
		t.Error("filesystem mutated outside root")
	}
	// The healthy change still landed.
	if got := readFile(t, filepath.Join(root, "ok.py")); got != "fine" {
		t.Errorf("content = %q", got)
	}
}

func TestApplySet_SymlinkCannotRedirectOutsideRoot(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	if err := os.Symlink(outside, filepath.Join(root, "link")); err != nil {
		t.Fatal(err)
	}

	engine := NewEngine(root)
	result, err := engine.ApplySet(&patch.Set{Changes: []patch.Change{
		{Path: "link/evil.txt", Op: patch.OpUpsert, Content: strptr("x")},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Errors) != 1 || len(result.Applied) != 0 {
		t.Fatalf("result = %+v, want the change rejected", result)
	}
	if _, err := os.Stat(filepath.Join(outside, "evil.txt")); !os.IsNotExist(err) {
		t.Error("write escaped the root through a symlink")
	}
}

func TestApplySet_DeleteIsIdempotent(t *testing.T) {
	root := t.TempDir()
	engine := NewEngine(root)

	result, err := engine.ApplySet(&patch.Set{Changes: []patch.Change{
		{Path: "never/existed.py", Op: patch.OpDelete},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Applied) != 1 || len(result.Errors) != 0 {
		t.Fatalf("result = %+v, want applied with no errors", result)
	}
	if result.Applied[0].Status != "deleted" {
		t.Errorf("status = %q", result.Applied[0].Status)
	}
}

func TestApplySet_DeleteRemovesDirectoryRecursively(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "pkg", "nested")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "f.py"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	engine := NewEngine(root)
	result, err := engine.ApplySet(&patch.Set{Changes: []patch.Change{
		{Path: "pkg", Op: patch.OpDelete},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Applied) != 1 {
		t.Fatalf("result = %+v", result)
	}
	if _, err := os.Stat(filepath.Join(root, "pkg")); !os.IsNotExist(err) {
		t.Error("directory not removed")
	}
}

func TestApplySet_ProtectedPathsSkipped(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "state"), 0755); err != nil {
		t.Fatal(err)
	}
	engine := NewEngine(root, WithProtectedPaths([]string{"state", "weft.yaml"}))

	result, err := engine.ApplySet(&patch.Set{Changes: []patch.Change{
		{Path: "state/ledger.jsonl", Op: patch.OpUpsert, Content: strptr("x")},
		{Path: "weft.yaml", Op: patch.OpDelete},
		{Path: "free.py", Op: patch.OpUpsert, Content: strptr("y")},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Skipped) != 2 || len(result.Applied) != 1 {
		t.Fatalf("result = %+v", result)
	}
	for _, s := range result.Skipped {
		if s.Reason != "protected_path" {
			t.Errorf("skip reason = %q", s.Reason)
		}
	}
	if _, err := os.Stat(filepath.Join(root, "state", "ledger.jsonl")); !os.IsNotExist(err) {
		t.Error("protected path was written")
	}
}

func TestApplySet_DryRunTouchesNothing(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "existing.py"), []byte("old"), 0644); err != nil {
		t.Fatal(err)
	}
	engine := NewEngine(root, WithDryRun(true))

	result, err := engine.ApplySet(&patch.Set{Changes: []patch.Change{
		{Path: "new.py", Op: patch.OpUpsert, Content: strptr("x")},
		{Path: "existing.py", Op: patch.OpDelete},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Applied) != 2 {
		t.Fatalf("result = %+v", result)
	}
	for _, a := range result.Applied {
		if !a.DryRun {
			t.Errorf("entry %+v not marked dry-run", a)
		}
	}
	if _, err := os.Stat(filepath.Join(root, "new.py")); !os.IsNotExist(err) {
		t.Error("dry-run created a file")
	}
	if got := readFile(t, filepath.Join(root, "existing.py")); got != "old" {
		t.Error("dry-run deleted a file")
	}
}

func TestApplySet_DiffOnlyChangeErrors(t *testing.T) {
	root := t.TempDir()
	engine := NewEngine(root)

	result, err := engine.ApplySet(&patch.Set{Changes: []patch.Change{
		{Path: "a.py", Op: patch.OpUpdate, Diff: strptr("--- a\n+++ b")},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Errors) != 1 || len(result.Applied) != 0 {
		t.Fatalf("result = %+v", result)
	}
	if !strings.Contains(result.Errors[0].Error, "diff-based updates are not supported") {
		t.Errorf("error = %q", result.Errors[0].Error)
	}
}

func TestApplySet_PartitionCoversEveryChangeOnce(t *testing.T) {
	root := t.TempDir()
	engine := NewEngine(root, WithProtectedPaths([]string{"guarded"}))

	set := &patch.Set{Changes: []patch.Change{
		{Path: "a.py", Op: patch.OpUpsert, Content: strptr("a")},
		{Path: "guarded/b.py", Op: patch.OpUpsert, Content: strptr("b")},
		{Path: "../escape", Op: patch.OpDelete},
		{Path: "c.py", Op: "weird"},
		{Path: "d.py", Op: patch.OpDelete},
	}}
	result, err := engine.ApplySet(set)
	if err != nil {
		t.Fatal(err)
	}

	total := len(result.Applied) + len(result.Skipped) + len(result.Errors)
	if total != len(set.Changes) {
		t.Fatalf("partition covers %d changes, want %d", total, len(set.Changes))
	}
	seen := map[string]int{}
	for _, list := range [][]Entry{result.Applied, result.Skipped, result.Errors} {
		for _, e := range list {
			seen[e.Path]++
		}
	}
	for path, n := range seen {
		if n != 1 {
			t.Errorf("path %q appears %d times, want exactly once", path, n)
		}
	}
}

func TestApplyFiles(t *testing.T) {
	root := t.TempDir()
	engine := NewEngine(root)

	result, err := engine.ApplyFiles([]patch.ParsedFile{
		{Path: "x.py", Content: "print('x')", Language: "python"},
		{Path: "docs/y.md", Content: "# y"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Applied) != 2 {
		t.Fatalf("result = %+v", result)
	}
	if got := readFile(t, filepath.Join(root, "docs", "y.md")); got != "# y" {
		t.Errorf("content = %q", got)
	}
}

func TestApplySet_MissingRoot(t *testing.T) {
	engine := NewEngine(filepath.Join(t.TempDir(), "missing"))
	if _, err := engine.ApplySet(&patch.Set{Changes: []patch.Change{
		{Path: "a.py", Op: patch.OpDelete},
	}}); err == nil {
		t.Error("expected error for missing root")
	}
}
