package formatter

import (
	"strings"
	"testing"
)

func TestTableRendersHeaderAndRows(t *testing.T) {
	var buf strings.Builder
	table := NewTable(&buf, "ID", "STATUS")
	table.AddRow("T-1", "todo")
	table.AddRow("T-2", "done")
	if err := table.Render(); err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	out := buf.String()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want header + separator + 2 rows:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[0], "ID") || !strings.Contains(lines[0], "STATUS") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(lines[1], "--") {
		t.Errorf("separator = %q", lines[1])
	}
	if !strings.Contains(lines[2], "T-1") {
		t.Errorf("row = %q", lines[2])
	}
}

func TestTableEmptyRendersNothing(t *testing.T) {
	var buf strings.Builder
	table := NewTable(&buf, "A", "B")
	if err := table.Render(); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 0 {
		t.Errorf("empty table rendered %q", buf.String())
	}
}

func TestTableTruncatesWideColumns(t *testing.T) {
	var buf strings.Builder
	table := NewTable(&buf, "TITLE")
	table.SetMaxWidth(0, 10)
	table.AddRow("a very long title that will not fit")
	if err := table.Render(); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "a very ...") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestTablePadsMissingCells(t *testing.T) {
	var buf strings.Builder
	table := NewTable(&buf, "A", "B", "C")
	table.AddRow("only", "two")
	if err := table.Render(); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "only") {
		t.Errorf("output = %q", buf.String())
	}
}
