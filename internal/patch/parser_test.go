package patch

import "testing"

func TestParse_MultiFileScenario(t *testing.T) {
	text := "```\n# file: a.py\nprint('first body')\n```\n" +
		"```\n# file: b.py\nprint('second body')\n```\n"

	files := NewParser().Parse(text, "modules/agent.py")
	if len(files) != 2 {
		t.Fatalf("len(files) = %d, want 2", len(files))
	}
	if files[0].Path != "a.py" || files[1].Path != "b.py" {
		t.Errorf("paths = %q, %q, want a.py then b.py", files[0].Path, files[1].Path)
	}
}

func TestParse_SingleLegacyUsesDefaultTarget(t *testing.T) {
	text := "```python\n" + legacyBody + "\n```\n"

	files := NewParser().Parse(text, "modules/agent.py")
	if len(files) != 1 {
		t.Fatalf("len(files) = %d, want 1", len(files))
	}
	if files[0].Path != "modules/agent.py" {
		t.Errorf("path = %q, want default target", files[0].Path)
	}
	if files[0].Language != "python" {
		t.Errorf("language = %q, want python", files[0].Language)
	}
}

func TestParse_NothingRecognizedIsEmptyNotError(t *testing.T) {
	files := NewParser().Parse("no fenced content in here", "agent.py")
	if len(files) != 0 {
		t.Errorf("len(files) = %d, want 0", len(files))
	}
}

func TestParse_ManifestWins(t *testing.T) {
	text := "```json\n" +
		`{"files":[{"path":"x.py","content":"print('x')"}]}` + "\n" +
		"```\n"

	files := NewParser().Parse(text, "agent.py")
	if len(files) != 1 || files[0].Path != "x.py" {
		t.Fatalf("files = %v, want single x.py entry", files)
	}
}
