package config

import (
	"os"
	"path/filepath"
	"testing"
)

// isolate points HOME and WEFT_CONFIG at temp locations so tests never see
// the developer's real config.
func isolate(t *testing.T) (homeDir, projectCfg string) {
	t.Helper()
	homeDir = t.TempDir()
	projectCfg = filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv("HOME", homeDir)
	t.Setenv("WEFT_CONFIG", projectCfg)
	return homeDir, projectCfg
}

func writeYAML(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Output != "table" {
		t.Errorf("Output = %q", cfg.Output)
	}
	if cfg.StateDir != "state" {
		t.Errorf("StateDir = %q", cfg.StateDir)
	}
	if cfg.LegacyLanguage != "python" {
		t.Errorf("LegacyLanguage = %q", cfg.LegacyLanguage)
	}
	if cfg.LedgerPath() != filepath.Join("state", "consent_ledger.jsonl") {
		t.Errorf("LedgerPath() = %q", cfg.LedgerPath())
	}
	if cfg.BacklogPath() != filepath.Join("state", "backlog.jsonl") {
		t.Errorf("BacklogPath() = %q", cfg.BacklogPath())
	}
	if len(cfg.Apply.ProtectedPaths) == 0 {
		t.Error("state dir should be protected by default")
	}
}

func TestLoadDefaultsWhenNoFiles(t *testing.T) {
	isolate(t)
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Output != "table" || cfg.StateDir != "state" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadPrecedence(t *testing.T) {
	homeDir, projectCfg := isolate(t)

	writeYAML(t, filepath.Join(homeDir, ".weft", "config.yaml"),
		"output: json\nstate_dir: home-state\nledger:\n  origin: home\n")
	writeYAML(t, projectCfg,
		"state_dir: project-state\nledger:\n  strict_locking: true\n")
	t.Setenv("WEFT_STATE_DIR", "env-state")

	cfg, err := Load(&Config{Verbose: true})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Output != "json" {
		t.Errorf("Output = %q, want home value to survive", cfg.Output)
	}
	if cfg.StateDir != "env-state" {
		t.Errorf("StateDir = %q, want env to beat project and home", cfg.StateDir)
	}
	if !cfg.Ledger.StrictLocking {
		t.Error("project strict_locking lost")
	}
	if cfg.Ledger.Origin != "home" {
		t.Errorf("Origin = %q", cfg.Ledger.Origin)
	}
	if !cfg.Verbose {
		t.Error("flag verbose lost")
	}
}

func TestApplyEnvProtectedPaths(t *testing.T) {
	isolate(t)
	t.Setenv("WEFT_PROTECTED_PATHS", "state, weft.yaml ,,docs")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"state", "weft.yaml", "docs"}
	if len(cfg.Apply.ProtectedPaths) != len(want) {
		t.Fatalf("ProtectedPaths = %v", cfg.Apply.ProtectedPaths)
	}
	for i, p := range want {
		if cfg.Apply.ProtectedPaths[i] != p {
			t.Errorf("ProtectedPaths[%d] = %q, want %q", i, cfg.Apply.ProtectedPaths[i], p)
		}
	}
}

func TestLedgerEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("WEFT_LEDGER_PATH", "/var/lib/weft/ledger.jsonl")
	t.Setenv("WEFT_STRICT_LOCKING", "1")
	t.Setenv("WEFT_LEDGER_ORIGIN", "ci")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LedgerPath() != "/var/lib/weft/ledger.jsonl" {
		t.Errorf("absolute ledger path not honored: %q", cfg.LedgerPath())
	}
	if !cfg.Ledger.StrictLocking || cfg.Ledger.Origin != "ci" {
		t.Errorf("ledger config = %+v", cfg.Ledger)
	}
}

func TestLoadIgnoresMalformedProjectConfig(t *testing.T) {
	_, projectCfg := isolate(t)
	writeYAML(t, projectCfg, "output: [unclosed")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Output != "table" {
		t.Errorf("Output = %q, want default when project config is malformed", cfg.Output)
	}
}

func TestResolveTracksSources(t *testing.T) {
	homeDir, projectCfg := isolate(t)
	writeYAML(t, filepath.Join(homeDir, ".weft", "config.yaml"), "output: json\n")
	writeYAML(t, projectCfg, "state_dir: proj\nverbose: true\n")
	t.Setenv("WEFT_LEDGER_PATH", "custom.jsonl")

	rc := Resolve("", "", false)
	if rc.Output.Source != SourceHome || rc.Output.Value != "json" {
		t.Errorf("Output = %+v", rc.Output)
	}
	if rc.StateDir.Source != SourceProject {
		t.Errorf("StateDir = %+v", rc.StateDir)
	}
	if rc.LedgerPath.Source != SourceEnv {
		t.Errorf("LedgerPath = %+v", rc.LedgerPath)
	}
	if rc.Verbose.Source != SourceProject || rc.Verbose.Value != true {
		t.Errorf("Verbose = %+v", rc.Verbose)
	}
	if rc.BacklogPath.Source != SourceDefault {
		t.Errorf("BacklogPath = %+v", rc.BacklogPath)
	}

	rc = Resolve("yaml", "flag-state", true)
	if rc.Output.Source != SourceFlag || rc.StateDir.Value != "flag-state" || rc.Verbose.Source != SourceFlag {
		t.Errorf("flag precedence: %+v", rc)
	}
}
