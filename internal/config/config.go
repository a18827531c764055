// Package config provides configuration management for weft.
// Configuration is loaded from (highest to lowest priority):
// 1. Command-line flags
// 2. Environment variables (WEFT_*)
// 3. Project config (.weft/config.yaml in cwd)
// 4. Home config (~/.weft/config.yaml)
// 5. Defaults
package config

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all weft configuration.
type Config struct {
	// Output controls the default output format (table, json).
	Output string `yaml:"output" json:"output"`

	// Verbose enables verbose output.
	Verbose bool `yaml:"verbose" json:"verbose"`

	// StateDir is where weft keeps its durable files (default: state).
	StateDir string `yaml:"state_dir" json:"state_dir"`

	// DefaultTarget is the file a bare legacy code block is written to when
	// no target is named.
	DefaultTarget string `yaml:"default_target" json:"default_target"`

	// LegacyLanguage is the fence language accepted for bare legacy blocks.
	LegacyLanguage string `yaml:"legacy_language" json:"legacy_language"`

	Ledger  LedgerConfig  `yaml:"ledger" json:"ledger"`
	Backlog BacklogConfig `yaml:"backlog" json:"backlog"`
	Apply   ApplyConfig   `yaml:"apply" json:"apply"`
}

// LedgerConfig holds consent-ledger settings.
type LedgerConfig struct {
	// Path to the ledger file. Relative paths resolve under StateDir.
	Path string `yaml:"path" json:"path"`

	// StrictLocking fails appends that cannot take a cross-process lock.
	StrictLocking bool `yaml:"strict_locking" json:"strict_locking"`

	// Origin labels entries recorded by this process.
	Origin string `yaml:"origin" json:"origin"`
}

// BacklogConfig holds backlog-store settings.
type BacklogConfig struct {
	// Path to the backlog file. Relative paths resolve under StateDir.
	Path string `yaml:"path" json:"path"`
}

// ApplyConfig holds apply-engine settings.
type ApplyConfig struct {
	// ProtectedPaths are root-relative paths the apply engine refuses to
	// mutate, including anything nested under them.
	ProtectedPaths []string `yaml:"protected_paths" json:"protected_paths"`
}

// Default config values (used in resolution and validation).
const (
	defaultOutput      = "table"
	defaultStateDir    = "state"
	defaultTarget      = "generated.py"
	defaultLegacyLang  = "python"
	defaultLedgerFile  = "consent_ledger.jsonl"
	defaultBacklogFile = "backlog.jsonl"
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Output:         defaultOutput,
		Verbose:        false,
		StateDir:       defaultStateDir,
		DefaultTarget:  defaultTarget,
		LegacyLanguage: defaultLegacyLang,
		Ledger: LedgerConfig{
			Path:   defaultLedgerFile,
			Origin: "main",
		},
		Backlog: BacklogConfig{
			Path: defaultBacklogFile,
		},
		Apply: ApplyConfig{
			ProtectedPaths: []string{defaultStateDir},
		},
	}
}

// Load loads configuration with proper precedence.
// Priority: flags > env > project > home > defaults
func Load(flagOverrides *Config) (*Config, error) {
	cfg := Default()

	homeConfig, _ := loadFromPath(homeConfigPath())
	if homeConfig != nil {
		cfg = merge(cfg, homeConfig)
	}

	projectConfig, _ := loadFromPath(projectConfigPath())
	if projectConfig != nil {
		cfg = merge(cfg, projectConfig)
	}

	cfg = applyEnv(cfg)

	if flagOverrides != nil {
		cfg = merge(cfg, flagOverrides)
	}

	return cfg, nil
}

// LedgerPath returns the consent ledger path, resolving relative paths
// under StateDir.
func (c *Config) LedgerPath() string {
	return c.statePath(c.Ledger.Path)
}

// BacklogPath returns the backlog path, resolving relative paths under
// StateDir.
func (c *Config) BacklogPath() string {
	return c.statePath(c.Backlog.Path)
}

func (c *Config) statePath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.StateDir, p)
}

// homeConfigPath returns the home config path.
func homeConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".weft", "config.yaml")
}

// projectConfigPath returns the project config path.
func projectConfigPath() string {
	if override := strings.TrimSpace(os.Getenv("WEFT_CONFIG")); override != "" {
		return override
	}
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return filepath.Join(cwd, ".weft", "config.yaml")
}

// loadFromPath loads config from a YAML file.
func loadFromPath(path string) (*Config, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnv applies environment variable overrides.
func applyEnv(cfg *Config) *Config {
	if v := os.Getenv("WEFT_OUTPUT"); v != "" {
		cfg.Output = v
	}
	if v := os.Getenv("WEFT_VERBOSE"); v == "true" || v == "1" {
		cfg.Verbose = true
	}
	if v := os.Getenv("WEFT_STATE_DIR"); v != "" {
		cfg.StateDir = v
	}
	if v := os.Getenv("WEFT_DEFAULT_TARGET"); v != "" {
		cfg.DefaultTarget = v
	}
	if v := os.Getenv("WEFT_LEGACY_LANGUAGE"); v != "" {
		cfg.LegacyLanguage = v
	}
	if v := os.Getenv("WEFT_LEDGER_PATH"); v != "" {
		cfg.Ledger.Path = v
	}
	if v := os.Getenv("WEFT_STRICT_LOCKING"); v == "true" || v == "1" {
		cfg.Ledger.StrictLocking = true
	}
	if v := os.Getenv("WEFT_LEDGER_ORIGIN"); v != "" {
		cfg.Ledger.Origin = v
	}
	if v := os.Getenv("WEFT_BACKLOG_PATH"); v != "" {
		cfg.Backlog.Path = v
	}
	if v := os.Getenv("WEFT_PROTECTED_PATHS"); v != "" {
		var paths []string
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				paths = append(paths, p)
			}
		}
		cfg.Apply.ProtectedPaths = paths
	}
	return cfg
}

// mergeStr overwrites dst with src when src is non-empty.
func mergeStr(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

// merge merges src into dst, with src values taking precedence.
func merge(dst, src *Config) *Config {
	mergeStr(&dst.Output, src.Output)
	if src.Verbose {
		dst.Verbose = true
	}
	mergeStr(&dst.StateDir, src.StateDir)
	mergeStr(&dst.DefaultTarget, src.DefaultTarget)
	mergeStr(&dst.LegacyLanguage, src.LegacyLanguage)

	mergeStr(&dst.Ledger.Path, src.Ledger.Path)
	if src.Ledger.StrictLocking {
		dst.Ledger.StrictLocking = true
	}
	mergeStr(&dst.Ledger.Origin, src.Ledger.Origin)

	mergeStr(&dst.Backlog.Path, src.Backlog.Path)

	if len(src.Apply.ProtectedPaths) > 0 {
		dst.Apply.ProtectedPaths = src.Apply.ProtectedPaths
	}

	return dst
}

// Source represents where a config value came from.
type Source string

const (
	SourceDefault Source = "default"
	SourceHome    Source = "~/.weft/config.yaml"
	SourceProject Source = ".weft/config.yaml"
	SourceEnv     Source = "environment"
	SourceFlag    Source = "flag"
)

type resolved struct {
	Value  interface{} `json:"value"`
	Source Source      `json:"source"`
}

// resolveStringField resolves a string through the precedence chain.
func resolveStringField(home, project, env, flag, def string) resolved {
	result := resolved{Value: def, Source: SourceDefault}
	if home != "" {
		result = resolved{Value: home, Source: SourceHome}
	}
	if project != "" {
		result = resolved{Value: project, Source: SourceProject}
	}
	if env != "" {
		result = resolved{Value: env, Source: SourceEnv}
	}
	if flag != "" {
		result = resolved{Value: flag, Source: SourceFlag}
	}
	return result
}

// ResolvedConfig shows config values with their sources.
type ResolvedConfig struct {
	Output      resolved `json:"output"`
	StateDir    resolved `json:"state_dir"`
	Verbose     resolved `json:"verbose"`
	LedgerPath  resolved `json:"ledger_path"`
	BacklogPath resolved `json:"backlog_path"`
}

// Resolve returns configuration with source tracking.
// Uses precedence chain: flags > env > project > home > defaults.
func Resolve(flagOutput, flagStateDir string, flagVerbose bool) *ResolvedConfig {
	homeConfig, _ := loadFromPath(homeConfigPath())
	projectConfig, _ := loadFromPath(projectConfigPath())

	var homeOutput, homeStateDir, homeLedger, homeBacklog string
	var homeVerbose bool
	if homeConfig != nil {
		homeOutput = homeConfig.Output
		homeStateDir = homeConfig.StateDir
		homeLedger = homeConfig.Ledger.Path
		homeBacklog = homeConfig.Backlog.Path
		homeVerbose = homeConfig.Verbose
	}

	var projectOutput, projectStateDir, projectLedger, projectBacklog string
	var projectVerbose bool
	if projectConfig != nil {
		projectOutput = projectConfig.Output
		projectStateDir = projectConfig.StateDir
		projectLedger = projectConfig.Ledger.Path
		projectBacklog = projectConfig.Backlog.Path
		projectVerbose = projectConfig.Verbose
	}

	envOutput := os.Getenv("WEFT_OUTPUT")
	envStateDir := os.Getenv("WEFT_STATE_DIR")
	envLedger := os.Getenv("WEFT_LEDGER_PATH")
	envBacklog := os.Getenv("WEFT_BACKLOG_PATH")
	envVerbose := os.Getenv("WEFT_VERBOSE") == "true" || os.Getenv("WEFT_VERBOSE") == "1"

	rc := &ResolvedConfig{
		Output:      resolveStringField(homeOutput, projectOutput, envOutput, flagOutput, defaultOutput),
		StateDir:    resolveStringField(homeStateDir, projectStateDir, envStateDir, flagStateDir, defaultStateDir),
		Verbose:     resolved{Value: false, Source: SourceDefault},
		LedgerPath:  resolveStringField(homeLedger, projectLedger, envLedger, "", defaultLedgerFile),
		BacklogPath: resolveStringField(homeBacklog, projectBacklog, envBacklog, "", defaultBacklogFile),
	}

	if homeVerbose {
		rc.Verbose = resolved{Value: true, Source: SourceHome}
	}
	if projectVerbose {
		rc.Verbose = resolved{Value: true, Source: SourceProject}
	}
	if envVerbose {
		rc.Verbose = resolved{Value: true, Source: SourceEnv}
	}
	if flagVerbose {
		rc.Verbose = resolved{Value: true, Source: SourceFlag}
	}

	return rc
}
