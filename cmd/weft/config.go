package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/weftlabs/weft/internal/config"
)

var configShow bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `View and manage weft configuration.

Configuration priority (highest to lowest):
  1. Command-line flags
  2. Environment variables (WEFT_*)
  3. Project config (.weft/config.yaml)
  4. Home config (~/.weft/config.yaml)
  5. Defaults

Environment variables:
  WEFT_CONFIG          - Explicit config file path (overrides default project config location)
  WEFT_OUTPUT          - Default output format (table, json)
  WEFT_VERBOSE         - Enable verbose output (true/1)
  WEFT_STATE_DIR       - State directory path
  WEFT_DEFAULT_TARGET  - Target file for bare legacy code blocks
  WEFT_LEGACY_LANGUAGE - Fence language accepted for legacy blocks
  WEFT_LEDGER_PATH     - Consent ledger path
  WEFT_STRICT_LOCKING  - Fail appends without a cross-process lock (true/1)
  WEFT_LEDGER_ORIGIN   - Origin label recorded in ledger entries
  WEFT_BACKLOG_PATH    - Backlog path
  WEFT_PROTECTED_PATHS - Comma-separated paths the apply engine never mutates

Examples:
  weft config --show           # Show resolved configuration
  weft config --show -o json   # Output as JSON`,
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.Flags().BoolVar(&configShow, "show", false, "Show resolved configuration with sources")
}

func runConfig(cmd *cobra.Command, args []string) error {
	if !configShow {
		return cmd.Help()
	}

	resolved := config.Resolve(GetOutput(), stateDir, GetVerbose())

	if GetOutput() == "json" {
		data, err := json.MarshalIndent(resolved, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Println("weft configuration")
	fmt.Println("==================")
	fmt.Println()

	fmt.Println("Config files:")
	homeConfig := filepath.Join(os.Getenv("HOME"), ".weft", "config.yaml")
	if _, err := os.Stat(homeConfig); err == nil {
		fmt.Printf("  ✓ Home:    %s\n", homeConfig)
	} else {
		fmt.Printf("  ✗ Home:    %s (not found)\n", homeConfig)
	}

	cwd, _ := os.Getwd()
	projectConfig := filepath.Join(cwd, ".weft", "config.yaml")
	if _, err := os.Stat(projectConfig); err == nil {
		fmt.Printf("  ✓ Project: %s\n", projectConfig)
	} else {
		fmt.Printf("  ✗ Project: %s (not found)\n", projectConfig)
	}

	fmt.Println()
	fmt.Println("Resolved values:")
	fmt.Printf("  output:       %v  (from %s)\n", resolved.Output.Value, resolved.Output.Source)
	fmt.Printf("  state_dir:    %v  (from %s)\n", resolved.StateDir.Value, resolved.StateDir.Source)
	fmt.Printf("  verbose:      %v  (from %s)\n", resolved.Verbose.Value, resolved.Verbose.Source)
	fmt.Printf("  ledger.path:  %v  (from %s)\n", resolved.LedgerPath.Value, resolved.LedgerPath.Source)
	fmt.Printf("  backlog.path: %v  (from %s)\n", resolved.BacklogPath.Value, resolved.BacklogPath.Source)

	fmt.Println()
	fmt.Println("Environment variables (if set):")
	envVars := []string{
		"WEFT_CONFIG",
		"WEFT_OUTPUT",
		"WEFT_VERBOSE",
		"WEFT_STATE_DIR",
		"WEFT_DEFAULT_TARGET",
		"WEFT_LEGACY_LANGUAGE",
		"WEFT_LEDGER_PATH",
		"WEFT_STRICT_LOCKING",
		"WEFT_LEDGER_ORIGIN",
		"WEFT_BACKLOG_PATH",
		"WEFT_PROTECTED_PATHS",
	}
	anySet := false
	for _, env := range envVars {
		if v := os.Getenv(env); v != "" {
			fmt.Printf("  %s=%s\n", env, v)
			anySet = true
		}
	}
	if !anySet {
		fmt.Println("  (none set)")
	}

	return nil
}
