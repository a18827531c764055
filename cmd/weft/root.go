package main

import (
	"fmt"
	"os"
	"os/user"
	"strings"

	"github.com/spf13/cobra"

	"github.com/weftlabs/weft/internal/config"
)

var (
	// Global flags
	dryRun   bool
	verbose  bool
	output   string
	cfgFile  string
	stateDir string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "weft",
	Short: "Turn free-form model output into audited file changes",
	Long: `weft takes the text a language model produced, extracts the file
changes it describes, validates them, and applies them inside a sandbox
root with backups and an append-only audit trail.

Core Commands:
  parse        Detect the patch format and list the files it carries
  apply        Validate and apply a patch set to a root directory
  consent      Record and query authorization events
  backlog      Manage the append-only work queue
  ingest       File CI findings into the backlog
  config       Show resolved configuration
  version      Show version information

Every mutation stays inside the chosen root, every overwrite leaves a
timestamped backup, and every authorization lands in the consent ledger.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		syncConfigFlagToEnv()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// Global flags available to all commands
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "Show what would happen without executing")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "Output format (json, table)")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: ~/.weft/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&stateDir, "state-dir", "", "State directory (default: state)")
}

// GetDryRun returns the dry-run flag value for use by subcommands.
func GetDryRun() bool {
	return dryRun
}

// GetVerbose returns the verbose flag value for use by subcommands.
func GetVerbose() bool {
	return verbose
}

// GetOutput returns the output format for use by subcommands.
func GetOutput() string {
	return output
}

// GetConfigFile returns the config file path for use by subcommands.
func GetConfigFile() string {
	return cfgFile
}

// VerbosePrintf prints only when verbose mode is enabled.
func VerbosePrintf(format string, args ...interface{}) {
	if verbose {
		fmt.Printf(format, args...)
	}
}

// loadConfig resolves configuration with the global flags layered on top.
func loadConfig() (*config.Config, error) {
	overrides := &config.Config{
		Verbose:  verbose,
		StateDir: stateDir,
	}
	if rootCmd.PersistentFlags().Changed("output") {
		overrides.Output = output
	}
	return config.Load(overrides)
}

func syncConfigFlagToEnv() {
	path := strings.TrimSpace(GetConfigFile())
	if path == "" {
		return
	}
	_ = os.Setenv("WEFT_CONFIG", path)
}

// GetCurrentUser returns the current system username.
// Uses os/user package for reliable identity, not spoofable via env vars.
func GetCurrentUser() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return "unknown"
}
