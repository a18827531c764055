package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/weftlabs/weft/internal/backlog"
)

var (
	ingestLogsDir string
	ingestOwner   string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "File CI findings into the backlog",
	Long: `Parse CI tool logs and file each finding as a backlog item.

Recognized log files in the directory: flake8.log, mypy.log,
pytest.log, pip_audit.log. Item ids derive from a stable digest of the
finding, so ingesting the same logs twice is a no-op and a finding
that returns after being fixed reopens its original item.

Examples:
  weft ingest --logs-dir ./ci-logs --owner ci-bot`,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().StringVar(&ingestLogsDir, "logs-dir", "", "Directory holding CI logs")
	ingestCmd.Flags().StringVar(&ingestOwner, "owner", "", "Owner assigned to created items")
	_ = ingestCmd.MarkFlagRequired("logs-dir")
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if GetDryRun() {
		findings, err := backlog.ParseLogsDir(ingestLogsDir)
		if err != nil {
			return err
		}
		fmt.Printf("would ingest %d finding(s)\n", len(findings))
		for _, f := range findings {
			VerbosePrintf("  %s %s\n", f.Kind, f.Title)
		}
		return nil
	}

	result, err := backlog.NewStore(cfg.BacklogPath()).IngestLogsDir(ingestLogsDir, ingestOwner)
	if err != nil {
		return err
	}

	if cfg.Output == "json" {
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return nil
	}
	fmt.Printf("%d finding(s): %d created, %d reopened, %d already open\n",
		result.Found, result.Created, result.Reopened, result.Existing)
	return nil
}
