package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/weftlabs/weft/internal/apply"
	"github.com/weftlabs/weft/internal/config"
	"github.com/weftlabs/weft/internal/consent"
	"github.com/weftlabs/weft/internal/formatter"
	"github.com/weftlabs/weft/internal/patch"
)

var (
	applyRoot     string
	applyFromText bool
	applyTarget   string
	applyProtect  []string
	applyActor    string
)

var applyCmd = &cobra.Command{
	Use:   "apply [patchset.json]",
	Short: "Validate and apply a patch set to a root directory",
	Long: `Apply file changes to a root directory.

The input is a JSON patch set read from the named file, or from stdin
when the argument is "-" or omitted. With --from-text the input is
instead free-form model output: the patch format is detected and the
extracted files are applied as upserts.

Every change is validated first and the whole set is rejected on the
first violation. During apply, each change succeeds or fails on its
own: targets resolving outside the root are errors, protected paths
are skipped, existing files are backed up before being overwritten.

Examples:
  weft apply changes.json --root ./sandbox
  cat response.txt | weft apply --from-text --root ./sandbox
  weft apply changes.json --dry-run -o json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runApply,
}

func init() {
	rootCmd.AddCommand(applyCmd)
	applyCmd.Flags().StringVar(&applyRoot, "root", ".", "Directory all changes are confined to")
	applyCmd.Flags().BoolVar(&applyFromText, "from-text", false, "Treat input as free-form model output instead of a JSON patch set")
	applyCmd.Flags().StringVar(&applyTarget, "target", "", "Target file for a bare legacy code block (default from config)")
	applyCmd.Flags().StringSliceVar(&applyProtect, "protect", nil, "Additional protected paths (repeatable)")
	applyCmd.Flags().StringVar(&applyActor, "actor", "", "Actor recorded in the consent ledger (default: current user)")
}

func runApply(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	input, err := readInput(args)
	if err != nil {
		return err
	}

	var set *patch.Set
	if applyFromText {
		target := applyTarget
		if target == "" {
			target = cfg.DefaultTarget
		}
		parser := patch.NewParser()
		parser.Detector.LegacyLanguage = cfg.LegacyLanguage
		files := parser.Parse(string(input), target)
		if len(files) == 0 {
			return fmt.Errorf("no recognizable patch format in input")
		}
		set = patch.FromFiles("", files)
	} else {
		set, err = patch.DecodeSet(input)
		if err != nil {
			return err
		}
	}

	protected := append([]string{}, cfg.Apply.ProtectedPaths...)
	protected = append(protected, applyProtect...)

	engine := apply.NewEngine(applyRoot,
		apply.WithDryRun(GetDryRun()),
		apply.WithProtectedPaths(protected),
		apply.WithLogf(VerbosePrintf),
	)
	result, err := engine.ApplySet(set)
	if err != nil {
		return err
	}

	if !GetDryRun() {
		recordApplyConsent(cfg, set)
	}

	return printApplyResult(cfg.Output, result)
}

// readInput returns the bytes of the named file, or stdin for "-" or no
// argument.
func readInput(args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("read patch set: %w", err)
	}
	return data, nil
}

// recordApplyConsent appends an enable entry for this apply run. Ledger
// trouble is reported but never fails an apply that already happened.
func recordApplyConsent(cfg *config.Config, set *patch.Set) {
	actor := applyActor
	if actor == "" {
		actor = GetCurrentUser()
	}
	rationale := set.Plan
	if rationale == "" {
		rationale = fmt.Sprintf("apply %d changes under %s", len(set.Changes), applyRoot)
	}

	ledger := consent.NewLedger(cfg.LedgerPath(),
		consent.WithStrictLocking(cfg.Ledger.StrictLocking),
		consent.WithOrigin(cfg.Ledger.Origin),
		consent.WithLogf(VerbosePrintf),
	)
	if _, err := ledger.Record(actor, consent.ModeEnable, rationale); err != nil {
		fmt.Fprintf(os.Stderr, "warning: consent ledger append failed: %v\n", err)
	}
}

func printApplyResult(format string, result *apply.Result) error {
	if format == "json" {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	} else {
		table := formatter.NewTable(os.Stdout, "PATH", "OP", "OUTCOME", "DETAIL")
		table.SetMaxWidth(3, 60)
		for _, e := range result.Applied {
			detail := e.Status
			if e.Backup != "" {
				detail += " (backup " + e.Backup + ")"
			}
			if e.DryRun {
				detail = "dry-run"
			}
			table.AddRow(e.Path, e.Op, "applied", detail)
		}
		for _, e := range result.Skipped {
			table.AddRow(e.Path, e.Op, "skipped", e.Reason)
		}
		for _, e := range result.Errors {
			table.AddRow(e.Path, e.Op, "error", e.Error)
		}
		if err := table.Render(); err != nil {
			return err
		}
		fmt.Printf("\n%d applied, %d skipped, %d failed\n",
			len(result.Applied), len(result.Skipped), len(result.Errors))
	}

	if len(result.Errors) > 0 {
		return fmt.Errorf("%d change(s) failed", len(result.Errors))
	}
	return nil
}
