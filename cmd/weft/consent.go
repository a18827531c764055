package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/weftlabs/weft/internal/config"
	"github.com/weftlabs/weft/internal/consent"
)

var (
	consentActor     string
	consentMode      string
	consentRationale string
	consentSince     string
)

var consentCmd = &cobra.Command{
	Use:   "consent",
	Short: "Record and query authorization events",
	Long: `Manage the append-only consent ledger.

Every authorization weft acts on is an immutable ledger line: who
consented, to what mode (load or enable), why, and when. Entries are
never edited or removed.

Examples:
  weft consent record --actor op1 --mode enable --rationale "user confirmed"
  weft consent check --actor op1 --mode enable
  weft consent check --actor op1 --mode enable --since 24h
  weft consent verify
  weft consent export backup.jsonl`,
}

var consentRecordCmd = &cobra.Command{
	Use:   "record",
	Short: "Append an authorization event",
	RunE:  runConsentRecord,
}

var consentCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check whether a matching authorization exists",
	RunE:  runConsentCheck,
}

var consentVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check ledger integrity and report every defect",
	RunE:  runConsentVerify,
}

var consentExportCmd = &cobra.Command{
	Use:   "export <dest>",
	Short: "Copy the ledger to another file atomically",
	Args:  cobra.ExactArgs(1),
	RunE:  runConsentExport,
}

func init() {
	rootCmd.AddCommand(consentCmd)
	consentCmd.AddCommand(consentRecordCmd, consentCheckCmd, consentVerifyCmd, consentExportCmd)

	consentRecordCmd.Flags().StringVar(&consentActor, "actor", "", "Module or operator granting consent (default: current user)")
	consentRecordCmd.Flags().StringVar(&consentMode, "mode", consent.ModeEnable, "Authorization mode (load, enable)")
	consentRecordCmd.Flags().StringVar(&consentRationale, "rationale", "", "Free-form reason for the authorization")

	consentCheckCmd.Flags().StringVar(&consentActor, "actor", "", "Actor to look for")
	consentCheckCmd.Flags().StringVar(&consentMode, "mode", consent.ModeEnable, "Authorization mode (load, enable)")
	consentCheckCmd.Flags().StringVar(&consentSince, "since", "", "Only count entries newer than this duration (e.g. 24h)")
}

func openLedger(cfg *config.Config) *consent.Ledger {
	return consent.NewLedger(cfg.LedgerPath(),
		consent.WithStrictLocking(cfg.Ledger.StrictLocking),
		consent.WithOrigin(cfg.Ledger.Origin),
		consent.WithLogf(VerbosePrintf),
	)
}

func runConsentRecord(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	actor := consentActor
	if actor == "" {
		actor = GetCurrentUser()
	}

	if GetDryRun() {
		fmt.Printf("would record: actor=%s mode=%s\n", actor, consentMode)
		return nil
	}

	entry, err := openLedger(cfg).Record(actor, consentMode, consentRationale)
	if err != nil {
		return err
	}

	if cfg.Output == "json" {
		data, err := json.MarshalIndent(entry, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}
	fmt.Printf("recorded %s: actor=%s mode=%s\n", entry.ID, entry.Actor, entry.Mode)
	return nil
}

func runConsentCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if consentActor == "" {
		return fmt.Errorf("--actor is required")
	}

	var since time.Time
	if consentSince != "" {
		d, err := time.ParseDuration(consentSince)
		if err != nil {
			return fmt.Errorf("invalid --since duration: %w", err)
		}
		since = time.Now().Add(-d)
	}

	ok, err := openLedger(cfg).Query(consentActor, consentMode, since)
	if err != nil {
		return err
	}

	if cfg.Output == "json" {
		data, _ := json.Marshal(map[string]any{"actor": consentActor, "mode": consentMode, "granted": ok})
		fmt.Println(string(data))
	} else if ok {
		fmt.Printf("granted: %s %s\n", consentActor, consentMode)
	} else {
		fmt.Printf("not granted: %s %s\n", consentActor, consentMode)
	}
	if !ok {
		os.Exit(1)
	}
	return nil
}

func runConsentVerify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ok, defects, err := openLedger(cfg).Verify()
	if err != nil {
		return err
	}

	if cfg.Output == "json" {
		data, _ := json.MarshalIndent(map[string]any{"ok": ok, "defects": defects}, "", "  ")
		fmt.Println(string(data))
	} else if ok {
		fmt.Println("ledger ok")
	} else {
		for _, d := range defects {
			fmt.Println(d)
		}
	}
	if !ok {
		return fmt.Errorf("ledger has %d defect(s)", len(defects))
	}
	return nil
}

func runConsentExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if GetDryRun() {
		fmt.Printf("would export %s to %s\n", cfg.LedgerPath(), args[0])
		return nil
	}
	if err := openLedger(cfg).Export(args[0]); err != nil {
		return err
	}
	fmt.Printf("exported to %s\n", args[0])
	return nil
}
