package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/weftlabs/weft/internal/backlog"
	"github.com/weftlabs/weft/internal/config"
	"github.com/weftlabs/weft/internal/formatter"
)

var (
	backlogKind       string
	backlogTitle      string
	backlogOwner      string
	backlogNote       string
	backlogLimit      int
	backlogLogs       string
	backlogPickKinds  []string
	backlogPickOwners []string
)

var backlogCmd = &cobra.Command{
	Use:   "backlog",
	Short: "Manage the append-only work queue",
	Long: `Manage backlog items.

The backlog is a JSON-Lines log: items are never edited in place, each
state change appends a new line under the same id, and the latest line
per id is the item's current state.

Examples:
  weft backlog add --kind lint --title "fix E501 in app.py"
  weft backlog start T-a1b2c3d4e5f6
  weft backlog done T-a1b2c3d4e5f6 --note "fixed in abc123"
  weft backlog pick --kind lint --limit 5
  weft backlog sync --logs-dir ./ci-logs`,
}

var backlogAddCmd = &cobra.Command{
	Use:   "add",
	Short: "File a new item (or reopen an existing one with the same digest)",
	RunE:  runBacklogAdd,
}

var backlogListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the current state of every item",
	RunE:  runBacklogList,
}

var backlogPickCmd = &cobra.Command{
	Use:   "pick",
	Short: "Pick the oldest open items to work on",
	RunE:  runBacklogPick,
}

var backlogSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Auto-close lint and typecheck items absent from the latest logs",
	RunE:  runBacklogSync,
}

func init() {
	rootCmd.AddCommand(backlogCmd)
	backlogCmd.AddCommand(backlogAddCmd, backlogListCmd, backlogPickCmd, backlogSyncCmd)

	backlogAddCmd.Flags().StringVar(&backlogKind, "kind", "misc", "Item kind (lint, typecheck, test, deps, feature, misc)")
	backlogAddCmd.Flags().StringVar(&backlogTitle, "title", "", "Item title")
	backlogAddCmd.Flags().StringVar(&backlogOwner, "owner", "", "Item owner")

	backlogPickCmd.Flags().StringSliceVar(&backlogPickKinds, "kind", nil, "Only pick items of these kinds (repeatable)")
	backlogPickCmd.Flags().StringSliceVar(&backlogPickOwners, "owner", nil, "Only pick items with these owners (repeatable)")
	backlogPickCmd.Flags().IntVar(&backlogLimit, "limit", 5, "Maximum items to pick")

	backlogSyncCmd.Flags().StringVar(&backlogLogs, "logs-dir", "", "Directory holding the latest CI logs")
	_ = backlogSyncCmd.MarkFlagRequired("logs-dir")

	// One transition subcommand per status verb.
	for verb, status := range map[string]string{
		"start":  backlog.StatusInProgress,
		"review": backlog.StatusReview,
		"done":   backlog.StatusDone,
		"block":  backlog.StatusBlocked,
	} {
		st := status
		cmd := &cobra.Command{
			Use:   verb + " <id>",
			Short: "Move an item to " + st,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runBacklogTransition(args[0], st)
			},
		}
		cmd.Flags().StringVar(&backlogNote, "note", "", "Note recorded with the transition")
		backlogCmd.AddCommand(cmd)
	}
}

func openStore(cfg *config.Config) *backlog.Store {
	return backlog.NewStore(cfg.BacklogPath())
}

func runBacklogAdd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if backlogTitle == "" {
		return fmt.Errorf("--title is required")
	}
	if GetDryRun() {
		fmt.Printf("would add: kind=%s title=%q\n", backlogKind, backlogTitle)
		return nil
	}

	item, existed, err := openStore(cfg).CreateOrReopen(backlogKind, "", "", "", backlogTitle, "manual", backlogOwner, nil)
	if err != nil {
		return err
	}
	if existed {
		fmt.Printf("reopened %s: %s\n", item.ID, item.Title)
	} else {
		fmt.Printf("filed %s: %s\n", item.ID, item.Title)
	}
	return nil
}

func runBacklogTransition(id, status string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if GetDryRun() {
		fmt.Printf("would move %s to %s\n", id, status)
		return nil
	}

	item, err := openStore(cfg).UpdateStatus(id, status, backlogNote, nil)
	if err != nil {
		return err
	}
	fmt.Printf("%s -> %s\n", item.ID, item.Status)
	return nil
}

func runBacklogList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	latest, err := openStore(cfg).LatestByID()
	if err != nil {
		return err
	}
	items := make([]backlog.Item, 0, len(latest))
	for _, item := range latest {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt != items[j].CreatedAt {
			return items[i].CreatedAt < items[j].CreatedAt
		}
		return items[i].ID < items[j].ID
	})

	return printItems(cfg.Output, items)
}

func runBacklogPick(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	items, err := openStore(cfg).PickBatch(backlogLimit, backlogPickKinds, backlogPickOwners)
	if err != nil {
		return err
	}
	return printItems(cfg.Output, items)
}

func runBacklogSync(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store := openStore(cfg)
	if GetDryRun() {
		active, err := backlog.CollectActiveDigests(backlogLogs)
		if err != nil {
			return err
		}
		fmt.Printf("would reconcile against %d active finding(s)\n", len(active))
		return nil
	}

	result, err := store.SyncLogsDir(backlogLogs)
	if err != nil {
		return err
	}
	if cfg.Output == "json" {
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return nil
	}
	fmt.Printf("%d active finding(s), closed %d item(s)\n", result.Active, len(result.Closed))
	for _, id := range result.Closed {
		fmt.Printf("  closed %s\n", id)
	}
	return nil
}

func printItems(format string, items []backlog.Item) error {
	if format == "json" {
		data, err := json.MarshalIndent(items, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	if len(items) == 0 {
		fmt.Println("no items")
		return nil
	}
	table := formatter.NewTable(os.Stdout, "ID", "KIND", "STATUS", "OWNER", "TITLE")
	table.SetMaxWidth(4, 60)
	for _, item := range items {
		table.AddRow(item.ID, item.Kind, item.Status, item.Owner, item.Title)
	}
	return table.Render()
}
