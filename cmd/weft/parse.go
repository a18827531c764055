package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/weftlabs/weft/internal/formatter"
	"github.com/weftlabs/weft/internal/patch"
)

var parseTarget string

var parseCmd = &cobra.Command{
	Use:   "parse [response.txt]",
	Short: "Detect the patch format and list the files it carries",
	Long: `Inspect free-form model output without touching the filesystem.

Reads the named file, or stdin when the argument is "-" or omitted,
classifies it as manifest, multi-file, or legacy output, and lists the
files that would be written.

Examples:
  weft parse response.txt
  cat response.txt | weft parse -o json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runParse,
}

func init() {
	rootCmd.AddCommand(parseCmd)
	parseCmd.Flags().StringVar(&parseTarget, "target", "", "Target file for a bare legacy code block (default from config)")
}

type parseReport struct {
	Format string             `json:"format"`
	Files  []parsedFileReport `json:"files"`
}

type parsedFileReport struct {
	Path     string `json:"path"`
	Language string `json:"language"`
	Bytes    int    `json:"bytes"`
}

func runParse(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	input, err := readInput(args)
	if err != nil {
		return err
	}

	target := parseTarget
	if target == "" {
		target = cfg.DefaultTarget
	}

	detector := patch.NewDetector()
	detector.LegacyLanguage = cfg.LegacyLanguage
	detection := detector.Detect(string(input))
	files := (&patch.Parser{Detector: detector}).Parse(string(input), target)

	report := parseReport{
		Format: detection.Format.String(),
		Files:  []parsedFileReport{},
	}
	for _, f := range files {
		report.Files = append(report.Files, parsedFileReport{
			Path:     f.Path,
			Language: f.Language,
			Bytes:    len(f.Content),
		})
	}

	if cfg.Output == "json" {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("format: %s\n", report.Format)
	if len(report.Files) == 0 {
		fmt.Println("no files extracted")
		return nil
	}
	fmt.Println()
	table := formatter.NewTable(os.Stdout, "PATH", "LANGUAGE", "BYTES")
	for _, f := range report.Files {
		table.AddRow(f.Path, f.Language, fmt.Sprintf("%d", f.Bytes))
	}
	return table.Render()
}
