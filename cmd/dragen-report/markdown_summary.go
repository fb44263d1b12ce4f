package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/qphi/dragen-report/pkg/fsutil"
	"github.com/qphi/dragen-report/pkg/report"
	"github.com/spf13/cobra"
)

var generateMarkdownSummaryCmd = &cobra.Command{
	Use:   "generate-markdown-summary",
	Short: "Generate a markdown summary from a report file",
	Long:  `Reads a report written by generate and produces a markdown summary file.`,
	RunE:  runGenerateMarkdownSummary,
}

var (
	mdReport string
	mdOutput string
)

func init() {
	rootCmd.AddCommand(generateMarkdownSummaryCmd)
	generateMarkdownSummaryCmd.Flags().StringVar(&mdReport, "report", "",
		"Path to the report file")
	generateMarkdownSummaryCmd.Flags().StringVar(&mdOutput, "output", "",
		"Output file path (default: <report-basename>.md)")

	if err := generateMarkdownSummaryCmd.MarkFlagRequired("report"); err != nil {
		panic(err)
	}
}

func runGenerateMarkdownSummary(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log.WithField("report", mdReport).Info("Generating markdown summary")

	rpt, err := report.Read(mdReport)
	if err != nil {
		return fmt.Errorf("reading report: %w", err)
	}

	title := strings.TrimSuffix(filepath.Base(mdReport), filepath.Ext(mdReport))
	md := report.Markdown(rpt, title, cfg.Output.MarkdownMaxChars)

	output := mdOutput
	if output == "" {
		output = markdownPath(mdReport)
	}

	owner, err := fsutil.ParseOwner(cfg.Output.Owner)
	if err != nil {
		return fmt.Errorf("parsing owner: %w", err)
	}

	if err := fsutil.WriteFileAtomic(output, []byte(md), 0o644, owner); err != nil {
		return fmt.Errorf("writing output file: %w", err)
	}

	log.WithField("output", output).Info("Markdown summary generated successfully")

	return nil
}

// markdownPath returns the default summary path next to the report.
func markdownPath(reportPath string) string {
	return strings.TrimSuffix(reportPath, filepath.Ext(reportPath)) + ".md"
}
