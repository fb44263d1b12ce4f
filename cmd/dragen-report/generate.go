package main

import (
	"fmt"

	"github.com/qphi/dragen-report/pkg/fsutil"
	"github.com/qphi/dragen-report/pkg/pipeline"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	genBaseDir     string
	genInstances   string
	genOutput      string
	genConcurrency int
	genOwner       string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate the aggregated validator report",
	Long: `Scans the base directory for pass and failure markers, extracts the failing
subtests from every instance matching --instances and writes one merged report.
The output is CSV, or TSV when the path ends in .tsv.`,
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)
	generateCmd.Flags().StringVar(&genBaseDir, "base-dir", "",
		"Root directory of the validator logs")
	generateCmd.Flags().StringVar(&genInstances, "instances", "",
		"Glob relative to --base-dir selecting run instances (e.g. IN*)")
	generateCmd.Flags().StringVar(&genOutput, "output", "",
		"Report file path (overwritten)")
	generateCmd.Flags().IntVar(&genConcurrency, "concurrency", 0,
		"Number of instances extracted in parallel")
	generateCmd.Flags().StringVar(&genOwner, "owner", "",
		"Report file owner as uid:gid")
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	flags := cmd.Flags()

	if flags.Changed("base-dir") {
		cfg.Input.BaseDir = genBaseDir
	}

	if flags.Changed("instances") {
		cfg.Input.Instances = genInstances
	}

	if flags.Changed("output") {
		cfg.Output.Path = genOutput
	}

	if flags.Changed("concurrency") {
		cfg.Extract.Concurrency = genConcurrency
	}

	if flags.Changed("owner") {
		cfg.Output.Owner = genOwner
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if err := cfg.ValidateInput(); err != nil {
		return err
	}

	owner, err := fsutil.ParseOwner(cfg.Output.Owner)
	if err != nil {
		return fmt.Errorf("parsing owner: %w", err)
	}

	res, err := pipeline.Run(cmd.Context(), log, pipeline.Options{
		BaseDir:     cfg.Input.BaseDir,
		Instances:   cfg.Input.Instances,
		Output:      cfg.Output.Path,
		Concurrency: cfg.Extract.Concurrency,
		Owner:       owner,
	})
	if err != nil {
		return fmt.Errorf("generating report: %w", err)
	}

	log.WithFields(logrus.Fields{
		"output":    cfg.Output.Path,
		"samples":   len(res.Report.Rows),
		"instances": res.Instances,
		"extracted": res.Extracted,
		"skipped":   res.Skipped,
		"failed":    res.Failed,
	}).Info("The final report is written")

	return nil
}
