package main

import (
	"fmt"

	"github.com/qphi/dragen-report/pkg/upload"
	"github.com/spf13/cobra"
)

var uploadReport string

var uploadReportCmd = &cobra.Command{
	Use:   "upload-report [extra files...]",
	Short: "Upload a report to remote storage",
	Long: `Upload a report file, plus any extra files such as its markdown summary,
to S3-compatible storage using the config file settings.`,
	RunE: runUploadReport,
}

func init() {
	rootCmd.AddCommand(uploadReportCmd)
	uploadReportCmd.Flags().StringVar(&uploadReport, "report", "",
		"Path to the report file to upload")

	_ = uploadReportCmd.MarkFlagRequired("report")
}

func runUploadReport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if cfg.Upload.S3 == nil || !cfg.Upload.S3.Enabled {
		return fmt.Errorf("S3 upload is not configured or not enabled in config")
	}

	uploader, err := upload.NewS3Uploader(log, cfg.Upload.S3)
	if err != nil {
		return fmt.Errorf("creating S3 uploader: %w", err)
	}

	ctx := cmd.Context()

	if err := uploader.Preflight(ctx); err != nil {
		return fmt.Errorf("s3 preflight: %w", err)
	}

	files := append([]string{uploadReport}, args...)

	log.WithField("files", len(files)).Info("Uploading report")

	keys, err := uploader.UploadFiles(ctx, files...)
	if err != nil {
		return fmt.Errorf("uploading report: %w", err)
	}

	for _, key := range keys {
		log.WithField("key", key).Info("Uploaded")
	}

	return nil
}
