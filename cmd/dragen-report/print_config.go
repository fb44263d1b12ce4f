package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var printConfigCmd = &cobra.Command{
	Use:   "print-config",
	Short: "Print the effective configuration",
	Long:  `Loads the config file, applies environment overrides and defaults, and prints the result as YAML with secrets masked.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		data, err := cfg.YAML()
		if err != nil {
			return err
		}

		_, err = fmt.Fprint(cmd.OutOrStdout(), string(data))

		return err
	},
}

func init() {
	rootCmd.AddCommand(printConfigCmd)
}
