package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	format     string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "qcaudit",
		Short:         "AQL acceptance sampling and final inspection audits",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			switch opts.format {
			case formatText, formatJSON:
				return nil
			}
			return fmt.Errorf("unsupported output format: %s", opts.format)
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (yaml/json/toml)")
	root.PersistentFlags().StringVarP(&opts.format, "format", "o", formatText, "output format: text, json")

	root.AddCommand(
		newPreviewCmd(opts),
		newTablesCmd(opts),
		newCheckSizeCmd(opts),
		newCreateCmd(opts),
		newAddDefectCmd(opts),
		newListCmd(opts),
		newDashboardCmd(opts),
		newWatchCmd(opts),
		newDevCmd(opts),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
