/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fulmenhq/rpsuite/pkg/logger"
)

func newHomeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "home",
		Short: "Show the rpsuite home directories",
		Long: `Show the directories rpsuite reads packs and presets from and writes
reports, logs and the transaction ledger to.

Use --init to create them.`,
		Args: cobra.NoArgs,
		RunE: runHome,
	}
	cmd.Flags().Bool("init", false, "Create the home directory tree")
	addFormatFlag(cmd)
	return cmd
}

func runHome(cmd *cobra.Command, _ []string) error {
	initHome, _ := cmd.Flags().GetBool("init")
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if initHome {
		if err := cfg.EnsureDirectories(); err != nil {
			return err
		}
		logger.Info("home initialized", logger.String("home", cfg.Home))
	}

	dirs := [][]string{
		{"home", cfg.Home},
		{"packs", cfg.PacksDir},
		{"presets", cfg.PresetsDir},
		{"reports", cfg.ReportsDir},
		{"logs", cfg.LogsDir},
		{"ledger", cfg.LedgerPath},
	}
	if format == "json" {
		out := make(map[string]string, len(dirs))
		for _, d := range dirs {
			out[d[0]] = d[1]
		}
		return writeJSON(cmd, out)
	}
	fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Name", "Path"}, dirs, nil)+"\n")
	return nil
}
