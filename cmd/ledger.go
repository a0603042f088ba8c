package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/fulmenhq/rpsuite/pkg/ledger"
)

func newLedgerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect committed transactions",
		Long: `Every applied run commits one transaction holding the before and after
state of each change. Dry runs never reach the ledger.`,
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List transactions, newest first",
		Args:  cobra.NoArgs,
		RunE:  runLedgerList,
	}
	list.Flags().String("tool", "", "Only show transactions of this tool")
	addFormatFlag(list)

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a transaction's changes and its rollback plan",
		Args:  cobra.ExactArgs(1),
		RunE:  runLedgerShow,
	}
	addFormatFlag(show)

	cmd.AddCommand(list, show)
	return cmd
}

func openLedger(cmd *cobra.Command) (*ledger.SQLiteStore, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return ledger.OpenSQLite(cmd.Context(), cfg.LedgerPath)
}

func runLedgerList(cmd *cobra.Command, _ []string) error {
	tool, _ := cmd.Flags().GetString("tool")
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}
	store, err := openLedger(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	records, err := store.List(cmd.Context())
	if err != nil {
		return err
	}
	filtered := make([]*ledger.Record, 0, len(records))
	for _, r := range records {
		if tool == "" || r.ToolID == tool {
			filtered = append(filtered, r)
		}
	}

	if format == "json" {
		return writeJSON(cmd, filtered)
	}
	if len(filtered) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No transactions recorded")
		return nil
	}
	rows := make([][]string, 0, len(filtered))
	for _, r := range filtered {
		rows = append(rows, []string{
			r.ID,
			r.CreatedAt.Local().Format(time.DateTime),
			r.ToolID,
			truncate(r.Name, 40),
			strconv.Itoa(len(r.Changes)),
		})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"ID", "Created", "Tool", "Name", "Changes"}, rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight}))
	return nil
}

type ledgerDetail struct {
	*ledger.Record
	Rollback []ledger.Change `json:"rollback"`
}

func runLedgerShow(cmd *cobra.Command, args []string) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}
	store, err := openLedger(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	rec, err := store.Get(cmd.Context(), args[0])
	if errors.Is(err, ledger.ErrNotFound) {
		return &configError{err: fmt.Errorf("transaction %s: %w", args[0], err)}
	}
	if err != nil {
		return err
	}
	rollback := rec.Rollback()
	if format == "json" {
		return writeJSON(cmd, ledgerDetail{Record: rec, Rollback: rollback})
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Transaction %s\n", rec.ID)
	fmt.Fprintf(out, "Name:    %s\n", rec.Name)
	fmt.Fprintf(out, "Tool:    %s\n", rec.ToolID)
	fmt.Fprintf(out, "Created: %s\n", rec.CreatedAt.Local().Format(time.DateTime))
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Changes:")
	fmt.Fprintln(out, renderTable([]string{"#", "Entity", "Action", "Before", "After"}, changeRows(rec.Changes), []columnAlignment{alignRight}))
	fmt.Fprintln(out, "Rollback plan (apply in order):")
	fmt.Fprintln(out, renderTable([]string{"#", "Entity", "Action", "Currently", "Restore to"}, changeRows(rollback), []columnAlignment{alignRight}))
	return nil
}

func changeRows(changes []ledger.Change) [][]string {
	rows := make([][]string, 0, len(changes))
	for i, c := range changes {
		rows = append(rows, []string{strconv.Itoa(i + 1), truncate(c.Entity, 40), c.Action, truncate(c.Before, 40), truncate(c.After, 40)})
	}
	return rows
}
