package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fulmenhq/rpsuite/internal/tools"
)

func newToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the workflow tools",
		Args:  cobra.NoArgs,
		RunE:  runTools,
	}
	cmd.Flags().Bool("limitations", false, "Show the known object model limitations instead")
	addFormatFlag(cmd)
	return cmd
}

type toolInfo struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func runTools(cmd *cobra.Command, _ []string) error {
	showLimits, _ := cmd.Flags().GetBool("limitations")
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if showLimits {
		limits := tools.Limitations()
		if format == "json" {
			return writeJSON(cmd, limits)
		}
		rows := make([][]string, 0, len(limits))
		for _, l := range limits {
			rows = append(rows, []string{l.Key, l.Text})
		}
		fmt.Fprintln(out, renderTable([]string{"Limitation", "Description"}, rows, nil))
		return nil
	}

	list := tools.Default().List()
	infos := make([]toolInfo, 0, len(list))
	rows := make([][]string, 0, len(list))
	for i, t := range list {
		infos = append(infos, toolInfo{ID: t.ID(), Title: t.Title()})
		rows = append(rows, []string{strconv.Itoa(i + 1), t.ID(), t.Title()})
	}
	if format == "json" {
		return writeJSON(cmd, infos)
	}
	fmt.Fprintln(out, renderTable([]string{"#", "ID", "Title"}, rows, []columnAlignment{alignRight}))
	return nil
}
