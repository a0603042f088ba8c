package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fulmenhq/rpsuite/pkg/logger"
	"github.com/fulmenhq/rpsuite/pkg/report"
	"github.com/fulmenhq/rpsuite/pkg/safeio"
)

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Re-render and combine run reports",
	}

	render := &cobra.Command{
		Use:   "render <report.json>",
		Short: "Render a JSON report as JSON, CSV or HTML",
		Args:  cobra.ExactArgs(1),
		RunE:  runReportRender,
	}
	render.Flags().String("format", "html", "Output format (json|csv|html)")
	render.Flags().StringP("output", "o", "", "Write to this file instead of stdout")

	merge := &cobra.Command{
		Use:   "merge <report.json>...",
		Short: "Combine several JSON reports into one aggregate report",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runReportMerge,
	}
	merge.Flags().String("title", "Aggregate report", "Title of the merged report")
	merge.Flags().StringP("output", "o", "", "Directory for the merged json, csv and html files (default <home>/reports)")
	merge.Flags().String("run-id", "", "Run identifier used in the merged file names")

	cmd.AddCommand(render, merge)
	return cmd
}

func readReport(path string) (*report.Report, error) {
	data, err := safeio.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	return report.Decode(data)
}

func runReportRender(cmd *cobra.Command, args []string) error {
	formatName, _ := cmd.Flags().GetString("format")
	output, _ := cmd.Flags().GetString("output")
	format, err := report.ParseFormat(formatName)
	if err != nil {
		return err
	}
	r, err := readReport(args[0])
	if err != nil {
		return err
	}
	data, err := report.Render(r, format)
	if err != nil {
		return err
	}
	if output == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	if err := safeio.WriteFileAtomic(output, data, 0o644); err != nil {
		return err
	}
	logger.Info("report rendered", logger.String("format", string(format)), logger.String("path", output))
	return nil
}

func runReportMerge(cmd *cobra.Command, args []string) error {
	title, _ := cmd.Flags().GetString("title")
	dir, _ := cmd.Flags().GetString("output")
	runID, _ := cmd.Flags().GetString("run-id")
	if dir == "" {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		dir = cfg.ReportsDir
	}

	reports := make([]*report.Report, 0, len(args))
	for _, p := range args {
		r, err := readReport(p)
		if err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
		reports = append(reports, r)
	}
	merged := report.Merge(title, reports...)
	merged.RunID = runID
	paths, err := report.WriteAll(merged, dir)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "merged %d report(s), %d items: %s\n",
		len(reports), merged.Summary.Total, strings.Join([]string{paths.JSON, paths.CSV, paths.HTML}, ", "))
	return nil
}
