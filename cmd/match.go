package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fulmenhq/rpsuite/pkg/match"
)

func newMatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match <reference> <candidate>...",
		Short: "Rank candidate media names against a reference name",
		Long: `Score every candidate against the reference with the token (Jaccard) or
similarity (Levenshtein) strategy. Candidates below the threshold are never
selected; when none reaches it, no match is reported.`,
		Args: cobra.MinimumNArgs(2),
		RunE: runMatch,
	}
	cmd.Flags().String("strategy", "", "Match strategy (token|similarity); default from config")
	cmd.Flags().Float64("threshold", 0, "Minimum score in [0,1]; default from config")
	addFormatFlag(cmd)
	return cmd
}

func runMatch(cmd *cobra.Command, args []string) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	strategyName, threshold := cfg.Match.Strategy, cfg.Match.Threshold
	if cmd.Flags().Changed("strategy") {
		strategyName, _ = cmd.Flags().GetString("strategy")
	}
	if cmd.Flags().Changed("threshold") {
		threshold, _ = cmd.Flags().GetFloat64("threshold")
	}
	strategy, err := match.ParseStrategy(strategyName)
	if err != nil {
		return err
	}

	res, err := match.Match(args[0], args[1:], strategy, threshold)
	if err != nil {
		return err
	}
	if format == "json" {
		return writeJSON(cmd, res)
	}

	rows := make([][]string, 0, len(res.Candidates))
	for i, c := range res.Candidates {
		accepted := ""
		if c.Accepted {
			accepted = "yes"
		}
		rows = append(rows, []string{strconv.Itoa(i + 1), c.Name, strconv.FormatFloat(c.Score, 'f', 4, 64), accepted})
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderTable([]string{"Rank", "Candidate", "Score", "Accepted"}, rows,
		[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft}))
	if best := res.Best(); best != nil {
		fmt.Fprintf(out, "match: %s (%s %.4f >= %.2f)\n", best.Name, strategy, best.Score, threshold)
	} else {
		fmt.Fprintf(out, "no candidate reached threshold %.2f\n", threshold)
	}
	return nil
}
