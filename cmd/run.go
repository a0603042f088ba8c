package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/fulmenhq/rpsuite/internal/preset"
	"github.com/fulmenhq/rpsuite/internal/resolve"
	"github.com/fulmenhq/rpsuite/internal/tools"
	"github.com/fulmenhq/rpsuite/pkg/config"
	"github.com/fulmenhq/rpsuite/pkg/ledger"
	"github.com/fulmenhq/rpsuite/pkg/logger"
	"github.com/fulmenhq/rpsuite/pkg/match"
	"github.com/fulmenhq/rpsuite/pkg/report"
	"github.com/fulmenhq/rpsuite/pkg/safeio"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <tool_id>",
		Short: "Run a workflow tool against a project snapshot",
		Long: `Run one tool against a project snapshot (JSON, YAML or FCPXML).

The run writes <tool_id>_<run_id>.json, .csv and .html reports. Unless
--dry-run is set, changes are applied to the snapshot, committed to the
transaction ledger and the snapshot is written back.

Examples:
   rpsuite run t6_timeline_normalizer --snapshot project.json
   rpsuite run t1_revision_resolver --snapshot project.json --options relink.yaml --dry-run
   rpsuite run t8_delivery_spec_enforcer --snapshot project.json --preset tiktok`,
		Args: cobra.ExactArgs(1),
		RunE: runTool,
	}
	cmd.Flags().String("snapshot", "", "Project snapshot file (required)")
	cmd.Flags().String("options", "", "Tool options file (JSON or YAML)")
	cmd.Flags().String("preset", "", "Named preset to load options from")
	cmd.Flags().Bool("dry-run", false, "Preview changes without applying them")
	cmd.Flags().StringP("output", "o", "", "Report directory (default <home>/reports)")
	cmd.Flags().String("run-id", "", "Run identifier used in report names (default UTC timestamp)")
	cmd.Flags().String("strategy", "", "Default match strategy for entries that set none")
	cmd.Flags().Float64("threshold", 0, "Default match threshold for entries that set none")
	addFormatFlag(cmd)
	_ = cmd.MarkFlagRequired("snapshot")
	cmd.MarkFlagsMutuallyExclusive("options", "preset")
	return cmd
}

// runSummary is the machine-readable outcome of a run.
type runSummary struct {
	ToolID   string         `json:"tool_id"`
	RunID    string         `json:"run_id"`
	DryRun   bool           `json:"dry_run"`
	Summary  report.Summary `json:"summary"`
	Reports  report.Paths   `json:"reports"`
	TxID     string         `json:"tx_id,omitempty"`
	Changes  int            `json:"changes"`
	Snapshot string         `json:"snapshot"`
	Saved    bool           `json:"snapshot_saved"`
}

// applyRunOverrides copies explicitly set flags over the loaded configuration.
func applyRunOverrides(cfg *config.Config, flags *pflag.FlagSet) error {
	var err error
	flags.Visit(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case "dry-run":
			cfg.DryRun, err = strconv.ParseBool(f.Value.String())
		case "strategy":
			cfg.Match.Strategy = f.Value.String()
		case "threshold":
			cfg.Match.Threshold, err = strconv.ParseFloat(f.Value.String(), 64)
		case "output":
			cfg.ReportsDir = f.Value.String()
		}
	})
	if err != nil {
		return &configError{err: err}
	}
	if _, err := match.ParseStrategy(cfg.Match.Strategy); err != nil {
		return err
	}
	if err := match.CheckThreshold(cfg.Match.Threshold); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return &configError{err: err}
	}
	return nil
}

// readOptions loads tool options from a file or preset. YAML is converted to JSON.
func readOptions(cfg *config.Config, toolID, file, presetName string) (json.RawMessage, error) {
	switch {
	case presetName != "":
		return preset.Load(cfg.PresetsDir, toolID, presetName)
	case file == "":
		return nil, nil
	}
	data, err := safeio.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read options: %w", err)
	}
	switch strings.ToLower(filepath.Ext(file)) {
	case ".yaml", ".yml":
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, &configError{err: fmt.Errorf("parse options %s: %w", file, err)}
		}
		if doc == nil {
			return nil, nil
		}
		out, err := json.Marshal(doc)
		if err != nil {
			return nil, &configError{err: fmt.Errorf("convert options %s: %w", file, err)}
		}
		return out, nil
	}
	if !json.Valid(bytes.TrimSpace(data)) {
		return nil, &configError{err: fmt.Errorf("options %s is not valid JSON", file)}
	}
	return data, nil
}

func runTool(cmd *cobra.Command, args []string) error {
	toolID := args[0]
	tool, ok := tools.Default().Get(toolID)
	if !ok {
		return &configError{err: fmt.Errorf("unknown tool %q (see 'rpsuite tools')", toolID)}
	}
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyRunOverrides(cfg, cmd.Flags()); err != nil {
		return err
	}
	snapshotPath, _ := cmd.Flags().GetString("snapshot")
	optionsFile, _ := cmd.Flags().GetString("options")
	presetName, _ := cmd.Flags().GetString("preset")
	runID, _ := cmd.Flags().GetString("run-id")
	if runID == "" {
		runID = time.Now().UTC().Format(report.RunIDLayout)
	}

	options, err := readOptions(cfg, toolID, optionsFile, presetName)
	if err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	logCfg := loggerConfig(cmd)
	logCfg.DryRun = cfg.DryRun
	log := logger.New(cmd.ErrOrStderr(), logCfg).With(logger.String("snapshot", snapshotPath))

	lock := flock.New(snapshotPath + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire snapshot lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("snapshot %s is in use by another run", snapshotPath)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			log.Warn("failed to release snapshot lock", logger.Err(err))
		}
	}()

	snap, err := resolve.LoadSnapshot(snapshotPath)
	if err != nil {
		return err
	}
	session := resolve.NewMemory(snap)

	var store ledger.Store
	if cfg.DryRun {
		store = ledger.NewMemoryStore()
	} else {
		sqlStore, err := ledger.OpenSQLite(cmd.Context(), cfg.LedgerPath)
		if err != nil {
			return err
		}
		defer func() {
			if err := sqlStore.Close(); err != nil {
				log.Warn("failed to close ledger", logger.Err(err))
			}
		}()
		store = sqlStore
	}
	tx := ledger.New(store, ledger.WithToolID(toolID)).Begin(tool.Title()+" "+runID, cfg.DryRun)

	summary := runSummary{
		ToolID:   toolID,
		RunID:    runID,
		DryRun:   cfg.DryRun,
		Snapshot: snapshotPath,
	}
	env := &tools.Env{
		Config:   cfg,
		Reader:   session,
		Projects: session,
		Tx:       tx,
		Log:      log,
		Now:      time.Now,
		RunID:    runID,
		// Reports and the snapshot are written before the ledger commits, so
		// an I/O failure leaves no record of changes that were never saved.
		BeforeCommit: func(_ context.Context, rep *report.Report) error {
			paths, err := report.WriteAll(rep, cfg.ReportsDir)
			if err != nil {
				return err
			}
			summary.Reports = paths
			if cfg.DryRun || len(tx.Changes()) == 0 {
				return nil
			}
			switch err := resolve.SaveSnapshot(snapshotPath, session.Snapshot()); {
			case errors.Is(err, resolve.ErrReadOnly):
				log.Warn("snapshot format cannot be written back; changes are recorded in the ledger only")
			case err != nil:
				return fmt.Errorf("write snapshot: %w", err)
			default:
				summary.Saved = true
			}
			return nil
		},
	}
	if !cfg.DryRun {
		env.Mutator = session
	}

	res, err := tools.Run(cmd.Context(), tool, env, options)
	if err != nil {
		return err
	}
	summary.Summary = res.Report.Summary
	summary.Changes = len(tx.Changes())
	if res.Record != nil {
		summary.TxID = res.Record.ID
	}

	if format == "json" {
		if err := writeJSON(cmd, summary); err != nil {
			return err
		}
	} else {
		printRun(cmd, res.Report, summary)
	}

	if n := collaboratorFailures(res.Report); n > 0 {
		return &collaboratorFailure{ToolID: toolID, Count: n}
	}
	return nil
}

func printRun(cmd *cobra.Command, rep *report.Report, s runSummary) {
	out := cmd.OutOrStdout()
	rows := make([][]string, 0, len(rep.Items))
	for _, it := range rep.Items {
		rows = append(rows, []string{
			strconv.Itoa(it.Index),
			string(it.Severity),
			string(it.Outcome.Kind),
			truncate(it.Entity, 32),
			truncate(it.Detail, detailWidth),
		})
	}
	if len(rows) > 0 {
		fmt.Fprintln(out, renderTable([]string{"#", "Severity", "Outcome", "Entity", "Detail"}, rows, []columnAlignment{alignRight}))
	}

	mode := "applied"
	if s.DryRun {
		mode = "dry run"
	}
	sum := s.Summary
	fmt.Fprintf(out, "%s (%s): %d items, %d processed, %d warnings, %d failed, %d skipped, %d for manual review\n",
		rep.Title, mode, sum.Total, sum.Processed, sum.Warnings, sum.Failed, sum.Skipped, sum.ManualReview)
	switch {
	case s.TxID != "":
		fmt.Fprintf(out, "transaction %s: %d change(s)\n", s.TxID, s.Changes)
	case s.DryRun && s.Changes > 0:
		fmt.Fprintf(out, "planned %d change(s); nothing was applied\n", s.Changes)
	}
	fmt.Fprintf(out, "reports: %s, %s, %s\n", s.Reports.JSON, s.Reports.CSV, s.Reports.HTML)
}
