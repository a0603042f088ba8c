package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fulmenhq/rpsuite/internal/preset"
	"github.com/fulmenhq/rpsuite/internal/tools"
	"github.com/fulmenhq/rpsuite/pkg/logger"
)

func newPresetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preset",
		Short: "Save and inspect named tool options",
	}

	save := &cobra.Command{
		Use:   "save <tool_id> <name>",
		Short: "Save an options file as a named preset",
		Args:  cobra.ExactArgs(2),
		RunE:  runPresetSave,
	}
	save.Flags().String("options", "", "Options file (JSON or YAML)")
	_ = save.MarkFlagRequired("options")

	list := &cobra.Command{
		Use:   "list [tool_id]",
		Short: "List presets for one tool or for every tool",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runPresetList,
	}
	addFormatFlag(list)

	show := &cobra.Command{
		Use:   "show <tool_id> <name>",
		Short: "Print a preset's options",
		Args:  cobra.ExactArgs(2),
		RunE:  runPresetShow,
	}

	cmd.AddCommand(save, list, show)
	return cmd
}

func knownTool(id string) error {
	if _, ok := tools.Default().Get(id); !ok {
		return &configError{err: fmt.Errorf("unknown tool %q (see 'rpsuite tools')", id)}
	}
	return nil
}

func runPresetSave(cmd *cobra.Command, args []string) error {
	toolID, name := args[0], args[1]
	if err := knownTool(toolID); err != nil {
		return err
	}
	file, _ := cmd.Flags().GetString("options")
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	options, err := readOptions(cfg, toolID, file, "")
	if err != nil {
		return err
	}
	p, err := preset.Save(cfg.PresetsDir, toolID, name, options)
	if err != nil {
		return &configError{err: err}
	}
	logger.Info("preset saved", logger.String("tool_id", toolID), logger.String("name", name))
	fmt.Fprintln(cmd.OutOrStdout(), p)
	return nil
}

type presetEntry struct {
	ToolID string `json:"tool_id"`
	Name   string `json:"name"`
}

func runPresetList(cmd *cobra.Command, args []string) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	var ids []string
	if len(args) == 1 {
		if err := knownTool(args[0]); err != nil {
			return err
		}
		ids = args
	} else {
		for _, t := range tools.Default().List() {
			ids = append(ids, t.ID())
		}
	}

	entries := []presetEntry{}
	for _, id := range ids {
		names, err := preset.List(cfg.PresetsDir, id)
		if err != nil {
			return err
		}
		for _, n := range names {
			entries = append(entries, presetEntry{ToolID: id, Name: n})
		}
	}
	if format == "json" {
		return writeJSON(cmd, entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No presets saved")
		return nil
	}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{e.ToolID, e.Name})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Tool", "Preset"}, rows, nil))
	return nil
}

func runPresetShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	options, err := preset.Load(cfg.PresetsDir, args[0], args[1])
	if errors.Is(err, preset.ErrNotFound) || errors.Is(err, preset.ErrToolMismatch) {
		return &configError{err: err}
	}
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, options, "", "  "); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(buf.String()))
	return nil
}
