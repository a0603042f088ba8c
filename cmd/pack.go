package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fulmenhq/rpsuite/pkg/logger"
	"github.com/fulmenhq/rpsuite/pkg/pack"
)

func newPackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pack",
		Short: "Validate, list and inspect rule packs",
		Long: `Rule packs are declarative JSON, YAML or TOML files that drive the tools:
mapping packs (asset replacements), brand packs and delivery packs.`,
	}

	validate := &cobra.Command{
		Use:   "validate <file>...",
		Short: "Validate pack files against their schemas",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runPackValidate,
	}
	validate.Flags().String("kind", "", "Pack kind (mapping|brand|delivery); detected from content when empty")
	validate.Flags().Int("jobs", runtime.NumCPU(), "Maximum files validated concurrently")
	addFormatFlag(validate)

	list := &cobra.Command{
		Use:   "list",
		Short: "List packs found in the packs directory",
		Args:  cobra.NoArgs,
		RunE:  runPackList,
	}
	list.Flags().String("dir", "", "Directory to scan (default <home>/packs)")
	addFormatFlag(list)

	schema := &cobra.Command{
		Use:   "schema <kind>",
		Short: "Print the embedded JSON schema for a pack kind",
		Args:  cobra.ExactArgs(1),
		RunE:  runPackSchema,
	}
	schema.Flags().String("version", "", "Schema version (default latest)")

	cmd.AddCommand(validate, list, schema)
	return cmd
}

// packResult is the outcome of validating one file.
type packResult struct {
	File          string           `json:"file"`
	Kind          pack.Kind        `json:"kind,omitempty"`
	Name          string           `json:"name,omitempty"`
	SchemaVersion string           `json:"schema_version,omitempty"`
	Valid         bool             `json:"valid"`
	Violations    []pack.Violation `json:"violations,omitempty"`
	Error         string           `json:"error,omitempty"`

	err error
}

func checkPack(file string, kind pack.Kind) packResult {
	res := packResult{File: file, Kind: kind}
	var (
		p   *pack.Pack
		err error
	)
	if kind == "" {
		p, err = pack.LoadAny(file)
	} else {
		p, err = pack.Load(file, kind)
	}
	if err != nil {
		res.err = err
		var vf *pack.ValidationFailure
		if errors.As(err, &vf) {
			if vf.Kind != "" {
				res.Kind = vf.Kind
			}
			res.SchemaVersion = vf.Version
			res.Violations = vf.Violations
		} else {
			res.Error = err.Error()
		}
		return res
	}
	res.Valid = true
	res.Kind = p.Kind
	res.Name = packName(p)
	res.SchemaVersion = p.SchemaVersion
	return res
}

// validatePacks checks files concurrently and returns results in argument order.
func validatePacks(ctx context.Context, files []string, kind pack.Kind, jobs int) ([]packResult, error) {
	results := make([]packResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	if jobs > 0 {
		g.SetLimit(jobs)
	}
	for i, file := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = checkPack(file, kind)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func runPackValidate(cmd *cobra.Command, args []string) error {
	kindStr, _ := cmd.Flags().GetString("kind")
	jobs, _ := cmd.Flags().GetInt("jobs")
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}
	var kind pack.Kind
	if kindStr != "" {
		if kind, err = pack.ParseKind(kindStr); err != nil {
			return &configError{err: err}
		}
	}

	results, err := validatePacks(cmd.Context(), args, kind, jobs)
	if err != nil {
		return err
	}

	invalid, failed := 0, 0
	var firstErr error
	for _, r := range results {
		if r.Valid {
			continue
		}
		failed++
		if r.Error != "" {
			if firstErr == nil {
				firstErr = r.err
			}
		} else {
			invalid++
		}
		logger.Debug("pack rejected", logger.String("file", r.File), logger.Int("violations", len(r.Violations)))
	}

	if format == "json" {
		if err := writeJSON(cmd, results); err != nil {
			return err
		}
	} else {
		rows := make([][]string, 0, len(results))
		for _, r := range results {
			status := "valid"
			detail := ""
			switch {
			case r.Error != "":
				status = "error"
				detail = r.Error
			case !r.Valid:
				status = "invalid"
				parts := make([]string, len(r.Violations))
				for i, v := range r.Violations {
					parts[i] = v.String()
				}
				detail = strings.Join(parts, "; ")
			}
			rows = append(rows, []string{r.File, string(r.Kind), r.SchemaVersion, status, truncate(detail, detailWidth)})
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"File", "Kind", "Version", "Status", "Detail"}, rows, nil))
	}

	switch {
	case failed == 0:
		return nil
	case invalid == 0:
		return firstErr
	}
	return &validationFailures{Failed: failed, Total: len(results)}
}

func runPackList(cmd *cobra.Command, _ []string) error {
	dir, _ := cmd.Flags().GetString("dir")
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}
	if dir == "" {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		dir = cfg.PacksDir
	}

	files, err := pack.Discover(dir)
	if err != nil {
		return err
	}
	results, err := validatePacks(cmd.Context(), files, "", runtime.NumCPU())
	if err != nil {
		return err
	}

	if format == "json" {
		if results == nil {
			results = []packResult{}
		}
		return writeJSON(cmd, results)
	}
	if len(results) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No packs found in %s\n", dir)
		return nil
	}
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		status := "valid"
		if !r.Valid {
			status = "invalid (" + strconv.Itoa(len(r.Violations)) + ")"
			if r.Error != "" {
				status = "error"
			}
		}
		rel, err := filepath.Rel(dir, r.File)
		if err != nil {
			rel = r.File
		}
		rows = append(rows, []string{rel, string(r.Kind), r.Name, r.SchemaVersion, status})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"File", "Kind", "Name", "Version", "Status"}, rows, nil))
	return nil
}

func runPackSchema(cmd *cobra.Command, args []string) error {
	kind, err := pack.ParseKind(args[0])
	if err != nil {
		return &configError{err: err}
	}
	version, _ := cmd.Flags().GetString("version")
	if version == "" {
		latest, ok := pack.LatestVersion(kind)
		if !ok {
			return fmt.Errorf("no schema registered for %s packs", kind)
		}
		version = latest
	}
	data, err := pack.SchemaFor(kind, version)
	if err != nil {
		return &configError{err: fmt.Errorf("%w (supported: %s)", err, strings.Join(pack.SupportedVersions(kind), ", "))}
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func packName(p *pack.Pack) string {
	switch {
	case p.Mapping != nil:
		return p.Mapping.Name
	case p.Brand != nil:
		return p.Brand.Name
	case p.Delivery != nil:
		return p.Delivery.Name
	}
	return ""
}
