package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/fulmenhq/rpsuite/internal/resolve"
	"github.com/fulmenhq/rpsuite/internal/tools"
	"github.com/fulmenhq/rpsuite/pkg/exitcode"
	"github.com/fulmenhq/rpsuite/pkg/ledger"
	"github.com/fulmenhq/rpsuite/pkg/match"
	"github.com/fulmenhq/rpsuite/pkg/pack"
	"github.com/fulmenhq/rpsuite/pkg/report"
	"github.com/fulmenhq/rpsuite/pkg/safeio"
)

type configError struct{ err error }

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

// collaboratorFailure is returned after a run whose report carries object
// model failures. The reports are already written.
type collaboratorFailure struct {
	ToolID string
	Count  int
}

func (e *collaboratorFailure) Error() string {
	return fmt.Sprintf("%s: %d object model call(s) failed; see the report", e.ToolID, e.Count)
}

// validationFailures is returned by batch validation when any file failed.
type validationFailures struct {
	Failed int
	Total  int
}

func (e *validationFailures) Error() string {
	return fmt.Sprintf("%d of %d pack(s) failed validation", e.Failed, e.Total)
}

// exitCodeFor maps an error returned by a command to a process exit code.
func exitCodeFor(err error) int {
	var (
		vf  *pack.ValidationFailure
		vfs *validationFailures
		se  *match.StrategyError
		oe  *tools.OptionsError
		ce  *configError
		cf  *collaboratorFailure
		ca  *resolve.CallError
		pe  *fs.PathError
		le  *os.LinkError
	)
	switch {
	case err == nil:
		return exitcode.Success
	case errors.As(err, &vf), errors.As(err, &vfs):
		return exitcode.ValidationError
	case errors.As(err, &se):
		return exitcode.StrategyError
	case errors.Is(err, ledger.ErrInvalidState):
		return exitcode.StateError
	case errors.As(err, &cf), errors.As(err, &ca),
		errors.Is(err, resolve.ErrNoProject), errors.Is(err, resolve.ErrNoTimeline), errors.Is(err, resolve.ErrNotFound):
		return exitcode.ExternalError
	case errors.Is(err, report.ErrUnsupportedFormat), errors.Is(err, pack.ErrUnsupportedFormat),
		errors.Is(err, resolve.ErrUnsupportedFormat), errors.Is(err, resolve.ErrReadOnly):
		return exitcode.UnsupportedFormat
	case errors.As(err, &oe), errors.As(err, &ce):
		return exitcode.ConfigError
	case errors.As(err, &pe), errors.As(err, &le), errors.Is(err, safeio.ErrTraversal):
		return exitcode.FileSystemError
	}
	return exitcode.GeneralError
}

// collaboratorFailures counts report items produced by failed object model calls.
func collaboratorFailures(r *report.Report) int {
	n := 0
	for _, it := range r.Items {
		if it.Severity == report.SeverityError && it.Category == "resolve" {
			n++
		}
	}
	return n
}
