package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fulmenhq/rpsuite/internal/resolve"
	"github.com/fulmenhq/rpsuite/internal/tools"
	"github.com/fulmenhq/rpsuite/pkg/exitcode"
	"github.com/fulmenhq/rpsuite/pkg/ledger"
	"github.com/fulmenhq/rpsuite/pkg/match"
	"github.com/fulmenhq/rpsuite/pkg/pack"
	"github.com/fulmenhq/rpsuite/pkg/report"
	"github.com/fulmenhq/rpsuite/pkg/safeio"
)

// execRoot runs a fresh command tree with args and a private home directory.
// It returns stdout; log lines go to a separate buffer.
func execRoot(t *testing.T, home string, args ...string) (string, error) {
	t.Helper()
	var buf, logs bytes.Buffer
	root := newRootCommand()
	registerSubcommands(root)
	root.SetOut(&buf)
	root.SetErr(&logs)
	full := append([]string{"--log-level", "error", "--no-color", "--home", home}, args...)
	root.SetArgs(full)
	err := root.Execute()
	return buf.String(), err
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRootHelpListsCommands(t *testing.T) {
	out, err := execRoot(t, t.TempDir(), "--help")
	require.NoError(t, err)
	for _, name := range []string{"pack", "match", "run", "tools", "report", "ledger", "preset", "home", "version"} {
		assert.Contains(t, out, name)
	}
}

func TestVersionJSON(t *testing.T) {
	out, err := execRoot(t, t.TempDir(), "version", "--format", "json")
	require.NoError(t, err)
	var v map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &v), out)
	assert.NotEmpty(t, v["version"])
	assert.NotEmpty(t, v["goVersion"])

	out, err = execRoot(t, t.TempDir(), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "rpsuite ")

	_, err = execRoot(t, t.TempDir(), "version", "--format", "xml")
	require.Error(t, err)
	assert.Equal(t, exitcode.ConfigError, exitCodeFor(err))
}

func TestHomeInit(t *testing.T) {
	home := filepath.Join(t.TempDir(), "rps")
	out, err := execRoot(t, home, "home", "--init", "--format", "json")
	require.NoError(t, err)

	var dirs map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &dirs), out)
	assert.Equal(t, home, dirs["home"])
	assert.Equal(t, filepath.Join(home, "ledger.db"), dirs["ledger"])
	for _, key := range []string{"packs", "presets", "reports", "logs"} {
		st, err := os.Stat(dirs[key])
		require.NoError(t, err, key)
		assert.True(t, st.IsDir(), key)
	}
}

func TestConfigFileOverridesDefaults(t *testing.T) {
	home := t.TempDir()
	cfgFile := writeFile(t, filepath.Join(home, "custom.yaml"), "match:\n  strategy: similarity\n  threshold: 0.9\n")

	out, err := execRoot(t, home, "--config", cfgFile, "match", "logo_v1.png", "logo_v2.png", "--format", "json")
	require.NoError(t, err)
	var res match.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res), out)
	assert.Equal(t, match.Similarity, res.Strategy)
	assert.Equal(t, 0.9, res.Threshold)

	bad := writeFile(t, filepath.Join(home, "bad.yaml"), "match:\n  threshold: 3\n")
	_, err = execRoot(t, home, "--config", bad, "home")
	require.Error(t, err)
	assert.Equal(t, exitcode.ConfigError, exitCodeFor(err))
}

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitcode.Success},
		{"validation", fmt.Errorf("load: %w", &pack.ValidationFailure{Kind: pack.KindMapping}), exitcode.ValidationError},
		{"batch validation", &validationFailures{Failed: 1, Total: 2}, exitcode.ValidationError},
		{"strategy", &match.StrategyError{Strategy: "fuzzy"}, exitcode.StrategyError},
		{"state", &ledger.StateError{}, exitcode.StateError},
		{"collaborator report", &collaboratorFailure{ToolID: "t1", Count: 1}, exitcode.ExternalError},
		{"call error", &resolve.CallError{Op: "ReplaceClip", Err: errors.New("offline")}, exitcode.ExternalError},
		{"no project", fmt.Errorf("open: %w", resolve.ErrNoProject), exitcode.ExternalError},
		{"report format", fmt.Errorf("%w %q", report.ErrUnsupportedFormat, "pdf"), exitcode.UnsupportedFormat},
		{"snapshot read-only", resolve.ErrReadOnly, exitcode.UnsupportedFormat},
		{"options", &tools.OptionsError{ToolID: "t4", Reason: "bad"}, exitcode.ConfigError},
		{"config", &configError{err: errors.New("bad")}, exitcode.ConfigError},
		{"missing file", fmt.Errorf("read: %w", &os.PathError{Op: "open", Path: "x", Err: os.ErrNotExist}), exitcode.FileSystemError},
		{"traversal", safeio.ErrTraversal, exitcode.FileSystemError},
		{"other", errors.New("boom"), exitcode.GeneralError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCodeFor(tt.err))
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "a b c", truncate("a\n b\t c", 10))
	got := truncate("relink logo_v1.png -> logo_v2.png failed", 12)
	assert.Equal(t, "relink lo...", got)
	assert.Equal(t, "日...", truncate("日本語のクリップ", 6))
}
