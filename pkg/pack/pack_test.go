package pack

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validMapping() map[string]any {
	return map[string]any{
		"schema_version": "1.0.0",
		"mappings": []any{
			map[string]any{"old_asset": "logo_v1.png", "new_asset": "logo_v2.png", "match_strategy": "token"},
			map[string]any{"old_asset": "bumper.mov", "new_asset": "bumper_v2.mov", "match_strategy": "similarity", "threshold": 0.9},
		},
	}
}

func failureOf(t *testing.T, err error) *ValidationFailure {
	t.Helper()
	require.Error(t, err)
	var vf *ValidationFailure
	require.True(t, errors.As(err, &vf), "expected *ValidationFailure, got %T: %v", err, err)
	return vf
}

func paths(vf *ValidationFailure) []string {
	out := make([]string, len(vf.Violations))
	for i, v := range vf.Violations {
		out[i] = v.Path
	}
	return out
}

func TestValidateMappingAccepts(t *testing.T) {
	p, err := Validate(validMapping(), KindMapping)
	require.NoError(t, err)
	require.NotNil(t, p.Mapping)
	assert.Equal(t, KindMapping, p.Kind)
	assert.Equal(t, "1.0.0", p.SchemaVersion)
	require.Len(t, p.Mapping.Mappings, 2)
	assert.Equal(t, "logo_v1.png", p.Mapping.Mappings[0].OldAsset)
	assert.Equal(t, 0.9, p.Mapping.ThresholdFor(p.Mapping.Mappings[1], 0.6))
	assert.Equal(t, 0.6, p.Mapping.ThresholdFor(p.Mapping.Mappings[0], 0.6))
	assert.Equal(t, DefaultAspectTolerance, p.Mapping.Tolerance())
}

func TestValidateVersionRules(t *testing.T) {
	tests := []struct {
		name    string
		version any
		drop    bool
		reason  string
	}{
		{name: "missing", drop: true, reason: "required field missing"},
		{name: "not a string", version: 1, reason: "must be a string"},
		{name: "malformed", version: "v1", reason: "malformed schema version"},
		{name: "unknown", version: "9.0.0", reason: "unsupported schema version"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := validMapping()
			if tt.drop {
				delete(doc, "schema_version")
			} else {
				doc["schema_version"] = tt.version
			}
			_, err := Validate(doc, KindMapping)
			vf := failureOf(t, err)
			require.Len(t, vf.Violations, 1)
			assert.Equal(t, "schema_version", vf.Violations[0].Path)
			assert.Contains(t, vf.Violations[0].Reason, tt.reason)
		})
	}
}

func TestValidateCollectsEveryViolation(t *testing.T) {
	doc := map[string]any{
		"schema_version": "1.0.0",
		"mappings": []any{
			map[string]any{"old_asset": "a.png", "new_asset": "b.png", "match_strategy": "token"},
			map[string]any{"new_asset": "c.png", "match_strategy": "fuzzy"},
			map[string]any{"old_asset": 7, "new_asset": "d.png", "match_strategy": "token", "colour": "red"},
		},
	}
	_, err := Validate(doc, KindMapping)
	vf := failureOf(t, err)

	want := []string{
		"mappings[1].match_strategy",
		"mappings[1].old_asset",
		"mappings[2].colour",
		"mappings[2].old_asset",
	}
	if diff := cmp.Diff(want, paths(vf)); diff != "" {
		t.Errorf("violation paths mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "required field missing", vf.Violations[1].Reason)
	assert.Equal(t, "unknown field", vf.Violations[2].Reason)
}

func TestValidateDuplicateOldAssetPerIndex(t *testing.T) {
	doc := validMapping()
	doc["mappings"] = append(doc["mappings"].([]any),
		map[string]any{"old_asset": "logo_v1.png", "new_asset": "logo_v3.png", "match_strategy": "token"},
	)
	_, err := Validate(doc, KindMapping)
	vf := failureOf(t, err)
	assert.Equal(t, []string{"mappings[0].old_asset", "mappings[2].old_asset"}, paths(vf))
	assert.Contains(t, vf.Violations[0].Reason, "indices 0, 2")
}

func TestValidateStructuralErrors(t *testing.T) {
	t.Run("top level array", func(t *testing.T) {
		_, err := Validate([]any{1, 2}, KindMapping)
		vf := failureOf(t, err)
		assert.Equal(t, "", vf.Violations[0].Path)
		assert.Contains(t, vf.Violations[0].Reason, "got array")
	})
	t.Run("unknown kind", func(t *testing.T) {
		_, err := Validate(validMapping(), Kind("storyboard"))
		vf := failureOf(t, err)
		assert.Equal(t, "kind", vf.Violations[0].Path)
	})
	t.Run("kind field mismatch", func(t *testing.T) {
		doc := validMapping()
		doc["kind"] = "brand"
		_, err := Validate(doc, KindMapping)
		vf := failureOf(t, err)
		assert.Equal(t, "kind", vf.Violations[0].Path)
	})
	t.Run("missing mappings", func(t *testing.T) {
		_, err := Validate(map[string]any{"schema_version": "1.0.0"}, KindMapping)
		vf := failureOf(t, err)
		assert.Equal(t, []string{"mappings"}, paths(vf))
	})
	t.Run("raw json bytes", func(t *testing.T) {
		p, err := Validate([]byte(`{"schema_version":"1.0.0","mappings":[]}`), KindMapping)
		require.NoError(t, err)
		assert.Empty(t, p.Mapping.Mappings)
	})
}

func TestValidateBrandDuplicates(t *testing.T) {
	doc := map[string]any{
		"schema_version": "1.0.0",
		"name":           "Acme",
		"colors": []any{
			map[string]any{"name": "Red", "hex": "#FF0000"},
			map[string]any{"name": "red", "hex": "#EE0000"},
			map[string]any{"name": "Blue", "hex": "blue"},
		},
		"fonts": []any{"Acme Sans"},
	}
	_, err := Validate(doc, KindBrand)
	vf := failureOf(t, err)
	assert.Equal(t, []string{"colors[0].name", "colors[1].name", "colors[2].hex"}, paths(vf))
}

func TestValidateDeliveryRequiresPlatformFields(t *testing.T) {
	doc := map[string]any{
		"schema_version": "1.0.0",
		"platforms": map[string]any{
			"youtube": map[string]any{"codec": "h264", "resolution": "1920by1080"},
		},
	}
	_, err := Validate(doc, KindDelivery)
	vf := failureOf(t, err)
	assert.Equal(t, []string{"platforms.youtube.fps", "platforms.youtube.resolution"}, paths(vf))
}

func TestLoadFormats(t *testing.T) {
	m, err := Load(filepath.Join("testdata", "mapping.yaml"), KindMapping)
	require.NoError(t, err)
	assert.Equal(t, "spring campaign v2", m.Mapping.Name)
	assert.Equal(t, 0.7, m.Mapping.ThresholdFor(m.Mapping.Mappings[0], 0.6))
	assert.Equal(t, filepath.Join("testdata", "mapping.yaml"), m.Source)

	d, err := Load(filepath.Join("testdata", "delivery.toml"), KindDelivery)
	require.NoError(t, err)
	assert.Equal(t, []string{"tiktok", "youtube"}, d.Delivery.PlatformNames())
	assert.Equal(t, 16.0, d.Delivery.Platforms["youtube"].BitrateMbps)

	b, err := LoadAny(filepath.Join("testdata", "brand.json"))
	require.NoError(t, err)
	assert.Equal(t, KindBrand, b.Kind)
	require.Contains(t, b.Brand.LayoutConstraints, "9x16")
	assert.True(t, b.Brand.LayoutConstraints["9x16"].KeepLogoVisible)
}

func TestLoadFailureCarriesSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"schema_version":"1.0.0"}`), 0o644))

	_, err := Load(path, KindDelivery)
	vf := failureOf(t, err)
	assert.Equal(t, path, vf.Source)
	assert.Contains(t, err.Error(), "platforms: required field missing")

	_, err = Load(filepath.Join(dir, "pack.xml"), KindDelivery)
	require.Error(t, err)
}

func TestDecodeRejectsUnknownExtension(t *testing.T) {
	_, err := Decode("pack.ini", []byte("x=1"))
	assert.ErrorContains(t, err, "unsupported pack format")
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	for _, rel := range []string{"b/brand.yaml", "a.json", "notes.txt", ".hidden/x.json", "deep/er/d.toml"} {
		full := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o750))
		require.NoError(t, os.WriteFile(full, []byte("{}"), 0o644))
	}
	got, err := Discover(dir)
	require.NoError(t, err)
	want := []string{
		filepath.Join(dir, "a.json"),
		filepath.Join(dir, "b", "brand.yaml"),
		filepath.Join(dir, "deep", "er", "d.toml"),
	}
	assert.Equal(t, want, got)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".rpsignore"), []byte("deep/\n"), 0o644))
	got, err = Discover(dir)
	require.NoError(t, err)
	assert.Equal(t, want[:2], got)

	none, err := Discover(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestParseResolution(t *testing.T) {
	w, h, err := ParseResolution("1920x1080")
	require.NoError(t, err)
	assert.Equal(t, 1920, w)
	assert.Equal(t, 1080, h)
	for _, bad := range []string{"1920", "0x10", "axb", ""} {
		_, _, err := ParseResolution(bad)
		assert.Error(t, err, bad)
	}
}

func TestSchemaRegistry(t *testing.T) {
	assert.Equal(t, []string{"1.0.0"}, SupportedVersions(KindDelivery))
	v, ok := LatestVersion(KindBrand)
	assert.True(t, ok)
	assert.Equal(t, "1.0.0", v)
	_, err := SchemaFor(KindMapping, "2.0.0")
	assert.Error(t, err)
}
