package resolve

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fulmenhq/rpsuite/pkg/safeio"
)

// LoadSnapshot reads a project snapshot. JSON and YAML snapshots round-trip;
// FCPXML files are imported as a single project named after the file.
func LoadSnapshot(path string) (Snapshot, error) {
	data, err := safeio.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}
	var snap Snapshot
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&snap); err != nil {
			return Snapshot{}, fmt.Errorf("parse snapshot %s: %w", path, err)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&snap); err != nil {
			return Snapshot{}, fmt.Errorf("parse snapshot %s: %w", path, err)
		}
	case ".fcpxml", ".xml":
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		proj, err := ImportFCPXML(bytes.NewReader(data), name)
		if err != nil {
			return Snapshot{}, fmt.Errorf("%s: %w", path, err)
		}
		snap = Snapshot{CurrentProject: proj.Name, Projects: []Project{proj}}
	default:
		return Snapshot{}, fmt.Errorf("%w %q", ErrUnsupportedFormat, ext)
	}
	return snap, nil
}

// SaveSnapshot writes snap atomically in the format implied by path's
// extension. FCPXML paths return ErrReadOnly.
func SaveSnapshot(path string, snap Snapshot) error {
	var (
		data []byte
		err  error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		data, err = json.MarshalIndent(snap, "", "  ")
		data = append(data, '\n')
	case ".yaml", ".yml":
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err = enc.Encode(snap); err == nil {
			err = enc.Close()
		}
		data = buf.Bytes()
	case ".fcpxml", ".xml":
		return fmt.Errorf("save %s: %w", path, ErrReadOnly)
	default:
		return fmt.Errorf("%w %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return safeio.WriteFilePreservePerms(path, data)
}
