package pack

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/fulmenhq/rpsuite/internal/assets"
	"github.com/xeipuuv/gojsonschema"
)

var versionPattern = regexp.MustCompile(`^(0|[1-9][0-9]*)\.(0|[1-9][0-9]*)\.(0|[1-9][0-9]*)$`)

// registry caches compiled schemas by kind and version for reuse
var (
	schemaRegistry = map[string]*gojsonschema.Schema{}
	regMu          sync.RWMutex
)

func registryKey(kind Kind, version string) string {
	return string(kind) + "@" + version
}

// SupportedVersions lists the registered schema versions for kind.
func SupportedVersions(kind Kind) []string {
	return assets.Versions(string(kind))
}

// SchemaFor returns the raw schema document for kind at version.
func SchemaFor(kind Kind, version string) ([]byte, error) {
	data, ok := assets.GetSchema(string(kind), version)
	if !ok {
		return nil, fmt.Errorf("no %s schema registered for version %q", kind, version)
	}
	return data, nil
}

// LatestVersion returns the newest registered schema version for kind.
func LatestVersion(kind Kind) (string, bool) {
	versions := SupportedVersions(kind)
	if len(versions) == 0 {
		return "", false
	}
	return versions[len(versions)-1], true
}

func compiledSchema(kind Kind, version string) (*gojsonschema.Schema, error) {
	key := registryKey(kind, version)
	regMu.RLock()
	sch, ok := schemaRegistry[key]
	regMu.RUnlock()
	if ok {
		return sch, nil
	}

	data, err := SchemaFor(kind, version)
	if err != nil {
		return nil, err
	}
	sch, err = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to load %s schema %s: %w", kind, version, err)
	}
	regMu.Lock()
	schemaRegistry[key] = sch
	regMu.Unlock()
	return sch, nil
}
