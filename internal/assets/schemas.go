package assets

import (
	"encoding/json"
	"io/fs"
	"path"
	"sort"
	"strings"
)

// SchemaInfo holds schema metadata.
type SchemaInfo struct {
	Kind    string `json:"kind"`
	Version string `json:"version"`
	Path    string `json:"path"`
	Draft   string `json:"draft"`
	Title   string `json:"title,omitempty"`
}

// Pack schemas live at packs/<kind>/v<version>/<kind>-pack.json.
func schemaPath(kind, version string) string {
	return path.Join("packs", kind, "v"+version, kind+"-pack.json")
}

// GetSchema returns the embedded schema for a pack kind and version.
func GetSchema(kind, version string) ([]byte, bool) {
	data, err := fs.ReadFile(GetSchemasFS(), schemaPath(kind, version))
	return data, err == nil
}

// Versions lists the embedded schema versions for kind, oldest first.
func Versions(kind string) []string {
	entries, err := fs.ReadDir(GetSchemasFS(), path.Join("packs", kind))
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), "v") {
			out = append(out, strings.TrimPrefix(e.Name(), "v"))
		}
	}
	sort.Strings(out)
	return out
}

// GetSchemaNames returns every embedded pack schema with its metadata.
func GetSchemaNames() []SchemaInfo {
	kinds, err := fs.ReadDir(GetSchemasFS(), "packs")
	if err != nil {
		return nil
	}
	var infos []SchemaInfo
	for _, k := range kinds {
		if !k.IsDir() {
			continue
		}
		for _, v := range Versions(k.Name()) {
			info := SchemaInfo{Kind: k.Name(), Version: v, Path: schemaPath(k.Name(), v)}
			info.Draft, info.Title = describe(k.Name(), v)
			infos = append(infos, info)
		}
	}
	return infos
}

func describe(kind, version string) (draft, title string) {
	data, ok := GetSchema(kind, version)
	if !ok {
		return "Unknown", ""
	}
	var doc struct {
		Schema string `json:"$schema"`
		Title  string `json:"title"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return "Unknown", ""
	}
	switch {
	case strings.Contains(doc.Schema, "draft-07"):
		draft = "Draft-07"
	case strings.Contains(doc.Schema, "2020-12"):
		draft = "Draft-2020-12"
	default:
		draft = "Unknown"
	}
	return draft, doc.Title
}
