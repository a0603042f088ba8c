package assets

import (
	"embed"
	"io/fs"
)

//go:embed templates
var Templates embed.FS

//go:embed schemas
var Schemas embed.FS

// GetTemplatesFS returns the embedded templates rooted at templates/.
func GetTemplatesFS() fs.FS {
	if sub, err := fs.Sub(Templates, "templates"); err == nil {
		return sub
	}
	return Templates
}

// GetSchemasFS returns the embedded pack schemas rooted at schemas/.
func GetSchemasFS() fs.FS {
	if sub, err := fs.Sub(Schemas, "schemas"); err == nil {
		return sub
	}
	return Schemas
}

// GetTemplate returns an embedded template by name, e.g. "report.html.hbs".
func GetTemplate(name string) ([]byte, error) {
	return fs.ReadFile(GetTemplatesFS(), name)
}
