// Package geodata loads master geographic datasets (districts, tahasils,
// villages) from XLSX or YAML files into import payloads.
package geodata

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/bhulekh-seva/ror-cli/internal/model"
)

// Load reads a master dataset file, dispatching on the file extension.
func Load(path string) ([]model.MasterDistrict, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return LoadXLSX(path)
	case ".yaml", ".yml":
		return LoadYAML(path)
	default:
		return nil, eris.Errorf("geodata: unsupported file type: %s", path)
	}
}
