package geodata

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/bhulekh-seva/ror-cli/internal/model"
)

// LoadYAML reads a master dataset from a YAML file with a top-level
// "districts" key carrying the full hierarchy.
func LoadYAML(path string) ([]model.MasterDistrict, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "geodata: read %s", path)
	}

	var wrapper struct {
		Districts []model.MasterDistrict `yaml:"districts"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrapf(err, "geodata: parse %s", path)
	}
	if len(wrapper.Districts) == 0 {
		return nil, eris.Errorf("geodata: no districts in %s", path)
	}

	return wrapper.Districts, nil
}
