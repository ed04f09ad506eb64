package motors

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// registerSpec is the YAML shape of one catalog entry.
type registerSpec struct {
	Address uint16 `yaml:"address"`
	Width   uint16 `yaml:"width"`
}

// LoadCatalog reads a motor catalog from a YAML file of the form
//
//	present_position: {address: 0x25, width: 2}
//	goal_position:    {address: 0x1E, width: 2}
//
// Widths outside {1,2} are rejected at load time so a bad table can never
// reach the wire.
func LoadCatalog(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog parses YAML catalog bytes.
func ParseCatalog(data []byte) (Catalog, error) {
	var specs map[string]registerSpec
	if err := yaml.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("catalog holds no registers")
	}

	catalog := make(Catalog, len(specs))
	for name, spec := range specs {
		if spec.Width != 1 && spec.Width != 2 {
			return nil, fmt.Errorf("register %q: width %d not in {1,2}", name, spec.Width)
		}
		catalog[name] = Reg(spec.Address, spec.Width)
	}
	return catalog, nil
}

// Builtin returns a compiled-in catalog by model name.
func Builtin(model string) (Catalog, bool) {
	switch model {
	case "xl320", "xl-320":
		return XL320, true
	case "xseries", "x-series":
		return XSeries, true
	default:
		return nil, false
	}
}
