package bounds

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/danielpatrickdp/body-refine/go-controller/internal/params"
	"gopkg.in/yaml.v3"
)

// File is an on-disk bounds document: one bound set per gender label.
type File struct {
	Label string                   `json:"label" yaml:"label"`
	Sets  map[string]params.Bounds `json:"sets" yaml:"sets"`
}

// LoadFile reads a bounds document. The format follows the extension: .yaml/.yml is
// YAML, anything else JSON. Gender labels are normalized and every DB set is validated.
func LoadFile(path string) (string, map[params.Gender]params.Bounds, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("read bounds file: %w", err)
	}

	var f File
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &f)
	default:
		err = json.Unmarshal(data, &f)
	}
	if err != nil {
		return "", nil, fmt.Errorf("parse bounds file %s: %w", path, err)
	}
	if len(f.Sets) == 0 {
		return "", nil, fmt.Errorf("bounds file %s: no sets", path)
	}

	out := make(map[params.Gender]params.Bounds, len(f.Sets))
	for label, b := range f.Sets {
		g, err := params.ParseGender(label)
		if err != nil {
			return "", nil, fmt.Errorf("bounds file %s: %w", path, err)
		}
		if err := b.DB.Validate(); err != nil {
			return "", nil, fmt.Errorf("bounds file %s: %s db: %w", path, g, err)
		}
		b.Gender = g
		out[g] = b
	}
	return f.Label, out, nil
}
