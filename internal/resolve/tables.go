package resolve

import (
	"bytes"
	"embed"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed tables/*.yaml
var builtin embed.FS

// DefaultTables loads the built-in Siemens tables
func DefaultTables() (*Tables, error) {
	base, err := loadBuiltinTable("tables/base.yaml")
	if err != nil {
		return nil, err
	}
	main, err := loadBuiltinTable("tables/siemens.yaml")
	if err != nil {
		return nil, err
	}
	recon, err := loadBuiltinTable("tables/recon.yaml")
	if err != nil {
		return nil, err
	}
	data, err := builtin.ReadFile("tables/overrides.yaml")
	if err != nil {
		return nil, err
	}
	overrides, err := LoadOverrides(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("tables/overrides.yaml: %w", err)
	}
	return &Tables{Base: base, Main: main, Recon: recon, Overrides: overrides}, nil
}

func loadBuiltinTable(name string) (*Table, error) {
	data, err := builtin.ReadFile(name)
	if err != nil {
		return nil, err
	}
	t, err := LoadTable(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return t, nil
}

// LoadTableFile reads a rule table from disk
func LoadTableFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadTable(f)
}

// LoadOverridesFile reads sequence overrides from disk
func LoadOverridesFile(path string) (*Overrides, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadOverrides(f)
}

// WriteYAML dumps every table, in evaluation order, as YAML documents
func (t *Tables) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	for _, table := range []*Table{t.Base, t.Main, t.Recon} {
		if table == nil {
			continue
		}
		if err := enc.Encode(table); err != nil {
			return err
		}
	}
	if t.Overrides != nil {
		if err := enc.Encode(t.Overrides); err != nil {
			return err
		}
	}
	return enc.Close()
}
