// Package resolve turns protocol records into flat sidecars by running
// declarative rule tables. A table maps each target field to an ordered
// list of rules; a rule names its source candidates and a formula from
// the catalog by identifier.
package resolve

import (
	"fmt"
	"io"
	"path"

	"gopkg.in/yaml.v3"

	perrors "github.com/a3tai/protocol2bids/internal/errors"
)

// Candidates lists alternative spellings of one formula argument. They
// are tried left to right. In YAML a single candidate may be written as
// a plain string.
type Candidates []string

// UnmarshalYAML accepts either a scalar or a sequence of scalars
func (c *Candidates) UnmarshalYAML(value *yaml.Node) error {
	node := value
	if node.Kind == yaml.AliasNode {
		node = node.Alias
	}
	if node.Kind == yaml.ScalarNode {
		*c = Candidates{node.Value}
		return nil
	}
	var list []string
	if err := node.Decode(&list); err != nil {
		return fmt.Errorf("line %d: argument must be a path or a list of paths: %w", value.Line, err)
	}
	*c = list
	return nil
}

// MarshalYAML writes a single candidate as a plain string
func (c Candidates) MarshalYAML() (any, error) {
	if len(c) == 1 {
		return c[0], nil
	}
	return []string(c), nil
}

// Params are the static parameters of a formula, such as a lookup table
// or a scale factor.
type Params map[string]any

// Rule is one way of computing a field.
type Rule struct {
	Args       []Candidates `yaml:"args,omitempty" json:"args,omitempty"`
	Formula    string       `yaml:"formula" json:"formula"`
	Params     Params       `yaml:"params,omitempty" json:"params,omitempty"`
	Accumulate bool         `yaml:"accumulate,omitempty" json:"accumulate,omitempty"`
}

// Field is a target field with its rules in evaluation order.
type Field struct {
	Target string
	Rules  []Rule
}

// Fields keeps the declaration order of a table, which later rules rely
// on when they read fields resolved before them.
type Fields []Field

// UnmarshalYAML reads a mapping of target name to rules. The value of a
// target is a list of rules, a single rule, or a bare path copied as is.
func (f *Fields) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.AliasNode {
		value = value.Alias
	}
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: fields must be a mapping", value.Line)
	}
	out := make(Fields, 0, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		key, node := value.Content[i], value.Content[i+1]
		if node.Kind == yaml.AliasNode {
			node = node.Alias
		}

		var rules []Rule
		switch node.Kind {
		case yaml.ScalarNode:
			rules = []Rule{{Args: []Candidates{{node.Value}}, Formula: FormulaIdentity}}
		case yaml.MappingNode:
			var r Rule
			if err := node.Decode(&r); err != nil {
				return fmt.Errorf("field %s: %w", key.Value, err)
			}
			rules = []Rule{r}
		case yaml.SequenceNode:
			if err := node.Decode(&rules); err != nil {
				return fmt.Errorf("field %s: %w", key.Value, err)
			}
		default:
			return fmt.Errorf("line %d: field %s has no rules", node.Line, key.Value)
		}
		out = append(out, Field{Target: key.Value, Rules: rules})
	}
	*f = out
	return nil
}

// MarshalYAML writes the fields back as an ordered mapping
func (f Fields) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, field := range f {
		var rules yaml.Node
		if err := rules.Encode(field.Rules); err != nil {
			return nil, err
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: field.Target},
			&rules)
	}
	return node, nil
}

// Table is a named, ordered rule table.
type Table struct {
	Name   string `yaml:"name"`
	Fields Fields `yaml:"fields"`
}

// Field returns the rules of a target
func (t *Table) Field(target string) (Field, bool) {
	for _, f := range t.Fields {
		if f.Target == target {
			return f, true
		}
	}
	return Field{}, false
}

// OverrideMode selects how many matching patterns apply.
type OverrideMode string

const (
	// OverrideEvery applies every pattern matching the sequence name.
	OverrideEvery OverrideMode = "every"
	// OverrideFirst applies only the first matching pattern.
	OverrideFirst OverrideMode = "first"
)

// Pattern is a supplementary table selected by a sequence name glob.
type Pattern struct {
	Pattern string `yaml:"pattern"`
	Fields  Fields `yaml:"fields"`
}

// Overrides holds the sequence specific tables.
type Overrides struct {
	Mode     OverrideMode `yaml:"mode"`
	Patterns []Pattern    `yaml:"patterns"`
}

// Match returns the patterns applying to a sequence name, in order
func (o *Overrides) Match(sequence string) []Pattern {
	var out []Pattern
	for _, p := range o.Patterns {
		if ok, _ := path.Match(p.Pattern, sequence); !ok {
			continue
		}
		out = append(out, p)
		if o.Mode == OverrideFirst {
			break
		}
	}
	return out
}

// LoadTable decodes a rule table and checks every formula against the
// default catalog.
func LoadTable(r io.Reader) (*Table, error) {
	var t Table
	if err := decodeStrict(r, &t); err != nil {
		return nil, perrors.Wrap(perrors.ErrorTypeInvalidTable, "cannot decode rule table", err)
	}
	if err := DefaultCatalog().Validate(t.Name, t.Fields); err != nil {
		return nil, err
	}
	return &t, nil
}

// LoadOverrides decodes sequence overrides. An empty mode means every.
func LoadOverrides(r io.Reader) (*Overrides, error) {
	var o Overrides
	if err := decodeStrict(r, &o); err != nil {
		return nil, perrors.Wrap(perrors.ErrorTypeInvalidTable, "cannot decode overrides", err)
	}
	if o.Mode == "" {
		o.Mode = OverrideEvery
	}
	if err := o.validate(DefaultCatalog()); err != nil {
		return nil, err
	}
	return &o, nil
}

func (o *Overrides) validate(c Catalog) error {
	if o.Mode != OverrideEvery && o.Mode != OverrideFirst {
		return perrors.Newf(perrors.ErrorTypeInvalidTable, "unknown override mode %q", o.Mode)
	}
	for _, p := range o.Patterns {
		if _, err := path.Match(p.Pattern, ""); err != nil {
			return perrors.Wrap(perrors.ErrorTypeInvalidTable, "bad sequence pattern", err).
				WithContext(p.Pattern)
		}
		if err := c.Validate(p.Pattern, p.Fields); err != nil {
			return err
		}
	}
	return nil
}

func decodeStrict(r io.Reader, v any) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	return dec.Decode(v)
}
