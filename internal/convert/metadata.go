package convert

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/a3tai/protocol2bids/internal/resolve"
)

// ParseMetadata reads sidecar fields given on the command line: an
// inline mapping such as {"EchoTime": 0.003} or {TaskName: rest}, or the
// path of a JSON or YAML file holding one. Field order is kept.
func ParseMetadata(arg string) (*resolve.Sidecar, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return resolve.NewSidecar(), nil
	}
	data := []byte(arg)
	if !strings.HasPrefix(arg, "{") {
		var err error
		if data, err = os.ReadFile(arg); err != nil {
			return nil, fmt.Errorf("failed to read metadata: %w", err)
		}
	}
	return DecodeMetadata(data)
}

// DecodeMetadata decodes a JSON or YAML mapping into sidecar fields
func DecodeMetadata(data []byte) (*resolve.Sidecar, error) {
	out := resolve.NewSidecar()
	if len(bytes.TrimSpace(data)) == 0 {
		return out, nil
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid metadata: %w", err)
	}
	if len(doc.Content) == 0 {
		return out, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("metadata must be a mapping, got %s", kindName(root.Kind))
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		var value any
		if err := root.Content[i+1].Decode(&value); err != nil {
			return nil, fmt.Errorf("metadata %s: %w", root.Content[i].Value, err)
		}
		out.Set(root.Content[i].Value, value)
	}
	return out, nil
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.SequenceNode:
		return "a sequence"
	case yaml.ScalarNode:
		return "a scalar"
	case yaml.AliasNode:
		return "an alias"
	default:
		return "a document"
	}
}

// merge layers defaults under a sidecar and assigns over it. Default
// fields come first in the output, as when defaults are spread before the
// resolved fields.
func merge(defaults, sidecar, assigns *resolve.Sidecar) *resolve.Sidecar {
	if defaults == nil && assigns == nil {
		return sidecar
	}
	out := resolve.NewSidecar()
	for _, src := range []*resolve.Sidecar{defaults, sidecar, assigns} {
		if src == nil {
			continue
		}
		for _, k := range src.Keys() {
			v, _ := src.Get(k)
			out.Set(k, v)
		}
	}
	return out
}
