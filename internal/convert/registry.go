// Package convert runs protocol printouts through the layout parser and
// the field resolution engine, and writes the resulting sidecars.
package convert

import (
	"fmt"
	"sort"
	"strings"

	"github.com/a3tai/protocol2bids/internal/layout"
)

// Registry holds the printout variants a document may be parsed with.
// It is built once and is read-only afterwards.
type Registry struct {
	variants []*layout.Variant
	index    map[string]int
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{index: make(map[string]int)}
}

// DefaultRegistry holds the Siemens VA, VB, VD and VE variants.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, v := range layout.Variants() {
		if err := r.Register(v); err != nil {
			panic(fmt.Sprintf("register %s: %v", v.Name, err))
		}
	}
	return r
}

// Register adds a variant. Names must be unique.
func (r *Registry) Register(v *layout.Variant) error {
	if v == nil || strings.TrimSpace(v.Name) == "" {
		return fmt.Errorf("variant without name")
	}
	if _, ok := r.index[v.Name]; ok {
		return fmt.Errorf("variant %s already registered", v.Name)
	}
	r.index[v.Name] = len(r.variants)
	r.variants = append(r.variants, v)
	return nil
}

// Get returns the named variant
func (r *Registry) Get(name string) (*layout.Variant, bool) {
	i, ok := r.index[name]
	if !ok {
		return nil, false
	}
	return r.variants[i], true
}

// Names returns the variant names in registration order
func (r *Registry) Names() []string {
	names := make([]string, len(r.variants))
	for i, v := range r.variants {
		names[i] = v.Name
	}
	return names
}

// Variants returns the variants in registration order
func (r *Registry) Variants() []*layout.Variant {
	return r.variants
}

// Stage tells why a variant is tried.
type Stage string

const (
	StageHint     Stage = "hint"
	StageSniff    Stage = "sniff"
	StageFallback Stage = "fallback"
)

// Attempt is one variant to try on a document.
type Attempt struct {
	Variant *layout.Variant
	Stage   Stage
}

// Plan orders the variants to try on a document. Variants whose name
// starts with a hint come first, latest software first. Variants whose
// sniff accepts the document follow, then every other variant in
// registration order. Each variant appears once.
func (r *Registry) Plan(doc *layout.Document, hints []string) []Attempt {
	var plan []Attempt
	tried := make(map[string]bool, len(r.variants))

	names := r.Names()
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	for _, hint := range hints {
		hint = strings.TrimSpace(hint)
		if hint == "" {
			continue
		}
		for _, name := range names {
			if tried[name] || !strings.HasPrefix(name, hint) {
				continue
			}
			tried[name] = true
			v, _ := r.Get(name)
			plan = append(plan, Attempt{Variant: v, Stage: StageHint})
		}
	}

	for _, v := range r.variants {
		if tried[v.Name] || !v.Sniff(doc) {
			continue
		}
		tried[v.Name] = true
		plan = append(plan, Attempt{Variant: v, Stage: StageSniff})
	}

	for _, v := range r.variants {
		if tried[v.Name] {
			continue
		}
		tried[v.Name] = true
		plan = append(plan, Attempt{Variant: v, Stage: StageFallback})
	}
	return plan
}

// Sniff returns the names of the variants whose sniff accepts the document
func (r *Registry) Sniff(doc *layout.Document) []string {
	var out []string
	for _, v := range r.variants {
		if v.Sniff(doc) {
			out = append(out, v.Name)
		}
	}
	return out
}
