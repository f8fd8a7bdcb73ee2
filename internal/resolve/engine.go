package resolve

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	perrors "github.com/a3tai/protocol2bids/internal/errors"
	"github.com/a3tai/protocol2bids/internal/layout"
)

// Hints carry image geometry: the voxel axis of each anatomical
// direction ("LR" -> "i+", "RL" -> "i-", ...) and the volume shape.
type Hints struct {
	Axes  map[string]string
	Shape [3]int
}

// Tables groups the passes of a resolution. Recon only runs without
// geometry hints.
type Tables struct {
	Base      *Table
	Main      *Table
	Recon     *Table
	Overrides *Overrides
}

// Result is the sidecar of one record with the problems met while
// resolving it.
type Result struct {
	Sidecar     *Sidecar
	Diagnostics *perrors.Diagnostics
}

// Engine resolves protocol records against rule tables. It holds no
// per-record state and can be shared.
type Engine struct {
	tables  *Tables
	catalog Catalog
	logger  *slog.Logger
}

// NewEngine creates an engine after checking every table against the
// default catalog
func NewEngine(tables *Tables, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	catalog := DefaultCatalog()
	for _, t := range []*Table{tables.Base, tables.Main, tables.Recon} {
		if t == nil {
			continue
		}
		if err := catalog.Validate(t.Name, t.Fields); err != nil {
			return nil, err
		}
	}
	if tables.Overrides != nil {
		if err := tables.Overrides.validate(catalog); err != nil {
			return nil, err
		}
	}
	return &Engine{tables: tables, catalog: catalog, logger: logger}, nil
}

// Tables returns the tables the engine runs
func (e *Engine) Tables() *Tables {
	return e.tables
}

// encodings pair each direction field with the fields hints derive from it
var encodings = []struct {
	direction string
	encoding  string
	recon     string
}{
	{"DirectionFE", "FrequencyEncodingDirection", "ReconMatrixFE"},
	{"DirectionPE", "PhaseEncodingDirection", "ReconMatrixPE"},
	{"DirectionSE", "SliceEncodingDirection", "ReconMatrixSE"},
}

// Resolve builds the sidecar of one record. Missing keys and rejected
// values only leave fields unset; a record without header is an error.
func (e *Engine) Resolve(record *layout.Record, hints *Hints) (*Result, error) {
	if record == nil || record.Header == nil {
		return nil, perrors.ErrMissingHeader
	}
	r := &run{
		engine: e,
		record: record,
		out:    NewSidecar(),
		diag:   perrors.NewDiagnostics(),
		logger: e.logger.With("protocol", record.Header.Path),
	}

	r.table(e.tables.Base)
	if hints != nil {
		r.hints(hints)
	}
	r.table(e.tables.Main)
	if hints == nil {
		r.table(e.tables.Recon)
	}
	r.overrides(e.tables.Overrides)

	return &Result{Sidecar: r.out, Diagnostics: r.diag}, nil
}

// run is the state of one resolution
type run struct {
	engine *Engine
	record *layout.Record
	out    *Sidecar
	diag   *perrors.Diagnostics
	logger *slog.Logger
}

func (r *run) table(t *Table) {
	if t == nil {
		return
	}
	r.fields(t.Name, t.Fields)
}

func (r *run) fields(table string, fields Fields) {
	for _, f := range fields {
		r.field(table, f)
	}
}

// field tries the rules of a target in order. A plain rule stops at its
// first success; an accumulating rule extends the list and goes on.
func (r *run) field(table string, f Field) {
	for i, rule := range f.Rules {
		v, err := r.apply(rule)
		if err == nil && rule.Accumulate {
			err = r.out.Extend(f.Target, v)
		}
		if err != nil {
			r.fail(table, f.Target, i, rule, err)
			continue
		}
		if rule.Accumulate {
			continue
		}
		r.out.Set(f.Target, v)
		return
	}
}

// apply resolves the arguments of a rule and evaluates its formula
func (r *run) apply(rule Rule) (any, error) {
	formula, ok := r.engine.catalog[rule.Formula]
	if !ok {
		return nil, fmt.Errorf("%q: %w", rule.Formula, perrors.ErrUnknownFormula)
	}
	args := make([]any, 0, len(rule.Args))
	for _, candidates := range rule.Args {
		v, err := r.argument(candidates)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	return evaluate(formula, args, rule.Params)
}

// argument returns the first candidate resolved in the sidecar or, when
// absent there, in the record
func (r *run) argument(candidates Candidates) (any, error) {
	errs := make([]error, 0, len(candidates))
	for _, c := range candidates {
		if v, ok := r.out.Get(c); ok {
			return v, nil
		}
		v, err := r.record.Lookup(c)
		if err == nil {
			return v, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("no candidate: %w", perrors.ErrNotFound)
	}
	return nil, errors.Join(errs...)
}

// evaluate runs a formula, turning panics and non-finite numbers into
// errors
func evaluate(f Formula, args []any, p Params) (v any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			v, err = nil, fmt.Errorf("formula panicked: %v", rec)
		}
	}()
	v, err = f.Eval(args, p)
	if err != nil {
		return nil, err
	}
	if x, ok := v.(float64); ok && (math.IsNaN(x) || math.IsInf(x, 0)) {
		return nil, fmt.Errorf("formula returned %v", x)
	}
	return v, nil
}

func (r *run) fail(table, target string, index int, rule Rule, err error) {
	note := perrors.Wrap(perrors.ErrorTypeRuleCandidate,
		fmt.Sprintf("rule %d (%s) of %s unresolved", index, rule.Formula, table), err).
		WithField(target)
	r.diag.Add(note)
	r.logger.Debug("rule unresolved",
		"table", table,
		"field", target,
		"rule", index,
		"formula", rule.Formula,
		"error", err)
}

// hints injects the encoding directions and reconstructed matrix sizes
// read from the image geometry
func (r *run) hints(h *Hints) {
	for _, enc := range encodings {
		v, ok := r.out.Get(enc.direction)
		if !ok {
			continue
		}
		direction, _ := v.(string)
		axis, ok := h.Axes[direction]
		if !ok || axis == "" {
			r.diag.Add(perrors.Newf(perrors.ErrorTypeRuleCandidate,
				"no voxel axis for direction %q", direction).WithField(enc.encoding))
			continue
		}
		r.out.Set(enc.encoding, strings.TrimSuffix(axis, "+"))
		if i := strings.IndexByte("ijk", axis[0]); i >= 0 {
			r.out.Set(enc.recon, h.Shape[i])
		}
	}
}

// overrides runs the tables of the patterns matching the sequence name
func (r *run) overrides(o *Overrides) {
	if o == nil {
		return
	}
	v, ok := r.out.Get("SequenceName")
	if !ok {
		return
	}
	name, ok := v.(string)
	if !ok || name == "" {
		return
	}
	for _, p := range o.Match(name) {
		r.logger.Debug("sequence override", "pattern", p.Pattern, "sequence", name)
		r.fields(p.Pattern, p.Fields)
	}
}
