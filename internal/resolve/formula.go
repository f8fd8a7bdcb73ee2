package resolve

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"

	perrors "github.com/a3tai/protocol2bids/internal/errors"
)

// Formula identifiers of the default catalog.
const (
	FormulaIdentity              = "identity"
	FormulaConst                 = "const"
	FormulaNumber                = "number"
	FormulaInteger               = "integer"
	FormulaLookup                = "lookup"
	FormulaPrefixedLookup        = "prefixed_lookup"
	FormulaFirstLast             = "first_last"
	FormulaSliceDirection        = "slice_direction"
	FormulaFrequencyDirection    = "frequency_direction"
	FormulaFlagIfIn              = "flag_if_in"
	FormulaFlagUnlessIn          = "flag_unless_in"
	FormulaFlagIfPositive        = "flag_if_positive"
	FormulaTrueUnlessIn          = "true_unless_in"
	FormulaContainsAny           = "contains_any"
	FormulaChooseIfContains      = "choose_if_contains"
	FormulaRatio                 = "ratio"
	FormulaMatrixPE              = "matrix_pe"
	FormulaOversampledMatrixPE   = "oversampled_matrix_pe"
	FormulaSlabSlices            = "slab_slices"
	FormulaOversampledSlabSlices = "oversampled_slab_slices"
	FormulaDwellTime             = "dwell_time"
	FormulaScaledSum             = "scaled_sum"
	FormulaProduct               = "product"
	FormulaRoundProduct          = "round_product"
	FormulaFOVPE                 = "fov_pe"
	FormulaGreaterThan           = "greater_than"
	FormulaEchoPulseSequence     = "echo_pulse_sequence"
	FormulaOversamplingPhase     = "oversampling_phase"
	FormulaBandwidthPerPixelPE   = "bandwidth_per_pixel_pe"
	FormulaReciprocalProduct     = "reciprocal_product"
	FormulaTotalReadoutTime      = "total_readout_time"
	FormulaInterpolatedMatrix    = "interpolated_matrix"
	FormulaRejectIfIn            = "reject_if_in"
)

// anyArity marks formulas taking any number of arguments
const anyArity = -1

var errDivisionByZero = errors.New("division by zero")

// Formula is a pure function of resolved arguments and static parameters.
type Formula struct {
	// Arity is the number of arguments, or anyArity.
	Arity int
	Eval  func(args []any, p Params) (any, error)
}

// Catalog maps formula identifiers to formulas.
type Catalog map[string]Formula

// Names returns the sorted formula identifiers
func (c Catalog) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks that every rule names a known formula with the right
// number of arguments.
func (c Catalog) Validate(table string, fields Fields) error {
	for _, f := range fields {
		for i, r := range f.Rules {
			formula, ok := c[r.Formula]
			if !ok {
				return fmt.Errorf("%s: field %s rule %d: %q: %w", table, f.Target, i, r.Formula, perrors.ErrUnknownFormula)
			}
			if formula.Arity != anyArity && formula.Arity != len(r.Args) {
				return perrors.Newf(perrors.ErrorTypeInvalidTable,
					"%s: field %s rule %d: formula %s takes %d arguments, got %d",
					table, f.Target, i, r.Formula, formula.Arity, len(r.Args)).
					WithField(f.Target)
			}
		}
	}
	return nil
}

// DefaultCatalog returns the built-in formulas
func DefaultCatalog() Catalog {
	return Catalog{
		FormulaIdentity: {1, func(a []any, _ Params) (any, error) { return a[0], nil }},
		FormulaConst:    {anyArity, constant},
		FormulaNumber:   {1, scaledNumber},
		FormulaInteger: {1, func(a []any, p Params) (any, error) {
			n, err := toInt(a[0])
			if err != nil {
				return nil, err
			}
			return n * int(p.number("scale", 1)), nil
		}},
		FormulaLookup:             {anyArity, lookup},
		FormulaPrefixedLookup:     {2, prefixedLookup},
		FormulaFirstLast:          {1, func(a []any, _ Params) (any, error) { return firstLastOf(a[0]) }},
		FormulaSliceDirection:     {4, sliceDirection},
		FormulaFrequencyDirection: {5, frequencyDirection},
		FormulaFlagIfIn:           {1, flagIf(true)},
		FormulaFlagUnlessIn:       {1, flagIf(false)},
		FormulaFlagIfPositive:     {1, flagIfPositive},
		FormulaTrueUnlessIn: {1, func(a []any, p Params) (any, error) {
			s, err := toText(a[0])
			if err != nil {
				return nil, err
			}
			return !slices.Contains(p.texts("values"), s), nil
		}},
		FormulaContainsAny: {1, func(a []any, p Params) (any, error) {
			return containsAny(a[0], p.texts("values"))
		}},
		FormulaChooseIfContains:      {1, chooseIfContains},
		FormulaRatio:                 {1, ratio},
		FormulaMatrixPE:              {3, matrixPE},
		FormulaOversampledMatrixPE:   {4, matrixPE},
		FormulaSlabSlices:            {2, slabSlices},
		FormulaOversampledSlabSlices: {3, slabSlices},
		FormulaDwellTime:             {2, dwellTime},
		FormulaScaledSum:             {2, scaledSum},
		FormulaProduct:               {2, product},
		FormulaRoundProduct: {2, func(a []any, _ Params) (any, error) {
			x, y, err := twoNumbers(a)
			if err != nil {
				return nil, err
			}
			return int(math.RoundToEven(x * y)), nil
		}},
		FormulaFOVPE: {2, func(a []any, _ Params) (any, error) {
			read, phase, err := twoNumbers(a)
			if err != nil {
				return nil, err
			}
			return read * phase / 100, nil
		}},
		FormulaGreaterThan: {1, func(a []any, p Params) (any, error) {
			x, err := toNumber(a[0])
			if err != nil {
				return nil, err
			}
			return x > p.number("threshold", 0), nil
		}},
		FormulaEchoPulseSequence:   {1, echoPulseSequence},
		FormulaOversamplingPhase:   {2, oversamplingPhase},
		FormulaBandwidthPerPixelPE: {4, bandwidthPerPixelPE},
		FormulaReciprocalProduct: {2, func(a []any, _ Params) (any, error) {
			x, y, err := twoNumbers(a)
			if err != nil {
				return nil, err
			}
			return reciprocal(x * y)
		}},
		FormulaTotalReadoutTime: {2, func(a []any, _ Params) (any, error) {
			x, y, err := twoNumbers(a)
			if err != nil {
				return nil, err
			}
			return x * (y - 1), nil
		}},
		FormulaInterpolatedMatrix: {2, interpolatedMatrix},
		FormulaRejectIfIn: {1, func(a []any, p Params) (any, error) {
			s, err := toText(a[0])
			if err != nil {
				return nil, err
			}
			if slices.Contains(p.texts("values"), s) {
				return nil, fmt.Errorf("%q is rejected", s)
			}
			return s, nil
		}},
	}
}

func constant(_ []any, p Params) (any, error) {
	v, ok := p["value"]
	if !ok {
		return nil, errors.New("const formula without value")
	}
	return cloneValue(v), nil
}

// cloneValue copies lists and mappings so sidecars never share them.
func cloneValue(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// scaledNumber reads the leading number of a printed value, such as
// "3.50 ms", then multiplies by scale and divides by divisor.
func scaledNumber(a []any, p Params) (any, error) {
	x, err := toNumber(a[0])
	if err != nil {
		return nil, err
	}
	divisor := p.number("divisor", 1)
	if divisor == 0 {
		return nil, errDivisionByZero
	}
	return x * p.number("scale", 1) / divisor, nil
}

// lookup maps the first argument through a table. Further arguments
// only have to resolve.
func lookup(a []any, p Params) (any, error) {
	if len(a) == 0 {
		return nil, errors.New("lookup without argument")
	}
	key, err := toText(a[0])
	if err != nil {
		return nil, err
	}
	if v, ok := p.table("table")[key]; ok {
		return v, nil
	}
	if p.text("fallback") == "input" {
		return key, nil
	}
	return nil, fmt.Errorf("no entry for %q", key)
}

// prefixedLookup looks up the first argument and prepends prefix when the
// second argument is above a threshold or equal to a given text.
func prefixedLookup(a []any, p Params) (any, error) {
	base, err := lookup(a[:1], p)
	if err != nil {
		return nil, err
	}
	name, ok := base.(string)
	if !ok {
		return nil, fmt.Errorf("lookup entry %v is not text", base)
	}

	apply := false
	switch {
	case p["above"] != nil:
		x, err := toNumber(a[1])
		if err != nil {
			return nil, err
		}
		apply = x > p.number("above", 0)
	case p["equals"] != nil:
		s, err := toText(a[1])
		if err != nil {
			return nil, err
		}
		apply = s == p.text("equals")
	}
	if apply {
		return p.text("prefix") + name, nil
	}
	return name, nil
}

// firstLast reduces a printed direction such as "A >> P" to "AP"
func firstLast(s string) (string, error) {
	r := []rune(strings.TrimSpace(s))
	if len(r) == 0 {
		return "", errors.New("empty direction")
	}
	return string(r[0]) + string(r[len(r)-1]), nil
}

func firstLastOf(v any) (string, error) {
	s, err := toText(v)
	if err != nil {
		return "", err
	}
	return firstLast(s)
}

// planeDirection returns the direction normal to an orientation plane,
// read from the printed system directions of each plane.
func planeDirection(plane string, sagittal, coronal, transversal any) (string, error) {
	switch plane {
	case "Sagittal":
		return firstLastOf(sagittal)
	case "Coronal":
		return firstLastOf(coronal)
	case "Transversal":
		d, err := firstLastOf(transversal)
		if err != nil {
			return "", err
		}
		switch d {
		case "FH":
			return "IS", nil
		case "HF":
			return "SI", nil
		}
		return "", fmt.Errorf("unexpected transversal direction %q", d)
	}
	return "", fmt.Errorf("unknown orientation %q", plane)
}

func sliceDirection(a []any, _ Params) (any, error) {
	plane, err := toText(a[0])
	if err != nil {
		return nil, err
	}
	return planeDirection(plane, a[1], a[2], a[3])
}

// axisPlanes maps an anatomical axis to the plane normal to it
var axisPlanes = map[byte]string{'x': "Sagittal", 'y': "Coronal", 'z': "Transversal"}

func axisOf(direction string) (byte, error) {
	switch direction {
	case "LR", "RL":
		return 'x', nil
	case "AP", "PA":
		return 'y', nil
	case "IS", "SI":
		return 'z', nil
	}
	return 0, fmt.Errorf("unknown direction %q", direction)
}

// frequencyDirection guesses the readout direction as the axis left
// over by the phase and slice directions, with the polarity printed for
// the plane normal to it.
func frequencyDirection(a []any, _ Params) (any, error) {
	pe, err := firstLastOf(a[0])
	if err != nil {
		return nil, err
	}
	plane, err := toText(a[1])
	if err != nil {
		return nil, err
	}
	se, err := planeDirection(plane, a[2], a[3], a[4])
	if err != nil {
		return nil, err
	}

	peAxis, err := axisOf(pe)
	if err != nil {
		return nil, err
	}
	seAxis, err := axisOf(se)
	if err != nil {
		return nil, err
	}
	if peAxis == seAxis {
		return nil, fmt.Errorf("phase %s and slice %s share an axis", pe, se)
	}
	for _, axis := range []byte{'x', 'y', 'z'} {
		if axis != peAxis && axis != seAxis {
			return planeDirection(axisPlanes[axis], a[2], a[3], a[4])
		}
	}
	return nil, errors.New("no axis left")
}

func flagIf(inside bool) func([]any, Params) (any, error) {
	return func(a []any, p Params) (any, error) {
		s, err := toText(a[0])
		if err != nil {
			return nil, err
		}
		if slices.Contains(p.texts("values"), s) == inside {
			return []any{p.text("flag")}, nil
		}
		return []any{}, nil
	}
}

func flagIfPositive(a []any, p Params) (any, error) {
	x, err := toNumber(a[0])
	if err != nil {
		return nil, err
	}
	if x > 0 {
		return []any{p.text("flag")}, nil
	}
	return []any{}, nil
}

// containsAny matches needles as substrings of a text or as elements of
// a list.
func containsAny(v any, needles []string) (bool, error) {
	if s, ok := v.(string); ok {
		for _, n := range needles {
			if strings.Contains(s, n) {
				return true, nil
			}
		}
		return false, nil
	}
	items, err := toList(v)
	if err != nil {
		return false, err
	}
	for _, item := range items {
		if s, ok := item.(string); ok && slices.Contains(needles, s) {
			return true, nil
		}
	}
	return false, nil
}

func chooseIfContains(a []any, p Params) (any, error) {
	ok, err := containsAny(a[0], p.texts("values"))
	if err != nil {
		return nil, err
	}
	if ok {
		return p["then"], nil
	}
	return p["else"], nil
}

// ratio reads a printed fraction such as "6/8"
func ratio(a []any, _ Params) (any, error) {
	s, err := toText(a[0])
	if err != nil {
		return nil, err
	}
	num, den, found := strings.Cut(s, "/")
	if !found {
		return nil, fmt.Errorf("%q is not a fraction", s)
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(num), 64)
	if err != nil {
		return nil, err
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(den), 64)
	if err != nil {
		return nil, err
	}
	if d == 0 {
		return nil, errDivisionByZero
	}
	return n / d, nil
}

// matrixPE computes base x phase resolution x phase FOV, both percents,
// times the phase oversampling when given as a fourth argument.
func matrixPE(a []any, _ Params) (any, error) {
	base, err := toInt(a[0])
	if err != nil {
		return nil, err
	}
	m := float64(base)
	for _, v := range a[1:3] {
		pct, err := toNumber(v)
		if err != nil {
			return nil, err
		}
		m *= pct / 100
	}
	if len(a) == 4 {
		po, err := toNumber(a[3])
		if err != nil {
			return nil, err
		}
		m *= 1 + po/100
	}
	return int(math.RoundToEven(m)), nil
}

// slabSlices multiplies slabs by slices per slab, times the slice
// oversampling percent when given as a third argument.
func slabSlices(a []any, _ Params) (any, error) {
	slabs, err := toInt(a[0])
	if err != nil {
		return nil, err
	}
	perSlab, err := toInt(a[1])
	if err != nil {
		return nil, err
	}
	if len(a) == 2 {
		return slabs * perSlab, nil
	}
	os, err := toNumber(a[2])
	if err != nil {
		return nil, err
	}
	return int(math.RoundToEven(float64(slabs*perSlab) * (1 + os/100))), nil
}

func dwellTime(a []any, _ Params) (any, error) {
	bw, err := toNumber(a[0])
	if err != nil {
		return nil, err
	}
	base, err := toInt(a[1])
	if err != nil {
		return nil, err
	}
	return reciprocal(bw * float64(base))
}

func scaledSum(a []any, p Params) (any, error) {
	x, y, err := twoNumbers(a)
	if err != nil {
		return nil, err
	}
	return x * (1 + y*p.number("scale", 1)), nil
}

func product(a []any, p Params) (any, error) {
	x, y, err := twoNumbers(a)
	if err != nil {
		return nil, err
	}
	return x * y * p.number("scale", 1), nil
}

func echoPulseSequence(a []any, _ Params) (any, error) {
	gr, err := containsAny(a[0], []string{"GR"})
	if err != nil {
		return nil, err
	}
	se, _ := containsAny(a[0], []string{"SE"})
	switch {
	case gr && se:
		return "BOTH", nil
	case gr:
		return "GRADIENT", nil
	case se:
		return "SPIN", nil
	}
	return nil, errors.New("neither gradient nor spin echo")
}

func oversamplingPhase(a []any, _ Params) (any, error) {
	slice, phase, err := twoNumbers(a)
	if err != nil {
		return nil, err
	}
	switch {
	case phase != 0 && slice != 0:
		return "2D_3D", nil
	case phase != 0:
		return "2D", nil
	case slice != 0:
		return "3D", nil
	}
	return "NONE", nil
}

// bandwidthPerPixelPE is the bandwidth across the phase direction of the
// apparent matrix: 1 / (echo spacing x matrix / acceleration x oversampling).
func bandwidthPerPixelPE(a []any, _ Params) (any, error) {
	nums := make([]float64, len(a))
	for i, v := range a {
		x, err := toNumber(v)
		if err != nil {
			return nil, err
		}
		nums[i] = x
	}
	es, matrix, accel, oversampling := nums[0], nums[1], nums[2], nums[3]
	if accel == 0 {
		return nil, errDivisionByZero
	}
	return reciprocal(es * (matrix / accel) * (1 + oversampling/100))
}

func interpolatedMatrix(a []any, _ Params) (any, error) {
	m, err := toInt(a[0])
	if err != nil {
		return nil, err
	}
	s, err := toText(a[1])
	if err != nil {
		return nil, err
	}
	if s == "On" {
		return 2 * m, nil
	}
	return m, nil
}

func reciprocal(x float64) (float64, error) {
	if x == 0 {
		return 0, errDivisionByZero
	}
	return 1 / x, nil
}

func twoNumbers(a []any) (float64, float64, error) {
	x, err := toNumber(a[0])
	if err != nil {
		return 0, 0, err
	}
	y, err := toNumber(a[1])
	if err != nil {
		return 0, 0, err
	}
	return x, y, nil
}

func toText(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case int:
		return strconv.Itoa(x), nil
	}
	return "", fmt.Errorf("expected text, got %T", v)
}

// toNumber reads numbers and the leading number of printed values
func toNumber(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	case string:
		fields := strings.Fields(x)
		if len(fields) == 0 {
			return 0, errors.New("empty number")
		}
		return strconv.ParseFloat(fields[0], 64)
	}
	return 0, fmt.Errorf("expected number, got %T", v)
}

func toInt(v any) (int, error) {
	switch x := v.(type) {
	case int:
		return x, nil
	case float64:
		return int(x), nil
	case string:
		return strconv.Atoi(strings.TrimSpace(x))
	}
	return 0, fmt.Errorf("expected integer, got %T", v)
}

func toList(v any) ([]any, error) {
	switch x := v.(type) {
	case []any:
		return x, nil
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected list, got %T", v)
}

func (p Params) number(name string, fallback float64) float64 {
	switch x := p[name].(type) {
	case float64:
		return x
	case int:
		return float64(x)
	}
	return fallback
}

func (p Params) text(name string) string {
	s, _ := p[name].(string)
	return s
}

func (p Params) texts(name string) []string {
	switch x := p[name].(type) {
	case []string:
		return x
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{x}
	}
	return nil
}

func (p Params) table(name string) map[string]any {
	t, _ := p[name].(map[string]any)
	return t
}
