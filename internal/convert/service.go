package convert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	perrors "github.com/a3tai/protocol2bids/internal/errors"
	"github.com/a3tai/protocol2bids/internal/extract"
	"github.com/a3tai/protocol2bids/internal/geometry"
	"github.com/a3tai/protocol2bids/internal/layout"
	"github.com/a3tai/protocol2bids/internal/resolve"
)

// Manufacturer is reported for every Siemens printout
const Manufacturer = "Siemens"

// Request carries the options of one conversion.
type Request struct {
	// Hints are variant name prefixes tried before sniffing, e.g. "siemens.vb".
	Hints []string
	// NII lists one image per protocol, in document order. An empty entry
	// leaves that protocol without geometry hints.
	NII []string
	// SkipPages lists zero-based pages removed before parsing.
	SkipPages []int
	// Defaults fill fields the printout does not provide.
	Defaults *resolve.Sidecar
	// Assigns replace resolved fields.
	Assigns *resolve.Sidecar
}

// Protocol is the outcome for one protocol of a printout.
type Protocol struct {
	Path    string           `json:"path"`
	Sidecar *resolve.Sidecar `json:"sidecar"`
	Record  *layout.Record   `json:"-"`
}

// Conversion is the outcome of converting one printout.
type Conversion struct {
	Source           string               `json:"source,omitempty"`
	Variant          string               `json:"variant"`
	ModelName        string               `json:"model_name"`
	SoftwareVersions string               `json:"software_versions"`
	Protocols        []Protocol           `json:"protocols"`
	Diagnostics      *perrors.Diagnostics `json:"diagnostics"`
}

// Sidecars returns the sidecars in document order
func (c *Conversion) Sidecars() []*resolve.Sidecar {
	out := make([]*resolve.Sidecar, len(c.Protocols))
	for i, p := range c.Protocols {
		out[i] = p.Sidecar
	}
	return out
}

// Service converts protocol printouts into sidecars.
type Service struct {
	registry  *Registry
	engine    *resolve.Engine
	extractor *extract.Extractor
	logger    *slog.Logger
}

// NewService creates a conversion service
func NewService(registry *Registry, engine *resolve.Engine, extractor *extract.Extractor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if extractor == nil {
		extractor = extract.New(extract.DefaultOptions(), logger)
	}
	return &Service{
		registry:  registry,
		engine:    engine,
		extractor: extractor,
		logger:    logger,
	}
}

// Registry returns the variants the service selects from
func (s *Service) Registry() *Registry {
	return s.registry
}

// Engine returns the resolution engine
func (s *Service) Engine() *resolve.Engine {
	return s.engine
}

// Convert reads a PDF printout and resolves a sidecar per protocol
func (s *Service) Convert(ctx context.Context, path string, req Request) (*Conversion, error) {
	hints, err := s.geometry(req.NII)
	if err != nil {
		return nil, err
	}
	doc, err := s.extractor.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	conv, err := s.convert(ctx, doc, req, hints)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	conv.Source = path
	return conv, nil
}

// ConvertDocument resolves the sidecars of an extracted printout
func (s *Service) ConvertDocument(ctx context.Context, doc *layout.Document, req Request) (*Conversion, error) {
	hints, err := s.geometry(req.NII)
	if err != nil {
		return nil, err
	}
	return s.convert(ctx, doc, req, hints)
}

// Sniff reads a PDF printout and names the variants that recognise it
func (s *Service) Sniff(ctx context.Context, path string) ([]string, error) {
	doc, err := s.extractor.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	return s.registry.Sniff(doc), nil
}

// Records reads a PDF printout and reconstructs its protocol records
// without resolving them
func (s *Service) Records(ctx context.Context, path string, hints []string, skipPages []int) (*layout.Result, error) {
	doc, err := s.extractor.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	return s.Parse(ctx, doc, hints, skipPages)
}

// Parse selects a variant and reconstructs the protocol records of a
// document. Hinted variants are tried first, then those whose sniff
// accepts the document, then the rest; the first success wins.
func (s *Service) Parse(ctx context.Context, doc *layout.Document, hints []string, skipPages []int) (*layout.Result, error) {
	var failures []string
	for _, attempt := range s.registry.Plan(doc, hints) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v := attempt.Variant
		s.logger.Info("parse", "variant", v.Name, "stage", attempt.Stage)

		parser := layout.NewParser(v, s.logger)
		result, err := parser.Parse(extract.Columnize(doc, v.Columns), layout.Options{SkipPages: skipPages})
		if err == nil {
			return result, nil
		}
		s.logger.Warn("failed to parse with variant", "variant", v.Name, "stage", attempt.Stage, "error", err)
		failures = append(failures, err.Error())
	}
	if len(failures) == 0 {
		return nil, perrors.ErrNoParser
	}
	return nil, fmt.Errorf("%w: %s", perrors.ErrNoParser, strings.Join(failures, "; "))
}

func (s *Service) convert(ctx context.Context, doc *layout.Document, req Request, hints []*resolve.Hints) (*Conversion, error) {
	result, err := s.Parse(ctx, doc, req.Hints, req.SkipPages)
	if err != nil {
		return nil, err
	}

	conv := &Conversion{
		Variant:          result.Variant,
		ModelName:        result.ModelName,
		SoftwareVersions: result.SoftwareVersions,
		Diagnostics:      perrors.NewDiagnostics(),
	}
	conv.Diagnostics.Merge(result.Diagnostics)

	if len(hints) > len(result.Records) {
		s.logger.Warn("more images than protocols", "images", len(hints), "protocols", len(result.Records))
	}

	seen := make(map[string]int, len(result.Records))
	for i, record := range result.Records {
		var h *resolve.Hints
		if i < len(hints) {
			h = hints[i]
		}
		resolved, err := s.engine.Resolve(record, h)
		if errors.Is(err, perrors.ErrMissingHeader) {
			s.logger.Warn("protocol without header skipped", "index", i)
			conv.Diagnostics.Add(perrors.Wrap(perrors.ErrorTypeMissingHeader, "protocol skipped", err).
				WithVariant(result.Variant))
			continue
		}
		if err != nil {
			return nil, err
		}
		conv.Diagnostics.Merge(resolved.Diagnostics)

		sidecar := resolved.Sidecar
		base(sidecar, result)
		sidecar = merge(req.Defaults, sidecar, req.Assigns)

		p := Protocol{Path: record.Header.Path, Sidecar: sidecar, Record: record}
		if j, ok := seen[p.Path]; ok {
			conv.Diagnostics.Add(perrors.New(perrors.ErrorTypeDocument, "protocol printed twice, later copy kept").
				WithContext(p.Path).WithVariant(result.Variant))
			conv.Protocols[j] = p
			continue
		}
		seen[p.Path] = len(conv.Protocols)
		conv.Protocols = append(conv.Protocols, p)
	}

	s.logger.Info("converted", "variant", conv.Variant, "protocols", len(conv.Protocols),
		"diagnostics", conv.Diagnostics.Summary())
	return conv, nil
}

// base fills the scanner fields when the rule tables left them unset
func base(sidecar *resolve.Sidecar, result *layout.Result) {
	sidecar.SetDefault("Manufacturer", Manufacturer)
	if result.ModelName != "" {
		sidecar.SetDefault("ManufacturersModelName", result.ModelName)
	}
	if result.SoftwareVersions != "" {
		sidecar.SetDefault("SoftwareVersions", result.SoftwareVersions)
	}
}

// geometry reads the images given for each protocol. Empty paths give no
// hints.
func (s *Service) geometry(paths []string) ([]*resolve.Hints, error) {
	hints := make([]*resolve.Hints, len(paths))
	for i, path := range paths {
		if strings.TrimSpace(path) == "" {
			continue
		}
		vol, err := geometry.ReadNIfTI(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read image geometry: %w", err)
		}
		m, err := vol.Mapping()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		s.logger.Debug("geometry", "image", path, "axes", m.VoxToAnat, "shape", m.Shape)
		hints[i] = &resolve.Hints{Axes: m.AnatToVox, Shape: m.Shape}
	}
	return hints, nil
}
