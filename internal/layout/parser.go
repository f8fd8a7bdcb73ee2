package layout

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	perrors "github.com/a3tai/protocol2bids/internal/errors"
)

// State is the position of the parser within the printout structure.
type State int

const (
	StateBetweenProtocols State = iota
	StateInHeaderSection
	StateInKey
	StateInGroup
	StateAwaitingValue
)

// String returns a string representation of the State
func (s State) String() string {
	switch s {
	case StateBetweenProtocols:
		return "BETWEEN_PROTOCOLS"
	case StateInHeaderSection:
		return "IN_HEADER_SECTION"
	case StateInKey:
		return "IN_KEY"
	case StateInGroup:
		return "IN_GROUP"
	case StateAwaitingValue:
		return "AWAITING_VALUE"
	default:
		return "UNKNOWN"
	}
}

type class int

const (
	classHeader class = iota
	classKey
	classGroupKey
	classValue
)

// classify maps an indent to a token class
func (v *Variant) classify(indent float64, text string) class {
	switch {
	case indent < v.Thresholds.Header:
		return classHeader
	case indent < v.Thresholds.Key:
		if v.LeadingSpaceGroups && strings.HasPrefix(text, " ") {
			return classGroupKey
		}
		return classKey
	case indent < v.Thresholds.Group:
		return classGroupKey
	default:
		return classValue
	}
}

// Options tune a single parse.
type Options struct {
	// SkipPages lists zero-based page indices removed before parsing.
	SkipPages []int
}

// Result is the outcome of parsing one document.
type Result struct {
	Variant          string
	ModelName        string
	SoftwareVersions string
	Alignment        Alignment
	Records          []*Record
	Diagnostics      *perrors.Diagnostics
}

// Parser reads protocol printouts of one variant.
type Parser struct {
	variant *Variant
	logger  *slog.Logger
}

// NewParser creates a parser for the given variant
func NewParser(v *Variant, logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{
		variant: v,
		logger:  logger.With("variant", v.Name),
	}
}

// Variant returns the configuration the parser runs with
func (p *Parser) Variant() *Variant {
	return p.variant
}

// Parse reconstructs every protocol record of the document. It fails when
// the document has no pages, no scanner identification on its first page,
// or no protocol at all.
func (p *Parser) Parse(doc *Document, opts Options) (*Result, error) {
	v := p.variant
	doc = doc.WithoutPages(opts.SkipPages)
	if len(doc.Pages) == 0 {
		return nil, fmt.Errorf("%s: %w", v.Name, perrors.ErrEmptyDocument)
	}

	first := doc.Pages[0]
	model, software, ok := p.scanner(first)
	if !ok {
		return nil, fmt.Errorf("%s: %w", v.Name, perrors.ErrNoScannerIdentification)
	}

	m := &machine{
		v:        v,
		logger:   p.logger,
		diag:     perrors.NewDiagnostics(),
		align:    Calibrate(doc, v),
		model:    model,
		software: software,
		page:     -1,
	}
	if !m.align.Calibrated() {
		m.warn(perrors.New(perrors.ErrorTypeCalibration, "no column anchor found"))
	}
	p.logger.Debug("calibrated",
		"left", m.align.Left, "right", m.align.Right, "width", m.align.PageWidth)

	m.run(NewCursor(doc.Tokens()))

	if len(m.records) == 0 {
		return nil, fmt.Errorf("%s: %w", v.Name, perrors.ErrNoProtocols)
	}
	return &Result{
		Variant:          v.Name,
		ModelName:        model,
		SoftwareVersions: software,
		Alignment:        m.align,
		Records:          m.records,
		Diagnostics:      m.diag,
	}, nil
}

// scanner finds the scanner identification line of the first page
func (p *Parser) scanner(page Page) (model, software string, ok bool) {
	for _, t := range page.Tokens {
		if !strings.HasPrefix(t.Trimmed(), ScannerPrefix) {
			continue
		}
		if model, software, ok = p.variant.ParseScanner(t.Text); ok {
			return model, software, true
		}
	}
	return "", "", false
}

// machine holds the state of one parse
type machine struct {
	v        *Variant
	logger   *slog.Logger
	diag     *perrors.Diagnostics
	align    Alignment
	model    string
	software string

	records []*Record
	record  *Record
	// pending collects page records of the protocol being read when
	// titles trail the body.
	pending []*Record
	page    int

	state    State
	section  string
	group    string
	hasGroup bool
	key      string
	keyOpen  bool
	lastKey  string
	hasLast  bool
	// lastFields is the section or group holding lastKey.
	lastFields *Fields

	toc  bool
	stop bool
}

func (m *machine) run(c *Cursor) {
	for !c.Done() && !m.stop {
		t, _ := c.Peek()
		if m.v.TitleTrailsBody && t.Page != m.page {
			m.newPage(t.Page)
		}

		switch {
		case m.v.TOCBanner != "" && t.Trimmed() == m.v.TOCBanner:
			c.Next()
			if m.v.TOCEnds {
				m.stop = true
			} else {
				m.toc = true
			}
			continue
		case isMarker(t.Text):
			if m.v.isTOCMarker(t.Text) {
				c.Next()
				m.stop = m.v.TOCEnds
				continue
			}
			m.marker(c)
			continue
		case m.toc, m.v.isBoilerplate(t.Text):
			c.Next()
			continue
		}

		if m.record == nil {
			c.Next()
			m.logger.Debug("skipping token outside any protocol", "text", t.Text)
			continue
		}
		if m.v.RowCells {
			m.row(c.Row())
			continue
		}
		c.Next()
		m.token(t)
	}
	m.finish()
}

// newPage starts a page record for variants whose titles trail the body.
// Keys of the previous page are closed: the page may start another
// protocol, so nothing on it may extend them.
func (m *machine) newPage(page int) {
	if m.record != nil && !m.record.Empty() {
		m.pending = append(m.pending, m.record)
	}
	m.record = NewRecord()
	m.page = page
	m.hasGroup, m.keyOpen, m.hasLast = false, false, false
	m.lastFields = nil
}

// marker handles a protocol path. Inside a table of contents, a path
// without a title line is an entry and is skipped.
func (m *machine) marker(c *Cursor) {
	path, title, n, ok := m.v.scanTitle(c)
	if m.toc {
		if !ok {
			c.Next()
			return
		}
		m.toc = false
	}
	c.Skip(n)

	marker := path[0]
	header, matched := m.v.parseTitle(path, title)
	if !matched {
		m.warn(perrors.New(perrors.ErrorTypeTitleMismatch, "title line does not match grammar").
			WithContext(header.Path).
			WithPage(marker.Page + 1))
	}
	header.ModelName = m.model
	header.SoftwareVersions = m.software
	m.logger.Debug("protocol", "path", header.Path, "sequence", header.SequenceName)

	if m.v.TitleTrailsBody {
		m.flushPending()
		m.record.Header = header
		return
	}
	m.flush()
	m.record = NewRecord()
	m.record.Header = header
	m.section, m.hasGroup, m.keyOpen, m.hasLast = "", false, false, false
	m.state = StateInHeaderSection
}

// flush emits the current record
func (m *machine) flush() {
	if m.record != nil {
		m.records = append(m.records, m.record)
	}
}

// flushPending merges the collected page records into one protocol
func (m *machine) flushPending() {
	if len(m.pending) == 0 {
		return
	}
	merged := NewRecord()
	for _, r := range m.pending {
		merged.Merge(r)
	}
	m.pending = nil
	if merged.Header == nil {
		m.warn(perrors.New(perrors.ErrorTypeOrphanRecord, "content without protocol title dropped").
			WithContext(strings.Join(merged.Sections(), ", ")))
		return
	}
	m.records = append(m.records, merged)
}

func (m *machine) finish() {
	if m.v.TitleTrailsBody {
		if m.record != nil && !m.record.Empty() {
			m.pending = append(m.pending, m.record)
		}
		m.flushPending()
		return
	}
	m.flush()
}

// token classifies one body token by indent
func (m *machine) token(t Token) {
	indent := m.align.Indent(t.Box.X0)
	switch m.v.classify(indent, t.Text) {
	case classHeader:
		m.header(t.Trimmed())
	case classKey:
		m.keyToken(t.Trimmed())
	case classGroupKey:
		m.groupKey(t)
	default:
		m.value(t)
	}
}

// row reads one visual row as header, pending key or key with value
func (m *machine) row(row []Token) {
	first := row[0]
	if len(row) == 1 && m.align.Indent(first.Box.X0) < m.v.Thresholds.Header {
		m.header(first.Trimmed())
		return
	}
	fields := m.sectionFields()
	name := first.Trimmed()
	m.openKey(fields, name)
	if len(row) == 1 {
		return
	}
	cells := make([]string, 0, len(row)-1)
	for _, t := range row[1:] {
		cells = append(cells, t.Trimmed())
	}
	m.value(Token{
		Text: strings.Join(cells, " "),
		Box:  row[1].Box,
		Page: row[1].Page,
		Line: row[1].Line,
	})
}

func (m *machine) header(name string) {
	m.section = name
	m.record.SetDefaultSection(name)
	m.hasGroup, m.keyOpen, m.hasLast = false, false, false
	m.state = StateInHeaderSection
}

func (m *machine) sectionFields() *Fields {
	name := m.section
	if name == "" {
		name = DefaultSection
	}
	return m.record.SetDefaultSection(name)
}

func (m *machine) openKey(fields *Fields, name string) {
	fields.SetDefault(name)
	m.key, m.keyOpen = name, true
	m.lastKey, m.hasLast = name, true
	m.lastFields = fields
	m.state = StateAwaitingValue
}

// keyToken opens a key at section level, closing any open group. In
// variants with key continuation, a key that does not start with a
// capital letter extends a preceding key still waiting for its value.
func (m *machine) keyToken(text string) {
	if m.v.KeyContinuation && m.hasLast && !startsWithCapital(text) {
		if e, ok := m.lastFields.Get(m.lastKey); ok && !e.IsGroup() && !e.Value.Set {
			m.lastFields.Delete(m.lastKey)
			m.openKey(m.lastFields, m.lastKey+" "+text)
			return
		}
	}
	m.hasGroup = false
	m.openKey(m.sectionFields(), text)
}

// groupKey opens a key inside a group. The first member of a group
// promotes the previous key to the group name; a value already printed
// next to that key is folded into the name.
func (m *machine) groupKey(t Token) {
	text := t.Trimmed()
	if !m.hasGroup {
		if !m.hasLast {
			m.warn(perrors.New(perrors.ErrorTypeStrayGroupKey, "group member without group, read as key").
				WithContext(text).
				WithPage(t.Page + 1))
			m.openKey(m.sectionFields(), text)
			return
		}
		section := m.sectionFields()
		name := m.lastKey
		if e, ok := section.Get(name); ok && !e.IsGroup() && e.Value.Set {
			section.Delete(name)
			name = name + " " + e.Value.Text
		}
		section.SetDefaultGroup(name)
		m.group, m.hasGroup = name, true
	}
	m.openKey(m.sectionFields().SetDefaultGroup(m.group), text)
}

// value stores a value token. A value after a closed key continues the
// last value. A second value for the same key is dropped.
func (m *machine) value(t Token) {
	text := t.Trimmed()
	if !m.hasLast {
		m.warn(perrors.New(perrors.ErrorTypeOrphanValue, "value without key dropped").
			WithContext(text).
			WithPage(t.Page + 1))
		return
	}

	e, ok := m.lastFields.Get(m.lastKey)
	if !ok || e.IsGroup() {
		m.warn(perrors.New(perrors.ErrorTypeOrphanValue, "value without key dropped").
			WithContext(text).
			WithPage(t.Page + 1))
		return
	}

	switch {
	case !m.keyOpen && e.Value.Set:
		e.Value.Text += " " + text
	case m.keyOpen && e.Value.Set:
		m.warn(perrors.Newf(perrors.ErrorTypeDuplicateValue,
			"key %q already holds %q, ignoring %q", m.key, e.Value.Text, text).
			WithPage(t.Page + 1))
	default:
		e.Value = Text(text)
	}

	m.keyOpen = false
	if m.hasGroup {
		m.state = StateInGroup
	} else {
		m.state = StateInKey
	}
}

func (m *machine) warn(err *perrors.ConversionError) {
	err.WithVariant(m.v.Name)
	m.diag.Add(err)
	m.logger.Warn(err.Message,
		"type", err.Type.String(),
		"context", err.Context,
		"page", err.PageNumber,
		"state", m.state.String())
}

func startsWithCapital(text string) bool {
	r, size := utf8.DecodeRuneInString(text)
	return size > 0 && unicode.IsUpper(r)
}
