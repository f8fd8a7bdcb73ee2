package layout

import (
	"regexp"
	"strings"
)

// Thresholds split indentation into token classes. An indent below Header
// is a section header, below Key a key, below Group a key inside a group,
// anything else a value.
type Thresholds struct {
	Header float64
	Key    float64
	Group  float64
}

// Variant configures the parser for one software generation.
type Variant struct {
	Name        string
	Description string

	// SoftwarePrefix must prefix the software version of a matching printout.
	SoftwarePrefix string
	// FixedSoftwareVersion is reported when the scanner line has no version.
	FixedSoftwareVersion string

	Columns    int
	Thresholds Thresholds

	// LeadingSpaceGroups marks group members by a leading space instead of
	// a deeper indent.
	LeadingSpaceGroups bool
	// RowCells reads each visual row as header, key or "key value..." cells
	// instead of classifying tokens by indent alone.
	RowCells bool
	// KeyContinuation joins a lowercase key to a preceding pending key.
	KeyContinuation bool
	// TitleTrailsBody is set when page titles are emitted after the page
	// body, so the body read before a marker belongs to the new protocol.
	TitleTrailsBody bool

	// TitleStart lists the prefixes of the title line.
	TitleStart []string
	// TitlePattern parses the joined title line.
	TitlePattern *regexp.Regexp
	// PathJoin joins the path tokens preceding the title line.
	PathJoin string

	// Boilerplate matches repeated page furniture.
	Boilerplate []*regexp.Regexp

	// TOCBanner is the text opening a table of contents.
	TOCBanner string
	// TOCEnds stops parsing at the table of contents instead of skipping it.
	TOCEnds bool
	// TOCMarkers are marker texts that only appear inside a table of contents.
	TOCMarkers []string
}

const (
	// ProtocolMarker opens every protocol path.
	ProtocolMarker = `\\`
	// ScannerPrefix opens the scanner identification line.
	ScannerPrefix = "SIEMENS MAGNETOM"

	// titleLookahead bounds the number of path tokens before a title line.
	titleLookahead = 8
)

var (
	modelPattern     = regexp.MustCompile(`^SIEMENS MAGNETOM (?P<model>\w+)(?:\s+(?P<version>.+))?$`)
	separatorPattern = regexp.MustCompile(`^[- ]*-[- ]*$`)
)

// Variants returns the Siemens printout variants in registration order.
func Variants() []*Variant {
	return []*Variant{VA(), VB(), VD(), VE()}
}

// VA describes syngo MR 200x printouts. Page titles come after the body.
func VA() *Variant {
	return &Variant{
		Name:               "siemens.va",
		Description:        "Siemens syngo MR 200x (VA) protocol printout",
		SoftwarePrefix:     "syngo MR 20",
		Columns:            2,
		Thresholds:         Thresholds{Header: 1, Key: 50, Group: 50},
		LeadingSpaceGroups: true,
		TitleTrailsBody:    true,
		TitleStart:         []string{"Scan Time", "+ Scan Time"},
		TitlePattern: regexp.MustCompile(
			`^\+?\s*Scan Time:\s*(?P<TA>\S+)\s*(?:\[[^\]]+\])?\s+` +
				`Voxel size:\s*(?P<vx>[\d.]+)\s*×\s*(?P<vy>[\d.]+)\s*×\s*(?P<vz>[\d.]+)\s*(?:\[[^\]]+\]|mm)?\s*` +
				`Rel\. SNR:\s*(?P<SNR>\S+)\s+` +
				`(?P<SeqFolder>SIEMENS|USER):\s*(?P<SeqName>\S+)$`),
		PathJoin: " ",
		Boilerplate: []*regexp.Regexp{
			regexp.MustCompile(`/[-+]$`),
		},
	}
}

// VB describes syngo MR B printouts.
func VB() *Variant {
	return &Variant{
		Name:               "siemens.vb",
		Description:        "Siemens syngo MR B (VB) protocol printout",
		SoftwarePrefix:     "syngo MR B",
		Columns:            2,
		Thresholds:         Thresholds{Header: 1, Key: 50, Group: 50},
		LeadingSpaceGroups: true,
		TitleStart:         []string{"TA:"},
		TitlePattern: regexp.MustCompile(
			`^TA:\s*(?P<TA>\S+)\s+` +
				`(?:PAT:\s*(?P<PAT>\S+)\s+)?` +
				`Voxel size:\s*(?P<vx>[\d.]+)\s*×\s*(?P<vy>[\d.]+)\s*×\s*(?P<vz>[\d.]+)\s*mm\s*` +
				`Rel\. SNR:\s*(?P<SNR>\S+)\s+` +
				`(?P<SeqFolder>SIEMENS|USER):\s*(?P<SeqName>\S+)$`),
		PathJoin: " ",
		Boilerplate: []*regexp.Regexp{
			regexp.MustCompile(`/[-+]$`),
		},
	}
}

// VD describes syngo MR D printouts: one column, one parameter per row.
func VD() *Variant {
	return &Variant{
		Name:           "siemens.vd",
		Description:    "Siemens syngo MR D (VD) protocol printout",
		SoftwarePrefix: "syngo MR D",
		Columns:        1,
		Thresholds:     Thresholds{Header: 10, Key: 10, Group: 10},
		RowCells:       true,
		TitleStart:     []string{"TA:"},
		TitlePattern: regexp.MustCompile(
			`^TA:\s*(?P<TA>\S+)\s+` +
				`PAT:\s*(?P<PAT>\S+)\s+` +
				`Voxel size:\s*(?P<vx>[\d.]+)\s*×\s*(?P<vy>[\d.]+)\s*×\s*(?P<vz>[\d.]+)\s*mm\s*` +
				`Rel\. SNR:\s*(?P<SNR>\S+)\s+` +
				`(?:(?P<SeqFolder>SIEMENS|USER))?:\s*(?P<SeqName>\S+)$`),
		PathJoin: "",
		Boilerplate: []*regexp.Regexp{
			regexp.MustCompile(`^Page\b`),
			regexp.MustCompile(`^\d\d/\d\d/\d\d\d\d$`),
		},
		TOCBanner:  "Table of contents",
		TOCEnds:    true,
		TOCMarkers: []string{`\\USER`},
	}
}

// VE describes syngo MR E printouts: two columns, three indent levels and
// a leading table of contents.
func VE() *Variant {
	return &Variant{
		Name:                 "siemens.ve",
		Description:          "Siemens syngo MR E (VE) protocol printout",
		SoftwarePrefix:       "syngo MR E",
		FixedSoftwareVersion: "syngo MR E11",
		Columns:              2,
		Thresholds:           Thresholds{Header: 1, Key: 10, Group: 50},
		KeyContinuation:      true,
		TitleStart:           []string{"TA:"},
		TitlePattern: regexp.MustCompile(
			`^TA:\s*(?P<TA>\S+)\s+` +
				`PM:\s*(?P<PM>\S+)\s+` +
				`Voxel size:\s*(?P<vx>[\d.]+)\s*×\s*(?P<vy>[\d.]+)\s*×\s*(?P<vz>[\d.]+)\s*mm\s*` +
				`PAT:\s*(?P<PAT>\S+)\s+` +
				`Rel\. SNR:\s*(?P<SNR>\S+)\s+` +
				`(?:(?P<SeqFolder>SIEMENS|USER))?:\s*(?P<SeqName>\S+)$`),
		PathJoin: " ",
		Boilerplate: []*regexp.Regexp{
			regexp.MustCompile(`^- \d+ -$`),
		},
		TOCBanner: "Table of contents",
	}
}

// ParseScanner extracts the scanner model and software version from a
// scanner identification line.
func (v *Variant) ParseScanner(text string) (model, version string, ok bool) {
	m := modelPattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return "", "", false
	}
	model = m[modelPattern.SubexpIndex("model")]
	version = strings.TrimSpace(m[modelPattern.SubexpIndex("version")])
	if version == "" {
		version = v.FixedSoftwareVersion
	}
	return model, version, true
}

// Sniff reports whether the first page identifies a scanner running
// software of this variant. It never fails.
func (v *Variant) Sniff(doc *Document) bool {
	if len(doc.Pages) == 0 {
		return false
	}
	for _, t := range doc.Pages[0].Tokens {
		if !strings.HasPrefix(t.Trimmed(), ScannerPrefix) {
			continue
		}
		_, version, ok := v.ParseScanner(t.Text)
		if ok && strings.HasPrefix(version, v.SoftwarePrefix) {
			return true
		}
	}
	return false
}

// isBoilerplate reports page furniture that carries no protocol content
func (v *Variant) isBoilerplate(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || separatorPattern.MatchString(trimmed) {
		return true
	}
	if strings.HasPrefix(trimmed, ScannerPrefix) {
		return true
	}
	for _, re := range v.Boilerplate {
		if re.MatchString(trimmed) {
			return true
		}
	}
	return false
}

// isTitleStart reports whether text opens a title line
func (v *Variant) isTitleStart(text string) bool {
	trimmed := strings.TrimSpace(text)
	for _, prefix := range v.TitleStart {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}

// isMarker reports whether text opens a protocol path
func isMarker(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), ProtocolMarker)
}

// isTOCMarker reports a protocol path that only a table of contents prints
func (v *Variant) isTOCMarker(text string) bool {
	trimmed := strings.TrimSpace(text)
	for _, m := range v.TOCMarkers {
		if trimmed == m {
			return true
		}
	}
	return false
}
