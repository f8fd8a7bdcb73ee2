package layout

import (
	"fmt"
	"strconv"
	"strings"

	perrors "github.com/a3tai/protocol2bids/internal/errors"
)

// PathSeparator separates the levels of a record lookup path.
const PathSeparator = "//"

// HeaderSection is the name of the pseudo-section holding the title block.
const HeaderSection = "Header"

// DefaultSection receives keys that appear before any section header.
const DefaultSection = "Default"

// Value is a printed value. A value that is not Set is pending: its key
// was seen but no value token followed yet.
type Value struct {
	Text string
	Set  bool
}

// Text returns a set value
func Text(s string) Value {
	return Value{Text: s, Set: true}
}

// Entry is one item of a section: a key with its value, or a group of
// keys when Group is non-nil.
type Entry struct {
	Name  string
	Value Value
	Group *Fields
}

// IsGroup reports whether the entry holds nested keys
func (e *Entry) IsGroup() bool {
	return e.Group != nil
}

// Fields is an insertion-ordered set of entries.
type Fields struct {
	entries []*Entry
	index   map[string]int
}

// NewFields creates an empty entry set
func NewFields() *Fields {
	return &Fields{index: make(map[string]int)}
}

// Len returns the number of entries
func (f *Fields) Len() int {
	return len(f.entries)
}

// Entries returns the entries in insertion order
func (f *Fields) Entries() []*Entry {
	return f.entries
}

// Names returns the entry names in insertion order
func (f *Fields) Names() []string {
	names := make([]string, len(f.entries))
	for i, e := range f.entries {
		names[i] = e.Name
	}
	return names
}

// Get returns the named entry
func (f *Fields) Get(name string) (*Entry, bool) {
	i, ok := f.index[name]
	if !ok {
		return nil, false
	}
	return f.entries[i], true
}

// SetDefault returns the named entry, adding a pending key if missing.
func (f *Fields) SetDefault(name string) *Entry {
	if e, ok := f.Get(name); ok {
		return e
	}
	e := &Entry{Name: name}
	f.index[name] = len(f.entries)
	f.entries = append(f.entries, e)
	return e
}

// SetDefaultGroup returns the named group, turning a pending key of the
// same name into a group in place.
func (f *Fields) SetDefaultGroup(name string) *Fields {
	e := f.SetDefault(name)
	if e.Group == nil {
		e.Group = NewFields()
		e.Value = Value{}
	}
	return e.Group
}

// Delete removes the named entry, keeping the order of the others
func (f *Fields) Delete(name string) {
	i, ok := f.index[name]
	if !ok {
		return
	}
	f.entries = append(f.entries[:i], f.entries[i+1:]...)
	delete(f.index, name)
	for j := i; j < len(f.entries); j++ {
		f.index[f.entries[j].Name] = j
	}
}

// merge copies other into f. Values of other win; groups merge recursively.
func (f *Fields) merge(other *Fields) {
	for _, e := range other.entries {
		if e.IsGroup() {
			f.SetDefaultGroup(e.Name).merge(e.Group)
			continue
		}
		dst := f.SetDefault(e.Name)
		if dst.IsGroup() {
			continue
		}
		dst.Value = e.Value
	}
}

// tree renders the entries as nested maps. Pending values become nil.
func (f *Fields) tree() map[string]any {
	out := make(map[string]any, len(f.entries))
	for _, e := range f.entries {
		switch {
		case e.IsGroup():
			out[e.Name] = e.Group.tree()
		case e.Value.Set:
			out[e.Name] = e.Value.Text
		default:
			out[e.Name] = nil
		}
	}
	return out
}

// Header is the title block of a protocol.
type Header struct {
	Path             string    `json:"path"`
	TA               string    `json:"TA,omitempty"`
	PM               string    `json:"PM,omitempty"`
	PAT              string    `json:"PAT,omitempty"`
	VoxelSize        []float64 `json:"Voxel size,omitempty"`
	RelSNR           *float64  `json:"Rel. SNR,omitempty"`
	SequenceFolder   string    `json:"SequenceFolder,omitempty"`
	SequenceName     string    `json:"SequenceName,omitempty"`
	ModelName        string    `json:"ModelName,omitempty"`
	SoftwareVersions string    `json:"SoftwareVersions,omitempty"`
}

// Field returns a header field by its printed name. PAT is returned as an
// int unless it reads "Off".
func (h *Header) Field(name string) (any, bool) {
	var s string
	switch name {
	case "path":
		s = h.Path
	case "TA":
		s = h.TA
	case "PM":
		s = h.PM
	case "PAT":
		if h.PAT == "" {
			return nil, false
		}
		if n, err := strconv.Atoi(h.PAT); err == nil {
			return n, true
		}
		return h.PAT, true
	case "Voxel size":
		if len(h.VoxelSize) == 0 {
			return nil, false
		}
		return h.VoxelSize, true
	case "Rel. SNR":
		if h.RelSNR == nil {
			return nil, false
		}
		return *h.RelSNR, true
	case "SequenceFolder":
		s = h.SequenceFolder
	case "SequenceName":
		s = h.SequenceName
	case "ModelName":
		s = h.ModelName
	case "SoftwareVersions":
		s = h.SoftwareVersions
	}
	return s, s != ""
}

// Record is one protocol: a title block plus ordered sections.
type Record struct {
	Header   *Header
	order    []string
	sections map[string]*Fields
}

// NewRecord creates an empty record without a title block
func NewRecord() *Record {
	return &Record{sections: make(map[string]*Fields)}
}

// Section returns the named section
func (r *Record) Section(name string) (*Fields, bool) {
	s, ok := r.sections[name]
	return s, ok
}

// SetDefaultSection returns the named section, creating it if missing
func (r *Record) SetDefaultSection(name string) *Fields {
	if s, ok := r.sections[name]; ok {
		return s
	}
	s := NewFields()
	r.sections[name] = s
	r.order = append(r.order, name)
	return s
}

// Sections returns the section names in document order
func (r *Record) Sections() []string {
	return r.order
}

// Empty reports whether the record holds neither sections nor a title
func (r *Record) Empty() bool {
	return r.Header == nil && len(r.order) == 0
}

// Merge folds other into r. Used for printouts whose pages are parsed
// independently and whose title block is printed after the body.
func (r *Record) Merge(other *Record) {
	if other.Header != nil {
		r.Header = other.Header
	}
	for _, name := range other.order {
		r.SetDefaultSection(name).merge(other.sections[name])
	}
}

// Lookup resolves a "//"-delimited path such as "Routine//TE",
// "Routine//Slice group 1//Slices" or "Header//SequenceName".
// Missing keys, groups and pending values are errors.
func (r *Record) Lookup(path string) (any, error) {
	parts := strings.Split(path, PathSeparator)
	if parts[0] == HeaderSection {
		if r.Header == nil || len(parts) != 2 {
			return nil, fmt.Errorf("%s: %w", path, perrors.ErrNotFound)
		}
		v, ok := r.Header.Field(parts[1])
		if !ok {
			return nil, fmt.Errorf("%s: %w", path, perrors.ErrNotFound)
		}
		return v, nil
	}
	if len(parts) < 2 {
		return nil, fmt.Errorf("%s: %w", path, perrors.ErrNotFound)
	}
	fields, ok := r.sections[parts[0]]
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, perrors.ErrNotFound)
	}
	for i, part := range parts[1:] {
		e, ok := fields.Get(part)
		if !ok {
			return nil, fmt.Errorf("%s: %w", path, perrors.ErrNotFound)
		}
		last := i == len(parts)-2
		switch {
		case last && e.IsGroup():
			return nil, fmt.Errorf("%s is a group: %w", path, perrors.ErrNotFound)
		case last && !e.Value.Set:
			return nil, fmt.Errorf("%s: %w", path, perrors.ErrValuePending)
		case last:
			return e.Value.Text, nil
		case !e.IsGroup():
			return nil, fmt.Errorf("%s: %w", path, perrors.ErrNotFound)
		}
		fields = e.Group
	}
	return nil, fmt.Errorf("%s: %w", path, perrors.ErrNotFound)
}

// Tree renders the record as nested maps, with the title block under
// "Header".
func (r *Record) Tree() map[string]any {
	out := make(map[string]any, len(r.order)+1)
	for _, name := range r.order {
		out[name] = r.sections[name].tree()
	}
	if r.Header != nil {
		out[HeaderSection] = r.Header
	}
	return out
}
