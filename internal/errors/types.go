package errors

import (
	"fmt"
)

// ConversionError describes a problem met while turning a protocol printout
// into sidecars, with enough context to locate it in the source document.
type ConversionError struct {
	Type        ErrorType `json:"type"`
	Message     string    `json:"message"`
	Context     string    `json:"context,omitempty"`
	Variant     string    `json:"variant,omitempty"`
	Field       string    `json:"field,omitempty"`
	PageNumber  int       `json:"page_number,omitempty"`
	Recoverable bool      `json:"recoverable"`
	Err         error     `json:"-"`
}

// ErrorType represents the categories of conversion problems
type ErrorType int

const (
	ErrorTypeUnknown ErrorType = iota
	ErrorTypeCalibration
	ErrorTypeTitleMismatch
	ErrorTypeOrphanValue
	ErrorTypeDuplicateValue
	ErrorTypeStrayGroupKey
	ErrorTypeOrphanRecord
	ErrorTypeRuleCandidate
	ErrorTypeMissingHeader
	ErrorTypeDocument
	ErrorTypeInvalidTable
)

// ErrorSeverity indicates how critical an error is
type ErrorSeverity int

const (
	SeverityInfo ErrorSeverity = iota
	SeverityWarning
	SeverityError
	SeverityFatal
)

// Error implements the error interface
func (e *ConversionError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Type.String(), e.Message)
	if e.Context != "" {
		msg += ": " + e.Context
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause, if any
func (e *ConversionError) Unwrap() error {
	return e.Err
}

// String returns a string representation of the ErrorType
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeCalibration:
		return "CALIBRATION"
	case ErrorTypeTitleMismatch:
		return "TITLE_MISMATCH"
	case ErrorTypeOrphanValue:
		return "ORPHAN_VALUE"
	case ErrorTypeDuplicateValue:
		return "DUPLICATE_VALUE"
	case ErrorTypeStrayGroupKey:
		return "STRAY_GROUP_KEY"
	case ErrorTypeOrphanRecord:
		return "ORPHAN_RECORD"
	case ErrorTypeRuleCandidate:
		return "RULE_CANDIDATE"
	case ErrorTypeMissingHeader:
		return "MISSING_HEADER"
	case ErrorTypeDocument:
		return "DOCUMENT"
	case ErrorTypeInvalidTable:
		return "INVALID_TABLE"
	default:
		return "UNKNOWN"
	}
}

// GetSeverity returns the severity level for a given error type
func (et ErrorType) GetSeverity() ErrorSeverity {
	switch et {
	case ErrorTypeRuleCandidate:
		return SeverityInfo
	case ErrorTypeCalibration, ErrorTypeTitleMismatch, ErrorTypeOrphanValue:
		return SeverityWarning
	case ErrorTypeDuplicateValue, ErrorTypeStrayGroupKey, ErrorTypeOrphanRecord:
		return SeverityWarning
	case ErrorTypeMissingHeader:
		return SeverityError
	case ErrorTypeDocument, ErrorTypeInvalidTable:
		return SeverityFatal
	default:
		return SeverityError
	}
}

// IsRecoverable reports whether processing can continue after this kind of error
func (et ErrorType) IsRecoverable() bool {
	switch et {
	case ErrorTypeDocument, ErrorTypeInvalidTable, ErrorTypeUnknown:
		return false
	default:
		return true
	}
}

// New creates a ConversionError of the given type
func New(errorType ErrorType, message string) *ConversionError {
	return &ConversionError{
		Type:        errorType,
		Message:     message,
		Recoverable: errorType.IsRecoverable(),
	}
}

// Newf creates a ConversionError with a formatted message
func Newf(errorType ErrorType, format string, args ...any) *ConversionError {
	return New(errorType, fmt.Sprintf(format, args...))
}

// Wrap wraps err as a ConversionError of the given type
func Wrap(errorType ErrorType, message string, err error) *ConversionError {
	e := New(errorType, message)
	e.Err = err
	return e
}

// WithContext adds context to an existing ConversionError
func (e *ConversionError) WithContext(context string) *ConversionError {
	e.Context = context
	return e
}

// WithVariant records the layout variant that raised the error
func (e *ConversionError) WithVariant(variant string) *ConversionError {
	e.Variant = variant
	return e
}

// WithField records the sidecar field being resolved
func (e *ConversionError) WithField(field string) *ConversionError {
	e.Field = field
	return e
}

// WithPage adds page number information to an existing ConversionError
func (e *ConversionError) WithPage(pageNumber int) *ConversionError {
	e.PageNumber = pageNumber
	return e
}

// GetSeverity returns the severity of this specific error
func (e *ConversionError) GetSeverity() ErrorSeverity {
	return e.Type.GetSeverity()
}

// IsFatal returns true if this error aborts the document
func (e *ConversionError) IsFatal() bool {
	return e.GetSeverity() == SeverityFatal
}

// Diagnostics collects the non-fatal problems met during a conversion
type Diagnostics struct {
	Errors   []*ConversionError `json:"errors"`
	Warnings []*ConversionError `json:"warnings"`
	Notes    []*ConversionError `json:"notes,omitempty"`
}

// NewDiagnostics creates an empty collection
func NewDiagnostics() *Diagnostics {
	return &Diagnostics{
		Errors:   make([]*ConversionError, 0),
		Warnings: make([]*ConversionError, 0),
	}
}

// Add files an error under the collection matching its severity
func (d *Diagnostics) Add(err *ConversionError) {
	switch err.GetSeverity() {
	case SeverityInfo:
		d.Notes = append(d.Notes, err)
	case SeverityWarning:
		d.Warnings = append(d.Warnings, err)
	default:
		d.Errors = append(d.Errors, err)
	}
}

// Merge appends every entry of other
func (d *Diagnostics) Merge(other *Diagnostics) {
	if other == nil {
		return
	}
	d.Errors = append(d.Errors, other.Errors...)
	d.Warnings = append(d.Warnings, other.Warnings...)
	d.Notes = append(d.Notes, other.Notes...)
}

// OfType returns every collected entry of the given type
func (d *Diagnostics) OfType(errorType ErrorType) []*ConversionError {
	var out []*ConversionError
	for _, group := range [][]*ConversionError{d.Errors, d.Warnings, d.Notes} {
		for _, err := range group {
			if err.Type == errorType {
				out = append(out, err)
			}
		}
	}
	return out
}

// Count returns the number of errors and warnings
func (d *Diagnostics) Count() (errors, warnings int) {
	return len(d.Errors), len(d.Warnings)
}

// Summary returns a text summary of all errors and warnings
func (d *Diagnostics) Summary() string {
	errorCount, warningCount := d.Count()
	if errorCount == 0 && warningCount == 0 {
		return "No errors or warnings"
	}
	return fmt.Sprintf("Found %d error(s) and %d warning(s)", errorCount, warningCount)
}
