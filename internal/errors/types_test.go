package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorTypeSeverity(t *testing.T) {
	tests := []struct {
		name        string
		errorType   ErrorType
		severity    ErrorSeverity
		recoverable bool
	}{
		{"calibration", ErrorTypeCalibration, SeverityWarning, true},
		{"title mismatch", ErrorTypeTitleMismatch, SeverityWarning, true},
		{"orphan value", ErrorTypeOrphanValue, SeverityWarning, true},
		{"rule candidate", ErrorTypeRuleCandidate, SeverityInfo, true},
		{"missing header", ErrorTypeMissingHeader, SeverityError, true},
		{"document", ErrorTypeDocument, SeverityFatal, false},
		{"invalid table", ErrorTypeInvalidTable, SeverityFatal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.severity, tt.errorType.GetSeverity())
			assert.Equal(t, tt.recoverable, tt.errorType.IsRecoverable())
			assert.NotEqual(t, "UNKNOWN", tt.errorType.String())
		})
	}
}

func TestConversionErrorMessage(t *testing.T) {
	err := New(ErrorTypeOrphanValue, "value without key").
		WithContext("3.50 ms").
		WithVariant("siemens.vb").
		WithPage(2)

	assert.Equal(t, "[ORPHAN_VALUE] value without key: 3.50 ms", err.Error())
	assert.Equal(t, "siemens.vb", err.Variant)
	assert.Equal(t, 2, err.PageNumber)
	assert.False(t, err.IsFatal())
}

func TestConversionErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("bad number")
	err := Wrap(ErrorTypeRuleCandidate, "formula failed", cause)

	assert.True(t, stderrors.Is(err, cause))
	assert.Contains(t, err.Error(), "bad number")

	wrapped := fmt.Errorf("parse: %w", ErrNoScannerIdentification)
	assert.True(t, stderrors.Is(wrapped, ErrNoScannerIdentification))
	assert.False(t, stderrors.Is(wrapped, ErrNoProtocols))
}

func TestDiagnostics(t *testing.T) {
	d := NewDiagnostics()
	assert.Equal(t, "No errors or warnings", d.Summary())

	d.Add(New(ErrorTypeOrphanValue, "a"))
	d.Add(New(ErrorTypeDuplicateValue, "b"))
	d.Add(New(ErrorTypeMissingHeader, "c"))
	d.Add(New(ErrorTypeRuleCandidate, "d"))

	errs, warns := d.Count()
	assert.Equal(t, 1, errs)
	assert.Equal(t, 2, warns)
	require.Len(t, d.Notes, 1)
	assert.Equal(t, "Found 1 error(s) and 2 warning(s)", d.Summary())
	assert.Len(t, d.OfType(ErrorTypeDuplicateValue), 1)

	other := NewDiagnostics()
	other.Add(New(ErrorTypeOrphanValue, "e"))
	d.Merge(other)
	d.Merge(nil)
	assert.Len(t, d.OfType(ErrorTypeOrphanValue), 2)
}
