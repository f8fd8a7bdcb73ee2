package errors

// Sentinel errors returned, usually wrapped, by the conversion pipeline.
// Match them with errors.Is.
var (
	ErrNoScannerIdentification = New(ErrorTypeDocument, "no scanner identification on first page")
	ErrEmptyDocument           = New(ErrorTypeDocument, "document has no pages")
	ErrNoProtocols             = New(ErrorTypeDocument, "no protocol found in document")
	ErrNotFound                = New(ErrorTypeRuleCandidate, "key not found")
	ErrValuePending            = New(ErrorTypeRuleCandidate, "key has no value")
	ErrNoParser                = New(ErrorTypeDocument, "no parser could read the document")
	ErrUnknownFormula          = New(ErrorTypeInvalidTable, "unknown formula")
	ErrMissingHeader           = New(ErrorTypeMissingHeader, "protocol record has no header")
)
