package descriptions

// Tool descriptions shown to MCP clients

const (
	ProtocolConvertDescription = `Convert a Siemens MRI protocol printout (PDF) into BIDS sidecars, one per protocol.

**When to use:** A scanner exported its protocol tree as a PDF and you need the acquisition parameters (EchoTime, RepetitionTime, PhaseEncodingDirection...) in BIDS form.

**Examples:**
• Whole exam: "Convert exam.pdf to BIDS sidecars"
• Known software: "Convert exam.pdf with hint siemens.ve"
• With images: "Convert exam.pdf with nii sub-01_T1w.nii.gz,,sub-01_bold.nii.gz" (an empty entry skips a protocol)

**Notes:** Without images, PhaseEncodingDirection stays unset and the reconstruction matrix comes from the printout. Fields that could not be resolved are reported in diagnostics, never guessed.`

	ProtocolRecordsDescription = `Show the protocol records reconstructed from a printout, before any field resolution.

**When to use:** A converted field looks wrong and you need to see what the printout actually says, card by card.

**Examples:**
• "Show the records of exam.pdf"
• "Show the records of exam.pdf skipping page 0"

**Notes:** Each record holds its header (path, sequence, TA) and the labelled parameters grouped by card.`

	ProtocolSniffDescription = `List the printout variants (scanner software lines) that recognise a PDF.

**When to use:** Before converting a printout of unknown origin, or when conversion picks the wrong variant.

**Examples:**
• "Which software version printed exam.pdf?"`

	ProtocolVariantsDescription = `List the supported printout variants with a short description of each.`
)
