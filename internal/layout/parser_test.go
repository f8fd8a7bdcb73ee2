package layout

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/a3tai/protocol2bids/internal/errors"
)

func parse(t *testing.T, v *Variant, doc *Document, opts Options) *Result {
	t.Helper()
	result, err := NewParser(v, nil).Parse(doc, opts)
	require.NoError(t, err)
	return result
}

func lookup(t *testing.T, r *Record, path string) any {
	t.Helper()
	v, err := r.Lookup(path)
	require.NoError(t, err, path)
	return v
}

func TestParseTitleAndSingleKey(t *testing.T) {
	b := newBuilder().row(at(20, "SIEMENS MAGNETOM Avanto syngo MR B17"))
	vbTitle(b, `\\SIEMENS\proto1`, "tfl").
		row(at(20, "Routine")).
		row(at(30, "TE"), at(150, "3.50  ms"))

	result := parse(t, VB(), b.doc(), Options{})

	require.Len(t, result.Records, 1)
	r := result.Records[0]
	require.NotNil(t, r.Header)
	assert.Equal(t, `\\SIEMENS\proto1`, r.Header.Path)
	assert.Equal(t, "01:23", r.Header.TA)
	assert.Equal(t, []float64{1.0, 1.0, 1.0}, r.Header.VoxelSize)
	require.NotNil(t, r.Header.RelSNR)
	assert.Equal(t, 1.0, *r.Header.RelSNR)
	assert.Equal(t, "SIEMENS", r.Header.SequenceFolder)
	assert.Equal(t, "tfl", r.Header.SequenceName)
	assert.Equal(t, "Avanto", r.Header.ModelName)
	assert.Equal(t, "syngo MR B17", r.Header.SoftwareVersions)
	assert.Equal(t, "3.50  ms", lookup(t, r, "Routine//TE"))

	assert.Equal(t, "Avanto", result.ModelName)
	assert.Equal(t, 20.0, result.Alignment.Left)
}

func TestParseKeysKeepInsertionOrder(t *testing.T) {
	for _, n := range []int{1, 3, 12} {
		t.Run(fmt.Sprintf("%d keys", n), func(t *testing.T) {
			b := newBuilder().row(at(20, "SIEMENS MAGNETOM Prisma syngo MR B19"))
			vbTitle(b, `\\USER\order`, "gre").row(at(20, "Routine"))
			var keys []string
			for i := 0; i < n; i++ {
				key := fmt.Sprintf("Key %02d", i)
				keys = append(keys, key)
				b.row(at(30, key), at(150, fmt.Sprintf("%d", i)))
			}

			result := parse(t, VB(), b.doc(), Options{})
			require.Len(t, result.Records, 1)
			r := result.Records[0]

			assert.Equal(t, []string{"Routine"}, r.Sections())
			section, ok := r.Section("Routine")
			require.True(t, ok)
			assert.Equal(t, keys, section.Names())
			for i, e := range section.Entries() {
				assert.False(t, e.IsGroup())
				assert.Equal(t, Text(fmt.Sprintf("%d", i)), e.Value)
			}
		})
	}
}

func TestParseFirstWriteWins(t *testing.T) {
	b := newBuilder().row(at(20, "SIEMENS MAGNETOM Skyra syngo MR B17"))
	vbTitle(b, `\\USER\dup`, "gre").
		row(at(20, "Routine")).
		row(at(30, "TE"), at(150, "3.5 ms")).
		row(at(30, "TR")).
		row(at(30, "TE"), at(150, "9.9 ms"))

	result := parse(t, VB(), b.doc(), Options{})
	r := result.Records[0]

	assert.Equal(t, "3.5 ms", lookup(t, r, "Routine//TE"))
	_, err := r.Lookup("Routine//TR")
	assert.True(t, stderrors.Is(err, perrors.ErrValuePending))

	dups := result.Diagnostics.OfType(perrors.ErrorTypeDuplicateValue)
	require.Len(t, dups, 1)
	assert.Contains(t, dups[0].Message, "9.9 ms")
}

func TestParsePendingKeyTakesValue(t *testing.T) {
	b := newBuilder().row(at(20, "SIEMENS MAGNETOM Skyra syngo MR B17"))
	vbTitle(b, `\\USER\pending`, "gre").
		row(at(20, "Routine")).
		row(at(30, "TR")).
		row(at(150, "2000 ms"))

	r := parse(t, VB(), b.doc(), Options{}).Records[0]
	assert.Equal(t, "2000 ms", lookup(t, r, "Routine//TR"))
}

func TestParseValueContinuation(t *testing.T) {
	b := newBuilder().row(at(20, "SIEMENS MAGNETOM Skyra syngo MR B17"))
	vbTitle(b, `\\USER\wrap`, "gre").
		row(at(20, "Physio")).
		row(at(30, "Trigger"), at(150, "ECG with")).
		row(at(150, "long wrap"))

	r := parse(t, VB(), b.doc(), Options{}).Records[0]
	assert.Equal(t, "ECG with long wrap", lookup(t, r, "Physio//Trigger"))
}

func TestParseGroupPromotion(t *testing.T) {
	tests := []struct {
		name      string
		variant   *Variant
		scanner   string
		groupCell cell
		// value printed next to the promoted key, empty for none
		keyValue  string
		wantGroup string
	}{
		{
			name:      "leading space member after pending key",
			variant:   VB(),
			scanner:   "SIEMENS MAGNETOM Avanto syngo MR B17",
			groupCell: at(30, " Slices"),
			wantGroup: "Slice group 1",
		},
		{
			name:      "indented member after pending key",
			variant:   VE(),
			scanner:   "SIEMENS MAGNETOM Prisma",
			groupCell: at(40, "Slices"),
			wantGroup: "Slice group 1",
		},
		{
			name:      "indented member after key with value",
			variant:   VE(),
			scanner:   "SIEMENS MAGNETOM Prisma",
			groupCell: at(40, "Slices"),
			keyValue:  "On",
			wantGroup: "Slice group 1 On",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBuilder().row(at(20, tt.scanner))
			if tt.variant.Name == "siemens.ve" {
				b.row(at(20, `\\USER\group`)).
					row(at(20, "TA: 01:23 PM: FIX Voxel size: 1.0 × 1.0 × 1.0 mmPAT: 2 Rel. SNR: 1.00 : tfl"))
			} else {
				vbTitle(b, `\\USER\group`, "tfl")
			}
			b.row(at(20, "Routine")).row(at(25, "Other"), at(150, "x"))
			if tt.keyValue != "" {
				b.row(at(25, "Slice group 1"), at(150, tt.keyValue))
			} else {
				b.row(at(25, "Slice group 1"))
			}
			b.row(tt.groupCell, at(150, "176")).
				row(at(25, "TE"), at(150, "3.5 ms"))

			result := parse(t, tt.variant, b.doc(), Options{})
			r := result.Records[0]

			assert.Equal(t, "176", lookup(t, r, "Routine//"+tt.wantGroup+"//Slices"))
			assert.Equal(t, "3.5 ms", lookup(t, r, "Routine//TE"), "next key closes the group")

			section, _ := r.Section("Routine")
			assert.Equal(t, []string{"Other", tt.wantGroup, "TE"}, section.Names())
		})
	}
}

func TestParseStrayGroupKey(t *testing.T) {
	b := newBuilder().
		row(at(20, "SIEMENS MAGNETOM Prisma")).
		row(at(20, `\\USER\stray`)).
		row(at(20, "TA: 01:23 PM: FIX Voxel size: 1.0 × 1.0 × 1.0 mmPAT: 2 Rel. SNR: 1.00 : tfl")).
		row(at(20, "Routine")).
		row(at(40, "Slices"), at(150, "176"))

	result := parse(t, VE(), b.doc(), Options{})
	assert.Equal(t, "176", lookup(t, result.Records[0], "Routine//Slices"))
	assert.Len(t, result.Diagnostics.OfType(perrors.ErrorTypeStrayGroupKey), 1)
}

func TestParseKeyContinuation(t *testing.T) {
	b := newBuilder().
		row(at(20, "SIEMENS MAGNETOM Prisma")).
		row(at(20, `\\USER\cont`)).
		row(at(20, "TA: 01:23 PM: FIX Voxel size: 1.0 × 1.0 × 1.0 mmPAT: 2 Rel. SNR: 1.00 : tfl")).
		row(at(20, "Routine")).
		row(at(25, "Phase enc.")).
		row(at(25, "dir."), at(150, "A >> P"))

	r := parse(t, VE(), b.doc(), Options{}).Records[0]
	assert.Equal(t, "A >> P", lookup(t, r, "Routine//Phase enc. dir."))
	_, err := r.Lookup("Routine//Phase enc.")
	assert.Error(t, err)
}

func TestParseOrphanValue(t *testing.T) {
	b := newBuilder().row(at(20, "SIEMENS MAGNETOM Avanto syngo MR B17"))
	vbTitle(b, `\\USER\orphan`, "gre").
		row(at(20, "Routine")).
		row(at(150, "lost")).
		row(at(30, "TE"), at(150, "3.5 ms"))

	result := parse(t, VB(), b.doc(), Options{})
	assert.Equal(t, "3.5 ms", lookup(t, result.Records[0], "Routine//TE"))
	orphans := result.Diagnostics.OfType(perrors.ErrorTypeOrphanValue)
	require.Len(t, orphans, 1)
	assert.Equal(t, "lost", orphans[0].Context)
}

func TestParseTitleMismatchKeepsPath(t *testing.T) {
	b := newBuilder().
		row(at(20, "SIEMENS MAGNETOM Avanto syngo MR B17")).
		row(at(20, `\\USER\broken`)).
		row(at(20, "TA: unreadable")).
		row(at(20, "Routine")).
		row(at(30, "TE"), at(150, "3.5 ms"))

	result := parse(t, VB(), b.doc(), Options{})
	h := result.Records[0].Header
	assert.Equal(t, `\\USER\broken`, h.Path)
	assert.Empty(t, h.TA)
	assert.Nil(t, h.VoxelSize)
	assert.Equal(t, "Avanto", h.ModelName)
	assert.Len(t, result.Diagnostics.OfType(perrors.ErrorTypeTitleMismatch), 1)
}

func TestParseMultipleProtocols(t *testing.T) {
	b := newBuilder().row(at(20, "SIEMENS MAGNETOM Avanto syngo MR B17"))
	vbTitle(b, `\\USER\one`, "tfl").
		row(at(20, "Routine")).
		row(at(30, "TE"), at(150, "3 ms")).
		row(at(20, "-----------------"))
	vbTitle(b, `\\USER\two`, "ep2d_bold").
		row(at(20, "Routine")).
		row(at(30, "TE"), at(150, "30 ms"))

	result := parse(t, VB(), b.doc(), Options{})
	require.Len(t, result.Records, 2)
	assert.Equal(t, `\\USER\one`, result.Records[0].Header.Path)
	assert.Equal(t, "3 ms", lookup(t, result.Records[0], "Routine//TE"))
	assert.Equal(t, "ep2d_bold", result.Records[1].Header.SequenceName)
	assert.Equal(t, "30 ms", lookup(t, result.Records[1], "Routine//TE"))
}

func TestParseTwoColumns(t *testing.T) {
	b := newBuilder().row(at(20, "SIEMENS MAGNETOM Avanto syngo MR B17"))
	vbTitle(b, `\\USER\columns`, "tfl").
		row(at(20, "Routine")).
		row(at(30, "TE"), at(150, "3 ms")).
		row(at(320, "Contrast")).
		row(at(330, "TI"), at(450, "900 ms"))

	result := parse(t, VB(), b.doc(), Options{})
	assert.Equal(t, 320.0, result.Alignment.Right)
	r := result.Records[0]
	assert.Equal(t, "3 ms", lookup(t, r, "Routine//TE"))
	assert.Equal(t, "900 ms", lookup(t, r, "Contrast//TI"))
}

func TestParseSkipPages(t *testing.T) {
	b := newBuilder().
		row(at(100, "Service report")).
		page().
		row(at(20, "SIEMENS MAGNETOM Avanto syngo MR B17"))
	vbTitle(b, `\\USER\skip`, "tfl").
		row(at(20, "Routine")).
		row(at(30, "TE"), at(150, "3 ms"))

	_, err := NewParser(VB(), nil).Parse(b.doc(), Options{})
	assert.True(t, stderrors.Is(err, perrors.ErrNoScannerIdentification))

	result := parse(t, VB(), b.doc(), Options{SkipPages: []int{0}})
	assert.Equal(t, "3 ms", lookup(t, result.Records[0], "Routine//TE"))
}

func TestParseDocumentFailures(t *testing.T) {
	tests := []struct {
		name string
		doc  *Document
		want error
	}{
		{"no pages", &Document{}, perrors.ErrEmptyDocument},
		{"no scanner line", newBuilder().row(at(20, "Routine")).doc(), perrors.ErrNoScannerIdentification},
		{
			"no protocol",
			newBuilder().row(at(20, "SIEMENS MAGNETOM Avanto syngo MR B17")).row(at(20, "Routine")).doc(),
			perrors.ErrNoProtocols,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParser(VB(), nil).Parse(tt.doc, Options{})
			require.Error(t, err)
			assert.True(t, stderrors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestParseWithoutBodyIsUncalibrated(t *testing.T) {
	b := newBuilder().row(at(20, "SIEMENS MAGNETOM Avanto syngo MR B17"))
	vbTitle(b, `\\USER\bare`, "tfl").row(at(280, "1/-"))

	result := parse(t, VB(), b.doc(), Options{})
	assert.False(t, result.Alignment.Calibrated())
	assert.Len(t, result.Diagnostics.OfType(perrors.ErrorTypeCalibration), 1)
	require.Len(t, result.Records, 1)
	assert.Empty(t, result.Records[0].Sections())
}

func TestParseTableOfContentsSkipped(t *testing.T) {
	b := newBuilder().
		row(at(20, "SIEMENS MAGNETOM Prisma")).
		row(at(20, "Table of contents")).
		row(at(20, `\\USER\head\t1`), at(400, "2")).
		row(at(20, `\\USER\head\bold`), at(400, "3")).
		row(at(280, "- 1 -")).
		page().
		row(at(20, "SIEMENS MAGNETOM Prisma")).
		row(at(20, `\\USER\head\t1`)).
		row(at(20, "TA: 05:12 PM: FIX Voxel size: 1.0 × 1.0 × 1.0 mmPAT: 2 Rel. SNR: 1.00 : tfl")).
		row(at(20, "Routine")).
		row(at(25, "TE"), at(150, "2.98 ms")).
		row(at(280, "- 2 -"))

	result := parse(t, VE(), b.doc(), Options{})
	require.Len(t, result.Records, 1)
	r := result.Records[0]
	assert.Equal(t, `\\USER\head\t1`, r.Header.Path)
	assert.Equal(t, "FIX", r.Header.PM)
	assert.Equal(t, "2", r.Header.PAT)
	assert.Equal(t, "syngo MR E11", r.Header.SoftwareVersions)
	assert.Equal(t, "2.98 ms", lookup(t, r, "Routine//TE"))
}

func TestParseRowCells(t *testing.T) {
	b := newBuilder().
		row(at(20, "SIEMENS MAGNETOM Skyra syngo MR D13")).
		row(at(500, "Page 1")).
		row(at(20, `\\USER\test\t1`)).
		row(at(20, "TA: 5:12 PAT: 2 Voxel size: 1.0 × 1.0 × 1.0 mm Rel. SNR: 1.00 : tfl")).
		row(at(20, "Routine")).
		row(at(20, "TE"), at(200, "2.98"), at(240, "ms")).
		row(at(40, "Coil elements")).
		row(at(20, "TE"), at(200, "9")).
		row(at(20, "01/02/2015")).
		row(at(20, "Table of contents")).
		row(at(20, "Routine"))

	result := parse(t, VD(), b.doc(), Options{})
	require.Len(t, result.Records, 1)
	r := result.Records[0]
	assert.Equal(t, `\\USER\test\t1`, r.Header.Path)
	assert.Equal(t, "2", r.Header.PAT)
	assert.Equal(t, "tfl", r.Header.SequenceName)
	assert.Equal(t, "2.98 ms", lookup(t, r, "Routine//TE"))
	_, err := r.Lookup("Routine//Coil elements")
	assert.True(t, stderrors.Is(err, perrors.ErrValuePending))
	assert.Equal(t, []string{"Routine"}, r.Sections())
	assert.Len(t, result.Diagnostics.OfType(perrors.ErrorTypeDuplicateValue), 1)
}

func TestParseTitleAfterBody(t *testing.T) {
	title := func(b *builder, path string) *builder {
		return b.
			row(at(20, "SIEMENS MAGNETOM Sonata syngo MR 2004A")).
			row(at(20, path)).
			row(at(20, "Scan Time: 5:12 Voxel size: 1.0 × 1.0 × 1.0 mm Rel. SNR: 1.00 SIEMENS: tfl"))
	}

	b := newBuilder().
		row(at(20, "Routine")).
		row(at(30, "TR"), at(150, "2000 ms"))
	title(b, `\\USER\ADNI\MPRAGE`).
		page().
		row(at(20, "Contrast")).
		row(at(30, "TI"), at(150, "900 ms")).
		page().
		row(at(20, "Routine")).
		row(at(30, "TE"), at(150, "30 ms"))
	title(b, `\\USER\ADNI\BOLD`)

	result := parse(t, VA(), b.doc(), Options{})
	require.Len(t, result.Records, 2)

	first := result.Records[0]
	assert.Equal(t, `\\USER\ADNI\MPRAGE`, first.Header.Path)
	assert.Equal(t, "5:12", first.Header.TA)
	assert.Equal(t, "2000 ms", lookup(t, first, "Routine//TR"))
	assert.Equal(t, "900 ms", lookup(t, first, "Contrast//TI"))

	second := result.Records[1]
	assert.Equal(t, `\\USER\ADNI\BOLD`, second.Header.Path)
	assert.Equal(t, "30 ms", lookup(t, second, "Routine//TE"))
	_, err := second.Lookup("Contrast//TI")
	assert.Error(t, err)
}

func TestParseTitleAfterBodyClosesKeysAtPageBreak(t *testing.T) {
	b := newBuilder().
		row(at(20, "Routine")).
		row(at(30, "TR"), at(150, "2000 ms")).
		row(at(30, "TI")).
		row(at(20, "SIEMENS MAGNETOM Sonata syngo MR 2004A")).
		row(at(20, `\\USER\ADNI\MPRAGE`)).
		row(at(20, "Scan Time: 5:12 Voxel size: 1.0 × 1.0 × 1.0 mm Rel. SNR: 1.00 SIEMENS: tfl")).
		page().
		row(at(150, "wrapped")).
		row(at(20, "Routine")).
		row(at(30, "TE"), at(150, "30 ms")).
		row(at(20, "SIEMENS MAGNETOM Sonata syngo MR 2004A")).
		row(at(20, `\\USER\ADNI\BOLD`)).
		row(at(20, "Scan Time: 3:00 Voxel size: 3.0 × 3.0 × 3.0 mm Rel. SNR: 1.00 SIEMENS: epfid2d1_64"))

	result := parse(t, VA(), b.doc(), Options{})
	require.Len(t, result.Records, 2)

	first := result.Records[0]
	assert.Equal(t, "2000 ms", lookup(t, first, "Routine//TR"))
	_, err := first.Lookup("Routine//TI")
	assert.ErrorIs(t, err, perrors.ErrValuePending, "a pending key is not filled from the next page")

	second := result.Records[1]
	assert.Equal(t, `\\USER\ADNI\BOLD`, second.Header.Path)
	assert.Equal(t, "30 ms", lookup(t, second, "Routine//TE"))
	assert.Len(t, result.Diagnostics.OfType(perrors.ErrorTypeOrphanValue), 1)
}

func TestSniff(t *testing.T) {
	docs := map[string]*Document{
		"siemens.va": newBuilder().row(at(20, "SIEMENS MAGNETOM Sonata syngo MR 2004A")).doc(),
		"siemens.vb": newBuilder().row(at(20, "SIEMENS MAGNETOM Avanto syngo MR B17")).doc(),
		"siemens.vd": newBuilder().row(at(20, "SIEMENS MAGNETOM Skyra syngo MR D13")).doc(),
		"siemens.ve": newBuilder().row(at(20, "SIEMENS MAGNETOM Prisma")).doc(),
	}

	for _, v := range Variants() {
		for name, doc := range docs {
			t.Run(v.Name+"/"+name, func(t *testing.T) {
				assert.Equal(t, v.Name == name, v.Sniff(doc))
			})
		}
	}
	assert.False(t, VB().Sniff(&Document{}))
}
