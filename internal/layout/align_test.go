package layout

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAlignmentIndent(t *testing.T) {
	inf := math.Inf(1)
	tests := []struct {
		name  string
		align Alignment
		x     float64
		want  float64
	}{
		{"left column", Alignment{Left: 20, Right: 320, PageWidth: 600, Columns: 2}, 45, 25},
		{"right column", Alignment{Left: 20, Right: 320, PageWidth: 600, Columns: 2}, 330, 10},
		{"left of anchor", Alignment{Left: 20, Right: 320, PageWidth: 600, Columns: 2}, 15, 5},
		{"missing right borrows left", Alignment{Left: 20, Right: inf, PageWidth: 600, Columns: 2}, 330, 310},
		{"single column ignores page half", Alignment{Left: 20, Right: inf, PageWidth: 600, Columns: 1}, 330, 310},
		{"uncalibrated", Alignment{Left: inf, Right: inf, PageWidth: 600, Columns: 2}, 150, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.align.Indent(tt.x))
		})
	}
}

func TestCalibrateIgnoresFurniture(t *testing.T) {
	b := newBuilder().
		row(at(5, "SIEMENS MAGNETOM Prisma")).
		row(at(5, "Table of contents")).
		row(at(8, `\\USER\a`), at(400, "2")).
		page().
		row(at(5, "SIEMENS MAGNETOM Prisma")).
		row(at(10, `\\USER\a`)).
		row(at(10, "TA: 01:00 PM: FIX Voxel size: 1.0 × 1.0 × 1.0 mmPAT: Off Rel. SNR: 1.00 : tfl")).
		row(at(22, "Routine"), at(321, "Contrast")).
		row(at(280, "- 2 -")).
		row(at(2, "----------"))

	a := Calibrate(b.doc(), VE())
	assert.True(t, a.Calibrated())
	assert.Equal(t, 22.0, a.Left)
	assert.Equal(t, 321.0, a.Right)
	assert.Equal(t, testPageWidth, a.PageWidth)
}

func TestCalibrateStopsAtTableOfContents(t *testing.T) {
	doc := newBuilder().
		row(at(20, "Routine")).
		row(at(20, "Table of contents")).
		row(at(5, "Contrast")).
		doc()

	a := Calibrate(doc, VD())
	assert.Equal(t, 20.0, a.Left)
}
