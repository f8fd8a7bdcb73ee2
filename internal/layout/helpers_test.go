package layout

import (
	"unicode/utf8"
)

const (
	testPageWidth  = 600.0
	testPageHeight = 800.0
	testRowHeight  = 12.0
)

type cell struct {
	x    float64
	text string
}

func at(x float64, text string) cell {
	return cell{x: x, text: text}
}

// builder lays out synthetic printout pages row by row
type builder struct {
	pages []Page
	line  int
}

func newBuilder() *builder {
	return (&builder{}).page()
}

func (b *builder) page() *builder {
	b.pages = append(b.pages, Page{
		Index:  len(b.pages),
		Width:  testPageWidth,
		Height: testPageHeight,
	})
	return b
}

func (b *builder) row(cells ...cell) *builder {
	p := &b.pages[len(b.pages)-1]
	y := float64(b.line) * testRowHeight
	for _, c := range cells {
		p.Tokens = append(p.Tokens, Token{
			Text: c.text,
			Box: Box{
				X0: c.x,
				Y0: y,
				X1: c.x + 5*float64(utf8.RuneCountInString(c.text)),
				Y1: y + 10,
			},
			Page: p.Index,
			Line: b.line,
		})
	}
	b.line++
	return b
}

func (b *builder) doc() *Document {
	return &Document{Pages: b.pages}
}

// vbTitle is a title block in the layout of syngo MR B printouts
func vbTitle(b *builder, path, sequence string) *builder {
	return b.
		row(at(20, path)).
		row(at(20, "TA: 01:23 Voxel size: 1.0 × 1.0 × 1.0 mm Rel. SNR: 1.00 SIEMENS: "+sequence))
}
