package extract

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/a3tai/protocol2bids/internal/layout"
)

// Glyph is one drawn string in PDF user space: X, Y is the baseline
// origin with Y growing upward.
type Glyph struct {
	Text string
	X    float64
	Y    float64
	W    float64
	Size float64
}

// Span is a run of glyphs sharing a baseline, without wide gaps.
type Span struct {
	Text     string
	X0       float64
	X1       float64
	Baseline float64
	Size     float64
}

// Options tune how glyphs are grouped.
type Options struct {
	// SpanGap splits a run where the horizontal gap exceeds this many
	// font sizes.
	SpanGap float64
	// WordGap inserts a space where the gap exceeds this many font sizes.
	WordGap float64
	// LineTolerance is the largest baseline difference, in points, within
	// one visual row.
	LineTolerance float64
	// MaxFileSize rejects larger files; zero means no limit.
	MaxFileSize int64
}

// DefaultOptions returns the grouping used for Siemens printouts
func DefaultOptions() Options {
	return Options{
		SpanGap:       1.5,
		WordGap:       0.15,
		LineTolerance: 1,
	}
}

const defaultFontSize = 10.0

// Spans merges glyphs, in drawing order, into spans. Text is NFKC
// normalised, trailing space is trimmed and blank spans are dropped.
// A leading space is kept: some printouts mark group members with it.
func Spans(glyphs []Glyph, opts Options) []Span {
	var (
		out  []Span
		cur  *Span
		text strings.Builder
	)
	flush := func() {
		if cur == nil {
			return
		}
		cur.Text = strings.TrimRightFunc(norm.NFKC.String(text.String()), unicode.IsSpace)
		if strings.TrimSpace(cur.Text) != "" {
			out = append(out, *cur)
		}
		cur = nil
		text.Reset()
	}

	for _, g := range glyphs {
		size := g.Size
		if size <= 0 {
			size = defaultFontSize
		}
		if cur != nil {
			gap := g.X - cur.X1
			switch {
			case math.Abs(g.Y-cur.Baseline) > opts.LineTolerance,
				gap > opts.SpanGap*size,
				gap < -size:
				flush()
			case gap > opts.WordGap*size && !strings.HasSuffix(text.String(), " ") && !strings.HasPrefix(g.Text, " "):
				text.WriteByte(' ')
			}
		}
		if cur == nil {
			cur = &Span{X0: g.X, X1: g.X, Baseline: g.Y, Size: size}
		}
		text.WriteString(g.Text)
		cur.X1 = math.Max(cur.X1, g.X+g.W)
		cur.Size = math.Max(cur.Size, size)
	}
	flush()
	return out
}

// BuildPage lays spans out as page tokens in top-down rows, left to right
// within a row. Line numbers start at firstLine; the next free one is
// returned.
func BuildPage(index int, width, height float64, spans []Span, tolerance float64, firstLine int) (layout.Page, int) {
	sorted := make([]Span, len(spans))
	copy(sorted, spans)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Baseline > sorted[j].Baseline
	})

	page := layout.Page{Index: index, Width: width, Height: height}
	line := firstLine
	for start := 0; start < len(sorted); {
		end := start + 1
		for end < len(sorted) && sorted[start].Baseline-sorted[end].Baseline <= tolerance {
			end++
		}
		row := sorted[start:end]
		sort.SliceStable(row, func(i, j int) bool { return row[i].X0 < row[j].X0 })
		for _, s := range row {
			page.Tokens = append(page.Tokens, layout.Token{
				Text: s.Text,
				Box: layout.Box{
					X0: s.X0,
					Y0: height - s.Baseline - s.Size,
					X1: s.X1,
					Y1: height - s.Baseline,
				},
				Page: index,
				Line: line,
			})
		}
		line++
		start = end
	}
	return page, line
}

// Columnize reorders two-column pages so that the left column is read
// before the right one. Rows crossing the page middle are barriers:
// each stretch between barriers is read column by column. Every column
// part of a row gets its own line number.
func Columnize(doc *layout.Document, columns int) *layout.Document {
	if columns < 2 {
		return doc
	}
	out := &layout.Document{Pages: make([]layout.Page, len(doc.Pages))}
	line := 0
	for i, page := range doc.Pages {
		out.Pages[i], line = columnizePage(page, line)
	}
	return out
}

func columnizePage(page layout.Page, line int) (layout.Page, int) {
	mid := page.Width / 2
	out := page
	out.Tokens = make([]layout.Token, 0, len(page.Tokens))

	var left, right [][]layout.Token
	emit := func(rows [][]layout.Token) {
		for _, row := range rows {
			for _, t := range row {
				t.Line = line
				out.Tokens = append(out.Tokens, t)
			}
			line++
		}
	}
	flush := func() {
		emit(left)
		emit(right)
		left, right = nil, nil
	}

	for _, row := range rows(page.Tokens) {
		barrier := false
		var l, r []layout.Token
		for _, t := range row {
			switch {
			case t.Box.X0 < mid && t.Box.X1 > mid:
				barrier = true
			case t.Box.X0 < mid:
				l = append(l, t)
			default:
				r = append(r, t)
			}
		}
		if barrier {
			flush()
			emit([][]layout.Token{row})
			continue
		}
		if len(l) > 0 {
			left = append(left, l)
		}
		if len(r) > 0 {
			right = append(right, r)
		}
	}
	flush()
	return out, line
}

// rows splits page tokens by line number, keeping their order
func rows(tokens []layout.Token) [][]layout.Token {
	var out [][]layout.Token
	for i, t := range tokens {
		if i == 0 || t.Line != tokens[i-1].Line {
			out = append(out, nil)
		}
		out[len(out)-1] = append(out[len(out)-1], t)
	}
	return out
}
