package layout

import (
	"math"
)

// Alignment holds the left edge of each column of the first page.
// An anchor stays at +Inf when no token calibrated it.
type Alignment struct {
	Left      float64 `json:"left"`
	Right     float64 `json:"right"`
	PageWidth float64 `json:"page_width"`
	Columns   int     `json:"columns"`
}

// Calibrated reports whether at least one anchor was found
func (a Alignment) Calibrated() bool {
	return !math.IsInf(a.Left, 1) || !math.IsInf(a.Right, 1)
}

// Calibrate scans the document for the leftmost body token of each
// column. Scanner lines, separators, page furniture, protocol paths,
// title lines and tables of contents are ignored.
func Calibrate(doc *Document, v *Variant) Alignment {
	a := Alignment{
		Left:    math.Inf(1),
		Right:   math.Inf(1),
		Columns: v.Columns,
	}
	if len(doc.Pages) > 0 {
		a.PageWidth = doc.Pages[0].Width
	}

	toc := false
	c := NewCursor(doc.Tokens())
	for !c.Done() {
		t, _ := c.Peek()
		if v.TOCBanner != "" && t.Trimmed() == v.TOCBanner {
			if v.TOCEnds {
				break
			}
			toc = true
			c.Next()
			continue
		}
		if isMarker(t.Text) {
			if _, _, n, ok := v.scanTitle(c); ok {
				toc = false
				c.Skip(n)
			} else {
				c.Next()
			}
			continue
		}
		c.Next()
		if toc || v.isBoilerplate(t.Text) || v.isTitleStart(t.Text) {
			continue
		}
		if a.column(t.Box.X0) == columnLeft {
			a.Left = math.Min(a.Left, t.Box.X0)
		} else {
			a.Right = math.Min(a.Right, t.Box.X0)
		}
	}
	return a
}

type column int

const (
	columnLeft column = iota
	columnRight
)

func (a Alignment) column(x float64) column {
	if a.Columns < 2 || x < a.PageWidth/2 {
		return columnLeft
	}
	return columnRight
}

// Indent returns the distance between x and the anchor of its column.
// An uncalibrated column borrows the other anchor. Without any anchor
// every token sits at indent zero, i.e. at header level.
func (a Alignment) Indent(x float64) float64 {
	anchor, other := a.Left, a.Right
	if a.column(x) == columnRight {
		anchor, other = a.Right, a.Left
	}
	if math.IsInf(anchor, 1) {
		anchor = other
	}
	if math.IsInf(anchor, 1) {
		return 0
	}
	return math.Abs(x - anchor)
}
