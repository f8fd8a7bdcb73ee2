// Package layout rebuilds hierarchical protocol records from the positioned
// text of a scanner protocol printout.
package layout

import (
	"slices"
	"strings"
)

// Box is a bounding box in page coordinates. Y grows downward.
type Box struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// Width returns the horizontal extent of the box
func (b Box) Width() float64 {
	return b.X1 - b.X0
}

// Token is one positioned text fragment.
type Token struct {
	Text string `json:"text"`
	Box  Box    `json:"box"`
	// Page is the zero-based index of the page in the source document.
	Page int `json:"page"`
	// Line identifies the visual row. Tokens sharing a baseline share it.
	Line int `json:"line"`
}

// Trimmed returns the token text without surrounding whitespace
func (t Token) Trimmed() string {
	return strings.TrimSpace(t.Text)
}

// Page holds the tokens of one page in reading order.
type Page struct {
	Index  int     `json:"index"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Tokens []Token `json:"tokens"`
}

// Document is the token stream of a whole printout.
type Document struct {
	Pages []Page `json:"pages"`
}

// WithoutPages returns a copy of the document without the pages whose
// zero-based index is listed in skip.
func (d *Document) WithoutPages(skip []int) *Document {
	if len(skip) == 0 {
		return d
	}
	out := &Document{}
	for _, page := range d.Pages {
		if slices.Contains(skip, page.Index) {
			continue
		}
		out.Pages = append(out.Pages, page)
	}
	return out
}

// Tokens flattens all pages into one stream
func (d *Document) Tokens() []Token {
	var n int
	for _, page := range d.Pages {
		n += len(page.Tokens)
	}
	tokens := make([]Token, 0, n)
	for _, page := range d.Pages {
		tokens = append(tokens, page.Tokens...)
	}
	return tokens
}

// Text joins the text of every page token, one visual row per line.
func (p *Page) Text() string {
	var sb strings.Builder
	for i, t := range p.Tokens {
		if i > 0 {
			if t.Line != p.Tokens[i-1].Line {
				sb.WriteByte('\n')
			} else {
				sb.WriteByte(' ')
			}
		}
		sb.WriteString(t.Trimmed())
	}
	return sb.String()
}
