// Package extract turns PDF protocol printouts into positioned token
// streams. Text runs come from ledongthuc/pdf; pdfcpu validates the file
// and supplies page sizes when a page has no usable MediaBox.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	perrors "github.com/a3tai/protocol2bids/internal/errors"
	"github.com/a3tai/protocol2bids/internal/layout"
)

// US Letter, used when neither library reports a page size
const (
	defaultPageWidth  = 612.0
	defaultPageHeight = 792.0
)

// PageSize is the width and height of a page in points.
type PageSize struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Info describes a validated PDF file.
type Info struct {
	Path      string     `json:"path"`
	Size      int64      `json:"size"`
	PageCount int        `json:"page_count"`
	Pages     []PageSize `json:"pages"`
}

// Extractor reads PDF files into layout documents.
type Extractor struct {
	opts   Options
	logger *slog.Logger
}

// New creates an extractor
func New(opts Options, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{opts: opts, logger: logger}
}

// checkFile rejects paths that cannot hold a printout before any parsing
func checkFile(path string, maxFileSize int64) (os.FileInfo, error) {
	if strings.ToLower(filepath.Ext(path)) != ".pdf" {
		return nil, perrors.Newf(perrors.ErrorTypeDocument, "not a PDF file: %s", path)
	}
	stat, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if stat.IsDir() {
		return nil, perrors.Newf(perrors.ErrorTypeDocument, "path is a directory: %s", path)
	}
	if stat.Size() == 0 {
		return nil, perrors.Newf(perrors.ErrorTypeDocument, "file is empty: %s", path)
	}
	if maxFileSize > 0 && stat.Size() > maxFileSize {
		return nil, perrors.Newf(perrors.ErrorTypeDocument,
			"file too large: %d bytes (max: %d bytes)", stat.Size(), maxFileSize).WithContext(path)
	}
	return stat, nil
}

// Inspect validates a PDF file in relaxed mode and reads its page sizes
func Inspect(path string) (*Info, error) {
	return inspect(path, 0)
}

func inspect(path string, maxFileSize int64) (*Info, error) {
	stat, err := checkFile(path, maxFileSize)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(f, conf)
	if err != nil {
		return nil, perrors.Wrap(perrors.ErrorTypeDocument, "failed to read PDF", err).WithContext(path)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, perrors.Wrap(perrors.ErrorTypeDocument, "failed to count pages", err).WithContext(path)
	}

	info := &Info{Path: path, Size: stat.Size(), PageCount: ctx.PageCount}
	if dims, err := ctx.PageDims(); err == nil {
		for _, d := range dims {
			info.Pages = append(info.Pages, PageSize{Width: d.Width, Height: d.Height})
		}
	}
	return info, nil
}

// Open reads every page of a PDF file into a document. Pages whose
// content cannot be decoded are kept empty and logged.
func (e *Extractor) Open(ctx context.Context, path string) (*layout.Document, error) {
	info, err := inspect(path, e.opts.MaxFileSize)
	if err != nil {
		return nil, err
	}

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, perrors.Wrap(perrors.ErrorTypeDocument, "failed to open PDF", err).WithContext(path)
	}
	defer f.Close()

	doc := &layout.Document{}
	line := 0
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := r.Page(i)
		size := info.pageSize(i - 1)
		if box, ok := mediaBox(page); ok {
			size = box
		}

		glyphs, err := pageGlyphs(page)
		if err != nil {
			e.logger.Warn("page content unreadable", "path", path, "page", i, "error", err)
		}
		var p layout.Page
		p, line = BuildPage(i-1, size.Width, size.Height, Spans(glyphs, e.opts), e.opts.LineTolerance, line)
		doc.Pages = append(doc.Pages, p)
	}

	e.logger.Debug("extracted", "path", path, "pages", len(doc.Pages), "rows", line)
	return doc, nil
}

func (info *Info) pageSize(i int) PageSize {
	if i < len(info.Pages) && info.Pages[i].Width > 0 && info.Pages[i].Height > 0 {
		return info.Pages[i]
	}
	return PageSize{Width: defaultPageWidth, Height: defaultPageHeight}
}

// pageGlyphs reads the text runs of a page. ledongthuc panics on some
// malformed content streams.
func pageGlyphs(page pdf.Page) (glyphs []Glyph, err error) {
	defer func() {
		if r := recover(); r != nil {
			glyphs, err = nil, fmt.Errorf("content stream: %v", r)
		}
	}()
	if page.V.IsNull() {
		return nil, nil
	}
	for _, t := range page.Content().Text {
		glyphs = append(glyphs, Glyph{
			Text: t.S,
			X:    t.X,
			Y:    t.Y,
			W:    t.W,
			Size: t.FontSize,
		})
	}
	return glyphs, nil
}

// mediaBox reads the page MediaBox, following page tree inheritance
func mediaBox(page pdf.Page) (size PageSize, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	if page.V.IsNull() {
		return PageSize{}, false
	}
	for v := page.V; !v.IsNull(); v = v.Key("Parent") {
		box := v.Key("MediaBox")
		if box.Kind() != pdf.Array || box.Len() != 4 {
			continue
		}
		var c [4]float64
		for i := range c {
			switch x := box.Index(i); x.Kind() {
			case pdf.Integer:
				c[i] = float64(x.Int64())
			case pdf.Real:
				c[i] = x.Float64()
			}
		}
		w, h := c[2]-c[0], c[3]-c[1]
		if w > 0 && h > 0 {
			return PageSize{Width: w, Height: h}, true
		}
	}
	return PageSize{}, false
}
