package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// RGB is a fill colour.
type RGB struct {
	R, G, B int
}

// PDFOptions tunes page layout.
type PDFOptions struct {
	Subtitle  []string
	Landscape bool
	// Weights sizes columns relative to each other; missing entries count as 1.
	Weights map[string]float64
	// RowFill shades a row when it returns true.
	RowFill func(row map[string]string) (RGB, bool)
	// Footer is printed left of the page number on every page.
	Footer string
}

// PDFExporter renders datasets into a tabular A4 PDF.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// RenderWithOptions creates a PDF with the title and subtitle lines above the table.
// The header row is repeated on every page.
func (e *PDFExporter) RenderWithOptions(data Dataset, title string, opts PDFOptions) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	orientation, width := "P", 190.0
	if opts.Landscape {
		orientation, width = "L", 277.0
	}
	widths := columnWidths(data.Headers, opts.Weights, width)

	pdf := gofpdf.New(orientation, "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.SetAutoPageBreak(true, 15)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Arial", "I", 8)
		pdf.CellFormat(width/2, 6, tr(opts.Footer), "", 0, "L", false, 0, "")
		pdf.CellFormat(width/2, 6, fmt.Sprintf("%d / {nb}", pdf.PageNo()), "", 0, "R", false, 0, "")
	})

	header := func() {
		pdf.SetFont("Arial", "B", 9)
		pdf.SetFillColor(230, 230, 230)
		for i, h := range data.Headers {
			pdf.CellFormat(widths[i], 8, tr(h), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 9)
	}
	pdf.SetHeaderFunc(func() {
		if pdf.PageNo() > 1 {
			header()
		}
	})

	pdf.AddPage()
	if title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, tr(title), "", 1, "C", false, 0, "")
	}
	if len(opts.Subtitle) > 0 {
		pdf.SetFont("Arial", "", 9)
		for _, line := range opts.Subtitle {
			pdf.CellFormat(0, 5, tr(line), "", 1, "C", false, 0, "")
		}
	}
	if title != "" || len(opts.Subtitle) > 0 {
		pdf.Ln(5)
	}
	header()

	for _, row := range data.Rows {
		fill := false
		if opts.RowFill != nil {
			if c, ok := opts.RowFill(row); ok {
				pdf.SetFillColor(c.R, c.G, c.B)
				fill = true
			}
		}
		for i, h := range data.Headers {
			pdf.CellFormat(widths[i], 7, tr(row[h]), "1", 0, "", fill, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func columnWidths(headers []string, weights map[string]float64, total float64) []float64 {
	sum := 0.0
	raw := make([]float64, len(headers))
	for i, h := range headers {
		w := weights[h]
		if w <= 0 {
			w = 1
		}
		raw[i] = w
		sum += w
	}
	for i := range raw {
		raw[i] = raw[i] / sum * total
	}
	return raw
}
