package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

const pdfBodyWidth = 190.0

// PDFExporter renders datasets into a tabular A4 PDF.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

func (e *PDFExporter) ContentType() string { return "application/pdf" }

func (e *PDFExporter) Extension() string { return "pdf" }

// Render creates a PDF document with an optional title, the table body and
// an optional footer line. Text is translated to the core fonts' code page
// so accented names survive.
func (e *PDFExporter) Render(data Dataset) ([]byte, error) {
	if err := data.validate("pdf"); err != nil {
		return nil, err
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.SetAutoPageBreak(true, 15)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	widths := columnWidths(data.Columns)

	header := func() {
		pdf.SetFont("Arial", "B", 10)
		pdf.SetFillColor(230, 230, 230)
		for i, col := range data.Columns {
			pdf.CellFormat(widths[i], 8, tr(col.Header), "1", 0, "C", true, 0, "")
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
	if data.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, tr(data.Title), "", 1, "C", false, 0, "")
		pdf.Ln(5)
	}
	header()

	for _, row := range data.Rows {
		for i, cell := range row {
			pdf.CellFormat(widths[i], 7, tr(cell), "1", 0, data.Columns[i].Align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	if data.Footer != "" {
		pdf.Ln(4)
		pdf.SetFont("Arial", "I", 8)
		pdf.CellFormat(0, 6, tr(data.Footer), "", 1, "R", false, 0, "")
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func columnWidths(cols []Column) []float64 {
	total := 0.0
	for _, col := range cols {
		total += weight(col)
	}
	widths := make([]float64, len(cols))
	for i, col := range cols {
		widths[i] = pdfBodyWidth * weight(col) / total
	}
	return widths
}

func weight(col Column) float64 {
	if col.Weight <= 0 {
		return 1
	}
	return col.Weight
}
