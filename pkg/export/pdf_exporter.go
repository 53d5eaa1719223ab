package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// ReceiptLine is one label/value pair on an invoice receipt.
type ReceiptLine struct {
	Label string
	Value string
}

// Receipt describes an invoice receipt document.
type Receipt struct {
	Title     string
	Reference string
	Lines     []ReceiptLine
	Total     string
	Footnote  string
}

// PDFExporter renders datasets and receipts into PDF documents.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates a PDF document with an optional title and table body.
func (e *PDFExporter) Render(data Dataset, title string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	if title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, strings.ToUpper(title), "", 1, "C", false, 0, "")
		pdf.Ln(5)
	}

	pdf.SetFont("Arial", "B", 10)
	colWidth := 190.0 / float64(len(data.Headers))
	for _, header := range data.Headers {
		pdf.CellFormat(colWidth, 8, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, row := range data.Rows {
		for _, header := range data.Headers {
			value := row[header]
			pdf.CellFormat(colWidth, 7, value, "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderReceipt creates a one-page invoice receipt.
func (e *PDFExporter) RenderReceipt(receipt Receipt) ([]byte, error) {
	if len(receipt.Lines) == 0 {
		return nil, fmt.Errorf("receipt requires at least one line")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, strings.ToUpper(receipt.Title), "", 1, "C", false, 0, "")
	if receipt.Reference != "" {
		pdf.SetFont("Arial", "", 9)
		pdf.CellFormat(0, 6, fmt.Sprintf("Reference: %s", receipt.Reference), "", 1, "C", false, 0, "")
	}
	pdf.Ln(6)

	pdf.SetFont("Arial", "", 11)
	for _, line := range receipt.Lines {
		pdf.CellFormat(80, 8, line.Label, "", 0, "", false, 0, "")
		pdf.CellFormat(90, 8, line.Value, "", 1, "R", false, 0, "")
	}

	if receipt.Total != "" {
		pdf.Ln(2)
		pdf.SetFont("Arial", "B", 12)
		pdf.CellFormat(80, 9, "Total due", "T", 0, "", false, 0, "")
		pdf.CellFormat(90, 9, receipt.Total, "T", 1, "R", false, 0, "")
	}

	if receipt.Footnote != "" {
		pdf.Ln(8)
		pdf.SetFont("Arial", "I", 9)
		pdf.MultiCell(0, 5, receipt.Footnote, "", "", false)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render receipt: %w", err)
	}
	return buf.Bytes(), nil
}
