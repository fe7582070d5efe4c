package pdf

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/nurpe/foundry-rfq/internal/model"
)

type Generator struct {
	fontName string
}

func NewGenerator() (*Generator, error) {
	return &Generator{fontName: "Helvetica"}, nil
}

// Generate renders the award-confirmation document handed to buyer and
// supplier once an RFQ is awarded.
func (g *Generator) Generate(doc model.AwardDocument) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.AddPage()

	pdf.SetFont(g.fontName, "B", 16)
	pdf.CellFormat(0, 10, "Award Confirmation", "", 1, "C", false, 0, "")

	pdf.SetFont(g.fontName, "", 11)
	pdf.CellFormat(0, 6, fmt.Sprintf("RFQ %s", doc.RFQ.ID), "", 1, "C", false, 0, "")
	if doc.RFQ.AwardedAt != nil {
		pdf.CellFormat(0, 6, fmt.Sprintf("Awarded on %s", formatDate(*doc.RFQ.AwardedAt)), "", 1, "C", false, 0, "")
	}
	pdf.Ln(6)

	pdf.SetFont(g.fontName, "B", 12)
	pdf.CellFormat(0, 8, "Request", "", 1, "L", false, 0, "")
	pdf.SetFont(g.fontName, "", 11)
	pdf.CellFormat(0, 6, doc.RFQ.Title, "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Category: %s", orDash(doc.RFQ.Category)), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Type: %s", doc.RFQ.Type), "", 1, "L", false, 0, "")
	if doc.RFQ.Deadline != nil {
		pdf.CellFormat(0, 6, fmt.Sprintf("Deadline: %s", formatDate(*doc.RFQ.Deadline)), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	pdf.SetFont(g.fontName, "B", 12)
	pdf.CellFormat(0, 8, "Awarded supplier", "", 1, "L", false, 0, "")
	pdf.SetFont(g.fontName, "", 11)
	supplierName := doc.SupplierName
	if supplierName == "" {
		supplierName = doc.SupplierID.String()
	}
	pdf.CellFormat(0, 6, supplierName, "", 1, "L", false, 0, "")

	pdf.Ln(4)
	pdf.SetFont(g.fontName, "B", 12)
	pdf.CellFormat(0, 8, "Terms", "", 1, "L", false, 0, "")
	pdf.SetFont(g.fontName, "", 10)

	headers := []string{"Item", "Value"}
	colWidths := []float64{60, 110}
	drawTableRow(pdf, g.fontName, headers, colWidths, true)

	quoted := "to be negotiated"
	if doc.QuotedPrice != nil {
		quoted = doc.QuotedPrice.StringFixed(2)
	}
	drawTableRow(pdf, g.fontName, []string{"Quoted price", quoted}, colWidths, false)
	drawTableRow(pdf, g.fontName, []string{
		"Budget range",
		fmt.Sprintf("%s – %s", doc.RFQ.BudgetMin.StringFixed(2), doc.RFQ.BudgetMax.StringFixed(2)),
	}, colWidths, false)
	if doc.OrderID != nil {
		drawTableRow(pdf, g.fontName, []string{"Order", doc.OrderID.String()}, colWidths, false)
	}

	pdf.Ln(8)
	pdf.SetFont(g.fontName, "", 9)
	pdf.MultiCell(0, 5, "This confirmation records the award of the request for quote to the supplier named above. Order fulfilment and settlement are governed by the resulting order.", "", "L", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func drawTableRow(pdf *gofpdf.Fpdf, font string, cells []string, widths []float64, header bool) {
	if header {
		pdf.SetFont(font, "B", 10)
		pdf.SetFillColor(235, 235, 235)
	} else {
		pdf.SetFont(font, "", 10)
		pdf.SetFillColor(255, 255, 255)
	}
	for i, cell := range cells {
		pdf.CellFormat(widths[i], 7, cell, "1", 0, "L", header, 0, "")
	}
	pdf.Ln(-1)
}

func formatDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
