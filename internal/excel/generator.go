package excel

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/nurpe/foundry-rfq/internal/model"
)

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// Generate builds the buyer's bid-comparison workbook: a summary sheet and
// one row per broadcast supplier.
func (g *Generator) Generate(comparison model.BidComparison) ([]byte, error) {
	file := excelize.NewFile()

	sheet := "Comparison"
	file.SetSheetName("Sheet1", sheet)
	if err := g.write(file, sheet, comparison); err != nil {
		return nil, err
	}

	file.SetActiveSheet(0)
	buf, err := file.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g *Generator) write(file *excelize.File, sheet string, comparison model.BidComparison) error {
	rfq := comparison.RFQ

	set := func(cell string, value interface{}) {
		_ = file.SetCellValue(sheet, cell, value)
	}

	set("A1", "RFQ")
	set("B1", rfq.Title)
	set("A2", "Category")
	set("B2", rfq.Category)
	set("A3", "Type")
	set("B3", string(rfq.Type))
	set("A4", "Status")
	set("B4", string(rfq.Status))
	set("A5", "Budget")
	set("B5", fmt.Sprintf("%s – %s", rfq.BudgetMin.StringFixed(2), rfq.BudgetMax.StringFixed(2)))
	set("A6", "Suppliers contacted")
	set("B6", len(comparison.Rows))

	tableRow := 8
	set(fmt.Sprintf("A%d", tableRow), "Supplier")
	set(fmt.Sprintf("B%d", tableRow), "Response")
	set(fmt.Sprintf("C%d", tableRow), "Quoted price")
	set(fmt.Sprintf("D%d", tableRow), "Delivered")
	set(fmt.Sprintf("E%d", tableRow), "Responded")
	set(fmt.Sprintf("F%d", tableRow), "Message")

	for i, row := range comparison.Rows {
		line := tableRow + 1 + i
		name := row.SupplierName
		if name == "" {
			name = row.SupplierID.String()
		}
		set(fmt.Sprintf("A%d", line), name)
		set(fmt.Sprintf("B%d", line), string(row.Response))
		set(fmt.Sprintf("C%d", line), formatPrice(row.QuotedPrice))
		set(fmt.Sprintf("D%d", line), formatTime(&row.DeliveredAt))
		set(fmt.Sprintf("E%d", line), formatTime(row.RespondedAt))
		if row.Message != nil {
			set(fmt.Sprintf("F%d", line), *row.Message)
		}
	}

	_ = file.SetColWidth(sheet, "A", "A", 36)
	_ = file.SetColWidth(sheet, "B", "B", 14)
	_ = file.SetColWidth(sheet, "C", "C", 14)
	_ = file.SetColWidth(sheet, "D", "E", 20)
	_ = file.SetColWidth(sheet, "F", "F", 48)
	return nil
}

func formatPrice(price *decimal.Decimal) string {
	if price == nil {
		return ""
	}
	return price.StringFixed(2)
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04")
}
