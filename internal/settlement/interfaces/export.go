package interfaces

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	settlement "fuelstation-cloud/internal/settlement/domain"
)

type exportLine struct {
	label string
	value string
}

func summaryLines(s *settlement.Settlement) []exportLine {
	money := func(d decimal.Decimal) string { return d.StringFixed(2) }
	return []exportLine{
		{"Shifts", fmt.Sprintf("%d (%d cancelled)", s.ShiftCount, s.CancelledShifts)},
		{"Readings", fmt.Sprintf("%d", s.ReadingCount)},
		{"Litres", s.Litres.StringFixed(3)},
		{"Total Sales", money(s.TotalSales)},
		{"Cash", money(s.CashTotal)},
		{"Online", money(s.OnlineTotal)},
		{"Credit", money(s.CreditTotal)},
		{"Counted Cash", money(s.CountedCash)},
		{"Shift Variance", money(s.ShiftVariance)},
		{"Deposited Cash", money(s.DepositedCash)},
		{"Final Variance", money(s.FinalVariance)},
		{"Resolved Discrepancy", fmt.Sprintf("%s (%d steps)", money(s.ResolvedDiscrepancy), s.ResolvedCount)},
	}
}

// BuildSettlementPDF renders a one-page PDF for a settlement.
func BuildSettlementPDF(s *settlement.Settlement) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Daily Settlement")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Station: %s", s.StationID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Business Date: %s (%s)", settlement.FormatDate(s.BusinessDate), s.Timezone))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Closed: %s", s.ClosedAt.Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Prepared By: %s", s.PreparedBy))
	pdf.Ln(5)
	if s.ApprovedBy != "" {
		pdf.Cell(0, 6, fmt.Sprintf("Approved By: %s", s.ApprovedBy))
		pdf.Ln(5)
	}
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(70, 6, "Item", "1", 0, "C", false, 0, "")
	pdf.CellFormat(60, 6, "Value", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, line := range summaryLines(s) {
		pdf.CellFormat(70, 6, line.label, "1", 0, "L", false, 0, "")
		pdf.CellFormat(60, 6, line.value, "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	pdf.Ln(4)
	pdf.SetFont("Arial", "", 8)
	pdf.Cell(0, 5, fmt.Sprintf("Snapshot: %s", s.SnapshotHash))

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildSettlementXLSX renders a settlement workbook with a summary sheet.
func BuildSettlementXLSX(s *settlement.Settlement) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	sheet := "settlement"
	f.SetSheetName("Sheet1", sheet)

	header := []exportLine{
		{"Station", s.StationID},
		{"Business Date", settlement.FormatDate(s.BusinessDate)},
		{"Timezone", s.Timezone},
		{"Closed At", s.ClosedAt.Format(time.RFC3339)},
		{"Prepared By", s.PreparedBy},
		{"Approved By", s.ApprovedBy},
		{"Snapshot", s.SnapshotHash},
	}
	_ = f.SetCellValue(sheet, "A1", "Daily Settlement")
	row := 3
	for _, line := range append(header, summaryLines(s)...) {
		_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", row), line.label)
		_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", row), line.value)
		row++
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
