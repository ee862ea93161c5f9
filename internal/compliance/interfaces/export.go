package interfaces

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	compliance "metrology-cloud/internal/compliance/domain"
	custody "metrology-cloud/internal/custody/domain"
)

// BuildStatusXLSX renders the instrument compliance listing as a workbook.
func BuildStatusXLSX(statuses []compliance.InstrumentStatus, generatedAt time.Time) ([]byte, error) {
	f := excelize.NewFile()
	sheet := "instruments"
	f.SetSheetName("Sheet1", sheet)

	headers := []string{"Code", "Description", "Type", "Controlled", "State", "Calibration", "Valid Until", "Pending Points", "Holder", "Laboratory"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, header)
	}
	for i, status := range statuses {
		row := i + 2
		validUntil := ""
		if status.ValidUntil != nil {
			validUntil = status.ValidUntil.Format("2006-01-02")
		}
		values := []any{
			status.Code, status.Description, status.TypeName, status.Controlled,
			string(status.State), string(status.CalibrationStatus), validUntil,
			status.PendingPoints, status.HolderName, status.LabName,
		}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(sheet, cell, value)
		}
	}
	_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", len(statuses)+3), "Generated")
	_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", len(statuses)+3), generatedAt.Format(time.RFC3339))

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildInstrumentPDF renders one instrument's compliance report with its
// lifecycle history.
func BuildInstrumentPDF(status *compliance.InstrumentStatus, history []custody.StatusEvent) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Instrument Compliance Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Code: %s", status.Code))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Description: %s", status.Description))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("State: %s", status.State))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Calibration: %s", status.CalibrationStatus))
	pdf.Ln(5)
	if status.ValidUntil != nil {
		pdf.Cell(0, 6, fmt.Sprintf("Valid until: %s", status.ValidUntil.Format("2006-01-02")))
		pdf.Ln(5)
	}
	pdf.Cell(0, 6, fmt.Sprintf("Pending points: %d", status.PendingPoints))
	pdf.Ln(5)
	if status.CertificateLink != "" {
		pdf.Cell(0, 6, fmt.Sprintf("Latest certificate: %s", status.CertificateLink))
		pdf.Ln(5)
	}
	pdf.Ln(4)

	// History table
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(35, 6, "Date", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Event", "1", 0, "C", false, 0, "")
	pdf.CellFormat(55, 6, "Employee", "1", 0, "C", false, 0, "")
	pdf.CellFormat(55, 6, "Laboratory", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, event := range history {
		pdf.CellFormat(35, 6, event.DisplayDate().Format("2006-01-02"), "1", 0, "C", false, 0, "")
		pdf.CellFormat(40, 6, string(event.Kind), "1", 0, "L", false, 0, "")
		pdf.CellFormat(55, 6, event.EmployeeName, "1", 0, "L", false, 0, "")
		pdf.CellFormat(55, 6, event.LabName, "1", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
