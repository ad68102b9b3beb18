package excel

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/hyeonsoft/billscan/internal/core/domain"
)

// Exporter renders confirmed bill jobs into an XLSX workbook.
type Exporter struct{}

func NewExporter() *Exporter {
	return &Exporter{}
}

var headers = []string{
	"Job ID",
	"Vendor",
	"Bill Type",
	"Amount Due (KRW)",
	"Due Date",
	"Period Start",
	"Period End",
	"Customer Number",
	"Payment Account",
	"Confidence",
	"Confirmed At",
}

func (e *Exporter) Render(jobs []domain.BillJob) ([]byte, error) {
	f := excelize.NewFile()
	const sheet = "Bills"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, fmt.Errorf("create sheet: %w", err)
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)
	_ = f.DeleteSheet("Sheet1")

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, job := range jobs {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, job.ID)
		write(2, strValue(job.Fields.VendorName))
		if job.Fields.BillType != nil {
			write(3, string(*job.Fields.BillType))
		}
		if job.Fields.AmountDue != nil {
			write(4, *job.Fields.AmountDue)
		}
		write(5, strValue(job.Fields.DueDate))
		write(6, strValue(job.Fields.PeriodStart))
		write(7, strValue(job.Fields.PeriodEnd))
		write(8, strValue(job.Fields.CustomerNumber))
		write(9, strValue(job.Fields.PaymentAccount))
		if job.Confidence != nil {
			write(10, *job.Confidence)
		}
		write(11, job.UpdatedAt.Format("2006-01-02 15:04:05"))
		row++
	}

	_ = f.SetColWidth(sheet, "A", "A", 38)
	_ = f.SetColWidth(sheet, "B", "B", 28)
	_ = f.SetColWidth(sheet, "C", "C", 14)
	_ = f.SetColWidth(sheet, "D", "D", 16)
	_ = f.SetColWidth(sheet, "E", "G", 14)
	_ = f.SetColWidth(sheet, "H", "I", 22)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func strValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
