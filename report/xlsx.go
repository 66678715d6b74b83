package report

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// SheetName is the single worksheet of the workbook.
const SheetName = "Duty"

var xlsxHeader = []string{"Rank", "Person ID", "Name", "Total Seconds", "Total Hours", "Shifts", "Average Shift"}

// XLSX renders the report as a workbook: a title row, a header row and one
// row per person, followed by a totals row.
func XLSX(r Report) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(SheetName)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	f.SetColWidth(SheetName, "A", "A", 8)
	f.SetColWidth(SheetName, "B", "C", 24)
	f.SetColWidth(SheetName, "D", "G", 16)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})

	lastCol := colName(len(xlsxHeader) - 1)
	f.SetCellValue(SheetName, "A1", r.Heading())
	f.MergeCell(SheetName, "A1", cell(lastCol, 1))
	f.SetCellStyle(SheetName, "A1", "A1", headerStyle)

	for i, h := range xlsxHeader {
		f.SetCellValue(SheetName, cell(colName(i), 2), h)
	}
	f.SetCellStyle(SheetName, "A2", cell(lastCol, 2), headerStyle)

	row := 3
	if r.Empty() {
		f.SetCellValue(SheetName, cell("A", row), "No duty time recorded for this month.")
	}
	for _, rr := range r.Rows {
		f.SetCellValue(SheetName, cell("A", row), rr.Rank)
		f.SetCellValue(SheetName, cell("B", row), rr.PersonID)
		f.SetCellValue(SheetName, cell("C", row), rr.Name)
		f.SetCellValue(SheetName, cell("D", row), rr.TotalSeconds)
		f.SetCellValue(SheetName, cell("E", row), rr.Hours.InexactFloat64())
		f.SetCellValue(SheetName, cell("F", row), rr.Shifts)
		f.SetCellValue(SheetName, cell("G", row), FormatDuration(rr.AverageSeconds, false))
		row++
	}

	if !r.Empty() {
		f.SetCellValue(SheetName, cell("C", row), "Total")
		f.SetCellValue(SheetName, cell("D", row), r.TotalSeconds)
		f.SetCellValue(SheetName, cell("E", row), Hours(r.TotalSeconds).InexactFloat64())
		f.SetCellValue(SheetName, cell("F", row), r.TotalShifts)
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
