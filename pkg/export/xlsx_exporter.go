package export

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

const xlsxSheet = "Calendar"

// XLSXExporter renders datasets into a single-sheet workbook.
type XLSXExporter struct{}

// NewXLSXExporter constructs an XLSX exporter.
func NewXLSXExporter() *XLSXExporter {
	return &XLSXExporter{}
}

// ContentType implements Renderer.
func (e *XLSXExporter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Extension implements Renderer.
func (e *XLSXExporter) Extension() string { return "xlsx" }

// Render writes an optional merged title row followed by a styled header row
// and the data rows.
func (e *XLSXExporter) Render(data Dataset) ([]byte, error) {
	if err := data.validate("xlsx"); err != nil {
		return nil, err
	}
	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(xlsxSheet)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#D9E1F2"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	row := 1
	if data.Title != "" {
		last, _ := excelize.CoordinatesToCellName(len(data.Headers), row)
		if err := f.SetCellValue(xlsxSheet, "A1", data.Title); err != nil {
			return nil, fmt.Errorf("write title: %w", err)
		}
		if len(data.Headers) > 1 {
			if err := f.MergeCell(xlsxSheet, "A1", last); err != nil {
				return nil, fmt.Errorf("merge title: %w", err)
			}
		}
		row++
	}

	first, _ := excelize.CoordinatesToCellName(1, row)
	if err := f.SetSheetRow(xlsxSheet, first, &data.Headers); err != nil {
		return nil, fmt.Errorf("write headers: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(data.Headers), row)
	if err := f.SetCellStyle(xlsxSheet, first, last, headerStyle); err != nil {
		return nil, fmt.Errorf("style headers: %w", err)
	}
	if err := f.SetPanes(xlsxSheet, &excelize.Panes{Freeze: true, YSplit: row, TopLeftCell: cellName(1, row+1), ActivePane: "bottomLeft"}); err != nil {
		return nil, fmt.Errorf("freeze header: %w", err)
	}

	for i, values := range data.Rows {
		cells := make([]interface{}, len(values))
		for j, v := range values {
			cells[j] = v
		}
		if err := f.SetSheetRow(xlsxSheet, cellName(1, row+1+i), &cells); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i, err)
		}
	}

	for i, h := range data.Headers {
		col, _ := excelize.ColumnNumberToName(i + 1)
		width := float64(len(h) + 4)
		for _, values := range data.Rows {
			if w := float64(len(values[i]) + 2); w > width {
				width = w
			}
		}
		if width > 60 {
			width = 60
		}
		if err := f.SetColWidth(xlsxSheet, col, col, width); err != nil {
			return nil, fmt.Errorf("size column %s: %w", col, err)
		}
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func cellName(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}
