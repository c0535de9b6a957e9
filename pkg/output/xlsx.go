package output

import (
	"fmt"
	"io"

	"github.com/iwvelando/curve-forecast/internal/forecast"
	"github.com/xuri/excelize/v2"
)

// Workbook builds a workbook with one sheet per report table.
func Workbook(report *forecast.Report) (*excelize.File, error) {
	if report == nil {
		return nil, fmt.Errorf("report cannot be nil")
	}
	f := excelize.NewFile()
	tables := Tables(report)

	for i, t := range tables {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", t.Name); err != nil {
				return nil, err
			}
		} else if _, err := f.NewSheet(t.Name); err != nil {
			return nil, err
		}

		for c, h := range t.Headers {
			cell, _ := excelize.CoordinatesToCellName(c+1, 1)
			if err := f.SetCellValue(t.Name, cell, h); err != nil {
				return nil, err
			}
		}
		for r, row := range t.Rows {
			for c, v := range row {
				if v == nil {
					continue
				}
				cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
				if err := f.SetCellValue(t.Name, cell, v); err != nil {
					return nil, err
				}
			}
		}
		if err := f.SetPanes(t.Name, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
			return nil, err
		}
	}
	f.SetActiveSheet(0)
	return f, nil
}

// XlsxFormat saves the report as an xlsx workbook at path.
func XlsxFormat(path string, report *forecast.Report) error {
	f, err := Workbook(report)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook %s: %w", path, err)
	}
	return nil
}

// WriteXlsx streams the workbook to w.
func WriteXlsx(w io.Writer, report *forecast.Report) error {
	f, err := Workbook(report)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()
	_, err = f.WriteTo(w)
	return err
}
