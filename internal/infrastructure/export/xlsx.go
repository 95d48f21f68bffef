// Package export renders a document's reconstructed tables as an xlsx
// workbook, one sheet per table.
package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/finsight-io/finsight/internal/core/domain"
)

// Workbook builds an xlsx file with one sheet per table, in table order.
// Tables without a header get positional column names. Numeric cells are
// written as numbers when they parse under the locale grammar, so the
// sheet stays usable for formulas.
func Workbook(tables []domain.ExtractedTable, parse func(string) (float64, bool)) ([]byte, error) {
	if len(tables) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "export tables",
			fmt.Errorf("no tables to export"))
	}

	f := excelize.NewFile()
	defer f.Close()

	for i, table := range tables {
		sheet := sheetName(i, &table)
		if i == 0 {
			f.SetSheetName(f.GetSheetName(0), sheet)
		} else {
			if _, err := f.NewSheet(sheet); err != nil {
				return nil, fmt.Errorf("create sheet %q: %w", sheet, err)
			}
		}

		header := table.Header
		if len(header) == 0 {
			header = positionalHeader(table.ColumnCount())
		}
		for col, name := range header {
			cell, _ := excelize.CoordinatesToCellName(col+1, 1)
			if err := f.SetCellValue(sheet, cell, name); err != nil {
				return nil, fmt.Errorf("write header: %w", err)
			}
		}

		for rowIdx, row := range table.Rows {
			for col, value := range row {
				cell, _ := excelize.CoordinatesToCellName(col+1, rowIdx+2)
				if parse != nil {
					if number, ok := parse(value); ok {
						if err := f.SetCellValue(sheet, cell, number); err != nil {
							return nil, fmt.Errorf("write cell: %w", err)
						}
						continue
					}
				}
				if err := f.SetCellValue(sheet, cell, value); err != nil {
					return nil, fmt.Errorf("write cell: %w", err)
				}
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// sheet names are capped at 31 characters by the format.
func sheetName(index int, table *domain.ExtractedTable) string {
	name := fmt.Sprintf("Table %d (p.%d)", index+1, table.PageNumber)
	if table.Type != "" && table.Type != domain.TableGeneric {
		name = fmt.Sprintf("Table %d %s", index+1, table.Type)
	}
	if len(name) > 31 {
		name = name[:31]
	}
	return name
}

func positionalHeader(columns int) []string {
	out := make([]string, columns)
	for i := range out {
		out[i] = fmt.Sprintf("col_%d", i+1)
	}
	return out
}
