package tabular

import (
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"
)

// readXLSX читает первый лист книги в порядке книги.
func readXLSX(r io.Reader) (*Grid, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return &Grid{}, nil
	}
	sheet := sheets[0]

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, err
	}

	c := newCollector()
	for ri, values := range rows {
		row := make([]Cell, len(values))
		for ci, raw := range values {
			if raw == "" {
				row[ci] = Empty()
				continue
			}
			axis, err := excelize.CoordinatesToCellName(ci+1, ri+1)
			if err != nil {
				return nil, err
			}
			typ, err := f.GetCellType(sheet, axis)
			if err != nil {
				return nil, err
			}
			row[ci] = xlsxCell(raw, typ)
		}
		if !c.add(row) {
			break
		}
	}

	return c.grid(), nil
}

// xlsxCell переводит сырое значение ячейки с учётом её типа.
// Ячейки без явного типа (в том числе результаты формул) в OOXML числовые.
func xlsxCell(raw string, typ excelize.CellType) Cell {
	switch typ {
	case excelize.CellTypeNumber, excelize.CellTypeUnset:
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			return Numeric(v)
		}
		return Text(raw)
	case excelize.CellTypeBool:
		if raw == "1" {
			return Text("TRUE")
		}
		return Text("FALSE")
	default:
		return Text(raw)
	}
}
