package tabular

import (
	"io"

	"github.com/extrame/xls"
)

// readXLS читает первый лист книги BIFF. Библиотека отдаёт значения
// отформатированным текстом, поэтому числа распознаются по записи.
func readXLS(r io.ReadSeeker) (*Grid, error) {
	wb, err := xls.OpenReader(r, "utf-8")
	if err != nil {
		return nil, err
	}
	if wb.NumSheets() == 0 {
		return &Grid{}, nil
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return &Grid{}, nil
	}

	c := newCollector()
	for i := 0; i <= int(sheet.MaxRow); i++ {
		var row []Cell
		if xr := sheet.Row(i); xr != nil {
			last := xr.LastCol()
			row = make([]Cell, max(last, 0))
			for ci := xr.FirstCol(); ci < last; ci++ {
				row[ci] = textOrNumber(xr.Col(ci))
			}
		}
		if !c.add(row) {
			break
		}
	}

	return c.grid(), nil
}
