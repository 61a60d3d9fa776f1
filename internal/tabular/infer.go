package tabular

import (
	"fmt"

	"github.com/bigkaa/goartstore/sheet-module/internal/domain/model"
)

// InferColumns определяет столбцы по занятому диапазону листа.
//
// Первая занятая строка — заголовок. Столбец без подписи в заголовке
// пропускается. Тип столбца — первое свидетельство (число или дата)
// в строках данных 1..SampleRows диапазона; без свидетельств — string.
// Пустой лист даёт пустой список.
func InferColumns(g *Grid) []model.Column {
	columns := []model.Column{}

	rng, ok := g.Bounds()
	if !ok {
		return columns
	}

	lastSample := min(rng.FirstRow+SampleRows, rng.LastRow)

	for col := rng.FirstCol; col <= rng.LastCol; col++ {
		label := g.Cell(rng.FirstRow, col).Label()
		if label == "" {
			continue
		}

		colType := model.ColumnString
		for row := rng.FirstRow + 1; row <= lastSample; row++ {
			if t, ok := Classify(g.Cell(row, col)); ok {
				colType = t
				break
			}
		}

		columns = append(columns, model.Column{
			ID:           fmt.Sprintf("col_%d", col),
			Label:        label,
			InferredType: colType,
		})
	}

	return columns
}
