// Пакет tabular — чтение табличных файлов (xlsx, xls, csv) и определение
// структуры столбцов по первым строкам первого листа.
package tabular

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/araddon/dateparse"

	"github.com/bigkaa/goartstore/sheet-module/internal/domain/model"
)

// CellKind — вид значения ячейки.
type CellKind int

const (
	// CellEmpty — ячейка отсутствует или пуста.
	CellEmpty CellKind = iota
	// CellNumeric — числовое значение.
	CellNumeric
	// CellText — текстовое значение.
	CellText
)

// Cell — значение ячейки с тегом вида.
type Cell struct {
	Kind   CellKind
	Number float64
	Text   string
}

// Empty возвращает пустую ячейку.
func Empty() Cell { return Cell{Kind: CellEmpty} }

// Numeric возвращает числовую ячейку.
func Numeric(v float64) Cell { return Cell{Kind: CellNumeric, Number: v} }

// Text возвращает текстовую ячейку. Пустая строка даёт пустую ячейку.
func Text(s string) Cell {
	if s == "" {
		return Empty()
	}
	return Cell{Kind: CellText, Text: s}
}

// IsEmpty сообщает, что ячейка не несёт значения.
func (c Cell) IsEmpty() bool {
	return c.Kind == CellEmpty || (c.Kind == CellText && strings.TrimSpace(c.Text) == "")
}

// Label возвращает значение ячейки как подпись заголовка.
func (c Cell) Label() string {
	switch c.Kind {
	case CellNumeric:
		return strconv.FormatFloat(c.Number, 'f', -1, 64)
	case CellText:
		return strings.TrimSpace(c.Text)
	default:
		return ""
	}
}

// Classify определяет, о каком типе столбца свидетельствует ячейка.
// Приоритет: число, затем дата. Пустая ячейка и текст, не являющийся
// датой, свидетельством не считаются (ok == false).
func Classify(c Cell) (model.ColumnType, bool) {
	switch c.Kind {
	case CellNumeric:
		return model.ColumnNumber, true
	case CellText:
		if IsDate(c.Text) {
			return model.ColumnDate, true
		}
	}
	return "", false
}

// digitsOnly — строки из одних цифр не считаются датами
// (коды, идентификаторы, почтовые индексы).
var digitsOnly = regexp.MustCompile(`^\d+$`)

// calendarPart — в тексте есть календарная часть: числовая дата
// (год-месяц, день.месяц.год) или название месяца. Без неё dateparse
// принимает время ("10:30") и номера версий ("1.2.3").
var calendarPart = regexp.MustCompile(
	`(^|\D)(\d{4}[-/.]\d{1,2}|\d{1,2}[-/.]\d{1,2}[-/.](\d{2}|\d{4}))(\D|$)` +
		`|\b(?i:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)`,
)

// IsDate проверяет, что текст разбирается как календарная дата.
func IsDate(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || digitsOnly.MatchString(s) || !calendarPart.MatchString(s) {
		return false
	}
	_, err := dateparse.ParseAny(s)
	return err == nil
}

// decimalPattern — десятичное число в обычной или экспоненциальной записи.
var decimalPattern = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)

// parseDecimal разбирает текст форматов без типизации ячеек (csv, xls).
func parseDecimal(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if !decimalPattern.MatchString(s) {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// textOrNumber превращает нетипизированный текст в ячейку:
// число — в числовую, иначе в текстовую.
func textOrNumber(s string) Cell {
	if strings.TrimSpace(s) == "" {
		return Empty()
	}
	if v, ok := parseDecimal(s); ok {
		return Numeric(v)
	}
	return Text(s)
}
