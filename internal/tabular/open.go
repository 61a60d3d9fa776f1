package tabular

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/bigkaa/goartstore/sheet-module/internal/domain/model"
)

// Format — формат табличного файла.
type Format int

const (
	// FormatCSV — текст с разделителями.
	FormatCSV Format = iota
	// FormatXLSX — Office Open XML (zip-контейнер).
	FormatXLSX
	// FormatXLS — BIFF в составном документе OLE2.
	FormatXLS
)

func (f Format) String() string {
	switch f {
	case FormatXLSX:
		return "xlsx"
	case FormatXLS:
		return "xls"
	default:
		return "csv"
	}
}

// ErrUnreadable — содержимое не удалось разобрать как таблицу.
var ErrUnreadable = errors.New("файл не разбирается как таблица")

var (
	zipMagic  = []byte("PK\x03\x04")
	oleMagic  = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
	sniffSize = len(oleMagic)
)

// DetectFormat определяет формат по сигнатуре содержимого.
// Браузеры нередко присылают csv как application/vnd.ms-excel,
// поэтому заявленному типу не доверяем. Позиция чтения возвращается в начало.
func DetectFormat(r io.ReadSeeker) (Format, error) {
	head := make([]byte, sniffSize)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return FormatCSV, fmt.Errorf("ошибка чтения заголовка файла: %w", err)
	}
	head = head[:n]

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return FormatCSV, fmt.Errorf("ошибка перемотки файла: %w", err)
	}

	switch {
	case bytes.HasPrefix(head, zipMagic):
		return FormatXLSX, nil
	case bytes.HasPrefix(head, oleMagic):
		return FormatXLS, nil
	default:
		return FormatCSV, nil
	}
}

// Read читает первый лист файла: заголовок и до SampleRows строк под ним.
// Ошибки разбора оборачивают ErrUnreadable.
func Read(r io.ReadSeeker) (g *Grid, err error) {
	format, err := DetectFormat(r)
	if err != nil {
		return nil, err
	}

	// Парсеры бинарных форматов паникуют на повреждённых файлах.
	defer func() {
		if p := recover(); p != nil {
			g = nil
			err = fmt.Errorf("%w: %s: %v", ErrUnreadable, format, p)
		}
	}()

	switch format {
	case FormatXLSX:
		g, err = readXLSX(r)
	case FormatXLS:
		g, err = readXLS(r)
	default:
		g, err = readCSV(r)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadable, format, err)
	}
	return g, nil
}

// InferSchema читает файл и определяет его столбцы.
func InferSchema(r io.ReadSeeker) ([]model.Column, error) {
	g, err := Read(r)
	if err != nil {
		return nil, err
	}
	return InferColumns(g), nil
}
