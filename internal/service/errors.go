// Пакет service — бизнес-логика Sheet Module: загрузка, сверка,
// чтение и удаление записей, определение структуры таблиц.
package service

import (
	"errors"
	"fmt"
)

// Ошибки сервисного слоя. Специализации ErrValidation оборачивают её,
// поэтому errors.Is(err, ErrValidation) истинно для всех четырёх.
var (
	// ErrNotFound — запись отсутствует или принадлежит другому пользователю.
	ErrNotFound = errors.New("файл не найден")
	// ErrValidation — некорректный запрос.
	ErrValidation = errors.New("некорректный запрос")
	// ErrUnsupportedMediaType — тип файла не входит в список табличных форматов.
	ErrUnsupportedMediaType = fmt.Errorf("%w: недопустимый тип файла", ErrValidation)
	// ErrPayloadTooLarge — размер файла превышает лимит.
	ErrPayloadTooLarge = fmt.Errorf("%w: размер файла превышает лимит", ErrValidation)
	// ErrMultipleFilesNotAllowed — в запросе больше одного файла.
	ErrMultipleFilesNotAllowed = fmt.Errorf("%w: допускается только один файл", ErrValidation)
	// ErrMissingFile — в запросе нет файла.
	ErrMissingFile = fmt.Errorf("%w: файл не передан", ErrValidation)
)

// ReadError — файл не удалось прочитать или разобрать как таблицу.
// Текст ошибки отдаётся клиенту.
type ReadError struct {
	FileID string
	Err    error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("ошибка чтения файла %s: %v", e.FileID, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}
