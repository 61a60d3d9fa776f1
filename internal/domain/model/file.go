// Пакет model — доменные модели Sheet Module.
package model

import (
	"strings"
	"time"
)

// FileStatus — статус загруженного файла.
type FileStatus string

const (
	// StatusUploaded — файл загружен, схема ещё не определялась.
	StatusUploaded FileStatus = "uploaded"
	// StatusAnalyzed — схема файла успешно определена.
	StatusAnalyzed FileStatus = "analyzed"
)

// Valid проверяет, что статус входит в допустимый набор.
func (s FileStatus) Valid() bool {
	return s == StatusUploaded || s == StatusAnalyzed
}

// Допустимые типы содержимого (табличные форматы).
const (
	ContentKindXLS  = "application/vnd.ms-excel"
	ContentKindXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	ContentKindCSV  = "text/csv"
)

var allowedContentKinds = map[string]bool{
	ContentKindXLS:  true,
	ContentKindXLSX: true,
	ContentKindCSV:  true,
}

// NormalizeContentKind убирает параметры (charset и т.д.) и приводит
// MIME-тип к нижнему регистру.
func NormalizeContentKind(contentType string) string {
	if idx := strings.Index(contentType, ";"); idx != -1 {
		contentType = contentType[:idx]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

// IsAllowedContentKind проверяет MIME-тип по списку табличных форматов.
func IsAllowedContentKind(contentType string) bool {
	return allowedContentKinds[NormalizeContentKind(contentType)]
}

// FileRecord — метаданные одного загруженного файла.
// Все поля, кроме Status, не меняются после создания.
type FileRecord struct {
	// ID — UUID записи
	ID string `json:"id"`
	// OwnerID — идентификатор владельца (sub из JWT)
	OwnerID string `json:"ownerId"`
	// StoredName — сгенерированный ключ файла в хранилище
	StoredName string `json:"storedName"`
	// OriginalName — имя файла, переданное клиентом
	OriginalName string `json:"originalName"`
	// StoragePath — полное расположение файла (путь на диске или s3://bucket/key)
	StoragePath string `json:"storagePath"`
	// SizeBytes — размер файла в байтах
	SizeBytes int64 `json:"sizeBytes"`
	// ContentKind — нормализованный MIME-тип
	ContentKind string `json:"contentKind"`
	// Status — uploaded или analyzed
	Status FileStatus `json:"status"`
	// CreatedAt — время создания записи (UTC)
	CreatedAt time.Time `json:"createdAt"`
}
