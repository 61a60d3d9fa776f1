package blobstore

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// NewKey генерирует уникальный ключ файла для хранения.
// Формат: {timestamp}_{uuid12}_{name}{ext}
// Пример: 20260221T150405123_a1b2c3d4e5f6_sales-q1.xlsx
//
// Уникальность обеспечивает случайная часть UUID; метка времени
// сохраняет хронологический порядок ключей при листинге хранилища.
func NewKey(originalName string) string {
	base := filepath.Base(strings.ReplaceAll(originalName, `\`, "/"))
	ext := sanitizeExt(filepath.Ext(base))
	name := sanitize(strings.TrimSuffix(base, filepath.Ext(base)))

	// Ограничиваем длину имени для предотвращения проблем с FS
	if r := []rune(name); len(r) > 50 {
		name = string(r[:50])
	}

	now := time.Now().UTC()
	ts := fmt.Sprintf("%s%03d", now.Format("20060102T150405"), now.Nanosecond()/int(time.Millisecond))
	uid := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]

	return fmt.Sprintf("%s_%s_%s%s", ts, uid, name, ext)
}

// sanitize убирает небезопасные символы из строки для использования в имени файла.
// Оставляет только буквы, цифры, дефис и подчёркивание.
func sanitize(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			result.WriteRune(r)
		}
	}
	if result.Len() == 0 {
		return "file"
	}
	return result.String()
}

// sanitizeExt оставляет в расширении только латиницу и цифры.
// Расширение временных файлов отбрасывается: такой ключ validateKey не примет.
func sanitizeExt(ext string) string {
	var result strings.Builder
	for _, r := range strings.TrimPrefix(ext, ".") {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			result.WriteRune(unicode.ToLower(r))
		}
	}
	if result.Len() == 0 || result.Len() > 10 {
		return ""
	}
	clean := "." + result.String()
	if clean == tmpSuffix {
		return ""
	}
	return clean
}

// validateKey проверяет, что ключ — простое имя файла без разделителей пути.
func validateKey(key string) error {
	if key == "" || key == "." || key == ".." ||
		strings.HasPrefix(key, ".") ||
		strings.ContainsAny(key, `/\`) ||
		strings.HasSuffix(key, tmpSuffix) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}
