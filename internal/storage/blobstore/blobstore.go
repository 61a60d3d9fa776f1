// Пакет blobstore — хранилище содержимого загруженных файлов.
// Файлы адресуются сгенерированным ключом (storedName).
// Реализации: локальная файловая система (FSStore) и S3-совместимое
// объектное хранилище (S3Store).
package blobstore

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrNotFound — файл с указанным ключом отсутствует.
	ErrNotFound = errors.New("файл не найден в хранилище")
	// ErrTooLarge — поток данных превысил допустимый размер.
	ErrTooLarge = errors.New("размер файла превышает допустимый лимит")
	// ErrInvalidKey — ключ не может использоваться как имя файла.
	ErrInvalidKey = errors.New("недопустимый ключ файла")
)

// PutOptions — параметры записи файла.
type PutOptions struct {
	// Size — заявленный размер (-1 или 0, если неизвестен)
	Size int64
	// ContentType — MIME-тип содержимого
	ContentType string
	// MaxSize — предельный размер потока; при превышении запись
	// прерывается с ErrTooLarge, частичные данные удаляются (0 — без лимита)
	MaxSize int64
}

// PutResult — результат записи файла.
type PutResult struct {
	// Key — ключ файла в хранилище
	Key string
	// Location — полное расположение (путь на диске или s3://bucket/key)
	Location string
	// Size — количество записанных байт
	Size int64
	// Checksum — SHA-256 содержимого (hex)
	Checksum string
}

// BlobInfo — сведения о файле при обходе хранилища.
type BlobInfo struct {
	Key     string
	Size    int64
	ModTime time.Time
}

// Object — открытый для чтения файл. Табличным парсерам нужен
// произвольный доступ, поэтому помимо Read требуется Seek и ReadAt.
type Object interface {
	io.Reader
	io.ReaderAt
	io.Seeker
	io.Closer
}

// Store — хранилище файлов.
type Store interface {
	// Put записывает поток под ключом key. При любой ошибке частично
	// записанные данные удаляются.
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (*PutResult, error)
	// Open открывает файл для чтения. ErrNotFound, если файла нет.
	Open(ctx context.Context, key string) (Object, error)
	// Exists проверяет наличие файла. Ошибка — только при сбое хранилища.
	Exists(ctx context.Context, key string) (bool, error)
	// Delete удаляет файл. Отсутствие файла ошибкой не считается.
	Delete(ctx context.Context, key string) error
	// Location возвращает полное расположение файла с ключом key.
	Location(key string) string
	// Walk вызывает fn для каждого сохранённого файла.
	Walk(ctx context.Context, fn func(BlobInfo) error) error
	// RemoveStale удаляет следы незавершённых записей, начатых раньше
	// cutoff. Возвращает число удалённых.
	RemoveStale(ctx context.Context, cutoff time.Time) (int, error)
	// Check проверяет доступность хранилища (readiness).
	Check(ctx context.Context) error
}

// capReader ограничивает поток: после max байт чтение завершается ErrTooLarge.
type capReader struct {
	r         io.Reader
	remaining int64
}

func newCapReader(r io.Reader, max int64) io.Reader {
	if max <= 0 {
		return r
	}
	return &capReader{r: r, remaining: max}
}

func (c *capReader) Read(p []byte) (int, error) {
	if c.remaining < 0 {
		return 0, ErrTooLarge
	}
	// Читаем не больше remaining+1 байт: одного лишнего байта достаточно,
	// чтобы обнаружить превышение.
	if int64(len(p)) > c.remaining+1 {
		p = p[:c.remaining+1]
	}
	n, err := c.r.Read(p)
	c.remaining -= int64(n)
	if c.remaining < 0 {
		return n, ErrTooLarge
	}
	return n, err
}

// contextReader прерывает чтение при отмене контекста (клиент оборвал загрузку).
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// uploadReader собирает цепочку: отмена контекста → лимит размера.
func uploadReader(ctx context.Context, r io.Reader, max int64) io.Reader {
	return newCapReader(&contextReader{ctx: ctx, r: r}, max)
}
