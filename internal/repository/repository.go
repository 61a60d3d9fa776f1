// Пакет repository — слой доступа к метаданным файлов.
// Все запросы — чистый SQL (pgx для PostgreSQL, database/sql для SQLite), без ORM.
package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bigkaa/goartstore/sheet-module/internal/domain/model"
)

// Ошибки слоя репозиториев.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("запись не найдена")
	// ErrConflict — конфликт уникальности (дублирующийся ресурс).
	ErrConflict = errors.New("конфликт — запись уже существует")
)

// FileRepository — хранилище записей о файлах.
type FileRepository interface {
	// Create сохраняет новую запись. ID и CreatedAt заполняет вызывающий.
	Create(ctx context.Context, rec *model.FileRecord) error
	// GetByID возвращает запись по ID или ErrNotFound.
	GetByID(ctx context.Context, id string) (*model.FileRecord, error)
	// ListByOwner возвращает записи владельца, новые первыми.
	ListByOwner(ctx context.Context, ownerID string) ([]*model.FileRecord, error)
	// ListAll возвращает все записи (фоновая сверка).
	ListAll(ctx context.Context) ([]*model.FileRecord, error)
	// UpdateStatus меняет статус записи.
	UpdateStatus(ctx context.Context, id string, status model.FileStatus) error
	// Delete удаляет запись по ID.
	Delete(ctx context.Context, id string) error
	// StoredNames возвращает множество ключей хранилища, на которые есть записи.
	StoredNames(ctx context.Context) (map[string]struct{}, error)
}

// DBTX — интерфейс для выполнения SQL-запросов pgx.
// Реализуется как *pgxpool.Pool, так и pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const fileColumns = `id, owner_id, stored_name, original_name, storage_path, size_bytes, content_kind, status, created_at`

// isUniqueViolation проверяет, является ли ошибка нарушением уникальности PostgreSQL.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

// isInvalidText — значение не приводится к типу столбца (например, не-UUID в id).
func isInvalidText(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "22P02" // invalid_text_representation
	}
	return false
}
