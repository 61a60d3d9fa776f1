package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/bigkaa/goartstore/sheet-module/internal/domain/model"
)

// sqliteFileRepo — реализация FileRepository для встроенного SQLite.
// created_at хранится в микросекундах Unix.
type sqliteFileRepo struct {
	db *sql.DB
}

// NewSQLiteFileRepository создаёт репозиторий записей файлов на SQLite.
func NewSQLiteFileRepository(db *sql.DB) FileRepository {
	return &sqliteFileRepo{db: db}
}

func (r *sqliteFileRepo) Create(ctx context.Context, rec *model.FileRecord) error {
	query := fmt.Sprintf(`INSERT INTO file_records (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, fileColumns)

	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.OwnerID, rec.StoredName, rec.OriginalName, rec.StoragePath,
		rec.SizeBytes, rec.ContentKind, string(rec.Status), rec.CreatedAt.UnixMicro(),
	)
	if err != nil {
		if isSQLiteConstraint(err) {
			return ErrConflict
		}
		return fmt.Errorf("ошибка создания записи файла: %w", err)
	}
	return nil
}

func (r *sqliteFileRepo) GetByID(ctx context.Context, id string) (*model.FileRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM file_records WHERE id = ?`, fileColumns)

	rec, err := scanSQLiteRecord(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения записи файла: %w", err)
	}
	return rec, nil
}

func (r *sqliteFileRepo) ListByOwner(ctx context.Context, ownerID string) ([]*model.FileRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM file_records
		WHERE owner_id = ?
		ORDER BY created_at DESC, id DESC`, fileColumns)

	return r.list(ctx, query, ownerID)
}

func (r *sqliteFileRepo) ListAll(ctx context.Context) ([]*model.FileRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM file_records ORDER BY created_at`, fileColumns)
	return r.list(ctx, query)
}

func (r *sqliteFileRepo) list(ctx context.Context, query string, args ...any) ([]*model.FileRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка файлов: %w", err)
	}
	defer rows.Close()

	result := []*model.FileRecord{}
	for rows.Next() {
		rec, err := scanSQLiteRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи файла: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (r *sqliteFileRepo) UpdateStatus(ctx context.Context, id string, status model.FileStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE file_records SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("ошибка обновления статуса файла: %w", err)
	}
	return requireAffected(res)
}

func (r *sqliteFileRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM file_records WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления записи файла: %w", err)
	}
	return requireAffected(res)
}

func (r *sqliteFileRepo) StoredNames(ctx context.Context) (map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT stored_name FROM file_records`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения ключей файлов: %w", err)
	}
	defer rows.Close()

	names := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("ошибка сканирования ключа файла: %w", err)
		}
		names[name] = struct{}{}
	}
	return names, rows.Err()
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("ошибка получения числа изменённых строк: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// rowScanner — общий интерфейс *sql.Row и *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRecord(row rowScanner) (*model.FileRecord, error) {
	rec := &model.FileRecord{}
	var (
		status    string
		createdAt int64
	)
	err := row.Scan(
		&rec.ID, &rec.OwnerID, &rec.StoredName, &rec.OriginalName, &rec.StoragePath,
		&rec.SizeBytes, &rec.ContentKind, &status, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Status = model.FileStatus(status)
	rec.CreatedAt = time.UnixMicro(createdAt).UTC()
	return rec, nil
}

// isSQLiteConstraint — нарушение UNIQUE или PRIMARY KEY.
func isSQLiteConstraint(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}
