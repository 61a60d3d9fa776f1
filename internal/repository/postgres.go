package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goartstore/sheet-module/internal/domain/model"
)

// pgFileRepo — реализация FileRepository для PostgreSQL.
type pgFileRepo struct {
	db DBTX
}

// NewPostgresFileRepository создаёт репозиторий записей файлов на PostgreSQL.
func NewPostgresFileRepository(db DBTX) FileRepository {
	return &pgFileRepo{db: db}
}

func (r *pgFileRepo) Create(ctx context.Context, rec *model.FileRecord) error {
	query := fmt.Sprintf(`INSERT INTO file_records (%s) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`, fileColumns)

	_, err := r.db.Exec(ctx, query,
		rec.ID, rec.OwnerID, rec.StoredName, rec.OriginalName, rec.StoragePath,
		rec.SizeBytes, rec.ContentKind, string(rec.Status), rec.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("ошибка создания записи файла: %w", err)
	}
	return nil
}

func (r *pgFileRepo) GetByID(ctx context.Context, id string) (*model.FileRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM file_records WHERE id = $1`, fileColumns)

	rec, err := scanPgRecord(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidText(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения записи файла: %w", err)
	}
	return rec, nil
}

func (r *pgFileRepo) ListByOwner(ctx context.Context, ownerID string) ([]*model.FileRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM file_records
		WHERE owner_id = $1
		ORDER BY created_at DESC, id DESC`, fileColumns)

	return r.list(ctx, query, ownerID)
}

func (r *pgFileRepo) ListAll(ctx context.Context) ([]*model.FileRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM file_records ORDER BY created_at`, fileColumns)
	return r.list(ctx, query)
}

func (r *pgFileRepo) list(ctx context.Context, query string, args ...any) ([]*model.FileRecord, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка файлов: %w", err)
	}
	defer rows.Close()

	result := []*model.FileRecord{}
	for rows.Next() {
		rec, err := scanPgRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи файла: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (r *pgFileRepo) UpdateStatus(ctx context.Context, id string, status model.FileStatus) error {
	tag, err := r.db.Exec(ctx, `UPDATE file_records SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		if isInvalidText(err) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка обновления статуса файла: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgFileRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM file_records WHERE id = $1`, id)
	if err != nil {
		if isInvalidText(err) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка удаления записи файла: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgFileRepo) StoredNames(ctx context.Context) (map[string]struct{}, error) {
	rows, err := r.db.Query(ctx, `SELECT stored_name FROM file_records`)
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

// scanPgRecord сканирует строку в FileRecord.
func scanPgRecord(row pgx.Row) (*model.FileRecord, error) {
	rec := &model.FileRecord{}
	var status string
	err := row.Scan(
		&rec.ID, &rec.OwnerID, &rec.StoredName, &rec.OriginalName, &rec.StoragePath,
		&rec.SizeBytes, &rec.ContentKind, &status, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Status = model.FileStatus(status)
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, nil
}
