package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bigkaa/goartstore/sheet-module/internal/domain/access"
	"github.com/bigkaa/goartstore/sheet-module/internal/domain/model"
	"github.com/bigkaa/goartstore/sheet-module/internal/events"
	"github.com/bigkaa/goartstore/sheet-module/internal/repository"
	"github.com/bigkaa/goartstore/sheet-module/internal/storage/blobstore"
)

// FileService — чтение и удаление записей о файлах с проверкой владельца.
type FileService struct {
	repo       repository.FileRepository
	store      blobstore.Store
	guard      *access.Guard
	reconciler *Reconciler
	cache      *SchemaCache
	publisher  events.Publisher
	logger     *slog.Logger
}

// NewFileService создаёт сервис записей о файлах.
func NewFileService(
	repo repository.FileRepository,
	store blobstore.Store,
	guard *access.Guard,
	reconciler *Reconciler,
	cache *SchemaCache,
	publisher events.Publisher,
	logger *slog.Logger,
) *FileService {
	return &FileService{
		repo:       repo,
		store:      store,
		guard:      guard,
		reconciler: reconciler,
		cache:      cache,
		publisher:  publisher,
		logger:     logger.With(slog.String("component", "file_service")),
	}
}

// ListFiles возвращает живые записи владельца, новые первыми.
// Перед выборкой выполняется сверка владельца; после выборки записи
// ещё раз фильтруются по наличию файла (сверка может гоняться с удалением).
func (s *FileService) ListFiles(ctx context.Context, ownerID string) (result []*model.FileRecord, err error) {
	defer func() { observeOperation("list", err) }()

	result = []*model.FileRecord{}
	if ownerID == "" {
		return result, nil
	}

	s.reconciler.ReconcileOwner(ctx, ownerID)

	records, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка файлов: %w", err)
	}

	for _, rec := range s.guard.Filter(ownerID, records) {
		if !rec.Status.Valid() {
			continue
		}
		exists, err := s.store.Exists(ctx, rec.StoredName)
		if err != nil {
			s.logger.Warn("Запись исключена из списка: ошибка проверки файла",
				slog.String("file_id", rec.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if exists {
			result = append(result, rec)
		}
	}
	return result, nil
}

// GetFile возвращает запись, если она принадлежит ownerID.
// Отсутствующая и чужая запись неразличимы: обе дают ErrNotFound.
func (s *FileService) GetFile(ctx context.Context, ownerID, id string) (*model.FileRecord, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения записи файла: %w", err)
	}
	if err := s.guard.Authorize(ownerID, rec); err != nil {
		return nil, ErrNotFound
	}
	return rec, nil
}

// DeleteFile удаляет запись владельца и сразу освобождает файл.
// Запись удаляется первой: удалённая запись больше не появится.
// Ошибка удаления файла только логируется — файл-сироту подберёт фоновая сверка.
func (s *FileService) DeleteFile(ctx context.Context, ownerID, id string) (err error) {
	defer func() { observeOperation("delete", err) }()

	rec, err := s.GetFile(ctx, ownerID, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, rec.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка удаления записи файла: %w", err)
	}
	s.cache.Delete(rec.ID)

	blobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.store.Delete(blobCtx, rec.StoredName); err != nil {
		s.logger.Warn("Ошибка удаления файла из хранилища",
			slog.String("file_id", rec.ID),
			slog.String("stored_name", rec.StoredName),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("Файл удалён",
		slog.String("file_id", rec.ID),
		slog.String("owner_id", rec.OwnerID),
	)
	publish(ctx, s.publisher, s.logger, events.Event{
		Type:       events.FileDeleted,
		FileID:     rec.ID,
		OwnerID:    rec.OwnerID,
		StoredName: rec.StoredName,
	})
	return nil
}
