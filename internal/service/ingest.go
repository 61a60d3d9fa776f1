package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/goartstore/sheet-module/internal/domain/model"
	"github.com/bigkaa/goartstore/sheet-module/internal/events"
	"github.com/bigkaa/goartstore/sheet-module/internal/repository"
	"github.com/bigkaa/goartstore/sheet-module/internal/storage/blobstore"
)

// UploadParams — параметры загрузки файла.
type UploadParams struct {
	// OwnerID — идентификатор пользователя (sub из JWT)
	OwnerID string
	// Reader — поток данных файла
	Reader io.Reader
	// OriginalName — имя файла, переданное клиентом
	OriginalName string
	// ContentType — заявленный MIME-тип
	ContentType string
	// Size — размер из заголовка multipart-части (0 — неизвестен)
	Size int64
}

// IngestService — сервис загрузки файлов.
type IngestService struct {
	repo        repository.FileRepository
	store       blobstore.Store
	publisher   events.Publisher
	maxFileSize int64
	logger      *slog.Logger
}

// NewIngestService создаёт сервис загрузки файлов.
func NewIngestService(
	repo repository.FileRepository,
	store blobstore.Store,
	publisher events.Publisher,
	maxFileSize int64,
	logger *slog.Logger,
) *IngestService {
	return &IngestService{
		repo:        repo,
		store:       store,
		publisher:   publisher,
		maxFileSize: maxFileSize,
		logger:      logger.With(slog.String("component", "ingest_service")),
	}
}

// Upload сохраняет файл и создаёт запись о нём.
//
// Поток:
//  1. Проверка имени, MIME-типа и заявленного размера
//  2. Запись потока в хранилище с ограничением размера
//  3. Создание записи со статусом uploaded
//
// Если запись не создана, сохранённый файл удаляется.
func (s *IngestService) Upload(ctx context.Context, p UploadParams) (rec *model.FileRecord, err error) {
	defer func() { observeOperation("upload", err) }()

	if p.OwnerID == "" {
		return nil, fmt.Errorf("%w: владелец не определён", ErrValidation)
	}
	name := strings.TrimSpace(p.OriginalName)
	if name == "" {
		return nil, fmt.Errorf("%w: имя файла не задано", ErrValidation)
	}
	kind := model.NormalizeContentKind(p.ContentType)
	if !model.IsAllowedContentKind(kind) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMediaType, p.ContentType)
	}
	if p.Size > s.maxFileSize {
		return nil, fmt.Errorf("%w: %d байт при максимуме %d", ErrPayloadTooLarge, p.Size, s.maxFileSize)
	}

	key := blobstore.NewKey(name)
	saved, err := s.store.Put(ctx, key, p.Reader, blobstore.PutOptions{
		Size:        p.Size,
		ContentType: kind,
		MaxSize:     s.maxFileSize,
	})
	if err != nil {
		if errors.Is(err, blobstore.ErrTooLarge) {
			return nil, fmt.Errorf("%w: максимум %d байт", ErrPayloadTooLarge, s.maxFileSize)
		}
		return nil, fmt.Errorf("ошибка сохранения файла: %w", err)
	}

	// Cleanup при ошибке. Контекст запроса может быть уже отменён.
	rollback := func() {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if delErr := s.store.Delete(cleanupCtx, key); delErr != nil {
			s.logger.Error("Ошибка удаления файла при откате загрузки",
				slog.String("stored_name", key),
				slog.String("error", delErr.Error()),
			)
		}
	}

	rec = &model.FileRecord{
		ID:           uuid.NewString(),
		OwnerID:      p.OwnerID,
		StoredName:   key,
		OriginalName: name,
		StoragePath:  saved.Location,
		SizeBytes:    saved.Size,
		ContentKind:  kind,
		Status:       model.StatusUploaded,
		CreatedAt:    time.Now().UTC().Truncate(time.Microsecond),
	}

	if err := s.repo.Create(ctx, rec); err != nil {
		rollback()
		return nil, fmt.Errorf("ошибка создания записи файла: %w", err)
	}

	uploadBytesTotal.Add(float64(saved.Size))
	s.logger.Info("Файл загружен",
		slog.String("file_id", rec.ID),
		slog.String("owner_id", rec.OwnerID),
		slog.String("stored_name", rec.StoredName),
		slog.Int64("size", rec.SizeBytes),
		slog.String("sha256", saved.Checksum),
	)

	publish(ctx, s.publisher, s.logger, events.Event{
		Type:       events.FileUploaded,
		FileID:     rec.ID,
		OwnerID:    rec.OwnerID,
		StoredName: rec.StoredName,
		Status:     string(rec.Status),
	})

	return rec, nil
}

// publish отправляет событие. Ошибка публикации только логируется.
func publish(ctx context.Context, p events.Publisher, logger *slog.Logger, e events.Event) {
	if p == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	if err := p.Publish(ctx, e); err != nil {
		logger.Warn("Ошибка публикации события",
			slog.String("event", e.Type),
			slog.String("file_id", e.FileID),
			slog.String("error", err.Error()),
		)
	}
}
