package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bigkaa/goartstore/sheet-module/internal/domain/model"
	"github.com/bigkaa/goartstore/sheet-module/internal/events"
	"github.com/bigkaa/goartstore/sheet-module/internal/repository"
	"github.com/bigkaa/goartstore/sheet-module/internal/storage/blobstore"
	"github.com/bigkaa/goartstore/sheet-module/internal/tabular"
)

// SchemaService — определение структуры столбцов загруженного файла.
type SchemaService struct {
	files     *FileService
	repo      repository.FileRepository
	store     blobstore.Store
	cache     *SchemaCache
	publisher events.Publisher
	logger    *slog.Logger
}

// NewSchemaService создаёт сервис определения структуры.
func NewSchemaService(
	files *FileService,
	repo repository.FileRepository,
	store blobstore.Store,
	cache *SchemaCache,
	publisher events.Publisher,
	logger *slog.Logger,
) *SchemaService {
	return &SchemaService{
		files:     files,
		repo:      repo,
		store:     store,
		cache:     cache,
		publisher: publisher,
		logger:    logger.With(slog.String("component", "schema_service")),
	}
}

// InferSchema определяет столбцы первого листа файла.
//
// Ошибки: ErrNotFound (нет записи или она чужая), *ReadError (файл
// не читается или не разбирается). При ошибке запись не меняется.
// При успехе статус записи становится analyzed.
func (s *SchemaService) InferSchema(ctx context.Context, ownerID, id string) (schema *model.Schema, err error) {
	defer func() { observeOperation("infer_schema", err) }()

	rec, err := s.files.GetFile(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	if cached, ok := s.cache.Get(rec.ID); ok {
		// Кэш действителен, только пока файл есть в хранилище
		exists, existsErr := s.store.Exists(ctx, rec.StoredName)
		if existsErr == nil && exists {
			return cached, nil
		}
		s.cache.Delete(rec.ID)
	}

	obj, err := s.store.Open(ctx, rec.StoredName)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, &ReadError{FileID: rec.ID, Err: errors.New("файл отсутствует в хранилище")}
		}
		return nil, &ReadError{FileID: rec.ID, Err: err}
	}
	defer obj.Close()

	start := time.Now()
	columns, err := tabular.InferSchema(obj)
	schemaInferenceDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.logger.Warn("Ошибка разбора файла",
			slog.String("file_id", rec.ID),
			slog.String("error", err.Error()),
		)
		return nil, &ReadError{FileID: rec.ID, Err: err}
	}

	schema = &model.Schema{Columns: columns}
	s.cache.Set(rec.ID, schema)

	if rec.Status != model.StatusAnalyzed {
		s.markAnalyzed(ctx, rec)
	}

	return schema, nil
}

// markAnalyzed переводит запись в статус analyzed.
// Ошибка сохранения статуса не отменяет результат разбора.
func (s *SchemaService) markAnalyzed(ctx context.Context, rec *model.FileRecord) {
	if err := s.repo.UpdateStatus(ctx, rec.ID, model.StatusAnalyzed); err != nil {
		s.logger.Warn("Ошибка обновления статуса файла",
			slog.String("file_id", rec.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	publish(ctx, s.publisher, s.logger, events.Event{
		Type:       events.FileAnalyzed,
		FileID:     rec.ID,
		OwnerID:    rec.OwnerID,
		StoredName: rec.StoredName,
		Status:     string(model.StatusAnalyzed),
	})
}
