// reconcile.go — сверка записей о файлах с хранилищем.
//
// Сверка владельца (перед каждым списком файлов):
//   - запись без файла в хранилище удаляется
//
// Фоновая сверка (SM_RECONCILE_INTERVAL):
//   - сверка всех владельцев
//   - удаление файлов-сирот: файл без записи старше SM_ORPHAN_GRACE_PERIOD
//   - удаление temp файлов незавершённых записей старше SM_ORPHAN_GRACE_PERIOD
//
// Ошибки по отдельным записям логируются, проход продолжается.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bigkaa/goartstore/sheet-module/internal/domain/model"
	"github.com/bigkaa/goartstore/sheet-module/internal/events"
	"github.com/bigkaa/goartstore/sheet-module/internal/repository"
	"github.com/bigkaa/goartstore/sheet-module/internal/storage/blobstore"
)

// ReconcileResult — итог сверки записей.
type ReconcileResult struct {
	// Checked — проверено записей
	Checked int
	// Removed — удалено записей без файла
	Removed int
	// Errors — ошибок по отдельным записям
	Errors int
}

func (r *ReconcileResult) add(o ReconcileResult) {
	r.Checked += o.Checked
	r.Removed += o.Removed
	r.Errors += o.Errors
}

// SweepResult — итог фоновой сверки.
type SweepResult struct {
	StartedAt   time.Time
	CompletedAt time.Time
	Owners      int
	Records     ReconcileResult
	// OrphansRemoved — удалено файлов без записи
	OrphansRemoved int
	// OrphanErrors — ошибок при удалении файлов без записи
	OrphanErrors int
	// StaleRemoved — удалено temp файлов незавершённых записей
	StaleRemoved int
}

// Reconciler — сервис сверки записей с хранилищем.
type Reconciler struct {
	repo        repository.FileRepository
	store       blobstore.Store
	cache       *SchemaCache
	publisher   events.Publisher
	interval    time.Duration
	gracePeriod time.Duration
	logger      *slog.Logger

	mu        sync.Mutex // защита от параллельного запуска фоновой сверки
	inProcess bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewReconciler создаёт сервис сверки.
func NewReconciler(
	repo repository.FileRepository,
	store blobstore.Store,
	cache *SchemaCache,
	publisher events.Publisher,
	interval time.Duration,
	gracePeriod time.Duration,
	logger *slog.Logger,
) *Reconciler {
	return &Reconciler{
		repo:        repo,
		store:       store,
		cache:       cache,
		publisher:   publisher,
		interval:    interval,
		gracePeriod: gracePeriod,
		logger:      logger.With(slog.String("component", "reconcile")),
	}
}

// ReconcileOwner удаляет записи владельца, файлы которых отсутствуют в хранилище.
// Никогда не возвращает ошибку: сбои логируются и учитываются в Errors.
func (r *Reconciler) ReconcileOwner(ctx context.Context, ownerID string) ReconcileResult {
	reconcileRunsTotal.WithLabelValues("owner").Inc()

	records, err := r.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		r.logger.Warn("Ошибка получения записей владельца для сверки",
			slog.String("owner_id", ownerID),
			slog.String("error", err.Error()),
		)
		return ReconcileResult{Errors: 1}
	}

	result := r.reconcileRecords(ctx, records)
	if result.Removed > 0 || result.Errors > 0 {
		r.logger.Info("Сверка владельца завершена",
			slog.String("owner_id", ownerID),
			slog.Int("checked", result.Checked),
			slog.Int("removed", result.Removed),
			slog.Int("errors", result.Errors),
		)
	}
	return result
}

// reconcileRecords проверяет наличие файла для каждой записи.
func (r *Reconciler) reconcileRecords(ctx context.Context, records []*model.FileRecord) ReconcileResult {
	var result ReconcileResult

	for _, rec := range records {
		if ctx.Err() != nil {
			break
		}
		result.Checked++

		exists, err := r.store.Exists(ctx, rec.StoredName)
		if err != nil {
			result.Errors++
			r.logger.Warn("Ошибка проверки наличия файла",
				slog.String("file_id", rec.ID),
				slog.String("stored_name", rec.StoredName),
				slog.String("error", err.Error()),
			)
			continue
		}
		if exists {
			continue
		}

		// Запись, уже удалённая параллельным запросом, — тоже успех
		if err := r.repo.Delete(ctx, rec.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
			result.Errors++
			r.logger.Warn("Ошибка удаления записи без файла",
				slog.String("file_id", rec.ID),
				slog.String("error", err.Error()),
			)
			continue
		}

		result.Removed++
		reconcileRemovedTotal.WithLabelValues("record").Inc()
		r.cache.Delete(rec.ID)

		r.logger.Info("Удалена запись без файла",
			slog.String("file_id", rec.ID),
			slog.String("owner_id", rec.OwnerID),
			slog.String("stored_name", rec.StoredName),
		)
		publish(ctx, r.publisher, r.logger, events.Event{
			Type:       events.FileReconciled,
			FileID:     rec.ID,
			OwnerID:    rec.OwnerID,
			StoredName: rec.StoredName,
		})
	}

	return result
}

// Start запускает фоновую горутину сверки с периодическим тикером.
// Нулевой интервал отключает фоновую сверку.
func (r *Reconciler) Start(ctx context.Context) {
	if r.interval <= 0 {
		r.logger.Info("Фоновая сверка отключена")
		return
	}

	rCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	go r.run(rCtx)

	r.logger.Info("Фоновая сверка запущена",
		slog.String("interval", r.interval.String()),
		slog.String("grace_period", r.gracePeriod.String()),
	)
}

// Stop останавливает фоновую сверку и дожидается завершения текущего прохода.
func (r *Reconciler) Stop() {
	if r.cancel == nil {
		return
	}
	if r.IsInProgress() {
		r.logger.Info("Ожидание завершения текущего прохода сверки")
	}
	r.cancel()
	<-r.done
	r.logger.Info("Фоновая сверка остановлена")
}

// IsInProgress возвращает true, если фоновая сверка выполняется.
func (r *Reconciler) IsInProgress() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inProcess
}

func (r *Reconciler) run(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce выполняет один проход фоновой сверки.
// Если проход уже выполняется, возвращает nil, true.
func (r *Reconciler) RunOnce(ctx context.Context) (*SweepResult, bool) {
	r.mu.Lock()
	if r.inProcess {
		r.mu.Unlock()
		r.logger.Warn("Сверка уже выполняется, пропуск")
		return nil, true
	}
	r.inProcess = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.inProcess = false
		r.mu.Unlock()
	}()

	reconcileRunsTotal.WithLabelValues("global").Inc()
	res := &SweepResult{StartedAt: time.Now().UTC()}

	r.sweepRecords(ctx, res)
	r.sweepOrphans(ctx, res)
	r.sweepStale(ctx, res)

	res.CompletedAt = time.Now().UTC()
	duration := res.CompletedAt.Sub(res.StartedAt)
	reconcileDurationSeconds.Observe(duration.Seconds())

	r.logger.Info("Фоновая сверка завершена",
		slog.Int("owners", res.Owners),
		slog.Int("records_checked", res.Records.Checked),
		slog.Int("records_removed", res.Records.Removed),
		slog.Int("orphans_removed", res.OrphansRemoved),
		slog.Int("stale_removed", res.StaleRemoved),
		slog.Int("errors", res.Records.Errors+res.OrphanErrors),
		slog.Int("schema_cache_size", r.cache.Len()),
		slog.Duration("duration", duration),
	)
	return res, false
}

// sweepRecords сверяет записи всех владельцев.
func (r *Reconciler) sweepRecords(ctx context.Context, res *SweepResult) {
	records, err := r.repo.ListAll(ctx)
	if err != nil {
		res.Records.Errors++
		r.logger.Error("Ошибка получения записей для сверки",
			slog.String("error", err.Error()),
		)
		return
	}

	byOwner := make(map[string][]*model.FileRecord)
	for _, rec := range records {
		byOwner[rec.OwnerID] = append(byOwner[rec.OwnerID], rec)
	}
	res.Owners = len(byOwner)

	for _, recs := range byOwner {
		res.Records.add(r.reconcileRecords(ctx, recs))
	}
}

// sweepOrphans удаляет файлы, на которые нет записей.
// Файлы моложе gracePeriod не трогаются: запись о них может создаваться прямо сейчас.
func (r *Reconciler) sweepOrphans(ctx context.Context, res *SweepResult) {
	names, err := r.repo.StoredNames(ctx)
	if err != nil {
		res.OrphanErrors++
		r.logger.Error("Ошибка получения ключей файлов для сверки",
			slog.String("error", err.Error()),
		)
		return
	}

	cutoff := time.Now().Add(-r.gracePeriod)
	var orphans []string

	err = r.store.Walk(ctx, func(info blobstore.BlobInfo) error {
		if _, ok := names[info.Key]; ok {
			return nil
		}
		if info.ModTime.After(cutoff) {
			return nil
		}
		orphans = append(orphans, info.Key)
		return nil
	})
	if err != nil {
		res.OrphanErrors++
		r.logger.Error("Ошибка обхода хранилища",
			slog.String("error", err.Error()),
		)
		return
	}

	for _, key := range orphans {
		if err := r.store.Delete(ctx, key); err != nil {
			res.OrphanErrors++
			r.logger.Warn("Ошибка удаления файла без записи",
				slog.String("stored_name", key),
				slog.String("error", err.Error()),
			)
			continue
		}
		res.OrphansRemoved++
		reconcileRemovedTotal.WithLabelValues("blob").Inc()
		r.logger.Info("Удалён файл без записи", slog.String("stored_name", key))
	}
}

// sweepStale удаляет temp файлы записей, прерванных падением процесса.
func (r *Reconciler) sweepStale(ctx context.Context, res *SweepResult) {
	removed, err := r.store.RemoveStale(ctx, time.Now().Add(-r.gracePeriod))
	res.StaleRemoved = removed
	if removed > 0 {
		reconcileRemovedTotal.WithLabelValues("stale").Add(float64(removed))
		r.logger.Info("Удалены temp файлы незавершённых записей", slog.Int("count", removed))
	}
	if err != nil {
		res.OrphanErrors++
		r.logger.Error("Ошибка удаления temp файлов",
			slog.String("error", err.Error()),
		)
	}
}
