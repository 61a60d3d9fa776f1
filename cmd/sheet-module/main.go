// Точка входа Sheet Module — сервиса загрузки табличных файлов
// и определения их структуры.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/bigkaa/goartstore/sheet-module/internal/api/handlers"
	"github.com/bigkaa/goartstore/sheet-module/internal/api/middleware"
	"github.com/bigkaa/goartstore/sheet-module/internal/config"
	"github.com/bigkaa/goartstore/sheet-module/internal/database"
	"github.com/bigkaa/goartstore/sheet-module/internal/domain/access"
	"github.com/bigkaa/goartstore/sheet-module/internal/events"
	"github.com/bigkaa/goartstore/sheet-module/internal/repository"
	"github.com/bigkaa/goartstore/sheet-module/internal/server"
	"github.com/bigkaa/goartstore/sheet-module/internal/service"
	"github.com/bigkaa/goartstore/sheet-module/internal/storage/blobstore"
)

func main() {
	// .env в рабочей директории необязателен
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	logger := config.SetupLogger(cfg)
	logger.Info("Sheet Module запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("db_driver", cfg.DBDriver),
		slog.String("blob_backend", cfg.BlobBackend),
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("Ошибка работы сервиса", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Sheet Module остановлен")
}

// run собирает компоненты, запускает сервер и блокируется до его остановки.
func run(cfg *config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	// --- 1. Хранилище метаданных ---

	meta, err := openMetadata(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer meta.close()

	// --- 2. Хранилище файлов ---

	store, err := openBlobStore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	// --- 3. События ---

	var publisher events.Publisher = events.NopPublisher{}
	checkers := []handlers.ReadinessChecker{
		meta.checker,
		database.NewReadinessChecker("blobstore", store.Check),
	}
	if cfg.NSQDAddr != "" {
		nsqPublisher, err := events.NewNSQPublisher(cfg.NSQDAddr, cfg.NSQTopic, logger)
		if err != nil {
			return fmt.Errorf("ошибка подключения к nsqd: %w", err)
		}
		publisher = nsqPublisher
		checkers = append(checkers, database.NewReadinessChecker("nsq", func(context.Context) error {
			return nsqPublisher.Ping()
		}))
		logger.Info("Публикация событий включена",
			slog.String("nsqd", cfg.NSQDAddr),
			slog.String("topic", cfg.NSQTopic),
		)
	}
	defer publisher.Close()

	// --- 4. Сервисы ---

	cache := service.NewSchemaCache(cfg.SchemaCacheSize, cfg.SchemaCacheTTL)
	reconciler := service.NewReconciler(meta.repo, store, cache, publisher,
		cfg.ReconcileInterval, cfg.OrphanGracePeriod, logger)
	files := service.NewFileService(meta.repo, store, access.NewGuard(), reconciler, cache, publisher, logger)
	ingest := service.NewIngestService(meta.repo, store, publisher, cfg.MaxFileSize, logger)
	schema := service.NewSchemaService(files, meta.repo, store, cache, publisher, logger)

	// --- 5. Фоновые процессы ---

	reconciler.Start(ctx)
	defer reconciler.Stop()

	dephealthSvc := startDephealth(ctx, cfg, meta.sqlDB, logger)
	if dephealthSvc != nil {
		defer dephealthSvc.Stop()
	}

	// --- 6. JWT ---

	jwtAuth, err := middleware.NewJWTAuth(middleware.JWTAuthConfig{
		JWKSURL:         cfg.JWKSUrl,
		CACertPath:      cfg.JWKSCACert,
		TLSSkipVerify:   cfg.TLSSkipVerify,
		ClientTimeout:   cfg.JWKSClientTimeout,
		RefreshInterval: cfg.JWKSRefreshInterval,
		JWTLeeway:       cfg.JWTLeeway,
	}, logger)
	if err != nil {
		return fmt.Errorf("ошибка настройки JWT: %w", err)
	}
	logger.Info("JWT аутентификация настроена",
		slog.String("jwks_url", cfg.JWKSUrl),
	)

	// --- 7. HTTP-сервер ---

	health := handlers.NewHealthHandler(checkers...)
	filesHandler := handlers.NewFilesHandler(ingest, files, schema, cfg.MaxFileSize, logger)

	srv := server.New(cfg, logger, health, filesHandler, jwtAuth.Middleware())
	if err := srv.Run(); err != nil {
		return err
	}

	logger.Info("Остановка фоновых процессов...")
	return nil
}

// metadata — выбранное хранилище метаданных.
type metadata struct {
	repo    repository.FileRepository
	checker *database.ReadinessChecker
	// sqlDB — *sql.DB поверх пула PostgreSQL для topologymetrics; nil для SQLite
	sqlDB *sql.DB
	close func()
}

// openMetadata применяет миграции и открывает хранилище метаданных
// по SM_DB_DRIVER.
func openMetadata(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*metadata, error) {
	switch cfg.DBDriver {
	case config.DBDriverSQLite:
		db, err := database.OpenSQLite(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		if err := database.MigrateSQLite(db, logger); err != nil {
			db.Close()
			return nil, err
		}
		return &metadata{
			repo:    repository.NewSQLiteFileRepository(db),
			checker: database.NewSQLiteReadinessChecker(db),
			close:   func() { db.Close() },
		}, nil

	default:
		if err := database.Migrate(cfg, logger); err != nil {
			return nil, err
		}
		pool, err := database.Connect(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		sqlDB := stdlib.OpenDBFromPool(pool)
		return &metadata{
			repo:    repository.NewPostgresFileRepository(pool),
			checker: database.NewPoolReadinessChecker(pool),
			sqlDB:   sqlDB,
			close: func() {
				sqlDB.Close()
				pool.Close()
			},
		}, nil
	}
}

// openBlobStore создаёт хранилище файлов по SM_BLOB_BACKEND.
func openBlobStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (blobstore.Store, error) {
	if cfg.BlobBackend == config.BlobBackendS3 {
		store, err := blobstore.NewS3Store(ctx, blobstore.S3Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			UseSSL:    cfg.S3UseSSL,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("Хранилище файлов готово",
			slog.String("backend", cfg.BlobBackend),
			slog.String("bucket", cfg.S3Bucket),
		)
		return store, nil
	}

	store, err := blobstore.NewFSStore(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	logger.Info("Хранилище файлов готово",
		slog.String("backend", cfg.BlobBackend),
		slog.String("data_dir", store.DataDir()),
	)
	return store, nil
}

// startDephealth запускает мониторинг зависимостей.
// Ошибка не мешает старту сервиса: без мониторинга он работает штатно.
func startDephealth(ctx context.Context, cfg *config.Config, db *sql.DB, logger *slog.Logger) *service.DephealthService {
	serviceID := cfg.DephealthName
	if serviceID == "" {
		serviceID = "sheet-module"
	}

	svc, err := service.NewDephealthService(service.DephealthParams{
		ServiceID:     serviceID,
		Group:         cfg.DephealthGroup,
		DB:            db,
		PGConnURL:     cfg.DatabaseDSN(),
		JWKSURL:       cfg.JWKSUrl,
		TLSSkipVerify: cfg.TLSSkipVerify,
		CheckInterval: cfg.DephealthCheckInterval,
	}, logger)
	if err != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", err.Error()),
		)
		return nil
	}

	if err := svc.Start(ctx); err != nil {
		logger.Warn("Ошибка запуска topologymetrics",
			slog.String("error", err.Error()),
		)
		return nil
	}
	logger.Info("topologymetrics запущен",
		slog.String("jwks_url", cfg.JWKSUrl),
		slog.String("check_interval", cfg.DephealthCheckInterval.String()),
	)
	return svc
}
