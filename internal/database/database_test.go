package database

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bigkaa/goartstore/sheet-module/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// setupTestDB запускает PostgreSQL в Docker-контейнере через testcontainers.
func setupTestDB(t *testing.T) *config.Config {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("sheets_test"),
		postgres.WithUsername("sheets"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	return &config.Config{
		DBDriver:   config.DBDriverPostgres,
		DBHost:     host,
		DBPort:     port.Int(),
		DBName:     "sheets_test",
		DBUser:     "sheets",
		DBPassword: "test-password",
		DBSSLMode:  "disable",
	}
}

// TestConnectAndMigrate проверяет подключение, миграции и повторный запуск миграций.
func TestConnectAndMigrate(t *testing.T) {
	cfg := setupTestDB(t)
	ctx := context.Background()
	logger := testLogger()

	pool, err := Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer pool.Close()

	if err := Migrate(cfg, logger); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	// Повторный вызов — ErrNoChange не считается ошибкой
	if err := Migrate(cfg, logger); err != nil {
		t.Fatalf("повторный Migrate: %v", err)
	}

	var exists bool
	err = pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'file_records')`,
	).Scan(&exists)
	if err != nil {
		t.Fatalf("проверка таблицы: %v", err)
	}
	if !exists {
		t.Error("таблица file_records не создана")
	}

	status, msg := NewPoolReadinessChecker(pool).CheckReady()
	if status != "ok" {
		t.Errorf("CheckReady: ожидалось ok, получено %s (%s)", status, msg)
	}
}

func TestOpenSQLiteAndMigrate(t *testing.T) {
	ctx := context.Background()
	logger := testLogger()
	path := filepath.Join(t.TempDir(), "nested", "sheets.db")

	db, err := OpenSQLite(ctx, path, logger)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer db.Close()

	if err := MigrateSQLite(db, logger); err != nil {
		t.Fatalf("MigrateSQLite: %v", err)
	}
	if err := MigrateSQLite(db, logger); err != nil {
		t.Fatalf("повторный MigrateSQLite: %v", err)
	}

	var name string
	err = db.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'file_records'`,
	).Scan(&name)
	if err != nil {
		t.Fatalf("таблица file_records не найдена: %v", err)
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO file_records (id, owner_id, stored_name, original_name, storage_path, size_bytes, content_kind, status, created_at)
		 VALUES ('a', 'u', 's', 'o', 'p', 1, 'text/csv', 'broken', 0)`)
	if err == nil {
		t.Error("ожидалась ошибка CHECK для недопустимого статуса")
	}

	status, _ := NewSQLiteReadinessChecker(db).CheckReady()
	if status != "ok" {
		t.Errorf("CheckReady: ожидалось ok, получено %s", status)
	}
}

func TestReadinessChecker_Fail(t *testing.T) {
	c := NewReadinessChecker("postgresql", func(context.Context) error {
		return errors.New("connection refused")
	})

	status, msg := c.CheckReady()
	if status != "fail" {
		t.Errorf("ожидался статус fail, получено %s", status)
	}
	if msg == "" {
		t.Error("сообщение не должно быть пустым")
	}
	if c.Name() != "postgresql" {
		t.Errorf("Name: получено %s", c.Name())
	}
}
