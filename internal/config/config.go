// Пакет config — загрузка и валидация конфигурации Sheet Module
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Бэкенды хранилища файлов.
const (
	BlobBackendFS = "fs"
	BlobBackendS3 = "s3"
)

// Драйверы хранилища метаданных.
const (
	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

// Config содержит все параметры конфигурации Sheet Module.
// Создаётся один раз при старте и передаётся в конструкторы компонентов.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера (по умолчанию 8030)
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Путь к TLS сертификату (опционально)
	TLSCert string
	// Путь к TLS приватному ключу (опционально)
	TLSKey string
	// Таймауты HTTP-сервера
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	// Таймаут graceful shutdown
	ShutdownTimeout time.Duration

	// --- Загрузка файлов ---

	// Максимальный размер загружаемого файла в байтах (по умолчанию 50 MiB)
	MaxFileSize int64

	// --- Хранилище файлов ---

	// Бэкенд хранилища: fs или s3
	BlobBackend string
	// Корневая директория хранения файлов (fs)
	DataDir string
	// Параметры S3-совместимого хранилища (s3)
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3UseSSL    bool

	// --- Хранилище метаданных ---

	// Драйвер: postgres или sqlite
	DBDriver   string
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string
	// Путь к файлу SQLite (sqlite)
	SQLitePath string

	// --- JWT / JWKS ---

	// URL JWKS endpoint провайдера идентификации
	JWKSUrl string
	// Путь к CA-сертификату для JWKS endpoint (опционально)
	JWKSCACert string
	// Пропускать проверку TLS-сертификата JWKS endpoint
	TLSSkipVerify bool
	// Таймаут HTTP-клиента JWKS
	JWKSClientTimeout time.Duration
	// Интервал обновления ключей JWKS
	JWKSRefreshInterval time.Duration
	// Допустимое отклонение часов при проверке exp/nbf
	JWTLeeway time.Duration

	// --- Сверка ---

	// Интервал фоновой сверки (0 — отключена)
	ReconcileInterval time.Duration
	// Минимальный возраст файла без записи, после которого он удаляется
	OrphanGracePeriod time.Duration

	// --- Кэш схем ---

	SchemaCacheSize int
	SchemaCacheTTL  time.Duration

	// --- События ---

	// Адрес nsqd (пусто — события не публикуются)
	NSQDAddr string
	// Топик событий жизненного цикла файлов
	NSQTopic string

	// --- topologymetrics ---

	DephealthCheckInterval time.Duration
	DephealthGroup         string
	// Имя владельца пода для метки name (DEPHEALTH_NAME)
	DephealthName string
}

// Load загружает конфигурацию из переменных окружения.
// Возвращает ошибку, если обязательные переменные не заданы
// или значения некорректны.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// SM_PORT — порт HTTP-сервера (по умолчанию 8030)
	cfg.Port, err = getEnvInt("SM_PORT", 8030)
	if err != nil {
		return nil, fmt.Errorf("SM_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("SM_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// SM_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("SM_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("SM_LOG_LEVEL: %w", err)
	}

	// SM_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("SM_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("SM_LOG_FORMAT: недопустимый формат %q, допустимые: json, text", cfg.LogFormat)
	}

	// SM_TLS_CERT / SM_TLS_KEY — задаются парой
	cfg.TLSCert = getEnvDefault("SM_TLS_CERT", "")
	cfg.TLSKey = getEnvDefault("SM_TLS_KEY", "")
	if (cfg.TLSCert == "") != (cfg.TLSKey == "") {
		return nil, fmt.Errorf("SM_TLS_CERT и SM_TLS_KEY должны задаваться вместе")
	}

	if cfg.HTTPReadTimeout, err = getEnvDuration("SM_HTTP_READ_TIMEOUT", 60*time.Second); err != nil {
		return nil, fmt.Errorf("SM_HTTP_READ_TIMEOUT: %w", err)
	}
	if cfg.HTTPWriteTimeout, err = getEnvDuration("SM_HTTP_WRITE_TIMEOUT", 60*time.Second); err != nil {
		return nil, fmt.Errorf("SM_HTTP_WRITE_TIMEOUT: %w", err)
	}
	if cfg.HTTPIdleTimeout, err = getEnvDuration("SM_HTTP_IDLE_TIMEOUT", 120*time.Second); err != nil {
		return nil, fmt.Errorf("SM_HTTP_IDLE_TIMEOUT: %w", err)
	}
	if cfg.ShutdownTimeout, err = getEnvDuration("SM_SHUTDOWN_TIMEOUT", 30*time.Second); err != nil {
		return nil, fmt.Errorf("SM_SHUTDOWN_TIMEOUT: %w", err)
	}

	// SM_MAX_FILE_SIZE — максимальный размер файла (по умолчанию 50 MiB)
	cfg.MaxFileSize, err = getEnvInt64("SM_MAX_FILE_SIZE", 50*1024*1024)
	if err != nil {
		return nil, fmt.Errorf("SM_MAX_FILE_SIZE: %w", err)
	}
	if cfg.MaxFileSize <= 0 {
		return nil, fmt.Errorf("SM_MAX_FILE_SIZE: значение должно быть положительным")
	}

	if err := loadBlobConfig(cfg); err != nil {
		return nil, err
	}
	if err := loadDBConfig(cfg); err != nil {
		return nil, err
	}
	if err := loadAuthConfig(cfg); err != nil {
		return nil, err
	}

	// SM_RECONCILE_INTERVAL — интервал фоновой сверки (по умолчанию 1h)
	cfg.ReconcileInterval, err = getEnvDuration("SM_RECONCILE_INTERVAL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("SM_RECONCILE_INTERVAL: %w", err)
	}
	if cfg.ReconcileInterval < 0 {
		return nil, fmt.Errorf("SM_RECONCILE_INTERVAL: значение не может быть отрицательным")
	}

	// SM_ORPHAN_GRACE_PERIOD — защита загрузок «в полёте» от удаления сверкой
	cfg.OrphanGracePeriod, err = getEnvDuration("SM_ORPHAN_GRACE_PERIOD", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("SM_ORPHAN_GRACE_PERIOD: %w", err)
	}

	cfg.SchemaCacheSize, err = getEnvInt("SM_SCHEMA_CACHE_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("SM_SCHEMA_CACHE_SIZE: %w", err)
	}
	if cfg.SchemaCacheSize <= 0 {
		return nil, fmt.Errorf("SM_SCHEMA_CACHE_SIZE: значение должно быть положительным")
	}
	cfg.SchemaCacheTTL, err = getEnvDuration("SM_SCHEMA_CACHE_TTL", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("SM_SCHEMA_CACHE_TTL: %w", err)
	}

	cfg.NSQDAddr = getEnvDefault("SM_NSQD_ADDR", "")
	cfg.NSQTopic = getEnvDefault("SM_NSQ_TOPIC", "sheet-files")

	cfg.DephealthCheckInterval, err = getEnvDuration("SM_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SM_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}
	cfg.DephealthGroup = getEnvDefault("SM_DEPHEALTH_GROUP", "sheet-module")
	cfg.DephealthName = getEnvDefault("DEPHEALTH_NAME", "")

	return cfg, nil
}

// loadBlobConfig читает параметры хранилища файлов.
func loadBlobConfig(cfg *Config) error {
	var err error

	cfg.BlobBackend = getEnvDefault("SM_BLOB_BACKEND", BlobBackendFS)
	switch cfg.BlobBackend {
	case BlobBackendFS:
		cfg.DataDir, err = getEnvRequired("SM_DATA_DIR")
		if err != nil {
			return err
		}
	case BlobBackendS3:
		for key, dst := range map[string]*string{
			"SM_S3_ENDPOINT":   &cfg.S3Endpoint,
			"SM_S3_ACCESS_KEY": &cfg.S3AccessKey,
			"SM_S3_SECRET_KEY": &cfg.S3SecretKey,
			"SM_S3_BUCKET":     &cfg.S3Bucket,
		} {
			if *dst, err = getEnvRequired(key); err != nil {
				return err
			}
		}
		if cfg.S3UseSSL, err = getEnvBool("SM_S3_USE_SSL", false); err != nil {
			return fmt.Errorf("SM_S3_USE_SSL: %w", err)
		}
	default:
		return fmt.Errorf("SM_BLOB_BACKEND: недопустимое значение %q, допустимые: fs, s3", cfg.BlobBackend)
	}
	return nil
}

// loadDBConfig читает параметры хранилища метаданных.
func loadDBConfig(cfg *Config) error {
	var err error

	cfg.DBDriver = getEnvDefault("SM_DB_DRIVER", DBDriverPostgres)
	switch cfg.DBDriver {
	case DBDriverPostgres:
		cfg.DBHost = getEnvDefault("SM_DB_HOST", "localhost")
		if cfg.DBPort, err = getEnvInt("SM_DB_PORT", 5432); err != nil {
			return fmt.Errorf("SM_DB_PORT: %w", err)
		}
		cfg.DBName = getEnvDefault("SM_DB_NAME", "sheets")
		cfg.DBUser = getEnvDefault("SM_DB_USER", "sheets")
		if cfg.DBPassword, err = getEnvRequired("SM_DB_PASSWORD"); err != nil {
			return err
		}
		cfg.DBSSLMode = getEnvDefault("SM_DB_SSL_MODE", "disable")
	case DBDriverSQLite:
		cfg.SQLitePath = getEnvDefault("SM_SQLITE_PATH", "sheet-module.db")
	default:
		return fmt.Errorf("SM_DB_DRIVER: недопустимое значение %q, допустимые: postgres, sqlite", cfg.DBDriver)
	}
	return nil
}

// loadAuthConfig читает параметры проверки JWT.
func loadAuthConfig(cfg *Config) error {
	var err error

	if cfg.JWKSUrl, err = getEnvRequired("SM_JWKS_URL"); err != nil {
		return err
	}
	cfg.JWKSCACert = getEnvDefault("SM_JWKS_CA_CERT", "")
	if cfg.TLSSkipVerify, err = getEnvBool("SM_TLS_SKIP_VERIFY", false); err != nil {
		return fmt.Errorf("SM_TLS_SKIP_VERIFY: %w", err)
	}
	if cfg.JWKSClientTimeout, err = getEnvDuration("SM_JWKS_CLIENT_TIMEOUT", 5*time.Second); err != nil {
		return fmt.Errorf("SM_JWKS_CLIENT_TIMEOUT: %w", err)
	}
	if cfg.JWKSRefreshInterval, err = getEnvDuration("SM_JWKS_REFRESH_INTERVAL", 15*time.Second); err != nil {
		return fmt.Errorf("SM_JWKS_REFRESH_INTERVAL: %w", err)
	}
	if cfg.JWTLeeway, err = getEnvDuration("SM_JWT_LEEWAY", 5*time.Second); err != nil {
		return fmt.Errorf("SM_JWT_LEEWAY: %w", err)
	}
	return nil
}

// DatabaseDSN возвращает DSN для подключения pgxpool.
func (c *Config) DatabaseDSN() string {
	return c.postgresURL("postgres")
}

// MigrateURL возвращает URL для golang-migrate (драйвер pgx5).
func (c *Config) MigrateURL() string {
	return c.postgresURL("pgx5")
}

func (c *Config) postgresURL(scheme string) string {
	u := url.URL{
		Scheme:   scheme,
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     net.JoinHostPort(c.DBHost, strconv.Itoa(c.DBPort)),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.DBSSLMode),
	}
	return u.String()
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q (допустимые: true, false, 1, 0)", val)
	}
	return b, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
