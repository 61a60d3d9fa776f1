// dev-idp — провайдер идентификации для локального запуска Sheet Module.
// Генерирует RSA ключ при старте, отдаёт JWKS по GET /jwks
// и подписывает JWT по POST /token. Не для production.
package main

import (
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	port := envOrDefault("DEV_IDP_PORT", "8031")
	keySize := 2048
	if v := os.Getenv("DEV_IDP_KEY_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 2048 {
			keySize = n
		}
	}

	logger.Info("Генерация RSA ключевой пары", slog.Int("key_size", keySize))
	key, err := rsa.GenerateKey(rand.Reader, keySize)
	if err != nil {
		logger.Error("Ошибка генерации RSA ключа", slog.String("error", err.Error()))
		os.Exit(1)
	}

	p, err := newIDP(key, logger)
	if err != nil {
		logger.Error("Ошибка сериализации JWKS", slog.String("error", err.Error()))
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           p.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("dev-idp запущен",
		slog.String("addr", srv.Addr),
		slog.String("jwks_url", fmt.Sprintf("http://localhost:%s/jwks", port)),
	)
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// envOrDefault возвращает значение переменной окружения или значение по умолчанию.
func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
