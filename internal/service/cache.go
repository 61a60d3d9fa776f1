package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/sheet-module/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sm_schema_cache_hits_total",
		Help: "Общее количество попаданий в кэш структуры файлов.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sm_schema_cache_misses_total",
		Help: "Общее количество промахов кэша структуры файлов.",
	})
)

// SchemaCache — LRU-кэш определённой структуры файлов с TTL.
// Ключ — ID записи. Содержимое файла неизменно, поэтому запись кэша
// инвалидируется только при удалении файла.
// Нулевой размер отключает кэш; методы безопасны для nil.
type SchemaCache struct {
	cache *expirable.LRU[string, *model.Schema]
}

// NewSchemaCache создаёт кэш. maxSize <= 0 возвращает nil (кэш отключён).
func NewSchemaCache(maxSize int, ttl time.Duration) *SchemaCache {
	if maxSize <= 0 {
		return nil
	}
	return &SchemaCache{cache: expirable.NewLRU[string, *model.Schema](maxSize, nil, ttl)}
}

// Get возвращает структуру из кэша.
func (c *SchemaCache) Get(fileID string) (*model.Schema, bool) {
	if c == nil {
		return nil, false
	}
	val, ok := c.cache.Get(fileID)
	if ok {
		cacheHitsTotal.Inc()
		return val, true
	}
	cacheMissesTotal.Inc()
	return nil, false
}

// Set добавляет или обновляет запись в кэше.
func (c *SchemaCache) Set(fileID string, schema *model.Schema) {
	if c == nil {
		return
	}
	c.cache.Add(fileID, schema)
}

// Delete удаляет запись из кэша.
func (c *SchemaCache) Delete(fileID string) {
	if c == nil {
		return
	}
	c.cache.Remove(fileID)
}

// Len возвращает количество записей в кэше.
func (c *SchemaCache) Len() int {
	if c == nil {
		return 0
	}
	return c.cache.Len()
}
