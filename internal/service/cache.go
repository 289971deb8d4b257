// cache.go — LRU-кэш записей файлов с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sinnlosername/cpsu/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cpsu_record_cache_hits_total",
		Help: "Общее количество попаданий в кэш записей файлов.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cpsu_record_cache_misses_total",
		Help: "Общее количество промахов кэша записей файлов.",
	})
)

// RecordCache — кэш живых записей файлов по ключу поиска (name или file_name).
// Удалённые записи в кэш не попадают, при удалении запись инвалидируется.
type RecordCache struct {
	cache *expirable.LRU[string, *model.FileRecord]
}

// NewRecordCache создаёт кэш с указанным максимальным размером и TTL.
func NewRecordCache(maxSize int, ttl time.Duration) *RecordCache {
	return &RecordCache{
		cache: expirable.NewLRU[string, *model.FileRecord](maxSize, nil, ttl),
	}
}

// Get возвращает запись по ключу поиска.
func (c *RecordCache) Get(key string) (*model.FileRecord, bool) {
	val, ok := c.cache.Get(key)
	if ok {
		cacheHitsTotal.Inc()
		return val, true
	}
	cacheMissesTotal.Inc()
	return nil, false
}

// Set добавляет запись под ключом поиска.
func (c *RecordCache) Set(key string, record *model.FileRecord) {
	c.cache.Add(key, record)
}

// Invalidate удаляет все ключи, под которыми может лежать запись.
func (c *RecordCache) Invalidate(record *model.FileRecord) {
	c.cache.Remove(record.Name)
	if record.FileName != nil {
		c.cache.Remove(*record.FileName)
	}
}

// Len возвращает количество записей в кэше.
func (c *RecordCache) Len() int {
	return c.cache.Len()
}
