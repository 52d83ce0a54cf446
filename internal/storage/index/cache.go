package index

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus-метрики кэша разрешения ссылок.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ds_resolve_cache_hits_total",
		Help: "Общее количество попаданий в кэш разрешения ссылок.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ds_resolve_cache_misses_total",
		Help: "Общее количество промахов кэша разрешения ссылок.",
	})
)

// Cache — LRU-кэш «ссылка → путь к sidecar» с TTL.
// Используется в режиме scan, чтобы повторные запросы одной ссылки
// не приводили к полному обходу хранилища. Записи неизменяемы,
// поэтому путь из кэша остаётся верным, пока файл не удалён вручную;
// вызывающий код проверяет существование и удаляет устаревшие записи.
type Cache struct {
	lru *expirable.LRU[string, string]
}

// NewCache создаёт кэш с максимальным размером maxSize и временем жизни ttl.
func NewCache(maxSize int, ttl time.Duration) *Cache {
	return &Cache{lru: expirable.NewLRU[string, string](maxSize, nil, ttl)}
}

// Get возвращает путь к sidecar по ссылке.
func (c *Cache) Get(ref string) (string, bool) {
	path, ok := c.lru.Get(ref)
	if ok {
		cacheHitsTotal.Inc()
		return path, true
	}
	cacheMissesTotal.Inc()
	return "", false
}

// Set добавляет или обновляет запись.
func (c *Cache) Set(ref, metaPath string) {
	c.lru.Add(ref, metaPath)
}

// Delete удаляет запись (инвалидация устаревшего пути).
func (c *Cache) Delete(ref string) {
	c.lru.Remove(ref)
}

// Len возвращает количество записей в кэше.
func (c *Cache) Len() int {
	return c.lru.Len()
}

// Purge очищает кэш целиком.
func (c *Cache) Purge() {
	c.lru.Purge()
}
