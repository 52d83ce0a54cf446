// metrics.go — Prometheus HTTP метрики сервиса документов.
// Регистрирует метрики: ds_http_requests_total, ds_http_request_duration_seconds.
// Метрики хранилища (ds_documents_total, ds_store_operations_total и др.)
// регистрируются в пакете store.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ds_http_requests_total",
			Help: "Общее количество HTTP-запросов",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ds_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// rateLimitedTotal — количество отклонённых лимитером запросов.
	rateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ds_http_rate_limited_total",
			Help: "Количество запросов, отклонённых ограничителем частоты",
		},
		[]string{"scope"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Записывает количество запросов и длительность для каждого endpoint.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Ссылки на документы заменяются на {reference},
			// иначе кардинальность лейбла path неограничена
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
		})
	}
}

// referencePrefixes — маршруты с параметром {reference}.
var referencePrefixes = []string{"/view/", "/download/", "/api/v1/files/"}

// knownPaths — маршруты без параметров.
var knownPaths = map[string]bool{
	"/upload":                       true,
	"/health/live":                  true,
	"/health/ready":                 true,
	"/metrics":                      true,
	"/openapi.yaml":                 true,
	"/api/v1/info":                  true,
	"/api/v1/maintenance/reconcile": true,
}

// normalizePath приводит путь запроса к шаблону маршрута.
// /view/3f2a... → /view/{reference}; неизвестные пути → "other".
func normalizePath(path string) string {
	if knownPaths[path] {
		return path
	}
	for _, prefix := range referencePrefixes {
		if rest, ok := strings.CutPrefix(path, prefix); ok && rest != "" && !strings.Contains(rest, "/") {
			return prefix + "{reference}"
		}
	}
	return "other"
}
