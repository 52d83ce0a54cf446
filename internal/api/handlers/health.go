// health.go — обработчики health endpoints для Kubernetes (liveness, readiness).
package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/bigkaa/docstore/internal/api/openapi"
	"github.com/bigkaa/docstore/internal/config"
)

const (
	statusOK       = "ok"
	statusDegraded = "degraded"
	statusFail     = "fail"

	serviceName = "docstore"
)

// ReadinessChecker — готовность хранилища (индекс построен).
type ReadinessChecker interface {
	Ready() bool
}

// HealthHandler реализует health endpoints: /health/live, /health/ready.
type HealthHandler struct {
	version string
	// dataDir — корень хранилища
	dataDir string
	// stageDir — каталог временных файлов загрузки
	stageDir string
	// walDir — каталог журнала сохранений
	walDir string
	ready  ReadinessChecker
}

// NewHealthHandler создаёт обработчик health endpoints.
// Пустой путь каталога отключает соответствующую проверку.
func NewHealthHandler(dataDir, stageDir, walDir string, ready ReadinessChecker) *HealthHandler {
	return &HealthHandler{
		version:  config.Version,
		dataDir:  dataDir,
		stageDir: stageDir,
		walDir:   walDir,
		ready:    ready,
	}
}

// HealthLive обрабатывает GET /health/live.
// Возвращает 200, если процесс жив. Не проверяет зависимости.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, openapi.HealthStatus{
		Status:    statusOK,
		Timestamp: time.Now().UTC(),
		Version:   h.version,
		Service:   serviceName,
	})
}

// HealthReady обрабатывает GET /health/ready.
// Проверяет: запись в хранилище и во временный каталог (fail),
// запись в WAL (degraded), готовность индекса (fail).
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	overall := statusOK
	httpStatus := http.StatusOK

	checks := map[string]openapi.HealthCheck{
		"filesystem": checkWritable(h.dataDir, "Корень хранилища"),
		"staging":    checkWritable(h.stageDir, "Временный каталог"),
		"wal":        checkWritable(h.walDir, "Каталог WAL"),
	}

	if checks["filesystem"].Status != statusOK || checks["staging"].Status != statusOK {
		overall = statusFail
		httpStatus = http.StatusServiceUnavailable
	}
	if checks["wal"].Status != statusOK && overall != statusFail {
		overall = statusDegraded
	}

	if h.ready != nil {
		if h.ready.Ready() {
			checks["index"] = openapi.HealthCheck{Status: statusOK}
		} else {
			checks["index"] = openapi.HealthCheck{Status: statusFail, Message: "Индекс не построен"}
			overall = statusFail
			httpStatus = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, httpStatus, openapi.HealthStatus{
		Status:    overall,
		Timestamp: time.Now().UTC(),
		Version:   h.version,
		Service:   serviceName,
		Checks:    checks,
	})
}

// checkWritable проверяет доступность каталога на запись.
func checkWritable(dir, title string) openapi.HealthCheck {
	if dir == "" {
		return openapi.HealthCheck{Status: statusOK, Message: "Проверка не настроена"}
	}

	testFile := filepath.Join(dir, ".health_check")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return openapi.HealthCheck{
			Status:  statusFail,
			Message: title + " недоступен для записи: " + err.Error(),
		}
	}
	_ = os.Remove(testFile)

	return openapi.HealthCheck{Status: statusOK}
}
