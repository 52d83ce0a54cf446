// gc.go — сервис фоновой очистки (Garbage Collection).
//
// GC выполняет три задачи:
//  1. Завершает брошенные сохранения из журнала (store.Recover)
//  2. Удаляет брошенные временные файлы загрузки старше DS_STAGING_MAX_AGE
//     (запрос прерван до передачи файла в хранилище)
//  3. Удаляет завершённые записи журнала сохранений
//
// Документы GC не трогает: записи хранятся бессрочно.
// Запускается как горутина с периодическим тикером (DS_GC_INTERVAL).
package service

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/docstore/internal/storage/blobstore"
	"github.com/bigkaa/docstore/internal/storage/wal"
	"github.com/bigkaa/docstore/internal/store"
)

// Prometheus метрики GC
var (
	// gcRunsTotal — количество запусков GC.
	gcRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ds_gc_runs_total",
		Help: "Общее количество запусков GC",
	})

	// gcRecoveredTotal — количество завершённых брошенных сохранений.
	gcRecoveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ds_gc_recovered_total",
		Help: "Общее количество брошенных сохранений, завершённых или откаченных GC",
	})

	// gcStagedRemovedTotal — количество удалённых временных файлов.
	gcStagedRemovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ds_gc_staged_removed_total",
		Help: "Общее количество брошенных временных файлов, удалённых GC",
	})

	// gcWALCleanedTotal — количество удалённых записей журнала.
	gcWALCleanedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ds_gc_wal_cleaned_total",
		Help: "Общее количество завершённых WAL-записей, удалённых GC",
	})

	// gcDurationSeconds — длительность выполнения GC.
	gcDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ds_gc_duration_seconds",
		Help:    "Длительность выполнения GC в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

// GCResult — результат одного запуска GC.
type GCResult struct {
	// Recovered — количество завершённых брошенных сохранений
	Recovered int
	// StagedRemoved — количество удалённых временных файлов
	StagedRemoved int
	// WALCleaned — количество удалённых записей журнала
	WALCleaned int
	// Errors — количество ошибок при обработке
	Errors int
	// Duration — длительность выполнения
	Duration time.Duration
}

// LeaseHolder сообщает, удерживает ли процесс аренду обслуживания
// хранилища (см. пакет lease).
type LeaseHolder interface {
	Held() bool
}

// GCService — сервис фоновой очистки.
type GCService struct {
	store    *store.Store
	blobs    *blobstore.BlobStore
	journal  *wal.WAL
	interval time.Duration
	maxAge   time.Duration
	logger   *slog.Logger

	lease  LeaseHolder // nil = плановые запуски без аренды
	mu     sync.Mutex  // защита от параллельного запуска RunOnce
	cancel context.CancelFunc
	done   chan struct{}
}

// NewGCService создаёт сервис GC.
func NewGCService(
	st *store.Store,
	interval, maxAge time.Duration,
	logger *slog.Logger,
) *GCService {
	return &GCService{
		store:    st,
		blobs:    st.Blobs(),
		journal:  st.WAL(),
		interval: interval,
		maxAge:   maxAge,
		logger:   logger.With(slog.String("component", "gc")),
	}
}

// Start запускает фоновую горутину GC с периодическим тикером.
// Вызывается один раз при старте приложения.
func (gc *GCService) Start(ctx context.Context) {
	gcCtx, cancel := context.WithCancel(ctx)
	gc.cancel = cancel
	gc.done = make(chan struct{})

	go gc.run(gcCtx)

	gc.logger.Info("GC запущен",
		slog.String("interval", gc.interval.String()),
		slog.String("staging_max_age", gc.maxAge.String()),
	)
}

// Stop останавливает фоновый процесс GC и дожидается завершения цикла.
func (gc *GCService) Stop() {
	if gc.cancel == nil {
		return
	}
	gc.cancel()
	<-gc.done
	gc.logger.Info("GC остановлен")
}

// run — основной цикл фоновой горутины.
func (gc *GCService) run(ctx context.Context) {
	defer close(gc.done)

	// Первый запуск — сразу после старта
	gc.scheduled()

	ticker := time.NewTicker(gc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			gc.scheduled()
		}
	}
}

// UseLease включает плановые запуски только при удержании аренды.
// Вызывается до Start.
func (gc *GCService) UseLease(l LeaseHolder) {
	gc.lease = l
}

// scheduled — плановый запуск: пропускается без аренды обслуживания.
func (gc *GCService) scheduled() {
	if gc.lease != nil && !gc.lease.Held() {
		gc.logger.Debug("GC пропущен: аренда обслуживания у другого процесса")
		return
	}
	gc.RunOnce()
}

// RunOnce выполняет один цикл GC.
// Потокобезопасен: использует mutex для защиты от параллельного запуска.
func (gc *GCService) RunOnce() *GCResult {
	gc.mu.Lock()
	defer gc.mu.Unlock()

	start := time.Now()
	result := &GCResult{}

	gc.logger.Debug("GC запуск начат")

	// Фаза 1: брошенные сохранения
	recovered, err := gc.store.Recover()
	if err != nil {
		gc.logger.Error("GC: ошибка восстановления журнала", slog.String("error", err.Error()))
		result.Errors++
	}
	result.Recovered = recovered

	// Фаза 2: брошенные временные файлы
	removed, errs := gc.removeStaged(start)
	result.StagedRemoved = removed
	result.Errors += errs

	// Фаза 3: завершённые записи журнала
	cleaned, err := gc.journal.CleanCommitted()
	if err != nil {
		gc.logger.Error("GC: ошибка очистки WAL", slog.String("error", err.Error()))
		result.Errors++
	}
	result.WALCleaned = cleaned

	result.Duration = time.Since(start)

	gcRunsTotal.Inc()
	gcRecoveredTotal.Add(float64(recovered))
	gcStagedRemovedTotal.Add(float64(removed))
	gcWALCleanedTotal.Add(float64(cleaned))
	gcDurationSeconds.Observe(result.Duration.Seconds())

	gc.logger.Info("GC завершён",
		slog.Int("recovered", result.Recovered),
		slog.Int("staged_removed", result.StagedRemoved),
		slog.Int("wal_cleaned", result.WALCleaned),
		slog.Int("errors", result.Errors),
		slog.Duration("duration", result.Duration),
	)

	return result
}

// removeStaged удаляет временные файлы загрузки старше maxAge.
func (gc *GCService) removeStaged(now time.Time) (removed, errors int) {
	dir := gc.blobs.StageDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		gc.logger.Error("GC: ошибка чтения временного каталога",
			slog.String("dir", dir),
			slog.String("error", err.Error()),
		)
		return 0, 1
	}

	for _, entry := range entries {
		if entry.IsDir() || !blobstore.IsStaged(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Файл мог быть перемещён в хранилище после ReadDir
			continue
		}
		if now.Sub(info.ModTime()) < gc.maxAge {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		if err := gc.blobs.Remove(path); err != nil {
			gc.logger.Error("GC: ошибка удаления временного файла",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			errors++
			continue
		}
		gc.logger.Debug("GC: временный файл удалён",
			slog.String("path", path),
			slog.Time("modified", info.ModTime()),
		)
		removed++
	}

	return removed, errors
}
