// reconcile.go — сервис фоновой сверки (Reconciliation) хранилища документов.
//
// Reconciliation обходит каталоги категорий на любую глубину и сравнивает
// blob-файлы с sidecar-метаданными. Обнаруживает проблемы:
//   - orphaned_blob: blob без sidecar (прерванное сохранение)
//   - orphaned_meta: sidecar без blob (blob удалён извне)
//   - corrupt_meta: sidecar не удалось разобрать
//   - size_mismatch: размер blob не совпадает с метаданными
//   - checksum_mismatch: SHA-256 blob не совпадает с метаданными
//
// Сверка только сообщает о проблемах и ничего не удаляет. После сверки
// индекс пересобирается с диска.
// Запускается как горутина с периодическим тикером (DS_RECONCILE_INTERVAL).
package service

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/docstore/internal/storage/attr"
	"github.com/bigkaa/docstore/internal/store"
)

// Prometheus метрики Reconciliation
var (
	// reconcileRunsTotal — количество запусков reconciliation.
	reconcileRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ds_reconcile_runs_total",
		Help: "Общее количество запусков reconciliation",
	})

	// reconcileIssuesTotal — количество обнаруженных проблем по типу.
	reconcileIssuesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ds_reconcile_issues_total",
		Help: "Общее количество проблем, обнаруженных reconciliation",
	}, []string{"type"})

	// reconcileDurationSeconds — длительность выполнения reconciliation.
	reconcileDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ds_reconcile_duration_seconds",
		Help:    "Длительность выполнения reconciliation в секундах",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	})
)

// IssueType — тип проблемы, обнаруженной сверкой.
type IssueType string

const (
	IssueOrphanedBlob     IssueType = "orphaned_blob"
	IssueOrphanedMeta     IssueType = "orphaned_meta"
	IssueCorruptMeta      IssueType = "corrupt_meta"
	IssueSizeMismatch     IssueType = "size_mismatch"
	IssueChecksumMismatch IssueType = "checksum_mismatch"
)

// ReconcileIssue — одна обнаруженная проблема.
type ReconcileIssue struct {
	Type IssueType `json:"type"`
	// Path — путь относительно корня хранилища
	Path        string `json:"path"`
	Identifier  string `json:"identifier,omitempty"`
	Description string `json:"description"`
}

// ReconcileSummary — сводка по типам проблем.
type ReconcileSummary struct {
	Ok                 int `json:"ok"`
	OrphanedBlobs      int `json:"orphanedBlobs"`
	OrphanedMeta       int `json:"orphanedMeta"`
	CorruptMeta        int `json:"corruptMeta"`
	SizeMismatches     int `json:"sizeMismatches"`
	ChecksumMismatches int `json:"checksumMismatches"`
}

// ReconcileReport — результат сверки.
type ReconcileReport struct {
	StartedAt    time.Time        `json:"startedAt"`
	CompletedAt  time.Time        `json:"completedAt"`
	FilesChecked int              `json:"filesChecked"`
	Issues       []ReconcileIssue `json:"issues"`
	Summary      ReconcileSummary `json:"summary"`
}

// ReconcileService — сервис фоновой сверки хранилища.
type ReconcileService struct {
	store          *store.Store
	interval       time.Duration
	verifyChecksum bool
	logger         *slog.Logger

	lease     LeaseHolder
	mu        sync.Mutex // защита от параллельного запуска
	inProcess bool
	last      *ReconcileReport
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewReconcileService создаёт сервис reconciliation.
// verifyChecksum включает пересчёт SHA-256 каждого blob.
func NewReconcileService(st *store.Store, interval time.Duration, verifyChecksum bool, logger *slog.Logger) *ReconcileService {
	return &ReconcileService{
		store:          st,
		interval:       interval,
		verifyChecksum: verifyChecksum,
		logger:         logger.With(slog.String("component", "reconcile")),
	}
}

// Start запускает фоновую горутину reconciliation с периодическим тикером.
func (rs *ReconcileService) Start(ctx context.Context) {
	rsCtx, cancel := context.WithCancel(ctx)
	rs.cancel = cancel
	rs.done = make(chan struct{})

	go rs.run(rsCtx)

	rs.logger.Info("Reconciliation запущена",
		slog.String("interval", rs.interval.String()),
	)
}

// Stop останавливает фоновой процесс reconciliation.
func (rs *ReconcileService) Stop() {
	if rs.cancel == nil {
		return
	}
	rs.cancel()
	<-rs.done
	rs.logger.Info("Reconciliation остановлена")
}

// UseLease включает плановые сверки только при удержании аренды.
// Ручной запуск через API аренды не требует: сверка ничего не изменяет
// на диске. Вызывается до Start.
func (rs *ReconcileService) UseLease(l LeaseHolder) {
	rs.lease = l
}

// IsInProgress возвращает true, если reconciliation выполняется.
func (rs *ReconcileService) IsInProgress() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.inProcess
}

// LastReport возвращает результат последней сверки или nil.
func (rs *ReconcileService) LastReport() *ReconcileReport {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.last
}

// run — основной цикл фоновой горутины.
func (rs *ReconcileService) run(ctx context.Context) {
	defer close(rs.done)

	ticker := time.NewTicker(rs.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if rs.lease != nil && !rs.lease.Held() {
				rs.logger.Debug("Плановая сверка пропущена: аренда обслуживания у другого процесса")
				continue
			}
			rs.RunOnce()
		}
	}
}

// RunOnce выполняет один цикл reconciliation.
// Если reconciliation уже выполняется, возвращает nil, true.
func (rs *ReconcileService) RunOnce() (*ReconcileReport, bool) {
	rs.mu.Lock()
	if rs.inProcess {
		rs.mu.Unlock()
		rs.logger.Warn("Reconciliation уже выполняется, пропуск")
		return nil, true
	}
	rs.inProcess = true
	rs.mu.Unlock()

	defer func() {
		rs.mu.Lock()
		rs.inProcess = false
		rs.mu.Unlock()
	}()

	startedAt := time.Now().UTC()
	rs.logger.Info("Reconciliation начата")

	checked, issues := rs.reconcile()

	if err := rs.store.RebuildIndex(); err != nil {
		rs.logger.Error("Ошибка пересборки индекса",
			slog.String("error", err.Error()),
		)
	}

	completedAt := time.Now().UTC()
	duration := completedAt.Sub(startedAt)

	summary := ReconcileSummary{}
	affected := make(map[string]bool)
	for _, issue := range issues {
		affected[issue.Path] = true
		switch issue.Type {
		case IssueOrphanedBlob:
			summary.OrphanedBlobs++
		case IssueOrphanedMeta:
			summary.OrphanedMeta++
		case IssueCorruptMeta:
			summary.CorruptMeta++
		case IssueSizeMismatch:
			summary.SizeMismatches++
		case IssueChecksumMismatch:
			summary.ChecksumMismatches++
		}
		reconcileIssuesTotal.WithLabelValues(string(issue.Type)).Inc()
	}
	summary.Ok = checked - len(affected)
	if summary.Ok < 0 {
		summary.Ok = 0
	}

	reconcileRunsTotal.Inc()
	reconcileDurationSeconds.Observe(duration.Seconds())

	rs.logger.Info("Reconciliation завершена",
		slog.Int("files_checked", checked),
		slog.Int("issues", len(issues)),
		slog.Int("ok", summary.Ok),
		slog.Duration("duration", duration),
	)

	report := &ReconcileReport{
		StartedAt:    startedAt,
		CompletedAt:  completedAt,
		FilesChecked: checked,
		Issues:       issues,
		Summary:      summary,
	}
	rs.mu.Lock()
	rs.last = report
	rs.mu.Unlock()
	return report, false
}

// reconcile обходит каталоги категорий и собирает проблемы.
// Возвращает количество проверенных документов (blob или sidecar).
func (rs *ReconcileService) reconcile() (int, []ReconcileIssue) {
	blobs := rs.store.Blobs()
	root := blobs.Root()

	dataFiles := make(map[string]bool)
	metaFiles := make(map[string]bool)

	for _, dir := range blobs.Categories() {
		base := filepath.Join(root, dir)
		err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				rs.logger.Warn("Ошибка обхода при reconciliation",
					slog.String("path", path),
					slog.String("error", err.Error()),
				)
				if d != nil && d.IsDir() && path != base {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				return nil
			}
			name := d.Name()
			// Служебные и временные файлы
			if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".tmp") {
				return nil
			}
			if attr.IsMetaFile(name) {
				metaFiles[path] = true
			} else {
				dataFiles[path] = true
			}
			return nil
		})
		if err != nil {
			rs.logger.Error("Ошибка обхода каталога категории",
				slog.String("dir", base),
				slog.String("error", err.Error()),
			)
		}
	}

	issues := make([]ReconcileIssue, 0)
	rel := func(path string) string {
		if r, err := filepath.Rel(root, path); err == nil {
			return filepath.ToSlash(r)
		}
		return path
	}

	// 1. blob без sidecar
	for dataPath := range dataFiles {
		if !metaFiles[attr.MetaFilePath(dataPath)] {
			issues = append(issues, ReconcileIssue{
				Type:        IssueOrphanedBlob,
				Path:        rel(dataPath),
				Description: "Файл на диске без метаданных",
			})
		}
	}

	// 2. sidecar: повреждён, без blob, расхождение размера или checksum
	for metaPath := range metaFiles {
		dataPath := attr.DataFilePathFromMeta(metaPath)
		rec, err := attr.Read(metaPath)
		if err != nil {
			issues = append(issues, ReconcileIssue{
				Type:        IssueCorruptMeta,
				Path:        rel(metaPath),
				Description: "Метаданные не удалось прочитать: " + err.Error(),
			})
			continue
		}

		if !dataFiles[dataPath] {
			issues = append(issues, ReconcileIssue{
				Type:        IssueOrphanedMeta,
				Path:        rel(dataPath),
				Identifier:  rec.Identifier,
				Description: "Метаданные без соответствующего файла на диске",
			})
			continue
		}

		actualSize, err := blobs.Size(dataPath)
		if err != nil {
			rs.logger.Warn("Ошибка получения размера файла",
				slog.String("file", dataPath),
				slog.String("error", err.Error()),
			)
			continue
		}
		if actualSize != rec.Size {
			issues = append(issues, ReconcileIssue{
				Type:        IssueSizeMismatch,
				Path:        rel(dataPath),
				Identifier:  rec.Identifier,
				Description: "Размер файла на диске не совпадает с метаданными",
			})
			continue // Если размер не совпадает, checksum точно не совпадёт
		}

		if !rs.verifyChecksum || rec.Checksum == "" {
			continue
		}
		actual, err := blobs.ComputeChecksum(dataPath)
		if err != nil {
			rs.logger.Warn("Ошибка вычисления checksum",
				slog.String("file", dataPath),
				slog.String("error", err.Error()),
			)
			continue
		}
		if actual != rec.Checksum {
			issues = append(issues, ReconcileIssue{
				Type:        IssueChecksumMismatch,
				Path:        rel(dataPath),
				Identifier:  rec.Identifier,
				Description: "Checksum файла на диске не совпадает с метаданными",
			})
		}
	}

	sort.Slice(issues, func(i, j int) bool {
		if issues[i].Path != issues[j].Path {
			return issues[i].Path < issues[j].Path
		}
		return issues[i].Type < issues[j].Type
	})

	// Документ — пара blob+sidecar; считаем уникальные blob-пути
	checked := make(map[string]bool, len(dataFiles))
	for p := range dataFiles {
		checked[p] = true
	}
	for p := range metaFiles {
		checked[attr.DataFilePathFromMeta(p)] = true
	}
	return len(checked), issues
}
