// system.go — обработчик GET /api/v1/info (информация о хранилище).
package handlers

import (
	"log/slog"
	"net/http"
	"sort"

	apierrors "github.com/bigkaa/docstore/internal/api/errors"
	"github.com/bigkaa/docstore/internal/api/openapi"
	"github.com/bigkaa/docstore/internal/config"
	"github.com/bigkaa/docstore/internal/store"
)

// DiskUsageFunc возвращает ёмкость файловой системы хранилища в байтах.
type DiskUsageFunc func() (total, used, available int64, err error)

// SystemHandler — обработчик системных endpoints.
type SystemHandler struct {
	cfg       *config.Config
	store     *store.Store
	diskUsage DiskUsageFunc
	logger    *slog.Logger
}

// NewSystemHandler создаёт обработчик системных endpoints.
// diskUsage может быть nil: тогда блок disk в ответе не заполняется.
func NewSystemHandler(cfg *config.Config, st *store.Store, diskUsage DiskUsageFunc, logger *slog.Logger) *SystemHandler {
	return &SystemHandler{
		cfg:       cfg,
		store:     st,
		diskUsage: diskUsage,
		logger:    logger.With(slog.String("component", "system_handler")),
	}
}

// GetStorageInfo обрабатывает GET /api/v1/info.
func (h *SystemHandler) GetStorageInfo(w http.ResponseWriter, _ *http.Request) {
	stats, err := h.store.Stats()
	if err != nil {
		h.logger.Error("Ошибка получения статистики хранилища", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Ошибка получения статистики хранилища")
		return
	}

	status := openapi.StorageInfoStatusOnline
	if !h.store.Ready() {
		status = openapi.StorageInfoStatusStarting
	}

	table := h.store.Categories()
	categories := make([]string, 0)
	for _, c := range table.Categories() {
		categories = append(categories, string(c))
	}
	mimeTypes := table.MimeTypes()
	sort.Strings(mimeTypes)

	byCategory := make(map[string]int, len(stats.ByCategory))
	for c, n := range stats.ByCategory {
		byCategory[string(c)] = n
	}

	resp := openapi.StorageInfo{
		Version:       config.Version,
		Status:        status,
		ReferenceMode: string(h.store.ReferenceMode()),
		IndexMode:     string(h.store.IndexMode()),
		MaxFileSize:   h.cfg.MaxFileSize,
		Categories:    categories,
		MimeTypes:     mimeTypes,
		Documents: openapi.DocumentCounts{
			Total:      stats.Documents,
			TotalBytes: stats.TotalBytes,
			ByCategory: byCategory,
		},
	}

	if h.diskUsage != nil {
		total, used, available, err := h.diskUsage()
		if err != nil {
			h.logger.Warn("Не удалось получить ёмкость диска", slog.String("error", err.Error()))
		} else {
			resp.Disk = &openapi.DiskUsage{TotalBytes: total, UsedBytes: used, AvailableBytes: available}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
