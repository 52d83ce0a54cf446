// download.go — сервис отдачи документов (просмотр и скачивание).
package service

import (
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"time"

	apierrors "github.com/bigkaa/docstore/internal/api/errors"
	"github.com/bigkaa/docstore/internal/domain/model"
	"github.com/bigkaa/docstore/internal/store"
)

// Disposition — способ отдачи файла браузеру.
type Disposition string

const (
	// DispositionInline — отображение в браузере (view)
	DispositionInline Disposition = "inline"
	// DispositionAttachment — скачивание (download)
	DispositionAttachment Disposition = "attachment"
)

// FileInfo — публичные метаданные документа. Не содержит
// имени файла на диске и пути.
type FileInfo struct {
	Reference    string         `json:"reference"`
	OriginalName string         `json:"originalName"`
	MimeType     string         `json:"mimeType"`
	Size         int64          `json:"size"`
	Category     model.Category `json:"category"`
	Folder       string         `json:"folder,omitempty"`
	Checksum     string         `json:"checksum,omitempty"`
	UploadedAt   time.Time      `json:"uploadedAt"`
}

// DownloadService — сервис отдачи документов.
type DownloadService struct {
	store  *store.Store
	logger *slog.Logger
}

// NewDownloadService создаёт сервис отдачи документов.
func NewDownloadService(st *store.Store, logger *slog.Logger) *DownloadService {
	return &DownloadService{
		store:  st,
		logger: logger.With(slog.String("component", "download_service")),
	}
}

// Serve отдаёт документ клиенту через http.ServeContent.
// Поддерживает Range requests (206 Partial Content) и ETag (If-None-Match).
func (s *DownloadService) Serve(w http.ResponseWriter, r *http.Request, ref string, disp Disposition) *ServiceError {
	h, err := s.store.Resolve(ref)
	if err != nil {
		return s.fail(ref, err)
	}

	file, err := os.Open(h.Path)
	if err != nil {
		// Blob удалён между resolve и открытием
		s.logger.Warn("Файл не найден на диске",
			slog.String("reference", ref),
			slog.String("error", err.Error()),
		)
		return &ServiceError{
			StatusCode: http.StatusNotFound,
			Code:       apierrors.CodeNotFound,
			Message:    "Файл не найден",
		}
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		s.logger.Error("Ошибка получения stat файла",
			slog.String("reference", ref),
			slog.String("error", err.Error()),
		)
		return &ServiceError{
			StatusCode: http.StatusInternalServerError,
			Code:       apierrors.CodeInternalError,
			Message:    "Ошибка чтения файла",
		}
	}

	w.Header().Set("Content-Type", h.MimeType)
	w.Header().Set("Content-Disposition", contentDisposition(disp, h.DisplayName))
	if h.Checksum != "" {
		w.Header().Set("ETag", fmt.Sprintf("\"%s\"", h.Checksum))
	}
	w.Header().Set("Accept-Ranges", "bytes")

	// http.ServeContent обрабатывает Range, If-None-Match,
	// If-Modified-Since и Content-Length
	http.ServeContent(w, r, h.DisplayName, stat.ModTime(), file)

	s.logger.Debug("Файл отдан",
		slog.String("reference", ref),
		slog.String("disposition", string(disp)),
		slog.Int64("size", stat.Size()),
	)
	return nil
}

// Describe возвращает публичные метаданные документа.
func (s *DownloadService) Describe(ref string) (*FileInfo, *ServiceError) {
	rec, err := s.store.Lookup(ref)
	if err != nil {
		return nil, s.fail(ref, err)
	}
	return &FileInfo{
		Reference:    ref,
		OriginalName: rec.OriginalName,
		MimeType:     rec.MimeType,
		Size:         rec.Size,
		Category:     rec.Category,
		Folder:       rec.Folder,
		Checksum:     rec.Checksum,
		UploadedAt:   rec.UploadedAt,
	}, nil
}

func (s *DownloadService) fail(ref string, err error) *ServiceError {
	se := storeError(err)
	if se.StatusCode >= 500 {
		s.logger.Error("Ошибка разрешения ссылки",
			slog.String("reference", ref),
			slog.String("error", err.Error()),
		)
	}
	return se
}

// contentDisposition формирует заголовок Content-Disposition (RFC 6266).
// Имена с не-ASCII символами кодируются как filename*=utf-8''...
func contentDisposition(disp Disposition, filename string) string {
	if v := mime.FormatMediaType(string(disp), map[string]string{"filename": filename}); v != "" {
		return v
	}
	return string(disp)
}
