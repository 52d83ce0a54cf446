// files.go — HTTP handlers документов: загрузка, просмотр, скачивание,
// публичные метаданные.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	apierrors "github.com/bigkaa/docstore/internal/api/errors"
	"github.com/bigkaa/docstore/internal/api/openapi"
	"github.com/bigkaa/docstore/internal/service"
)

// multipartOverhead — запас на заголовки multipart и поле folder сверх
// максимального размера файла.
const multipartOverhead = 1 << 20

// multipartMemory — часть формы, хранимая в памяти; остальное на диске.
const multipartMemory = 32 << 20

// FilesHandler — обработчик endpoints документов.
type FilesHandler struct {
	uploadSvc   *service.UploadService
	downloadSvc *service.DownloadService
	maxFileSize int64
	// baseURL — публичный адрес для ссылок view/download (пусто = из запроса)
	baseURL string
}

// NewFilesHandler создаёт обработчик endpoints документов.
func NewFilesHandler(
	uploadSvc *service.UploadService,
	downloadSvc *service.DownloadService,
	maxFileSize int64,
	baseURL string,
) *FilesHandler {
	return &FilesHandler{
		uploadSvc:   uploadSvc,
		downloadSvc: downloadSvc,
		maxFileSize: maxFileSize,
		baseURL:     strings.TrimRight(baseURL, "/"),
	}
}

// UploadDocument обрабатывает POST /upload.
// Multipart form: document (обязательно), folder (опционально).
func (h *FilesHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileSize+multipartOverhead)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			apierrors.FileTooLarge(w, fmt.Sprintf("Размер запроса превышает максимум %d байт", h.maxFileSize))
			return
		}
		apierrors.ValidationError(w, fmt.Sprintf("Ошибка парсинга multipart: %s", err.Error()))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("document")
	if err != nil {
		apierrors.ValidationError(w, "Поле 'document' обязательно")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	result, uploadErr := h.uploadSvc.Upload(service.UploadParams{
		Reader:           file,
		OriginalFilename: header.Filename,
		ContentType:      contentType,
		Size:             header.Size,
		Folder:           r.FormValue("folder"),
	})
	if uploadErr != nil {
		apierrors.WriteError(w, uploadErr.StatusCode, uploadErr.Code, uploadErr.Message)
		return
	}

	base := h.publicBaseURL(r)
	writeJSON(w, http.StatusOK, openapi.UploadResponse{
		Message:     "Файл успешно загружен",
		Reference:   result.Reference,
		ViewURL:     base + "/view/" + result.Reference,
		DownloadURL: base + "/download/" + result.Reference,
		FileName:    result.OriginalName,
	})
}

// ViewDocument обрабатывает GET /view/{reference}: отдача inline.
func (h *FilesHandler) ViewDocument(w http.ResponseWriter, r *http.Request, reference openapi.Reference) {
	h.serve(w, r, reference, service.DispositionInline)
}

// DownloadDocument обрабатывает GET /download/{reference}: отдача attachment.
func (h *FilesHandler) DownloadDocument(w http.ResponseWriter, r *http.Request, reference openapi.Reference) {
	h.serve(w, r, reference, service.DispositionAttachment)
}

// serve отдаёт документ. Поддерживает Range (206) и ETag (If-None-Match → 304).
func (h *FilesHandler) serve(w http.ResponseWriter, r *http.Request, reference string, disp service.Disposition) {
	if downloadErr := h.downloadSvc.Serve(w, r, reference, disp); downloadErr != nil {
		apierrors.WriteError(w, downloadErr.StatusCode, downloadErr.Code, downloadErr.Message)
	}
}

// GetDocumentInfo обрабатывает GET /api/v1/files/{reference}.
func (h *FilesHandler) GetDocumentInfo(w http.ResponseWriter, _ *http.Request, reference openapi.Reference) {
	info, downloadErr := h.downloadSvc.Describe(reference)
	if downloadErr != nil {
		apierrors.WriteError(w, downloadErr.StatusCode, downloadErr.Code, downloadErr.Message)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// publicBaseURL возвращает настроенный адрес или собирает его из запроса.
func (h *FilesHandler) publicBaseURL(r *http.Request) string {
	if h.baseURL != "" {
		return h.baseURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
