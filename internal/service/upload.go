// Пакет service — бизнес-логика сервиса документов.
// upload.go — сервис загрузки: проверки приёма, staging, сохранение в хранилище.
package service

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/docstore/internal/api/errors"
	"github.com/bigkaa/docstore/internal/config"
	"github.com/bigkaa/docstore/internal/domain/model"
	"github.com/bigkaa/docstore/internal/store"
)

// UploadParams — параметры загрузки файла.
type UploadParams struct {
	// Reader — поток данных файла
	Reader io.Reader
	// OriginalFilename — имя файла от клиента
	OriginalFilename string
	// ContentType — MIME-тип из заголовка multipart part
	ContentType string
	// Size — размер файла (из multipart заголовка, 0 = неизвестен)
	Size int64
	// Folder — подпапка внутри категории (опционально)
	Folder string
}

// UploadService — сервис загрузки файлов.
type UploadService struct {
	cfg    *config.Config
	store  *store.Store
	logger *slog.Logger
}

// NewUploadService создаёт сервис загрузки файлов.
func NewUploadService(cfg *config.Config, st *store.Store, logger *slog.Logger) *UploadService {
	return &UploadService{
		cfg:    cfg,
		store:  st,
		logger: logger.With(slog.String("component", "upload_service")),
	}
}

// Upload принимает файл и сохраняет его в хранилище.
//
// Поток:
//  1. Проверка размера (заявленного)
//  2. Проверка MIME-типа по списку разрешённых
//  3. Stage во временный каталог (streaming + SHA-256, не более MaxFileSize+1 байт)
//  4. Проверка фактического размера
//  5. store.Save (хранилище повторно проверяет тип)
//
// При ошибке временный файл удаляется.
func (s *UploadService) Upload(params UploadParams) (*store.SaveResult, *ServiceError) {
	if params.Size > s.cfg.MaxFileSize {
		return nil, s.tooLarge(params.Size)
	}

	mimeType := model.NormalizeMime(params.ContentType)
	if _, ok := s.store.Categories().Lookup(mimeType); !ok {
		return nil, &ServiceError{
			StatusCode: http.StatusBadRequest,
			Code:       apierrors.CodeUnsupportedType,
			Message:    fmt.Sprintf("Недопустимый тип файла %q. Разрешены только PDF и Word документы", mimeType),
		}
	}

	blobs := s.store.Blobs()
	staged, err := blobs.Stage(io.LimitReader(params.Reader, s.cfg.MaxFileSize+1))
	if err != nil {
		s.logger.Error("Ошибка приёма файла", slog.String("error", err.Error()))
		return nil, &ServiceError{
			StatusCode: http.StatusInternalServerError,
			Code:       apierrors.CodeInternalError,
			Message:    "Ошибка сохранения файла на диск",
		}
	}
	cleanup := func() {
		if rmErr := blobs.Remove(staged.Path); rmErr != nil {
			s.logger.Warn("Не удалось удалить временный файл",
				slog.String("path", staged.Path),
				slog.String("error", rmErr.Error()),
			)
		}
	}

	if staged.Size > s.cfg.MaxFileSize {
		cleanup()
		return nil, s.tooLarge(staged.Size)
	}
	if staged.Size == 0 {
		cleanup()
		return nil, &ServiceError{
			StatusCode: http.StatusBadRequest,
			Code:       apierrors.CodeValidationError,
			Message:    "Файл пуст",
		}
	}

	result, err := s.store.Save(store.SaveParams{
		StagedPath:   staged.Path,
		OriginalName: params.OriginalFilename,
		MimeType:     mimeType,
		Size:         params.Size,
		Checksum:     staged.Checksum,
		Folder:       params.Folder,
	})
	if err != nil {
		// Remove идемпотентен: после успешного перемещения файла уже нет
		cleanup()
		se := storeError(err)
		if se.StatusCode >= 500 {
			s.logger.Error("Ошибка сохранения документа",
				slog.String("filename", params.OriginalFilename),
				slog.String("error", err.Error()),
			)
		}
		return nil, se
	}

	s.logger.Info("Файл загружен",
		slog.String("identifier", result.Identifier),
		slog.String("filename", params.OriginalFilename),
		slog.String("category", string(result.Category)),
		slog.Int64("size", result.Size),
		slog.String("checksum", staged.Checksum),
	)
	return result, nil
}

func (s *UploadService) tooLarge(size int64) *ServiceError {
	return &ServiceError{
		StatusCode: http.StatusRequestEntityTooLarge,
		Code:       apierrors.CodeFileTooLarge,
		Message:    fmt.Sprintf("Размер файла %d байт превышает максимум %d байт", size, s.cfg.MaxFileSize),
	}
}
