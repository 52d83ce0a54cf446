package service

import (
	"net/http"

	apierrors "github.com/bigkaa/docstore/internal/api/errors"
	"github.com/bigkaa/docstore/internal/store"
)

// ServiceError — ошибка сервиса загрузки или отдачи, готовая для HTTP-ответа.
type ServiceError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ServiceError) Error() string {
	return e.Code + ": " + e.Message
}

func newServiceError(status int, code, message string) *ServiceError {
	return &ServiceError{StatusCode: status, Code: code, Message: message}
}

// storeError сопоставляет вид ошибки хранилища HTTP-статусу и коду.
func storeError(err error) *ServiceError {
	switch store.KindOf(err) {
	case store.KindUnsupportedType:
		return newServiceError(http.StatusBadRequest, apierrors.CodeUnsupportedType, "Недопустимый тип файла")
	case store.KindInvalidInput:
		return newServiceError(http.StatusBadRequest, apierrors.CodeValidationError, "Некорректные параметры загрузки: " + err.Error())
	case store.KindNotFound:
		return newServiceError(http.StatusNotFound, apierrors.CodeNotFound, "Файл не найден")
	case store.KindMetadataCorrupt:
		return newServiceError(http.StatusInternalServerError, apierrors.CodeMetadataCorrupt, "Метаданные файла повреждены")
	default:
		return newServiceError(http.StatusInternalServerError, apierrors.CodeInternalError, "Внутренняя ошибка хранилища")
	}
}
