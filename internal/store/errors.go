package store

import (
	"errors"
	"fmt"
)

// Kind — закрытый перечень видов ошибок хранилища.
type Kind int

const (
	// KindUnknown — ошибка не из хранилища.
	KindUnknown Kind = iota
	// KindUnsupportedType — MIME-тип отсутствует в таблице категорий.
	KindUnsupportedType
	// KindInvalidInput — некорректные входные данные (папка, имя).
	KindInvalidInput
	// KindStorageIO — ошибка файловой системы при сохранении.
	KindStorageIO
	// KindNotFound — ссылке не соответствует запись с существующим blob.
	KindNotFound
	// KindMetadataCorrupt — sidecar не удалось разобрать.
	KindMetadataCorrupt
)

// Sentinel-значения для errors.Is.
var (
	ErrUnsupportedType = errors.New("неподдерживаемый тип файла")
	ErrInvalidInput    = errors.New("некорректные входные данные")
	ErrStorageIO       = errors.New("ошибка хранилища")
	ErrNotFound        = errors.New("документ не найден")
	ErrMetadataCorrupt = errors.New("метаданные повреждены")
)

func (k Kind) String() string {
	switch k {
	case KindUnsupportedType:
		return "unsupported_type"
	case KindInvalidInput:
		return "invalid_input"
	case KindStorageIO:
		return "storage_io"
	case KindNotFound:
		return "not_found"
	case KindMetadataCorrupt:
		return "metadata_corrupt"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindUnsupportedType:
		return ErrUnsupportedType
	case KindInvalidInput:
		return ErrInvalidInput
	case KindStorageIO:
		return ErrStorageIO
	case KindNotFound:
		return ErrNotFound
	case KindMetadataCorrupt:
		return ErrMetadataCorrupt
	default:
		return nil
	}
}

// Error — ошибка операции хранилища.
// Op — операция (save, resolve), Ref — ссылка или MIME-тип, к которому
// относится ошибка, Err — исходная причина (может быть nil).
type Error struct {
	Kind Kind
	Op   string
	Ref  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Op + ": неизвестная ошибка"
	if s := e.Kind.sentinel(); s != nil {
		msg = e.Op + ": " + s.Error()
	}
	if e.Ref != "" {
		msg += fmt.Sprintf(" (%s)", e.Ref)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is сопоставляет ошибку с sentinel-значением её вида.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// KindOf возвращает вид ошибки хранилища или KindUnknown.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}

func newError(kind Kind, op, ref string, err error) *Error {
	return &Error{Kind: kind, Op: op, Ref: ref, Err: err}
}
