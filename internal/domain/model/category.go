package model

import (
	"mime"
	"sort"
	"strings"
)

// Category — подкаталог хранения, определяемый MIME-типом.
type Category string

const (
	// CategoryPDF — документы PDF
	CategoryPDF Category = "pdf"
	// CategoryWord — документы Word (legacy и OOXML)
	CategoryWord Category = "word"
	// CategoryImage — изображения (включаются опционально)
	CategoryImage Category = "image"
)

// Поддерживаемые MIME-типы.
const (
	MimePDF  = "application/pdf"
	MimeDOC  = "application/msword"
	MimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimeJPEG = "image/jpeg"
	MimeJPG  = "image/jpg"
	MimePNG  = "image/png"
	MimeGIF  = "image/gif"
	MimeWebP = "image/webp"
)

// CategoryTable — закрытая таблица соответствия MIME-тип → категория.
// После создания не изменяется, безопасна для конкурентного чтения.
type CategoryTable struct {
	byMime map[string]Category
}

// TableOption — опция построения таблицы категорий.
type TableOption func(map[string]Category)

// WithImages добавляет распространённые форматы изображений.
func WithImages() TableOption {
	return func(m map[string]Category) {
		for _, mt := range []string{MimeJPEG, MimeJPG, MimePNG, MimeGIF, MimeWebP} {
			m[mt] = CategoryImage
		}
	}
}

// NewCategoryTable создаёт таблицу с PDF и Word, плюс опции.
func NewCategoryTable(opts ...TableOption) *CategoryTable {
	m := map[string]Category{
		MimePDF:  CategoryPDF,
		MimeDOC:  CategoryWord,
		MimeDOCX: CategoryWord,
	}
	for _, opt := range opts {
		opt(m)
	}
	return &CategoryTable{byMime: m}
}

// Lookup возвращает категорию для MIME-типа.
// Параметры (charset и т.д.) и регистр игнорируются.
func (t *CategoryTable) Lookup(mimeType string) (Category, bool) {
	c, ok := t.byMime[NormalizeMime(mimeType)]
	return c, ok
}

// Categories возвращает отсортированный список категорий таблицы.
func (t *CategoryTable) Categories() []Category {
	seen := make(map[Category]bool)
	var result []Category
	for _, c := range t.byMime {
		if !seen[c] {
			seen[c] = true
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

// MimeTypes возвращает отсортированный список допустимых MIME-типов.
func (t *CategoryTable) MimeTypes() []string {
	result := make([]string, 0, len(t.byMime))
	for mt := range t.byMime {
		result = append(result, mt)
	}
	sort.Strings(result)
	return result
}

// NormalizeMime приводит MIME-тип к нижнему регистру без параметров.
func NormalizeMime(mimeType string) string {
	mimeType = strings.TrimSpace(mimeType)
	if mt, _, err := mime.ParseMediaType(mimeType); err == nil {
		return mt
	}
	if idx := strings.Index(mimeType, ";"); idx != -1 {
		mimeType = mimeType[:idx]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}
