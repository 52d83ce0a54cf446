package service

import (
	"net/http"
	"os"
	"strings"
	"testing"

	apierrors "github.com/bigkaa/docstore/internal/api/errors"
	"github.com/bigkaa/docstore/internal/domain/model"
	"github.com/bigkaa/docstore/internal/store"
)

// stagedCount возвращает количество файлов во временном каталоге.
func stagedCount(t *testing.T, st *store.Store) int {
	t.Helper()
	entries, err := os.ReadDir(st.Blobs().StageDir())
	if err != nil {
		t.Fatalf("Ошибка чтения временного каталога: %v", err)
	}
	return len(entries)
}

func TestUpload_Success(t *testing.T) {
	st := setupStore(t, store.ReferenceToken)
	svc := NewUploadService(testConfig(1024), st, testLogger())

	res, uerr := svc.Upload(UploadParams{
		Reader:           strings.NewReader("%PDF-1.4 test"),
		OriginalFilename: "report.pdf",
		ContentType:      "application/pdf; charset=binary",
		Size:             13,
	})
	if uerr != nil {
		t.Fatalf("Upload: %v", uerr)
	}

	if res.Category != model.CategoryPDF {
		t.Errorf("Category: хотели pdf, получили %s", res.Category)
	}
	if res.Reference != res.AccessToken {
		t.Errorf("Reference в режиме token должен совпадать с токеном")
	}
	if res.Size != 13 {
		t.Errorf("Size: хотели 13, получили %d", res.Size)
	}
	if n := stagedCount(t, st); n != 0 {
		t.Errorf("Временный каталог должен быть пуст, файлов: %d", n)
	}

	rec, err := st.Lookup(res.Reference)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if rec.MimeType != "application/pdf" {
		t.Errorf("MimeType: хотели application/pdf, получили %s", rec.MimeType)
	}
	if rec.Checksum == "" {
		t.Error("Checksum должен быть посчитан при приёме")
	}
}

func TestUpload_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		params UploadParams
		status int
		code   string
	}{
		{
			name: "неподдерживаемый тип",
			params: UploadParams{
				Reader: strings.NewReader("hello"), OriginalFilename: "a.txt", ContentType: "text/plain",
			},
			status: http.StatusBadRequest,
			code:   apierrors.CodeUnsupportedType,
		},
		{
			name: "изображения выключены",
			params: UploadParams{
				Reader: strings.NewReader("png"), OriginalFilename: "a.png", ContentType: "image/png",
			},
			status: http.StatusBadRequest,
			code:   apierrors.CodeUnsupportedType,
		},
		{
			name: "заявленный размер превышает лимит",
			params: UploadParams{
				Reader: strings.NewReader("x"), OriginalFilename: "a.pdf", ContentType: pdfMime, Size: 1 << 20,
			},
			status: http.StatusRequestEntityTooLarge,
			code:   apierrors.CodeFileTooLarge,
		},
		{
			name: "фактический размер превышает лимит",
			params: UploadParams{
				Reader: strings.NewReader(strings.Repeat("x", 65)), OriginalFilename: "a.pdf", ContentType: pdfMime,
			},
			status: http.StatusRequestEntityTooLarge,
			code:   apierrors.CodeFileTooLarge,
		},
		{
			name: "пустой файл",
			params: UploadParams{
				Reader: strings.NewReader(""), OriginalFilename: "a.pdf", ContentType: pdfMime,
			},
			status: http.StatusBadRequest,
			code:   apierrors.CodeValidationError,
		},
		{
			name: "недопустимая папка",
			params: UploadParams{
				Reader: strings.NewReader("x"), OriginalFilename: "a.pdf", ContentType: pdfMime, Folder: "../etc",
			},
			status: http.StatusBadRequest,
			code:   apierrors.CodeValidationError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := setupStore(t, store.ReferenceToken)
			svc := NewUploadService(testConfig(64), st, testLogger())

			res, uerr := svc.Upload(tt.params)
			if uerr == nil {
				t.Fatalf("Ожидалась ошибка, получили %+v", res)
			}
			if uerr.StatusCode != tt.status {
				t.Errorf("StatusCode: хотели %d, получили %d", tt.status, uerr.StatusCode)
			}
			if uerr.Code != tt.code {
				t.Errorf("Code: хотели %s, получили %s", tt.code, uerr.Code)
			}
			if n := stagedCount(t, st); n != 0 {
				t.Errorf("Временный файл должен быть удалён, файлов: %d", n)
			}
			stats, err := st.Stats()
			if err != nil {
				t.Fatalf("Stats: %v", err)
			}
			if stats.Documents != 0 {
				t.Errorf("Документов: хотели 0, получили %d", stats.Documents)
			}
		})
	}
}

func TestUpload_IdentifierReferenceMode(t *testing.T) {
	st := setupStore(t, store.ReferenceID)
	svc := NewUploadService(testConfig(1024), st, testLogger())

	res, uerr := svc.Upload(UploadParams{
		Reader:           strings.NewReader("docx"),
		OriginalFilename: "Отчёт за март.docx",
		ContentType:      docxMime,
		Folder:           "2024/март",
	})
	if uerr != nil {
		t.Fatalf("Upload: %v", uerr)
	}
	if res.Reference != res.Identifier {
		t.Error("Reference в режиме id должен совпадать с идентификатором")
	}
	if res.AccessToken != "" {
		t.Error("В режиме id токен не выдаётся")
	}

	h, err := st.Resolve(res.Reference)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if h.DisplayName != "Отчёт за март.docx" {
		t.Errorf("DisplayName: получили %s", h.DisplayName)
	}
	if !strings.Contains(h.Path, "word/2024/март/") {
		t.Errorf("Path должен содержать папку, получили %s", h.Path)
	}
}
