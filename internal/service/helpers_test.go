package service

import (
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/bigkaa/docstore/internal/config"
	"github.com/bigkaa/docstore/internal/store"
)

const (
	pdfMime  = "application/pdf"
	docxMime = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// testLogger возвращает логгер для тестов (только ошибки).
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// setupStore создаёт хранилище во временном каталоге.
func setupStore(t *testing.T, ref store.ReferenceMode) *store.Store {
	t.Helper()
	st, err := store.New(store.Options{
		Root:          t.TempDir(),
		ReferenceMode: ref,
		IndexMode:     store.IndexMemory,
	}, testLogger())
	if err != nil {
		t.Fatalf("Ошибка создания хранилища: %v", err)
	}
	return st
}

// testConfig возвращает минимальную конфигурацию для сервисов.
func testConfig(maxSize int64) *config.Config {
	return &config.Config{MaxFileSize: maxSize}
}

// saveDocument сохраняет документ через хранилище напрямую.
func saveDocument(t *testing.T, st *store.Store, name, mimeType, content, folder string) *store.SaveResult {
	t.Helper()
	staged, err := st.Blobs().Stage(strings.NewReader(content))
	if err != nil {
		t.Fatalf("Ошибка Stage: %v", err)
	}
	res, err := st.Save(store.SaveParams{
		StagedPath:   staged.Path,
		OriginalName: name,
		MimeType:     mimeType,
		Size:         staged.Size,
		Checksum:     staged.Checksum,
		Folder:       folder,
	})
	if err != nil {
		t.Fatalf("Ошибка Save: %v", err)
	}
	return res
}
