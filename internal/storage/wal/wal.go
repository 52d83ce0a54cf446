package wal

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// WAL — файловый журнал сохранений.
// Сначала создаётся запись со статусом pending, затем выполняется
// операция, затем запись коммитится или откатывается. Pending записи,
// пережившие рестарт, возвращает RecoverPending.
//
// Каждая транзакция пишет только свой файл, поэтому WAL не содержит
// мьютекса: одну транзакцию ведёт одна горутина.
type WAL struct {
	// dir — директория хранения WAL-файлов (DS_WAL_DIR)
	dir    string
	logger *slog.Logger
}

// New создаёт новый WAL. Создаёт директорию, если она не существует,
// и проверяет доступность записи.
func New(dir string, logger *slog.Logger) (*WAL, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию WAL %s: %w", dir, err)
	}

	// Проверяем доступность на запись через temp файл
	testFile := filepath.Join(dir, ".wal_write_test")
	if err := os.WriteFile(testFile, []byte("ok"), 0o640); err != nil {
		return nil, fmt.Errorf("директория WAL %s недоступна для записи: %w", dir, err)
	}
	os.Remove(testFile)

	return &WAL{
		dir:    dir,
		logger: logger.With(slog.String("component", "wal")),
	}, nil
}

// StartTransaction создаёт новую WAL-запись со статусом pending.
// Запись сохраняется атомарно: temp файл → fsync → rename.
func (w *WAL) StartTransaction(op OperationType, identifier, blobPath, metaPath string) (*Entry, error) {
	entry := &Entry{
		TransactionID: uuid.New().String(),
		Operation:     op,
		Status:        StatusPending,
		Identifier:    identifier,
		BlobPath:      blobPath,
		MetaPath:      metaPath,
		StartedAt:     time.Now().UTC(),
	}

	if err := w.writeEntry(entry); err != nil {
		return nil, fmt.Errorf("не удалось создать WAL-запись: %w", err)
	}

	w.logger.Debug("WAL транзакция начата",
		slog.String("tx_id", entry.TransactionID),
		slog.String("operation", string(entry.Operation)),
		slog.String("identifier", entry.Identifier),
	)

	return entry, nil
}

// Commit помечает транзакцию как успешно завершённую.
func (w *WAL) Commit(txID string) error {
	entry, err := w.finish(txID, StatusCommitted)
	if err != nil {
		return err
	}

	w.logger.Debug("WAL транзакция завершена",
		slog.String("tx_id", txID),
		slog.String("identifier", entry.Identifier),
		slog.Duration("duration", entry.CompletedAt.Sub(entry.StartedAt)),
	)
	return nil
}

// Rollback помечает транзакцию как отменённую.
func (w *WAL) Rollback(txID string) error {
	entry, err := w.finish(txID, StatusRolledBack)
	if err != nil {
		return err
	}

	w.logger.Debug("WAL транзакция отменена",
		slog.String("tx_id", txID),
		slog.String("identifier", entry.Identifier),
	)
	return nil
}

func (w *WAL) finish(txID string, status TransactionStatus) (*Entry, error) {
	entry, err := w.readEntry(txID)
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать WAL-запись %s: %w", txID, err)
	}

	if entry.Status != StatusPending {
		return nil, fmt.Errorf("WAL-запись %s имеет статус %s, ожидается %s", txID, entry.Status, StatusPending)
	}

	now := time.Now().UTC()
	entry.Status = status
	entry.CompletedAt = &now

	if err := w.writeEntry(entry); err != nil {
		return nil, fmt.Errorf("не удалось обновить WAL-запись %s: %w", txID, err)
	}
	return entry, nil
}

// RecoverPending находит и возвращает все WAL-записи со статусом pending.
// Вызывается при старте до приёма запросов.
func (w *WAL) RecoverPending() ([]*Entry, error) {
	var pending []*Entry
	err := w.each(func(path string, entry *Entry) {
		if entry.Status != StatusPending {
			return
		}
		pending = append(pending, entry)
		w.logger.Warn("Обнаружена незавершённая WAL-транзакция",
			slog.String("tx_id", entry.TransactionID),
			slog.String("operation", string(entry.Operation)),
			slog.String("identifier", entry.Identifier),
			slog.Time("started_at", entry.StartedAt),
		)
	})
	if err != nil {
		return nil, err
	}
	return pending, nil
}

// GetTransaction читает WAL-запись по идентификатору транзакции.
func (w *WAL) GetTransaction(txID string) (*Entry, error) {
	return w.readEntry(txID)
}

// CleanCommitted удаляет все завершённые (committed/rolled_back) WAL-записи.
func (w *WAL) CleanCommitted() (int, error) {
	cleaned := 0
	err := w.each(func(path string, entry *Entry) {
		if entry.Status != StatusCommitted && entry.Status != StatusRolledBack {
			return
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			w.logger.Warn("Не удалось удалить завершённую WAL-запись",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			return
		}
		cleaned++
	})
	if err != nil {
		return 0, err
	}

	if cleaned > 0 {
		w.logger.Info("Очистка WAL завершена",
			slog.Int("cleaned", cleaned),
		)
	}
	return cleaned, nil
}

// each вызывает fn для каждой читаемой WAL-записи.
func (w *WAL) each(fn func(path string, entry *Entry)) error {
	paths, err := filepath.Glob(filepath.Join(w.dir, "*"+walSuffix))
	if err != nil {
		return fmt.Errorf("не удалось сканировать директорию WAL: %w", err)
	}

	for _, path := range paths {
		txID := strings.TrimSuffix(filepath.Base(path), walSuffix)
		entry, err := w.readEntry(txID)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			w.logger.Warn("Не удалось прочитать WAL-запись",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			continue
		}
		fn(path, entry)
	}
	return nil
}

// writeEntry атомарно записывает WAL-запись на диск.
// Паттерн: temp файл → fsync → atomic rename.
func (w *WAL) writeEntry(entry *Entry) error {
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("ошибка сериализации: %w", err)
	}

	targetPath := filepath.Join(w.dir, walFileName(entry.TransactionID))
	tmpPath := targetPath + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка записи: %w", err)
	}

	// fsync для гарантии записи на диск
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, targetPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return nil
}

// readEntry читает WAL-запись из файла.
func (w *WAL) readEntry(txID string) (*Entry, error) {
	path := filepath.Join(w.dir, walFileName(txID))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("ошибка десериализации: %w", err)
	}

	return &entry, nil
}

// Dir возвращает путь к директории WAL.
func (w *WAL) Dir() string {
	return w.dir
}
