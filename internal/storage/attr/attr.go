// Пакет attr — чтение и запись sidecar-файлов метаданных (*.meta.json).
// Каждый blob в хранилище имеет сопутствующий <blob>.meta.json,
// который является единственным источником истины для метаданных.
// Запись атомарна: temp → fsync → rename.
package attr

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bigkaa/docstore/internal/domain/model"
)

// MetaSuffix — суффикс sidecar-файла метаданных.
const MetaSuffix = ".meta.json"

// maxMetaFileSize — максимальный размер sidecar (4 КБ).
// Ограничение гарантирует атомарность записи.
const maxMetaFileSize = 4096

var (
	// ErrCorrupt — sidecar не удалось разобрать.
	ErrCorrupt = errors.New("метаданные повреждены")
	// ErrStop — возвращается из WalkFunc для досрочного завершения обхода.
	ErrStop = errors.New("обход остановлен")
)

// MetaFilePath возвращает путь к sidecar для данного blob.
// Пример: "/data/pdf/ab12.pdf" → "/data/pdf/ab12.pdf.meta.json"
func MetaFilePath(dataFilePath string) string {
	return dataFilePath + MetaSuffix
}

// DataFilePathFromMeta возвращает путь к blob из пути sidecar.
func DataFilePathFromMeta(metaPath string) string {
	return strings.TrimSuffix(metaPath, MetaSuffix)
}

// IsMetaFile проверяет, является ли путь sidecar-файлом.
func IsMetaFile(path string) bool {
	return strings.HasSuffix(path, MetaSuffix)
}

// Write атомарно записывает метаданные в sidecar.
// Возвращает ошибку, если сериализованные данные превышают 4 КБ.
func Write(path string, rec *model.FileRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("ошибка сериализации метаданных: %w", err)
	}

	if len(data) > maxMetaFileSize {
		return fmt.Errorf("размер sidecar (%d байт) превышает максимум (%d байт)", len(data), maxMetaFileSize)
	}

	tmpPath := path + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка записи: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return nil
}

// Read читает sidecar. Неизвестные поля игнорируются, отсутствующие
// необязательные поля получают значения по умолчанию. Ошибка разбора
// оборачивает ErrCorrupt; отсутствие файла — fs.ErrNotExist.
func Read(path string) (*model.FileRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения sidecar %s: %w", path, err)
	}

	var rec model.FileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	if rec.Identifier == "" {
		return nil, fmt.Errorf("%w: %s: отсутствует identifier", ErrCorrupt, path)
	}

	// Путь к blob однозначно выводится из расположения sidecar
	dataPath := DataFilePathFromMeta(path)
	if rec.FilePath == "" {
		rec.FilePath = dataPath
	}
	if rec.StoredFileName == "" {
		rec.StoredFileName = filepath.Base(dataPath)
	}

	return &rec, nil
}

// Delete удаляет sidecar. Возвращает nil, если файла уже нет.
func Delete(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления sidecar %s: %w", path, err)
	}
	return nil
}

// WalkFunc вызывается для каждого прочитанного sidecar.
type WalkFunc func(metaPath string, rec *model.FileRecord) error

// CorruptFunc вызывается для каждого sidecar, который не удалось прочитать.
type CorruptFunc func(metaPath string, err error)

// Walk рекурсивно обходит каталоги dirs внутри root (на любую глубину
// вложенности папок) и вызывает fn для каждого sidecar. Повреждённые
// sidecar передаются в onCorrupt и пропускаются, обход продолжается.
// Отсутствующий каталог категории не является ошибкой.
func Walk(root string, dirs []string, fn WalkFunc, onCorrupt CorruptFunc) error {
	return walk(root, dirs, nil, fn, onCorrupt)
}

// FindByToken ищет sidecar с указанным токеном доступа линейным обходом.
// Возвращает (nil, "", nil), если запись не найдена.
func FindByToken(root string, dirs []string, token string, onCorrupt CorruptFunc) (*model.FileRecord, string, error) {
	return find(root, dirs, nil, func(rec *model.FileRecord) bool {
		return rec.AccessToken != "" && rec.AccessToken == token
	}, onCorrupt)
}

// FindByIdentifier ищет sidecar с указанным идентификатором.
// Имя blob начинается с идентификатора, поэтому sidecar других файлов
// не читаются.
func FindByIdentifier(root string, dirs []string, identifier string, onCorrupt CorruptFunc) (*model.FileRecord, string, error) {
	byName := func(name string) bool {
		return strings.HasPrefix(name, identifier)
	}
	return find(root, dirs, byName, func(rec *model.FileRecord) bool {
		return rec.Identifier == identifier
	}, onCorrupt)
}

func find(
	root string,
	dirs []string,
	nameFilter func(string) bool,
	match func(*model.FileRecord) bool,
	onCorrupt CorruptFunc,
) (*model.FileRecord, string, error) {
	var found *model.FileRecord
	var foundPath string
	err := walk(root, dirs, nameFilter, func(path string, rec *model.FileRecord) error {
		if match(rec) {
			found, foundPath = rec, path
			return ErrStop
		}
		return nil
	}, onCorrupt)
	if err != nil {
		return nil, "", err
	}
	return found, foundPath, nil
}

// walk — общий обход. nameFilter (опционально) отбрасывает sidecar по имени
// файла до чтения с диска.
func walk(root string, dirs []string, nameFilter func(string) bool, fn WalkFunc, onCorrupt CorruptFunc) error {
	for _, dir := range dirs {
		base := filepath.Join(root, dir)
		err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				// Недоступный каталог (в том числе каталог категории)
				// не должен прерывать обход остальных
				if onCorrupt != nil {
					onCorrupt(path, err)
				}
				if d == nil || d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			name := d.Name()
			if d.IsDir() || !IsMetaFile(name) {
				return nil
			}
			if nameFilter != nil && !nameFilter(name) {
				return nil
			}

			rec, readErr := Read(path)
			if readErr != nil {
				if onCorrupt != nil {
					onCorrupt(path, readErr)
				}
				return nil
			}
			return fn(path, rec)
		})
		if errors.Is(err, ErrStop) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("ошибка обхода каталога %s: %w", base, err)
		}
	}
	return nil
}
