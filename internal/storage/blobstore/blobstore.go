// Пакет blobstore — операции с физическими файлами на диске.
// Создаёт структуру каталогов хранилища, принимает загрузки во временный
// каталог (с подсчётом SHA-256 на лету) и переносит их в каталог категории
// атомарным rename.
package blobstore

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/bigkaa/docstore/internal/domain/model"
)

const (
	// MaxFolderDepth — максимальная глубина вложенности папок.
	MaxFolderDepth = 8
	// MaxSegmentLen — максимальная длина одного сегмента папки (в символах).
	MaxSegmentLen = 64
	// maxExtLen — максимальная длина расширения без точки.
	maxExtLen = 16

	stagePrefix = "upload-"
	checkName   = ".write-check"
)

var (
	// ErrInvalidFolder — недопустимое имя папки.
	ErrInvalidFolder = errors.New("недопустимое имя папки")
	// ErrStagedMissing — временный файл отсутствует или не является обычным файлом.
	ErrStagedMissing = errors.New("временный файл не найден")
	// ErrDestinationExists — целевой файл уже существует.
	ErrDestinationExists = errors.New("целевой файл уже существует")
)

// BlobStore — управление физическими файлами хранилища.
type BlobStore struct {
	// root — корневой каталог хранилища (DS_STORAGE_DIR)
	root string
	// stageDir — каталог временных файлов загрузки (DS_TEMP_DIR)
	stageDir   string
	categories []model.Category
}

// PlaceResult — результат размещения blob в хранилище.
type PlaceResult struct {
	Category       model.Category
	StoredFileName string
	// FilePath — абсолютный путь blob на диске
	FilePath string
	Size     int64
}

// StagedFile — загрузка, принятая во временный каталог.
type StagedFile struct {
	Path     string
	Size     int64
	Checksum string
}

// New создаёт BlobStore: корневой каталог, по одному каталогу на категорию
// и каталог временных файлов. Повторный вызов на существующей структуре
// безопасен. Проверяет, что корень доступен для записи.
// Пустой stageDir означает <root>/temp.
func New(root string, categories []model.Category, stageDir string) (*BlobStore, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("некорректный путь хранилища %s: %w", root, err)
	}
	if stageDir == "" {
		stageDir = filepath.Join(absRoot, "temp")
	}
	absStage, err := filepath.Abs(stageDir)
	if err != nil {
		return nil, fmt.Errorf("некорректный путь временного каталога %s: %w", stageDir, err)
	}

	dirs := []string{absRoot, absStage}
	for _, c := range categories {
		dirs = append(dirs, filepath.Join(absRoot, string(c)))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("не удалось создать каталог %s: %w", dir, err)
		}
	}

	// Проверка доступности записи
	check := filepath.Join(absRoot, checkName)
	if err := os.WriteFile(check, []byte("check"), 0o640); err != nil {
		return nil, fmt.Errorf("каталог хранилища %s недоступен для записи: %w", absRoot, err)
	}
	os.Remove(check)

	cats := make([]model.Category, len(categories))
	copy(cats, categories)

	return &BlobStore{
		root:       absRoot,
		stageDir:   absStage,
		categories: cats,
	}, nil
}

// Stage записывает данные из reader во временный каталог с подсчётом
// SHA-256 на лету. Вызывающий код передаёт путь в Place либо удаляет файл.
func (bs *BlobStore) Stage(reader io.Reader) (*StagedFile, error) {
	f, err := os.CreateTemp(bs.stageDir, stagePrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}
	tmpPath := f.Name()

	// Streaming запись с одновременным подсчётом SHA-256
	hasher := sha256.New()
	tee := io.TeeReader(reader, hasher)

	size, err := io.Copy(f, tee)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка записи данных: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	return &StagedFile{
		Path:     tmpPath,
		Size:     size,
		Checksum: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// Place переносит временный файл в <root>/<category>/[folder/]<identifier><ext>.
// originalName используется только для расширения. Существующий файл
// никогда не перезаписывается.
func (bs *BlobStore) Place(stagedPath string, category model.Category, originalName, identifier, folder string) (*PlaceResult, error) {
	folder, err := ValidateFolder(folder)
	if err != nil {
		return nil, err
	}

	info, err := os.Lstat(stagedPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrStagedMissing, stagedPath, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s не является обычным файлом", ErrStagedMissing, stagedPath)
	}

	destPath := bs.Destination(category, folder, identifier, originalName)
	destDir := filepath.Dir(destPath)
	if err := os.MkdirAll(destDir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать каталог %s: %w", destDir, err)
	}

	if _, err := os.Lstat(destPath); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrDestinationExists, destPath)
	}

	if err := os.Rename(stagedPath, destPath); err != nil {
		return nil, fmt.Errorf("ошибка перемещения %s → %s: %w", stagedPath, destPath, err)
	}

	return &PlaceResult{
		Category:       category,
		StoredFileName: filepath.Base(destPath),
		FilePath:       destPath,
		Size:           info.Size(),
	}, nil
}

// Destination возвращает путь, по которому Place разместит blob.
// folder должен быть уже проверен ValidateFolder.
func (bs *BlobStore) Destination(category model.Category, folder, identifier, originalName string) string {
	dir := bs.CategoryDir(category)
	if folder != "" {
		dir = filepath.Join(dir, filepath.FromSlash(folder))
	}
	return filepath.Join(dir, identifier+sanitizeExt(originalName))
}

// ValidateFolder проверяет относительный путь папки и возвращает его
// в нормализованном виде (разделитель "/", без крайних слэшей).
// Пустая строка допустима и означает корень каталога категории.
func ValidateFolder(folder string) (string, error) {
	// Клиенты macOS присылают кириллицу в NFD ("й" = "и" + U+0306)
	folder = norm.NFC.String(strings.ReplaceAll(strings.TrimSpace(folder), "\\", "/"))
	if folder == "" {
		return "", nil
	}
	if strings.HasPrefix(folder, "/") {
		return "", fmt.Errorf("%w: абсолютный путь %q", ErrInvalidFolder, folder)
	}
	folder = strings.TrimSuffix(folder, "/")

	segments := strings.Split(folder, "/")
	if len(segments) > MaxFolderDepth {
		return "", fmt.Errorf("%w: глубина %d превышает %d", ErrInvalidFolder, len(segments), MaxFolderDepth)
	}
	for _, seg := range segments {
		if seg == "" || seg == "." || seg == ".." {
			return "", fmt.Errorf("%w: сегмент %q", ErrInvalidFolder, seg)
		}
		if utf8.RuneCountInString(seg) > MaxSegmentLen {
			return "", fmt.Errorf("%w: сегмент длиннее %d символов", ErrInvalidFolder, MaxSegmentLen)
		}
		if !validSegment(seg) {
			return "", fmt.Errorf("%w: недопустимые символы в %q", ErrInvalidFolder, seg)
		}
	}
	return folder, nil
}

// validSegment: буквы, цифры, дефис, подчёркивание, точка, кириллица.
func validSegment(s string) bool {
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.' ||
			(r >= 0x0400 && r <= 0x04FF) { // Кириллица
			continue
		}
		return false
	}
	return true
}

// sanitizeExt возвращает расширение исходного имени в нижнем регистре
// (с точкой), если оно состоит только из латинских букв и цифр и не длиннее
// maxExtLen. Иначе — пустую строку.
func sanitizeExt(originalName string) string {
	ext := filepath.Ext(strings.ReplaceAll(originalName, "\\", "/"))
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" || len(ext) > maxExtLen {
		return ""
	}
	for _, r := range ext {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return ""
		}
	}
	return "." + strings.ToLower(ext)
}

// Exists проверяет существование обычного файла.
func (bs *BlobStore) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Size возвращает размер файла на диске.
func (bs *BlobStore) Size(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("ошибка получения информации о файле %s: %w", path, err)
	}
	return info.Size(), nil
}

// Remove удаляет файл. Возвращает nil, если файла уже нет.
func (bs *BlobStore) Remove(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления файла %s: %w", path, err)
	}
	return nil
}

// ComputeChecksum вычисляет SHA-256 существующего файла.
func (bs *BlobStore) ComputeChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("ошибка открытия файла %s: %w", path, err)
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", fmt.Errorf("ошибка вычисления checksum %s: %w", path, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Root возвращает абсолютный путь корня хранилища.
func (bs *BlobStore) Root() string {
	return bs.root
}

// StageDir возвращает каталог временных файлов.
func (bs *BlobStore) StageDir() string {
	return bs.stageDir
}

// CategoryDir возвращает каталог категории.
func (bs *BlobStore) CategoryDir(c model.Category) string {
	return filepath.Join(bs.root, string(c))
}

// Categories возвращает имена каталогов категорий (для обхода sidecar).
func (bs *BlobStore) Categories() []string {
	dirs := make([]string, len(bs.categories))
	for i, c := range bs.categories {
		dirs[i] = string(c)
	}
	return dirs
}

// IsStaged сообщает, является ли имя файла временным файлом загрузки.
func IsStaged(name string) bool {
	return strings.HasPrefix(name, stagePrefix)
}
