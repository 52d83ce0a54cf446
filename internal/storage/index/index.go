// Пакет index — потокобезопасный in-memory индекс метаданных документов.
//
// Индекс строится при старте из sidecar-файлов (BuildFromDir)
// и пополняется синхронно при сохранении (Add). Даёт поиск по
// идентификатору и по токену доступа за O(1) без обращения к диску.
//
// Не персистентный: при рестарте пересобирается из *.meta.json.
package index

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/bigkaa/docstore/internal/domain/model"
	"github.com/bigkaa/docstore/internal/storage/attr"
)

// Index — потокобезопасный in-memory индекс метаданных.
// Блокировка удерживается только на время операций с map.
type Index struct {
	mu      sync.RWMutex
	byID    map[string]*indexed // identifier → запись
	byToken map[string]string   // access token → identifier
	ready   bool
	logger  *slog.Logger

	// Записи, добавленные во время пересборки. Обход мог пройти их
	// каталог раньше, поэтому они вливаются в новые map при подмене.
	building int
	pending  map[string]*indexed
}

// indexed — запись вместе с путём к её sidecar.
type indexed struct {
	rec      model.FileRecord
	metaPath string
}

// New создаёт пустой индекс. Для заполнения вызовите BuildFromDir.
func New(logger *slog.Logger) *Index {
	return &Index{
		byID:    make(map[string]*indexed),
		byToken: make(map[string]string),
		logger:  logger.With(slog.String("component", "index")),
	}
}

// BuildFromDir строит индекс из sidecar-файлов в каталогах dirs внутри root.
// Заменяет текущее содержимое индекса. Обход выполняется без блокировки,
// под блокировкой только подмена map. Записи, добавленные через Add во
// время обхода, сохраняются. Повреждённые sidecar передаются в onCorrupt
// и в индекс не попадают.
func (idx *Index) BuildFromDir(root string, dirs []string, onCorrupt attr.CorruptFunc) error {
	idx.mu.Lock()
	if idx.building == 0 {
		idx.pending = make(map[string]*indexed)
	}
	idx.building++
	idx.mu.Unlock()

	byID := make(map[string]*indexed)
	byToken := make(map[string]string)

	err := attr.Walk(root, dirs, func(metaPath string, rec *model.FileRecord) error {
		if prev, ok := byID[rec.Identifier]; ok {
			idx.logger.Warn("Дубликат идентификатора в хранилище",
				slog.String("identifier", rec.Identifier),
				slog.String("path", metaPath),
				slog.String("previous", prev.metaPath),
			)
			return nil
		}
		byID[rec.Identifier] = &indexed{rec: *rec, metaPath: metaPath}
		if rec.AccessToken != "" {
			byToken[rec.AccessToken] = rec.Identifier
		}
		return nil
	}, onCorrupt)

	idx.mu.Lock()
	idx.building--
	if err != nil {
		if idx.building == 0 {
			idx.pending = nil
		}
		idx.mu.Unlock()
		return fmt.Errorf("ошибка сканирования хранилища %s: %w", root, err)
	}
	for id, e := range idx.pending {
		if prev, ok := byID[id]; ok && prev.rec.AccessToken != "" {
			delete(byToken, prev.rec.AccessToken)
		}
		byID[id] = e
		if e.rec.AccessToken != "" {
			byToken[e.rec.AccessToken] = id
		}
	}
	if idx.building == 0 {
		idx.pending = nil
	}
	idx.byID = byID
	idx.byToken = byToken
	idx.ready = true
	idx.mu.Unlock()

	idx.logger.Info("Индекс метаданных построен",
		slog.Int("files", len(byID)),
		slog.String("root", root),
	)
	return nil
}

// RebuildFromDir полностью пересобирает индекс.
// Аналогичен BuildFromDir, используется при reconciliation.
func (idx *Index) RebuildFromDir(root string, dirs []string, onCorrupt attr.CorruptFunc) error {
	return idx.BuildFromDir(root, dirs, onCorrupt)
}

// IsReady возвращает true, если индекс построен.
func (idx *Index) IsReady() bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.ready
}

// Add добавляет запись в индекс.
// Запись с тем же идентификатором перезаписывается.
func (idx *Index) Add(rec *model.FileRecord, metaPath string) {
	// Копия, чтобы избежать data race при внешних изменениях
	entry := &indexed{rec: *rec, metaPath: metaPath}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if prev, ok := idx.byID[rec.Identifier]; ok && prev.rec.AccessToken != "" {
		delete(idx.byToken, prev.rec.AccessToken)
	}
	idx.byID[rec.Identifier] = entry
	if rec.AccessToken != "" {
		idx.byToken[rec.AccessToken] = rec.Identifier
	}
	if idx.building > 0 {
		idx.pending[rec.Identifier] = entry
	}
}

// GetByID возвращает копию записи и путь к sidecar по идентификатору.
// Возвращает (nil, ""), если запись не найдена.
func (idx *Index) GetByID(identifier string) (*model.FileRecord, string) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	e, ok := idx.byID[identifier]
	if !ok {
		return nil, ""
	}
	copied := e.rec
	return &copied, e.metaPath
}

// GetByToken возвращает копию записи и путь к sidecar по токену доступа.
func (idx *Index) GetByToken(token string) (*model.FileRecord, string) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	id, ok := idx.byToken[token]
	if !ok {
		return nil, ""
	}
	e := idx.byID[id]
	copied := e.rec
	return &copied, e.metaPath
}

// Count возвращает количество записей в индексе.
func (idx *Index) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.byID)
}

// CountByCategory возвращает количество записей по категориям.
func (idx *Index) CountByCategory() map[model.Category]int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	counts := make(map[model.Category]int)
	for _, e := range idx.byID {
		counts[e.rec.Category]++
	}
	return counts
}

// TotalSize возвращает суммарный размер всех документов в байтах.
func (idx *Index) TotalSize() int64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var total int64
	for _, e := range idx.byID {
		total += e.rec.Size
	}
	return total
}
