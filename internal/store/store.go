// Пакет store — ядро хранилища документов.
//
// Store принимает подготовленный (staged) файл, определяет категорию
// по MIME-типу, генерирует идентификатор и токен доступа, перемещает blob
// в каталог категории и записывает sidecar с метаданными. По ссылке
// (идентификатору или токену) возвращает FileHandle для отдачи файла.
//
// Координация параллельных операций целиком опирается на файловую систему:
// уникальные идентификаторы гарантируют, что два сохранения не целятся
// в один путь, поэтому глобальной блокировки нет.
package store

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/bigkaa/docstore/internal/domain/model"
	"github.com/bigkaa/docstore/internal/storage/attr"
	"github.com/bigkaa/docstore/internal/storage/blobstore"
	"github.com/bigkaa/docstore/internal/storage/ident"
	"github.com/bigkaa/docstore/internal/storage/index"
	"github.com/bigkaa/docstore/internal/storage/wal"
)

// ReferenceMode — какая ссылка выдаётся клиентам.
type ReferenceMode string

const (
	// ReferenceToken — клиент получает токен доступа.
	ReferenceToken ReferenceMode = "token"
	// ReferenceID — клиент получает идентификатор хранения.
	ReferenceID ReferenceMode = "id"
)

// IndexMode — способ поиска записей.
type IndexMode string

const (
	// IndexMemory — in-memory индекс, построенный при старте.
	IndexMemory IndexMode = "memory"
	// IndexScan — линейный обход sidecar с LRU-кэшем путей.
	IndexScan IndexMode = "scan"
)

// Options — параметры хранилища.
type Options struct {
	// Root — корневой каталог хранилища
	Root string
	// StageDir — каталог временных файлов (пусто = <Root>/temp)
	StageDir string
	// WALDir — каталог журнала сохранений (пусто = <Root>/.wal)
	WALDir string
	// Categories — таблица MIME-тип → категория (nil = таблица по умолчанию)
	Categories *model.CategoryTable

	ReferenceMode ReferenceMode
	IndexMode     IndexMode

	// CacheSize и CacheTTL — параметры LRU-кэша в режиме scan
	CacheSize int
	CacheTTL  time.Duration

	// RecoverGrace — незавершённые сохранения моложе этого возраста не
	// откатываются: журнал общий, и запись может принадлежать живому
	// процессу с тем же корнем (0 = DefaultRecoverGrace)
	RecoverGrace time.Duration
}

// DefaultRecoverGrace — возраст, после которого незавершённое
// сохранение считается брошенным.
const DefaultRecoverGrace = 10 * time.Minute

// SaveParams — параметры сохранения документа.
type SaveParams struct {
	// StagedPath — временный файл, проверенный вызывающим кодом
	StagedPath   string
	OriginalName string
	MimeType     string
	// Size — заявленный размер (0 = не проверять)
	Size int64
	// Checksum — SHA-256, посчитанный при приёме (опционально)
	Checksum string
	// Folder — пользовательская подпапка (опционально)
	Folder string
}

// SaveResult — результат сохранения.
type SaveResult struct {
	Identifier     string
	AccessToken    string
	StoredFileName string
	OriginalName   string
	Category       model.Category
	Size           int64
	// Reference — ссылка для клиента согласно ReferenceMode
	Reference string
}

// Stats — сводка по содержимому хранилища.
type Stats struct {
	Documents  int
	TotalBytes int64
	ByCategory map[model.Category]int
}

// Store — хранилище документов. Создаётся один раз при старте
// и передаётся обработчикам.
type Store struct {
	opts   Options
	table  *model.CategoryTable
	blobs  *blobstore.BlobStore
	wal    *wal.WAL
	idx    *index.Index
	cache  *index.Cache
	logger *slog.Logger
}

// New инициализирует хранилище: создаёт структуру каталогов, открывает
// журнал, завершает прерванные сохранения и (в режиме memory) строит индекс.
// Любая ошибка фатальна для создания хранилища.
func New(opts Options, logger *slog.Logger) (*Store, error) {
	if opts.Categories == nil {
		opts.Categories = model.NewCategoryTable()
	}
	if opts.ReferenceMode == "" {
		opts.ReferenceMode = ReferenceToken
	}
	if opts.IndexMode == "" {
		opts.IndexMode = IndexMemory
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 1024
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	if opts.RecoverGrace <= 0 {
		opts.RecoverGrace = DefaultRecoverGrace
	}

	blobs, err := blobstore.New(opts.Root, opts.Categories.Categories(), opts.StageDir)
	if err != nil {
		return nil, fmt.Errorf("инициализация хранилища: %w", err)
	}

	walDir := opts.WALDir
	if walDir == "" {
		walDir = filepath.Join(blobs.Root(), ".wal")
	}
	journal, err := wal.New(walDir, logger)
	if err != nil {
		return nil, fmt.Errorf("инициализация журнала: %w", err)
	}

	s := &Store{
		opts:   opts,
		table:  opts.Categories,
		blobs:  blobs,
		wal:    journal,
		idx:    index.New(logger),
		cache:  index.NewCache(opts.CacheSize, opts.CacheTTL),
		logger: logger.With(slog.String("component", "store")),
	}

	if _, err := s.Recover(); err != nil {
		return nil, err
	}

	if opts.IndexMode == IndexMemory {
		if err := s.RebuildIndex(); err != nil {
			return nil, err
		}
	}

	s.logger.Info("Хранилище инициализировано",
		slog.String("root", blobs.Root()),
		slog.String("reference_mode", string(opts.ReferenceMode)),
		slog.String("index_mode", string(opts.IndexMode)),
		slog.Any("categories", blobs.Categories()),
	)
	return s, nil
}

// Recover завершает сохранения, прерванные рестартом. Если sidecar
// успел записаться, сохранение считается состоявшимся. Иначе blob
// никогда не был опубликован и удаляется. Записи моложе RecoverGrace
// пропускаются. Возвращает количество обработанных записей.
// Вызывается при старте и периодически из GC.
func (s *Store) Recover() (int, error) {
	pending, err := s.wal.RecoverPending()
	if err != nil {
		return 0, fmt.Errorf("восстановление журнала: %w", err)
	}

	recovered := 0
	for _, e := range pending {
		if age := time.Since(e.StartedAt); age < s.opts.RecoverGrace {
			s.logger.Debug("Незавершённое сохранение пропущено: возможно, выполняется",
				slog.String("tx_id", e.TransactionID),
				slog.Duration("age", age),
			)
			continue
		}

		published := e.MetaPath != "" && s.blobs.Exists(e.MetaPath)
		if published {
			if err := s.wal.Commit(e.TransactionID); err != nil {
				s.logger.Warn("Не удалось завершить WAL-транзакцию", slog.String("tx_id", e.TransactionID), slog.String("error", err.Error()))
				continue
			}
			recovered++
			continue
		}

		if e.BlobPath != "" {
			if err := s.blobs.Remove(e.BlobPath); err != nil {
				s.logger.Warn("Не удалось удалить неопубликованный blob",
					slog.String("path", e.BlobPath),
					slog.String("error", err.Error()),
				)
				continue
			}
		}
		if err := s.wal.Rollback(e.TransactionID); err != nil {
			s.logger.Warn("Не удалось откатить WAL-транзакцию", slog.String("tx_id", e.TransactionID), slog.String("error", err.Error()))
			continue
		}
		recovered++
		s.logger.Info("Прерванное сохранение откачено",
			slog.String("tx_id", e.TransactionID),
			slog.String("identifier", e.Identifier),
		)
	}
	return recovered, nil
}

// Save сохраняет документ.
//
// Порядок:
//  1. Категория по MIME-типу (до любых изменений на диске)
//  2. Проверка папки и имени
//  3. Генерация идентификатора и токена
//  4. WAL StartTransaction
//  5. Перемещение blob
//  6. Запись sidecar (только после успешного перемещения)
//  7. WAL Commit, индекс / кэш
//
// При ошибке записи sidecar blob удаляется, WAL откатывается.
func (s *Store) Save(p SaveParams) (result *SaveResult, err error) {
	defer func() {
		operationsTotal.WithLabelValues("save", resultLabel(err)).Inc()
	}()

	category, ok := s.table.Lookup(p.MimeType)
	if !ok {
		return nil, newError(KindUnsupportedType, "save", p.MimeType, nil)
	}

	folder, err := blobstore.ValidateFolder(p.Folder)
	if err != nil {
		return nil, newError(KindInvalidInput, "save", p.Folder, err)
	}
	if strings.TrimSpace(p.OriginalName) == "" {
		return nil, newError(KindInvalidInput, "save", "", errors.New("пустое имя файла"))
	}

	identifier, err := ident.NewIdentifier()
	if err != nil {
		return nil, newError(KindStorageIO, "save", "", err)
	}
	var token string
	if s.opts.ReferenceMode == ReferenceToken {
		if token, err = ident.NewAccessToken(); err != nil {
			return nil, newError(KindStorageIO, "save", "", err)
		}
	}

	blobPath := s.blobs.Destination(category, folder, identifier, p.OriginalName)
	metaPath := attr.MetaFilePath(blobPath)

	tx, err := s.wal.StartTransaction(wal.OpSave, identifier, blobPath, metaPath)
	if err != nil {
		return nil, newError(KindStorageIO, "save", identifier, err)
	}
	rollback := func() {
		if rbErr := s.wal.Rollback(tx.TransactionID); rbErr != nil {
			s.logger.Error("Ошибка отката WAL",
				slog.String("tx_id", tx.TransactionID),
				slog.String("error", rbErr.Error()),
			)
		}
	}

	placed, err := s.blobs.Place(p.StagedPath, category, p.OriginalName, identifier, folder)
	if err != nil {
		rollback()
		return nil, newError(KindStorageIO, "save", identifier, err)
	}

	if p.Size > 0 && p.Size != placed.Size {
		s.logger.Warn("Заявленный размер не совпадает с размером на диске",
			slog.String("identifier", identifier),
			slog.Int64("declared", p.Size),
			slog.Int64("actual", placed.Size),
		)
	}

	rec := &model.FileRecord{
		Identifier:     identifier,
		AccessToken:    token,
		OriginalName:   p.OriginalName,
		StoredFileName: placed.StoredFileName,
		MimeType:       p.MimeType,
		Size:           placed.Size,
		Checksum:       p.Checksum,
		UploadedAt:     time.Now().UTC(),
		Category:       category,
		Folder:         folder,
		FilePath:       placed.FilePath,
	}

	if err := attr.Write(metaPath, rec); err != nil {
		if rmErr := s.blobs.Remove(placed.FilePath); rmErr != nil {
			s.logger.Error("Не удалось удалить blob после ошибки записи метаданных",
				slog.String("path", placed.FilePath),
				slog.String("error", rmErr.Error()),
			)
		}
		rollback()
		return nil, newError(KindStorageIO, "save", identifier, err)
	}

	if err := s.wal.Commit(tx.TransactionID); err != nil {
		// Транзакцию мог откатить другой процесс вместе с blob
		if !s.blobs.Exists(placed.FilePath) {
			if delErr := attr.Delete(metaPath); delErr != nil {
				s.logger.Error("Не удалось удалить sidecar без blob",
					slog.String("path", metaPath),
					slog.String("error", delErr.Error()),
				)
			}
			return nil, newError(KindStorageIO, "save", identifier, fmt.Errorf("blob удалён до коммита: %w", err))
		}
		// Данные записаны, коммит WAL — best effort
		s.logger.Error("Ошибка коммита WAL (данные сохранены)",
			slog.String("tx_id", tx.TransactionID),
			slog.String("identifier", identifier),
			slog.String("error", err.Error()),
		)
	}

	switch s.opts.IndexMode {
	case IndexMemory:
		s.idx.Add(rec, metaPath)
	case IndexScan:
		s.cache.Set(idKey(identifier), metaPath)
		if token != "" {
			s.cache.Set(tokenKey(token), metaPath)
		}
	}

	savedBytesTotal.WithLabelValues(string(category)).Add(float64(placed.Size))
	DocumentsTotal.WithLabelValues(string(category)).Inc()

	s.logger.Info("Документ сохранён",
		slog.String("identifier", identifier),
		slog.String("category", string(category)),
		slog.String("folder", folder),
		slog.Int64("size", placed.Size),
	)

	result = &SaveResult{
		Identifier:     identifier,
		AccessToken:    token,
		StoredFileName: placed.StoredFileName,
		OriginalName:   p.OriginalName,
		Category:       category,
		Size:           placed.Size,
		Reference:      identifier,
	}
	if s.opts.ReferenceMode == ReferenceToken {
		result.Reference = token
	}
	return result, nil
}

// Resolve разрешает ссылку в режиме ReferenceMode.
func (s *Store) Resolve(ref string) (*model.FileHandle, error) {
	if s.opts.ReferenceMode == ReferenceID {
		return s.ResolveByID(ref)
	}
	return s.ResolveByToken(ref)
}

// ResolveByID разрешает идентификатор хранения в FileHandle.
func (s *Store) ResolveByID(identifier string) (*model.FileHandle, error) {
	rec, err := s.lookup("resolve", identifier, false)
	operationsTotal.WithLabelValues("resolve", resultLabel(err)).Inc()
	if err != nil {
		return nil, err
	}
	return rec.Handle(), nil
}

// ResolveByToken разрешает токен доступа в FileHandle.
func (s *Store) ResolveByToken(token string) (*model.FileHandle, error) {
	rec, err := s.lookup("resolve", token, true)
	operationsTotal.WithLabelValues("resolve", resultLabel(err)).Inc()
	if err != nil {
		return nil, err
	}
	return rec.Handle(), nil
}

// Lookup возвращает запись по ссылке в режиме ReferenceMode.
// Используется сервером; клиентам запись целиком не отдаётся.
func (s *Store) Lookup(ref string) (*model.FileRecord, error) {
	return s.lookup("lookup", ref, s.opts.ReferenceMode == ReferenceToken)
}

// lookup находит запись и проверяет наличие blob. Ничего не изменяет
// на диске.
func (s *Store) lookup(op, ref string, byToken bool) (*model.FileRecord, error) {
	if byToken && !ident.IsHex(ref, ident.TokenBytes*2) {
		return nil, newError(KindNotFound, op, ref, nil)
	}
	if !byToken && !ident.IsHex(ref, ident.IdentifierBytes*2) {
		return nil, newError(KindNotFound, op, ref, nil)
	}

	var (
		rec      *model.FileRecord
		metaPath string
	)
	if s.opts.IndexMode == IndexMemory {
		if byToken {
			rec, metaPath = s.idx.GetByToken(ref)
		} else {
			rec, metaPath = s.idx.GetByID(ref)
		}
		// Документ мог сохранить другой процесс с тем же корнем
		if rec == nil {
			if rec, metaPath = s.scanLookup(ref, byToken); rec != nil {
				s.idx.Add(rec, metaPath)
			}
		}
	} else {
		rec, metaPath = s.scanLookup(ref, byToken)
	}
	if rec == nil {
		return nil, newError(KindNotFound, op, ref, nil)
	}

	// Sidecar лежит рядом с blob, его расположение надёжнее сохранённого пути
	if metaPath != "" {
		rec.FilePath = attr.DataFilePathFromMeta(metaPath)
	}

	if !s.blobs.Exists(rec.FilePath) {
		s.logger.Warn("Метаданные без blob",
			slog.String("identifier", rec.Identifier),
			slog.String("path", rec.FilePath),
		)
		return nil, newError(KindNotFound, op, ref, errors.New("blob отсутствует"))
	}
	return rec, nil
}

// scanLookup ищет запись линейным обходом с кэшем путей.
// Повреждённый sidecar из кэша пропускается, поиск продолжается обходом.
func (s *Store) scanLookup(ref string, byToken bool) (*model.FileRecord, string) {
	key := idKey(ref)
	if byToken {
		key = tokenKey(ref)
	}

	if path, ok := s.cache.Get(key); ok {
		rec, err := attr.Read(path)
		if err == nil && matches(rec, ref, byToken) {
			return rec, path
		}
		if errors.Is(err, attr.ErrCorrupt) {
			s.onCorrupt(path, err)
		}
		s.cache.Delete(key)
	}

	start := time.Now()
	var (
		rec  *model.FileRecord
		path string
		err  error
	)
	if byToken {
		rec, path, err = attr.FindByToken(s.blobs.Root(), s.blobs.Categories(), ref, s.onCorrupt)
		scanDuration.WithLabelValues("token").Observe(time.Since(start).Seconds())
	} else {
		rec, path, err = attr.FindByIdentifier(s.blobs.Root(), s.blobs.Categories(), ref, s.onCorrupt)
		scanDuration.WithLabelValues("identifier").Observe(time.Since(start).Seconds())
	}
	if err != nil {
		// Ошибка обхода (например, недоступный каталог категории) — запись
		// не найдена, причина в логе
		s.logger.Error("Ошибка обхода метаданных", slog.String("error", err.Error()))
		return nil, ""
	}
	if rec != nil {
		s.cache.Set(key, path)
	}
	return rec, path
}

func matches(rec *model.FileRecord, ref string, byToken bool) bool {
	if byToken {
		return rec.AccessToken == ref
	}
	return rec.Identifier == ref
}

// onCorrupt логирует повреждённый sidecar и продолжает обход.
func (s *Store) onCorrupt(path string, err error) {
	metadataCorruptTotal.Inc()
	s.logger.Warn("Повреждённый sidecar пропущен",
		slog.String("path", path),
		slog.String("error", err.Error()),
	)
}

// RebuildIndex пересобирает in-memory индекс (режим memory) или
// сбрасывает кэш путей (режим scan).
func (s *Store) RebuildIndex() error {
	if s.opts.IndexMode == IndexScan {
		s.cache.Purge()
		return nil
	}

	start := time.Now()
	err := s.idx.RebuildFromDir(s.blobs.Root(), s.blobs.Categories(), s.onCorrupt)
	scanDuration.WithLabelValues("index").Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("построение индекса: %w", err)
	}
	s.updateGauge(s.idx.CountByCategory())
	return nil
}

// Stats возвращает сводку по хранилищу. В режиме scan выполняет полный обход.
func (s *Store) Stats() (*Stats, error) {
	if s.opts.IndexMode == IndexMemory {
		return &Stats{
			Documents:  s.idx.Count(),
			TotalBytes: s.idx.TotalSize(),
			ByCategory: s.idx.CountByCategory(),
		}, nil
	}

	st := &Stats{ByCategory: make(map[model.Category]int)}
	err := attr.Walk(s.blobs.Root(), s.blobs.Categories(), func(_ string, rec *model.FileRecord) error {
		st.Documents++
		st.TotalBytes += rec.Size
		st.ByCategory[rec.Category]++
		return nil
	}, s.onCorrupt)
	if err != nil {
		return nil, fmt.Errorf("подсчёт документов: %w", err)
	}
	s.updateGauge(st.ByCategory)
	return st, nil
}

func (s *Store) updateGauge(counts map[model.Category]int) {
	for _, c := range s.table.Categories() {
		DocumentsTotal.WithLabelValues(string(c)).Set(float64(counts[c]))
	}
}

// Ready сообщает, готово ли хранилище обслуживать запросы.
func (s *Store) Ready() bool {
	return s.opts.IndexMode == IndexScan || s.idx.IsReady()
}

// Blobs возвращает файловое хранилище (для сверки и очистки).
func (s *Store) Blobs() *blobstore.BlobStore {
	return s.blobs
}

// WAL возвращает журнал сохранений.
func (s *Store) WAL() *wal.WAL {
	return s.wal
}

// Categories возвращает таблицу категорий.
func (s *Store) Categories() *model.CategoryTable {
	return s.table
}

// ReferenceMode возвращает режим выдачи ссылок.
func (s *Store) ReferenceMode() ReferenceMode {
	return s.opts.ReferenceMode
}

// IndexMode возвращает режим поиска.
func (s *Store) IndexMode() IndexMode {
	return s.opts.IndexMode
}

func idKey(id string) string       { return "id:" + id }
func tokenKey(token string) string { return "token:" + token }
