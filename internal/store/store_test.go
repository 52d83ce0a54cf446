package store

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/docstore/internal/domain/model"
	"github.com/bigkaa/docstore/internal/storage/attr"
	"github.com/bigkaa/docstore/internal/storage/ident"
	"github.com/bigkaa/docstore/internal/storage/wal"
)

// testLogger возвращает логгер для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// newTestStore создаёт хранилище в указанном каталоге.
func newTestStore(t *testing.T, root string, ref ReferenceMode, idx IndexMode) *Store {
	t.Helper()
	s, err := New(Options{Root: root, ReferenceMode: ref, IndexMode: idx}, testLogger())
	if err != nil {
		t.Fatalf("ошибка создания хранилища: %v", err)
	}
	return s
}

// stageFile кладёт содержимое во временный каталог хранилища.
func stageFile(t *testing.T, s *Store, content string) string {
	t.Helper()
	sf, err := s.Blobs().Stage(strings.NewReader(content))
	if err != nil {
		t.Fatalf("ошибка Stage: %v", err)
	}
	return sf.Path
}

// listTree возвращает отсортированный список путей внутри root.
func listTree(t *testing.T, root string) []string {
	t.Helper()
	var paths []string
	err := filepath.WalkDir(root, func(path string, _ fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		t.Fatalf("ошибка обхода: %v", err)
	}
	sort.Strings(paths)
	return paths
}

var allModes = []struct {
	name string
	ref  ReferenceMode
	idx  IndexMode
}{
	{"token/memory", ReferenceToken, IndexMemory},
	{"token/scan", ReferenceToken, IndexScan},
	{"id/memory", ReferenceID, IndexMemory},
	{"id/scan", ReferenceID, IndexScan},
}

// TestNew_CreatesLayout проверяет создание каталогов категорий и temp.
func TestNew_CreatesLayout(t *testing.T) {
	root := filepath.Join(t.TempDir(), "storage")
	s := newTestStore(t, root, ReferenceToken, IndexMemory)

	for _, dir := range []string{"pdf", "word", "temp", ".wal"} {
		if info, err := os.Stat(filepath.Join(root, dir)); err != nil || !info.IsDir() {
			t.Errorf("каталог %s не создан: %v", dir, err)
		}
	}
	if !s.Ready() {
		t.Error("хранилище должно быть готово после инициализации")
	}
}

// TestNew_Fatal проверяет, что ошибка создания корня возвращается вызывающему.
func TestNew_Fatal(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	os.WriteFile(blocker, []byte("x"), 0o640)

	if _, err := New(Options{Root: filepath.Join(blocker, "storage")}, testLogger()); err == nil {
		t.Fatal("ожидалась ошибка инициализации")
	}
}

// TestSaveAndResolve_EndToEnd проверяет сохранение 12-байтового PDF.
func TestSaveAndResolve_EndToEnd(t *testing.T) {
	root := t.TempDir()
	s := newTestStore(t, root, ReferenceID, IndexMemory)
	content := "%PDF-1.4 abc"

	res, err := s.Save(SaveParams{
		StagedPath:   stageFile(t, s, content),
		OriginalName: "report.pdf",
		MimeType:     "application/pdf",
		Size:         12,
	})
	if err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}

	if res.Category != model.CategoryPDF {
		t.Errorf("Category: ожидалось pdf, получено %s", res.Category)
	}
	if len(res.Identifier) < 32 || !ident.IsHex(res.Identifier, len(res.Identifier)) {
		t.Errorf("идентификатор должен быть hex длиной ≥ 32: %q", res.Identifier)
	}
	if res.StoredFileName != res.Identifier+".pdf" || res.OriginalName != "report.pdf" {
		t.Errorf("неверный результат: %+v", res)
	}
	if res.Reference != res.Identifier {
		t.Errorf("в режиме id ссылка должна совпадать с идентификатором")
	}

	blobPath := filepath.Join(root, "pdf", res.Identifier+".pdf")
	data, err := os.ReadFile(blobPath)
	if err != nil {
		t.Fatalf("blob не найден: %v", err)
	}
	if string(data) != content {
		t.Errorf("содержимое blob: %q", data)
	}

	h, err := s.Resolve(res.Identifier)
	if err != nil {
		t.Fatalf("ошибка resolve: %v", err)
	}
	if h.DisplayName != "report.pdf" || h.MimeType != "application/pdf" {
		t.Errorf("неверный handle: %+v", h)
	}
	if h.Path != blobPath || h.Size != 12 {
		t.Errorf("handle указывает не на тот blob: %+v", h)
	}

	// Sidecar рядом с blob
	rec, err := attr.Read(attr.MetaFilePath(blobPath))
	if err != nil {
		t.Fatalf("sidecar не прочитан: %v", err)
	}
	if rec.Size != 12 || rec.Category != model.CategoryPDF {
		t.Errorf("неверный sidecar: %+v", rec)
	}
}

// TestSaveAndResolve_AllModes проверяет round-trip во всех режимах.
func TestSaveAndResolve_AllModes(t *testing.T) {
	for _, m := range allModes {
		t.Run(m.name, func(t *testing.T) {
			s := newTestStore(t, t.TempDir(), m.ref, m.idx)
			content := "word document body"

			res, err := s.Save(SaveParams{
				StagedPath:   stageFile(t, s, content),
				OriginalName: "Отчёт.docx",
				MimeType:     model.MimeDOCX,
			})
			if err != nil {
				t.Fatalf("ошибка сохранения: %v", err)
			}

			if m.ref == ReferenceToken {
				if res.Reference != res.AccessToken || !ident.IsHex(res.AccessToken, 32) {
					t.Errorf("в режиме token ссылка — токен доступа: %+v", res)
				}
				if res.AccessToken == res.Identifier {
					t.Error("токен должен отличаться от идентификатора")
				}
			}

			h, err := s.Resolve(res.Reference)
			if err != nil {
				t.Fatalf("ошибка resolve: %v", err)
			}
			if h.DisplayName != "Отчёт.docx" || h.MimeType != model.MimeDOCX {
				t.Errorf("неверный handle: %+v", h)
			}
			info, err := os.Stat(h.Path)
			if err != nil || info.Size() != int64(len(content)) {
				t.Errorf("blob размером %d не найден: %v", len(content), err)
			}

			// Прямое разрешение по идентификатору работает в любом режиме
			byID, err := s.ResolveByID(res.Identifier)
			if err != nil || byID.Path != h.Path {
				t.Errorf("ResolveByID: %+v, %v", byID, err)
			}
		})
	}
}

// TestResolve_Idempotent проверяет, что повторные вызовы дают одинаковый результат.
func TestResolve_Idempotent(t *testing.T) {
	for _, m := range allModes {
		t.Run(m.name, func(t *testing.T) {
			s := newTestStore(t, t.TempDir(), m.ref, m.idx)
			res, err := s.Save(SaveParams{StagedPath: stageFile(t, s, "x"), OriginalName: "a.pdf", MimeType: model.MimePDF})
			if err != nil {
				t.Fatalf("ошибка сохранения: %v", err)
			}

			first, err := s.Resolve(res.Reference)
			if err != nil {
				t.Fatalf("ошибка resolve: %v", err)
			}
			for i := 0; i < 5; i++ {
				again, err := s.Resolve(res.Reference)
				if err != nil {
					t.Fatalf("ошибка resolve: %v", err)
				}
				if *again != *first {
					t.Errorf("результаты различаются: %+v и %+v", first, again)
				}
			}
		})
	}
}

// TestSave_UnsupportedTypeNoMutation проверяет отказ без изменений на диске.
func TestSave_UnsupportedTypeNoMutation(t *testing.T) {
	root := t.TempDir()
	s := newTestStore(t, root, ReferenceToken, IndexMemory)
	staged := stageFile(t, s, "plain text")

	before := listTree(t, root)
	_, err := s.Save(SaveParams{StagedPath: staged, OriginalName: "a.txt", MimeType: "text/plain"})
	after := listTree(t, root)

	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("ожидалась ErrUnsupportedType, получено %v", err)
	}
	if KindOf(err) != KindUnsupportedType {
		t.Errorf("KindOf: получено %s", KindOf(err))
	}
	if strings.Join(before, "\n") != strings.Join(after, "\n") {
		t.Errorf("содержимое хранилища изменилось:\nдо: %v\nпосле: %v", before, after)
	}
}

// TestSave_ImagesOptional проверяет, что изображения принимаются только при включении.
func TestSave_ImagesOptional(t *testing.T) {
	s := newTestStore(t, t.TempDir(), ReferenceToken, IndexMemory)
	if _, err := s.Save(SaveParams{StagedPath: stageFile(t, s, "png"), OriginalName: "a.png", MimeType: model.MimePNG}); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("без WithImages ожидалась ErrUnsupportedType, получено %v", err)
	}

	root := t.TempDir()
	withImages, err := New(Options{Root: root, Categories: model.NewCategoryTable(model.WithImages())}, testLogger())
	if err != nil {
		t.Fatalf("ошибка создания хранилища: %v", err)
	}
	res, err := withImages.Save(SaveParams{StagedPath: stageFile(t, withImages, "png"), OriginalName: "a.png", MimeType: model.MimePNG})
	if err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}
	if res.Category != model.CategoryImage {
		t.Errorf("Category: ожидалось image, получено %s", res.Category)
	}
	if _, err := os.Stat(filepath.Join(root, "image", res.StoredFileName)); err != nil {
		t.Errorf("blob не найден в каталоге image: %v", err)
	}
}

// TestSave_InvalidInput проверяет отказ при некорректной папке и имени.
func TestSave_InvalidInput(t *testing.T) {
	s := newTestStore(t, t.TempDir(), ReferenceToken, IndexMemory)
	staged := stageFile(t, s, "x")

	cases := []SaveParams{
		{StagedPath: staged, OriginalName: "a.pdf", MimeType: model.MimePDF, Folder: "../escape"},
		{StagedPath: staged, OriginalName: "a.pdf", MimeType: model.MimePDF, Folder: "/abs"},
		{StagedPath: staged, OriginalName: "  ", MimeType: model.MimePDF},
	}
	for _, p := range cases {
		_, err := s.Save(p)
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("%+v: ожидалась ErrInvalidInput, получено %v", p, err)
		}
	}
	if _, err := os.Stat(staged); err != nil {
		t.Error("временный файл не должен быть перемещён при отказе")
	}
}

// TestSave_MissingStaged проверяет ошибку StorageIO и отсутствие метаданных.
func TestSave_MissingStaged(t *testing.T) {
	root := t.TempDir()
	s := newTestStore(t, root, ReferenceToken, IndexMemory)

	_, err := s.Save(SaveParams{
		StagedPath:   filepath.Join(s.Blobs().StageDir(), "gone"),
		OriginalName: "a.pdf",
		MimeType:     model.MimePDF,
	})
	if !errors.Is(err, ErrStorageIO) {
		t.Fatalf("ожидалась ErrStorageIO, получено %v", err)
	}

	entries, _ := os.ReadDir(filepath.Join(root, "pdf"))
	if len(entries) != 0 {
		t.Errorf("в каталоге категории не должно быть файлов: %d", len(entries))
	}
	if pending, _ := s.WAL().RecoverPending(); len(pending) != 0 {
		t.Errorf("WAL-транзакция должна быть откачена")
	}
}

// TestResolve_Orphan проверяет NotFound после удаления blob.
func TestResolve_Orphan(t *testing.T) {
	for _, m := range allModes {
		t.Run(m.name, func(t *testing.T) {
			s := newTestStore(t, t.TempDir(), m.ref, m.idx)
			res, err := s.Save(SaveParams{StagedPath: stageFile(t, s, "x"), OriginalName: "a.pdf", MimeType: model.MimePDF})
			if err != nil {
				t.Fatalf("ошибка сохранения: %v", err)
			}
			h, err := s.Resolve(res.Reference)
			if err != nil {
				t.Fatalf("ошибка resolve: %v", err)
			}

			if err := os.Remove(h.Path); err != nil {
				t.Fatalf("ошибка удаления blob: %v", err)
			}

			if _, err := s.Resolve(res.Reference); !errors.Is(err, ErrNotFound) {
				t.Errorf("ожидалась ErrNotFound, получено %v", err)
			}
		})
	}
}

// TestResolve_NotFound проверяет неизвестные и некорректные ссылки.
func TestResolve_NotFound(t *testing.T) {
	for _, m := range allModes {
		t.Run(m.name, func(t *testing.T) {
			s := newTestStore(t, t.TempDir(), m.ref, m.idx)
			for _, ref := range []string{"", "../../etc/passwd", strings.Repeat("0", 32), strings.Repeat("0", 64), "ZZ"} {
				if _, err := s.Resolve(ref); !errors.Is(err, ErrNotFound) {
					t.Errorf("Resolve(%q): ожидалась ErrNotFound, получено %v", ref, err)
				}
			}
		})
	}
}

// TestResolve_NestedFolders проверяет разрешение на любой глубине вложенности.
func TestResolve_NestedFolders(t *testing.T) {
	for _, m := range allModes {
		t.Run(m.name, func(t *testing.T) {
			root := t.TempDir()
			s := newTestStore(t, root, m.ref, m.idx)

			refs := map[string]string{}
			for _, folder := range []string{"a/b", "x/y/z/w/v", "отчёты"} {
				res, err := s.Save(SaveParams{
					StagedPath:   stageFile(t, s, folder),
					OriginalName: "doc.pdf",
					MimeType:     model.MimePDF,
					Folder:       folder,
				})
				if err != nil {
					t.Fatalf("ошибка сохранения в %s: %v", folder, err)
				}
				refs[folder] = res.Reference
			}

			// Новый экземпляр: кэш пуст, индекс строится с диска
			fresh := newTestStore(t, root, m.ref, m.idx)
			for folder, ref := range refs {
				h, err := fresh.Resolve(ref)
				if err != nil {
					t.Errorf("документ из %s не найден: %v", folder, err)
					continue
				}
				want := filepath.Join(root, "pdf", filepath.FromSlash(folder))
				if filepath.Dir(h.Path) != want {
					t.Errorf("blob из %s лежит в %s", folder, filepath.Dir(h.Path))
				}
			}
		})
	}
}

// TestResolve_SkipsCorruptMetadata проверяет, что повреждённые sidecar не мешают поиску.
func TestResolve_SkipsCorruptMetadata(t *testing.T) {
	for _, m := range allModes {
		t.Run(m.name, func(t *testing.T) {
			root := t.TempDir()
			s := newTestStore(t, root, m.ref, m.idx)
			res, err := s.Save(SaveParams{StagedPath: stageFile(t, s, "x"), OriginalName: "a.pdf", MimeType: model.MimePDF, Folder: "deep/er"})
			if err != nil {
				t.Fatalf("ошибка сохранения: %v", err)
			}

			os.WriteFile(filepath.Join(root, "pdf", "broken.pdf"+attr.MetaSuffix), []byte("not json"), 0o640)
			os.WriteFile(filepath.Join(root, "pdf", "deep", "other.pdf"+attr.MetaSuffix), []byte("{}"), 0o640)

			fresh := newTestStore(t, root, m.ref, m.idx)
			if _, err := fresh.Resolve(res.Reference); err != nil {
				t.Errorf("ожидался успешный resolve, получено %v", err)
			}
		})
	}
}

// TestSave_Concurrent проверяет параллельные сохранения без глобальной блокировки.
func TestSave_Concurrent(t *testing.T) {
	for _, m := range allModes {
		t.Run(m.name, func(t *testing.T) {
			s := newTestStore(t, t.TempDir(), m.ref, m.idx)

			const n = 20
			staged := make([]string, n)
			for i := range staged {
				staged[i] = stageFile(t, s, strings.Repeat("d", i+1))
			}

			var (
				wg   sync.WaitGroup
				mu   sync.Mutex
				refs = map[string]int{}
			)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					res, err := s.Save(SaveParams{StagedPath: staged[i], OriginalName: "c.pdf", MimeType: model.MimePDF, Folder: "batch"})
					if err != nil {
						t.Errorf("ошибка сохранения: %v", err)
						return
					}
					mu.Lock()
					refs[res.Reference] = i + 1
					mu.Unlock()
				}(i)
			}
			wg.Wait()

			if len(refs) != n {
				t.Fatalf("ожидалось %d уникальных ссылок, получено %d", n, len(refs))
			}
			for ref, size := range refs {
				h, err := s.Resolve(ref)
				if err != nil {
					t.Errorf("ошибка resolve: %v", err)
					continue
				}
				if h.Size != int64(size) {
					t.Errorf("размер: ожидалось %d, получено %d", size, h.Size)
				}
			}
		})
	}
}

// TestNew_RecoversPending проверяет откат прерванного сохранения при старте.
func TestNew_RecoversPending(t *testing.T) {
	root := t.TempDir()
	s := newTestStore(t, root, ReferenceToken, IndexMemory)

	// Сохранение прервано после перемещения blob, до записи sidecar
	id := strings.Repeat("ab", 32)
	blobPath := filepath.Join(root, "pdf", id+".pdf")
	os.WriteFile(blobPath, []byte("orphan"), 0o640)
	tx, err := s.WAL().StartTransaction(wal.OpSave, id, blobPath, attr.MetaFilePath(blobPath))
	if err != nil {
		t.Fatalf("ошибка WAL: %v", err)
	}

	// Сохранение прервано после записи sidecar, до коммита
	done, err := s.Save(SaveParams{StagedPath: stageFile(t, s, "kept"), OriginalName: "k.pdf", MimeType: model.MimePDF})
	if err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}
	h, _ := s.Resolve(done.Reference)
	tx2, _ := s.WAL().StartTransaction(wal.OpSave, done.Identifier, h.Path, attr.MetaFilePath(h.Path))

	restarted, err := New(Options{
		Root:          root,
		ReferenceMode: ReferenceToken,
		IndexMode:     IndexMemory,
		RecoverGrace:  time.Nanosecond,
	}, testLogger())
	if err != nil {
		t.Fatalf("ошибка создания хранилища: %v", err)
	}

	if _, err := os.Stat(blobPath); !os.IsNotExist(err) {
		t.Error("неопубликованный blob должен быть удалён")
	}
	if e, _ := restarted.WAL().GetTransaction(tx.TransactionID); e == nil || e.Status != wal.StatusRolledBack {
		t.Errorf("транзакция должна быть откачена: %+v", e)
	}
	if e, _ := restarted.WAL().GetTransaction(tx2.TransactionID); e == nil || e.Status != wal.StatusCommitted {
		t.Errorf("транзакция с sidecar должна быть завершена: %+v", e)
	}
	if _, err := restarted.Resolve(done.Reference); err != nil {
		t.Errorf("опубликованный документ должен остаться доступным: %v", err)
	}
}

// TestNew_KeepsFreshPending проверяет, что свежая незавершённая запись
// журнала (сохранение другого процесса в работе) не откатывается.
func TestNew_KeepsFreshPending(t *testing.T) {
	root := t.TempDir()
	s := newTestStore(t, root, ReferenceToken, IndexMemory)

	id := strings.Repeat("cd", 32)
	blobPath := filepath.Join(root, "pdf", id+".pdf")
	os.WriteFile(blobPath, []byte("in flight"), 0o640)
	tx, err := s.WAL().StartTransaction(wal.OpSave, id, blobPath, attr.MetaFilePath(blobPath))
	if err != nil {
		t.Fatalf("ошибка WAL: %v", err)
	}

	other := newTestStore(t, root, ReferenceToken, IndexMemory)

	if _, err := os.Stat(blobPath); err != nil {
		t.Errorf("blob выполняющегося сохранения не должен удаляться: %v", err)
	}
	if e, _ := other.WAL().GetTransaction(tx.TransactionID); e == nil || e.Status != wal.StatusPending {
		t.Errorf("транзакция должна остаться незавершённой: %+v", e)
	}

	// После истечения grace-периода запись откатывается
	s.opts.RecoverGrace = time.Nanosecond
	n, err := s.Recover()
	if err != nil {
		t.Fatalf("ошибка Recover: %v", err)
	}
	if n != 1 {
		t.Errorf("Recover: хотели 1, получили %d", n)
	}
	if _, err := os.Stat(blobPath); !os.IsNotExist(err) {
		t.Error("blob брошенного сохранения должен быть удалён")
	}
}

// TestSharedRoot проверяет, что документ, сохранённый одним процессом,
// доступен другому процессу с тем же корнем в режиме memory.
func TestSharedRoot(t *testing.T) {
	for _, ref := range []ReferenceMode{ReferenceToken, ReferenceID} {
		t.Run(string(ref), func(t *testing.T) {
			root := t.TempDir()
			a := newTestStore(t, root, ref, IndexMemory)
			b := newTestStore(t, root, ref, IndexMemory)

			res, err := a.Save(SaveParams{StagedPath: stageFile(t, a, "shared"), OriginalName: "s.pdf", MimeType: model.MimePDF})
			if err != nil {
				t.Fatalf("ошибка сохранения: %v", err)
			}

			h, err := b.Resolve(res.Reference)
			if err != nil {
				t.Fatalf("документ другого процесса не найден: %v", err)
			}
			if h.Size != int64(len("shared")) {
				t.Errorf("Size: хотели %d, получили %d", len("shared"), h.Size)
			}
			// Найденная запись попадает в индекс второго процесса
			if rec, _ := b.idx.GetByID(res.Identifier); rec == nil {
				t.Error("запись должна быть добавлена в индекс")
			}
		})
	}
}

// TestSave_DuringRebuild проверяет, что документы, сохранённые во время
// пересборки индекса, остаются доступными.
func TestSave_DuringRebuild(t *testing.T) {
	s := newTestStore(t, t.TempDir(), ReferenceToken, IndexMemory)
	for i := 0; i < 50; i++ {
		s.Save(SaveParams{StagedPath: stageFile(t, s, "seed"), OriginalName: "seed.pdf", MimeType: model.MimePDF})
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				if err := s.RebuildIndex(); err != nil {
					t.Errorf("ошибка пересборки: %v", err)
					return
				}
			}
		}
	}()

	var refs []string
	for i := 0; i < 50; i++ {
		res, err := s.Save(SaveParams{StagedPath: stageFile(t, s, "new"), OriginalName: "n.pdf", MimeType: model.MimePDF})
		if err != nil {
			t.Fatalf("ошибка сохранения: %v", err)
		}
		refs = append(refs, res.Reference)
	}
	close(stop)
	wg.Wait()

	for _, ref := range refs {
		if rec, _ := s.idx.GetByToken(ref); rec == nil {
			t.Errorf("документ %s пропал из индекса", ref)
		}
	}
}

// TestScanLookup_CorruptCachedSidecar проверяет, что повреждённый sidecar
// по закэшированному пути не мешает найти документ обходом.
func TestScanLookup_CorruptCachedSidecar(t *testing.T) {
	root := t.TempDir()
	s := newTestStore(t, root, ReferenceToken, IndexScan)

	res, err := s.Save(SaveParams{StagedPath: stageFile(t, s, "moved"), OriginalName: "m.pdf", MimeType: model.MimePDF, Folder: "a"})
	if err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}
	h, err := s.Resolve(res.Reference)
	if err != nil {
		t.Fatalf("ошибка Resolve: %v", err)
	}
	oldMeta := attr.MetaFilePath(h.Path)

	// Копия документа в другой подпапке, исходный sidecar повреждён
	newBlob := filepath.Join(root, "pdf", "b", filepath.Base(h.Path))
	os.MkdirAll(filepath.Dir(newBlob), 0o750)
	data, _ := os.ReadFile(h.Path)
	os.WriteFile(newBlob, data, 0o640)
	meta, _ := os.ReadFile(oldMeta)
	os.WriteFile(attr.MetaFilePath(newBlob), meta, 0o640)
	os.WriteFile(oldMeta, []byte("{broken"), 0o640)

	h2, err := s.Resolve(res.Reference)
	if err != nil {
		t.Fatalf("документ должен найтись обходом: %v", err)
	}
	if h2.Path != newBlob {
		t.Errorf("Path: хотели %s, получили %s", newBlob, h2.Path)
	}
}

// TestStats проверяет сводку в обоих режимах индекса.
func TestStats(t *testing.T) {
	for _, m := range allModes {
		t.Run(m.name, func(t *testing.T) {
			s := newTestStore(t, t.TempDir(), m.ref, m.idx)
			s.Save(SaveParams{StagedPath: stageFile(t, s, "12345"), OriginalName: "a.pdf", MimeType: model.MimePDF})
			s.Save(SaveParams{StagedPath: stageFile(t, s, "123"), OriginalName: "b.doc", MimeType: model.MimeDOC})

			st, err := s.Stats()
			if err != nil {
				t.Fatalf("ошибка Stats: %v", err)
			}
			if st.Documents != 2 || st.TotalBytes != 8 {
				t.Errorf("неверная сводка: %+v", st)
			}
			if st.ByCategory[model.CategoryPDF] != 1 || st.ByCategory[model.CategoryWord] != 1 {
				t.Errorf("ByCategory: %v", st.ByCategory)
			}
		})
	}
}

// TestLookup проверяет получение записи для серверного использования.
func TestLookup(t *testing.T) {
	s := newTestStore(t, t.TempDir(), ReferenceToken, IndexMemory)
	res, err := s.Save(SaveParams{StagedPath: stageFile(t, s, "x"), OriginalName: "a.pdf", MimeType: "Application/PDF; charset=binary", Checksum: "abc"})
	if err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}

	rec, err := s.Lookup(res.Reference)
	if err != nil {
		t.Fatalf("ошибка Lookup: %v", err)
	}
	if rec.Category != model.CategoryPDF {
		t.Errorf("категория определяется по нормализованному типу: %q", rec.Category)
	}
	if rec.Checksum != "abc" || rec.Identifier != res.Identifier {
		t.Errorf("неверная запись: %+v", rec)
	}
}

// TestSave_RoundTripsInputs проверяет, что resolve возвращает имя и
// MIME-тип ровно такими, какими они были переданы в save. К NFC
// приводится только путь папки.
func TestSave_RoundTripsInputs(t *testing.T) {
	for _, m := range allModes {
		t.Run(m.name, func(t *testing.T) {
			s := newTestStore(t, t.TempDir(), m.ref, m.idx)
			nfd := "re\u0301sume\u0301.pdf" // "résumé.pdf" в NFD
			mimeType := "Application/PDF; charset=binary"
			res, err := s.Save(SaveParams{
				StagedPath:   stageFile(t, s, "x"),
				OriginalName: nfd,
				MimeType:     mimeType,
				Folder:       "\u0438\u0306",
			})
			if err != nil {
				t.Fatalf("ошибка сохранения: %v", err)
			}
			if res.OriginalName != nfd {
				t.Errorf("SaveResult.OriginalName изменён: %q", res.OriginalName)
			}

			// Свежий экземпляр читает запись с диска
			fresh := newTestStore(t, s.Blobs().Root(), m.ref, m.idx)
			for name, st := range map[string]*Store{"same": s, "fresh": fresh} {
				h, err := st.Resolve(res.Reference)
				if err != nil {
					t.Fatalf("%s: ошибка resolve: %v", name, err)
				}
				if h.DisplayName != nfd {
					t.Errorf("%s: DisplayName: ожидалось %q, получено %q", name, nfd, h.DisplayName)
				}
				if h.MimeType != mimeType {
					t.Errorf("%s: MimeType: ожидалось %q, получено %q", name, mimeType, h.MimeType)
				}
			}

			rec, err := s.Lookup(res.Reference)
			if err != nil {
				t.Fatalf("ошибка Lookup: %v", err)
			}
			if rec.Folder != "й" {
				t.Errorf("Folder: ожидалось NFC, получено %q", rec.Folder)
			}
		})
	}
}

// TestError проверяет классификацию ошибок.
func TestError(t *testing.T) {
	cause := errors.New("disk full")
	err := newError(KindStorageIO, "save", "id", cause)

	if !errors.Is(err, ErrStorageIO) {
		t.Error("errors.Is должен распознавать вид ошибки")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("ошибка не должна совпадать с другим видом")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is должен находить исходную причину")
	}

	var se *Error
	if !errors.As(err, &se) || se.Op != "save" || se.Ref != "id" {
		t.Errorf("errors.As: %+v", se)
	}
	if KindOf(errors.New("other")) != KindUnknown {
		t.Error("KindOf для чужой ошибки должен возвращать KindUnknown")
	}
	if !strings.Contains(err.Error(), "disk full") {
		t.Errorf("текст ошибки: %s", err.Error())
	}
}
