package service

import (
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	apierrors "github.com/bigkaa/docstore/internal/api/errors"
	"github.com/bigkaa/docstore/internal/store"
)

func TestServe_Inline(t *testing.T) {
	st := setupStore(t, store.ReferenceToken)
	res := saveDocument(t, st, "report.pdf", pdfMime, "%PDF-1.4 body", "")
	svc := NewDownloadService(st, testLogger())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/view/"+res.Reference, nil)
	if derr := svc.Serve(rec, req, res.Reference, DispositionInline); derr != nil {
		t.Fatalf("Serve: %v", derr)
	}

	if rec.Code != http.StatusOK {
		t.Errorf("Status: хотели 200, получили %d", rec.Code)
	}
	if got := rec.Body.String(); got != "%PDF-1.4 body" {
		t.Errorf("Body: получили %q", got)
	}
	if ct := rec.Header().Get("Content-Type"); ct != pdfMime {
		t.Errorf("Content-Type: получили %s", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != `inline; filename=report.pdf` {
		t.Errorf("Content-Disposition: получили %s", cd)
	}
	if rec.Header().Get("ETag") == "" {
		t.Error("ETag должен быть установлен")
	}
}

func TestServe_AttachmentNonASCII(t *testing.T) {
	st := setupStore(t, store.ReferenceID)
	res := saveDocument(t, st, "Отчёт.docx", docxMime, "docx", "")
	svc := NewDownloadService(st, testLogger())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/download/"+res.Reference, nil)
	if derr := svc.Serve(rec, req, res.Reference, DispositionAttachment); derr != nil {
		t.Fatalf("Serve: %v", derr)
	}

	cd := rec.Header().Get("Content-Disposition")
	if !strings.HasPrefix(cd, "attachment;") {
		t.Errorf("Content-Disposition должен начинаться с attachment, получили %s", cd)
	}
	if !strings.Contains(cd, "filename*=utf-8''") {
		t.Errorf("Не-ASCII имя должно кодироваться по RFC 5987, получили %s", cd)
	}
}

func TestServe_RangeAndETag(t *testing.T) {
	st := setupStore(t, store.ReferenceToken)
	res := saveDocument(t, st, "a.pdf", pdfMime, "0123456789", "")
	svc := NewDownloadService(st, testLogger())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/download/"+res.Reference, nil)
	req.Header.Set("Range", "bytes=2-4")
	if derr := svc.Serve(rec, req, res.Reference, DispositionAttachment); derr != nil {
		t.Fatalf("Serve: %v", derr)
	}
	if rec.Code != http.StatusPartialContent {
		t.Errorf("Status: хотели 206, получили %d", rec.Code)
	}
	if got := rec.Body.String(); got != "234" {
		t.Errorf("Body: хотели 234, получили %q", got)
	}

	etag := rec.Header().Get("ETag")
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/download/"+res.Reference, nil)
	req.Header.Set("If-None-Match", etag)
	if derr := svc.Serve(rec, req, res.Reference, DispositionAttachment); derr != nil {
		t.Fatalf("Serve: %v", derr)
	}
	if rec.Code != http.StatusNotModified {
		t.Errorf("Status: хотели 304, получили %d", rec.Code)
	}
}

func TestServe_NotFound(t *testing.T) {
	st := setupStore(t, store.ReferenceToken)
	res := saveDocument(t, st, "a.pdf", pdfMime, "aaa", "")
	svc := NewDownloadService(st, testLogger())

	h, err := st.Resolve(res.Reference)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(h.Path); err != nil {
		t.Fatal(err)
	}

	for _, ref := range []string{res.Reference, "unknown", strings.Repeat("0", 32), "../../etc/passwd"} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/view/x", nil)
		derr := svc.Serve(rec, req, ref, DispositionInline)
		if derr == nil {
			t.Errorf("Serve(%q): ожидалась ошибка", ref)
			continue
		}
		if derr.StatusCode != http.StatusNotFound || derr.Code != apierrors.CodeNotFound {
			t.Errorf("Serve(%q): хотели 404 NOT_FOUND, получили %d %s", ref, derr.StatusCode, derr.Code)
		}
	}
}

func TestDescribe(t *testing.T) {
	st := setupStore(t, store.ReferenceToken)
	res := saveDocument(t, st, "plan.docx", docxMime, "plan", "проекты")
	svc := NewDownloadService(st, testLogger())

	info, derr := svc.Describe(res.Reference)
	if derr != nil {
		t.Fatalf("Describe: %v", derr)
	}
	if info.OriginalName != "plan.docx" {
		t.Errorf("OriginalName: получили %s", info.OriginalName)
	}
	if info.Size != 4 {
		t.Errorf("Size: хотели 4, получили %d", info.Size)
	}
	if info.Folder != "проекты" {
		t.Errorf("Folder: хотели проекты, получили %s", info.Folder)
	}
	if info.Reference != res.Reference {
		t.Errorf("Reference: получили %s", info.Reference)
	}

	if _, derr := svc.Describe("missing"); derr == nil || derr.StatusCode != http.StatusNotFound {
		t.Errorf("Describe(missing): ожидался 404, получили %v", derr)
	}
}
