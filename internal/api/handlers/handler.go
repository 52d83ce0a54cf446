// handler.go — APIHandler реализует openapi.ServerInterface,
// делегируя вызовы в отдельные handler'ы по доменам.
package handlers

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/docstore/internal/api/openapi"
)

// APIHandler — единая реализация ServerInterface, собирающая
// все доменные handlers в один объект.
type APIHandler struct {
	files       *FilesHandler
	system      *SystemHandler
	maintenance *MaintenanceHandler
	health      *HealthHandler
	metrics     http.Handler
}

// NewAPIHandler создаёт единый handler для всех endpoints.
func NewAPIHandler(
	files *FilesHandler,
	system *SystemHandler,
	maintenance *MaintenanceHandler,
	health *HealthHandler,
) *APIHandler {
	return &APIHandler{
		files:       files,
		system:      system,
		maintenance: maintenance,
		health:      health,
		metrics:     promhttp.Handler(),
	}
}

// --- Документы ---

func (h *APIHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	h.files.UploadDocument(w, r)
}

func (h *APIHandler) ViewDocument(w http.ResponseWriter, r *http.Request, reference openapi.Reference) {
	h.files.ViewDocument(w, r, reference)
}

func (h *APIHandler) DownloadDocument(w http.ResponseWriter, r *http.Request, reference openapi.Reference) {
	h.files.DownloadDocument(w, r, reference)
}

func (h *APIHandler) GetDocumentInfo(w http.ResponseWriter, r *http.Request, reference openapi.Reference) {
	h.files.GetDocumentInfo(w, r, reference)
}

// --- System ---

func (h *APIHandler) GetStorageInfo(w http.ResponseWriter, r *http.Request) {
	h.system.GetStorageInfo(w, r)
}

func (h *APIHandler) GetOpenAPISpec(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openapi.Spec())
}

// --- Maintenance ---

func (h *APIHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	h.maintenance.Reconcile(w, r)
}

// --- Health ---

func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// --- Metrics ---

func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.metrics.ServeHTTP(w, r)
}

// Проверка соответствия интерфейсу на этапе компиляции.
var _ openapi.ServerInterface = (*APIHandler)(nil)
