// maintenance.go — обработчик POST /api/v1/maintenance/reconcile.
// Делегирует reconciliation в ReconcileService.
package handlers

import (
	"net/http"

	apierrors "github.com/bigkaa/docstore/internal/api/errors"
	"github.com/bigkaa/docstore/internal/service"
)

// ReconcileRunner — интерфейс для запуска reconciliation.
// Позволяет тестировать handler без полного ReconcileService.
type ReconcileRunner interface {
	// RunOnce выполняет один цикл reconciliation.
	// Возвращает результат и флаг "уже выполняется".
	RunOnce() (*service.ReconcileReport, bool)
}

// MaintenanceHandler — обработчик endpoints обслуживания.
type MaintenanceHandler struct {
	reconciler ReconcileRunner
}

// NewMaintenanceHandler создаёт обработчик maintenance endpoints.
func NewMaintenanceHandler(reconciler ReconcileRunner) *MaintenanceHandler {
	return &MaintenanceHandler{reconciler: reconciler}
}

// Reconcile обрабатывает POST /api/v1/maintenance/reconcile.
// Запускает синхронный цикл reconciliation и возвращает отчёт.
// Если reconciliation уже выполняется — 409 RECONCILE_IN_PROGRESS.
func (h *MaintenanceHandler) Reconcile(w http.ResponseWriter, _ *http.Request) {
	report, inProgress := h.reconciler.RunOnce()
	if inProgress {
		apierrors.ReconcileInProgress(w, "Reconciliation уже выполняется")
		return
	}
	writeJSON(w, http.StatusOK, report)
}
