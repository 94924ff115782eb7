package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/PredatorDevs/systudents-back-sub001/internal/domain"
	"github.com/PredatorDevs/systudents-back-sub001/internal/service"
	"github.com/PredatorDevs/systudents-back-sub001/internal/store"
)

func (a *API) handleSessionOpen(w http.ResponseWriter, r *http.Request) {
	var req domain.SessionOpenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	cut, err := a.service.OpenSession(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"session": cut})
}

func (a *API) handleSessionClose(w http.ResponseWriter, r *http.Request) {
	var req domain.SessionCloseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req.SessionID = chi.URLParam(r, "id")

	cut, err := a.service.CloseSession(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": cut})
}

func (a *API) handleSessionSettle(w http.ResponseWriter, r *http.Request) {
	var req domain.SessionSettleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req.SessionID = chi.URLParam(r, "id")

	cut, err := a.service.SettleSession(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": cut})
}

func (a *API) handleSessionActive(w http.ResponseWriter, r *http.Request) {
	q := domain.SessionQuery{
		CashierID:  strings.TrimSpace(r.URL.Query().Get("cashier_id")),
		LocationID: strings.TrimSpace(r.URL.Query().Get("location_id")),
	}
	if q.CashierID == "" && q.LocationID == "" {
		if actor, ok := service.ActorFromContext(r.Context()); ok {
			q.CashierID = actor.CashierID
		}
	}

	cut, err := a.service.CurrentActiveSession(r.Context(), q)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": cut})
}

func (a *API) handleSessionSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := a.service.SessionSummary(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"summary": summary})
}

func (a *API) handleCreateSale(w http.ResponseWriter, r *http.Request) {
	a.createDocument(w, r, domain.DocumentKindSale)
}

func (a *API) handleCreatePurchase(w http.ResponseWriter, r *http.Request) {
	a.createDocument(w, r, domain.DocumentKindPurchase)
}

func (a *API) createDocument(w http.ResponseWriter, r *http.Request, kind domain.DocumentKind) {
	var req domain.DocumentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(req.Options.NegativeStockItems) > 0 && !a.requireManagerPIN(w, r) {
		return
	}

	var (
		created domain.DocumentCreated
		err     error
	)
	if kind == domain.DocumentKindPurchase {
		created, err = a.service.CreatePurchase(r.Context(), req)
	} else {
		created, err = a.service.CreateSale(r.Context(), req)
	}
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"document": created})
}

func (a *API) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := a.service.GetDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document": doc})
}

func (a *API) handleRemoveDocument(w http.ResponseWriter, r *http.Request) {
	if !a.requireManagerPIN(w, r) {
		return
	}
	id := chi.URLParam(r, "id")
	if err := a.service.RemoveDocument(r.Context(), id); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document_id": id, "removed": true})
}

func (a *API) handleVoidDocument(w http.ResponseWriter, r *http.Request) {
	if !a.requireManagerPIN(w, r) {
		return
	}
	var req domain.VoidRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req.DocumentID = chi.URLParam(r, "id")

	result, err := a.service.VoidDocument(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"void": result})
}

func (a *API) handlePendingAmount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	pending, err := a.service.PendingAmount(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document_id": id, "pending": pending})
}

func (a *API) handleListPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := a.service.ListPayments(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payments": payments})
}

func (a *API) handleAddPayment(w http.ResponseWriter, r *http.Request) {
	var req domain.PaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req.DocumentID = chi.URLParam(r, "id")

	result, err := a.service.AddPayment(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (a *API) handleGeneralPayment(w http.ResponseWriter, r *http.Request) {
	var req domain.GeneralPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Kind == "" {
		req.Kind = domain.DocumentKindSale
	}

	result, err := a.service.AddGeneralPayment(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (a *API) handleValidateNumber(w http.ResponseWriter, r *http.Request) {
	var req domain.NumberValidationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.service.ValidateDocumentNumber(r.Context(), req); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"available": true})
}

func (a *API) handleStockAvailability(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	qty := decimal.Zero
	if raw := strings.TrimSpace(query.Get("qty")); raw != "" {
		parsed, err := decimal.NewFromString(raw)
		if err != nil {
			a.writeServiceError(w, r, store.Invalid("qty", "must be a number"))
			return
		}
		qty = parsed
	}

	avail, err := a.service.CheckAvailability(r.Context(), query.Get("location_id"), query.Get("item_id"), qty)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, avail)
}

func (a *API) handleStockAdjustment(w http.ResponseWriter, r *http.Request) {
	if !a.requireManagerPIN(w, r) {
		return
	}
	var req domain.StockAdjustmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	adj, err := a.service.CreateStockAdjustment(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"adjustment": adj})
}

func (a *API) handleStockInitialize(w http.ResponseWriter, r *http.Request) {
	var req domain.InitializeStockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	row, err := a.service.InitializeStock(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"stock": row})
}

func (a *API) handleStockHistory(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	movements, err := a.service.StockHistory(r.Context(), query.Get("location_id"), query.Get("item_id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"movements": movements})
}

func (a *API) handleStockReconcile(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	rec, err := a.service.ReconcileStock(r.Context(), query.Get("location_id"), query.Get("item_id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reconciliation": rec})
}

func (a *API) handleLowStock(w http.ResponseWriter, r *http.Request) {
	rows, err := a.service.LowStock(r.Context(), r.URL.Query().Get("location_id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stock": rows})
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := parsePositiveLimit(query.Get("limit"), 100, 500)
	logs, err := a.service.ListAuditLogs(r.Context(), query.Get("entity_type"), query.Get("entity_id"), limit)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"audit_logs": logs})
}
