package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/asquebay/pautabot/internal/model"
)

const defaultListLimit = 50

// StatusReader определяет интерфейс хранилища, из которого читается статус
// Это позволяет хэндлеру не зависеть от конкретного хранилища (postgres, sqlite)
type StatusReader interface {
	ListSeenOrders(ctx context.Context, limit int) ([]model.SeenOrder, error)
	GetSeenOrder(ctx context.Context, fiscalYear int, orderID string) (model.SeenOrder, error)
	GetVendor(ctx context.Context, vendorID string) (model.VendorTotal, error)
	LoadPendingOrders(ctx context.Context) ([]model.PendingOrder, error)
}

// Handler обрабатывает HTTP-запросы к статусу бота (только чтение)
type Handler struct {
	store StatusReader
	log   *slog.Logger
	mux   *http.ServeMux
}

// NewHandler создает новый экземпляр Handler
func NewHandler(store StatusReader, log *slog.Logger) *Handler {
	h := &Handler{
		store: store,
		log:   log,
		mux:   http.NewServeMux(),
	}
	h.registerRoutes()
	return h
}

// ServeHTTP делает Handler совместимым с http.Handler
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// registerRoutes регистрирует все эндпоинты
func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("GET /orders", h.listOrders)
	h.mux.HandleFunc("GET /orders/{fiscal_year}/{order_id}", h.getOrder)
	h.mux.HandleFunc("GET /vendors/{vendor_id}", h.getVendor)
	h.mux.HandleFunc("GET /pending", h.listPending)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	orders, err := h.store.ListSeenOrders(r.Context(), limit)
	if err != nil {
		h.internalError(w, err)
		return
	}
	if orders == nil {
		orders = []model.SeenOrder{}
	}
	h.respondJSON(w, http.StatusOK, orders)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(r.PathValue("fiscal_year"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "fiscal_year must be a number")
		return
	}
	orderID := r.PathValue("order_id")

	order, err := h.store.GetSeenOrder(r.Context(), year, orderID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			h.respondError(w, http.StatusNotFound, "order not found")
			return
		}
		h.internalError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, order)
}

func (h *Handler) getVendor(w http.ResponseWriter, r *http.Request) {
	vendor, err := h.store.GetVendor(r.Context(), r.PathValue("vendor_id"))
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			h.respondError(w, http.StatusNotFound, "vendor not found")
			return
		}
		h.internalError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, vendor)
}

func (h *Handler) listPending(w http.ResponseWriter, r *http.Request) {
	pending, err := h.store.LoadPendingOrders(r.Context())
	if err != nil {
		h.internalError(w, err)
		return
	}
	if pending == nil {
		pending = []model.PendingOrder{}
	}
	h.respondJSON(w, http.StatusOK, pending)
}

func (h *Handler) internalError(w http.ResponseWriter, err error) {
	h.log.Error("internal server error", slog.String("error", err.Error()))
	h.respondError(w, http.StatusInternalServerError, "internal server error")
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		h.log.Error("failed to marshal JSON response", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "internal server error"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(response)
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
