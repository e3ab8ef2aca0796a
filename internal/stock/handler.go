package stock

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/aurum-erp/aurum-erp/internal/catalog"
	"github.com/aurum-erp/aurum-erp/internal/observability"
	"github.com/aurum-erp/aurum-erp/internal/platform/httpx"
	"github.com/aurum-erp/aurum-erp/internal/rates"
	"github.com/aurum-erp/aurum-erp/internal/shared"
)

// Handler wires HTTP endpoints for the stock ledger.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	metrics  *observability.Metrics
	validate *validator.Validate
}

// NewHandler constructs stock handler. Metrics may be nil.
func NewHandler(logger *slog.Logger, service *Service, metrics *observability.Metrics) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, metrics: metrics, validate: validator.New()}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/stock/items", h.handleList)
	r.Get("/stock/items/{id}", h.handleGet)
	r.Get("/stock/items/{id}/price", h.handlePrice)
	r.Get("/stock/fifo", h.handleFIFO)
	r.Post("/stock/receipts", h.handleReceive)
	r.Post("/stock/reserve", h.handleReserve)
	r.Post("/stock/release", h.handleRelease)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Status: Status(q.Get("status"))}
	if productID, err := strconv.ParseInt(q.Get("product_id"), 10, 64); err == nil {
		filter.ProductID = productID
	}
	if page, err := strconv.Atoi(q.Get("page")); err == nil {
		filter.Page = page
	}
	if perPage, err := strconv.Atoi(q.Get("per_page")); err == nil {
		filter.PerPage = perPage
	}
	items, paging, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{
		Items:      items,
		Page:       paging.Page,
		PerPage:    paging.PerPage,
		Total:      paging.Total,
		TotalPages: paging.TotalPages,
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	item, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) handlePrice(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	quote, err := h.service.Price(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, quote)
}

func (h *Handler) handleFIFO(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	productID, err := strconv.ParseInt(q.Get("product_id"), 10, 64)
	if err != nil || productID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product_id")
		return
	}
	qty, err := strconv.Atoi(q.Get("qty"))
	if err != nil || qty <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid qty")
		return
	}
	selection, err := h.service.SelectFIFO(r.Context(), productID, qty)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, selection)
}

func (h *Handler) handleReceive(w http.ResponseWriter, r *http.Request) {
	var req receiveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	in := ReceiveInput{
		ProductID:      req.ProductID,
		Quantity:       req.Quantity,
		PurchaseCost:   req.PurchaseCost,
		PaidAmount:     req.PaidAmount,
		PriceOverride:  req.PriceOverride,
		OverrideReason: req.OverrideReason,
		Note:           req.Note,
		ActorID:        shared.ActorFromContext(r.Context()),
	}
	if req.PurchaseDate != nil {
		in.PurchaseDate = *req.PurchaseDate
	}
	items, err := h.service.Receive(r.Context(), in)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.logger.Info("stock received",
		slog.Int64("product_id", req.ProductID),
		slog.Int("quantity", len(items)))
	httpx.JSON(w, http.StatusCreated, items)
}

func (h *Handler) handleReserve(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, h.service.Reserve)
}

func (h *Handler) handleRelease(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, h.service.Release)
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, ids []int64, actorID int64) error) {
	var req idsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := apply(r.Context(), req.StockItemIDs, shared.ActorFromContext(r.Context())); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"updated": len(req.StockItemIDs)})
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid stock item id")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, catalog.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrNotAvailable):
		if h.metrics != nil {
			h.metrics.ObserveStockConflict()
		}
		httpx.Problem(w, http.StatusConflict, "Not Available", err.Error())
	case errors.Is(err, ErrInvalidInput):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, rates.ErrNoActiveRate):
		httpx.Problem(w, http.StatusUnprocessableEntity, "No Active Rate", err.Error())
	default:
		h.logger.Error("stock request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
