package rates

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/aurum-erp/aurum-erp/internal/platform/httpx"
	"github.com/aurum-erp/aurum-erp/internal/shared"
)

// Handler wires HTTP endpoints for the rate master.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs rates handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers rate routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/rates/current", h.handleCurrent)
	r.Get("/rates/history", h.handleHistory)
	r.Post("/rates", h.handleActivate)
	r.Post("/rates/{id}/deactivate", h.handleDeactivate)
}

func (h *Handler) handleCurrent(w http.ResponseWriter, r *http.Request) {
	metal := MetalType(r.URL.Query().Get("metal_type"))
	purity := r.URL.Query().Get("purity")
	rate, err := h.service.Current(r.Context(), metal, purity)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rate)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := HistoryFilter{
		MetalType: MetalType(q.Get("metal_type")),
		Purity:    q.Get("purity"),
	}
	if page, err := strconv.Atoi(q.Get("page")); err == nil {
		filter.Page = page
	}
	if perPage, err := strconv.Atoi(q.Get("per_page")); err == nil {
		filter.PerPage = perPage
	}
	rows, paging, err := h.service.History(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, historyResponse{
		Rates:      rows,
		Page:       paging.Page,
		PerPage:    paging.PerPage,
		Total:      paging.Total,
		TotalPages: paging.TotalPages,
	})
}

func (h *Handler) handleActivate(w http.ResponseWriter, r *http.Request) {
	var req activateRateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	in := ActivateInput{
		MetalType:   MetalType(req.MetalType),
		Purity:      req.Purity,
		RatePerGram: req.RatePerGram,
		ValidUntil:  req.ValidUntil,
		Source:      RateSource(req.Source),
		IsActive:    true,
		ActorID:     shared.ActorFromContext(r.Context()),
	}
	if req.EffectiveDate != nil {
		in.EffectiveDate = *req.EffectiveDate
	}
	if req.IsActive != nil {
		in.IsActive = *req.IsActive
	}
	rate, err := h.service.Activate(r.Context(), in)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.logger.Info("rate activated",
		slog.Int64("rate_id", rate.ID),
		slog.String("metal_type", string(rate.MetalType)),
		slog.String("purity", rate.Purity))
	httpx.JSON(w, http.StatusCreated, rate)
}

func (h *Handler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid rate id")
		return
	}
	if err := h.service.Deactivate(r.Context(), id, shared.ActorFromContext(r.Context())); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	// No active rate is a configuration gap, not a missing resource; it
	// gets the same 422 everywhere pricing can surface it.
	case errors.Is(err, ErrNoActiveRate):
		httpx.Problem(w, http.StatusUnprocessableEntity, "No Active Rate", err.Error())
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrRateWindow), errors.Is(err, ErrInvalidRate):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("rates request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
