package repricer

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/aurum-erp/aurum-erp/internal/platform/httpx"
	"github.com/aurum-erp/aurum-erp/internal/rates"
	"github.com/aurum-erp/aurum-erp/internal/shared"
)

type repriceRequest struct {
	RateID         int64  `json:"rate_id" validate:"required,gt=0"`
	Filter         Filter `json:"filter"`
	SkipOverridden bool   `json:"skip_overridden"`
}

// Handler wires HTTP endpoints for bulk repricing.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs repricer handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers repricer routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/reprice/preview", h.handlePreview)
	r.Post("/reprice/commit", h.handleCommit)
}

func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	result, err := h.service.Preview(r.Context(), req.RateID, req.Filter, req.SkipOverridden)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleCommit(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	result, err := h.service.Commit(r.Context(), req.RateID, req.Filter, req.SkipOverridden, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.logger.Info("bulk reprice committed",
		slog.Int64("rate_id", req.RateID),
		slog.Int("updated", len(result.ToUpdate)),
		slog.Int("skipped", len(result.Skipped)))
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (repriceRequest, bool) {
	var req repriceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return req, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return req, false
	}
	return req, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrRateInvalid):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Rate Not Valid", err.Error())
	case errors.Is(err, rates.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		h.logger.Error("reprice request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
