package ledger

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aurum-erp/aurum-erp/internal/platform/httpx"
	"github.com/aurum-erp/aurum-erp/internal/shared"
)

// ListerPort is the read surface the handler needs.
type ListerPort interface {
	List(ctx context.Context, filter ListFilter) ([]Transaction, int, error)
}

// Handler serves read-only ledger endpoints. There is deliberately no
// mutation surface here: entries are written by sales and stock inside
// their own transactions.
type Handler struct {
	logger *slog.Logger
	repo   ListerPort
}

// NewHandler constructs ledger handler.
func NewHandler(logger *slog.Logger, repo ListerPort) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, repo: repo}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/ledger", h.handleList)
}

type listResponse struct {
	Transactions []Transaction `json:"transactions"`
	Page         int           `json:"page"`
	PerPage      int           `json:"per_page"`
	Total        int           `json:"total"`
	TotalPages   int           `json:"total_pages"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		Type:      EntryType(q.Get("type")),
		RefModule: q.Get("ref_module"),
	}
	if refID, err := strconv.ParseInt(q.Get("ref_id"), 10, 64); err == nil {
		filter.RefID = refID
	}
	if from, err := time.Parse(time.RFC3339, q.Get("from")); err == nil {
		filter.From = &from
	}
	if to, err := time.Parse(time.RFC3339, q.Get("to")); err == nil {
		filter.To = &to
	}
	if page, err := strconv.Atoi(q.Get("page")); err == nil {
		filter.Page = page
	}
	if perPage, err := strconv.Atoi(q.Get("per_page")); err == nil {
		filter.PerPage = perPage
	}
	if filter.Type != "" && !filter.Type.Valid() {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown entry type")
		return
	}

	rows, total, err := h.repo.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list ledger entries", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	paging := shared.NewPagination(filter.Page, filter.PerPage, total)
	httpx.JSON(w, http.StatusOK, listResponse{
		Transactions: rows,
		Page:         paging.Page,
		PerPage:      paging.PerPage,
		Total:        paging.Total,
		TotalPages:   paging.TotalPages,
	})
}
