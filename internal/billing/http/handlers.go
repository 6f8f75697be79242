package billinghttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fleetbill/fleetbill/internal/billing/export"
	"github.com/fleetbill/fleetbill/internal/ledger"
	"github.com/fleetbill/fleetbill/internal/platform/httpx"
)

// ReportStore exposes the read side of the ledger used by the report API.
type ReportStore interface {
	ListCompanyNames(ctx context.Context) ([]string, error)
	BillTotal(ctx context.Context, companyName string, periodFrom, periodTo time.Time) (float64, error)
	ListBillsForPeriod(ctx context.Context, periodFrom, periodTo time.Time) ([]ledger.CompanyTotal, error)
	ItemizedReceipt(ctx context.Context, companyName string, month, year int, periodFrom, periodTo time.Time) ([]ledger.ReceiptLine, error)
}

// Enqueuer schedules an asynchronous billing run.
type Enqueuer interface {
	EnqueueMonthlyBilling(ctx context.Context, month, year int) (string, error)
}

// Handler serves billing reports and run triggers.
type Handler struct {
	logger    *slog.Logger
	store     ReportStore
	enqueuer  Enqueuer
	validator *validator.Validate
	now       func() time.Time
}

// NewHandler constructs the billing report handler.
func NewHandler(logger *slog.Logger, store ReportStore, enqueuer Enqueuer) *Handler {
	return &Handler{
		logger:    logger,
		store:     store,
		enqueuer:  enqueuer,
		validator: validator.New(),
		now:       time.Now,
	}
}

// MountRoutes registers report routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/companies", h.listCompanies)
	r.Get("/companies/{name}/bills/{year}/{month}", h.companyBill)
	r.Get("/companies/{name}/receipts/{year}/{month}", h.companyReceipt)
	r.Get("/bills/{year}/{month}", h.periodSummary)
	r.Post("/billing/runs/{year}/{month}", h.triggerRun)
}

type periodParams struct {
	Month int `validate:"min=1,max=12"`
	Year  int `validate:"min=2020"`
}

// periodFromRequest parses and validates the {year}/{month} URL segments.
func (h *Handler) periodFromRequest(r *http.Request) (periodParams, error) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		return periodParams{}, fmt.Errorf("%w: invalid year", httpx.ErrValidation)
	}
	month, err := strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil {
		return periodParams{}, fmt.Errorf("%w: invalid month", httpx.ErrValidation)
	}
	params := periodParams{Month: month, Year: year}
	if err := h.validator.Struct(params); err != nil {
		return periodParams{}, fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	if year > h.now().Year() {
		return periodParams{}, fmt.Errorf("%w: year %d is in the future", httpx.ErrValidation, year)
	}
	return params, nil
}

func (h *Handler) listCompanies(w http.ResponseWriter, r *http.Request) {
	names, err := h.store.ListCompanyNames(r.Context())
	if err != nil {
		h.respondError(w, "list companies", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"companies": names})
}

func (h *Handler) companyBill(w http.ResponseWriter, r *http.Request) {
	params, err := h.periodFromRequest(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	name := chi.URLParam(r, "name")
	from, to := monthBounds(params)

	total, err := h.store.BillTotal(r.Context(), name, from, to)
	if errors.Is(err, ledger.ErrBillNotFound) {
		httpx.RespondError(w, fmt.Errorf("%w: no bill for company and period", httpx.ErrNotFound))
		return
	}
	if err != nil {
		h.respondError(w, "bill total", err)
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		filename := fmt.Sprintf("bill_%s_%04d-%02d.csv", name, params.Year, params.Month)
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		err := export.WriteSummaryCSV(w, []ledger.CompanyTotal{{
			CompanyName: name,
			PeriodFrom:  from,
			PeriodTo:    to,
			TotalCost:   total,
		}})
		if err != nil {
			h.logger.Error("write bill csv", slog.Any("error", err))
		}
		return
	}

	httpx.JSON(w, http.StatusOK, map[string]any{
		"company":     name,
		"period_from": from.Format("2006-01-02"),
		"period_to":   to.Format("2006-01-02"),
		"total_cost":  total,
	})
}

func (h *Handler) companyReceipt(w http.ResponseWriter, r *http.Request) {
	params, err := h.periodFromRequest(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	name := chi.URLParam(r, "name")
	from, to := monthBounds(params)

	lines, err := h.store.ItemizedReceipt(r.Context(), name, params.Month, params.Year, from, to)
	if err != nil {
		h.respondError(w, "itemized receipt", err)
		return
	}
	if len(lines) == 0 {
		httpx.RespondError(w, fmt.Errorf("%w: no receipt items for company and period", httpx.ErrNotFound))
		return
	}

	filename := fmt.Sprintf("receipt_%s_%04d-%02d.csv", name, params.Year, params.Month)
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := export.WriteReceiptCSV(w, lines); err != nil {
		h.logger.Error("write receipt csv", slog.Any("error", err))
	}
}

func (h *Handler) periodSummary(w http.ResponseWriter, r *http.Request) {
	params, err := h.periodFromRequest(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	from, to := monthBounds(params)

	totals, err := h.store.ListBillsForPeriod(r.Context(), from, to)
	if err != nil {
		h.respondError(w, "period summary", err)
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		filename := fmt.Sprintf("bills_%04d-%02d.csv", params.Year, params.Month)
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		if err := export.WriteSummaryCSV(w, totals); err != nil {
			h.logger.Error("write summary csv", slog.Any("error", err))
		}
		return
	}

	type billSummary struct {
		Company    string  `json:"company"`
		PeriodFrom string  `json:"period_from"`
		PeriodTo   string  `json:"period_to"`
		TotalCost  float64 `json:"total_cost"`
	}
	summaries := make([]billSummary, 0, len(totals))
	for _, t := range totals {
		summaries = append(summaries, billSummary{
			Company:    t.CompanyName,
			PeriodFrom: t.PeriodFrom.Format("2006-01-02"),
			PeriodTo:   t.PeriodTo.Format("2006-01-02"),
			TotalCost:  t.TotalCost,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"bills": summaries})
}

func (h *Handler) triggerRun(w http.ResponseWriter, r *http.Request) {
	if h.enqueuer == nil {
		httpx.RespondError(w, fmt.Errorf("%w: billing runs are not enabled", httpx.ErrUnavailable))
		return
	}
	params, err := h.periodFromRequest(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	taskID, err := h.enqueuer.EnqueueMonthlyBilling(r.Context(), params.Month, params.Year)
	if err != nil {
		h.respondError(w, "enqueue billing run", err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]any{
		"task_id": taskID,
		"month":   params.Month,
		"year":    params.Year,
	})
}

func monthBounds(params periodParams) (time.Time, time.Time) {
	from := time.Date(params.Year, time.Month(params.Month), 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 1, -1)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}
