package quoting

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fleetbill/fleetbill/internal/catalog"
	"github.com/fleetbill/fleetbill/internal/platform/httpx"
)

// Handler serves quote generation over HTTP.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
	now       func() time.Time
}

// NewHandler constructs the quoting handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
		now:       time.Now,
	}
}

// MountRoutes registers quote routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/quotes", h.createQuote)
}

type quoteRequest struct {
	ResellerID    int64    `json:"reseller_id" validate:"required"`
	CustomerName  string   `json:"customer_name" validate:"required"`
	CustomerEmail string   `json:"customer_email" validate:"required,email"`
	QuoteDate     string   `json:"quote_date"`
	ProductCodes  []string `json:"product_codes"`
	RatePlanNames []string `json:"rate_plan_names"`
}

type quoteItemResponse struct {
	Kind  string  `json:"kind"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

type quoteResponse struct {
	ID            int64               `json:"id"`
	CustomerName  string              `json:"customer_name"`
	CustomerEmail string              `json:"customer_email"`
	QuoteDate     string              `json:"quote_date"`
	TotalCost     float64             `json:"total_cost"`
	Items         []quoteItemResponse `json:"items"`
}

func (h *Handler) createQuote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed body", httpx.ErrValidation))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	if len(req.ProductCodes) == 0 && len(req.RatePlanNames) == 0 {
		httpx.RespondError(w, fmt.Errorf("%w: quote needs at least one product or rate plan", httpx.ErrValidation))
		return
	}

	quoteDate := h.now().UTC().Truncate(24 * time.Hour)
	if req.QuoteDate != "" {
		parsed, err := time.Parse("2006-01-02", req.QuoteDate)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: quote_date must be YYYY-MM-DD", httpx.ErrValidation))
			return
		}
		quoteDate = parsed
	}

	quote, err := h.service.GenerateQuote(r.Context(), QuoteInput{
		ResellerID:    req.ResellerID,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		QuoteDate:     quoteDate,
		ProductCodes:  req.ProductCodes,
		RatePlanNames: req.RatePlanNames,
	})
	if errors.Is(err, catalog.ErrProductNotFound) || errors.Is(err, catalog.ErrRatePlanNotFound) {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrNotFound, err))
		return
	}
	if err != nil {
		h.logger.Error("generate quote", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	resp := quoteResponse{
		ID:            quote.ID,
		CustomerName:  quote.CustomerName,
		CustomerEmail: quote.CustomerEmail,
		QuoteDate:     quote.QuoteDate.Format("2006-01-02"),
		TotalCost:     quote.TotalCost,
	}
	for _, item := range quote.Items {
		resp.Items = append(resp.Items, quoteItemResponse{Kind: item.Kind, Name: item.Name, Price: item.Price})
	}
	httpx.JSON(w, http.StatusCreated, resp)
}
