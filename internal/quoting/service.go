// Package quoting generates priced offers for prospective customers.
// Quotes always price at the default company type: the customer has no
// company record yet, so no other pricing branch can apply.
package quoting

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fleetbill/fleetbill/internal/catalog"
	"github.com/fleetbill/fleetbill/internal/pricing"
)

// Item kinds stored on quote lines.
const (
	ItemKindProduct  = "Product"
	ItemKindRatePlan = "Rate Plan"
)

// Quote is a priced offer addressed to a prospective customer.
type Quote struct {
	ID            int64
	ResellerID    int64
	CustomerName  string
	CustomerEmail string
	QuoteDate     time.Time
	TotalCost     float64
	Items         []QuoteItem
}

// QuoteItem is one priced line of a quote. Name holds the product code or
// rate plan name the line was priced from.
type QuoteItem struct {
	ID      int64
	QuoteID int64
	Kind    string
	Name    string
	Price   float64
}

// QuoteInput selects what to price and who the quote is for.
type QuoteInput struct {
	ResellerID    int64
	CustomerName  string
	CustomerEmail string
	QuoteDate     time.Time
	ProductCodes  []string
	RatePlanNames []string
}

// Catalog is the read side of the pricing catalog the service needs.
type Catalog interface {
	ProductByCode(ctx context.Context, code string) (catalog.Product, error)
	RatePlanByName(ctx context.Context, resellerID int64, name string) (catalog.RatePlan, error)
	PricingRules(ctx context.Context, resellerID int64) (pricing.Rules, error)
}

// Store persists generated quotes.
type Store interface {
	CreateQuote(ctx context.Context, quote Quote) (Quote, error)
}

// Service prices and persists quotes.
type Service struct {
	catalog Catalog
	store   Store
	logger  *slog.Logger
}

// NewService constructs the quoting service.
func NewService(cs Catalog, store Store, logger *slog.Logger) *Service {
	return &Service{catalog: cs, store: store, logger: logger}
}

// GenerateQuote prices the selected products and rate plans under the
// reseller's rules and persists the resulting quote. Products are priced
// first, then rate plans, and the total is the plain sum of the lines.
func (s *Service) GenerateQuote(ctx context.Context, in QuoteInput) (Quote, error) {
	rules, err := s.catalog.PricingRules(ctx, in.ResellerID)
	if err != nil {
		return Quote{}, err
	}
	engine := pricing.NewEngine(pricing.CompanyTypeDefault, rules)

	quote := Quote{
		ResellerID:    in.ResellerID,
		CustomerName:  in.CustomerName,
		CustomerEmail: in.CustomerEmail,
		QuoteDate:     in.QuoteDate,
	}

	for _, code := range in.ProductCodes {
		product, err := s.catalog.ProductByCode(ctx, code)
		if err != nil {
			return Quote{}, err
		}
		price, err := engine.ProductPrice(product.Code, product.WholesalePrice)
		if err != nil {
			return Quote{}, fmt.Errorf("quoting: product %s: %w", code, err)
		}
		quote.Items = append(quote.Items, QuoteItem{Kind: ItemKindProduct, Name: product.Code, Price: price})
		quote.TotalCost += price
	}

	for _, name := range in.RatePlanNames {
		plan, err := s.catalog.RatePlanByName(ctx, in.ResellerID, name)
		if err != nil {
			return Quote{}, err
		}
		price, err := engine.RatePlanPrice(plan.Name, plan.MonthlyFee, plan.DefaultCustomerFee)
		if err != nil {
			return Quote{}, fmt.Errorf("quoting: rate plan %s: %w", name, err)
		}
		quote.Items = append(quote.Items, QuoteItem{Kind: ItemKindRatePlan, Name: plan.Name, Price: price})
		quote.TotalCost += price
	}

	saved, err := s.store.CreateQuote(ctx, quote)
	if err != nil {
		return Quote{}, fmt.Errorf("quoting: save quote: %w", err)
	}
	s.logger.Info("quote generated",
		slog.Int64("quote_id", saved.ID),
		slog.String("customer", saved.CustomerName),
		slog.Int("items", len(saved.Items)),
		slog.Float64("total_cost", saved.TotalCost))
	return saved, nil
}
