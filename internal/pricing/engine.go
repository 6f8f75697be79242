package pricing

import (
	"errors"
	"fmt"
)

// CompanyType selects which pricing branch applies to a customer.
type CompanyType string

const (
	CompanyTypeInternal   CompanyType = "internal"
	CompanyTypeSourcewell CompanyType = "sourcewell"
	CompanyTypeDefault    CompanyType = "default"
)

var (
	// ErrMissingMarkup indicates no flat markup row exists for the
	// reseller and company type. Internal billing cannot silently default,
	// so this aborts the whole run.
	ErrMissingMarkup = errors.New("pricing: flat markup not configured")
	// ErrInvalidCompanyType indicates an unrecognized company type.
	ErrInvalidCompanyType = errors.New("pricing: invalid company type")
)

// Tier is a half-open [MinPrice, MaxPrice) markup band. A wholesale price
// exactly equal to MaxPrice does not match the band.
type Tier struct {
	MinPrice         float64
	MaxPrice         float64
	MarkupPercentage float64
}

// Rules is a reseller-scoped snapshot of every pricing override. Loading it
// up front keeps the engine a pure function of its inputs.
type Rules struct {
	// FlatMarkups maps a company type to its flat markup amount.
	FlatMarkups map[CompanyType]float64
	// Tiers are scanned in stored order; the first matching band wins.
	Tiers []Tier
	// SourcewellProductPrices holds fixed prices keyed by product code.
	SourcewellProductPrices map[string]float64
	// SourcewellRatePlanPrices holds fixed prices keyed by rate plan name.
	SourcewellRatePlanPrices map[string]float64
}

// Engine resolves customer-facing prices for one company type under one
// reseller's rules. It never mutates the rules it is given.
type Engine struct {
	companyType CompanyType
	rules       Rules
}

// NewEngine builds an Engine for the given company type and rules snapshot.
func NewEngine(companyType CompanyType, rules Rules) *Engine {
	return &Engine{companyType: companyType, rules: rules}
}

// ProductPrice returns the customer price for a product identified by its
// code and wholesale price.
func (e *Engine) ProductPrice(code string, wholesale float64) (float64, error) {
	price := wholesale

	switch e.companyType {
	case CompanyTypeInternal:
		markup, ok := e.rules.FlatMarkups[CompanyTypeInternal]
		if !ok {
			return 0, fmt.Errorf("%w: company type %s", ErrMissingMarkup, e.companyType)
		}
		price += markup
	case CompanyTypeSourcewell:
		// A missing sourcewell price falls back to the wholesale price.
		// The original system behaves this way even though the internal
		// branch fails fast on its analogous gap; preserved as is.
		if fixed, ok := e.rules.SourcewellProductPrices[code]; ok {
			price = fixed
		}
	case CompanyTypeDefault:
		for _, tier := range e.rules.Tiers {
			if tier.MinPrice <= price && price < tier.MaxPrice {
				price += price * (tier.MarkupPercentage / 100)
				break
			}
		}
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidCompanyType, e.companyType)
	}

	return price, nil
}

// RatePlanPrice returns the customer price for a rate plan identified by
// its name, wholesale monthly fee, and stored default customer fee.
func (e *Engine) RatePlanPrice(name string, monthlyFee, defaultCustomerFee float64) (float64, error) {
	price := defaultCustomerFee

	switch e.companyType {
	case CompanyTypeInternal:
		// Internal companies pay the monthly fee plus a flat markup.
		markup, ok := e.rules.FlatMarkups[CompanyTypeInternal]
		if !ok {
			return 0, fmt.Errorf("%w: company type %s", ErrMissingMarkup, e.companyType)
		}
		price = monthlyFee + markup
	case CompanyTypeSourcewell:
		if fixed, ok := e.rules.SourcewellRatePlanPrices[name]; ok {
			price = fixed
		}
	case CompanyTypeDefault:
		// Price is the stored default customer fee; no tier lookup.
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidCompanyType, e.companyType)
	}

	return price, nil
}
