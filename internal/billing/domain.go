package billing

import (
	"context"
	"errors"
	"time"

	"github.com/fleetbill/fleetbill/internal/catalog"
	"github.com/fleetbill/fleetbill/internal/ledger"
	"github.com/fleetbill/fleetbill/internal/myadmin"
	"github.com/fleetbill/fleetbill/internal/pricing"
)

var (
	// ErrInvalidMonth rejects months outside 1-12 before any I/O.
	ErrInvalidMonth = errors.New("billing: month must be between 1 and 12")
	// ErrInvalidYear rejects years before 2020 or after the current year.
	ErrInvalidYear = errors.New("billing: year must be between 2020 and the current year")
)

// CatalogStore is the reference-data access the billing run depends on.
type CatalogStore interface {
	ListResellers(ctx context.Context) ([]catalog.Reseller, error)
	FindOrCreateCompany(ctx context.Context, in catalog.CompanyInput) (catalog.Company, bool, error)
	CompanyTypeByID(ctx context.Context, id int64) (catalog.CompanyType, error)
	UpsertRatePlan(ctx context.Context, in catalog.RatePlanInput) (catalog.RatePlan, bool, error)
	RatePlanByName(ctx context.Context, resellerID int64, name string) (catalog.RatePlan, error)
	UpsertProduct(ctx context.Context, in catalog.ProductInput) (catalog.Product, bool, error)
	ProductByCode(ctx context.Context, code string) (catalog.Product, error)
	CreateInactiveProduct(ctx context.Context, code, name string, wholesale float64) (catalog.Product, error)
	DeactivateStaleProducts(ctx context.Context, seenCodes []string, cutoff time.Time) (int64, error)
	PricingRules(ctx context.Context, resellerID int64) (pricing.Rules, error)
}

// LedgerStore is the billing-record access the run depends on.
type LedgerStore interface {
	UpsertContract(ctx context.Context, c ledger.Contract) (ledger.Contract, bool, error)
	UpsertOrder(ctx context.Context, o ledger.Order) (ledger.Order, bool, error)
	UpsertOrderItem(ctx context.Context, it ledger.OrderItem) (ledger.OrderItem, error)
	UpsertShipItem(ctx context.Context, si ledger.ShipItem) (ledger.ShipItem, error)
	UpsertBill(ctx context.Context, b ledger.Bill) (ledger.Bill, bool, error)
	ReplaceBillItems(ctx context.Context, billID int64, items []ledger.BillItem) error
}

// Source fetches one normalized billing period from upstream.
type Source interface {
	FetchPeriod(ctx context.Context, month, year int) (*myadmin.RawBillingPayload, error)
}

// Stores bundles the transaction-scoped store handles a run operates on.
type Stores struct {
	Catalog CatalogStore
	Ledger  LedgerStore
}

// TxManager runs a function inside one atomic transaction. An error from fn
// rolls back everything written within it.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, st Stores) error) error
}

// ResellerFailure reports one reseller whose run was rolled back.
type ResellerFailure struct {
	ResellerID int64
	Reseller   string
	Err        error
}

// RunResult summarizes one invocation of the monthly billing run.
type RunResult struct {
	RunID    string
	Month    int
	Year     int
	Totals   []ledger.CompanyTotal
	Failures []ResellerFailure
}
