package catalog

import (
	"errors"
	"time"
)

var (
	// ErrRatePlanNotFound indicates a contract references a rate plan the
	// reseller does not carry.
	ErrRatePlanNotFound = errors.New("catalog: rate plan not found")
	// ErrProductNotFound indicates a product code is absent from the catalog.
	ErrProductNotFound = errors.New("catalog: product not found")
	// ErrCompanyNotFound indicates a company lookup failed.
	ErrCompanyNotFound = errors.New("catalog: company not found")
)

// Reseller owns companies, rate plans, and pricing rules.
type Reseller struct {
	ID           int64
	Name         string
	ContactEmail string
	CreatedAt    time.Time
}

// CompanyType tags the pricing branch a company falls under.
type CompanyType struct {
	ID       int64
	TypeName string
}

// Company is a billed customer, keyed by the upstream company identifier.
// Companies are deactivated, never deleted.
type Company struct {
	ID            int64
	CompanyID     string
	Name          string
	DisplayName   string
	Address       string
	CompanyTypeID int64
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// RatePlan is a recurring device plan. The month/year tag records when the
// plan was last observed upstream; lookups remain by (reseller, name).
type RatePlan struct {
	ID                 int64
	ResellerID         int64
	Name               string
	MonthlyFee         float64
	Month              int
	Year               int
	DefaultCustomerFee float64
	UpdatedAt          time.Time
}

// Product is a hardware or accessory catalog entry.
type Product struct {
	ID             int64
	Code           string
	Name           string
	Category       string
	WholesalePrice float64
	MSRPPrice      float64
	Active         bool
	LastUpdated    time.Time
}

// CompanyInput carries the upstream fields used to find or create a company.
type CompanyInput struct {
	CompanyID   string
	Name        string
	DisplayName string
	Address     string
}

// RatePlanInput carries the upstream fields used to upsert a rate plan.
type RatePlanInput struct {
	ResellerID int64
	Name       string
	MonthlyFee float64
	Month      int
	Year       int
}

// ProductInput carries the upstream fields used to upsert a product.
type ProductInput struct {
	Code           string
	Name           string
	Category       string
	WholesalePrice float64
	MSRPPrice      float64
}

// DefaultCustomerFee derives the initial customer fee for a rate plan first
// seen without explicit pricing: 1.5 times the wholesale monthly fee.
func DefaultCustomerFee(monthlyFee float64) float64 {
	return monthlyFee * 1.5
}
