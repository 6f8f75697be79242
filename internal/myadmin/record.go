package myadmin

import "time"

// Normalized, fully-typed records produced from the raw upstream payloads.
// Optional fields default to their zero value; only the identifiers needed
// for upsert keys cause a record to be skipped when absent.

// ContractRecord is one device's flattened recurring billing fact.
type ContractRecord struct {
	SerialNo    string
	VIN         string
	Database    string
	AssignedPO  string
	CompanyID   string
	CompanyName string
	DisplayName string
	Address     string
	// BillDays is the calendar span between period-from and period-to.
	// BillingDays is the upstream quantityInDays, the authoritative
	// proration numerator.
	BillDays           int
	BillingDays        float64
	WholesaleCost      float64
	RatePlanName       string
	RatePlanMonthlyFee float64
	PeriodFrom         time.Time
	PeriodTo           time.Time
}

// OrderLine is one product line on a normalized order.
type OrderLine struct {
	ProductCode string
	ProductName string
	Quantity    float64
	UnitCost    float64
}

// ShipmentRecord is one shipment on a normalized order.
type ShipmentRecord struct {
	PurchaseOrderNo string
	Carrier         string
	TrackingNo      string
	ShippedAt       time.Time
}

// OrderRecord is one flattened online order.
type OrderRecord struct {
	PONumber        string
	OrderNumber     string
	OrderDate       time.Time
	CurrentStatus   string
	PlacedBy        string
	ShippingAddress string
	CompanyID       string
	CompanyName     string
	ItemCost        float64
	ShippingCost    float64
	OrderTotal      float64
	Items           []OrderLine
	Shipments       []ShipmentRecord
}

// ProductRecord is one flattened catalog product.
type ProductRecord struct {
	Code           string
	Name           string
	Category       string
	WholesalePrice float64
	MSRPPrice      float64
}

// RawBillingPayload bundles everything fetched for one (month, year) window.
type RawBillingPayload struct {
	Contracts []ContractRecord
	Orders    []OrderRecord
	Products  []ProductRecord
}
