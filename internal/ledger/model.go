package ledger

import (
	"errors"
	"time"
)

// ErrBillNotFound indicates no bill exists for the requested company and period.
var ErrBillNotFound = errors.New("ledger: bill not found")

// Contract is one device's recurring billing fact for one month, keyed by
// (serial_no, company, month, year). Raw upstream transactions collapse into
// a single row; re-ingesting the same period updates in place.
type Contract struct {
	ID         int64
	SerialNo   string
	VIN        string
	Database   string
	AssignedPO string
	CompanyID  int64
	RatePlanID int64
	Month      int
	Year       int
	// BillDays is the calendar span of the contract period as reported
	// upstream; BillingDays is the prorated quantity of days actually
	// billed. They are distinct and both retained.
	BillDays    int
	BillingDays float64
	// TotalCost is the wholesale amount charged by the upstream provider.
	TotalCost float64
	// CustomerCost is the resolved per-unit customer price;
	// TotalCustomerCost is that price prorated over the billing month.
	CustomerCost      float64
	TotalCustomerCost float64
	PeriodFrom        time.Time
	PeriodTo          time.Time
}

// Order is a one-time hardware or accessory purchase, keyed by
// (po_number, order_number, order_date).
type Order struct {
	ID              int64
	PONumber        string
	OrderNumber     string
	OrderDate       time.Time
	CompanyID       int64
	CurrentStatus   string
	PlacedBy        string
	ShippingAddress string
	ItemCost        float64
	ShippingCost    float64
	OrderTotal      float64
	CustomerCost    float64
}

// OrderItem is one product line on an order, keyed by (order, product).
type OrderItem struct {
	ID            int64
	OrderID       int64
	ProductID     int64
	Quantity      float64
	UnitCost      float64
	CustomerPrice float64
}

// ShipItem tracks one shipment on an order, keyed by (order, purchase_order_no).
type ShipItem struct {
	ID              int64
	OrderID         int64
	PurchaseOrderNo string
	Carrier         string
	TrackingNo      string
	ShippedAt       time.Time
}

// Bill is the per-company total for one billing period.
type Bill struct {
	ID         int64
	CompanyID  int64
	PeriodFrom time.Time
	PeriodTo   time.Time
	TotalCost  float64
}

// BillItem is one itemized line of a bill, linked to either a contract or
// an order. Items are fully replaced on every regeneration.
type BillItem struct {
	ID         int64
	BillID     int64
	ContractID *int64
	OrderID    *int64
	ItemCost   float64
}

// CompanyTotal is a summary row for reporting.
type CompanyTotal struct {
	CompanyName string
	PeriodFrom  time.Time
	PeriodTo    time.Time
	TotalCost   float64
}

// ReceiptLine is one row of an itemized receipt, covering both recurring
// contract charges and order line items.
type ReceiptLine struct {
	CompanyName  string
	ItemType     string
	Identifier   string
	ItemDate     string
	Name         string
	Quantity     float64
	BillingDays  float64
	ItemCost     float64
	TotalCost    float64
	ShippingCost float64
}

// Receipt line item types.
const (
	ItemTypeRecurring = "Recurring"
	ItemTypeOrder     = "Order"
)
