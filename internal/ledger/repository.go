package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/fleetbill/fleetbill/internal/platform/db"
)

// Repository provides pgx-backed access to the billing ledger. Natural-key
// upserts keep re-ingestion idempotent.
type Repository struct {
	q db.Querier
}

func NewRepository(q db.Querier) *Repository {
	return &Repository{q: q}
}

// UpsertContract inserts or updates the contract row for
// (serial_no, company, month, year). Last write wins.
func (r *Repository) UpsertContract(ctx context.Context, c Contract) (Contract, bool, error) {
	var created bool
	err := r.q.QueryRow(ctx,
		`INSERT INTO contracts
		   (serial_no, vin, database, assigned_po, company_id, rate_plan_id, month, year,
		    bill_days, billing_days, total_cost, customer_cost, total_customer_cost, period_from, period_to)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 ON CONFLICT (serial_no, company_id, month, year) DO UPDATE
		 SET vin = EXCLUDED.vin, database = EXCLUDED.database, assigned_po = EXCLUDED.assigned_po,
		     rate_plan_id = EXCLUDED.rate_plan_id, bill_days = EXCLUDED.bill_days,
		     billing_days = EXCLUDED.billing_days, total_cost = EXCLUDED.total_cost,
		     customer_cost = EXCLUDED.customer_cost, total_customer_cost = EXCLUDED.total_customer_cost,
		     period_from = EXCLUDED.period_from, period_to = EXCLUDED.period_to
		 RETURNING id, (xmax = 0)`,
		c.SerialNo, c.VIN, c.Database, c.AssignedPO, c.CompanyID, c.RatePlanID, c.Month, c.Year,
		c.BillDays, c.BillingDays, c.TotalCost, c.CustomerCost, c.TotalCustomerCost, c.PeriodFrom, c.PeriodTo).
		Scan(&c.ID, &created)
	if err != nil {
		return Contract{}, false, fmt.Errorf("ledger: upsert contract: %w", err)
	}
	return c, created, nil
}

// UpsertOrder inserts or updates the order row for
// (po_number, order_number, order_date).
func (r *Repository) UpsertOrder(ctx context.Context, o Order) (Order, bool, error) {
	var created bool
	err := r.q.QueryRow(ctx,
		`INSERT INTO orders
		   (po_number, order_number, order_date, company_id, current_status, placed_by,
		    shipping_address, item_cost, shipping_cost, order_total, customer_cost)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (po_number, order_number, order_date) DO UPDATE
		 SET company_id = EXCLUDED.company_id, current_status = EXCLUDED.current_status,
		     placed_by = EXCLUDED.placed_by, shipping_address = EXCLUDED.shipping_address,
		     item_cost = EXCLUDED.item_cost, shipping_cost = EXCLUDED.shipping_cost,
		     order_total = EXCLUDED.order_total, customer_cost = EXCLUDED.customer_cost
		 RETURNING id, (xmax = 0)`,
		o.PONumber, o.OrderNumber, o.OrderDate, o.CompanyID, o.CurrentStatus, o.PlacedBy,
		o.ShippingAddress, o.ItemCost, o.ShippingCost, o.OrderTotal, o.CustomerCost).
		Scan(&o.ID, &created)
	if err != nil {
		return Order{}, false, fmt.Errorf("ledger: upsert order: %w", err)
	}
	return o, created, nil
}

// UpsertOrderItem inserts or updates the line for (order, product).
func (r *Repository) UpsertOrderItem(ctx context.Context, it OrderItem) (OrderItem, error) {
	err := r.q.QueryRow(ctx,
		`INSERT INTO order_items (order_id, product_id, quantity, unit_cost, customer_price)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (order_id, product_id) DO UPDATE
		 SET quantity = EXCLUDED.quantity, unit_cost = EXCLUDED.unit_cost,
		     customer_price = EXCLUDED.customer_price
		 RETURNING id`,
		it.OrderID, it.ProductID, it.Quantity, it.UnitCost, it.CustomerPrice).
		Scan(&it.ID)
	if err != nil {
		return OrderItem{}, fmt.Errorf("ledger: upsert order item: %w", err)
	}
	return it, nil
}

// UpsertShipItem inserts or updates the shipment for (order, purchase_order_no).
func (r *Repository) UpsertShipItem(ctx context.Context, si ShipItem) (ShipItem, error) {
	err := r.q.QueryRow(ctx,
		`INSERT INTO ship_items (order_id, purchase_order_no, carrier, tracking_no, shipped_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (order_id, purchase_order_no) DO UPDATE
		 SET carrier = EXCLUDED.carrier, tracking_no = EXCLUDED.tracking_no,
		     shipped_at = EXCLUDED.shipped_at
		 RETURNING id`,
		si.OrderID, si.PurchaseOrderNo, si.Carrier, si.TrackingNo, si.ShippedAt).
		Scan(&si.ID)
	if err != nil {
		return ShipItem{}, fmt.Errorf("ledger: upsert ship item: %w", err)
	}
	return si, nil
}

// UpsertBill inserts or updates the bill for (company, period_from, period_to).
func (r *Repository) UpsertBill(ctx context.Context, b Bill) (Bill, bool, error) {
	var created bool
	err := r.q.QueryRow(ctx,
		`INSERT INTO bills (company_id, period_from, period_to, total_cost)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (company_id, period_from, period_to) DO UPDATE
		 SET total_cost = EXCLUDED.total_cost
		 RETURNING id, (xmax = 0)`,
		b.CompanyID, b.PeriodFrom, b.PeriodTo, b.TotalCost).
		Scan(&b.ID, &created)
	if err != nil {
		return Bill{}, false, fmt.Errorf("ledger: upsert bill: %w", err)
	}
	return b, created, nil
}

// ReplaceBillItems deletes every existing item for the bill and writes the
// current set, so stale lines from prior runs never survive.
func (r *Repository) ReplaceBillItems(ctx context.Context, billID int64, items []BillItem) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM bill_items WHERE bill_id = $1`, billID); err != nil {
		return fmt.Errorf("ledger: clear bill items: %w", err)
	}
	for _, it := range items {
		_, err := r.q.Exec(ctx,
			`INSERT INTO bill_items (bill_id, contract_id, order_id, item_cost) VALUES ($1, $2, $3, $4)`,
			billID, it.ContractID, it.OrderID, it.ItemCost)
		if err != nil {
			return fmt.Errorf("ledger: insert bill item: %w", err)
		}
	}
	return nil
}

// ListCompanyNames returns the distinct billed company names.
func (r *Repository) ListCompanyNames(ctx context.Context) ([]string, error) {
	rows, err := r.q.Query(ctx, `SELECT DISTINCT name FROM companies ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("ledger: list company names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// BillTotal sums the bills for every company sharing the given name over
// the exact period. ErrBillNotFound is returned when no company matches.
func (r *Repository) BillTotal(ctx context.Context, companyName string, periodFrom, periodTo time.Time) (float64, error) {
	var matches int
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM companies WHERE name = $1`, companyName).Scan(&matches); err != nil {
		return 0, fmt.Errorf("ledger: count companies: %w", err)
	}
	if matches == 0 {
		return 0, fmt.Errorf("ledger: company %q: %w", companyName, ErrBillNotFound)
	}

	var total float64
	err := r.q.QueryRow(ctx,
		`SELECT COALESCE(SUM(b.total_cost), 0)
		 FROM bills b JOIN companies c ON c.id = b.company_id
		 WHERE c.name = $1 AND b.period_from = $2 AND b.period_to = $3`,
		companyName, periodFrom, periodTo).
		Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("ledger: bill total: %w", err)
	}
	return total, nil
}

// ListBillsForPeriod returns per-company totals for the period, ordered by
// company name.
func (r *Repository) ListBillsForPeriod(ctx context.Context, periodFrom, periodTo time.Time) ([]CompanyTotal, error) {
	rows, err := r.q.Query(ctx,
		`SELECT c.name, MIN(b.period_from), MAX(b.period_to), SUM(b.total_cost)
		 FROM bills b JOIN companies c ON c.id = b.company_id
		 WHERE b.period_from = $1 AND b.period_to = $2
		 GROUP BY c.name ORDER BY c.name`,
		periodFrom, periodTo)
	if err != nil {
		return nil, fmt.Errorf("ledger: list bills: %w", err)
	}
	defer rows.Close()

	var totals []CompanyTotal
	for rows.Next() {
		var t CompanyTotal
		if err := rows.Scan(&t.CompanyName, &t.PeriodFrom, &t.PeriodTo, &t.TotalCost); err != nil {
			return nil, err
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

// ItemizedReceipt returns the order line items and recurring contract lines
// for every company sharing the given name in the billing month.
func (r *Repository) ItemizedReceipt(ctx context.Context, companyName string, month, year int, periodFrom, periodTo time.Time) ([]ReceiptLine, error) {
	var lines []ReceiptLine

	rows, err := r.q.Query(ctx,
		`SELECT c.name, o.order_number, o.order_date, p.name, oi.quantity, oi.customer_price,
		        oi.customer_price * oi.quantity, o.shipping_cost
		 FROM order_items oi
		 JOIN orders o ON o.id = oi.order_id
		 JOIN companies c ON c.id = o.company_id
		 JOIN products p ON p.id = oi.product_id
		 WHERE c.name = $1 AND o.order_date BETWEEN $2 AND $3
		 ORDER BY o.order_number, p.code`,
		companyName, periodFrom, periodTo)
	if err != nil {
		return nil, fmt.Errorf("ledger: receipt order items: %w", err)
	}
	for rows.Next() {
		line := ReceiptLine{ItemType: ItemTypeOrder}
		var orderDate time.Time
		if err := rows.Scan(&line.CompanyName, &line.Identifier, &orderDate, &line.Name,
			&line.Quantity, &line.ItemCost, &line.TotalCost, &line.ShippingCost); err != nil {
			rows.Close()
			return nil, err
		}
		line.ItemDate = orderDate.Format("2006-01-02")
		lines = append(lines, line)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.q.Query(ctx,
		`SELECT c.name, ct.serial_no, rp.name, ct.billing_days, ct.customer_cost, ct.total_customer_cost
		 FROM contracts ct
		 JOIN companies c ON c.id = ct.company_id
		 JOIN rate_plans rp ON rp.id = ct.rate_plan_id
		 WHERE c.name = $1 AND ct.month = $2 AND ct.year = $3
		 ORDER BY ct.serial_no`,
		companyName, month, year)
	if err != nil {
		return nil, fmt.Errorf("ledger: receipt contracts: %w", err)
	}
	for rows.Next() {
		line := ReceiptLine{
			ItemType: ItemTypeRecurring,
			ItemDate: fmt.Sprintf("%04d-%02d-01", year, month),
		}
		if err := rows.Scan(&line.CompanyName, &line.Identifier, &line.Name,
			&line.BillingDays, &line.ItemCost, &line.TotalCost); err != nil {
			rows.Close()
			return nil, err
		}
		lines = append(lines, line)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return lines, nil
}
