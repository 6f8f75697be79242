package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/fleetbill/fleetbill/internal/catalog"
	"github.com/fleetbill/fleetbill/internal/ledger"
	"github.com/fleetbill/fleetbill/internal/myadmin"
	"github.com/fleetbill/fleetbill/internal/pricing"
)

// Runner generates monthly bills. Each reseller is processed in its own
// transaction, so one reseller's failure rolls back only that reseller's
// writes and the run moves on to the next.
type Runner struct {
	catalog    CatalogStore
	txm        TxManager
	source     Source
	staleAfter time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// NewRunner wires a Runner from its stores and the upstream source.
func NewRunner(cs CatalogStore, txm TxManager, source Source, staleAfter time.Duration, logger *slog.Logger) *Runner {
	return &Runner{
		catalog:    cs,
		txm:        txm,
		source:     source,
		staleAfter: staleAfter,
		logger:     logger,
		now:        time.Now,
	}
}

// GenerateMonthlyBills runs billing for every reseller for one period. The
// period is validated before any upstream or database I/O. Re-running the
// same period converges on the same rows instead of duplicating them.
func (r *Runner) GenerateMonthlyBills(ctx context.Context, month, year int) (*RunResult, error) {
	if err := ValidatePeriod(month, year, r.now()); err != nil {
		return nil, err
	}

	result := &RunResult{RunID: uuid.NewString(), Month: month, Year: year}
	log := r.logger.With(
		slog.String("run_id", result.RunID),
		slog.Int("month", month),
		slog.Int("year", year),
	)
	log.Info("starting monthly billing run")

	resellers, err := r.catalog.ListResellers(ctx)
	if err != nil {
		return nil, fmt.Errorf("billing: list resellers: %w", err)
	}

	for _, reseller := range resellers {
		totals, err := r.runReseller(ctx, reseller, month, year, log)
		if err != nil {
			log.Error("billing run failed for reseller",
				slog.String("reseller", reseller.Name),
				slog.String("error", err.Error()))
			result.Failures = append(result.Failures, ResellerFailure{
				ResellerID: reseller.ID,
				Reseller:   reseller.Name,
				Err:        err,
			})
			continue
		}
		result.Totals = append(result.Totals, totals...)
	}

	log.Info("monthly billing run finished",
		slog.Int("companies_billed", len(result.Totals)),
		slog.Int("failures", len(result.Failures)))
	return result, nil
}

// runReseller fetches the reseller's period payload and applies it inside a
// single transaction.
func (r *Runner) runReseller(ctx context.Context, reseller catalog.Reseller, month, year int, log *slog.Logger) ([]ledger.CompanyTotal, error) {
	payload, err := r.source.FetchPeriod(ctx, month, year)
	if err != nil {
		return nil, fmt.Errorf("fetch period: %w", err)
	}

	var totals []ledger.CompanyTotal
	err = r.txm.WithinTx(ctx, func(ctx context.Context, st Stores) error {
		run := &resellerRun{
			st:       st,
			reseller: reseller,
			month:    month,
			year:     year,
			cutoff:   r.now().Add(-r.staleAfter),
			logger:   log.With(slog.String("reseller", reseller.Name)),
		}
		totals, err = run.apply(ctx, payload)
		return err
	})
	if err != nil {
		return nil, err
	}
	return totals, nil
}

// resellerRun holds the state threaded through one reseller's transaction.
type resellerRun struct {
	st       Stores
	reseller catalog.Reseller
	month    int
	year     int
	cutoff   time.Time
	logger   *slog.Logger

	rules     pricing.Rules
	engines   map[int64]*pricing.Engine
	companies map[string]catalog.Company
}

func (run *resellerRun) apply(ctx context.Context, payload *myadmin.RawBillingPayload) ([]ledger.CompanyTotal, error) {
	if err := run.syncProducts(ctx, payload.Products); err != nil {
		return nil, err
	}
	if err := run.syncRatePlans(ctx, payload.Contracts); err != nil {
		return nil, err
	}
	if err := run.ensureCompanies(ctx, payload); err != nil {
		return nil, err
	}

	rules, err := run.st.Catalog.PricingRules(ctx, run.reseller.ID)
	if err != nil {
		return nil, fmt.Errorf("load pricing rules: %w", err)
	}
	run.rules = rules
	run.engines = make(map[int64]*pricing.Engine)

	contracts, err := run.buildContracts(ctx, payload.Contracts)
	if err != nil {
		return nil, err
	}
	orders, err := run.buildOrders(ctx, payload.Orders)
	if err != nil {
		return nil, err
	}
	return run.aggregateBills(ctx, contracts, orders)
}

// syncProducts upserts the pulled catalog and deactivates products that are
// stale or no longer offered.
func (run *resellerRun) syncProducts(ctx context.Context, products []myadmin.ProductRecord) error {
	seen := make([]string, 0, len(products))
	for _, p := range products {
		_, _, err := run.st.Catalog.UpsertProduct(ctx, catalog.ProductInput{
			Code:           p.Code,
			Name:           p.Name,
			Category:       p.Category,
			WholesalePrice: p.WholesalePrice,
			MSRPPrice:      p.MSRPPrice,
		})
		if err != nil {
			return fmt.Errorf("upsert product %s: %w", p.Code, err)
		}
		seen = append(seen, p.Code)
	}

	deactivated, err := run.st.Catalog.DeactivateStaleProducts(ctx, seen, run.cutoff)
	if err != nil {
		return fmt.Errorf("deactivate stale products: %w", err)
	}
	if deactivated > 0 {
		run.logger.Info("deactivated stale products", slog.Int64("count", deactivated))
	}
	return nil
}

// syncRatePlans upserts every rate plan observed on the period's contracts,
// tagging each with the billing month.
func (run *resellerRun) syncRatePlans(ctx context.Context, contracts []myadmin.ContractRecord) error {
	upserted := make(map[string]struct{}, len(contracts))
	for _, rec := range contracts {
		if rec.RatePlanName == "" {
			continue
		}
		if _, ok := upserted[rec.RatePlanName]; ok {
			continue
		}
		_, _, err := run.st.Catalog.UpsertRatePlan(ctx, catalog.RatePlanInput{
			ResellerID: run.reseller.ID,
			Name:       rec.RatePlanName,
			MonthlyFee: rec.RatePlanMonthlyFee,
			Month:      run.month,
			Year:       run.year,
		})
		if err != nil {
			return fmt.Errorf("upsert rate plan %s: %w", rec.RatePlanName, err)
		}
		upserted[rec.RatePlanName] = struct{}{}
	}
	return nil
}

// ensureCompanies finds or creates every company referenced by the payload.
// New companies land under the default company type until reclassified.
func (run *resellerRun) ensureCompanies(ctx context.Context, payload *myadmin.RawBillingPayload) error {
	run.companies = make(map[string]catalog.Company)

	ensure := func(in catalog.CompanyInput) error {
		if _, ok := run.companies[in.CompanyID]; ok {
			return nil
		}
		company, created, err := run.st.Catalog.FindOrCreateCompany(ctx, in)
		if err != nil {
			return fmt.Errorf("find or create company %s: %w", in.CompanyID, err)
		}
		if created {
			run.logger.Info("registered new company", slog.String("company", company.Name))
		}
		run.companies[in.CompanyID] = company
		return nil
	}

	for _, rec := range payload.Contracts {
		err := ensure(catalog.CompanyInput{
			CompanyID:   rec.CompanyID,
			Name:        rec.CompanyName,
			DisplayName: rec.DisplayName,
			Address:     rec.Address,
		})
		if err != nil {
			return err
		}
	}
	for _, rec := range payload.Orders {
		err := ensure(catalog.CompanyInput{
			CompanyID: rec.CompanyID,
			Name:      rec.CompanyName,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// engineFor returns the pricing engine for a company, cached per company type.
func (run *resellerRun) engineFor(ctx context.Context, company catalog.Company) (*pricing.Engine, error) {
	if engine, ok := run.engines[company.CompanyTypeID]; ok {
		return engine, nil
	}
	ct, err := run.st.Catalog.CompanyTypeByID(ctx, company.CompanyTypeID)
	if err != nil {
		return nil, fmt.Errorf("resolve company type for %s: %w", company.Name, err)
	}
	engine := pricing.NewEngine(pricing.CompanyType(ct.TypeName), run.rules)
	run.engines[company.CompanyTypeID] = engine
	return engine, nil
}

// buildContracts prices and upserts one recurring entry per device. A
// contract whose rate plan is unknown aborts the reseller's run; recurring
// charges must never be silently skipped or guessed.
func (run *resellerRun) buildContracts(ctx context.Context, records []myadmin.ContractRecord) ([]ledger.Contract, error) {
	byKey := make(map[string]int, len(records))
	contracts := make([]ledger.Contract, 0, len(records))

	for _, rec := range records {
		company := run.companies[rec.CompanyID]

		plan, err := run.st.Catalog.RatePlanByName(ctx, run.reseller.ID, rec.RatePlanName)
		if err != nil {
			return nil, fmt.Errorf("device %s: rate plan %q: %w", rec.SerialNo, rec.RatePlanName, err)
		}

		engine, err := run.engineFor(ctx, company)
		if err != nil {
			return nil, err
		}
		unit, err := engine.RatePlanPrice(plan.Name, plan.MonthlyFee, plan.DefaultCustomerFee)
		if err != nil {
			return nil, fmt.Errorf("device %s: price rate plan %q: %w", rec.SerialNo, plan.Name, err)
		}

		contract := ledger.Contract{
			SerialNo:          rec.SerialNo,
			VIN:               rec.VIN,
			Database:          rec.Database,
			AssignedPO:        rec.AssignedPO,
			CompanyID:         company.ID,
			RatePlanID:        plan.ID,
			Month:             run.month,
			Year:              run.year,
			BillDays:          rec.BillDays,
			BillingDays:       rec.BillingDays,
			TotalCost:         rec.WholesaleCost,
			CustomerCost:      unit,
			TotalCustomerCost: Prorate(unit, rec.BillingDays, run.month, run.year),
			PeriodFrom:        rec.PeriodFrom,
			PeriodTo:          rec.PeriodTo,
		}

		// Duplicate transactions for the same device collapse onto one
		// entry; the later record wins, matching the upsert key.
		key := fmt.Sprintf("%s|%d", rec.SerialNo, company.ID)
		if i, ok := byKey[key]; ok {
			contracts[i] = contract
			continue
		}
		byKey[key] = len(contracts)
		contracts = append(contracts, contract)
	}

	for i, contract := range contracts {
		stored, _, err := run.st.Ledger.UpsertContract(ctx, contract)
		if err != nil {
			return nil, fmt.Errorf("upsert contract %s: %w", contract.SerialNo, err)
		}
		contracts[i] = stored
	}
	return contracts, nil
}

// buildOrders prices and upserts one-time purchases with their line items
// and shipments. Products missing from the catalog are registered as
// inactive placeholders priced at the ordered unit cost.
func (run *resellerRun) buildOrders(ctx context.Context, records []myadmin.OrderRecord) ([]ledger.Order, error) {
	type pricedLine struct {
		product       catalog.Product
		line          myadmin.OrderLine
		customerPrice float64
	}

	byKey := make(map[string]int, len(records))
	orders := make([]ledger.Order, 0, len(records))
	lines := make([][]pricedLine, 0, len(records))
	shipments := make([][]myadmin.ShipmentRecord, 0, len(records))

	for _, rec := range records {
		company := run.companies[rec.CompanyID]
		engine, err := run.engineFor(ctx, company)
		if err != nil {
			return nil, err
		}

		var customerCost float64
		priced := make([]pricedLine, 0, len(rec.Items))
		for _, line := range rec.Items {
			product, err := run.st.Catalog.ProductByCode(ctx, line.ProductCode)
			if errors.Is(err, catalog.ErrProductNotFound) {
				product, err = run.st.Catalog.CreateInactiveProduct(ctx, line.ProductCode, line.ProductName, line.UnitCost)
			}
			if err != nil {
				return nil, fmt.Errorf("order %s: product %s: %w", rec.PONumber, line.ProductCode, err)
			}

			price, err := engine.ProductPrice(product.Code, product.WholesalePrice)
			if err != nil {
				return nil, fmt.Errorf("order %s: price product %s: %w", rec.PONumber, product.Code, err)
			}
			customerCost += price * line.Quantity
			priced = append(priced, pricedLine{product: product, line: line, customerPrice: price})
		}
		// Shipping passes through to the customer at cost.
		customerCost += rec.ShippingCost

		order := ledger.Order{
			PONumber:        rec.PONumber,
			OrderNumber:     rec.OrderNumber,
			OrderDate:       rec.OrderDate,
			CompanyID:       company.ID,
			CurrentStatus:   rec.CurrentStatus,
			PlacedBy:        rec.PlacedBy,
			ShippingAddress: rec.ShippingAddress,
			ItemCost:        rec.ItemCost,
			ShippingCost:    rec.ShippingCost,
			OrderTotal:      rec.OrderTotal,
			CustomerCost:    customerCost,
		}

		key := fmt.Sprintf("%s|%s|%s", rec.PONumber, rec.OrderNumber, rec.OrderDate.Format("2006-01-02"))
		if i, ok := byKey[key]; ok {
			orders[i] = order
			lines[i] = priced
			shipments[i] = rec.Shipments
			continue
		}
		byKey[key] = len(orders)
		orders = append(orders, order)
		lines = append(lines, priced)
		shipments = append(shipments, rec.Shipments)
	}

	for i, order := range orders {
		stored, _, err := run.st.Ledger.UpsertOrder(ctx, order)
		if err != nil {
			return nil, fmt.Errorf("upsert order %s: %w", order.PONumber, err)
		}
		orders[i] = stored

		for _, pl := range lines[i] {
			_, err := run.st.Ledger.UpsertOrderItem(ctx, ledger.OrderItem{
				OrderID:       stored.ID,
				ProductID:     pl.product.ID,
				Quantity:      pl.line.Quantity,
				UnitCost:      pl.line.UnitCost,
				CustomerPrice: pl.customerPrice,
			})
			if err != nil {
				return nil, fmt.Errorf("upsert order item %s/%s: %w", order.PONumber, pl.product.Code, err)
			}
		}
		for _, sh := range shipments[i] {
			_, err := run.st.Ledger.UpsertShipItem(ctx, ledger.ShipItem{
				OrderID:         stored.ID,
				PurchaseOrderNo: sh.PurchaseOrderNo,
				Carrier:         sh.Carrier,
				TrackingNo:      sh.TrackingNo,
				ShippedAt:       sh.ShippedAt,
			})
			if err != nil {
				return nil, fmt.Errorf("upsert shipment %s: %w", sh.PurchaseOrderNo, err)
			}
		}
	}
	return orders, nil
}

// aggregateBills groups the period's entries per company, upserts one bill
// per company, and fully replaces its itemized lines.
func (run *resellerRun) aggregateBills(ctx context.Context, contracts []ledger.Contract, orders []ledger.Order) ([]ledger.CompanyTotal, error) {
	periodFrom, periodTo := PeriodBounds(run.month, run.year)

	type companyBill struct {
		items []ledger.BillItem
		total float64
	}
	byCompany := make(map[int64]*companyBill)
	bill := func(companyID int64) *companyBill {
		b, ok := byCompany[companyID]
		if !ok {
			b = &companyBill{}
			byCompany[companyID] = b
		}
		return b
	}

	for _, c := range contracts {
		id := c.ID
		b := bill(c.CompanyID)
		b.items = append(b.items, ledger.BillItem{ContractID: &id, ItemCost: c.TotalCustomerCost})
		b.total += c.TotalCustomerCost
	}
	for _, o := range orders {
		id := o.ID
		b := bill(o.CompanyID)
		b.items = append(b.items, ledger.BillItem{OrderID: &id, ItemCost: o.CustomerCost})
		b.total += o.CustomerCost
	}

	names := make(map[int64]string, len(run.companies))
	for _, company := range run.companies {
		names[company.ID] = company.Name
	}

	totals := make([]ledger.CompanyTotal, 0, len(byCompany))
	for companyID, b := range byCompany {
		stored, _, err := run.st.Ledger.UpsertBill(ctx, ledger.Bill{
			CompanyID:  companyID,
			PeriodFrom: periodFrom,
			PeriodTo:   periodTo,
			TotalCost:  b.total,
		})
		if err != nil {
			return nil, fmt.Errorf("upsert bill for company %d: %w", companyID, err)
		}
		if err := run.st.Ledger.ReplaceBillItems(ctx, stored.ID, b.items); err != nil {
			return nil, fmt.Errorf("replace bill items for company %d: %w", companyID, err)
		}
		totals = append(totals, ledger.CompanyTotal{
			CompanyName: names[companyID],
			PeriodFrom:  periodFrom,
			PeriodTo:    periodTo,
			TotalCost:   b.total,
		})
	}

	sort.Slice(totals, func(i, j int) bool { return totals[i].CompanyName < totals[j].CompanyName })
	run.logger.Info("bills generated", slog.Int("companies", len(totals)))
	return totals, nil
}
