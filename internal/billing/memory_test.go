package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/fleetbill/fleetbill/internal/catalog"
	"github.com/fleetbill/fleetbill/internal/ledger"
	"github.com/fleetbill/fleetbill/internal/myadmin"
	"github.com/fleetbill/fleetbill/internal/pricing"
)

type memoryCatalog struct {
	resellers     []catalog.Reseller
	companyTypes  map[int64]catalog.CompanyType
	defaultTypeID int64
	companies     map[string]catalog.Company
	ratePlans     map[string]catalog.RatePlan
	products      map[string]catalog.Product
	rules         map[int64]pricing.Rules
	nextID        int64
}

func newMemoryCatalog() *memoryCatalog {
	c := &memoryCatalog{
		companyTypes: make(map[int64]catalog.CompanyType),
		companies:    make(map[string]catalog.Company),
		ratePlans:    make(map[string]catalog.RatePlan),
		products:     make(map[string]catalog.Product),
		rules:        make(map[int64]pricing.Rules),
	}
	c.defaultTypeID = c.addCompanyType(string(pricing.CompanyTypeDefault))
	return c
}

func (c *memoryCatalog) next() int64 {
	c.nextID++
	return c.nextID
}

func (c *memoryCatalog) addReseller(name string) catalog.Reseller {
	r := catalog.Reseller{ID: c.next(), Name: name}
	c.resellers = append(c.resellers, r)
	return r
}

func (c *memoryCatalog) addCompanyType(name string) int64 {
	ct := catalog.CompanyType{ID: c.next(), TypeName: name}
	c.companyTypes[ct.ID] = ct
	return ct.ID
}

func (c *memoryCatalog) addCompany(companyID, name string, typeID int64) catalog.Company {
	company := catalog.Company{
		ID:            c.next(),
		CompanyID:     companyID,
		Name:          name,
		CompanyTypeID: typeID,
		Active:        true,
	}
	c.companies[companyID] = company
	return company
}

func planKey(resellerID int64, name string) string {
	return fmt.Sprintf("%d|%s", resellerID, name)
}

func (c *memoryCatalog) ListResellers(ctx context.Context) ([]catalog.Reseller, error) {
	return append([]catalog.Reseller(nil), c.resellers...), nil
}

func (c *memoryCatalog) CompanyTypeByID(ctx context.Context, id int64) (catalog.CompanyType, error) {
	ct, ok := c.companyTypes[id]
	if !ok {
		return catalog.CompanyType{}, fmt.Errorf("company type %d missing", id)
	}
	return ct, nil
}

func (c *memoryCatalog) FindOrCreateCompany(ctx context.Context, in catalog.CompanyInput) (catalog.Company, bool, error) {
	if company, ok := c.companies[in.CompanyID]; ok {
		company.Name = in.Name
		company.DisplayName = in.DisplayName
		company.Address = in.Address
		c.companies[in.CompanyID] = company
		return company, false, nil
	}
	company := catalog.Company{
		ID:            c.next(),
		CompanyID:     in.CompanyID,
		Name:          in.Name,
		DisplayName:   in.DisplayName,
		Address:       in.Address,
		CompanyTypeID: c.defaultTypeID,
		Active:        true,
	}
	c.companies[in.CompanyID] = company
	return company, true, nil
}

func (c *memoryCatalog) UpsertRatePlan(ctx context.Context, in catalog.RatePlanInput) (catalog.RatePlan, bool, error) {
	key := planKey(in.ResellerID, in.Name)
	if plan, ok := c.ratePlans[key]; ok {
		plan.MonthlyFee = in.MonthlyFee
		plan.Month = in.Month
		plan.Year = in.Year
		c.ratePlans[key] = plan
		return plan, false, nil
	}
	plan := catalog.RatePlan{
		ID:                 c.next(),
		ResellerID:         in.ResellerID,
		Name:               in.Name,
		MonthlyFee:         in.MonthlyFee,
		Month:              in.Month,
		Year:               in.Year,
		DefaultCustomerFee: catalog.DefaultCustomerFee(in.MonthlyFee),
	}
	c.ratePlans[key] = plan
	return plan, true, nil
}

func (c *memoryCatalog) RatePlanByName(ctx context.Context, resellerID int64, name string) (catalog.RatePlan, error) {
	plan, ok := c.ratePlans[planKey(resellerID, name)]
	if !ok {
		return catalog.RatePlan{}, fmt.Errorf("%w: %s", catalog.ErrRatePlanNotFound, name)
	}
	return plan, nil
}

func (c *memoryCatalog) UpsertProduct(ctx context.Context, in catalog.ProductInput) (catalog.Product, bool, error) {
	if p, ok := c.products[in.Code]; ok {
		p.Name = in.Name
		p.Category = in.Category
		p.WholesalePrice = in.WholesalePrice
		p.MSRPPrice = in.MSRPPrice
		p.Active = true
		p.LastUpdated = time.Now()
		c.products[in.Code] = p
		return p, false, nil
	}
	p := catalog.Product{
		ID:             c.next(),
		Code:           in.Code,
		Name:           in.Name,
		Category:       in.Category,
		WholesalePrice: in.WholesalePrice,
		MSRPPrice:      in.MSRPPrice,
		Active:         true,
		LastUpdated:    time.Now(),
	}
	c.products[in.Code] = p
	return p, true, nil
}

func (c *memoryCatalog) ProductByCode(ctx context.Context, code string) (catalog.Product, error) {
	p, ok := c.products[code]
	if !ok {
		return catalog.Product{}, fmt.Errorf("%w: %s", catalog.ErrProductNotFound, code)
	}
	return p, nil
}

func (c *memoryCatalog) CreateInactiveProduct(ctx context.Context, code, name string, wholesale float64) (catalog.Product, error) {
	p := catalog.Product{
		ID:             c.next(),
		Code:           code,
		Name:           name,
		WholesalePrice: wholesale,
		Active:         false,
		LastUpdated:    time.Now(),
	}
	c.products[code] = p
	return p, nil
}

func (c *memoryCatalog) DeactivateStaleProducts(ctx context.Context, seenCodes []string, cutoff time.Time) (int64, error) {
	seen := make(map[string]struct{}, len(seenCodes))
	for _, code := range seenCodes {
		seen[code] = struct{}{}
	}
	var count int64
	for code, p := range c.products {
		if !p.Active {
			continue
		}
		_, current := seen[code]
		if p.LastUpdated.Before(cutoff) || !current {
			p.Active = false
			c.products[code] = p
			count++
		}
	}
	return count, nil
}

func (c *memoryCatalog) PricingRules(ctx context.Context, resellerID int64) (pricing.Rules, error) {
	return c.rules[resellerID], nil
}

type memoryLedger struct {
	contracts map[string]ledger.Contract
	orders    map[string]ledger.Order
	items     map[string]ledger.OrderItem
	shipments map[string]ledger.ShipItem
	bills     map[string]ledger.Bill
	billItems map[int64][]ledger.BillItem
	nextID    int64
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{
		contracts: make(map[string]ledger.Contract),
		orders:    make(map[string]ledger.Order),
		items:     make(map[string]ledger.OrderItem),
		shipments: make(map[string]ledger.ShipItem),
		bills:     make(map[string]ledger.Bill),
		billItems: make(map[int64][]ledger.BillItem),
	}
}

func (l *memoryLedger) next() int64 {
	l.nextID++
	return l.nextID
}

func (l *memoryLedger) UpsertContract(ctx context.Context, c ledger.Contract) (ledger.Contract, bool, error) {
	key := fmt.Sprintf("%s|%d|%d|%d", c.SerialNo, c.CompanyID, c.Month, c.Year)
	if existing, ok := l.contracts[key]; ok {
		c.ID = existing.ID
		l.contracts[key] = c
		return c, false, nil
	}
	c.ID = l.next()
	l.contracts[key] = c
	return c, true, nil
}

func (l *memoryLedger) UpsertOrder(ctx context.Context, o ledger.Order) (ledger.Order, bool, error) {
	key := fmt.Sprintf("%s|%s|%s", o.PONumber, o.OrderNumber, o.OrderDate.Format("2006-01-02"))
	if existing, ok := l.orders[key]; ok {
		o.ID = existing.ID
		l.orders[key] = o
		return o, false, nil
	}
	o.ID = l.next()
	l.orders[key] = o
	return o, true, nil
}

func (l *memoryLedger) UpsertOrderItem(ctx context.Context, it ledger.OrderItem) (ledger.OrderItem, error) {
	key := fmt.Sprintf("%d|%d", it.OrderID, it.ProductID)
	if existing, ok := l.items[key]; ok {
		it.ID = existing.ID
	} else {
		it.ID = l.next()
	}
	l.items[key] = it
	return it, nil
}

func (l *memoryLedger) UpsertShipItem(ctx context.Context, si ledger.ShipItem) (ledger.ShipItem, error) {
	key := fmt.Sprintf("%d|%s", si.OrderID, si.PurchaseOrderNo)
	if existing, ok := l.shipments[key]; ok {
		si.ID = existing.ID
	} else {
		si.ID = l.next()
	}
	l.shipments[key] = si
	return si, nil
}

func (l *memoryLedger) UpsertBill(ctx context.Context, b ledger.Bill) (ledger.Bill, bool, error) {
	key := fmt.Sprintf("%d|%s|%s", b.CompanyID, b.PeriodFrom.Format("2006-01-02"), b.PeriodTo.Format("2006-01-02"))
	if existing, ok := l.bills[key]; ok {
		b.ID = existing.ID
		l.bills[key] = b
		return b, false, nil
	}
	b.ID = l.next()
	l.bills[key] = b
	return b, true, nil
}

func (l *memoryLedger) ReplaceBillItems(ctx context.Context, billID int64, items []ledger.BillItem) error {
	replaced := make([]ledger.BillItem, 0, len(items))
	for _, it := range items {
		it.ID = l.next()
		it.BillID = billID
		replaced = append(replaced, it)
	}
	l.billItems[billID] = replaced
	return nil
}

// memoryTx snapshots both stores before each transaction and restores them
// when the function fails, mirroring a database rollback.
type memoryTx struct {
	catalog *memoryCatalog
	ledger  *memoryLedger
}

func (m *memoryTx) WithinTx(ctx context.Context, fn func(ctx context.Context, st Stores) error) error {
	catSnap := m.catalog.snapshot()
	ledSnap := m.ledger.snapshot()
	if err := fn(ctx, Stores{Catalog: m.catalog, Ledger: m.ledger}); err != nil {
		m.catalog.restore(catSnap)
		m.ledger.restore(ledSnap)
		return err
	}
	return nil
}

func (c *memoryCatalog) snapshot() *memoryCatalog {
	snap := &memoryCatalog{
		resellers:     append([]catalog.Reseller(nil), c.resellers...),
		companyTypes:  cloneMap(c.companyTypes),
		defaultTypeID: c.defaultTypeID,
		companies:     cloneMap(c.companies),
		ratePlans:     cloneMap(c.ratePlans),
		products:      cloneMap(c.products),
		rules:         cloneMap(c.rules),
		nextID:        c.nextID,
	}
	return snap
}

func (c *memoryCatalog) restore(snap *memoryCatalog) {
	*c = *snap
}

func (l *memoryLedger) snapshot() *memoryLedger {
	items := make(map[int64][]ledger.BillItem, len(l.billItems))
	for id, its := range l.billItems {
		items[id] = append([]ledger.BillItem(nil), its...)
	}
	return &memoryLedger{
		contracts: cloneMap(l.contracts),
		orders:    cloneMap(l.orders),
		items:     cloneMap(l.items),
		shipments: cloneMap(l.shipments),
		bills:     cloneMap(l.bills),
		billItems: items,
		nextID:    l.nextID,
	}
}

func (l *memoryLedger) restore(snap *memoryLedger) {
	*l = *snap
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func catalogProductInput(code, name string, wholesale float64) catalog.ProductInput {
	return catalog.ProductInput{Code: code, Name: name, WholesalePrice: wholesale}
}

type memorySource struct {
	payload *myadmin.RawBillingPayload
	err     error
}

func (s *memorySource) FetchPeriod(ctx context.Context, month, year int) (*myadmin.RawBillingPayload, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.payload, nil
}
