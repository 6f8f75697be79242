package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/fleetbill/fleetbill/internal/platform/db"
	"github.com/fleetbill/fleetbill/internal/pricing"
)

// Repository provides pgx-backed access to reference data. It accepts a
// db.Querier so the billing run can route every call through one transaction.
type Repository struct {
	q db.Querier
}

func NewRepository(q db.Querier) *Repository {
	return &Repository{q: q}
}

// ListResellers returns every reseller, oldest first.
func (r *Repository) ListResellers(ctx context.Context) ([]Reseller, error) {
	rows, err := r.q.Query(ctx, `SELECT id, name, contact_email, created_at FROM resellers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list resellers: %w", err)
	}
	defer rows.Close()

	var resellers []Reseller
	for rows.Next() {
		var re Reseller
		if err := rows.Scan(&re.ID, &re.Name, &re.ContactEmail, &re.CreatedAt); err != nil {
			return nil, err
		}
		resellers = append(resellers, re)
	}
	return resellers, rows.Err()
}

// CompanyTypeByID fetches a company type row.
func (r *Repository) CompanyTypeByID(ctx context.Context, id int64) (CompanyType, error) {
	var ct CompanyType
	err := r.q.QueryRow(ctx, `SELECT id, type_name FROM company_types WHERE id = $1`, id).
		Scan(&ct.ID, &ct.TypeName)
	if errors.Is(err, pgx.ErrNoRows) {
		return CompanyType{}, fmt.Errorf("catalog: company type %d: %w", id, ErrCompanyNotFound)
	}
	return ct, err
}

// FindOrCreateCompanyType resolves a company type by name, creating it when
// absent. The bool reports whether a row was created.
func (r *Repository) FindOrCreateCompanyType(ctx context.Context, name string) (CompanyType, bool, error) {
	var ct CompanyType
	err := r.q.QueryRow(ctx, `SELECT id, type_name FROM company_types WHERE type_name = $1`, name).
		Scan(&ct.ID, &ct.TypeName)
	if err == nil {
		return ct, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return CompanyType{}, false, fmt.Errorf("catalog: find company type: %w", err)
	}

	err = r.q.QueryRow(ctx, `INSERT INTO company_types (type_name) VALUES ($1) RETURNING id`, name).
		Scan(&ct.ID)
	if db.IsUniqueViolation(err) {
		// Lost a race with a concurrent insert; re-read.
		return r.FindOrCreateCompanyType(ctx, name)
	}
	if err != nil {
		return CompanyType{}, false, fmt.Errorf("catalog: create company type: %w", err)
	}
	ct.TypeName = name
	return ct, true, nil
}

// FindOrCreateCompany resolves a company by its upstream identifier. New
// companies default to the "default" pricing type; existing rows get their
// upstream display fields refreshed.
func (r *Repository) FindOrCreateCompany(ctx context.Context, in CompanyInput) (Company, bool, error) {
	var c Company
	err := r.q.QueryRow(ctx,
		`SELECT id, company_id, name, display_name, address, company_type_id, is_active, created_at, updated_at
		 FROM companies WHERE company_id = $1`, in.CompanyID).
		Scan(&c.ID, &c.CompanyID, &c.Name, &c.DisplayName, &c.Address, &c.CompanyTypeID, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	if err == nil {
		now := time.Now()
		_, err = r.q.Exec(ctx,
			`UPDATE companies SET name = $1, display_name = $2, address = $3, updated_at = $4 WHERE id = $5`,
			in.Name, in.DisplayName, in.Address, now, c.ID)
		if err != nil {
			return Company{}, false, fmt.Errorf("catalog: refresh company: %w", err)
		}
		c.Name, c.DisplayName, c.Address, c.UpdatedAt = in.Name, in.DisplayName, in.Address, now
		return c, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Company{}, false, fmt.Errorf("catalog: find company: %w", err)
	}

	defaultType, _, err := r.FindOrCreateCompanyType(ctx, string(pricing.CompanyTypeDefault))
	if err != nil {
		return Company{}, false, err
	}

	now := time.Now()
	c = Company{
		CompanyID:     in.CompanyID,
		Name:          in.Name,
		DisplayName:   in.DisplayName,
		Address:       in.Address,
		CompanyTypeID: defaultType.ID,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err = r.q.QueryRow(ctx,
		`INSERT INTO companies (company_id, name, display_name, address, company_type_id, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, TRUE, $6, $6) RETURNING id`,
		in.CompanyID, in.Name, in.DisplayName, in.Address, defaultType.ID, now).
		Scan(&c.ID)
	if db.IsUniqueViolation(err) {
		return r.FindOrCreateCompany(ctx, in)
	}
	if err != nil {
		return Company{}, false, fmt.Errorf("catalog: create company: %w", err)
	}
	return c, true, nil
}

// UpsertRatePlan inserts or refreshes a rate plan observed upstream. The
// month/year tag and monthly fee track the latest observation; the stored
// default customer fee is kept, seeded from the monthly fee on first sight.
func (r *Repository) UpsertRatePlan(ctx context.Context, in RatePlanInput) (RatePlan, bool, error) {
	var rp RatePlan
	err := r.q.QueryRow(ctx,
		`SELECT id, reseller_id, name, monthly_fee, month, year, default_customer_fee, updated_at
		 FROM rate_plans WHERE reseller_id = $1 AND name = $2`, in.ResellerID, in.Name).
		Scan(&rp.ID, &rp.ResellerID, &rp.Name, &rp.MonthlyFee, &rp.Month, &rp.Year, &rp.DefaultCustomerFee, &rp.UpdatedAt)
	if err == nil {
		now := time.Now()
		_, err = r.q.Exec(ctx,
			`UPDATE rate_plans SET monthly_fee = $1, month = $2, year = $3, updated_at = $4 WHERE id = $5`,
			in.MonthlyFee, in.Month, in.Year, now, rp.ID)
		if err != nil {
			return RatePlan{}, false, fmt.Errorf("catalog: refresh rate plan: %w", err)
		}
		rp.MonthlyFee, rp.Month, rp.Year, rp.UpdatedAt = in.MonthlyFee, in.Month, in.Year, now
		return rp, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return RatePlan{}, false, fmt.Errorf("catalog: find rate plan: %w", err)
	}

	now := time.Now()
	rp = RatePlan{
		ResellerID:         in.ResellerID,
		Name:               in.Name,
		MonthlyFee:         in.MonthlyFee,
		Month:              in.Month,
		Year:               in.Year,
		DefaultCustomerFee: DefaultCustomerFee(in.MonthlyFee),
		UpdatedAt:          now,
	}
	err = r.q.QueryRow(ctx,
		`INSERT INTO rate_plans (reseller_id, name, monthly_fee, month, year, default_customer_fee, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		in.ResellerID, in.Name, in.MonthlyFee, in.Month, in.Year, rp.DefaultCustomerFee, now).
		Scan(&rp.ID)
	if db.IsUniqueViolation(err) {
		return r.UpsertRatePlan(ctx, in)
	}
	if err != nil {
		return RatePlan{}, false, fmt.Errorf("catalog: create rate plan: %w", err)
	}
	return rp, true, nil
}

// RatePlanByName resolves a rate plan by reseller and name.
func (r *Repository) RatePlanByName(ctx context.Context, resellerID int64, name string) (RatePlan, error) {
	var rp RatePlan
	err := r.q.QueryRow(ctx,
		`SELECT id, reseller_id, name, monthly_fee, month, year, default_customer_fee, updated_at
		 FROM rate_plans WHERE reseller_id = $1 AND name = $2`, resellerID, name).
		Scan(&rp.ID, &rp.ResellerID, &rp.Name, &rp.MonthlyFee, &rp.Month, &rp.Year, &rp.DefaultCustomerFee, &rp.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return RatePlan{}, fmt.Errorf("catalog: rate plan %q for reseller %d: %w", name, resellerID, ErrRatePlanNotFound)
	}
	if err != nil {
		return RatePlan{}, fmt.Errorf("catalog: rate plan by name: %w", err)
	}
	return rp, nil
}

// UpsertProduct inserts or refreshes a catalog product by code, reactivating
// it and stamping last_updated.
func (r *Repository) UpsertProduct(ctx context.Context, in ProductInput) (Product, bool, error) {
	now := time.Now()
	var id int64
	var created bool
	err := r.q.QueryRow(ctx,
		`INSERT INTO products (code, name, category, wholesale_price, msrp_price, is_active, last_updated)
		 VALUES ($1, $2, $3, $4, $5, TRUE, $6)
		 ON CONFLICT (code) DO UPDATE
		 SET name = EXCLUDED.name, category = EXCLUDED.category,
		     wholesale_price = EXCLUDED.wholesale_price, msrp_price = EXCLUDED.msrp_price,
		     is_active = TRUE, last_updated = EXCLUDED.last_updated
		 RETURNING id, (xmax = 0)`,
		in.Code, in.Name, in.Category, in.WholesalePrice, in.MSRPPrice, now).
		Scan(&id, &created)
	if err != nil {
		return Product{}, false, fmt.Errorf("catalog: upsert product: %w", err)
	}
	p := Product{
		ID:             id,
		Code:           in.Code,
		Name:           in.Name,
		Category:       in.Category,
		WholesalePrice: in.WholesalePrice,
		MSRPPrice:      in.MSRPPrice,
		Active:         true,
		LastUpdated:    now,
	}
	return p, created, nil
}

// ProductByCode resolves a product by its unique code.
func (r *Repository) ProductByCode(ctx context.Context, code string) (Product, error) {
	var p Product
	err := r.q.QueryRow(ctx,
		`SELECT id, code, name, category, wholesale_price, msrp_price, is_active, last_updated
		 FROM products WHERE code = $1`, code).
		Scan(&p.ID, &p.Code, &p.Name, &p.Category, &p.WholesalePrice, &p.MSRPPrice, &p.Active, &p.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, fmt.Errorf("catalog: product %q: %w", code, ErrProductNotFound)
	}
	if err != nil {
		return Product{}, fmt.Errorf("catalog: product by code: %w", err)
	}
	return p, nil
}

// CreateInactiveProduct records a placeholder for a product referenced by an
// order but missing from the catalog. The wholesale price comes from the
// order line itself.
func (r *Repository) CreateInactiveProduct(ctx context.Context, code, name string, wholesale float64) (Product, error) {
	now := time.Now()
	p := Product{
		Code:           code,
		Name:           name,
		WholesalePrice: wholesale,
		Active:         false,
		LastUpdated:    now,
	}
	err := r.q.QueryRow(ctx,
		`INSERT INTO products (code, name, category, wholesale_price, msrp_price, is_active, last_updated)
		 VALUES ($1, $2, '', $3, 0, FALSE, $4) RETURNING id`,
		code, name, wholesale, now).
		Scan(&p.ID)
	if db.IsUniqueViolation(err) {
		return r.ProductByCode(ctx, code)
	}
	if err != nil {
		return Product{}, fmt.Errorf("catalog: create placeholder product: %w", err)
	}
	return p, nil
}

// DeactivateStaleProducts marks products inactive when they were last seen
// before the cutoff or are absent from the current catalog pull. Returns the
// number of rows deactivated.
func (r *Repository) DeactivateStaleProducts(ctx context.Context, seenCodes []string, cutoff time.Time) (int64, error) {
	tag, err := r.q.Exec(ctx,
		`UPDATE products SET is_active = FALSE
		 WHERE is_active = TRUE AND (last_updated < $1 OR NOT (code = ANY($2)))`,
		cutoff, seenCodes)
	if err != nil {
		return 0, fmt.Errorf("catalog: deactivate stale products: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PricingRules loads the reseller's full pricing rule snapshot for the
// engine: flat markups by company type, ordered tiers, and sourcewell
// overrides keyed by product code and rate plan name.
func (r *Repository) PricingRules(ctx context.Context, resellerID int64) (pricing.Rules, error) {
	rules := pricing.Rules{
		FlatMarkups:              map[pricing.CompanyType]float64{},
		SourcewellProductPrices:  map[string]float64{},
		SourcewellRatePlanPrices: map[string]float64{},
	}

	rows, err := r.q.Query(ctx,
		`SELECT ct.type_name, fm.markup_amount
		 FROM flat_markups fm JOIN company_types ct ON ct.id = fm.company_type_id
		 WHERE fm.reseller_id = $1`, resellerID)
	if err != nil {
		return pricing.Rules{}, fmt.Errorf("catalog: load flat markups: %w", err)
	}
	for rows.Next() {
		var name string
		var amount float64
		if err := rows.Scan(&name, &amount); err != nil {
			rows.Close()
			return pricing.Rules{}, err
		}
		rules.FlatMarkups[pricing.CompanyType(name)] = amount
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return pricing.Rules{}, err
	}

	rows, err = r.q.Query(ctx,
		`SELECT min_price, max_price, markup_percentage
		 FROM pricing_tiers WHERE reseller_id = $1 ORDER BY position, id`, resellerID)
	if err != nil {
		return pricing.Rules{}, fmt.Errorf("catalog: load pricing tiers: %w", err)
	}
	for rows.Next() {
		var tier pricing.Tier
		if err := rows.Scan(&tier.MinPrice, &tier.MaxPrice, &tier.MarkupPercentage); err != nil {
			rows.Close()
			return pricing.Rules{}, err
		}
		rules.Tiers = append(rules.Tiers, tier)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return pricing.Rules{}, err
	}

	rows, err = r.q.Query(ctx,
		`SELECT p.code, sp.price
		 FROM sourcewell_product_pricing sp JOIN products p ON p.id = sp.product_id
		 WHERE sp.reseller_id = $1`, resellerID)
	if err != nil {
		return pricing.Rules{}, fmt.Errorf("catalog: load sourcewell product prices: %w", err)
	}
	for rows.Next() {
		var code string
		var price float64
		if err := rows.Scan(&code, &price); err != nil {
			rows.Close()
			return pricing.Rules{}, err
		}
		rules.SourcewellProductPrices[code] = price
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return pricing.Rules{}, err
	}

	rows, err = r.q.Query(ctx,
		`SELECT rp.name, sp.price
		 FROM sourcewell_rate_plan_pricing sp JOIN rate_plans rp ON rp.id = sp.rate_plan_id
		 WHERE sp.reseller_id = $1`, resellerID)
	if err != nil {
		return pricing.Rules{}, fmt.Errorf("catalog: load sourcewell rate plan prices: %w", err)
	}
	for rows.Next() {
		var name string
		var price float64
		if err := rows.Scan(&name, &price); err != nil {
			rows.Close()
			return pricing.Rules{}, err
		}
		rules.SourcewellRatePlanPrices[name] = price
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return pricing.Rules{}, err
	}

	return rules, nil
}
