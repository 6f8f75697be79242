package quoting

import (
	"context"
	"fmt"

	"github.com/fleetbill/fleetbill/internal/platform/db"
)

// Repository persists quotes with pgx.
type Repository struct {
	q db.Querier
}

func NewRepository(q db.Querier) *Repository {
	return &Repository{q: q}
}

// CreateQuote inserts the quote and its items, returning the stored rows
// with identifiers assigned.
func (r *Repository) CreateQuote(ctx context.Context, quote Quote) (Quote, error) {
	err := r.q.QueryRow(ctx,
		`INSERT INTO quotes (reseller_id, customer_name, customer_email, quote_date, total_cost)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		quote.ResellerID, quote.CustomerName, quote.CustomerEmail, quote.QuoteDate, quote.TotalCost).
		Scan(&quote.ID)
	if err != nil {
		return Quote{}, fmt.Errorf("quoting: create quote: %w", err)
	}

	for i := range quote.Items {
		quote.Items[i].QuoteID = quote.ID
		err := r.q.QueryRow(ctx,
			`INSERT INTO quote_items (quote_id, kind, name, price) VALUES ($1, $2, $3, $4) RETURNING id`,
			quote.ID, quote.Items[i].Kind, quote.Items[i].Name, quote.Items[i].Price).
			Scan(&quote.Items[i].ID)
		if err != nil {
			return Quote{}, fmt.Errorf("quoting: create quote item: %w", err)
		}
	}
	return quote, nil
}
