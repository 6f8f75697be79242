package billing

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleetbill/fleetbill/internal/catalog"
	"github.com/fleetbill/fleetbill/internal/ledger"
	"github.com/fleetbill/fleetbill/internal/platform/db"
)

// PgTxManager runs billing transactions against Postgres, handing out
// repositories bound to the transaction so every write commits or rolls
// back together.
type PgTxManager struct {
	pool *pgxpool.Pool
}

// NewPgTxManager wraps a pool for transactional billing runs.
func NewPgTxManager(pool *pgxpool.Pool) *PgTxManager {
	return &PgTxManager{pool: pool}
}

func (m *PgTxManager) WithinTx(ctx context.Context, fn func(ctx context.Context, st Stores) error) error {
	return db.WithTx(ctx, m.pool, func(tx pgx.Tx) error {
		return fn(ctx, Stores{
			Catalog: catalog.NewRepository(tx),
			Ledger:  ledger.NewRepository(tx),
		})
	})
}
