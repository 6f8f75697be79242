package myadmin

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Adapter fetches and normalizes one billing period from the upstream API.
// The session is held explicitly and handed to every call.
type Adapter struct {
	client   *Client
	username string
	password string
	session  Session
	logger   *slog.Logger
}

// NewAdapter constructs an Adapter; call Connect before fetching.
func NewAdapter(client *Client, username, password string, logger *slog.Logger) *Adapter {
	return &Adapter{client: client, username: username, password: password, logger: logger}
}

// Connect authenticates against the upstream API. Sessions expire between
// monthly runs, so FetchPeriod re-authenticates on every call.
func (a *Adapter) Connect(ctx context.Context) error {
	session, err := a.client.Authenticate(ctx, a.username, a.password)
	if err != nil {
		return err
	}
	a.session = session
	a.logger.Info("authenticated against myadmin",
		slog.String("account_id", session.AccountID))
	return nil
}

// FetchPeriod pulls contract transactions, device metadata, online orders,
// and the product catalog for one (month, year) window and normalizes them.
// An empty transaction response is fatal for the period.
func (a *Adapter) FetchPeriod(ctx context.Context, month, year int) (*RawBillingPayload, error) {
	if err := a.Connect(ctx); err != nil {
		return nil, err
	}

	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	txs, err := a.client.DeviceContractTransactions(ctx, a.session, month, year)
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return nil, fmt.Errorf("%w: %04d-%02d", ErrNoBillingData, year, month)
	}

	serials := make([]string, 0, len(txs))
	for _, tx := range txs {
		if tx.SerialNo != "" {
			serials = append(serials, tx.SerialNo)
		}
	}

	contracts, err := a.client.DeviceContracts(ctx, a.session, serials, from, to)
	if err != nil {
		return nil, err
	}

	orders, err := a.client.OnlineOrders(ctx, a.session, from, to)
	if err != nil {
		return nil, err
	}

	products, err := a.client.AvailableProducts(ctx, a.session)
	if err != nil {
		return nil, err
	}

	payload := &RawBillingPayload{
		Contracts: NormalizeContracts(txs, contracts, a.logger),
		Orders:    NormalizeOrders(orders, a.logger),
		Products:  NormalizeProducts(products, a.logger),
	}
	a.logger.Info("fetched billing period",
		slog.Int("month", month),
		slog.Int("year", year),
		slog.Int("contracts", len(payload.Contracts)),
		slog.Int("orders", len(payload.Orders)),
		slog.Int("products", len(payload.Products)))
	return payload, nil
}
