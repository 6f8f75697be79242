package myadmin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrAuthFailed indicates the upstream rejected the credentials.
	ErrAuthFailed = errors.New("myadmin: authentication failed")
	// ErrNoBillingData indicates the contract transaction fetch returned
	// nothing for the requested period.
	ErrNoBillingData = errors.New("myadmin: no billing data for period")
)

// Session carries the authenticated upstream state passed explicitly
// through every call.
type Session struct {
	SessionID string
	APIKey    string
	AccountID string
}

// Client speaks the MyAdmin JSON-RPC dialect: a form-encoded POST whose
// JSON-RPC field holds the request envelope.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a client for the given endpoint.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type rpcEnvelope struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	payload, err := json.Marshal(map[string]any{
		"id":     -1,
		"method": method,
		"params": params,
	})
	if err != nil {
		return fmt.Errorf("myadmin: marshal %s: %w", method, err)
	}

	form := url.Values{"JSON-RPC": {string(payload)}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("myadmin: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("myadmin: %s: %w", method, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("myadmin: %s returned status %d", method, resp.StatusCode)
	}

	var envelope rpcEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("myadmin: decode %s: %w", method, err)
	}
	if envelope.Error != nil {
		return fmt.Errorf("myadmin: %s failed: %s (code %d)", method, envelope.Error.Message, envelope.Error.Code)
	}
	if out != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("myadmin: unmarshal %s result: %w", method, err)
		}
	}
	return nil
}

type authResult struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	Accounts  []struct {
		AccountID string `json:"accountId"`
	} `json:"accounts"`
}

// Authenticate exchanges credentials for a session. The API key is the
// upstream user ID.
func (c *Client) Authenticate(ctx context.Context, username, password string) (Session, error) {
	var result *authResult
	err := c.call(ctx, "Authenticate", map[string]string{
		"username": username,
		"password": password,
	}, &result)
	if err != nil {
		return Session{}, err
	}
	if result == nil || result.SessionID == "" {
		return Session{}, ErrAuthFailed
	}
	s := Session{SessionID: result.SessionID, APIKey: result.UserID}
	if len(result.Accounts) > 0 {
		s.AccountID = result.Accounts[0].AccountID
	}
	return s, nil
}

// DeviceContractTransactions fetches the raw contract transactions for a
// billing month.
func (c *Client) DeviceContractTransactions(ctx context.Context, s Session, month, year int) ([]Transaction, error) {
	var txs []Transaction
	err := c.call(ctx, "GetDeviceContractTransactions", map[string]any{
		"apiKey":      s.APIKey,
		"sessionId":   s.SessionID,
		"forAccount":  s.AccountID,
		"monthFilter": month,
		"yearFilter":  year,
	}, &txs)
	if err != nil {
		return nil, err
	}
	return txs, nil
}

// DeviceContracts fetches device/owner metadata for the given serial
// numbers over a date range.
func (c *Client) DeviceContracts(ctx context.Context, s Session, serialNos []string, from, to time.Time) ([]DeviceContract, error) {
	var contracts []DeviceContract
	err := c.call(ctx, "GetDeviceContracts", map[string]any{
		"apiKey":     s.APIKey,
		"sessionId":  s.SessionID,
		"forAccount": s.AccountID,
		"serialNos":  serialNos,
		"fromDate":   from.Format(time.RFC3339),
		"toDate":     to.Format(time.RFC3339),
	}, &contracts)
	if err != nil {
		return nil, err
	}
	return contracts, nil
}

// OnlineOrders fetches the raw online order entries placed in a date range.
func (c *Client) OnlineOrders(ctx context.Context, s Session, from, to time.Time) ([]OnlineOrder, error) {
	var orders []OnlineOrder
	err := c.call(ctx, "GetOnlineOrderStatus", map[string]any{
		"apiKey":        s.APIKey,
		"sessionId":     s.SessionID,
		"forAccount":    s.AccountID,
		"orderDateFrom": from.Format(time.RFC3339),
		"orderDateTo":   to.Format(time.RFC3339),
	}, &orders)
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// AvailableProducts fetches the current product catalog.
func (c *Client) AvailableProducts(ctx context.Context, s Session) ([]CatalogProduct, error) {
	var products []CatalogProduct
	err := c.call(ctx, "GetAvailableProducts", map[string]any{
		"apiKey":     s.APIKey,
		"sessionId":  s.SessionID,
		"forAccount": s.AccountID,
	}, &products)
	if err != nil {
		return nil, err
	}
	return products, nil
}
