package billinghttp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/fleetbill/fleetbill/internal/ledger"
)

type memoryReportStore struct {
	companies []string
	totals    map[string]float64
	receipts  map[string][]ledger.ReceiptLine
}

func (s *memoryReportStore) ListCompanyNames(ctx context.Context) ([]string, error) {
	return s.companies, nil
}

func (s *memoryReportStore) BillTotal(ctx context.Context, companyName string, periodFrom, periodTo time.Time) (float64, error) {
	total, ok := s.totals[companyName]
	if !ok {
		return 0, ledger.ErrBillNotFound
	}
	return total, nil
}

func (s *memoryReportStore) ListBillsForPeriod(ctx context.Context, periodFrom, periodTo time.Time) ([]ledger.CompanyTotal, error) {
	var out []ledger.CompanyTotal
	for _, name := range s.companies {
		if total, ok := s.totals[name]; ok {
			out = append(out, ledger.CompanyTotal{
				CompanyName: name,
				PeriodFrom:  periodFrom,
				PeriodTo:    periodTo,
				TotalCost:   total,
			})
		}
	}
	return out, nil
}

func (s *memoryReportStore) ItemizedReceipt(ctx context.Context, companyName string, month, year int, periodFrom, periodTo time.Time) ([]ledger.ReceiptLine, error) {
	return s.receipts[companyName], nil
}

type memoryEnqueuer struct {
	month, year int
}

func (e *memoryEnqueuer) EnqueueMonthlyBilling(ctx context.Context, month, year int) (string, error) {
	e.month, e.year = month, year
	return "task-1", nil
}

func newTestServer(store *memoryReportStore, enqueuer Enqueuer) *httptest.Server {
	handler := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), store, enqueuer)
	handler.now = func() time.Time { return time.Date(2024, time.July, 15, 0, 0, 0, 0, time.UTC) }
	r := chi.NewRouter()
	handler.MountRoutes(r)
	return httptest.NewServer(r)
}

func defaultStore() *memoryReportStore {
	return &memoryReportStore{
		companies: []string{"Acme Fleet"},
		totals:    map[string]float64{"Acme Fleet": 70.00},
		receipts: map[string][]ledger.ReceiptLine{
			"Acme Fleet": {
				{
					CompanyName: "Acme Fleet",
					ItemType:    ledger.ItemTypeRecurring,
					Identifier:  "GT100",
					Name:        "Pro Plan",
					Quantity:    1,
					BillingDays: 30,
					ItemCost:    15,
					TotalCost:   15,
				},
			},
		},
	}
}

func TestListCompanies(t *testing.T) {
	srv := newTestServer(defaultStore(), nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/companies")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Companies []string `json:"companies"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, []string{"Acme Fleet"}, body.Companies)
}

func TestCompanyBill(t *testing.T) {
	srv := newTestServer(defaultStore(), nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/companies/Acme%20Fleet/bills/2024/6")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Company   string  `json:"company"`
		TotalCost float64 `json:"total_cost"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "Acme Fleet", body.Company)
	require.InDelta(t, 70.00, body.TotalCost, 1e-9)
}

func TestCompanyBillCSV(t *testing.T) {
	srv := newTestServer(defaultStore(), nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/companies/Acme%20Fleet/bills/2024/6?format=csv")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "text/csv")

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "Acme Fleet")
	require.Contains(t, string(body), "70.00")
}

func TestCompanyBillNotFound(t *testing.T) {
	srv := newTestServer(defaultStore(), nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/companies/Nobody/bills/2024/6")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCompanyBillRejectsBadPeriod(t *testing.T) {
	srv := newTestServer(defaultStore(), nil)
	defer srv.Close()

	for _, path := range []string{
		"/companies/Acme%20Fleet/bills/2024/13",
		"/companies/Acme%20Fleet/bills/2024/0",
		"/companies/Acme%20Fleet/bills/2019/6",
		"/companies/Acme%20Fleet/bills/2030/6",
		"/companies/Acme%20Fleet/bills/abcd/6",
	} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode, path)
	}
}

func TestCompanyReceiptCSV(t *testing.T) {
	srv := newTestServer(defaultStore(), nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/companies/Acme%20Fleet/receipts/2024/6")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "text/csv")
	require.Contains(t, resp.Header.Get("Content-Disposition"), "attachment")

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "Pro Plan")
	require.Contains(t, string(body), "Company Name")
}

func TestCompanyReceiptNotFound(t *testing.T) {
	srv := newTestServer(defaultStore(), nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/companies/Nobody/receipts/2024/6")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPeriodSummaryJSONAndCSV(t *testing.T) {
	srv := newTestServer(defaultStore(), nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/bills/2024/6")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Bills []struct {
			Company   string  `json:"company"`
			TotalCost float64 `json:"total_cost"`
		} `json:"bills"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Bills, 1)
	require.InDelta(t, 70.00, body.Bills[0].TotalCost, 1e-9)

	csvResp, err := http.Get(srv.URL + "/bills/2024/6?format=csv")
	require.NoError(t, err)
	defer csvResp.Body.Close()
	require.Contains(t, csvResp.Header.Get("Content-Type"), "text/csv")
	raw, err := io.ReadAll(csvResp.Body)
	require.NoError(t, err)
	require.Contains(t, string(raw), "Acme Fleet")
}

func TestTriggerRun(t *testing.T) {
	enq := &memoryEnqueuer{}
	srv := newTestServer(defaultStore(), enq)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/billing/runs/2024/6", "application/json", strings.NewReader(""))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Equal(t, 6, enq.month)
	require.Equal(t, 2024, enq.year)

	var body struct {
		TaskID string `json:"task_id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "task-1", body.TaskID)
}

func TestTriggerRunDisabled(t *testing.T) {
	srv := newTestServer(defaultStore(), nil)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/billing/runs/2024/6", "application/json", strings.NewReader(""))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
