package myadmin

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseBillingInfo(t *testing.T) {
	name, fee := parseBillingInfo("Pro Plan [1540]")
	require.Equal(t, "Pro Plan", name)
	require.InDelta(t, 15.40, fee, 1e-9)

	name, fee = parseBillingInfo("Base")
	require.Equal(t, "Base", name)
	require.Zero(t, fee)

	name, fee = parseBillingInfo("Odd Plan [abc]")
	require.Equal(t, "Odd Plan", name)
	require.Zero(t, fee)

	name, fee = parseBillingInfo("")
	require.Empty(t, name)
	require.Zero(t, fee)
}

func TestParseUpstreamTime(t *testing.T) {
	require.Equal(t,
		time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC),
		parseUpstreamTime("2024-06-01"))
	require.Equal(t,
		time.Date(2024, time.June, 1, 8, 30, 0, 0, time.UTC),
		parseUpstreamTime("2024-06-01T08:30:00"))
	require.True(t, parseUpstreamTime("not-a-date").IsZero())
}

func device(serial, companyID, companyName string, terminated, activated bool) DeviceContract {
	dc := DeviceContract{IsTerminated: terminated, IsActivated: activated}
	dc.Device = &struct {
		SerialNumber string `json:"serialNumber"`
	}{SerialNumber: serial}
	dc.UserContact = &struct {
		DisplayName string `json:"displayName"`
		UserCompany *struct {
			ID      string `json:"id"`
			Name    string `json:"name"`
			Address string `json:"address"`
		} `json:"userCompany"`
	}{
		DisplayName: "Ops",
		UserCompany: &struct {
			ID      string `json:"id"`
			Name    string `json:"name"`
			Address string `json:"address"`
		}{ID: companyID, Name: companyName},
	}
	return dc
}

func TestNormalizeContracts(t *testing.T) {
	txs := []Transaction{
		{
			SerialNo:       "GT100",
			QuantityInDays: 30,
			ValueUsd:       10,
			BillingInfo:    "Pro Plan [1000]",
			PeriodFrom:     "2024-06-01",
			PeriodTo:       "2024-07-01",
		},
		{SerialNo: ""},        // no serial
		{SerialNo: "GT404"},   // no device metadata
		{SerialNo: "GT200"},   // terminated device
		{SerialNo: "GT300"},   // device without company
	}
	contracts := []DeviceContract{
		device("GT100", "c-100", "Acme Fleet", false, true),
		device("GT200", "c-200", "Gone Corp", true, true),
		device("GT300", "", "", false, true),
	}

	records := NormalizeContracts(txs, contracts, testLogger())
	require.Len(t, records, 1)

	rec := records[0]
	require.Equal(t, "GT100", rec.SerialNo)
	require.Equal(t, "c-100", rec.CompanyID)
	require.Equal(t, "Acme Fleet", rec.CompanyName)
	require.Equal(t, "Pro Plan", rec.RatePlanName)
	require.InDelta(t, 10.00, rec.RatePlanMonthlyFee, 1e-9)
	require.Equal(t, 30, rec.BillDays)
	require.Equal(t, 30.0, rec.BillingDays)
}

func TestNormalizeOrders(t *testing.T) {
	shipping := &struct {
		Address     string `json:"address"`
		UserCompany *struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"userCompany"`
	}{
		Address: "1 Fleet Way",
		UserCompany: &struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		}{ID: "c-100", Name: "Acme Fleet"},
	}

	orders := []OnlineOrder{
		{
			PurchaseOrderNo: "PO-1",
			OrderNo:         "ON-1",
			OrderDate:       "2024-06-10",
			OrderTotalLocal: 50,
			ShippingCost:    5,
			ShippingContact: shipping,
			Items: []struct {
				ProductCode string  `json:"productCode"`
				ProductName string  `json:"productName"`
				Quantity    float64 `json:"quantity"`
				UnitCost    float64 `json:"unitCost"`
			}{
				{ProductCode: "HW-1", ProductName: "Tracker", Quantity: 1, UnitCost: 50},
			},
		},
		{PurchaseOrderNo: "", OrderNo: "ON-2"},
		{PurchaseOrderNo: "PO-3", OrderNo: "ON-3"}, // no company
	}

	records := NormalizeOrders(orders, testLogger())
	require.Len(t, records, 1)

	rec := records[0]
	require.Equal(t, "PO-1", rec.PONumber)
	require.Equal(t, "c-100", rec.CompanyID)
	require.Equal(t, "1 Fleet Way", rec.ShippingAddress)
	require.InDelta(t, 55.00, rec.OrderTotal, 1e-9)
	require.Len(t, rec.Items, 1)
}

func TestNormalizeProducts(t *testing.T) {
	products := []CatalogProduct{
		{Code: "HW-1", Name: "Tracker", WholesalePrice: 50},
		{Code: "", Name: "Nameless"},
	}
	records := NormalizeProducts(products, testLogger())
	require.Len(t, records, 1)
	require.Equal(t, "HW-1", records[0].Code)
}
