package myadmin

import (
	"log/slog"
	"strconv"
	"strings"
	"time"
)

type deviceInfo struct {
	VIN         string
	Database    string
	CompanyID   string
	CompanyName string
	Address     string
	DisplayName string
}

// parseBillingInfo splits an upstream billing info string such as
// "Pro Plan [1540]" into the plan name and the monthly fee, which is
// encoded in cents between the brackets.
func parseBillingInfo(info string) (string, float64) {
	name, rest, found := strings.Cut(info, "[")
	name = strings.TrimSpace(name)
	if !found {
		return name, 0
	}
	cents, _, _ := strings.Cut(rest, "]")
	fee, err := strconv.ParseFloat(strings.TrimSpace(cents), 64)
	if err != nil {
		return name, 0
	}
	return name, fee / 100
}

func parseUpstreamTime(value string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}

// deviceInfoBySerial indexes device contract metadata by serial number,
// dropping terminated and never-activated devices before the join.
func deviceInfoBySerial(contracts []DeviceContract) map[string]deviceInfo {
	infos := make(map[string]deviceInfo, len(contracts))
	for _, dc := range contracts {
		if dc.Device == nil || dc.Device.SerialNumber == "" {
			continue
		}
		if dc.IsTerminated || !dc.IsActivated {
			continue
		}
		info := deviceInfo{}
		if dc.LatestDeviceDatabase != nil {
			info.VIN = dc.LatestDeviceDatabase.VIN
			info.Database = dc.LatestDeviceDatabase.DatabaseName
		}
		if dc.UserContact != nil {
			info.DisplayName = dc.UserContact.DisplayName
			if dc.UserContact.UserCompany != nil {
				info.CompanyID = dc.UserContact.UserCompany.ID
				info.CompanyName = dc.UserContact.UserCompany.Name
				info.Address = dc.UserContact.UserCompany.Address
			}
		}
		infos[dc.Device.SerialNumber] = info
	}
	return infos
}

// NormalizeContracts joins raw transactions against device metadata and
// flattens them. Records missing a serial number or company identifier are
// skipped with a warning; every other missing field defaults.
func NormalizeContracts(txs []Transaction, contracts []DeviceContract, logger *slog.Logger) []ContractRecord {
	infos := deviceInfoBySerial(contracts)

	records := make([]ContractRecord, 0, len(txs))
	for _, tx := range txs {
		if tx.SerialNo == "" {
			logger.Warn("skipping transaction without serial number")
			continue
		}
		info, ok := infos[tx.SerialNo]
		if !ok {
			// Terminated, unactivated, or unknown device.
			continue
		}
		if info.CompanyID == "" {
			logger.Warn("skipping transaction without company identifier",
				slog.String("serial_no", tx.SerialNo))
			continue
		}

		planName, monthlyFee := parseBillingInfo(tx.BillingInfo)
		periodFrom := parseUpstreamTime(tx.PeriodFrom)
		periodTo := parseUpstreamTime(tx.PeriodTo)
		billDays := 0
		if !periodFrom.IsZero() && !periodTo.IsZero() {
			billDays = int(periodTo.Sub(periodFrom).Hours() / 24)
		}

		records = append(records, ContractRecord{
			SerialNo:           tx.SerialNo,
			VIN:                info.VIN,
			Database:           info.Database,
			AssignedPO:         tx.AssignedPurchaseOrderNo,
			CompanyID:          info.CompanyID,
			CompanyName:        info.CompanyName,
			DisplayName:        info.DisplayName,
			Address:            info.Address,
			BillDays:           billDays,
			BillingDays:        tx.QuantityInDays,
			WholesaleCost:      tx.ValueUsd,
			RatePlanName:       planName,
			RatePlanMonthlyFee: monthlyFee,
			PeriodFrom:         periodFrom,
			PeriodTo:           periodTo,
		})
	}
	return records
}

// NormalizeOrders flattens raw online orders. Orders missing a purchase
// order number, order number, or company identifier are skipped with a
// warning.
func NormalizeOrders(orders []OnlineOrder, logger *slog.Logger) []OrderRecord {
	records := make([]OrderRecord, 0, len(orders))
	for _, o := range orders {
		if o.PurchaseOrderNo == "" || o.OrderNo == "" {
			logger.Warn("skipping order without purchase order or order number",
				slog.String("order_no", o.OrderNo))
			continue
		}
		rec := OrderRecord{
			PONumber:      o.PurchaseOrderNo,
			OrderNumber:   o.OrderNo,
			OrderDate:     parseUpstreamTime(o.OrderDate),
			CurrentStatus: o.CurrentStatus,
			PlacedBy:      o.OrderedBy,
			ItemCost:      o.OrderTotalLocal,
			ShippingCost:  o.ShippingCost,
			OrderTotal:    o.OrderTotalLocal + o.ShippingCost,
		}
		if o.ShippingContact != nil {
			rec.ShippingAddress = o.ShippingContact.Address
			if o.ShippingContact.UserCompany != nil {
				rec.CompanyID = o.ShippingContact.UserCompany.ID
				rec.CompanyName = o.ShippingContact.UserCompany.Name
			}
		}
		if rec.CompanyID == "" {
			logger.Warn("skipping order without company identifier",
				slog.String("po_number", o.PurchaseOrderNo))
			continue
		}
		for _, item := range o.Items {
			rec.Items = append(rec.Items, OrderLine{
				ProductCode: item.ProductCode,
				ProductName: item.ProductName,
				Quantity:    item.Quantity,
				UnitCost:    item.UnitCost,
			})
		}
		for _, sh := range o.Shipments {
			rec.Shipments = append(rec.Shipments, ShipmentRecord{
				PurchaseOrderNo: sh.PurchaseOrderNo,
				Carrier:         sh.Carrier,
				TrackingNo:      sh.TrackingNo,
				ShippedAt:       parseUpstreamTime(sh.ShippedDate),
			})
		}
		records = append(records, rec)
	}
	return records
}

// NormalizeProducts flattens the raw catalog. Products without a code
// cannot be upserted and are skipped.
func NormalizeProducts(products []CatalogProduct, logger *slog.Logger) []ProductRecord {
	records := make([]ProductRecord, 0, len(products))
	for _, p := range products {
		if p.Code == "" {
			logger.Warn("skipping catalog product without code", slog.String("name", p.Name))
			continue
		}
		records = append(records, ProductRecord{
			Code:           p.Code,
			Name:           p.Name,
			Category:       p.Category,
			WholesalePrice: p.WholesalePrice,
			MSRPPrice:      p.MSRPPrice,
		})
	}
	return records
}
