package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/fleetbill/fleetbill/internal/ledger"
)

var receiptHeader = []string{
	"Company Name",
	"Item Type",
	"Item Identifier",
	"Item Date",
	"Name",
	"Quantity",
	"Billing Days",
	"Item Cost",
	"Total Cost",
	"Shipping Cost",
	"Total Cost with Shipping",
}

// WriteReceiptCSV serialises an itemized receipt. Order shipping is charged
// once per order even though every line of the order carries the shipping
// amount, so only the first line of each order adds it to the final column.
func WriteReceiptCSV(w io.Writer, lines []ledger.ReceiptLine) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write(receiptHeader); err != nil {
		return err
	}

	shipped := make(map[string]bool)
	for _, line := range lines {
		withShipping := line.TotalCost
		if line.ItemType == ledger.ItemTypeOrder && !shipped[line.Identifier] {
			withShipping += line.ShippingCost
			shipped[line.Identifier] = true
		}
		record := []string{
			line.CompanyName,
			line.ItemType,
			line.Identifier,
			line.ItemDate,
			line.Name,
			formatFloat(line.Quantity),
			formatFloat(line.BillingDays),
			formatFloat(line.ItemCost),
			formatFloat(line.TotalCost),
			formatFloat(line.ShippingCost),
			formatFloat(withShipping),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteSummaryCSV serialises per-company bill totals for one period.
func WriteSummaryCSV(w io.Writer, totals []ledger.CompanyTotal) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"Company Name", "Period From", "Period To", "Total Cost"}); err != nil {
		return err
	}
	for _, total := range totals {
		record := []string{
			total.CompanyName,
			total.PeriodFrom.Format("2006-01-02"),
			total.PeriodTo.Format("2006-01-02"),
			formatFloat(total.TotalCost),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', 2, 64)
}
