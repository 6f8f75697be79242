package myadmin

// Raw upstream record shapes. Nested objects are pointers because the API
// omits them freely; normalization defaults missing fields instead of
// failing.

// Transaction is one raw device contract transaction for a billing month.
type Transaction struct {
	SerialNo                string  `json:"serialNo"`
	AssignedPurchaseOrderNo string  `json:"assignedPurchaseOrderNo"`
	PeriodFrom              string  `json:"periodFrom"`
	PeriodTo                string  `json:"periodTo"`
	QuantityInDays          float64 `json:"quantityInDays"`
	ValueUsd                float64 `json:"valueUsd"`
	BillingInfo             string  `json:"billingInfo"`
}

// DeviceContract is the device/owner metadata joined against transactions.
type DeviceContract struct {
	Device *struct {
		SerialNumber string `json:"serialNumber"`
	} `json:"device"`
	LatestDeviceDatabase *struct {
		DatabaseName string `json:"databaseName"`
		VIN          string `json:"vin"`
	} `json:"latestDeviceDatabase"`
	UserContact *struct {
		DisplayName string `json:"displayName"`
		UserCompany *struct {
			ID      string `json:"id"`
			Name    string `json:"name"`
			Address string `json:"address"`
		} `json:"userCompany"`
	} `json:"userContact"`
	IsTerminated bool `json:"isTerminated"`
	IsActivated  bool `json:"isActivated"`
}

// OnlineOrder is one raw online hardware order.
type OnlineOrder struct {
	PurchaseOrderNo string  `json:"purchaseOrderNo"`
	OrderNo         string  `json:"orderNo"`
	CurrentStatus   string  `json:"currentStatus"`
	OrderedBy       string  `json:"orderedBy"`
	OrderDate       string  `json:"orderDate"`
	OrderTotalLocal float64 `json:"orderTotalLocal"`
	ShippingCost    float64 `json:"shippingCost"`
	ShippingContact *struct {
		Address     string `json:"address"`
		UserCompany *struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"userCompany"`
	} `json:"shippingContact"`
	Items []struct {
		ProductCode string  `json:"productCode"`
		ProductName string  `json:"productName"`
		Quantity    float64 `json:"quantity"`
		UnitCost    float64 `json:"unitCost"`
	} `json:"items"`
	Shipments []struct {
		PurchaseOrderNo string `json:"purchaseOrderNo"`
		Carrier         string `json:"carrier"`
		TrackingNo      string `json:"trackingNumber"`
		ShippedDate     string `json:"shippedDate"`
	} `json:"shipments"`
}

// CatalogProduct is one raw product catalog entry.
type CatalogProduct struct {
	Code           string  `json:"code"`
	Name           string  `json:"name"`
	Category       string  `json:"category"`
	WholesalePrice float64 `json:"wholesalePrice"`
	MSRPPrice      float64 `json:"msrpPrice"`
}
