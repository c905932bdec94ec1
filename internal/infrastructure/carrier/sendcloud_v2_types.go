package carrier

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SendCloud API v2 payloads
// =============================================================================

// v2ErrorBody is the error envelope of API v2
type v2ErrorBody struct {
	Error *struct {
		Code    int    `json:"code"`
		Request string `json:"request"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeV2Error(body []byte) string {
	var e v2ErrorBody
	if err := json.Unmarshal(body, &e); err != nil || e.Error == nil {
		return ""
	}
	return e.Error.Message
}

type v2ShippingMethodsResponse struct {
	ShippingMethods []v2ShippingMethod `json:"shipping_methods"`
}

type v2ShippingMethod struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Carrier   string          `json:"carrier"`
	MinWeight decimal.Decimal `json:"min_weight"`
	MaxWeight decimal.Decimal `json:"max_weight"`
	Countries []v2Country     `json:"countries"`
}

// countryFor returns the price entry for the destination country
func (m v2ShippingMethod) countryFor(iso2 string) (v2Country, bool) {
	for _, c := range m.Countries {
		if strings.EqualFold(c.ISO2, iso2) {
			return c, true
		}
	}
	return v2Country{}, false
}

type v2Country struct {
	ID             int64                `json:"id"`
	ISO2           string               `json:"iso_2"`
	ISO3           string               `json:"iso_3"`
	Name           string               `json:"name"`
	Price          *decimal.Decimal     `json:"price"`
	PriceBreakdown []v2PriceBreakdownIt `json:"price_breakdown"`
}

// unitPrice is the country price, or the sum of the breakdown when SendCloud
// omits it.
func (c v2Country) unitPrice() decimal.Decimal {
	if c.Price != nil && !c.Price.IsZero() {
		return *c.Price
	}
	sum := decimal.Zero
	for _, item := range c.PriceBreakdown {
		sum = sum.Add(item.Value)
	}
	return sum
}

type v2PriceBreakdownIt struct {
	Type  string          `json:"type"`
	Label string          `json:"label"`
	Value decimal.Decimal `json:"value"`
}

type v2CreateParcelsRequest struct {
	Parcels []v2Parcel `json:"parcels"`
}

type v2Parcel struct {
	Name              string         `json:"name"`
	CompanyName       string         `json:"company_name"`
	Address           string         `json:"address"`
	Address2          string         `json:"address_2"`
	City              string         `json:"city"`
	PostalCode        string         `json:"postal_code"`
	Telephone         string         `json:"telephone"`
	RequestLabel      bool           `json:"request_label"`
	Email             string         `json:"email"`
	Data              []any          `json:"data"`
	Country           string         `json:"country"`
	Shipment          v2ShipmentRef  `json:"shipment"`
	OrderNumber       string         `json:"order_number"`
	ExternalReference string         `json:"external_reference"`
	Weight            string         `json:"weight"`
	ParcelItems       []v2ParcelItem `json:"parcel_items"`
}

type v2ShipmentRef struct {
	ID int64 `json:"id"`
}

type v2ParcelItem struct {
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
	Weight      string `json:"weight"`
	Value       string `json:"value"`
}

type v2CreateParcelsResponse struct {
	Parcels       []v2ParcelResult `json:"parcels"`
	FailedParcels []v2FailedParcel `json:"failed_parcels"`
}

type v2ParcelResult struct {
	ID                int64       `json:"id"`
	TrackingNumber    string      `json:"tracking_number"`
	TrackingURL       string      `json:"tracking_url"`
	OrderNumber       string      `json:"order_number"`
	ExternalReference string      `json:"external_reference"`
	Status            v2Status    `json:"status"`
	Label             *v2LabelRef `json:"label"`
}

type v2Status struct {
	ID      int    `json:"id"`
	Message string `json:"message"`
}

type v2FailedParcel struct {
	Parcel struct {
		OrderNumber       string `json:"order_number"`
		ExternalReference string `json:"external_reference"`
	} `json:"parcel"`
	Errors json.RawMessage `json:"errors"`
}

type v2ParcelResponse struct {
	Parcel v2ParcelResult `json:"parcel"`
}

type v2LabelRef struct {
	NormalPrinter []string `json:"normal_printer"`
	LabelPrinter  string   `json:"label_printer"`
}

type v2LabelResponse struct {
	Label v2LabelRef `json:"label"`
}
