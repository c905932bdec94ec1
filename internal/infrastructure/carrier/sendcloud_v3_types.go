package carrier

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SendCloud API v3 payloads
// =============================================================================

// v3ErrorBody is the JSON:API style error envelope of API v3
type v3ErrorBody struct {
	Errors []struct {
		Status string `json:"status"`
		Code   string `json:"code"`
		Title  string `json:"title"`
		Detail string `json:"detail"`
		Source *struct {
			Pointer string `json:"pointer"`
		} `json:"source"`
	} `json:"errors"`
}

func decodeV3Error(body []byte) string {
	var e v3ErrorBody
	if err := json.Unmarshal(body, &e); err != nil || len(e.Errors) == 0 {
		return ""
	}
	parts := make([]string, 0, len(e.Errors))
	for _, item := range e.Errors {
		msg := firstNonEmpty(item.Detail, item.Title, item.Code)
		if item.Source != nil && item.Source.Pointer != "" {
			msg = item.Source.Pointer + ": " + msg
		}
		parts = append(parts, msg)
	}
	return strings.Join(parts, "; ")
}

type v3Measure struct {
	Value string `json:"value"`
	Unit  string `json:"unit"`
}

type v3Dimensions struct {
	Length string `json:"length"`
	Width  string `json:"width"`
	Height string `json:"height"`
	Unit   string `json:"unit"`
}

type v3Price struct {
	Value    decimal.Decimal `json:"value"`
	Currency string          `json:"currency"`
}

type v3Money struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

// ---------------------------------------------------------------------------
// Shipping options
// ---------------------------------------------------------------------------

type v3QuoteAddress struct {
	CountryCode string `json:"country_code"`
	PostalCode  string `json:"postal_code,omitempty"`
}

type v3QuoteParcel struct {
	Dimensions *v3Dimensions `json:"dimensions,omitempty"`
	Weight     v3Measure     `json:"weight"`
}

type v3ShippingOptionsRequest struct {
	FromAddress     *v3QuoteAddress `json:"from_address,omitempty"`
	ToAddress       v3QuoteAddress  `json:"to_address"`
	Parcels         []v3QuoteParcel `json:"parcels"`
	CalculateQuotes bool            `json:"calculate_quotes"`
}

type v3ShippingOptionsResponse struct {
	Data []v3ShippingOption `json:"data"`
}

type v3ShippingOption struct {
	Code    string `json:"code"`
	Name    string `json:"name"`
	Carrier struct {
		Code string `json:"code"`
		Name string `json:"name"`
	} `json:"carrier"`
	Product struct {
		Code string `json:"code"`
		Name string `json:"name"`
	} `json:"product"`
	Functionalities struct {
		Multicollo bool `json:"multicollo"`
	} `json:"functionalities"`
	Quotes []struct {
		Price struct {
			Total v3Price `json:"total"`
		} `json:"price"`
	} `json:"quotes"`
}

// unitPrice returns the first quoted total, if any
func (o v3ShippingOption) unitPrice() (v3Price, bool) {
	if len(o.Quotes) == 0 {
		return v3Price{}, false
	}
	return o.Quotes[0].Price.Total, true
}

// ---------------------------------------------------------------------------
// Announce
// ---------------------------------------------------------------------------

type v3Address struct {
	Name         string `json:"name"`
	CompanyName  string `json:"company_name,omitempty"`
	AddressLine1 string `json:"address_line_1"`
	HouseNumber  string `json:"house_number,omitempty"`
	AddressLine2 string `json:"address_line_2,omitempty"`
	PostalCode   string `json:"postal_code"`
	City         string `json:"city"`
	CountryCode  string `json:"country_code"`
	PhoneNumber  string `json:"phone_number,omitempty"`
	Email        string `json:"email,omitempty"`
}

type v3ShipWith struct {
	Type       string `json:"type"`
	Properties struct {
		ShippingOptionCode string `json:"shipping_option_code"`
	} `json:"properties"`
}

type v3ParcelItem struct {
	Description string    `json:"description"`
	Quantity    int       `json:"quantity"`
	Weight      v3Measure `json:"weight"`
	Price       v3Money   `json:"price"`
}

type v3Parcel struct {
	Weight      v3Measure      `json:"weight"`
	Dimensions  *v3Dimensions  `json:"dimensions,omitempty"`
	ParcelItems []v3ParcelItem `json:"parcel_items"`
}

type v3AnnounceRequest struct {
	FromAddress v3Address  `json:"from_address"`
	ToAddress   v3Address  `json:"to_address"`
	ShipWith    v3ShipWith `json:"ship_with"`
	OrderNumber string     `json:"order_number"`
	Parcels     []v3Parcel `json:"parcels"`
}

type v3AnnounceResponse struct {
	Data struct {
		ID      string            `json:"id"`
		Parcels []v3ParcelDetails `json:"parcels"`
	} `json:"data"`
}

// ---------------------------------------------------------------------------
// Parcels
// ---------------------------------------------------------------------------

type v3ParcelDetails struct {
	ID             int64  `json:"id"`
	TrackingNumber string `json:"tracking_number"`
	TrackingURL    string `json:"tracking_url"`
	Status         struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"status"`
	Documents []struct {
		Type string `json:"type"`
		Size string `json:"size"`
		Link string `json:"link"`
	} `json:"documents"`
}

// labelLink returns the link of the first label document
func (p v3ParcelDetails) labelLink() string {
	for _, doc := range p.Documents {
		if strings.EqualFold(doc.Type, "label") && doc.Link != "" {
			return doc.Link
		}
	}
	return ""
}

type v3ParcelResponse struct {
	Data v3ParcelDetails `json:"data"`
}
