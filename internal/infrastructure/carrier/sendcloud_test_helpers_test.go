package carrier

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/erp/shipping/internal/domain/shipping"
)

const (
	testAPIKey    = "public-key"
	testAPISecret = "secret-key"
)

func createMockSendCloudServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func testConfig(baseURL string) *SendCloudConfig {
	cfg := NewSendCloudConfig(testAPIKey, testAPISecret)
	cfg.BaseURL = baseURL
	cfg.TimeoutSeconds = 5
	return cfg
}

// assertBasicAuth fails the test when the request lacks the integration credentials
func assertBasicAuth(t *testing.T, r *http.Request) {
	t.Helper()
	user, pass, ok := r.BasicAuth()
	assert.True(t, ok, "basic auth missing")
	assert.Equal(t, testAPIKey, user)
	assert.Equal(t, testAPISecret, pass)
}

// decodeBody runs on the server goroutine, so it reports with assert only
func decodeBody(t *testing.T, r *http.Request, out any) {
	t.Helper()
	body, err := io.ReadAll(r.Body)
	if assert.NoError(t, err) {
		assert.NoError(t, json.Unmarshal(body, out))
	}
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func parcel(weight string, count int) shipping.Parcel {
	return shipping.Parcel{Weight: decimal.RequireFromString(weight), Count: count}
}

func sizedParcel(weight, length, width, height string, count int) shipping.Parcel {
	return shipping.Parcel{
		Weight: decimal.RequireFromString(weight),
		Length: decimal.RequireFromString(length),
		Width:  decimal.RequireFromString(width),
		Height: decimal.RequireFromString(height),
		Count:  count,
	}
}

func deliveryAddress() shipping.Address {
	return shipping.Address{
		AddressTitle: "Musterfirma GmbH",
		AddressLine1: "Friedrichstrasse 123",
		City:         "Berlin",
		PostalCode:   "10117",
		CountryCode:  "de",
		Phone:        "+49 30 1234567",
		Email:        "lager@musterfirma.de",
	}
}

func pickupAddress() shipping.Address {
	return shipping.Address{
		AddressTitle: "Warehouse Amsterdam",
		AddressLine1: "Keizersgracht 12A",
		City:         "Amsterdam",
		PostalCode:   "1015CJ",
		CountryCode:  "NL",
		Phone:        "+31 20 1234567",
	}
}

func shipmentRequest(offer shipping.ShippingOffer, parcels ...shipping.Parcel) shipping.ShipmentRequest {
	return shipping.ShipmentRequest{
		ShipmentName:    "SHIP-0001",
		PickupAddress:   pickupAddress(),
		PickupContact:   shipping.Contact{FirstName: "Jan", LastName: "Jansen", Phone: "+31 20 7654321"},
		DeliveryAddress: deliveryAddress(),
		DeliveryContact: shipping.Contact{
			FirstName: "Erika",
			LastName:  "Mustermann",
			Phone:     "+49 30 7654321",
			Email:     "erika@musterfirma.de",
		},
		Offer:                offer,
		Parcels:              parcels,
		DescriptionOfContent: "Spare parts",
		ValueOfGoods:         decimal.RequireFromString("149.999"),
	}
}
