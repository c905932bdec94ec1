package carrier

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp/shipping/internal/domain/shipping"
)

func newTestV2Adapter(t *testing.T, baseURL string) *SendCloudV2Adapter {
	t.Helper()
	adapter, err := NewSendCloudV2Adapter(testConfig(baseURL))
	require.NoError(t, err)
	return adapter
}

// ---------------------------------------------------------------------------
// Rates
// ---------------------------------------------------------------------------

const v2ShippingMethodsJSON = `{
  "shipping_methods": [
    {"id": 8, "name": "DHL Paket 0-10kg", "carrier": "dhl", "min_weight": "0.001", "max_weight": "10.001",
     "countries": [{"id": 1, "iso_2": "DE", "iso_3": "DEU", "name": "Germany", "price": 5.5}]},
    {"id": 9, "name": "DHL Paket 10-20kg", "carrier": "dhl", "min_weight": "10.001", "max_weight": "20.001",
     "countries": [{"id": 1, "iso_2": "DE", "iso_3": "DEU", "name": "Germany", "price": 9.9}]},
    {"id": 10, "name": "Colissimo", "carrier": "colissimo", "min_weight": "0.001", "max_weight": "30.001",
     "countries": [{"id": 2, "iso_2": "FR", "iso_3": "FRA", "name": "France", "price": 7.1}]},
    {"id": 11, "name": "Unstamped letter", "carrier": "sendcloud", "min_weight": "0.001", "max_weight": "5.001",
     "countries": [{"id": 1, "iso_2": "DE", "iso_3": "DEU", "name": "Germany", "price": 0,
       "price_breakdown": [{"type": "price_without_insurance", "label": "Label", "value": 2.0},
                           {"type": "fuel", "label": "Fuel surcharge", "value": 1.25}]}]}
  ]
}`

func TestSendCloudV2Adapter_GetAvailableServices(t *testing.T) {
	server := createMockSendCloudServer(t, func(w http.ResponseWriter, r *http.Request) {
		assertBasicAuth(t, r)
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v2/shipping_methods", r.URL.Path)
		assert.Equal(t, "DE", r.URL.Query().Get("to_country"))
		writeJSON(w, http.StatusOK, v2ShippingMethodsJSON)
	})
	adapter := newTestV2Adapter(t, server.URL)

	offers, err := adapter.GetAvailableServices(context.Background(), shipping.RateRequest{
		DeliveryAddress: deliveryAddress(),
		Parcels:         []shipping.Parcel{parcel("3", 2)},
	})
	require.NoError(t, err)
	require.Len(t, offers, 2)

	assert.Equal(t, "DHL", offers[0].Carrier)
	assert.Equal(t, "DHL Paket 0-10kg", offers[0].ServiceName)
	assert.Equal(t, "8", offers[0].ServiceID)
	assert.Equal(t, "SendCloud", offers[0].ServiceProvider)
	assert.True(t, decimal.RequireFromString("11").Equal(offers[0].TotalPrice), offers[0].TotalPrice.String())

	// Zero country price falls back to the breakdown sum.
	assert.Equal(t, "SendCloud", offers[1].Carrier)
	assert.True(t, decimal.RequireFromString("6.5").Equal(offers[1].TotalPrice), offers[1].TotalPrice.String())
}

func TestSendCloudV2Adapter_GetAvailableServices_AnyParcelInRange(t *testing.T) {
	server := createMockSendCloudServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, v2ShippingMethodsJSON)
	})
	adapter := newTestV2Adapter(t, server.URL)

	offers, err := adapter.GetAvailableServices(context.Background(), shipping.RateRequest{
		DeliveryAddress: deliveryAddress(),
		Parcels:         []shipping.Parcel{parcel("12", 1), parcel("15", 1)},
	})
	require.NoError(t, err)
	require.Len(t, offers, 1)
	assert.Equal(t, "9", offers[0].ServiceID)
	assert.True(t, decimal.RequireFromString("19.8").Equal(offers[0].TotalPrice))
}

func TestSendCloudV2Adapter_Disabled(t *testing.T) {
	called := false
	server := createMockSendCloudServer(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})
	cfg := testConfig(server.URL)
	cfg.APISecret = ""
	adapter, err := NewSendCloudV2Adapter(cfg)
	require.NoError(t, err)
	assert.False(t, adapter.IsEnabled())

	offers, err := adapter.GetAvailableServices(context.Background(), shipping.RateRequest{
		DeliveryAddress: deliveryAddress(),
		Parcels:         []shipping.Parcel{parcel("1", 1)},
	})
	require.NoError(t, err)
	assert.Empty(t, offers)
	assert.NotNil(t, offers)

	outcome, err := adapter.CreateShipment(context.Background(), shipmentRequest(shipping.ShippingOffer{Carrier: "DHL", ServiceID: "8"}, parcel("1", 1)))
	require.NoError(t, err)
	assert.Nil(t, outcome.Result)
	assert.Empty(t, outcome.Failures)

	tracking, err := adapter.GetTrackingData(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, &shipping.TrackingInfo{}, tracking)
	assert.False(t, called)
}

func TestSendCloudV2Adapter_GetAvailableServices_Errors(t *testing.T) {
	t.Run("vendor error message", func(t *testing.T) {
		server := createMockSendCloudServer(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusUnauthorized, `{"error": {"code": 401, "request": "api/v2/shipping_methods", "message": "Invalid username/password."}}`)
		})
		_, err := newTestV2Adapter(t, server.URL).GetAvailableServices(context.Background(), shipping.RateRequest{
			DeliveryAddress: deliveryAddress(),
			Parcels:         []shipping.Parcel{parcel("1", 1)},
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, shipping.ErrCarrierRequestFailed)
		assert.Contains(t, err.Error(), "HTTP 401")
		assert.Contains(t, err.Error(), "Invalid username/password.")
	})

	t.Run("vendor error with HTTP 200", func(t *testing.T) {
		server := createMockSendCloudServer(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, `{"error": {"code": 412, "request": "api/v2/shipping_methods", "message": "Sender address missing."}}`)
		})
		offers, err := newTestV2Adapter(t, server.URL).GetAvailableServices(context.Background(), shipping.RateRequest{
			DeliveryAddress: deliveryAddress(),
			Parcels:         []shipping.Parcel{parcel("1", 1)},
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, shipping.ErrCarrierRequestFailed)
		assert.Contains(t, err.Error(), "Sender address missing.")
		assert.Empty(t, offers)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		server := createMockSendCloudServer(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, `{"shipping_methods": [`)
		})
		_, err := newTestV2Adapter(t, server.URL).GetAvailableServices(context.Background(), shipping.RateRequest{
			DeliveryAddress: deliveryAddress(),
			Parcels:         []shipping.Parcel{parcel("1", 1)},
		})
		assert.ErrorIs(t, err, shipping.ErrCarrierInvalidResponse)
	})

	t.Run("carrier unreachable", func(t *testing.T) {
		server := createMockSendCloudServer(t, func(w http.ResponseWriter, r *http.Request) {})
		adapter := newTestV2Adapter(t, server.URL)
		server.Close()

		_, err := adapter.GetAvailableServices(context.Background(), shipping.RateRequest{
			DeliveryAddress: deliveryAddress(),
			Parcels:         []shipping.Parcel{parcel("1", 1)},
		})
		assert.ErrorIs(t, err, shipping.ErrCarrierUnavailable)
	})

	t.Run("invalid parcels", func(t *testing.T) {
		adapter := newTestV2Adapter(t, "http://127.0.0.1:1")
		_, err := adapter.GetAvailableServices(context.Background(), shipping.RateRequest{
			DeliveryAddress: deliveryAddress(),
		})
		assert.ErrorIs(t, err, shipping.ErrInvalidParcelList)
	})
}

// ---------------------------------------------------------------------------
// Shipments
// ---------------------------------------------------------------------------

func TestSendCloudV2Adapter_CreateShipment(t *testing.T) {
	var payload v2CreateParcelsRequest
	server := createMockSendCloudServer(t, func(w http.ResponseWriter, r *http.Request) {
		assertBasicAuth(t, r)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v2/parcels", r.URL.Path)
		assert.Equal(t, "verbose", r.URL.Query().Get("errors"))
		decodeBody(t, r, &payload)

		writeJSON(w, http.StatusOK, `{
		  "parcels": [
		    {"id": 101, "tracking_number": "JVGL0001", "tracking_url": "https://track/1", "order_number": "SHIP-0001-1"},
		    {"id": 102, "tracking_number": "JVGL0002", "tracking_url": "https://track/2", "order_number": "SHIP-0001-2"}
		  ],
		  "failed_parcels": [
		    {"parcel": {"order_number": "SHIP-0001-3", "external_reference": "SHIP-0001-3"},
		     "errors": {"postal_code": ["Invalid postal code for country DE."]}}
		  ]
		}`)
	})
	adapter := newTestV2Adapter(t, server.URL)

	offer := shipping.ShippingOffer{
		ServiceProvider: "SendCloud",
		Carrier:         "DHL",
		ServiceName:     "DHL Paket 0-10kg",
		ServiceID:       "8",
		TotalPrice:      decimal.RequireFromString("16.5"),
	}
	outcome, err := adapter.CreateShipment(context.Background(),
		shipmentRequest(offer, parcel("2.5", 2), parcel("1.23456", 1)))
	require.NoError(t, err)

	require.Len(t, payload.Parcels, 3)
	first := payload.Parcels[0]
	assert.Equal(t, "Erika Mustermann", first.Name)
	assert.Equal(t, "Musterfirma GmbH", first.CompanyName)
	assert.Equal(t, "Friedrichstrasse 123", first.Address)
	assert.Equal(t, "DE", first.Country)
	assert.Equal(t, "+49 30 7654321", first.Telephone)
	assert.Equal(t, "erika@musterfirma.de", first.Email)
	assert.True(t, first.RequestLabel)
	assert.Equal(t, int64(8), first.Shipment.ID)
	assert.Equal(t, "2.500", first.Weight)
	require.Len(t, first.ParcelItems, 1)
	assert.Equal(t, 1, first.ParcelItems[0].Quantity)
	assert.Equal(t, "150.00", first.ParcelItems[0].Value)
	assert.Equal(t, "Spare parts", first.ParcelItems[0].Description)

	for i, p := range payload.Parcels {
		ref := []string{"SHIP-0001-1", "SHIP-0001-2", "SHIP-0001-3"}[i]
		assert.Equal(t, ref, p.OrderNumber)
		assert.Equal(t, ref, p.ExternalReference)
	}
	assert.Equal(t, "1.235", payload.Parcels[2].Weight)

	require.NotNil(t, outcome.Result)
	assert.Equal(t, "101, 102", outcome.Result.ShipmentID)
	assert.Equal(t, "JVGL0001, JVGL0002", outcome.Result.AWBNumber)
	assert.Equal(t, "dhl", outcome.Result.Carrier)
	assert.Equal(t, "DHL Paket 0-10kg", outcome.Result.CarrierService)
	assert.Equal(t, "SendCloud", outcome.Result.ServiceProvider)
	assert.True(t, decimal.RequireFromString("16.5").Equal(outcome.Result.ShipmentAmount))

	require.Len(t, outcome.Failures, 1)
	assert.Equal(t, "SHIP-0001-3", outcome.Failures[0].Reference)
	assert.Equal(t, "postal_code: Invalid postal code for country DE.", outcome.Failures[0].Message)
}

func TestSendCloudV2Adapter_CreateShipment_AllFailed(t *testing.T) {
	server := createMockSendCloudServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"parcels": [], "failed_parcels": [{"parcel": {}, "errors": "Shipping method not allowed"}]}`)
	})
	outcome, err := newTestV2Adapter(t, server.URL).CreateShipment(context.Background(),
		shipmentRequest(shipping.ShippingOffer{Carrier: "DHL", ServiceID: "8"}, parcel("1", 1)))
	require.NoError(t, err)
	assert.Nil(t, outcome.Result)
	require.Len(t, outcome.Failures, 1)
	assert.Equal(t, "parcel 1", outcome.Failures[0].Reference)
	assert.Equal(t, "Shipping method not allowed", outcome.Failures[0].Message)
}

func TestSendCloudV2Adapter_CreateShipment_InvalidRequest(t *testing.T) {
	adapter := newTestV2Adapter(t, "http://127.0.0.1:1")

	_, err := adapter.CreateShipment(context.Background(),
		shipmentRequest(shipping.ShippingOffer{Carrier: "DHL", ServiceID: "express"}, parcel("1", 1)))
	assert.ErrorIs(t, err, shipping.ErrInvalidOffer)

	req := shipmentRequest(shipping.ShippingOffer{Carrier: "DHL", ServiceID: "8"}, parcel("1", 1))
	req.DeliveryContact.Phone = ""
	_, err = adapter.CreateShipment(context.Background(), req)
	assert.ErrorIs(t, err, shipping.ErrInvalidPhone)
}

// ---------------------------------------------------------------------------
// Labels and tracking
// ---------------------------------------------------------------------------

func TestSendCloudV2Adapter_GetLabel(t *testing.T) {
	var mu sync.Mutex
	var paths []string
	server := createMockSendCloudServer(t, func(w http.ResponseWriter, r *http.Request) {
		assertBasicAuth(t, r)
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		switch r.URL.Path {
		case "/api/v2/labels/101":
			writeJSON(w, http.StatusOK, `{"label": {"normal_printer": ["https://a4/101"], "label_printer": "https://panel/101.pdf"}}`)
		case "/api/v2/labels/102":
			writeJSON(w, http.StatusOK, `{"label": {"normal_printer": [], "label_printer": "https://panel/102.pdf"}}`)
		default:
			writeJSON(w, http.StatusNotFound, `{"error": {"code": 404, "message": "Not found"}}`)
		}
	})
	adapter := newTestV2Adapter(t, server.URL)

	labels, err := adapter.GetLabel(context.Background(), "101, 102")
	require.NoError(t, err)
	assert.Equal(t, "101, 102", labels.ShipmentID)
	assert.Equal(t, []string{"https://panel/101.pdf", "https://panel/102.pdf"}, labels.URLs)
	assert.Equal(t, []string{"/api/v2/labels/101", "/api/v2/labels/102"}, paths)

	_, err = adapter.GetLabel(context.Background(), "999")
	assert.ErrorIs(t, err, shipping.ErrCarrierRequestFailed)

	_, err = adapter.GetLabel(context.Background(), " , ")
	assert.ErrorIs(t, err, shipping.ErrEmptyShipmentID)
}

func TestSendCloudV2Adapter_GetLabel_NotFound(t *testing.T) {
	server := createMockSendCloudServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"label": {"normal_printer": [], "label_printer": ""}}`)
	})

	_, err := newTestV2Adapter(t, server.URL).GetLabel(context.Background(), "101")
	require.Error(t, err)
	assert.ErrorIs(t, err, shipping.ErrCarrierLabelNotFound)
	assert.Contains(t, err.Error(), "(ID: 101)")
}

func TestSendCloudV2Adapter_GetTrackingData(t *testing.T) {
	var paths []string
	server := createMockSendCloudServer(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		switch r.URL.Path {
		case "/api/v2/parcels/101":
			writeJSON(w, http.StatusOK, `{"parcel": {"id": 101, "tracking_number": "JVGL0001", "tracking_url": "https://track/1", "status": {"id": 11, "message": "Delivered"}}}`)
		case "/api/v2/parcels/102":
			writeJSON(w, http.StatusOK, `{"parcel": {"id": 102, "tracking_number": "JVGL0002", "tracking_url": "https://track/2", "status": {"id": 3, "message": "En route to sorting center"}}}`)
		}
	})
	adapter := newTestV2Adapter(t, server.URL)

	info, err := adapter.GetTrackingData(context.Background(), "101,102")
	require.NoError(t, err)
	assert.Equal(t, []string{"/api/v2/parcels/101", "/api/v2/parcels/102"}, paths)
	assert.Equal(t, &shipping.TrackingInfo{
		AWBNumber:          "JVGL0001, JVGL0002",
		TrackingStatus:     "Delivered, En route to sorting center",
		TrackingStatusInfo: "Delivered, En route to sorting center",
		TrackingURL:        "https://track/1, https://track/2",
	}, info)
}

func TestSendCloudV2Adapter_DownloadLabel(t *testing.T) {
	server := createMockSendCloudServer(t, func(w http.ResponseWriter, r *http.Request) {
		assertBasicAuth(t, r)
		if r.URL.Path == "/api/v2/labels/label_printer/101" {
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = w.Write([]byte("%PDF-1.4 label"))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})
	adapter := newTestV2Adapter(t, server.URL)

	data, err := adapter.DownloadLabel(context.Background(), server.URL+"/api/v2/labels/label_printer/101")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 label", string(data))

	_, err = adapter.DownloadLabel(context.Background(), server.URL+"/api/v2/labels/label_printer/404")
	assert.ErrorIs(t, err, shipping.ErrCarrierRequestFailed)

	_, err = adapter.DownloadLabel(context.Background(), "https://attacker.example/label.pdf")
	assert.ErrorIs(t, err, ErrLabelURLNotAllowed)

	_, err = adapter.DownloadLabel(context.Background(), "not a url")
	assert.ErrorIs(t, err, ErrLabelURLNotAllowed)
}
