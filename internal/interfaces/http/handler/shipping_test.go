package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	appshipping "github.com/erp/shipping/internal/application/shipping"
	"github.com/erp/shipping/internal/domain/shipping"
	"github.com/erp/shipping/internal/interfaces/http/dto"
	"github.com/erp/shipping/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// MockShippingService implements ShippingService for testing
type MockShippingService struct {
	mock.Mock
}

func (m *MockShippingService) FetchShippingRates(ctx context.Context, req appshipping.FetchRatesRequest) (*appshipping.RatesResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appshipping.RatesResponse), args.Error(1)
}

func (m *MockShippingService) CreateShipment(ctx context.Context, req appshipping.CreateShipmentRequest) (*appshipping.CreateShipmentResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appshipping.CreateShipmentResponse), args.Error(1)
}

func (m *MockShippingService) GetShipment(ctx context.Context, shipmentName string) (*appshipping.ShipmentRecordResponse, error) {
	args := m.Called(ctx, shipmentName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appshipping.ShipmentRecordResponse), args.Error(1)
}

func (m *MockShippingService) GetLabel(ctx context.Context, ref string) (*appshipping.LabelsResponse, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appshipping.LabelsResponse), args.Error(1)
}

func (m *MockShippingService) DownloadLabel(ctx context.Context, labelURL string) ([]byte, error) {
	args := m.Called(ctx, labelURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockShippingService) StoreLabels(ctx context.Context, shipmentName string) (*appshipping.StoreLabelsResponse, error) {
	args := m.Called(ctx, shipmentName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appshipping.StoreLabelsResponse), args.Error(1)
}

func (m *MockShippingService) UpdateTracking(ctx context.Context, shipmentName string) (*appshipping.TrackingResponse, error) {
	args := m.Called(ctx, shipmentName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appshipping.TrackingResponse), args.Error(1)
}

func (m *MockShippingService) RefreshOpenShipments(ctx context.Context) (*appshipping.RefreshResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appshipping.RefreshResult), args.Error(1)
}

func setupShippingRouter(svc *MockShippingService) *gin.Engine {
	middleware.SetupValidator()
	h := NewShippingHandler(svc)

	r := gin.New()
	r.Use(middleware.RequestID())
	r.POST("/rates", h.FetchRates)
	r.POST("/shipments", h.CreateShipment)
	r.GET("/shipments/:name", h.GetShipment)
	r.GET("/shipments/:name/labels", h.GetLabel)
	r.POST("/shipments/:name/labels/store", h.StoreLabels)
	r.GET("/labels/download", h.DownloadLabel)
	r.POST("/shipments/:name/tracking", h.UpdateTracking)
	r.POST("/tracking/refresh", h.RefreshTracking)
	return r
}

func doRequest(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(middleware.RequestIDHeader, "req-handler")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) (dto.Response, map[string]any) {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data, _ := resp.Data.(map[string]any)
	return resp, data
}

const ratesBody = `{
	"pickup_address": {"address_line1": "Stationsplein 1", "city": "Eindhoven", "pincode": "5611AB", "country_code": "NL"},
	"delivery_address": {"address_line1": "Hauptstrasse 5", "city": "Berlin", "pincode": "10115", "country_code": "DE"},
	"shipment_parcel": "[{\"length\":30,\"width\":20,\"height\":10,\"weight\":2,\"count\":1}]"
}`

func TestShippingHandler_FetchRates(t *testing.T) {
	t.Run("lifts alerts into the envelope", func(t *testing.T) {
		svc := new(MockShippingService)
		svc.On("FetchShippingRates", mock.Anything, mock.MatchedBy(func(req appshipping.FetchRatesRequest) bool {
			return req.PickupAddress.CountryCode == "NL" && req.DeliveryAddress.City == "Berlin"
		})).Return(&appshipping.RatesResponse{
			Offers: []shipping.ShippingOffer{{
				ServiceProvider: shipping.ProviderSendCloud,
				Carrier:         "DHL",
				ServiceName:     "DHL Parcel Connect",
				ServiceID:       "1001",
				TotalPrice:      decimal.RequireFromString("7.45"),
			}},
			Alerts: []shipping.Alert{shipping.InfoAlert("No multicollo offers")},
		}, nil)

		w := doRequest(setupShippingRouter(svc), http.MethodPost, "/rates", ratesBody)

		assert.Equal(t, http.StatusOK, w.Code)
		resp, data := decodeResponse(t, w)
		assert.True(t, resp.Success)
		require.Len(t, resp.Alerts, 1)
		assert.Equal(t, shipping.AlertLevelInfo, resp.Alerts[0].Level)
		assert.NotContains(t, data, "alerts")
		offers := data["offers"].([]any)
		require.Len(t, offers, 1)
		assert.Equal(t, "DHL", offers[0].(map[string]any)["carrier"])
		svc.AssertExpectations(t)
	})

	t.Run("missing parcels fail validation", func(t *testing.T) {
		svc := new(MockShippingService)

		w := doRequest(setupShippingRouter(svc), http.MethodPost, "/rates", `{"pickup_address": {}}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		resp, _ := decodeResponse(t, w)
		require.NotNil(t, resp.Error)
		assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
		require.Len(t, resp.Error.Details, 1)
		assert.Equal(t, "shipment_parcel", resp.Error.Details[0].Field)
		svc.AssertNotCalled(t, "FetchShippingRates", mock.Anything, mock.Anything)
	})

	t.Run("invalid parcels are a bad request", func(t *testing.T) {
		svc := new(MockShippingService)
		svc.On("FetchShippingRates", mock.Anything, mock.Anything).
			Return(nil, fmt.Errorf("%w: weight must be positive", shipping.ErrInvalidParcel))

		w := doRequest(setupShippingRouter(svc), http.MethodPost, "/rates", ratesBody)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		resp, _ := decodeResponse(t, w)
		assert.Equal(t, dto.ErrCodeInvalidInput, resp.Error.Code)
		assert.Contains(t, resp.Error.Message, "weight must be positive")
		assert.Equal(t, "req-handler", resp.Error.RequestID)
	})
}

const createBody = `{
	"shipment": "SHIP-0001",
	"pickup_address": {"address_line1": "Stationsplein 1", "city": "Eindhoven", "pincode": "5611AB", "country_code": "NL"},
	"delivery_address": {"address_line1": "Hauptstrasse 5", "city": "Berlin", "pincode": "10115", "country_code": "DE"},
	"service_info": {"service_provider": "SendCloud", "carrier": "DHL", "service_name": "DHL Parcel Connect", "service_id": "1001", "total_price": "7.45"},
	"shipment_parcel": "[{\"length\":30,\"width\":20,\"height\":10,\"weight\":2,\"count\":2}]",
	"value_of_goods": "120.00"
}`

func TestShippingHandler_CreateShipment(t *testing.T) {
	t.Run("booked shipment answers 201", func(t *testing.T) {
		svc := new(MockShippingService)
		svc.On("CreateShipment", mock.Anything, mock.MatchedBy(func(req appshipping.CreateShipmentRequest) bool {
			return req.ShipmentName == "SHIP-0001" && req.ServiceInfo.ServiceID == "1001" &&
				req.ValueOfGoods.Equal(decimal.RequireFromString("120"))
		})).Return(&appshipping.CreateShipmentResponse{
			Result: &shipping.ShipmentResult{
				ServiceProvider: shipping.ProviderSendCloud,
				ShipmentID:      "101, 102",
				Carrier:         "DHL",
				AWBNumber:       "JVGL1, JVGL2",
			},
			Failures: []shipping.ParcelFailure{},
		}, nil)

		w := doRequest(setupShippingRouter(svc), http.MethodPost, "/shipments", createBody)

		assert.Equal(t, http.StatusCreated, w.Code)
		resp, data := decodeResponse(t, w)
		assert.True(t, resp.Success)
		assert.Empty(t, resp.Alerts)
		assert.Equal(t, "101, 102", data["result"].(map[string]any)["shipment_id"])
		svc.AssertExpectations(t)
	})

	t.Run("carrier refusal answers 200 with alerts", func(t *testing.T) {
		svc := new(MockShippingService)
		svc.On("CreateShipment", mock.Anything, mock.Anything).Return(&appshipping.CreateShipmentResponse{
			Failures: []shipping.ParcelFailure{{Reference: "SHIP-0001-1", Message: "invalid postal code"}},
			Alerts:   []shipping.Alert{shipping.ErrorAlert("creating SendCloud shipment", shipping.ErrCarrierRequestFailed)},
		}, nil)

		w := doRequest(setupShippingRouter(svc), http.MethodPost, "/shipments", createBody)

		assert.Equal(t, http.StatusOK, w.Code)
		resp, data := decodeResponse(t, w)
		assert.True(t, resp.Success)
		require.Len(t, resp.Alerts, 1)
		assert.Equal(t, shipping.AlertLevelError, resp.Alerts[0].Level)
		assert.NotContains(t, data, "result")
		assert.Len(t, data["failures"], 1)
	})

	t.Run("shipment name too long", func(t *testing.T) {
		svc := new(MockShippingService)
		body := strings.Replace(createBody, "SHIP-0001", strings.Repeat("S", 141), 1)

		w := doRequest(setupShippingRouter(svc), http.MethodPost, "/shipments", body)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		resp, _ := decodeResponse(t, w)
		assert.Equal(t, "shipment", resp.Error.Details[0].Field)
		assert.Equal(t, "Must be at most 140 characters", resp.Error.Details[0].Message)
	})
}

func TestShippingHandler_GetShipment(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		svc := new(MockShippingService)
		svc.On("GetShipment", mock.Anything, "SHIP-0001").Return(&appshipping.ShipmentRecordResponse{
			ShipmentName: "SHIP-0001",
			Status:       "Booked",
			ShipmentID:   "101",
		}, nil)

		w := doRequest(setupShippingRouter(svc), http.MethodGet, "/shipments/SHIP-0001", "")

		assert.Equal(t, http.StatusOK, w.Code)
		_, data := decodeResponse(t, w)
		assert.Equal(t, "Booked", data["status"])
	})

	t.Run("not found", func(t *testing.T) {
		svc := new(MockShippingService)
		svc.On("GetShipment", mock.Anything, "SHIP-404").
			Return(nil, fmt.Errorf("%w: SHIP-404", shipping.ErrShipmentNotFound))

		w := doRequest(setupShippingRouter(svc), http.MethodGet, "/shipments/SHIP-404", "")

		assert.Equal(t, http.StatusNotFound, w.Code)
		resp, _ := decodeResponse(t, w)
		assert.Equal(t, dto.ErrCodeNotFound, resp.Error.Code)
		assert.Contains(t, resp.Error.Message, "SHIP-404")
	})
}

func TestShippingHandler_Labels(t *testing.T) {
	t.Run("label URLs for a joined ID", func(t *testing.T) {
		svc := new(MockShippingService)
		svc.On("GetLabel", mock.Anything, "101, 102").Return(&appshipping.LabelsResponse{
			ShipmentID: "101, 102",
			LabelURLs:  []string{"https://panel.sendcloud.sc/api/v2/labels/normal_printer/101", "https://panel.sendcloud.sc/api/v2/labels/normal_printer/102"},
		}, nil)

		w := doRequest(setupShippingRouter(svc), http.MethodGet, "/shipments/101,%20102/labels", "")

		assert.Equal(t, http.StatusOK, w.Code)
		_, data := decodeResponse(t, w)
		assert.Len(t, data["label_urls"], 2)
	})

	t.Run("not booked yet", func(t *testing.T) {
		svc := new(MockShippingService)
		svc.On("GetLabel", mock.Anything, "SHIP-0001").Return(nil, shipping.ErrShipmentNotCreated)

		w := doRequest(setupShippingRouter(svc), http.MethodGet, "/shipments/SHIP-0001/labels", "")

		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("store without object storage", func(t *testing.T) {
		svc := new(MockShippingService)
		svc.On("StoreLabels", mock.Anything, "SHIP-0001").Return(nil, appshipping.ErrLabelStorageNotConfigured)

		w := doRequest(setupShippingRouter(svc), http.MethodPost, "/shipments/SHIP-0001/labels/store", "")

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		resp, _ := decodeResponse(t, w)
		assert.Equal(t, dto.ErrCodeUnavailable, resp.Error.Code)
	})

	t.Run("store returns download URLs", func(t *testing.T) {
		svc := new(MockShippingService)
		svc.On("StoreLabels", mock.Anything, "SHIP-0001").Return(&appshipping.StoreLabelsResponse{
			ShipmentName: "SHIP-0001",
			Labels:       []appshipping.StoredLabel{{StorageKey: "labels/SHIP-0001/1.pdf", DownloadURL: "http://minio/labels/SHIP-0001/1.pdf"}},
		}, nil)

		w := doRequest(setupShippingRouter(svc), http.MethodPost, "/shipments/SHIP-0001/labels/store", "")

		assert.Equal(t, http.StatusOK, w.Code)
		_, data := decodeResponse(t, w)
		assert.Len(t, data["labels"], 1)
	})
}

func TestShippingHandler_DownloadLabel(t *testing.T) {
	labelURL := "https://panel.sendcloud.sc/api/v2/labels/normal_printer/101"

	t.Run("streams the PDF", func(t *testing.T) {
		svc := new(MockShippingService)
		svc.On("DownloadLabel", mock.Anything, labelURL).Return([]byte("%PDF-1.4"), nil)

		w := doRequest(setupShippingRouter(svc), http.MethodGet, "/labels/download?url="+labelURL, "")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
		assert.Equal(t, `attachment; filename="label-101.pdf"`, w.Header().Get("Content-Disposition"))
		assert.Equal(t, "%PDF-1.4", w.Body.String())
	})

	t.Run("foreign host is rejected", func(t *testing.T) {
		svc := new(MockShippingService)
		svc.On("DownloadLabel", mock.Anything, "https://evil.example.com/x.pdf").Return(nil, shipping.ErrLabelURLNotAllowed)

		w := doRequest(setupShippingRouter(svc), http.MethodGet, "/labels/download?url=https://evil.example.com/x.pdf", "")

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("carrier failure hides details", func(t *testing.T) {
		svc := new(MockShippingService)
		svc.On("DownloadLabel", mock.Anything, labelURL).
			Return(nil, fmt.Errorf("%w: status 500: upstream secret", shipping.ErrCarrierRequestFailed))

		w := doRequest(setupShippingRouter(svc), http.MethodGet, "/labels/download?url="+labelURL, "")

		assert.Equal(t, http.StatusBadGateway, w.Code)
		resp, _ := decodeResponse(t, w)
		assert.Equal(t, dto.ErrCodeCarrierFailed, resp.Error.Code)
		assert.NotContains(t, resp.Error.Message, "upstream secret")
	})

	t.Run("url is required", func(t *testing.T) {
		svc := new(MockShippingService)

		w := doRequest(setupShippingRouter(svc), http.MethodGet, "/labels/download", "")

		assert.Equal(t, http.StatusBadRequest, w.Code)
		resp, _ := decodeResponse(t, w)
		assert.Equal(t, "url", resp.Error.Details[0].Field)
	})
}

func TestShippingHandler_Tracking(t *testing.T) {
	t.Run("update", func(t *testing.T) {
		svc := new(MockShippingService)
		svc.On("UpdateTracking", mock.Anything, "SHIP-0001").Return(&appshipping.TrackingResponse{
			ShipmentName: "SHIP-0001",
			Status:       "Completed",
			Tracking:     &shipping.TrackingInfo{TrackingStatus: "Delivered"},
		}, nil)

		w := doRequest(setupShippingRouter(svc), http.MethodPost, "/shipments/SHIP-0001/tracking", "")

		assert.Equal(t, http.StatusOK, w.Code)
		_, data := decodeResponse(t, w)
		assert.Equal(t, "Completed", data["status"])
	})

	t.Run("refresh reports alerts", func(t *testing.T) {
		svc := new(MockShippingService)
		svc.On("RefreshOpenShipments", mock.Anything).Return(&appshipping.RefreshResult{
			Checked: 3, Updated: 2, Failed: 1,
			Alerts: []shipping.Alert{shipping.WarningAlert("tracking SHIP-0003 failed")},
		}, nil)

		w := doRequest(setupShippingRouter(svc), http.MethodPost, "/tracking/refresh", "")

		assert.Equal(t, http.StatusOK, w.Code)
		resp, data := decodeResponse(t, w)
		assert.Len(t, resp.Alerts, 1)
		assert.EqualValues(t, 3, data["checked"])
	})

	t.Run("refresh store failure", func(t *testing.T) {
		svc := new(MockShippingService)
		svc.On("RefreshOpenShipments", mock.Anything).Return(nil, fmt.Errorf("failed to list open shipments: connection refused"))

		w := doRequest(setupShippingRouter(svc), http.MethodPost, "/tracking/refresh", "")

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		resp, _ := decodeResponse(t, w)
		assert.Equal(t, "An unexpected error occurred", resp.Error.Message)
	})
}

func TestLabelFileName(t *testing.T) {
	assert.Equal(t, "label-101.pdf", labelFileName("https://panel.sendcloud.sc/api/v2/labels/normal_printer/101"))
	assert.Equal(t, "label-101.pdf", labelFileName("https://panel.sendcloud.sc/api/v2/labels/normal_printer/101?start_from=0"))
	assert.Equal(t, "label.pdf", labelFileName("https://panel.sendcloud.sc/api/v3/parcels/7/documents/label.pdf"))
	assert.Equal(t, "label.pdf", labelFileName("https://panel.sendcloud.sc/"))
}
