package carrier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/erp/shipping/internal/domain/shipping"
	"github.com/erp/shipping/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// SendCloudV2Adapter implements shipping.CarrierGateway against the
// SendCloud parcels API v2.
type SendCloudV2Adapter struct {
	client *sendcloudClient
}

// NewSendCloudV2Adapter creates a new v2 adapter
func NewSendCloudV2Adapter(config *SendCloudConfig, opts ...SendCloudOption) (*SendCloudV2Adapter, error) {
	if config != nil {
		config.APIVersion = APIVersionV2
	}
	client, err := newSendCloudClient(config, opts...)
	if err != nil {
		return nil, err
	}
	return &SendCloudV2Adapter{client: client}, nil
}

// Provider returns "SendCloud"
func (a *SendCloudV2Adapter) Provider() string {
	return shipping.ProviderSendCloud
}

// APIVersion returns "v2"
func (a *SendCloudV2Adapter) APIVersion() string {
	return APIVersionV2
}

// IsEnabled reports whether the integration is enabled and has credentials
func (a *SendCloudV2Adapter) IsEnabled() bool {
	return a.client.config.IsActive()
}

// ---------------------------------------------------------------------------
// Rates
// ---------------------------------------------------------------------------

// GetAvailableServices lists the shipping methods for the destination
// country whose weight range holds at least one parcel.
func (a *SendCloudV2Adapter) GetAvailableServices(ctx context.Context, req shipping.RateRequest) ([]shipping.ShippingOffer, error) {
	if !a.IsEnabled() {
		return []shipping.ShippingOffer{}, nil
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	country := req.DeliveryAddress.CountryISO()
	var resp v2ShippingMethodsResponse
	err := a.client.do(ctx, apiRequest{
		operation: "shipping_methods",
		method:    http.MethodGet,
		path:      "/api/v2/shipping_methods",
		query:     url.Values{"to_country": {country}},
	}, decodeV2Error, &resp)
	if err != nil {
		return nil, err
	}

	offers := make([]shipping.ShippingOffer, 0, len(resp.ShippingMethods))
	for _, method := range resp.ShippingMethods {
		dest, ok := method.countryFor(country)
		if !ok {
			continue
		}
		if !shipping.WeightInRange(req.Parcels, method.MinWeight, method.MaxWeight) {
			continue
		}
		offers = append(offers, shipping.ShippingOffer{
			ServiceProvider: shipping.ProviderSendCloud,
			Carrier:         shipping.DisplayCarrier(method.Carrier),
			ServiceName:     method.Name,
			ServiceID:       strconv.FormatInt(method.ID, 10),
			TotalPrice:      shipping.TotalPrice(dest.unitPrice(), req.Parcels),
		})
	}
	return offers, nil
}

// ---------------------------------------------------------------------------
// Shipments
// ---------------------------------------------------------------------------

// CreateShipment announces one v2 parcel per physical package in a single
// call. Parcels SendCloud rejects are returned as failures next to the
// accepted ones.
func (a *SendCloudV2Adapter) CreateShipment(ctx context.Context, req shipping.ShipmentRequest) (*shipping.ShipmentOutcome, error) {
	if !a.IsEnabled() {
		return &shipping.ShipmentOutcome{}, nil
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	methodID, err := strconv.ParseInt(strings.TrimSpace(req.Offer.ServiceID), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: service id %q is not numeric", shipping.ErrInvalidOffer, req.Offer.ServiceID)
	}

	units := shipping.ExpandParcels(req.Parcels)
	payload := v2CreateParcelsRequest{Parcels: make([]v2Parcel, 0, len(units))}
	for i, unit := range units {
		payload.Parcels = append(payload.Parcels, a.buildParcel(req, unit, methodID, i+1))
	}

	var resp v2CreateParcelsResponse
	err = a.client.do(ctx, apiRequest{
		operation: "create_parcels",
		method:    http.MethodPost,
		path:      "/api/v2/parcels",
		query:     url.Values{"errors": {"verbose"}},
		body:      payload,
	}, decodeV2Error, &resp)
	if err != nil {
		return nil, err
	}

	outcome := &shipping.ShipmentOutcome{}
	for i, failed := range resp.FailedParcels {
		ref := failed.Parcel.ExternalReference
		if ref == "" {
			ref = failed.Parcel.OrderNumber
		}
		if ref == "" {
			ref = fmt.Sprintf("parcel %d", i+1)
		}
		outcome.Failures = append(outcome.Failures, shipping.ParcelFailure{
			Reference: ref,
			Message:   flattenErrors(failed.Errors),
		})
	}

	created := make([]shipping.CreatedParcel, 0, len(resp.Parcels))
	for _, p := range resp.Parcels {
		created = append(created, shipping.CreatedParcel{
			ID:             strconv.FormatInt(p.ID, 10),
			TrackingNumber: p.TrackingNumber,
			TrackingURL:    p.TrackingURL,
		})
	}
	outcome.Result = shipping.NewShipmentResult(req, created)

	if len(outcome.Failures) > 0 {
		a.client.logger.Warn("SendCloud rejected parcels",
			zap.String("shipment_name", req.ShipmentName),
			zap.Int("accepted", len(created)),
			zap.Int("failed", len(outcome.Failures)),
		)
		telemetry.AddEvent(telemetry.SpanFromContext(ctx), "parcels_failed",
			telemetry.SpanAttrFailureCount, len(outcome.Failures),
		)
	}
	return outcome, nil
}

func (a *SendCloudV2Adapter) buildParcel(req shipping.ShipmentRequest, unit shipping.Parcel, methodID int64, index int) v2Parcel {
	ref := req.ParcelReference(index)
	weight := unit.RoundedWeight().StringFixed(shipping.WeightDecimals)
	return v2Parcel{
		Name:              req.DeliveryContact.FullName(),
		CompanyName:       req.CompanyName(),
		Address:           req.DeliveryAddress.AddressLine1,
		Address2:          req.DeliveryAddress.AddressLine2,
		City:              req.DeliveryAddress.City,
		PostalCode:        req.DeliveryAddress.PostalCode,
		Telephone:         firstNonEmpty(req.DeliveryContact.Phone, req.DeliveryAddress.Phone),
		RequestLabel:      true,
		Email:             firstNonEmpty(req.DeliveryContact.Email, req.DeliveryAddress.Email),
		Data:              []any{},
		Country:           req.DeliveryAddress.CountryISO(),
		Shipment:          v2ShipmentRef{ID: methodID},
		OrderNumber:       ref,
		ExternalReference: ref,
		Weight:            weight,
		ParcelItems: []v2ParcelItem{{
			Description: req.DescriptionOfContent,
			Quantity:    1,
			Weight:      weight,
			Value:       shipping.RoundMoney(req.ValueOfGoods).StringFixed(shipping.CurrencyDecimals),
		}},
	}
}

// ---------------------------------------------------------------------------
// Labels and tracking
// ---------------------------------------------------------------------------

// GetLabel returns the label printer URL of every parcel in shipmentID
func (a *SendCloudV2Adapter) GetLabel(ctx context.Context, shipmentID string) (*shipping.LabelSet, error) {
	ids := shipping.SplitIDs(shipmentID)
	if len(ids) == 0 {
		return nil, shipping.ErrEmptyShipmentID
	}
	if !a.IsEnabled() {
		return &shipping.LabelSet{ShipmentID: shipmentID}, nil
	}

	set := &shipping.LabelSet{ShipmentID: shipmentID, URLs: make([]string, 0, len(ids))}
	for _, id := range ids {
		var resp v2LabelResponse
		err := a.client.do(ctx, apiRequest{
			operation: "get_label",
			method:    http.MethodGet,
			path:      "/api/v2/labels/" + url.PathEscape(id),
		}, decodeV2Error, &resp)
		if err != nil {
			return nil, err
		}
		if resp.Label.LabelPrinter != "" {
			set.URLs = append(set.URLs, resp.Label.LabelPrinter)
		}
	}
	if len(set.URLs) == 0 {
		return nil, labelNotFound(shipmentID)
	}
	return set, nil
}

// DownloadLabel fetches a label document from SendCloud
func (a *SendCloudV2Adapter) DownloadLabel(ctx context.Context, labelURL string) ([]byte, error) {
	return a.client.downloadLabel(ctx, labelURL)
}

// GetTrackingData reads tracking for every parcel in shipmentID. The v2
// status message fills both the status and the status info.
func (a *SendCloudV2Adapter) GetTrackingData(ctx context.Context, shipmentID string) (*shipping.TrackingInfo, error) {
	ids := shipping.SplitIDs(shipmentID)
	if len(ids) == 0 {
		return nil, shipping.ErrEmptyShipmentID
	}
	if !a.IsEnabled() {
		return &shipping.TrackingInfo{}, nil
	}

	parcels := make([]shipping.ParcelTracking, 0, len(ids))
	for _, id := range ids {
		var resp v2ParcelResponse
		err := a.client.do(ctx, apiRequest{
			operation: "get_parcel",
			method:    http.MethodGet,
			path:      "/api/v2/parcels/" + url.PathEscape(id),
		}, decodeV2Error, &resp)
		if err != nil {
			return nil, err
		}
		parcels = append(parcels, shipping.ParcelTracking{
			TrackingNumber: resp.Parcel.TrackingNumber,
			Status:         resp.Parcel.Status.Message,
			StatusInfo:     resp.Parcel.Status.Message,
			TrackingURL:    resp.Parcel.TrackingURL,
		})
	}
	return shipping.AggregateTracking(parcels), nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func labelNotFound(shipmentID string) error {
	return fmt.Errorf("%w: please make sure shipment (ID: %s) exists and is a complete shipment on SendCloud",
		shipping.ErrCarrierLabelNotFound, shipmentID)
}

// flattenErrors renders SendCloud's verbose field errors as
// "field: message; field: message". Unknown shapes are returned as raw JSON.
func flattenErrors(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "rejected by carrier"
	}
	var fields map[string][]string
	if err := json.Unmarshal(raw, &fields); err == nil && len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+": "+strings.Join(fields[k], ", "))
		}
		return strings.Join(parts, "; ")
	}
	var msg string
	if err := json.Unmarshal(raw, &msg); err == nil && msg != "" {
		return msg
	}
	return string(raw)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

var _ shipping.CarrierGateway = (*SendCloudV2Adapter)(nil)
