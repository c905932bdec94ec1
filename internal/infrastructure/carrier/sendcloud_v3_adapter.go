package carrier

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/erp/shipping/internal/domain/shipping"
	"github.com/erp/shipping/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultCurrency = "EUR"
	weightUnit      = "kg"
	dimensionUnit   = "cm"
)

// SendCloudV3Adapter implements shipping.CarrierGateway against the
// SendCloud shipping API v3.
type SendCloudV3Adapter struct {
	client *sendcloudClient
}

// NewSendCloudV3Adapter creates a new v3 adapter
func NewSendCloudV3Adapter(config *SendCloudConfig, opts ...SendCloudOption) (*SendCloudV3Adapter, error) {
	if config != nil {
		config.APIVersion = APIVersionV3
	}
	client, err := newSendCloudClient(config, opts...)
	if err != nil {
		return nil, err
	}
	return &SendCloudV3Adapter{client: client}, nil
}

// Provider returns "SendCloud"
func (a *SendCloudV3Adapter) Provider() string {
	return shipping.ProviderSendCloud
}

// APIVersion returns "v3"
func (a *SendCloudV3Adapter) APIVersion() string {
	return APIVersionV3
}

// IsEnabled reports whether the integration is enabled and has credentials
func (a *SendCloudV3Adapter) IsEnabled() bool {
	return a.client.config.IsActive()
}

// ---------------------------------------------------------------------------
// Rates
// ---------------------------------------------------------------------------

// GetAvailableServices asks for quotes on a parcel as heavy and as large as
// the largest entry of the list, then prices every option for all packages.
// Options SendCloud returns without a quote are skipped.
func (a *SendCloudV3Adapter) GetAvailableServices(ctx context.Context, req shipping.RateRequest) ([]shipping.ShippingOffer, error) {
	if !a.IsEnabled() {
		return []shipping.ShippingOffer{}, nil
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	bounds := shipping.Bounds(req.Parcels)
	payload := v3ShippingOptionsRequest{
		ToAddress: v3QuoteAddress{
			CountryCode: req.DeliveryAddress.CountryISO(),
			PostalCode:  req.DeliveryAddress.PostalCode,
		},
		Parcels: []v3QuoteParcel{{
			Weight:     weightOf(bounds.Weight),
			Dimensions: dimensionsOf(bounds.Length, bounds.Width, bounds.Height),
		}},
		CalculateQuotes: true,
	}
	if country := req.PickupAddress.CountryISO(); country != "" {
		payload.FromAddress = &v3QuoteAddress{
			CountryCode: country,
			PostalCode:  req.PickupAddress.PostalCode,
		}
	}

	var resp v3ShippingOptionsResponse
	err := a.client.do(ctx, apiRequest{
		operation: "fetch_shipping_options",
		method:    http.MethodPost,
		path:      "/api/v3/fetch-shipping-options",
		body:      payload,
	}, decodeV3Error, &resp)
	if err != nil {
		return nil, err
	}

	offers := make([]shipping.ShippingOffer, 0, len(resp.Data))
	for _, option := range resp.Data {
		price, ok := option.unitPrice()
		if !ok {
			a.client.logger.Debug("Skipping shipping option without quote", zap.String("code", option.Code))
			continue
		}
		offers = append(offers, shipping.ShippingOffer{
			ServiceProvider:    shipping.ProviderSendCloud,
			Carrier:            shipping.DisplayCarrier(option.Carrier.Code),
			ServiceName:        firstNonEmpty(option.Product.Name, option.Name),
			ShippingOptionCode: option.Code,
			TotalPrice:         shipping.TotalPrice(price.Value, req.Parcels),
			Currency:           firstNonEmpty(price.Currency, defaultCurrency),
			Multicollo:         option.Functionalities.Multicollo,
		})
	}
	return offers, nil
}

// ---------------------------------------------------------------------------
// Shipments
// ---------------------------------------------------------------------------

// CreateShipment announces the shipment. A multicollo offer sends every
// package in one call; otherwise each package is announced on its own and
// a rejected package does not stop the others.
func (a *SendCloudV3Adapter) CreateShipment(ctx context.Context, req shipping.ShipmentRequest) (*shipping.ShipmentOutcome, error) {
	if !a.IsEnabled() {
		return &shipping.ShipmentOutcome{}, nil
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Offer.ShippingOptionCode == "" {
		return nil, shipping.ErrInvalidOffer
	}

	units := shipping.ExpandParcels(req.Parcels)
	telemetry.SetAttributes(telemetry.SpanFromContext(ctx),
		telemetry.SpanAttrMulticollo, req.Offer.Multicollo,
		telemetry.SpanAttrParcelCount, len(units),
	)

	if req.Offer.Multicollo {
		parcels := make([]v3Parcel, 0, len(units))
		for _, unit := range units {
			parcels = append(parcels, a.buildParcel(req, unit))
		}
		created, err := a.announce(ctx, a.buildAnnouncement(req, req.ShipmentName, parcels))
		if err != nil {
			return nil, err
		}
		return &shipping.ShipmentOutcome{Result: shipping.NewShipmentResult(req, created)}, nil
	}

	outcome := &shipping.ShipmentOutcome{}
	var created []shipping.CreatedParcel
	for i, unit := range units {
		ref := req.ParcelReference(i + 1)
		parcels, err := a.announce(ctx, a.buildAnnouncement(req, ref, []v3Parcel{a.buildParcel(req, unit)}))
		if err != nil {
			outcome.Failures = append(outcome.Failures, shipping.ParcelFailure{Reference: ref, Message: err.Error()})
			continue
		}
		created = append(created, parcels...)
	}
	outcome.Result = shipping.NewShipmentResult(req, created)

	if len(outcome.Failures) > 0 {
		a.client.logger.Warn("SendCloud rejected parcels",
			zap.String("shipment_name", req.ShipmentName),
			zap.Int("accepted", len(created)),
			zap.Int("failed", len(outcome.Failures)),
		)
	}
	return outcome, nil
}

func (a *SendCloudV3Adapter) announce(ctx context.Context, payload v3AnnounceRequest) ([]shipping.CreatedParcel, error) {
	var resp v3AnnounceResponse
	err := a.client.do(ctx, apiRequest{
		operation: "announce",
		method:    http.MethodPost,
		path:      "/api/v3/shipments/announce",
		body:      payload,
	}, decodeV3Error, &resp)
	if err != nil {
		return nil, err
	}

	created := make([]shipping.CreatedParcel, 0, len(resp.Data.Parcels))
	for _, p := range resp.Data.Parcels {
		created = append(created, shipping.CreatedParcel{
			ID:             strconv.FormatInt(p.ID, 10),
			TrackingNumber: p.TrackingNumber,
			TrackingURL:    p.TrackingURL,
		})
	}
	return created, nil
}

func (a *SendCloudV3Adapter) buildAnnouncement(req shipping.ShipmentRequest, orderNumber string, parcels []v3Parcel) v3AnnounceRequest {
	pickup := req.PickupAddress
	street, number := shipping.SplitStreetAndHouseNumber(pickup.AddressLine1)

	payload := v3AnnounceRequest{
		FromAddress: v3Address{
			Name:         firstNonEmpty(req.PickupContact.FullName(), pickup.AddressTitle),
			CompanyName:  pickup.AddressTitle,
			AddressLine1: street,
			HouseNumber:  shipping.HouseNumberOrPlaceholder(number),
			AddressLine2: pickup.AddressLine2,
			PostalCode:   pickup.PostalCode,
			City:         pickup.City,
			CountryCode:  pickup.CountryISO(),
			PhoneNumber:  firstNonEmpty(req.PickupContact.Phone, pickup.Phone),
			Email:        firstNonEmpty(req.PickupContact.Email, pickup.Email),
		},
		ToAddress: v3Address{
			Name:         firstNonEmpty(req.DeliveryContact.FullName(), req.CompanyName()),
			CompanyName:  req.CompanyName(),
			AddressLine1: req.DeliveryAddress.AddressLine1,
			AddressLine2: req.DeliveryAddress.AddressLine2,
			PostalCode:   req.DeliveryAddress.PostalCode,
			City:         req.DeliveryAddress.City,
			CountryCode:  req.DeliveryAddress.CountryISO(),
			PhoneNumber:  firstNonEmpty(req.DeliveryContact.Phone, req.DeliveryAddress.Phone),
			Email:        firstNonEmpty(req.DeliveryContact.Email, req.DeliveryAddress.Email),
		},
		OrderNumber: orderNumber,
		Parcels:     parcels,
	}
	payload.ShipWith.Type = "shipping_option_code"
	payload.ShipWith.Properties.ShippingOptionCode = req.Offer.ShippingOptionCode
	return payload
}

func (a *SendCloudV3Adapter) buildParcel(req shipping.ShipmentRequest, unit shipping.Parcel) v3Parcel {
	weight := weightOf(unit.Weight)
	return v3Parcel{
		Weight:     weight,
		Dimensions: dimensionsOf(unit.Length, unit.Width, unit.Height),
		ParcelItems: []v3ParcelItem{{
			Description: req.DescriptionOfContent,
			Quantity:    1,
			Weight:      weight,
			Price: v3Money{
				Value:    shipping.RoundMoney(req.ValueOfGoods).StringFixed(shipping.CurrencyDecimals),
				Currency: firstNonEmpty(req.Offer.Currency, defaultCurrency),
			},
		}},
	}
}

// ---------------------------------------------------------------------------
// Labels and tracking
// ---------------------------------------------------------------------------

// GetLabel returns the label document link of every parcel in shipmentID
func (a *SendCloudV3Adapter) GetLabel(ctx context.Context, shipmentID string) (*shipping.LabelSet, error) {
	ids := shipping.SplitIDs(shipmentID)
	if len(ids) == 0 {
		return nil, shipping.ErrEmptyShipmentID
	}
	if !a.IsEnabled() {
		return &shipping.LabelSet{ShipmentID: shipmentID}, nil
	}

	set := &shipping.LabelSet{ShipmentID: shipmentID, URLs: make([]string, 0, len(ids))}
	for _, id := range ids {
		parcel, err := a.getParcel(ctx, "get_label", id)
		if err != nil {
			return nil, err
		}
		if link := parcel.labelLink(); link != "" {
			set.URLs = append(set.URLs, link)
		}
	}
	if len(set.URLs) == 0 {
		return nil, labelNotFound(shipmentID)
	}
	return set, nil
}

// DownloadLabel fetches a label document from SendCloud
func (a *SendCloudV3Adapter) DownloadLabel(ctx context.Context, labelURL string) ([]byte, error) {
	return a.client.downloadLabel(ctx, labelURL)
}

// GetTrackingData reads tracking for every parcel in shipmentID
func (a *SendCloudV3Adapter) GetTrackingData(ctx context.Context, shipmentID string) (*shipping.TrackingInfo, error) {
	ids := shipping.SplitIDs(shipmentID)
	if len(ids) == 0 {
		return nil, shipping.ErrEmptyShipmentID
	}
	if !a.IsEnabled() {
		return &shipping.TrackingInfo{}, nil
	}

	parcels := make([]shipping.ParcelTracking, 0, len(ids))
	for _, id := range ids {
		parcel, err := a.getParcel(ctx, "get_parcel", id)
		if err != nil {
			return nil, err
		}
		status := firstNonEmpty(parcel.Status.Message, parcel.Status.Code)
		info := status
		if parcel.Status.Code != "" && parcel.Status.Code != status {
			info = status + " (" + parcel.Status.Code + ")"
		}
		parcels = append(parcels, shipping.ParcelTracking{
			TrackingNumber: parcel.TrackingNumber,
			Status:         status,
			StatusInfo:     info,
			TrackingURL:    parcel.TrackingURL,
		})
	}
	return shipping.AggregateTracking(parcels), nil
}

func (a *SendCloudV3Adapter) getParcel(ctx context.Context, operation, id string) (v3ParcelDetails, error) {
	var resp v3ParcelResponse
	err := a.client.do(ctx, apiRequest{
		operation: operation,
		method:    http.MethodGet,
		path:      "/api/v3/parcels/" + url.PathEscape(id),
	}, decodeV3Error, &resp)
	return resp.Data, err
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func weightOf(w decimal.Decimal) v3Measure {
	return v3Measure{
		Value: shipping.RoundWeight(w).StringFixed(shipping.WeightDecimals),
		Unit:  weightUnit,
	}
}

// dimensionsOf returns nil unless all three dimensions are known
func dimensionsOf(length, width, height decimal.Decimal) *v3Dimensions {
	if !length.IsPositive() || !width.IsPositive() || !height.IsPositive() {
		return nil
	}
	return &v3Dimensions{
		Length: length.String(),
		Width:  width.String(),
		Height: height.String(),
		Unit:   dimensionUnit,
	}
}

var _ shipping.CarrierGateway = (*SendCloudV3Adapter)(nil)
