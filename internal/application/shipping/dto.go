package shipping

import (
	"time"

	"github.com/erp/shipping/internal/domain/shipping"
	"github.com/shopspring/decimal"
)

// =============================================================================
// Rate DTOs
// =============================================================================

// FetchRatesRequest represents a rate lookup for a shipment being prepared
type FetchRatesRequest struct {
	PickupAddress   shipping.Address `json:"pickup_address"`
	DeliveryAddress shipping.Address `json:"delivery_address"`
	// ShipmentParcel is the ERP's serialized parcel list
	ShipmentParcel string `json:"shipment_parcel" binding:"required"`
}

// RatesResponse lists offers, cheapest first
type RatesResponse struct {
	Offers []shipping.ShippingOffer `json:"offers"`
	Alerts []shipping.Alert         `json:"alerts,omitempty"`
}

// =============================================================================
// Shipment DTOs
// =============================================================================

// CreateShipmentRequest represents a request to book a shipment with the selected offer
type CreateShipmentRequest struct {
	ShipmentName         string                 `json:"shipment" binding:"required,max=140"`
	PickupAddress        shipping.Address       `json:"pickup_address"`
	PickupContact        shipping.Contact       `json:"pickup_contact"`
	DeliveryAddress      shipping.Address       `json:"delivery_address"`
	DeliveryContact      shipping.Contact       `json:"delivery_contact"`
	DeliveryCompanyName  string                 `json:"delivery_company_name"`
	ServiceInfo          shipping.ShippingOffer `json:"service_info"`
	ShipmentParcel       string                 `json:"shipment_parcel" binding:"required"`
	DescriptionOfContent string                 `json:"description_of_content" binding:"max=500"`
	ValueOfGoods         decimal.Decimal        `json:"value_of_goods"`
}

// toDomain converts the DTO using already parsed parcels
func (r CreateShipmentRequest) toDomain(parcels []shipping.Parcel) shipping.ShipmentRequest {
	return shipping.ShipmentRequest{
		ShipmentName:         r.ShipmentName,
		PickupAddress:        r.PickupAddress,
		PickupContact:        r.PickupContact,
		DeliveryAddress:      r.DeliveryAddress,
		DeliveryContact:      r.DeliveryContact,
		DeliveryCompanyName:  r.DeliveryCompanyName,
		Offer:                r.ServiceInfo,
		Parcels:              parcels,
		DescriptionOfContent: r.DescriptionOfContent,
		ValueOfGoods:         r.ValueOfGoods,
	}
}

// CreateShipmentResponse carries the booked shipment, if any
type CreateShipmentResponse struct {
	Result   *shipping.ShipmentResult `json:"result,omitempty"`
	Failures []shipping.ParcelFailure `json:"failures,omitempty"`
	Alerts   []shipping.Alert         `json:"alerts,omitempty"`
}

// ShipmentRecordResponse represents the shipping fields stored for a shipment
type ShipmentRecordResponse struct {
	ID                 string     `json:"id"`
	ShipmentName       string     `json:"shipment"`
	Status             string     `json:"status"`
	DeliveryType       string     `json:"delivery_type"`
	ParcelService      string     `json:"parcel_service"`
	ParcelServiceType  string     `json:"parcel_service_type"`
	ShipmentID         string     `json:"shipment_id"`
	ShipmentAmount     string     `json:"shipment_amount"`
	TrackingNumber     string     `json:"tracking_number"`
	TrackingURL        string     `json:"tracking_url"`
	TrackingStatus     string     `json:"tracking_status"`
	TrackingStatusInfo string     `json:"tracking_status_info"`
	LabelKeys          []string   `json:"label_keys,omitempty"`
	LastTrackedAt      *time.Time `json:"last_tracked_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func toRecordResponse(r *shipping.ShipmentRecord) *ShipmentRecordResponse {
	return &ShipmentRecordResponse{
		ID:                 r.ID.String(),
		ShipmentName:       r.ShipmentName,
		Status:             string(r.Status),
		DeliveryType:       r.DeliveryType,
		ParcelService:      r.ParcelService,
		ParcelServiceType:  r.ParcelServiceType,
		ShipmentID:         r.ShipmentID,
		ShipmentAmount:     r.ShipmentAmount.StringFixed(shipping.CurrencyDecimals),
		TrackingNumber:     r.TrackingNumber,
		TrackingURL:        r.TrackingURL,
		TrackingStatus:     r.TrackingStatus,
		TrackingStatusInfo: r.TrackingStatusInfo,
		LabelKeys:          r.LabelKeys,
		LastTrackedAt:      r.LastTrackedAt,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

// =============================================================================
// Label DTOs
// =============================================================================

// LabelsResponse lists the carrier label URLs of a shipment
type LabelsResponse struct {
	ShipmentID string           `json:"shipment_id"`
	LabelURLs  []string         `json:"label_urls"`
	Alerts     []shipping.Alert `json:"alerts,omitempty"`
}

// StoredLabel is a label document copied to object storage
type StoredLabel struct {
	StorageKey  string    `json:"storage_key"`
	DownloadURL string    `json:"download_url"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// StoreLabelsResponse lists the stored label documents of a shipment
type StoreLabelsResponse struct {
	ShipmentName string           `json:"shipment"`
	Labels       []StoredLabel    `json:"labels"`
	Alerts       []shipping.Alert `json:"alerts,omitempty"`
}

// =============================================================================
// Tracking DTOs
// =============================================================================

// TrackingResponse carries the tracking fields written to the shipment
type TrackingResponse struct {
	ShipmentName string                 `json:"shipment"`
	Status       string                 `json:"status"`
	Tracking     *shipping.TrackingInfo `json:"tracking,omitempty"`
	Alerts       []shipping.Alert       `json:"alerts,omitempty"`
}

// RefreshResult summarizes a tracking refresh run
type RefreshResult struct {
	Checked   int              `json:"checked"`
	Updated   int              `json:"updated"`
	Completed int              `json:"completed"`
	Failed    int              `json:"failed"`
	Alerts    []shipping.Alert `json:"alerts,omitempty"`
}
