package shipping

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// IDSeparator joins multiple carrier identifiers into one ERP field.
const IDSeparator = ", "

// JoinIDs joins identifiers with IDSeparator, keeping their order.
func JoinIDs(ids []string) string {
	return strings.Join(ids, IDSeparator)
}

// SplitIDs splits a joined identifier field, trimming blanks and dropping
// empty entries.
func SplitIDs(joined string) []string {
	parts := strings.Split(joined, ",")
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			ids = append(ids, p)
		}
	}
	return ids
}

// ShipmentRequest holds everything needed to announce a shipment.
type ShipmentRequest struct {
	// ShipmentName is the ERP shipment document name
	ShipmentName        string
	PickupAddress       Address
	PickupContact       Contact
	DeliveryAddress     Address
	DeliveryContact     Contact
	DeliveryCompanyName string
	Offer               ShippingOffer
	Parcels             []Parcel
	// DescriptionOfContent is declared on every parcel item
	DescriptionOfContent string
	ValueOfGoods         decimal.Decimal
}

// Validate checks the request before any carrier call is made.
func (r ShipmentRequest) Validate() error {
	if strings.TrimSpace(r.ShipmentName) == "" {
		return ErrEmptyShipmentName
	}
	if err := r.DeliveryAddress.Validate(); err != nil {
		return fmt.Errorf("delivery address: %w", err)
	}
	if err := ValidatePhone(r.DeliveryContact.Phone); err != nil {
		return fmt.Errorf("delivery contact: %w", err)
	}
	if err := r.Offer.Validate(); err != nil {
		return err
	}
	return ValidateParcels(r.Parcels)
}

// CompanyName returns the delivery company name, falling back to the
// delivery address title.
func (r ShipmentRequest) CompanyName() string {
	if name := strings.TrimSpace(r.DeliveryCompanyName); name != "" {
		return name
	}
	return r.DeliveryAddress.AddressTitle
}

// ParcelReference returns the order number used for the index-th physical
// package (1-based).
func (r ShipmentRequest) ParcelReference(index int) string {
	return fmt.Sprintf("%s-%d", r.ShipmentName, index)
}

// ShipmentResult is written back to the ERP shipment after creation.
type ShipmentResult struct {
	ServiceProvider string `json:"service_provider"`
	// ShipmentID joins the carrier parcel IDs with IDSeparator
	ShipmentID string `json:"shipment_id"`
	// Carrier is the submission form of the carrier name (see SubmitCarrier)
	Carrier        string          `json:"carrier"`
	CarrierService string          `json:"carrier_service"`
	ShipmentAmount decimal.Decimal `json:"shipment_amount"`
	// AWBNumber joins the tracking numbers with IDSeparator
	AWBNumber   string `json:"awb_number"`
	TrackingURL string `json:"tracking_url,omitempty"`
}

// ParcelFailure describes one package the carrier rejected.
type ParcelFailure struct {
	Reference string `json:"reference"`
	Message   string `json:"message"`
}

// ShipmentOutcome is the adapter-level result of a creation call.
// Result is nil when no package was accepted.
type ShipmentOutcome struct {
	Result   *ShipmentResult
	Failures []ParcelFailure
}

// CreatedParcel is one package accepted by the carrier.
type CreatedParcel struct {
	ID             string
	TrackingNumber string
	TrackingURL    string
}

// NewShipmentResult aggregates accepted packages, in order, into a result.
// It returns nil when parcels is empty.
func NewShipmentResult(req ShipmentRequest, parcels []CreatedParcel) *ShipmentResult {
	if len(parcels) == 0 {
		return nil
	}
	ids := make([]string, 0, len(parcels))
	numbers := make([]string, 0, len(parcels))
	urls := make([]string, 0, len(parcels))
	for _, p := range parcels {
		ids = append(ids, p.ID)
		numbers = append(numbers, p.TrackingNumber)
		urls = append(urls, p.TrackingURL)
	}
	return &ShipmentResult{
		ServiceProvider: ProviderSendCloud,
		ShipmentID:      JoinIDs(ids),
		Carrier:         SubmitCarrier(req.Offer.Carrier),
		CarrierService:  req.Offer.ServiceName,
		ShipmentAmount:  req.Offer.TotalPrice,
		AWBNumber:       JoinIDs(numbers),
		TrackingURL:     JoinIDs(urls),
	}
}

// LabelSet holds the label URLs of a shipment, in shipment ID order.
type LabelSet struct {
	ShipmentID string   `json:"shipment_id"`
	URLs       []string `json:"label_urls"`
}

// ParcelTracking is the tracking state of a single carrier parcel.
type ParcelTracking struct {
	TrackingNumber string
	Status         string
	StatusInfo     string
	TrackingURL    string
}

// TrackingInfo holds the tracking fields written back to the ERP.
// Each field joins per-parcel values with IDSeparator in shipment ID order.
type TrackingInfo struct {
	AWBNumber          string `json:"awb_number"`
	TrackingStatus     string `json:"tracking_status"`
	TrackingStatusInfo string `json:"tracking_status_info"`
	TrackingURL        string `json:"tracking_url"`
}

// AggregateTracking joins per-parcel tracking into parallel fields.
func AggregateTracking(parcels []ParcelTracking) *TrackingInfo {
	numbers := make([]string, 0, len(parcels))
	statuses := make([]string, 0, len(parcels))
	infos := make([]string, 0, len(parcels))
	urls := make([]string, 0, len(parcels))
	for _, p := range parcels {
		numbers = append(numbers, p.TrackingNumber)
		statuses = append(statuses, p.Status)
		infos = append(infos, p.StatusInfo)
		urls = append(urls, p.TrackingURL)
	}
	return &TrackingInfo{
		AWBNumber:          JoinIDs(numbers),
		TrackingStatus:     JoinIDs(statuses),
		TrackingStatusInfo: JoinIDs(infos),
		TrackingURL:        JoinIDs(urls),
	}
}
