package shipping

import (
	"context"
	"time"
)

// CarrierGateway is the port implemented by carrier API adapters.
// Every method issues its carrier calls sequentially.
type CarrierGateway interface {
	// Provider returns the service provider name, e.g. "SendCloud"
	Provider() string
	// APIVersion returns the carrier API generation the adapter speaks
	APIVersion() string
	// IsEnabled reports whether the integration is enabled and has credentials
	IsEnabled() bool

	// GetAvailableServices returns the offers matching the destination and parcels
	GetAvailableServices(ctx context.Context, req RateRequest) ([]ShippingOffer, error)
	// CreateShipment announces the parcels of a shipment at the carrier
	CreateShipment(ctx context.Context, req ShipmentRequest) (*ShipmentOutcome, error)
	// GetLabel returns label URLs for a possibly joined shipment ID
	GetLabel(ctx context.Context, shipmentID string) (*LabelSet, error)
	// DownloadLabel fetches the raw label document
	DownloadLabel(ctx context.Context, labelURL string) ([]byte, error)
	// GetTrackingData returns joined tracking fields for a possibly joined shipment ID
	GetTrackingData(ctx context.Context, shipmentID string) (*TrackingInfo, error)
}

// LabelStorage stores downloaded label documents.
type LabelStorage interface {
	Upload(ctx context.Context, storageKey string, data []byte, contentType string) error
	GenerateDownloadURL(ctx context.Context, storageKey string, expiresIn time.Duration) (string, time.Time, error)
}
