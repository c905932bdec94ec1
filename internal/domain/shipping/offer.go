package shipping

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ShippingOffer is one carrier service returned by a rate lookup.
// Offers are never persisted.
type ShippingOffer struct {
	ServiceProvider string `json:"service_provider"`
	// Carrier is the display form of the carrier name (see DisplayCarrier)
	Carrier     string `json:"carrier"`
	ServiceName string `json:"service_name"`
	// ServiceID is the shipping method ID (API v2)
	ServiceID string `json:"service_id,omitempty"`
	// ShippingOptionCode is the shipping option code (API v3)
	ShippingOptionCode string `json:"shipping_option_code,omitempty"`
	// TotalPrice is the unit price multiplied by the number of packages
	TotalPrice decimal.Decimal `json:"total_price"`
	Currency   string          `json:"currency,omitempty"`
	// Multicollo is set when the service accepts several parcels in one shipment
	Multicollo bool `json:"multicollo"`
}

// Validate checks that the offer identifies a carrier service.
func (o ShippingOffer) Validate() error {
	if strings.TrimSpace(o.Carrier) == "" {
		return fmt.Errorf("%w: carrier is required", ErrInvalidOffer)
	}
	if strings.TrimSpace(o.ServiceID) == "" && strings.TrimSpace(o.ShippingOptionCode) == "" {
		return fmt.Errorf("%w: service id or shipping option code is required", ErrInvalidOffer)
	}
	if o.TotalPrice.IsNegative() {
		return fmt.Errorf("%w: total price cannot be negative", ErrInvalidOffer)
	}
	return nil
}

// RateRequest is the input of a rate lookup.
type RateRequest struct {
	// PickupAddress is only used by API v3 quotes
	PickupAddress   Address
	DeliveryAddress Address
	Parcels         []Parcel
}

// Validate checks the destination and the parcel list.
func (r RateRequest) Validate() error {
	if err := r.DeliveryAddress.Validate(); err != nil {
		return fmt.Errorf("delivery address: %w", err)
	}
	return ValidateParcels(r.Parcels)
}
