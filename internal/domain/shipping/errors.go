package shipping

import "errors"

// ---------------------------------------------------------------------------
// Carrier Errors
// ---------------------------------------------------------------------------

var (
	ErrCarrierNotConfigured   = errors.New("shipping: carrier not configured")
	ErrCarrierDisabled        = errors.New("shipping: carrier integration disabled")
	ErrCarrierUnavailable     = errors.New("shipping: carrier temporarily unavailable")
	ErrCarrierRequestFailed   = errors.New("shipping: carrier request failed")
	ErrCarrierInvalidResponse = errors.New("shipping: invalid carrier response")
	ErrCarrierLabelNotFound   = errors.New("shipping: label not found")
	ErrLabelURLNotAllowed     = errors.New("shipping: label URL host is not the carrier host")
)

// ---------------------------------------------------------------------------
// Input Errors
// ---------------------------------------------------------------------------

var (
	ErrInvalidParcel      = errors.New("shipping: invalid parcel")
	ErrInvalidParcelList  = errors.New("shipping: invalid parcel list")
	ErrInvalidAddress     = errors.New("shipping: invalid address")
	ErrInvalidPhone       = errors.New("shipping: invalid phone number")
	ErrInvalidOffer       = errors.New("shipping: invalid shipping offer")
	ErrEmptyShipmentID    = errors.New("shipping: shipment ID is required")
	ErrEmptyShipmentName  = errors.New("shipping: shipment name is required")
	ErrShipmentNotFound   = errors.New("shipping: shipment record not found")
	ErrShipmentNotCreated = errors.New("shipping: shipment has not been created at the carrier")
)
