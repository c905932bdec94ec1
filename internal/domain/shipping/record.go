package shipping

import (
	"context"
	"strings"
	"time"

	"github.com/erp/shipping/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// ShipmentStatus is the lifecycle state of a shipment record.
type ShipmentStatus string

const (
	// ShipmentStatusBooked means the carrier accepted at least one parcel
	ShipmentStatusBooked ShipmentStatus = "Booked"
	// ShipmentStatusCompleted means every parcel reached a final tracking status
	ShipmentStatusCompleted ShipmentStatus = "Completed"
)

// finalTrackingStatuses are carrier status messages after which tracking stops.
var finalTrackingStatuses = map[string]struct{}{
	"delivered":          {},
	"cancelled":          {},
	"canceled":           {},
	"returned to sender": {},
}

// IsFinalTrackingStatus reports whether every joined part of status is final.
func IsFinalTrackingStatus(status string) bool {
	parts := SplitIDs(status)
	if len(parts) == 0 {
		return false
	}
	for _, p := range parts {
		if _, ok := finalTrackingStatuses[strings.ToLower(p)]; !ok {
			return false
		}
	}
	return true
}

// ShipmentRecord holds the shipping fields the ERP keeps per shipment:
// delivery type, parcel service, parcel service type and the tracking fields.
type ShipmentRecord struct {
	shared.BaseEntity
	// ShipmentName is the ERP shipment document name
	ShipmentName string
	Status       ShipmentStatus
	// DeliveryType is the service provider
	DeliveryType string
	// ParcelService is the carrier
	ParcelService string
	// ParcelServiceType is the carrier service
	ParcelServiceType  string
	ShipmentID         string
	ShipmentAmount     decimal.Decimal
	TrackingNumber     string
	TrackingURL        string
	TrackingStatus     string
	TrackingStatusInfo string
	// LabelKeys are object storage keys of stored label documents
	LabelKeys     []string
	LastTrackedAt *time.Time
}

// NewShipmentRecord creates a booked record from a creation result.
func NewShipmentRecord(shipmentName string, result *ShipmentResult) (*ShipmentRecord, error) {
	if strings.TrimSpace(shipmentName) == "" {
		return nil, ErrEmptyShipmentName
	}
	if result == nil || strings.TrimSpace(result.ShipmentID) == "" {
		return nil, ErrEmptyShipmentID
	}
	return &ShipmentRecord{
		BaseEntity:        shared.NewBaseEntity(),
		ShipmentName:      shipmentName,
		Status:            ShipmentStatusBooked,
		DeliveryType:      result.ServiceProvider,
		ParcelService:     result.Carrier,
		ParcelServiceType: result.CarrierService,
		ShipmentID:        result.ShipmentID,
		ShipmentAmount:    result.ShipmentAmount,
		TrackingNumber:    result.AWBNumber,
		TrackingURL:       result.TrackingURL,
	}, nil
}

// ApplyTracking writes the latest tracking fields onto the record.
// The record is completed once every parcel reaches a final status.
func (r *ShipmentRecord) ApplyTracking(info *TrackingInfo, at time.Time) {
	if info == nil {
		return
	}
	if info.AWBNumber != "" {
		r.TrackingNumber = info.AWBNumber
	}
	if info.TrackingURL != "" {
		r.TrackingURL = info.TrackingURL
	}
	r.TrackingStatus = info.TrackingStatus
	r.TrackingStatusInfo = info.TrackingStatusInfo
	r.LastTrackedAt = &at
	r.Touch(at)
	if IsFinalTrackingStatus(info.TrackingStatus) {
		r.Status = ShipmentStatusCompleted
	}
}

// AttachLabels records the storage keys of the shipment's labels.
func (r *ShipmentRecord) AttachLabels(keys []string) {
	r.LabelKeys = append([]string(nil), keys...)
	r.Touch(time.Now())
}

// IsOpen reports whether the shipment still needs tracking updates.
func (r *ShipmentRecord) IsOpen() bool {
	return r.Status != ShipmentStatusCompleted && r.ShipmentID != ""
}

// ShipmentRecordRepository persists shipment records.
type ShipmentRecordRepository interface {
	// FindByShipmentName returns shared.ErrNotFound when no record exists
	FindByShipmentName(ctx context.Context, shipmentName string) (*ShipmentRecord, error)
	// Save inserts or updates the record
	Save(ctx context.Context, record *ShipmentRecord) error
	// FindOpen returns records that are not completed, oldest tracked first
	FindOpen(ctx context.Context, limit int) ([]*ShipmentRecord, error)
}
