package models

import (
	"encoding/json"
	"time"

	"github.com/erp/shipping/internal/domain/shipping"
	"github.com/shopspring/decimal"
)

// ShipmentRecordModel is the persistence model for the ShipmentRecord domain entity.
type ShipmentRecordModel struct {
	BaseModel
	ShipmentName       string          `gorm:"type:varchar(140);not null;uniqueIndex:idx_shipment_records_name"`
	Status             string          `gorm:"type:varchar(20);not null;index:idx_shipment_records_status"`
	DeliveryType       string          `gorm:"type:varchar(50)"`
	ParcelService      string          `gorm:"type:varchar(100)"`
	ParcelServiceType  string          `gorm:"type:varchar(255)"`
	ShipmentID         string          `gorm:"type:text"`
	ShipmentAmount     decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	TrackingNumber     string          `gorm:"type:text"`
	TrackingURL        string          `gorm:"type:text"`
	TrackingStatus     string          `gorm:"type:text"`
	TrackingStatusInfo string          `gorm:"type:text"`
	LabelKeysJSON      string          `gorm:"type:text;column:label_keys"`
	LastTrackedAt      *time.Time      `gorm:"index:idx_shipment_records_last_tracked"`
}

// TableName returns the table name for GORM
func (ShipmentRecordModel) TableName() string {
	return "shipment_records"
}

// ToDomain converts the persistence model to a domain ShipmentRecord.
func (m *ShipmentRecordModel) ToDomain() *shipping.ShipmentRecord {
	record := &shipping.ShipmentRecord{
		BaseEntity:         m.BaseModel.ToDomain(),
		ShipmentName:       m.ShipmentName,
		Status:             shipping.ShipmentStatus(m.Status),
		DeliveryType:       m.DeliveryType,
		ParcelService:      m.ParcelService,
		ParcelServiceType:  m.ParcelServiceType,
		ShipmentID:         m.ShipmentID,
		ShipmentAmount:     m.ShipmentAmount,
		TrackingNumber:     m.TrackingNumber,
		TrackingURL:        m.TrackingURL,
		TrackingStatus:     m.TrackingStatus,
		TrackingStatusInfo: m.TrackingStatusInfo,
		LastTrackedAt:      m.LastTrackedAt,
	}

	if m.LabelKeysJSON != "" {
		var keys []string
		if err := json.Unmarshal([]byte(m.LabelKeysJSON), &keys); err == nil {
			record.LabelKeys = keys
		}
	}
	return record
}

// FromDomain populates the persistence model from a domain ShipmentRecord.
func (m *ShipmentRecordModel) FromDomain(r *shipping.ShipmentRecord) {
	m.FromDomainBaseEntity(r.BaseEntity)
	m.ShipmentName = r.ShipmentName
	m.Status = string(r.Status)
	m.DeliveryType = r.DeliveryType
	m.ParcelService = r.ParcelService
	m.ParcelServiceType = r.ParcelServiceType
	m.ShipmentID = r.ShipmentID
	m.ShipmentAmount = r.ShipmentAmount
	m.TrackingNumber = r.TrackingNumber
	m.TrackingURL = r.TrackingURL
	m.TrackingStatus = r.TrackingStatus
	m.TrackingStatusInfo = r.TrackingStatusInfo
	m.LastTrackedAt = r.LastTrackedAt

	m.LabelKeysJSON = ""
	if len(r.LabelKeys) > 0 {
		if data, err := json.Marshal(r.LabelKeys); err == nil {
			m.LabelKeysJSON = string(data)
		}
	}
}

// ShipmentRecordModelFromDomain creates a persistence model from a domain ShipmentRecord.
func ShipmentRecordModelFromDomain(r *shipping.ShipmentRecord) *ShipmentRecordModel {
	m := &ShipmentRecordModel{}
	m.FromDomain(r)
	return m
}
