package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/shipping/internal/domain/shared"
	"github.com/erp/shipping/internal/domain/shipping"
	"github.com/erp/shipping/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var _ shipping.ShipmentRecordRepository = (*GormShipmentRecordRepository)(nil)

// GormShipmentRecordRepository implements ShipmentRecordRepository using GORM
type GormShipmentRecordRepository struct {
	db *gorm.DB
}

// NewGormShipmentRecordRepository creates a new GormShipmentRecordRepository
func NewGormShipmentRecordRepository(db *gorm.DB) *GormShipmentRecordRepository {
	return &GormShipmentRecordRepository{db: db}
}

// FindByShipmentName finds the record of an ERP shipment
func (r *GormShipmentRecordRepository) FindByShipmentName(ctx context.Context, shipmentName string) (*shipping.ShipmentRecord, error) {
	var model models.ShipmentRecordModel
	if err := r.db.WithContext(ctx).
		Where("shipment_name = ?", shipmentName).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Save upserts the record keyed by shipment name
func (r *GormShipmentRecordRepository) Save(ctx context.Context, record *shipping.ShipmentRecord) error {
	model := models.ShipmentRecordModelFromDomain(record)
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "shipment_name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status",
			"delivery_type",
			"parcel_service",
			"parcel_service_type",
			"shipment_id",
			"shipment_amount",
			"tracking_number",
			"tracking_url",
			"tracking_status",
			"tracking_status_info",
			"label_keys",
			"last_tracked_at",
			"updated_at",
		}),
	}).Create(model).Error
	if err != nil {
		return fmt.Errorf("failed to save shipment record %s: %w", record.ShipmentName, err)
	}
	return nil
}

// FindOpen returns booked records, never tracked first, then oldest tracked
func (r *GormShipmentRecordRepository) FindOpen(ctx context.Context, limit int) ([]*shipping.ShipmentRecord, error) {
	var rows []models.ShipmentRecordModel
	query := r.db.WithContext(ctx).
		Where("status <> ?", string(shipping.ShipmentStatusCompleted)).
		Where("shipment_id <> ''").
		Order("last_tracked_at IS NOT NULL, last_tracked_at ASC, created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	records := make([]*shipping.ShipmentRecord, len(rows))
	for i := range rows {
		records[i] = rows[i].ToDomain()
	}
	return records, nil
}
