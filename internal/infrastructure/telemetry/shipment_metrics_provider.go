package telemetry

import (
	"context"

	"gorm.io/gorm"
)

// GormShipmentCountProvider implements OpenShipmentProvider using GORM.
// It queries the shipment_records table directly for aggregated counts.
type GormShipmentCountProvider struct {
	db *gorm.DB
}

// NewGormShipmentCountProvider creates a new GormShipmentCountProvider.
func NewGormShipmentCountProvider(db *gorm.DB) *GormShipmentCountProvider {
	return &GormShipmentCountProvider{db: db}
}

// CountShipmentsByStatus returns the number of shipment records per status.
func (p *GormShipmentCountProvider) CountShipmentsByStatus(ctx context.Context) (map[string]int64, error) {
	type result struct {
		Status string `gorm:"column:status"`
		Total  int64  `gorm:"column:total"`
	}

	var results []result
	err := p.db.WithContext(ctx).
		Table("shipment_records").
		Select("status, COUNT(*) as total").
		Where("deleted_at IS NULL").
		Group("status").
		Find(&results).Error
	if err != nil {
		return nil, err
	}

	m := make(map[string]int64, len(results))
	for _, r := range results {
		m[r.Status] = r.Total
	}
	return m, nil
}
