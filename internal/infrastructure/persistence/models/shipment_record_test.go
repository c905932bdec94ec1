package models

import (
	"testing"
	"time"

	"github.com/erp/shipping/internal/domain/shipping"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShipmentRecordModel_RoundTrip(t *testing.T) {
	record, err := shipping.NewShipmentRecord("SHIP-0001", &shipping.ShipmentResult{
		ServiceProvider: "SendCloud",
		Carrier:         "POSTNL",
		CarrierService:  "PostNL Standard",
		ShipmentID:      "101, 102",
		ShipmentAmount:  decimal.RequireFromString("13.90"),
		AWBNumber:       "3SABC1, 3SABC2",
		TrackingURL:     "https://tracking.example/1, https://tracking.example/2",
	})
	require.NoError(t, err)
	tracked := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	record.ApplyTracking(&shipping.TrackingInfo{TrackingStatus: "Delivered, Delivered"}, tracked)
	record.AttachLabels([]string{"labels/SHIP-0001/0.pdf", "labels/SHIP-0001/1.pdf"})

	m := ShipmentRecordModelFromDomain(record)
	assert.Equal(t, "shipment_records", m.TableName())
	assert.Equal(t, `["labels/SHIP-0001/0.pdf","labels/SHIP-0001/1.pdf"]`, m.LabelKeysJSON)
	assert.Equal(t, "Completed", m.Status)

	back := m.ToDomain()
	assert.Equal(t, record.ID, back.ID)
	assert.Equal(t, record.ShipmentID, back.ShipmentID)
	assert.True(t, record.ShipmentAmount.Equal(back.ShipmentAmount))
	assert.Equal(t, record.LabelKeys, back.LabelKeys)
	assert.Equal(t, shipping.ShipmentStatusCompleted, back.Status)
	require.NotNil(t, back.LastTrackedAt)
	assert.True(t, tracked.Equal(*back.LastTrackedAt))
}

func TestShipmentRecordModel_ToDomain_BadLabelJSON(t *testing.T) {
	m := &ShipmentRecordModel{ShipmentName: "SHIP-0002", Status: "Booked", LabelKeysJSON: "not json"}
	assert.Nil(t, m.ToDomain().LabelKeys)
}
