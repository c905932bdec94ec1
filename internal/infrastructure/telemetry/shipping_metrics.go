package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// ShippingMetrics tracks carrier API traffic, shipment bookings and the
// number of shipments still waiting for a final tracking status.
type ShippingMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	// Carrier API metrics
	carrierRequestTotal    *Counter
	carrierRequestDuration *DurationHistogram

	// Shipment metrics
	shipmentCreatedTotal *Counter
	parcelFailedTotal    *Counter
	trackingUpdateTotal  *Counter

	// Gauge metrics (point-in-time values)
	openShipments *Gauge

	stopChan    chan struct{}
	stopOnce    sync.Once
	collectOnce sync.Once

	openShipmentProvider OpenShipmentProvider
}

// OpenShipmentProvider reports shipment counts for periodic collection.
// It keeps the telemetry layer independent of the persistence package.
type OpenShipmentProvider interface {
	// CountShipmentsByStatus returns the number of shipment records per status
	CountShipmentsByStatus(ctx context.Context) (map[string]int64, error)
}

// ShippingMetricsConfig holds configuration for shipping metrics.
type ShippingMetricsConfig struct {
	Meter                metric.Meter
	Logger               *zap.Logger
	OpenShipmentProvider OpenShipmentProvider
}

// NewShippingMetrics creates a new ShippingMetrics instance.
func NewShippingMetrics(cfg ShippingMetricsConfig) (*ShippingMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	sm := &ShippingMetrics{
		meter:                cfg.Meter,
		logger:               logger,
		stopChan:             make(chan struct{}),
		openShipmentProvider: cfg.OpenShipmentProvider,
	}

	var err error

	sm.carrierRequestTotal, err = NewCounter(
		cfg.Meter,
		"shipping_carrier_requests_total",
		"Total number of carrier API requests",
		"{requests}",
	)
	if err != nil {
		return nil, err
	}

	sm.carrierRequestDuration, err = NewDurationHistogram(
		cfg.Meter,
		"shipping_carrier_request_duration_seconds",
		"Carrier API request duration",
		CarrierDurationBuckets,
	)
	if err != nil {
		return nil, err
	}

	sm.shipmentCreatedTotal, err = NewCounter(
		cfg.Meter,
		"shipping_shipments_created_total",
		"Total number of shipments booked with a carrier",
		"{shipments}",
	)
	if err != nil {
		return nil, err
	}

	sm.parcelFailedTotal, err = NewCounter(
		cfg.Meter,
		"shipping_parcels_failed_total",
		"Total number of parcels rejected by a carrier",
		"{parcels}",
	)
	if err != nil {
		return nil, err
	}

	sm.trackingUpdateTotal, err = NewCounter(
		cfg.Meter,
		"shipping_tracking_updates_total",
		"Total number of tracking refreshes",
		"{updates}",
	)
	if err != nil {
		return nil, err
	}

	sm.openShipments, err = NewGauge(
		cfg.Meter,
		"shipping_shipments",
		"Current number of shipment records by status",
		"{shipments}",
	)
	if err != nil {
		return nil, err
	}

	return sm, nil
}

// =============================================================================
// Carrier Metrics
// =============================================================================

// Outcome labels used on counters.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

func outcomeOf(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}

// RecordCarrierRequest records one carrier API round trip.
// A nil receiver is a no-op so adapters can run without metrics.
func (sm *ShippingMetrics) RecordCarrierRequest(ctx context.Context, provider, apiVersion, operation string, duration time.Duration, err error) {
	if sm == nil {
		return
	}
	attrs := []attribute.KeyValue{
		AttrProvider.String(provider),
		AttrAPIVersion.String(apiVersion),
		AttrOperation.String(operation),
	}
	sm.carrierRequestDuration.Record(ctx, duration, attrs...)
	sm.carrierRequestTotal.Inc(ctx, append(attrs, AttrOutcome.String(outcomeOf(err)))...)
}

// =============================================================================
// Shipment Metrics
// =============================================================================

// RecordShipmentCreated records a booked shipment and its rejected parcels.
func (sm *ShippingMetrics) RecordShipmentCreated(ctx context.Context, provider, carrier string, failedParcels int) {
	if sm == nil {
		return
	}
	sm.shipmentCreatedTotal.Inc(ctx,
		AttrProvider.String(provider),
		AttrCarrier.String(carrier),
	)
	if failedParcels > 0 {
		sm.RecordParcelFailures(ctx, provider, failedParcels)
	}
}

// RecordParcelFailures records parcels the carrier refused.
func (sm *ShippingMetrics) RecordParcelFailures(ctx context.Context, provider string, count int) {
	if sm == nil || count <= 0 {
		return
	}
	sm.parcelFailedTotal.Add(ctx, int64(count), AttrProvider.String(provider))
}

// RecordTrackingUpdate records a tracking refresh for one shipment.
func (sm *ShippingMetrics) RecordTrackingUpdate(ctx context.Context, provider string, err error) {
	if sm == nil {
		return
	}
	sm.trackingUpdateTotal.Inc(ctx,
		AttrProvider.String(provider),
		AttrOutcome.String(outcomeOf(err)),
	)
}

// RecordShipmentCount records the current shipment count for a status.
func (sm *ShippingMetrics) RecordShipmentCount(ctx context.Context, status string, count int64) {
	if sm == nil {
		return
	}
	sm.openShipments.Record(ctx, count, AttrShipmentStatus.String(status))
}

// =============================================================================
// Periodic Collection
// =============================================================================

// StartPeriodicCollection starts periodic collection of gauge metrics.
// This is non-blocking - use Stop() to stop collection.
func (sm *ShippingMetrics) StartPeriodicCollection(ctx context.Context, interval time.Duration) {
	sm.collectOnce.Do(func() {
		if interval <= 0 {
			interval = 5 * time.Minute
		}

		go sm.runPeriodicCollection(ctx, interval)
	})
}

func (sm *ShippingMetrics) runPeriodicCollection(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Collect immediately on start
	sm.collectShipmentCounts(ctx)

	for {
		select {
		case <-sm.stopChan:
			sm.logger.Info("Stopping periodic shipping metrics collection")
			return
		case <-ctx.Done():
			sm.logger.Info("Context cancelled, stopping periodic shipping metrics collection")
			return
		case <-ticker.C:
			sm.collectShipmentCounts(ctx)
		}
	}
}

func (sm *ShippingMetrics) collectShipmentCounts(ctx context.Context) {
	if sm.openShipmentProvider == nil {
		sm.logger.Debug("No shipment provider configured, skipping shipment metrics collection")
		return
	}

	counts, err := sm.openShipmentProvider.CountShipmentsByStatus(ctx)
	if err != nil {
		sm.logger.Warn("Failed to count shipments for metrics", zap.Error(err))
		return
	}
	for status, count := range counts {
		sm.RecordShipmentCount(ctx, status, count)
	}
}

// Stop stops the periodic collection.
func (sm *ShippingMetrics) Stop() {
	if sm == nil {
		return
	}
	sm.stopOnce.Do(func() {
		close(sm.stopChan)
	})
}

// =============================================================================
// Error Types
// =============================================================================

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewShippingMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
