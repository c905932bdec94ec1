package shipping

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/erp/shipping/internal/domain/shared"
	"github.com/erp/shipping/internal/domain/shipping"
	"github.com/erp/shipping/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// ErrLabelStorageNotConfigured is returned by StoreLabels when no object store is wired
var ErrLabelStorageNotConfigured = errors.New("shipping: label storage not configured")

const (
	labelContentType = "application/pdf"
	createKeyPrefix  = "shipping:create:"
)

// ServiceConfig holds the tunables of ShippingService
type ServiceConfig struct {
	// IdempotencyTTL is how long a shipment name stays locked after creation
	IdempotencyTTL time.Duration
	// LabelURLExpiry is the lifetime of presigned label download URLs
	LabelURLExpiry time.Duration
	// RefreshBatchSize caps the records checked by one tracking refresh
	RefreshBatchSize int
}

// DefaultServiceConfig returns the default service configuration
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		IdempotencyTTL:   shared.DefaultIdempotencyTTL,
		LabelURLExpiry:   time.Hour,
		RefreshBatchSize: 200,
	}
}

// ShippingService connects ERP shipments to one carrier gateway.
// Carrier failures are returned as alerts; only malformed input and
// storage failures are returned as errors.
type ShippingService struct {
	gateway     shipping.CarrierGateway
	records     shipping.ShipmentRecordRepository
	idempotency shared.IdempotencyStore
	labels      shipping.LabelStorage
	metrics     *telemetry.ShippingMetrics
	config      ServiceConfig
	logger      *zap.Logger
	now         func() time.Time
}

// ShippingServiceOption is a functional option for configuring ShippingService
type ShippingServiceOption func(*ShippingService)

// WithIdempotencyStore guards shipment creation against duplicate submissions
func WithIdempotencyStore(store shared.IdempotencyStore) ShippingServiceOption {
	return func(s *ShippingService) {
		s.idempotency = store
	}
}

// WithLabelStorage enables StoreLabels
func WithLabelStorage(storage shipping.LabelStorage) ShippingServiceOption {
	return func(s *ShippingService) {
		s.labels = storage
	}
}

// WithMetrics records shipment and tracking metrics
func WithMetrics(metrics *telemetry.ShippingMetrics) ShippingServiceOption {
	return func(s *ShippingService) {
		s.metrics = metrics
	}
}

// WithServiceConfig overrides DefaultServiceConfig
func WithServiceConfig(cfg ServiceConfig) ShippingServiceOption {
	return func(s *ShippingService) {
		s.config = cfg
	}
}

// WithClock sets the time source used for tracking timestamps
func WithClock(now func() time.Time) ShippingServiceOption {
	return func(s *ShippingService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewShippingService creates a new ShippingService
func NewShippingService(
	gateway shipping.CarrierGateway,
	records shipping.ShipmentRecordRepository,
	logger *zap.Logger,
	opts ...ShippingServiceOption,
) *ShippingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ShippingService{
		gateway: gateway,
		records: records,
		config:  DefaultServiceConfig(),
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.config.RefreshBatchSize <= 0 {
		s.config.RefreshBatchSize = DefaultServiceConfig().RefreshBatchSize
	}
	if s.config.LabelURLExpiry <= 0 {
		s.config.LabelURLExpiry = DefaultServiceConfig().LabelURLExpiry
	}
	return s
}

// =============================================================================
// Rates
// =============================================================================

// FetchShippingRates returns the carrier's offers for the parcels, cheapest first.
func (s *ShippingService) FetchShippingRates(ctx context.Context, req FetchRatesRequest) (*RatesResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "shipping", "fetch_rates")
	defer span.End()

	parcels, err := shipping.ParseParcels(req.ShipmentParcel)
	if err != nil {
		return nil, err
	}
	rateReq := shipping.RateRequest{
		PickupAddress:   req.PickupAddress,
		DeliveryAddress: req.DeliveryAddress,
		Parcels:         parcels,
	}
	if err := rateReq.Validate(); err != nil {
		return nil, err
	}

	resp := &RatesResponse{Offers: []shipping.ShippingOffer{}}
	if !s.gateway.IsEnabled() {
		resp.Alerts = append(resp.Alerts, s.disabledAlert())
		return resp, nil
	}

	telemetry.SetAttributes(span,
		telemetry.SpanAttrProvider, s.gateway.Provider(),
		telemetry.SpanAttrParcelCount, shipping.TotalParcelCount(parcels),
	)

	offers, err := s.gateway.GetAvailableServices(ctx, rateReq)
	if err != nil {
		telemetry.RecordError(span, err)
		s.logger.Error("Failed to fetch shipping rates",
			zap.String("provider", s.gateway.Provider()),
			zap.Error(err))
		resp.Alerts = append(resp.Alerts, shipping.ErrorAlert(fmt.Sprintf("fetching %s prices", s.gateway.Provider()), err))
		return resp, nil
	}

	sort.SliceStable(offers, func(i, j int) bool {
		return offers[i].TotalPrice.LessThan(offers[j].TotalPrice)
	})
	resp.Offers = offers
	telemetry.SetAttribute(span, telemetry.SpanAttrOfferCount, len(offers))
	return resp, nil
}

// =============================================================================
// Shipments
// =============================================================================

// CreateShipment books the shipment with the selected offer and stores the
// result. A shipment name that was already booked is not sent again.
func (s *ShippingService) CreateShipment(ctx context.Context, req CreateShipmentRequest) (*CreateShipmentResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "shipping", "create_shipment",
		telemetry.WithAttribute(telemetry.SpanAttrShipmentName, req.ShipmentName),
	)
	defer span.End()

	parcels, err := shipping.ParseParcels(req.ShipmentParcel)
	if err != nil {
		return nil, err
	}
	shipmentReq := req.toDomain(parcels)
	if err := shipmentReq.Validate(); err != nil {
		return nil, err
	}

	resp := &CreateShipmentResponse{}
	if !s.gateway.IsEnabled() {
		resp.Alerts = append(resp.Alerts, s.disabledAlert())
		return resp, nil
	}

	existing, err := s.records.FindByShipmentName(ctx, req.ShipmentName)
	switch {
	case err == nil && existing.ShipmentID != "":
		resp.Alerts = append(resp.Alerts, shipping.WarningAlert(
			"Shipment %s was already created (ID: %s)", req.ShipmentName, existing.ShipmentID))
		return resp, nil
	case err != nil && !errors.Is(err, shared.ErrNotFound):
		return nil, fmt.Errorf("failed to load shipment record: %w", err)
	}

	key := createKeyPrefix + req.ShipmentName
	acquired, err := s.acquire(ctx, key)
	if err != nil {
		return nil, err
	}
	if !acquired {
		resp.Alerts = append(resp.Alerts, shipping.WarningAlert(
			"Shipment %s is already being created", req.ShipmentName))
		return resp, nil
	}

	telemetry.SetAttributes(span,
		telemetry.SpanAttrProvider, s.gateway.Provider(),
		telemetry.SpanAttrCarrier, req.ServiceInfo.Carrier,
		telemetry.SpanAttrParcelCount, shipping.TotalParcelCount(parcels),
	)

	outcome, err := s.gateway.CreateShipment(ctx, shipmentReq)
	if err != nil {
		telemetry.RecordError(span, err)
		s.release(ctx, key)
		s.logger.Error("Failed to create shipment",
			zap.String("shipment_name", req.ShipmentName),
			zap.Error(err))
		resp.Alerts = append(resp.Alerts, shipping.ErrorAlert(fmt.Sprintf("creating %s shipment", s.gateway.Provider()), err))
		return resp, nil
	}

	resp.Failures = outcome.Failures
	for _, failure := range outcome.Failures {
		telemetry.AddEvent(span, "parcel_failed", "reference", failure.Reference, "message", failure.Message)
		resp.Alerts = append(resp.Alerts, shipping.WarningAlert("Parcel %s was not created: %s", failure.Reference, failure.Message))
	}
	telemetry.SetAttribute(span, telemetry.SpanAttrFailureCount, len(outcome.Failures))

	if outcome.Result == nil {
		s.release(ctx, key)
		s.metrics.RecordParcelFailures(ctx, s.gateway.Provider(), len(outcome.Failures))
		resp.Alerts = append(resp.Alerts, shipping.ErrorAlert(
			fmt.Sprintf("creating %s shipment", s.gateway.Provider()), shipping.ErrShipmentNotCreated))
		return resp, nil
	}

	resp.Result = outcome.Result
	telemetry.SetAttributes(span,
		telemetry.SpanAttrShipmentID, outcome.Result.ShipmentID,
		telemetry.SpanAttrAWBNumber, outcome.Result.AWBNumber,
	)
	s.metrics.RecordShipmentCreated(ctx, s.gateway.Provider(), outcome.Result.Carrier, len(outcome.Failures))

	record, err := shipping.NewShipmentRecord(req.ShipmentName, outcome.Result)
	if err == nil {
		err = s.records.Save(ctx, record)
	}
	if err != nil {
		// The carrier booking stands; keep the key so it is not booked twice.
		telemetry.RecordError(span, err)
		s.logger.Error("Failed to save shipment record",
			zap.String("shipment_name", req.ShipmentName),
			zap.String("shipment_id", outcome.Result.ShipmentID),
			zap.Error(err))
		resp.Alerts = append(resp.Alerts, shipping.ErrorAlert("saving the shipment record", err))
		return resp, nil
	}

	s.logger.Info("Shipment created",
		zap.String("shipment_name", req.ShipmentName),
		zap.String("shipment_id", outcome.Result.ShipmentID),
		zap.String("carrier", outcome.Result.Carrier),
		zap.Int("failed_parcels", len(outcome.Failures)))
	return resp, nil
}

// GetShipment returns the stored shipping fields of a shipment
func (s *ShippingService) GetShipment(ctx context.Context, shipmentName string) (*ShipmentRecordResponse, error) {
	record, err := s.findRecord(ctx, shipmentName)
	if err != nil {
		return nil, err
	}
	return toRecordResponse(record), nil
}

// =============================================================================
// Labels
// =============================================================================

// GetLabel returns the label URLs of a shipment. ref is either the ERP
// shipment name or a (joined) carrier shipment ID.
func (s *ShippingService) GetLabel(ctx context.Context, ref string) (*LabelsResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "shipping", "get_label")
	defer span.End()

	shipmentID, err := s.resolveShipmentID(ctx, ref)
	if err != nil {
		return nil, err
	}
	telemetry.SetAttribute(span, telemetry.SpanAttrShipmentID, shipmentID)

	resp := &LabelsResponse{ShipmentID: shipmentID, LabelURLs: []string{}}
	if !s.gateway.IsEnabled() {
		resp.Alerts = append(resp.Alerts, s.disabledAlert())
		return resp, nil
	}

	set, err := s.gateway.GetLabel(ctx, shipmentID)
	if err != nil {
		telemetry.RecordError(span, err)
		resp.Alerts = append(resp.Alerts, shipping.ErrorAlert(fmt.Sprintf("fetching %s label", s.gateway.Provider()), err))
		return resp, nil
	}
	resp.LabelURLs = set.URLs
	return resp, nil
}

// DownloadLabel returns the raw label document behind a carrier label URL
func (s *ShippingService) DownloadLabel(ctx context.Context, labelURL string) ([]byte, error) {
	if !s.gateway.IsEnabled() {
		return nil, shipping.ErrCarrierDisabled
	}
	return s.gateway.DownloadLabel(ctx, labelURL)
}

// StoreLabels copies every label of a booked shipment to object storage and
// returns presigned download URLs.
func (s *ShippingService) StoreLabels(ctx context.Context, shipmentName string) (*StoreLabelsResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "shipping", "store_labels",
		telemetry.WithAttribute(telemetry.SpanAttrShipmentName, shipmentName),
	)
	defer span.End()

	if s.labels == nil {
		return nil, ErrLabelStorageNotConfigured
	}
	record, err := s.findRecord(ctx, shipmentName)
	if err != nil {
		return nil, err
	}
	if record.ShipmentID == "" {
		return nil, shipping.ErrShipmentNotCreated
	}

	resp := &StoreLabelsResponse{ShipmentName: shipmentName, Labels: []StoredLabel{}}
	if !s.gateway.IsEnabled() {
		resp.Alerts = append(resp.Alerts, s.disabledAlert())
		return resp, nil
	}

	set, err := s.gateway.GetLabel(ctx, record.ShipmentID)
	if err != nil {
		telemetry.RecordError(span, err)
		resp.Alerts = append(resp.Alerts, shipping.ErrorAlert(fmt.Sprintf("fetching %s label", s.gateway.Provider()), err))
		return resp, nil
	}

	keys := make([]string, 0, len(set.URLs))
	for i, labelURL := range set.URLs {
		data, err := s.gateway.DownloadLabel(ctx, labelURL)
		if err != nil {
			telemetry.RecordError(span, err)
			resp.Alerts = append(resp.Alerts, shipping.ErrorAlert(fmt.Sprintf("downloading label %d", i+1), err))
			continue
		}

		key := labelStorageKey(shipmentName, i+1)
		if err := s.labels.Upload(ctx, key, data, labelContentType); err != nil {
			return nil, fmt.Errorf("failed to upload label: %w", err)
		}
		downloadURL, expiresAt, err := s.labels.GenerateDownloadURL(ctx, key, s.config.LabelURLExpiry)
		if err != nil {
			return nil, fmt.Errorf("failed to generate label download URL: %w", err)
		}
		keys = append(keys, key)
		resp.Labels = append(resp.Labels, StoredLabel{
			StorageKey:  key,
			DownloadURL: downloadURL,
			ExpiresAt:   expiresAt,
		})
	}

	if len(keys) > 0 {
		record.AttachLabels(keys)
		if err := s.records.Save(ctx, record); err != nil {
			return nil, fmt.Errorf("failed to save shipment record: %w", err)
		}
	}
	return resp, nil
}

func labelStorageKey(shipmentName string, index int) string {
	return fmt.Sprintf("labels/%s/%d.pdf", shipmentName, index)
}

// =============================================================================
// Tracking
// =============================================================================

// UpdateTracking reads the carrier's tracking data and writes it to the
// shipment record.
func (s *ShippingService) UpdateTracking(ctx context.Context, shipmentName string) (*TrackingResponse, error) {
	record, err := s.findRecord(ctx, shipmentName)
	if err != nil {
		return nil, err
	}
	if record.ShipmentID == "" {
		return nil, shipping.ErrShipmentNotCreated
	}

	resp := &TrackingResponse{ShipmentName: shipmentName, Status: string(record.Status)}
	if !s.gateway.IsEnabled() {
		resp.Alerts = append(resp.Alerts, s.disabledAlert())
		return resp, nil
	}

	info, err := s.track(ctx, record)
	if err != nil {
		if errors.Is(err, errRecordNotSaved) {
			return nil, err
		}
		resp.Alerts = append(resp.Alerts, shipping.ErrorAlert(fmt.Sprintf("fetching %s tracking data", s.gateway.Provider()), err))
		return resp, nil
	}
	resp.Tracking = info
	resp.Status = string(record.Status)
	return resp, nil
}

// RefreshOpenShipments updates tracking for every shipment that has not
// reached a final status. Records are processed one at a time and a
// failing record does not stop the run.
func (s *ShippingService) RefreshOpenShipments(ctx context.Context) (*RefreshResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "shipping", "refresh_tracking")
	defer span.End()

	result := &RefreshResult{}
	if !s.gateway.IsEnabled() {
		result.Alerts = append(result.Alerts, s.disabledAlert())
		return result, nil
	}

	records, err := s.records.FindOpen(ctx, s.config.RefreshBatchSize)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to load open shipments: %w", err)
	}

	for _, record := range records {
		if ctx.Err() != nil {
			break
		}
		result.Checked++
		if _, err := s.track(ctx, record); err != nil {
			result.Failed++
			result.Alerts = append(result.Alerts, shipping.ErrorAlert(
				fmt.Sprintf("updating tracking for %s", record.ShipmentName), err))
			continue
		}
		result.Updated++
		if record.Status == shipping.ShipmentStatusCompleted {
			result.Completed++
		}
	}

	telemetry.SetAttributes(span,
		"checked", result.Checked,
		"updated", result.Updated,
		telemetry.SpanAttrFailureCount, result.Failed,
	)
	s.logger.Info("Tracking refresh finished",
		zap.Int("checked", result.Checked),
		zap.Int("updated", result.Updated),
		zap.Int("completed", result.Completed),
		zap.Int("failed", result.Failed))
	return result, nil
}

var errRecordNotSaved = errors.New("shipping: failed to save shipment record")

// track fetches tracking for one record and saves it
func (s *ShippingService) track(ctx context.Context, record *shipping.ShipmentRecord) (*shipping.TrackingInfo, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "shipping", "update_tracking",
		telemetry.WithAttribute(telemetry.SpanAttrShipmentName, record.ShipmentName),
		telemetry.WithAttribute(telemetry.SpanAttrShipmentID, record.ShipmentID),
	)
	defer span.End()

	info, err := s.gateway.GetTrackingData(ctx, record.ShipmentID)
	if err != nil {
		telemetry.RecordError(span, err)
		s.metrics.RecordTrackingUpdate(ctx, s.gateway.Provider(), err)
		s.logger.Warn("Failed to fetch tracking data",
			zap.String("shipment_name", record.ShipmentName),
			zap.String("shipment_id", record.ShipmentID),
			zap.Error(err))
		return nil, err
	}

	record.ApplyTracking(info, s.now())
	if err := s.records.Save(ctx, record); err != nil {
		telemetry.RecordError(span, err)
		s.metrics.RecordTrackingUpdate(ctx, s.gateway.Provider(), err)
		return nil, fmt.Errorf("%w: %v", errRecordNotSaved, err)
	}
	s.metrics.RecordTrackingUpdate(ctx, s.gateway.Provider(), nil)
	return info, nil
}

// =============================================================================
// Helpers
// =============================================================================

func (s *ShippingService) disabledAlert() shipping.Alert {
	return shipping.InfoAlert("%s integration is disabled or missing credentials", s.gateway.Provider())
}

func (s *ShippingService) findRecord(ctx context.Context, shipmentName string) (*shipping.ShipmentRecord, error) {
	if shipmentName == "" {
		return nil, shipping.ErrEmptyShipmentName
	}
	record, err := s.records.FindByShipmentName(ctx, shipmentName)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", shipping.ErrShipmentNotFound, shipmentName)
		}
		return nil, fmt.Errorf("failed to load shipment record: %w", err)
	}
	return record, nil
}

// resolveShipmentID maps a shipment name to its carrier shipment ID and
// passes anything else through as an ID.
func (s *ShippingService) resolveShipmentID(ctx context.Context, ref string) (string, error) {
	if len(shipping.SplitIDs(ref)) == 0 {
		return "", shipping.ErrEmptyShipmentID
	}
	record, err := s.records.FindByShipmentName(ctx, ref)
	switch {
	case err == nil:
		if record.ShipmentID == "" {
			return "", shipping.ErrShipmentNotCreated
		}
		return record.ShipmentID, nil
	case errors.Is(err, shared.ErrNotFound):
		return ref, nil
	default:
		return "", fmt.Errorf("failed to load shipment record: %w", err)
	}
}

func (s *ShippingService) acquire(ctx context.Context, key string) (bool, error) {
	if s.idempotency == nil {
		return true, nil
	}
	ok, err := s.idempotency.MarkProcessed(ctx, key, s.config.IdempotencyTTL)
	if err != nil {
		return false, fmt.Errorf("failed to check idempotency key: %w", err)
	}
	return ok, nil
}

func (s *ShippingService) release(ctx context.Context, key string) {
	if s.idempotency == nil {
		return
	}
	if err := s.idempotency.Release(ctx, key); err != nil {
		s.logger.Warn("Failed to release idempotency key", zap.String("key", key), zap.Error(err))
	}
}
