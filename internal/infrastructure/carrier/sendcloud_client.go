package carrier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/erp/shipping/internal/domain/shipping"
	"github.com/erp/shipping/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

const (
	// maxResponseSize is the maximum allowed response body size (10MB)
	maxResponseSize = 10 * 1024 * 1024
	// maxLabelSize is the maximum allowed label document size (20MB)
	maxLabelSize = 20 * 1024 * 1024
)

// ErrLabelURLNotAllowed is returned when asked to download a label from a host
// other than the configured SendCloud host.
var ErrLabelURLNotAllowed = shipping.ErrLabelURLNotAllowed

// SendCloudOption configures a SendCloud adapter
type SendCloudOption func(*sendcloudClient)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(client *http.Client) SendCloudOption {
	return func(c *sendcloudClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) SendCloudOption {
	return func(c *sendcloudClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records carrier request metrics
func WithMetrics(metrics *telemetry.ShippingMetrics) SendCloudOption {
	return func(c *sendcloudClient) {
		c.metrics = metrics
	}
}

// sendcloudClient is the HTTP plumbing shared by the v2 and v3 adapters
type sendcloudClient struct {
	config     *SendCloudConfig
	httpClient *http.Client
	logger     *zap.Logger
	metrics    *telemetry.ShippingMetrics
}

func newSendCloudClient(config *SendCloudConfig, opts ...SendCloudOption) (*sendcloudClient, error) {
	if config == nil {
		return nil, ErrSendCloudConfigNil
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	c := &sendcloudClient{
		config: config,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(
		zap.String("provider", shipping.ProviderSendCloud),
		zap.String("api_version", config.APIVersion),
	)
	return c, nil
}

// errorDecoder extracts a human readable message from an error response body
type errorDecoder func(body []byte) string

// apiRequest describes one SendCloud API call
type apiRequest struct {
	operation string
	method    string
	path      string
	query     url.Values
	body      any
}

// do sends req, records a client span and metrics, and decodes the JSON
// response into out. Non-2xx responses become ErrCarrierRequestFailed with
// the vendor message when decodeErr can find one.
func (c *sendcloudClient) do(ctx context.Context, req apiRequest, decodeErr errorDecoder, out any) error {
	ctx, span := telemetry.StartCarrierSpan(ctx, shipping.ProviderSendCloud, req.operation,
		telemetry.WithAttribute(telemetry.SpanAttrAPIVersion, c.config.APIVersion),
		telemetry.WithAttribute(telemetry.SpanAttrRequestPath, req.path),
	)
	defer span.End()

	start := time.Now()
	status, body, err := c.send(ctx, req)
	if err == nil {
		telemetry.SetAttribute(span, telemetry.SpanAttrHTTPStatus, status)
		err = c.checkStatus(status, body, decodeErr)
	}
	if err == nil && out != nil {
		if jsonErr := json.Unmarshal(body, out); jsonErr != nil {
			err = fmt.Errorf("%w: failed to parse response: %v", shipping.ErrCarrierInvalidResponse, jsonErr)
		}
	}
	c.metrics.RecordCarrierRequest(ctx, shipping.ProviderSendCloud, c.config.APIVersion, req.operation, time.Since(start), err)

	if err != nil {
		telemetry.RecordError(span, err)
		c.logger.Warn("SendCloud request failed",
			zap.String("operation", req.operation),
			zap.String("path", req.path),
			zap.Int("status", status),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// send performs the HTTP round trip with basic auth
func (c *sendcloudClient) send(ctx context.Context, req apiRequest) (int, []byte, error) {
	endpoint := c.config.BaseURL + req.path
	if len(req.query) > 0 {
		endpoint += "?" + req.query.Encode()
	}

	var reqBody io.Reader
	if req.body != nil {
		payload, err := json.Marshal(req.body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, endpoint, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.SetBasicAuth(c.config.APIKey, c.config.APISecret)
	httpReq.Header.Set("Accept", "application/json")
	if reqBody != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", shipping.ErrCarrierUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("%w: failed to read response: %v", shipping.ErrCarrierInvalidResponse, err)
	}
	return resp.StatusCode, body, nil
}

// checkStatus fails on non-2xx responses and on any body carrying a vendor
// error object, whatever the status. SendCloud reports some business errors
// with HTTP 200.
func (c *sendcloudClient) checkStatus(status int, body []byte, decodeErr errorDecoder) error {
	if decodeErr != nil {
		if msg := decodeErr(body); msg != "" {
			return fmt.Errorf("%w: HTTP %d: %s", shipping.ErrCarrierRequestFailed, status, msg)
		}
	}
	if status < http.StatusBadRequest {
		return nil
	}
	return fmt.Errorf("%w: HTTP %d", shipping.ErrCarrierRequestFailed, status)
}

// downloadLabel fetches a label document with the integration credentials.
// The URL must point at the configured SendCloud host.
func (c *sendcloudClient) downloadLabel(ctx context.Context, labelURL string) ([]byte, error) {
	u, err := url.Parse(strings.TrimSpace(labelURL))
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrLabelURLNotAllowed, labelURL)
	}
	if !strings.EqualFold(u.Host, c.config.host()) {
		return nil, fmt.Errorf("%w: %s", ErrLabelURLNotAllowed, u.Host)
	}

	ctx, span := telemetry.StartCarrierSpan(ctx, shipping.ProviderSendCloud, "download_label",
		telemetry.WithAttribute(telemetry.SpanAttrRequestPath, u.Path),
	)
	defer span.End()

	start := time.Now()
	data, err := c.fetchLabel(ctx, u.String())
	c.metrics.RecordCarrierRequest(ctx, shipping.ProviderSendCloud, c.config.APIVersion, "download_label", time.Since(start), err)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return data, nil
}

func (c *sendcloudClient) fetchLabel(ctx context.Context, labelURL string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, labelURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.SetBasicAuth(c.config.APIKey, c.config.APISecret)
	httpReq.Header.Set("Accept", "application/pdf")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shipping.ErrCarrierUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%w: HTTP %d", shipping.ErrCarrierRequestFailed, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxLabelSize))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read label: %v", shipping.ErrCarrierInvalidResponse, err)
	}
	return data, nil
}
