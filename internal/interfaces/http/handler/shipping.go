package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"

	appshipping "github.com/erp/shipping/internal/application/shipping"
	"github.com/erp/shipping/internal/infrastructure/logger"
	"github.com/erp/shipping/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ShippingService is the application API behind the shipping routes
type ShippingService interface {
	FetchShippingRates(ctx context.Context, req appshipping.FetchRatesRequest) (*appshipping.RatesResponse, error)
	CreateShipment(ctx context.Context, req appshipping.CreateShipmentRequest) (*appshipping.CreateShipmentResponse, error)
	GetShipment(ctx context.Context, shipmentName string) (*appshipping.ShipmentRecordResponse, error)
	GetLabel(ctx context.Context, ref string) (*appshipping.LabelsResponse, error)
	DownloadLabel(ctx context.Context, labelURL string) ([]byte, error)
	StoreLabels(ctx context.Context, shipmentName string) (*appshipping.StoreLabelsResponse, error)
	UpdateTracking(ctx context.Context, shipmentName string) (*appshipping.TrackingResponse, error)
	RefreshOpenShipments(ctx context.Context) (*appshipping.RefreshResult, error)
}

var _ ShippingService = (*appshipping.ShippingService)(nil)

// ShippingHandler serves rate, shipment, label and tracking endpoints.
// Carrier failures come back as alerts on a successful response; only bad
// input and missing records are HTTP errors.
type ShippingHandler struct {
	BaseHandler
	service ShippingService
}

// NewShippingHandler creates a new ShippingHandler
func NewShippingHandler(service ShippingService) *ShippingHandler {
	return &ShippingHandler{service: service}
}

// DownloadLabelQuery is the query of the label download proxy
type DownloadLabelQuery struct {
	URL string `form:"url" binding:"required,url"`
}

// FetchRates handles POST /shipping/rates
func (h *ShippingHandler) FetchRates(c *gin.Context) {
	var req appshipping.FetchRatesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	resp, err := h.service.FetchShippingRates(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	alerts := resp.Alerts
	resp.Alerts = nil
	h.Success(c, resp, alerts)
}

// CreateShipment handles POST /shipping/shipments. A booked shipment answers
// 201; a request the carrier refused answers 200 with alerts only.
func (h *ShippingHandler) CreateShipment(c *gin.Context) {
	var req appshipping.CreateShipmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	resp, err := h.service.CreateShipment(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	alerts := resp.Alerts
	resp.Alerts = nil
	if resp.Result != nil {
		h.Created(c, resp, alerts)
		return
	}
	h.Success(c, resp, alerts)
}

// GetShipment handles GET /shipping/shipments/:name
func (h *ShippingHandler) GetShipment(c *gin.Context) {
	resp, err := h.service.GetShipment(c.Request.Context(), c.Param(middleware.ShipmentParam))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp, nil)
}

// GetLabel handles GET /shipping/shipments/:name/labels. The parameter may
// also be a carrier shipment ID or a comma-joined list of them.
func (h *ShippingHandler) GetLabel(c *gin.Context) {
	resp, err := h.service.GetLabel(c.Request.Context(), c.Param(middleware.ShipmentParam))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	alerts := resp.Alerts
	resp.Alerts = nil
	h.Success(c, resp, alerts)
}

// StoreLabels handles POST /shipping/shipments/:name/labels/store
func (h *ShippingHandler) StoreLabels(c *gin.Context) {
	resp, err := h.service.StoreLabels(c.Request.Context(), c.Param(middleware.ShipmentParam))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	alerts := resp.Alerts
	resp.Alerts = nil
	h.Success(c, resp, alerts)
}

// DownloadLabel handles GET /shipping/labels/download?url=, streaming the
// carrier's PDF back to the caller.
func (h *ShippingHandler) DownloadLabel(c *gin.Context) {
	var query DownloadLabelQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.ValidationError(c, err)
		return
	}

	data, err := h.service.DownloadLabel(c.Request.Context(), query.URL)
	if err != nil {
		logger.GetGinLogger(c).Warn("Label download failed",
			zap.String("url", query.URL),
			zap.Error(err))
		h.HandleError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", labelFileName(query.URL)))
	c.Data(http.StatusOK, "application/pdf", data)
}

// UpdateTracking handles POST /shipping/shipments/:name/tracking
func (h *ShippingHandler) UpdateTracking(c *gin.Context) {
	resp, err := h.service.UpdateTracking(c.Request.Context(), c.Param(middleware.ShipmentParam))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	alerts := resp.Alerts
	resp.Alerts = nil
	h.Success(c, resp, alerts)
}

// RefreshTracking handles POST /shipping/tracking/refresh, the daily job
func (h *ShippingHandler) RefreshTracking(c *gin.Context) {
	resp, err := h.service.RefreshOpenShipments(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	alerts := resp.Alerts
	resp.Alerts = nil
	h.Success(c, resp, alerts)
}

// labelFileName derives "label-<id>.pdf" from a carrier label URL such as
// https://panel.sendcloud.sc/api/v2/labels/normal_printer/12345.
func labelFileName(labelURL string) string {
	u, err := url.Parse(labelURL)
	if err != nil {
		return "label.pdf"
	}
	base := path.Base(u.Path)
	switch {
	case base == "." || base == "/":
		return "label.pdf"
	case path.Ext(base) == ".pdf":
		return base
	default:
		return "label-" + base + ".pdf"
	}
}
