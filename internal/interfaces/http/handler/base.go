package handler

import (
	"errors"
	"net/http"

	appshipping "github.com/erp/shipping/internal/application/shipping"
	"github.com/erp/shipping/internal/domain/shared"
	"github.com/erp/shipping/internal/domain/shipping"
	"github.com/erp/shipping/internal/interfaces/http/dto"
	"github.com/erp/shipping/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// Success sends a 200 response with optional alerts
func (h *BaseHandler) Success(c *gin.Context, data any, alerts []shipping.Alert) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithAlerts(data, alerts))
}

// Created sends a 201 response with optional alerts
func (h *BaseHandler) Created(c *gin.Context, data any, alerts []shipping.Alert) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponseWithAlerts(data, alerts))
}

// Error sends an error response with the given status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, middleware.GetRequestID(c)))
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// ValidationError sends a 400 response describing the binding failure
func (h *BaseHandler) ValidationError(c *gin.Context, err error) {
	middleware.HandleValidationError(c, err)
}

// HandleError converts service errors to HTTP responses
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	code, message := classifyError(err)
	h.Error(c, dto.GetHTTPStatus(code), code, message)
}

// errorClass maps a sentinel to its API error code. Input problems carry the
// sentinel's message with its detail, everything else a fixed message.
type errorClass struct {
	target     error
	code       string
	exposeText bool
}

var errorClasses = []errorClass{
	{shipping.ErrInvalidParcel, dto.ErrCodeInvalidInput, true},
	{shipping.ErrInvalidParcelList, dto.ErrCodeInvalidInput, true},
	{shipping.ErrInvalidAddress, dto.ErrCodeInvalidInput, true},
	{shipping.ErrInvalidPhone, dto.ErrCodeInvalidInput, true},
	{shipping.ErrInvalidOffer, dto.ErrCodeInvalidInput, true},
	{shipping.ErrEmptyShipmentID, dto.ErrCodeInvalidInput, true},
	{shipping.ErrEmptyShipmentName, dto.ErrCodeInvalidInput, true},
	{shipping.ErrLabelURLNotAllowed, dto.ErrCodeInvalidInput, true},
	{shipping.ErrShipmentNotFound, dto.ErrCodeNotFound, true},
	{shipping.ErrCarrierLabelNotFound, dto.ErrCodeNotFound, true},
	{shipping.ErrShipmentNotCreated, dto.ErrCodeInvalidState, true},
	{shipping.ErrCarrierDisabled, dto.ErrCodeCarrierDisabled, true},
	{shipping.ErrCarrierNotConfigured, dto.ErrCodeCarrierDisabled, true},
	{appshipping.ErrLabelStorageNotConfigured, dto.ErrCodeUnavailable, true},
	{shipping.ErrCarrierUnavailable, dto.ErrCodeCarrierFailed, false},
	{shipping.ErrCarrierRequestFailed, dto.ErrCodeCarrierFailed, false},
	{shipping.ErrCarrierInvalidResponse, dto.ErrCodeCarrierFailed, false},
}

func classifyError(err error) (code, message string) {
	for _, ec := range errorClasses {
		if errors.Is(err, ec.target) {
			if ec.exposeText {
				return ec.code, err.Error()
			}
			return ec.code, "The carrier request failed"
		}
	}

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		return dto.NormalizeErrorCode(domainErr.Code), domainErr.Message
	}
	return dto.ErrCodeInternal, "An unexpected error occurred"
}
