package carrier

import (
	"github.com/erp/shipping/internal/domain/shipping"
)

// NewSendCloudGateway returns the adapter matching config.APIVersion
func NewSendCloudGateway(config *SendCloudConfig, opts ...SendCloudOption) (shipping.CarrierGateway, error) {
	if config == nil {
		return nil, ErrSendCloudConfigNil
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.APIVersion == APIVersionV3 {
		return NewSendCloudV3Adapter(config, opts...)
	}
	return NewSendCloudV2Adapter(config, opts...)
}
