package carrier

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// SendCloudConfig holds configuration for the SendCloud API integration
type SendCloudConfig struct {
	// APIKey is the public key of a SendCloud API integration
	APIKey string
	// APISecret is the secret key of a SendCloud API integration
	APISecret string
	// Enabled switches the integration on. A disabled integration returns
	// empty results without calling SendCloud.
	Enabled bool
	// APIVersion selects the payload schema: "v2" or "v3"
	APIVersion string
	// BaseURL is the SendCloud panel URL without the /api prefix
	BaseURL string
	// TimeoutSeconds is the HTTP request timeout
	TimeoutSeconds int
}

const (
	// SendCloudProductionURL is the production API host
	SendCloudProductionURL = "https://panel.sendcloud.sc"

	APIVersionV2 = "v2"
	APIVersionV3 = "v3"
)

// Errors for SendCloud configuration
var (
	ErrSendCloudConfigNil               = errors.New("sendcloud: config is required")
	ErrSendCloudConfigMissingAPIKey     = errors.New("sendcloud: api key is required")
	ErrSendCloudConfigMissingAPISecret  = errors.New("sendcloud: api secret is required")
	ErrSendCloudConfigInvalidAPIVersion = errors.New("sendcloud: api version must be v2 or v3")
	ErrSendCloudConfigInvalidBaseURL    = errors.New("sendcloud: invalid base URL")
)

// NewSendCloudConfig creates a new enabled SendCloud configuration with defaults
func NewSendCloudConfig(apiKey, apiSecret string) *SendCloudConfig {
	return &SendCloudConfig{
		APIKey:         apiKey,
		APISecret:      apiSecret,
		Enabled:        true,
		APIVersion:     APIVersionV2,
		BaseURL:        SendCloudProductionURL,
		TimeoutSeconds: 30,
	}
}

// Validate validates the configuration and fills defaults.
// Missing credentials are not an error here; see CredentialsError.
func (c *SendCloudConfig) Validate() error {
	c.APIVersion = strings.ToLower(strings.TrimSpace(c.APIVersion))
	if c.APIVersion == "" {
		c.APIVersion = APIVersionV2
	}
	if c.APIVersion != APIVersionV2 && c.APIVersion != APIVersionV3 {
		return fmt.Errorf("%w: got %q", ErrSendCloudConfigInvalidAPIVersion, c.APIVersion)
	}
	if c.BaseURL == "" {
		c.BaseURL = SendCloudProductionURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrSendCloudConfigInvalidBaseURL, c.BaseURL)
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 30
	}
	return nil
}

// CredentialsError returns the first missing credential, or nil
func (c *SendCloudConfig) CredentialsError() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return ErrSendCloudConfigMissingAPIKey
	}
	if strings.TrimSpace(c.APISecret) == "" {
		return ErrSendCloudConfigMissingAPISecret
	}
	return nil
}

// IsActive reports whether calls may be sent to SendCloud
func (c *SendCloudConfig) IsActive() bool {
	return c.Enabled && c.CredentialsError() == nil
}

// host returns the host of BaseURL
func (c *SendCloudConfig) host() string {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return ""
	}
	return u.Host
}
