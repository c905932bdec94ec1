package shipping

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ProviderSendCloud is the service provider name written to the ERP's
// delivery type field.
const ProviderSendCloud = "SendCloud"

// sendcloudCarrier is the carrier code SendCloud uses for its own
// unstamped letter service.
const sendcloudCarrier = "sendcloud"

var (
	upperCaser = cases.Upper(language.Und)
	lowerCaser = cases.Lower(language.Und)
)

// DisplayCarrier returns the carrier name shown on rate offers.
// "sendcloud" is shown as "SendCloud"; every other carrier is upper-cased.
func DisplayCarrier(name string) string {
	name = strings.TrimSpace(name)
	if isSendCloudCarrier(name) {
		return ProviderSendCloud
	}
	return upperCaser.String(name)
}

// SubmitCarrier returns the carrier name sent back to the carrier API
// when a shipment is created. It reverses DisplayCarrier.
func SubmitCarrier(name string) string {
	name = strings.TrimSpace(name)
	if isSendCloudCarrier(name) {
		return sendcloudCarrier
	}
	return lowerCaser.String(name)
}

func isSendCloudCarrier(name string) bool {
	return name == sendcloudCarrier || name == ProviderSendCloud
}
