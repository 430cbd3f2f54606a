package auth

import (
	"strings"

	ua "github.com/mileusna/useragent"
)

// Coarse device classes recorded on login attempts.
const (
	DeviceDesktop = "DESKTOP"
	DeviceMobile  = "MOBILE"
	DeviceTablet  = "TABLET"
	DeviceUnknown = "UNKNOWN"
)

// DeviceClass reduces a raw User-Agent header to one of the coarse
// device classes.  Anything unparseable, including bots, reads as
// UNKNOWN.
func DeviceClass(userAgent string) string {
	if strings.TrimSpace(userAgent) == "" {
		return DeviceUnknown
	}
	parsed := ua.Parse(userAgent)
	switch {
	case parsed.Tablet:
		return DeviceTablet
	case parsed.Mobile:
		return DeviceMobile
	case parsed.Desktop:
		return DeviceDesktop
	default:
		return DeviceUnknown
	}
}
