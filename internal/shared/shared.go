package shared

import (
	"net"
	"net/http"
	"strings"

	"github.com/mileusna/useragent"

	"github.com/sand/whitetriangle/backend/internal/entities"
)

const (
	HeaderForwardedFor = "X-Forwarded-For"
	HeaderRealIP       = "X-Real-IP"
	HeaderLocation     = "X-Client-Location"

	unknown = "Unknown"
)

// ClientInfoFromRequest describes the caller for login history and sessions.
func ClientInfoFromRequest(r *http.Request) entities.ClientInfo {
	location := strings.TrimSpace(r.Header.Get(HeaderLocation))
	if location == "" {
		location = unknown
	}

	return entities.ClientInfo{
		IP:       ClientIP(r),
		Device:   DeviceFromUserAgent(r.UserAgent()),
		Location: location,
	}
}

// ClientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the peer address.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get(HeaderForwardedFor); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get(HeaderRealIP)); ip != "" {
		return ip
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// DeviceFromUserAgent renders a short "Browser on OS" label. iOS devices are
// named by model.
func DeviceFromUserAgent(ua string) string {
	parsed := useragent.Parse(ua)
	if parsed.Name == "" {
		return "Unknown device"
	}

	platform := parsed.OS
	if parsed.IsIOS() && parsed.Device != "" {
		platform = parsed.Device
	}
	if platform == "" {
		return parsed.Name
	}

	device := parsed.Name + " on " + platform
	if parsed.Mobile {
		device += " (Mobile)"
	}
	return device
}
