package websocket

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// NewCheckOrigin returns the upgrader's CheckOrigin function. It allows empty
// origins (non-browser clients), the app's own origin (derived from appURL) and
// any origin listed in allowed. When isDevelopment is true, localhost origins
// are additionally allowed.
func NewCheckOrigin(appURL string, allowed []string, isDevelopment bool) func(r *http.Request) bool {
	appOrigin := extractOrigin(appURL)
	extra := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if origin := extractOrigin(strings.TrimSpace(o)); origin != "" {
			extra[origin] = struct{}{}
		}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")

		if origin == "" {
			return true
		}

		if origin == appOrigin {
			return true
		}

		if _, ok := extra[origin]; ok {
			return true
		}

		if isDevelopment && isLocalhostOrigin(origin) {
			return true
		}

		slog.Warn("WebSocket origin rejected", "origin", origin, "remote_addr", r.RemoteAddr)
		return false
	}
}

func extractOrigin(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func isLocalhostOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1"
}
