package dashboard

import (
	"net/http"
	"net/url"
	"strings"
)

// originAllowed reports whether origin may call the dashboard. Same-host
// requests are always allowed; "*" in the list allows everything.
func originAllowed(allowed []string, origin, host string) bool {
	if origin == "" {
		return true
	}
	if u, err := url.Parse(origin); err == nil && strings.EqualFold(u.Host, host) {
		return true
	}
	for _, ao := range allowed {
		ao = strings.TrimSpace(ao)
		if ao == "*" || strings.EqualFold(ao, origin) {
			return true
		}
	}
	return false
}

// corsMiddleware answers preflight requests and sets CORS headers for
// configured origins.
func corsMiddleware(allowed []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && originAllowed(allowed, origin, r.Host) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
