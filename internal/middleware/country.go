package middleware

import (
	"context"
	"net/http"
	"strings"

	"heirloom/internal/infra/geoip"
)

type countryContextKey struct{}

// CountryKey holds the caller's ISO country code in the request context.
var CountryKey = countryContextKey{}

// countryHeaders are set by CDNs and load balancers in front of the service.
var countryHeaders = []string{"CF-IPCountry", "X-Country-Code", "X-IP-Country", "X-Appengine-Country"}

// Country resolves the caller's country for access logs. resolver may be nil,
// in which case only proxy headers are consulted.
func Country(resolver geoip.CountryResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if country := ResolveCountry(r, resolver); country != "" {
				r = r.WithContext(context.WithValue(r.Context(), CountryKey, country))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CountryFromContext returns the ISO country code stored in the request context.
func CountryFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(CountryKey).(string); ok {
		return v
	}
	return ""
}

// ResolveCountry resolves a best-effort ISO country code for the given request.
func ResolveCountry(r *http.Request, resolver geoip.CountryResolver) string {
	if r == nil {
		return ""
	}
	for _, key := range countryHeaders {
		val := strings.ToUpper(strings.TrimSpace(r.Header.Get(key)))
		// Cloudflare uses XX for unknown and T1 for Tor.
		if len(val) == 2 && val != "XX" && val != "T1" {
			return val
		}
	}
	if resolver == nil {
		return ""
	}
	ip := ClientIP(r)
	if ip == "" {
		return ""
	}
	country, err := resolver.CountryCode(ip)
	if err != nil {
		return ""
	}
	return strings.ToUpper(country)
}

// ClientIP returns the best-effort client IP address for the request: the
// first valid X-Forwarded-For entry, else the RemoteAddr host.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		for _, part := range strings.Split(xf, ",") {
			if ip := geoip.ParseHost(part); ip != nil {
				return ip.String()
			}
		}
	}
	if ip := geoip.ParseHost(r.RemoteAddr); ip != nil {
		return ip.String()
	}
	return r.RemoteAddr
}
