package security

import (
	"net/http"
	"strconv"
	"strings"
)

const defaultHSTSMaxAge = 365 * 24 * 60 * 60

// Headers is the browser hardening applied to every API response. The
// storefront serves JSON only, so the content security policy denies all
// subresources.
type Headers struct {
	Enable                bool
	EnableHSTS            bool
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool
}

func (h Headers) static() http.Header {
	out := http.Header{}
	out.Set("X-Content-Type-Options", "nosniff")
	out.Set("X-Frame-Options", "DENY")
	out.Set("Referrer-Policy", "no-referrer")
	out.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
	out.Set("Cross-Origin-Opener-Policy", "same-origin")
	out.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
	// carts and prices are per customer
	out.Set("Cache-Control", "no-store")
	return out
}

func (h Headers) hsts() string {
	maxAge := h.HSTSMaxAge
	if maxAge <= 0 {
		maxAge = defaultHSTSMaxAge
	}
	value := "max-age=" + strconv.Itoa(maxAge)
	if h.HSTSIncludeSubdomains {
		value += "; includeSubDomains"
	}
	return value
}

// Middleware sets the headers before the handler runs. HSTS is only sent on
// requests that arrived over TLS, directly or through a proxy reporting
// X-Forwarded-Proto: https.
func (h Headers) Middleware(next http.Handler) http.Handler {
	if !h.Enable {
		return next
	}
	static := h.static()
	hsts := h.hsts()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dst := w.Header()
		for k, v := range static {
			dst[k] = v
		}
		if h.EnableHSTS && isHTTPS(r) {
			dst.Set("Strict-Transport-Security", hsts)
		}
		next.ServeHTTP(w, r)
	})
}

func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")), "https")
}
