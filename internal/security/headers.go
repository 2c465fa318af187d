package security

import (
	"net/http"
	"strconv"
)

const defaultHSTSMaxAge = 365 * 24 * 60 * 60

// Headers adds hardening headers to every response.
type Headers struct {
	Enable                bool
	EnableHSTS            bool
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool
	// NoStore sets Cache-Control: no-store on every response.
	NoStore bool
	// TrustForwardedProto treats X-Forwarded-Proto: https as a TLS request
	// when deciding whether to send HSTS.
	TrustForwardedProto bool
}

func (h Headers) static() http.Header {
	out := http.Header{
		"X-Content-Type-Options": {"nosniff"},
		"X-Frame-Options":        {"DENY"},
		"Referrer-Policy":        {"no-referrer"},
		"Permissions-Policy":     {"camera=(), geolocation=(), microphone=()"},
	}
	if h.NoStore {
		out.Set("Cache-Control", "no-store")
	}
	return out
}

func (h Headers) hsts() string {
	if !h.EnableHSTS {
		return ""
	}
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

// Middleware applies the configured headers before calling next.
func (h Headers) Middleware(next http.Handler) http.Handler {
	if !h.Enable {
		return next
	}
	fixed := h.static()
	hsts := h.hsts()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dst := w.Header()
		for k, v := range fixed {
			dst.Set(k, v[0])
		}
		if hsts != "" && h.secure(r) {
			dst.Set("Strict-Transport-Security", hsts)
		}
		next.ServeHTTP(w, r)
	})
}

func (h Headers) secure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return h.TrustForwardedProto && r.Header.Get("X-Forwarded-Proto") == "https"
}
