package common

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
)

func TestClientIP(t *testing.T) {
	cases := []struct {
		name   string
		xff    string
		realIP string
		remote string
		want   string
	}{
		{name: "ignores forwarded for", xff: "203.0.113.7, 10.0.0.1", remote: "10.0.0.1:80", want: "10.0.0.1"},
		{name: "ignores real ip header", realIP: "198.51.100.4", remote: "192.0.2.8:5000", want: "192.0.2.8"},
		{name: "ipv6 remote", remote: "[2001:db8::1]:443", want: "2001:db8::1"},
		{name: "remote addr", remote: "192.0.2.9:4411", want: "192.0.2.9"},
		{name: "remote without port", remote: "192.0.2.10", want: "192.0.2.10"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tc.remote
			if tc.xff != "" {
				req.Header.Set("X-Forwarded-For", tc.xff)
			}
			if tc.realIP != "" {
				req.Header.Set("X-Real-IP", tc.realIP)
			}
			if got := ClientIP(req); got != tc.want {
				t.Fatalf("ClientIP() = %q, want %q", got, tc.want)
			}
		})
	}
	if ClientIP(nil) != "" {
		t.Fatalf("expected empty ip for nil request")
	}
}

func TestClientIPBehindRealIP(t *testing.T) {
	var got string
	h := middleware.RealIP(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ClientIP(r)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:80"
	req.Header.Set("X-Real-IP", "203.0.113.7")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "203.0.113.7" {
		t.Fatalf("ClientIP() = %q, want %q", got, "203.0.113.7")
	}
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Name string `json:"name"`
	}
	cases := []struct {
		name string
		body string
		ok   bool
	}{
		{name: "single object", body: `{"name":"Depot"}`, ok: true},
		{name: "trailing whitespace", body: "{\"name\":\"Depot\"}\n ", ok: true},
		{name: "empty", body: ""},
		{name: "malformed", body: `{"name":`},
		{name: "two objects", body: `{"name":"a"}{"name":"b"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/centers", strings.NewReader(tc.body))
			err := DecodeJSON(req, &dst)
			if tc.ok {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var appErr *AppError
			if !errors.As(err, &appErr) || appErr.HTTPStatus != http.StatusBadRequest {
				t.Fatalf("expected 400 app error, got %v", err)
			}
		})
	}
}
