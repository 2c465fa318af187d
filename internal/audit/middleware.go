package audit

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/support-hubs/internal/common"
	"github.com/noah-isme/support-hubs/internal/obs"
	"github.com/noah-isme/support-hubs/internal/tenant"
)

// maxCapturedBody bounds how much of a created response is kept to find its id.
const maxCapturedBody = 64 << 10

// HTTPRecorder writes an audit entry once the wrapped handler has responded.
type HTTPRecorder struct {
	Service   *Service
	OnError   func(error)
	ActorFunc func(*http.Request) Actor
}

// HTTPConfig describes the entry produced for one route.
type HTTPConfig struct {
	Action       string
	ResourceType string
	// ResourceIDParam names the chi URL parameter holding the resource id.
	// When empty, the id is read from a 201 response shaped {"data":{"id":...}}.
	ResourceIDParam string
	MetadataFunc    func(*http.Request, int) map[string]any
	// SkipFailures omits entries for responses with status >= 400.
	SkipFailures bool
}

// Middleware wraps a single route with audit recording.
func (r HTTPRecorder) Middleware(cfg HTTPConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if r.Service == nil || !r.Service.Enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			cw := &captureWriter{StatusRecorder: obs.NewStatusRecorder(w), keep: cfg.ResourceIDParam == ""}
			next.ServeHTTP(cw, req)

			status := cw.Status()
			if cfg.SkipFailures && status >= http.StatusBadRequest {
				return
			}
			scope, err := tenant.ScopeFromContext(req.Context())
			if err != nil {
				return
			}

			var resourceID string
			if cfg.ResourceIDParam != "" {
				resourceID = chi.URLParam(req, cfg.ResourceIDParam)
			} else if status == http.StatusCreated {
				resourceID = createdID(cw.body.Bytes())
			}

			var metadata []byte
			if cfg.MetadataFunc != nil {
				if payload := cfg.MetadataFunc(req, status); payload != nil {
					metadata, _ = json.Marshal(payload)
				}
			}

			err = r.Service.Record(req.Context(), scope, r.actor(req), cfg.Action, cfg.ResourceType, resourceID, req, status, metadata)
			if err != nil && r.OnError != nil {
				r.OnError(err)
			}
		})
	}
}

func (r HTTPRecorder) actor(req *http.Request) Actor {
	if r.ActorFunc != nil {
		return r.ActorFunc(req)
	}
	p, ok := common.PrincipalFrom(req.Context())
	if !ok {
		return Actor{}
	}
	return ActorFromPrincipal(p)
}

func createdID(body []byte) string {
	var envelope struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if len(body) == 0 || json.Unmarshal(body, &envelope) != nil {
		return ""
	}
	return envelope.Data.ID
}

// captureWriter tees up to maxCapturedBody bytes of the response.
type captureWriter struct {
	*obs.StatusRecorder
	keep bool
	body bytes.Buffer
}

func (c *captureWriter) Write(p []byte) (int, error) {
	if c.keep && c.body.Len()+len(p) <= maxCapturedBody {
		c.body.Write(p)
	}
	return c.StatusRecorder.Write(p)
}
