package audit

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/support-hubs/internal/common"
	"github.com/noah-isme/support-hubs/internal/obs"
	"github.com/noah-isme/support-hubs/internal/store"
	"github.com/noah-isme/support-hubs/internal/tenant"
)

// Voucher actions recorded in the audit trail.
const (
	ActionVoucherIssue       = "voucher.issue"
	ActionVoucherRedeem      = "voucher.redeem"
	ActionVoucherUnfulfilled = "voucher.unfulfilled"
	ActionVoucherInvalidate  = "voucher.invalidate"
	ActionVoucherDelete      = "voucher.delete"
)

// Directory actions, recorded by HTTPRecorder on successful writes.
const (
	ActionClientCreate = "client.create"
	ActionAgencyCreate = "agency.create"
	ActionCenterCreate = "center.create"
)

// Actor describes the entity performing the action.
type Actor struct {
	UserID *uuid.UUID
	Role   string
}

// ActorFromPrincipal converts an authenticated principal to an Actor.
func ActorFromPrincipal(p common.Principal) Actor {
	a := Actor{Role: string(p.Role)}
	if p.UserID != uuid.Nil {
		id := p.UserID
		a.UserID = &id
	}
	return a
}

// Store defines the tenant-scoped database operations required for auditing.
type Store interface {
	InsertAuditLog(ctx context.Context, scope tenant.Scope, e store.AuditLog) error
	ListAuditLogs(ctx context.Context, scope tenant.Scope, action string, limit, offset int) ([]store.AuditLog, error)
}

// Service persists audit logs for critical application flows.
type Service struct {
	Store        Store
	Enabled      bool
	SamplingRate float64
	Logger       zerolog.Logger
}

// Record persists an audit log entry when auditing is enabled.
func (s Service) Record(ctx context.Context, scope tenant.Scope, actor Actor, action, resourceType, resourceID string, req *http.Request, status int, metadata []byte) error {
	if !s.Enabled {
		return nil
	}
	if s.SamplingRate > 0 && s.SamplingRate < 1 {
		if rand.Float64() > s.SamplingRate {
			return nil
		}
	}
	if req == nil {
		return errors.New("audit: request is required")
	}
	if s.Store == nil {
		return errors.New("audit: store not configured")
	}
	if scope.IsZero() {
		return tenant.ErrTenantMissing
	}

	method := req.Method
	route := obs.RoutePatternFromContext(req.Context())
	if route == "" {
		route = strings.TrimSpace(req.URL.Path)
	}

	finalStatus := int32(status)
	if finalStatus == 0 {
		finalStatus = http.StatusOK
	}

	return s.Store.InsertAuditLog(ctx, scope, store.AuditLog{
		OrganizationID: scope.OrganizationID,
		ActorUserID:    actor.UserID,
		ActorRole:      pointerOf(actor.Role),
		Action:         buildAction(action, method, route),
		ResourceType:   buildResource(resourceType, route),
		ResourceID:     pointerOf(resourceID),
		Method:         pointerOf(method),
		Path:           pointerOf(req.URL.Path),
		Route:          pointerOf(route),
		Status:         &finalStatus,
		IP:             pointerOf(common.ClientIP(req)),
		UserAgent:      pointerOf(req.Header.Get("User-Agent")),
		RequestID:      pointerOf(req.Header.Get("X-Request-ID")),
		Metadata:       toJSONB(metadata, req.URL.RawQuery),
	})
}

// RecordBestEffort records an entry and logs, rather than returns, a failure.
func (s Service) RecordBestEffort(ctx context.Context, scope tenant.Scope, actor Actor, action, resourceType, resourceID string, req *http.Request, status int, metadata map[string]any) {
	var raw []byte
	if metadata != nil {
		if data, err := json.Marshal(metadata); err == nil {
			raw = data
		}
	}
	if err := s.Record(ctx, scope, actor, action, resourceType, resourceID, req, status, raw); err != nil {
		s.Logger.Warn().Err(err).
			Str("organization_id", scope.String()).
			Str("action", action).
			Str("resource_id", resourceID).
			Msg("audit record failed")
	}
}

func buildAction(action, method, route string) string {
	trimmed := strings.TrimSpace(action)
	if trimmed != "" {
		return trimmed
	}
	base := strings.ToUpper(strings.TrimSpace(method))
	target := route
	if target == "" {
		target = "/"
	}
	return base + " " + target
}

func buildResource(resourceType, route string) string {
	trimmed := strings.TrimSpace(resourceType)
	if trimmed != "" {
		return trimmed
	}
	route = strings.Trim(route, " ")
	if route == "" {
		return "unknown"
	}
	segments := strings.Split(strings.Trim(route, "/"), "/")
	if len(segments) >= 2 && segments[0] == "api" {
		return strings.Join(segments[1:], ".")
	}
	return strings.ReplaceAll(strings.Trim(route, "/"), "/", ".")
}

func pointerOf(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func toJSONB(metadata []byte, query string) json.RawMessage {
	if len(metadata) > 0 {
		return metadata
	}
	if strings.TrimSpace(query) == "" {
		return nil
	}
	data, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil
	}
	return data
}
