package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/noah-isme/support-hubs/internal/tenant"
)

// InsertAuditLog appends an audit entry.
func (q *Queries) InsertAuditLog(ctx context.Context, e AuditLog) (AuditLog, error) {
	err := q.db.QueryRow(ctx, `INSERT INTO audit_logs (organization_id, actor_user_id, actor_role, action, resource_type,
resource_id, method, path, route, status, ip, user_agent, request_id, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
RETURNING id, created_at`,
		e.OrganizationID, e.ActorUserID, e.ActorRole, e.Action, e.ResourceType, e.ResourceID, e.Method, e.Path,
		e.Route, e.Status, e.IP, e.UserAgent, e.RequestID, nullJSON(e.Metadata)).Scan(&e.ID, &e.CreatedAt)
	return e, err
}

// ListAuditLogs returns the newest audit entries of the organization.
func (q *Queries) ListAuditLogs(ctx context.Context, orgID uuid.UUID, action string, limit, offset int) ([]AuditLog, error) {
	rows, err := q.db.Query(ctx, `SELECT id, organization_id, actor_user_id, actor_role, action, resource_type, resource_id,
method, path, route, status, ip, user_agent, request_id, metadata, created_at
FROM audit_logs WHERE organization_id = $1 AND ($2 = '' OR action = $2)
ORDER BY created_at DESC, id LIMIT $3 OFFSET $4`, orgID, action, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]AuditLog, 0, limit)
	for rows.Next() {
		var e AuditLog
		if err := rows.Scan(&e.ID, &e.OrganizationID, &e.ActorUserID, &e.ActorRole, &e.Action, &e.ResourceType,
			&e.ResourceID, &e.Method, &e.Path, &e.Route, &e.Status, &e.IP, &e.UserAgent, &e.RequestID,
			&e.Metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// InsertDomainEvent persists an event.
func (q *Queries) InsertDomainEvent(ctx context.Context, e DomainEvent) (DomainEvent, error) {
	err := q.db.QueryRow(ctx, `INSERT INTO domain_events (organization_id, topic, aggregate_id, payload)
VALUES ($1, $2, $3, $4) RETURNING id, occurred_at`, e.OrganizationID, e.Topic, e.AggregateID, []byte(e.Payload)).
		Scan(&e.ID, &e.OccurredAt)
	return e, err
}

// AuditLogStore adapts Store to the audit package, running each call in its own tenant transaction.
type AuditLogStore struct {
	Store *Store
}

// InsertAuditLog implements audit.Store.
func (a AuditLogStore) InsertAuditLog(ctx context.Context, scope tenant.Scope, e AuditLog) error {
	return a.Store.WithTenantTx(ctx, scope, func(q *Queries) error {
		e.OrganizationID = scope.OrganizationID
		_, err := q.InsertAuditLog(ctx, e)
		return err
	})
}

// ListAuditLogs implements audit.Store.
func (a AuditLogStore) ListAuditLogs(ctx context.Context, scope tenant.Scope, action string, limit, offset int) ([]AuditLog, error) {
	var out []AuditLog
	err := a.Store.WithTenantTx(ctx, scope, func(q *Queries) error {
		var err error
		out, err = q.ListAuditLogs(ctx, scope.OrganizationID, action, limit, offset)
		return err
	})
	return out, err
}

// EventStore adapts Store to the events package.
type EventStore struct {
	Store *Store
}

// InsertDomainEvent implements events.EventStore.
func (s EventStore) InsertDomainEvent(ctx context.Context, scope tenant.Scope, e DomainEvent) (DomainEvent, error) {
	var out DomainEvent
	err := s.Store.WithTenantTx(ctx, scope, func(q *Queries) error {
		e.OrganizationID = scope.OrganizationID
		var err error
		out, err = q.InsertDomainEvent(ctx, e)
		return err
	})
	return out, err
}
