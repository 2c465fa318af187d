package store

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// CreateClientParams holds the writable client fields.
type CreateClientParams struct {
	OrganizationID uuid.UUID
	FirstName      string
	LastName       string
	Postcode       *string
	Address        *string
	NoFixedAddress bool
	YearOfBirth    *int32
}

const clientColumns = `id, organization_id, first_name, last_name, postcode, address, no_fixed_address,
year_of_birth, created_at, updated_at`

func scanClient(row interface{ Scan(...any) error }) (Client, error) {
	var c Client
	err := row.Scan(&c.ID, &c.OrganizationID, &c.FirstName, &c.LastName, &c.Postcode, &c.Address,
		&c.NoFixedAddress, &c.YearOfBirth, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// CreateClient inserts a client.
func (q *Queries) CreateClient(ctx context.Context, arg CreateClientParams) (Client, error) {
	row := q.db.QueryRow(ctx, `INSERT INTO clients (organization_id, first_name, last_name, postcode, address, no_fixed_address, year_of_birth)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING `+clientColumns,
		arg.OrganizationID, arg.FirstName, arg.LastName, arg.Postcode, arg.Address, arg.NoFixedAddress, arg.YearOfBirth)
	c, err := scanClient(row)
	return c, mapWriteError(err)
}

// GetClient loads a client inside the organization.
func (q *Queries) GetClient(ctx context.Context, orgID, id uuid.UUID) (Client, error) {
	row := q.db.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE organization_id = $1 AND id = $2`, orgID, id)
	c, err := scanClient(row)
	return c, notFound(err)
}

// ListClients returns clients ordered by name, optionally filtered by a name or postcode search.
func (q *Queries) ListClients(ctx context.Context, orgID uuid.UUID, search string, limit, offset int) ([]Client, int, error) {
	pattern := ""
	if s := strings.TrimSpace(search); s != "" {
		pattern = "%" + escapeLike(s) + "%"
	}
	const where = ` WHERE organization_id = $1 AND ($2 = '' OR first_name ILIKE $2 OR last_name ILIKE $2 OR postcode ILIKE $2)`
	var total int
	if err := q.db.QueryRow(ctx, `SELECT count(*) FROM clients`+where, orgID, pattern).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := q.db.Query(ctx, `SELECT `+clientColumns+` FROM clients`+where+`
ORDER BY last_name, first_name, id LIMIT $3 OFFSET $4`, orgID, pattern, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]Client, 0, limit)
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

// CreateAgency inserts an agency.
func (q *Queries) CreateAgency(ctx context.Context, orgID uuid.UUID, name string, contactEmail *string) (Agency, error) {
	var a Agency
	err := q.db.QueryRow(ctx, `INSERT INTO agencies (organization_id, name, contact_email) VALUES ($1, $2, $3)
RETURNING id, organization_id, name, contact_email, created_at`, orgID, name, contactEmail).
		Scan(&a.ID, &a.OrganizationID, &a.Name, &a.ContactEmail, &a.CreatedAt)
	return a, mapWriteError(err)
}

// GetAgency loads an agency inside the organization.
func (q *Queries) GetAgency(ctx context.Context, orgID, id uuid.UUID) (Agency, error) {
	var a Agency
	err := q.db.QueryRow(ctx, `SELECT id, organization_id, name, contact_email, created_at
FROM agencies WHERE organization_id = $1 AND id = $2`, orgID, id).
		Scan(&a.ID, &a.OrganizationID, &a.Name, &a.ContactEmail, &a.CreatedAt)
	return a, notFound(err)
}

// ListAgencies returns all agencies of the organization.
func (q *Queries) ListAgencies(ctx context.Context, orgID uuid.UUID) ([]Agency, error) {
	rows, err := q.db.Query(ctx, `SELECT id, organization_id, name, contact_email, created_at
FROM agencies WHERE organization_id = $1 ORDER BY name, id`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Agency
	for rows.Next() {
		var a Agency
		if err := rows.Scan(&a.ID, &a.OrganizationID, &a.Name, &a.ContactEmail, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CreateCenter inserts a food bank centre.
func (q *Queries) CreateCenter(ctx context.Context, orgID uuid.UUID, name string, address *string) (Center, error) {
	var c Center
	err := q.db.QueryRow(ctx, `INSERT INTO food_bank_centers (organization_id, name, address) VALUES ($1, $2, $3)
RETURNING id, organization_id, name, address, created_at`, orgID, name, address).
		Scan(&c.ID, &c.OrganizationID, &c.Name, &c.Address, &c.CreatedAt)
	return c, mapWriteError(err)
}

// GetCenter loads a centre inside the organization.
func (q *Queries) GetCenter(ctx context.Context, orgID, id uuid.UUID) (Center, error) {
	var c Center
	err := q.db.QueryRow(ctx, `SELECT id, organization_id, name, address, created_at
FROM food_bank_centers WHERE organization_id = $1 AND id = $2`, orgID, id).
		Scan(&c.ID, &c.OrganizationID, &c.Name, &c.Address, &c.CreatedAt)
	return c, notFound(err)
}

// ListCenters returns all centres of the organization.
func (q *Queries) ListCenters(ctx context.Context, orgID uuid.UUID) ([]Center, error) {
	rows, err := q.db.Query(ctx, `SELECT id, organization_id, name, address, created_at
FROM food_bank_centers WHERE organization_id = $1 ORDER BY name, id`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Center
	for rows.Next() {
		var c Center
		if err := rows.Scan(&c.ID, &c.OrganizationID, &c.Name, &c.Address, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
