package suppliers

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PGResolver implements Resolver using Postgres.
type PGResolver struct {
	DB *sql.DB
}

// GetByID returns a supplier by ID scoped to an org.
func (r *PGResolver) GetByID(ctx context.Context, orgID, id string) (Supplier, error) {
	const query = `
SELECT id, org_id, name, created_at
FROM suppliers
WHERE org_id = $1 AND id = $2
LIMIT 1`
	var sup Supplier
	err := r.DB.QueryRowContext(ctx, query, orgID, id).Scan(&sup.ID, &sup.OrgID, &sup.Name, &sup.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Supplier{}, ErrNotFound
		}
		return Supplier{}, err
	}
	return sup, nil
}

// Resolve matches a name against canonical names and aliases,
// case-insensitively.
func (r *PGResolver) Resolve(ctx context.Context, orgID, name string) (Supplier, error) {
	const query = `
SELECT s.id, s.org_id, s.name, s.created_at
FROM suppliers s
LEFT JOIN supplier_aliases a ON a.supplier_id = s.id AND a.org_id = s.org_id
WHERE s.org_id = $1 AND (LOWER(s.name) = LOWER($2) OR LOWER(a.alias) = LOWER($2))
LIMIT 1`
	var sup Supplier
	err := r.DB.QueryRowContext(ctx, query, orgID, strings.TrimSpace(name)).Scan(&sup.ID, &sup.OrgID, &sup.Name, &sup.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Supplier{}, ErrNotFound
		}
		return Supplier{}, err
	}
	return sup, nil
}

// Create registers a new supplier.
func (r *PGResolver) Create(ctx context.Context, orgID, name string) (Supplier, error) {
	const query = `
INSERT INTO suppliers (id, org_id, name, created_at)
VALUES ($1, $2, $3, $4)`
	sup := Supplier{
		ID:        uuid.NewString(),
		OrgID:     orgID,
		Name:      strings.TrimSpace(name),
		CreatedAt: time.Now().UTC(),
	}
	if _, err := r.DB.ExecContext(ctx, query, sup.ID, sup.OrgID, sup.Name, sup.CreatedAt); err != nil {
		return Supplier{}, err
	}
	return sup, nil
}

// CreateAlias records an alternate spelling for a supplier. Duplicate
// aliases are ignored.
func (r *PGResolver) CreateAlias(ctx context.Context, orgID, supplierID, alias string) error {
	const query = `
INSERT INTO supplier_aliases (id, org_id, supplier_id, alias, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (org_id, alias) DO NOTHING`
	_, err := r.DB.ExecContext(ctx, query, uuid.NewString(), orgID, supplierID, strings.TrimSpace(alias), time.Now().UTC())
	return err
}

var _ Resolver = (*PGResolver)(nil)
