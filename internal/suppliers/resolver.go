package suppliers

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("supplier not found")

// Supplier is a counterparty an invoice was issued by, scoped to an org.
type Supplier struct {
	ID        string
	OrgID     string
	Name      string
	CreatedAt time.Time
}

// Resolver resolves supplier references during verification. Names match
// either the canonical name or a recorded alias.
type Resolver interface {
	GetByID(ctx context.Context, orgID, id string) (Supplier, error)
	Resolve(ctx context.Context, orgID, name string) (Supplier, error)
	Create(ctx context.Context, orgID, name string) (Supplier, error)
	// CreateAlias records an alternate spelling pointing at a supplier so
	// future extractions resolve without operator input.
	CreateAlias(ctx context.Context, orgID, supplierID, alias string) error
}

// ResolveOrCreate resolves a name to an existing supplier or creates one,
// recording the raw extracted name as an alias when it differs.
func ResolveOrCreate(ctx context.Context, r Resolver, orgID, name, extractedName string) (Supplier, error) {
	sup, err := r.Resolve(ctx, orgID, name)
	if err == nil {
		return sup, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Supplier{}, err
	}
	sup, err = r.Create(ctx, orgID, name)
	if err != nil {
		return Supplier{}, err
	}
	if extractedName != "" && extractedName != name {
		if err := r.CreateAlias(ctx, orgID, sup.ID, extractedName); err != nil {
			return Supplier{}, err
		}
	}
	return sup, nil
}
