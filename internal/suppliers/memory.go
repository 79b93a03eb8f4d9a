package suppliers

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryResolver keeps suppliers and aliases in memory.
type MemoryResolver struct {
	mu        sync.RWMutex
	suppliers map[string]Supplier
	// aliases maps orgID+"\x00"+lowercase(alias) to a supplier ID.
	aliases map[string]string
}

// NewMemoryResolver constructs a MemoryResolver.
func NewMemoryResolver() *MemoryResolver {
	return &MemoryResolver{
		suppliers: make(map[string]Supplier),
		aliases:   make(map[string]string),
	}
}

func aliasKey(orgID, name string) string {
	return orgID + "\x00" + strings.ToLower(strings.TrimSpace(name))
}

// GetByID returns a supplier by ID scoped to an org.
func (r *MemoryResolver) GetByID(ctx context.Context, orgID, id string) (Supplier, error) {
	if err := ctx.Err(); err != nil {
		return Supplier{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	sup, ok := r.suppliers[id]
	if !ok || sup.OrgID != orgID {
		return Supplier{}, ErrNotFound
	}
	return sup, nil
}

// Resolve matches a name against canonical names and aliases.
func (r *MemoryResolver) Resolve(ctx context.Context, orgID, name string) (Supplier, error) {
	if err := ctx.Err(); err != nil {
		return Supplier{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id, ok := r.aliases[aliasKey(orgID, name)]; ok {
		if sup, ok := r.suppliers[id]; ok {
			return sup, nil
		}
	}
	return Supplier{}, ErrNotFound
}

// Create registers a new supplier and its canonical name as an alias.
func (r *MemoryResolver) Create(ctx context.Context, orgID, name string) (Supplier, error) {
	if err := ctx.Err(); err != nil {
		return Supplier{}, err
	}
	sup := Supplier{
		ID:        uuid.NewString(),
		OrgID:     orgID,
		Name:      strings.TrimSpace(name),
		CreatedAt: time.Now().UTC(),
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.suppliers[sup.ID] = sup
	r.aliases[aliasKey(orgID, sup.Name)] = sup.ID
	return sup, nil
}

// CreateAlias records an alternate spelling for a supplier.
func (r *MemoryResolver) CreateAlias(ctx context.Context, orgID, supplierID, alias string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	sup, ok := r.suppliers[supplierID]
	if !ok || sup.OrgID != orgID {
		return ErrNotFound
	}
	r.aliases[aliasKey(orgID, alias)] = supplierID
	return nil
}

var _ Resolver = (*MemoryResolver)(nil)
