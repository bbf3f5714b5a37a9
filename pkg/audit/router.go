package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/platinummonkey/clinicq/pkg/contextkeys"
)

var (
	// ErrNoTenant is returned when a tenant-scoped item is recorded with no tenant bound
	ErrNoTenant = errors.New("no tenant bound to context")

	// ErrUnknownItemType is returned for item types outside the closed set
	ErrUnknownItemType = errors.New("unknown item type")

	// ErrNoResolver is returned when a router has no handle resolver
	ErrNoResolver = errors.New("no handle resolver configured")
)

// sharedItemTypes always record to the shared partition. Every other item
// type records to the acting tenant's partition.
var sharedItemTypes = map[ItemType]struct{}{
	ItemTypeUser:         {},
	ItemTypeCompany:      {},
	ItemTypeSubscription: {},
}

func init() {
	for t := range sharedItemTypes {
		if !t.Valid() {
			panic(fmt.Sprintf("audit: shared item type %q is not a declared item type", t))
		}
	}
}

// IsShared reports whether entries for t belong in the shared partition
func IsShared(t ItemType) bool {
	_, ok := sharedItemTypes[t]
	return ok
}

// Partition identifies one audit storage area
type Partition struct {
	Shared bool
	Tenant string
}

// SharedPartition is the partition for entities owned by no tenant
var SharedPartition = Partition{Shared: true}

// TenantPartition returns the partition of one tenant
func TenantPartition(key string) Partition {
	return Partition{Tenant: key}
}

func (p Partition) String() string {
	if p.Shared {
		return "shared"
	}
	return "tenant:" + p.Tenant
}

// Kind returns "shared" or "tenant", for use as a low-cardinality label
func (p Partition) Kind() string {
	if p.Shared {
		return "shared"
	}
	return "tenant"
}

// PartitionFor decides which partition entries of type t are written to.
// Tenant-scoped types use the tenant bound to ctx.
func PartitionFor(ctx context.Context, t ItemType) (Partition, error) {
	if !t.Valid() {
		return Partition{}, fmt.Errorf("%w: %q", ErrUnknownItemType, t)
	}
	if IsShared(t) {
		return SharedPartition, nil
	}

	tenant := contextkeys.GetTenant(ctx)
	if tenant == "" {
		return Partition{}, fmt.Errorf("%w: %s is tenant-scoped", ErrNoTenant, t)
	}
	return TenantPartition(tenant), nil
}

// Store appends entries to one partition
type Store interface {
	Append(ctx context.Context, entry *LogEntry) error
}

// HandleResolver obtains the store of a partition. Implementations must be
// safe to call repeatedly and concurrently.
type HandleResolver interface {
	Handle(ctx context.Context, p Partition) (Store, error)
}

// HandleResolverFunc adapts a function to HandleResolver
type HandleResolverFunc func(ctx context.Context, p Partition) (Store, error)

// Handle calls f(ctx, p)
func (f HandleResolverFunc) Handle(ctx context.Context, p Partition) (Store, error) {
	return f(ctx, p)
}

// Router makes the shared/tenant routing decision and acquires the handle
type Router struct {
	resolver HandleResolver
}

// NewRouter creates a router backed by resolver
func NewRouter(resolver HandleResolver) *Router {
	return &Router{resolver: resolver}
}

// Resolve returns the store and partition entries of type t are written to
func (r *Router) Resolve(ctx context.Context, t ItemType) (Store, Partition, error) {
	if r == nil || r.resolver == nil {
		return nil, Partition{}, ErrNoResolver
	}

	p, err := PartitionFor(ctx, t)
	if err != nil {
		return nil, Partition{}, err
	}

	store, err := r.resolver.Handle(ctx, p)
	if err != nil {
		return nil, p, fmt.Errorf("failed to acquire %s handle: %w", p, err)
	}
	return store, p, nil
}
