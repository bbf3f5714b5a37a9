package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/platinummonkey/clinicq/pkg/audit"
	"github.com/platinummonkey/clinicq/pkg/contextkeys"
)

// ErrNilEntity is returned when a mutation is given no entity
var ErrNilEntity = errors.New("entity is required")

// TxFunc performs the actual writes of a mutation
type TxFunc func(ctx context.Context, tx *sql.Tx) error

// Mutator runs entity mutations in a transaction on the partition that owns
// the entity and fires exactly one lifecycle hook once the transaction has
// committed. Nothing fires for a mutation that fails or rolls back.
type Mutator struct {
	source audit.DBSource
	hooks  audit.Hooks
}

// NewMutator creates a Mutator. hooks may be nil to disable auditing.
func NewMutator(source audit.DBSource, hooks audit.Hooks) *Mutator {
	return &Mutator{source: source, hooks: hooks}
}

// Create inserts entity
func (m *Mutator) Create(ctx context.Context, entity any, fn TxFunc) error {
	if entity == nil {
		return ErrNilEntity
	}
	if err := m.run(ctx, entity, fn); err != nil {
		return err
	}
	if m.hooks != nil {
		m.hooks.AfterCreate(ctx, entity)
	}
	return nil
}

// Update changes before into after. touched lists the fields the write set;
// nil means the caller does not track them.
func (m *Mutator) Update(ctx context.Context, before, after any, touched []string, fn TxFunc) error {
	if before == nil || after == nil {
		return ErrNilEntity
	}
	if err := m.run(ctx, after, fn); err != nil {
		return err
	}
	if m.hooks != nil {
		m.hooks.AfterUpdate(ctx, before, after, touched)
	}
	return nil
}

// Delete removes entity permanently
func (m *Mutator) Delete(ctx context.Context, entity any, fn TxFunc) error {
	if entity == nil {
		return ErrNilEntity
	}
	if err := m.run(ctx, entity, fn); err != nil {
		return err
	}
	if m.hooks != nil {
		m.hooks.AfterDelete(ctx, entity, nil)
	}
	return nil
}

// SoftDelete marks before as deleted; after is its state once marked
func (m *Mutator) SoftDelete(ctx context.Context, before, after any, fn TxFunc) error {
	if before == nil {
		return ErrNilEntity
	}
	if err := m.run(ctx, before, fn); err != nil {
		return err
	}
	if m.hooks != nil {
		m.hooks.AfterSoftDelete(ctx, before, after)
	}
	return nil
}

// Restore brings a soft-deleted entity back
func (m *Mutator) Restore(ctx context.Context, entity any, fn TxFunc) error {
	if entity == nil {
		return ErrNilEntity
	}
	if err := m.run(ctx, entity, fn); err != nil {
		return err
	}
	if m.hooks != nil {
		m.hooks.AfterRestore(ctx, entity)
	}
	return nil
}

func (m *Mutator) run(ctx context.Context, entity any, fn TxFunc) (err error) {
	db, err := m.dbFor(ctx, entity)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(ctx, tx); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// dbFor picks the database that stores entity. Tracked entities live in the
// same partition as their audit entries; untracked ones follow the bound tenant.
func (m *Mutator) dbFor(ctx context.Context, entity any) (*sql.DB, error) {
	if itemType, ok := audit.Classify(entity); ok {
		p, err := audit.PartitionFor(ctx, itemType)
		if err != nil {
			return nil, err
		}
		if p.Shared {
			return m.source.Shared(ctx)
		}
		return m.source.Tenant(ctx, p.Tenant)
	}

	if tenant := contextkeys.GetTenant(ctx); tenant != "" {
		return m.source.Tenant(ctx, tenant)
	}
	return m.source.Shared(ctx)
}
