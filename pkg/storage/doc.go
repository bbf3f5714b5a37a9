// Package storage is the service-side write path for clinic entities.
//
// A Mutator runs one mutation inside a transaction on the database that owns
// the entity (the shared database for platform entities, the acting tenant's
// database for everything else) and, after the commit succeeds, fires exactly
// one audit lifecycle hook:
//
//	m := storage.NewMutator(pool, hooks)
//	err := m.Update(ctx, before, after, []string{"status"}, func(ctx context.Context, tx *sql.Tx) error {
//		_, err := tx.ExecContext(ctx, `UPDATE queues SET status = $1 WHERE id = $2`, after.Status, after.ID)
//		return err
//	})
//
// Failed or rolled-back mutations fire no hook. Hook failures never reach the
// caller; see package audit.
//
// Subpackage postgres provides the TenantPool that backs a Mutator and the
// audit store resolver.
package storage
