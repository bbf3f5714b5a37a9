// Package audit records an append-only trail of lifecycle events on domain
// entities.
//
// # Overview
//
// After the storage layer commits a create, update, delete, soft delete or
// restore it calls a Hooks implementation. HookAdapter hands the event to a
// Recorder, which:
//
//  1. classifies the entity (Classify); untracked entities are ignored
//  2. builds the before/after payload (Snapshot, DiffUpdate); an update that
//     changed nothing is ignored
//  3. copies actor and request metadata from the reqctx bound to ctx, or
//     uses the SYSTEM actor when none is bound
//  4. picks the shared or the acting tenant's partition (Router)
//  5. appends one LogEntry to that partition's audit_logs table
//
// # Usage
//
//	pool := postgres.NewTenantPool(sharedDB, directory, postgres.WithOnOpen(audit.EnsureSchema))
//	recorder := audit.NewRecorder(audit.NewRouter(audit.NewSQLResolver(pool)))
//	hooks := audit.NewHookAdapter(recorder, audit.WithMode(audit.ModeAsync))
//
//	hooks.AfterUpdate(ctx, before, after, []string{"status", "updated_at"})
//
// # Partitions
//
// USER, COMPANY and SUBSCRIPTION entries go to the shared database. All other
// item types go to the database of the tenant bound with
// contextkeys.WithTenant; recording one with no tenant bound fails with
// ErrNoTenant.
//
// # Failures
//
// Hooks never return errors. Failures are logged at error level with the item
// type, event, partition and request id, and counted in
// clinicq_audit_failures_total. They are not retried.
package audit
