// Package models defines the domain entities persisted by the clinic services.
//
// Entities owned by no single tenant (users, companies, subscriptions) live in
// the shared database. Everything else lives in the database of the tenant
// (clinic) that owns it.
//
// Fields tagged audit:"-" are never copied into audit trail snapshots.
package models
