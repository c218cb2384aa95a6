// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer free
// from ORM concerns.
//
// Structure:
// - base.go: base persistence models (BaseModel, TenantAggregateModel)
// - session.go: sessions table, frozen snapshot and product lines as JSON columns
// - client.go: clients table, only read for the display join
// - catalog.go: packages and categories, the source snapshots are frozen from
// - transaction.go: append-only transaction log
package models
