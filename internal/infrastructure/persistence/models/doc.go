// Package models contains GORM-specific persistence models that map to the
// workflow state-store tables. These models are separate from domain types
// to keep the domain layer free from ORM concerns.
//
// Key principles:
// 1. Domain types carry no GORM tags or infrastructure concerns
// 2. Persistence models contain all GORM annotations and table mappings
// 3. ToDomain/FromDomain mappers convert between the two
//
// Structure:
// - workflow.go: order state, snapshots, cross-references, change log, runs
// - outbox.go: notification delivery outbox
package models
