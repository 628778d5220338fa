// Package storageengine defines the contract between vocd's lifecycle core
// and the storage engine that owns on-disk database state, and ships a
// BoltDB-backed implementation that persists the database catalog.
package storageengine

import (
	"context"

	"github.com/vocbase/vocd/pkg/vocbase"
)

// CatalogEntry is one persisted database as read from the engine's catalog
// during bootstrap, before it has been turned into a live *vocbase.Record.
type CatalogEntry struct {
	ID                int64
	Name              string
	Type              vocbase.Type
	Path              string
	OwnsAppsDirectory bool
}

// Engine is the narrow contract the lifecycle controller and database
// manager need from a storage engine. The engine's own query execution,
// index structures and datafile format are out of scope here.
type Engine interface {
	// Initialize prepares the engine for use; called once during bootstrap.
	Initialize(ctx context.Context) error
	// Shutdown releases all engine resources; called once during unprepare.
	Shutdown(ctx context.Context) error
	// GetDatabases returns the persisted catalog of databases this engine
	// is responsible for.
	GetDatabases(ctx context.Context) ([]CatalogEntry, error)
	// OpenDatabase opens the on-disk state for entry and returns the record
	// to publish into the registry. upgrade requests a schema upgrade
	// during open.
	OpenDatabase(ctx context.Context, entry CatalogEntry, upgrade bool) (*vocbase.Record, error)
	// CanRemoveVocBase reports whether rec has no outstanding operation
	// holding it open, making it safe to destroy.
	CanRemoveVocBase(rec *vocbase.Record) bool
	// DestroyVocBase releases the engine-owned resources for rec. The
	// caller is responsible for removing rec.Path from disk afterward.
	DestroyVocBase(rec *vocbase.Record) error
	// IsEmptyDataDir reports whether the engine's data directory contained
	// no databases at Initialize time.
	IsEmptyDataDir() bool
}

// IndexDropper is implemented by engines that maintain a persistent
// sidecar index keyed by database id, independent of the database's own
// datafiles. It is optional: an engine that does not implement it is
// simply never asked to drop sidecar state.
type IndexDropper interface {
	DropDatabaseIndex(id int64) error
}
