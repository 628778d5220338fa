// Package wal defines the narrow view of the write-ahead log the lifecycle
// controller and directory provisioner need during bootstrap, and ships a
// file-backed implementation of it. The log's own replay and durability
// semantics are an external collaborator's concern; only the last-applied
// marker and the in-recovery flag are consumed here.
package wal

// WAL is the consumed contract: whether a last-applied tick was found on
// disk, and whether a recovery pass is currently in progress (which changes
// the log level the directory provisioner uses when creating directories).
// The lifecycle controller's bootstrap does not call HasFoundLastTick and
// does not iterate markers on open.
type WAL interface {
	HasFoundLastTick() bool
	IsInRecovery() bool
}
