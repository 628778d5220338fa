package wal

import (
	"fmt"
	"sync/atomic"

	raftboltdb "github.com/hashicorp/raft-boltdb"
)

var lastTickKey = []byte("last_tick")

// FileWAL is a file-backed WAL implementation built on the same
// boltdb-backed stable store hashicorp/raft uses for its own persistent
// state. It does not run Raft consensus; it reuses raft-boltdb purely as a
// durable key/value store for the last-applied tick marker.
type FileWAL struct {
	store      *raftboltdb.BoltStore
	inRecovery atomic.Bool
}

// NewFileWAL opens (creating if necessary) a WAL state file at path.
func NewFileWAL(path string) (*FileWAL, error) {
	store, err := raftboltdb.NewBoltStore(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open wal store %s: %w", path, err)
	}
	return &FileWAL{store: store}, nil
}

// HasFoundLastTick reports whether a prior run recorded a tick.
func (w *FileWAL) HasFoundLastTick() bool {
	tick, err := w.store.GetUint64(lastTickKey)
	if err != nil {
		return false
	}
	return tick > 0
}

// RecordTick persists the last tick successfully applied.
func (w *FileWAL) RecordTick(tick uint64) error {
	if err := w.store.SetUint64(lastTickKey, tick); err != nil {
		return fmt.Errorf("failed to record wal tick: %w", err)
	}
	return nil
}

// SetRecovering flips the in-recovery flag reported by IsInRecovery.
// Nothing in this module calls it; the flag stays false unless a caller
// sets it.
func (w *FileWAL) SetRecovering(v bool) {
	w.inRecovery.Store(v)
}

func (w *FileWAL) IsInRecovery() bool {
	return w.inRecovery.Load()
}

func (w *FileWAL) Close() error {
	return w.store.Close()
}
