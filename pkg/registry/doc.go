/*
Package registry implements vocd's hazard-protected database registry: the
structure that lets every request resolve a database by name without
blocking on a lock, while a rare writer creates, drops, or reclaims
databases underneath it.

# Architecture

	┌──────────────────────── REGISTRY ─────────────────────────┐
	│                                                             │
	│   readers (many)                    writer (one at a time) │
	│   ───────────────                   ──────────────────────│
	│   guard := r.Use()                  r.writerMu.Lock()      │
	│   list := current.Load()            old := current.Load()  │
	│   rec := list.Lookup(name)          next := old.clone()    │
	│   ... use rec ...                   build(next)            │
	│   guard.Release()                   current.Store(next)    │
	│                                      protector.scan() ─┐    │
	│                                      r.writerMu.Unlock()│   │
	│                                                         │   │
	│   RLock-based guards acquired before the Store()────────┘   │
	│   above must all Release() before scan() returns.           │
	└─────────────────────────────────────────────────────────────┘

# Core components

Snapshot (DatabasesLists): an immutable triple of maps — live normal
databases, live coordinator databases, and dropped-but-not-yet-reclaimed
databases. A snapshot is built once by a Builder and never mutated again;
replacing membership means building and publishing a new snapshot.

Publication (atomic.Pointer[DatabasesLists]): the writer publishes a new
snapshot with a single atomic store, which is already a release operation —
any reader that subsequently loads the pointer is guaranteed to see every
write the builder made before the store.

Protector: a drain barrier built from sync.RWMutex, used only to detect
quiescence. Readers take the read side (Use/Release); a writer that has just
published a new snapshot takes and immediately releases the write side
(scan) to block until every reader registered before publication has
finished. This gives readers uncontended, allocation-free lookups in the
common case and gives the writer a correctness guarantee without reference
counting or hazard-pointer lists: once scan returns, no goroutine can still
be examining the old snapshot through a guard acquired before publication.

# Usage

	reg := registry.New()

	// Reader:
	guard, snap := reg.Snapshot()
	rec, ok := snap.Lookup("_system")
	guard.Release()

	// Writer, e.g. dropping a database:
	err := reg.Replace(func(next *registry.DatabasesLists) error {
	    rec, ok := next.Databases["mydb"]
	    if !ok {
	        return vocbase.NewNotFoundError("mydb")
	    }
	    delete(next.Databases, "mydb")
	    next.DroppedDatabases[rec] = struct{}{}
	    return nil
	})

# Why not a plain sync.RWMutex around a map

A single RWMutex guarding a mutable map serializes every lookup against
every write, and a long write (e.g. iterating hundreds of databases during
bootstrap) would stall the read path entirely. Separating "what is
published" (the atomic pointer) from "has everyone finished reading the
previous thing" (the protector) lets reads stay cheap regardless of how
long a writer's snapshot-building step takes; the writer only pays the
protector's drain cost once, after publication, not while building the new
snapshot.

# Invariants

  - Exactly one DatabasesLists is reachable from Registry.current at any
    instant.
  - A *vocbase.Record is never present in more than one of a snapshot's
    three member sets.
  - A record is freed by its owner only after it has been absent from every
    published snapshot for at least one full protector.scan().
*/
package registry
