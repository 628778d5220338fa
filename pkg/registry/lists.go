package registry

import "github.com/vocbase/vocd/pkg/vocbase"

// DatabasesLists is the immutable snapshot published by a Registry. A
// snapshot, once stored, is never mutated; a writer that wants to change
// membership builds a new DatabasesLists from a clone of the current one
// and publishes it in place of the old one.
type DatabasesLists struct {
	// Databases holds live, normal-type records keyed by name.
	Databases map[string]*vocbase.Record
	// CoordinatorDatabases holds live, coordinator-type records keyed by name.
	CoordinatorDatabases map[string]*vocbase.Record
	// DroppedDatabases holds records that have been dropped but not yet
	// physically reclaimed, keyed by the record itself.
	DroppedDatabases map[*vocbase.Record]struct{}
}

func newEmptyLists() *DatabasesLists {
	return &DatabasesLists{
		Databases:            make(map[string]*vocbase.Record),
		CoordinatorDatabases: make(map[string]*vocbase.Record),
		DroppedDatabases:     make(map[*vocbase.Record]struct{}),
	}
}

// clone returns a new DatabasesLists whose three maps are shallow copies of
// the receiver's: the maps themselves are independent so a builder can add
// or remove entries without mutating the published snapshot, but the
// *vocbase.Record values they point to are shared, never copied (a record's
// State written in place by ShutdownCompactor is seen through every
// snapshot that holds the record).
func (l *DatabasesLists) clone() *DatabasesLists {
	next := &DatabasesLists{
		Databases:            make(map[string]*vocbase.Record, len(l.Databases)),
		CoordinatorDatabases: make(map[string]*vocbase.Record, len(l.CoordinatorDatabases)),
		DroppedDatabases:     make(map[*vocbase.Record]struct{}, len(l.DroppedDatabases)),
	}
	for k, v := range l.Databases {
		next.Databases[k] = v
	}
	for k, v := range l.CoordinatorDatabases {
		next.CoordinatorDatabases[k] = v
	}
	for k, v := range l.DroppedDatabases {
		next.DroppedDatabases[k] = v
	}
	return next
}

// Lookup returns the record named name, searching normal then coordinator
// databases.
func (l *DatabasesLists) Lookup(name string) (*vocbase.Record, bool) {
	if rec, ok := l.Databases[name]; ok {
		return rec, true
	}
	if rec, ok := l.CoordinatorDatabases[name]; ok {
		return rec, true
	}
	return nil, false
}
