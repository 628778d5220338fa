package registry

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/vocbase/vocd/pkg/metrics"
	"github.com/vocbase/vocd/pkg/vocbase"
)

// Builder edits, in place, a clone of the currently-published
// DatabasesLists; the edited clone is the snapshot Replace publishes. It
// must not retain or mutate the argument after returning. Returning a
// non-nil error
// aborts the replacement: Replace leaves the current snapshot untouched and
// returns the error to its caller, so a builder failure never results in a
// partially-applied snapshot reaching readers.
type Builder func(next *DatabasesLists) error

// Registry is the hazard-protected, single-writer/many-reader database
// registry. See the package doc for the snapshot-replacement protocol.
type Registry struct {
	current   atomic.Pointer[DatabasesLists]
	writerMu  sync.Mutex
	protector protector
}

// New returns a Registry publishing an empty snapshot.
func New() *Registry {
	r := &Registry{}
	r.current.Store(newEmptyLists())
	return r
}

// Use registers the calling goroutine as a reader. The returned Guard must
// be released before the goroutine blocks indefinitely or returns.
func (r *Registry) Use() Guard {
	return r.protector.use()
}

// Snapshot returns a read guard together with the snapshot current at the
// moment of the call. The guard must be released once the caller is done
// reading from the snapshot or any record reachable from it.
func (r *Registry) Snapshot() (Guard, *DatabasesLists) {
	g := r.protector.use()
	return g, r.current.Load()
}

// Lookup finds a database by name under a short-lived internal guard. It is
// a convenience for callers that only need the record itself and will not
// hold a reference to it past the call returning; callers that go on
// reading the record's fields should prefer Snapshot and hold its guard
// while they do. Record.State is the one field written in place after
// publication, by the lifecycle controller's ShutdownCompactor.
func (r *Registry) Lookup(name string) (*vocbase.Record, bool) {
	g := r.protector.use()
	defer g.Release()
	return r.current.Load().Lookup(name)
}

// Replace runs the snapshot-replacement protocol described in the package
// doc: clone the current snapshot, let build edit the clone, publish it,
// then wait for every reader that held a guard before publication to
// release it. It returns build's error, if any, without publishing
// anything.
func (r *Registry) Replace(build Builder) error {
	r.writerMu.Lock()
	defer r.writerMu.Unlock()

	old := r.current.Load()
	next := old.clone()
	if err := build(next); err != nil {
		metrics.SnapshotReplaceTotal.WithLabelValues("error").Inc()
		return err
	}

	timer := metrics.NewTimer()
	r.current.Store(next)

	scanStart := time.Now()
	r.protector.scan()
	metrics.ScanWaitDuration.Observe(time.Since(scanStart).Seconds())

	timer.ObserveDuration(metrics.SnapshotReplaceDuration)
	metrics.SnapshotReplaceTotal.WithLabelValues("ok").Inc()
	updateGaugesLocked(next)
	return nil
}

func updateGaugesLocked(l *DatabasesLists) {
	metrics.DatabasesTotal.WithLabelValues("live").Set(float64(len(l.Databases)))
	metrics.DatabasesTotal.WithLabelValues("coordinator").Set(float64(len(l.CoordinatorDatabases)))
	metrics.DatabasesTotal.WithLabelValues("dropped").Set(float64(len(l.DroppedDatabases)))
}
