package dbmanager

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vocbase/vocd/pkg/clusterstate"
	"github.com/vocbase/vocd/pkg/queryregistry"
	"github.com/vocbase/vocd/pkg/registry"
	"github.com/vocbase/vocd/pkg/storageengine"
	"github.com/vocbase/vocd/pkg/vocbase"
)

type fakeEngine struct {
	canRemove atomic.Bool
	destroyed atomic.Int32
}

func newFakeEngine(canRemove bool) *fakeEngine {
	e := &fakeEngine{}
	e.canRemove.Store(canRemove)
	return e
}

func (e *fakeEngine) Initialize(ctx context.Context) error { return nil }
func (e *fakeEngine) Shutdown(ctx context.Context) error   { return nil }
func (e *fakeEngine) GetDatabases(ctx context.Context) ([]storageengine.CatalogEntry, error) {
	return nil, nil
}
func (e *fakeEngine) OpenDatabase(ctx context.Context, entry storageengine.CatalogEntry, upgrade bool) (*vocbase.Record, error) {
	return vocbase.NewRecord(entry.ID, entry.Name, entry.Path, entry.OwnsAppsDirectory), nil
}
func (e *fakeEngine) CanRemoveVocBase(rec *vocbase.Record) bool { return e.canRemove.Load() }
func (e *fakeEngine) DestroyVocBase(rec *vocbase.Record) error {
	e.destroyed.Add(1)
	return nil
}
func (e *fakeEngine) IsEmptyDataDir() bool { return false }

type fakeCursorRepository struct {
	gcCount atomic.Int32
}

func (f *fakeCursorRepository) GarbageCollect(expireImmediate bool) error {
	f.gcCount.Add(1)
	return nil
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.True(t, cond(), "condition not met within %s", timeout)
}

func TestManagerReclaimsDroppedDatabase(t *testing.T) {
	reg := registry.New()
	rec := vocbase.NewRecord(1, "mydb", t.TempDir(), false)
	require.NoError(t, reg.Replace(func(next *registry.DatabasesLists) error {
		next.DroppedDatabases[rec] = struct{}{}
		return nil
	}))

	engine := newFakeEngine(true)
	mgr := New(Config{
		Registry:      reg,
		Engine:        engine,
		QueryRegistry: queryregistry.New(),
		ClusterState:  clusterstate.NewSingleNode(),
		IdleInterval:  2 * time.Millisecond,
	})
	mgr.Start()
	defer mgr.Stop()

	waitFor(t, time.Second, func() bool { return engine.destroyed.Load() == 1 })

	_, snap := reg.Snapshot()
	require.Empty(t, snap.DroppedDatabases)
}

func TestManagerDoesNotReclaimWhilePinned(t *testing.T) {
	reg := registry.New()
	rec := vocbase.NewRecord(1, "mydb", t.TempDir(), false)
	require.NoError(t, reg.Replace(func(next *registry.DatabasesLists) error {
		next.DroppedDatabases[rec] = struct{}{}
		return nil
	}))

	engine := newFakeEngine(false)
	mgr := New(Config{
		Registry:      reg,
		Engine:        engine,
		QueryRegistry: queryregistry.New(),
		ClusterState:  clusterstate.NewSingleNode(),
		IdleInterval:  2 * time.Millisecond,
	})
	mgr.Start()
	defer mgr.Stop()

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int32(0), engine.destroyed.Load())

	_, snap := reg.Snapshot()
	require.Len(t, snap.DroppedDatabases, 1)
}

func TestManagerExpiresQueriesWhileIdle(t *testing.T) {
	reg := registry.New()
	queries := queryregistry.New()

	mgr := New(Config{
		Registry:      reg,
		Engine:        newFakeEngine(true),
		QueryRegistry: queries,
		ClusterState:  clusterstate.NewSingleNode(),
		IdleInterval:  2 * time.Millisecond,
	})
	mgr.Start()
	defer mgr.Stop()

	waitFor(t, time.Second, func() bool { return queries.ExpiredCount() > 0 })
}

func TestManagerGarbageCollectsCoordinatorCursorsPeriodically(t *testing.T) {
	reg := registry.New()
	cursors := &fakeCursorRepository{}
	rec := vocbase.NewCoordinatorRecord(9, "routing")
	rec.CursorRepository = cursors
	require.NoError(t, reg.Replace(func(next *registry.DatabasesLists) error {
		next.CoordinatorDatabases[rec.Name] = rec
		return nil
	}))

	mgr := New(Config{
		Registry:      reg,
		Engine:        newFakeEngine(true),
		QueryRegistry: queryregistry.New(),
		ClusterState:  clusterstate.NewCoordinator(),
		IdleInterval:  time.Millisecond,
	})
	mgr.Start()
	defer mgr.Stop()

	waitFor(t, 2*time.Second, func() bool { return cursors.gcCount.Load() > 0 })
}

func TestManagerStopWaitsForLoopExit(t *testing.T) {
	reg := registry.New()
	mgr := New(Config{
		Registry:      reg,
		Engine:        newFakeEngine(true),
		QueryRegistry: queryregistry.New(),
		ClusterState:  clusterstate.NewSingleNode(),
		IdleInterval:  time.Millisecond,
	})
	mgr.Start()
	require.Eventually(t, mgr.Running, time.Second, time.Millisecond)

	mgr.Stop()
	require.False(t, mgr.Running())

	// Stop must be idempotent.
	mgr.Stop()
}
