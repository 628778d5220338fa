package storageengine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vocbase/vocd/pkg/vocbase"
)

func TestBoltEngineCreateAndOpenRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	engine, err := NewBoltEngine(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Shutdown(ctx) })

	require.NoError(t, engine.Initialize(ctx))
	require.True(t, engine.IsEmptyDataDir())

	entry := CatalogEntry{ID: 1, Name: "_system", Type: vocbase.Normal, Path: dir + "/databases/1", OwnsAppsDirectory: true}
	require.NoError(t, engine.CreateDatabase(ctx, entry))

	entries, err := engine.GetDatabases(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, entry, entries[0])

	rec, err := engine.OpenDatabase(ctx, entry, false)
	require.NoError(t, err)
	require.Equal(t, entry.Name, rec.Name)
	require.Equal(t, vocbase.Live, rec.State)
}

func TestBoltEngineCanRemoveVocBaseRespectsPin(t *testing.T) {
	ctx := context.Background()
	engine, err := NewBoltEngine(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Shutdown(ctx) })

	rec := vocbase.NewRecord(1, "mydb", "/tmp/does-not-matter", false)
	require.True(t, engine.CanRemoveVocBase(rec))

	engine.Pin(rec.ID)
	require.False(t, engine.CanRemoveVocBase(rec))

	engine.Unpin(rec.ID)
	require.True(t, engine.CanRemoveVocBase(rec))
}

func TestBoltEngineDestroyVocBaseRemovesCatalogEntry(t *testing.T) {
	ctx := context.Background()
	engine, err := NewBoltEngine(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Shutdown(ctx) })

	entry := CatalogEntry{ID: 2, Name: "mydb", Type: vocbase.Normal, Path: "/tmp/databases/2"}
	require.NoError(t, engine.CreateDatabase(ctx, entry))

	rec, err := engine.OpenDatabase(ctx, entry, false)
	require.NoError(t, err)

	require.NoError(t, engine.DestroyVocBase(rec))

	entries, err := engine.GetDatabases(ctx)
	require.NoError(t, err)
	require.Empty(t, entries)
}
