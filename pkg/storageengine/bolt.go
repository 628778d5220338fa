package storageengine

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/vocbase/vocd/pkg/vocbase"
)

var (
	databasesBucket = []byte("databases")
	indexesBucket   = []byte("indexes")
)

// BoltEngine is a go.etcd.io/bbolt-backed Engine. It persists the database
// catalog in one bucket, keyed by name, and an optional per-database index
// sidecar in another, keyed by id, the way the catalog the lifecycle
// controller iterates on bootstrap is expected to look.
type BoltEngine struct {
	db      *bolt.DB
	dataDir string

	mu          sync.Mutex
	pinCount    map[int64]int
	emptyAtInit bool
}

// NewBoltEngine opens (creating if necessary) a catalog database rooted at
// dataDir.
func NewBoltEngine(dataDir string) (*BoltEngine, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dataDir, err)
	}

	dbPath := filepath.Join(dataDir, "catalog.db")
	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog %s: %w", dbPath, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{databasesBucket, indexesBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &BoltEngine{
		db:       db,
		dataDir:  dataDir,
		pinCount: make(map[int64]int),
	}, nil
}

// Initialize records whether the catalog was empty at startup, used by the
// lifecycle controller's check-version boundary behavior.
func (e *BoltEngine) Initialize(ctx context.Context) error {
	entries, err := e.GetDatabases(ctx)
	if err != nil {
		return err
	}
	e.emptyAtInit = len(entries) == 0
	return nil
}

func (e *BoltEngine) Shutdown(ctx context.Context) error {
	return e.db.Close()
}

func (e *BoltEngine) GetDatabases(ctx context.Context) ([]CatalogEntry, error) {
	var entries []CatalogEntry
	err := e.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(databasesBucket)
		return b.ForEach(func(k, v []byte) error {
			var entry CatalogEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("failed to decode catalog entry %s: %w", k, err)
			}
			entries = append(entries, entry)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// CreateDatabase persists entry in the catalog. It is not part of the
// Engine interface; the lifecycle controller's CreateDatabase calls it
// through an optional-interface check to persist a database created at
// runtime.
func (e *BoltEngine) CreateDatabase(ctx context.Context, entry CatalogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode catalog entry: %w", err)
	}
	return e.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(databasesBucket).Put([]byte(entry.Name), data)
	})
}

func (e *BoltEngine) OpenDatabase(ctx context.Context, entry CatalogEntry, upgrade bool) (*vocbase.Record, error) {
	if entry.Type == vocbase.Coordinator {
		return vocbase.NewCoordinatorRecord(entry.ID, entry.Name), nil
	}

	if err := os.MkdirAll(entry.Path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory %s: %w", entry.Path, err)
	}
	return vocbase.NewRecord(entry.ID, entry.Name, entry.Path, entry.OwnsAppsDirectory), nil
}

// Pin marks id as in use, preventing CanRemoveVocBase from returning true
// for it. Unpin reverses that. These stand in for the reference counting a
// real query executor would perform; the executor itself is out of scope.
func (e *BoltEngine) Pin(id int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pinCount[id]++
}

func (e *BoltEngine) Unpin(id int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pinCount[id] > 0 {
		e.pinCount[id]--
	}
}

func (e *BoltEngine) CanRemoveVocBase(rec *vocbase.Record) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pinCount[rec.ID] == 0
}

func (e *BoltEngine) DestroyVocBase(rec *vocbase.Record) error {
	return e.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(databasesBucket).Delete([]byte(rec.Name)); err != nil {
			return fmt.Errorf("failed to remove catalog entry %s: %w", rec.Name, err)
		}
		return tx.Bucket(indexesBucket).Delete(idKey(rec.ID))
	})
}

// DropDatabaseIndex implements the optional IndexDropper interface.
func (e *BoltEngine) DropDatabaseIndex(id int64) error {
	return e.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(indexesBucket).Delete(idKey(id))
	})
}

func (e *BoltEngine) IsEmptyDataDir() bool {
	return e.emptyAtInit
}

func idKey(id int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(id))
	return buf
}
