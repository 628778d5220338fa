// Package lifecycle implements the database lifecycle controller: the
// component responsible for bootstrapping the database registry from the
// storage engine's catalog, starting the database manager, and sequencing
// an orderly shutdown. It is the top-level collaborator that wires together
// pkg/registry, pkg/dbmanager, pkg/storageengine, pkg/wal, pkg/directory,
// pkg/scriptdealer, pkg/queryregistry and pkg/clusterstate into a single
// running database server core.
package lifecycle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vocbase/vocd/pkg/clusterstate"
	"github.com/vocbase/vocd/pkg/dbmanager"
	"github.com/vocbase/vocd/pkg/directory"
	"github.com/vocbase/vocd/pkg/log"
	"github.com/vocbase/vocd/pkg/metrics"
	"github.com/vocbase/vocd/pkg/queryregistry"
	"github.com/vocbase/vocd/pkg/registry"
	"github.com/vocbase/vocd/pkg/scriptdealer"
	"github.com/vocbase/vocd/pkg/storageengine"
	"github.com/vocbase/vocd/pkg/vocbase"
	"github.com/vocbase/vocd/pkg/wal"
)

var current atomic.Pointer[Controller]

// Current returns the most recently Prepare-d Controller, or nil if none
// has been prepared yet. It exists so collaborators constructed outside the
// controller's own wiring (a request handler, a signal handler) can reach
// the running instance without it being threaded through every call site.
func Current() *Controller {
	return current.Load()
}

// Dependencies are the external collaborators the controller wires
// together. Every field is required except Dealer and WAL: a nil Dealer is
// replaced by a StaticDealer for opts.AppPath, and a nil WAL is treated as
// "not recovering", for deployments that run without a scripting subsystem
// or a WAL.
type Dependencies struct {
	Engine        storageengine.Engine
	WAL           wal.WAL
	Dealer        scriptdealer.Dealer
	QueryRegistry queryregistry.QueryRegistry
	ClusterState  clusterstate.ClusterState
}

// Controller is the database lifecycle controller.
type Controller struct {
	opts Options
	deps Dependencies

	logger      zerolog.Logger
	registry    *registry.Registry
	provisioner *directory.Provisioner
	manager     *dbmanager.Manager

	// instanceID tags every bootstrap's structured logs, so multiple
	// Start/Unprepare cycles against the same process (as in a test
	// harness, or a future warm-restart path) can be told apart in logs
	// that otherwise share the same component field.
	instanceID string

	nextID atomic.Int64

	// deadlockDetectionEnabled is decided once in Start: cross-collection
	// deadlock detection only makes sense on a single server with a
	// non-empty catalog, since a coordinator never holds the collection
	// locks it would be watching. Read by the request layer, out of scope
	// here.
	deadlockDetectionEnabled atomic.Bool
}

// NewController constructs a Controller. Prepare must be called before
// Start, and Start before any other method except ThrowCollectionNotLoadedError.
func NewController(opts Options, deps Dependencies) *Controller {
	if deps.Dealer == nil {
		deps.Dealer = scriptdealer.NewStaticDealer(opts.AppPath)
	}
	return &Controller{
		opts:   opts,
		deps:   deps,
		logger: log.WithComponent("lifecycle"),
	}
}

// Prepare constructs the registry and directory provisioner and publishes
// this Controller as Current. It must run before Start and never fails: it
// allocates in-memory state only, and is split out from Start so that other
// features can register collaborators against Current() before bootstrap
// begins touching the storage engine and filesystem.
func (c *Controller) Prepare() {
	c.registry = registry.New()
	c.provisioner = directory.New(c.deps.WAL)
	c.instanceID = uuid.NewString()
	current.Store(c)
}

// InstanceID returns the correlation id generated for this Prepare/Start
// cycle, stable for the controller's lifetime.
func (c *Controller) InstanceID() string {
	return c.instanceID
}

// ThrowCollectionNotLoadedError reports the configured policy for
// operations against a not-yet-loaded collection. It is read by the request
// layer, which is out of scope here.
func (c *Controller) ThrowCollectionNotLoadedError() bool {
	return c.opts.ThrowCollectionNotLoadedError
}

// DeadlockDetectionEnabled reports whether cross-collection deadlock
// detection was armed during Start. It is read by the request layer, which
// is out of scope here.
func (c *Controller) DeadlockDetectionEnabled() bool {
	return c.deadlockDetectionEnabled.Load()
}

// Registry returns the controller's database registry.
func (c *Controller) Registry() *registry.Registry {
	return c.registry
}

// Start runs the bootstrap sequence: it initializes the storage engine,
// provisions the application directory tree, opens every database in the
// catalog and publishes them in a single registry snapshot, then starts the
// database manager.
//
// If the engine reports an empty data directory, Start returns
// ErrCheckVersionExit when database.check-version is set (the caller should
// treat this as a clean exit), or a fatal error otherwise: a server with no
// databases and no check-version request cannot do anything useful.
func (c *Controller) Start(ctx context.Context) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.BootstrapDuration)

	if err := c.deps.Engine.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize storage engine: %w", err)
	}

	if c.deps.Engine.IsEmptyDataDir() {
		if c.opts.CheckVersion {
			return ErrCheckVersionExit
		}
		return fmt.Errorf("cannot start server: no databases found in data directory and database.check-version is not set")
	}

	appPath := c.deps.Dealer.AppPath()
	if appPath != "" {
		if err := os.MkdirAll(appPath, 0o755); err != nil {
			return fmt.Errorf("failed to create application directory %s: %w", appPath, err)
		}
	}
	if err := c.provisioner.EnsureBaseAppDir(appPath, "_db"); err != nil {
		return err
	}

	entries, err := c.deps.Engine.GetDatabases(ctx)
	if err != nil {
		return fmt.Errorf("failed to read database catalog: %w", err)
	}

	var maxID int64
	var opened []*vocbase.Record
	err = c.registry.Replace(func(next *registry.DatabasesLists) error {
		for _, entry := range entries {
			if err := c.provisioner.EnsureDatabaseAppDir(entry.Name, appPath); err != nil {
				return fmt.Errorf("failed to provision application directory for database %s: %w", entry.Name, err)
			}

			createTimer := metrics.NewTimer()
			rec, err := c.deps.Engine.OpenDatabase(ctx, entry, c.opts.AutoUpgrade)
			if err != nil {
				return fmt.Errorf("failed to open database %s: %w", entry.Name, err)
			}
			createTimer.ObserveDuration(metrics.DatabaseCreateDuration)

			if entry.Type == vocbase.Coordinator {
				next.CoordinatorDatabases[rec.Name] = rec
			} else {
				next.Databases[rec.Name] = rec
			}
			opened = append(opened, rec)

			if entry.ID > maxID {
				maxID = entry.ID
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("bootstrap failed to publish initial database catalog: %w", err)
	}
	c.nextID.Store(maxID + 1)

	c.manager = dbmanager.New(dbmanager.Config{
		Registry:      c.registry,
		Engine:        c.deps.Engine,
		QueryRegistry: c.deps.QueryRegistry,
		ClusterState:  c.deps.ClusterState,
		AppPath:       appPath,
		IdleInterval:  c.opts.IdleInterval,
	})
	c.manager.Start()

	if len(opened) > 0 && !c.deps.ClusterState.IsRunningInCluster() {
		c.deadlockDetectionEnabled.Store(true)
	}

	for _, rec := range opened {
		c.deps.Dealer.DefineContextUpdate(c.contextInitializer, rec)
	}

	c.logger.Info().
		Str("instance_id", c.instanceID).
		Int("databases", len(opened)).
		Bool("deadlock_detection", c.deadlockDetectionEnabled.Load()).
		Msg("lifecycle controller bootstrap complete")
	return nil
}

// ShutdownCompactor transitions every normal database's compactor through
// StoppingCompactor to Stopped and joins its compactor and cleanup
// goroutines. It must run after the request-serving layer (out of scope
// here) has stopped accepting new work, so the State field is not read
// concurrently with this method's writes to it.
func (c *Controller) ShutdownCompactor() {
	guard, snap := c.registry.Snapshot()
	records := make([]*vocbase.Record, 0, len(snap.Databases))
	for _, rec := range snap.Databases {
		records = append(records, rec)
	}
	guard.Release()

	for _, rec := range records {
		rec.State = vocbase.StoppingCompactor
		rec.StopCompactor()
		rec.State = vocbase.Stopped
	}
}

// Unprepare runs the shutdown sequence: stop replication appliers, close
// every open database, stop the database manager, close every dropped
// database still pending reclaim, then shut down the storage engine. It
// clears Current() on success so a subsequent Prepare/Start cycle (as in a
// test harness) starts clean.
func (c *Controller) Unprepare(ctx context.Context) error {
	if c.opts.ReplicationApplier {
		guard, snap := c.registry.Snapshot()
		appliers := make([]vocbase.Applier, 0, len(snap.Databases))
		for _, rec := range snap.Databases {
			if rec.Applier != nil {
				appliers = append(appliers, rec.Applier)
			}
		}
		guard.Release()
		for _, applier := range appliers {
			applier.Stop()
		}
	}

	var toClose []*vocbase.Record
	err := c.registry.Replace(func(next *registry.DatabasesLists) error {
		for _, rec := range next.Databases {
			toClose = append(toClose, rec)
		}
		for _, rec := range next.CoordinatorDatabases {
			toClose = append(toClose, rec)
		}
		next.Databases = make(map[string]*vocbase.Record)
		next.CoordinatorDatabases = make(map[string]*vocbase.Record)
		return nil
	})
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to close open databases")
	}
	for _, rec := range toClose {
		c.destroyRecord(rec)
	}

	if c.manager != nil {
		c.manager.Stop()
	}

	var toReclaim []*vocbase.Record
	err = c.registry.Replace(func(next *registry.DatabasesLists) error {
		for rec := range next.DroppedDatabases {
			toReclaim = append(toReclaim, rec)
		}
		next.DroppedDatabases = make(map[*vocbase.Record]struct{})
		return nil
	})
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to close dropped databases")
	}
	for _, rec := range toReclaim {
		c.destroyRecord(rec)
	}

	if err := c.deps.Engine.Shutdown(ctx); err != nil {
		return fmt.Errorf("storage engine shutdown failed: %w", err)
	}

	current.CompareAndSwap(c, nil)
	return nil
}

// destroyRecord stops a record's compactor and removes its on-disk state.
// Unlike the database manager's reclaim path, it does not consult
// CanRemoveVocBase: shutdown destroys every remaining record regardless of
// outstanding pins.
func (c *Controller) destroyRecord(rec *vocbase.Record) {
	rec.StopCompactor()

	if rec.Type != vocbase.Normal {
		return
	}

	if dropper, ok := c.deps.Engine.(storageengine.IndexDropper); ok {
		if err := dropper.DropDatabaseIndex(rec.ID); err != nil {
			c.logger.Error().Err(err).Int64("database_id", rec.ID).Msg("failed to drop database index during shutdown")
		}
	}

	if rec.OwnsAppsDirectory && c.deps.Dealer.AppPath() != "" {
		appDir := filepath.Join(c.deps.Dealer.AppPath(), "_db", rec.Name)
		if err := os.RemoveAll(appDir); err != nil {
			c.logger.Error().Err(err).Str("path", appDir).Msg("failed to remove application directory during shutdown")
		}
	}

	if err := c.deps.Engine.DestroyVocBase(rec); err != nil {
		c.logger.Error().Err(err).Str("database", rec.Name).Msg("failed to destroy database in storage engine during shutdown")
	}
}

// CreateDatabase opens a new database through the storage engine and
// publishes it into the registry in a single snapshot replacement.
func (c *Controller) CreateDatabase(ctx context.Context, name string, dbType vocbase.Type, ownsAppsDir bool) (*vocbase.Record, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.DatabaseCreateDuration)

	if _, exists := c.registry.Lookup(name); exists {
		return nil, vocbase.NewAlreadyExistsError(name)
	}

	id := c.nextID.Add(1)
	path := filepath.Join(c.opts.DataDir, "databases", strconv.FormatInt(id, 10))
	entry := storageengine.CatalogEntry{ID: id, Name: name, Type: dbType, Path: path, OwnsAppsDirectory: ownsAppsDir}

	if err := c.provisioner.EnsureDatabaseAppDir(name, c.deps.Dealer.AppPath()); err != nil {
		return nil, err
	}

	rec, err := c.deps.Engine.OpenDatabase(ctx, entry, false)
	if err != nil {
		return nil, fmt.Errorf("failed to create database %s: %w", name, err)
	}

	type catalogWriter interface {
		CreateDatabase(ctx context.Context, entry storageengine.CatalogEntry) error
	}
	if writer, ok := c.deps.Engine.(catalogWriter); ok {
		if err := writer.CreateDatabase(ctx, entry); err != nil {
			return nil, fmt.Errorf("failed to persist catalog entry for database %s: %w", name, err)
		}
	}

	err = c.registry.Replace(func(next *registry.DatabasesLists) error {
		if _, exists := next.Lookup(name); exists {
			return vocbase.NewAlreadyExistsError(name)
		}
		if dbType == vocbase.Coordinator {
			next.CoordinatorDatabases[name] = rec
		} else {
			next.Databases[name] = rec
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.deps.Dealer.DefineContextUpdate(c.contextInitializer, rec)
	return rec, nil
}

// DropDatabase moves a live database into the dropped set. The database
// manager reclaims it once the storage engine reports it safe to remove.
func (c *Controller) DropDatabase(name string) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.DatabaseDropDuration)

	err := c.registry.Replace(func(next *registry.DatabasesLists) error {
		if rec, ok := next.Databases[name]; ok {
			delete(next.Databases, name)
			next.DroppedDatabases[rec] = struct{}{}
			return nil
		}
		if rec, ok := next.CoordinatorDatabases[name]; ok {
			delete(next.CoordinatorDatabases, name)
			next.DroppedDatabases[rec] = struct{}{}
			return nil
		}
		return vocbase.NewNotFoundError(name)
	})
	if err != nil {
		return err
	}

	if c.manager != nil {
		c.manager.NotifyDrop()
	}
	return nil
}

func (c *Controller) contextInitializer(rec *vocbase.Record) {
	c.logger.Debug().Str("database", rec.Name).Msg("script context bound to database")
}
