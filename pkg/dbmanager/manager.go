// Package dbmanager implements the database manager goroutine: the single
// background loop that reclaims dropped databases once the storage engine
// says it is safe to, expires timed-out queries, and periodically
// garbage-collects coordinator cursor repositories.
package dbmanager

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vocbase/vocd/pkg/clusterstate"
	"github.com/vocbase/vocd/pkg/log"
	"github.com/vocbase/vocd/pkg/metrics"
	"github.com/vocbase/vocd/pkg/queryregistry"
	"github.com/vocbase/vocd/pkg/registry"
	"github.com/vocbase/vocd/pkg/storageengine"
	"github.com/vocbase/vocd/pkg/vocbase"
)

// DefaultIdleInterval is how long the manager sleeps between empty
// reclaim cycles when Config.IdleInterval is zero.
const DefaultIdleInterval = 500 * time.Millisecond

// coordinatorGCEvery is how many idle cycles elapse between coordinator
// cursor garbage collection passes.
const coordinatorGCEvery = 10

// Config configures a Manager.
type Config struct {
	Registry      *registry.Registry
	Engine        storageengine.Engine
	QueryRegistry queryregistry.QueryRegistry
	ClusterState  clusterstate.ClusterState
	AppPath       string
	IdleInterval  time.Duration
}

// Manager is the database manager goroutine.
type Manager struct {
	registry      *registry.Registry
	engine        storageengine.Engine
	queryRegistry queryregistry.QueryRegistry
	clusterState  clusterstate.ClusterState
	appPath       string
	idleInterval  time.Duration
	logger        zerolog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	newDrop  chan struct{}

	running atomic.Bool
	cycles  atomic.Int64
}

// New constructs a Manager. Start must be called to begin its loop.
func New(cfg Config) *Manager {
	idle := cfg.IdleInterval
	if idle <= 0 {
		idle = DefaultIdleInterval
	}
	return &Manager{
		registry:      cfg.Registry,
		engine:        cfg.Engine,
		queryRegistry: cfg.QueryRegistry,
		clusterState:  cfg.ClusterState,
		appPath:       cfg.AppPath,
		idleInterval:  idle,
		logger:        log.WithComponent("dbmanager"),
		stopCh:        make(chan struct{}),
		done:          make(chan struct{}),
		newDrop:       make(chan struct{}, 1),
	}
}

// Start launches the manager loop in its own goroutine.
func (m *Manager) Start() {
	m.running.Store(true)
	go m.run()
}

// NotifyDrop wakes an idle manager early instead of waiting out the full
// idle interval, so a fresh drop is reclaimed promptly. It never blocks.
func (m *Manager) NotifyDrop() {
	select {
	case m.newDrop <- struct{}{}:
	default:
	}
}

// Stop asks the loop to exit and blocks until it has. Calling Stop more
// than once is safe.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	<-m.done
}

func (m *Manager) run() {
	defer close(m.done)
	defer m.running.Store(false)

	m.logger.Info().Msg("database manager started")
	defer m.logger.Info().Msg("database manager stopped")

	for {
		select {
		case <-m.stopCh:
			return
		default:
		}

		cycleID := uuid.NewString()
		timer := metrics.NewTimer()
		reclaimed, err := m.tryReclaimOne(cycleID)
		if err != nil {
			m.logger.Error().Err(err).Str("cycle_id", cycleID).Msg("reclaim cycle failed")
		}
		timer.ObserveDuration(metrics.ManagerCycleDuration)
		metrics.ManagerCyclesTotal.Inc()

		if reclaimed {
			continue
		}

		select {
		case <-m.stopCh:
			return
		case <-m.newDrop:
			continue
		case <-time.After(m.idleInterval):
		}

		m.queryRegistry.ExpireQueries()

		if m.cycles.Add(1) >= coordinatorGCEvery {
			m.cycles.Store(0)
			if m.clusterState.IsCoordinator() {
				m.garbageCollectCoordinatorCursors()
			}
		}
	}
}

// tryReclaimOne scans the dropped set for one record the engine says is
// safe to remove, removes it from the registry, then physically destroys
// it. It returns true if a record was reclaimed.
func (m *Manager) tryReclaimOne(cycleID string) (bool, error) {
	guard, snap := m.registry.Snapshot()
	var candidate *vocbase.Record
	for rec := range snap.DroppedDatabases {
		if m.engine.CanRemoveVocBase(rec) {
			candidate = rec
			break
		}
	}
	guard.Release()

	if candidate == nil {
		return false, nil
	}

	err := m.registry.Replace(func(next *registry.DatabasesLists) error {
		delete(next.DroppedDatabases, candidate)
		return nil
	})
	if err != nil {
		return false, err
	}

	m.destroy(candidate, cycleID)
	metrics.DatabasesReclaimedTotal.Inc()
	return true, nil
}

func (m *Manager) destroy(rec *vocbase.Record, cycleID string) {
	rec.StopCompactor()

	if rec.Type != vocbase.Normal {
		return
	}

	if dropper, ok := m.engine.(storageengine.IndexDropper); ok {
		if err := dropper.DropDatabaseIndex(rec.ID); err != nil {
			metrics.ReclaimErrorsTotal.WithLabelValues("index").Inc()
			m.logger.Error().Err(err).Str("cycle_id", cycleID).Int64("database_id", rec.ID).Msg("failed to drop database index")
		}
	}

	if rec.OwnsAppsDirectory && m.appPath != "" {
		appDir := filepath.Join(m.appPath, "_db", rec.Name)
		if err := os.RemoveAll(appDir); err != nil {
			metrics.ReclaimErrorsTotal.WithLabelValues("app_directory").Inc()
			m.logger.Error().Err(err).Str("cycle_id", cycleID).Str("path", appDir).Msg("failed to remove application directory")
		}
	}

	if err := m.engine.DestroyVocBase(rec); err != nil {
		metrics.ReclaimErrorsTotal.WithLabelValues("engine").Inc()
		m.logger.Error().Err(err).Str("cycle_id", cycleID).Str("database", rec.Name).Msg("failed to destroy database in storage engine")
	}

	if rec.Path != "" {
		if err := os.RemoveAll(rec.Path); err != nil {
			metrics.ReclaimErrorsTotal.WithLabelValues("filesystem").Inc()
			m.logger.Error().Err(err).Str("cycle_id", cycleID).Str("path", rec.Path).Msg("failed to remove database directory")
		}
	}
}

func (m *Manager) garbageCollectCoordinatorCursors() {
	guard, snap := m.registry.Snapshot()
	records := make([]*vocbase.Record, 0, len(snap.CoordinatorDatabases))
	for _, rec := range snap.CoordinatorDatabases {
		records = append(records, rec)
	}
	guard.Release()

	for _, rec := range records {
		if rec.CursorRepository == nil {
			continue
		}
		m.gcOne(rec)
	}
}

func (m *Manager) gcOne(rec *vocbase.Record) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error().Interface("panic", r).Str("database", rec.Name).Msg("coordinator cursor GC panicked")
		}
	}()

	if err := rec.CursorRepository.GarbageCollect(false); err != nil {
		m.logger.Error().Err(err).Str("database", rec.Name).Msg("coordinator cursor GC failed")
		return
	}
	metrics.CoordinatorCursorGCTotal.Inc()
}

// Running reports whether the manager's loop goroutine is currently active.
func (m *Manager) Running() bool {
	return m.running.Load()
}
