// Package directory provisions the filesystem layout the lifecycle
// controller and database manager rely on: the base application directory
// tree and each database's own application subdirectory.
package directory

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/vocbase/vocd/pkg/log"
	"github.com/vocbase/vocd/pkg/wal"
)

// Provisioner creates the directories vocd expects to exist under an
// application path, idempotently.
type Provisioner struct {
	logger zerolog.Logger
	wal    wal.WAL
}

// New returns a Provisioner. w may be nil if WAL recovery state is not
// relevant to the caller (log lines fall back to info level).
func New(w wal.WAL) *Provisioner {
	return &Provisioner{logger: log.WithComponent("directory"), wal: w}
}

// EnsureBaseAppDir creates <appPath>/<kind> if it does not already exist.
// An empty appPath is a no-op, matching deployments that run without an
// application directory at all.
func (p *Provisioner) EnsureBaseAppDir(appPath, kind string) error {
	if appPath == "" {
		return nil
	}
	dir := filepath.Join(appPath, kind)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create base application directory %s: %w", dir, err)
	}
	return nil
}

// EnsureDatabaseAppDir creates <appPath>/db/<name>, idempotently. It logs
// at trace level during WAL recovery (the caller iterates many databases in
// that path and a line per database would be noisy) and at info otherwise.
func (p *Provisioner) EnsureDatabaseAppDir(name, appPath string) error {
	if appPath == "" {
		return nil
	}
	dir := filepath.Join(appPath, "db", name)

	_, statErr := os.Stat(dir)
	alreadyExists := statErr == nil

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create application directory %s: %w", dir, err)
	}

	event := p.logger.Info()
	if p.wal != nil && p.wal.IsInRecovery() {
		event = p.logger.Trace()
	}
	event.Str("database", name).Str("path", dir).Bool("already_existed", alreadyExists).
		Msg("ensured database application directory")
	return nil
}
