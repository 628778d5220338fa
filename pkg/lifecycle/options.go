package lifecycle

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// MinJournalSize is the smallest value ValidateOptions accepts for
// Options.MaximalJournalSize.
const MinJournalSize = 1 << 20 // 1MiB

// Options holds the recognized database.* configuration. The yaml tags let
// it double as the schema for an optional on-disk config file, loaded
// before flags are bound so that flags still take precedence.
type Options struct {
	MaximalJournalSize            uint64        `yaml:"maximalJournalSize"`
	WaitForSync                   bool          `yaml:"waitForSync"`
	ForceSyncProperties           bool          `yaml:"forceSyncProperties"`
	IgnoreDatafileErrors          bool          `yaml:"ignoreDatafileErrors"`
	ThrowCollectionNotLoadedError bool          `yaml:"throwCollectionNotLoadedError"`
	ReplicationApplier            bool          `yaml:"replicationApplier"`
	CheckVersion                  bool          `yaml:"checkVersion"`
	AutoUpgrade                   bool          `yaml:"autoUpgrade"`
	IdleInterval                  time.Duration `yaml:"idleInterval"`

	DataDir string `yaml:"dataDir"`
	AppPath string `yaml:"appPath"`
}

// LoadConfigFile reads a YAML config file at path and merges it into opts.
// Keys absent from the file leave the corresponding field untouched, so
// callers typically populate opts with DefaultOptions first. It is a no-op
// error (not swallowed, but distinguishable) when path does not exist,
// since the config file is optional.
func LoadConfigFile(path string, opts *Options) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, opts); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// DefaultOptions returns the option set vocd starts with absent any flags.
func DefaultOptions() Options {
	return Options{
		MaximalJournalSize: 32 * 1024 * 1024,
		WaitForSync:        false,
		ReplicationApplier: true,
		IdleInterval:       500 * time.Millisecond,
	}
}

// CollectOptions registers the recognized database.* flags on cmd,
// including the legacy server.disable-replication-applier alias.
func CollectOptions(cmd *cobra.Command, opts *Options) {
	flags := cmd.PersistentFlags()

	flags.Uint64Var(&opts.MaximalJournalSize, "database.maximal-journal-size", opts.MaximalJournalSize,
		"default journal size for new collections, in bytes")
	flags.BoolVar(&opts.WaitForSync, "database.wait-for-sync", opts.WaitForSync,
		"default durability mode for new collections")
	flags.BoolVar(&opts.ForceSyncProperties, "database.force-sync-properties", opts.ForceSyncProperties,
		"force fsync of collection metadata on every change")
	flags.BoolVar(&opts.IgnoreDatafileErrors, "database.ignore-datafile-errors", opts.IgnoreDatafileErrors,
		"continue opening collections whose datafiles contain errors")
	flags.BoolVar(&opts.ThrowCollectionNotLoadedError, "database.throw-collection-not-loaded-error", opts.ThrowCollectionNotLoadedError,
		"reject operations on a not-yet-loaded collection instead of blocking")
	flags.BoolVar(&opts.ReplicationApplier, "database.replication-applier", opts.ReplicationApplier,
		"enable the replication applier subsystem")
	flags.BoolVar(&opts.CheckVersion, "database.check-version", opts.CheckVersion,
		"check the database version and exit")
	flags.BoolVar(&opts.AutoUpgrade, "database.auto-upgrade", opts.AutoUpgrade,
		"perform a schema upgrade on open")
	flags.DurationVar(&opts.IdleInterval, "database.idle-interval", opts.IdleInterval,
		"database manager idle sleep between empty reclaim cycles")

	flags.Bool("server.disable-replication-applier", false,
		"(deprecated, use --database.replication-applier=false) disable the replication applier")
}

// ApplyLegacyAliases reconciles deprecated flags with their replacement.
// Call it after cmd.Flags() has been parsed.
func ApplyLegacyAliases(cmd *cobra.Command, opts *Options) {
	if disabled, _ := cmd.Flags().GetBool("server.disable-replication-applier"); disabled {
		opts.ReplicationApplier = false
	}
}

// ValidateOptions enforces the fatal option constraints.
func ValidateOptions(opts *Options) error {
	if opts.MaximalJournalSize < MinJournalSize {
		return fmt.Errorf("database.maximal-journal-size must be at least %d bytes, got %d", MinJournalSize, opts.MaximalJournalSize)
	}
	if opts.CheckVersion && opts.AutoUpgrade {
		return fmt.Errorf("database.check-version and database.auto-upgrade are mutually exclusive")
	}
	return nil
}
