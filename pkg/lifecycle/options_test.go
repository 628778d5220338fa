package lifecycle

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestValidateOptionsRejectsSmallJournalSize(t *testing.T) {
	opts := DefaultOptions()
	opts.MaximalJournalSize = 1024
	if err := ValidateOptions(&opts); err == nil {
		t.Fatal("expected an error for a journal size below MinJournalSize")
	}
}

func TestValidateOptionsRejectsCheckVersionWithAutoUpgrade(t *testing.T) {
	opts := DefaultOptions()
	opts.CheckVersion = true
	opts.AutoUpgrade = true
	if err := ValidateOptions(&opts); err == nil {
		t.Fatal("expected an error for check-version combined with auto-upgrade")
	}
}

func TestLoadConfigFileOverridesDefaultsButNotAbsentKeys(t *testing.T) {
	opts := DefaultOptions()
	original := opts.ReplicationApplier

	dir := t.TempDir()
	path := filepath.Join(dir, "vocd.yaml")
	contents := "dataDir: /var/lib/vocd\nidleInterval: 250ms\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	if err := LoadConfigFile(path, &opts); err != nil {
		t.Fatalf("LoadConfigFile failed: %v", err)
	}

	if opts.DataDir != "/var/lib/vocd" {
		t.Fatalf("expected dataDir to be set from file, got %q", opts.DataDir)
	}
	if opts.IdleInterval != 250*time.Millisecond {
		t.Fatalf("expected idleInterval 250ms, got %v", opts.IdleInterval)
	}
	if opts.ReplicationApplier != original {
		t.Fatalf("expected replicationApplier to be left untouched, got %v", opts.ReplicationApplier)
	}
}

func TestLoadConfigFileMissingFileReturnsError(t *testing.T) {
	opts := DefaultOptions()
	if err := LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml"), &opts); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}
