package directory

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEnsureBaseAppDirIsIdempotent(t *testing.T) {
	p := New(nil)
	root := t.TempDir()

	if err := p.EnsureBaseAppDir(root, "_db"); err != nil {
		t.Fatalf("first EnsureBaseAppDir failed: %v", err)
	}
	if err := p.EnsureBaseAppDir(root, "_db"); err != nil {
		t.Fatalf("second EnsureBaseAppDir failed: %v", err)
	}

	info, err := os.Stat(filepath.Join(root, "_db"))
	if err != nil {
		t.Fatalf("expected directory to exist: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("expected _db to be a directory")
	}
}

func TestEnsureBaseAppDirEmptyPathIsNoOp(t *testing.T) {
	p := New(nil)
	if err := p.EnsureBaseAppDir("", "_db"); err != nil {
		t.Fatalf("EnsureBaseAppDir with empty appPath returned error: %v", err)
	}
}

func TestEnsureDatabaseAppDirCreatesNestedPath(t *testing.T) {
	p := New(nil)
	root := t.TempDir()

	if err := p.EnsureDatabaseAppDir("mydb", root); err != nil {
		t.Fatalf("EnsureDatabaseAppDir failed: %v", err)
	}

	info, err := os.Stat(filepath.Join(root, "db", "mydb"))
	if err != nil {
		t.Fatalf("expected directory to exist: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("expected db/mydb to be a directory")
	}

	if err := p.EnsureDatabaseAppDir("mydb", root); err != nil {
		t.Fatalf("second EnsureDatabaseAppDir call failed: %v", err)
	}
}

type fakeWAL struct{ recovering bool }

func (f fakeWAL) HasFoundLastTick() bool { return true }
func (f fakeWAL) IsInRecovery() bool     { return f.recovering }

func TestEnsureDatabaseAppDirDuringRecovery(t *testing.T) {
	p := New(fakeWAL{recovering: true})
	root := t.TempDir()

	if err := p.EnsureDatabaseAppDir("mydb", root); err != nil {
		t.Fatalf("EnsureDatabaseAppDir during recovery failed: %v", err)
	}
}
