package filelock

import (
	"path/filepath"
	"testing"
)

func TestCreateAndLockExclusive_FirstCallerCreates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "entry")

	h, created, err := CreateAndLockExclusive(path)
	if err != nil {
		t.Fatalf("CreateAndLockExclusive: %v", err)
	}
	if !created {
		t.Fatal("expected the first caller to create the file")
	}
	defer h.Release()

	h2, created2, err := CreateAndLockExclusive(path)
	if err != nil {
		t.Fatalf("racing CreateAndLockExclusive should not error: %v", err)
	}
	if created2 || h2 != nil {
		t.Fatal("expected the second caller to observe the file already exists")
	}
}

func TestCreateAndLockExclusive_SecondCallerSeesNotCreated(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "entry")

	h1, created1, err := CreateAndLockExclusive(path)
	if err != nil {
		t.Fatalf("first CreateAndLockExclusive: %v", err)
	}
	if !created1 {
		t.Fatal("expected first call to create")
	}
	h1.Release()

	h2, created2, err := CreateAndLockExclusive(path)
	if err != nil {
		t.Fatalf("second CreateAndLockExclusive: %v", err)
	}
	if created2 {
		t.Fatal("expected second call to observe the file already existed")
	}
	if h2 != nil {
		t.Fatal("expected a nil handle when created is false")
	}
}

func TestTryReadLock_MissingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "does-not-exist")

	h, ok, err := TryReadLock(path)
	if err != nil {
		t.Fatalf("TryReadLock: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for a missing file")
	}
	if h != nil {
		t.Fatal("expected a nil handle for a missing file")
	}
}

func TestTryReadLock_ExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "entry")

	h1, created, err := CreateAndLockExclusive(path)
	if err != nil || !created {
		t.Fatalf("setup: CreateAndLockExclusive: created=%v err=%v", created, err)
	}
	if _, err := h1.File().WriteString("hello"); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := h1.DowngradeToShared(); err != nil {
		t.Fatalf("DowngradeToShared: %v", err)
	}
	defer h1.Release()

	h2, ok, err := TryReadLock(path)
	if err != nil {
		t.Fatalf("TryReadLock: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true for an existing, shared-locked file")
	}
	defer h2.Release()
}

func TestRemoveIfExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "entry")

	if err := RemoveIfExists(path); err != nil {
		t.Fatalf("RemoveIfExists on missing file should succeed: %v", err)
	}

	h, created, err := CreateAndLockExclusive(path)
	if err != nil || !created {
		t.Fatalf("setup: %v %v", created, err)
	}
	h.Release()

	if err := RemoveIfExists(path); err != nil {
		t.Fatalf("RemoveIfExists on existing file: %v", err)
	}
	if err := RemoveIfExists(path); err != nil {
		t.Fatalf("RemoveIfExists should be idempotent: %v", err)
	}
}

func TestLockExclusiveBlocking_CreatesIfMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sidecar.lock")

	h, err := LockExclusiveBlocking(path)
	if err != nil {
		t.Fatalf("LockExclusiveBlocking: %v", err)
	}
	h.Release()

	h2, err := LockExclusiveBlocking(path)
	if err != nil {
		t.Fatalf("LockExclusiveBlocking on existing file: %v", err)
	}
	h2.Release()
}

func TestTryExclusiveNonBlocking_SkipsHeldLock(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "entry")

	h1, created, err := CreateAndLockExclusive(path)
	if err != nil || !created {
		t.Fatalf("setup: %v %v", created, err)
	}
	defer h1.Release()

	_, ok, err := TryExclusiveNonBlocking(path)
	if err != nil {
		t.Fatalf("TryExclusiveNonBlocking: %v", err)
	}
	if ok {
		t.Fatal("expected the exclusively-locked file to be reported as unavailable")
	}
}

func TestTryExclusiveNonBlocking_MissingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "does-not-exist")

	h, ok, err := TryExclusiveNonBlocking(path)
	if err != nil {
		t.Fatalf("TryExclusiveNonBlocking: %v", err)
	}
	if ok || h != nil {
		t.Fatal("expected ok=false, nil handle for a missing file")
	}
}
