package badger

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/bobmcallan/lectio/internal/common"
	"github.com/bobmcallan/lectio/internal/storage/storagetest"
)

func newTestStore(t *testing.T, opts ...StoreOption) *Store {
	t.Helper()
	store, err := NewStore(common.NewSilentLogger(), filepath.Join(t.TempDir(), "badger"), opts...)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_OpenClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "badger")
	store, err := NewStore(common.NewSilentLogger(), path)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	if store.Path() != path {
		t.Errorf("Path() = %q, want %q", store.Path(), path)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("second Close should not error: %v", err)
	}
}

func TestStore_CloseNilDB(t *testing.T) {
	store := &Store{}
	if err := store.Close(); err != nil {
		t.Fatalf("Close on nil DB should not error: %v", err)
	}
}

func TestStore_SecondOpenOfSameDirectoryFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "badger")
	first, err := NewStore(common.NewSilentLogger(), path)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	defer first.Close()

	if second, err := NewStore(common.NewSilentLogger(), path); err == nil {
		second.Close()
		t.Fatal("expected the directory lock to reject a second store")
	}
}

func TestStore_ReopenKeepsEntries(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "badger")
	logger := common.NewSilentLogger()

	store, err := NewStore(logger, path)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	kv := NewKVStorage(store, logger)
	if err := kv.Set(ctx, "reader_location", "/Ex/3/14"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := kv.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	store, err = NewStore(logger, path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer store.Close()
	got, err := NewKVStorage(store, logger).Get(ctx, "reader_location")
	if err != nil || got != "/Ex/3/14" {
		t.Fatalf("Get after reopen = %q, %v", got, err)
	}
}

func TestStore_InMemory(t *testing.T) {
	store, err := NewStore(common.NewSilentLogger(), "", InMemory())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	defer store.Close()
	if store.Path() != "" {
		t.Errorf("in-memory store reported path %q", store.Path())
	}
	storagetest.RunKVContract(t, NewKVStorage(store, common.NewSilentLogger()))
}

func TestKVStorage_Contract(t *testing.T) {
	store := newTestStore(t)
	storagetest.RunKVContract(t, NewKVStorage(store, common.NewSilentLogger()))
}
