package badger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	badgerdb "github.com/dgraph-io/badger/v4"
)

func TestOpenBackendInMemory(t *testing.T) {
	backend, err := OpenBackend("", true)
	if err != nil {
		t.Fatalf("Failed to open in-memory backend: %v", err)
	}
	defer backend.Close()

	if backend.IsClosed() {
		t.Error("Expected freshly opened backend to report open")
	}
}

func TestOpenBackendFileSystem(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")
	backend, err := OpenBackend(dir, false)
	if err != nil {
		t.Fatalf("Failed to open backend at %s: %v", dir, err)
	}
	defer backend.Close()

	if _, err := os.Stat(dir); err != nil {
		t.Errorf("Expected backend directory to exist: %v", err)
	}
}

func TestOpenBackendRejectsFilePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}

	backend, err := OpenBackend(path, false)
	if err == nil {
		backend.Close()
		t.Fatal("Expected error opening backend at a file path")
	}
}

func TestBackendClose(t *testing.T) {
	backend, err := OpenBackend("", true)
	if err != nil {
		t.Fatalf("Failed to open backend: %v", err)
	}

	if err := backend.Close(); err != nil {
		t.Fatalf("Failed to close backend: %v", err)
	}
	if !backend.IsClosed() {
		t.Error("Expected backend to report closed after Close")
	}
}

func TestWithTxReadWrite(t *testing.T) {
	backend, err := OpenBackend("", true)
	if err != nil {
		t.Fatalf("Failed to open backend: %v", err)
	}
	defer backend.Close()

	key := []byte("k")
	err = backend.WithTx(func(tx *badgerdb.Txn) error {
		if err := tx.Set(key, []byte("v")); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		t.Fatalf("Failed to write: %v", err)
	}

	var got []byte
	err = backend.WithTx(func(tx *badgerdb.Txn) error {
		item, err := tx.Get(key)
		if err != nil {
			return err
		}
		got, err = item.ValueCopy(nil)
		return err
	}, false)
	if err != nil {
		t.Fatalf("Failed to read: %v", err)
	}
	if string(got) != "v" {
		t.Errorf("Expected value %q, got %q", "v", got)
	}
}

func TestWithTxDiscardsOnError(t *testing.T) {
	backend, err := OpenBackend("", true)
	if err != nil {
		t.Fatalf("Failed to open backend: %v", err)
	}
	defer backend.Close()

	sentinel := errors.New("boom")
	err = backend.WithTx(func(tx *badgerdb.Txn) error {
		if err := tx.Set([]byte("k"), []byte("v")); err != nil {
			return err
		}
		return sentinel
	}, true)
	if !errors.Is(err, sentinel) {
		t.Fatalf("Expected sentinel error, got %v", err)
	}

	err = backend.WithTx(func(tx *badgerdb.Txn) error {
		_, err := tx.Get([]byte("k"))
		return err
	}, false)
	if !errors.Is(err, badgerdb.ErrKeyNotFound) {
		t.Errorf("Expected key to be absent after discarded transaction, got %v", err)
	}
}

func TestWithTransaction(t *testing.T) {
	backend, err := OpenBackend("", true)
	if err != nil {
		t.Fatalf("Failed to open backend: %v", err)
	}
	defer backend.Close()

	called := false
	err = backend.WithTransaction(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("WithTransaction failed: %v", err)
	}
	if !called {
		t.Error("Expected transaction function to be called")
	}

	sentinel := errors.New("boom")
	err = backend.WithTransaction(context.Background(), func(ctx context.Context) error {
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Errorf("Expected sentinel error, got %v", err)
	}
}
