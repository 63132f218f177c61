package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFileKVSetGet(t *testing.T) {
	kv, err := NewFileKV(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileKV() error = %v", err)
	}
	defer func() { _ = kv.Close() }()
	ctx := context.Background()

	if err := kv.Set(ctx, "draft-user-1", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, err := kv.Get(ctx, "draft-user-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != `{"a":1}` {
		t.Errorf("Get() = %s, want {\"a\":1}", got)
	}

	// Overwrite
	if err := kv.Set(ctx, "draft-user-1", []byte(`{"a":2}`)); err != nil {
		t.Fatalf("Set() overwrite error = %v", err)
	}
	got, _ = kv.Get(ctx, "draft-user-1")
	if string(got) != `{"a":2}` {
		t.Errorf("Get() after overwrite = %s", got)
	}
}

func TestFileKVMissingKey(t *testing.T) {
	kv, err := NewFileKV(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileKV() error = %v", err)
	}
	defer func() { _ = kv.Close() }()

	_, err = kv.Get(context.Background(), "missing")
	if !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Get() error = %v, want %v", err, ErrKeyNotFound)
	}
}

func TestFileKVDelete(t *testing.T) {
	kv, err := NewFileKV(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileKV() error = %v", err)
	}
	defer func() { _ = kv.Close() }()
	ctx := context.Background()

	if err := kv.Set(ctx, "gone", []byte("x")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := kv.Delete(ctx, "gone"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := kv.Get(ctx, "gone"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Get() after delete error = %v, want %v", err, ErrKeyNotFound)
	}

	// Deleting a missing key is not an error.
	if err := kv.Delete(ctx, "never-existed"); err != nil {
		t.Errorf("Delete() missing key error = %v", err)
	}
}

func TestFileKVRejectsTraversal(t *testing.T) {
	tmpDir := t.TempDir()
	kv, err := NewFileKV(tmpDir)
	if err != nil {
		t.Fatalf("NewFileKV() error = %v", err)
	}
	defer func() { _ = kv.Close() }()
	ctx := context.Background()

	tests := []string{
		"../escape",
		"a/b",
		`a\b`,
		"..",
		"",
	}
	for _, key := range tests {
		if err := kv.Set(ctx, key, []byte("x")); err == nil {
			t.Errorf("Set(%q) should reject unsafe key", key)
		}
		if _, err := kv.Get(ctx, key); err == nil {
			t.Errorf("Get(%q) should reject unsafe key", key)
		}
	}

	// Nothing escaped the base directory.
	if _, err := os.Stat(filepath.Join(filepath.Dir(tmpDir), "escape.json")); err == nil {
		t.Error("traversal key escaped the base directory")
	}
}

func TestFileKVClosed(t *testing.T) {
	kv, err := NewFileKV(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileKV() error = %v", err)
	}
	if err := kv.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	ctx := context.Background()
	if _, err := kv.Get(ctx, "k"); !errors.Is(err, ErrStorageClosed) {
		t.Errorf("Get() error = %v, want %v", err, ErrStorageClosed)
	}
	if err := kv.Set(ctx, "k", []byte("v")); !errors.Is(err, ErrStorageClosed) {
		t.Errorf("Set() error = %v, want %v", err, ErrStorageClosed)
	}
}

func TestFileKVSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	kv, err := NewFileKV(dir)
	if err != nil {
		t.Fatalf("NewFileKV() error = %v", err)
	}
	if err := kv.Set(ctx, "draft-user-1", []byte("persisted")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := kv.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := NewFileKV(dir)
	if err != nil {
		t.Fatalf("NewFileKV() reopen error = %v", err)
	}
	defer func() { _ = reopened.Close() }()

	got, err := reopened.Get(ctx, "draft-user-1")
	if err != nil {
		t.Fatalf("Get() after reopen error = %v", err)
	}
	if string(got) != "persisted" {
		t.Errorf("Get() = %s, want persisted", got)
	}
}
