package settings

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/mattjoyce/pqd/internal/storage"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "pqd.db")
	db, err := storage.OpenSQLite(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db)
}

func TestStoreGetMissingReturnsNotFound(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	_, err := s.GetInt(context.Background(), "pq-mode")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreSetOverwrites(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	ctx := context.Background()
	if err := s.SetInt(ctx, "blue-light-strength", 150); err != nil {
		t.Fatalf("SetInt (1): %v", err)
	}
	if err := s.SetInt(ctx, "blue-light-strength", -7); err != nil {
		t.Fatalf("SetInt (2): %v", err)
	}
	if err := s.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	got, err := s.GetInt(ctx, "blue-light-strength")
	if err != nil {
		t.Fatalf("GetInt: %v", err)
	}
	if got != -7 {
		t.Fatalf("expected -7, got %d", got)
	}
}

func TestStoreAllOrdersByKey(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }
	ctx := context.Background()
	for key, v := range map[string]int64{"sharpness": 2, "blue-light": 1, "pq-mode": 0} {
		if err := s.SetInt(ctx, key, v); err != nil {
			t.Fatalf("SetInt %s: %v", key, err)
		}
	}

	all, err := s.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 records, got %d", len(all))
	}
	want := []string{"blue-light", "pq-mode", "sharpness"}
	for i, r := range all {
		if r.Key != want[i] {
			t.Fatalf("record %d: expected %s, got %s", i, want[i], r.Key)
		}
		if !r.UpdatedAt.Equal(fixed) {
			t.Fatalf("record %d: unexpected timestamp %v", i, r.UpdatedAt)
		}
	}
}

func TestStoreRejectsEmptyKey(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	if err := s.SetInt(context.Background(), "", 1); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestStoreMeta(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	ctx := context.Background()
	v, err := s.Meta(ctx, "registry_digest")
	if err != nil || v != "" {
		t.Fatalf("expected empty meta, got %q (%v)", v, err)
	}
	if err := s.SetMeta(ctx, "registry_digest", "blake3:abc"); err != nil {
		t.Fatalf("SetMeta: %v", err)
	}
	v, err = s.Meta(ctx, "registry_digest")
	if err != nil || v != "blake3:abc" {
		t.Fatalf("expected blake3:abc, got %q (%v)", v, err)
	}
}
