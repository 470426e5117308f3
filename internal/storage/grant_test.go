package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func setupTestDB(t *testing.T) (*Storage, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "reactor-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	t.Setenv("MIGRATION_PATH", filepath.Join("..", "..", "migrations", "001_initial_schema.sql"))

	store, err := NewStorage(filepath.Join(tmpDir, "nested", "test.db"))
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to create storage: %v", err)
	}

	cleanup := func() {
		store.Close()
		os.RemoveAll(tmpDir)
	}

	return store, cleanup
}

func TestNewStorage_MissingMigration(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("MIGRATION_PATH", filepath.Join(tmpDir, "missing.sql"))

	if _, err := NewStorage(filepath.Join(tmpDir, "test.db")); err == nil {
		t.Fatal("Expected error when migration file is missing")
	}
}

func TestRecordGrant(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	if err := store.RecordGrant("@news", 42, "alpha_bot", "run-1"); err != nil {
		t.Fatalf("RecordGrant failed: %v", err)
	}

	granted, err := store.IsGranted("@news", 42)
	if err != nil {
		t.Fatalf("IsGranted failed: %v", err)
	}
	if !granted {
		t.Error("Grant should be recorded")
	}

	granted, err = store.IsGranted("@news", 43)
	if err != nil {
		t.Fatalf("IsGranted failed: %v", err)
	}
	if granted {
		t.Error("Other user should not be granted")
	}

	granted, err = store.IsGranted("@sports", 42)
	if err != nil {
		t.Fatalf("IsGranted failed: %v", err)
	}
	if granted {
		t.Error("Grant must be scoped to its chat")
	}
}

func TestRecordGrant_Replace(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	if err := store.RecordGrant("@news", 42, "alpha_bot", "run-1"); err != nil {
		t.Fatalf("first RecordGrant failed: %v", err)
	}
	if err := store.RecordGrant("@news", 42, "alpha_bot", "run-2"); err != nil {
		t.Fatalf("second RecordGrant failed: %v", err)
	}

	grants, err := store.ListGrants("@news")
	if err != nil {
		t.Fatalf("ListGrants failed: %v", err)
	}
	if len(grants) != 1 {
		t.Fatalf("ListGrants returned %d grants, want 1", len(grants))
	}
	if grants[0].RunID != "run-2" {
		t.Errorf("RunID = %s, want run-2", grants[0].RunID)
	}
}

func TestListGrants_Order(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	for i, user := range []int64{10, 20, 30} {
		if err := store.RecordGrant("-100500", user, "", "run"); err != nil {
			t.Fatalf("RecordGrant %d failed: %v", i, err)
		}
	}

	grants, err := store.ListGrants("-100500")
	if err != nil {
		t.Fatalf("ListGrants failed: %v", err)
	}
	if len(grants) != 3 {
		t.Fatalf("ListGrants returned %d, want 3", len(grants))
	}
	for i, want := range []int64{10, 20, 30} {
		if grants[i].UserID != want {
			t.Errorf("grants[%d].UserID = %d, want %d", i, grants[i].UserID, want)
		}
	}
}

func TestDeleteGrant(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	if err := store.RecordGrant("@news", 42, "alpha_bot", "run-1"); err != nil {
		t.Fatalf("RecordGrant failed: %v", err)
	}
	if err := store.DeleteGrant("@news", 42); err != nil {
		t.Fatalf("DeleteGrant failed: %v", err)
	}

	granted, err := store.IsGranted("@news", 42)
	if err != nil {
		t.Fatalf("IsGranted failed: %v", err)
	}
	if granted {
		t.Error("Grant should be deleted")
	}
}

func TestSaveRun(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	run := &Run{ID: "run-abc", Chat: "@news", RequestedBy: 7, Granted: 2, Skipped: 1, Failed: 1}
	if err := store.SaveRun(run); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	if run.CreatedAt.IsZero() {
		t.Error("SaveRun should stamp CreatedAt")
	}

	got, err := store.GetRun("run-abc")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got == nil {
		t.Fatal("GetRun returned nil")
	}
	if got.Granted != 2 || got.Skipped != 1 || got.Failed != 1 || got.RequestedBy != 7 {
		t.Errorf("GetRun = %+v, want counts 2/1/1 requested by 7", got)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	got, err := store.GetRun("missing")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got != nil {
		t.Errorf("GetRun = %+v, want nil", got)
	}
}
