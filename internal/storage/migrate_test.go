package storage

import (
	"os"
	"testing"
	"testing/fstest"
)

func TestPendingMigrationsSkipsAppliedAndSorts(t *testing.T) {
	fsys := fstest.MapFS{
		"002_awards.sql": {Data: []byte("CREATE TABLE b ();")},
		"001_init.sql":   {Data: []byte("CREATE TABLE a ();")},
		"003_index.sql":  {Data: []byte("CREATE INDEX c ON b ();")},
		"README.md":      {Data: []byte("notes")},
		"old/000_x.sql":  {Data: []byte("SELECT 1;")},
	}

	pending, err := PendingMigrations(fsys, map[string]bool{"002_awards.sql": true})
	if err != nil {
		t.Fatalf("PendingMigrations failed: %v", err)
	}

	if len(pending) != 2 {
		t.Fatalf("expected 2 pending migrations, got %d", len(pending))
	}
	if pending[0].Name != "001_init.sql" || pending[1].Name != "003_index.sql" {
		t.Errorf("unexpected order: %s, %s", pending[0].Name, pending[1].Name)
	}
	if pending[0].SQL != "CREATE TABLE a ();" {
		t.Errorf("unexpected SQL: %q", pending[0].SQL)
	}
}

func TestBundledMigrationsAreReadable(t *testing.T) {
	dir := "../../migrations"
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		t.Skip("migrations directory not found, skipping")
	}

	pending, err := PendingMigrations(os.DirFS(dir), nil)
	if err != nil {
		t.Fatalf("PendingMigrations failed: %v", err)
	}
	if len(pending) == 0 {
		t.Fatal("expected at least one migration")
	}
}
