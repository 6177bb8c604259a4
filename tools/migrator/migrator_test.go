package migrator

import (
	"database/sql"
	"strings"
	"testing"
	"testing/fstest"

	_ "github.com/mattn/go-sqlite3"
)

// =============================================================================
// Test Helpers
// =============================================================================

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	// Every pooled connection to :memory: would be a separate database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func file(content string) *fstest.MapFile {
	return &fstest.MapFile{Data: []byte(content)}
}

// standardMigrations mirrors the layout of a real migrations directory
func standardMigrations() fstest.MapFS {
	return fstest.MapFS{
		"001_create_batches.sql": file("-- +migrate Up\nCREATE TABLE batches (id TEXT PRIMARY KEY, job_count INTEGER NOT NULL);"),
		"002_create_lag.sql":     file("-- +migrate Up\n-- lag samples\nCREATE TABLE lag (id INTEGER PRIMARY KEY, delta_ms INTEGER);"),
		"003_create_requests.sql": file(`-- +migrate Up
-- +migrate Depends: 1
CREATE TABLE requests (
	id INTEGER PRIMARY KEY,
	batch_id TEXT REFERENCES batches(id)
);`),
		"004_create_index.sql": file("-- +migrate Up notransaction\nCREATE INDEX idx_requests_batch ON requests(batch_id);"),
		"005_add_status.sql":   file("-- +migrate Up\n-- +migrate Depends: 1 2\nALTER TABLE batches ADD COLUMN status TEXT;"),
		"README.md":            file("not a migration"),
	}
}

func tableExists(t *testing.T, db *sql.DB, tableName string) bool {
	t.Helper()
	var name string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", tableName).Scan(&name)
	if err == sql.ErrNoRows {
		return false
	}
	if err != nil {
		t.Fatalf("failed to check if table exists: %v", err)
	}
	return true
}

func getVersion(t *testing.T, db *sql.DB) int {
	t.Helper()
	version, err := GetCurrentVersion(db)
	if err != nil {
		t.Fatalf("failed to get version: %v", err)
	}
	return version
}

func assertTablesExist(t *testing.T, db *sql.DB, tables ...string) {
	t.Helper()
	for _, table := range tables {
		if !tableExists(t, db, table) {
			t.Errorf("expected table %s to exist", table)
		}
	}
}

// =============================================================================
// Parser Tests
// =============================================================================

func TestParseMigration_Valid(t *testing.T) {
	migration, err := ParseMigration("001_create_batches.sql", []byte("-- +migrate Up\nCREATE TABLE batches (id TEXT);"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if migration.Version != 1 {
		t.Errorf("expected version 1, got %d", migration.Version)
	}
	if migration.Name != "create_batches" {
		t.Errorf("expected name 'create_batches', got '%s'", migration.Name)
	}
	if migration.UpSQL != "CREATE TABLE batches (id TEXT);" {
		t.Errorf("unexpected UpSQL: %s", migration.UpSQL)
	}
	if migration.NoTransaction {
		t.Error("expected NoTransaction to be false")
	}
	if len(migration.Dependencies) != 0 {
		t.Errorf("expected no dependencies, got %v", migration.Dependencies)
	}
}

func TestParseMigrationFile_MultipleDependencies(t *testing.T) {
	migration, err := ParseMigrationFile(standardMigrations(), "005_add_status.sql")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(migration.Dependencies) != 2 || migration.Dependencies[0] != 1 || migration.Dependencies[1] != 2 {
		t.Errorf("expected dependencies [1 2], got %v", migration.Dependencies)
	}
	if !strings.HasPrefix(migration.UpSQL, "ALTER TABLE batches") {
		t.Errorf("expected SQL to follow the directives, got: %s", migration.UpSQL)
	}
}

func TestParseMigrationFile_NoTransaction(t *testing.T) {
	migration, err := ParseMigrationFile(standardMigrations(), "004_create_index.sql")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !migration.NoTransaction {
		t.Error("expected NoTransaction to be true")
	}
}

func TestParseMigration_Errors(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		content  string
		wantErr  string
	}{
		{"bad filename", "1_short.sql", "-- +migrate Up\nSELECT 1;", "invalid migration filename"},
		{"missing marker", "001_a.sql", "CREATE TABLE a (id INTEGER);", "missing '-- +migrate Up'"},
		{"empty sql", "001_a.sql", "-- +migrate Up\n-- only a comment\n", "contains no SQL"},
		{"bad dependency", "002_a.sql", "-- +migrate Up\n-- +migrate Depends: one\nSELECT 1;", "invalid dependency version"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMigration(tt.filename, []byte(tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestParseMigrationFile_NotFound(t *testing.T) {
	if _, err := ParseMigrationFile(fstest.MapFS{}, "001_missing.sql"); err == nil {
		t.Error("expected error for missing file")
	}
}

// =============================================================================
// Loader Tests
// =============================================================================

func TestLoadMigrations_Sorted(t *testing.T) {
	migrations, err := LoadMigrations(standardMigrations())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(migrations) != 5 {
		t.Fatalf("expected 5 migrations, got %d", len(migrations))
	}
	for i, m := range migrations {
		if m.Version != i+1 {
			t.Errorf("migration %d has version %d", i, m.Version)
		}
	}
}

func TestLoadMigrations_Empty(t *testing.T) {
	migrations, err := LoadMigrations(fstest.MapFS{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(migrations) != 0 {
		t.Errorf("expected no migrations, got %d", len(migrations))
	}
}

func TestLoadMigrations_Gap(t *testing.T) {
	_, err := LoadMigrations(fstest.MapFS{
		"001_a.sql": file("-- +migrate Up\nSELECT 1;"),
		"003_c.sql": file("-- +migrate Up\nSELECT 3;"),
	})
	if err == nil || !strings.Contains(err.Error(), "gap in migration versions") {
		t.Errorf("expected gap error, got %v", err)
	}
}

func TestLoadMigrations_Duplicate(t *testing.T) {
	_, err := LoadMigrations(fstest.MapFS{
		"001_a.sql": file("-- +migrate Up\nSELECT 1;"),
		"001_b.sql": file("-- +migrate Up\nSELECT 2;"),
	})
	if err == nil || !strings.Contains(err.Error(), "duplicate migration version") {
		t.Errorf("expected duplicate error, got %v", err)
	}
}

func TestLoadMigrations_CircularDependency(t *testing.T) {
	_, err := LoadMigrations(fstest.MapFS{
		"001_a.sql": file("-- +migrate Up\n-- +migrate Depends: 2\nSELECT 1;"),
		"002_b.sql": file("-- +migrate Up\n-- +migrate Depends: 1\nSELECT 2;"),
	})
	if err == nil || !strings.Contains(err.Error(), "circular dependency") {
		t.Errorf("expected circular dependency error, got %v", err)
	}
}

func TestLoadMigrations_MissingDependency(t *testing.T) {
	_, err := LoadMigrations(fstest.MapFS{
		"001_a.sql": file("-- +migrate Up\n-- +migrate Depends: 9\nSELECT 1;"),
	})
	if err == nil || !strings.Contains(err.Error(), "non-existent version 9") {
		t.Errorf("expected missing dependency error, got %v", err)
	}
}

// =============================================================================
// Migration Execution Tests
// =============================================================================

func TestRunMigrations_FreshDatabase(t *testing.T) {
	db := setupTestDB(t)

	if err := RunMigrations(db, standardMigrations()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if version := getVersion(t, db); version != 5 {
		t.Errorf("expected version 5, got %d", version)
	}
	assertTablesExist(t, db, "schema_migrations", "batches", "lag", "requests")
}

func TestRunMigrations_PartiallyMigrated(t *testing.T) {
	db := setupTestDB(t)

	partial := standardMigrations()
	delete(partial, "003_create_requests.sql")
	delete(partial, "004_create_index.sql")
	delete(partial, "005_add_status.sql")

	if err := RunMigrations(db, partial); err != nil {
		t.Fatalf("unexpected error on partial run: %v", err)
	}
	if version := getVersion(t, db); version != 2 {
		t.Fatalf("expected version 2, got %d", version)
	}

	if err := RunMigrations(db, standardMigrations()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if version := getVersion(t, db); version != 5 {
		t.Errorf("expected version 5, got %d", version)
	}
}

func TestRunMigrations_Idempotent(t *testing.T) {
	db := setupTestDB(t)

	for i := 0; i < 3; i++ {
		if err := RunMigrations(db, standardMigrations()); err != nil {
			t.Fatalf("run %d: unexpected error: %v", i, err)
		}
	}

	applied, err := GetAppliedMigrations(db)
	if err != nil {
		t.Fatalf("failed to get applied migrations: %v", err)
	}
	if len(applied) != 5 {
		t.Errorf("expected 5 applied migrations, got %v", applied)
	}
}

func TestRunMigrations_FailedMigration(t *testing.T) {
	db := setupTestDB(t)

	err := RunMigrations(db, fstest.MapFS{
		"001_good.sql": file("-- +migrate Up\nCREATE TABLE a (id INTEGER);"),
		"002_bad.sql":  file("-- +migrate Up\nINVALID SQL HERE;"),
		"003_good.sql": file("-- +migrate Up\nCREATE TABLE b (id INTEGER);"),
	})
	if err == nil {
		t.Fatal("expected error for failed migration")
	}

	if version := getVersion(t, db); version != 1 {
		t.Errorf("expected version 1, got %d", version)
	}
	if tableExists(t, db, "b") {
		t.Error("migration 3 should not be attempted")
	}
}

func TestRunMigrations_TransactionRollback(t *testing.T) {
	db := setupTestDB(t)

	err := RunMigrations(db, fstest.MapFS{
		"001_partial.sql": file("-- +migrate Up\nCREATE TABLE a (id INTEGER);\nINSERT INTO missing VALUES (1);"),
	})
	if err == nil {
		t.Fatal("expected error")
	}

	if tableExists(t, db, "a") {
		t.Error("table from failed transactional migration should be rolled back")
	}
	if version := getVersion(t, db); version != 0 {
		t.Errorf("expected version 0, got %d", version)
	}
}

func TestRunMigrations_CannotGoBackwards(t *testing.T) {
	db := setupTestDB(t)

	if _, err := db.Exec("CREATE TABLE schema_migrations (version INTEGER PRIMARY KEY, applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP)"); err != nil {
		t.Fatalf("failed to create schema_migrations: %v", err)
	}
	if _, err := db.Exec("INSERT INTO schema_migrations (version) VALUES (2)"); err != nil {
		t.Fatalf("failed to insert version: %v", err)
	}

	err := RunMigrations(db, fstest.MapFS{
		"001_a.sql": file("-- +migrate Up\nCREATE TABLE a (id INTEGER);"),
		"002_b.sql": file("-- +migrate Up\nCREATE TABLE b (id INTEGER);"),
	})
	if err == nil || !strings.Contains(err.Error(), "must be applied in order") {
		t.Errorf("expected ordering error, got %v", err)
	}
}

func TestGetCurrentVersion_FreshDatabase(t *testing.T) {
	db := setupTestDB(t)

	if version := getVersion(t, db); version != 0 {
		t.Errorf("expected version 0, got %d", version)
	}

	applied, err := GetAppliedMigrations(db)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(applied) != 0 {
		t.Errorf("expected no applied migrations, got %v", applied)
	}
}

func TestValidateDependencies_MissingDep(t *testing.T) {
	migrations := []Migration{{Version: 3, Dependencies: []int{1, 2}}}

	if err := validateDependencies(migrations, map[int]bool{1: true, 2: true}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := validateDependencies(migrations, map[int]bool{1: true}); err == nil {
		t.Error("expected error for unapplied dependency")
	}
}
