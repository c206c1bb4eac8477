package shared

import (
	"database/sql"
	"testing"
)

func tableExists(t *testing.T, db *sql.DB, table string) bool {
	t.Helper()
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&n)
	if err != nil {
		t.Fatalf("failed to inspect schema: %v", err)
	}
	return n > 0
}

func migratedDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := NewDatabase(MemoryDatabase)
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	return db
}

func TestMigrationRunner(t *testing.T) {
	// Tables introduced by each migration version, newest last.
	schema := []struct {
		version int
		tables  []string
	}{
		{0, []string{"songs", "cards"}},
		{1, []string{"lists", "lists_sequence", "list_songs", "list_cards"}},
		{2, []string{"draft_slots"}},
	}

	t.Run("loadMigrations", func(t *testing.T) {
		migrations, err := loadMigrations()
		if err != nil {
			t.Fatalf("failed to load migrations: %v", err)
		}
		if len(migrations) != len(schema) {
			t.Fatalf("expected %d migrations, got %d", len(schema), len(migrations))
		}

		for i, m := range migrations {
			if m.Version != schema[i].version {
				t.Errorf("migration %d has version %d, want %d", i, m.Version, schema[i].version)
			}
			if m.Up == "" || m.Down == "" {
				t.Errorf("migration %d (%s) is missing up or down SQL", m.Version, m.Name)
			}
		}
	})

	t.Run("creates every table and seeds the list sequence", func(t *testing.T) {
		db := migratedDB(t)

		for _, step := range schema {
			for _, table := range step.tables {
				if !tableExists(t, db, table) {
					t.Errorf("version %d: %s should exist", step.version, table)
				}
			}
		}

		var value int
		if err := db.QueryRow("SELECT value FROM lists_sequence WHERE id = 1").Scan(&value); err != nil {
			t.Fatalf("lists_sequence not seeded: %v", err)
		}
		if value != 0 {
			t.Errorf("expected sequence to start at 0, got %d", value)
		}
	})

	t.Run("rolls back one version at a time", func(t *testing.T) {
		db := migratedDB(t)

		for i := len(schema) - 1; i >= 0; i-- {
			if err := RollbackMigration(db); err != nil {
				t.Fatalf("failed to roll back version %d: %v", schema[i].version, err)
			}
			for _, table := range schema[i].tables {
				if tableExists(t, db, table) {
					t.Errorf("%s should be dropped by rolling back version %d", table, schema[i].version)
				}
			}
			if i > 0 && !tableExists(t, db, schema[i-1].tables[0]) {
				t.Errorf("rolling back version %d should leave version %d in place", schema[i].version, schema[i-1].version)
			}
		}

		if err := RollbackMigration(db); err == nil {
			t.Error("expected an error with nothing left to roll back")
		}
	})

	t.Run("rerunning is a no-op and reapplies after rollback", func(t *testing.T) {
		db := migratedDB(t)

		if err := RunMigrations(db); err != nil {
			t.Fatalf("failed to run migrations a second time: %v", err)
		}
		if _, err := db.Exec("INSERT INTO draft_slots (key, value) VALUES ('drafts:anon', '[]')"); err != nil {
			t.Fatalf("failed to write a draft slot: %v", err)
		}

		if err := RollbackMigration(db); err != nil {
			t.Fatalf("failed to roll back: %v", err)
		}
		if err := RunMigrations(db); err != nil {
			t.Fatalf("failed to reapply: %v", err)
		}

		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
			t.Fatalf("failed to query schema_migrations: %v", err)
		}
		if count != len(schema) {
			t.Errorf("expected %d applied migrations, got %d", len(schema), count)
		}
		if err := db.QueryRow("SELECT COUNT(*) FROM draft_slots").Scan(&count); err != nil || count != 0 {
			t.Errorf("expected an empty draft_slots table after reapply, got %d (%v)", count, err)
		}
	})

	t.Run("removeComments", func(t *testing.T) {
		got := removeComments("-- header\nCREATE TABLE t (\n    id TEXT -- primary\n);\n\n")
		want := "CREATE TABLE t (\nid TEXT\n);"
		if got != want {
			t.Errorf("removeComments() = %q, want %q", got, want)
		}
	})
}
