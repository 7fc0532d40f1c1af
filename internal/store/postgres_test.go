package store

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"
	"time"
)

// --- InsertAuditLog ---

func TestInsertAuditLog(t *testing.T) {
	requirePostgres(t)
	ctx := context.Background()

	t.Run("writes a row with metadata", func(t *testing.T) {
		userID := "audit_test_user"
		ip := "10.1.2.3"
		t.Cleanup(func() {
			testStore.pool.Exec(ctx, "DELETE FROM audit_logs WHERE user_id = $1", userID)
		})

		err := testStore.InsertAuditLog(ctx, AuditEntry{
			UserID:    &userID,
			Action:    "user.login",
			IPAddress: &ip,
			Metadata:  []byte(`{"provider":"oidc"}`),
		})
		if err != nil {
			t.Fatalf("InsertAuditLog failed: %v", err)
		}

		var action, provider string
		err = testStore.pool.QueryRow(ctx,
			"SELECT action, metadata->>'provider' FROM audit_logs WHERE user_id = $1", userID,
		).Scan(&action, &provider)
		if err != nil {
			t.Fatalf("reading audit row: %v", err)
		}
		if action != "user.login" {
			t.Errorf("action: expected %q, got %q", "user.login", action)
		}
		if provider != "oidc" {
			t.Errorf("metadata provider: expected %q, got %q", "oidc", provider)
		}
	})

	t.Run("accepts nil user for pre-auth failures", func(t *testing.T) {
		err := testStore.InsertAuditLog(ctx, AuditEntry{Action: "login.callback_failed"})
		if err != nil {
			t.Fatalf("InsertAuditLog failed: %v", err)
		}
		t.Cleanup(func() {
			testStore.pool.Exec(ctx, "DELETE FROM audit_logs WHERE action = $1", "login.callback_failed")
		})
	})
}

// --- PruneAuditLogs ---

func TestPruneAuditLogs(t *testing.T) {
	requirePostgres(t)
	ctx := context.Background()

	userID := "audit_prune_user"
	t.Cleanup(func() {
		testStore.pool.Exec(ctx, "DELETE FROM audit_logs WHERE user_id = $1", userID)
	})

	if err := testStore.InsertAuditLog(ctx, AuditEntry{UserID: &userID, Action: "user.login"}); err != nil {
		t.Fatalf("InsertAuditLog failed: %v", err)
	}
	testStore.pool.Exec(ctx,
		"UPDATE audit_logs SET created_at = now() - interval '100 days' WHERE user_id = $1", userID)

	n, err := testStore.PruneAuditLogs(ctx, 90*24*time.Hour)
	if err != nil {
		t.Fatalf("PruneAuditLogs failed: %v", err)
	}
	if n < 1 {
		t.Errorf("expected at least 1 pruned row, got %d", n)
	}
}

// --- Migrate ---

func TestMigrate(t *testing.T) {
	requirePostgres(t)
	ctx := context.Background()

	testFS := fstest.MapFS{
		"900_test_migrate.sql": &fstest.MapFile{Data: []byte("CREATE TABLE test_migrate_tbl (id INT);")},
	}
	t.Cleanup(func() {
		testStore.pool.Exec(ctx, "DROP TABLE IF EXISTS test_migrate_tbl")
		testStore.pool.Exec(ctx, "DELETE FROM schema_migrations WHERE version = $1", "900_test_migrate.sql")
	})

	t.Run("applies migration and records version", func(t *testing.T) {
		if err := testStore.Migrate(ctx, testFS); err != nil {
			t.Fatalf("Migrate failed: %v", err)
		}
		var recorded bool
		err := testStore.pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)", "900_test_migrate.sql",
		).Scan(&recorded)
		if err != nil {
			t.Fatalf("checking schema_migrations: %v", err)
		}
		if !recorded {
			t.Error("expected migration version to be recorded")
		}
	})

	t.Run("second run skips applied migration", func(t *testing.T) {
		// Re-running CREATE TABLE would fail if the file were executed again.
		if err := testStore.Migrate(ctx, testFS); err != nil {
			t.Fatalf("second Migrate failed: %v", err)
		}
	})

	t.Run("failed migration rolls back and is not recorded", func(t *testing.T) {
		badFS := fstest.MapFS{"901_bad.sql": &fstest.MapFile{Data: []byte("THIS IS NOT SQL;")}}
		if err := testStore.Migrate(ctx, badFS); err == nil {
			t.Fatal("expected error for invalid SQL, got nil")
		}
		var recorded bool
		testStore.pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)", "901_bad.sql",
		).Scan(&recorded)
		if recorded {
			t.Error("failed migration must not be recorded")
		}
	})
}

// --- NopAuditLog ---

func TestNopAuditLog(t *testing.T) {
	var a NopAuditLog
	if err := a.InsertAuditLog(context.Background(), AuditEntry{Action: "x"}); err != nil {
		t.Errorf("InsertAuditLog: expected nil, got %v", err)
	}
	if err := a.CheckHealth(context.Background()); !errors.Is(err, ErrAuditDisabled) {
		t.Errorf("CheckHealth: expected ErrAuditDisabled, got %v", err)
	}
}
