package audit

import (
	"database/sql"
	"os"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()

	f, err := os.CreateTemp("", "audit-test-*.db")
	if err != nil {
		t.Fatalf("creating temp db: %v", err)
	}
	dbPath := f.Name()
	f.Close()
	t.Cleanup(func() { os.Remove(dbPath) })

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
		CREATE TABLE audit_logs (
			id TEXT PRIMARY KEY,
			action TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			entity_id TEXT,
			account_id TEXT,
			source TEXT NOT NULL,
			details TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("applying audit schema: %v", err)
	}

	return db
}

func TestRepository_RecordAndList(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	ctx := t.Context()

	entry := &Entry{
		Action:     ActionLogin,
		EntityType: "account",
		EntityID:   "acc-1",
		AccountID:  "acc-1",
		Source:     "api",
		Details:    map[string]any{"email": "jo@example.com"},
	}
	if err := repo.Record(ctx, entry); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if entry.ID == "" {
		t.Fatal("Record() should generate an ID")
	}

	result, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 1 || len(result.Entries) != 1 {
		t.Fatalf("List() total = %d, entries = %d, want 1/1", result.Total, len(result.Entries))
	}

	got := result.Entries[0]
	if got.Action != ActionLogin {
		t.Errorf("Action = %q, want %q", got.Action, ActionLogin)
	}
	if got.Details["email"] != "jo@example.com" {
		t.Errorf("Details = %v, want email preserved", got.Details)
	}
}

func TestRepository_ListFilters(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	ctx := t.Context()

	seed := []Entry{
		{Action: ActionLogin, EntityType: "account", AccountID: "acc-1", Source: "api"},
		{Action: ActionLoginFailed, EntityType: "account", AccountID: "acc-1", Source: "api"},
		{Action: ActionLogin, EntityType: "account", AccountID: "acc-2", Source: "api"},
	}
	for i := range seed {
		if err := repo.Record(ctx, &seed[i]); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	byAction, err := repo.List(ctx, Filter{Action: ActionLogin})
	if err != nil {
		t.Fatalf("List(action) error = %v", err)
	}
	if byAction.Total != 2 {
		t.Errorf("List(action=login) total = %d, want 2", byAction.Total)
	}

	byAccount, err := repo.List(ctx, Filter{AccountID: "acc-1"})
	if err != nil {
		t.Fatalf("List(account) error = %v", err)
	}
	if byAccount.Total != 2 {
		t.Errorf("List(account=acc-1) total = %d, want 2", byAccount.Total)
	}

	both, err := repo.List(ctx, Filter{Action: ActionLoginFailed, AccountID: "acc-1"})
	if err != nil {
		t.Fatalf("List(both) error = %v", err)
	}
	if both.Total != 1 {
		t.Errorf("List(both filters) total = %d, want 1", both.Total)
	}
}

func TestRepository_ListClampsLimit(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))

	result, err := repo.List(t.Context(), Filter{Limit: 10000, Offset: -5})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Limit != 200 {
		t.Errorf("Limit clamped to %d, want 200", result.Limit)
	}
	if result.Offset != 0 {
		t.Errorf("Offset clamped to %d, want 0", result.Offset)
	}
	if result.Entries == nil {
		t.Error("Entries should be an empty slice, not nil")
	}
}
