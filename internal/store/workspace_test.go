package store

import (
	"context"
	"testing"

	"github.com/dukerupert/cartwise/internal/database"
)

func setupWorkspaceTestDB(t *testing.T) *WorkspaceStore {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewWorkspaceStore(db)
}

func TestDefaultWorkspaceSeedData(t *testing.T) {
	ws := setupWorkspaceTestDB(t)

	w, err := ws.GetByID(context.Background(), 1)
	if err != nil {
		t.Fatalf("get workspace: %v", err)
	}
	if w == nil {
		t.Fatal("expected seeded workspace, got nil")
	}
	if w.Name != "Home" {
		t.Errorf("name = %q, want %q", w.Name, "Home")
	}
	if w.Currency != "USD" {
		t.Errorf("currency = %q, want %q", w.Currency, "USD")
	}
}

func TestWorkspaceCreate(t *testing.T) {
	ws := setupWorkspaceTestDB(t)
	ctx := context.Background()

	w, err := ws.Create(ctx, "Cabin", "EUR")
	if err != nil {
		t.Fatalf("create workspace: %v", err)
	}
	if w.Currency != "EUR" {
		t.Errorf("currency = %q, want %q", w.Currency, "EUR")
	}

	all, err := ws.List(ctx)
	if err != nil {
		t.Fatalf("list workspaces: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 workspaces, got %d", len(all))
	}
}

func TestWorkspaceGetByIDNotFound(t *testing.T) {
	ws := setupWorkspaceTestDB(t)

	w, err := ws.GetByID(context.Background(), 9999)
	if err != nil {
		t.Fatalf("get workspace: %v", err)
	}
	if w != nil {
		t.Error("expected nil for nonexistent workspace")
	}
}
