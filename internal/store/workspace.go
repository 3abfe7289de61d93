package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dukerupert/cartwise/internal/model"
)

type WorkspaceStore struct {
	db *sql.DB
}

func NewWorkspaceStore(db *sql.DB) *WorkspaceStore {
	return &WorkspaceStore{db: db}
}

const workspaceCols = `id, name, currency, list_version, history_version, created_at, updated_at`

func scanWorkspace(scanner interface{ Scan(...any) error }) (*model.Workspace, error) {
	var w model.Workspace
	err := scanner.Scan(&w.ID, &w.Name, &w.Currency, &w.ListVersion, &w.HistoryVersion, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *WorkspaceStore) Create(ctx context.Context, name, currency string) (*model.Workspace, error) {
	if currency == "" {
		currency = "USD"
	}
	result, err := s.db.ExecContext(ctx, `INSERT INTO workspaces (name, currency) VALUES (?, ?)`, name, currency)
	if err != nil {
		return nil, fmt.Errorf("insert workspace: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID returns the workspace, or nil when it does not exist.
func (s *WorkspaceStore) GetByID(ctx context.Context, id int64) (*model.Workspace, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+workspaceCols+` FROM workspaces WHERE id = ?`, id)
	w, err := scanWorkspace(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get workspace: %w", err)
	}
	return w, nil
}

func (s *WorkspaceStore) List(ctx context.Context) ([]model.Workspace, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+workspaceCols+` FROM workspaces ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	defer rows.Close()

	var workspaces []model.Workspace
	for rows.Next() {
		w, err := scanWorkspace(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workspace: %w", err)
		}
		workspaces = append(workspaces, *w)
	}
	return workspaces, rows.Err()
}
