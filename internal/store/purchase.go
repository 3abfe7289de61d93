package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dukerupert/cartwise/internal/model"
)

// PurchaseStore reads and enriches the append-only purchase history.
type PurchaseStore struct {
	db *sql.DB
}

func NewPurchaseStore(db *sql.DB) *PurchaseStore {
	return &PurchaseStore{db: db}
}

const purchaseCols = `id, workspace_id, date, store, completed_by, original_list_items, comparison, receipt_key`

func scanPurchase(scanner interface{ Scan(...any) error }) (*model.Purchase, error) {
	var p model.Purchase
	var original, comparison sql.NullString
	err := scanner.Scan(&p.ID, &p.WorkspaceID, &p.Date, &p.Store, &p.CompletedBy, &original, &comparison, &p.ReceiptKey)
	if err != nil {
		return nil, err
	}
	if original.Valid {
		if err := json.Unmarshal([]byte(original.String), &p.OriginalListItems); err != nil {
			return nil, fmt.Errorf("decode original list items: %w", err)
		}
	}
	if comparison.Valid {
		p.Comparison = &model.Comparison{}
		if err := json.Unmarshal([]byte(comparison.String), p.Comparison); err != nil {
			return nil, fmt.Errorf("decode comparison: %w", err)
		}
	}
	p.Items = []model.PurchaseItem{}
	return &p, nil
}

func encodeJSON(v any, present bool) (sql.NullString, error) {
	if !present {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func insertPurchase(ctx context.Context, q queryer, p *model.Purchase) error {
	original, err := encodeJSON(p.OriginalListItems, p.OriginalListItems != nil)
	if err != nil {
		return fmt.Errorf("encode original list items: %w", err)
	}
	comparison, err := encodeJSON(p.Comparison, p.Comparison != nil)
	if err != nil {
		return fmt.Errorf("encode comparison: %w", err)
	}

	result, err := q.ExecContext(ctx,
		`INSERT INTO purchases (workspace_id, date, store, completed_by, original_list_items, comparison, receipt_key) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.WorkspaceID, p.Date.UTC(), p.Store, p.CompletedBy, original, comparison, p.ReceiptKey,
	)
	if err != nil {
		return fmt.Errorf("insert purchase: %w", err)
	}
	if p.ID, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	return insertPurchaseItems(ctx, q, p.ID, p.Items)
}

func insertPurchaseItems(ctx context.Context, q queryer, purchaseID int64, items []model.PurchaseItem) error {
	for i, it := range items {
		_, err := q.ExecContext(ctx,
			`INSERT INTO purchase_items (purchase_id, position, name, quantity, price) VALUES (?, ?, ?, ?, ?)`,
			purchaseID, i, it.Name, it.Quantity, it.Price,
		)
		if err != nil {
			return fmt.Errorf("insert purchase item: %w", err)
		}
	}
	return nil
}

func bumpHistoryVersion(ctx context.Context, q queryer, workspaceID int64) error {
	_, err := q.ExecContext(ctx,
		`UPDATE workspaces SET history_version = history_version + 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), workspaceID,
	)
	if err != nil {
		return fmt.Errorf("bump history version: %w", err)
	}
	return nil
}

// Create appends a purchase to the history and sets its ID.
func (s *PurchaseStore) Create(ctx context.Context, p *model.Purchase) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := insertPurchase(ctx, tx, p); err != nil {
			return err
		}
		return bumpHistoryVersion(ctx, tx, p.WorkspaceID)
	})
}

// ListByWorkspace returns the whole history of a workspace, newest first,
// read in one transaction so no purchase is seen half written.
func (s *PurchaseStore) ListByWorkspace(ctx context.Context, workspaceID int64) ([]model.Purchase, error) {
	var purchases []model.Purchase

	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT `+purchaseCols+` FROM purchases WHERE workspace_id = ? ORDER BY date DESC, id DESC`,
			workspaceID,
		)
		if err != nil {
			return fmt.Errorf("list purchases: %w", err)
		}
		defer rows.Close()

		index := make(map[int64]int)
		for rows.Next() {
			p, err := scanPurchase(rows)
			if err != nil {
				return fmt.Errorf("scan purchase: %w", err)
			}
			index[p.ID] = len(purchases)
			purchases = append(purchases, *p)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		rows.Close()

		itemRows, err := tx.QueryContext(ctx, `
			SELECT pi.purchase_id, pi.name, pi.quantity, pi.price
			FROM purchase_items pi
			JOIN purchases p ON p.id = pi.purchase_id
			WHERE p.workspace_id = ?
			ORDER BY pi.purchase_id ASC, pi.position ASC`,
			workspaceID,
		)
		if err != nil {
			return fmt.Errorf("list purchase items: %w", err)
		}
		defer itemRows.Close()

		for itemRows.Next() {
			var purchaseID int64
			var it model.PurchaseItem
			if err := itemRows.Scan(&purchaseID, &it.Name, &it.Quantity, &it.Price); err != nil {
				return fmt.Errorf("scan purchase item: %w", err)
			}
			if i, ok := index[purchaseID]; ok {
				purchases[i].Items = append(purchases[i].Items, it)
			}
		}
		return itemRows.Err()
	})
	if err != nil {
		return nil, err
	}
	return purchases, nil
}

func getPurchase(ctx context.Context, q queryer, workspaceID, id int64) (*model.Purchase, error) {
	row := q.QueryRowContext(ctx, `SELECT `+purchaseCols+` FROM purchases WHERE id = ? AND workspace_id = ?`, id, workspaceID)
	p, err := scanPurchase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get purchase: %w", err)
	}

	rows, err := q.QueryContext(ctx, `SELECT name, quantity, price FROM purchase_items WHERE purchase_id = ? ORDER BY position ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("list purchase items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var it model.PurchaseItem
		if err := rows.Scan(&it.Name, &it.Quantity, &it.Price); err != nil {
			return nil, fmt.Errorf("scan purchase item: %w", err)
		}
		p.Items = append(p.Items, it)
	}
	return p, rows.Err()
}

// GetByID returns a purchase of the workspace, or nil when there is none.
func (s *PurchaseStore) GetByID(ctx context.Context, workspaceID, id int64) (*model.Purchase, error) {
	var p *model.Purchase
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		p, err = getPurchase(ctx, tx, workspaceID, id)
		return err
	})
	return p, err
}

// Enrich replaces a stored purchase's store name, items, comparison and
// receipt key in place. It reports whether the purchase exists.
func (s *PurchaseStore) Enrich(ctx context.Context, p model.Purchase) (bool, error) {
	comparison, err := encodeJSON(p.Comparison, p.Comparison != nil)
	if err != nil {
		return false, fmt.Errorf("encode comparison: %w", err)
	}

	var found bool
	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE purchases SET store = ?, comparison = ?, receipt_key = ? WHERE id = ? AND workspace_id = ?`,
			p.Store, comparison, p.ReceiptKey, p.ID, p.WorkspaceID,
		)
		if err != nil {
			return fmt.Errorf("update purchase: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if found = n > 0; !found {
			return nil
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM purchase_items WHERE purchase_id = ?`, p.ID); err != nil {
			return fmt.Errorf("clear purchase items: %w", err)
		}
		if err := insertPurchaseItems(ctx, tx, p.ID, p.Items); err != nil {
			return err
		}
		return bumpHistoryVersion(ctx, tx, p.WorkspaceID)
	})
	return found, err
}
