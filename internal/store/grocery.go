package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dukerupert/cartwise/internal/grocery"
	"github.com/dukerupert/cartwise/internal/model"
	"github.com/sethvargo/go-retry"
)

// ErrVersionConflict is returned when the list changed between reading it and
// draining it during archival.
var ErrVersionConflict = errors.New("list version conflict")

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type GroceryStore struct {
	db *sql.DB
	// archiveBackoff paces retries after a version conflict.
	archiveBackoff func() retry.Backoff
}

func NewGroceryStore(db *sql.DB) *GroceryStore {
	return &GroceryStore{
		db: db,
		archiveBackoff: func() retry.Backoff {
			return retry.WithMaxRetries(3, retry.NewExponential(10*time.Millisecond))
		},
	}
}

func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func bumpListVersion(ctx context.Context, q queryer, workspaceID int64) error {
	_, err := q.ExecContext(ctx,
		`UPDATE workspaces SET list_version = list_version + 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), workspaceID,
	)
	if err != nil {
		return fmt.Errorf("bump list version: %w", err)
	}
	return nil
}

// --- Reads ---

func loadList(ctx context.Context, q queryer, workspaceID int64) (model.List, error) {
	list := model.List{WorkspaceID: workspaceID, Aisles: []model.Aisle{}}

	err := q.QueryRowContext(ctx, `SELECT list_version FROM workspaces WHERE id = ?`, workspaceID).Scan(&list.Version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return list, fmt.Errorf("get list version: %w", err)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT a.id, a.name, i.id, i.name, i.quantity, i.notes, i.checked, i.created_at
		FROM aisles a
		JOIN items i ON i.aisle_id = a.id
		WHERE a.workspace_id = ?
		ORDER BY a.id ASC, i.sort_order ASC, i.id ASC`,
		workspaceID,
	)
	if err != nil {
		return list, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var aisleID int64
		var aisleName string
		var item model.Item
		var checked int
		if err := rows.Scan(&aisleID, &aisleName, &item.ID, &item.Name, &item.Quantity, &item.Notes, &checked, &item.CreatedAt); err != nil {
			return list, fmt.Errorf("scan item: %w", err)
		}
		item.AisleID = aisleID
		item.Checked = checked != 0

		n := len(list.Aisles)
		if n == 0 || list.Aisles[n-1].ID != aisleID {
			list.Aisles = append(list.Aisles, model.Aisle{ID: aisleID, Name: aisleName})
			n++
		}
		list.Aisles[n-1].Items = append(list.Aisles[n-1].Items, item)
	}
	return list, rows.Err()
}

// GetList returns the workspace's list as one consistent snapshot.
func (s *GroceryStore) GetList(ctx context.Context, workspaceID int64) (model.List, error) {
	var list model.List
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		list, err = loadList(ctx, tx, workspaceID)
		return err
	})
	return list, err
}

type aisleRef struct {
	id   int64
	name string
}

func listAisles(ctx context.Context, q queryer, workspaceID int64) ([]aisleRef, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, name FROM aisles WHERE workspace_id = ? ORDER BY id ASC`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list aisles: %w", err)
	}
	defer rows.Close()

	var aisles []aisleRef
	for rows.Next() {
		var a aisleRef
		if err := rows.Scan(&a.id, &a.name); err != nil {
			return nil, fmt.Errorf("scan aisle: %w", err)
		}
		aisles = append(aisles, a)
	}
	return aisles, rows.Err()
}

// AisleNames returns the names of the workspace's aisles in creation order.
func (s *GroceryStore) AisleNames(ctx context.Context, workspaceID int64) ([]string, error) {
	aisles, err := listAisles(ctx, s.db, workspaceID)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(aisles))
	for i, a := range aisles {
		names[i] = a.name
	}
	return names, nil
}

// --- Mutations ---

// AddItem appends an item to the aisle whose name matches aisleName
// case-insensitively, creating the aisle when none does.
func (s *GroceryStore) AddItem(ctx context.Context, workspaceID int64, in model.NewItem, aisleName string) (*model.Item, error) {
	aisleName = grocery.AisleName(aisleName)
	var item *model.Item

	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		aisles, err := listAisles(ctx, tx, workspaceID)
		if err != nil {
			return err
		}

		var aisleID int64
		for _, a := range aisles {
			if grocery.SameName(a.name, aisleName) {
				aisleID = a.id
				break
			}
		}
		if aisleID == 0 {
			result, err := tx.ExecContext(ctx, `INSERT INTO aisles (workspace_id, name) VALUES (?, ?)`, workspaceID, aisleName)
			if err != nil {
				return fmt.Errorf("insert aisle: %w", err)
			}
			if aisleID, err = result.LastInsertId(); err != nil {
				return fmt.Errorf("last insert id: %w", err)
			}
		}

		now := time.Now().UTC()
		result, err := tx.ExecContext(ctx, `
			INSERT INTO items (aisle_id, name, quantity, notes, sort_order, created_at)
			VALUES (?, ?, ?, ?, (SELECT COALESCE(MAX(sort_order), 0) + 1 FROM items WHERE aisle_id = ?), ?)`,
			aisleID, in.Name, in.Quantity, in.Notes, aisleID, now,
		)
		if err != nil {
			return fmt.Errorf("insert item: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}

		item = &model.Item{
			ID:        id,
			AisleID:   aisleID,
			Name:      in.Name,
			Quantity:  in.Quantity,
			Notes:     in.Notes,
			CreatedAt: now,
		}
		return bumpListVersion(ctx, tx, workspaceID)
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

const itemInWorkspace = `id = ? AND aisle_id = ? AND aisle_id IN (SELECT id FROM aisles WHERE workspace_id = ?)`

// SetChecked sets the checked flag on one item. It reports whether an item
// was found; a missing item is not an error.
func (s *GroceryStore) SetChecked(ctx context.Context, workspaceID, aisleID, itemID int64, checked bool) (bool, error) {
	var found bool
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		c := 0
		if checked {
			c = 1
		}
		result, err := tx.ExecContext(ctx, `UPDATE items SET checked = ? WHERE `+itemInWorkspace, c, itemID, aisleID, workspaceID)
		if err != nil {
			return fmt.Errorf("set checked: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if found = n > 0; !found {
			return nil
		}
		return bumpListVersion(ctx, tx, workspaceID)
	})
	return found, err
}

// UpdateItem changes an item's quantity and notes. It reports whether an item
// was found.
func (s *GroceryStore) UpdateItem(ctx context.Context, workspaceID, aisleID, itemID int64, quantity int, notes string) (bool, error) {
	var found bool
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `UPDATE items SET quantity = ?, notes = ? WHERE `+itemInWorkspace, quantity, notes, itemID, aisleID, workspaceID)
		if err != nil {
			return fmt.Errorf("update item: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if found = n > 0; !found {
			return nil
		}
		return bumpListVersion(ctx, tx, workspaceID)
	})
	return found, err
}

// RemoveItem deletes an item, and its aisle too when that leaves it empty.
func (s *GroceryStore) RemoveItem(ctx context.Context, workspaceID, aisleID, itemID int64) (bool, error) {
	var found bool
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM items WHERE `+itemInWorkspace, itemID, aisleID, workspaceID)
		if err != nil {
			return fmt.Errorf("delete item: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if found = n > 0; !found {
			return nil
		}
		if err := pruneAisles(ctx, tx, workspaceID); err != nil {
			return err
		}
		return bumpListVersion(ctx, tx, workspaceID)
	})
	return found, err
}

func pruneAisles(ctx context.Context, q queryer, workspaceID int64) error {
	_, err := q.ExecContext(ctx,
		`DELETE FROM aisles WHERE workspace_id = ? AND NOT EXISTS (SELECT 1 FROM items WHERE items.aisle_id = aisles.id)`,
		workspaceID,
	)
	if err != nil {
		return fmt.Errorf("prune aisles: %w", err)
	}
	return nil
}

// --- Archival ---

// ArchiveFunc builds the purchase for a list read inside the archival
// transaction. Returning a nil purchase aborts without changes.
type ArchiveFunc func(list model.List) (*model.Purchase, error)

// Archive reads the list, lets build turn it into a purchase, then appends the
// purchase and removes every checked item (and emptied aisle) in the same
// transaction. The drain is guarded by a compare-and-swap on the workspace's
// list version and retried on conflict. When build returns nil the list and
// history are left untouched and Archive returns (nil, nil).
func (s *GroceryStore) Archive(ctx context.Context, workspaceID int64, build ArchiveFunc) (*model.Purchase, error) {
	var purchase *model.Purchase

	err := retry.Do(ctx, s.archiveBackoff(), func(ctx context.Context) error {
		purchase = nil
		err := withTx(ctx, s.db, func(tx *sql.Tx) error {
			list, err := loadList(ctx, tx, workspaceID)
			if err != nil {
				return err
			}
			p, err := build(list)
			if err != nil || p == nil {
				return err
			}

			result, err := tx.ExecContext(ctx,
				`UPDATE workspaces SET list_version = list_version + 1, history_version = history_version + 1, updated_at = ?
				 WHERE id = ? AND list_version = ?`,
				time.Now().UTC(), workspaceID, list.Version,
			)
			if err != nil {
				return fmt.Errorf("swap list version: %w", err)
			}
			if n, err := result.RowsAffected(); err != nil {
				return fmt.Errorf("rows affected: %w", err)
			} else if n == 0 {
				return ErrVersionConflict
			}

			p.WorkspaceID = workspaceID
			if err := insertPurchase(ctx, tx, p); err != nil {
				return err
			}

			for _, it := range list.CheckedItems() {
				if _, err := tx.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, it.ID); err != nil {
					return fmt.Errorf("drain item: %w", err)
				}
			}
			if err := pruneAisles(ctx, tx, workspaceID); err != nil {
				return err
			}

			purchase = p
			return nil
		})
		if errors.Is(err, ErrVersionConflict) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	return purchase, nil
}
