package shopping

import (
	"context"
	"strings"

	"github.com/dukerupert/cartwise/internal/currency"
	"github.com/dukerupert/cartwise/internal/feed"
	"github.com/dukerupert/cartwise/internal/grocery"
	"github.com/dukerupert/cartwise/internal/model"
)

func (s *Service) Workspaces(ctx context.Context) ([]model.Workspace, error) {
	ws, err := s.workspaces.List(ctx)
	if ws == nil && err == nil {
		ws = []model.Workspace{}
	}
	return ws, err
}

// Workspace returns the workspace, or nil when it does not exist.
func (s *Service) Workspace(ctx context.Context, workspaceID int64) (*model.Workspace, error) {
	return s.workspaces.GetByID(ctx, workspaceID)
}

func (s *Service) CreateWorkspace(ctx context.Context, name, code string) (*model.Workspace, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("name", "name is required")
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		code = s.currency
	}
	if !currency.ValidCode(code) {
		return nil, invalid("currency", "unknown currency code "+code)
	}
	return s.workspaces.Create(context.WithoutCancel(ctx), name, code)
}

// GetList returns the workspace's list as an immutable snapshot.
func (s *Service) GetList(ctx context.Context, workspaceID int64) (model.List, error) {
	if err := s.requireWorkspace(ctx, workspaceID); err != nil {
		return model.List{}, err
	}
	return s.groceries.GetList(ctx, workspaceID)
}

func validateNewItem(in model.NewItem) (model.NewItem, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Notes = strings.TrimSpace(in.Notes)
	if in.Name == "" {
		return in, invalid("name", "name is required")
	}
	if in.Quantity <= 0 {
		return in, invalid("quantity", "quantity must be a positive whole number")
	}
	return in, nil
}

// AddItem appends an item to the named aisle, matched case-insensitively.
// A blank aisle name means the default aisle.
func (s *Service) AddItem(ctx context.Context, workspaceID int64, in model.NewItem, aisle string) (*model.Item, error) {
	in, err := validateNewItem(in)
	if err != nil {
		return nil, err
	}

	var item *model.Item
	err = s.write(ctx, workspaceID, func(ctx context.Context) error {
		item, err = s.groceries.AddItem(ctx, workspaceID, in, aisle)
		return err
	}, feed.CollectionList)
	if err != nil {
		return nil, err
	}
	s.metrics.ListWrites.WithLabelValues("add").Inc()
	return item, nil
}

// QuickAdd adds one of name to the aisle guessed from the name, reusing an
// existing aisle's spelling when it matches the guess.
func (s *Service) QuickAdd(ctx context.Context, workspaceID int64, name string) (*model.Item, error) {
	in, err := validateNewItem(model.NewItem{Name: name, Quantity: 1})
	if err != nil {
		return nil, err
	}

	var item *model.Item
	err = s.write(ctx, workspaceID, func(ctx context.Context) error {
		existing, err := s.groceries.AisleNames(ctx, workspaceID)
		if err != nil {
			return err
		}
		item, err = s.groceries.AddItem(ctx, workspaceID, in, grocery.ResolveAisle(in.Name, existing))
		return err
	}, feed.CollectionList)
	if err != nil {
		return nil, err
	}
	s.metrics.ListWrites.WithLabelValues("quick_add").Inc()
	return item, nil
}

// SetChecked flips one item. It reports whether the item was found; a
// missing item changes nothing and is not an error.
func (s *Service) SetChecked(ctx context.Context, workspaceID, aisleID, itemID int64, checked bool) (bool, error) {
	var found bool
	err := s.write(ctx, workspaceID, func(ctx context.Context) (err error) {
		found, err = s.groceries.SetChecked(ctx, workspaceID, aisleID, itemID, checked)
		return err
	}, feed.CollectionList)
	if err == nil && found {
		s.metrics.ListWrites.WithLabelValues("check").Inc()
	}
	return found, err
}

// UpdateItem edits an item's quantity and notes.
func (s *Service) UpdateItem(ctx context.Context, workspaceID, aisleID, itemID int64, quantity int, notes string) (bool, error) {
	if quantity <= 0 {
		return false, invalid("quantity", "quantity must be a positive whole number")
	}
	notes = strings.TrimSpace(notes)

	var found bool
	err := s.write(ctx, workspaceID, func(ctx context.Context) (err error) {
		found, err = s.groceries.UpdateItem(ctx, workspaceID, aisleID, itemID, quantity, notes)
		return err
	}, feed.CollectionList)
	if err == nil && found {
		s.metrics.ListWrites.WithLabelValues("update").Inc()
	}
	return found, err
}

// RemoveItem deletes an item and drops its aisle if that leaves it empty.
func (s *Service) RemoveItem(ctx context.Context, workspaceID, aisleID, itemID int64) (bool, error) {
	var found bool
	err := s.write(ctx, workspaceID, func(ctx context.Context) (err error) {
		found, err = s.groceries.RemoveItem(ctx, workspaceID, aisleID, itemID)
		return err
	}, feed.CollectionList)
	if err == nil && found {
		s.metrics.ListWrites.WithLabelValues("remove").Inc()
	}
	return found, err
}
