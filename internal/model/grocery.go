package model

import "time"

// DefaultAisle is used when an item is added without a usable aisle name.
const DefaultAisle = "Uncategorized"

type Item struct {
	ID        int64     `json:"id"`
	AisleID   int64     `json:"aisle_id"`
	Name      string    `json:"name"`
	Quantity  int       `json:"quantity"`
	Notes     string    `json:"notes"`
	Checked   bool      `json:"checked"`
	CreatedAt time.Time `json:"created_at"`
}

type Aisle struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Items []Item `json:"items"`
}

// List is the shared, not yet archived working set of a workspace.
type List struct {
	WorkspaceID int64   `json:"workspace_id"`
	Version     int64   `json:"version"`
	Aisles      []Aisle `json:"aisles"`
}

// NewItem carries the caller supplied fields of an item being added.
type NewItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Notes    string `json:"notes"`
}

// CheckedItems returns every checked item across all aisles, in aisle order.
func (l List) CheckedItems() []Item {
	var out []Item
	for _, a := range l.Aisles {
		for _, it := range a.Items {
			if it.Checked {
				out = append(out, it)
			}
		}
	}
	return out
}

// Snapshot captures the full list state, checked or not, for later comparison
// against what was actually bought.
func (l List) Snapshot() []ListSnapshotItem {
	var out []ListSnapshotItem
	for _, a := range l.Aisles {
		for _, it := range a.Items {
			out = append(out, ListSnapshotItem{
				Name:     it.Name,
				Quantity: it.Quantity,
				Aisle:    a.Name,
				Checked:  it.Checked,
			})
		}
	}
	return out
}

// ItemCount returns the number of items on the list.
func (l List) ItemCount() int {
	n := 0
	for _, a := range l.Aisles {
		n += len(a.Items)
	}
	return n
}
