package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dukerupert/cartwise/internal/database"
	"github.com/dukerupert/cartwise/internal/model"
	"github.com/shopspring/decimal"
)

const homeID int64 = 1

func setupGroceryTestDB(t *testing.T) (*GroceryStore, *PurchaseStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewGroceryStore(db), NewPurchaseStore(db)
}

func mustAdd(t *testing.T, gs *GroceryStore, name, aisle string) *model.Item {
	t.Helper()
	item, err := gs.AddItem(context.Background(), homeID, model.NewItem{Name: name, Quantity: 1}, aisle)
	if err != nil {
		t.Fatalf("add %s: %v", name, err)
	}
	return item
}

func assertNoEmptyAisles(t *testing.T, list model.List) {
	t.Helper()
	for _, a := range list.Aisles {
		if len(a.Items) == 0 {
			t.Errorf("aisle %q has no items", a.Name)
		}
	}
}

func TestAddItemGroupsByAisleCaseInsensitive(t *testing.T) {
	gs, _ := setupGroceryTestDB(t)
	ctx := context.Background()

	milk := mustAdd(t, gs, "Milk", "Dairy")
	eggs := mustAdd(t, gs, "Eggs", "dairy")
	mustAdd(t, gs, "Butter", "  DAIRY ")

	if milk.AisleID != eggs.AisleID {
		t.Errorf("eggs aisle = %d, want %d", eggs.AisleID, milk.AisleID)
	}

	list, err := gs.GetList(ctx, homeID)
	if err != nil {
		t.Fatalf("get list: %v", err)
	}
	if len(list.Aisles) != 1 {
		t.Fatalf("expected 1 aisle, got %d", len(list.Aisles))
	}
	if list.Aisles[0].Name != "Dairy" {
		t.Errorf("aisle name = %q, want %q", list.Aisles[0].Name, "Dairy")
	}
	if len(list.Aisles[0].Items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(list.Aisles[0].Items))
	}
	want := []string{"Milk", "Eggs", "Butter"}
	for i, name := range want {
		if got := list.Aisles[0].Items[i].Name; got != name {
			t.Errorf("items[%d] = %q, want %q", i, got, name)
		}
	}
}

func TestAddItemBlankAisleFallsBack(t *testing.T) {
	gs, _ := setupGroceryTestDB(t)

	mustAdd(t, gs, "Widget", "   ")

	list, _ := gs.GetList(context.Background(), homeID)
	if len(list.Aisles) != 1 || list.Aisles[0].Name != model.DefaultAisle {
		t.Fatalf("aisles = %+v, want single %q aisle", list.Aisles, model.DefaultAisle)
	}
}

func TestAddItemBumpsVersion(t *testing.T) {
	gs, _ := setupGroceryTestDB(t)
	ctx := context.Background()

	before, _ := gs.GetList(ctx, homeID)
	mustAdd(t, gs, "Milk", "Dairy")
	after, _ := gs.GetList(ctx, homeID)

	if after.Version != before.Version+1 {
		t.Errorf("version = %d, want %d", after.Version, before.Version+1)
	}
}

func TestSetChecked(t *testing.T) {
	gs, _ := setupGroceryTestDB(t)
	ctx := context.Background()

	item := mustAdd(t, gs, "Milk", "Dairy")

	found, err := gs.SetChecked(ctx, homeID, item.AisleID, item.ID, true)
	if err != nil {
		t.Fatalf("set checked: %v", err)
	}
	if !found {
		t.Fatal("expected item to be found")
	}

	list, _ := gs.GetList(ctx, homeID)
	if !list.Aisles[0].Items[0].Checked {
		t.Error("expected item checked")
	}

	gs.SetChecked(ctx, homeID, item.AisleID, item.ID, false)
	list, _ = gs.GetList(ctx, homeID)
	if list.Aisles[0].Items[0].Checked {
		t.Error("expected item unchecked")
	}
}

func TestSetCheckedMissingIsNoOp(t *testing.T) {
	gs, _ := setupGroceryTestDB(t)
	ctx := context.Background()

	item := mustAdd(t, gs, "Milk", "Dairy")
	before, _ := gs.GetList(ctx, homeID)

	found, err := gs.SetChecked(ctx, homeID, item.AisleID, 9999, true)
	if err != nil {
		t.Fatalf("set checked: %v", err)
	}
	if found {
		t.Error("expected missing item to report not found")
	}

	// Right item id, wrong aisle.
	found, _ = gs.SetChecked(ctx, homeID, item.AisleID+1, item.ID, true)
	if found {
		t.Error("expected mismatched aisle to report not found")
	}

	after, _ := gs.GetList(ctx, homeID)
	if after.Version != before.Version {
		t.Errorf("version changed from %d to %d on no-op", before.Version, after.Version)
	}
}

func TestUpdateItem(t *testing.T) {
	gs, _ := setupGroceryTestDB(t)
	ctx := context.Background()

	item := mustAdd(t, gs, "Apples", "Produce")

	found, err := gs.UpdateItem(ctx, homeID, item.AisleID, item.ID, 6, "honeycrisp")
	if err != nil {
		t.Fatalf("update item: %v", err)
	}
	if !found {
		t.Fatal("expected item to be found")
	}

	list, _ := gs.GetList(ctx, homeID)
	got := list.Aisles[0].Items[0]
	if got.Quantity != 6 {
		t.Errorf("quantity = %d, want 6", got.Quantity)
	}
	if got.Notes != "honeycrisp" {
		t.Errorf("notes = %q, want %q", got.Notes, "honeycrisp")
	}
}

func TestRemoveItemDropsEmptyAisle(t *testing.T) {
	gs, _ := setupGroceryTestDB(t)
	ctx := context.Background()

	milk := mustAdd(t, gs, "Milk", "Dairy")
	eggs := mustAdd(t, gs, "Eggs", "Dairy")
	mustAdd(t, gs, "Bread", "Bakery")

	if _, err := gs.RemoveItem(ctx, homeID, milk.AisleID, milk.ID); err != nil {
		t.Fatalf("remove milk: %v", err)
	}
	list, _ := gs.GetList(ctx, homeID)
	if len(list.Aisles) != 2 {
		t.Fatalf("expected 2 aisles, got %d", len(list.Aisles))
	}

	if _, err := gs.RemoveItem(ctx, homeID, eggs.AisleID, eggs.ID); err != nil {
		t.Fatalf("remove eggs: %v", err)
	}
	list, _ = gs.GetList(ctx, homeID)
	if len(list.Aisles) != 1 {
		t.Fatalf("expected 1 aisle, got %d", len(list.Aisles))
	}
	if list.Aisles[0].Name != "Bakery" {
		t.Errorf("remaining aisle = %q, want %q", list.Aisles[0].Name, "Bakery")
	}

	names, _ := gs.AisleNames(ctx, homeID)
	if len(names) != 1 {
		t.Errorf("aisle rows = %v, want only Bakery", names)
	}
	assertNoEmptyAisles(t, list)
}

func TestRemoveItemMissingIsNoOp(t *testing.T) {
	gs, _ := setupGroceryTestDB(t)

	found, err := gs.RemoveItem(context.Background(), homeID, 1, 9999)
	if err != nil {
		t.Fatalf("remove item: %v", err)
	}
	if found {
		t.Error("expected not found")
	}
}

func TestMutationSequenceNeverLeavesEmptyAisle(t *testing.T) {
	gs, _ := setupGroceryTestDB(t)
	ctx := context.Background()

	var items []*model.Item
	for _, a := range []struct{ name, aisle string }{
		{"Milk", "Dairy"}, {"Bread", "Bakery"}, {"Eggs", "dairy"}, {"Kale", "Produce"},
	} {
		items = append(items, mustAdd(t, gs, a.name, a.aisle))
	}

	for i, it := range items {
		if i%2 == 0 {
			gs.SetChecked(ctx, homeID, it.AisleID, it.ID, true)
		}
		gs.RemoveItem(ctx, homeID, it.AisleID, it.ID)

		list, err := gs.GetList(ctx, homeID)
		if err != nil {
			t.Fatalf("get list: %v", err)
		}
		assertNoEmptyAisles(t, list)
		names, _ := gs.AisleNames(ctx, homeID)
		if len(names) != len(list.Aisles) {
			t.Errorf("after removing %s: %d aisle rows, %d non-empty aisles", it.Name, len(names), len(list.Aisles))
		}
	}
}

func unknownPriceBuild(store string) ArchiveFunc {
	return func(list model.List) (*model.Purchase, error) {
		checked := list.CheckedItems()
		if len(checked) == 0 {
			return nil, nil
		}
		p := &model.Purchase{
			Date:              time.Now().UTC(),
			Store:             store,
			CompletedBy:       "alice",
			OriginalListItems: list.Snapshot(),
		}
		for _, it := range checked {
			p.Items = append(p.Items, model.PurchaseItem{Name: it.Name, Quantity: it.Quantity})
		}
		return p, nil
	}
}

func TestArchiveDrainsOnlyCheckedItems(t *testing.T) {
	gs, ps := setupGroceryTestDB(t)
	ctx := context.Background()

	milk := mustAdd(t, gs, "Milk", "Dairy")
	mustAdd(t, gs, "Eggs", "Dairy")
	bread := mustAdd(t, gs, "Bread", "Bakery")
	gs.SetChecked(ctx, homeID, milk.AisleID, milk.ID, true)
	gs.SetChecked(ctx, homeID, bread.AisleID, bread.ID, true)

	p, err := gs.Archive(ctx, homeID, unknownPriceBuild("Safeway"))
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if p == nil || p.ID == 0 {
		t.Fatalf("expected stored purchase, got %+v", p)
	}

	list, _ := gs.GetList(ctx, homeID)
	if len(list.Aisles) != 1 || len(list.Aisles[0].Items) != 1 {
		t.Fatalf("expected only Eggs left, got %+v", list.Aisles)
	}
	if got := list.Aisles[0].Items[0]; got.Name != "Eggs" || got.Checked {
		t.Errorf("remaining item = %+v, want unchecked Eggs", got)
	}

	history, err := ps.ListByWorkspace(ctx, homeID)
	if err != nil {
		t.Fatalf("list purchases: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 purchase, got %d", len(history))
	}
	got := history[0]
	if got.Store != "Safeway" {
		t.Errorf("store = %q, want %q", got.Store, "Safeway")
	}
	if len(got.Items) != 2 {
		t.Fatalf("expected 2 purchase items, got %d", len(got.Items))
	}
	for _, it := range got.Items {
		if it.Price.Valid {
			t.Errorf("item %s price = %v, want unknown", it.Name, it.Price.Decimal)
		}
	}
	if len(got.OriginalListItems) != 3 {
		t.Errorf("original list items = %d, want 3", len(got.OriginalListItems))
	}
}

func TestArchiveNothingCheckedIsNoOp(t *testing.T) {
	gs, ps := setupGroceryTestDB(t)
	ctx := context.Background()

	mustAdd(t, gs, "Milk", "Dairy")
	before, _ := gs.GetList(ctx, homeID)

	p, err := gs.Archive(ctx, homeID, unknownPriceBuild("Safeway"))
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if p != nil {
		t.Errorf("expected no purchase, got %+v", p)
	}

	after, _ := gs.GetList(ctx, homeID)
	if after.Version != before.Version || after.ItemCount() != before.ItemCount() {
		t.Errorf("list changed: before %+v, after %+v", before, after)
	}
	history, _ := ps.ListByWorkspace(ctx, homeID)
	if len(history) != 0 {
		t.Errorf("expected empty history, got %d purchases", len(history))
	}
}

func TestArchiveFailureLeavesListUnchanged(t *testing.T) {
	gs, ps := setupGroceryTestDB(t)
	ctx := context.Background()

	milk := mustAdd(t, gs, "Milk", "Dairy")
	gs.SetChecked(ctx, homeID, milk.AisleID, milk.ID, true)

	// Break the item insert so the purchase row goes in but its items fail.
	if _, err := gs.db.Exec(`DROP TABLE purchase_items`); err != nil {
		t.Fatalf("drop table: %v", err)
	}

	if _, err := gs.Archive(ctx, homeID, unknownPriceBuild("Safeway")); err == nil {
		t.Fatal("expected archive error")
	}

	list, _ := gs.GetList(ctx, homeID)
	if list.ItemCount() != 1 || !list.Aisles[0].Items[0].Checked {
		t.Errorf("list drained despite failed archive: %+v", list.Aisles)
	}
	var count int
	ps.db.QueryRow(`SELECT COUNT(*) FROM purchases`).Scan(&count)
	if count != 0 {
		t.Errorf("purchases = %d, want 0 after rollback", count)
	}
}

func TestArchiveBuildErrorPropagates(t *testing.T) {
	gs, _ := setupGroceryTestDB(t)
	ctx := context.Background()

	milk := mustAdd(t, gs, "Milk", "Dairy")
	gs.SetChecked(ctx, homeID, milk.AisleID, milk.ID, true)

	boom := errors.New("boom")
	_, err := gs.Archive(ctx, homeID, func(model.List) (*model.Purchase, error) { return nil, boom })
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}

func TestPurchaseEnrich(t *testing.T) {
	gs, ps := setupGroceryTestDB(t)
	ctx := context.Background()

	milk := mustAdd(t, gs, "Milk", "Dairy")
	gs.SetChecked(ctx, homeID, milk.AisleID, milk.ID, true)
	p, _ := gs.Archive(ctx, homeID, unknownPriceBuild("Safeway"))

	p.Items = []model.PurchaseItem{
		{Name: "Milk", Quantity: 1, Price: decimal.NewNullDecimal(decimal.RequireFromString("3.49"))},
		{Name: "Chocolate", Quantity: 2, Price: decimal.NewNullDecimal(decimal.RequireFromString("1.25"))},
	}
	p.Comparison = &model.Comparison{ImpulseBuys: []string{"Chocolate"}, ForgottenItems: []string{}}

	found, err := ps.Enrich(ctx, *p)
	if err != nil {
		t.Fatalf("enrich: %v", err)
	}
	if !found {
		t.Fatal("expected purchase to be found")
	}

	got, err := ps.GetByID(ctx, homeID, p.ID)
	if err != nil {
		t.Fatalf("get purchase: %v", err)
	}
	if len(got.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(got.Items))
	}
	if !got.Items[0].Price.Valid || !got.Items[0].Price.Decimal.Equal(decimal.RequireFromString("3.49")) {
		t.Errorf("milk price = %+v, want 3.49", got.Items[0].Price)
	}
	if got.Comparison == nil || len(got.Comparison.ImpulseBuys) != 1 {
		t.Errorf("comparison = %+v, want one impulse buy", got.Comparison)
	}
	if !got.Total().Equal(decimal.RequireFromString("5.99")) {
		t.Errorf("total = %s, want 5.99", got.Total())
	}

	history, _ := ps.ListByWorkspace(ctx, homeID)
	if len(history) != 1 {
		t.Errorf("enrich must not append, got %d purchases", len(history))
	}
}

func TestPurchaseGetByIDNotFound(t *testing.T) {
	_, ps := setupGroceryTestDB(t)

	got, err := ps.GetByID(context.Background(), homeID, 9999)
	if err != nil {
		t.Fatalf("get purchase: %v", err)
	}
	if got != nil {
		t.Error("expected nil for nonexistent purchase")
	}
}

func TestPurchaseListNewestFirst(t *testing.T) {
	_, ps := setupGroceryTestDB(t)
	ctx := context.Background()

	now := time.Now().UTC()
	for i, store := range []string{"Old", "Middle", "New"} {
		p := &model.Purchase{
			WorkspaceID: homeID,
			Date:        now.AddDate(0, 0, i-3),
			Store:       store,
			Items:       []model.PurchaseItem{{Name: "Milk", Quantity: 1}},
		}
		if err := ps.Create(ctx, p); err != nil {
			t.Fatalf("create purchase: %v", err)
		}
	}

	history, err := ps.ListByWorkspace(ctx, homeID)
	if err != nil {
		t.Fatalf("list purchases: %v", err)
	}
	want := []string{"New", "Middle", "Old"}
	for i, store := range want {
		if history[i].Store != store {
			t.Errorf("history[%d].Store = %q, want %q", i, history[i].Store, store)
		}
	}
}
