package reconcile

import (
	"testing"

	"github.com/dukerupert/cartwise/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func price(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCompareMilkBreadEggs(t *testing.T) {
	original := []model.ListSnapshotItem{
		{Name: "Milk", Checked: true},
		{Name: "Bread", Checked: false},
	}
	receipt := []model.ReceiptItem{{Name: "Eggs"}}

	cmp := Compare(original, receipt)

	assert.Equal(t, []string{"Milk"}, cmp.ForgottenItems)
	assert.Equal(t, []string{"Eggs"}, cmp.ImpulseBuys)
}

func TestCompareCaseInsensitive(t *testing.T) {
	original := []model.ListSnapshotItem{{Name: "milk", Checked: true}}
	receipt := []model.ReceiptItem{{Name: "MILK"}}

	cmp := Compare(original, receipt)

	assert.Empty(t, cmp.ForgottenItems)
	assert.Empty(t, cmp.ImpulseBuys)
}

func TestCompareNoNormalization(t *testing.T) {
	original := []model.ListSnapshotItem{{Name: "Egg", Checked: true}}
	receipt := []model.ReceiptItem{{Name: "Eggs"}}

	cmp := Compare(original, receipt)

	assert.Equal(t, []string{"Egg"}, cmp.ForgottenItems)
	assert.Equal(t, []string{"Eggs"}, cmp.ImpulseBuys)
}

func TestCompareOrderIndependent(t *testing.T) {
	original := []model.ListSnapshotItem{
		{Name: "Milk", Checked: true},
		{Name: "Cheese", Checked: true},
		{Name: "Bread"},
		{Name: "Apples", Checked: true},
	}
	receipt := []model.ReceiptItem{{Name: "Gum"}, {Name: "apples"}, {Name: "Chips"}, {Name: "Soda"}}

	first := Compare(original, receipt)

	reversedOriginal := make([]model.ListSnapshotItem, len(original))
	for i, it := range original {
		reversedOriginal[len(original)-1-i] = it
	}
	reversedReceipt := make([]model.ReceiptItem, len(receipt))
	for i, it := range receipt {
		reversedReceipt[len(receipt)-1-i] = it
	}
	second := Compare(reversedOriginal, reversedReceipt)

	assert.Equal(t, first, second)
	assert.Equal(t, []string{"Cheese", "Milk"}, first.ForgottenItems)
	assert.Equal(t, []string{"Chips", "Gum", "Soda"}, first.ImpulseBuys)
}

func TestCompareCaseVariantsIgnoreOrder(t *testing.T) {
	original := []model.ListSnapshotItem{
		{Name: "Bread", Checked: true},
		{Name: "bread", Checked: true},
		{Name: " BREAD", Checked: true},
	}
	receipt := []model.ReceiptItem{{Name: "Milk"}, {Name: "milk"}, {Name: "MILK "}}

	want := model.Comparison{ForgottenItems: []string{"BREAD"}, ImpulseBuys: []string{"MILK"}}

	orders := [][3]int{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}
	for _, lo := range orders {
		for _, ro := range orders {
			o := []model.ListSnapshotItem{original[lo[0]], original[lo[1]], original[lo[2]]}
			r := []model.ReceiptItem{receipt[ro[0]], receipt[ro[1]], receipt[ro[2]]}
			assert.Equal(t, want, Compare(o, r), "list order %v, receipt order %v", lo, ro)
		}
	}
}

func TestCanonical(t *testing.T) {
	assert.Equal(t, "Milk", Canonical("milk", "Milk"))
	assert.Equal(t, "Milk", Canonical("Milk", " milk "))
	assert.Equal(t, Canonical("a", "A"), Canonical("A", "a"))
}

func TestCompareDeduplicates(t *testing.T) {
	receipt := []model.ReceiptItem{{Name: "Gum"}, {Name: "Gum"}, {Name: "gum"}}

	cmp := Compare(nil, receipt)

	require.Len(t, cmp.ImpulseBuys, 1)
	assert.Equal(t, "Gum", cmp.ImpulseBuys[0])
}

func TestCompareEmptyInputs(t *testing.T) {
	cmp := Compare(nil, nil)

	assert.NotNil(t, cmp.ForgottenItems)
	assert.NotNil(t, cmp.ImpulseBuys)
	assert.Empty(t, cmp.ForgottenItems)
	assert.Empty(t, cmp.ImpulseBuys)
}

func TestIsImpulse(t *testing.T) {
	original := []model.ListSnapshotItem{{Name: "Milk"}}

	assert.False(t, IsImpulse(original, "milk"))
	assert.True(t, IsImpulse(original, "Cookies"))
}

func TestMergeReplacesProvisionalPrices(t *testing.T) {
	p := model.Purchase{
		ID:    7,
		Store: "Safeway",
		Items: []model.PurchaseItem{{Name: "Milk", Quantity: 1}},
		OriginalListItems: []model.ListSnapshotItem{
			{Name: "Milk", Checked: true},
			{Name: "Eggs", Checked: true},
		},
	}
	receipt := model.Receipt{
		StoreName: "SAFEWAY #1234",
		Items: []model.ReceiptItem{
			{Name: "Milk", Quantity: 1, Price: price("3.49")},
			{Name: "Candy", Quantity: 0, Price: price("0.99")},
		},
	}

	merged := Merge(p, receipt)

	assert.Equal(t, int64(7), merged.ID)
	assert.Equal(t, "Safeway", merged.Store)
	require.Len(t, merged.Items, 2)
	assert.True(t, merged.Items[0].Price.Valid)
	assert.True(t, merged.Items[0].Price.Decimal.Equal(price("3.49")))
	assert.Equal(t, 1, merged.Items[1].Quantity)
	require.NotNil(t, merged.Comparison)
	assert.Equal(t, []string{"Eggs"}, merged.Comparison.ForgottenItems)
	assert.Equal(t, []string{"Candy"}, merged.Comparison.ImpulseBuys)

	// the input purchase is not touched
	require.Len(t, p.Items, 1)
	assert.False(t, p.Items[0].Price.Valid)
	assert.Nil(t, p.Comparison)
}

func TestMergeUsesReceiptStoreWhenBlank(t *testing.T) {
	merged := Merge(model.Purchase{}, model.Receipt{StoreName: " Aldi "})

	assert.Equal(t, "Aldi", merged.Store)
}

func TestAnalyze(t *testing.T) {
	analysis := Analyze(
		[]model.ListSnapshotItem{{Name: "Milk", Checked: true}},
		model.Receipt{StoreName: "Aldi", Items: []model.ReceiptItem{{Name: "Milk", Price: price("1.10")}}},
	)

	assert.Equal(t, "Aldi", analysis.StoreName)
	assert.Empty(t, analysis.Comparison.ForgottenItems)
	assert.Empty(t, analysis.Comparison.ImpulseBuys)
}
