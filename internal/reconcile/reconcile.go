// Package reconcile diffs a scanned receipt against the list a shopper set out
// with and folds the receipt's prices into the archived purchase.
package reconcile

import (
	"sort"
	"strings"

	"github.com/dukerupert/cartwise/internal/model"
	"github.com/shopspring/decimal"
)

func key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Compare returns the impulse buys (receipt lines that were never on the list)
// and forgotten items (checked list entries missing from the receipt). Unchecked
// entries absent from the receipt are neither. Names differing only in case
// collapse to their smallest spelling, and both results are sorted, so input
// order does not matter.
func Compare(original []model.ListSnapshotItem, receipt []model.ReceiptItem) model.Comparison {
	onList := make(map[string]bool, len(original))
	checked := make(map[string]string)
	for _, it := range original {
		k := key(it.Name)
		onList[k] = true
		if it.Checked && k != "" {
			keepCanonical(checked, k, it.Name)
		}
	}
	bought := make(map[string]string, len(receipt))
	for _, it := range receipt {
		if k := key(it.Name); k != "" {
			keepCanonical(bought, k, it.Name)
		}
	}

	cmp := model.Comparison{ForgottenItems: []string{}, ImpulseBuys: []string{}}
	for k, name := range bought {
		if !onList[k] {
			cmp.ImpulseBuys = append(cmp.ImpulseBuys, name)
		}
	}
	for k, name := range checked {
		if _, ok := bought[k]; !ok {
			cmp.ForgottenItems = append(cmp.ForgottenItems, name)
		}
	}

	sortNames(cmp.ImpulseBuys)
	sortNames(cmp.ForgottenItems)
	return cmp
}

func keepCanonical(names map[string]string, k, name string) {
	if cur, ok := names[k]; ok {
		names[k] = Canonical(cur, name)
		return
	}
	names[k] = strings.TrimSpace(name)
}

// Canonical picks which of two spellings of the same name to report: the
// bytewise smaller one after trimming.
func Canonical(a, b string) string {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if b < a {
		return b
	}
	return a
}

// sortNames orders case-insensitively. Keys are unique after canonicalization,
// so the order is total.
func sortNames(names []string) {
	sort.Slice(names, func(i, j int) bool {
		return strings.ToLower(names[i]) < strings.ToLower(names[j])
	})
}

// IsImpulse reports whether a purchased name is absent from the original list.
func IsImpulse(original []model.ListSnapshotItem, name string) bool {
	k := key(name)
	for _, it := range original {
		if key(it.Name) == k {
			return false
		}
	}
	return true
}

// PurchaseItems converts receipt lines into purchase items with known prices.
// A missing or non-positive quantity counts as one.
func PurchaseItems(receipt []model.ReceiptItem) []model.PurchaseItem {
	items := make([]model.PurchaseItem, 0, len(receipt))
	for _, it := range receipt {
		qty := it.Quantity
		if qty <= 0 {
			qty = 1
		}
		price := it.Price
		if price.IsNegative() {
			price = decimal.Zero
		}
		items = append(items, model.PurchaseItem{
			Name:     strings.TrimSpace(it.Name),
			Quantity: qty,
			Price:    decimal.NewNullDecimal(price),
		})
	}
	return items
}

// Analyze pairs a receipt with its comparison against the original list.
func Analyze(original []model.ListSnapshotItem, receipt model.Receipt) model.ReceiptAnalysis {
	return model.ReceiptAnalysis{
		StoreName:  strings.TrimSpace(receipt.StoreName),
		Items:      receipt.Items,
		Comparison: Compare(original, receipt.Items),
	}
}

// Merge returns a copy of p enriched with the receipt: its lines replace the
// provisional items, the comparison against p's original list is recorded, and
// the receipt's store name is used only when p has none.
func Merge(p model.Purchase, receipt model.Receipt) model.Purchase {
	out := p
	out.Items = PurchaseItems(receipt.Items)
	cmp := Compare(p.OriginalListItems, receipt.Items)
	out.Comparison = &cmp
	if strings.TrimSpace(out.Store) == "" {
		out.Store = strings.TrimSpace(receipt.StoreName)
	}
	return out
}
