package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PurchaseItem is a frozen snapshot of something bought on a trip. A null
// Price means the price is not known yet.
type PurchaseItem struct {
	Name     string              `json:"name"`
	Quantity int                 `json:"quantity"`
	Price    decimal.NullDecimal `json:"price"`
}

// LineTotal returns price times quantity, or zero when the price is unknown.
func (p PurchaseItem) LineTotal() decimal.Decimal {
	if !p.Price.Valid {
		return decimal.Zero
	}
	return p.Price.Decimal.Mul(decimal.NewFromInt(int64(p.Quantity)))
}

// ListSnapshotItem is a list entry as it stood when the trip was archived.
type ListSnapshotItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Aisle    string `json:"aisle"`
	Checked  bool   `json:"checked"`
}

// Comparison is the receipt-versus-list diff recorded on a purchase.
type Comparison struct {
	ForgottenItems []string `json:"forgotten_items"`
	ImpulseBuys    []string `json:"impulse_buys"`
}

type Purchase struct {
	ID                int64              `json:"id"`
	WorkspaceID       int64              `json:"workspace_id"`
	Date              time.Time          `json:"date"`
	Store             string             `json:"store"`
	CompletedBy       string             `json:"completed_by"`
	Items             []PurchaseItem     `json:"items"`
	OriginalListItems []ListSnapshotItem `json:"original_list_items,omitempty"`
	Comparison        *Comparison        `json:"comparison,omitempty"`
	ReceiptKey        string             `json:"receipt_key,omitempty"`
}

// Total sums every line total; unknown prices count as zero.
func (p Purchase) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range p.Items {
		total = total.Add(it.LineTotal())
	}
	return total
}

// ReceiptItem is one line returned by the extraction service.
type ReceiptItem struct {
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// Receipt is the structured result of analysing a receipt image.
type Receipt struct {
	StoreName string        `json:"store_name"`
	Items     []ReceiptItem `json:"items"`
}

// ReceiptAnalysis is a receipt paired with its comparison against a list.
type ReceiptAnalysis struct {
	StoreName  string        `json:"store_name"`
	Items      []ReceiptItem `json:"items"`
	Comparison Comparison    `json:"comparison"`
	ReceiptKey string        `json:"receipt_key,omitempty"`
}
