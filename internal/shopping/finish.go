package shopping

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/cartwise/internal/events"
	"github.com/dukerupert/cartwise/internal/feed"
	"github.com/dukerupert/cartwise/internal/metrics"
	"github.com/dukerupert/cartwise/internal/model"
	"github.com/dukerupert/cartwise/internal/reconcile"
)

// FinishRequest describes a completed shopping trip. Receipt, when present,
// is an already extracted receipt whose lines and prices replace the checked
// items; ReceiptKey names its stored image.
type FinishRequest struct {
	Store       string         `json:"store"`
	CompletedBy string         `json:"completed_by"`
	Receipt     *model.Receipt `json:"receipt,omitempty"`
	ReceiptKey  string         `json:"receipt_key,omitempty"`
}

// Outcome reports what FinishShopping did. Archived is false when nothing
// was checked; the list and history are then unchanged.
type Outcome struct {
	Archived bool            `json:"archived"`
	Purchase *model.Purchase `json:"purchase,omitempty"`
}

func (r FinishRequest) storeName() string {
	name := strings.TrimSpace(r.Store)
	if name == "" && r.Receipt != nil {
		name = strings.TrimSpace(r.Receipt.StoreName)
	}
	return name
}

// checkedPurchaseItems freezes checked items with the unknown price.
func checkedPurchaseItems(items []model.Item) []model.PurchaseItem {
	out := make([]model.PurchaseItem, 0, len(items))
	for _, it := range items {
		out = append(out, model.PurchaseItem{
			Name:     it.Name,
			Quantity: it.Quantity,
			Price:    decimal.NullDecimal{},
		})
	}
	return out
}

// FinishShopping archives the checked items as a new purchase and drains them
// from the list in one transaction. With nothing checked it does nothing.
func (s *Service) FinishShopping(ctx context.Context, workspaceID int64, req FinishRequest) (Outcome, error) {
	storeName := req.storeName()
	if storeName == "" {
		return Outcome{}, invalid("store", "store is required")
	}
	completedBy := strings.TrimSpace(req.CompletedBy)

	start := time.Now()
	var purchase *model.Purchase
	err := s.write(ctx, workspaceID, func(ctx context.Context) error {
		var err error
		purchase, err = s.groceries.Archive(ctx, workspaceID, func(list model.List) (*model.Purchase, error) {
			checked := list.CheckedItems()
			if len(checked) == 0 {
				return nil, nil
			}
			p := &model.Purchase{
				Date:              s.now(),
				Store:             storeName,
				CompletedBy:       completedBy,
				OriginalListItems: list.Snapshot(),
			}
			if req.Receipt != nil {
				p.Items = reconcile.PurchaseItems(req.Receipt.Items)
				cmp := reconcile.Compare(p.OriginalListItems, req.Receipt.Items)
				p.Comparison = &cmp
				p.ReceiptKey = req.ReceiptKey
			} else {
				p.Items = checkedPurchaseItems(checked)
			}
			return p, nil
		})
		if err != nil || purchase == nil {
			return err
		}
		s.publish(ctx, workspaceID, feed.CollectionList)
		s.publish(ctx, workspaceID, feed.CollectionHistory)
		return nil
	})
	if err != nil {
		s.metrics.ObserveArchive(metrics.OutcomeError, start)
		return Outcome{}, err
	}
	if purchase == nil {
		s.metrics.ObserveArchive(metrics.OutcomeNoop, start)
		s.logger.Debug("finish shopping with nothing checked", "workspace_id", workspaceID)
		return Outcome{}, nil
	}

	s.metrics.ObserveArchive(metrics.OutcomeArchived, start)
	s.logger.Info("shopping trip archived",
		"workspace_id", workspaceID,
		"purchase_id", purchase.ID,
		"items", len(purchase.Items),
		"store", purchase.Store)
	s.emit(context.WithoutCancel(ctx), events.Event{
		Type:        events.PurchaseArchived,
		WorkspaceID: workspaceID,
		PurchaseID:  purchase.ID,
		ItemCount:   len(purchase.Items),
		At:          purchase.Date,
	})
	return Outcome{Archived: true, Purchase: purchase}, nil
}

func validateImage(image []byte) error {
	if len(image) == 0 {
		return invalid("image", "receipt image is required")
	}
	return nil
}

// storeImage keeps the receipt photo. Failing to store it does not block
// the analysis; the result then carries no key.
func (s *Service) storeImage(ctx context.Context, workspaceID int64, image []byte, contentType string) string {
	key, err := s.receipts.Put(ctx, workspaceID, image, contentType)
	if err != nil {
		s.logger.Warn("store receipt image", "workspace_id", workspaceID, "error", err)
		return ""
	}
	return key
}

func (s *Service) extract(ctx context.Context, image []byte, contentType string) (model.Receipt, error) {
	receipt, err := s.extractor.Extract(ctx, image, contentType)
	if err != nil {
		s.metrics.Extractions.WithLabelValues(metrics.OutcomeError).Inc()
		return model.Receipt{}, err
	}
	s.metrics.Extractions.WithLabelValues(metrics.OutcomeOK).Inc()
	return receipt, nil
}

// AnalyzeReceipt extracts a receipt image and compares it against the
// current list, as if the list were the trip being finished. Nothing is
// written besides the stored image.
func (s *Service) AnalyzeReceipt(ctx context.Context, workspaceID int64, image []byte, contentType string) (model.ReceiptAnalysis, error) {
	if err := validateImage(image); err != nil {
		return model.ReceiptAnalysis{}, err
	}
	if err := s.requireWorkspace(ctx, workspaceID); err != nil {
		return model.ReceiptAnalysis{}, err
	}

	key := s.storeImage(ctx, workspaceID, image, contentType)
	receipt, err := s.extract(ctx, image, contentType)
	if err != nil {
		return model.ReceiptAnalysis{}, fmt.Errorf("analyze receipt: %w", err)
	}

	list, err := s.groceries.GetList(ctx, workspaceID)
	if err != nil {
		return model.ReceiptAnalysis{}, err
	}
	analysis := reconcile.Analyze(list.Snapshot(), receipt)
	analysis.ReceiptKey = key
	return analysis, nil
}

// ReconcilePurchase extracts a receipt image and merges it into an archived
// purchase. It returns nil when the purchase does not exist.
func (s *Service) ReconcilePurchase(ctx context.Context, workspaceID, purchaseID int64, image []byte, contentType string) (*model.Purchase, error) {
	if err := validateImage(image); err != nil {
		return nil, err
	}
	existing, err := s.Purchase(ctx, workspaceID, purchaseID)
	if err != nil || existing == nil {
		return nil, err
	}

	key := s.storeImage(ctx, workspaceID, image, contentType)
	receipt, err := s.extract(ctx, image, contentType)
	if err != nil {
		s.metrics.Reconciliations.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, fmt.Errorf("reconcile purchase %d: %w", purchaseID, err)
	}
	return s.ApplyReceipt(ctx, workspaceID, purchaseID, receipt, key)
}

// ApplyReceipt merges an extracted receipt into an archived purchase in
// place: its lines replace the items, the comparison is recorded and a blank
// store is filled in. It returns nil when the purchase does not exist.
func (s *Service) ApplyReceipt(ctx context.Context, workspaceID, purchaseID int64, receipt model.Receipt, receiptKey string) (*model.Purchase, error) {
	var merged *model.Purchase
	err := s.write(ctx, workspaceID, func(ctx context.Context) error {
		p, err := s.purchases.GetByID(ctx, workspaceID, purchaseID)
		if err != nil || p == nil {
			return err
		}
		m := reconcile.Merge(*p, receipt)
		if receiptKey != "" {
			m.ReceiptKey = receiptKey
		}
		found, err := s.purchases.Enrich(ctx, m)
		if err != nil || !found {
			return err
		}
		merged = &m
		s.publish(ctx, workspaceID, feed.CollectionHistory)
		return nil
	})
	if err != nil {
		s.metrics.Reconciliations.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, err
	}
	if merged == nil {
		return nil, nil
	}

	s.metrics.Reconciliations.WithLabelValues(metrics.OutcomeOK).Inc()
	s.logger.Info("purchase reconciled",
		"workspace_id", workspaceID,
		"purchase_id", purchaseID,
		"forgotten", len(merged.Comparison.ForgottenItems),
		"impulse", len(merged.Comparison.ImpulseBuys))
	s.emit(context.WithoutCancel(ctx), events.Event{
		Type:        events.PurchaseReconciled,
		WorkspaceID: workspaceID,
		PurchaseID:  purchaseID,
		ItemCount:   len(merged.Items),
		At:          s.now(),
	})
	return merged, nil
}

// History returns every purchase of the workspace, newest first.
func (s *Service) History(ctx context.Context, workspaceID int64) ([]model.Purchase, error) {
	if err := s.requireWorkspace(ctx, workspaceID); err != nil {
		return nil, err
	}
	history, err := s.purchases.ListByWorkspace(ctx, workspaceID)
	if history == nil && err == nil {
		history = []model.Purchase{}
	}
	return history, err
}

// Purchase returns one purchase, or nil when it does not exist.
func (s *Service) Purchase(ctx context.Context, workspaceID, purchaseID int64) (*model.Purchase, error) {
	if err := s.requireWorkspace(ctx, workspaceID); err != nil {
		return nil, err
	}
	return s.purchases.GetByID(ctx, workspaceID, purchaseID)
}
