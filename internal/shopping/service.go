// Package shopping coordinates the shared list, the archival of shopping
// trips, receipt reconciliation and the analytics views of one workspace.
package shopping

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dukerupert/cartwise/internal/analytics"
	"github.com/dukerupert/cartwise/internal/currency"
	"github.com/dukerupert/cartwise/internal/events"
	"github.com/dukerupert/cartwise/internal/extract"
	"github.com/dukerupert/cartwise/internal/feed"
	"github.com/dukerupert/cartwise/internal/metrics"
	"github.com/dukerupert/cartwise/internal/model"
	"github.com/dukerupert/cartwise/internal/receipts"
	"github.com/dukerupert/cartwise/internal/store"
)

// ErrWorkspaceNotFound is returned for operations on an unknown workspace.
var ErrWorkspaceNotFound = errors.New("workspace not found")

// ValidationError rejects a request before any state changes.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// Deps are the collaborators of a Service. DB is required; the rest fall back
// to in-process defaults.
type Deps struct {
	DB        *sql.DB
	Hub       *feed.Hub
	Extractor extract.Extractor
	Receipts  receipts.Store
	Events    events.Publisher
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	CacheSize int
	Now       func() time.Time

	// Currency is used for workspaces created without a currency code.
	Currency string
}

type dashboardKey struct {
	workspaceID    int64
	historyVersion int64
	window         analytics.Window
	asOf           int64
}

type Service struct {
	workspaces *store.WorkspaceStore
	groceries  *store.GroceryStore
	purchases  *store.PurchaseStore

	hub       *feed.Hub
	extractor extract.Extractor
	receipts  receipts.Store
	events    events.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
	currency  string

	dashboards *lru.Cache[dashboardKey, analytics.Dashboard]
	locks      workspaceLocks
}

func NewService(d Deps) (*Service, error) {
	if d.DB == nil {
		return nil, errors.New("shopping: database is required")
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Hub == nil {
		d.Hub = feed.NewHub(d.Logger.With("component", "feed"))
	}
	if d.Extractor == nil {
		d.Extractor = extract.NewHTTPClient(extract.Config{})
	}
	if d.Receipts == nil {
		d.Receipts = receipts.NewMemoryStore()
	}
	if d.Events == nil {
		d.Events = events.Nop{}
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	if d.CacheSize <= 0 {
		d.CacheSize = 128
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	d.Currency = strings.ToUpper(strings.TrimSpace(d.Currency))
	if d.Currency == "" {
		d.Currency = currency.DefaultCode
	}
	if !currency.ValidCode(d.Currency) {
		return nil, fmt.Errorf("shopping: unknown default currency %q", d.Currency)
	}

	cache, err := lru.New[dashboardKey, analytics.Dashboard](d.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create dashboard cache: %w", err)
	}

	return &Service{
		workspaces: store.NewWorkspaceStore(d.DB),
		groceries:  store.NewGroceryStore(d.DB),
		purchases:  store.NewPurchaseStore(d.DB),
		hub:        d.Hub,
		extractor:  d.Extractor,
		receipts:   d.Receipts,
		events:     d.Events,
		metrics:    d.Metrics,
		logger:     d.Logger,
		now:        d.Now,
		currency:   d.Currency,
		dashboards: cache,
		locks:      workspaceLocks{locks: make(map[int64]*sync.Mutex)},
	}, nil
}

// Hub returns the snapshot feed the service publishes to.
func (s *Service) Hub() *feed.Hub {
	return s.hub
}

// workspaceLocks serializes writes per workspace.
type workspaceLocks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func (l *workspaceLocks) lock(workspaceID int64) func() {
	l.mu.Lock()
	m, ok := l.locks[workspaceID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[workspaceID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// write runs fn under the workspace's lock with a context that ignores the
// caller's cancellation, so a started write always commits or rolls back.
// Subscribers of the touched collections get a fresh snapshot afterwards.
func (s *Service) write(ctx context.Context, workspaceID int64, fn func(ctx context.Context) error, touched ...feed.Collection) error {
	ctx = context.WithoutCancel(ctx)
	unlock := s.locks.lock(workspaceID)
	defer unlock()

	if err := s.requireWorkspace(ctx, workspaceID); err != nil {
		return err
	}
	if err := fn(ctx); err != nil {
		return err
	}
	for _, c := range touched {
		s.publish(ctx, workspaceID, c)
	}
	return nil
}

func (s *Service) requireWorkspace(ctx context.Context, workspaceID int64) error {
	w, err := s.workspaces.GetByID(ctx, workspaceID)
	if err != nil {
		return err
	}
	if w == nil {
		return ErrWorkspaceNotFound
	}
	return nil
}

func (s *Service) publish(ctx context.Context, workspaceID int64, c feed.Collection) {
	if s.hub.SubscriberCount(workspaceID, c) == 0 {
		return
	}
	snap, err := s.Snapshot(ctx, workspaceID, c)
	if err != nil {
		s.logger.Error("load snapshot for publish", "workspace_id", workspaceID, "collection", c, "error", err)
		return
	}
	s.hub.Publish(snap)
}

// Snapshot loads the current contents of one collection of a workspace.
func (s *Service) Snapshot(ctx context.Context, workspaceID int64, c feed.Collection) (feed.Snapshot, error) {
	snap := feed.Snapshot{WorkspaceID: workspaceID, Collection: c, At: s.now()}
	switch c {
	case feed.CollectionList:
		if err := s.requireWorkspace(ctx, workspaceID); err != nil {
			return snap, err
		}
		list, err := s.groceries.GetList(ctx, workspaceID)
		if err != nil {
			return snap, err
		}
		snap.Version = list.Version
		snap.List = &list
	case feed.CollectionHistory:
		w, err := s.workspaces.GetByID(ctx, workspaceID)
		if err != nil {
			return snap, err
		}
		if w == nil {
			return snap, ErrWorkspaceNotFound
		}
		history, err := s.purchases.ListByWorkspace(ctx, workspaceID)
		if err != nil {
			return snap, err
		}
		snap.Version = w.HistoryVersion
		snap.History = history
		if snap.History == nil {
			snap.History = []model.Purchase{}
		}
	default:
		return snap, fmt.Errorf("unknown collection %q", c)
	}
	return snap, nil
}

func (s *Service) emit(ctx context.Context, e events.Event) {
	if err := s.events.Publish(ctx, e); err != nil {
		s.logger.Warn("publish event", "type", e.Type, "workspace_id", e.WorkspaceID, "error", err)
	}
}
