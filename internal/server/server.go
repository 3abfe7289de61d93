package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dukerupert/cartwise/internal/handler"
	"github.com/dukerupert/cartwise/internal/metrics"
	"github.com/dukerupert/cartwise/internal/middleware"
	"github.com/dukerupert/cartwise/internal/shopping"
	ws "github.com/dukerupert/cartwise/internal/websocket"
)

type Options struct {
	Locale string
	// Limiter throttles receipt uploads; nil disables throttling.
	Limiter *middleware.Limiter
}

type Server struct {
	db         *sql.DB
	svc        *shopping.Service
	metrics    *metrics.Metrics
	limiter    *middleware.Limiter
	workspaceH *handler.WorkspaceHandler
	listH      *handler.ListHandler
	shoppingH  *handler.ShoppingHandler
	analyticsH *handler.AnalyticsHandler
	logger     *slog.Logger
}

func New(db *sql.DB, svc *shopping.Service, m *metrics.Metrics, opts Options, logger *slog.Logger) *Server {
	return &Server{
		db:         db,
		svc:        svc,
		metrics:    m,
		limiter:    opts.Limiter,
		workspaceH: handler.NewWorkspaceHandler(svc, logger.With("component", "workspace")),
		listH:      handler.NewListHandler(svc, logger.With("component", "list")),
		shoppingH:  handler.NewShoppingHandler(svc, logger.With("component", "shopping")),
		analyticsH: handler.NewAnalyticsHandler(svc, opts.Locale, logger.With("component", "analytics")),
		logger:     logger,
	}
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.Handle("GET /metrics", s.metrics.Handler())

	// Workspaces
	mux.HandleFunc("GET /api/workspaces", s.workspaceH.List)
	mux.HandleFunc("POST /api/workspaces", s.workspaceH.Create)
	mux.HandleFunc("GET /api/workspaces/{ws}", s.workspaceH.Get)

	// Shared list
	mux.HandleFunc("GET /api/workspaces/{ws}/list", s.listH.Get)
	mux.HandleFunc("POST /api/workspaces/{ws}/list/items", s.listH.AddItem)
	mux.HandleFunc("POST /api/workspaces/{ws}/list/quick", s.listH.QuickAdd)
	mux.HandleFunc("PUT /api/workspaces/{ws}/list/aisles/{aisle}/items/{item}", s.listH.UpdateItem)
	mux.HandleFunc("POST /api/workspaces/{ws}/list/aisles/{aisle}/items/{item}/check", s.listH.Check)
	mux.HandleFunc("DELETE /api/workspaces/{ws}/list/aisles/{aisle}/items/{item}", s.listH.RemoveItem)

	// Trips and receipts
	mux.HandleFunc("POST /api/workspaces/{ws}/finish", s.shoppingH.Finish)
	mux.HandleFunc("GET /api/workspaces/{ws}/purchases", s.shoppingH.ListPurchases)
	mux.HandleFunc("GET /api/workspaces/{ws}/purchases/{id}", s.shoppingH.GetPurchase)
	mux.Handle("POST /api/workspaces/{ws}/purchases/{id}/receipt", s.receiptLimited(s.shoppingH.ReconcileReceipt))
	mux.Handle("POST /api/workspaces/{ws}/receipts/analyze", s.receiptLimited(s.shoppingH.AnalyzeReceipt))

	// Analytics
	mux.HandleFunc("GET /api/workspaces/{ws}/analytics", s.analyticsH.Dashboard)
	mux.HandleFunc("GET /api/workspaces/{ws}/analytics/price-watch", s.analyticsH.PriceWatch)

	// Live snapshots
	mux.HandleFunc("GET /api/workspaces/{ws}/ws", ws.HandleWebSocket(s.svc.Hub(), s.svc.Snapshot, shopping.ErrWorkspaceNotFound, s.logger.With("component", "websocket")))

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) receiptLimited(h http.HandlerFunc) http.Handler {
	if s.limiter == nil {
		return h
	}
	return middleware.RateLimit(s.limiter, middleware.WorkspaceClientKey)(h)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		s.logger.Error("health check", "error", err)
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}
