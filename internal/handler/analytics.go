package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/cartwise/internal/analytics"
	"github.com/dukerupert/cartwise/internal/currency"
	"github.com/dukerupert/cartwise/internal/model"
	"github.com/dukerupert/cartwise/internal/shopping"
)

type AnalyticsHandler struct {
	svc    *shopping.Service
	locale string
	logger *slog.Logger
}

func NewAnalyticsHandler(svc *shopping.Service, locale string, logger *slog.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{svc: svc, locale: locale, logger: logger}
}

type trendDisplay struct {
	Label string `json:"label"`
	Total string `json:"total"`
}

type dashboardResponse struct {
	analytics.Dashboard
	Currency string `json:"currency"`
	Display  struct {
		TotalSpend  string         `json:"total_spend"`
		AverageTrip string         `json:"average_trip"`
		Trend       []trendDisplay `json:"trend"`
	} `json:"display"`
}

type priceWatchResponse struct {
	analytics.PriceWatch
	Currency string   `json:"currency"`
	Display  []string `json:"display"`
}

// workspaceAnd loads the workspace alongside another read, concurrently.
func (h *AnalyticsHandler) workspaceAnd(r *http.Request, ws int64, load func(ctx context.Context) error) (*model.Workspace, error) {
	var workspace *model.Workspace
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		workspace, err = h.svc.Workspace(ctx, ws)
		return err
	})
	g.Go(func() error { return load(ctx) })
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if workspace == nil {
		return nil, shopping.ErrWorkspaceNotFound
	}
	return workspace, nil
}

func (h *AnalyticsHandler) formatter(code string) *currency.Formatter {
	f, err := currency.NewFormatter(code, h.locale)
	if err != nil {
		h.logger.Warn("currency formatter", "currency", code, "locale", h.locale, "error", err)
		f, _ = currency.NewFormatter(currency.DefaultCode, "")
	}
	return f
}

// Dashboard serves GET .../analytics?months=3|6|12.
func (h *AnalyticsHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	ws, ok := pathID(r, "ws")
	if !ok {
		writeMessage(w, http.StatusBadRequest, "invalid workspace id")
		return
	}
	months := 0
	if v := r.URL.Query().Get("months"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "months must be a number", "field": "months"})
			return
		}
		months = n
	}

	var dash analytics.Dashboard
	workspace, err := h.workspaceAnd(r, ws, func(ctx context.Context) error {
		var err error
		dash, err = h.svc.Dashboard(ctx, ws, months)
		return err
	})
	if err != nil {
		writeError(w, r, h.logger, err, "failed to build analytics")
		return
	}

	f := h.formatter(workspace.Currency)
	resp := dashboardResponse{Dashboard: dash, Currency: f.Code()}
	resp.Display.TotalSpend = f.Format(dash.ThisMonth.TotalSpend)
	resp.Display.AverageTrip = f.Format(dash.ThisMonth.AverageTrip)
	resp.Display.Trend = make([]trendDisplay, 0, len(dash.Trend))
	for _, p := range dash.Trend {
		resp.Display.Trend = append(resp.Display.Trend, trendDisplay{Label: p.Label, Total: f.Format(p.Total)})
	}
	writeJSON(w, http.StatusOK, resp)
}

// PriceWatch serves GET .../analytics/price-watch?item=.
func (h *AnalyticsHandler) PriceWatch(w http.ResponseWriter, r *http.Request) {
	ws, ok := pathID(r, "ws")
	if !ok {
		writeMessage(w, http.StatusBadRequest, "invalid workspace id")
		return
	}
	item := r.URL.Query().Get("item")

	var watch analytics.PriceWatch
	workspace, err := h.workspaceAnd(r, ws, func(ctx context.Context) error {
		var err error
		watch, err = h.svc.PriceWatch(ctx, ws, item)
		return err
	})
	if err != nil {
		writeError(w, r, h.logger, err, "failed to load price history")
		return
	}

	f := h.formatter(workspace.Currency)
	resp := priceWatchResponse{PriceWatch: watch, Currency: f.Code(), Display: make([]string, 0, len(watch.Points))}
	for _, p := range watch.Points {
		resp.Display = append(resp.Display, f.Format(p.Price))
	}
	writeJSON(w, http.StatusOK, resp)
}
