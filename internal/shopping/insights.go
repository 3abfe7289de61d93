package shopping

import (
	"context"
	"errors"
	"strings"

	"github.com/dukerupert/cartwise/internal/analytics"
)

// Dashboard computes the analytics view for a window of 3, 6 or 12 months
// (0 means 6) as of the start of the current day. Results are cached per
// history version and day; callers get their own copy.
func (s *Service) Dashboard(ctx context.Context, workspaceID int64, months int) (analytics.Dashboard, error) {
	window, err := analytics.ParseWindow(months)
	if err != nil {
		return analytics.Dashboard{}, invalid("months", err.Error())
	}

	// The version is read before the history so a cached entry is never
	// newer than its key claims.
	w, err := s.workspaces.GetByID(ctx, workspaceID)
	if err != nil {
		return analytics.Dashboard{}, err
	}
	if w == nil {
		return analytics.Dashboard{}, ErrWorkspaceNotFound
	}

	asOf := analytics.StartOfDay(s.now())
	key := dashboardKey{
		workspaceID:    workspaceID,
		historyVersion: w.HistoryVersion,
		window:         window,
		asOf:           asOf.UnixNano(),
	}
	if d, ok := s.dashboards.Get(key); ok {
		s.metrics.DashboardCache.WithLabelValues("hit").Inc()
		return d.Clone(), nil
	}
	s.metrics.DashboardCache.WithLabelValues("miss").Inc()

	history, err := s.purchases.ListByWorkspace(ctx, workspaceID)
	if err != nil {
		return analytics.Dashboard{}, err
	}
	d := analytics.BuildDashboard(history, asOf, window)
	s.dashboards.Add(key, d.Clone())
	return d, nil
}

// PriceWatch returns the price series of one item across the whole history.
func (s *Service) PriceWatch(ctx context.Context, workspaceID int64, item string) (analytics.PriceWatch, error) {
	item = strings.TrimSpace(item)
	if item == "" {
		return analytics.PriceWatch{}, invalid("item", "item is required")
	}
	history, err := s.History(ctx, workspaceID)
	if err != nil {
		return analytics.PriceWatch{}, err
	}
	return analytics.PriceHistory(history, item), nil
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
