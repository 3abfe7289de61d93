package analytics

import (
	"slices"
	"time"

	"github.com/dukerupert/cartwise/internal/model"
)

// Dashboard is the analytics view model for one window.
type Dashboard struct {
	Window    Window        `json:"window"`
	ThisMonth MonthSnapshot `json:"this_month"`
	Trend     []TrendPoint  `json:"trend"`
	Habits    Habits        `json:"habits"`
	ItemNames []string      `json:"item_names"`
}

// BuildDashboard computes every window-scoped metric. The this-month snapshot
// and the item name list look at the full history.
func BuildDashboard(history []model.Purchase, now time.Time, w Window) Dashboard {
	filtered := FilterPeriod(history, now, w)
	return Dashboard{
		Window:    w,
		ThisMonth: ThisMonth(history, now),
		Trend:     SpendingTrend(filtered, now.Location()),
		Habits:    HabitStats(filtered),
		ItemNames: ItemNames(history),
	}
}

// Clone returns a copy of d that shares no slices with it.
func (d Dashboard) Clone() Dashboard {
	out := d
	out.Trend = slices.Clone(d.Trend)
	out.Habits.TopForgotten = slices.Clone(d.Habits.TopForgotten)
	out.ItemNames = slices.Clone(d.ItemNames)
	return out
}

// StartOfDay returns midnight of t's day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
