// Package analytics derives spending, habit and price metrics from a purchase
// history. Every function here is pure: the same history and parameters give
// the same result, and the input slice is never modified.
package analytics

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dukerupert/cartwise/internal/model"
	"github.com/dukerupert/cartwise/internal/reconcile"
	"github.com/shopspring/decimal"
)

// Window is the look-back period, in months, used by the trend and habit views.
type Window int

const (
	Window3Months  Window = 3
	Window6Months  Window = 6
	Window12Months Window = 12
)

var ErrInvalidWindow = errors.New("window must be 3, 6 or 12 months")

// ParseWindow validates a month count. Zero selects the six month default.
func ParseWindow(months int) (Window, error) {
	switch Window(months) {
	case 0:
		return Window6Months, nil
	case Window3Months, Window6Months, Window12Months:
		return Window(months), nil
	}
	return 0, fmt.Errorf("%w: got %d", ErrInvalidWindow, months)
}

// FilterPeriod keeps the purchases dated at or after now minus the window.
func FilterPeriod(history []model.Purchase, now time.Time, w Window) []model.Purchase {
	cutoff := now.AddDate(0, -int(w), 0)
	out := make([]model.Purchase, 0, len(history))
	for _, p := range history {
		if !p.Date.Before(cutoff) {
			out = append(out, p)
		}
	}
	return out
}

// chronological returns a copy of history ordered oldest first. Purchases with
// the same date keep their ID order.
func chronological(history []model.Purchase) []model.Purchase {
	out := make([]model.Purchase, len(history))
	copy(out, history)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

type MonthSnapshot struct {
	TotalSpend  decimal.Decimal `json:"total_spend"`
	Trips       int             `json:"trips"`
	AverageTrip decimal.Decimal `json:"average_trip"`
}

// ThisMonth totals the purchases that fall in now's calendar month.
func ThisMonth(history []model.Purchase, now time.Time) MonthSnapshot {
	year, month, _ := now.Date()
	snap := MonthSnapshot{TotalSpend: decimal.Zero, AverageTrip: decimal.Zero}
	for _, p := range history {
		y, m, _ := p.Date.In(now.Location()).Date()
		if y != year || m != month {
			continue
		}
		snap.TotalSpend = snap.TotalSpend.Add(p.Total())
		snap.Trips++
	}
	if snap.Trips > 0 {
		snap.AverageTrip = snap.TotalSpend.Div(decimal.NewFromInt(int64(snap.Trips)))
	}
	return snap
}

type TrendPoint struct {
	Label string          `json:"label"`
	Year  int             `json:"year"`
	Month time.Month      `json:"month"`
	Total decimal.Decimal `json:"total"`
}

// SpendingTrend sums spend per calendar month, oldest month first. Months are
// taken in loc.
func SpendingTrend(purchases []model.Purchase, loc *time.Location) []TrendPoint {
	byMonth := make(map[[2]int]*TrendPoint)
	for _, p := range purchases {
		d := p.Date.In(loc)
		k := [2]int{d.Year(), int(d.Month())}
		pt, ok := byMonth[k]
		if !ok {
			pt = &TrendPoint{
				Label: d.Format("Jan 2006"),
				Year:  d.Year(),
				Month: d.Month(),
				Total: decimal.Zero,
			}
			byMonth[k] = pt
		}
		pt.Total = pt.Total.Add(p.Total())
	}

	points := make([]TrendPoint, 0, len(byMonth))
	for _, pt := range byMonth {
		points = append(points, *pt)
	}
	sort.Slice(points, func(i, j int) bool {
		if points[i].Year != points[j].Year {
			return points[i].Year < points[j].Year
		}
		return points[i].Month < points[j].Month
	})
	return points
}

type ForgottenCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type Habits struct {
	TotalItems     int              `json:"total_items"`
	PlannedItems   int              `json:"planned_items"`
	ImpulseItems   int              `json:"impulse_items"`
	ImpulsePercent int              `json:"impulse_percent"`
	TopForgotten   []ForgottenCount `json:"top_forgotten"`
}

// TopForgottenLimit caps the forgotten-item ranking.
const TopForgottenLimit = 3

func nameKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// HabitStats classifies every item of every purchase that carries its original
// list as planned or impulse, and ranks the checked list entries most often
// missing from the purchase. Purchases are scanned oldest first; names tied on
// count keep the order they were first seen in. A name spelled several ways is
// reported by its smallest spelling.
func HabitStats(purchases []model.Purchase) Habits {
	h := Habits{TopForgotten: []ForgottenCount{}}

	var ranking []ForgottenCount
	index := make(map[string]int)

	for _, p := range chronological(purchases) {
		if len(p.OriginalListItems) == 0 {
			continue
		}

		bought := make(map[string]bool, len(p.Items))
		for _, it := range p.Items {
			bought[nameKey(it.Name)] = true
			h.TotalItems++
			if reconcile.IsImpulse(p.OriginalListItems, it.Name) {
				h.ImpulseItems++
			} else {
				h.PlannedItems++
			}
		}

		counted := make(map[string]bool)
		for _, it := range p.OriginalListItems {
			k := nameKey(it.Name)
			if !it.Checked || bought[k] || counted[k] {
				continue
			}
			counted[k] = true
			if i, ok := index[k]; ok {
				ranking[i].Count++
				ranking[i].Name = reconcile.Canonical(ranking[i].Name, it.Name)
				continue
			}
			index[k] = len(ranking)
			ranking = append(ranking, ForgottenCount{Name: strings.TrimSpace(it.Name), Count: 1})
		}
	}

	h.ImpulsePercent = percent(h.ImpulseItems, h.TotalItems)

	sort.SliceStable(ranking, func(i, j int) bool { return ranking[i].Count > ranking[j].Count })
	if len(ranking) > TopForgottenLimit {
		ranking = ranking[:TopForgottenLimit]
	}
	h.TopForgotten = append(h.TopForgotten, ranking...)
	return h
}

// percent returns part/total as a rounded whole percentage, 0 when total is 0.
func percent(part, total int) int {
	if total == 0 {
		return 0
	}
	return int(decimal.NewFromInt(int64(part)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(total))).
		Round(0).
		IntPart())
}
