package analytics

import (
	"sort"
	"strings"
	"time"

	"github.com/dukerupert/cartwise/internal/model"
	"github.com/shopspring/decimal"
)

type PricePoint struct {
	Date  time.Time       `json:"date"`
	Price decimal.Decimal `json:"price"`
	Store string          `json:"store"`
}

// PriceWatch is the price history of one item. Insufficient is set, and Points
// left empty, when fewer than two priced entries exist.
type PriceWatch struct {
	Item         string       `json:"item"`
	Points       []PricePoint `json:"points"`
	Insufficient bool         `json:"insufficient"`
}

// MinPricePoints is the smallest series worth charting.
const MinPricePoints = 2

// PriceHistory walks the whole history for purchases of item (exact name) with
// a known positive price, oldest first.
func PriceHistory(history []model.Purchase, item string) PriceWatch {
	watch := PriceWatch{Item: item, Points: []PricePoint{}}
	for _, p := range chronological(history) {
		for _, it := range p.Items {
			if it.Name != item {
				continue
			}
			if it.Price.Valid && it.Price.Decimal.IsPositive() {
				watch.Points = append(watch.Points, PricePoint{Date: p.Date, Price: it.Price.Decimal, Store: p.Store})
			}
			break
		}
	}
	if len(watch.Points) < MinPricePoints {
		watch.Points = []PricePoint{}
		watch.Insufficient = true
	}
	return watch
}

// ItemNames lists the distinct purchased item names, sorted case-insensitively.
func ItemNames(history []model.Purchase) []string {
	seen := make(map[string]bool)
	names := []string{}
	for _, p := range history {
		for _, it := range p.Items {
			if it.Name == "" || seen[it.Name] {
				continue
			}
			seen[it.Name] = true
			names = append(names, it.Name)
		}
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := strings.ToLower(names[i]), strings.ToLower(names[j])
		if a != b {
			return a < b
		}
		return names[i] < names[j]
	})
	return names
}
