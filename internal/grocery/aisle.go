// Package grocery holds the list rules that do not depend on storage: aisle
// naming and the aisle guess used by free-text quick add.
package grocery

import (
	"strings"

	"github.com/dukerupert/cartwise/internal/model"
)

type aisleRule struct {
	aisle string
	// names matched as the whole item name
	names []string
	// fragments matched anywhere in the item name
	fragments []string
}

// The longest matching fragment decides the aisle; equal lengths go to the
// earlier rule.
var aisleRules = []aisleRule{
	{
		aisle:     "Produce",
		names:     []string{"apple", "apples", "banana", "bananas", "lemons", "limes", "avocado", "garlic", "ginger", "cilantro", "basil", "parsley", "zucchini", "asparagus", "grapes", "mango"},
		fragments: []string{"salad mix", "baby spinach", "green onion", "sweet potato", "bell pepper", "lettuce", "spinach", "kale", "berries", "berry", "tomato", "potato", "onion", "carrot", "celery", "cucumber", "mushroom", "melon"},
	},
	{
		aisle:     "Dairy",
		names:     []string{"milk", "eggs", "butter", "cheese", "yogurt"},
		fragments: []string{"cream cheese", "sour cream", "cottage cheese", "greek yogurt", "oat milk", "almond milk", "yogurt", "cheese", "milk", "butter", "egg"},
	},
	{
		aisle:     "Meat & Seafood",
		names:     []string{"chicken", "beef", "pork", "turkey", "bacon", "ham", "steak", "salmon", "shrimp", "tuna", "fish"},
		fragments: []string{"chicken", "ground beef", "ground turkey", "pork chop", "hot dog", "sausage", "deli meat", "salmon", "shrimp"},
	},
	{
		aisle:     "Bakery",
		names:     []string{"bread", "bagels", "tortillas", "rolls", "buns", "pita"},
		fragments: []string{"sourdough", "whole wheat", "bread", "bagel", "tortilla", "muffin", "croissant"},
	},
	{
		aisle:     "Frozen",
		names:     []string{"ice cream", "popsicles"},
		fragments: []string{"frozen", "ice cream", "popsicle"},
	},
	{
		aisle:     "Pantry",
		names:     []string{"rice", "pasta", "flour", "sugar", "salt", "oil", "vinegar", "honey", "cereal", "oatmeal", "beans", "lentils", "soup", "broth"},
		fragments: []string{"peanut butter", "olive oil", "maple syrup", "soy sauce", "canned", "cereal", "pasta", "noodle", "rice", "sauce", "spice", "bean"},
	},
	{
		aisle:     "Beverages",
		names:     []string{"water", "juice", "coffee", "tea", "soda", "beer", "wine", "kombucha"},
		fragments: []string{"sparkling water", "juice", "coffee", "soda", "water", "drink"},
	},
	{
		aisle:     "Snacks",
		names:     []string{"chips", "crackers", "cookies", "popcorn", "pretzels", "candy", "chocolate"},
		fragments: []string{"granola bar", "trail mix", "chip", "cracker", "cookie", "pretzel", "snack"},
	},
	{
		aisle:     "Household",
		names:     []string{"napkins", "bleach", "batteries", "sponges"},
		fragments: []string{"paper towel", "toilet paper", "trash bag", "dish soap", "detergent", "laundry", "foil", "cleaner"},
	},
	{
		aisle:     "Personal Care",
		names:     []string{"shampoo", "soap", "floss", "razors", "tissues"},
		fragments: []string{"body wash", "toothpaste", "toothbrush", "deodorant", "conditioner", "sunscreen", "lotion"},
	},
}

var aisleByName = func() map[string]string {
	m := make(map[string]string)
	for _, r := range aisleRules {
		for _, n := range r.names {
			m[n] = r.aisle
		}
	}
	return m
}()

// Categorize guesses the aisle an item belongs in. Whole-name matches win over
// fragment matches. It returns "" when nothing matches.
func Categorize(itemName string) string {
	name := strings.ToLower(strings.TrimSpace(itemName))
	if name == "" {
		return ""
	}
	if aisle, ok := aisleByName[name]; ok {
		return aisle
	}

	best, bestLen := "", 0
	for _, r := range aisleRules {
		for _, f := range r.fragments {
			if len(f) > bestLen && strings.Contains(name, f) {
				best, bestLen = r.aisle, len(f)
			}
		}
	}
	return best
}

// AisleName trims a requested aisle name, substituting the default aisle when
// nothing usable is left.
func AisleName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultAisle
	}
	return name
}

// DefaultAisle receives items whose aisle is blank or cannot be guessed.
const DefaultAisle = model.DefaultAisle

// ResolveAisle picks the aisle for a quick-added item. An existing aisle that
// matches the guessed aisle (case-insensitively) keeps its spelling; with no
// guess the item goes to the default aisle.
func ResolveAisle(itemName string, existing []string) string {
	guess := Categorize(itemName)
	if guess == "" {
		return DefaultAisle
	}
	for _, name := range existing {
		if strings.EqualFold(name, guess) {
			return name
		}
	}
	return guess
}

// SameName reports whether two item or aisle names match. Matching is
// case-insensitive and otherwise exact: no plural or punctuation folding.
func SameName(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
