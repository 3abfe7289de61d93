// Package currency renders money amounts in a workspace's currency.
package currency

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const DefaultCode = "USD"

// Formatter prints amounts with the currency symbol and the separators of a
// locale. Formatting is for display; arithmetic stays on decimal values.
type Formatter struct {
	unit    currency.Unit
	printer *message.Printer
}

// NewFormatter accepts an ISO 4217 code and a BCP 47 locale. An empty code
// means USD and an empty locale means English.
func NewFormatter(code, locale string) (*Formatter, error) {
	if code == "" {
		code = DefaultCode
	}
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return nil, fmt.Errorf("currency %q: %w", code, err)
	}

	tag := language.English
	if locale != "" {
		if tag, err = language.Parse(locale); err != nil {
			return nil, fmt.Errorf("locale %q: %w", locale, err)
		}
	}
	return &Formatter{unit: unit, printer: message.NewPrinter(tag)}, nil
}

// ValidCode reports whether code is a known ISO 4217 currency.
func ValidCode(code string) bool {
	_, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code)))
	return err == nil
}

func (f *Formatter) Code() string {
	return f.unit.String()
}

func (f *Formatter) Format(d decimal.Decimal) string {
	return f.printer.Sprint(currency.Symbol(f.unit.Amount(d.InexactFloat64())))
}
