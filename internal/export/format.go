// Package export renders transactions as CSV and XLSX downloads.
package export

import (
	"fmt"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Formatter renders money and dates for one locale.
type Formatter struct {
	printer  *message.Printer
	currency string
	loc      *time.Location
}

// NewFormatter builds a formatter. Unknown locales fall back to English, an
// unknown timezone to UTC.
func NewFormatter(locale, currency, timezone string) *Formatter {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil || timezone == "" {
		loc = time.UTC
	}
	return &Formatter{printer: message.NewPrinter(tag), currency: currency, loc: loc}
}

// Money formats an amount with the currency symbol and two decimals.
func (f *Formatter) Money(amount float64) string {
	if amount < 0 {
		return "-" + f.printer.Sprintf("%s%.2f", f.currency, -amount)
	}
	return f.printer.Sprintf("%s%.2f", f.currency, amount)
}

// Date renders a stored timestamp as e.g. "1 May 2024, 09:30". Unparseable
// values are returned as is.
func (f *Formatter) Date(s string) string {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return s
	}
	return t.In(f.loc).Format("2 Jan 2006, 15:04")
}

func fixed2(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
