package extraction

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// normalizeInvoiceNo strips whitespace, dashes and slashes and upper-cases
// the result so "inv-001" and "INV 001" compare equal.
func normalizeInvoiceNo(no string) string {
	return strings.ToUpper(strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '-' || r == '/' {
			return -1
		}
		return r
	}, no))
}

// DuplicateKey derives the identity of an invoice. Registered counterparties
// are keyed on filer, counterparty, invoice number and date; unregistered
// ones on number, date, value and counterparty name. The counterparty is the
// recipient of a sale or the supplier of a purchase.
func DuplicateKey(inv Invoice, filerID string) string {
	date := ""
	if inv.InvoiceDate != nil {
		date = *inv.InvoiceDate
	}
	no := normalizeInvoiceNo(inv.InvoiceNo)
	id, name := inv.counterparty()

	if hasRegisteredCounterparty(inv) {
		return strings.Join([]string{
			"REGISTERED",
			strings.ToUpper(strings.TrimSpace(filerID)),
			strings.ToUpper(strings.TrimSpace(id)),
			no,
			date,
		}, "|")
	}
	return strings.Join([]string{
		"UNREGISTERED",
		no,
		date,
		strconv.FormatFloat(inv.InvoiceValue, 'f', 2, 64),
		// Casers hold state and are not shared between goroutines.
		cases.Upper(language.Und).String(strings.TrimSpace(name)),
	}, "|")
}

// Deduplicate drops invoices whose DuplicateKey was already seen, keeping
// the first occurrence and the input order. It returns the survivors and
// the number removed.
func Deduplicate(invoices []Invoice, filerID string) ([]Invoice, int) {
	seen := make(map[string]bool, len(invoices))
	out := make([]Invoice, 0, len(invoices))
	for _, inv := range invoices {
		key := DuplicateKey(inv, filerID)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, inv)
	}
	return out, len(invoices) - len(out)
}
