package extraction

// DefaultLargeInvoiceThreshold separates large from small unregistered
// invoices (the B2CL limit).
const DefaultLargeInvoiceThreshold = 250000.0

// InvoiceCategory is the return table an invoice is reported in. For
// purchases registered means a registered supplier (B2B) and the
// unregistered tables hold purchases from unregistered suppliers (B2BUR).
type InvoiceCategory string

const (
	InvoiceRegistered        InvoiceCategory = "registered"
	InvoiceLargeUnregistered InvoiceCategory = "large_unregistered"
	InvoiceSmallUnregistered InvoiceCategory = "small_unregistered"
)

// CategorizedInvoice is a validated invoice tagged with its category.
type CategorizedInvoice struct {
	Invoice
	Category InvoiceCategory `json:"category"`
}

// InvoiceTotals aggregates value and tax over a set of invoices.
type InvoiceTotals struct {
	InvoiceCount      int          `json:"invoice_count"`
	TotalInvoiceValue float64      `json:"total_invoice_value"`
	TotalTaxableValue float64      `json:"total_taxable_value"`
	TotalTax          float64      `json:"total_tax"`
	Tax               TaxBreakdown `json:"tax_breakdown"`
}

func (t *InvoiceTotals) add(inv Invoice) {
	t.InvoiceCount++
	t.TotalInvoiceValue += inv.InvoiceValue
	for _, it := range inv.Items {
		t.TotalTaxableValue += it.TaxableValue
		t.Tax.add(it)
	}
	t.TotalTax = t.Tax.Total()
}

// CategorizedInvoices partitions invoices into the three return tables.
type CategorizedInvoices struct {
	Registered        []CategorizedInvoice              `json:"registered"`
	LargeUnregistered []CategorizedInvoice              `json:"large_unregistered"`
	SmallUnregistered []CategorizedInvoice              `json:"small_unregistered"`
	Counts            map[InvoiceCategory]int           `json:"counts"`
	Totals            map[InvoiceCategory]InvoiceTotals `json:"totals"`
	Overall           InvoiceTotals                     `json:"overall"`
}

// All returns every invoice in registered, large, small order.
func (c *CategorizedInvoices) All() []CategorizedInvoice {
	out := make([]CategorizedInvoice, 0, len(c.Registered)+len(c.LargeUnregistered)+len(c.SmallUnregistered))
	out = append(out, c.Registered...)
	out = append(out, c.LargeUnregistered...)
	return append(out, c.SmallUnregistered...)
}

// Categorizer assigns invoices to return tables.
type Categorizer struct {
	LargeThreshold float64
}

// NewCategorizer returns a categorizer. A non-positive threshold selects
// DefaultLargeInvoiceThreshold.
func NewCategorizer(threshold float64) *Categorizer {
	if threshold <= 0 {
		threshold = DefaultLargeInvoiceThreshold
	}
	return &Categorizer{LargeThreshold: threshold}
}

// CategoryOf classifies one invoice. Invoices exactly at the threshold are
// small.
func (c *Categorizer) CategoryOf(inv Invoice) InvoiceCategory {
	switch {
	case hasRegisteredCounterparty(inv):
		return InvoiceRegistered
	case inv.InvoiceValue > c.LargeThreshold:
		return InvoiceLargeUnregistered
	default:
		return InvoiceSmallUnregistered
	}
}

// Categorize partitions invoices, preserving input order within each table.
func (c *Categorizer) Categorize(invoices []Invoice) *CategorizedInvoices {
	out := &CategorizedInvoices{
		Registered:        []CategorizedInvoice{},
		LargeUnregistered: []CategorizedInvoice{},
		SmallUnregistered: []CategorizedInvoice{},
		Counts: map[InvoiceCategory]int{
			InvoiceRegistered:        0,
			InvoiceLargeUnregistered: 0,
			InvoiceSmallUnregistered: 0,
		},
		Totals: make(map[InvoiceCategory]InvoiceTotals, 3),
	}

	for _, inv := range invoices {
		cat := c.CategoryOf(inv)
		ci := CategorizedInvoice{Invoice: inv, Category: cat}
		switch cat {
		case InvoiceRegistered:
			out.Registered = append(out.Registered, ci)
		case InvoiceLargeUnregistered:
			out.LargeUnregistered = append(out.LargeUnregistered, ci)
		default:
			out.SmallUnregistered = append(out.SmallUnregistered, ci)
		}
		out.Counts[cat]++

		totals := out.Totals[cat]
		totals.add(inv)
		out.Totals[cat] = totals
		out.Overall.add(inv)
	}
	return out
}
