package extraction

import (
	"math"
	"regexp"
	"strings"
)

// manualPlaceholderDate is used when a recovered invoice has no readable
// date.
const manualPlaceholderDate = "2000-01-01"

const (
	manualTaxableShare = 0.85
	manualTaxShare     = 0.15
)

var (
	invoiceHeadingRe = regexp.MustCompile(`(?i)\b(?:invoice|bill|receipt)\b`)
	// Words that follow "invoice"/"bill" inside a field label rather than a
	// document heading ("Invoice No", "Bill Date", "Bill To").
	fieldLabelAfterRe = regexp.MustCompile(`(?i)^\s*(?:no\b|no\.|number|num\b|#|date|dt\b|dt\.|value|amount|total|to\b|of\b)`)

	manualInvoiceNoRe = regexp.MustCompile(`(?i)\b(?:invoice|bill|receipt)\s*(?:no\b\.?|number|num\b|#)\s*[:.\-]?\s*([A-Z0-9][A-Z0-9/\-]*)`)
	manualDateRe      = regexp.MustCompile(`(?i)\b(?:date|dated|dt\.?)\s*[:\-]?\s*(` + dateShapePattern + `)`)
	gstinRe           = regexp.MustCompile(`\b\d{2}[A-Z]{5}\d{4}[A-Z][A-Z0-9]Z[A-Z0-9]\b`)
	recipientNameRe   = regexp.MustCompile(`(?i)\b(?:bill(?:ed)?\s+to|sold\s+to|buyer|customer|recipient)(?:\s+name)?\s*[:\-]\s*([^\n]+)`)
	placeOfSupplyRe   = regexp.MustCompile(`(?i)\bplace\s+of\s+supply\s*[:\-]?\s*([^\n]+)`)
	totalRe           = regexp.MustCompile(`(?i)\b(?:grand\s+total|total\s+amount|invoice\s+value|amount\s+payable|total)\s*(?:\(?(?:rs\.?|inr|₹)\)?)?\s*[:\-]?\s*(?:rs\.?|inr|₹)?\s*(\d[\d,]*(?:\.\d{1,2})?)`)
)

// ManualExtract recovers invoices from raw text with regular expressions.
// It is the fallback when the model reply is missing or unusable. Each
// recovered invoice carries one synthetic line item derived from its total.
func ManualExtract(text, filerID string) []map[string]any {
	var candidates []map[string]any
	for _, segment := range splitInvoiceSegments(text) {
		if c := extractSegment(segment, filerID); c != nil {
			candidates = append(candidates, c)
		}
	}
	return candidates
}

// splitInvoiceSegments cuts text at every invoice/bill/receipt heading.
// Occurrences that start a field label ("Invoice No:") do not split.
func splitInvoiceSegments(text string) []string {
	var cuts []int
	for _, loc := range invoiceHeadingRe.FindAllStringIndex(text, -1) {
		if fieldLabelAfterRe.MatchString(text[loc[1]:]) {
			continue
		}
		start := loc[0]
		// Keep a "Tax " prefix with its heading.
		if start >= 4 && strings.EqualFold(text[start-4:start], "tax ") {
			start -= 4
		}
		cuts = append(cuts, start)
	}

	var segments []string
	prev := 0
	for _, cut := range cuts {
		if cut > prev {
			segments = append(segments, text[prev:cut])
		}
		prev = cut
	}
	segments = append(segments, text[prev:])
	return segments
}

func extractSegment(segment, filerID string) map[string]any {
	no := firstGroup(manualInvoiceNoRe, segment)
	total := 0.0
	if m := totalRe.FindAllStringSubmatch(segment, -1); len(m) > 0 {
		// The last total in a segment is usually the grand total.
		total = parseAmount(m[len(m)-1][1])
	}
	if no == "" && total <= 0 {
		return nil
	}

	date := manualPlaceholderDate
	if raw := firstGroup(manualDateRe, segment); raw != "" {
		if iso, ok := normalizeDate(raw); ok {
			date = iso
		}
	} else if m := dateShapeRe.FindString(segment); m != "" {
		if iso, ok := normalizeDate(m); ok {
			date = iso
		}
	}

	recipient := ""
	for _, id := range gstinRe.FindAllString(strings.ToUpper(segment), -1) {
		if !strings.EqualFold(id, filerID) {
			recipient = id
			break
		}
	}

	return map[string]any{
		"invoice_no":      no,
		"invoice_date":    date,
		"recipient_gstin": recipient,
		"recipient_name":  cleanField(firstGroup(recipientNameRe, segment)),
		"place_of_supply": cleanField(firstGroup(placeOfSupplyRe, segment)),
		"invoice_value":   total,
		"items": []any{
			map[string]any{
				"product_name":  "Goods/Services (recovered from text)",
				"quantity":      1.0,
				"unit_price":    round2(total * manualTaxableShare),
				"taxable_value": round2(total * manualTaxableShare),
				"igst":          round2(total * manualTaxShare),
			},
		},
	}
}

func firstGroup(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// cleanField trims a captured label value at the next field separator.
func cleanField(s string) string {
	for _, sep := range []string{"  ", "\t", "|"} {
		if i := strings.Index(s, sep); i >= 0 {
			s = s[:i]
		}
	}
	return strings.TrimRight(strings.TrimSpace(s), ",;")
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
