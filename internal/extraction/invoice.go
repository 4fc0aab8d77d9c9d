package extraction

import (
	"math"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// LineItem is one validated invoice line.
type LineItem struct {
	ProductName  string  `json:"product_name"`
	HSNCode      string  `json:"hsn_code"`
	Quantity     float64 `json:"quantity"`
	UnitPrice    float64 `json:"unit_price"`
	TaxableValue float64 `json:"taxable_value"`
	IGST         float64 `json:"igst"`
	CGST         float64 `json:"cgst"`
	SGST         float64 `json:"sgst"`
	Cess         float64 `json:"cess"`
}

// Tax is the item's tax across the three GST rate categories.
func (li LineItem) Tax() float64 {
	return li.IGST + li.CGST + li.SGST
}

// Invoice is a validated invoice record. Every numeric field is finite and
// non-negative and Items is never nil. Sales carry the recipient; purchases
// carry the supplier instead.
type Invoice struct {
	InvoiceNo      string     `json:"invoice_no"`
	InvoiceDate    *string    `json:"invoice_date"`
	RecipientGSTIN string     `json:"recipient_gstin"`
	RecipientName  string     `json:"recipient_name"`
	SupplierGSTIN  string     `json:"supplier_gstin,omitempty"`
	SupplierName   string     `json:"supplier_name,omitempty"`
	PlaceOfSupply  string     `json:"place_of_supply"`
	InvoiceValue   float64    `json:"invoice_value"`
	Items          []LineItem `json:"items"`
}

// counterparty returns the other party's identifier and name: the supplier
// on a purchase, the recipient on a sale.
func (inv Invoice) counterparty() (id, name string) {
	if inv.SupplierGSTIN != "" || inv.SupplierName != "" {
		return inv.SupplierGSTIN, inv.SupplierName
	}
	return inv.RecipientGSTIN, inv.RecipientName
}

// TaxableValue sums item taxable values.
func (inv Invoice) TaxableValue() float64 {
	var total float64
	for _, it := range inv.Items {
		total += it.TaxableValue
	}
	return total
}

// TaxBreakdown sums per-component tax across items.
type TaxBreakdown struct {
	IGST float64 `json:"igst"`
	CGST float64 `json:"cgst"`
	SGST float64 `json:"sgst"`
	Cess float64 `json:"cess"`
}

func (t *TaxBreakdown) add(it LineItem) {
	t.IGST += it.IGST
	t.CGST += it.CGST
	t.SGST += it.SGST
	t.Cess += it.Cess
}

// Total is the tax across the three rate categories. Cess is reported
// separately.
func (t TaxBreakdown) Total() float64 {
	return t.IGST + t.CGST + t.SGST
}

// ValidateInvoice converts an untrusted candidate sales record into an
// Invoice, coercing or defaulting every field.
func ValidateInvoice(raw map[string]any) Invoice {
	inv := validateCommon(raw)
	inv.RecipientGSTIN = stringField(raw, "recipient_gstin", "customer_gstin", "gstin")
	inv.RecipientName = stringField(raw, "recipient_name", "customer_name", "buyer_name")
	return inv
}

// ValidateInwardInvoice is ValidateInvoice for purchase records, which name
// the supplier rather than the recipient.
func ValidateInwardInvoice(raw map[string]any) Invoice {
	inv := validateCommon(raw)
	inv.SupplierGSTIN = stringField(raw, "supplier_gstin", "vendor_gstin", "seller_gstin", "gstin")
	inv.SupplierName = stringField(raw, "supplier_name", "vendor_name", "seller_name")
	return inv
}

func validateCommon(raw map[string]any) Invoice {
	inv := Invoice{
		InvoiceNo:     stringField(raw, "invoice_no", "invoice_number", "invoice_id", "bill_no"),
		PlaceOfSupply: stringField(raw, "place_of_supply", "pos"),
		InvoiceValue:  amountField(raw, "invoice_value", "total_value", "total_amount", "total"),
		Items:         []LineItem{},
	}

	if date := stringField(raw, "invoice_date", "date"); date != "" {
		if _, err := time.Parse(isoDate, date); err == nil {
			inv.InvoiceDate = &date
		}
	}

	if items, ok := raw["items"].([]any); ok {
		for _, item := range items {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			inv.Items = append(inv.Items, validateLineItem(m))
		}
	}
	return inv
}

func validateLineItem(raw map[string]any) LineItem {
	return LineItem{
		ProductName:  stringField(raw, "product_name", "description", "name"),
		HSNCode:      stringField(raw, "hsn_code", "hsn", "sac"),
		Quantity:     amountField(raw, "quantity", "qty"),
		UnitPrice:    amountField(raw, "unit_price", "rate", "price"),
		TaxableValue: amountField(raw, "taxable_value", "taxable_amount"),
		IGST:         amountField(raw, "igst", "igst_amount"),
		CGST:         amountField(raw, "cgst", "cgst_amount"),
		SGST:         amountField(raw, "sgst", "sgst_amount"),
		Cess:         amountField(raw, "cess", "cess_amount"),
	}
}

// stringField returns the first present key as a trimmed string. JSON null
// and non-scalar values count as absent.
func stringField(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok || v == nil {
			continue
		}
		s, err := cast.ToStringE(v)
		if err != nil {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

var amountReplacer = strings.NewReplacer(",", "", "₹", "", "Rs.", "", "Rs", "", "INR", "", " ", "")

// amountField coerces the first present key to a finite, non-negative
// float, defaulting to 0.
func amountField(raw map[string]any, keys ...string) float64 {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok || v == nil {
			continue
		}
		if s, isString := v.(string); isString {
			return parseAmount(s)
		}
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return 0
		}
		return sanitizeAmount(f)
	}
	return 0
}

// parseAmount reads an amount such as "₹1,234.50" or "Rs. 99".
func parseAmount(s string) float64 {
	f, err := cast.ToFloat64E(amountReplacer.Replace(s))
	if err != nil {
		return 0
	}
	return sanitizeAmount(f)
}

func sanitizeAmount(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0
	}
	return f
}

// nullMarkers are counterparty identifiers that mean "none given".
var nullMarkers = map[string]bool{
	"":     true,
	"null": true,
	"none": true,
	"nil":  true,
	"n/a":  true,
	"na":   true,
	"-":    true,
	"nan":  true,
}

// gstinLength is the length of a GST identification number.
const gstinLength = 15

// hasRegisteredCounterparty reports whether the invoice names a registered
// counterparty: an identifier that is present, not a null marker and exactly
// fifteen characters long.
func hasRegisteredCounterparty(inv Invoice) bool {
	id, _ := inv.counterparty()
	id = strings.TrimSpace(id)
	if nullMarkers[strings.ToLower(id)] {
		return false
	}
	return len(id) == gstinLength
}
