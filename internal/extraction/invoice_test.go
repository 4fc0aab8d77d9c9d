package extraction

import (
	"encoding/json"
	"math"
	"testing"
)

func decodeCandidate(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		t.Fatalf("bad fixture: %v", err)
	}
	return m
}

func TestValidateInvoice_CoercesFields(t *testing.T) {
	raw := decodeCandidate(t, `{
		"invoice_no": 1001,
		"invoice_date": "2024-03-15",
		"recipient_gstin": " 29abcde1234f1z5 ",
		"recipient_name": "  Acme Retail ",
		"invoice_value": "1,180.50",
		"items": [
			{"product_name": "Widget", "hsn_code": 8471, "quantity": "2", "unit_price": 500, "taxable_value": 1000, "igst": "180.5", "cgst": null},
			"not an item",
			{"product_name": "Bad", "taxable_value": "abc", "sgst": -5}
		]
	}`)

	inv := ValidateInvoice(raw)

	if inv.InvoiceNo != "1001" {
		t.Errorf("expected invoice_no 1001, got %q", inv.InvoiceNo)
	}
	if inv.InvoiceDate == nil || *inv.InvoiceDate != "2024-03-15" {
		t.Errorf("expected ISO date to survive, got %v", inv.InvoiceDate)
	}
	if inv.RecipientGSTIN != "29abcde1234f1z5" {
		t.Errorf("expected trimmed GSTIN, got %q", inv.RecipientGSTIN)
	}
	if inv.RecipientName != "Acme Retail" {
		t.Errorf("expected trimmed name, got %q", inv.RecipientName)
	}
	if inv.InvoiceValue != 1180.50 {
		t.Errorf("expected 1180.50, got %v", inv.InvoiceValue)
	}
	if len(inv.Items) != 2 {
		t.Fatalf("expected 2 items (non-objects skipped), got %d", len(inv.Items))
	}
	if it := inv.Items[0]; it.HSNCode != "8471" || it.Quantity != 2 || it.IGST != 180.5 || it.CGST != 0 {
		t.Errorf("unexpected first item %+v", it)
	}
	if it := inv.Items[1]; it.TaxableValue != 0 || it.SGST != 0 {
		t.Errorf("expected invalid and negative amounts to become 0, got %+v", it)
	}
}

func TestValidateInvoice_Defaults(t *testing.T) {
	inv := ValidateInvoice(map[string]any{
		"invoice_date": "15/03/2024",
		"items":        "oops",
	})

	if inv.InvoiceDate != nil {
		t.Errorf("expected non-ISO date to become null, got %q", *inv.InvoiceDate)
	}
	if inv.Items == nil || len(inv.Items) != 0 {
		t.Errorf("expected empty item list, got %v", inv.Items)
	}
	if inv.InvoiceNo != "" || inv.InvoiceValue != 0 {
		t.Errorf("expected zero defaults, got %+v", inv)
	}
}

func TestSanitizeAmount(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1), -0.01} {
		if got := sanitizeAmount(v); got != 0 {
			t.Errorf("sanitizeAmount(%v) = %v, want 0", v, got)
		}
	}
	if got := sanitizeAmount(12.5); got != 12.5 {
		t.Errorf("expected 12.5, got %v", got)
	}
}

func TestHasRegisteredCounterparty(t *testing.T) {
	tests := []struct {
		gstin string
		want  bool
	}{
		{"29ABCDE1234F1Z5", true},
		{"29ABCDE1234F1Z", false},
		{"", false},
		{"NULL", false},
		{"n/a", false},
	}
	for _, tt := range tests {
		if got := hasRegisteredCounterparty(Invoice{RecipientGSTIN: tt.gstin}); got != tt.want {
			t.Errorf("recipient %q: got %v, want %v", tt.gstin, got, tt.want)
		}
		if got := hasRegisteredCounterparty(Invoice{SupplierGSTIN: tt.gstin, SupplierName: "Vendor"}); got != tt.want {
			t.Errorf("supplier %q: got %v, want %v", tt.gstin, got, tt.want)
		}
	}
}

func TestValidateInwardInvoice(t *testing.T) {
	raw := decodeCandidate(t, `{
		"invoice_no": "PB-77",
		"invoice_date": "2024-03-02",
		"supplier_gstin": " 27PQRSX5678K1Z2 ",
		"supplier_name": "ABC Traders",
		"recipient_gstin": "29ABCDE1234F1Z5",
		"invoice_value": 2360,
		"items": [{"taxable_value": 2000, "cgst": 180, "sgst": 180}]
	}`)

	inv := ValidateInwardInvoice(raw)

	if inv.SupplierGSTIN != "27PQRSX5678K1Z2" || inv.SupplierName != "ABC Traders" {
		t.Errorf("unexpected supplier %q / %q", inv.SupplierGSTIN, inv.SupplierName)
	}
	if inv.RecipientGSTIN != "" {
		t.Errorf("purchases do not carry a recipient, got %q", inv.RecipientGSTIN)
	}
	if id, name := inv.counterparty(); id != "27PQRSX5678K1Z2" || name != "ABC Traders" {
		t.Errorf("expected the supplier as counterparty, got %q / %q", id, name)
	}
	if len(inv.Items) != 1 || inv.Items[0].Tax() != 360 {
		t.Errorf("unexpected items %+v", inv.Items)
	}
}
